package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories"
)

const (
	eventStockReserve   = "stock.reserve"
	eventStockDecrement = "stock.decrement"
	eventStockRestore   = "stock.restore"
	eventStockSweep     = "stock.sweep"

	defaultReservationTTL = 15 * time.Minute
	maxReservationTTL     = 120 * time.Minute
	defaultSweepBatch     = 100
)

// StockLedgerDeps bundles the collaborators required by the stock ledger.
type StockLedgerDeps struct {
	Products     repositories.ProductRepository
	Reservations repositories.ReservationRepository
	UnitOfWork   repositories.UnitOfWork
	Metrics      MetricsRecorder
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       Logger
}

type stockLedger struct {
	products     repositories.ProductRepository
	reservations repositories.ReservationRepository
	uow          repositories.UnitOfWork
	metrics      MetricsRecorder
	now          func() time.Time
	newID        func() string
	logger       Logger
}

// NewStockLedger wires the stock ledger.
func NewStockLedger(deps StockLedgerDeps) (StockLedger, error) {
	if deps.Products == nil {
		return nil, errors.New("stock ledger: product repository is required")
	}
	if deps.Reservations == nil {
		return nil, errors.New("stock ledger: reservation repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("stock ledger: unit of work is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &stockLedger{
		products:     deps.Products,
		reservations: deps.Reservations,
		uow:          deps.UnitOfWork,
		metrics:      metrics,
		now:          utcClock(deps.Clock),
		newID:        idGen,
		logger:       logger,
	}, nil
}

func (s *stockLedger) Validate(ctx context.Context, items []domain.StockLine) (StockValidation, error) {
	if len(items) == 0 {
		return StockValidation{}, validationError("items are required")
	}
	ids := make([]string, 0, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return StockValidation{}, validationError("items[%d].id is required", i)
		}
		if item.Quantity <= 0 {
			return StockValidation{}, validationError("items[%d].quantity must be positive", i)
		}
		ids = append(ids, id)
	}

	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return StockValidation{}, mapRepositoryError(err, "products")
	}

	result := StockValidation{AllValid: true, Items: make([]StockItemCheck, 0, len(items))}
	for i, item := range items {
		check := StockItemCheck{ProductID: ids[i], RequestedQuantity: item.Quantity}
		product, ok := products[ids[i]]
		switch {
		case !ok:
			check.Error = "product not found"
		case !product.IsActive:
			check.Name = product.Name
			check.Error = "product is not available"
		default:
			check.Name = product.Name
			check.AvailableStock = product.Available()
			if check.AvailableStock < item.Quantity {
				check.Error = fmt.Sprintf("insufficient stock: available=%d, requested=%d", check.AvailableStock, item.Quantity)
			} else {
				check.Valid = true
			}
		}
		if !check.Valid {
			result.AllValid = false
		}
		result.Items = append(result.Items, check)
	}
	return result, nil
}

func (s *stockLedger) Reserve(ctx context.Context, cmd ReserveCommand) (domain.StockReservation, error) {
	lines, err := normaliseStockLines(cmd.Items)
	if err != nil {
		return domain.StockReservation{}, err
	}
	ttl := cmd.TTL
	if ttl == 0 {
		ttl = defaultReservationTTL
	}
	if ttl < 0 || ttl > maxReservationTTL {
		return domain.StockReservation{}, validationError("expiresInMinutes must be between 1 and %d", int(maxReservationTTL/time.Minute))
	}
	id := strings.TrimSpace(cmd.ReservationID)
	if id == "" {
		id = "rsv_" + s.newID()
	}

	now := s.now()
	reservation := domain.StockReservation{
		ID:        id,
		Items:     lines,
		Status:    domain.ReservationStatusReserved,
		OwnerID:   strings.TrimSpace(cmd.OwnerID),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.reservations.Get(ctx, id); err == nil {
			return conflictError("reservation %s already exists", id)
		} else if !isNotFound(err) {
			return err
		}

		products, err := s.products.GetMany(ctx, productIDs(lines))
		if err != nil {
			return err
		}
		updated := make([]domain.Product, 0, len(lines))
		for _, line := range lines {
			product, ok := products[line.ProductID]
			if !ok {
				return notFoundError("product %s not found", line.ProductID)
			}
			if !product.IsActive {
				return conflictError("product %s is not available", line.ProductID)
			}
			if available := product.Available(); available < line.Quantity {
				return &StockShortageError{ProductID: product.ID, Name: product.Name, Available: available, Requested: line.Quantity}
			}
			product.ReservedQuantity += line.Quantity
			product.UpdatedAt = now
			updated = append(updated, product)
		}

		if err := s.reservations.Create(ctx, reservation); err != nil {
			return err
		}
		return s.saveProducts(ctx, updated)
	})
	if err != nil {
		s.metrics.RecordStock(ctx, "reserve", outcomeFor(err))
		return domain.StockReservation{}, mapRepositoryError(err, "reservation "+id)
	}

	s.metrics.RecordStock(ctx, "reserve", "ok")
	s.logger(ctx, eventStockReserve, map[string]any{
		"reservationId": id,
		"items":         len(lines),
		"expiresAt":     reservation.ExpiresAt,
	})
	return reservation, nil
}

func (s *stockLedger) Decrement(ctx context.Context, items []domain.StockLine, reservationID string) ([]StockChange, error) {
	lines, err := normaliseStockLines(items)
	if err != nil {
		return nil, err
	}
	reservationID = strings.TrimSpace(reservationID)
	now := s.now()

	var changes []StockChange
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		changes = nil
		held := map[string]int{}
		var reservation domain.StockReservation
		if reservationID != "" {
			res, err := s.reservations.Get(ctx, reservationID)
			if err != nil {
				if isNotFound(err) {
					return notFoundError("reservation %s not found", reservationID)
				}
				return err
			}
			if res.Status != domain.ReservationStatusReserved {
				return conflictError("reservation %s is %s", reservationID, res.Status)
			}
			reservation = res
			held = stockTotals(res.Items)
		}

		ids := productIDs(lines)
		for id := range held {
			if !containsString(ids, id) {
				ids = append(ids, id)
			}
		}
		products, err := s.products.GetMany(ctx, ids)
		if err != nil {
			return err
		}

		for _, line := range lines {
			product, ok := products[line.ProductID]
			if !ok {
				return notFoundError("product %s not found", line.ProductID)
			}
			available := product.StockQuantity - (product.ReservedQuantity - held[line.ProductID])
			if available < line.Quantity {
				return &StockShortageError{ProductID: product.ID, Name: product.Name, Available: max(available, 0), Requested: line.Quantity}
			}
		}

		touched := make(map[string]domain.Product, len(ids))
		for id, qty := range held {
			if product, ok := products[id]; ok {
				product.ReservedQuantity = max(product.ReservedQuantity-qty, 0)
				touched[id] = product
			}
		}
		for _, line := range lines {
			product, ok := touched[line.ProductID]
			if !ok {
				product = products[line.ProductID]
			}
			product.StockQuantity -= line.Quantity
			touched[line.ProductID] = product
			changes = append(changes, StockChange{
				ProductID:     product.ID,
				Name:          product.Name,
				Quantity:      line.Quantity,
				StockQuantity: product.StockQuantity,
			})
		}

		if reservationID != "" {
			reservation.Status = domain.ReservationStatusCommitted
			reservation.CommittedAt = &now
			reservation.UpdatedAt = now
			if err := s.reservations.Save(ctx, reservation); err != nil {
				return err
			}
		}
		return s.saveProducts(ctx, stampProducts(touched, ids, now))
	})
	if err != nil {
		s.metrics.RecordStock(ctx, "decrement", outcomeFor(err))
		return nil, mapRepositoryError(err, "stock")
	}

	s.metrics.RecordStock(ctx, "decrement", "ok")
	s.logger(ctx, eventStockDecrement, map[string]any{
		"items":         len(lines),
		"reservationId": reservationID,
	})
	return changes, nil
}

func (s *stockLedger) Restore(ctx context.Context, cmd RestoreCommand) ([]StockChange, error) {
	reservationID := strings.TrimSpace(cmd.ReservationID)
	ownerID := strings.TrimSpace(cmd.OwnerID)
	var lines []domain.StockLine
	if len(cmd.Items) > 0 || reservationID == "" {
		normalised, err := normaliseStockLines(cmd.Items)
		if err != nil {
			return nil, err
		}
		lines = normalised
	}
	if cmd.HoldsOnly && ownerID == "" {
		return nil, validationError("an owner is required to release holds")
	}
	reason := strings.TrimSpace(cmd.Reason)
	now := s.now()

	var (
		changes  []StockChange
		released []string
	)
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		changes = nil
		released = nil

		var (
			holds  []domain.StockReservation
			target = lines
		)
		if reservationID != "" {
			res, err := s.reservations.Get(ctx, reservationID)
			switch {
			case err == nil && res.Status == domain.ReservationStatusReserved:
				if cmd.HoldsOnly && res.OwnerID != ownerID {
					return forbiddenError("reservation %s belongs to another caller", reservationID)
				}
				holds = []domain.StockReservation{res}
				target = res.Items
			case err == nil, isNotFound(err):
				if len(lines) == 0 {
					return conflictError("reservation %s is not active", reservationID)
				}
			default:
				return err
			}
		}
		if len(holds) == 0 && ownerID != "" {
			owned, err := s.reservations.ListActiveByOwner(ctx, ownerID)
			if err != nil {
				return err
			}
			holds = owned
		}

		products, err := s.products.GetMany(ctx, productIDs(target))
		if err != nil {
			return err
		}

		fromHolds, updatedHolds := coverFromHolds(target, holds)
		touched := make(map[string]domain.Product, len(target))
		for _, line := range target {
			product, ok := products[line.ProductID]
			if !ok {
				changes = append(changes, StockChange{ProductID: line.ProductID, Quantity: line.Quantity, Skipped: true, Error: "product not found"})
				s.logger(ctx, eventStockRestore, map[string]any{
					"productId": line.ProductID,
					"quantity":  line.Quantity,
					"skipped":   true,
					"reason":    reason,
				})
				continue
			}
			held := fromHolds[line.ProductID]
			uncovered := line.Quantity - held
			product.ReservedQuantity = max(product.ReservedQuantity-held, 0)
			if uncovered > 0 && !cmd.HoldsOnly {
				product.StockQuantity += uncovered
				held = line.Quantity
				uncovered = 0
			}
			product.UpdatedAt = now
			touched[line.ProductID] = product
			if held > 0 {
				changes = append(changes, StockChange{
					ProductID:     product.ID,
					Name:          product.Name,
					Quantity:      held,
					Released:      fromHolds[line.ProductID],
					StockQuantity: product.StockQuantity,
				})
			}
			if uncovered > 0 {
				changes = append(changes, StockChange{
					ProductID:     product.ID,
					Name:          product.Name,
					Quantity:      uncovered,
					StockQuantity: product.StockQuantity,
					Skipped:       true,
					Error:         "no active hold covers this quantity",
				})
			}
		}

		for _, hold := range updatedHolds {
			if len(hold.Items) == 0 {
				hold.Status = domain.ReservationStatusReleased
				hold.Reason = reason
				hold.ReleasedAt = &now
				released = append(released, hold.ID)
			}
			hold.UpdatedAt = now
			if err := s.reservations.Save(ctx, hold); err != nil {
				return err
			}
		}
		return s.saveProducts(ctx, stampProducts(touched, productIDs(target), now))
	})
	if err != nil {
		s.metrics.RecordStock(ctx, "restore", outcomeFor(err))
		return nil, mapRepositoryError(err, "stock")
	}

	s.metrics.RecordStock(ctx, "restore", "ok")
	s.logger(ctx, eventStockRestore, map[string]any{
		"items":         len(changes),
		"reservationId": reservationID,
		"releasedHolds": released,
		"reason":        reason,
	})
	return changes, nil
}

// coverFromHolds takes the requested quantities out of the holds, oldest first. It returns the
// quantity released per product and the holds it changed with their remaining items.
func coverFromHolds(lines []domain.StockLine, holds []domain.StockReservation) (map[string]int, []domain.StockReservation) {
	covered := make(map[string]int, len(lines))
	if len(holds) == 0 {
		return covered, nil
	}
	remaining := stockTotals(lines)
	sorted := slices.Clone(holds)
	slices.SortStableFunc(sorted, func(a, b domain.StockReservation) int { return a.CreatedAt.Compare(b.CreatedAt) })

	var changed []domain.StockReservation
	for _, hold := range sorted {
		left := make([]domain.StockLine, 0, len(hold.Items))
		touched := false
		for _, item := range hold.Items {
			take := min(item.Quantity, remaining[item.ProductID])
			if take > 0 {
				remaining[item.ProductID] -= take
				covered[item.ProductID] += take
				item.Quantity -= take
				touched = true
			}
			if item.Quantity > 0 {
				left = append(left, item)
			}
		}
		if touched {
			hold.Items = left
			changed = append(changed, hold)
		}
	}
	return covered, changed
}

func (s *stockLedger) SweepExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultSweepBatch
	}
	now := s.now()
	expired, err := s.reservations.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, mapRepositoryError(err, "reservations")
	}

	swept := 0
	for _, candidate := range expired {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		voided := false
		err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
			voided = false
			res, err := s.reservations.Get(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if res.Status != domain.ReservationStatusReserved || res.ExpiresAt.After(now) {
				return nil
			}
			ids := productIDs(res.Items)
			products, err := s.products.GetMany(ctx, ids)
			if err != nil {
				return err
			}
			touched := make(map[string]domain.Product, len(ids))
			for id, qty := range stockTotals(res.Items) {
				if product, ok := products[id]; ok {
					product.ReservedQuantity = max(product.ReservedQuantity-qty, 0)
					touched[id] = product
				}
			}
			res.Status = domain.ReservationStatusExpired
			res.ReleasedAt = &now
			res.UpdatedAt = now
			if err := s.reservations.Save(ctx, res); err != nil {
				return err
			}
			voided = true
			return s.saveProducts(ctx, stampProducts(touched, ids, now))
		})
		if err != nil {
			s.logger(ctx, eventStockSweep, map[string]any{
				"reservationId": candidate.ID,
				"error":         err.Error(),
			})
			continue
		}
		if voided {
			swept++
		}
	}
	if swept > 0 {
		s.metrics.RecordStock(ctx, "sweep", "ok")
		s.logger(ctx, eventStockSweep, map[string]any{"expired": swept})
	}
	return swept, nil
}

func (s *stockLedger) saveProducts(ctx context.Context, products []domain.Product) error {
	for _, product := range products {
		if err := s.products.Save(ctx, product); err != nil {
			return err
		}
	}
	return nil
}

// normaliseStockLines validates and aggregates duplicate product lines, keeping first-seen order.
func normaliseStockLines(items []domain.StockLine) ([]domain.StockLine, error) {
	if len(items) == 0 {
		return nil, validationError("items are required")
	}
	index := make(map[string]int, len(items))
	out := make([]domain.StockLine, 0, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, validationError("items[%d].id is required", i)
		}
		if item.Quantity <= 0 {
			return nil, validationError("items[%d].quantity must be positive", i)
		}
		if pos, ok := index[id]; ok {
			out[pos].Quantity += item.Quantity
			continue
		}
		index[id] = len(out)
		out = append(out, domain.StockLine{ProductID: id, Quantity: item.Quantity})
	}
	return out, nil
}

func productIDs(lines []domain.StockLine) []string {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if !containsString(ids, line.ProductID) {
			ids = append(ids, line.ProductID)
		}
	}
	return ids
}

func stockTotals(lines []domain.StockLine) map[string]int {
	totals := make(map[string]int, len(lines))
	for _, line := range lines {
		totals[line.ProductID] += line.Quantity
	}
	return totals
}

// stampProducts returns the touched products in ids order with UpdatedAt set.
func stampProducts(touched map[string]domain.Product, ids []string, now time.Time) []domain.Product {
	out := make([]domain.Product, 0, len(touched))
	for _, id := range ids {
		if product, ok := touched[id]; ok {
			product.UpdatedAt = now
			out = append(out, product)
		}
	}
	return out
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound), isNotFound(err):
		return "not_found"
	case errors.Is(err, ErrConflict), isConflict(err):
		return "conflict"
	default:
		return "error"
	}
}
