package services

import (
	"context"
	"errors"
	"time"
)

const eventSweepPass = "stock.sweep.pass"

// ReservationSweeper voids expired stock reservations on a timer.
type ReservationSweeper struct {
	ledger StockLedger
	batch  int
	logger Logger
}

// NewReservationSweeper wires the sweeper around the stock ledger.
func NewReservationSweeper(ledger StockLedger, batch int, logger Logger) (*ReservationSweeper, error) {
	if ledger == nil {
		return nil, errors.New("reservation sweeper: stock ledger is required")
	}
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	if logger == nil {
		logger = nopLogger
	}
	return &ReservationSweeper{ledger: ledger, batch: batch, logger: logger}, nil
}

// SweepOnce releases one batch of expired reservations.
func (s *ReservationSweeper) SweepOnce(ctx context.Context) (int, error) {
	return s.ledger.SweepExpired(ctx, s.batch)
}

// Run sweeps every interval until ctx is cancelled.
func (s *ReservationSweeper) Run(ctx context.Context, interval time.Duration) {
	runEvery(ctx, interval, time.Minute, func(ctx context.Context) {
		if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger(ctx, eventSweepPass, map[string]any{"error": err.Error()})
		}
	})
}
