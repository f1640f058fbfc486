package services

import (
	"errors"
	"fmt"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories"
)

var (
	// ErrValidation marks missing or malformed input. Detected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an order, product or request id that does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a request the current state forbids (insufficient stock, wrong partition).
	ErrConflict = errors.New("conflict")
	// ErrForbidden marks a caller acting on a record it does not own.
	ErrForbidden = errors.New("forbidden")
	// ErrIntegrity marks a move whose outcome could not be reconciled.
	ErrIntegrity = errors.New("integrity violation")
	// ErrUpstream marks notifier or payment provider failures.
	ErrUpstream = errors.New("upstream failure")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func forbiddenError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// StockShortageError reports the first product of a batch without enough available stock.
type StockShortageError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *StockShortageError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: available=%d, requested=%d", name, e.Available, e.Requested)
}

// Unwrap classifies the shortage as a conflict.
func (e *StockShortageError) Unwrap() error { return ErrConflict }

// IntegrityError reports a move that may have been applied partially or not at all and needs
// manual reconciliation.
type IntegrityError struct {
	OrderID string
	From    domain.Partition
	To      domain.Partition
	Found   domain.Partition
	Cause   error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation moving order %s from %s to %s (found in %q): %v", e.OrderID, e.From, e.To, e.Found, e.Cause)
}

// Is matches ErrIntegrity.
func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// Unwrap exposes the underlying cause.
func (e *IntegrityError) Unwrap() error { return e.Cause }

// mapRepositoryError converts repository failures into the service taxonomy. Errors already
// carrying a service sentinel pass through untouched.
func mapRepositoryError(err error, subject string) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrForbidden, ErrIntegrity, ErrUpstream} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrNotFound, subject)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s: %v", ErrConflict, subject, err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// commitUncertain reports whether a transaction failure leaves its outcome unknown.
func commitUncertain(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return true
	}
	return false
}
