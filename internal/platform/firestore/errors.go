package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// opTransaction names errors raised by RunTransaction, including commit failures.
const opTransaction = "transaction"

// Error is a Firestore failure classified for the order repositories. Op is the collection and
// call, e.g. "orders.get", or "transaction" for a commit.
type Error struct {
	Op   string
	Code codes.Code
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports a missing order, product, request or notification document.
func (e *Error) IsNotFound() bool {
	return e != nil && e.Code == codes.NotFound
}

// IsConflict reports a lost race: a duplicate create or a transaction aborted by contention.
func (e *Error) IsConflict() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return true
	}
	return false
}

// IsUnavailable reports a backend failure. On a transaction it means the commit outcome is
// unknown and callers re-read before reporting.
func (e *Error) IsUnavailable() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return true
	}
	return false
}

// WrapError classifies err for op. Caller cancellation is returned as the context error. A
// deadline is returned as context.DeadlineExceeded except on a transaction, where it may have
// hit the commit and is reported as unavailable.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op == "" {
			existing.Op = op
		}
		return existing
	}

	code := status.Code(err)
	switch {
	case errors.Is(err, context.Canceled) || code == codes.Canceled:
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded) || code == codes.DeadlineExceeded:
		if op != opTransaction {
			return context.DeadlineExceeded
		}
		code = codes.DeadlineExceeded
	}
	return &Error{Op: op, Code: code, err: err}
}
