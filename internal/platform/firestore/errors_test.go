package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesOrderFailures(t *testing.T) {
	missing := WrapError("orders.get", status.Error(codes.NotFound, "no such document"))
	var repoErr *Error
	if !errors.As(missing, &repoErr) || !repoErr.IsNotFound() || repoErr.IsConflict() {
		t.Fatalf("expected not found, got %v", missing)
	}
	if missing.Error() != "orders.get: rpc error: code = NotFound desc = no such document" {
		t.Fatalf("unexpected message %q", missing.Error())
	}

	contended := WrapError(opTransaction, status.Error(codes.Aborted, "too much contention"))
	if !errors.As(contended, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected aborted commit to be a conflict, got %v", contended)
	}

	if err := WrapError("products.query", status.Error(codes.DeadlineExceeded, "slow")); err != context.DeadlineExceeded {
		t.Fatalf("expected read deadline to surface as context error, got %v", err)
	}
	commit := WrapError(opTransaction, context.DeadlineExceeded)
	if !errors.As(commit, &repoErr) || !repoErr.IsUnavailable() {
		t.Fatalf("expected commit deadline to be reported as unavailable, got %v", commit)
	}
	if err := WrapError(opTransaction, status.Error(codes.Canceled, "client gone")); err != context.Canceled {
		t.Fatalf("expected cancellation to pass through, got %v", err)
	}
}

func TestWrapErrorKeepsInnerOperation(t *testing.T) {
	inner := WrapError("orderMoves.create", status.Error(codes.AlreadyExists, "exists"))
	outer := WrapError(opTransaction, inner)
	var repoErr *Error
	if !errors.As(outer, &repoErr) || repoErr.Op != "orderMoves.create" || !repoErr.IsConflict() {
		t.Fatalf("expected the failing call to be preserved, got %v", outer)
	}
	if WrapError("orders.set", nil) != nil {
		t.Fatal("expected nil for a nil error")
	}
}
