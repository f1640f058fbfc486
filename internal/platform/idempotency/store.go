package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a stored order mutation response can be replayed.
const DefaultTTL = 24 * time.Hour

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of Store.Reserve.
type ReservationState int

const (
	// ReservationStateNew lets the caller run the mutation.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted carries a response to replay.
	ReservationStateCompleted
	// ReservationStatePending means the same mutation is still running elsewhere.
	ReservationStatePending
)

type Reservation struct {
	State  ReservationState
	Record Record
}

// Scope binds a client supplied key to one requester and one order operation. Operation is the
// method and route template, e.g. "PATCH /api/orders/{id}/payment", and OrderID the order or
// request the mutation addresses.
type Scope struct {
	Key       string
	Requester string
	Operation string
	OrderID   string
}

// storageKey is the hashed identity of a scope. OrderID is excluded: the fingerprint already
// covers the path, so reusing a key against another order reports a conflict.
func (s Scope) storageKey() string {
	parts := []string{strings.TrimSpace(s.Requester), strings.TrimSpace(s.Operation), strings.TrimSpace(s.Key)}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// Record is the stored state of one scoped key.
type Record struct {
	Key             string
	Operation       string
	OrderID         string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

func pendingRecord(scope Scope, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         scope.Key,
		Operation:   scope.Operation,
		OrderID:     scope.OrderID,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// complete stamps resp onto record, dropping hop-by-hop headers.
func (r *Record) complete(resp Response, now time.Time, ttl time.Duration) {
	r.Status = StatusCompleted
	r.ResponseStatus = resp.Status
	r.ResponseHeaders = replayableHeaders(resp.Headers)
	r.ResponseBody = nil
	if len(resp.Body) > 0 {
		r.ResponseBody = append([]byte(nil), resp.Body...)
	}
	r.UpdatedAt = now
	r.ExpiresAt = now.Add(ttl)
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// reservationFor classifies an existing live record for a Reserve call.
func reservationFor(record Record, fingerprint string) (Reservation, error) {
	if record.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if record.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: record}, nil
	}
	return Reservation{State: ReservationStatePending, Record: record}, nil
}

// Response is the handler output captured for replay.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists idempotency reservations and the responses of completed order mutations.
type Store interface {
	Reserve(ctx context.Context, scope Scope, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, scope Scope, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, scope Scope) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch reports a key reused for a different request body or target.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

var hopByHop = map[string]bool{
	"Content-Length":      true,
	"Date":                true,
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func replayableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if hopByHop[canonical] {
			continue
		}
		out[canonical] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
