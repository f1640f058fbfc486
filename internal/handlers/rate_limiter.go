package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/storefront-orders/api/internal/platform/auth"
	"github.com/storefront-orders/api/internal/platform/httpx"
)

// submissionLimiter caps how many customer requests one caller may submit per fixed window.
// State is per instance.
type submissionLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu    sync.Mutex
	store map[string]windowCount
}

type windowCount struct {
	count int
	reset time.Time
}

func newSubmissionLimiter(limit int, window time.Duration, clock func() time.Time) *submissionLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &submissionLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]windowCount),
	}
}

// Allow records one submission for key. When the window is exhausted it reports false and the
// time left until the window resets.
func (l *submissionLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || !now.Before(entry.reset) {
		l.store[key] = windowCount{count: 1, reset: now.Add(l.window)}
		l.pruneLocked(now)
		return true, 0
	}
	if entry.count >= l.limit {
		return false, entry.reset.Sub(now)
	}
	entry.count++
	l.store[key] = entry
	return true, 0
}

func (l *submissionLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.store {
		if !now.Before(entry.reset) {
			delete(l.store, key)
		}
	}
}

// Middleware limits per authenticated caller. Staff are not limited.
func (l *submissionLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if ok && identity.IsStaff() {
			next.ServeHTTP(w, r)
			return
		}
		key := ""
		if ok {
			key = identity.UID
		}
		allowed, retry := l.Allow(key)
		if !allowed {
			seconds := int(retry.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests; try again later", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}
