// Package lock provides per-key advisory locks used to serialise order mutations.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock could not be taken before the wait deadline.
var ErrNotAcquired = errors.New("lock: not acquired")

// Release frees a held lock. Releasing twice is a no-op.
type Release = func(ctx context.Context) error

// Locker acquires exclusive locks by key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

const (
	defaultTTL      = 30 * time.Second
	defaultWait     = 5 * time.Second
	defaultInterval = 25 * time.Millisecond
	maxInterval     = 250 * time.Millisecond
)

type options struct {
	ttl  time.Duration
	wait time.Duration
}

// Option customises lock behaviour.
type Option func(*options)

// WithTTL bounds how long a Redis lock survives a crashed holder.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithWait bounds how long Acquire waits for a contended key.
func WithWait(wait time.Duration) Option {
	return func(o *options) {
		if wait > 0 {
			o.wait = wait
		}
	}
}

func buildOptions(opts []Option) options {
	cfg := options{ttl: defaultTTL, wait: defaultWait}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
