package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalLocker is an in-process keyed mutex for single-instance deployments and tests.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	opts  options
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker constructs an in-process Locker. WithTTL has no effect.
func NewLocalLocker(opts ...Option) *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot), opts: buildOptions(opts)}
}

// Acquire blocks until key is free, ctx ends, or the wait deadline passes.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (Release, error) {
	s := l.ref(key)

	timer := time.NewTimer(l.opts.wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	case <-timer.C:
		l.unref(key)
		return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-s.ch
			l.unref(key)
		})
		return nil
	}, nil
}

func (l *LocalLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(l.slots, key)
	}
}
