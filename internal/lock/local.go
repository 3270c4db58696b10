package lock

import (
	"context"
	"fmt"
	"sync"
)

type slot struct {
	sem  chan struct{}
	refs int
}

// Local is an in-process lock keyed by string. Waiters on different keys
// never block each other; a wait can be abandoned through its context.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func NewLocal() *Local {
	//nolint:exhaustruct
	return &Local{
		slots: make(map[string]*slot),
	}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	s := l.acquireSlot(key)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(key, s)

		return nil, fmt.Errorf("wait for lock %q: %w", key, ctx.Err())
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			<-s.sem
			l.releaseSlot(key, s)
		})
	}, nil
}

// Held returns the number of keys that are currently locked or awaited.
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.slots)
}

func (l *Local) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}

	s.refs++

	return s
}

func (l *Local) releaseSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
