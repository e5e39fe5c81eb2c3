package lifecycle

import (
	"context"
	"sync"
)

// Signal is a one-shot readiness result. Work that must not start before a
// background check completes waits on it instead of racing the check.
type Signal struct {
	done chan struct{}
	once sync.Once
	err  error
}

func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Resolve records the outcome. Only the first call has an effect.
func (s *Signal) Resolve(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

func (s *Signal) Resolved() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the signal resolves or ctx ends, returning the resolved
// error or the context error respectively.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
