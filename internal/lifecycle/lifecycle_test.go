package lifecycle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nikhilbhutani/docpipeline/internal/lifecycle"
)

func TestCoordinatorStartup(t *testing.T) {
	c := lifecycle.New()

	var started atomic.Int32
	for range 3 {
		c.OnStartup(func() {
			time.Sleep(5 * time.Millisecond)
			started.Add(1)
		})
	}

	if c.Ready() {
		t.Error("Ready() = true before WaitForStartup")
	}

	c.WaitForStartup()

	if started.Load() != 3 {
		t.Errorf("started = %d, want 3", started.Load())
	}
	if !c.Ready() {
		t.Error("Ready() = false after WaitForStartup")
	}
}

func TestCoordinatorShutdown(t *testing.T) {
	c := lifecycle.New()

	var closed atomic.Bool
	c.OnShutdown(func() {
		<-c.Context().Done()
		closed.Store(true)
	})
	c.WaitForStartup()

	if err := c.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !closed.Load() {
		t.Error("shutdown hook did not run")
	}
	if c.Ready() {
		t.Error("Ready() = true after Shutdown")
	}
}

func TestCoordinatorShutdownTimeout(t *testing.T) {
	c := lifecycle.New()

	block := make(chan struct{})
	defer close(block)
	c.OnShutdown(func() { <-block })

	err := c.Shutdown(10 * time.Millisecond)
	if !errors.Is(err, lifecycle.ErrShutdownTimeout) {
		t.Errorf("Shutdown() error = %v, want ErrShutdownTimeout", err)
	}
}

func TestSignal(t *testing.T) {
	s := lifecycle.NewSignal()
	if s.Resolved() {
		t.Fatal("Resolved() = true before Resolve")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}

	go s.Resolve(nil)
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}

	s.Resolve(errors.New("late"))
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("second Resolve changed result to %v", err)
	}
}

func TestSignalFailure(t *testing.T) {
	s := lifecycle.NewSignal()
	want := errors.New("index unreachable")
	s.Resolve(want)

	if err := s.Wait(context.Background()); !errors.Is(err, want) {
		t.Errorf("Wait() error = %v, want %v", err, want)
	}
}

func TestRetry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fail := errors.New("refused")

	tests := []struct {
		name      string
		attempts  int
		succeedOn int
		wantCalls int
		wantErr   bool
	}{
		{"first try", 5, 1, 1, false},
		{"third try", 5, 3, 3, false},
		{"exhausted", 5, 0, 5, true},
		{"single attempt", 1, 0, 1, true},
		{"zero attempts treated as one", 0, 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := lifecycle.Retry(context.Background(), logger, "broker", tt.attempts, time.Millisecond, func(context.Context) error {
				calls++
				if calls == tt.succeedOn {
					return nil
				}
				return fail
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr && !errors.Is(err, fail) {
				t.Errorf("Retry() error = %v, want wrapped %v", err, fail)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Retry() error = %v", err)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := lifecycle.Retry(ctx, logger, "broker", 5, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("refused")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
