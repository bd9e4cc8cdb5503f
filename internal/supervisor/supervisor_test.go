package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qolsys/qolsys2mqtt/internal/errs"
	"github.com/qolsys/qolsys2mqtt/internal/log"
)

func TestChildRestartsOnTransientError(t *testing.T) {
	s := New(log.NewLogger("error"))
	var calls atomic.Int32

	s.Add(Child{
		Name:         "flaky",
		RestartDelay: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			n := calls.Add(1)
			if n < 3 {
				return fmt.Errorf("transient failure #%d", n)
			}
			<-ctx.Done()
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if calls.Load() < 3 {
		t.Errorf("expected the child to be restarted at least twice, got %d calls", calls.Load())
	}
}

func TestChildEscalatesOnBug(t *testing.T) {
	s := New(log.NewLogger("error"))
	var calls atomic.Int32

	s.Add(Child{
		Name: "buggy",
		Run: func(ctx context.Context) error {
			calls.Add(1)
			return fmt.Errorf("wrap: %w", errs.ErrBug)
		},
	})
	s.Add(Child{
		Name: "innocent",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	})

	err := s.Run(context.Background())
	if !errors.Is(err, errs.ErrBug) {
		t.Fatalf("expected ErrBug to propagate from Run, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("a Bug-returning child must not be restarted, got %d calls", calls.Load())
	}
}

func TestRunReturnsNilOnCleanShutdown(t *testing.T) {
	s := New(log.NewLogger("error"))
	s.Add(Child{
		Name: "clean",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("expected clean shutdown to return nil, got %v", err)
	}
}

func TestReadyReflectsStartup(t *testing.T) {
	s := New(log.NewLogger("error"))
	if s.Ready() {
		t.Fatalf("Ready should be false before Run")
	}
	s.Add(Child{Run: func(ctx context.Context) error { <-ctx.Done(); return nil }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !s.Ready() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !s.Ready() {
		t.Fatalf("expected Ready() to become true once Run starts its children")
	}
	cancel()
	<-done
}
