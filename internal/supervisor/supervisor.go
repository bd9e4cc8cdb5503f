// Package supervisor runs the bridge's long-lived tasks (PanelLink,
// MQTT transport, MqttSurface) as a task group with per-child restart,
// distinct from a plain errgroup.WithContext (which cancels every
// sibling on the first error). Only a child reporting errs.ErrBug
// escalates to a full group shutdown; anything else restarts that
// child alone after a delay.
//
// Grounded on the teacher's main.go signal-channel shutdown
// (signal.Notify on SIGINT/SIGTERM) plus the teacher's go.mod indirect
// dependency on golang.org/x/sync, brought to the surface here as the
// group's cancellation primitive.
package supervisor

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qolsys/qolsys2mqtt/internal/errs"
	"github.com/qolsys/qolsys2mqtt/internal/log"
)

// Child is one supervised task.
type Child struct {
	Name string
	// Run should block until ctx is canceled or it hits an error. A nil
	// return means "done on purpose", never restarted.
	Run func(ctx context.Context) error
	// RestartDelay is how long to wait before restarting Run after a
	// non-Bug error. Defaults to 1s if zero.
	RestartDelay time.Duration
}

// Supervisor owns a set of Children and runs them for the process
// lifetime.
type Supervisor struct {
	log      *log.Logger
	children []Child
	ready    atomic.Bool
}

// New builds an empty Supervisor.
func New(logger *log.Logger) *Supervisor {
	return &Supervisor{log: logger}
}

// Add registers a child. Call before Run; not safe concurrently with
// Run.
func (s *Supervisor) Add(c Child) {
	s.children = append(s.children, c)
}

// Ready reports whether Run has started every child at least once —
// suitable for wiring to a liveness/readiness probe.
func (s *Supervisor) Ready() bool {
	return s.ready.Load()
}

// Run starts every child and blocks until the group's context is
// canceled (by the caller, by a signal via RunUntilSignal, or by a
// child reporting errs.ErrBug) and every child has returned.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.children {
		c := c
		g.Go(func() error {
			return s.runChild(gctx, c)
		})
	}
	s.ready.Store(true)
	return g.Wait()
}

// RunUntilSignal is Run, but also cancels its context on SIGINT/SIGTERM,
// mirroring the teacher's main.go shutdown path.
func (s *Supervisor) RunUntilSignal(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			s.log.Info("received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.Run(ctx)
}

func (s *Supervisor) runChild(ctx context.Context, c Child) error {
	delay := c.RestartDelay
	if delay <= 0 {
		delay = time.Second
	}

	for {
		err := c.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, errs.ErrBug) {
			s.log.Error("child %s hit an invariant violation, escalating shutdown: %v", c.Name, err)
			return err
		}

		s.log.Warn("child %s failed, restarting in %s: %v", c.Name, delay, err)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}
}
