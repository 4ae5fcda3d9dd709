// Package supervisor owns the set of keyboard bindings for the process
// lifetime: it grabs them at startup, reacts to hotplug and window-focus
// events, and drains every binding on shutdown.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/magickey/internal/binding"
	"github.com/bnema/magickey/internal/hotplug"
	"github.com/bnema/magickey/internal/logger"
	"github.com/bnema/magickey/internal/window"
)

// State is the supervisor's own lifecycle, distinct from any one
// binding's engine state.
type State int

const (
	Running State = iota
	Draining
	Stopped
)

const (
	ungrabRetryAttempts = 4
	ungrabRetryDelay    = 100 * time.Millisecond
)

// Supervisor owns every keyboard binding for the process and the
// background watchers (hotplug, window focus) that keep them current.
type Supervisor struct {
	mu       sync.Mutex
	state    State
	bindings []*binding.Binding
	winCtx   *window.Context
	uid      int
}

// New builds a Supervisor over the given bindings. uid selects which
// user's sway IPC socket to connect to (see window.SocketPath).
func New(bindings []*binding.Binding, winCtx *window.Context, uid int) *Supervisor {
	return &Supervisor{bindings: bindings, winCtx: winCtx, uid: uid}
}

// State reports the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run grabs every binding, then blocks reacting to hotplug changes,
// window-focus updates, and termination signals until the context is
// cancelled or a terminating signal arrives. It always returns after a
// best-effort drain of every binding.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.setState(Running)

	for _, b := range s.bindings {
		if err := b.Grab(ctx); err != nil {
			logger.Errorf("initial grab failed: %v", err)
		}
	}

	hotplugCh := hotplug.New().Start(ctx)
	s.startWindowTracking(ctx)

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil

		case change, ok := <-hotplugCh:
			if !ok {
				hotplugCh = nil
				continue
			}
			logger.Debugf("hotplug change: %+v", change)
			s.reconcile(ctx)
		}
	}
}

// startWindowTracking connects to the sway IPC socket, seeds the window
// context with the currently focused window, and subscribes to future
// focus changes. A missing or unreachable socket is not fatal -- window
// predicates simply stay vacuously satisfied (spec.md §4.B).
func (s *Supervisor) startWindowTracking(ctx context.Context) {
	path, err := window.SocketPath(s.uid)
	if err != nil {
		logger.Warnf("sway IPC socket unavailable: %v", err)
		return
	}

	seed, err := window.Dial(path)
	if err != nil {
		logger.Warnf("dial sway IPC socket: %v", err)
		return
	}
	if w, err := seed.GetFocusedWindow(); err == nil {
		s.winCtx.Set(w)
	}
	seed.Close()

	sub, err := window.Dial(path)
	if err != nil {
		logger.Warnf("dial sway IPC socket for subscription: %v", err)
		return
	}
	if err := window.Subscribe(ctx, sub, s.winCtx); err != nil {
		logger.Warnf("subscribe to sway window events: %v", err)
		sub.Close()
	}
}

// reconcile re-grabs every binding that isn't currently holding its
// device, tolerating selectors that match nothing yet (spec.md §4.F).
// A binding whose pump ended on a read error (the device went away) is
// ungrabbed first to drop its stale handles; that Ungrab succeeds only
// while the binding's engine is idle.
func (s *Supervisor) reconcile(ctx context.Context) {
	for _, b := range s.bindings {
		if b.Grabbed() {
			if b.Err() == nil || !b.Ungrab() {
				continue
			}
		}
		if err := b.Grab(ctx); err != nil {
			logger.Debugf("grab %s still unavailable: %v", b.Selector(), err)
		}
	}
}

// drain transitions to Draining and attempts to ungrab every binding,
// retrying bindings whose engine is mid-chord up to ungrabRetryAttempts
// times before giving up on them (spec.md §4.F / §9's replacement for
// the original's recursive shutdown callback).
func (s *Supervisor) drain() {
	s.setState(Draining)

	pending := make([]*binding.Binding, len(s.bindings))
	copy(pending, s.bindings)

	for attempt := 0; attempt < ungrabRetryAttempts && len(pending) > 0; attempt++ {
		if attempt > 0 {
			time.Sleep(ungrabRetryDelay)
		}

		var stillPending []*binding.Binding
		for _, b := range pending {
			if !b.Ungrab() {
				stillPending = append(stillPending, b)
			}
		}
		pending = stillPending
	}

	for _, b := range pending {
		logger.Warnf("%s did not ungrab cleanly after %d attempts", b.Selector(), ungrabRetryAttempts)
	}

	s.setState(Stopped)
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
