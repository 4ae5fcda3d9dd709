// Package binding ties one physical keyboard to its virtual counterpart
// and the engine translating between them, and owns the pump goroutine
// that keeps the translation running.
package binding

import (
	"context"
	"fmt"
	"sync"

	"github.com/bnema/magickey/internal/device"
	"github.com/bnema/magickey/internal/engine"
	"github.com/bnema/magickey/internal/keycodes"
	"github.com/bnema/magickey/internal/logger"
	"github.com/bnema/magickey/internal/rules"
	"github.com/bnema/magickey/internal/window"
)

// Binding owns a physical device's exclusive grab, its paired virtual
// device, and the engine running between them. The physical/virtual
// handles are guarded by mu since Grab/Ungrab are called from the
// supervisor's goroutine while the pump goroutine reads the physical
// handle directly; the engine's own hot path takes no lock, since it is
// only ever touched by the pump goroutine.
type Binding struct {
	mu sync.Mutex

	selector string
	rules    *rules.RuleSet
	winCtx   *window.Context

	physical *device.Physical
	virtual  *device.Virtual
	engine   *engine.Engine

	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// New builds an ungrabbed Binding for the given keyboard selector and
// rule set. Grab must be called before it does anything.
func New(selector string, rs *rules.RuleSet, winCtx *window.Context) *Binding {
	return &Binding{selector: selector, rules: rs, winCtx: winCtx}
}

// Selector returns the keyboard selector this binding was configured
// with.
func (b *Binding) Selector() string {
	return b.selector
}

// Grabbed reports whether this binding currently holds a live grab.
func (b *Binding) Grabbed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.physical != nil
}

// Grab resolves the selector to a physical device, grabs it exclusively,
// creates its paired virtual device, and starts the pump goroutine.
// Calling Grab on an already-grabbed binding is a no-op, tolerating the
// supervisor's hotplug retries (spec.md §4.F).
func (b *Binding) Grab(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.physical != nil {
		return nil
	}

	phys, err := device.Find(b.selector)
	if err != nil {
		return fmt.Errorf("grab %s: %w", b.selector, err)
	}
	if err := phys.Grab(); err != nil {
		return err
	}

	codes := make(map[keycodes.Code]struct{})
	for c := range phys.KeyCodes() {
		codes[c] = struct{}{}
	}
	for c := range b.rules.AllCodes() {
		codes[c] = struct{}{}
	}

	virt, err := device.NewVirtual(phys.Name(), codes)
	if err != nil {
		_ = phys.Release()
		_ = phys.Close()
		return fmt.Errorf("create virtual device for %s: %w", b.selector, err)
	}

	eng := engine.New(b.rules, b.winCtx, virt)

	pumpCtx, cancel := context.WithCancel(ctx)
	b.physical = phys
	b.virtual = virt
	b.engine = eng
	b.cancel = cancel
	b.done = make(chan struct{})
	b.lastErr = nil

	go b.pump(pumpCtx, phys, eng)

	logger.Infof("bound keyboard %q (%s)", phys.Name(), phys.Path())
	return nil
}

// Ungrab releases the binding's physical device and tears down its
// virtual counterpart, but only while the engine is at rest
// (PRE_MATCH_INIT) — per spec.md §4.E, ungrabbing mid-chord would leave
// a partially-synthesized sequence on the virtual device. Returns false
// when the engine is busy, signaling the supervisor to retry.
func (b *Binding) Ungrab() bool {
	b.mu.Lock()
	if b.physical == nil {
		b.mu.Unlock()
		return true
	}
	if !b.engine.Idle() {
		b.mu.Unlock()
		return false
	}

	phys := b.physical
	virt := b.virtual
	cancel := b.cancel
	done := b.done
	b.mu.Unlock()

	// Cancel alone doesn't unblock a pump parked in Read(): it's only
	// checked at the top of the loop, which won't be reached until Read
	// returns. Release/close the physical handle first so Read returns
	// immediately, then wait for the pump to actually exit -- all
	// without holding mu, since the pump's own error path takes it too.
	cancel()
	if err := phys.Release(); err != nil {
		logger.Warnf("release %s: %v", b.selector, err)
	}
	if err := phys.Close(); err != nil {
		logger.Warnf("close %s: %v", b.selector, err)
	}

	<-done

	if err := virt.Close(); err != nil {
		logger.Warnf("destroy virtual device for %s: %v", b.selector, err)
	}

	b.mu.Lock()
	b.physical = nil
	b.virtual = nil
	b.engine = nil
	b.cancel = nil
	b.mu.Unlock()

	logger.Infof("ungrabbed keyboard %q", b.selector)
	return true
}

// pump is the single goroutine reading one physical device's events and
// feeding the engine. It exits as soon as Read fails, whether because
// the context was cancelled (the fd was closed underneath it) or because
// the device was physically unplugged; either way it records the error
// for the supervisor's hotplug reaction to discover.
func (b *Binding) pump(ctx context.Context, phys *device.Physical, eng *engine.Engine) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events, err := phys.Read()
		if err != nil {
			b.mu.Lock()
			b.lastErr = err
			b.mu.Unlock()
			logger.Debugf("%s disconnected: %v", b.selector, err)
			return
		}

		for _, ev := range events {
			if err := eng.HandleEvent(ev); err != nil {
				logger.Warnf("%s: handle event: %v", b.selector, err)
			}
		}
	}
}

// Err reports the pump's last read error, if the binding has since
// disconnected. Used by the supervisor's hotplug reaction to decide
// whether a binding needs a fresh Grab.
func (b *Binding) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}
