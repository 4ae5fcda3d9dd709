// Package device wraps the physical (evdev) and virtual (uinput)
// sides of one keyboard binding.
package device

import (
	"fmt"
	"path/filepath"

	"github.com/bnema/magickey/internal/engine"
	"github.com/bnema/magickey/internal/keycodes"
	"github.com/gvalkov/golang-evdev"
)

// Physical wraps one /dev/input/eventN device, grabbed exclusively for
// the lifetime of its binding.
type Physical struct {
	dev     *evdev.InputDevice
	grabbed bool
}

// FindAll lists every physical device exposing EV_KEY capabilities,
// the default keyboard set from spec.md §6.
func FindAll() ([]*Physical, error) {
	devices, err := evdev.ListInputDevices("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}

	out := make([]*Physical, 0, len(devices))
	for _, d := range devices {
		if hasKeyCapability(d) {
			out = append(out, &Physical{dev: d})
		}
	}
	return out, nil
}

func hasKeyCapability(d *evdev.InputDevice) bool {
	keys, ok := d.CapabilitiesFlat[evdev.EV_KEY]
	return ok && len(keys) > 0
}

// Find resolves a keyboard selector (name, phys, or device path) to
// the first matching device. Spec.md §9 leaves the behavior for a
// selector matching multiple devices unspecified upstream; this binds
// the first match and leaves the rest for other bindings.
func Find(selector string) (*Physical, error) {
	all, err := FindAll()
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if p.Matches(selector) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no keyboard matches %q", selector)
}

// Matches reports whether selector identifies this device by name,
// phys, full path, or /dev/input/eventN basename.
func (p *Physical) Matches(selector string) bool {
	return p.dev.Name == selector ||
		p.dev.Phys == selector ||
		p.dev.Fn == selector ||
		filepath.Base(p.dev.Fn) == selector
}

func (p *Physical) Name() string { return p.dev.Name }
func (p *Physical) Path() string { return p.dev.Fn }
func (p *Physical) Phys() string { return p.dev.Phys }

// KeyCodes returns every EV_KEY capability this device declares, used
// to compute the paired virtual device's capability union.
func (p *Physical) KeyCodes() map[keycodes.Code]struct{} {
	out := make(map[keycodes.Code]struct{})
	for _, c := range p.dev.CapabilitiesFlat[evdev.EV_KEY] {
		out[keycodes.Code(c)] = struct{}{}
	}
	return out
}

// Grab acquires exclusive access so the kernel stops delivering this
// device's events to other consumers. Idempotent.
func (p *Physical) Grab() error {
	if p.grabbed {
		return nil
	}
	if err := p.dev.Grab(); err != nil {
		return fmt.Errorf("grab %s: %w", p.dev.Fn, err)
	}
	p.grabbed = true
	return nil
}

// Release gives up the exclusive grab. Idempotent.
func (p *Physical) Release() error {
	if !p.grabbed {
		return nil
	}
	if err := p.dev.Release(); err != nil {
		return fmt.Errorf("release %s: %w", p.dev.Fn, err)
	}
	p.grabbed = false
	return nil
}

// Grabbed reports whether this device currently holds the exclusive
// grab.
func (p *Physical) Grabbed() bool {
	return p.grabbed
}

// Read blocks for the device's next batch of input events, translated
// into engine.Event values.
func (p *Physical) Read() ([]engine.Event, error) {
	raw, err := p.dev.Read()
	if err != nil {
		return nil, err
	}

	events := make([]engine.Event, 0, len(raw))
	for _, r := range raw {
		events = append(events, toEngineEvent(r))
	}
	return events, nil
}

func toEngineEvent(r evdev.InputEvent) engine.Event {
	if r.Type == evdev.EV_KEY {
		return engine.Event{IsKey: true, Code: keycodes.Code(r.Code), State: engine.KeyState(r.Value)}
	}
	return engine.Event{IsKey: false, Type: r.Type, Code: keycodes.Code(r.Code), Value: r.Value}
}

// Close closes the underlying device handle. Release must be called
// first if the device is grabbed.
func (p *Physical) Close() error {
	return p.dev.File.Close()
}
