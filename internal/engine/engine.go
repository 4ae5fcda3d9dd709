// Package engine implements the per-keyboard chord-translation state
// machine: it consumes physical key events and produces the
// corresponding stream of virtual-device events.
package engine

import (
	"github.com/bnema/magickey/internal/keycodes"
	"github.com/bnema/magickey/internal/logger"
	"github.com/bnema/magickey/internal/rules"
	"github.com/bnema/magickey/internal/window"
)

// KeyState mirrors the evdev input_event.value field for EV_KEY events:
// 0 is release, 1 is press, 2 is autorepeat.
type KeyState int32

const (
	KeyUp KeyState = iota
	KeyDown
	KeyHold
)

// Event is one unit of work fed to the engine. Non-key events (IsKey
// false) are passed through unchanged; Code/State are only meaningful
// when IsKey is true.
type Event struct {
	IsKey bool
	Code  keycodes.Code
	State KeyState
	Type  uint16
	Value int32
}

// Emitter is the engine's output sink, satisfied by a virtual input
// device in production and by a recording fake in tests.
type Emitter interface {
	WriteKey(code keycodes.Code, state KeyState) error
	WriteRaw(eventType uint16, code uint16, value int32) error
	Sync() error
}

// EngineState is the closed set of states from spec.md §4.D.
type EngineState int

const (
	stateInit EngineState = iota
	statePressedKey
	statePressedModifier
	stateMatched
	stateUnmatched
)

// ActiveKey tracks one physically-held key outside of a chord (used for
// plain pass-through keys and for held modifiers).
type ActiveKey struct {
	State      KeyState
	PressCount int
	Emitted    bool
}

// resolvedChord records the outcome of chord resolution for one
// physically-held non-modifier key, kept around so its autorepeat and
// eventual release can be handled without re-matching rules.
type resolvedChord struct {
	matched bool
	dstKey  keycodes.Code
}

// Engine is the per-keyboard translation state machine. An Engine is
// owned by exactly one binding and fed by exactly one pump goroutine;
// it performs no locking of its own.
type Engine struct {
	state EngineState

	activeModifiers map[keycodes.Code]*ActiveKey
	activeKeys      map[keycodes.Code]*ActiveKey
	emittedMods     map[keycodes.Code]struct{}
	pendingChords   map[keycodes.Code]*resolvedChord

	rules   *rules.RuleSet
	winCtx  *window.Context
	emitter Emitter
}

// New builds an Engine in the PRE_MATCH_INIT state.
func New(rs *rules.RuleSet, winCtx *window.Context, emitter Emitter) *Engine {
	return &Engine{
		state:           stateInit,
		activeModifiers: make(map[keycodes.Code]*ActiveKey),
		activeKeys:      make(map[keycodes.Code]*ActiveKey),
		emittedMods:     make(map[keycodes.Code]struct{}),
		pendingChords:   make(map[keycodes.Code]*resolvedChord),
		rules:           rs,
		winCtx:          winCtx,
		emitter:         emitter,
	}
}

// State reports the engine's current state, mostly for tests.
func (e *Engine) State() EngineState {
	return e.state
}

// Idle reports whether the engine is at rest (PRE_MATCH_INIT), the only
// state in which a binding may be safely ungrabbed (spec.md §4.E).
func (e *Engine) Idle() bool {
	return e.state == stateInit
}

var stateHandlers = [5]func(*Engine, Event) error{
	stateInit:            (*Engine).handleInit,
	statePressedKey:      (*Engine).handlePressedKey,
	statePressedModifier: (*Engine).handlePressedModifier,
	stateMatched:         (*Engine).handleMatchedOrUnmatched,
	stateUnmatched:       (*Engine).handleMatchedOrUnmatched,
}

// HandleEvent is the engine's single entry point.
func (e *Engine) HandleEvent(ev Event) error {
	if !ev.IsKey {
		return e.passThroughRaw(ev)
	}
	return stateHandlers[e.state](e, ev)
}

func (e *Engine) emit(code keycodes.Code, state KeyState) error {
	return e.emitter.WriteKey(code, state)
}

func (e *Engine) syn() error {
	return e.emitter.Sync()
}

func (e *Engine) passThroughRaw(ev Event) error {
	if err := e.emitter.WriteRaw(ev.Type, uint16(ev.Code), ev.Value); err != nil {
		return err
	}
	return e.syn()
}

func isDownOrHold(s KeyState) bool {
	return s == KeyDown || s == KeyHold
}

// handleInit implements PRE_MATCH_INIT.
func (e *Engine) handleInit(ev Event) error {
	if keycodes.IsModifier(ev.Code) {
		if !isDownOrHold(ev.State) {
			logger.Warnf("unexpected modifier UP for %d in init state", ev.Code)
			return nil
		}
		e.activeModifiers[ev.Code] = &ActiveKey{State: ev.State, PressCount: 1, Emitted: true}
		e.emittedMods[ev.Code] = struct{}{}
		if err := e.emit(ev.Code, ev.State); err != nil {
			return err
		}
		e.state = statePressedModifier
		return e.syn()
	}

	if !isDownOrHold(ev.State) {
		logger.Warnf("unexpected key UP for %d in init state", ev.Code)
		return nil
	}
	e.activeKeys[ev.Code] = &ActiveKey{State: ev.State, PressCount: 1, Emitted: true}
	if err := e.emit(ev.Code, ev.State); err != nil {
		return err
	}
	e.state = statePressedKey
	return e.syn()
}

// handlePressedKey implements PRE_MATCH_PRESSED_KEY.
func (e *Engine) handlePressedKey(ev Event) error {
	if keycodes.IsModifier(ev.Code) {
		logger.Warnf("unexpected modifier event for %d while plain keys are held", ev.Code)
		return nil
	}

	if isDownOrHold(ev.State) {
		if ak, ok := e.activeKeys[ev.Code]; ok {
			ak.PressCount++
			ak.State = ev.State
		} else {
			e.activeKeys[ev.Code] = &ActiveKey{State: ev.State, PressCount: 1, Emitted: true}
		}
		if err := e.emit(ev.Code, ev.State); err != nil {
			return err
		}
		return e.syn()
	}

	delete(e.activeKeys, ev.Code)
	if err := e.emit(ev.Code, KeyUp); err != nil {
		return err
	}
	if err := e.syn(); err != nil {
		return err
	}
	if len(e.activeKeys) == 0 {
		e.state = stateInit
	}
	return nil
}

// handlePressedModifier implements PRE_MATCH_PRESSED_MODIFIER.
func (e *Engine) handlePressedModifier(ev Event) error {
	if keycodes.IsModifier(ev.Code) {
		if isDownOrHold(ev.State) {
			if ak, ok := e.activeModifiers[ev.Code]; ok {
				ak.PressCount++
				ak.State = ev.State
			} else {
				e.activeModifiers[ev.Code] = &ActiveKey{State: ev.State, PressCount: 1, Emitted: true}
			}
			e.emittedMods[ev.Code] = struct{}{}
			if err := e.emit(ev.Code, ev.State); err != nil {
				return err
			}
			return e.syn()
		}

		delete(e.activeModifiers, ev.Code)
		delete(e.emittedMods, ev.Code)
		if err := e.emit(ev.Code, KeyUp); err != nil {
			return err
		}
		if err := e.syn(); err != nil {
			return err
		}
		if len(e.activeModifiers) == 0 {
			e.state = stateInit
		}
		return nil
	}

	if isDownOrHold(ev.State) {
		return e.resolveChord(ev.Code, ev.State)
	}
	logger.Warnf("unexpected key UP for %d while building a chord", ev.Code)
	return nil
}

// resolveChord performs chord resolution (spec.md §4.D) for a
// newly-pressed or overlapping non-modifier key.
//
// Reconciliation only adds modifiers the destination chord requires
// that aren't already held on the virtual device; it never releases a
// currently-held modifier just because the destination omits it. A
// held modifier is released only by its own physical release, or, for
// a purely synthetic addition with no physical backing, once every
// in-flight chord has terminated. This keeps a modifier held across
// repeated taps of the same source key (e.g. hold alt, tap j twice)
// instead of flickering it up and down between taps.
func (e *Engine) resolveChord(key keycodes.Code, triggerState KeyState) error {
	mods := make(map[keycodes.Code]struct{}, len(e.activeModifiers))
	for m := range e.activeModifiers {
		mods[m] = struct{}{}
	}

	win := e.winCtx.Snapshot()
	rule, matched := e.rules.Match(mods, key, win)

	var dstMods map[keycodes.Code]struct{}
	var dstKey keycodes.Code
	if matched {
		dstMods = rule.DstModifiers
		dstKey = rule.DstKey
	} else {
		dstMods = mods
		dstKey = key
	}

	for m := range dstMods {
		if _, already := e.emittedMods[m]; already {
			continue
		}
		if err := e.emit(m, KeyDown); err != nil {
			return err
		}
		e.emittedMods[m] = struct{}{}
	}

	if triggerState == KeyDown {
		if err := e.emit(dstKey, KeyDown); err != nil {
			return err
		}
		if err := e.emit(dstKey, KeyUp); err != nil {
			return err
		}
	} else {
		if err := e.emit(dstKey, KeyHold); err != nil {
			return err
		}
	}
	if err := e.syn(); err != nil {
		return err
	}

	e.pendingChords[key] = &resolvedChord{matched: matched, dstKey: dstKey}
	if matched {
		e.state = stateMatched
	} else {
		e.state = stateUnmatched
	}
	return nil
}

// handleMatchedOrUnmatched implements both MATCHED and UNMATCHED, which
// differ only in which rule (if any) produced the chord already in
// flight; their event handling is otherwise identical.
func (e *Engine) handleMatchedOrUnmatched(ev Event) error {
	if keycodes.IsModifier(ev.Code) {
		if isDownOrHold(ev.State) {
			if ak, ok := e.activeModifiers[ev.Code]; ok {
				ak.PressCount++
				ak.State = ev.State
			} else {
				e.activeModifiers[ev.Code] = &ActiveKey{State: ev.State, PressCount: 1}
			}
			return nil
		}

		delete(e.activeModifiers, ev.Code)
		if _, emitted := e.emittedMods[ev.Code]; emitted {
			delete(e.emittedMods, ev.Code)
			if err := e.emit(ev.Code, KeyUp); err != nil {
				return err
			}
			return e.syn()
		}
		return nil
	}

	if ev.State == KeyUp {
		return e.terminateChord(ev.Code)
	}

	if _, pending := e.pendingChords[ev.Code]; pending {
		return e.forwardAutorepeat(ev.Code)
	}
	return e.resolveChord(ev.Code, ev.State)
}

func (e *Engine) forwardAutorepeat(key keycodes.Code) error {
	chord := e.pendingChords[key]
	if err := e.emit(chord.dstKey, KeyHold); err != nil {
		return err
	}
	return e.syn()
}

// terminateChord handles the physical release of a key that is mid
// chord. The synthesized dst_key was already tapped closed at
// resolution time, so termination only needs to retire bookkeeping and
// release any synthetic-only modifiers once no chord is left in
// flight.
func (e *Engine) terminateChord(key keycodes.Code) error {
	if _, ok := e.pendingChords[key]; !ok {
		logger.Warnf("unexpected key UP for %d with no matching chord", key)
		return nil
	}
	delete(e.pendingChords, key)

	if len(e.pendingChords) > 0 {
		return nil
	}

	emittedAny := false
	for m := range e.emittedMods {
		if _, physical := e.activeModifiers[m]; physical {
			continue
		}
		delete(e.emittedMods, m)
		if err := e.emit(m, KeyUp); err != nil {
			return err
		}
		emittedAny = true
	}
	if emittedAny {
		if err := e.syn(); err != nil {
			return err
		}
	}

	if len(e.activeModifiers) == 0 {
		e.state = stateInit
	} else {
		e.state = statePressedModifier
	}
	return nil
}
