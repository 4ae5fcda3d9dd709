package engine

import (
	"regexp"
	"testing"

	"github.com/bnema/magickey/internal/keycodes"
	"github.com/bnema/magickey/internal/rules"
	"github.com/bnema/magickey/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedKeyEvent struct {
	code  keycodes.Code
	state KeyState
}

type fakeEmitter struct {
	keys   []recordedKeyEvent
	raw    []recordedKeyEvent
	nsyncs int
}

func (f *fakeEmitter) WriteKey(code keycodes.Code, state KeyState) error {
	f.keys = append(f.keys, recordedKeyEvent{code: code, state: state})
	return nil
}

func (f *fakeEmitter) WriteRaw(eventType uint16, code uint16, value int32) error {
	f.raw = append(f.raw, recordedKeyEvent{code: keycodes.Code(code), state: KeyState(value)})
	return nil
}

func (f *fakeEmitter) Sync() error {
	f.nsyncs++
	return nil
}

func mustCode(t *testing.T, name string) keycodes.Code {
	t.Helper()
	c, ok := keycodes.NameToCode(name)
	require.True(t, ok, "unknown key name %q", name)
	return c
}

// scenarioRuleSet builds the two rules used throughout spec.md §8's
// concrete scenarios: ctrl+i -> ctrl+a, alt+j -> down.
func scenarioRuleSet(t *testing.T) *rules.RuleSet {
	t.Helper()

	srcMods1, srcKey1, err := keycodes.ParseSourceCombo("ctrl+i")
	require.NoError(t, err)
	dstMods1, dstKey1, err := keycodes.ParseDestCombo("ctrl+a")
	require.NoError(t, err)
	r1, err := rules.NewKeyMapping(srcMods1, srcKey1, dstMods1, dstKey1, nil)
	require.NoError(t, err)

	srcMods2, srcKey2, err := keycodes.ParseSourceCombo("alt+j")
	require.NoError(t, err)
	dstMods2, dstKey2, err := keycodes.ParseDestCombo("down")
	require.NoError(t, err)
	r2, err := rules.NewKeyMapping(srcMods2, srcKey2, dstMods2, dstKey2, nil)
	require.NoError(t, err)

	return rules.NewRuleSet([]*rules.KeyMapping{r1, r2})
}

func newTestEngine(t *testing.T, rs *rules.RuleSet) (*Engine, *fakeEmitter) {
	t.Helper()
	emitter := &fakeEmitter{}
	eng := New(rs, window.NewContext(), emitter)
	return eng, emitter
}

func press(t *testing.T, eng *Engine, name string, state KeyState) {
	t.Helper()
	require.NoError(t, eng.HandleEvent(Event{IsKey: true, Code: mustCode(t, name), State: state}))
}

func kv(t *testing.T, name string, state KeyState) recordedKeyEvent {
	t.Helper()
	return recordedKeyEvent{code: mustCode(t, name), state: state}
}

// Scenario 1: ctrl+i -> ctrl+a, full press/release.
func TestScenario1MatchedChordRewritesKey(t *testing.T) {
	eng, emitter := newTestEngine(t, scenarioRuleSet(t))

	press(t, eng, "ctrl", KeyDown)
	press(t, eng, "i", KeyDown)
	press(t, eng, "i", KeyUp)
	press(t, eng, "ctrl", KeyUp)

	want := []recordedKeyEvent{
		kv(t, "ctrl", KeyDown),
		kv(t, "a", KeyDown),
		kv(t, "a", KeyUp),
		kv(t, "ctrl", KeyUp),
	}
	assert.Equal(t, want, emitter.keys)
	assert.Equal(t, stateInit, eng.State())
}

// Scenario 2: no rule for ctrl+k, exact passthrough.
func TestScenario2UnmatchedChordPassesThrough(t *testing.T) {
	eng, emitter := newTestEngine(t, scenarioRuleSet(t))

	press(t, eng, "ctrl", KeyDown)
	press(t, eng, "k", KeyDown)
	press(t, eng, "k", KeyUp)
	press(t, eng, "ctrl", KeyUp)

	want := []recordedKeyEvent{
		kv(t, "ctrl", KeyDown),
		kv(t, "k", KeyDown),
		kv(t, "k", KeyUp),
		kv(t, "ctrl", KeyUp),
	}
	assert.Equal(t, want, emitter.keys)
	assert.Equal(t, stateInit, eng.State())
}

// Scenario 3: alt+shift+j has no rule, exact passthrough of both
// modifiers and the key.
func TestScenario3UnmatchedMultiModifierChordPassesThrough(t *testing.T) {
	eng, emitter := newTestEngine(t, scenarioRuleSet(t))

	press(t, eng, "alt", KeyDown)
	press(t, eng, "shift", KeyDown)
	press(t, eng, "j", KeyDown)
	press(t, eng, "j", KeyUp)
	press(t, eng, "shift", KeyUp)
	press(t, eng, "alt", KeyUp)

	want := []recordedKeyEvent{
		kv(t, "alt", KeyDown),
		kv(t, "shift", KeyDown),
		kv(t, "j", KeyDown),
		kv(t, "j", KeyUp),
		kv(t, "shift", KeyUp),
		kv(t, "alt", KeyUp),
	}
	assert.Equal(t, want, emitter.keys)
	assert.Equal(t, stateInit, eng.State())
}

// Scenario 4: hold alt, tap j twice. alt is not released between taps
// even though the dst chord "down" carries no modifiers.
func TestScenario4HeldModifierSurvivesRepeatedTaps(t *testing.T) {
	eng, emitter := newTestEngine(t, scenarioRuleSet(t))

	press(t, eng, "alt", KeyDown)
	press(t, eng, "j", KeyDown)
	press(t, eng, "j", KeyUp)
	press(t, eng, "j", KeyDown)
	press(t, eng, "j", KeyUp)
	press(t, eng, "alt", KeyUp)

	want := []recordedKeyEvent{
		kv(t, "alt", KeyDown),
		kv(t, "down", KeyDown),
		kv(t, "down", KeyUp),
		kv(t, "down", KeyDown),
		kv(t, "down", KeyUp),
		kv(t, "alt", KeyUp),
	}
	assert.Equal(t, want, emitter.keys)
	assert.Equal(t, stateInit, eng.State())
}

// Scenario 5: a plain key with no modifiers never enters chord
// resolution and is forwarded as a normal press/release pair.
func TestScenario5PlainKeyPassesThrough(t *testing.T) {
	eng, emitter := newTestEngine(t, scenarioRuleSet(t))

	press(t, eng, "a", KeyDown)
	press(t, eng, "a", KeyUp)

	want := []recordedKeyEvent{
		kv(t, "a", KeyDown),
		kv(t, "a", KeyUp),
	}
	assert.Equal(t, want, emitter.keys)
	assert.Equal(t, stateInit, eng.State())
}

// Scenario 6: window predicate suppresses the rule for "firefox",
// falling back to plain passthrough of the physical chord.
func TestScenario6PredicateSuppressesRule(t *testing.T) {
	classPattern := regexp.MustCompile("firefox")
	pred := &rules.MatchPredicate{Kind: rules.PredicateNotAll, Class: classPattern}

	srcMods, srcKey, err := keycodes.ParseSourceCombo("ctrl+i")
	require.NoError(t, err)
	dstMods, dstKey, err := keycodes.ParseDestCombo("ctrl+a")
	require.NoError(t, err)
	rule, err := rules.NewKeyMapping(srcMods, srcKey, dstMods, dstKey, pred)
	require.NoError(t, err)
	rs := rules.NewRuleSet([]*rules.KeyMapping{rule})

	emitter := &fakeEmitter{}
	winCtx := window.NewContext()
	winCtx.Set(window.Window{Class: "firefox", Title: "Mozilla Firefox"})
	eng := New(rs, winCtx, emitter)

	press(t, eng, "ctrl", KeyDown)
	press(t, eng, "i", KeyDown)
	press(t, eng, "i", KeyUp)
	press(t, eng, "ctrl", KeyUp)

	want := []recordedKeyEvent{
		kv(t, "ctrl", KeyDown),
		kv(t, "i", KeyDown),
		kv(t, "i", KeyUp),
		kv(t, "ctrl", KeyUp),
	}
	assert.Equal(t, want, emitter.keys)
}

// Invariant: a rule only fires when active_modifiers matches exactly;
// holding an extra modifier beyond src_modifiers makes it unmatched.
func TestExtraModifierPreventsMatch(t *testing.T) {
	eng, emitter := newTestEngine(t, scenarioRuleSet(t))

	press(t, eng, "ctrl", KeyDown)
	press(t, eng, "shift", KeyDown)
	press(t, eng, "i", KeyDown)
	press(t, eng, "i", KeyUp)
	press(t, eng, "shift", KeyUp)
	press(t, eng, "ctrl", KeyUp)

	want := []recordedKeyEvent{
		kv(t, "ctrl", KeyDown),
		kv(t, "shift", KeyDown),
		kv(t, "i", KeyDown),
		kv(t, "i", KeyUp),
		kv(t, "shift", KeyUp),
		kv(t, "ctrl", KeyUp),
	}
	assert.Equal(t, want, emitter.keys)
}

// Invariant: autorepeat (HOLD) of the triggering key while MATCHED
// forwards HOLDs of the rewritten key, not of the physical key.
func TestAutorepeatForwardsDestinationKey(t *testing.T) {
	eng, emitter := newTestEngine(t, scenarioRuleSet(t))

	press(t, eng, "ctrl", KeyDown)
	press(t, eng, "i", KeyDown)
	press(t, eng, "i", KeyHold)
	press(t, eng, "i", KeyHold)
	press(t, eng, "i", KeyUp)
	press(t, eng, "ctrl", KeyUp)

	want := []recordedKeyEvent{
		kv(t, "ctrl", KeyDown),
		kv(t, "a", KeyDown),
		kv(t, "a", KeyUp),
		kv(t, "a", KeyHold),
		kv(t, "a", KeyHold),
		kv(t, "ctrl", KeyUp),
	}
	assert.Equal(t, want, emitter.keys)
}

// Non-key events are passed through unchanged with a trailing sync,
// regardless of engine state.
func TestNonKeyEventPassesThroughRaw(t *testing.T) {
	eng, emitter := newTestEngine(t, scenarioRuleSet(t))

	require.NoError(t, eng.HandleEvent(Event{IsKey: false, Type: 0x04, Value: 42}))

	require.Len(t, emitter.raw, 1)
	assert.Equal(t, int32(42), int32(emitter.raw[0].state))
	assert.Equal(t, 1, emitter.nsyncs)
}

// Unexpected UP events in PRE_MATCH_INIT are dropped without being
// forwarded and without changing state.
func TestUnexpectedUpInInitIsDropped(t *testing.T) {
	eng, emitter := newTestEngine(t, scenarioRuleSet(t))

	press(t, eng, "i", KeyUp)

	assert.Empty(t, emitter.keys)
	assert.Equal(t, stateInit, eng.State())
}

// Tie-breaking: two rules with an identical src chord but different
// predicates -- the first whose predicate holds wins.
func TestTieBreakFirstMatchingPredicateWins(t *testing.T) {
	firefox := regexp.MustCompile("firefox")

	srcMods, srcKey, err := keycodes.ParseSourceCombo("ctrl+i")
	require.NoError(t, err)

	dstA, dstKeyA, err := keycodes.ParseDestCombo("ctrl+a")
	require.NoError(t, err)
	ruleFirefox, err := rules.NewKeyMapping(srcMods, srcKey, dstA, dstKeyA,
		&rules.MatchPredicate{Kind: rules.PredicateAll, Class: firefox})
	require.NoError(t, err)

	dstB, dstKeyB, err := keycodes.ParseDestCombo("ctrl+b")
	require.NoError(t, err)
	ruleDefault, err := rules.NewKeyMapping(srcMods, srcKey, dstB, dstKeyB, nil)
	require.NoError(t, err)

	rs := rules.NewRuleSet([]*rules.KeyMapping{ruleFirefox, ruleDefault})

	emitter := &fakeEmitter{}
	winCtx := window.NewContext()
	winCtx.Set(window.Window{Class: "firefox"})
	eng := New(rs, winCtx, emitter)

	press(t, eng, "ctrl", KeyDown)
	press(t, eng, "i", KeyDown)
	press(t, eng, "i", KeyUp)
	press(t, eng, "ctrl", KeyUp)

	want := []recordedKeyEvent{
		kv(t, "ctrl", KeyDown),
		kv(t, "a", KeyDown),
		kv(t, "a", KeyUp),
		kv(t, "ctrl", KeyUp),
	}
	assert.Equal(t, want, emitter.keys)
}
