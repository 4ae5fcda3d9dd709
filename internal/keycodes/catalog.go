// Package keycodes is the bidirectional mapping between symbolic key
// names and the numeric codes the kernel's evdev layer uses, plus the
// fixed table of modifier keys chords are built from.
//
// Two pure functions cover the string/code duality deliberately: one
// name->code, one code->name. Nothing here accepts "either a name or a
// code" through a single entry point.
package keycodes

import (
	"fmt"
	"strings"

	"github.com/gvalkov/golang-evdev"
)

// Code identifies a key the way the kernel does: evdev's input_event.code.
type Code = uint16

// aliases maps human-written modifier spellings to their canonical code.
// left/right-qualified names and their bare alias (which always resolves
// to the left-hand variant, matching the original magickey convention)
// both appear here.
var aliases = map[string]Code{
	"ctrl":        evdev.KEY_LEFTCTRL,
	"left_ctrl":   evdev.KEY_LEFTCTRL,
	"right_ctrl":  evdev.KEY_RIGHTCTRL,
	"shift":       evdev.KEY_LEFTSHIFT,
	"left_shift":  evdev.KEY_LEFTSHIFT,
	"right_shift": evdev.KEY_RIGHTSHIFT,
	"alt":         evdev.KEY_LEFTALT,
	"left_alt":    evdev.KEY_LEFTALT,
	"right_alt":   evdev.KEY_RIGHTALT,
	"meta":        evdev.KEY_LEFTMETA,
	"left_meta":   evdev.KEY_LEFTMETA,
	"right_meta":  evdev.KEY_RIGHTMETA,
	"caps_lock":   evdev.KEY_CAPSLOCK,
}

// modifiers is the canonical set of codes is_modifier recognizes,
// independent of which alias was used to name them.
var modifiers = map[Code]struct{}{
	evdev.KEY_LEFTCTRL:   {},
	evdev.KEY_RIGHTCTRL:  {},
	evdev.KEY_LEFTSHIFT:  {},
	evdev.KEY_RIGHTSHIFT: {},
	evdev.KEY_LEFTALT:    {},
	evdev.KEY_RIGHTALT:   {},
	evdev.KEY_LEFTMETA:   {},
	evdev.KEY_RIGHTMETA:  {},
	evdev.KEY_CAPSLOCK:   {},
}

// byName covers the rest of the KEY_* table, keyed by the name without its
// KEY_ prefix, lowercased. It is not exhaustive of every code Linux
// defines, but covers the keys a remap config can plausibly reference:
// letters, digits, function keys, navigation, punctuation, numpad, and
// common media/system keys.
var byName = map[string]Code{
	"esc": evdev.KEY_ESC,

	"1": evdev.KEY_1, "2": evdev.KEY_2, "3": evdev.KEY_3, "4": evdev.KEY_4,
	"5": evdev.KEY_5, "6": evdev.KEY_6, "7": evdev.KEY_7, "8": evdev.KEY_8,
	"9": evdev.KEY_9, "0": evdev.KEY_0,

	"minus":  evdev.KEY_MINUS,
	"equal":  evdev.KEY_EQUAL,
	"backspace": evdev.KEY_BACKSPACE,
	"tab":    evdev.KEY_TAB,

	"q": evdev.KEY_Q, "w": evdev.KEY_W, "e": evdev.KEY_E, "r": evdev.KEY_R,
	"t": evdev.KEY_T, "y": evdev.KEY_Y, "u": evdev.KEY_U, "i": evdev.KEY_I,
	"o": evdev.KEY_O, "p": evdev.KEY_P,

	"leftbrace":  evdev.KEY_LEFTBRACE,
	"rightbrace": evdev.KEY_RIGHTBRACE,
	"enter":      evdev.KEY_ENTER,

	"a": evdev.KEY_A, "s": evdev.KEY_S, "d": evdev.KEY_D, "f": evdev.KEY_F,
	"g": evdev.KEY_G, "h": evdev.KEY_H, "j": evdev.KEY_J, "k": evdev.KEY_K,
	"l": evdev.KEY_L,

	"semicolon":  evdev.KEY_SEMICOLON,
	"apostrophe": evdev.KEY_APOSTROPHE,
	"grave":      evdev.KEY_GRAVE,
	"backslash":  evdev.KEY_BACKSLASH,

	"z": evdev.KEY_Z, "x": evdev.KEY_X, "c": evdev.KEY_C, "v": evdev.KEY_V,
	"b": evdev.KEY_B, "n": evdev.KEY_N, "m": evdev.KEY_M,

	"comma":  evdev.KEY_COMMA,
	"dot":    evdev.KEY_DOT,
	"slash":  evdev.KEY_SLASH,
	"space":  evdev.KEY_SPACE,

	"capslock": evdev.KEY_CAPSLOCK,

	"f1": evdev.KEY_F1, "f2": evdev.KEY_F2, "f3": evdev.KEY_F3, "f4": evdev.KEY_F4,
	"f5": evdev.KEY_F5, "f6": evdev.KEY_F6, "f7": evdev.KEY_F7, "f8": evdev.KEY_F8,
	"f9": evdev.KEY_F9, "f10": evdev.KEY_F10, "f11": evdev.KEY_F11, "f12": evdev.KEY_F12,

	"numlock":      evdev.KEY_NUMLOCK,
	"scrolllock":   evdev.KEY_SCROLLLOCK,
	"kp7": evdev.KEY_KP7, "kp8": evdev.KEY_KP8, "kp9": evdev.KEY_KP9,
	"kpminus": evdev.KEY_KPMINUS,
	"kp4": evdev.KEY_KP4, "kp5": evdev.KEY_KP5, "kp6": evdev.KEY_KP6,
	"kpplus": evdev.KEY_KPPLUS,
	"kp1": evdev.KEY_KP1, "kp2": evdev.KEY_KP2, "kp3": evdev.KEY_KP3,
	"kp0":    evdev.KEY_KP0,
	"kpdot":  evdev.KEY_KPDOT,

	"home":     evdev.KEY_HOME,
	"up":       evdev.KEY_UP,
	"pageup":   evdev.KEY_PAGEUP,
	"left":     evdev.KEY_LEFT,
	"right":    evdev.KEY_RIGHT,
	"end":      evdev.KEY_END,
	"down":     evdev.KEY_DOWN,
	"pagedown": evdev.KEY_PAGEDOWN,
	"insert":   evdev.KEY_INSERT,
	"delete":   evdev.KEY_DELETE,

	"mute":       evdev.KEY_MUTE,
	"volumedown": evdev.KEY_VOLUMEDOWN,
	"volumeup":   evdev.KEY_VOLUMEUP,
	"power":      evdev.KEY_POWER,

	"leftctrl":   evdev.KEY_LEFTCTRL,
	"rightctrl":  evdev.KEY_RIGHTCTRL,
	"leftshift":  evdev.KEY_LEFTSHIFT,
	"rightshift": evdev.KEY_RIGHTSHIFT,
	"leftalt":    evdev.KEY_LEFTALT,
	"rightalt":   evdev.KEY_RIGHTALT,
	"leftmeta":   evdev.KEY_LEFTMETA,
	"rightmeta":  evdev.KEY_RIGHTMETA,

	"f13": evdev.KEY_F13, "f14": evdev.KEY_F14, "f15": evdev.KEY_F15, "f16": evdev.KEY_F16,
	"f17": evdev.KEY_F17, "f18": evdev.KEY_F18, "f19": evdev.KEY_F19, "f20": evdev.KEY_F20,
	"f21": evdev.KEY_F21, "f22": evdev.KEY_F22, "f23": evdev.KEY_F23, "f24": evdev.KEY_F24,

	"playpause": evdev.KEY_PLAYPAUSE,
	"nextsong":   evdev.KEY_NEXTSONG,
	"previoussong": evdev.KEY_PREVIOUSSONG,
	"stopcd":     evdev.KEY_STOPCD,
}

// codeToName is built once from aliases' canonical codes (preferring the
// short "ctrl"/"shift"/"alt"/"meta" spelling for modifiers) plus byName.
var codeToName map[Code]string

func init() {
	codeToName = make(map[Code]string, len(byName))
	for name, code := range byName {
		codeToName[code] = name
	}
	// Canonical short names win over the long leftX/rightX duplicates
	// byName also defines, so formatted combos read "ctrl+a" not
	// "leftctrl+a".
	codeToName[evdev.KEY_LEFTCTRL] = "ctrl"
	codeToName[evdev.KEY_RIGHTCTRL] = "right_ctrl"
	codeToName[evdev.KEY_LEFTSHIFT] = "shift"
	codeToName[evdev.KEY_RIGHTSHIFT] = "right_shift"
	codeToName[evdev.KEY_LEFTALT] = "alt"
	codeToName[evdev.KEY_RIGHTALT] = "right_alt"
	codeToName[evdev.KEY_LEFTMETA] = "meta"
	codeToName[evdev.KEY_RIGHTMETA] = "right_meta"
	codeToName[evdev.KEY_CAPSLOCK] = "caps_lock"
}

// NameToCode resolves a human-written key name (case-insensitive, an
// optional "KEY_" prefix is stripped) to its numeric code.
func NameToCode(name string) (Code, bool) {
	name = normalize(name)

	if code, ok := aliases[name]; ok {
		return code, true
	}
	if code, ok := byName[name]; ok {
		return code, true
	}
	return 0, false
}

// CodeToName renders a code back to a human-readable name; the inverse of
// NameToCode, but never accepts a code where NameToCode accepts a string.
func CodeToName(code Code) (string, bool) {
	name, ok := codeToName[code]
	return name, ok
}

// IsModifier reports whether code is one of the fixed modifier keys.
func IsModifier(code Code) bool {
	_, ok := modifiers[code]
	return ok
}

// AllModifierNames lists every modifier alias, in no particular order.
func AllModifierNames() []string {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	return names
}

func normalize(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	name = strings.TrimPrefix(name, "key_")
	return name
}

// ParseCombo splits a "mod+mod+key" string into its modifier codes and its
// single non-modifier key code. It does not enforce whether at least one
// modifier is required -- callers needing the source/destination
// invariants from the config schema should use ParseSourceCombo or
// ParseDestCombo.
func ParseCombo(combo string) (mods map[Code]struct{}, key Code, err error) {
	parts := strings.Split(combo, "+")
	mods = make(map[Code]struct{})
	found := false

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, 0, fmt.Errorf("empty key name in combo %q", combo)
		}

		code, ok := NameToCode(part)
		if !ok {
			return nil, 0, fmt.Errorf("unknown key name %q in combo %q", part, combo)
		}

		if IsModifier(code) {
			if _, dup := mods[code]; dup {
				return nil, 0, fmt.Errorf("duplicate modifier %q in combo %q", part, combo)
			}
			mods[code] = struct{}{}
			continue
		}

		if found {
			return nil, 0, fmt.Errorf("combo %q has more than one non-modifier key", combo)
		}
		key = code
		found = true
	}

	if !found {
		return nil, 0, fmt.Errorf("combo %q has no non-modifier key", combo)
	}

	return mods, key, nil
}

// ParseSourceCombo parses a rule's src combo, requiring at least one
// modifier (spec: "Source combos additionally require >=1 modifier").
func ParseSourceCombo(combo string) (mods map[Code]struct{}, key Code, err error) {
	mods, key, err = ParseCombo(combo)
	if err != nil {
		return nil, 0, err
	}
	if len(mods) == 0 {
		return nil, 0, fmt.Errorf("source combo %q requires at least one modifier", combo)
	}
	return mods, key, nil
}

// ParseDestCombo parses a rule's dst combo; destination combos may carry
// zero modifiers.
func ParseDestCombo(combo string) (mods map[Code]struct{}, key Code, err error) {
	return ParseCombo(combo)
}
