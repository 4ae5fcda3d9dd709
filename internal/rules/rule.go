// Package rules holds the KeyMapping/MatchPredicate data model and the
// RuleSet matching function the translation engine consults at chord
// resolution.
package rules

import (
	"fmt"

	"github.com/bnema/magickey/internal/keycodes"
	"github.com/bnema/magickey/internal/window"
)

// KeyMapping rewrites one source chord to one destination chord,
// optionally guarded by a window predicate. See spec.md §3 for the
// invariants enforced at construction time (NewKeyMapping / the config
// loader).
type KeyMapping struct {
	SrcModifiers map[keycodes.Code]struct{}
	SrcKey       keycodes.Code
	DstModifiers map[keycodes.Code]struct{}
	DstKey       keycodes.Code
	Predicate    *MatchPredicate
}

// NewKeyMapping validates the invariants from spec.md §3:
// src_modifiers subset of Modifiers (guaranteed by ParseSourceCombo),
// src_key not a modifier, src_modifiers non-empty, dst_key not a
// modifier.
func NewKeyMapping(srcMods map[keycodes.Code]struct{}, srcKey keycodes.Code, dstMods map[keycodes.Code]struct{}, dstKey keycodes.Code, pred *MatchPredicate) (*KeyMapping, error) {
	if len(srcMods) == 0 {
		return nil, fmt.Errorf("src_modifiers must be non-empty")
	}
	if keycodes.IsModifier(srcKey) {
		return nil, fmt.Errorf("src_key must not be a modifier")
	}
	if keycodes.IsModifier(dstKey) {
		return nil, fmt.Errorf("dst_key must not be a modifier")
	}

	return &KeyMapping{
		SrcModifiers: srcMods,
		SrcKey:       srcKey,
		DstModifiers: dstMods,
		DstKey:       dstKey,
		Predicate:    pred,
	}, nil
}

// sameModifiers reports whether a and b contain exactly the same codes.
func sameModifiers(a, b map[keycodes.Code]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// RuleSet is an ordered list of KeyMapping rules; Match performs the
// linear, first-match-wins scan from spec.md §4.C.
type RuleSet struct {
	Rules []*KeyMapping
}

// NewRuleSet builds a RuleSet from an ordered rule list.
func NewRuleSet(rules []*KeyMapping) *RuleSet {
	return &RuleSet{Rules: rules}
}

// AllCodes returns every key code referenced by any rule in the set
// (source and destination, modifiers and keys), used by the device
// binding to compute the virtual device's capability union (spec.md
// §4.E).
func (rs *RuleSet) AllCodes() map[keycodes.Code]struct{} {
	codes := make(map[keycodes.Code]struct{})
	for _, r := range rs.Rules {
		for m := range r.SrcModifiers {
			codes[m] = struct{}{}
		}
		codes[r.SrcKey] = struct{}{}
		for m := range r.DstModifiers {
			codes[m] = struct{}{}
		}
		codes[r.DstKey] = struct{}{}
	}
	return codes
}

// Match scans the rule set in declaration order and returns the first
// rule whose src_modifiers equals activeMods, whose src_key equals key,
// and whose predicate holds against win.
func (rs *RuleSet) Match(activeMods map[keycodes.Code]struct{}, key keycodes.Code, win window.Window) (*KeyMapping, bool) {
	for _, r := range rs.Rules {
		if r.SrcKey != key {
			continue
		}
		if !sameModifiers(r.SrcModifiers, activeMods) {
			continue
		}
		if !r.Predicate.Matches(win) {
			continue
		}
		return r, true
	}
	return nil, false
}
