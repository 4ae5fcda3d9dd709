package rules

import (
	"regexp"

	"github.com/bnema/magickey/internal/window"
)

// PredicateKind is the closed set of window-match predicate shapes a
// rule may carry.
type PredicateKind int

const (
	PredicateNone PredicateKind = iota
	PredicateAll
	PredicateAny
	PredicateNotAll
	PredicateNotAny
)

// MatchPredicate conditions a rule on the focused window's (class,
// title). Class and Title are compiled once at config-load time; a nil
// pattern means that sub-pattern is absent from the predicate.
type MatchPredicate struct {
	Kind  PredicateKind
	Class *regexp.Regexp
	Title *regexp.Regexp
}

// Matches evaluates the predicate against a focus snapshot, per
// spec.md §4.C:
//
//   - An absent sub-pattern contributes no constraint under ALL/NOT_ALL
//     and contributes false under ANY/NOT_ANY.
//   - If both sub-patterns are absent the predicate is vacuously true.
//   - NOT_* inverts each individual pattern match before combination.
//   - When the window itself is empty (no focus reported yet, or no
//     compositor connection at all), the predicate is vacuously true so
//     rules still match on keys alone.
func (p *MatchPredicate) Matches(w window.Window) bool {
	if p == nil || p.Kind == PredicateNone {
		return true
	}
	if w.IsEmpty() {
		return true
	}
	if p.Class == nil && p.Title == nil {
		return true
	}

	switch p.Kind {
	case PredicateAll:
		return field(p.Class, w.Class, true, false) && field(p.Title, w.Title, true, false)
	case PredicateAny:
		return field(p.Class, w.Class, false, false) || field(p.Title, w.Title, false, false)
	case PredicateNotAll:
		return field(p.Class, w.Class, true, true) && field(p.Title, w.Title, true, true)
	case PredicateNotAny:
		return field(p.Class, w.Class, false, true) || field(p.Title, w.Title, false, true)
	default:
		return true
	}
}

// field evaluates one sub-pattern against one window field. An absent
// pattern contributes whenAbsent regardless of invert -- there is no
// match to invert when there is no pattern. A present pattern's match is
// flipped when invert is set, per NOT_*'s "inverts each individual
// pattern match before combination".
func field(pattern *regexp.Regexp, value string, whenAbsent, invert bool) bool {
	if pattern == nil {
		return whenAbsent
	}
	matched := pattern.MatchString(value)
	if invert {
		return !matched
	}
	return matched
}
