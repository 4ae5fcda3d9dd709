package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/bnema/magickey/internal/keycodes"
)

// BindingSpec is one configuration group: a keyboard selector list and
// the ordered rule set that applies to every keyboard it selects.
// KeyboardSelectors is resolved lazily against the live device list at
// grab time (not at parse time), since the set of attached keyboards
// changes under hotplug.
type BindingSpec struct {
	KeyboardSelectors []string
	Rules             *RuleSet
}

// rawGroup mirrors the on-disk JSON shape of one configuration group.
type rawGroup struct {
	Keyboards []string    `json:"keyboards"`
	Mappings  []rawMapping `json:"mappings"`
}

type rawMapping struct {
	Src         string         `json:"src"`
	Dst         string         `json:"dst"`
	Match       *rawPredicate  `json:"match"`
	MatchOr     *rawPredicate  `json:"match_or"`
	MatchNot    *rawPredicate  `json:"match_not"`
	MatchNotOr  *rawPredicate  `json:"match_not_or"`
}

type rawPredicate struct {
	Class string `json:"class"`
	Title string `json:"title"`
}

// LoadConfig reads and validates a configuration file, aggregating every
// validation error before returning (spec.md §7: "reported to the user,
// process exits non-zero before any grab").
func LoadConfig(path string) ([]BindingSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates raw configuration bytes. The
// top-level JSON value is a bare array of groups, which spf13/viper's
// map-rooted configuration model has no way to target; this loader
// works directly against encoding/json instead.
func ParseConfig(data []byte) ([]BindingSpec, error) {
	var groups []rawGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var specs []BindingSpec
	var errs []string
	seen := make(map[string]struct{})

	for gi, g := range groups {
		// Empty mappings, or an explicit empty "keyboards" list, skips
		// the group per spec.md §6.
		if len(g.Mappings) == 0 {
			continue
		}
		if g.Keyboards != nil && len(g.Keyboards) == 0 {
			continue
		}

		var mappings []*KeyMapping
		for mi, m := range g.Mappings {
			km, dupKey, err := parseMapping(m)
			if err != nil {
				errs = append(errs, fmt.Sprintf("group %d mapping %d: %v", gi, mi, err))
				continue
			}
			if _, dup := seen[dupKey]; dup {
				errs = append(errs, fmt.Sprintf("group %d mapping %d: duplicate rule for %s", gi, mi, dupKey))
				continue
			}
			seen[dupKey] = struct{}{}
			mappings = append(mappings, km)
		}

		if len(mappings) == 0 {
			continue
		}

		specs = append(specs, BindingSpec{
			KeyboardSelectors: g.Keyboards,
			Rules:             NewRuleSet(mappings),
		})
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(errs, "\n"))
	}
	return specs, nil
}

func parseMapping(m rawMapping) (*KeyMapping, string, error) {
	if m.Src == "" {
		return nil, "", fmt.Errorf("missing src")
	}
	if m.Dst == "" {
		return nil, "", fmt.Errorf("missing dst")
	}

	srcMods, srcKey, err := keycodes.ParseSourceCombo(m.Src)
	if err != nil {
		return nil, "", fmt.Errorf("src %q: %w", m.Src, err)
	}
	dstMods, dstKey, err := keycodes.ParseDestCombo(m.Dst)
	if err != nil {
		return nil, "", fmt.Errorf("dst %q: %w", m.Dst, err)
	}

	pred, predIdentity, err := buildPredicate(m)
	if err != nil {
		return nil, "", err
	}

	km, err := NewKeyMapping(srcMods, srcKey, dstMods, dstKey, pred)
	if err != nil {
		return nil, "", err
	}

	dupKey := fmt.Sprintf("%s|%s", comboKey(srcMods, srcKey), predIdentity)
	return km, dupKey, nil
}

func buildPredicate(m rawMapping) (*MatchPredicate, string, error) {
	present := 0
	var kind PredicateKind
	var raw *rawPredicate

	for _, candidate := range []struct {
		p *rawPredicate
		k PredicateKind
	}{
		{m.Match, PredicateAll},
		{m.MatchOr, PredicateAny},
		{m.MatchNot, PredicateNotAll},
		{m.MatchNotOr, PredicateNotAny},
	} {
		if candidate.p != nil {
			present++
			kind = candidate.k
			raw = candidate.p
		}
	}

	if present > 1 {
		return nil, "", fmt.Errorf("at most one of match/match_or/match_not/match_not_or is allowed")
	}
	if present == 0 {
		return nil, "none", nil
	}

	var classRe, titleRe *regexp.Regexp
	var err error
	if raw.Class != "" {
		classRe, err = regexp.Compile(raw.Class)
		if err != nil {
			return nil, "", fmt.Errorf("invalid class pattern %q: %w", raw.Class, err)
		}
	}
	if raw.Title != "" {
		titleRe, err = regexp.Compile(raw.Title)
		if err != nil {
			return nil, "", fmt.Errorf("invalid title pattern %q: %w", raw.Title, err)
		}
	}

	pred := &MatchPredicate{Kind: kind, Class: classRe, Title: titleRe}
	identity := fmt.Sprintf("%d:%s:%s", kind, raw.Class, raw.Title)
	return pred, identity, nil
}

func comboKey(mods map[keycodes.Code]struct{}, key keycodes.Code) string {
	codes := make([]int, 0, len(mods))
	for m := range mods {
		codes = append(codes, int(m))
	}
	sort.Ints(codes)

	var b strings.Builder
	for _, c := range codes {
		fmt.Fprintf(&b, "%d+", c)
	}
	fmt.Fprintf(&b, "%d", key)
	return b.String()
}
