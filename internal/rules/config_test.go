package rules

import (
	"testing"

	"github.com/bnema/magickey/internal/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigBasicMapping(t *testing.T) {
	data := []byte(`[
		{
			"keyboards": ["my-keyboard"],
			"mappings": [
				{"src": "ctrl+i", "dst": "ctrl+a"}
			]
		}
	]`)

	specs, err := ParseConfig(data)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, []string{"my-keyboard"}, specs[0].KeyboardSelectors)
	require.Len(t, specs[0].Rules.Rules, 1)

	rule := specs[0].Rules.Rules[0]
	assert.Len(t, rule.SrcModifiers, 1)
	assert.Nil(t, rule.Predicate)
}

func TestParseConfigDefaultKeyboardsWhenOmitted(t *testing.T) {
	data := []byte(`[
		{"mappings": [{"src": "ctrl+i", "dst": "ctrl+a"}]}
	]`)

	specs, err := ParseConfig(data)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Nil(t, specs[0].KeyboardSelectors)
}

func TestParseConfigSkipsGroupWithEmptyKeyboards(t *testing.T) {
	data := []byte(`[
		{"keyboards": [], "mappings": [{"src": "ctrl+i", "dst": "ctrl+a"}]}
	]`)

	specs, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestParseConfigSkipsGroupWithEmptyMappings(t *testing.T) {
	data := []byte(`[
		{"keyboards": ["kbd"], "mappings": []}
	]`)

	specs, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestParseConfigRejectsMissingSrcOrDst(t *testing.T) {
	data := []byte(`[
		{"mappings": [{"dst": "ctrl+a"}]}
	]`)
	_, err := ParseConfig(data)
	assert.Error(t, err)

	data = []byte(`[
		{"mappings": [{"src": "ctrl+i"}]}
	]`)
	_, err = ParseConfig(data)
	assert.Error(t, err)
}

func TestParseConfigRejectsDuplicateRule(t *testing.T) {
	data := []byte(`[
		{"mappings": [
			{"src": "ctrl+i", "dst": "ctrl+a"},
			{"src": "ctrl+i", "dst": "ctrl+b"}
		]}
	]`)
	_, err := ParseConfig(data)
	assert.Error(t, err)
}

func TestParseConfigAllowsSameSrcWithDifferentPredicates(t *testing.T) {
	data := []byte(`[
		{"mappings": [
			{"src": "ctrl+i", "dst": "ctrl+a", "match": {"class": "firefox"}},
			{"src": "ctrl+i", "dst": "ctrl+b", "match_not": {"class": "firefox"}}
		]}
	]`)

	specs, err := ParseConfig(data)
	require.NoError(t, err)
	require.Len(t, specs[0].Rules.Rules, 2)
}

func TestParseConfigRejectsMultiplePredicateKinds(t *testing.T) {
	data := []byte(`[
		{"mappings": [
			{"src": "ctrl+i", "dst": "ctrl+a", "match": {"class": "a"}, "match_or": {"class": "b"}}
		]}
	]`)
	_, err := ParseConfig(data)
	assert.Error(t, err)
}

func TestParseConfigRejectsInvalidRegex(t *testing.T) {
	data := []byte(`[
		{"mappings": [
			{"src": "ctrl+i", "dst": "ctrl+a", "match": {"class": "("}}
		]}
	]`)
	_, err := ParseConfig(data)
	assert.Error(t, err)
}

func TestParseConfigPredicateAppliedToRuleMatch(t *testing.T) {
	data := []byte(`[
		{"mappings": [
			{"src": "ctrl+i", "dst": "ctrl+a", "match_not": {"class": "firefox"}}
		]}
	]`)

	specs, err := ParseConfig(data)
	require.NoError(t, err)

	rule := specs[0].Rules.Rules[0]
	assert.False(t, rule.Predicate.Matches(window.Window{Class: "firefox"}))
	assert.True(t, rule.Predicate.Matches(window.Window{Class: "foot"}))
}

func TestParseConfigIgnoresUnknownKeys(t *testing.T) {
	data := []byte(`[
		{"mappings": [
			{"src": "ctrl+i", "dst": "ctrl+a", "unknown_field": 123}
		]}
	]`)
	_, err := ParseConfig(data)
	assert.NoError(t, err)
}
