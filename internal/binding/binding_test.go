package binding

import (
	"testing"

	"github.com/bnema/magickey/internal/rules"
	"github.com/bnema/magickey/internal/window"
	"github.com/stretchr/testify/assert"
)

// Grab/Ungrab against a real device require actual hardware (or root
// access to /dev/uinput) and are exercised manually, not in CI; these
// tests cover the bookkeeping that doesn't require either.

func TestNewBindingStartsUngrabbed(t *testing.T) {
	b := New("my-keyboard", rules.NewRuleSet(nil), window.NewContext())

	assert.Equal(t, "my-keyboard", b.Selector())
	assert.False(t, b.Grabbed())
	assert.NoError(t, b.Err())
}

func TestUngrabOnUngrabbedBindingIsANoOp(t *testing.T) {
	b := New("my-keyboard", rules.NewRuleSet(nil), window.NewContext())

	assert.True(t, b.Ungrab())
	assert.False(t, b.Grabbed())
}
