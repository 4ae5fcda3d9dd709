package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/bnema/magickey/internal/binding"
	"github.com/bnema/magickey/internal/rules"
	"github.com/bnema/magickey/internal/window"
	"github.com/stretchr/testify/assert"
)

func TestNewSupervisorStartsInRunningStateOnce(t *testing.T) {
	s := New(nil, window.NewContext(), 1000)
	assert.Equal(t, State(0), s.State())
}

func TestRunDrainsOnContextCancelWithNoBindings(t *testing.T) {
	s := New(nil, window.NewContext(), 1000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	assert.Equal(t, Stopped, s.State())
}

func TestReconcileLeavesUnresolvableBindingUngrabbed(t *testing.T) {
	b := binding.New("nonexistent-keyboard", rules.NewRuleSet(nil), window.NewContext())
	s := New([]*binding.Binding{b}, window.NewContext(), 1000)

	// Grab will fail since the selector matches nothing, but reconcile
	// must not panic and must leave the binding ungrabbed.
	s.reconcile(context.Background())
	assert.False(t, b.Grabbed())
}
