// Package window holds the currently focused window's (class, title) and
// the sway/i3 IPC client that keeps it updated asynchronously.
package window

import "sync/atomic"

// Window identifies the focused application window for predicate
// matching. Both fields may be empty.
type Window struct {
	Class string
	Title string
}

// IsEmpty reports whether both fields are empty, the case in which
// window predicates are vacuously satisfied (spec: "When both class and
// title are empty, predicates are treated as vacuously satisfied").
func (w Window) IsEmpty() bool {
	return w.Class == "" && w.Title == ""
}

// Context is the single-writer (IPC subscription goroutine), many-reader
// (one per engine) cell holding the current focus snapshot. A plain
// mutex would also be correct, but an atomic pointer keeps chord
// resolution allocation- and lock-free on the read side, which matters
// since it runs on every keystroke.
type Context struct {
	current atomic.Pointer[Window]
}

// NewContext returns a Context initialized to the empty window.
func NewContext() *Context {
	c := &Context{}
	c.Set(Window{})
	return c
}

// Set publishes a new focus snapshot. Called by the supervisor once to
// seed the context, then by the IPC subscription goroutine.
func (c *Context) Set(w Window) {
	v := w
	c.current.Store(&v)
}

// Snapshot returns the most recently published focus window. Safe to
// call concurrently from any number of engine goroutines; never blocks.
func (c *Context) Snapshot() Window {
	p := c.current.Load()
	if p == nil {
		return Window{}
	}
	return *p
}
