// Package hotplug polls /dev/input for added or removed event nodes,
// since no udev/netlink binding is available to this module.
package hotplug

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/magickey/internal/logger"
)

// pollInterval matches the corpus's own device monitor cadence.
const pollInterval = 2 * time.Second

// ChangeType distinguishes a device appearing from one disappearing.
type ChangeType int

const (
	Added ChangeType = iota
	Removed
)

// Change is one add/remove transition detected between two polls.
type Change struct {
	Type ChangeType
	Path string
}

// Watcher polls an input device directory and reports added/removed
// eventN nodes on a channel.
type Watcher struct {
	inputDir string
	interval time.Duration
}

// New builds a Watcher over /dev/input.
func New() *Watcher {
	return &Watcher{inputDir: "/dev/input", interval: pollInterval}
}

// Start launches the polling goroutine and returns a channel of changes.
// The channel is closed once ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) <-chan Change {
	changes := make(chan Change)
	go w.run(ctx, changes)
	return changes
}

func (w *Watcher) run(ctx context.Context, changes chan<- Change) {
	defer close(changes)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	seen := w.list()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := w.list()

			for path := range current {
				if !seen[path] {
					logger.Debugf("input device appeared: %s", path)
					if !send(ctx, changes, Change{Type: Added, Path: path}) {
						return
					}
				}
			}
			for path := range seen {
				if !current[path] {
					logger.Debugf("input device disappeared: %s", path)
					if !send(ctx, changes, Change{Type: Removed, Path: path}) {
						return
					}
				}
			}

			seen = current
		}
	}
}

func send(ctx context.Context, changes chan<- Change, c Change) bool {
	select {
	case changes <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Watcher) list() map[string]bool {
	devices := make(map[string]bool)

	entries, err := os.ReadDir(w.inputDir)
	if err != nil {
		logger.Warnf("read %s: %v", w.inputDir, err)
		return devices
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "event") {
			devices[filepath.Join(w.inputDir, entry.Name())] = true
		}
	}
	return devices
}
