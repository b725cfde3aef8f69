// Package initlock exposes the process-wide lock that serializes node
// creation and destruction against the shared logging registry.
//
// Middleware implementations register and deregister nodes with a logging
// registry that is shared across every node in the process. Holding this lock
// for exactly the duration of a single NodeInit or NodeFini call keeps those
// registry mutations from racing. The lock must never be held across
// unrelated work.
package initlock

import (
	"sync"

	"github.com/wavemesh/talaria/internal/rsync"
)

var (
	once   sync.Once
	global *rsync.ReentrantMutex
)

// Global returns the process-wide init lock. Every caller receives the same
// instance; it is created lazily on first use and lives for the rest of the
// process.
func Global() *rsync.ReentrantMutex {
	once.Do(func() {
		global = &rsync.ReentrantMutex{}
	})
	return global
}
