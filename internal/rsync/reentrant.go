// Package rsync provides a reentrant mutex.
//
// The notify guard condition in pkg/node needs a lock that the same
// goroutine may acquire again while already holding it: teardown invalidates
// the guard condition under the lock and query paths may nest on the same
// goroutine during that window. The standard library mutex deadlocks there.
package rsync

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// ReentrantMutex is a mutual exclusion lock that the owning goroutine may
// lock again without blocking. Each Lock must be balanced by an Unlock from
// the same goroutine. The zero value is ready to use.
type ReentrantMutex struct {
	mu    sync.Mutex
	owner atomic.Uint64
	depth int
}

// Lock acquires the mutex, blocking until it is available unless the calling
// goroutine already holds it.
func (m *ReentrantMutex) Lock() {
	id := goroutineID()
	if m.owner.Load() == id {
		// depth is only touched by the owning goroutine.
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(id)
	m.depth = 1
}

// Unlock releases one level of the mutex. It panics if the calling goroutine
// does not hold the lock.
func (m *ReentrantMutex) Unlock() {
	if m.owner.Load() != goroutineID() {
		panic("rsync: unlock of reentrant mutex not held by this goroutine")
	}
	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID extracts the current goroutine's id from its stack header,
// "goroutine <id> [...]".
func goroutineID() uint64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic("rsync: malformed goroutine stack header")
	}
	return id
}
