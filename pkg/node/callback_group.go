package node

import (
	"sync"
	"sync/atomic"
	"weak"
)

// CallbackGroupType selects the execution policy of a callback group.
type CallbackGroupType int

const (
	// CallbackGroupTypeMutuallyExclusive runs the group's callbacks one at a
	// time.
	CallbackGroupTypeMutuallyExclusive CallbackGroupType = iota

	// CallbackGroupTypeReentrant allows the group's callbacks to run
	// concurrently.
	CallbackGroupTypeReentrant
)

// String returns the name of the group type.
func (t CallbackGroupType) String() string {
	switch t {
	case CallbackGroupTypeMutuallyExclusive:
		return "mutually_exclusive"
	case CallbackGroupTypeReentrant:
		return "reentrant"
	default:
		return "unknown"
	}
}

// CallbackGroup is a unit of serialized or parallel callback execution.
// Groups are created through a node but owned by their creator: the node
// keeps only a weak reference, so dropping every strong reference removes
// the group from the node's registry without any explicit unregistration.
type CallbackGroup struct {
	groupType              CallbackGroupType
	autoAddToExecutor      bool
	associatedWithExecutor atomic.Bool
}

// NewCallbackGroup creates a standalone callback group. Groups meant to be
// visible through a node should be created with Node.CreateCallbackGroup
// instead.
func NewCallbackGroup(groupType CallbackGroupType, autoAddToExecutor bool) *CallbackGroup {
	return &CallbackGroup{
		groupType:         groupType,
		autoAddToExecutor: autoAddToExecutor,
	}
}

// Type returns the group's execution policy.
func (g *CallbackGroup) Type() CallbackGroupType {
	return g.groupType
}

// AutomaticallyAddToExecutor reports whether the executor should pick this
// group up together with its node.
func (g *CallbackGroup) AutomaticallyAddToExecutor() bool {
	return g.autoAddToExecutor
}

// AssociatedWithExecutor returns the atomic flag an executor sets while it
// owns this group. The storage is returned rather than the value so the
// executor can compare-and-swap on it directly.
func (g *CallbackGroup) AssociatedWithExecutor() *atomic.Bool {
	return &g.associatedWithExecutor
}

// callbackGroupRegistry holds weak references to the callback groups created
// through a node. Entries whose owners have dropped their last strong
// reference are skipped during lookups and pruned on the next registration.
// The registry mutex is not reentrant; visitors passed to forEach must not
// call back into the registry.
type callbackGroupRegistry struct {
	mu     sync.Mutex
	groups []weak.Pointer[CallbackGroup]
}

func (r *callbackGroupRegistry) add(group *CallbackGroup) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Compact dead entries while we are here; the registry otherwise only
	// ever grows.
	kept := r.groups[:0]
	for _, wp := range r.groups {
		if wp.Value() != nil {
			kept = append(kept, wp)
		}
	}
	r.groups = append(kept, weak.Make(group))
}

func (r *callbackGroupRegistry) contains(group *CallbackGroup) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wp := range r.groups {
		if g := wp.Value(); g != nil && g == group {
			return true
		}
	}
	return false
}

func (r *callbackGroupRegistry) forEach(fn func(*CallbackGroup)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wp := range r.groups {
		if g := wp.Value(); g != nil {
			fn(g)
		}
	}
}
