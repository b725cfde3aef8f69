// Package inproc is the default middleware implementation: a process-local
// pub/sub graph with no transport underneath. It implements the full
// middleware contract, including the name grammar with byte-accurate
// invalid-character reporting, so the node core behaves identically whether
// it runs on inproc or on a networked middleware.
//
// Guard conditions are backed by one-slot channels: triggering is level-like,
// so any number of triggers before a wait collapse into a single wakeup.
// Node creation and destruction trigger every live guard condition, which is
// how executors observe graph changes.
package inproc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wavemesh/talaria/pkg/middleware"
)

// Middleware is an in-process implementation of middleware.Middleware.
// It is safe for concurrent use by any number of goroutines.
type Middleware struct {
	logger *zap.Logger

	mu     sync.Mutex
	nodes  map[string]*nodeResource
	guards map[string]*guardResource

	errMu   sync.Mutex
	lastErr middleware.ErrorState
}

// New creates an in-process middleware. The logger may be nil.
func New(logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		logger: logger,
		nodes:  make(map[string]*nodeResource),
		guards: make(map[string]*guardResource),
	}
}

type runtimeHandle struct {
	id    string
	valid atomic.Bool
}

func (r *runtimeHandle) Valid() bool { return r.valid.Load() }

type nodeResource struct {
	id        string
	name      string
	namespace string
	fqn       string
	rt        *runtimeHandle

	// guarded by Middleware.mu
	finalized bool
}

func (n *nodeResource) Name() string               { return n.name }
func (n *nodeResource) Namespace() string          { return n.namespace }
func (n *nodeResource) FullyQualifiedName() string { return n.fqn }

type guardResource struct {
	id string
	ch chan struct{}
	rt *runtimeHandle

	// guarded by Middleware.mu
	finalized bool
}

func (g *guardResource) Signal() <-chan struct{} { return g.ch }

// RuntimeInit initializes a new in-process runtime handle.
func (m *Middleware) RuntimeInit() (middleware.Runtime, middleware.Ret) {
	rt := &runtimeHandle{id: uuid.NewString()}
	rt.valid.Store(true)
	return rt, middleware.RetOK
}

// RuntimeFini invalidates a runtime handle.
func (m *Middleware) RuntimeFini(rt middleware.Runtime) middleware.Ret {
	handle, ok := rt.(*runtimeHandle)
	if !ok || handle == nil {
		m.setError("runtime fini", "not an inproc runtime handle")
		return middleware.RetInvalidArgument
	}
	if !handle.valid.CompareAndSwap(true, false) {
		m.setError("runtime fini", "runtime already finalized")
		return middleware.RetNotInit
	}
	return middleware.RetOK
}

// NodeInit registers a node in the process-local graph. Both the name and
// the namespace are validated here, mirroring what a networked middleware
// does during node creation.
func (m *Middleware) NodeInit(rt middleware.Runtime, name, namespace string, opts middleware.NodeOptions) (middleware.NodeResource, middleware.Ret) {
	handle, ok := rt.(*runtimeHandle)
	if !ok || handle == nil {
		m.setError("node init", "not an inproc runtime handle")
		return nil, middleware.RetInvalidArgument
	}
	if !handle.Valid() {
		m.setError("node init", "runtime already finalized")
		return nil, middleware.RetNotInit
	}

	if res := validateNodeName(name); !res.Valid {
		m.setError("node init", res.Reason)
		return nil, middleware.RetNodeInvalidName
	}
	if res := validateNamespace(namespace); !res.Valid {
		m.setError("node init", res.Reason)
		return nil, middleware.RetNodeInvalidNamespace
	}

	node := &nodeResource{
		id:        uuid.NewString(),
		name:      name,
		namespace: namespace,
		fqn:       joinNamespace(namespace, name),
		rt:        handle,
	}

	m.mu.Lock()
	m.nodes[node.id] = node
	live := m.liveGuardsLocked()
	m.mu.Unlock()

	m.logger.Debug("node registered in graph",
		zap.String("node", node.fqn),
		zap.Bool("logger_output", opts.EnableLoggerOutput))
	triggerAll(live)
	return node, middleware.RetOK
}

// NodeFini removes a node from the graph. A second fini on the same resource
// fails with RetNotInit; exactly-once destruction is the caller's contract.
func (m *Middleware) NodeFini(res middleware.NodeResource) middleware.Ret {
	node, ok := res.(*nodeResource)
	if !ok || node == nil {
		m.setError("node fini", "not an inproc node resource")
		return middleware.RetInvalidArgument
	}

	m.mu.Lock()
	if node.finalized {
		m.mu.Unlock()
		m.setError("node fini", fmt.Sprintf("node %q already finalized", node.fqn))
		return middleware.RetNotInit
	}
	node.finalized = true
	delete(m.nodes, node.id)
	live := m.liveGuardsLocked()
	m.mu.Unlock()

	m.logger.Debug("node removed from graph", zap.String("node", node.fqn))
	triggerAll(live)
	return middleware.RetOK
}

// GuardInit creates a guard condition bound to the runtime.
func (m *Middleware) GuardInit(rt middleware.Runtime) (middleware.GuardResource, middleware.Ret) {
	handle, ok := rt.(*runtimeHandle)
	if !ok || handle == nil {
		m.setError("guard condition init", "not an inproc runtime handle")
		return nil, middleware.RetInvalidArgument
	}
	if !handle.Valid() {
		m.setError("guard condition init", "runtime already finalized")
		return nil, middleware.RetNotInit
	}

	guard := &guardResource{
		id: uuid.NewString(),
		ch: make(chan struct{}, 1),
		rt: handle,
	}
	m.mu.Lock()
	m.guards[guard.id] = guard
	m.mu.Unlock()
	return guard, middleware.RetOK
}

// GuardFini finalizes a guard condition.
func (m *Middleware) GuardFini(res middleware.GuardResource) middleware.Ret {
	guard, ok := res.(*guardResource)
	if !ok || guard == nil {
		m.setError("guard condition fini", "not an inproc guard resource")
		return middleware.RetInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if guard.finalized {
		m.setError("guard condition fini", "guard condition already finalized")
		return middleware.RetNotInit
	}
	guard.finalized = true
	delete(m.guards, guard.id)
	return middleware.RetOK
}

// GuardTrigger signals a guard condition.
func (m *Middleware) GuardTrigger(res middleware.GuardResource) middleware.Ret {
	guard, ok := res.(*guardResource)
	if !ok || guard == nil {
		m.setError("guard condition trigger", "not an inproc guard resource")
		return middleware.RetInvalidArgument
	}

	m.mu.Lock()
	finalized := guard.finalized
	m.mu.Unlock()
	if finalized {
		m.setError("guard condition trigger", "guard condition already finalized")
		return middleware.RetNotInit
	}

	select {
	case guard.ch <- struct{}{}:
	default:
		// Already pending; triggers collapse.
	}
	return middleware.RetOK
}

// ValidateNodeName checks a node name against the grammar.
func (m *Middleware) ValidateNodeName(name string) (middleware.ValidationResult, middleware.Ret) {
	return validateNodeName(name), middleware.RetOK
}

// ValidateNamespace checks a namespace against the grammar.
func (m *Middleware) ValidateNamespace(namespace string) (middleware.ValidationResult, middleware.Ret) {
	return validateNamespace(namespace), middleware.RetOK
}

// ResolveName expands a topic or service name relative to the given node.
// Absolute names pass through unchanged, '~' expands to the node's private
// namespace, and anything else is made relative to the node's namespace.
// The inproc graph has no remap rules, so onlyExpand changes nothing beyond
// honoring the contract.
func (m *Middleware) ResolveName(res middleware.NodeResource, name string, isService, onlyExpand bool) (string, middleware.Ret) {
	node, ok := res.(*nodeResource)
	if !ok || node == nil {
		m.setError("resolve name", "not an inproc node resource")
		return "", middleware.RetInvalidArgument
	}

	m.mu.Lock()
	finalized := node.finalized
	m.mu.Unlock()
	if finalized {
		m.setError("resolve name", fmt.Sprintf("node %q already finalized", node.fqn))
		return "", middleware.RetNotInit
	}

	if vres := validateTopicName(name); !vres.Valid {
		m.setError("resolve name", fmt.Sprintf("%s (at byte %d)", vres.Reason, vres.InvalidIndex))
		return "", middleware.RetTopicNameInvalid
	}

	return expandName(name, node.namespace, node.fqn), middleware.RetOK
}

// NotifyGraphChange triggers every live guard condition. Networked
// middlewares layered on top of inproc call this when a remote graph change
// arrives.
func (m *Middleware) NotifyGraphChange() {
	m.mu.Lock()
	live := m.liveGuardsLocked()
	m.mu.Unlock()
	triggerAll(live)
}

// LiveNodes returns the number of registered, unfinalized nodes.
func (m *Middleware) LiveNodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// LiveGuards returns the number of unfinalized guard conditions.
func (m *Middleware) LiveGuards() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.guards)
}

// ErrorState returns a snapshot of the last recorded error.
func (m *Middleware) ErrorState() middleware.ErrorState {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.lastErr
}

// ResetError discards the last recorded error.
func (m *Middleware) ResetError() {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.lastErr = middleware.ErrorState{}
}

func (m *Middleware) setError(source, message string) {
	m.errMu.Lock()
	m.lastErr = middleware.ErrorState{Message: message, Source: source}
	m.errMu.Unlock()
}

func (m *Middleware) liveGuardsLocked() []*guardResource {
	live := make([]*guardResource, 0, len(m.guards))
	for _, g := range m.guards {
		live = append(live, g)
	}
	return live
}

func triggerAll(guards []*guardResource) {
	for _, g := range guards {
		select {
		case g.ch <- struct{}{}:
		default:
		}
	}
}

var _ middleware.Middleware = (*Middleware)(nil)
