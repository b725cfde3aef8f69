// Package node implements the lifecycle and thread-safe state core of a
// single Talaria node: its binding to the shared context, the registry of
// callback groups, the notify guard condition executors wait on, and the
// translation of middleware return codes into the SDK error taxonomy.
//
// A Node is a passive resource owner. It runs no goroutines of its own and
// is safe for concurrent use by executor and application goroutines.
//
// Example usage:
//
//	mw := inproc.New(logger)
//	rctx, err := rt.NewContext(mw, logger)
//	if err != nil {
//	    logger.Fatal("context init failed", zap.Error(err))
//	}
//
//	n, err := node.New("sensor_driver", "/fleet/alpha", rctx, node.Options{Logger: logger})
//	if err != nil {
//	    logger.Fatal("node init failed", zap.Error(err))
//	}
//	defer n.Close()
//
//	topic, _ := n.ResolveTopicOrServiceName("imu", false, false)
//	// topic == "/fleet/alpha/imu"
package node

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wavemesh/talaria/internal/initlock"
	sdkerrors "github.com/wavemesh/talaria/pkg/errors"
	"github.com/wavemesh/talaria/pkg/middleware"
	"github.com/wavemesh/talaria/pkg/rt"
)

// Options configures a node at construction time.
type Options struct {
	// UseIntraProcessDefault is the default for intra-process delivery on
	// publishers and subscriptions created under this node.
	UseIntraProcessDefault bool

	// EnableTopicStatisticsDefault is the default for topic statistics
	// collection on subscriptions created under this node.
	EnableTopicStatisticsDefault bool

	// Middleware carries per-node settings forwarded verbatim to NodeInit.
	Middleware middleware.NodeOptions

	// Logger receives construction and teardown diagnostics. A nil logger
	// disables logging.
	Logger *zap.Logger
}

// Node owns the resources a single pub/sub graph participant depends on. It
// is the sole entry point higher layers use to reach the native node handle,
// resolve names, or enumerate callback groups.
type Node struct {
	rctx   *rt.Context
	mw     middleware.Middleware
	logger *zap.Logger

	handle       *Handle
	guard        *guardCondition
	groups       callbackGroupRegistry
	defaultGroup *CallbackGroup

	associatedWithExecutor atomic.Bool
	closed                 atomic.Bool

	useIntraProcessDefault       bool
	enableTopicStatisticsDefault bool
}

// New creates a node with the given name under the given namespace.
//
// Construction is two-phase with rollback: the notify guard condition is
// created first, then the native node resource under the global init lock.
// If node initialization fails, the guard condition is finalized before the
// error propagates, the failure is classified against the middleware's
// standalone validators, and no partially constructed node is ever returned.
// On success the guard condition becomes valid only as the very last step.
func New(name, namespace string, rctx *rt.Context, opts Options) (*Node, error) {
	if rctx == nil {
		return nil, errors.New("context cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mw := rctx.Middleware()

	// The context reference covers construction and is handed to the node
	// handle on success.
	if err := rctx.Attach(); err != nil {
		return nil, err
	}

	guard, err := newGuardCondition(mw, rctx.Runtime(), logger)
	if err != nil {
		rctx.Detach()
		return nil, err
	}

	// Rollback for every failure past this point: the guard condition is the
	// only side effect so far, and it must not leak.
	rollback := func() {
		guard.invalidateAndFini()
		rctx.Detach()
	}

	// The init lock is held for exactly this one call; node initialization
	// registers the node with the shared logging registry.
	lock := initlock.Global()
	lock.Lock()
	res, ret := mw.NodeInit(rctx.Runtime(), name, namespace, opts.Middleware)
	lock.Unlock()

	if ret != middleware.RetOK {
		state := mw.ErrorState()
		rollback()
		return nil, classifyInitFailure(mw, ret, state, name, namespace)
	}

	n := &Node{
		rctx:                         rctx,
		mw:                           mw,
		logger:                       logger,
		handle:                       newHandle(mw, rctx, res, logger),
		guard:                        guard,
		useIntraProcessDefault:       opts.UseIntraProcessDefault,
		enableTopicStatisticsDefault: opts.EnableTopicStatisticsDefault,
	}

	n.defaultGroup = n.CreateCallbackGroup(CallbackGroupTypeMutuallyExclusive, true)

	// Last step: nothing that can fail remains, so no error path ever
	// observes a valid guard condition.
	n.guard.markValid()

	logger.Debug("node created",
		zap.String("node", res.FullyQualifiedName()),
		zap.Bool("intra_process_default", n.useIntraProcessDefault))
	return n, nil
}

// classifyInitFailure turns a NodeInit failure into a structured error. For
// name and namespace rejections the standalone validator is consulted so the
// error carries the violated rule and the offset of the first invalid
// character. A validator that disagrees with the initializer is reported as
// an inconsistency rather than silently trusting either side.
func classifyInitFailure(mw middleware.Middleware, ret middleware.Ret, state middleware.ErrorState, name, namespace string) error {
	switch ret {
	case middleware.RetNodeInvalidName:
		mw.ResetError() // discard the init error; the validator gives the richer one
		vres, vret := mw.ValidateNodeName(name)
		if vret != middleware.RetOK {
			if vret == middleware.RetInvalidArgument {
				return &sdkerrors.ValidationError{Op: "failed to validate node name", Ret: vret, State: mw.ErrorState()}
			}
			return &sdkerrors.ValidationError{Op: "failed to validate node name", Ret: middleware.RetError, State: mw.ErrorState()}
		}
		if !vres.Valid {
			return &sdkerrors.InvalidNodeNameError{NodeName: name, Reason: vres.Reason, InvalidIndex: vres.InvalidIndex}
		}
		return &sdkerrors.InconsistencyError{What: "node name", Value: name}

	case middleware.RetNodeInvalidNamespace:
		mw.ResetError()
		vres, vret := mw.ValidateNamespace(namespace)
		if vret != middleware.RetOK {
			if vret == middleware.RetInvalidArgument {
				return &sdkerrors.ValidationError{Op: "failed to validate namespace", Ret: vret, State: mw.ErrorState()}
			}
			return &sdkerrors.ValidationError{Op: "failed to validate namespace", Ret: middleware.RetError, State: mw.ErrorState()}
		}
		if !vres.Valid {
			return &sdkerrors.InvalidNamespaceError{Namespace: namespace, Reason: vres.Reason, InvalidIndex: vres.InvalidIndex}
		}
		return &sdkerrors.InconsistencyError{What: "namespace", Value: namespace}

	default:
		return sdkerrors.NewInitError("failed to initialize node", ret, state)
	}
}

// Close tears the node down. The guard condition is invalidated and
// finalized first, under its lock, so executors querying it concurrently see
// it become unavailable rather than racing its destruction. The node handle
// reference is then released; if it was the last one, the native resource is
// finalized under the global init lock. Close is idempotent and never fails:
// teardown errors are logged and reported, not returned.
func (n *Node) Close() {
	if !n.closed.CompareAndSwap(false, true) {
		return
	}
	n.guard.invalidateAndFini()
	n.handle.Release()
	n.logger.Debug("node closed")
}

// Name returns the node's name.
func (n *Node) Name() string {
	return n.handle.Resource().Name()
}

// Namespace returns the node's namespace.
func (n *Node) Namespace() string {
	return n.handle.Resource().Namespace()
}

// FullyQualifiedName returns the node's namespace-qualified name.
func (n *Node) FullyQualifiedName() string {
	return n.handle.Resource().FullyQualifiedName()
}

// Context returns the shared context the node was created from.
func (n *Node) Context() *rt.Context {
	return n.rctx
}

// Resource returns the native node resource. It stays valid only while the
// node (or a cloned handle) is alive; callers that need to retain it past
// the node's lifetime should clone the handle instead.
func (n *Node) Resource() middleware.NodeResource {
	return n.handle.Resource()
}

// Handle returns the shared node handle. Callers may Clone it to keep the
// native resource alive independently of this node.
func (n *Node) Handle() *Handle {
	return n.handle
}

// CreateCallbackGroup creates a callback group belonging to this node and
// registers a weak reference to it. The returned strong reference is the
// caller's; once the caller drops it, the group silently disappears from the
// node's registry.
func (n *Node) CreateCallbackGroup(groupType CallbackGroupType, autoAddToExecutor bool) *CallbackGroup {
	group := NewCallbackGroup(groupType, autoAddToExecutor)
	n.groups.add(group)
	return group
}

// DefaultCallbackGroup returns the mutually exclusive group created with the
// node, used when callers do not specify a group explicitly.
func (n *Node) DefaultCallbackGroup() *CallbackGroup {
	return n.defaultGroup
}

// CallbackGroupInNode reports whether the group was created through this
// node and is still alive.
func (n *Node) CallbackGroupInNode(group *CallbackGroup) bool {
	return n.groups.contains(group)
}

// ForEachCallbackGroup visits every live callback group. The registry lock
// is held for the whole traversal: fn must not create, test, or visit
// callback groups on this node, or it will deadlock.
func (n *Node) ForEachCallbackGroup(fn func(*CallbackGroup)) {
	n.groups.forEach(fn)
}

// AssociatedWithExecutor returns the atomic flag an executor sets while the
// node is added to it. The storage is exposed, not the value, so the
// executor can compare-and-swap directly; the node never interprets it.
func (n *Node) AssociatedWithExecutor() *atomic.Bool {
	return &n.associatedWithExecutor
}

// NotifyGuardCondition returns the guard resource executors wait on, or nil
// once the node is closing and the guard condition is no longer available.
func (n *Node) NotifyGuardCondition() middleware.GuardResource {
	return n.guard.get()
}

// AcquireNotifyGuardConditionLock locks the guard condition and returns the
// release. The lock is reentrant, so holding it across a validity check plus
// a wait registration cannot deadlock against nested acquisition on the same
// goroutine.
func (n *Node) AcquireNotifyGuardConditionLock() func() {
	return n.guard.acquire()
}

// TriggerNotifyGuardCondition wakes executors waiting on the node's guard
// condition. After Close it fails with ErrGuardConditionUnavailable.
func (n *Node) TriggerNotifyGuardCondition() error {
	return n.guard.trigger()
}

// UseIntraProcessDefault reports whether intra-process delivery is enabled
// by default for resources created under this node. Fixed at construction.
func (n *Node) UseIntraProcessDefault() bool {
	return n.useIntraProcessDefault
}

// EnableTopicStatisticsDefault reports whether topic statistics are enabled
// by default for subscriptions created under this node. Fixed at
// construction.
func (n *Node) EnableTopicStatisticsDefault() bool {
	return n.enableTopicStatisticsDefault
}

// ResolveTopicOrServiceName expands a topic or service name to its fully
// qualified form relative to this node. When onlyExpand is true, middleware
// remap rules are not applied. Failures carry the middleware return code and
// its error-state snapshot.
func (n *Node) ResolveTopicOrServiceName(name string, isService, onlyExpand bool) (string, error) {
	resolved, ret := n.mw.ResolveName(n.handle.Resource(), name, isService, onlyExpand)
	if ret != middleware.RetOK {
		return "", &sdkerrors.ResolveError{Name: name, Ret: ret, State: n.mw.ErrorState()}
	}
	return resolved, nil
}
