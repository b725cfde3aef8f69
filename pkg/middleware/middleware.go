// Package middleware defines the contract between the Talaria node core and
// the underlying pub/sub middleware implementation. The node core never talks
// to a transport directly; it drives an implementation of the Middleware
// interface and translates its numeric return codes into structured errors.
//
// Two implementations ship with the SDK: inproc (a process-local graph,
// suitable for embedding and testing) and natsmw (a NATS-backed graph that
// layers announcements on top of inproc).
package middleware

// Ret is the numeric return code used by middleware operations.
// Zero means success; everything else is a failure class the node core
// knows how to interpret.
type Ret int

const (
	// RetOK indicates the operation succeeded.
	RetOK Ret = iota

	// RetError indicates an unspecified middleware failure.
	RetError

	// RetInvalidArgument indicates a malformed argument was passed to the
	// middleware, including to its validation operations.
	RetInvalidArgument

	// RetNotInit indicates the target resource or runtime was never
	// initialized, or has already been finalized.
	RetNotInit

	// RetNodeInvalidName indicates node initialization rejected the node name.
	RetNodeInvalidName

	// RetNodeInvalidNamespace indicates node initialization rejected the
	// namespace.
	RetNodeInvalidNamespace

	// RetTopicNameInvalid indicates a topic or service name failed the name
	// grammar during resolution.
	RetTopicNameInvalid
)

// String returns a human-readable description of the return code.
func (r Ret) String() string {
	switch r {
	case RetOK:
		return "ok"
	case RetError:
		return "unspecified middleware error"
	case RetInvalidArgument:
		return "invalid argument"
	case RetNotInit:
		return "resource not initialized"
	case RetNodeInvalidName:
		return "invalid node name"
	case RetNodeInvalidNamespace:
		return "invalid node namespace"
	case RetTopicNameInvalid:
		return "invalid topic name"
	default:
		return "unknown middleware error"
	}
}

// ErrorState is a snapshot of the middleware's last recorded error. It is
// attached to structured errors raised by the node core so callers see the
// middleware's own diagnostics, not just a numeric code.
type ErrorState struct {
	// Message is the middleware's description of what went wrong.
	Message string

	// Source identifies the middleware operation that recorded the error.
	Source string
}

// ValidationResult is the verdict of a name or namespace validation query.
type ValidationResult struct {
	// Valid reports whether the candidate passed the name grammar.
	Valid bool

	// Reason is a human-readable description of the violated rule.
	// Empty when Valid is true.
	Reason string

	// InvalidIndex is the byte offset of the first invalid character.
	// -1 when Valid is true.
	InvalidIndex int
}

// NodeOptions carries per-node settings forwarded verbatim to NodeInit.
type NodeOptions struct {
	// Arguments are middleware-specific arguments (remap rules and the like).
	// The node core treats them as opaque.
	Arguments []string

	// EnableLoggerOutput requests registration of the node with the shared
	// logging registry during NodeInit. Registration and deregistration are
	// the two operations the global init lock exists to serialize.
	EnableLoggerOutput bool
}

// Runtime is an opaque handle to an initialized middleware runtime.
// A process typically holds one, shared by every node created from it.
type Runtime interface {
	// Valid reports whether the runtime is still usable.
	Valid() bool
}

// NodeResource is the native resource representing a single addressable
// participant in the pub/sub graph. Identity accessors stay valid for the
// lifetime of the resource.
type NodeResource interface {
	Name() string
	Namespace() string
	FullyQualifiedName() string
}

// GuardResource is a lightweight cross-thread signal resource. Executors
// block on Signal to wake when graph state changes.
type GuardResource interface {
	// Signal returns the channel an executor waits on. A triggered guard
	// condition makes a receive on the channel proceed.
	Signal() <-chan struct{}
}

// Middleware is the full collaborator surface consumed by the node core.
//
// All operations return a Ret code rather than an error; the node core owns
// the translation into its error taxonomy. Implementations record diagnostics
// for failed calls, retrievable via ErrorState until ResetError is called.
type Middleware interface {
	// RuntimeInit initializes a middleware runtime.
	RuntimeInit() (Runtime, Ret)

	// RuntimeFini finalizes a runtime. Finalizing a runtime with live nodes
	// or guard conditions is a caller bug; the reference counting in pkg/rt
	// exists to prevent it.
	RuntimeFini(rt Runtime) Ret

	// NodeInit creates the native node resource for the given name and
	// namespace. The caller must hold the global init lock across this call
	// when EnableLoggerOutput is in play.
	NodeInit(rt Runtime, name, namespace string, opts NodeOptions) (NodeResource, Ret)

	// NodeFini finalizes a node resource. Finalization is not idempotent at
	// this level; the managed handle in pkg/node guarantees exactly-once.
	NodeFini(res NodeResource) Ret

	// GuardInit creates a guard condition bound to the runtime.
	GuardInit(rt Runtime) (GuardResource, Ret)

	// GuardFini finalizes a guard condition.
	GuardFini(res GuardResource) Ret

	// GuardTrigger signals a guard condition. Triggering is level-like:
	// multiple triggers before a wait collapse into one wakeup.
	GuardTrigger(res GuardResource) Ret

	// ValidateNodeName independently checks a node name against the grammar.
	// The Ret code reports validator infrastructure failures only; a
	// well-formed query about an invalid name returns RetOK with a negative
	// verdict in the ValidationResult.
	ValidateNodeName(name string) (ValidationResult, Ret)

	// ValidateNamespace is the namespace counterpart of ValidateNodeName.
	ValidateNamespace(namespace string) (ValidationResult, Ret)

	// ResolveName expands a topic or service name to its fully qualified
	// form relative to the given node. When onlyExpand is true, remap rules
	// are not applied.
	ResolveName(res NodeResource, name string, isService, onlyExpand bool) (string, Ret)

	// ErrorState returns a snapshot of the last recorded error.
	ErrorState() ErrorState

	// ResetError discards the last recorded error.
	ResetError()
}
