// Package rt provides the shared context: the process-wide handle to an
// initialized middleware runtime. A context is created once and shared by
// every node built from it; its runtime is never finalized while a node
// handle still references it.
package rt

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	sdkerrors "github.com/wavemesh/talaria/pkg/errors"
	"github.com/wavemesh/talaria/pkg/middleware"
)

// Context couples a middleware instance with an initialized runtime and
// reference-counts the node resources that depend on it. Shutdown marks the
// context invalid immediately, but the runtime itself is finalized only when
// the last reference detaches, so in-flight node teardown can still reach
// runtime-scoped state.
type Context struct {
	mw     middleware.Middleware
	logger *zap.Logger

	mu       sync.Mutex
	runtime  middleware.Runtime
	refs     int
	shutdown bool
	final    bool
}

// NewContext initializes a middleware runtime and wraps it in a Context.
// The logger may be nil, in which case context-level failures are not logged.
func NewContext(mw middleware.Middleware, logger *zap.Logger) (*Context, error) {
	if mw == nil {
		return nil, errors.New("middleware cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	runtime, ret := mw.RuntimeInit()
	if ret != middleware.RetOK {
		return nil, sdkerrors.NewInitError("failed to initialize middleware runtime", ret, mw.ErrorState())
	}

	return &Context{
		mw:      mw,
		logger:  logger,
		runtime: runtime,
	}, nil
}

// Middleware returns the middleware instance this context was built from.
func (c *Context) Middleware() middleware.Middleware {
	return c.mw
}

// Runtime returns the runtime handle. The handle stays non-nil after
// Shutdown so teardown paths can keep identifying the runtime; use IsValid
// to check usability.
func (c *Context) Runtime() middleware.Runtime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runtime
}

// IsValid reports whether the context can still be used to create resources.
func (c *Context) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.shutdown
}

// Attach takes a reference on the context on behalf of a dependent resource.
// Every successful Attach must be balanced by exactly one Detach. Attach
// fails once the context has been shut down.
func (c *Context) Attach() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return sdkerrors.ErrContextShutdown
	}
	c.refs++
	return nil
}

// Detach drops a reference taken with Attach. If the context has been shut
// down and this was the last reference, the runtime is finalized now.
func (c *Context) Detach() {
	c.mu.Lock()
	if c.refs == 0 {
		c.mu.Unlock()
		c.logger.Warn("context detach without matching attach")
		return
	}
	c.refs--
	finalize := c.shutdown && c.refs == 0 && !c.final
	if finalize {
		c.final = true
	}
	c.mu.Unlock()

	if finalize {
		c.finalizeRuntime()
	}
}

// Shutdown marks the context invalid. The runtime is finalized immediately
// when no references are attached; otherwise finalization is deferred to the
// last Detach. Shutdown is idempotent.
func (c *Context) Shutdown() error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil
	}
	c.shutdown = true
	finalize := c.refs == 0 && !c.final
	if finalize {
		c.final = true
	}
	c.mu.Unlock()

	if finalize {
		c.finalizeRuntime()
	}
	return nil
}

func (c *Context) finalizeRuntime() {
	if ret := c.mw.RuntimeFini(c.runtime); ret != middleware.RetOK {
		c.logger.Error("failed to finalize middleware runtime",
			zap.String("ret", ret.String()),
			zap.String("error", c.mw.ErrorState().Message))
	}
}
