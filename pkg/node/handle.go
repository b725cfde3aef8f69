package node

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wavemesh/talaria/internal/initlock"
	"github.com/wavemesh/talaria/internal/report"
	sdkerrors "github.com/wavemesh/talaria/pkg/errors"
	"github.com/wavemesh/talaria/pkg/middleware"
	"github.com/wavemesh/talaria/pkg/rt"
)

// Handle couples the lifetime of a native node resource to a reference held
// on the shared context: the context cannot finalize its runtime while the
// node resource exists, because node finalization may still touch
// runtime-scoped state such as the shared logging registry.
//
// Handles are reference counted. Clone takes an additional reference and
// every Clone must be balanced by a Release; the node resource is finalized
// exactly once, by whichever holder releases last, under the global init
// lock. Only after finalization completes is the context reference dropped.
type Handle struct {
	mw     middleware.Middleware
	rctx   *rt.Context
	logger *zap.Logger

	mu       sync.Mutex
	res      middleware.NodeResource
	refs     int
	released bool
}

// newHandle wraps an already-initialized node resource. It takes over the
// context reference the constructor attached before node initialization; the
// handle detaches it after finalization.
func newHandle(mw middleware.Middleware, rctx *rt.Context, res middleware.NodeResource, logger *zap.Logger) *Handle {
	return &Handle{
		mw:     mw,
		rctx:   rctx,
		logger: logger,
		res:    res,
		refs:   1,
	}
}

// Resource returns the native node resource. The resource stays valid as
// long as the caller holds an unreleased reference to the handle.
func (h *Handle) Resource() middleware.NodeResource {
	return h.res
}

// Clone takes an additional reference on the handle and returns it. Cloning
// a fully released handle returns nil.
func (h *Handle) Clone() *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.refs++
	return h
}

// Release drops one reference. The last release finalizes the node resource
// under the global init lock and then detaches from the context.
// Finalization failures are reported, never returned. Releasing more times
// than the handle was referenced is a no-op.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.refs--
	if h.refs > 0 {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.mu.Unlock()

	// Node finalization deregisters the node from the shared logging
	// registry; the init lock serializes that against every other node's
	// init and fini process-wide.
	lock := initlock.Global()
	lock.Lock()
	if ret := h.mw.NodeFini(h.res); ret != middleware.RetOK {
		report.Error(h.logger, "error in destruction of node handle",
			sdkerrors.NewInitError("node fini", ret, h.mw.ErrorState()),
			zap.String("node", h.res.FullyQualifiedName()))
	}
	lock.Unlock()

	// The context reference is dropped only after finalization completed.
	h.rctx.Detach()
}
