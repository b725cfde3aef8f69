package node

import (
	"go.uber.org/zap"

	"github.com/wavemesh/talaria/internal/report"
	"github.com/wavemesh/talaria/internal/rsync"
	sdkerrors "github.com/wavemesh/talaria/pkg/errors"
	"github.com/wavemesh/talaria/pkg/middleware"
)

// guardCondition wraps the notify guard condition resource together with its
// validity flag and the dedicated lock protecting both.
//
// The lock is reentrant: invalidation during node teardown and queries may
// nest on the same goroutine. Validity starts false and is flipped to true
// only as the final step of node construction, so no failed construction
// path ever exposes a valid guard condition.
type guardCondition struct {
	mw     middleware.Middleware
	logger *zap.Logger

	mu    rsync.ReentrantMutex
	res   middleware.GuardResource
	valid bool
}

func newGuardCondition(mw middleware.Middleware, runtime middleware.Runtime, logger *zap.Logger) (*guardCondition, error) {
	res, ret := mw.GuardInit(runtime)
	if ret != middleware.RetOK {
		return nil, sdkerrors.NewInitError("failed to create notify guard condition", ret, mw.ErrorState())
	}
	return &guardCondition{
		mw:     mw,
		logger: logger,
		res:    res,
	}, nil
}

// markValid makes the guard condition observable. Called exactly once, as
// the last step of successful node construction.
func (g *guardCondition) markValid() {
	g.mu.Lock()
	g.valid = true
	g.mu.Unlock()
}

// get returns the guard resource, or nil once the guard condition has been
// invalidated.
func (g *guardCondition) get() middleware.GuardResource {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid {
		return nil
	}
	return g.res
}

// acquire locks the guard condition and returns the release. Callers use it
// to hold the lock across a larger critical section, typically checking
// validity and registering a wait without racing invalidation.
func (g *guardCondition) acquire() func() {
	g.mu.Lock()
	return g.mu.Unlock
}

// trigger signals the guard condition, failing with
// ErrGuardConditionUnavailable once it has been invalidated.
func (g *guardCondition) trigger() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid {
		return sdkerrors.ErrGuardConditionUnavailable
	}
	if ret := g.mw.GuardTrigger(g.res); ret != middleware.RetOK {
		return sdkerrors.NewInitError("failed to trigger notify guard condition", ret, g.mw.ErrorState())
	}
	return nil
}

// invalidateAndFini marks the guard condition invalid and finalizes the
// underlying resource, both under the lock so a concurrent get observes
// either a valid resource or nil, never a finalized one. Finalization
// failures are reported, never returned; this runs on destruction paths.
func (g *guardCondition) invalidateAndFini() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid && g.res == nil {
		return
	}
	g.valid = false
	if ret := g.mw.GuardFini(g.res); ret != middleware.RetOK {
		report.Error(g.logger, "failed to destroy notify guard condition",
			sdkerrors.NewInitError("guard condition fini", ret, g.mw.ErrorState()))
	}
	g.res = nil
}
