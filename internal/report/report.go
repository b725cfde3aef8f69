// Package report is the side channel for failures that happen on paths with
// no return value, such as resource finalization during teardown. Failures
// are logged and, when a Sentry client has been configured by the host
// application, captured there as well. They are never surfaced to callers.
package report

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Error records a non-returnable failure. The message describes the
// operation that failed; fields carry its context.
func Error(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	if logger != nil {
		logger.Error(msg, append(fields, zap.Error(err))...)
	}

	// Sentry capture is best-effort and only active when the host
	// application initialized a client.
	hub := sentry.CurrentHub()
	if hub != nil && hub.Client() != nil {
		hub.CaptureException(fmt.Errorf("%s: %w", msg, err))
	}
}
