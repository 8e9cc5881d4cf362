package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/hostkit/internal/domain/ipc"
	"github.com/GriffinCanCode/hostkit/internal/domain/storage"
	"github.com/GriffinCanCode/hostkit/internal/domain/updater"
	"github.com/GriffinCanCode/hostkit/internal/domain/window"
	"github.com/GriffinCanCode/hostkit/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/hostkit/internal/infrastructure/tracing"
	"github.com/gin-gonic/gin"
)

// ErrUpdaterUnavailable is returned when no update feed is configured.
var ErrUpdaterUnavailable = errors.New("updater is not configured")

var (
	errEmptyBody     = errors.New("request body is empty")
	errInvalidConfig = errors.New("storage config must be an object or an array of objects")
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var remote *ipc.RemoteError
	switch {
	case errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, ipc.ErrChannelRequired):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUnknownResource),
		errors.Is(err, window.ErrWindowNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrSerialization),
		errors.Is(err, updater.ErrInvalidRelease),
		errors.Is(err, updater.ErrChecksumMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, updater.ErrDownloadInProgress),
		errors.Is(err, updater.ErrNotDownloaded),
		errors.Is(err, updater.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, updater.ErrDisabled):
		return http.StatusForbidden
	case errors.Is(err, updater.ErrNoInstaller):
		return http.StatusNotImplemented
	case errors.Is(err, ErrUpdaterUnavailable),
		errors.Is(err, ipc.ErrNoTargets),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.As(err, &remote):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// abort writes a JSON error response and records err on the context so
// the tracing middleware marks the span.
func abort(c *gin.Context, err error) {
	_ = c.Error(err)

	body := gin.H{"error": err.Error()}
	if traceID := tracing.GetTraceID(c.Request.Context()); traceID != "" {
		body["trace_id"] = traceID
	}
	c.AbortWithStatusJSON(statusFor(err), body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
