package httpapi

import (
	"context"
	"errors"
	"net/http"
)

// errShuttingDown is the cancellation cause of backend calls cut short by shutdown.
var errShuttingDown = errors.New("ops server shutting down")

// shutdownCtx is done when the process starts shutting down. Background until set.
var shutdownCtx = context.Background()

// SetBaseContext ties in-flight backend calls to ctx: when it is done, calls made
// on behalf of open requests are canceled. nil detaches them again.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownCtx = ctx
}

// backendContext derives the context for a backend call made by r. It ends with
// the request or, with cause errShuttingDown, when shutdown begins.
func backendContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(r.Context())
	stop := context.AfterFunc(shutdownCtx, func() { cancel(errShuttingDown) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
