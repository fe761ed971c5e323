// Package example implements an example handler and middleware in an outside package.
package example

import (
	"context"

	"github.com/advdv/bwire/bwsrv"
	"go.uber.org/zap"
)

// ctxKey type scopes middlware values.
type ctxKey string

// Middleware provides an example for middleware that adds a logger to the context.
func Middleware(logs *zap.Logger) bwsrv.Middleware {
	return func(n bwsrv.Handler) bwsrv.Handler {
		return bwsrv.HandlerFunc(func(c context.Context, w bwsrv.ResponseWriter, r *bwsrv.Request) error {
			logs := logs.With(zap.String("method", r.Method), zap.Uint64("ticket", uint64(r.Ticket())))
			c = context.WithValue(c, ctxKey("zap"), logs)

			return n.ServeBW(c, w, r)
		})
	}
}

// Log returns the logger the middleware stored, or a no-op logger.
func Log(ctx context.Context) *zap.Logger {
	if v, ok := ctx.Value(ctxKey("zap")).(*zap.Logger); ok {
		return v
	}

	return zap.NewNop()
}
