package rpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MKWorldWide/divinebus/protocol"
)

// HandlerFunc is the dispatch signature middlewares wrap.
type HandlerFunc func(ctx context.Context, req *protocol.Request) *protocol.Response

// Middleware wraps a HandlerFunc. The first middleware added runs outermost.
type Middleware func(HandlerFunc) HandlerFunc

// Chain composes middlewares so Chain(A, B)(h) runs A before B before h.
func Chain(mws ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging returns a middleware that logs each dispatch with its method,
// duration, and resulting error code. Request params are not logged.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			start := time.Now()
			resp := next(ctx, req)
			method := ""
			if req != nil {
				method = req.Method
			}
			fields := []zap.Field{
				zap.String("method", method),
				zap.Duration("took", time.Since(start)),
			}
			if resp != nil && resp.Error != nil {
				logger.Warn("rpc failed", append(fields, zap.String("code", resp.Error.Code))...)
			} else {
				logger.Debug("rpc served", fields...)
			}
			return resp
		}
	}
}

// RateLimit returns a middleware that rejects dispatches exceeding the
// limiter with a rate_limited error. The limiter is shared across all
// connections of the bus it is installed on.
func RateLimit(limiter *rate.Limiter) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			if !limiter.Allow() {
				return protocol.NewError(protocol.CodeRateLimited, "too many requests")
			}
			return next(ctx, req)
		}
	}
}
