// Package rpc implements the divine bus method-dispatch layer: the method
// registry, the middleware chain, and the built-in smoke-test handlers.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MKWorldWide/divinebus/errs"
	"github.com/MKWorldWide/divinebus/protocol"
)

// Handler serves one RPC method. Params are already-parsed JSON; the return
// value must be JSON-serializable. Returning a *protocol.RPCError controls
// the wire code; any other error is mapped to internal_error. Handler
// failures never propagate past Dispatch.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// DefaultHandler is invoked for methods with no registered handler.
type DefaultHandler func(ctx context.Context, method string, params map[string]any) (any, error)

// Registry maps method names to handlers. All registration must complete
// before the bus starts accepting traffic; the bus calls Freeze at start,
// which makes that precondition a checked contract instead of documentation.
type Registry struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	fallback    DefaultHandler
	middlewares []Middleware
	chain       HandlerFunc
	frozen      bool
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register stores a handler for method, overwriting any previous handler
// for the same name (last write wins). Fails once the registry is frozen.
func (r *Registry) Register(method string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errs.ErrRegistryFrozen
	}
	r.handlers[method] = h
	return nil
}

// SetDefault installs the fallback handler invoked for unknown methods.
func (r *Registry) SetDefault(h DefaultHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errs.ErrRegistryFrozen
	}
	r.fallback = h
	return nil
}

// Use appends a middleware. Middlewares run in registration order around
// every dispatch.
func (r *Registry) Use(mw Middleware) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errs.ErrRegistryFrozen
	}
	r.middlewares = append(r.middlewares, mw)
	return nil
}

// Freeze finalizes the registry and builds the middleware chain once.
// Idempotent. After Freeze the registry is read-only and safe to share
// across all connection actors without locking on the hot path.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	r.frozen = true
	r.chain = Chain(r.middlewares...)(r.dispatch)
}

// Dispatch routes one request through the middleware chain to its handler.
// It always returns a response; handler errors and panics are converted to
// structured error responses.
func (r *Registry) Dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	r.mu.RLock()
	chain := r.chain
	r.mu.RUnlock()
	if chain == nil {
		chain = r.dispatch
	}
	return chain(ctx, req)
}

func (r *Registry) dispatch(ctx context.Context, req *protocol.Request) (resp *protocol.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = protocol.NewError(protocol.CodeInternalError, fmt.Sprintf("handler panic: %v", rec))
		}
	}()

	if req == nil || req.Method == "" {
		return protocol.NewError(protocol.CodeInvalidRequest, "No method specified")
	}

	r.mu.RLock()
	h, ok := r.handlers[req.Method]
	fallback := r.fallback
	r.mu.RUnlock()

	params := req.Params
	if params == nil {
		params = map[string]any{}
	}

	var result any
	var err error
	switch {
	case ok:
		result, err = h(ctx, params)
	case fallback != nil:
		result, err = fallback(ctx, req.Method, params)
	default:
		return protocol.NewError(protocol.CodeInvalidRequest, "Unknown method: "+req.Method)
	}
	if err != nil {
		return errorResponse(err)
	}
	return protocol.NewResult(result)
}

// errorResponse maps a handler error to a wire response. A
// *protocol.RPCError passes through with its code; everything else becomes
// internal_error with only the error string, never internal detail.
func errorResponse(err error) *protocol.Response {
	var rpcErr *protocol.RPCError
	if errors.As(err, &rpcErr) {
		return &protocol.Response{JSONRPC: protocol.Version, Error: rpcErr}
	}
	return protocol.NewError(protocol.CodeInternalError, err.Error())
}
