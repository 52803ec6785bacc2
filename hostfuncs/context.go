package hostfuncs

import (
	"context"
)

// HostContext wraps a standard context.Context with host function-specific helpers.
// It provides access to the invoked function name and allows middleware to store
// request-scoped values without polluting the standard context.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string

	// SetValue stores a request-scoped value. Unlike context.WithValue,
	// this mutates the existing HostContext.
	SetValue(key, value any)

	// GetValue retrieves a request-scoped value set by SetValue.
	GetValue(key any) (value any, ok bool)
}

type hostContext struct {
	context.Context
	values   map[any]any
	funcName string
}

// NewHostContext creates a new HostContext wrapping the given context.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	return &hostContext{
		Context:  ctx,
		funcName: funcName,
		values:   make(map[any]any),
	}
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

func (c *hostContext) SetValue(key, value any) {
	c.values[key] = value
}

func (c *hostContext) GetValue(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// HostContextFrom extracts a HostContext from a context.Context.
// If the context is already a HostContext, it is returned directly.
// Otherwise, a new HostContext is created wrapping the given context.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, funcName)
}

type logAttrsKey struct{}

// AddLogAttrs attaches key/value pairs that LoggingMiddleware writes with the
// completion record of the current call. It is a no-op outside a HostContext.
func AddLogAttrs(ctx context.Context, args ...any) {
	hc, ok := ctx.(HostContext)
	if !ok {
		return
	}
	prev, _ := hc.GetValue(logAttrsKey{})
	attrs, _ := prev.([]any)
	hc.SetValue(logAttrsKey{}, append(attrs, args...))
}

func logAttrs(ctx context.Context) []any {
	hc, ok := ctx.(HostContext)
	if !ok {
		return nil
	}
	v, _ := hc.GetValue(logAttrsKey{})
	attrs, _ := v.([]any)
	return attrs
}

type scopeKey struct{}

// WithScope returns a context whose host function calls are served from the
// handle table of scope. host.Executor uses the guest instance name.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the scope set by WithScope, or "" if there is none.
func ScopeFromContext(ctx context.Context) string {
	scope, _ := ctx.Value(scopeKey{}).(string)
	return scope
}
