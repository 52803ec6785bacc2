package hostfuncs

import (
	"io"

	"github.com/reglet-dev/sdf-http/domain/ports"
)

// HostFuncBundle is a pre-configured set of related host functions.
// Bundles allow registering multiple handlers at once for common use cases.
// A bundle that also implements io.Closer is closed with the registry.
type HostFuncBundle interface {
	// Handlers returns a map of handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

// ScopeReleaser is implemented by bundles that keep state per scope. The
// registry forwards ReleaseScope to them.
type ScopeReleaser interface {
	ReleaseScope(scope string) int
}

// WasiHTTPFunction is the name of the host function serving the HTTP capability.
const WasiHTTPFunction = "wasi_http"

type httpBundle struct {
	handler *HTTPHandler
}

func (b *httpBundle) Handlers() map[string]ByteHandler {
	return map[string]ByteHandler{
		WasiHTTPFunction: b.handler.ByteHandler(),
	}
}

func (b *httpBundle) ReleaseScope(scope string) int {
	return b.handler.ReleaseScope(scope)
}

func (b *httpBundle) Close() error {
	b.handler.Close()
	return nil
}

// HTTPBundle returns a bundle exposing host as the wasi_http host function.
// Each bundle owns its own handle table.
func HTTPBundle(host ports.Host) HostFuncBundle {
	return &httpBundle{handler: NewHTTPHandler(host)}
}

// HTTPHandlerBundle is HTTPBundle for a handler the caller keeps, e.g. to
// inspect Live after a run.
func HTTPHandlerBundle(h *HTTPHandler) HostFuncBundle {
	return &httpBundle{handler: h}
}

// WithBundle registers all handlers from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for name, handler := range bundle.Handlers() {
			if err := b.addHandler(name, handler); err != nil {
				b.errors = append(b.errors, err)
			}
		}
		if c, ok := bundle.(io.Closer); ok {
			b.closers = append(b.closers, c)
		}
		if r, ok := bundle.(ScopeReleaser); ok {
			b.releasers = append(b.releasers, r)
		}
	}
}

// WithHandler registers a typed host function with automatic JSON handling.
// The handler will be wrapped with NewJSONHandler for JSON serialization.
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		handler := NewJSONHandler(fn)
		if err := b.addHandler(name, handler); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}
