package native_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reglet-dev/sdf-http/application/bridge"
	"github.com/reglet-dev/sdf-http/application/transport"
	"github.com/reglet-dev/sdf-http/domain/ports"
	"github.com/reglet-dev/sdf-http/hostfuncs"
	"github.com/reglet-dev/sdf-http/infrastructure/native"
	"github.com/reglet-dev/sdf-http/infrastructure/wasm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBodylessServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/no-content", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "hello")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// consume runs one exchange directly against the capability and reports the
// status and the outcome of IncomingResponse.Consume.
func consume(t *testing.T, host ports.Host, method, url string) (uint16, error) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)

	out, err := bridge.ToOutgoingRequest(host, req)
	require.NoError(t, err)
	fut, err := host.Handle(out)
	require.NoError(t, err)
	defer fut.Drop()

	p := fut.Subscribe()
	p.Block()
	p.Drop()

	outcome, ready, err := fut.Get()
	require.NoError(t, err)
	require.True(t, ready)
	require.Nil(t, outcome.Failure)
	resp := outcome.Response
	defer resp.Drop()

	body, err := resp.Consume()
	if body != nil {
		body.Drop()
	}
	return resp.Status(), err
}

func TestIncomingResponse_Consume(t *testing.T) {
	srv := newBodylessServer(t)

	nativeHost, err := native.New(native.WithLogger(quietLogger()))
	require.NoError(t, err)

	handler := hostfuncs.NewHTTPHandler(nativeHost)
	reg, err := hostfuncs.NewRegistry(hostfuncs.WithBundle(hostfuncs.HTTPHandlerBundle(handler)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	proxied := wasm.NewHostWithCaller(func(payload []byte) ([]byte, error) {
		return reg.Invoke(context.Background(), hostfuncs.WasiHTTPFunction, payload)
	})

	tests := []struct {
		name   string
		method string
		path   string
		status uint16
		noBody bool
	}{
		{name: "204", method: http.MethodGet, path: "/no-content", status: 204, noBody: true},
		{name: "HEAD", method: http.MethodHead, path: "/text", status: 200, noBody: true},
		{name: "content-length zero", method: http.MethodGet, path: "/empty", status: 200, noBody: true},
		{name: "body", method: http.MethodGet, path: "/text", status: 200},
	}

	hosts := map[string]ports.Host{"native": nativeHost, "over the wire": proxied}

	for hostName, host := range hosts {
		for _, tt := range tests {
			t.Run(hostName+"/"+tt.name, func(t *testing.T) {
				status, err := consume(t, host, tt.method, srv.URL+tt.path)
				assert.Equal(t, tt.status, status)
				if tt.noBody {
					assert.ErrorIs(t, err, ports.ErrNoBody)
				} else {
					assert.NoError(t, err)
				}
			})
		}
	}

	assert.Zero(t, handler.Live())
}

func TestExchange_BodylessResponses(t *testing.T) {
	srv := newBodylessServer(t)
	d := newDriver(t, nil, transport.WithChunkSize(2))

	for _, path := range []string{"/no-content", "/empty"} {
		t.Run(path, func(t *testing.T) {
			resp, body, err := send(t, d, http.MethodGet, srv.URL+path, nil, nil)
			require.NoError(t, err)
			assert.Empty(t, body)
			assert.NotZero(t, resp.StatusCode)
		})
	}

	resp, body, err := send(t, d, http.MethodHead, srv.URL+"/text", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}
