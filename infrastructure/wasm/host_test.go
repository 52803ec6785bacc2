package wasm_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reglet-dev/sdf-http/application/transport"
	sdkerrors "github.com/reglet-dev/sdf-http/domain/errors"
	"github.com/reglet-dev/sdf-http/domain/ports"
	"github.com/reglet-dev/sdf-http/hostfuncs"
	"github.com/reglet-dev/sdf-http/infrastructure/native"
	"github.com/reglet-dev/sdf-http/infrastructure/wasm"
	"github.com/reglet-dev/sdf-http/internal/demo"
	"github.com/reglet-dev/sdf-http/internal/hosttest"
	"github.com/reglet-dev/sdf-http/wireformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bridged returns a guest-side Host whose calls travel as JSON through a host
// function registry serving hostImpl.
func bridged(t *testing.T, hostImpl ports.Host) (*wasm.Host, *hostfuncs.HTTPHandler) {
	t.Helper()
	h := hostfuncs.NewHTTPHandler(hostImpl)
	reg, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
		hostfuncs.WithBundle(hostfuncs.HTTPHandlerBundle(h)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	return wasm.NewHostWithCaller(func(payload []byte) ([]byte, error) {
		return reg.Invoke(context.Background(), hostfuncs.WasiHTTPFunction, payload)
	}), h
}

func newDriver(t *testing.T, host ports.Host) *transport.Driver {
	t.Helper()
	d, err := transport.New(host, transport.WithLogger(quietLogger()), transport.WithChunkSize(4))
	require.NoError(t, err)
	return d
}

func TestHost_DemoExchange(t *testing.T) {
	svc, err := demo.New(demo.DefaultToken, quietLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)

	nativeHost, err := native.New(native.WithLogger(quietLogger()))
	require.NoError(t, err)
	guest, table := bridged(t, nativeHost)
	d := newDriver(t, guest)

	t.Run("greeting", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/hello/wasm", nil)
		require.NoError(t, err)

		resp, err := d.Send(context.Background(), req, nil)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "hello-wasm", string(body))
	})

	t.Run("create", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/create", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer 123")
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.Send(context.Background(), req, []byte(`{"name":"guest"}`))
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"code":0,"message":"guest"}`, string(body))
	})

	assert.Zero(t, table.Live())
}

func TestHost_ErrorMapping(t *testing.T) {
	tests := []struct {
		host *hosttest.Host
		want error
		name string
	}{
		{
			name: "header rejected",
			host: &hosttest.Host{HeaderRejects: map[string]string{"X-Bad": "forbidden"}},
			want: sdkerrors.ErrInvalidHeader,
		},
		{
			name: "dispatch refused",
			host: &hosttest.Host{DispatchErr: &ports.TransportError{Code: "destination-not-found"}},
			want: sdkerrors.ErrDispatch,
		},
		{
			name: "transport failure",
			host: &hosttest.Host{Future: &hosttest.Future{Pending: 2, Failure: &ports.TransportError{Code: "connection-refused"}}},
			want: sdkerrors.ErrTransport,
		},
		{
			name: "body stream refused",
			host: &hosttest.Host{Response: &hosttest.Response{Status: 200, StreamErr: ports.ErrResourceTaken}},
			want: sdkerrors.ErrBodyStreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guest, table := bridged(t, tt.host)
			d := newDriver(t, guest)

			req, err := http.NewRequest(http.MethodGet, "http://example.com/x", nil)
			require.NoError(t, err)
			req.Header.Set("X-Bad", "1")

			_, err = d.Send(context.Background(), req, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			assert.Zero(t, table.Live())
			assert.Empty(t, tt.host.Leaked())
		})
	}
}

func TestHost_TransportErrorSurvivesWire(t *testing.T) {
	host := &hosttest.Host{Future: &hosttest.Future{Failure: &ports.TransportError{Code: "DNS-error", Message: "no such host"}}}
	guest, _ := bridged(t, host)

	_, err := newDriver(t, guest).Send(context.Background(), mustRequest(t, "http://nowhere.invalid/"), nil)

	var te *ports.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "DNS-error", te.Code)
	assert.Equal(t, "no such host", te.Message)
}

func TestHost_BodyChunks(t *testing.T) {
	resp := &hosttest.Response{
		Status: 200,
		Reads: []hosttest.Read{
			{Data: []byte("abcd")},
			{},
			{Data: []byte("ef")},
		},
	}
	host := &hosttest.Host{Response: resp}
	guest, table := bridged(t, host)

	r, err := newDriver(t, guest).Send(context.Background(), mustRequest(t, "http://example.com/"), nil)
	require.NoError(t, err)
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	assert.Equal(t, "abcdef", string(body))
	assert.Equal(t, []uint64{4, 4, 4, 4}, resp.MaxBytes)
	assert.Zero(t, table.Live())
	assert.Empty(t, host.Leaked())
}

func TestHost_CallerFailure(t *testing.T) {
	guest := wasm.NewHostWithCaller(func([]byte) ([]byte, error) {
		return nil, errors.New("host unreachable")
	})

	_, err := newDriver(t, guest).Send(context.Background(), mustRequest(t, "http://example.com/"), nil)
	assert.ErrorContains(t, err, "host unreachable")
}

func TestHost_MalformedResult(t *testing.T) {
	guest := wasm.NewHostWithCaller(func([]byte) ([]byte, error) {
		return []byte("not json"), nil
	})

	err := guest.NewHeaders().Set("X-A", [][]byte{[]byte("1")})
	var wireErr *sdkerrors.WireFormatError
	require.ErrorAs(t, err, &wireErr)
	assert.Equal(t, "decode", wireErr.Operation)
	assert.Equal(t, "headers.set", wireErr.Type)
}

func TestHost_UnknownFunctionIsReported(t *testing.T) {
	reg, err := hostfuncs.NewRegistry()
	require.NoError(t, err)
	guest := wasm.NewHostWithCaller(func(payload []byte) ([]byte, error) {
		return reg.Invoke(context.Background(), hostfuncs.WasiHTTPFunction, payload)
	})

	hs := guest.NewHeaders()
	err = hs.Set("X-A", [][]byte{[]byte("1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown host function: wasi_http")
}

// failingOn forwards calls to next except those for op, which fail with err.
func failingOn(op wireformat.Op, err error, next wasm.Caller) wasm.Caller {
	return func(payload []byte) ([]byte, error) {
		var c wireformat.CallWire
		if jsonErr := json.Unmarshal(payload, &c); jsonErr == nil && c.Op == op {
			return nil, err
		}
		return next(payload)
	}
}

func TestHost_FutureLinkFailureIsTransport(t *testing.T) {
	host := &hosttest.Host{}
	h := hostfuncs.NewHTTPHandler(host)
	reg, err := hostfuncs.NewRegistry(hostfuncs.WithBundle(hostfuncs.HTTPHandlerBundle(h)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	fault := errors.New("guest memory fault")
	guest := wasm.NewHostWithCaller(failingOn(wireformat.OpFutureGet, fault, func(payload []byte) ([]byte, error) {
		return reg.Invoke(context.Background(), hostfuncs.WasiHTTPFunction, payload)
	}))

	_, err = newDriver(t, guest).Send(context.Background(), mustRequest(t, "http://example.com/"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerrors.ErrTransport)
	assert.NotErrorIs(t, err, sdkerrors.ErrResponseAlreadyTaken)
	assert.ErrorIs(t, err, fault)
}

func TestHost_EntriesFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := hostfuncs.NewHTTPHandler(&hosttest.Host{})
	reg, err := hostfuncs.NewRegistry(hostfuncs.WithBundle(hostfuncs.HTTPHandlerBundle(h)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	guest := wasm.NewHostWithCaller(failingOn(wireformat.OpHeadersEntries, errors.New("link down"), func(payload []byte) ([]byte, error) {
		return reg.Invoke(context.Background(), hostfuncs.WasiHTTPFunction, payload)
	}), wasm.WithLogger(logger))

	hs := guest.NewHeaders()
	assert.Nil(t, hs.Entries())
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "link down")
	assert.Contains(t, buf.String(), "op=headers.entries")
	hs.Drop()
	assert.Zero(t, h.Live())
}

func mustRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}
