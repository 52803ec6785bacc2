package native_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reglet-dev/sdf-http/application/transport"
	sdkerrors "github.com/reglet-dev/sdf-http/domain/errors"
	"github.com/reglet-dev/sdf-http/domain/ports"
	"github.com/reglet-dev/sdf-http/infrastructure/native"
	"github.com/reglet-dev/sdf-http/internal/demo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDemoServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := demo.New(demo.DefaultToken, quietLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func newDriver(t *testing.T, hostOpts []native.Option, driverOpts ...transport.Option) *transport.Driver {
	t.Helper()
	host, err := native.New(append([]native.Option{native.WithLogger(quietLogger())}, hostOpts...)...)
	require.NoError(t, err)
	d, err := transport.New(host, append([]transport.Option{transport.WithLogger(quietLogger())}, driverOpts...)...)
	require.NoError(t, err)
	return d
}

func send(t *testing.T, d *transport.Driver, method, url string, header http.Header, body []byte) (*http.Response, string, error) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := d.Send(context.Background(), req, body)
	if err != nil {
		return nil, "", err
	}
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b), nil
}

func TestExchange_DemoScenarios(t *testing.T) {
	srv := newDemoServer(t)
	d := newDriver(t, nil)

	t.Run("greeting", func(t *testing.T) {
		resp, body, err := send(t, d, http.MethodGet, srv.URL+"/hello/alice", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "hello-alice", body)
		assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	})

	t.Run("authorized create", func(t *testing.T) {
		resp, body, err := send(t, d, http.MethodPost, srv.URL+"/create",
			http.Header{"Authorization": {"Bearer 123"}, "Content-Type": {"application/json"}},
			[]byte(`{"name":"bob"}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `{"code":0,"message":"bob"}`, body)
	})

	t.Run("wrong token is relayed", func(t *testing.T) {
		resp, body, err := send(t, d, http.MethodPost, srv.URL+"/create",
			http.Header{"Authorization": {"Bearer wrong"}},
			[]byte(`{"name":"bob"}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, body)
	})

	t.Run("no content", func(t *testing.T) {
		resp, body, err := send(t, d, http.MethodHead, srv.URL+"/hello/alice", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, body)
	})
}

func TestExchange_HeaderMultiplicity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, v := range r.Header.Values("X-Multi") {
			w.Header().Add("X-Echo", v)
		}
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
	}))
	t.Cleanup(srv.Close)

	resp, _, err := send(t, newDriver(t, nil), http.MethodGet, srv.URL, http.Header{"X-Multi": {"one", "two", "three"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two", "three"}, resp.Header.Values("X-Echo"))
	assert.Equal(t, []string{"a=1", "b=2"}, resp.Header.Values("Set-Cookie"))
}

func TestExchange_LargeBodyInSmallChunks(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 64*1024) // 1 MiB
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	d := newDriver(t, []native.Option{native.WithReadBufferSize(4096)}, transport.WithChunkSize(1000))
	_, body, err := send(t, d, http.MethodPut, srv.URL+"/echo", nil, payload)
	require.NoError(t, err)
	assert.Equal(t, string(payload), body)
}

func TestExchange_RedirectIsRelayed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	resp, _, err := send(t, newDriver(t, nil), http.MethodGet, srv.URL+"/start", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/elsewhere", resp.Header.Get("Location"))
}

func transportCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, sdkerrors.ErrTransport), "got %v", err)
	var te *ports.TransportError
	require.True(t, errors.As(err, &te))
	return te.Code
}

func TestExchange_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, _, err = send(t, newDriver(t, nil), http.MethodGet, "http://"+addr+"/", nil, nil)
	assert.Equal(t, "connection-refused", transportCode(t, err))
}

func TestExchange_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	d := newDriver(t, []native.Option{native.WithRequestTimeout(50 * time.Millisecond)})
	_, _, err := send(t, d, http.MethodGet, srv.URL, nil, nil)
	assert.Equal(t, "connection-timeout", transportCode(t, err))
}

func TestExchange_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	t.Cleanup(srv.Close)

	d := newDriver(t, []native.Option{native.WithMaxBodySize(1024), native.WithReadBufferSize(512)})
	_, _, err := send(t, d, http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sdkerrors.ErrBodyRead), "got %v", err)

	var se *ports.StreamError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Message, "exceeds 1024 bytes")
}

func TestExchange_AddressGuard(t *testing.T) {
	srv := newDemoServer(t)

	t.Run("loopback blocked", func(t *testing.T) {
		d := newDriver(t, []native.Option{native.WithAddressGuard(false)})
		_, _, err := send(t, d, http.MethodGet, srv.URL+"/hello/x", nil, nil)
		assert.Equal(t, "destination-IP-prohibited", transportCode(t, err))
	})

	t.Run("private allowed", func(t *testing.T) {
		d := newDriver(t, []native.Option{native.WithAddressGuard(true)})
		_, body, err := send(t, d, http.MethodGet, srv.URL+"/hello/x", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "hello-x", body)
	})

	t.Run("allowlist bypasses rules", func(t *testing.T) {
		d := newDriver(t, []native.Option{native.WithAddressGuard(false, native.GuardAllow("127.0.0.0/8"))})
		_, _, err := send(t, d, http.MethodGet, srv.URL+"/hello/x", nil, nil)
		require.NoError(t, err)
	})

	t.Run("port filter", func(t *testing.T) {
		d := newDriver(t, []native.Option{native.WithAddressGuard(true, native.GuardPorts(1))})
		_, _, err := send(t, d, http.MethodGet, srv.URL+"/hello/x", nil, nil)
		assert.Equal(t, "destination-IP-prohibited", transportCode(t, err))
	})
}

func TestExchange_RateLimited(t *testing.T) {
	srv := newDemoServer(t)
	d := newDriver(t, []native.Option{native.WithRateLimit(1000, 1)})

	for i := 0; i < 3; i++ {
		_, body, err := send(t, d, http.MethodGet, srv.URL+"/hello/r", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "hello-r", body)
	}
}

func TestExchange_Concurrent(t *testing.T) {
	srv := newDemoServer(t)
	d := newDriver(t, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/hello/c", nil)
			resp, err := d.Send(context.Background(), req, nil)
			if err != nil {
				errs <- err
				return
			}
			b, _ := io.ReadAll(resp.Body)
			if string(b) != "hello-c" {
				errs <- errors.New("unexpected body " + string(b))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
