package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/reglet-dev/sdf-http/internal/demo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoServer(t *testing.T) string {
	t.Helper()
	svc, err := demo.New(demo.DefaultToken, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRun(t *testing.T) {
	base := demoServer(t)

	tests := []struct {
		name     string
		wantOut  string
		args     []string
		wantCode int
	}{
		{
			name:    "get",
			args:    []string{base + "/hello/cli"},
			wantOut: "hello-cli",
		},
		{
			name:    "post with bearer",
			args:    []string{"-X", "post", "-H", "Authorization: Bearer 123", "-H", "Content-Type: application/json", "-d", `{"name":"cli"}`, base + "/create"},
			wantOut: `{"code":0,"message":"cli"}`,
		},
		{
			name:     "unauthorized exits non-zero",
			args:     []string{"-X", "POST", "-d", `{"name":"cli"}`, base + "/create"},
			wantCode: 22,
		},
		{
			name:     "missing url",
			args:     []string{"-X", "GET"},
			wantCode: 2,
		},
		{
			name:     "bad header flag",
			args:     []string{"-H", "no-colon", base},
			wantCode: 2,
		},
		{
			name:     "unsupported scheme",
			args:     []string{"ftp://example.com/"},
			wantCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			assert.Equal(t, tt.wantCode, code, stderr.String())
			if tt.wantOut != "" {
				assert.Equal(t, tt.wantOut, stdout.String())
			}
		})
	}
}

func TestRun_IncludeHeaders(t *testing.T) {
	base := demoServer(t)

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"-i", base + "/hello/x"}, &stdout, &stderr), stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "HTTP/1.1 200 OK\n")
	assert.Contains(t, out, "Content-Type: text/plain")
	assert.Contains(t, out, "hello-x")
}

func TestHeaderFlags(t *testing.T) {
	var h headerFlags
	require.NoError(t, h.Set("X-A: 1"))
	require.NoError(t, h.Set("x-a:2"))
	assert.Error(t, h.Set("bad"))

	assert.Equal(t, []string{"1", "2"}, h.header().Values("X-A"))
	assert.Equal(t, "X-A: 1, x-a:2", h.String())
}
