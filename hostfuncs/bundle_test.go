package hostfuncs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/reglet-dev/sdf-http/internal/hosttest"
	"github.com/reglet-dev/sdf-http/wireformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBundle(t *testing.T) {
	bundle := HTTPBundle(&hosttest.Host{})
	handlers := bundle.Handlers()

	assert.Len(t, handlers, 1)
	assert.Contains(t, handlers, WasiHTTPFunction)
}

func TestWithBundle(t *testing.T) {
	reg, err := NewRegistry(
		WithBundle(HTTPBundle(&hosttest.Host{})),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{WasiHTTPFunction}, reg.Names())
}

func TestWithBundle_ClosedWithRegistry(t *testing.T) {
	host := &hosttest.Host{}
	h := NewHTTPHandler(host)
	reg, err := NewRegistry(WithBundle(HTTPHandlerBundle(h)))
	require.NoError(t, err)

	payload, err := json.Marshal(wireformat.CallWire{Op: wireformat.OpHeadersNew})
	require.NoError(t, err)
	_, err = reg.Invoke(context.Background(), WasiHTTPFunction, payload)
	require.NoError(t, err)

	assert.Equal(t, 1, h.Live())
	assert.Equal(t, []string{"headers"}, host.Leaked())

	require.NoError(t, reg.Close())
	assert.Zero(t, h.Live())
	assert.Empty(t, host.Leaked())
}

func TestWithHandler_Generic(t *testing.T) {
	type CustomReq struct {
		Input string `json:"input"`
	}
	type CustomResp struct {
		Output string `json:"output"`
	}

	reg, err := NewRegistry(
		WithHandler("custom", func(ctx context.Context, req CustomReq) CustomResp {
			return CustomResp{Output: "processed: " + req.Input}
		}),
	)
	require.NoError(t, err)

	assert.True(t, reg.Has("custom"))

	reqBytes, _ := json.Marshal(CustomReq{Input: "test"})
	respBytes, err := reg.Invoke(context.Background(), "custom", reqBytes)
	require.NoError(t, err)

	var resp CustomResp
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	assert.Equal(t, "processed: test", resp.Output)
}

func TestWithHandler_AndBundle_Combined(t *testing.T) {
	type CustomReq struct {
		Value int `json:"value"`
	}
	type CustomResp struct {
		Doubled int `json:"doubled"`
	}

	reg, err := NewRegistry(
		WithBundle(HTTPBundle(&hosttest.Host{})),
		WithHandler("double", func(ctx context.Context, req CustomReq) CustomResp {
			return CustomResp{Doubled: req.Value * 2}
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"double", WasiHTTPFunction}, reg.Names())

	reqBytes, _ := json.Marshal(CustomReq{Value: 21})
	respBytes, err := reg.Invoke(context.Background(), "double", reqBytes)
	require.NoError(t, err)

	var resp CustomResp
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	assert.Equal(t, 42, resp.Doubled)
}

func TestWithBundle_DuplicateName(t *testing.T) {
	_, err := NewRegistry(
		WithBundle(HTTPBundle(&hosttest.Host{})),
		WithBundle(HTTPBundle(&hosttest.Host{})),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate handler name")
}

func TestWithBundle_ReleaseScope(t *testing.T) {
	host := &hosttest.Host{}
	h := NewHTTPHandler(host)
	reg, err := NewRegistry(WithBundle(HTTPHandlerBundle(h)))
	require.NoError(t, err)

	payload, err := json.Marshal(wireformat.CallWire{Op: wireformat.OpHeadersNew})
	require.NoError(t, err)
	for _, scope := range []string{"guest-1", "guest-1", "guest-2"} {
		_, err = reg.Invoke(WithScope(context.Background(), scope), WasiHTTPFunction, payload)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, reg.ReleaseScope("guest-1"))
	assert.Equal(t, 1, h.Live())
	assert.Equal(t, []string{"headers"}, host.Leaked())

	require.NoError(t, reg.Close())
	assert.Empty(t, host.Leaked())
}
