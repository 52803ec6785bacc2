//go:build wasip1

package wasm

import (
	"github.com/reglet-dev/sdf-http/internal/abi"
)

// The host function serving the HTTP capability. It matches the handler
// registered by hostfuncs.HTTPBundle under the sdf_http module.
//
//go:wasmimport sdf_http wasi_http
//nolint:revive // intentional snake_case to match WASM import convention
func host_wasi_http(requestPacked uint64) uint64

// importCaller sends the payload through the wasi_http import. Both the request
// and the response buffers are released before returning.
func importCaller(payload []byte) ([]byte, error) {
	reqPacked := abi.PtrFromBytes(payload)
	defer abi.DeallocatePacked(reqPacked)

	respPacked := host_wasi_http(reqPacked)
	defer abi.DeallocatePacked(respPacked)
	return abi.BytesFromPtr(respPacked), nil
}

// NewHost returns the Host backed by the sdf_http.wasi_http import. It applies
// the guest memory limit to the abi package, which is shared by every Host in
// the module.
func NewHost(opts ...Option) *Host {
	cfg := newHostConfig(opts)
	abi.Configure(abi.WithMaxTotalAllocations(cfg.maxGuestMemory))
	return NewHostWithCaller(importCaller, opts...)
}
