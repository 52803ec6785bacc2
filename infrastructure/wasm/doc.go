// Package wasm implements the host transport capability inside a WASM guest.
//
// Every handle is a small proxy holding a number from the host's handle table.
// Each method becomes one wireformat.CallWire sent through a Caller; under
// wasip1 the Caller is the sdf_http.wasi_http host import. Outside wasip1 a
// Caller can be any function that reaches a hostfuncs.HTTPHandler, which is how
// the proxy is tested natively.
package wasm
