// Package hostfuncs implements the host side of the guest ABI in plain Go.
//
// A HandlerRegistry maps host function names to ByteHandlers that take and return
// JSON. The wasi_http handler keeps a table of live capability handles and applies
// each wireformat.CallWire to a ports.Host, usually the native host. Nothing here
// depends on a WASM runtime; infrastructure/wazero binds a registry to wazero.
package hostfuncs
