// Package host runs WASM guest commands against a host function registry.
//
// It wraps the wazero runtime: WASI preview1 is instantiated for the guest's
// stdio, clocks and exit code, and the registry is exported as the "sdf_http"
// host module together with the log_message import the guest log handler
// writes to. A guest built with the sdf-http client performs its HTTP exchanges
// through the wasi_http function of that module.
package host
