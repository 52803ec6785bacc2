// Package wazero registers host function registries with the wazero runtime.
//
// Guests link their imports from one host module (default "sdf_http"). Every
// registry function is exported with the packed i64 calling convention: the
// argument is the pointer and length of a JSON request in guest memory, and the
// result is the pointer and length of the JSON response, written into memory the
// host obtains from the guest's "allocate" export.
//
// # Basic Usage
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithBundle(hostfuncs.HTTPBundle(host)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	runtime := wazero.NewRuntime(ctx)
//	err = wazero.RegisterWithRuntime(ctx, runtime, registry,
//	    wazero.WithCustomHandler(wazero.LogHandler(logger)),
//	)
//
// # Custom Handlers
//
// Functions that don't fit the request/response pattern, such as log_message
// which returns nothing, are registered with WithCustomHandler.
package wazero
