//go:build wasip1

package log

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/reglet-dev/sdf-http/internal/abi"
)

// The host function that receives serialized records. It is registered next
// to wasi_http under the sdf_http module.
//
//go:wasmimport sdf_http log_message
//nolint:revive // intentional snake_case to match WASM import convention
func host_log_message(messagePacked uint64)

func defaultSink() Sink {
	return func(_ context.Context, msg LogMessageWire) {
		data, err := json.Marshal(msg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log: failed to marshal record for host: %v, original: %s\n", err, msg.Message)
			return
		}
		packed := abi.PtrFromBytes(data)
		host_log_message(packed)
		abi.DeallocatePacked(packed)
	}
}

// init routes the default slog logger of a guest to the host.
func init() {
	slog.SetDefault(slog.New(NewHandler()))
}
