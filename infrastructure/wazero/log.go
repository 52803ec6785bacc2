package wazero

import (
	"context"
	"encoding/json"
	"log/slog"

	sdklog "github.com/reglet-dev/sdf-http/log"
	"github.com/tetratelabs/wazero/api"
)

// LogFunction is the name of the guest log import.
const LogFunction = "log_message"

// LogHandler returns the log_message import. Each call carries a packed
// pointer to a JSON LogMessageWire, which is re-emitted through logger with a
// guest attribute. Malformed records are dropped.
func LogHandler(logger *slog.Logger) CustomHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return CustomHandler{
		Name: LogFunction,
		Handler: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			ptr, length := unpackPtrLen(stack[0])
			data, ok := mod.Memory().Read(ptr, length)
			if !ok {
				return
			}
			emitLog(ctx, logger, GuestName(ctx, mod), data)
		}),
		ParamTypes:  []api.ValueType{api.ValueTypeI64},
		ResultTypes: []api.ValueType{},
	}
}

func emitLog(ctx context.Context, logger *slog.Logger, guest string, data []byte) {
	var msg sdklog.LogMessageWire
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.DebugContext(ctx, "wazero: dropping malformed guest log record", "guest", guest, "error", err)
		return
	}

	rec := msg.Record()
	if !logger.Enabled(ctx, rec.Level) {
		return
	}
	rec.AddAttrs(slog.String("guest", guest))
	_ = logger.Handler().Handle(ctx, rec)
}
