package schema

import (
	sdklog "github.com/reglet-dev/sdf-http/log"
	"github.com/reglet-dev/sdf-http/wireformat"
)

// WireEnvelope groups the messages a guest exchanges with the sdf_http host
// module, so that one schema documents the whole ABI.
type WireEnvelope struct {
	Call   wireformat.CallWire   `json:"call" jsonschema:"description=payload of one wasi_http call"`
	Result wireformat.ResultWire `json:"result" jsonschema:"description=answer to a wasi_http call"`
	Log    sdklog.LogMessageWire `json:"log" jsonschema:"description=payload of one log_message call"`
}

// WireSchema returns the JSON schema of WireEnvelope.
func WireSchema() ([]byte, error) {
	return GenerateSchema(WireEnvelope{})
}
