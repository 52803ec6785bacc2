// Package wireformat defines the JSON messages exchanged between a WASM guest and
// the host for the wasi_http host function. Every guest call carries one CallWire
// and receives one ResultWire. These types are the ABI contract and must stay
// backward compatible.
package wireformat

import (
	"fmt"
	"time"

	"github.com/reglet-dev/sdf-http/domain/ports"
)

// Op names one operation on a host handle.
type Op string

const (
	OpHeadersNew     Op = "headers.new"
	OpHeadersSet     Op = "headers.set"
	OpHeadersEntries Op = "headers.entries"

	OpRequestNew          Op = "request.new"
	OpRequestSetMethod    Op = "request.set_method"
	OpRequestSetScheme    Op = "request.set_scheme"
	OpRequestSetAuthority Op = "request.set_authority"
	OpRequestSetPath      Op = "request.set_path_with_query"
	OpRequestBody         Op = "request.body"

	OpOutgoingBodyWrite  Op = "outgoing_body.write"
	OpOutgoingBodyFinish Op = "outgoing_body.finish"
	OpOutputWrite        Op = "output_stream.write"

	OpHandle Op = "handler.handle"

	OpFutureGet       Op = "future.get"
	OpFutureSubscribe Op = "future.subscribe"

	OpResponseStatus  Op = "response.status"
	OpResponseHeaders Op = "response.headers"
	OpResponseConsume Op = "response.consume"

	OpIncomingBodyStream Op = "incoming_body.stream"
	OpInputRead          Op = "input_stream.read"
	OpInputSubscribe     Op = "input_stream.subscribe"

	OpPollBlock Op = "pollable.block"
	OpDrop      Op = "drop"
)

// ContextWireFormat is the JSON wire format for context.Context propagation.
type ContextWireFormat struct {
	Deadline  *time.Time `json:"deadline,omitempty"`
	TimeoutMs int64      `json:"timeout_ms,omitempty"`
	Canceled  bool       `json:"canceled,omitempty"`
}

// CallWire is one guest call. Handle names the receiver; which of the remaining
// fields are read depends on Op.
type CallWire struct {
	Method   *MethodWire  `json:"method,omitempty"`
	Value    *string      `json:"value,omitempty" jsonschema:"description=authority or path-with-query; absent clears it"`
	Op       Op           `json:"op" jsonschema:"enum=headers.new,enum=headers.set,enum=headers.entries,enum=request.new,enum=request.set_method,enum=request.set_scheme,enum=request.set_authority,enum=request.set_path_with_query,enum=request.body,enum=outgoing_body.write,enum=outgoing_body.finish,enum=output_stream.write,enum=handler.handle,enum=future.get,enum=future.subscribe,enum=response.status,enum=response.headers,enum=response.consume,enum=incoming_body.stream,enum=input_stream.read,enum=input_stream.subscribe,enum=pollable.block,enum=drop"`
	Key      string       `json:"key,omitempty"`
	Scheme   string       `json:"scheme,omitempty" jsonschema:"enum=http,enum=https"`
	Values   [][]byte     `json:"values,omitempty"`
	Data     []byte       `json:"data,omitempty"`
	MaxBytes uint64       `json:"max_bytes,omitempty"`
	Handle   uint32       `json:"handle,omitempty"`
}

// ResultWire is the host's answer to a CallWire. Error reports a failed call;
// Failure is the transport outcome of a ready future.get and is not a call error.
type ResultWire struct {
	Error   *ErrorDetail      `json:"error,omitempty"`
	Failure *ErrorDetail      `json:"failure,omitempty"`
	Entries []HeaderEntryWire `json:"entries,omitempty"`
	Data    []byte            `json:"data,omitempty"`
	Handle  uint32            `json:"handle,omitempty"`
	Status  uint16            `json:"status,omitempty"`
	Ready   bool              `json:"ready,omitempty"`
}

// HeaderEntryWire is one header key with all of its values.
type HeaderEntryWire struct {
	Key    string   `json:"key"`
	Values [][]byte `json:"values"`
}

// MethodWire carries a request method. Name is the lowercase standard method or
// "other", in which case Other holds the verbatim token.
type MethodWire struct {
	Name  string `json:"name" jsonschema:"enum=get,enum=head,enum=post,enum=put,enum=delete,enum=connect,enum=options,enum=trace,enum=patch,enum=other"`
	Other string `json:"other,omitempty"`
}

var methodWireNames = map[ports.MethodKind]string{
	ports.MethodGet:     "get",
	ports.MethodHead:    "head",
	ports.MethodPost:    "post",
	ports.MethodPut:     "put",
	ports.MethodDelete:  "delete",
	ports.MethodConnect: "connect",
	ports.MethodOptions: "options",
	ports.MethodTrace:   "trace",
	ports.MethodPatch:   "patch",
	ports.MethodOther:   "other",
}

// MethodToWire encodes m.
func MethodToWire(m ports.Method) *MethodWire {
	w := &MethodWire{Name: methodWireNames[m.Kind]}
	if m.Kind == ports.MethodOther {
		w.Other = m.Other
	}
	return w
}

// ToMethod decodes w. A missing or unknown name is an error.
func (w *MethodWire) ToMethod() (ports.Method, error) {
	if w == nil {
		return ports.Method{}, fmt.Errorf("wireformat: method is required")
	}
	for kind, name := range methodWireNames {
		if name == w.Name {
			m := ports.Method{Kind: kind}
			if kind == ports.MethodOther {
				m.Other = w.Other
			}
			return m, nil
		}
	}
	return ports.Method{}, fmt.Errorf("wireformat: unknown method %q", w.Name)
}

// ParseScheme decodes a scheme name written by Scheme.String.
func ParseScheme(s string) (ports.Scheme, error) {
	switch s {
	case "http":
		return ports.SchemeHTTP, nil
	case "https":
		return ports.SchemeHTTPS, nil
	}
	return ports.SchemeHTTP, fmt.Errorf("wireformat: unknown scheme %q", s)
}

// EntriesToWire converts host header entries to their wire form.
func EntriesToWire(entries []ports.HeaderEntry) []HeaderEntryWire {
	if len(entries) == 0 {
		return nil
	}
	out := make([]HeaderEntryWire, len(entries))
	for i, e := range entries {
		out[i] = HeaderEntryWire{Key: e.Key, Values: e.Values}
	}
	return out
}

// EntriesFromWire is the inverse of EntriesToWire. A key sent without values
// decodes to an empty, non-nil list.
func EntriesFromWire(entries []HeaderEntryWire) []ports.HeaderEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]ports.HeaderEntry, len(entries))
	for i, e := range entries {
		values := e.Values
		if values == nil {
			values = [][]byte{}
		}
		out[i] = ports.HeaderEntry{Key: e.Key, Values: values}
	}
	return out
}
