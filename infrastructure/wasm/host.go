package wasm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	sdkerrors "github.com/reglet-dev/sdf-http/domain/errors"
	"github.com/reglet-dev/sdf-http/domain/ports"
	"github.com/reglet-dev/sdf-http/wireformat"
)

// Caller delivers one JSON-encoded CallWire to the host and returns the
// JSON-encoded answer.
type Caller func(payload []byte) ([]byte, error)

// Host is a ports.Host whose handles live on the other side of a Caller.
type Host struct {
	caller Caller
	logger *slog.Logger
}

// Compile-time interface compliance check
var _ ports.Host = (*Host)(nil)

// NewHostWithCaller creates a Host that sends every call through caller.
func NewHostWithCaller(caller Caller, opts ...Option) *Host {
	cfg := newHostConfig(opts)
	return &Host{caller: caller, logger: cfg.logger}
}

// call performs one round trip. Call-level failures come back as the host
// capability errors they encode.
func (h *Host) call(c wireformat.CallWire) (wireformat.ResultWire, error) {
	var res wireformat.ResultWire

	payload, err := json.Marshal(c)
	if err != nil {
		return res, &sdkerrors.WireFormatError{Operation: "encode", Type: string(c.Op), Err: err}
	}
	raw, err := h.caller(payload)
	if err != nil {
		return res, fmt.Errorf("wasm: %s call: %w", c.Op, err)
	}
	if len(raw) == 0 {
		return res, fmt.Errorf("wasm: %s call: empty response from host", c.Op)
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return res, &sdkerrors.WireFormatError{Operation: "decode", Type: string(c.Op), Err: err}
	}
	if res.Error != nil {
		return res, wireformat.DecodeError(res.Error)
	}
	return res, nil
}

// lost logs a failure that the port signature of op cannot return.
func (h *Host) lost(op wireformat.Op, id uint32, err error) {
	if err != nil {
		h.logger.Warn("wasm: host call failed", "op", string(op), "handle", id, "error", err)
	}
}

// handle is the common part of every proxy. gone is set once the handle was
// dropped or its ownership moved to the host.
type handle struct {
	host *Host
	id   uint32
	gone atomic.Bool
}

func (p *handle) Drop() {
	if p.id == 0 || p.gone.Swap(true) {
		return
	}
	_, err := p.host.call(wireformat.CallWire{Op: wireformat.OpDrop, Handle: p.id})
	p.host.lost(wireformat.OpDrop, p.id, err)
}

func (p *handle) release() {
	p.gone.Store(true)
}

func (p *handle) do(op wireformat.Op, c wireformat.CallWire) (wireformat.ResultWire, error) {
	c.Op = op
	c.Handle = p.id
	return p.host.call(c)
}

// NewHeaders implements ports.Host. If the host cannot be reached the returned
// collection has no id and every later call on it fails.
func (h *Host) NewHeaders() ports.Headers {
	res, err := h.call(wireformat.CallWire{Op: wireformat.OpHeadersNew})
	h.lost(wireformat.OpHeadersNew, 0, err)
	return &headers{handle: handle{host: h, id: res.Handle}}
}

// NewOutgoingRequest implements ports.Host. The headers move to the request.
func (h *Host) NewOutgoingRequest(hs ports.Headers) ports.OutgoingRequest {
	var id uint32
	if p, ok := hs.(*headers); ok {
		p.release()
		id = p.id
	}
	res, err := h.call(wireformat.CallWire{Op: wireformat.OpRequestNew, Handle: id})
	h.lost(wireformat.OpRequestNew, id, err)
	return &outgoingRequest{handle: handle{host: h, id: res.Handle}}
}

// Handle implements ports.Host. The request moves to the host even on error.
func (h *Host) Handle(req ports.OutgoingRequest) (ports.FutureIncomingResponse, error) {
	p, ok := req.(*outgoingRequest)
	if !ok {
		return nil, &ports.TransportError{Code: "internal-error", Message: fmt.Sprintf("foreign request %T", req)}
	}
	p.release()
	res, err := h.call(wireformat.CallWire{Op: wireformat.OpHandle, Handle: p.id})
	if err != nil {
		return nil, err
	}
	return &future{handle: handle{host: h, id: res.Handle}}, nil
}

type headers struct{ handle }

func (p *headers) Set(key string, values [][]byte) error {
	_, err := p.do(wireformat.OpHeadersSet, wireformat.CallWire{Key: key, Values: values})
	return err
}

func (p *headers) Entries() []ports.HeaderEntry {
	res, err := p.do(wireformat.OpHeadersEntries, wireformat.CallWire{})
	if err != nil {
		p.host.lost(wireformat.OpHeadersEntries, p.id, err)
		return nil
	}
	return wireformat.EntriesFromWire(res.Entries)
}

type outgoingRequest struct{ handle }

func (p *outgoingRequest) SetMethod(m ports.Method) error {
	_, err := p.do(wireformat.OpRequestSetMethod, wireformat.CallWire{Method: wireformat.MethodToWire(m)})
	return err
}

func (p *outgoingRequest) SetScheme(s ports.Scheme) error {
	_, err := p.do(wireformat.OpRequestSetScheme, wireformat.CallWire{Scheme: s.String()})
	return err
}

func (p *outgoingRequest) SetAuthority(authority *string) error {
	_, err := p.do(wireformat.OpRequestSetAuthority, wireformat.CallWire{Value: authority})
	return err
}

func (p *outgoingRequest) SetPathWithQuery(pathWithQuery *string) error {
	_, err := p.do(wireformat.OpRequestSetPath, wireformat.CallWire{Value: pathWithQuery})
	return err
}

func (p *outgoingRequest) Body() (ports.OutgoingBody, error) {
	res, err := p.do(wireformat.OpRequestBody, wireformat.CallWire{})
	if err != nil {
		return nil, err
	}
	return &outgoingBody{handle: handle{host: p.host, id: res.Handle}}, nil
}

type outgoingBody struct{ handle }

func (p *outgoingBody) Write() (ports.OutputStream, error) {
	res, err := p.do(wireformat.OpOutgoingBodyWrite, wireformat.CallWire{})
	if err != nil {
		return nil, err
	}
	return &outputStream{handle: handle{host: p.host, id: res.Handle}}, nil
}

// Finish consumes the body, so its id is released whatever the outcome.
func (p *outgoingBody) Finish() error {
	p.release()
	_, err := p.do(wireformat.OpOutgoingBodyFinish, wireformat.CallWire{})
	return err
}

type outputStream struct{ handle }

func (p *outputStream) Write(b []byte) error {
	_, err := p.do(wireformat.OpOutputWrite, wireformat.CallWire{Data: b})
	return err
}

type future struct{ handle }

func (p *future) Get() (ports.IncomingOutcome, bool, error) {
	res, err := p.do(wireformat.OpFutureGet, wireformat.CallWire{})
	if err != nil || !res.Ready {
		return ports.IncomingOutcome{}, res.Ready, err
	}
	if res.Failure != nil {
		failure, ok := wireformat.DecodeError(res.Failure).(*ports.TransportError)
		if !ok {
			failure = &ports.TransportError{Code: "internal-error", Message: res.Failure.Error()}
		}
		return ports.IncomingOutcome{Failure: failure}, true, nil
	}
	if res.Handle == 0 {
		return ports.IncomingOutcome{}, true, nil
	}
	return ports.IncomingOutcome{Response: &incomingResponse{handle: handle{host: p.host, id: res.Handle}}}, true, nil
}

func (p *future) Subscribe() ports.Pollable {
	res, err := p.do(wireformat.OpFutureSubscribe, wireformat.CallWire{})
	p.host.lost(wireformat.OpFutureSubscribe, p.id, err)
	return &pollable{handle: handle{host: p.host, id: res.Handle}}
}

type incomingResponse struct{ handle }

// Status returns 0 when the host cannot be reached, which no caller accepts as
// a valid status.
func (p *incomingResponse) Status() uint16 {
	res, err := p.do(wireformat.OpResponseStatus, wireformat.CallWire{})
	p.host.lost(wireformat.OpResponseStatus, p.id, err)
	return res.Status
}

func (p *incomingResponse) Headers() ports.Headers {
	res, err := p.do(wireformat.OpResponseHeaders, wireformat.CallWire{})
	p.host.lost(wireformat.OpResponseHeaders, p.id, err)
	return &headers{handle: handle{host: p.host, id: res.Handle}}
}

func (p *incomingResponse) Consume() (ports.IncomingBody, error) {
	res, err := p.do(wireformat.OpResponseConsume, wireformat.CallWire{})
	if err != nil {
		return nil, err
	}
	return &incomingBody{handle: handle{host: p.host, id: res.Handle}}, nil
}

type incomingBody struct{ handle }

func (p *incomingBody) Stream() (ports.InputStream, error) {
	res, err := p.do(wireformat.OpIncomingBodyStream, wireformat.CallWire{})
	if err != nil {
		return nil, err
	}
	return &inputStream{handle: handle{host: p.host, id: res.Handle}}, nil
}

type inputStream struct{ handle }

func (p *inputStream) Read(maxBytes uint64) ([]byte, error) {
	res, err := p.do(wireformat.OpInputRead, wireformat.CallWire{MaxBytes: maxBytes})
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (p *inputStream) Subscribe() ports.Pollable {
	res, err := p.do(wireformat.OpInputSubscribe, wireformat.CallWire{})
	p.host.lost(wireformat.OpInputSubscribe, p.id, err)
	return &pollable{handle: handle{host: p.host, id: res.Handle}}
}

type pollable struct{ handle }

// Block returns early if the host rejects the call; the caller's next poll then
// sees that nothing became ready.
func (p *pollable) Block() {
	_, err := p.do(wireformat.OpPollBlock, wireformat.CallWire{})
	p.host.lost(wireformat.OpPollBlock, p.id, err)
}
