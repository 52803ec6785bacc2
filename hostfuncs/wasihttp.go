package hostfuncs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/reglet-dev/sdf-http/domain/ports"
	"github.com/reglet-dev/sdf-http/wireformat"
)

// errUnknownHandle is reported for a handle id that is not in the table, either
// because it never existed or because ownership moved to the host.
var errUnknownHandle = errors.New("unknown handle")

// HTTPHandler serves the wasi_http host function. Guests refer to capability
// handles by number; the handler keeps the table from numbers to the ports.Host
// values they stand for.
//
// Every scope (see WithScope) has a table of its own, so one guest cannot
// address another guest's handles, and ReleaseScope drops whatever a guest left
// behind.
//
// Ownership transfers follow the capability: request.new takes the headers,
// handler.handle takes the request and outgoing_body.finish takes the body, so
// those ids leave the table.
type HTTPHandler struct {
	host   ports.Host
	tables map[string]*handleTable
	mu     sync.Mutex
}

type handleTable struct {
	handles map[uint32]ports.Resource
	next    uint32
}

// NewHTTPHandler creates a handler with no live handles.
func NewHTTPHandler(host ports.Host) *HTTPHandler {
	return &HTTPHandler{host: host, tables: make(map[string]*handleTable)}
}

// ByteHandler returns the JSON entry point registered as wasi_http.
func (h *HTTPHandler) ByteHandler() ByteHandler {
	return NewJSONHandler(h.Call)
}

// Live returns the number of handles guests have not released, over all scopes.
func (h *HTTPHandler) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, t := range h.tables {
		n += len(t.handles)
	}
	return n
}

// ReleaseScope drops every handle left in scope's table and forgets the table.
// It returns the number of handles dropped.
func (h *HTTPHandler) ReleaseScope(scope string) int {
	h.mu.Lock()
	t := h.tables[scope]
	delete(h.tables, scope)
	h.mu.Unlock()

	if t == nil {
		return 0
	}
	for _, r := range t.handles {
		r.Drop()
	}
	return len(t.handles)
}

// Close drops every live handle.
func (h *HTTPHandler) Close() {
	h.mu.Lock()
	tables := h.tables
	h.tables = make(map[string]*handleTable)
	h.mu.Unlock()

	for _, t := range tables {
		for _, r := range t.handles {
			r.Drop()
		}
	}
}

// Call applies one wire call in the scope carried by ctx. A failed call is
// reported in ResultWire.Error.
func (h *HTTPHandler) Call(ctx context.Context, call wireformat.CallWire) wireformat.ResultWire {
	AddLogAttrs(ctx, "op", string(call.Op), "handle", call.Handle)

	res, err := h.apply(scoped{h: h, scope: ScopeFromContext(ctx)}, call)
	if err != nil {
		res.Error = wireformat.EncodeError(err)
		AddLogAttrs(ctx, "error_type", res.Error.Type)
	}
	return res
}

// scoped is the view of the handler's tables for one scope.
type scoped struct {
	h     *HTTPHandler
	scope string
}

// table returns the scope's table; the caller holds h.mu.
func (s scoped) table() *handleTable {
	t := s.h.tables[s.scope]
	if t == nil {
		t = &handleTable{handles: make(map[uint32]ports.Resource)}
		s.h.tables[s.scope] = t
	}
	return t
}

func (s scoped) put(r ports.Resource) uint32 {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	t := s.table()
	t.next++
	for t.next == 0 || t.handles[t.next] != nil {
		t.next++
	}
	t.handles[t.next] = r
	return t.next
}

// entry returns the resource behind id; the caller holds h.mu.
func (s scoped) entry(id uint32) ports.Resource {
	if t := s.h.tables[s.scope]; t != nil {
		return t.handles[id]
	}
	return nil
}

func lookup[T ports.Resource](s scoped, id uint32) (T, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	return typed[T](s.entry(id), id)
}

// take removes id from the table and returns it as T. The entry stays when the
// type does not match.
func take[T ports.Resource](s scoped, id uint32) (T, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	v, err := typed[T](s.entry(id), id)
	if err == nil {
		delete(s.h.tables[s.scope].handles, id)
	}
	return v, err
}

func typed[T ports.Resource](r ports.Resource, id uint32) (T, error) {
	var zero T
	if r == nil {
		return zero, &wireformat.ErrorDetail{Type: wireformat.TypeHandle, Message: fmt.Sprintf("%v %d", errUnknownHandle, id)}
	}
	v, ok := r.(T)
	if !ok {
		return zero, &wireformat.ErrorDetail{Type: wireformat.TypeHandle, Message: fmt.Sprintf("handle %d is a %T, not a %T", id, r, (*T)(nil))}
	}
	return v, nil
}

func (h *HTTPHandler) apply(s scoped, c wireformat.CallWire) (wireformat.ResultWire, error) {
	var res wireformat.ResultWire

	switch c.Op {
	case wireformat.OpHeadersNew:
		res.Handle = s.put(h.host.NewHeaders())

	case wireformat.OpHeadersSet:
		hs, err := lookup[ports.Headers](s, c.Handle)
		if err != nil {
			return res, err
		}
		return res, hs.Set(c.Key, c.Values)

	case wireformat.OpHeadersEntries:
		hs, err := lookup[ports.Headers](s, c.Handle)
		if err != nil {
			return res, err
		}
		res.Entries = wireformat.EntriesToWire(hs.Entries())

	case wireformat.OpRequestNew:
		hs, err := take[ports.Headers](s, c.Handle)
		if err != nil {
			return res, err
		}
		res.Handle = s.put(h.host.NewOutgoingRequest(hs))

	case wireformat.OpRequestSetMethod:
		req, err := lookup[ports.OutgoingRequest](s, c.Handle)
		if err != nil {
			return res, err
		}
		m, err := c.Method.ToMethod()
		if err != nil {
			return res, fmt.Errorf("%w: %v", ports.ErrInvalidValue, err)
		}
		return res, req.SetMethod(m)

	case wireformat.OpRequestSetScheme:
		req, err := lookup[ports.OutgoingRequest](s, c.Handle)
		if err != nil {
			return res, err
		}
		s, err := wireformat.ParseScheme(c.Scheme)
		if err != nil {
			return res, fmt.Errorf("%w: %v", ports.ErrInvalidValue, err)
		}
		return res, req.SetScheme(s)

	case wireformat.OpRequestSetAuthority:
		req, err := lookup[ports.OutgoingRequest](s, c.Handle)
		if err != nil {
			return res, err
		}
		return res, req.SetAuthority(c.Value)

	case wireformat.OpRequestSetPath:
		req, err := lookup[ports.OutgoingRequest](s, c.Handle)
		if err != nil {
			return res, err
		}
		return res, req.SetPathWithQuery(c.Value)

	case wireformat.OpRequestBody:
		req, err := lookup[ports.OutgoingRequest](s, c.Handle)
		if err != nil {
			return res, err
		}
		body, err := req.Body()
		if err != nil {
			return res, err
		}
		res.Handle = s.put(body)

	case wireformat.OpOutgoingBodyWrite:
		body, err := lookup[ports.OutgoingBody](s, c.Handle)
		if err != nil {
			return res, err
		}
		stream, err := body.Write()
		if err != nil {
			return res, err
		}
		res.Handle = s.put(stream)

	case wireformat.OpOutgoingBodyFinish:
		body, err := take[ports.OutgoingBody](s, c.Handle)
		if err != nil {
			return res, err
		}
		return res, body.Finish()

	case wireformat.OpOutputWrite:
		stream, err := lookup[ports.OutputStream](s, c.Handle)
		if err != nil {
			return res, err
		}
		return res, stream.Write(c.Data)

	case wireformat.OpHandle:
		req, err := take[ports.OutgoingRequest](s, c.Handle)
		if err != nil {
			return res, err
		}
		fut, err := h.host.Handle(req)
		if err != nil {
			return res, err
		}
		res.Handle = s.put(fut)

	case wireformat.OpFutureGet:
		fut, err := lookup[ports.FutureIncomingResponse](s, c.Handle)
		if err != nil {
			return res, err
		}
		outcome, ready, err := fut.Get()
		if err != nil || !ready {
			res.Ready = ready
			return res, err
		}
		res.Ready = true
		if outcome.Failure != nil {
			res.Failure = wireformat.EncodeError(outcome.Failure)
			return res, nil
		}
		if outcome.Response != nil {
			res.Handle = s.put(outcome.Response)
		}

	case wireformat.OpFutureSubscribe:
		fut, err := lookup[ports.FutureIncomingResponse](s, c.Handle)
		if err != nil {
			return res, err
		}
		res.Handle = s.put(fut.Subscribe())

	case wireformat.OpResponseStatus:
		resp, err := lookup[ports.IncomingResponse](s, c.Handle)
		if err != nil {
			return res, err
		}
		res.Status = resp.Status()

	case wireformat.OpResponseHeaders:
		resp, err := lookup[ports.IncomingResponse](s, c.Handle)
		if err != nil {
			return res, err
		}
		res.Handle = s.put(resp.Headers())

	case wireformat.OpResponseConsume:
		resp, err := lookup[ports.IncomingResponse](s, c.Handle)
		if err != nil {
			return res, err
		}
		body, err := resp.Consume()
		if err != nil {
			return res, err
		}
		res.Handle = s.put(body)

	case wireformat.OpIncomingBodyStream:
		body, err := lookup[ports.IncomingBody](s, c.Handle)
		if err != nil {
			return res, err
		}
		stream, err := body.Stream()
		if err != nil {
			return res, err
		}
		res.Handle = s.put(stream)

	case wireformat.OpInputRead:
		stream, err := lookup[ports.InputStream](s, c.Handle)
		if err != nil {
			return res, err
		}
		res.Data, err = stream.Read(min(c.MaxBytes, DefaultMaxReadSize))
		return res, err

	case wireformat.OpInputSubscribe:
		stream, err := lookup[ports.InputStream](s, c.Handle)
		if err != nil {
			return res, err
		}
		res.Handle = s.put(stream.Subscribe())

	case wireformat.OpPollBlock:
		p, err := lookup[ports.Pollable](s, c.Handle)
		if err != nil {
			return res, err
		}
		// The table lock is not held here; other calls proceed while this one waits.
		p.Block()

	case wireformat.OpDrop:
		r, err := take[ports.Resource](s, c.Handle)
		if err != nil {
			return res, err
		}
		r.Drop()

	default:
		return res, &wireformat.ErrorDetail{Type: wireformat.TypeValidation, Message: fmt.Sprintf("unknown op %q", c.Op)}
	}

	return res, nil
}
