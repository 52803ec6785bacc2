// Package hosttest provides a scripted in-memory implementation of the host
// transport capability for tests. Every handle it hands out is tracked so tests
// can assert that nothing was leaked.
package hosttest

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/reglet-dev/sdf-http/domain/ports"
)

// Host is a programmable ports.Host. Zero values mean "succeed".
type Host struct {
	// HeaderRejects maps a header key to the HeaderError code returned by Set.
	HeaderRejects map[string]string

	// SetterErrors makes a setter fail; keys are "method", "scheme", "authority", "path".
	SetterErrors map[string]error

	BodyErr        error // OutgoingRequest.Body
	WriteErr       error // OutgoingBody.Write
	StreamWriteErr error // OutputStream.Write
	FinishErr      error // OutgoingBody.Finish

	// DispatchErr makes Handle fail before any I/O.
	DispatchErr *ports.TransportError

	// Future scripts the completion handle. Nil means ready on first poll with Response.
	Future *Future

	// Response is what a successful exchange returns.
	Response *Response

	// Requests records every request passed to Handle.
	Requests []*Request

	mu   sync.Mutex
	live map[string]int
	seq  int
}

// Request is the recorded state of an outgoing request.
type Request struct {
	Authority *string
	Path      *string
	Headers   []ports.HeaderEntry
	Body      bytes.Buffer
	Method    ports.Method
	Scheme    ports.Scheme
	Finished  bool
}

// Future scripts FutureIncomingResponse.Get.
type Future struct {
	// Pending is the number of polls that report "not ready" before the outcome is
	// available. Blocking on the notifier clears it.
	Pending int

	// NeverReady keeps Get pending even after the notifier fired.
	NeverReady bool

	// AlwaysTaken makes every ready poll report ErrAlreadyTaken.
	AlwaysTaken bool

	// Failure makes the exchange fail at the transport layer.
	Failure *ports.TransportError

	// GetErr is returned by every ready poll, as a host whose link to the
	// future broke would.
	GetErr error

	Polls  int
	Blocks int
	taken  bool
}

// Read is one scripted InputStream.Read result.
type Read struct {
	Err  error
	Data []byte
}

// Response scripts an IncomingResponse.
type Response struct {
	ConsumeErr error
	StreamErr  error
	Entries    []ports.HeaderEntry
	// Reads are returned in order; once exhausted the stream reports ErrStreamClosed.
	Reads  []Read
	Status uint16

	// Recorded by the stream.
	ReadCalls  int
	MaxBytes   []uint64
	Subscribes int
	Blocks     int
}

// Leaked returns the kinds of handles that were created but never released or
// handed back to the host, sorted.
func (h *Host) Leaked() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []string
	for name, n := range h.live {
		for i := 0; i < n; i++ {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (h *Host) acquire(kind string) *handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.live == nil {
		h.live = make(map[string]int)
	}
	h.live[kind]++
	h.seq++
	return &handle{host: h, kind: kind, id: h.seq}
}

// handle tracks the release of a single resource.
type handle struct {
	host     *Host
	kind     string
	id       int
	released bool
}

func (r *handle) Drop() {
	r.release()
}

func (r *handle) release() {
	r.host.mu.Lock()
	defer r.host.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.host.live[r.kind]--
	if r.host.live[r.kind] == 0 {
		delete(r.host.live, r.kind)
	}
}

func (r *handle) String() string {
	return fmt.Sprintf("%s#%d", r.kind, r.id)
}

// NewHeaders implements ports.Host.
func (h *Host) NewHeaders() ports.Headers {
	return &headers{handle: h.acquire("headers"), host: h}
}

// NewOutgoingRequest implements ports.Host.
func (h *Host) NewOutgoingRequest(hs ports.Headers) ports.OutgoingRequest {
	fh := hs.(*headers)
	fh.release()
	return &outgoingRequest{
		handle: h.acquire("outgoing-request"),
		host:   h,
		rec:    &Request{Headers: fh.entries},
	}
}

// Handle implements ports.Host.
func (h *Host) Handle(req ports.OutgoingRequest) (ports.FutureIncomingResponse, error) {
	or := req.(*outgoingRequest)
	or.release()
	h.Requests = append(h.Requests, or.rec)

	if h.DispatchErr != nil {
		return nil, h.DispatchErr
	}

	fut := h.Future
	if fut == nil {
		fut = &Future{}
	}
	return &future{handle: h.acquire("future"), host: h, script: fut}, nil
}

type headers struct {
	*handle
	host    *Host
	entries []ports.HeaderEntry
}

func (hs *headers) Set(key string, values [][]byte) error {
	if code, ok := hs.host.HeaderRejects[key]; ok {
		return &ports.HeaderError{Code: code, Key: key}
	}
	cp := make([][]byte, len(values))
	copy(cp, values)
	for i, e := range hs.entries {
		if e.Key == key {
			hs.entries[i].Values = cp
			return nil
		}
	}
	hs.entries = append(hs.entries, ports.HeaderEntry{Key: key, Values: cp})
	return nil
}

func (hs *headers) Entries() []ports.HeaderEntry {
	return hs.entries
}

type outgoingRequest struct {
	*handle
	host      *Host
	rec       *Request
	bodyTaken bool
}

func (r *outgoingRequest) setterErr(name string) error {
	return r.host.SetterErrors[name]
}

func (r *outgoingRequest) SetMethod(m ports.Method) error {
	if err := r.setterErr("method"); err != nil {
		return err
	}
	r.rec.Method = m
	return nil
}

func (r *outgoingRequest) SetScheme(s ports.Scheme) error {
	if err := r.setterErr("scheme"); err != nil {
		return err
	}
	r.rec.Scheme = s
	return nil
}

func (r *outgoingRequest) SetAuthority(a *string) error {
	if err := r.setterErr("authority"); err != nil {
		return err
	}
	r.rec.Authority = a
	return nil
}

func (r *outgoingRequest) SetPathWithQuery(p *string) error {
	if err := r.setterErr("path"); err != nil {
		return err
	}
	r.rec.Path = p
	return nil
}

func (r *outgoingRequest) Body() (ports.OutgoingBody, error) {
	if r.host.BodyErr != nil {
		return nil, r.host.BodyErr
	}
	if r.bodyTaken {
		return nil, ports.ErrResourceTaken
	}
	r.bodyTaken = true
	return &outgoingBody{handle: r.host.acquire("outgoing-body"), host: r.host, rec: r.rec}, nil
}

type outgoingBody struct {
	*handle
	host        *Host
	rec         *Request
	streamTaken bool
}

func (b *outgoingBody) Write() (ports.OutputStream, error) {
	if b.host.WriteErr != nil {
		return nil, b.host.WriteErr
	}
	if b.streamTaken {
		return nil, ports.ErrResourceTaken
	}
	b.streamTaken = true
	return &outputStream{handle: b.host.acquire("output-stream"), host: b.host, rec: b.rec}, nil
}

func (b *outgoingBody) Finish() error {
	b.release()
	if b.host.FinishErr != nil {
		return b.host.FinishErr
	}
	b.rec.Finished = true
	return nil
}

type outputStream struct {
	*handle
	host *Host
	rec  *Request
}

func (s *outputStream) Write(p []byte) error {
	if s.host.StreamWriteErr != nil {
		return s.host.StreamWriteErr
	}
	s.rec.Body.Write(p)
	return nil
}

type future struct {
	*handle
	host   *Host
	script *Future
}

func (f *future) Get() (ports.IncomingOutcome, bool, error) {
	s := f.script
	s.Polls++
	if s.NeverReady || s.Pending > 0 {
		if s.Pending > 0 {
			s.Pending--
		}
		return ports.IncomingOutcome{}, false, nil
	}
	if s.GetErr != nil {
		return ports.IncomingOutcome{}, false, s.GetErr
	}
	if s.AlwaysTaken || s.taken {
		return ports.IncomingOutcome{}, true, ports.ErrAlreadyTaken
	}
	s.taken = true
	if s.Failure != nil {
		return ports.IncomingOutcome{Failure: s.Failure}, true, nil
	}

	resp := f.host.Response
	if resp == nil {
		resp = &Response{Status: 200}
	}
	return ports.IncomingOutcome{
		Response: &incomingResponse{handle: f.host.acquire("incoming-response"), host: f.host, script: resp},
	}, true, nil
}

func (f *future) Subscribe() ports.Pollable {
	return &pollable{handle: f.host.acquire("pollable"), onBlock: func() {
		f.script.Blocks++
		f.script.Pending = 0
	}}
}

type pollable struct {
	*handle
	onBlock func()
}

func (p *pollable) Block() {
	p.onBlock()
}

type incomingResponse struct {
	*handle
	host     *Host
	script   *Response
	consumed bool
}

func (r *incomingResponse) Status() uint16 {
	return r.script.Status
}

func (r *incomingResponse) Headers() ports.Headers {
	return &headers{handle: r.host.acquire("headers"), host: r.host, entries: r.script.Entries}
}

func (r *incomingResponse) Consume() (ports.IncomingBody, error) {
	if r.script.ConsumeErr != nil {
		return nil, r.script.ConsumeErr
	}
	if r.consumed {
		return nil, ports.ErrResourceTaken
	}
	r.consumed = true
	return &incomingBody{handle: r.host.acquire("incoming-body"), host: r.host, script: r.script}, nil
}

type incomingBody struct {
	*handle
	host   *Host
	script *Response
}

func (b *incomingBody) Stream() (ports.InputStream, error) {
	if b.script.StreamErr != nil {
		return nil, b.script.StreamErr
	}
	return &inputStream{handle: b.host.acquire("input-stream"), host: b.host, script: b.script}, nil
}

type inputStream struct {
	*handle
	host   *Host
	script *Response
	next   int
}

func (s *inputStream) Read(maxBytes uint64) ([]byte, error) {
	s.script.ReadCalls++
	s.script.MaxBytes = append(s.script.MaxBytes, maxBytes)
	if s.next >= len(s.script.Reads) {
		return nil, ports.ErrStreamClosed
	}
	r := s.script.Reads[s.next]
	s.next++
	return r.Data, r.Err
}

func (s *inputStream) Subscribe() ports.Pollable {
	s.script.Subscribes++
	return &pollable{handle: s.host.acquire("pollable"), onBlock: func() {
		s.script.Blocks++
	}}
}
