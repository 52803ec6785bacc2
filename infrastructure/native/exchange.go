package native

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"

	"github.com/reglet-dev/sdf-http/domain/ports"
)

// Handle implements ports.Host. The request is validated synchronously; the
// network exchange runs on a new goroutine and settles the returned future.
func (h *Host) Handle(req ports.OutgoingRequest) (ports.FutureIncomingResponse, error) {
	r, ok := req.(*outgoingRequest)
	if !ok {
		return nil, &ports.TransportError{Code: "internal-error", Message: "foreign request handle"}
	}
	if r.dropped {
		return nil, &ports.TransportError{Code: "internal-error", Message: "request handle already released"}
	}
	r.dropped = true

	target, err := r.url()
	if err != nil {
		return nil, &ports.TransportError{Code: "HTTP-request-URI-invalid", Message: err.Error()}
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if h.cfg.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), h.cfg.RequestTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.method.String(), target, nil)
	if err != nil {
		cancel()
		return nil, &ports.TransportError{Code: "HTTP-request-URI-invalid", Message: err.Error()}
	}
	httpReq.Header = r.header
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}

	f := &future{done: make(chan struct{}), cancel: cancel}
	go h.run(ctx, f, httpReq, r.body)
	return f, nil
}

// run waits for the body to be finished, performs the round trip and settles f.
func (h *Host) run(ctx context.Context, f *future, req *http.Request, body *outgoingBody) {
	logger := h.cfg.log().With("method", req.Method, "url", req.URL.String())

	if body != nil {
		select {
		case <-body.done:
			if payload := body.bytes(); len(payload) > 0 {
				req.ContentLength = int64(len(payload))
				req.GetBody = func() (io.ReadCloser, error) {
					return io.NopCloser(bytes.NewReader(payload)), nil
				}
				req.Body, _ = req.GetBody()
			}
		case <-body.abandoned:
			f.settle(ports.IncomingOutcome{Failure: &ports.TransportError{
				Code: "HTTP-request-body-size", Message: "request body dropped before finish",
			}})
			return
		case <-ctx.Done():
			f.settle(ports.IncomingOutcome{Failure: classify(ctx.Err())})
			return
		}
	}

	if h.cfg.limiter != nil {
		if err := h.cfg.limiter.Wait(ctx); err != nil {
			f.settle(ports.IncomingOutcome{Failure: classify(err)})
			return
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		failure := classify(err)
		logger.DebugContext(ctx, "native host: exchange failed", "code", failure.Code, "error", err)
		f.settle(ports.IncomingOutcome{Failure: failure})
		return
	}

	logger.DebugContext(ctx, "native host: response received", "status", resp.StatusCode)
	f.settle(ports.IncomingOutcome{Response: newIncomingResponse(resp, h.cfg, f.cancel)})
}

type future struct {
	mu      sync.Mutex
	done    chan struct{}
	cancel  context.CancelFunc
	outcome ports.IncomingOutcome
	settled bool
	taken   bool
	dropped bool
}

func (f *future) settle(o ports.IncomingOutcome) {
	f.mu.Lock()
	if f.dropped && o.Response != nil {
		o.Response.Drop()
	}
	f.outcome = o
	f.settled = true
	f.mu.Unlock()
	if o.Failure != nil {
		f.cancel()
	}
	close(f.done)
}

func (f *future) Get() (ports.IncomingOutcome, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.settled {
		return ports.IncomingOutcome{}, false, nil
	}
	if f.taken {
		return ports.IncomingOutcome{}, true, ports.ErrAlreadyTaken
	}
	f.taken = true
	return f.outcome, true, nil
}

func (f *future) Subscribe() ports.Pollable {
	return &pollable{block: func() { <-f.done }}
}

// Drop abandons the exchange unless its response was already handed out; the
// response then owns the exchange context.
func (f *future) Drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dropped {
		return
	}
	f.dropped = true
	switch {
	case !f.settled:
		f.cancel()
	case !f.taken && f.outcome.Response != nil:
		f.outcome.Response.Drop()
	}
}

type pollable struct {
	block func()
}

func (p *pollable) Block() { p.block() }
func (p *pollable) Drop()  {}

// classify maps a client error onto the transport error codes guests understand.
func classify(err error) *ports.TransportError {
	te := &ports.TransportError{Code: "internal-error", Message: err.Error()}

	var (
		dnsErr    *net.DNSError
		blocked   *BlockedAddressError
		certErr   *tls.CertificateVerificationError
		unknownCA x509.UnknownAuthorityError
		hostErr   x509.HostnameError
		recordErr tls.RecordHeaderError
		alertErr  tls.AlertError
		netErr    net.Error
	)
	switch {
	case errors.As(err, &blocked):
		te.Code = "destination-IP-prohibited"
	case errors.As(err, &dnsErr):
		te.Code = "DNS-error"
	case errors.Is(err, syscall.ECONNREFUSED):
		te.Code = "connection-refused"
	case errors.Is(err, syscall.ECONNRESET):
		te.Code = "connection-terminated"
	case errors.Is(err, context.DeadlineExceeded):
		te.Code = "connection-timeout"
	case errors.As(err, &certErr), errors.As(err, &unknownCA), errors.As(err, &hostErr):
		te.Code = "TLS-certificate-error"
	case errors.As(err, &recordErr), errors.As(err, &alertErr):
		te.Code = "TLS-protocol-error"
	case errors.As(err, &netErr) && netErr.Timeout():
		te.Code = "connection-timeout"
	}
	return te
}
