// Package transport drives one blocking HTTP exchange over the host transport
// capability: write the body, submit, wait for the response, drain the body.
//
// The driver never cancels or times out. A blocked exchange waits for the host's
// readiness signals; bounded latency must be enforced by the host or by whatever
// owns the calling goroutine.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/reglet-dev/sdf-http/application/bridge"
	"github.com/reglet-dev/sdf-http/application/config"
	sdkerrors "github.com/reglet-dev/sdf-http/domain/errors"
	"github.com/reglet-dev/sdf-http/domain/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/reglet-dev/sdf-http/application/transport"

// Driver performs exchanges against a host. It holds no per-exchange state and
// is safe for concurrent use when the host is.
type Driver struct {
	host ports.Host
	cfg  driverConfig
}

// Compile-time interface compliance check
var _ http.RoundTripper = (*Driver)(nil)

// New creates a Driver for host.
func New(host ports.Host, opts ...Option) (*Driver, error) {
	if host == nil {
		return nil, errors.New("transport: host is required")
	}

	cfg := defaultDriverConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	return &Driver{host: host, cfg: cfg}, nil
}

// Send performs exactly one exchange of req with body as the request payload.
// req.Body is ignored. ctx carries logging and tracing values only.
func (d *Driver) Send(ctx context.Context, req *http.Request, body []byte) (resp *http.Response, err error) {
	logger := d.cfg.log().With("exchange_id", uuid.NewString())
	target := ""
	if req.URL != nil {
		target = req.URL.String()
	}

	ctx, span := d.cfg.tracer().Start(ctx, "sdf-http.exchange",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", target),
			attribute.Int("http.request.body.size", len(body)),
		))
	defer func() {
		if err != nil {
			kind := sdkerrors.KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, kind.String())
			logger.WarnContext(ctx, "sdf-http: exchange failed", "kind", kind.String(), "error", err)
		} else {
			span.SetAttributes(
				attribute.Int("http.response.status_code", resp.StatusCode),
				attribute.Int64("http.response.body.size", resp.ContentLength),
			)
			logger.DebugContext(ctx, "sdf-http: exchange completed",
				"status", resp.StatusCode, "body_bytes", resp.ContentLength)
		}
		span.End()
	}()

	logger.DebugContext(ctx, "sdf-http: exchange started", "method", req.Method, "url", target)

	out, err := bridge.ToOutgoingRequest(d.host, req)
	if err != nil {
		return nil, err
	}

	resp, err = d.exchange(out, body)
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}

// RoundTrip implements http.RoundTripper by buffering req.Body and calling Send.
func (d *Driver) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("transport: reading request body: %w", err)
		}
		body = b
	}
	return d.Send(req.Context(), req, body)
}

// exchange owns out from here on. Every handle acquired below is released on
// every return path; the deferred drops run children before parents.
func (d *Driver) exchange(out ports.OutgoingRequest, body []byte) (*http.Response, error) {
	submitted := false
	defer func() {
		if !submitted {
			out.Drop()
		}
	}()

	outBody, err := out.Body()
	if err != nil {
		return nil, sdkerrors.NewExchangeError(sdkerrors.KindBodyWriteUnavailable, err)
	}
	finished := false
	defer func() {
		if !finished {
			outBody.Drop()
		}
	}()

	if err := writeBody(outBody, body); err != nil {
		return nil, err
	}

	submitted = true
	fut, err := d.host.Handle(out)
	if err != nil {
		return nil, sdkerrors.NewExchangeError(sdkerrors.KindDispatch, err)
	}
	defer fut.Drop()

	finished = true
	if err := outBody.Finish(); err != nil {
		return nil, sdkerrors.NewExchangeError(sdkerrors.KindBodyFinish, err)
	}

	incoming, err := awaitResponse(fut)
	if err != nil {
		return nil, err
	}
	defer incoming.Drop()

	status := incoming.Status()
	headers := incoming.Headers()
	entries := headers.Entries()
	headers.Drop()

	buf, err := d.drain(incoming)
	if err != nil {
		return nil, err
	}

	return bridge.FromIncomingResponse(status, entries, buf)
}

// writeBody writes the whole payload in one call. The output stream is released
// before returning, which ends the write phase.
func writeBody(outBody ports.OutgoingBody, body []byte) error {
	stream, err := outBody.Write()
	if err != nil {
		return sdkerrors.NewExchangeError(sdkerrors.KindBodyWriteUnavailable, err)
	}
	defer stream.Drop()

	if len(body) == 0 {
		return nil
	}
	if err := stream.Write(body); err != nil {
		return sdkerrors.NewExchangeError(sdkerrors.KindTransportWrite, err)
	}
	return nil
}

// awaitResponse unwraps the nested completion result. ErrAlreadyTaken is a
// protocol violation; any other failure of the poll or of the exchange is a
// transport error.
func awaitResponse(fut ports.FutureIncomingResponse) (ports.IncomingResponse, error) {
	n := newNotifier(fut.Subscribe)
	defer n.release()

	outcome, ready, err := await(fut.Get, n)
	switch {
	case errors.Is(err, ports.ErrAlreadyTaken):
		return nil, sdkerrors.NewExchangeError(sdkerrors.KindResponseAlreadyTaken, err)
	case err != nil:
		// The host could not answer the poll at all.
		return nil, sdkerrors.NewExchangeError(sdkerrors.KindTransport, err)
	case !ready:
		return nil, sdkerrors.NewExchangeError(sdkerrors.KindResponseMissing,
			errors.New("no response after readiness signal"))
	case outcome.Failure != nil:
		return nil, sdkerrors.NewExchangeError(sdkerrors.KindTransport, outcome.Failure)
	case outcome.Response == nil:
		return nil, sdkerrors.NewExchangeError(sdkerrors.KindResponseMissing,
			errors.New("host reported an empty outcome"))
	}
	return outcome.Response, nil
}

// drain reads the response body until the stream reports closed. An empty read
// means "not yet" and goes back to the notifier; it is never end of stream.
func (d *Driver) drain(incoming ports.IncomingResponse) ([]byte, error) {
	body, err := incoming.Consume()
	if errors.Is(err, ports.ErrNoBody) {
		return nil, nil
	}
	if err != nil {
		return nil, sdkerrors.NewExchangeError(sdkerrors.KindBodyStreamUnavailable, err)
	}
	defer body.Drop()

	stream, err := body.Stream()
	if err != nil {
		return nil, sdkerrors.NewExchangeError(sdkerrors.KindBodyStreamUnavailable, err)
	}
	defer stream.Drop()

	// One notifier for the whole loop.
	n := &notifier{pollable: stream.Subscribe()}
	defer n.release()

	chunkSize := d.cfg.ChunkSize
	read := func() ([]byte, bool, error) {
		chunk, err := stream.Read(chunkSize)
		return chunk, len(chunk) > 0, err
	}

	var buf bytes.Buffer
	for {
		chunk, _, err := await(read, n)
		if errors.Is(err, ports.ErrStreamClosed) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, sdkerrors.NewExchangeError(sdkerrors.KindBodyRead, err)
		}
		buf.Write(chunk)
	}
}
