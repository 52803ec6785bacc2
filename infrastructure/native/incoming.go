package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/reglet-dev/sdf-http/domain/ports"
)

// readAhead is how many read buffers the pump may hold before waiting for the
// guest to catch up.
const readAhead = 4

type incomingResponse struct {
	resp    *http.Response
	cfg     hostConfig
	release func()

	mu       sync.Mutex
	consumed bool
}

func newIncomingResponse(resp *http.Response, cfg hostConfig, cancel context.CancelFunc) *incomingResponse {
	var once sync.Once
	return &incomingResponse{
		resp: resp,
		cfg:  cfg,
		release: func() {
			once.Do(func() {
				_ = resp.Body.Close()
				cancel()
			})
		},
	}
}

func (r *incomingResponse) Status() uint16 {
	return uint16(r.resp.StatusCode)
}

func (r *incomingResponse) Headers() ports.Headers {
	return headersFrom(r.resp.Header)
}

func (r *incomingResponse) Consume() (ports.IncomingBody, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumed {
		return nil, ports.ErrResourceTaken
	}
	r.consumed = true
	if r.resp.Body == nil || r.resp.Body == http.NoBody {
		r.release()
		return nil, ports.ErrNoBody
	}
	return &incomingBody{resp: r}, nil
}

// Drop releases the connection unless the body was handed out.
func (r *incomingResponse) Drop() {
	r.mu.Lock()
	consumed := r.consumed
	r.mu.Unlock()
	if !consumed {
		r.release()
	}
}

type incomingBody struct {
	resp *incomingResponse

	mu     sync.Mutex
	stream *inputStream
}

func (b *incomingBody) Stream() (ports.InputStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream != nil {
		return nil, ports.ErrResourceTaken
	}
	cfg := b.resp.cfg
	b.stream = newInputStream(b.resp.resp.Body, cfg.ReadBufferSize, cfg.MaxBodySize, b.resp.release)
	return b.stream, nil
}

// Drop releases the connection unless the stream was handed out.
func (b *incomingBody) Drop() {
	b.mu.Lock()
	taken := b.stream != nil
	b.mu.Unlock()
	if !taken {
		b.resp.release()
	}
}

// inputStream is filled by a pump goroutine reading the network body. Readers
// take whatever is buffered; the pollable waits on the condition variable.
type inputStream struct {
	release func()

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	err     error
	done    bool
	dropped bool
}

func newInputStream(body io.Reader, bufSize int, limit int64, release func()) *inputStream {
	s := &inputStream{release: release}
	s.cond = sync.NewCond(&s.mu)
	go s.pump(body, bufSize, limit)
	return s
}

func (s *inputStream) pump(body io.Reader, bufSize int, limit int64) {
	chunk := make([]byte, bufSize)
	var total int64
	for {
		s.mu.Lock()
		for len(s.buf) >= readAhead*bufSize && !s.dropped {
			s.cond.Wait()
		}
		dropped := s.dropped
		s.mu.Unlock()
		if dropped {
			return
		}

		n, err := body.Read(chunk)
		total += int64(n)
		if limit > 0 && total > limit {
			err = &ports.StreamError{Message: fmt.Sprintf("response body exceeds %d bytes", limit)}
			n = 0
		}

		s.mu.Lock()
		s.buf = append(s.buf, chunk[:n]...)
		if err != nil {
			s.done = true
			s.err = err
		}
		s.cond.Broadcast()
		s.mu.Unlock()

		if err != nil {
			return
		}
	}
}

func (s *inputStream) Read(maxBytes uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) > 0 {
		n := uint64(len(s.buf))
		if maxBytes < n {
			n = maxBytes
		}
		out := bytes.Clone(s.buf[:n])
		s.buf = s.buf[n:]
		s.cond.Broadcast()
		return out, nil
	}
	if s.dropped {
		return nil, ports.ErrStreamClosed
	}
	if !s.done {
		return []byte{}, nil
	}
	if errors.Is(s.err, io.EOF) {
		return nil, ports.ErrStreamClosed
	}
	var se *ports.StreamError
	if errors.As(s.err, &se) {
		return nil, se
	}
	return nil, &ports.StreamError{Message: s.err.Error()}
}

func (s *inputStream) Subscribe() ports.Pollable {
	return &pollable{block: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for len(s.buf) == 0 && !s.done && !s.dropped {
			s.cond.Wait()
		}
	}}
}

func (s *inputStream) Drop() {
	s.mu.Lock()
	s.dropped = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.release()
}
