// Package outbound provides a minimal ports.FilterPipeline implementation
// that forwards a RequestMessage to a single configured origin over a
// pool-managed connection. Request routing, retries, and circuit
// breaking are a different product surface and are deliberately not
// reimplemented here; this exists so the inbound/pool packages have a
// runnable collaborator to wire into main.
package outbound

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/thushan/edgeproxy/internal/adapter/pipeline"
	"github.com/thushan/edgeproxy/internal/adapter/pool"
	"github.com/thushan/edgeproxy/internal/core/domain"
	"github.com/thushan/edgeproxy/internal/logger"
)

// Forwarder is a single-origin FilterPipeline: it acquires a connection
// from pool, writes the request, reads the response, and releases the
// connection back to the pool on success or discards it on a transport
// error.
type Forwarder struct {
	Pool *pool.PerServerConnectionPool
	Log  *logger.StyledLogger
}

// nextLoop round-robins a small fixed set of LoopIDs so concurrent
// requests spread across the pool's per-loop idle deques instead of
// funnelling through a single one.
var loopCounter uint64

func nextLoop() pool.LoopID {
	loopCounter++
	return pool.LoopID(loopCounter % 8)
}

func (f *Forwarder) HandleRequest(ctx context.Context, req *domain.RequestMessage) (*domain.ResponseMessage, error) {
	conn, err := f.Pool.Acquire(ctx, nextLoop())
	if err != nil {
		return nil, domain.NewConnectError(f.Pool.OriginName(), err)
	}

	wireReq, err := buildWireRequest(req)
	if err != nil {
		f.Pool.Remove(conn)
		_ = conn.Close()
		return nil, domain.NewInternalError("building outbound request", err)
	}

	stages := conn.Stages()

	if err := wireReq.Write(&stagedWriter{w: conn.Conn(), stages: stages}); err != nil {
		f.Pool.Remove(conn)
		_ = conn.Close()
		return nil, domain.NewWriteError("response_headers", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(&stagedReader{r: conn.Conn(), stages: stages}), wireReq)
	if err != nil {
		f.Pool.Remove(conn)
		_ = conn.Close()
		return nil, domain.NewConnectError(f.Pool.OriginName(), err)
	}
	defer resp.Body.Close()

	out := domain.NewResponseMessage(resp.StatusCode, req)
	for key, values := range resp.Header {
		for _, v := range values {
			out.Headers.Add(key, v)
		}
	}

	body, err := readAll(resp)
	if err != nil {
		f.Pool.Remove(conn)
		_ = conn.Close()
		return nil, domain.NewInternalError("reading origin response", err)
	}
	out.Body = []domain.BodyChunk{{Data: body}}

	if resp.Close {
		f.Pool.Remove(conn)
		_ = conn.Close()
	} else {
		f.Pool.Release(conn)
	}

	return out, nil
}

// stagedWriter runs outbound bytes through a connection's installed
// pipeline stages (in order) before writing them to the underlying
// transport, so codec/idle/lifecycle/metrics/pool stages actually see
// the traffic they're meant to observe rather than sitting unused
// beside a raw net.Conn.
type stagedWriter struct {
	w      io.Writer
	stages []pipeline.Stage
}

func (s *stagedWriter) Write(p []byte) (int, error) {
	data := p
	for _, stage := range s.stages {
		var err error
		data, err = stage.OnWrite(data)
		if err != nil {
			return 0, err
		}
	}
	if _, err := s.w.Write(data); err != nil {
		return 0, err
	}
	return len(p), nil
}

// stagedReader is stagedWriter's inbound counterpart: every chunk read
// from the origin is run through OnRead before the caller sees it.
type stagedReader struct {
	r      io.Reader
	stages []pipeline.Stage
}

func (s *stagedReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n == 0 {
		return n, err
	}
	data := p[:n]
	for _, stage := range s.stages {
		var serr error
		data, serr = stage.OnRead(data)
		if serr != nil {
			return 0, serr
		}
	}
	copy(p, data)
	return len(data), err
}

func buildWireRequest(req *domain.RequestMessage) (*http.Request, error) {
	url := fmt.Sprintf("%s://%s%s", req.Scheme, req.LocalServer, req.Path)
	if len(req.Query) > 0 {
		parts := make([]string, 0, len(req.Query))
		for _, q := range req.Query {
			parts = append(parts, q.Key+"="+q.Value)
		}
		url += "?" + strings.Join(parts, "&")
	}

	wireReq, err := http.NewRequest(strings.ToUpper(req.Method), url, nil)
	if err != nil {
		return nil, err
	}
	req.Headers.Range(func(key, value string) {
		wireReq.Header.Add(key, value)
	})
	if req.HasBody {
		wireReq.Body = newBodyReadCloser(req.Body)
		wireReq.ContentLength = int64(len(req.Body))
	}
	return wireReq, nil
}

func readAll(resp *http.Response) ([]byte, error) {
	return io.ReadAll(resp.Body)
}

func newBodyReadCloser(body []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(body))
}
