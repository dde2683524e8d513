package inbound

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thushan/edgeproxy/internal/core/domain"
)

type stubPipeline struct {
	resp *domain.ResponseMessage
	err  error
	got  *domain.RequestMessage
}

func (s *stubPipeline) HandleRequest(_ context.Context, req *domain.RequestMessage) (*domain.ResponseMessage, error) {
	s.got = req
	return s.resp, s.err
}

func newReceiver(p *stubPipeline) *ClientRequestReceiver {
	return &ClientRequestReceiver{
		Pipeline: p,
		Writer:   &ClientResponseWriter{},
	}
}

func TestServeHTTP_BuildsRequestMessage(t *testing.T) {
	resp := domain.NewResponseMessage(http.StatusOK, nil)
	resp.Headers.Set("Content-Type", "text/plain")
	stub := &stubPipeline{resp: resp}
	r := newReceiver(stub)

	req := httptest.NewRequest(http.MethodPost, "/foo/bar?x=1&y=2", nil)
	req.Header.Set("X-Test", "a")
	req.Header.Add("X-Test", "b")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.NotNil(t, stub.got)
	require.Equal(t, "post", stub.got.Method)
	require.Equal(t, "/foo/bar", stub.got.Path)
	require.Equal(t, []domain.QueryParam{{Key: "x", Value: "1"}, {Key: "y", Value: "2"}}, stub.got.Query)
	require.Equal(t, []string{"a", "b"}, stub.got.Headers.Values("x-test"))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServeHTTP_ExpectContinueStripsHeader(t *testing.T) {
	resp := domain.NewResponseMessage(http.StatusOK, nil)
	stub := &stubPipeline{resp: resp}
	r := newReceiver(stub)

	req := httptest.NewRequest(http.MethodPut, "/up", nil)
	req.Header.Set("Expect", "100-continue")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.False(t, stub.got.Headers.Has("expect"))
}

func TestServeHTTP_PipelineErrorWritesStatusHint(t *testing.T) {
	stub := &stubPipeline{err: domain.NewMaxConnectionsPerHostError("origin")}
	r := newReceiver(stub)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServeHTTP_AddsChunkedWhenNoLengthOrEncodingSet(t *testing.T) {
	resp := domain.NewResponseMessage(http.StatusOK, nil)
	stub := &stubPipeline{resp: resp}
	r := newReceiver(stub)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, "chunked", w.Header().Get("Transfer-Encoding"))
}

// TestServeHTTP_ExpectContinueWithBodySendsExactlyOneContinueLine drives
// a real body-bearing Expect: 100-continue request over a raw TCP
// connection to a live server, the only way to exercise net/http's
// automatic expectContinueReader (httptest.NewRecorder never runs that
// machinery, so it can't catch a handler that sends its own 100
// Continue and then lets the body read trigger a second one).
func TestServeHTTP_ExpectContinueWithBodySendsExactlyOneContinueLine(t *testing.T) {
	resp := domain.NewResponseMessage(http.StatusOK, nil)
	stub := &stubPipeline{resp: resp}
	r := newReceiver(stub)

	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(
		"POST /up HTTP/1.1\r\nHost: test\r\nExpect: 100-continue\r\nContent-Length: 4\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)

	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "100 Continue")

	// Consume the blank line terminating the 100-Continue response.
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}

	_, err = conn.Write([]byte("body"))
	require.NoError(t, err)

	finalStatus, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, finalStatus, "200")
	require.NotContains(t, finalStatus, "100 Continue")

	require.NotNil(t, stub.got)
	require.False(t, stub.got.Headers.Has("expect"))
	require.Equal(t, []byte("body"), stub.got.Body)
}

func TestServeHTTP_ConnectionCloseOnRequest(t *testing.T) {
	resp := domain.NewResponseMessage(http.StatusOK, nil)
	stub := &stubPipeline{resp: resp}
	r := newReceiver(stub)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Close = true
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, "close", w.Header().Get("Connection"))
}
