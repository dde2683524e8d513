package inbound

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/thushan/edgeproxy/internal/adapter/passport"
	"github.com/thushan/edgeproxy/internal/core/constants"
	"github.com/thushan/edgeproxy/internal/core/domain"
	"github.com/thushan/edgeproxy/internal/logger"
)

// ClientResponseWriter serialises a single ResponseMessage per
// request/response cycle, enforcing at most one active outbound
// response per connection and deciding keep-alive vs close.
type ClientResponseWriter struct {
	Log *logger.StyledLogger
}

// write builds the wire response and sends head + body. If a response
// is already in flight for this state (or none is being handled), both
// responses are disposed and the channel is torn down immediately via
// Hijack - the IDLE-or-timeout-during-streaming race guard. trace
// records OUT_RESP_LAST_CONTENT_SENT once the body has been written
// without error, so the caller's cancellation bookkeeping can tell a
// completed response apart from a cancelled one.
func (rw *ClientResponseWriter) write(w http.ResponseWriter, req *http.Request, state *requestState, trace *passport.Trace, resp *domain.ResponseMessage) {
	if !state.tryBeginResponse(resp) {
		domain.ReleaseChunks(resp.Body)
		state.markClose()
		rw.closeChannel(w)
		return
	}

	rw.writeWireResponse(w, req, state, resp)

	sentOK := true
	for _, chunk := range resp.Body {
		if _, err := w.Write(chunk.Data); err != nil {
			if rw.Log != nil {
				rw.Log.Error("write failed", "stage", "response_content", "error", err)
			}
			if chunk.Release != nil {
				chunk.Release()
			}
			state.markClose()
			sentOK = false
			continue
		}
		if chunk.Release != nil {
			chunk.Release()
		}
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	if sentOK {
		trace.Append(constants.PassportOutRespLastContent)
	}
}

// closeChannel forcibly tears down the underlying connection via
// Hijack. net/http gives a handler no other way to force a connection
// closed immediately instead of leaving the keep-alive decision to the
// server loop once the handler returns; a failed Hijack (already
// hijacked, or the ResponseWriter doesn't support it) is a no-op.
func (rw *ClientResponseWriter) closeChannel(w http.ResponseWriter) {
	conn, _, err := http.NewResponseController(w).Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}

// writeWireResponse copies headers preserving order and multi-values,
// defaults to chunked transfer encoding when neither it nor
// Content-Length is set, resolves keep-alive vs Connection: close
// against the inbound request, and echoes the HTTP/2 stream
// correlation header when present.
func (rw *ClientResponseWriter) writeWireResponse(w http.ResponseWriter, req *http.Request, state *requestState, resp *domain.ResponseMessage) {
	header := w.Header()

	hasContentLength := false
	hasTransferEncoding := false
	resp.Headers.Range(func(key, value string) {
		header.Add(key, value)
		switch strings.ToLower(key) {
		case "content-length":
			hasContentLength = true
		case "transfer-encoding":
			hasTransferEncoding = true
		}
	})

	if !hasContentLength && !hasTransferEncoding {
		header.Set("Transfer-Encoding", "chunked")
	}

	if keepAlive(req) {
		header.Set("Connection", "keep-alive")
	} else {
		header.Set("Connection", "close")
		state.markClose()
	}

	if streamID := req.Header.Get("x-http2-stream-id"); streamID != "" {
		header.Set("x-http2-stream-id", streamID)
	}

	w.WriteHeader(resp.StatusCode)
}

func keepAlive(req *http.Request) bool {
	if req.Close {
		return false
	}
	if strings.HasPrefix(req.Proto, "HTTP/1.0") {
		return strings.EqualFold(req.Header.Get("Connection"), "keep-alive")
	}
	return !strings.EqualFold(req.Header.Get("Connection"), "close")
}

// exceptionCaught chooses the response status for an error raised while
// building or forwarding the response: 504 for a read timeout, the
// embedded hint from a domain error, else 500. If a response was never
// started and the connection is presumed active, an empty status-only
// response is written and the connection is marked to close on
// completion; otherwise it closes immediately.
func (rw *ClientResponseWriter) exceptionCaught(w http.ResponseWriter, state *requestState, cause error) {
	status := http.StatusInternalServerError

	var derr *domain.Error
	var nerr net.Error
	switch {
	case errors.As(cause, &nerr) && nerr.Timeout():
		status = http.StatusGatewayTimeout
	case errors.As(cause, &derr):
		status = derr.StatusHint
	}

	state.mu.Lock()
	handling := state.isHandlingRequest
	started := state.startedSendingResponse
	state.mu.Unlock()

	state.markClose()

	if handling && !started {
		// Close on completion: the status-only response still needs to
		// reach the client, so the caller's post-response check drives
		// the actual Hijack+close once writing has finished.
		w.WriteHeader(status)
		return
	}
	rw.closeChannel(w)
}
