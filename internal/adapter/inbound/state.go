package inbound

import (
	"strings"
	"sync"

	"github.com/thushan/edgeproxy/internal/adapter/attrs"
	"github.com/thushan/edgeproxy/internal/core/domain"
	"github.com/thushan/edgeproxy/pkg/pool"
)

// channel attribute keys, scoped to this package's requestState. These
// back the symbolic ZUUL_REQ/ZUUL_RESP/... names from constants via
// typed attrs.Key lookups rather than raw map access.
var (
	keyZuulReq       = attrs.NewKey[*domain.RequestMessage]("ZUUL_REQ")
	keyZuulResp      = attrs.NewKey[*domain.ResponseMessage]("ZUUL_RESP")
	keySourceAddress = attrs.NewKey[string]("SOURCE_ADDRESS")
	keyLocalPort     = attrs.NewKey[int]("LOCAL_PORT")
	keyLocalAddress  = attrs.NewKey[string]("LOCAL_ADDRESS")
	keySSLInfo       = attrs.NewKey[*domain.SSLInfo]("SSL_INFO")
	keyProtocolName  = attrs.NewKey[string]("PROTOCOL_NAME")
)

// requestState is the per-connection state shared by ClientRequestReceiver
// and ClientResponseWriter. One is taken from statePool per inbound HTTP
// request (net/http gives us one goroutine per request, so there is exactly one
// requestState alive at a time per channel, matching the "at most one
// active outbound response per channel" invariant).
type requestState struct {
	mu sync.Mutex

	attrs *attrs.Table

	currentClientRequest *domain.RequestMessage
	currentZuulResponse  *domain.ResponseMessage

	isHandlingRequest      bool
	startedSendingResponse bool
	closeConnection        bool
}

func newRequestState() *requestState {
	return &requestState{attrs: &attrs.Table{}}
}

// Reset clears a requestState for reuse via statePool. It is equivalent
// to a fresh newRequestState() but keeps the already-allocated attrs
// Table; Clear drops the table's map, so the next Set allocates a new one.
func (s *requestState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentClientRequest = nil
	s.currentZuulResponse = nil
	s.isHandlingRequest = false
	s.startedSendingResponse = false
	s.closeConnection = false
	s.attrs.Clear()
}

var statePool = pool.NewLitePool(func() *requestState { return newRequestState() })

// start resets response-cycle state at the beginning of a request,
// matching the Start lifecycle transition of the response writer.
func (s *requestState) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isHandlingRequest = true
	s.startedSendingResponse = false
	s.closeConnection = false
	s.currentZuulResponse = nil
}

func (s *requestState) setRequest(req *domain.RequestMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentClientRequest = req
	attrs.Set(s.attrs, keyZuulReq, req)
}

func (s *requestState) request() *domain.RequestMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentClientRequest
}

// tryBeginResponse returns false if a response is already in flight or no
// request is being handled, per the IDLE-or-timeout-during-streaming race
// guard: the caller must dispose both responses and close the channel.
func (s *requestState) tryBeginResponse(resp *domain.ResponseMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isHandlingRequest || s.startedSendingResponse {
		return false
	}
	s.startedSendingResponse = true
	s.currentZuulResponse = resp
	attrs.Set(s.attrs, keyZuulResp, resp)
	if first, ok := resp.Headers.Get("Connection"); ok && strings.EqualFold(first, "close") {
		s.closeConnection = true
	}
	return true
}

func (s *requestState) shouldClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeConnection
}

// markClose sets close_connection under lock. Callers that currently
// assign the field directly all run on the single goroutine serving
// this request, but routing the write through the mutex keeps it
// consistent with every other field access on requestState.
func (s *requestState) markClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeConnection = true
}

// complete clears per-request state, matching "clear channel attributes;
// clear local state" on Complete. It returns whether a request was still
// in flight, for the cancellation/logging decisions the caller makes.
func (s *requestState) complete() (wasHandling bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasHandling = s.isHandlingRequest
	s.isHandlingRequest = false
	s.currentClientRequest = nil
	s.currentZuulResponse = nil
	s.attrs.Clear()
	return wasHandling
}
