// Package inbound translates framed inbound HTTP into the internal
// RequestMessage/ResponseMessage shapes and back, guarding against
// laggard body frames after cancellation and enforcing at most one
// active outbound response per connection.
package inbound

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/thushan/edgeproxy/internal/adapter/attrs"
	"github.com/thushan/edgeproxy/internal/adapter/passport"
	"github.com/thushan/edgeproxy/internal/core/constants"
	"github.com/thushan/edgeproxy/internal/core/domain"
	"github.com/thushan/edgeproxy/internal/core/ports"
	"github.com/thushan/edgeproxy/internal/logger"
)

// RequestDecorator lets a caller inject standardised context keys once
// the RequestMessage has been built, without this package needing to
// know what those keys are; the context it returns is the one passed to
// the FilterPipeline.
type RequestDecorator func(context.Context, *domain.RequestMessage) context.Context

// ClientRequestReceiver builds a RequestMessage from one inbound HTTP
// request, drives it through a FilterPipeline, and hands the resulting
// ResponseMessage to a ClientResponseWriter.
type ClientRequestReceiver struct {
	Pipeline  ports.FilterPipeline
	Writer    *ClientResponseWriter
	Decorator RequestDecorator
	Log       *logger.StyledLogger
}

// ServeHTTP is the entry point net/http calls per inbound connection
// frame; net/http has already assembled the full request head for us,
// so head/body dispatch collapses into a single call.
func (r *ClientRequestReceiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	state := statePool.Get()
	defer statePool.Put(state)

	trace := passport.New()
	state.start()

	msg, err := r.buildRequestMessage(req)
	if err != nil {
		r.writeDecodeError(w, req, err)
		r.complete(state, trace, constants.ReasonPipelineReject, nil, req)
		return
	}

	// Expect: 100-continue must be answered before anything reads the
	// body: net/http's own expectContinueReader also wants to send the
	// interim status line on the body's first Read, and an explicit
	// WriteHeader(100) issued first claims that race so the automatic
	// path becomes a no-op instead of emitting a second status line.
	r.handleExpectContinue(w, req, msg)

	if err := r.readRequestBody(req, msg); err != nil {
		r.writeDecodeError(w, req, err)
		r.complete(state, trace, constants.ReasonPipelineReject, msg, req)
		return
	}

	state.setRequest(msg)
	r.populateChannelAttrs(state, req, msg)

	ctx := req.Context()
	if r.Decorator != nil {
		ctx = r.Decorator(ctx, msg)
	}

	resp, err := r.Pipeline.HandleRequest(ctx, msg)
	reason := constants.ReasonSessionComplete
	if err != nil {
		if msg.Session.Cancelled() {
			reason = constants.ReasonDisconnect
		}
		r.Writer.exceptionCaught(w, state, err)
	} else {
		r.Writer.write(w, req, state, trace, resp)
	}

	if state.shouldClose() {
		r.Writer.closeChannel(w)
	}

	r.complete(state, trace, reason, msg, req)
}

// populateChannelAttrs records the address/SSL/protocol attributes that,
// in a reactor-based proxy, a lower-level address handler would have
// already placed on the channel before the request handler ever ran.
func (r *ClientRequestReceiver) populateChannelAttrs(state *requestState, req *http.Request, msg *domain.RequestMessage) {
	attrs.Set(state.attrs, keySourceAddress, msg.ClientIP)
	attrs.Set(state.attrs, keyLocalPort, msg.LocalPort)
	attrs.Set(state.attrs, keyLocalAddress, msg.LocalServer)
	attrs.Set(state.attrs, keyProtocolName, msg.Protocol)
	if msg.SSL != nil {
		attrs.Set(state.attrs, keySSLInfo, msg.SSL)
	}
}

func (r *ClientRequestReceiver) complete(state *requestState, trace *passport.Trace, reason string, msg *domain.RequestMessage, req *http.Request) {
	wasHandling := state.complete()
	if !trace.Has(constants.PassportOutRespLastContent) {
		trace.Append(constants.PassportInReqCancelled)
	}
	if reason != constants.ReasonSessionComplete && wasHandling && r.Log != nil {
		method, uri := "", req.RequestURI
		if msg != nil {
			method = msg.Method
		}
		r.Log.Warn("request terminated abnormally",
			"method", method, "uuid", trace.ID, "uri", uri, "reason", reason, "channel", req.RemoteAddr)
	}
}

// handleExpectContinue writes the interim 100 Continue status line when
// requested, then strips Expect from both the wire response path and the
// internal representation so it is never forwarded downstream.
func (r *ClientRequestReceiver) handleExpectContinue(w http.ResponseWriter, req *http.Request, msg *domain.RequestMessage) {
	if !strings.EqualFold(req.Header.Get("Expect"), "100-continue") {
		return
	}
	w.WriteHeader(http.StatusContinue)
	req.Header.Del("Expect")
	msg.Headers.Del("Expect")
}

func (r *ClientRequestReceiver) writeDecodeError(w http.ResponseWriter, req *http.Request, cause error) {
	if r.Log != nil {
		r.Log.Warn("decode failed for inbound request", "uri", req.RequestURI, "remote", req.RemoteAddr, "error", cause)
	}
	http.Error(w, "Bad Request", http.StatusBadRequest)
}

// buildRequestMessage implements the construction rules: the client IP
// comes from the connection's remote address, the local server name and
// port from the request's Host (not from the connection's local address),
// SSL presence derives the scheme, the protocol string is the request's
// wire version text (req.Proto), path/query are split on the first '?',
// method is lowercased, has_body reflects chunked transfer or a non-zero
// Content-Length. Headers are copied key by key from req.Header, which
// does not keep the order of distinct keys, so only the order of values
// under one key is preserved.
func (r *ClientRequestReceiver) buildRequestMessage(req *http.Request) (*domain.RequestMessage, error) {
	msg := domain.NewRequestMessage()

	host, port := splitHostPort(req.Host)
	msg.LocalServer = host
	msg.LocalPort = port

	if req.TLS != nil {
		msg.Scheme = "https"
		msg.SSL = &domain.SSLInfo{
			CipherSuite:     tlsCipherSuiteName(req.TLS.CipherSuite),
			ProtocolVersion: tlsVersionName(req.TLS.Version),
		}
	} else {
		msg.Scheme = "http"
	}

	msg.Protocol = req.Proto
	msg.Method = strings.ToLower(req.Method)

	path, query := splitPathQuery(req.RequestURI)
	msg.Path = path
	msg.Query = parseQueryParams(query)

	for key, values := range req.Header {
		for _, v := range values {
			msg.Headers.Add(key, v)
		}
	}

	cl := req.Header.Get("Content-Length")
	chunked := hasChunkedEncoding(req.Header.Get("Transfer-Encoding"))
	msg.HasBody = chunked || (cl != "" && cl != "0")

	msg.ClientIP = clientIP(req)
	msg.Session.Set(domain.CtxKey(constants.SessionCtxInboundChannel), req.RemoteAddr)
	msg.Session.Set(domain.CtxKey(constants.SessionCtxHTTPRequest), msg)

	return msg, nil
}

// readRequestBody buffers the request body into msg, once it's known
// whether a body is expected. Kept separate from buildRequestMessage so
// callers can answer Expect: 100-continue (handleExpectContinue) before
// this ever reads from req.Body.
func (r *ClientRequestReceiver) readRequestBody(req *http.Request, msg *domain.RequestMessage) error {
	if !msg.HasBody || req.Body == nil {
		return nil
	}
	body, err := readBody(req)
	if err != nil {
		return err
	}
	msg.Body = body
	return nil
}

func splitHostPort(hostport string) (string, int) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func splitPathQuery(uri string) (string, string) {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i], uri[i+1:]
	}
	return uri, ""
}

func parseQueryParams(raw string) []domain.QueryParam {
	if raw == "" {
		return nil
	}
	var out []domain.QueryParam
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		out = append(out, domain.QueryParam{Key: k, Value: v})
	}
	return out
}

func hasChunkedEncoding(te string) bool {
	return strings.Contains(strings.ToLower(te), "chunked")
}

func clientIP(req *http.Request) string {
	if ip, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		return ip
	}
	return req.RemoteAddr
}
