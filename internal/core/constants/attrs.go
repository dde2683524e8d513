package constants

// Channel/context attribute keys, carried as strings to mirror a
// Netty-style symbolic-key vocabulary; the typed lookup itself is done
// through attrs.Key[T] (see internal/adapter/attrs), not by using these
// strings as map keys directly.
const (
	AttrZuulReq       = "ZUUL_REQ"
	AttrZuulResp      = "ZUUL_RESP"
	AttrSourceAddress = "SOURCE_ADDRESS"
	AttrLocalPort     = "LOCAL_PORT"
	AttrLocalAddress  = "LOCAL_ADDRESS"
	AttrSSLInfo       = "SSL_INFO"
	AttrProtocolName  = "PROTOCOL_NAME"

	// SessionCtxInboundChannel is the well-known SessionContext key under
	// which the inbound channel handle is stored during RequestMessage
	// construction.
	SessionCtxInboundChannel = "NETTY_HTTP_CHANNEL"
	SessionCtxHTTPRequest    = "NETTY_HTTP_REQUEST"
)

// Lifecycle completion reasons.
const (
	ReasonSessionComplete = "SESSION_COMPLETE"
	ReasonInactive        = "INACTIVE"
	ReasonIdle            = "IDLE"
	ReasonPipelineReject  = "PIPELINE_REJECT"
	ReasonDisconnect      = "DISCONNECT"
)
