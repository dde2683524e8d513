package domain

// BodyChunk is one reference-counted piece of a buffered body. Release
// must be called exactly once per code path that does not forward or
// write the chunk onward; Release is nil for chunks that own no pooled
// backing memory.
type BodyChunk struct {
	Data    []byte
	Release func()
}

// ReleaseChunks releases every chunk that carries a non-nil Release hook.
// Safe to call on an already-released slice; each Release is expected to
// be idempotent.
func ReleaseChunks(chunks []BodyChunk) {
	for _, c := range chunks {
		if c.Release != nil {
			c.Release()
		}
	}
}

// ResponseMessage is the completed response the filter pipeline hands
// back to the ClientResponseWriter.
type ResponseMessage struct {
	StatusCode int
	Headers    *Headers
	Body       []BodyChunk

	// InboundRequest references the originating RequestMessage so the
	// writer can consult its protocol/keep-alive/stream-id attributes
	// when building the wire response.
	InboundRequest *RequestMessage
}

// NewResponseMessage returns a ResponseMessage with an initialised header
// map.
func NewResponseMessage(status int, req *RequestMessage) *ResponseMessage {
	return &ResponseMessage{
		StatusCode:     status,
		Headers:        NewHeaders(),
		InboundRequest: req,
	}
}
