package domain

// SSLInfo carries the handshake details extracted by an external SSL
// termination collaborator — this core only stores and forwards
// whatever that collaborator produces.
type SSLInfo struct {
	CipherSuite     string
	ProtocolVersion string
	PeerCertificate []byte
}

// RequestMessage is the in-memory representation of one inbound HTTP
// transaction, built by the ClientRequestReceiver.
type RequestMessage struct {
	Protocol string // e.g. "HTTP/1.1", "HTTP/2"
	Method   string // lowercased
	Path     string // query-stripped
	Query    []QueryParam

	Headers *Headers

	ClientIP    string
	Scheme      string // "http" or "https"
	LocalPort   int
	LocalServer string
	SSL         *SSLInfo

	Body    []byte
	HasBody bool

	Session *SessionContext
}

// QueryParam preserves repeated keys and order.
type QueryParam struct {
	Key   string
	Value string
}

// NewRequestMessage returns a RequestMessage with a fresh SessionContext
// and an initialised header map, ready for the receiver to populate.
func NewRequestMessage() *RequestMessage {
	return &RequestMessage{
		Headers: NewHeaders(),
		Session: NewSessionContext(),
	}
}
