package inbound

import (
	"crypto/tls"
	"io"
	"net/http"
)

func tlsCipherSuiteName(id uint16) string {
	return tls.CipherSuiteName(id)
}

func tlsVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS13:
		return "TLS1.3"
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS11:
		return "TLS1.1"
	case tls.VersionTLS10:
		return "TLS1.0"
	default:
		return "unknown"
	}
}

// readBody buffers the full request body. A streaming variant would
// forward chunks to the filter pipeline as they arrive and release each
// one immediately; this core buffers because net/http has already
// framed the whole request before the handler runs.
func readBody(req *http.Request) ([]byte, error) {
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}
