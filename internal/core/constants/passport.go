package constants

// Passport state names recognised by the core. A passport is a per-channel
// append-only trace; these are the symbols this core itself appends or
// reads. An external filter pipeline may append further states unknown to
// this package.
const (
	PassportOriginChConnecting    = "ORIGIN_CH_CONNECTING"
	PassportOriginChConnected     = "ORIGIN_CH_CONNECTED"
	PassportOriginChPoolReturned  = "ORIGIN_CH_POOL_RETURNED"
	PassportInReqCancelled        = "IN_REQ_CANCELLED"
	PassportOutRespLastContent    = "OUT_RESP_LAST_CONTENT_SENT"
)
