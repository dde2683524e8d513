package domain

import "sync"

// CtxKey is a well-known symbolic key into a SessionContext. Using a
// defined string type (rather than bare string or an exported struct key)
// keeps the map's keyspace namespaced without resorting to reflection.
type CtxKey string

// SessionContext is an opaque, per-request map keyed by well-known
// symbolic keys, plus the cancellation flag that the filter pipeline and
// the inbound receiver both observe. It is safe for concurrent
// read/write because cancellation can race with a laggard body chunk
// arriving on the connection's goroutine while the filter pipeline
// cancels on another.
type SessionContext struct {
	mu        sync.RWMutex
	values    map[CtxKey]any
	cancelled bool
	debug     bool
}

// NewSessionContext returns an empty, non-cancelled context.
func NewSessionContext() *SessionContext {
	return &SessionContext{values: make(map[CtxKey]any)}
}

// Set stores a value under key.
func (c *SessionContext) Set(key CtxKey, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns the value under key, if any.
func (c *SessionContext) Get(key CtxKey) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Cancel marks the context cancelled. Idempotent.
func (c *SessionContext) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
}

// Cancelled reports whether Cancel has been called.
func (c *SessionContext) Cancelled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cancelled
}

// SetDebug marks the context for verbose request/routing debug logging on
// abnormal completion.
func (c *SessionContext) SetDebug(debug bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debug = debug
}

// Debug reports whether SetDebug(true) was called.
func (c *SessionContext) Debug() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.debug
}
