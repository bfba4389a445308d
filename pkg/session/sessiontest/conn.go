// Package sessiontest provides an in-memory session.Conn for tests.
package sessiontest

import (
	"errors"
	"sync"

	"github.com/txn2/presence/pkg/protocol"
)

// ErrClosed is returned by Send and Ping after Close.
var ErrClosed = errors.New("connection closed")

// Conn records everything sent to it.
type Conn struct {
	id string

	mu          sync.Mutex
	responses   []protocol.Response
	pings       int
	closed      bool
	closeCode   int
	closeReason string
	onClose     func()
}

// NewConn creates a recording connection with the given handle.
func NewConn(id string) *Conn {
	return &Conn{id: id}
}

// ID returns the handle.
func (c *Conn) ID() string { return c.id }

// Send records resp.
func (c *Conn) Send(resp protocol.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.responses = append(c.responses, resp)
	return nil
}

// Ping counts a probe.
func (c *Conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.pings++
	return nil
}

// Close records the close status. Only the first call has effect.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	fn := c.onClose
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// OnClose registers fn to run after the first Close.
func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// Responses returns a copy of everything sent so far.
func (c *Conn) Responses() []protocol.Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]protocol.Response, len(c.responses))
	copy(out, c.responses)
	return out
}

// Drain returns everything sent so far and forgets it.
func (c *Conn) Drain() []protocol.Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.responses
	c.responses = nil
	return out
}

// Last returns the most recent response of type t.
func (c *Conn) Last(t protocol.ResponseType) (protocol.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.responses) - 1; i >= 0; i-- {
		if c.responses[i].Type == t {
			return c.responses[i], true
		}
	}
	return protocol.Response{}, false
}

// Pings returns the number of probes received.
func (c *Conn) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// Closed reports whether Close was called, with its code and reason.
func (c *Conn) Closed() (closed bool, code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode, c.closeReason
}
