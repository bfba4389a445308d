package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/txn2/presence/pkg/protocol"
	"github.com/txn2/presence/pkg/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Worst case JSON encoding of one character: a surrogate pair of \u
	// escapes.
	bytesPerChar = 12

	// Room for the envelope and the non-text fields of a frame.
	frameOverhead = 1024

	// Outbound responses buffered per connection.
	sendBuffer = 256
)

var (
	// ErrConnClosed is returned by Send and Ping after Close.
	ErrConnClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a peer is not reading fast enough.
	// The connection is closed.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn adapts a WebSocket connection to session.Conn. Responses are written
// by a dedicated goroutine; Close lets it flush what is queued before the
// close frame goes out.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan protocol.Response
	ping chan struct{}

	closeOnce sync.Once
	closeMsg  []byte
	done      chan struct{}
}

var _ session.Conn = (*Conn)(nil)

func newConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		send: make(chan protocol.Response, sendBuffer),
		ping: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// ID returns the connection handle.
func (c *Conn) ID() string { return c.id }

// Send queues resp without blocking.
func (c *Conn) Send(resp protocol.Response) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- resp:
		return nil
	default:
		_ = c.Close(websocket.CloseTryAgainLater, "Send buffer full.")
		return ErrSendBufferFull
	}
}

// Ping asks the write pump to send a ping control frame. It never blocks; a
// ping still pending from the previous call is not doubled.
func (c *Conn) Ping() error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.ping <- struct{}{}:
	default:
	}
	return nil
}

// Close asks the write pump to flush and send a close frame. It does not
// block and only the first call has effect.
func (c *Conn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeMsg = websocket.FormatCloseMessage(code, reason)
		close(c.done)
	})
	return nil
}

// abandon stops the write pump without a close frame; the peer is gone.
func (c *Conn) abandon() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump forwards frames and pongs to the hub until the connection fails.
func (c *Conn) readPump(hub Hub, readLimit int64) {
	defer func() {
		hub.Closed(c.id)
		c.abandon()
	}()

	c.ws.SetReadLimit(readLimit)
	c.ws.SetPongHandler(func(string) error {
		hub.Pong(c.id)
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Debug("websocket read failed", "conn", c.id, "error", err)
			}
			return
		}
		hub.Receive(c.id, data)
	}
}

// writePump owns all writes to the socket, pings included.
func (c *Conn) writePump() {
	defer func() { _ = c.ws.Close() }()

	for {
		select {
		case resp := <-c.send:
			if err := c.write(resp); err != nil {
				slog.Debug("websocket write failed", "conn", c.id, "error", err)
				c.abandon()
				return
			}
		case <-c.ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("websocket ping failed", "conn", c.id, "error", err)
				c.abandon()
				return
			}
		case <-c.done:
			c.flush()
			if c.closeMsg != nil {
				_ = c.ws.WriteControl(websocket.CloseMessage, c.closeMsg, time.Now().Add(writeWait))
			}
			return
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case resp := <-c.send:
			if err := c.write(resp); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(resp protocol.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ReadLimit is the largest inbound frame accepted when texts are capped at
// maxTextLength characters. Texts up to the cap fit in any JSON encoding, so
// an over-long text is rejected by the hub rather than the socket.
func ReadLimit(maxTextLength int) int64 {
	return int64(maxTextLength)*bytesPerChar + frameOverhead
}
