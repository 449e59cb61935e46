// Package ws bridges one WebSocket connection to the conversation registry
// and the fan-out dispatcher. Each connection runs a small state machine:
// Connecting -> Authenticating -> Validating -> Subscribed -> Closing ->
// Closed, with independent read and write pumps while Subscribed.
package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/firstserv/chat-platform/internal/model"
)

// Connection states.
const (
	stateConnecting int32 = iota
	stateAuthenticating
	stateValidating
	stateSubscribed
	stateClosing
	stateClosed
)

// Conn is one live subscriber connection. It satisfies registry.Subscriber:
// Enqueue never blocks, and Drop only signals the write pump to shut the
// connection down.
type Conn struct {
	ws             *websocket.Conn
	handle         string
	conversationID string

	send    chan *model.ServerEvent
	closing chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string

	state atomic.Int32
}

func newConn(ws *websocket.Conn, queueSize int) *Conn {
	c := &Conn{
		ws:      ws,
		send:    make(chan *model.ServerEvent, queueSize),
		closing: make(chan struct{}),
	}
	c.state.Store(stateConnecting)
	return c
}

// Handle returns the authenticated user handle bound to this connection.
func (c *Conn) Handle() string {
	return c.handle
}

// Enqueue queues an outbound event without blocking. It reports false when
// the connection is closing or its queue is full; the registry treats that
// as this subscriber being unreachable.
func (c *Conn) Enqueue(ev *model.ServerEvent) bool {
	select {
	case <-c.closing:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Drop asks the connection to close with a server-side reason. Safe to call
// concurrently and repeatedly; only the first caller picks the close frame.
func (c *Conn) Drop(reason string) {
	c.beginClose(websocket.CloseInternalServerErr, reason)
}

// beginClose records the close frame and wakes the write pump. The first
// call wins; later calls (concurrent close triggers) are no-ops.
func (c *Conn) beginClose(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.state.Store(stateClosing)
		close(c.closing)
	})
}

// closeNow writes the close frame directly and tears the transport down.
// Used before the pumps have started, when no other goroutine writes.
func (c *Conn) closeNow(code int, reason string) {
	c.beginClose(code, reason)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.ws.Close()
	c.state.Store(stateClosed)
}
