package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/example/chat-relay/metrics"
)

const (
	// sendBufferSize is the per-connection outbound queue. When it
	// fills, further frames for that connection are dropped so a slow
	// reader never stalls fan-out to anyone else.
	sendBufferSize = 256

	writeTimeout = 10 * time.Second
)

// wsClient adapts a websocket connection to the relay's Conn
// capability: a non-blocking Send and a liveness check. A dedicated
// write pump goroutine is the only writer on the socket.
type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Send enqueues a frame without blocking. Returns false once the
// connection is gone; a full buffer drops the frame but keeps the
// connection, which is the contract for slow readers.
func (c *wsClient) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		metrics.EventsDropped.Inc()
		slog.Warn("send buffer full, dropping frame", "remote", c.conn.RemoteAddr().String())
		return true
	}
}

// Alive reports whether the connection is still open.
func (c *wsClient) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// shutdown halts delivery. Safe to call more than once and from any
// goroutine.
func (c *wsClient) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// writePump drains the send queue onto the socket. It exits when the
// client shuts down or the first write fails; either way the socket is
// closed, which also unblocks the read loop.
func (c *wsClient) writePump() {
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.shutdown()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shutdown()
				return
			}
		}
	}
}
