package signaling

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// defaultHeartbeat is the ping cadence; the read deadline is two
	// intervals, so a connection that misses a full heartbeat round trips
	// the deadline and is reaped on the next tick.
	defaultHeartbeat = 30 * time.Second
	writeWait        = 10 * time.Second

	maxFrameSize      = 64 * 1024
	defaultSendBuffer = 64
)

// client is the actor owning one signaling connection. readPump is the only
// goroutine reading the socket and the only one mutating admitted; writePump
// is the only goroutine writing, so every outgoing frame is serialized.
type client struct {
	id     string
	server *Server
	conn   *websocket.Conn
	log    *slog.Logger

	send    chan []byte
	closing chan struct{} // drain send, emit close frame, then tear down
	done    chan struct{} // abrupt teardown

	closeOnce sync.Once
	drainOnce sync.Once

	// admitted mirrors the registry state for this connection. Owned by
	// readPump; never read from another goroutine.
	admitted bool
}

func newClient(id string, server *Server, conn *websocket.Conn) *client {
	return &client{
		id:      id,
		server:  server,
		conn:    conn,
		log:     server.log.With("conn", id),
		send:    make(chan []byte, server.sendBuffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// enqueue queues a frame for writePump. A full buffer means the peer has
// stalled; it is terminated rather than allowed to block the room.
func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.log.Warn("send buffer full, terminating stalled connection")
		c.server.metrics.ConnectionsReaped.Inc()
		go c.close()
	}
}

// beginClose asks writePump to flush queued frames, send a close frame and
// tear the connection down. Safe to call from any goroutine, any number of
// times.
func (c *client) beginClose() {
	c.drainOnce.Do(func() { close(c.closing) })
}

// close tears the connection down exactly once: presence cleanup, survivor
// notification, socket close.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.server.dropClient(c)
		c.conn.Close()
	})
}

// writePump owns all writes to the socket: queued frames, heartbeat pings
// and the final close frame.
func (c *client) writePump() {
	ticker := time.NewTicker(c.server.heartbeat)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("ping failed", "error", err)
				return
			}

		case <-c.closing:
			// Flush whatever is already queued before the close frame.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			for n := len(c.send); n > 0; n-- {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.done:
			return
		}
	}
}

// readPump owns all reads. The pong handler pushes the read deadline; a
// connection that stops answering pings trips the deadline and is reaped.
func (c *client) readPump() {
	defer c.close()

	pongWait := 2 * c.server.heartbeat
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				c.log.Info("heartbeat timeout, reaping connection")
				c.server.metrics.ConnectionsReaped.Inc()
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("read failed", "error", err)
			}
			return
		}

		if done := c.server.handleFrame(c, payload); done {
			// Closing: no further frames are processed, but keep
			// draining the socket so writePump can flush the final
			// frames before the transport goes down.
			c.discardUntilClosed()
			return
		}
	}
}

// discardUntilClosed reads and drops frames until the connection dies,
// which happens once writePump finishes its drain and closes the socket
// (or the client hangs up first).
func (c *client) discardUntilClosed() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
