// Package chat binds websocket connections to the room core: it runs the
// read/write pumps for each connection, dispatches protocol events, and
// converts transport loss into an implicit leave.
package chat

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"prompt-together/internal/middleware"
	"prompt-together/internal/protocol"
	"prompt-together/internal/room"
)

const (
	maxFrameSize  = 4096
	pongWait      = 60 * time.Second
	pingPeriod    = 10 * time.Second
	writeWait     = 5 * time.Second
	sendQueueSize = 256
)

// Client is one websocket connection. Its room binding (room, username) is
// owned by the read pump goroutine; pushes from room event loops only touch
// the send queue.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	connID   string
	registry *room.Registry
	limiter  *middleware.RateLimiter
	sup      *Supervisor

	room     *room.Room
	username string

	lastWarning time.Time
	closeOnce   sync.Once
}

// ConnectionID returns the opaque transport identity of this connection.
func (c *Client) ConnectionID() string { return c.connID }

// Push queues a server-originated frame for delivery. It never blocks and
// reports false when the queue is full or closed.
func (c *Client) Push(event string, data any) bool {
	return c.queueFrame(protocol.NewFrame(event, 0, data))
}

func (c *Client) ack(id uint64, payload any) {
	if !c.queueFrame(protocol.NewFrame(protocol.EventAck, id, payload)) {
		log.Printf("[WS] %s: dropped ack %d (send queue full)", c.connID, id)
	}
}

func (c *Client) queueFrame(f protocol.Frame) bool {
	raw, err := json.Marshal(f)
	if err != nil {
		return false
	}
	defer func() {
		// The send queue closes when the connection dies; a racing push is
		// not an error, the frame is simply lost with the connection.
		_ = recover()
	}()
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.sup.Disconnected(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] %s: unexpected close: %v", c.connID, err)
			}
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("[WS] %s: discarding malformed frame: %v", c.connID, err)
			continue
		}

		if !c.limiter.Allow() {
			c.handleThrottled(frame)
			continue
		}

		c.dispatch(frame)
	}
}

// handleThrottled keeps the one-ack-per-request guarantee for throttled
// requests and silently drops fire-and-forget events.
func (c *Client) handleThrottled(frame protocol.Frame) {
	if time.Since(c.lastWarning) > 3*time.Second {
		log.Printf("[WS] %s: rate limit exceeded", c.connID)
		c.lastWarning = time.Now()
	}
	if frame.Ack != 0 {
		c.ack(frame.Ack, protocol.JoinRoomAck{Success: false, Message: "rate limit exceeded"})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(raw)

			// Drain whatever else is queued into the same write.
			n := len(c.send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(queued)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
