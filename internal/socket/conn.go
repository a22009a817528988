package socket

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Conn is one live transport-level connection. It registers the identity it
// was opened for and pumps frames until the transport drops or the manager
// closes it.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}

	// onFrame receives every validated inbound frame; onClose fires once
	// when the read pump exits, with clientClosed=true for local Close().
	onFrame func(Event)
	onClose func(c *Conn, clientClosed bool)

	mu           sync.Mutex
	clientClosed bool
}

// ID returns the client-generated connection ID, used only for logging.
func (c *Conn) ID() string { return c.id }

// UserID returns the identity this connection registered presence for.
func (c *Conn) UserID() string { return c.userID }

// Emit queues one event for delivery to the server. A full outbound queue
// drops the frame; live emits are delivery hints, never the source of truth.
func (c *Conn) Emit(eventType string, payload interface{}) error {
	frame, err := EncodeEvent(eventType, payload)
	if err != nil {
		return err
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		log.Printf("Socket Conn %s: send queue full, dropping %s frame", c.id, eventType)
		return nil
	}
}

// Close tears the connection down. Idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	c.clientClosed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Conn) wasClientClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientClosed
}

func (c *Conn) readPump() {
	defer func() {
		clientClosed := c.wasClientClosed()
		c.Close()
		if c.onClose != nil {
			c.onClose(c, clientClosed)
		}
		log.Printf("Socket Conn %s (User: %s) readPump: connection closed.", c.id, c.userID)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Socket Conn %s (User: %s) readPump error: %v", c.id, c.userID, err)
			}
			return
		}

		ev, err := DecodeEvent(raw)
		if err != nil {
			// Validated boundary: malformed or unknown frames are logged
			// and dropped, never dispatched.
			log.Printf("Socket Conn %s (User: %s) readPump: dropping frame: %v", c.id, c.userID, err)
			continue
		}
		if c.onFrame != nil {
			c.onFrame(ev)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("Socket Conn %s (User: %s) writePump: write error: %v", c.id, c.userID, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Socket Conn %s (User: %s) writePump: ping error: %v", c.id, c.userID, err)
				return
			}
		case <-c.done:
			return
		}
	}
}
