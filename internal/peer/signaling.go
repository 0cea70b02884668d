package peer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peerbeam/peerbeam/internal/ws"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Signaling is the transport the orchestrator talks through. Satisfied by
// *SignalingClient; tests substitute an in-process fake.
type Signaling interface {
	Send(msgType string, payload any)
	Incoming() <-chan ws.Message
	Close()
}

// SignalingClient maintains the websocket connection to the room namespace
// of the signaling server.
type SignalingClient struct {
	conn      *websocket.Conn
	incoming  chan ws.Message
	outgoing  chan ws.Message
	done      chan struct{}
	closeOnce sync.Once
}

func NewSignalingClient() *SignalingClient {
	return &SignalingClient{
		incoming: make(chan ws.Message, 16),
		outgoing: make(chan ws.Message, 16),
		done:     make(chan struct{}),
	}
}

// Connect dials the server's room websocket endpoint and starts the pumps.
func (c *SignalingClient) Connect(serverURL string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/rooms"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// Send queues a message for the server. Payloads that fail to marshal are
// dropped; the wire types are all plain structs.
func (c *SignalingClient) Send(msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.outgoing <- ws.Message{Type: msgType, Payload: raw}:
	case <-c.done:
	}
}

// Incoming returns the channel of server events. It is closed when the
// connection drops.
func (c *SignalingClient) Incoming() <-chan ws.Message {
	return c.incoming
}

// Close is safe to call from multiple goroutines; the slot's grace-window
// teardown can race a replacement session closing the same client.
func (c *SignalingClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *SignalingClient) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg ws.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			// Nobody is draining incoming once the session is closed.
			return
		}
	}
}

func (c *SignalingClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
