package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peerbeam/peerbeam/internal/broker"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 64 KiB covers SDP payloads.
	maxMessageSize = 64 * 1024
)

// SessionHandler receives decoded messages and the disconnect for one
// websocket connection. Calls arrive from the connection's read goroutine,
// so per-connection state needs no locking inside a handler.
type SessionHandler interface {
	HandleMessage(ctx context.Context, c *Client, msg Message)
	HandleDisconnect(ctx context.Context, c *Client)
}

// Client wraps a single websocket connection. Outbound events always travel
// through the broker, so delivery behaves the same whether the sender is this
// process or another instance.
type Client struct {
	ConnID string

	// Per-connection namespace state, owned by the read goroutine.
	RoomCode string
	GroupID  string

	conn    *websocket.Conn
	bus     broker.Bus
	events  *broker.Client
	handler SessionHandler
}

// Endpoint upgrades HTTP requests into websocket sessions for one namespace.
type Endpoint struct {
	bus      broker.Bus
	handler  SessionHandler
	upgrader websocket.Upgrader
}

func NewEndpoint(bus broker.Bus, handler SessionHandler, allowedOrigins []string) *Endpoint {
	return &Endpoint{
		bus:     bus,
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	client := &Client{
		ConnID:  connID,
		conn:    conn,
		bus:     e.bus,
		events:  e.bus.Subscribe(connID),
		handler: e.handler,
	}

	log.Info().Str("connId", connID).Str("remoteAddr", r.RemoteAddr).Msg("websocket connected")

	go client.writePump()
	go client.readPump()
}

// Emit delivers an event to any connection (including this one) through the
// broker.
func (c *Client) Emit(ctx context.Context, connID, eventType string, payload any) {
	c.bus.Notify(ctx, connID, broker.NewEvent(eventType, payload))
}

// EmitError reports a failed operation back to this connection.
func (c *Client) EmitError(ctx context.Context, code, message string) {
	c.Emit(ctx, c.ConnID, EventError, ErrorPayload{Code: code, Message: message})
}

// readPump pumps messages from the websocket into the session handler. At
// most one reader per connection runs, so handler calls are serialized.
func (c *Client) readPump() {
	defer func() {
		ctx := context.Background()
		c.handler.HandleDisconnect(ctx, c)
		c.bus.Unsubscribe(c.events)
		c.conn.Close()
		log.Info().Str("connId", c.ConnID).Msg("websocket disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connId", c.ConnID).Msg("websocket read error")
			}
			return
		}

		c.handler.HandleMessage(context.Background(), c, msg)
	}
}

// writePump pumps broker events to the websocket. At most one writer per
// connection runs.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event := <-c.events.Events:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := Message{Type: event.Type, Payload: event.Payload}
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("connId", c.ConnID).Msg("websocket write error")
				return
			}

		case <-c.events.Done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
