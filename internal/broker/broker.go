// Package broker fans events out to websocket connections. Events are
// addressed by connection id; the Redis-backed broker publishes through
// pub/sub so a peer attached to another server instance still receives room
// events. Group presence state stays process-local (see internal/presence).
package broker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/peerbeam/peerbeam/internal/redis"
)

// Event is one message on a client's event channel.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an Event. Marshal failures are programming
// errors on our own payload types, so they only log.
func NewEvent(eventType string, payload any) Event {
	if payload == nil {
		return Event{Type: eventType}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("failed to marshal event payload")
		return Event{Type: eventType}
	}
	return Event{Type: eventType, Payload: data}
}

// Notifier delivers an event to one connection. Delivery is best-effort: a
// vanished target is silently dropped (its leave notification subsumes the
// loss).
type Notifier interface {
	Notify(ctx context.Context, connID string, event Event)
}

// Bus is the full fan-out surface the websocket layer consumes: targeted
// delivery plus subscription management for locally attached connections.
type Bus interface {
	Notifier
	Subscribe(connID string) *Client
	Unsubscribe(client *Client)
}

// Client is one subscribed websocket connection.
type Client struct {
	ConnID string
	Events chan Event
	Done   chan struct{}
}

// Broker bridges Redis pub/sub to per-connection event channels.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]*Client
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]*Client),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Subscribe registers a connection and begins relaying its pub/sub channel.
// Connection ids are unique per socket, so there is exactly one client per id.
func (b *Broker) Subscribe(connID string) *Client {
	client := &Client{
		ConnID: connID,
		Events: make(chan Event, 100),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.clients[connID] = client
	b.mu.Unlock()

	go b.subscribeToRedis(client)

	log.Debug().Str("connId", connID).Msg("broker client subscribed")
	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if current, ok := b.clients[client.ConnID]; ok && current == client {
		delete(b.clients, client.ConnID)
		close(client.Done)
		log.Debug().Str("connId", client.ConnID).Msg("broker client unsubscribed")
	}
}

// Notify publishes the event onto the connection's pub/sub channel, reaching
// the instance the connection is attached to.
func (b *Broker) Notify(ctx context.Context, connID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	if err := b.redis.Publish(ctx, redisclient.ConnChannel(connID), data).Err(); err != nil {
		log.Warn().Err(err).Str("connId", connID).Msg("failed to publish event")
	}
}

func (b *Broker) subscribeToRedis(client *Client) {
	channel := redisclient.ConnChannel(client.ConnID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	b.relay(client, pubsub.Channel())
}

// relay forwards pub/sub messages to the client until the client
// unsubscribes, the broker shuts down, or the channel closes. Connection ids
// are unique per socket, so once the client is gone its channel has no other
// consumer and the subscription must be torn down with it.
func (b *Broker) relay(client *Client, ch <-chan *redis.Message) {
	for {
		select {
		case <-b.ctx.Done():
			return

		case <-client.Done:
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.deliver(client.ConnID, event)
		}
	}
}

func (b *Broker) deliver(connID string, event Event) {
	b.mu.RLock()
	client := b.clients[connID]
	b.mu.RUnlock()

	if client == nil {
		return
	}

	select {
	case client.Events <- event:
	default:
		log.Warn().Str("connId", connID).Msg("client event buffer full, dropping event")
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, client := range b.clients {
		close(client.Done)
	}
	b.clients = make(map[string]*Client)
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
