package broker

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// LocalNotifier delivers events within one process without Redis. It backs
// tests and single-binary deployments running on the memory store.
type LocalNotifier struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{clients: make(map[string]*Client)}
}

func (n *LocalNotifier) Subscribe(connID string) *Client {
	client := &Client{
		ConnID: connID,
		Events: make(chan Event, 100),
		Done:   make(chan struct{}),
	}

	n.mu.Lock()
	n.clients[connID] = client
	n.mu.Unlock()

	return client
}

func (n *LocalNotifier) Unsubscribe(client *Client) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if current, ok := n.clients[client.ConnID]; ok && current == client {
		delete(n.clients, client.ConnID)
		close(client.Done)
	}
}

func (n *LocalNotifier) Notify(_ context.Context, connID string, event Event) {
	n.mu.RLock()
	client := n.clients[connID]
	n.mu.RUnlock()

	if client == nil {
		return
	}

	select {
	case client.Events <- event:
	default:
		log.Warn().Str("connId", connID).Msg("client event buffer full, dropping event")
	}
}
