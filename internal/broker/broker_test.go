package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelayFixture(connID string) (*Broker, *Client, chan *redis.Message, chan struct{}) {
	b := NewBroker(nil)
	client := &Client{
		ConnID: connID,
		Events: make(chan Event, 100),
		Done:   make(chan struct{}),
	}
	b.clients[connID] = client

	ch := make(chan *redis.Message, 1)
	stopped := make(chan struct{})
	go func() {
		b.relay(client, ch)
		close(stopped)
	}()

	return b, client, ch, stopped
}

func awaitStopped(t *testing.T, stopped chan struct{}) {
	t.Helper()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("relay goroutine did not stop")
	}
}

func TestBrokerRelayDeliversEvents(t *testing.T) {
	b, client, ch, stopped := newRelayFixture("conn-1")
	defer b.Close()

	payload, err := json.Marshal(Event{Type: "room:peer-joined"})
	require.NoError(t, err)
	ch <- &redis.Message{Payload: string(payload)}

	select {
	case event := <-client.Events:
		assert.Equal(t, "room:peer-joined", event.Type)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}

	b.Unsubscribe(client)
	awaitStopped(t, stopped)
}

func TestBrokerRelayStopsOnUnsubscribe(t *testing.T) {
	b, client, _, stopped := newRelayFixture("conn-1")
	defer b.Close()

	// No message ever arrives on the channel; unsubscribing alone must end
	// the relay, or every closed connection would leak its goroutine.
	b.Unsubscribe(client)
	awaitStopped(t, stopped)
	assert.Equal(t, 0, b.TotalClients())
}

func TestBrokerRelayStopsOnClose(t *testing.T) {
	b, _, _, stopped := newRelayFixture("conn-1")

	b.Close()
	awaitStopped(t, stopped)
}

func TestBrokerUnsubscribeIgnoresStaleClient(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	stale := &Client{ConnID: "conn-1", Events: make(chan Event, 1), Done: make(chan struct{})}
	current := &Client{ConnID: "conn-1", Events: make(chan Event, 1), Done: make(chan struct{})}
	b.clients["conn-1"] = current

	b.Unsubscribe(stale)

	assert.Equal(t, 1, b.TotalClients())
	select {
	case <-current.Done:
		t.Fatal("current client must stay subscribed")
	default:
	}
}
