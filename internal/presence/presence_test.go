package presence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerbeam/peerbeam/internal/broker"
	apperrors "github.com/peerbeam/peerbeam/internal/errors"
	"github.com/peerbeam/peerbeam/internal/model"
	"github.com/peerbeam/peerbeam/internal/room"
	"github.com/peerbeam/peerbeam/internal/store"
)

// captureNotifier records every delivered event per connection.
type captureNotifier struct {
	mu     sync.Mutex
	events map[string][]broker.Event
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{events: make(map[string][]broker.Event)}
}

func (c *captureNotifier) Notify(_ context.Context, connID string, event broker.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[connID] = append(c.events[connID], event)
}

func (c *captureNotifier) of(connID string) []broker.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]broker.Event(nil), c.events[connID]...)
}

func (c *captureNotifier) countOf(connID, eventType string) int {
	count := 0
	for _, e := range c.of(connID) {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

func payloadOf(t *testing.T, e broker.Event) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	return payload
}

func alice() model.Member {
	return model.Member{ID: "alice", Name: "Alice", ConnID: "conn-a"}
}

func bob() model.Member {
	return model.Member{ID: "bob", Name: "Bob", ConnID: "conn-b"}
}

func TestDirectoryAnnounce(t *testing.T) {
	ctx := context.Background()
	notifier := newCaptureNotifier()
	d := NewDirectory(notifier)

	t.Run("first member sees empty online set", func(t *testing.T) {
		online := d.Announce(ctx, "group-1", alice())
		assert.Empty(t, online)
	})

	t.Run("second member sees the first and the first is notified", func(t *testing.T) {
		online := d.Announce(ctx, "group-1", bob())
		require.Len(t, online, 1)
		assert.Equal(t, "alice", online[0].ID)

		events := notifier.of("conn-a")
		require.Len(t, events, 1)
		assert.Equal(t, EventMemberJoined, events[0].Type)
	})

	t.Run("find locates online member", func(t *testing.T) {
		m, ok := d.Find("group-1", "bob")
		require.True(t, ok)
		assert.Equal(t, "conn-b", m.ConnID)
	})

	t.Run("find misses offline member", func(t *testing.T) {
		_, ok := d.Find("group-1", "carol")
		assert.False(t, ok)
	})
}

func TestDirectoryLeave(t *testing.T) {
	ctx := context.Background()
	notifier := newCaptureNotifier()
	d := NewDirectory(notifier)

	d.Announce(ctx, "group-1", alice())
	d.Announce(ctx, "group-1", bob())

	d.Leave(ctx, "conn-a")

	t.Run("removed immediately", func(t *testing.T) {
		_, ok := d.Find("group-1", "alice")
		assert.False(t, ok)
	})

	t.Run("remaining member notified", func(t *testing.T) {
		assert.Equal(t, 1, notifier.countOf("conn-b", EventMemberLeft))
	})

	t.Run("duplicate leave is silent", func(t *testing.T) {
		d.Leave(ctx, "conn-a")
		assert.Equal(t, 1, notifier.countOf("conn-b", EventMemberLeft))
	})
}

func newTestNegotiator(notifier broker.Notifier, window time.Duration) (*Negotiator, *Directory, *room.Coordinator) {
	s := store.NewMemoryStore()
	coordinator := room.NewCoordinator(s, nil, 30*time.Minute)
	directory := NewDirectory(notifier)
	negotiator := NewNegotiator(directory, coordinator, s, notifier, window)
	return negotiator, directory, coordinator
}

func TestRequestFlow(t *testing.T) {
	ctx := context.Background()
	notifier := newCaptureNotifier()
	n, d, coordinator := newTestNegotiator(notifier, time.Minute)

	d.Announce(ctx, "group-1", alice())
	d.Announce(ctx, "group-1", bob())

	req, err := n.Request(ctx, alice(), "group-1", "bob")
	require.NoError(t, err)

	t.Run("both parties are notified with the room code", func(t *testing.T) {
		incoming := notifier.of("conn-b")
		require.NotEmpty(t, incoming)
		last := incoming[len(incoming)-1]
		assert.Equal(t, EventRequestIncoming, last.Type)

		payload := payloadOf(t, last)
		assert.Equal(t, req.Token, payload["token"])
		assert.Equal(t, req.RoomCode, payload["roomCode"])
		from := payload["from"].(map[string]any)
		assert.Equal(t, "Alice", from["name"])

		sent := notifier.of("conn-a")
		require.NotEmpty(t, sent)
		assert.Equal(t, EventRequestSent, sent[len(sent)-1].Type)
	})

	t.Run("room is not materialized before accept", func(t *testing.T) {
		_, err := coordinator.Get(ctx, req.RoomCode)
		assert.Equal(t, apperrors.ErrCodeRoomNotFound, apperrors.GetCode(err))
	})

	t.Run("accept materializes an empty room both can join", func(t *testing.T) {
		require.NoError(t, n.Accept(ctx, req.Token, "conn-b"))

		assert.Equal(t, 1, notifier.countOf("conn-a", EventRequestAccepted))
		assert.Equal(t, 1, notifier.countOf("conn-b", EventRequestAccepted))

		got, err := coordinator.Get(ctx, req.RoomCode)
		require.NoError(t, err)
		assert.Empty(t, got.Participants)

		_, err = coordinator.Join(ctx, req.RoomCode, "conn-a")
		require.NoError(t, err)
		_, err = coordinator.Join(ctx, req.RoomCode, "conn-b")
		require.NoError(t, err)
		_, err = coordinator.Join(ctx, req.RoomCode, "conn-c")
		assert.Equal(t, apperrors.ErrCodeRoomFull, apperrors.GetCode(err))
	})

	t.Run("terminated token is unusable", func(t *testing.T) {
		err := n.Accept(ctx, req.Token, "conn-b")
		assert.Equal(t, apperrors.ErrCodeRequestNotFound, apperrors.GetCode(err))
	})

	t.Run("request to offline member fails", func(t *testing.T) {
		_, err := n.Request(ctx, alice(), "group-1", "carol")
		assert.Equal(t, apperrors.ErrCodeTargetNotOnline, apperrors.GetCode(err))
	})
}

func TestRequestAuthorization(t *testing.T) {
	ctx := context.Background()
	notifier := newCaptureNotifier()
	n, d, _ := newTestNegotiator(notifier, time.Minute)

	d.Announce(ctx, "group-1", alice())
	d.Announce(ctx, "group-1", bob())

	req, err := n.Request(ctx, alice(), "group-1", "bob")
	require.NoError(t, err)

	t.Run("requester cannot accept own request", func(t *testing.T) {
		err := n.Accept(ctx, req.Token, "conn-a")
		assert.Equal(t, apperrors.ErrCodeNotAuthorizedForRequest, apperrors.GetCode(err))
	})

	t.Run("third party cannot act", func(t *testing.T) {
		err := n.Decline(ctx, req.Token, "conn-z")
		assert.Equal(t, apperrors.ErrCodeNotAuthorizedForRequest, apperrors.GetCode(err))
	})

	t.Run("target cannot cancel", func(t *testing.T) {
		err := n.Cancel(ctx, req.Token, "conn-b")
		assert.Equal(t, apperrors.ErrCodeNotAuthorizedForRequest, apperrors.GetCode(err))
	})

	t.Run("unauthorized attempts leave the request pending", func(t *testing.T) {
		assert.Equal(t, 1, n.PendingCount())
	})

	t.Run("target declines, requester notified", func(t *testing.T) {
		require.NoError(t, n.Decline(ctx, req.Token, "conn-b"))
		assert.Equal(t, 1, notifier.countOf("conn-a", EventRequestDeclined))
		assert.Equal(t, 0, n.PendingCount())
	})
}

func TestRequestCancel(t *testing.T) {
	ctx := context.Background()
	notifier := newCaptureNotifier()
	n, d, _ := newTestNegotiator(notifier, time.Minute)

	d.Announce(ctx, "group-1", alice())
	d.Announce(ctx, "group-1", bob())

	req, err := n.Request(ctx, alice(), "group-1", "bob")
	require.NoError(t, err)

	require.NoError(t, n.Cancel(ctx, req.Token, "conn-a"))
	assert.Equal(t, 1, notifier.countOf("conn-b", EventRequestCancelled))

	err = n.Decline(ctx, req.Token, "conn-b")
	assert.Equal(t, apperrors.ErrCodeRequestNotFound, apperrors.GetCode(err))
}

func TestRequestExpiry(t *testing.T) {
	ctx := context.Background()
	notifier := newCaptureNotifier()
	n, d, _ := newTestNegotiator(notifier, 30*time.Millisecond)

	d.Announce(ctx, "group-1", alice())
	d.Announce(ctx, "group-1", bob())

	req, err := n.Request(ctx, alice(), "group-1", "bob")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return n.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)

	t.Run("both parties notified exactly once", func(t *testing.T) {
		assert.Equal(t, 1, notifier.countOf("conn-a", EventRequestExpired))
		assert.Equal(t, 1, notifier.countOf("conn-b", EventRequestExpired))
	})

	t.Run("no action succeeds after expiry", func(t *testing.T) {
		assert.Equal(t, apperrors.ErrCodeRequestNotFound, apperrors.GetCode(n.Accept(ctx, req.Token, "conn-b")))
		assert.Equal(t, apperrors.ErrCodeRequestNotFound, apperrors.GetCode(n.Decline(ctx, req.Token, "conn-b")))
		assert.Equal(t, apperrors.ErrCodeRequestNotFound, apperrors.GetCode(n.Cancel(ctx, req.Token, "conn-a")))
	})
}

func TestAcceptStopsExpiryTimer(t *testing.T) {
	ctx := context.Background()
	notifier := newCaptureNotifier()
	n, d, _ := newTestNegotiator(notifier, 30*time.Millisecond)

	d.Announce(ctx, "group-1", alice())
	d.Announce(ctx, "group-1", bob())

	req, err := n.Request(ctx, alice(), "group-1", "bob")
	require.NoError(t, err)
	require.NoError(t, n.Accept(ctx, req.Token, "conn-b"))

	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, 0, notifier.countOf("conn-a", EventRequestExpired))
	assert.Equal(t, 0, notifier.countOf("conn-b", EventRequestExpired))
}

func TestDisconnectCascade(t *testing.T) {
	ctx := context.Background()
	notifier := newCaptureNotifier()
	n, d, _ := newTestNegotiator(notifier, time.Minute)

	d.Announce(ctx, "group-1", alice())
	d.Announce(ctx, "group-1", bob())

	req, err := n.Request(ctx, alice(), "group-1", "bob")
	require.NoError(t, err)

	// Requester drops while the request is pending.
	n.CancelByConnection(ctx, "conn-a")
	d.Leave(ctx, "conn-a")

	t.Run("counterpart receives cancellation", func(t *testing.T) {
		assert.Equal(t, 1, notifier.countOf("conn-b", EventRequestCancelled))
	})

	t.Run("token unusable afterward", func(t *testing.T) {
		err := n.Decline(ctx, req.Token, "conn-b")
		assert.Equal(t, apperrors.ErrCodeRequestNotFound, apperrors.GetCode(err))
	})

	t.Run("cascade as target also cancels", func(t *testing.T) {
		d.Announce(ctx, "group-1", alice())
		req2, err := n.Request(ctx, alice(), "group-1", "bob")
		require.NoError(t, err)

		n.CancelByConnection(ctx, "conn-b")
		d.Leave(ctx, "conn-b")

		assert.Equal(t, 1, notifier.countOf("conn-a", EventRequestCancelled))
		assert.Equal(t, apperrors.ErrCodeRequestNotFound, apperrors.GetCode(n.Cancel(ctx, req2.Token, "conn-a")))
	})
}
