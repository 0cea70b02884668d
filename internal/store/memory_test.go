package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerbeam/peerbeam/internal/model"
)

func newTestRoom(code string) *model.Room {
	now := time.Now()
	return &model.Room{
		Code:         code,
		CreatedAt:    now,
		LastActiveAt: now,
		Participants: []string{},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	t.Run("get absent room returns nil", func(t *testing.T) {
		room, err := s.GetRoom(ctx, "AB3X7Q")
		require.NoError(t, err)
		assert.Nil(t, room)
	})

	t.Run("put then get", func(t *testing.T) {
		room := newTestRoom("AB3X7Q")
		room.Participants = []string{"conn-1"}
		require.NoError(t, s.PutRoom(ctx, room, time.Minute))

		got, err := s.GetRoom(ctx, "AB3X7Q")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "AB3X7Q", got.Code)
		assert.Equal(t, []string{"conn-1"}, got.Participants)
	})

	t.Run("returned room is a copy", func(t *testing.T) {
		got, err := s.GetRoom(ctx, "AB3X7Q")
		require.NoError(t, err)
		got.Participants = append(got.Participants, "conn-2")

		again, err := s.GetRoom(ctx, "AB3X7Q")
		require.NoError(t, err)
		assert.Equal(t, []string{"conn-1"}, again.Participants)
	})

	t.Run("delete removes room", func(t *testing.T) {
		require.NoError(t, s.DeleteRoom(ctx, "AB3X7Q"))
		got, err := s.GetRoom(ctx, "AB3X7Q")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	current := time.Now()
	s.now = func() time.Time { return current }

	require.NoError(t, s.PutRoom(ctx, newTestRoom("TTLRM2"), time.Minute))

	t.Run("live before deadline", func(t *testing.T) {
		room, err := s.GetRoom(ctx, "TTLRM2")
		require.NoError(t, err)
		assert.NotNil(t, room)
	})

	t.Run("expired after deadline", func(t *testing.T) {
		current = current.Add(2 * time.Minute)
		room, err := s.GetRoom(ctx, "TTLRM2")
		require.NoError(t, err)
		assert.Nil(t, room)
	})

	t.Run("put renews the deadline", func(t *testing.T) {
		require.NoError(t, s.PutRoom(ctx, newTestRoom("TTLRM3"), time.Minute))
		current = current.Add(50 * time.Second)
		require.NoError(t, s.PutRoom(ctx, newTestRoom("TTLRM3"), time.Minute))
		current = current.Add(50 * time.Second)

		room, err := s.GetRoom(ctx, "TTLRM3")
		require.NoError(t, err)
		assert.NotNil(t, room)
	})
}

func TestMemoryStoreReservations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	t.Run("reserve claims the code", func(t *testing.T) {
		ok, err := s.Reserve(ctx, "RSRV42", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		exists, err := s.RoomExists(ctx, "RSRV42")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("double reserve fails", func(t *testing.T) {
		ok, err := s.Reserve(ctx, "RSRV42", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("reserve against live room fails", func(t *testing.T) {
		require.NoError(t, s.PutRoom(ctx, newTestRoom("LIVE42"), time.Minute))
		ok, err := s.Reserve(ctx, "LIVE42", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("materializing the room consumes the reservation", func(t *testing.T) {
		ok, err := s.Reserve(ctx, "MATZ42", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.PutRoom(ctx, newTestRoom("MATZ42"), time.Minute))

		room, err := s.GetRoom(ctx, "MATZ42")
		require.NoError(t, err)
		assert.NotNil(t, room)
	})

	t.Run("release frees the code", func(t *testing.T) {
		ok, err := s.Reserve(ctx, "FREE42", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.ReleaseReservation(ctx, "FREE42"))

		ok, err = s.Reserve(ctx, "FREE42", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestMemoryStoreReserveConcurrent(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 200; round++ {
		s := NewMemoryStore()

		var wg sync.WaitGroup
		var won atomic.Int32
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.Reserve(ctx, "SAMECD", time.Minute)
				assert.NoError(t, err)
				if ok {
					won.Add(1)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), won.Load(), "exactly one reservation may win")
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	current := time.Now()
	s.now = func() time.Time { return current }

	require.NoError(t, s.PutRoom(ctx, newTestRoom("SWEEP2"), time.Minute))
	require.NoError(t, s.PutRoom(ctx, newTestRoom("SWEEP3"), time.Hour))
	ok, err := s.Reserve(ctx, "SWEEP4", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	current = current.Add(30 * time.Minute)
	assert.Equal(t, 2, s.Sweep())

	room, err := s.GetRoom(ctx, "SWEEP3")
	require.NoError(t, err)
	assert.NotNil(t, room)
}
