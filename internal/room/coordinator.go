package room

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peerbeam/peerbeam/internal/config"
	apperrors "github.com/peerbeam/peerbeam/internal/errors"
	"github.com/peerbeam/peerbeam/internal/model"
	"github.com/peerbeam/peerbeam/internal/store"
)

// EventSink receives room lifecycle events for the audit log. Implementations
// must not block room operations on failure.
type EventSink interface {
	Record(ctx context.Context, code string, event model.RoomEventType, participantCount int)
}

// NopSink discards lifecycle events; used when no database is configured.
type NopSink struct{}

func (NopSink) Record(context.Context, string, model.RoomEventType, int) {}

// JoinResult describes the outcome of a successful join.
type JoinResult struct {
	Role             model.Role
	ParticipantCount int
	// PeerConnID is the other participant's connection id when the join
	// completed a pair, otherwise "".
	PeerConnID string
}

// Coordinator owns room creation, join, leave and close. All mutation of a
// room happens while holding that room's keyed mutex, so two near-simultaneous
// joiners cannot both be assigned the initiator role.
type Coordinator struct {
	store store.Store
	locks *keyedMutex
	sink  EventSink
	ttl   time.Duration
}

func NewCoordinator(s store.Store, sink EventSink, ttl time.Duration) *Coordinator {
	if sink == nil {
		sink = NopSink{}
	}
	return &Coordinator{
		store: s,
		locks: newKeyedMutex(),
		sink:  sink,
		ttl:   ttl,
	}
}

func (c *Coordinator) TTL() time.Duration {
	return c.ttl
}

// Create allocates an unused code and materializes an empty room under it.
func (c *Coordinator) Create(ctx context.Context, groupID string) (*model.Room, error) {
	code, err := c.AllocateCode(ctx, c.ttl)
	if err != nil {
		return nil, err
	}
	return c.Materialize(ctx, code, groupID)
}

// AllocateCode reserves a collision-free code without materializing a room.
// The reservation keeps concurrent allocations from handing out the same
// code; it expires on its own if never materialized.
func (c *Coordinator) AllocateCode(ctx context.Context, reserveTTL time.Duration) (string, error) {
	for attempt := 0; attempt < config.MaxCodeAttempts; attempt++ {
		code := generateRoomCode()
		ok, err := c.store.Reserve(ctx, code, reserveTTL)
		if err != nil {
			return "", apperrors.Store(err)
		}
		if ok {
			return code, nil
		}
	}
	return "", apperrors.CodeExhausted()
}

// Materialize turns a reserved code into an empty room with the full TTL.
func (c *Coordinator) Materialize(ctx context.Context, code, groupID string) (*model.Room, error) {
	now := time.Now().UTC()
	room := &model.Room{
		Code:         code,
		CreatedAt:    now,
		LastActiveAt: now,
		Participants: []string{},
		GroupID:      groupID,
	}

	if err := c.store.PutRoom(ctx, room, c.ttl); err != nil {
		return nil, apperrors.Store(err)
	}

	c.sink.Record(ctx, code, model.RoomEventCreated, 0)
	log.Info().Str("roomCode", code).Str("groupId", groupID).Msg("room created")
	return room, nil
}

// Get is the idempotent read backing GET /rooms/{code}.
func (c *Coordinator) Get(ctx context.Context, code string) (*model.Room, error) {
	room, err := c.store.GetRoom(ctx, code)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	if room == nil {
		return nil, apperrors.RoomNotFound(code)
	}
	return room, nil
}

// Join appends connID to the room's participant list and assigns the role
// from its position. Joining a room you are already in is idempotent and
// returns the previously assigned role.
func (c *Coordinator) Join(ctx context.Context, code, connID string) (*JoinResult, error) {
	unlock := c.locks.Lock(code)
	defer unlock()

	room, err := c.store.GetRoom(ctx, code)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	if room == nil {
		return nil, apperrors.RoomNotFound(code)
	}

	if role, ok := room.RoleOf(connID); ok {
		return &JoinResult{
			Role:             role,
			ParticipantCount: len(room.Participants),
			PeerConnID:       room.PeerOf(connID),
		}, nil
	}

	if room.IsFull() {
		return nil, apperrors.RoomFull(code)
	}

	room.Participants = append(room.Participants, connID)
	room.LastActiveAt = time.Now().UTC()
	if err := c.store.PutRoom(ctx, room, c.ttl); err != nil {
		return nil, apperrors.Store(err)
	}

	role, _ := room.RoleOf(connID)
	result := &JoinResult{
		Role:             role,
		ParticipantCount: len(room.Participants),
		PeerConnID:       room.PeerOf(connID),
	}

	c.sink.Record(ctx, code, model.RoomEventJoined, len(room.Participants))
	log.Info().
		Str("roomCode", code).
		Str("connId", connID).
		Str("role", string(role)).
		Int("participants", len(room.Participants)).
		Msg("participant joined")

	return result, nil
}

// Leave removes connID from the room if present and returns the remaining
// peer's connection id, or "". The room itself is never deleted here: TTL
// reclaims empty rooms, which absorbs duplicate or late leave calls from the
// same logical session.
func (c *Coordinator) Leave(ctx context.Context, code, connID string) (peerConnID string, err error) {
	unlock := c.locks.Lock(code)
	defer unlock()

	room, err := c.store.GetRoom(ctx, code)
	if err != nil {
		return "", apperrors.Store(err)
	}
	if room == nil || !room.HasParticipant(connID) {
		return "", nil
	}

	remaining := room.Participants[:0]
	for _, p := range room.Participants {
		if p != connID {
			remaining = append(remaining, p)
		}
	}
	room.Participants = remaining
	room.LastActiveAt = time.Now().UTC()

	if err := c.store.PutRoom(ctx, room, c.ttl); err != nil {
		return "", apperrors.Store(err)
	}

	c.sink.Record(ctx, code, model.RoomEventLeft, len(room.Participants))
	log.Info().
		Str("roomCode", code).
		Str("connId", connID).
		Int("participants", len(room.Participants)).
		Msg("participant left")

	return room.PeerOf(connID), nil
}

// Close deletes the room immediately.
func (c *Coordinator) Close(ctx context.Context, code string) error {
	unlock := c.locks.Lock(code)
	defer unlock()

	room, err := c.store.GetRoom(ctx, code)
	if err != nil {
		return apperrors.Store(err)
	}
	if room == nil {
		return apperrors.RoomNotFound(code)
	}

	if err := c.store.DeleteRoom(ctx, code); err != nil {
		return apperrors.Store(err)
	}

	c.sink.Record(ctx, code, model.RoomEventClosed, len(room.Participants))
	log.Info().Str("roomCode", code).Msg("room closed")
	return nil
}

// IsParticipant reports whether connID currently belongs to the room.
func (c *Coordinator) IsParticipant(ctx context.Context, code, connID string) (bool, error) {
	room, err := c.store.GetRoom(ctx, code)
	if err != nil {
		return false, apperrors.Store(err)
	}
	return room != nil && room.HasParticipant(connID), nil
}

func generateRoomCode() string {
	chars := []byte(config.RoomCodeAlphabet)
	code := make([]byte, config.RoomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			panic(fmt.Sprintf("room code entropy: %v", err))
		}
		code[i] = chars[n.Int64()]
	}
	return string(code)
}
