// Package store holds ephemeral room state with TTL expiry. The interface is
// implementation-agnostic so a shared Redis deployment and a single-process
// in-memory store are interchangeable; all room mutation goes through the
// room coordinator's locked operations, never through this package directly.
package store

import (
	"context"
	"time"

	"github.com/peerbeam/peerbeam/internal/model"
)

type Store interface {
	// GetRoom returns the room for code, or (nil, nil) when absent or expired.
	GetRoom(ctx context.Context, code string) (*model.Room, error)

	// PutRoom writes the full room record and (re)applies the TTL.
	PutRoom(ctx context.Context, room *model.Room, ttl time.Duration) error

	// DeleteRoom removes the room. Deleting an absent room is not an error.
	DeleteRoom(ctx context.Context, code string) error

	// RoomExists reports whether a live room or reservation holds the code.
	RoomExists(ctx context.Context, code string) (bool, error)

	// Reserve claims a code without materializing a room. Returns false when
	// the code is already reserved or in use.
	Reserve(ctx context.Context, code string, ttl time.Duration) (bool, error)

	// ReleaseReservation drops a reservation without creating a room.
	ReleaseReservation(ctx context.Context, code string) error
}
