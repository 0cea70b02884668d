package model

import "time"

// RoomEventType enumerates the auditable room lifecycle events.
type RoomEventType string

const (
	RoomEventCreated RoomEventType = "created"
	RoomEventJoined  RoomEventType = "joined"
	RoomEventLeft    RoomEventType = "left"
	RoomEventClosed  RoomEventType = "closed"
)

// RoomEvent is an append-only audit row. Only lifecycle metadata is recorded;
// transferred content never touches the server.
type RoomEvent struct {
	ID               int64         `db:"id"`
	RoomCode         string        `db:"room_code"`
	Event            RoomEventType `db:"event"`
	ParticipantCount int           `db:"participant_count"`
	OccurredAt       time.Time     `db:"occurred_at"`
}
