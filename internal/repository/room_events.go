package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/peerbeam/peerbeam/internal/model"
)

type RoomEventRepository interface {
	Insert(ctx context.Context, event *model.RoomEvent) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// Record satisfies the coordinator's event sink. Audit writes are
	// best-effort and must never fail a room operation.
	Record(ctx context.Context, roomCode string, event model.RoomEventType, participantCount int)
	EnsureSchema(ctx context.Context) error
}

// roomEventDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type roomEventDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type roomEventRepo struct {
	db roomEventDB
}

func NewRoomEventRepository(db *sqlx.DB) RoomEventRepository {
	return &roomEventRepo{db: db}
}

func (r *roomEventRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS room_events (
			id BIGSERIAL PRIMARY KEY,
			room_code TEXT NOT NULL,
			event TEXT NOT NULL,
			participant_count INT NOT NULL DEFAULT 0,
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_room_events_occurred_at
		ON room_events (occurred_at)
	`)
	return err
}

func (r *roomEventRepo) Insert(ctx context.Context, event *model.RoomEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO room_events (room_code, event, participant_count, occurred_at)
		VALUES ($1, $2, $3, $4)
	`, event.RoomCode, event.Event, event.ParticipantCount, event.OccurredAt)
	return err
}

func (r *roomEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM room_events WHERE occurred_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *roomEventRepo) Record(ctx context.Context, roomCode string, event model.RoomEventType, participantCount int) {
	err := r.Insert(ctx, &model.RoomEvent{
		RoomCode:         roomCode,
		Event:            event,
		ParticipantCount: participantCount,
		OccurredAt:       time.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).
			Str("roomCode", roomCode).
			Str("event", string(event)).
			Msg("failed to record room event")
	}
}
