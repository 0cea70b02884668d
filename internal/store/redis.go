package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peerbeam/peerbeam/internal/model"
)

const (
	roomKeyPrefix    = "room:"
	reserveKeyPrefix = "reserve:"
)

// RedisStore keeps rooms as Redis hashes with native TTL expiry, so a
// multi-instance deployment shares one room namespace.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func roomKey(code string) string {
	return roomKeyPrefix + code
}

func reserveKey(code string) string {
	return reserveKeyPrefix + code
}

func (s *RedisStore) GetRoom(ctx context.Context, code string) (*model.Room, error) {
	fields, err := s.client.HGetAll(ctx, roomKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall room: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	room := &model.Room{Code: code, GroupID: fields["groupId"]}

	if v := fields["createdAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			room.CreatedAt = t
		}
	}
	if v := fields["lastActiveAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			room.LastActiveAt = t
		}
	}
	if v := fields["participants"]; v != "" {
		if err := json.Unmarshal([]byte(v), &room.Participants); err != nil {
			return nil, fmt.Errorf("unmarshal participants: %w", err)
		}
	}

	return room, nil
}

func (s *RedisStore) PutRoom(ctx context.Context, room *model.Room, ttl time.Duration) error {
	participants, err := json.Marshal(room.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}

	key := roomKey(room.Code)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"code", room.Code,
		"createdAt", room.CreatedAt.Format(time.RFC3339Nano),
		"lastActiveAt", room.LastActiveAt.Format(time.RFC3339Nano),
		"participants", string(participants),
		"groupId", room.GroupID,
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put room: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteRoom(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, roomKey(code)).Err(); err != nil {
		return fmt.Errorf("del room: %w", err)
	}
	return nil
}

func (s *RedisStore) RoomExists(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, roomKey(code), reserveKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("exists room: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Reserve(ctx context.Context, code string, ttl time.Duration) (bool, error) {
	// The reservation and the live room share the code namespace, so a
	// reservation must not shadow an existing room.
	exists, err := s.RoomExists(ctx, code)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	ok, err := s.client.SetNX(ctx, reserveKey(code), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve code: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) ReleaseReservation(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, reserveKey(code)).Err(); err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}
