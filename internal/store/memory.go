package store

import (
	"context"
	"sync"
	"time"

	"github.com/peerbeam/peerbeam/internal/model"
)

type memoryEntry struct {
	room      *model.Room
	expiresAt time.Time
}

// MemoryStore is the single-process implementation. Entries are evicted
// lazily on read and by Sweep, which the cleanup job calls periodically.
type MemoryStore struct {
	mu           sync.RWMutex
	rooms        map[string]memoryEntry
	reservations map[string]time.Time

	// now is swappable for expiry tests.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:        make(map[string]memoryEntry),
		reservations: make(map[string]time.Time),
		now:          time.Now,
	}
}

func (s *MemoryStore) GetRoom(_ context.Context, code string) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.rooms[code]
	if !ok {
		return nil, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.rooms, code)
		return nil, nil
	}

	clone := *entry.room
	clone.Participants = append([]string(nil), entry.room.Participants...)
	return &clone, nil
}

func (s *MemoryStore) PutRoom(_ context.Context, room *model.Room, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *room
	clone.Participants = append([]string(nil), room.Participants...)
	s.rooms[room.Code] = memoryEntry{room: &clone, expiresAt: s.now().Add(ttl)}
	delete(s.reservations, room.Code)
	return nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	return nil
}

func (s *MemoryStore) RoomExists(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked(code), nil
}

// existsLocked reports whether the code is taken by a live room or
// reservation, evicting expired entries along the way. Callers hold mu.
func (s *MemoryStore) existsLocked(code string) bool {
	if entry, ok := s.rooms[code]; ok {
		if s.now().Before(entry.expiresAt) {
			return true
		}
		delete(s.rooms, code)
	}
	if deadline, ok := s.reservations[code]; ok {
		if s.now().Before(deadline) {
			return true
		}
		delete(s.reservations, code)
	}
	return false
}

// Reserve is the SETNX analogue: the existence check and the write share one
// critical section so concurrent reservations of the same code cannot both
// succeed.
func (s *MemoryStore) Reserve(_ context.Context, code string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.existsLocked(code) {
		return false, nil
	}
	s.reservations[code] = s.now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) ReleaseReservation(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reservations, code)
	return nil
}

// Sweep drops expired rooms and reservations, returning how many entries
// were reclaimed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	reclaimed := 0
	for code, entry := range s.rooms {
		if now.After(entry.expiresAt) {
			delete(s.rooms, code)
			reclaimed++
		}
	}
	for code, deadline := range s.reservations {
		if now.After(deadline) {
			delete(s.reservations, code)
			reclaimed++
		}
	}
	return reclaimed
}
