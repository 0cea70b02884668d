package model

import "time"

// Role of a participant within a room, determined by join order.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleJoiner    Role = "joiner"
)

// MaxRoomParticipants caps a room at one initiator and one joiner.
const MaxRoomParticipants = 2

// Room is the 2-party rendezvous object identified by a short code. The
// participant list is ordered: position 0 is the initiator, position 1 the
// joiner. Content never passes through a room; it only carries negotiation
// bookkeeping.
type Room struct {
	Code         string    `json:"code" redis:"code"`
	CreatedAt    time.Time `json:"createdAt" redis:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt" redis:"lastActiveAt"`
	Participants []string  `json:"participants" redis:"participants"`
	GroupID      string    `json:"groupId,omitempty" redis:"groupId"`
}

func (r *Room) IsFull() bool {
	return len(r.Participants) >= MaxRoomParticipants
}

func (r *Room) HasParticipant(connID string) bool {
	for _, p := range r.Participants {
		if p == connID {
			return true
		}
	}
	return false
}

// PeerOf returns the connection id of the other participant, or "" when the
// room holds no other participant.
func (r *Room) PeerOf(connID string) string {
	for _, p := range r.Participants {
		if p != connID {
			return p
		}
	}
	return ""
}

// RoleOf returns the role implied by a participant's position in the list.
func (r *Room) RoleOf(connID string) (Role, bool) {
	for i, p := range r.Participants {
		if p == connID {
			if i == 0 {
				return RoleInitiator, true
			}
			return RoleJoiner, true
		}
	}
	return "", false
}
