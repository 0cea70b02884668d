package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomIsFull(t *testing.T) {
	room := &Room{Code: "AB3X7Q"}
	assert.False(t, room.IsFull())

	for i := 0; i < MaxRoomParticipants; i++ {
		assert.False(t, room.IsFull())
		room.Participants = append(room.Participants, "conn")
	}
	assert.True(t, room.IsFull())
}

func TestRoomRoles(t *testing.T) {
	room := &Room{Code: "AB3X7Q", Participants: []string{"conn-1", "conn-2"}}

	role, ok := room.RoleOf("conn-1")
	assert.True(t, ok)
	assert.Equal(t, RoleInitiator, role)

	role, ok = room.RoleOf("conn-2")
	assert.True(t, ok)
	assert.Equal(t, RoleJoiner, role)

	_, ok = room.RoleOf("conn-3")
	assert.False(t, ok)

	assert.Equal(t, "conn-2", room.PeerOf("conn-1"))
	assert.Equal(t, "conn-1", room.PeerOf("conn-2"))

	alone := &Room{Code: "AB3X7Q", Participants: []string{"conn-1"}}
	assert.Equal(t, "", alone.PeerOf("conn-1"))
}
