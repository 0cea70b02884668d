package ws

import "encoding/json"

// Message is the wire envelope on both event-channel namespaces.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> server, room namespace.
const (
	MsgRoomJoin        = "room:join"
	MsgRoomLeave       = "room:leave"
	MsgSignalOffer     = "signal:offer"
	MsgSignalAnswer    = "signal:answer"
	MsgSignalCandidate = "signal:ice-candidate"
)

// Server -> client, room namespace.
const (
	EventRoomJoined       = "room:joined"
	EventRoomPeerJoined   = "room:peer-joined"
	EventRoomFull         = "room:full"
	EventRoomNotFound     = "room:not-found"
	EventPeerDisconnected = "peer:disconnected"
	EventError            = "error"
)

// Client -> server, group namespace.
const (
	MsgGroupJoin      = "group:join"
	MsgGroupLeave     = "group:leave"
	MsgRequestConnect = "request:connect"
	MsgRequestAccept  = "request:accept"
	MsgRequestDecline = "request:decline"
	MsgRequestCancel  = "request:cancel"
)

type RoomJoinPayload struct {
	Code string `json:"code"`
}

type RoomJoinedPayload struct {
	RoomCode         string `json:"roomCode"`
	ParticipantCount int    `json:"participantCount"`
	IsInitiator      bool   `json:"isInitiator"`
}

type GroupJoinPayload struct {
	GroupID string        `json:"groupId"`
	Member  MemberPayload `json:"member"`
}

type MemberPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
}

type RequestConnectPayload struct {
	ToMemberID string `json:"toMemberId"`
}

type TokenPayload struct {
	Token string `json:"token"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
