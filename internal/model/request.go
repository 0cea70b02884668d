package model

import "time"

// RequestState tracks the connection-request state machine. All states other
// than StateSent are terminal; a terminated request is removed immediately.
type RequestState string

const (
	StateSent      RequestState = "sent"
	StateAccepted  RequestState = "accepted"
	StateDeclined  RequestState = "declined"
	StateCancelled RequestState = "cancelled"
	StateExpired   RequestState = "expired"
)

// ConnectionRequest is a time-boxed, token-identified negotiation between two
// members to open a new session. Authorization is scoped to the two
// connection ids recorded at creation time.
type ConnectionRequest struct {
	Token          string
	GroupID        string
	FromMemberID   string
	FromMemberName string
	FromConnID     string
	ToMemberID     string
	ToConnID       string
	RoomCode       string
	CreatedAt      time.Time
}
