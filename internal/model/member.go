package model

// Member is a presence entry: one online connection of a group member.
// Identity and group authorization are supplied by the caller; presence is
// never persisted.
type Member struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
	ConnID  string `json:"connId"`
}
