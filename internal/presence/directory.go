// Package presence tracks which members of a group are currently reachable
// and runs the connection-request negotiation between them. All state is
// scoped to the process; a multi-instance deployment needs sticky routing
// per group (room events, by contrast, fan out through Redis).
package presence

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/peerbeam/peerbeam/internal/broker"
	"github.com/peerbeam/peerbeam/internal/model"
)

// Event types on the group-presence namespace.
const (
	EventMembersOnline = "group:members-online"
	EventMemberJoined  = "group:member-joined"
	EventMemberLeft    = "group:member-left"
)

// Directory is the per-group registry of online members, keyed by connection
// id within each group.
type Directory struct {
	notifier broker.Notifier

	mu     sync.RWMutex
	groups map[string]map[string]model.Member // groupID -> connID -> member
	byConn map[string]string                  // connID -> groupID
}

func NewDirectory(notifier broker.Notifier) *Directory {
	return &Directory{
		notifier: notifier,
		groups:   make(map[string]map[string]model.Member),
		byConn:   make(map[string]string),
	}
}

// Announce registers the member's connection in the group, broadcasts
// member-joined to everyone already online and returns the online set
// (excluding the joiner itself).
func (d *Directory) Announce(ctx context.Context, groupID string, member model.Member) []model.Member {
	d.mu.Lock()

	if prev, ok := d.byConn[member.ConnID]; ok && prev != groupID {
		d.removeLocked(member.ConnID)
	}

	group, ok := d.groups[groupID]
	if !ok {
		group = make(map[string]model.Member)
		d.groups[groupID] = group
	}

	online := make([]model.Member, 0, len(group))
	for _, m := range group {
		online = append(online, m)
	}

	group[member.ConnID] = member
	d.byConn[member.ConnID] = groupID
	d.mu.Unlock()

	for _, m := range online {
		d.notifier.Notify(ctx, m.ConnID, broker.NewEvent(EventMemberJoined, map[string]any{
			"member": member,
		}))
	}

	log.Info().
		Str("groupId", groupID).
		Str("memberId", member.ID).
		Str("connId", member.ConnID).
		Int("online", len(online)+1).
		Msg("member announced presence")

	return online
}

// Leave removes the connection from its group and broadcasts member-left.
// Unknown connections are a no-op.
func (d *Directory) Leave(ctx context.Context, connID string) {
	d.mu.Lock()
	groupID, member, ok := d.lookupLocked(connID)
	if !ok {
		d.mu.Unlock()
		return
	}
	d.removeLocked(connID)

	remaining := make([]model.Member, 0, len(d.groups[groupID]))
	for _, m := range d.groups[groupID] {
		remaining = append(remaining, m)
	}
	d.mu.Unlock()

	for _, m := range remaining {
		d.notifier.Notify(ctx, m.ConnID, broker.NewEvent(EventMemberLeft, map[string]any{
			"memberId": member.ID,
		}))
	}

	log.Info().
		Str("groupId", groupID).
		Str("memberId", member.ID).
		Str("connId", connID).
		Msg("member left group")
}

// Find returns an online member of the group by member id. When the member
// is announced from several connections, any one of them is returned.
func (d *Directory) Find(groupID, memberID string) (model.Member, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, m := range d.groups[groupID] {
		if m.ID == memberID {
			return m, true
		}
	}
	return model.Member{}, false
}

// MemberByConn returns the member record a connection announced in a group.
func (d *Directory) MemberByConn(groupID, connID string) (model.Member, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.groups[groupID][connID]
	return m, ok
}

// GroupOf returns the group a connection announced itself in.
func (d *Directory) GroupOf(connID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	groupID, ok := d.byConn[connID]
	return groupID, ok
}

func (d *Directory) lookupLocked(connID string) (string, model.Member, bool) {
	groupID, ok := d.byConn[connID]
	if !ok {
		return "", model.Member{}, false
	}
	member, ok := d.groups[groupID][connID]
	return groupID, member, ok
}

func (d *Directory) removeLocked(connID string) {
	groupID, ok := d.byConn[connID]
	if !ok {
		return
	}
	delete(d.byConn, connID)
	if group, ok := d.groups[groupID]; ok {
		delete(group, connID)
		if len(group) == 0 {
			delete(d.groups, groupID)
		}
	}
}
