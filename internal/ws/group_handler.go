package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	apperrors "github.com/peerbeam/peerbeam/internal/errors"
	"github.com/peerbeam/peerbeam/internal/model"
	"github.com/peerbeam/peerbeam/internal/presence"
)

// GroupHandler drives the group-presence namespace: presence announcements
// and the connection-request negotiation. Member identity in group:join is
// supplied by the external identity layer; this handler trusts it.
type GroupHandler struct {
	directory  *presence.Directory
	negotiator *presence.Negotiator
}

func NewGroupHandler(directory *presence.Directory, negotiator *presence.Negotiator) *GroupHandler {
	return &GroupHandler{directory: directory, negotiator: negotiator}
}

func (h *GroupHandler) HandleMessage(ctx context.Context, c *Client, msg Message) {
	switch msg.Type {
	case MsgGroupJoin:
		h.handleJoin(ctx, c, msg.Payload)
	case MsgGroupLeave:
		h.handleLeave(ctx, c)
	case MsgRequestConnect:
		h.handleConnect(ctx, c, msg.Payload)
	case MsgRequestAccept:
		h.handleRequestAction(ctx, c, msg.Payload, h.negotiator.Accept)
	case MsgRequestDecline:
		h.handleRequestAction(ctx, c, msg.Payload, h.negotiator.Decline)
	case MsgRequestCancel:
		h.handleRequestAction(ctx, c, msg.Payload, h.negotiator.Cancel)
	default:
		log.Debug().Str("type", msg.Type).Str("connId", c.ConnID).Msg("unknown group message type")
	}
}

// HandleDisconnect cascades: pending requests involving this connection are
// force-cancelled before the presence entry disappears.
func (h *GroupHandler) HandleDisconnect(ctx context.Context, c *Client) {
	h.negotiator.CancelByConnection(ctx, c.ConnID)
	h.directory.Leave(ctx, c.ConnID)
	c.GroupID = ""
}

func (h *GroupHandler) handleJoin(ctx context.Context, c *Client, payload json.RawMessage) {
	var join GroupJoinPayload
	if err := json.Unmarshal(payload, &join); err != nil || join.GroupID == "" || join.Member.ID == "" {
		c.EmitError(ctx, string(apperrors.ErrCodeInvalidInput), "group:join requires groupId and member")
		return
	}

	member := model.Member{
		ID:      join.Member.ID,
		Name:    join.Member.Name,
		Contact: join.Member.Contact,
		ConnID:  c.ConnID,
	}

	online := h.directory.Announce(ctx, join.GroupID, member)
	c.GroupID = join.GroupID

	c.Emit(ctx, c.ConnID, presence.EventMembersOnline, map[string]any{
		"members": online,
	})
}

func (h *GroupHandler) handleLeave(ctx context.Context, c *Client) {
	h.negotiator.CancelByConnection(ctx, c.ConnID)
	h.directory.Leave(ctx, c.ConnID)
	c.GroupID = ""
}

func (h *GroupHandler) handleConnect(ctx context.Context, c *Client, payload json.RawMessage) {
	var connect RequestConnectPayload
	if err := json.Unmarshal(payload, &connect); err != nil || connect.ToMemberID == "" {
		c.EmitError(ctx, string(apperrors.ErrCodeInvalidInput), "request:connect requires toMemberId")
		return
	}

	groupID, ok := h.directory.GroupOf(c.ConnID)
	if !ok {
		c.EmitError(ctx, string(apperrors.ErrCodeValidation), "announce presence before requesting a connection")
		return
	}

	from, ok := h.memberOf(groupID, c.ConnID)
	if !ok {
		c.EmitError(ctx, string(apperrors.ErrCodeValidation), "announce presence before requesting a connection")
		return
	}

	if _, err := h.negotiator.Request(ctx, from, groupID, connect.ToMemberID); err != nil {
		c.EmitError(ctx, string(apperrors.GetCode(err)), err.Error())
	}
}

func (h *GroupHandler) handleRequestAction(
	ctx context.Context,
	c *Client,
	payload json.RawMessage,
	action func(ctx context.Context, token, byConn string) error,
) {
	var token TokenPayload
	if err := json.Unmarshal(payload, &token); err != nil || token.Token == "" {
		c.EmitError(ctx, string(apperrors.ErrCodeInvalidInput), "request action requires a token")
		return
	}

	if err := action(ctx, token.Token, c.ConnID); err != nil {
		c.EmitError(ctx, string(apperrors.GetCode(err)), err.Error())
	}
}

// memberOf resolves the announcing member record for a connection.
func (h *GroupHandler) memberOf(groupID, connID string) (model.Member, bool) {
	return h.directory.MemberByConn(groupID, connID)
}
