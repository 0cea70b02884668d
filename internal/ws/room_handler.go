package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	apperrors "github.com/peerbeam/peerbeam/internal/errors"
	"github.com/peerbeam/peerbeam/internal/model"
	"github.com/peerbeam/peerbeam/internal/room"
)

// RoomHandler drives the room/session namespace: join/leave plus the
// signaling relay. The relay never inspects negotiation payloads; it only
// verifies the sender is a current participant and forwards to the peer.
type RoomHandler struct {
	coordinator *room.Coordinator
}

func NewRoomHandler(coordinator *room.Coordinator) *RoomHandler {
	return &RoomHandler{coordinator: coordinator}
}

func (h *RoomHandler) HandleMessage(ctx context.Context, c *Client, msg Message) {
	switch msg.Type {
	case MsgRoomJoin:
		h.handleJoin(ctx, c, msg.Payload)
	case MsgRoomLeave:
		h.handleLeave(ctx, c)
	case MsgSignalOffer, MsgSignalAnswer, MsgSignalCandidate:
		h.relay(ctx, c, msg)
	default:
		log.Debug().Str("type", msg.Type).Str("connId", c.ConnID).Msg("unknown room message type")
	}
}

func (h *RoomHandler) HandleDisconnect(ctx context.Context, c *Client) {
	h.handleLeave(ctx, c)
}

func (h *RoomHandler) handleJoin(ctx context.Context, c *Client, payload json.RawMessage) {
	var join RoomJoinPayload
	if err := json.Unmarshal(payload, &join); err != nil || join.Code == "" {
		c.EmitError(ctx, string(apperrors.ErrCodeInvalidInput), "room:join requires a code")
		return
	}

	result, err := h.coordinator.Join(ctx, join.Code, c.ConnID)
	if err != nil {
		// Room-full and not-found are distinct named events: the UI renders
		// them differently, so they are not collapsed into one error.
		switch apperrors.GetCode(err) {
		case apperrors.ErrCodeRoomFull:
			c.Emit(ctx, c.ConnID, EventRoomFull, map[string]string{"roomCode": join.Code})
		case apperrors.ErrCodeRoomNotFound:
			c.Emit(ctx, c.ConnID, EventRoomNotFound, map[string]string{"roomCode": join.Code})
		default:
			log.Error().Err(err).Str("roomCode", join.Code).Msg("room join failed")
			c.EmitError(ctx, string(apperrors.GetCode(err)), "failed to join room")
		}
		return
	}

	c.RoomCode = join.Code

	c.Emit(ctx, c.ConnID, EventRoomJoined, RoomJoinedPayload{
		RoomCode:         join.Code,
		ParticipantCount: result.ParticipantCount,
		IsInitiator:      result.Role == model.RoleInitiator,
	})

	if result.PeerConnID != "" {
		c.Emit(ctx, result.PeerConnID, EventRoomPeerJoined, nil)
	}
}

func (h *RoomHandler) handleLeave(ctx context.Context, c *Client) {
	if c.RoomCode == "" {
		return
	}

	peer, err := h.coordinator.Leave(ctx, c.RoomCode, c.ConnID)
	if err != nil {
		log.Error().Err(err).Str("roomCode", c.RoomCode).Msg("room leave failed")
	}
	if peer != "" {
		c.Emit(ctx, peer, EventPeerDisconnected, nil)
	}
	c.RoomCode = ""
}

// relay forwards a negotiation payload verbatim to the other participant,
// tagging it with the sender's connection id. A missing target is silently
// dropped; the leave notification covers it.
func (h *RoomHandler) relay(ctx context.Context, c *Client, msg Message) {
	if c.RoomCode == "" {
		c.EmitError(ctx, string(apperrors.ErrCodeNotInRoom), "join a room before signaling")
		return
	}

	roomState, err := h.coordinator.Get(ctx, c.RoomCode)
	if err != nil || !roomState.HasParticipant(c.ConnID) {
		c.EmitError(ctx, string(apperrors.ErrCodeNotInRoom), "join a room before signaling")
		return
	}

	peer := roomState.PeerOf(c.ConnID)
	if peer == "" {
		log.Debug().Str("roomCode", c.RoomCode).Msg("no peer to relay signal to")
		return
	}

	forwarded, err := tagSender(msg.Payload, c.ConnID)
	if err != nil {
		c.EmitError(ctx, string(apperrors.ErrCodeInvalidInput), "malformed signal payload")
		return
	}

	c.Emit(ctx, peer, msg.Type, forwarded)
}

// tagSender adds the sender's connection id to an otherwise opaque payload.
func tagSender(payload json.RawMessage, connID string) (map[string]any, error) {
	fields := make(map[string]any)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, err
		}
	}
	fields["from"] = connID
	return fields, nil
}
