package presence

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peerbeam/peerbeam/internal/broker"
	apperrors "github.com/peerbeam/peerbeam/internal/errors"
	"github.com/peerbeam/peerbeam/internal/model"
)

// Event types for the request negotiation.
const (
	EventRequestIncoming  = "request:incoming"
	EventRequestSent      = "request:sent"
	EventRequestAccepted  = "request:accepted"
	EventRequestDeclined  = "request:declined"
	EventRequestCancelled = "request:cancelled"
	EventRequestExpired   = "request:expired"
)

const requestTokenBytes = 32

// RoomAllocator is the slice of the room coordinator the negotiator needs:
// collision-free code reservation up front, materialization on accept.
type RoomAllocator interface {
	AllocateCode(ctx context.Context, reserveTTL time.Duration) (string, error)
	Materialize(ctx context.Context, code, groupID string) (*model.Room, error)
}

// ReservationReleaser is optional on the store side; the coordinator's store
// always provides it through the allocator in practice.
type ReservationReleaser interface {
	ReleaseReservation(ctx context.Context, code string) error
}

type pendingRequest struct {
	req   *model.ConnectionRequest
	timer *time.Timer
}

// Negotiator drives the connection-request state machine:
// created -> sent -> accepted | declined | cancelled | expired. Every
// terminal transition removes the request and stops its expiry timer.
type Negotiator struct {
	directory *Directory
	rooms     RoomAllocator
	releaser  ReservationReleaser
	notifier  broker.Notifier
	window    time.Duration

	mu      sync.Mutex
	pending map[string]*pendingRequest // token -> request
}

func NewNegotiator(
	directory *Directory,
	rooms RoomAllocator,
	releaser ReservationReleaser,
	notifier broker.Notifier,
	window time.Duration,
) *Negotiator {
	return &Negotiator{
		directory: directory,
		rooms:     rooms,
		releaser:  releaser,
		notifier:  notifier,
		window:    window,
		pending:   make(map[string]*pendingRequest),
	}
}

// Request asks toMemberID (who must be online in the requester's group) to
// open a session. The room code is reserved but not materialized; both
// parties learn it up front so accept can hand it straight back.
func (n *Negotiator) Request(ctx context.Context, from model.Member, groupID, toMemberID string) (*model.ConnectionRequest, error) {
	target, ok := n.directory.Find(groupID, toMemberID)
	if !ok {
		return nil, apperrors.TargetNotOnline(toMemberID)
	}

	// Reservation outlives the request window so an accept near the deadline
	// still finds its code held.
	code, err := n.rooms.AllocateCode(ctx, 2*n.window)
	if err != nil {
		return nil, err
	}

	req := &model.ConnectionRequest{
		Token:          generateRequestToken(),
		GroupID:        groupID,
		FromMemberID:   from.ID,
		FromMemberName: from.Name,
		FromConnID:     from.ConnID,
		ToMemberID:     target.ID,
		ToConnID:       target.ConnID,
		RoomCode:       code,
		CreatedAt:      time.Now().UTC(),
	}

	n.mu.Lock()
	p := &pendingRequest{req: req}
	p.timer = time.AfterFunc(n.window, func() { n.expire(req.Token) })
	n.pending[req.Token] = p
	n.mu.Unlock()

	n.notifier.Notify(ctx, target.ConnID, broker.NewEvent(EventRequestIncoming, map[string]any{
		"token":    req.Token,
		"from":     model.Member{ID: from.ID, Name: from.Name, ConnID: from.ConnID},
		"roomCode": code,
	}))
	n.notifier.Notify(ctx, from.ConnID, broker.NewEvent(EventRequestSent, map[string]any{
		"token":    req.Token,
		"to":       toMemberID,
		"roomCode": code,
	}))

	log.Info().
		Str("token", req.Token).
		Str("fromMemberId", from.ID).
		Str("toMemberId", toMemberID).
		Str("roomCode", code).
		Msg("connection request sent")

	return req, nil
}

// Accept materializes the reserved room and notifies both parties. Only the
// connection recorded as the target may accept.
func (n *Negotiator) Accept(ctx context.Context, token, byConn string) error {
	req, err := n.take(token, byConn, func(r *model.ConnectionRequest) bool {
		return r.ToConnID == byConn
	})
	if err != nil {
		return err
	}

	if _, err := n.rooms.Materialize(ctx, req.RoomCode, req.GroupID); err != nil {
		// The counterpart still learns the request is gone.
		n.notifier.Notify(ctx, req.FromConnID, broker.NewEvent(EventRequestCancelled, map[string]any{
			"token": token,
		}))
		return err
	}

	accepted := broker.NewEvent(EventRequestAccepted, map[string]any{
		"token":    token,
		"roomCode": req.RoomCode,
		"peer": map[string]string{
			"memberId": req.ToMemberID,
		},
	})
	n.notifier.Notify(ctx, req.FromConnID, accepted)
	n.notifier.Notify(ctx, req.ToConnID, broker.NewEvent(EventRequestAccepted, map[string]any{
		"token":    token,
		"roomCode": req.RoomCode,
		"peer": map[string]string{
			"memberId": req.FromMemberID,
		},
	}))

	log.Info().Str("token", token).Str("roomCode", req.RoomCode).Msg("connection request accepted")
	return nil
}

// Decline terminates the request without a room. Target only.
func (n *Negotiator) Decline(ctx context.Context, token, byConn string) error {
	req, err := n.take(token, byConn, func(r *model.ConnectionRequest) bool {
		return r.ToConnID == byConn
	})
	if err != nil {
		return err
	}

	n.releaseCode(ctx, req.RoomCode)
	n.notifier.Notify(ctx, req.FromConnID, broker.NewEvent(EventRequestDeclined, map[string]any{
		"token": token,
		"by":    req.ToMemberID,
	}))

	log.Info().Str("token", token).Msg("connection request declined")
	return nil
}

// Cancel terminates the request before the target answers. Requester only.
func (n *Negotiator) Cancel(ctx context.Context, token, byConn string) error {
	req, err := n.take(token, byConn, func(r *model.ConnectionRequest) bool {
		return r.FromConnID == byConn
	})
	if err != nil {
		return err
	}

	n.releaseCode(ctx, req.RoomCode)
	n.notifier.Notify(ctx, req.ToConnID, broker.NewEvent(EventRequestCancelled, map[string]any{
		"token": token,
	}))

	log.Info().Str("token", token).Msg("connection request cancelled")
	return nil
}

// CancelByConnection force-terminates every pending request the disconnecting
// connection participates in, notifying the counterpart. Called from the
// presence disconnect path so no request is left orphaned.
func (n *Negotiator) CancelByConnection(ctx context.Context, connID string) {
	n.mu.Lock()
	var affected []*model.ConnectionRequest
	for token, p := range n.pending {
		if p.req.FromConnID == connID || p.req.ToConnID == connID {
			p.timer.Stop()
			delete(n.pending, token)
			affected = append(affected, p.req)
		}
	}
	n.mu.Unlock()

	for _, req := range affected {
		counterpart := req.FromConnID
		if counterpart == connID {
			counterpart = req.ToConnID
		}

		n.releaseCode(ctx, req.RoomCode)
		n.notifier.Notify(ctx, counterpart, broker.NewEvent(EventRequestCancelled, map[string]any{
			"token": req.Token,
		}))

		log.Info().
			Str("token", req.Token).
			Str("connId", connID).
			Msg("connection request cancelled by disconnect")
	}
}

// PendingCount is exposed for tests and operational introspection.
func (n *Negotiator) PendingCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// take removes the request under token if byConn passes the authorization
// check. An unauthorized actor leaves the request pending.
func (n *Negotiator) take(token, byConn string, authorized func(*model.ConnectionRequest) bool) (*model.ConnectionRequest, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.pending[token]
	if !ok {
		return nil, apperrors.RequestNotFound()
	}
	if !authorized(p.req) {
		return nil, apperrors.NotAuthorizedForRequest()
	}

	p.timer.Stop()
	delete(n.pending, token)
	return p.req, nil
}

func (n *Negotiator) expire(token string) {
	n.mu.Lock()
	p, ok := n.pending[token]
	if ok {
		delete(n.pending, token)
	}
	n.mu.Unlock()

	if !ok {
		// A terminal transition won the race; nothing to do.
		return
	}

	ctx := context.Background()
	n.releaseCode(ctx, p.req.RoomCode)

	expired := broker.NewEvent(EventRequestExpired, map[string]any{
		"token": token,
	})
	n.notifier.Notify(ctx, p.req.FromConnID, expired)
	n.notifier.Notify(ctx, p.req.ToConnID, expired)

	log.Info().Str("token", token).Msg("connection request expired")
}

func (n *Negotiator) releaseCode(ctx context.Context, code string) {
	if n.releaser == nil {
		return
	}
	if err := n.releaser.ReleaseReservation(ctx, code); err != nil {
		log.Warn().Err(err).Str("roomCode", code).Msg("failed to release code reservation")
	}
}

func generateRequestToken() string {
	bytes := make([]byte, requestTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}
