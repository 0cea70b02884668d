package peer

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/peerbeam/peerbeam/internal/ws"
)

// State is the connection lifecycle of one peer session.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateWaiting      State = "waiting"
	StateSignaling    State = "signaling"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
)

func (s State) terminal() bool {
	return s == StateFailed
}

var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// Orchestrator drives one peer connection from room join through data
// channel establishment. All event handling runs on a single goroutine fed
// by the signaling client, so state lives behind one mutex only for the
// benefit of external readers.
type Orchestrator struct {
	signaling Signaling

	// newPeerConn is swappable for tests that never touch the network.
	newPeerConn func() (*webrtc.PeerConnection, error)

	OnStateChange      func(State)
	OnPeerConnected    func(*webrtc.DataChannel)
	OnPeerDisconnected func()

	mu          sync.Mutex
	state       State
	roomCode    string
	isInitiator bool
	pc          *webrtc.PeerConnection
	dc          *webrtc.DataChannel

	// Local candidates wait for the remote description before they are
	// relayed; remote candidates wait for it before they are applied.
	localCandidates  candidateQueue
	remoteCandidates candidateQueue
	connectedFired   bool

	done      chan struct{}
	closeOnce sync.Once
}

func NewOrchestrator(signaling Signaling) *Orchestrator {
	return &Orchestrator{
		signaling: signaling,
		newPeerConn: func() (*webrtc.PeerConnection, error) {
			return webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: defaultICEServers})
		},
		state: StateIdle,
		done:  make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// RoomCode returns the code of the room this session is attached to.
func (o *Orchestrator) RoomCode() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.roomCode
}

// DataChannel returns the established channel, or nil before connection.
func (o *Orchestrator) DataChannel() *webrtc.DataChannel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dc
}

// JoinRoom requests membership in a room and starts processing server
// events. The caller learns the outcome through OnStateChange.
func (o *Orchestrator) JoinRoom(code string) {
	o.mu.Lock()
	o.roomCode = code
	o.mu.Unlock()
	o.setState(StateConnecting)

	o.signaling.Send(ws.MsgRoomJoin, ws.RoomJoinPayload{Code: code})
	go o.run()
}

// Leave tears the session down from any state and returns it to idle.
func (o *Orchestrator) Leave() {
	o.signaling.Send(ws.MsgRoomLeave, nil)
	o.teardown()
	o.setState(StateIdle)
}

// Close releases the session without notifying the server; the connection
// drop carries the news.
func (o *Orchestrator) Close() {
	o.teardown()
	o.closeOnce.Do(func() { close(o.done) })
	o.signaling.Close()
}

func (o *Orchestrator) run() {
	for {
		select {
		case msg, ok := <-o.signaling.Incoming():
			if !ok {
				return
			}
			o.handleEvent(msg)
		case <-o.done:
			return
		}
	}
}

func (o *Orchestrator) handleEvent(msg ws.Message) {
	switch msg.Type {
	case ws.EventRoomJoined:
		var joined ws.RoomJoinedPayload
		if err := json.Unmarshal(msg.Payload, &joined); err != nil {
			return
		}
		o.mu.Lock()
		o.isInitiator = joined.IsInitiator
		o.mu.Unlock()
		if joined.IsInitiator {
			o.setState(StateWaiting)
		} else {
			// The peer is already in the room; expect its offer.
			o.setState(StateSignaling)
			o.startPeerConnection(false)
		}

	case ws.EventRoomPeerJoined:
		o.setState(StateSignaling)
		o.startPeerConnection(true)

	case ws.EventRoomFull, ws.EventRoomNotFound:
		if !o.State().terminal() {
			o.setState(StateFailed)
		}

	case ws.MsgSignalOffer:
		o.handleOffer(msg.Payload)

	case ws.MsgSignalAnswer:
		o.handleAnswer(msg.Payload)

	case ws.MsgSignalCandidate:
		o.handleRemoteCandidate(msg.Payload)

	case ws.EventPeerDisconnected:
		o.teardown()
		o.setState(StateDisconnected)
		if o.OnPeerDisconnected != nil {
			o.OnPeerDisconnected()
		}

	case ws.EventError:
		var p ws.ErrorPayload
		_ = json.Unmarshal(msg.Payload, &p)
		log.Warn().Str("code", p.Code).Str("message", p.Message).Msg("signaling error")
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	if o.state == s {
		o.mu.Unlock()
		return
	}
	o.state = s
	cb := o.OnStateChange
	o.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}

// startPeerConnection builds the pion peer connection. The initiator owns
// the data channel and the offer; the joiner adopts both.
func (o *Orchestrator) startPeerConnection(initiator bool) {
	pc, err := o.newPeerConn()
	if err != nil {
		log.Error().Err(err).Msg("failed to create peer connection")
		o.setState(StateFailed)
		return
	}

	o.mu.Lock()
	o.pc = pc
	o.localCandidates = candidateQueue{}
	o.remoteCandidates = candidateQueue{}
	o.connectedFired = false
	o.mu.Unlock()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		o.localCandidates.Add(c.ToJSON(), o.relayCandidate)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			o.setState(StateConnected)
			o.fireConnected()
		case webrtc.PeerConnectionStateDisconnected:
			o.setState(StateDisconnected)
			if o.OnPeerDisconnected != nil {
				o.OnPeerDisconnected()
			}
		case webrtc.PeerConnectionStateFailed:
			o.setState(StateFailed)
		}
	})

	if initiator {
		ordered := true
		dc, err := pc.CreateDataChannel("data", &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			log.Error().Err(err).Msg("failed to create data channel")
			o.setState(StateFailed)
			return
		}
		o.mu.Lock()
		o.dc = dc
		o.mu.Unlock()

		offer, err := pc.CreateOffer(nil)
		if err != nil {
			log.Error().Err(err).Msg("failed to create offer")
			o.setState(StateFailed)
			return
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			log.Error().Err(err).Msg("failed to set local description")
			o.setState(StateFailed)
			return
		}
		o.signaling.Send(ws.MsgSignalOffer, pc.LocalDescription())
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			o.mu.Lock()
			o.dc = dc
			o.mu.Unlock()
		})
	}
}

func (o *Orchestrator) handleOffer(payload json.RawMessage) {
	o.mu.Lock()
	pc := o.pc
	o.mu.Unlock()
	if pc == nil {
		return
	}

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		log.Error().Err(err).Msg("failed to set remote description")
		o.setState(StateFailed)
		return
	}
	o.flushCandidates(pc)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to create answer")
		o.setState(StateFailed)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		log.Error().Err(err).Msg("failed to set local description")
		o.setState(StateFailed)
		return
	}
	o.signaling.Send(ws.MsgSignalAnswer, pc.LocalDescription())
}

func (o *Orchestrator) handleAnswer(payload json.RawMessage) {
	o.mu.Lock()
	pc := o.pc
	o.mu.Unlock()
	if pc == nil {
		return
	}

	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		log.Error().Err(err).Msg("failed to set remote description")
		o.setState(StateFailed)
		return
	}
	o.flushCandidates(pc)
}

func (o *Orchestrator) handleRemoteCandidate(payload json.RawMessage) {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	pc := o.pc
	if pc == nil {
		return
	}

	o.remoteCandidates.Add(candidate, func(c webrtc.ICECandidateInit) {
		if err := pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Msg("failed to add ICE candidate")
		}
	})
}

// flushCandidates runs once the remote description lands: buffered local
// candidates go to the peer, buffered remote candidates into pion.
func (o *Orchestrator) flushCandidates(pc *webrtc.PeerConnection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.localCandidates.Flush(o.relayCandidate)
	o.remoteCandidates.Flush(func(c webrtc.ICECandidateInit) {
		if err := pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Msg("failed to add ICE candidate")
		}
	})
}

// relayCandidate must be called with o.mu held.
func (o *Orchestrator) relayCandidate(c webrtc.ICECandidateInit) {
	o.signaling.Send(ws.MsgSignalCandidate, c)
}

// fireConnected invokes OnPeerConnected exactly once per peer connection.
func (o *Orchestrator) fireConnected() {
	o.mu.Lock()
	if o.connectedFired {
		o.mu.Unlock()
		return
	}
	o.connectedFired = true
	dc := o.dc
	cb := o.OnPeerConnected
	o.mu.Unlock()

	if cb != nil {
		cb(dc)
	}
}

func (o *Orchestrator) teardown() {
	o.mu.Lock()
	dc, pc := o.dc, o.pc
	o.dc, o.pc = nil, nil
	o.mu.Unlock()

	if dc != nil {
		dc.Close()
	}
	if pc != nil {
		pc.Close()
	}
}
