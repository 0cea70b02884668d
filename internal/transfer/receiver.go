package transfer

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/peerbeam/peerbeam/internal/errors"
)

// Receiver reassembles chunked files from a data channel. Feed it every
// text message via HandleText and every binary message via HandleBinary;
// the ordered channel guarantees each chunk header is immediately followed
// by its payload.
type Receiver struct {
	channel DataChannel

	OnFile     func(*Transfer, []byte)
	OnProgress func(Progress)
	OnMessage  func(frameType, body string)
	OnError    func(fileID string, err error)

	mu       sync.Mutex
	incoming map[string]*incomingFile
	awaiting *chunkSlot // set between a file-chunk header and its payload
}

type incomingFile struct {
	transfer  *Transfer
	chunks    [][]byte
	bytesDone int64
}

type chunkSlot struct {
	fileID string
	index  int
}

func NewReceiver(channel DataChannel) *Receiver {
	return &Receiver{
		channel:  channel,
		incoming: make(map[string]*incomingFile),
	}
}

// HandleText processes one JSON control frame.
func (r *Receiver) HandleText(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Debug().Err(err).Msg("dropping malformed control frame")
		return
	}

	switch f.Type {
	case FrameFileMeta:
		r.handleMeta(f)
	case FrameFileChunk:
		r.handleChunkHeader(f)
	case FrameFileComplete:
		r.handleComplete(f.FileID)
	case FrameFileCancel:
		r.discard(f.FileID, StatusCancelled, apperrors.TransferCancelled())
	case FrameText, FrameTyping, FrameReaction:
		if r.OnMessage != nil {
			r.OnMessage(f.Type, f.Body)
		}
	default:
		log.Debug().Str("type", f.Type).Msg("dropping unknown control frame")
	}
}

// HandleBinary stores the payload announced by the preceding chunk header.
// Binary with no pending header is dropped.
func (r *Receiver) HandleBinary(data []byte) {
	r.mu.Lock()

	slot := r.awaiting
	r.awaiting = nil
	if slot == nil {
		r.mu.Unlock()
		log.Debug().Int("bytes", len(data)).Msg("dropping stray binary message")
		return
	}

	in, ok := r.incoming[slot.fileID]
	if !ok || slot.index < 0 || slot.index >= len(in.chunks) {
		r.mu.Unlock()
		return
	}

	if in.chunks[slot.index] == nil {
		in.transfer.Chunks++
	}
	in.chunks[slot.index] = bytes.Clone(data)
	in.bytesDone += int64(len(data))

	t := in.transfer
	bytesDone := in.bytesDone
	cb := r.OnProgress
	r.mu.Unlock()

	if cb != nil {
		cb(progressSample(t, bytesDone))
	}
}

// Cancel abandons an inbound file and tells the sender to stop.
func (r *Receiver) Cancel(fileID string) {
	r.discard(fileID, StatusCancelled, apperrors.TransferCancelled())
	if err := r.channel.SendText(marshalFrame(fileControlFrame{Type: FrameFileCancel, FileID: fileID})); err != nil {
		log.Debug().Err(err).Str("fileId", fileID).Msg("failed to send cancel frame")
	}
}

// HandleChannelError discards every in-flight file; the channel is gone.
func (r *Receiver) HandleChannelError(err error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.incoming))
	for id := range r.incoming {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.discard(id, StatusFailed, apperrors.TransferFailed("channel error").WithCause(err))
	}
}

func (r *Receiver) handleMeta(f frame) {
	t := &Transfer{
		ID:          f.FileID,
		Name:        f.Name,
		Size:        f.Size,
		MimeType:    f.MimeType,
		TotalChunks: f.TotalChunks,
		Status:      StatusTransferring,
		Direction:   DirectionReceive,
		StartedAt:   time.Now(),
	}

	r.mu.Lock()
	// A repeated fileId means the sender restarted; begin from scratch.
	r.incoming[f.FileID] = &incomingFile{
		transfer: t,
		chunks:   make([][]byte, f.TotalChunks),
	}
	r.mu.Unlock()

	log.Debug().Str("fileId", f.FileID).Str("name", f.Name).Int64("size", f.Size).Msg("incoming transfer")
}

func (r *Receiver) handleChunkHeader(f frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.incoming[f.FileID]; !ok {
		return
	}
	r.awaiting = &chunkSlot{fileID: f.FileID, index: f.Index}
}

func (r *Receiver) handleComplete(fileID string) {
	r.mu.Lock()
	in, ok := r.incoming[fileID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.incoming, fileID)

	t := in.transfer
	if t.Chunks != t.TotalChunks {
		t.Status = StatusFailed
		cb := r.OnError
		r.mu.Unlock()
		if cb != nil {
			cb(fileID, apperrors.TransferFailed("missing chunks"))
		}
		return
	}

	data := bytes.Join(in.chunks, nil)
	t.Status = StatusComplete
	cb := r.OnFile
	r.mu.Unlock()

	log.Debug().Str("fileId", fileID).Int("chunks", t.Chunks).Msg("transfer reassembled")
	if cb != nil {
		cb(t, data)
	}
}

func (r *Receiver) discard(fileID string, status Status, cause error) {
	r.mu.Lock()
	in, ok := r.incoming[fileID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.incoming, fileID)
	if r.awaiting != nil && r.awaiting.fileID == fileID {
		r.awaiting = nil
	}
	in.transfer.Status = status
	cb := r.OnError
	r.mu.Unlock()

	if cb != nil {
		cb(fileID, cause)
	}
}
