package transfer

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/peerbeam/peerbeam/internal/errors"
)

// Sender streams files over a data channel in fixed-size chunks, pausing
// whenever the channel buffers past the high watermark.
type Sender struct {
	channel    DataChannel
	drained    chan struct{}
	OnProgress func(Progress)
}

func NewSender(channel DataChannel) *Sender {
	s := &Sender{
		channel: channel,
		drained: make(chan struct{}, 1),
	}
	channel.SetBufferedAmountLowThreshold(LowWaterMark)
	channel.OnBufferedAmountLow(func() {
		select {
		case s.drained <- struct{}{}:
		default:
		}
	})
	return s
}

// SendMessage delivers an ad-hoc chat frame (text, typing, reaction).
func (s *Sender) SendMessage(frameType, body string) error {
	return s.channel.SendText(marshalFrame(messageFrame{Type: frameType, Body: body}))
}

// Send streams one file. It blocks until the file is fully handed to the
// channel, the context is cancelled, or the channel errors. The returned
// transfer carries the terminal status either way.
func (s *Sender) Send(ctx context.Context, name, mimeType string, size int64, r io.Reader) (*Transfer, error) {
	t := &Transfer{
		ID:          uuid.NewString(),
		Name:        name,
		Size:        size,
		MimeType:    mimeType,
		TotalChunks: totalChunks(size),
		Status:      StatusPending,
		Direction:   DirectionSend,
		StartedAt:   time.Now(),
	}

	meta := fileMetaFrame{
		Type:        FrameFileMeta,
		FileID:      t.ID,
		Name:        t.Name,
		Size:        t.Size,
		MimeType:    t.MimeType,
		TotalChunks: t.TotalChunks,
	}
	if err := s.channel.SendText(marshalFrame(meta)); err != nil {
		t.Status = StatusFailed
		return t, apperrors.TransferFailed("send metadata").WithCause(err)
	}

	t.Status = StatusTransferring
	log.Debug().Str("fileId", t.ID).Str("name", name).Int64("size", size).Msg("transfer started")

	buf := make([]byte, ChunkSize)
	var bytesDone int64

	for index := 0; index < t.TotalChunks; index++ {
		if err := s.cancelled(ctx, t); err != nil {
			return t, err
		}
		if err := s.waitForWindow(ctx); err != nil {
			t.Status = StatusCancelled
			s.sendCancel(t.ID)
			return t, err
		}
		// A drain may have taken a while; the file could have been
		// cancelled in the meantime.
		if err := s.cancelled(ctx, t); err != nil {
			return t, err
		}

		n, err := io.ReadFull(r, buf)
		if err == io.ErrUnexpectedEOF && index == t.TotalChunks-1 {
			err = nil
		}
		if err != nil {
			t.Status = StatusFailed
			s.sendCancel(t.ID)
			return t, apperrors.TransferFailed("read source").WithCause(err)
		}

		header := fileChunkFrame{Type: FrameFileChunk, FileID: t.ID, Index: index}
		if err := s.channel.SendText(marshalFrame(header)); err != nil {
			t.Status = StatusFailed
			return t, apperrors.TransferFailed("send chunk header").WithCause(err)
		}
		if err := s.channel.Send(buf[:n]); err != nil {
			t.Status = StatusFailed
			return t, apperrors.TransferFailed("send chunk").WithCause(err)
		}

		t.Chunks++
		bytesDone += int64(n)
		if s.OnProgress != nil {
			s.OnProgress(progressSample(t, bytesDone))
		}
	}

	if err := s.channel.SendText(marshalFrame(fileControlFrame{Type: FrameFileComplete, FileID: t.ID})); err != nil {
		t.Status = StatusFailed
		return t, apperrors.TransferFailed("send completion").WithCause(err)
	}

	t.Status = StatusComplete
	log.Debug().Str("fileId", t.ID).Int("chunks", t.Chunks).Msg("transfer complete")
	return t, nil
}

func (s *Sender) cancelled(ctx context.Context, t *Transfer) error {
	select {
	case <-ctx.Done():
		t.Status = StatusCancelled
		s.sendCancel(t.ID)
		return apperrors.TransferCancelled()
	default:
		return nil
	}
}

// waitForWindow blocks while the channel sits above the high watermark.
func (s *Sender) waitForWindow(ctx context.Context) error {
	if s.channel.BufferedAmount() < HighWaterMark {
		return nil
	}

	for {
		select {
		case <-s.drained:
			if s.channel.BufferedAmount() < HighWaterMark {
				return nil
			}
		case <-ctx.Done():
			return apperrors.TransferCancelled()
		}
	}
}

func (s *Sender) sendCancel(fileID string) {
	if err := s.channel.SendText(marshalFrame(fileControlFrame{Type: FrameFileCancel, FileID: fileID})); err != nil {
		log.Debug().Err(err).Str("fileId", fileID).Msg("failed to send cancel frame")
	}
}
