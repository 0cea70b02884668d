package transfer

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// DataChannel is the subset of the pion data channel the engine drives.
// Text messages carry JSON control frames, binary messages raw chunks.
type DataChannel interface {
	Send(data []byte) error
	SendText(text string) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(threshold uint64)
	OnBufferedAmountLow(fn func())
}

var _ DataChannel = (*webrtc.DataChannel)(nil)

type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Status moves monotonically: pending -> transferring -> one of the
// terminal states.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTransferring Status = "transferring"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCancelled
}

// Transfer tracks one file moving through the channel. A failure is scoped
// to this file; other transfers on the same channel continue.
type Transfer struct {
	ID          string
	Name        string
	Size        int64
	MimeType    string
	TotalChunks int
	Chunks      int // sent or received so far, by direction
	Status      Status
	Direction   Direction
	StartedAt   time.Time
}

// Progress is an advisory per-chunk sample.
type Progress struct {
	FileID         string
	Percent        float64
	BytesPerSecond float64
}

func progressSample(t *Transfer, bytesDone int64) Progress {
	p := Progress{FileID: t.ID}
	if t.Size > 0 {
		p.Percent = float64(bytesDone) / float64(t.Size) * 100
	} else {
		p.Percent = 100
	}
	if elapsed := time.Since(t.StartedAt).Seconds(); elapsed > 0 {
		p.BytesPerSecond = float64(bytesDone) / elapsed
	}
	return p
}

func totalChunks(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + ChunkSize - 1) / ChunkSize)
}
