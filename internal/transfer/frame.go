package transfer

import "encoding/json"

// Chunking and flow control parameters. The watermarks form a hysteresis
// band: sending pauses at the high mark and resumes once the channel's
// buffered amount drains below the low mark.
const (
	ChunkSize     = 16 * 1024
	HighWaterMark = 1024 * 1024
	LowWaterMark  = 512 * 1024
)

// Control frame types. Each file-chunk header is followed by one binary
// message carrying the raw chunk bytes; the ordered channel keeps the pair
// adjacent.
const (
	FrameFileMeta     = "file-meta"
	FrameFileChunk    = "file-chunk"
	FrameFileComplete = "file-complete"
	FrameFileCancel   = "file-cancel"
	FrameText         = "text"
	FrameTyping       = "typing"
	FrameReaction     = "reaction"
)

// frame is the decoded superset of every control frame.
type frame struct {
	Type        string `json:"type"`
	FileID      string `json:"fileId"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mimeType"`
	TotalChunks int    `json:"totalChunks"`
	Index       int    `json:"index"`
	Body        string `json:"body"`
}

type fileMetaFrame struct {
	Type        string `json:"type"`
	FileID      string `json:"fileId"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mimeType"`
	TotalChunks int    `json:"totalChunks"`
}

type fileChunkFrame struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
	Index  int    `json:"index"`
}

type fileControlFrame struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
}

type messageFrame struct {
	Type string `json:"type"`
	Body string `json:"body,omitempty"`
}

func marshalFrame(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}
