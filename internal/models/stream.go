// internal/models/stream.go
package models

// StreamEventType discriminates the events on the NDJSON response stream.
type StreamEventType string

const (
	EventMeta     StreamEventType = "meta"
	EventChunk    StreamEventType = "chunk"
	EventComplete StreamEventType = "complete"
	EventError    StreamEventType = "error"
)

// StreamMeta is flushed before any results so the client can render a
// loading state with context.
type StreamMeta struct {
	SearchID       string     `json:"search_id"`
	Mode           SearchMode `json:"mode"`
	RewrittenQuery string     `json:"rewritten_query,omitempty"`
	TwoStage       bool       `json:"two_stage"`
	Rerank         bool       `json:"rerank"`
}

// ChunkInfo tells the client where a chunk sits in the stream and whether
// it is the authoritative (fully processed) one.
type ChunkInfo struct {
	ChunkNumber int  `json:"chunk_number"`
	TotalChunks int  `json:"total_chunks"`
	IsFinal     bool `json:"is_final"`
}

// StreamSummary is attached to the single complete event.
type StreamSummary struct {
	RecallCount int     `json:"recall_count"`
	RerankCount int     `json:"rerank_count"`
	TopScore    float64 `json:"top_score"`
	ChunkCount  int     `json:"chunk_count"`
}

// StreamChunk is one NDJSON line on the response stream. Chunks are
// append-only and strictly ordered by ChunkInfo.ChunkNumber; exactly one
// terminal event (complete or error) ends the stream.
type StreamChunk struct {
	Type      StreamEventType `json:"type"`
	Data      []FusedResult   `json:"data,omitempty"`
	ChunkInfo *ChunkInfo      `json:"chunk_info,omitempty"`
	Meta      *StreamMeta     `json:"meta,omitempty"`
	Summary   *StreamSummary  `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
}
