// internal/stream/writer.go
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"neura-search/internal/common/metrics"
	"neura-search/internal/models"
)

var (
	// ErrTerminated is returned for any write after the terminal event.
	ErrTerminated = errors.New("stream already terminated")
	// ErrClientGone is returned when the client disconnected; nothing is
	// written to a closed stream.
	ErrClientGone = errors.New("client disconnected")
)

// Writer emits the NDJSON response stream for one search. Events are
// append-only: a meta event first, then chunks with strictly increasing
// chunk numbers, then exactly one terminal event (complete or error).
// Writes after the terminal event or after client disconnect are rejected.
// Safe for use from a single request goroutine; the mutex guards the
// terminal state against racing cancellation checks.
type Writer struct {
	ctx     context.Context
	w       http.ResponseWriter
	flusher http.Flusher
	enc     *json.Encoder
	mode    string

	mu          sync.Mutex
	chunkNumber int
	terminated  bool
}

func NewWriter(ctx context.Context, w http.ResponseWriter, mode models.SearchMode) *Writer {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, _ := w.(http.Flusher)
	return &Writer{
		ctx:     ctx,
		w:       w,
		flusher: flusher,
		enc:     json.NewEncoder(w),
		mode:    string(mode),
	}
}

// WriteMeta flushes the stream context before any results exist so the
// client can render a loading state.
func (s *Writer) WriteMeta(meta *models.StreamMeta) error {
	return s.writeEvent(&models.StreamChunk{
		Type: models.EventMeta,
		Meta: meta,
	})
}

// WriteChunk emits one result chunk. Chunk numbers start at 1 and are
// strictly increasing within the stream.
func (s *Writer) WriteChunk(data []models.FusedResult, totalChunks int, isFinal bool) error {
	s.mu.Lock()
	number := s.chunkNumber + 1
	s.mu.Unlock()

	err := s.writeEvent(&models.StreamChunk{
		Type: models.EventChunk,
		Data: data,
		ChunkInfo: &models.ChunkInfo{
			ChunkNumber: number,
			TotalChunks: totalChunks,
			IsFinal:     isFinal,
		},
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.chunkNumber = number
	s.mu.Unlock()
	metrics.StreamChunksWritten.WithLabelValues(s.mode).Inc()
	return nil
}

// WriteComplete emits the successful terminal event.
func (s *Writer) WriteComplete(summary *models.StreamSummary) error {
	return s.writeTerminal(&models.StreamChunk{
		Type:    models.EventComplete,
		Summary: summary,
	})
}

// WriteError emits the failure terminal event with a human-readable
// message, never a stack trace.
func (s *Writer) WriteError(message string) error {
	return s.writeTerminal(&models.StreamChunk{
		Type:  models.EventError,
		Error: message,
	})
}

// ChunkCount reports the number of chunks written so far.
func (s *Writer) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkNumber
}

func (s *Writer) writeTerminal(chunk *models.StreamChunk) error {
	if err := s.writeEvent(chunk); err != nil {
		return err
	}
	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()
	return nil
}

func (s *Writer) writeEvent(chunk *models.StreamChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return ErrTerminated
	}
	if s.ctx.Err() != nil {
		s.terminated = true
		metrics.StreamDisconnects.WithLabelValues(s.mode).Inc()
		return fmt.Errorf("%w: %v", ErrClientGone, s.ctx.Err())
	}

	if err := s.enc.Encode(chunk); err != nil {
		s.terminated = true
		return fmt.Errorf("write stream event: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
