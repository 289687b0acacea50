// internal/stream/writer_test.go
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neura-search/internal/models"
)

func decodeLines(t *testing.T, body string) []models.StreamChunk {
	t.Helper()
	var chunks []models.StreamChunk
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var c models.StreamChunk
		require.NoError(t, json.Unmarshal([]byte(line), &c))
		chunks = append(chunks, c)
	}
	return chunks
}

func sampleResults(ids ...string) []models.FusedResult {
	out := make([]models.FusedResult, len(ids))
	for i, id := range ids {
		out[i] = models.FusedResult{
			RetrievalCandidate: models.RetrievalCandidate{ID: id},
			FinalScore:         0.5,
			MatchScore:         50,
		}
	}
	return out
}

func TestWriter_FullStreamLifecycle(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(context.Background(), rec, models.ModeCandidates)

	require.NoError(t, w.WriteMeta(&models.StreamMeta{
		SearchID: "s-1",
		Mode:     models.ModeCandidates,
		Rerank:   true,
	}))
	require.NoError(t, w.WriteChunk(sampleResults("a", "b"), 2, false))
	require.NoError(t, w.WriteChunk(sampleResults("c"), 2, true))
	require.NoError(t, w.WriteComplete(&models.StreamSummary{
		RecallCount: 3,
		TopScore:    0.9,
		ChunkCount:  2,
	}))

	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	chunks := decodeLines(t, rec.Body.String())
	require.Len(t, chunks, 4)

	assert.Equal(t, models.EventMeta, chunks[0].Type)
	require.NotNil(t, chunks[0].Meta)
	assert.Equal(t, "s-1", chunks[0].Meta.SearchID)

	assert.Equal(t, models.EventChunk, chunks[1].Type)
	require.NotNil(t, chunks[1].ChunkInfo)
	assert.Equal(t, 1, chunks[1].ChunkInfo.ChunkNumber)
	assert.False(t, chunks[1].ChunkInfo.IsFinal)
	assert.Len(t, chunks[1].Data, 2)

	assert.Equal(t, 2, chunks[2].ChunkInfo.ChunkNumber)
	assert.True(t, chunks[2].ChunkInfo.IsFinal)

	assert.Equal(t, models.EventComplete, chunks[3].Type)
	require.NotNil(t, chunks[3].Summary)
	assert.Equal(t, 3, chunks[3].Summary.RecallCount)

	assert.Equal(t, 2, w.ChunkCount())
}

func TestWriter_NoEventsAfterComplete(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(context.Background(), rec, models.ModeCandidates)

	require.NoError(t, w.WriteComplete(&models.StreamSummary{}))

	assert.ErrorIs(t, w.WriteChunk(sampleResults("a"), 1, true), ErrTerminated)
	assert.ErrorIs(t, w.WriteError("late failure"), ErrTerminated)
	assert.ErrorIs(t, w.WriteComplete(&models.StreamSummary{}), ErrTerminated)

	chunks := decodeLines(t, rec.Body.String())
	require.Len(t, chunks, 1)
	assert.Equal(t, models.EventComplete, chunks[0].Type)
}

func TestWriter_NoEventsAfterError(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(context.Background(), rec, models.ModeCandidates)

	require.NoError(t, w.WriteError("retrieval store query failed"))
	assert.ErrorIs(t, w.WriteChunk(sampleResults("a"), 1, true), ErrTerminated)

	chunks := decodeLines(t, rec.Body.String())
	require.Len(t, chunks, 1)
	assert.Equal(t, models.EventError, chunks[0].Type)
	assert.Equal(t, "retrieval store query failed", chunks[0].Error)
}

func TestWriter_ClientDisconnectStopsWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWriter(ctx, rec, models.ModeCandidates)

	require.NoError(t, w.WriteMeta(&models.StreamMeta{SearchID: "s-1"}))
	cancel()

	assert.ErrorIs(t, w.WriteChunk(sampleResults("a"), 1, true), ErrClientGone)
	assert.ErrorIs(t, w.WriteComplete(&models.StreamSummary{}), ErrTerminated)

	chunks := decodeLines(t, rec.Body.String())
	require.Len(t, chunks, 1)
	assert.Equal(t, models.EventMeta, chunks[0].Type)
}

func TestWriter_ChunkNumbersStrictlyIncrease(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(context.Background(), rec, models.ModeCandidates)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.WriteChunk(sampleResults("x"), 5, i == 4))
	}

	chunks := decodeLines(t, rec.Body.String())
	require.Len(t, chunks, 5)
	for i, c := range chunks {
		require.NotNil(t, c.ChunkInfo)
		assert.Equal(t, i+1, c.ChunkInfo.ChunkNumber)
	}
}
