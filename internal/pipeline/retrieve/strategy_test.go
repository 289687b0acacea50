// internal/pipeline/retrieve/strategy_test.go
package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neura-search/internal/common/config"
	stderrors "neura-search/internal/common/errors"
	"neura-search/internal/common/logger"
	"neura-search/internal/models"
)

type fakeEmbedder struct {
	smallVec   []float32
	largeVec   []float32
	smallErr   error
	largeErr   error
	largeCalls int
}

func (f *fakeEmbedder) EmbedSmall(_ context.Context, _ string) ([]float32, error) {
	return f.smallVec, f.smallErr
}

func (f *fakeEmbedder) EmbedLarge(_ context.Context, _ string) ([]float32, error) {
	f.largeCalls++
	return f.largeVec, f.largeErr
}

type fakeStore struct {
	retrieved    []models.RetrievalCandidate
	retrieveErr  error
	rescored     []models.RetrievalCandidate
	rescoreErr   error
	lastParams   *Params
	lastIDs      []string
	lastEmb      []float32
	lastRescoreT float64
}

func (f *fakeStore) Retrieve(_ context.Context, _ models.SearchMode, p *Params) ([]models.RetrievalCandidate, error) {
	f.lastParams = p
	return f.retrieved, f.retrieveErr
}

func (f *fakeStore) Rescore(_ context.Context, _ models.SearchMode, ids []string, emb []float32, threshold float64, _ int) ([]models.RetrievalCandidate, error) {
	f.lastIDs = ids
	f.lastEmb = emb
	f.lastRescoreT = threshold
	return f.rescored, f.rescoreErr
}

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		Alpha:                0.65,
		MatchCountMultiplier: 2,
		RecallTopK:           20,
		RecallThreshold:      0.30,
		RescoreThreshold:     0.50,
	}
}

func candidateWithScores(id string, similarity, ftsRank *float64) models.RetrievalCandidate {
	return models.RetrievalCandidate{ID: id, Similarity: similarity, FTSRank: ftsRank}
}

func floatPtr(v float64) *float64 { return &v }

func TestSingleStage_OverFetchesAtRecallThreshold(t *testing.T) {
	store := &fakeStore{retrieved: []models.RetrievalCandidate{candidateWithScores("c1", floatPtr(0.8), floatPtr(0.4))}}
	embedder := &fakeEmbedder{smallVec: []float32{0.1, 0.2}}
	s := NewSingleStage(store, embedder, testSearchConfig())

	got, err := s.Retrieve(context.Background(), &Request{
		Mode:  models.ModeCandidates,
		Text:  "资深 Go 后端开发工程师",
		Count: 10,
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NotNil(t, store.lastParams)
	assert.Equal(t, 20, store.lastParams.MatchCount)
	assert.Equal(t, 0.30, store.lastParams.SimilarityThreshold)
	assert.Equal(t, []float32{0.1, 0.2}, store.lastParams.Embedding)
	assert.Equal(t, "资深 Go 后端开发工程师", store.lastParams.FTSQuery)
}

func TestSingleStage_EmbeddingErrorIsFatal(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{smallErr: errors.New("provider down")}
	s := NewSingleStage(store, embedder, testSearchConfig())

	_, err := s.Retrieve(context.Background(), &Request{Mode: models.ModeCandidates, Text: "q", Count: 10})
	require.Error(t, err)
	assert.True(t, stderrors.IsFatal(err))
}

func TestTwoStage_RescoresRecallSetWithLargeModel(t *testing.T) {
	store := &fakeStore{
		retrieved: []models.RetrievalCandidate{
			candidateWithScores("c1", floatPtr(0.6), floatPtr(0.4)),
			candidateWithScores("c2", floatPtr(0.5), floatPtr(0.2)),
		},
		rescored: []models.RetrievalCandidate{
			candidateWithScores("c2", floatPtr(0.9), nil),
			candidateWithScores("c1", floatPtr(0.7), nil),
		},
	}
	embedder := &fakeEmbedder{smallVec: []float32{0.1}, largeVec: []float32{0.9}}
	s := NewTwoStage(store, embedder, testSearchConfig(), logger.NewNoOpLogger())

	got, err := s.Retrieve(context.Background(), &Request{
		Mode:  models.ModeCandidates,
		Text:  "q",
		Count: 5,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, []string{"c1", "c2"}, store.lastIDs)
	assert.Equal(t, []float32{0.9}, store.lastEmb)
	assert.Equal(t, 0.50, store.lastRescoreT)

	// The lexical rank from the recall pass is carried onto rescored rows.
	assert.Equal(t, "c2", got[0].ID)
	require.NotNil(t, got[0].FTSRank)
	assert.Equal(t, 0.2, *got[0].FTSRank)
	require.NotNil(t, got[1].FTSRank)
	assert.Equal(t, 0.4, *got[1].FTSRank)
}

func TestTwoStage_RecallCountIsAtLeastTopK(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{smallVec: []float32{0.1}}
	s := NewTwoStage(store, embedder, testSearchConfig(), logger.NewNoOpLogger())

	_, err := s.Retrieve(context.Background(), &Request{Mode: models.ModeCandidates, Text: "q", Count: 5})
	require.NoError(t, err)
	assert.Equal(t, 20, store.lastParams.MatchCount)
}

func TestTwoStage_FallsBackToRecallSetOnRescoreError(t *testing.T) {
	recalled := []models.RetrievalCandidate{candidateWithScores("c1", floatPtr(0.6), floatPtr(0.4))}
	store := &fakeStore{retrieved: recalled, rescoreErr: errors.New("function missing")}
	embedder := &fakeEmbedder{smallVec: []float32{0.1}, largeVec: []float32{0.9}}
	s := NewTwoStage(store, embedder, testSearchConfig(), logger.NewNoOpLogger())

	got, err := s.Retrieve(context.Background(), &Request{Mode: models.ModeCandidates, Text: "q", Count: 5})
	require.NoError(t, err)
	assert.Equal(t, recalled, got)
}

func TestTwoStage_FallsBackToRecallSetOnLargeEmbedError(t *testing.T) {
	recalled := []models.RetrievalCandidate{candidateWithScores("c1", floatPtr(0.6), floatPtr(0.4))}
	store := &fakeStore{retrieved: recalled}
	embedder := &fakeEmbedder{smallVec: []float32{0.1}, largeErr: errors.New("provider down")}
	s := NewTwoStage(store, embedder, testSearchConfig(), logger.NewNoOpLogger())

	got, err := s.Retrieve(context.Background(), &Request{Mode: models.ModeCandidates, Text: "q", Count: 5})
	require.NoError(t, err)
	assert.Equal(t, recalled, got)
}

func TestTwoStage_EmptyRecallSkipsPrecisionPass(t *testing.T) {
	store := &fakeStore{retrieved: []models.RetrievalCandidate{}}
	embedder := &fakeEmbedder{smallVec: []float32{0.1}}
	s := NewTwoStage(store, embedder, testSearchConfig(), logger.NewNoOpLogger())

	got, err := s.Retrieve(context.Background(), &Request{Mode: models.ModeCandidates, Text: "q", Count: 5})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, embedder.largeCalls)
}

func TestTwoStage_RecallErrorIsFatal(t *testing.T) {
	store := &fakeStore{retrieveErr: stderrors.NewRetrievalFailedError(errors.New("down"))}
	embedder := &fakeEmbedder{smallVec: []float32{0.1}}
	s := NewTwoStage(store, embedder, testSearchConfig(), logger.NewNoOpLogger())

	_, err := s.Retrieve(context.Background(), &Request{Mode: models.ModeCandidates, Text: "q", Count: 5})
	require.Error(t, err)
	assert.True(t, stderrors.IsFatal(err))
}
