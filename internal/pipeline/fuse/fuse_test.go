// internal/pipeline/fuse/fuse_test.go
package fuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neura-search/internal/models"
)

func f(v float64) *float64 { return &v }

func makeCandidate(id string, similarity, ftsRank *float64) models.RetrievalCandidate {
	return models.RetrievalCandidate{
		ID:         id,
		Profile:    models.CandidateProfile{Name: "candidate " + id},
		Similarity: similarity,
		FTSRank:    ftsRank,
	}
}

func TestFuse_WeightedBlend(t *testing.T) {
	candidates := []models.RetrievalCandidate{
		makeCandidate("a", f(0.9), f(1.0)),
		makeCandidate("b", f(0.5), f(1.0)),
		makeCandidate("c", f(0.1), f(1.0)),
	}

	results := Fuse(candidates, 0.7)
	require.Len(t, results, 3)

	// Vector column normalizes to [1, 0.5, 0]; constant FTS column to all
	// 1.0, so finals are 0.7*v + 0.3.
	assert.InDelta(t, 1.0, results[0].FinalScore, 1e-9)
	assert.InDelta(t, 0.65, results[1].FinalScore, 1e-9)
	assert.InDelta(t, 0.3, results[2].FinalScore, 1e-9)

	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	assert.Equal(t, "c", results[2].ID)

	assert.Equal(t, 100, results[0].MatchScore)
	assert.Equal(t, 65, results[1].MatchScore)
	assert.Equal(t, 30, results[2].MatchScore)
}

func TestFuse_ConstantColumnsNormalizeToOne(t *testing.T) {
	candidates := []models.RetrievalCandidate{
		makeCandidate("a", f(0.42), f(0.7)),
	}

	results := Fuse(candidates, 0.65)
	require.Len(t, results, 1)

	// Single row makes both columns degenerate.
	assert.Equal(t, 1.0, results[0].NormalizedVectorScore)
	assert.Equal(t, 1.0, results[0].NormalizedFTSScore)
	assert.Equal(t, 1.0, results[0].FinalScore)
	assert.Equal(t, 100, results[0].MatchScore)
}

func TestFuse_MissingChannelScoreTakesChannelMinimum(t *testing.T) {
	candidates := []models.RetrievalCandidate{
		makeCandidate("vec-only", f(0.8), nil),
		makeCandidate("both", f(0.4), f(0.9)),
		makeCandidate("fts-only", nil, f(0.3)),
	}

	results := Fuse(candidates, 0.5)
	require.Len(t, results, 3)

	byID := map[string]models.FusedResult{}
	for _, r := range results {
		byID[r.ID] = r
	}

	// fts-only has no similarity, so it sits at the vector minimum (0.4)
	// and normalizes to 0 there.
	assert.Equal(t, 0.0, byID["fts-only"].NormalizedVectorScore)
	// vec-only has no fts rank, so it sits at the fts minimum (0.3).
	assert.Equal(t, 0.0, byID["vec-only"].NormalizedFTSScore)

	assert.InDelta(t, 1.0, byID["vec-only"].NormalizedVectorScore, 1e-9)
	assert.InDelta(t, 1.0, byID["both"].NormalizedFTSScore, 1e-9)
}

func TestFuse_AlphaExtremes(t *testing.T) {
	candidates := []models.RetrievalCandidate{
		makeCandidate("a", f(0.9), f(0.1)),
		makeCandidate("b", f(0.1), f(0.9)),
	}

	vecOnly := Fuse(candidates, 1.0)
	assert.Equal(t, "a", vecOnly[0].ID)
	assert.Equal(t, 1.0, vecOnly[0].FinalScore)
	assert.Equal(t, 0.0, vecOnly[1].FinalScore)

	ftsOnly := Fuse(candidates, 0.0)
	assert.Equal(t, "b", ftsOnly[0].ID)
	assert.Equal(t, 1.0, ftsOnly[0].FinalScore)
	assert.Equal(t, 0.0, ftsOnly[1].FinalScore)
}

func TestFuse_StableOrderOnTies(t *testing.T) {
	candidates := []models.RetrievalCandidate{
		makeCandidate("first", f(0.5), f(0.5)),
		makeCandidate("second", f(0.5), f(0.5)),
		makeCandidate("third", f(0.5), f(0.5)),
	}

	results := Fuse(candidates, 0.65)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].ID)
	assert.Equal(t, "second", results[1].ID)
	assert.Equal(t, "third", results[2].ID)
}

func TestFuse_EmptyInput(t *testing.T) {
	results := Fuse(nil, 0.65)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFuse_FinalScoreStaysInUnitInterval(t *testing.T) {
	candidates := []models.RetrievalCandidate{
		makeCandidate("a", f(-3.0), f(12.0)),
		makeCandidate("b", f(0.0), f(-1.0)),
		makeCandidate("c", f(7.5), f(4.0)),
	}

	for _, alpha := range []float64{0.0, 0.3, 0.65, 1.0} {
		for _, r := range Fuse(candidates, alpha) {
			assert.GreaterOrEqual(t, r.FinalScore, 0.0)
			assert.LessOrEqual(t, r.FinalScore, 1.0)
			assert.GreaterOrEqual(t, r.MatchScore, 0)
			assert.LessOrEqual(t, r.MatchScore, 100)
		}
	}
}
