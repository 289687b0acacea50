// internal/pipeline/fuse/fuse.go
package fuse

import (
	"math"
	"sort"

	"neura-search/internal/models"
)

// Fuse combines the vector and full-text channels of a retrieval set into a
// single ranking. Each channel is min-max normalized over the current set
// only, then blended as alpha*vector + (1-alpha)*fts. The result is sorted
// by final score descending; ties keep input order.
//
// A candidate missing a channel score is treated as sitting at that
// channel's observed minimum. A constant column (max == min) normalizes to
// 1.0 for every row so a single-channel result set still ranks sensibly.
func Fuse(candidates []models.RetrievalCandidate, alpha float64) []models.FusedResult {
	if len(candidates) == 0 {
		return []models.FusedResult{}
	}

	vecMin, vecMax := channelRange(candidates, vectorScore)
	ftsMin, ftsMax := channelRange(candidates, ftsScore)

	results := make([]models.FusedResult, len(candidates))
	for i, c := range candidates {
		vecNorm := normalize(vectorScore(c), vecMin, vecMax)
		ftsNorm := normalize(ftsScore(c), ftsMin, ftsMax)
		final := alpha*vecNorm + (1-alpha)*ftsNorm

		results[i] = models.FusedResult{
			RetrievalCandidate:    c,
			NormalizedVectorScore: vecNorm,
			NormalizedFTSScore:    ftsNorm,
			FinalScore:            final,
			MatchScore:            toMatchScore(final),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	return results
}

// vectorScore selects the vector channel score of a candidate.
func vectorScore(c models.RetrievalCandidate) *float64 {
	return c.Similarity
}

// ftsScore selects the full-text channel score of a candidate.
func ftsScore(c models.RetrievalCandidate) *float64 {
	return c.FTSRank
}

// channelRange returns the observed min and max of one score column,
// ignoring rows the channel did not match.
func channelRange(candidates []models.RetrievalCandidate, score func(models.RetrievalCandidate) *float64) (float64, float64) {
	first := true
	var min, max float64
	for _, c := range candidates {
		s := score(c)
		if s == nil {
			continue
		}
		if first {
			min, max = *s, *s
			first = false
			continue
		}
		if *s < min {
			min = *s
		}
		if *s > max {
			max = *s
		}
	}
	return min, max
}

// normalize maps a raw score into [0, 1]. A nil score takes the channel
// minimum; a degenerate range maps every row to 1.0.
func normalize(s *float64, min, max float64) float64 {
	if max == min {
		return 1.0
	}
	v := min
	if s != nil {
		v = *s
	}
	return (v - min) / (max - min)
}

// toMatchScore converts a [0, 1] final score to the 0-100 display scale.
func toMatchScore(final float64) int {
	score := int(math.Round(final * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
