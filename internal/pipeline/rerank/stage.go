// internal/pipeline/rerank/stage.go
package rerank

import (
	"context"
	"fmt"
	"sort"
	"strings"

	stderrors "neura-search/internal/common/errors"
	"neura-search/internal/common/logger"
	"neura-search/internal/common/metrics"
	"neura-search/internal/models"
)

// Client is the cross-encoder surface the stage needs: one batched call,
// one score per sentence in submission order.
type Client interface {
	Score(ctx context.Context, source string, sentences []string) ([]float64, error)
}

// Stage re-orders the top of a fused result list using a cross-encoder.
// It is a quality enhancement, never a hard dependency: any failure passes
// the input through unchanged. Only a bounded top-N slice is scored so the
// added latency stays predictable.
type Stage struct {
	client Client
	topN   int
	logger logger.Logger
}

func NewStage(client Client, topN int, log logger.Logger) *Stage {
	return &Stage{
		client: client,
		topN:   topN,
		logger: log.WithFields(map[string]interface{}{"stage": "rerank"}),
	}
}

// Rerank returns a new list with the same length and membership as results.
// The top-N slice is re-ordered by cross-encoder score; the remainder keeps
// its fused order. The input list is never mutated.
func (s *Stage) Rerank(ctx context.Context, query string, results []models.FusedResult) []models.FusedResult {
	if len(results) == 0 || s.client == nil {
		return results
	}

	n := s.topN
	if n > len(results) {
		n = len(results)
	}

	sentences := make([]string, n)
	for i := 0; i < n; i++ {
		sentences[i] = profileSentence(results[i])
	}

	scores, err := s.client.Score(ctx, query, sentences)
	if err != nil {
		metrics.StageFallbacks.WithLabelValues("rerank", string(stderrors.ErrCodeRerankFailed)).Inc()
		s.logger.WithError(err).Warn("rerank failed, passing fused order through",
			map[string]interface{}{"top_n": n})
		return results
	}

	out := make([]models.FusedResult, len(results))
	copy(out, results)
	for i := 0; i < n; i++ {
		score := scores[i]
		out[i].RerankScore = &score
	}

	head := out[:n]
	sort.SliceStable(head, func(i, j int) bool {
		return *head[i].RerankScore > *head[j].RerankScore
	})

	return out
}

// profileSentence flattens a candidate into the textual form the
// cross-encoder compares against the query.
func profileSentence(r models.FusedResult) string {
	p := r.Profile
	parts := []string{}
	if p.CurrentRole != "" {
		parts = append(parts, p.CurrentRole)
	}
	if p.Company != "" {
		parts = append(parts, p.Company)
	}
	if p.Location != "" {
		parts = append(parts, p.Location)
	}
	if len(p.Skills) > 0 {
		parts = append(parts, strings.Join(p.Skills, " "))
	}
	if p.ExperienceYears > 0 {
		parts = append(parts, fmt.Sprintf("%d年经验", p.ExperienceYears))
	}
	if p.Summary != "" {
		parts = append(parts, p.Summary)
	}
	return strings.Join(parts, ", ")
}
