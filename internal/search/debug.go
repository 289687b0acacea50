// internal/search/debug.go
package search

import (
	"context"

	"github.com/google/uuid"

	"neura-search/internal/models"
	"neura-search/internal/pipeline/fuse"
	"neura-search/internal/pipeline/retrieve"
)

// DebugResult exposes the pipeline's intermediate artifacts for ranking
// diagnosis: the parsed intent, the normalized text and the fused scores
// before presentation-layer truncation hides them.
type DebugResult struct {
	SearchID       string               `json:"search_id"`
	Intent         *models.ParsedIntent `json:"intent"`
	NormalizedText string               `json:"normalized_text"`
	Alpha          float64              `json:"alpha"`
	RecallCount    int                  `json:"recall_count"`
	Results        []models.FusedResult `json:"results"`
}

// Debug runs the pipeline synchronously without streaming or reranking,
// optionally overriding the fusion weight to compare rankings.
func (s *Service) Debug(ctx context.Context, req *models.SearchRequest, alphaOverride *float64) (*DebugResult, error) {
	intent, err := s.understand(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	mode := effectiveMode(req.Mode, intent)
	normalized := s.normalize(ctx, s.logger, intent.RewrittenQuery)

	count := s.clampCount(req.Count)
	candidates, err := s.retrieve(ctx, &retrieve.Request{
		Mode:      mode,
		Text:      normalized,
		Filters:   mergeFilters(req.Filters, intent),
		CompanyID: req.CompanyID,
		Count:     count,
	}, req.TwoStage)
	if err != nil {
		return nil, err
	}

	alpha := s.search.Alpha
	if alphaOverride != nil {
		alpha = *alphaOverride
	}

	fused := fuse.Fuse(candidates, alpha)
	if len(fused) > count {
		fused = fused[:count]
	}

	return &DebugResult{
		SearchID:       uuid.NewString(),
		Intent:         intent,
		NormalizedText: normalized,
		Alpha:          alpha,
		RecallCount:    len(candidates),
		Results:        fused,
	}, nil
}
