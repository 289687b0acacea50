// internal/pipeline/retrieve/strategy.go
package retrieve

import (
	"context"
	"errors"

	"neura-search/internal/ai/embedding"
	"neura-search/internal/common/config"
	stderrors "neura-search/internal/common/errors"
	"neura-search/internal/common/logger"
	"neura-search/internal/common/metrics"
	"neura-search/internal/models"
)

// Request is one retrieval invocation, independent of strategy.
type Request struct {
	Mode      models.SearchMode
	Text      string // normalized text, embedded and used as the fts query
	Filters   models.SearchFilters
	CompanyID string
	Count     int // final desired count, before over-fetch
}

// Store is the retrieval surface strategies run against.
type Store interface {
	Retrieve(ctx context.Context, mode models.SearchMode, p *Params) ([]models.RetrievalCandidate, error)
	Rescore(ctx context.Context, mode models.SearchMode, ids []string, embedding []float32, threshold float64, matchCount int) ([]models.RetrievalCandidate, error)
}

// Embedder is the embedding surface strategies run against.
type Embedder interface {
	EmbedSmall(ctx context.Context, text string) ([]float32, error)
	EmbedLarge(ctx context.Context, text string) ([]float32, error)
}

// Strategy turns a retrieval request into a candidate set. Implementations
// own their embedding calls; a strategy error is fatal to the request.
type Strategy interface {
	Name() string
	Retrieve(ctx context.Context, req *Request) ([]models.RetrievalCandidate, error)
}

// SingleStage embeds once with the fast model and issues one combined
// retrieval call, over-fetching to feed fusion.
type SingleStage struct {
	store    Store
	embedder Embedder
	cfg      config.SearchConfig
}

func NewSingleStage(store Store, embedder Embedder, cfg config.SearchConfig) *SingleStage {
	return &SingleStage{store: store, embedder: embedder, cfg: cfg}
}

func (s *SingleStage) Name() string { return "single-stage" }

func (s *SingleStage) Retrieve(ctx context.Context, req *Request) ([]models.RetrievalCandidate, error) {
	vec, err := s.embedder.EmbedSmall(ctx, req.Text)
	if err != nil {
		return nil, mapEmbeddingError(err)
	}

	return s.store.Retrieve(ctx, req.Mode, &Params{
		Embedding:           vec,
		FTSQuery:            req.Text,
		Filters:             req.Filters,
		SimilarityThreshold: s.cfg.RecallThreshold,
		MatchCount:          req.Count * s.cfg.MatchCountMultiplier,
		CompanyID:           req.CompanyID,
	})
}

// TwoStage runs a loose top-K recall pass with the small model, then
// re-scores that reduced set with the large model at a stricter threshold.
// A second-stage error falls back to the recall set, so the extra precision
// pass never loses a request.
type TwoStage struct {
	store    Store
	embedder Embedder
	cfg      config.SearchConfig
	logger   logger.Logger
}

func NewTwoStage(store Store, embedder Embedder, cfg config.SearchConfig, log logger.Logger) *TwoStage {
	return &TwoStage{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"strategy": "two-stage"}),
	}
}

func (s *TwoStage) Name() string { return "two-stage" }

func (s *TwoStage) Retrieve(ctx context.Context, req *Request) ([]models.RetrievalCandidate, error) {
	smallVec, err := s.embedder.EmbedSmall(ctx, req.Text)
	if err != nil {
		return nil, mapEmbeddingError(err)
	}

	recallCount := s.cfg.RecallTopK
	if c := req.Count * s.cfg.MatchCountMultiplier; c > recallCount {
		recallCount = c
	}

	recalled, err := s.store.Retrieve(ctx, req.Mode, &Params{
		Embedding:           smallVec,
		FTSQuery:            req.Text,
		Filters:             req.Filters,
		SimilarityThreshold: s.cfg.RecallThreshold,
		MatchCount:          recallCount,
		CompanyID:           req.CompanyID,
	})
	if err != nil {
		return nil, err
	}
	if len(recalled) == 0 {
		return recalled, nil
	}

	rescored, err := s.rescore(ctx, req, recalled)
	if err != nil {
		metrics.StageFallbacks.WithLabelValues("retrieve", errorCode(err)).Inc()
		s.logger.WithError(err).Warn("precision pass failed, keeping recall set",
			map[string]interface{}{"recalled": len(recalled)})
		return recalled, nil
	}
	return rescored, nil
}

func (s *TwoStage) rescore(ctx context.Context, req *Request, recalled []models.RetrievalCandidate) ([]models.RetrievalCandidate, error) {
	largeVec, err := s.embedder.EmbedLarge(ctx, req.Text)
	if err != nil {
		return nil, mapEmbeddingError(err)
	}

	ids := make([]string, len(recalled))
	ftsRanks := make(map[string]*float64, len(recalled))
	for i, c := range recalled {
		ids[i] = c.ID
		ftsRanks[c.ID] = c.FTSRank
	}

	rescored, err := s.store.Rescore(ctx, req.Mode, ids, largeVec,
		s.cfg.RescoreThreshold, req.Count*s.cfg.MatchCountMultiplier)
	if err != nil {
		return nil, err
	}

	// The rescore function only recomputes similarity; the lexical rank
	// from the recall pass still belongs to each row.
	for i := range rescored {
		if rescored[i].FTSRank == nil {
			rescored[i].FTSRank = ftsRanks[rescored[i].ID]
		}
	}
	return rescored, nil
}

func mapEmbeddingError(err error) error {
	if errors.Is(err, embedding.ErrEmbeddingTimeout) {
		return stderrors.NewEmbeddingTimeoutError()
	}
	return stderrors.NewEmbeddingFailedError(err)
}

func errorCode(err error) string {
	var stdErr *stderrors.StandardError
	if errors.As(err, &stdErr) {
		return string(stdErr.Code)
	}
	return "UNKNOWN"
}
