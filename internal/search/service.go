// internal/search/service.go
package search

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"neura-search/internal/common/config"
	stderrors "neura-search/internal/common/errors"
	"neura-search/internal/common/logger"
	"neura-search/internal/common/metrics"
	"neura-search/internal/common/observability"
	"neura-search/internal/models"
	"neura-search/internal/pipeline/fuse"
	"neura-search/internal/pipeline/retrieve"
)

// Parser is the query understanding surface.
type Parser interface {
	Parse(ctx context.Context, userText string) (*models.ParsedIntent, error)
}

// Normalizer is the text normalization surface.
type Normalizer interface {
	Normalize(ctx context.Context, text string) string
	Validate(text string) error
}

// Reranker re-orders a bounded top slice; failures inside pass through.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []models.FusedResult) []models.FusedResult
}

// StreamWriter is the response stream surface the service writes to.
type StreamWriter interface {
	WriteMeta(meta *models.StreamMeta) error
	WriteChunk(data []models.FusedResult, totalChunks int, isFinal bool) error
	WriteComplete(summary *models.StreamSummary) error
	WriteError(message string) error
	ChunkCount() int
}

// Service runs one search pipeline per request: understand, normalize,
// retrieve, fuse, optionally rerank, and stream the ranked results.
type Service struct {
	parser      Parser
	normalizer  Normalizer
	singleStage retrieve.Strategy
	twoStage    retrieve.Strategy
	reranker    Reranker
	search      config.SearchConfig
	stages      config.StagesConfig
	obs         *observability.Observability
	logger      logger.Logger
}

func NewService(
	parser Parser,
	normalizer Normalizer,
	singleStage retrieve.Strategy,
	twoStage retrieve.Strategy,
	reranker Reranker,
	searchCfg config.SearchConfig,
	stagesCfg config.StagesConfig,
	obs *observability.Observability,
	log logger.Logger,
) *Service {
	return &Service{
		parser:      parser,
		normalizer:  normalizer,
		singleStage: singleStage,
		twoStage:    twoStage,
		reranker:    reranker,
		search:      searchCfg,
		stages:      stagesCfg,
		obs:         obs,
		logger:      log,
	}
}

// ValidateRequest rejects unusable input before any stage runs. Input
// errors are the only errors reported outside the stream.
func ValidateRequest(req *models.SearchRequest) *stderrors.StandardError {
	if strings.TrimSpace(req.Query) == "" {
		return stderrors.NewMissingQueryError()
	}
	if req.Mode != "" && req.Mode != models.ModeCandidates && req.Mode != models.ModeJobs {
		return stderrors.NewInvalidModeError(string(req.Mode))
	}
	return nil
}

// Run executes the pipeline for one validated request and streams the
// outcome. Every failure past this point is reported on the stream: either
// recovered inside a stage or surfaced as the single error event.
func (s *Service) Run(ctx context.Context, req *models.SearchRequest, w StreamWriter) {
	searchID := uuid.NewString()
	started := time.Now()
	log := s.logger.WithFields(map[string]interface{}{
		"search_id": searchID,
		"mode":      string(req.Mode),
	})
	log.Info("search started", map[string]interface{}{"two_stage": req.TwoStage, "rerank": req.Rerank})

	intent, err := s.understand(ctx, req.Query)
	if err != nil {
		s.fail(ctx, w, log, req.Mode, err)
		return
	}

	mode := effectiveMode(req.Mode, intent)
	normalized := s.normalize(ctx, log, intent.RewrittenQuery)

	if werr := w.WriteMeta(&models.StreamMeta{
		SearchID:       searchID,
		Mode:           mode,
		RewrittenQuery: intent.RewrittenQuery,
		TwoStage:       req.TwoStage,
		Rerank:         req.Rerank,
	}); werr != nil {
		log.Warn("stream closed before meta", map[string]interface{}{"error": werr.Error()})
		return
	}

	count := s.clampCount(req.Count)
	candidates, err := s.retrieve(ctx, &retrieve.Request{
		Mode:      mode,
		Text:      normalized,
		Filters:   mergeFilters(req.Filters, intent),
		CompanyID: req.CompanyID,
		Count:     count,
	}, req.TwoStage)
	if err != nil {
		s.fail(ctx, w, log, mode, err)
		return
	}
	metrics.RetrievalRows.WithLabelValues(string(mode)).Observe(float64(len(candidates)))

	fused := fuse.Fuse(candidates, s.search.Alpha)
	if len(fused) > count {
		fused = fused[:count]
	}

	if len(fused) == 0 {
		// A successful query with no matches completes normally with zero
		// rows; only actual failures produce an error event.
		_ = w.WriteComplete(&models.StreamSummary{})
		s.finish(ctx, log, mode, started, "completed", 0)
		return
	}

	if werr := s.streamResults(ctx, req, w, normalized, fused, len(candidates)); werr != nil {
		log.Warn("client disconnected mid-stream", map[string]interface{}{"error": werr.Error()})
		s.finish(ctx, log, mode, started, "disconnected", len(candidates))
		return
	}
	s.finish(ctx, log, mode, started, "completed", len(candidates))
}

// streamResults chunks the fused list onto the stream. With reranking on,
// the first chunk goes out before the rerank call so the client gets a
// first screen early; the reranked full set follows and the last chunk is
// marked authoritative.
func (s *Service) streamResults(ctx context.Context, req *models.SearchRequest, w StreamWriter, query string, fused []models.FusedResult, recallCount int) error {
	chunkSize := s.search.ChunkSize

	if !req.Rerank || s.reranker == nil {
		total := totalChunks(len(fused), chunkSize)
		for i := 0; i < len(fused); i += chunkSize {
			end := i + chunkSize
			if end > len(fused) {
				end = len(fused)
			}
			if err := w.WriteChunk(fused[i:end], total, end == len(fused)); err != nil {
				return err
			}
		}
		return w.WriteComplete(s.summary(fused, recallCount, w))
	}

	total := 1 + totalChunks(len(fused), chunkSize)
	preview := fused
	if len(preview) > chunkSize {
		preview = preview[:chunkSize]
	}
	if err := w.WriteChunk(preview, total, false); err != nil {
		return err
	}

	reranked := s.rerank(ctx, query, fused)
	rerankCount := s.search.RerankTopN
	if rerankCount > len(reranked) {
		rerankCount = len(reranked)
	}

	for i := 0; i < len(reranked); i += chunkSize {
		end := i + chunkSize
		if end > len(reranked) {
			end = len(reranked)
		}
		if err := w.WriteChunk(reranked[i:end], total, end == len(reranked)); err != nil {
			return err
		}
	}

	summary := s.summary(reranked, recallCount, w)
	summary.RerankCount = rerankCount
	return w.WriteComplete(summary)
}

func (s *Service) understand(ctx context.Context, query string) (*models.ParsedIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(s.stages.UnderstandTimeout))
	defer cancel()

	started := time.Now()
	intent, err := s.parser.Parse(ctx, query)
	s.recordStage(ctx, "understand", started)
	return intent, err
}

func (s *Service) normalize(ctx context.Context, log logger.Logger, text string) string {
	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(s.stages.NormalizeTimeout))
	defer cancel()

	started := time.Now()
	normalized := s.normalizer.Normalize(ctx, text)
	s.recordStage(ctx, "normalize", started)

	if err := s.normalizer.Validate(normalized); err != nil {
		log.WithError(err).Warn("normalized text failed validation", map[string]interface{}{
			"length": len(normalized),
		})
	}
	return normalized
}

func (s *Service) retrieve(ctx context.Context, req *retrieve.Request, twoStage bool) ([]models.RetrievalCandidate, error) {
	// The budget covers the embedding call(s) plus the store round-trip,
	// both owned by the strategy.
	budget := config.GetDuration(s.stages.EmbedTimeout + s.stages.RetrieveTimeout)
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	strategy := s.singleStage
	if twoStage && s.twoStage != nil {
		strategy = s.twoStage
	}

	started := time.Now()
	candidates, err := strategy.Retrieve(ctx, req)
	s.recordStage(ctx, "retrieve", started)
	return candidates, err
}

func (s *Service) rerank(ctx context.Context, query string, fused []models.FusedResult) []models.FusedResult {
	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(s.stages.RerankTimeout))
	defer cancel()

	started := time.Now()
	reranked := s.reranker.Rerank(ctx, query, fused)
	s.recordStage(ctx, "rerank", started)
	return reranked
}

func (s *Service) summary(results []models.FusedResult, recallCount int, w StreamWriter) *models.StreamSummary {
	summary := &models.StreamSummary{
		RecallCount: recallCount,
		ChunkCount:  w.ChunkCount(),
	}
	if len(results) > 0 {
		summary.TopScore = results[0].FinalScore
	}
	return summary
}

func (s *Service) fail(ctx context.Context, w StreamWriter, log logger.Logger, mode models.SearchMode, err error) {
	log.WithError(err).Error("search failed", nil)
	_ = w.WriteError(stderrors.UserMessage(err))
	metrics.SearchesTotal.WithLabelValues(string(mode), "error").Inc()
	if s.obs != nil {
		s.obs.RecordSearchProcessed(ctx, string(mode), "error")
	}
}

func (s *Service) finish(ctx context.Context, log logger.Logger, mode models.SearchMode, started time.Time, status string, recall int) {
	elapsed := time.Since(started)
	log.Info("search finished", map[string]interface{}{
		"status":      status,
		"recall":      recall,
		"duration_ms": elapsed.Milliseconds(),
	})
	metrics.SearchesTotal.WithLabelValues(string(mode), status).Inc()
	if s.obs != nil {
		s.obs.RecordSearchProcessed(ctx, string(mode), status)
		s.obs.RecordSearchDuration(ctx, elapsed, status)
	}
}

func (s *Service) recordStage(ctx context.Context, stage string, started time.Time) {
	elapsed := time.Since(started)
	metrics.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if s.obs != nil {
		s.obs.RecordStageDuration(ctx, stage, elapsed)
	}
}

func (s *Service) clampCount(count int) int {
	if count <= 0 {
		return s.search.DefaultCount
	}
	if count > s.search.MaxCount {
		return s.search.MaxCount
	}
	return count
}

// effectiveMode resolves the corpus: an explicit request mode wins,
// otherwise the parsed search direction decides.
func effectiveMode(requested models.SearchMode, intent *models.ParsedIntent) models.SearchMode {
	if requested != "" {
		return requested
	}
	if intent.SearchType == models.SearchTypeJob {
		return models.ModeJobs
	}
	return models.ModeCandidates
}

// mergeFilters fills filter gaps from the parsed intent; explicit request
// filters always win.
func mergeFilters(explicit models.SearchFilters, intent *models.ParsedIntent) models.SearchFilters {
	merged := explicit
	if len(merged.Location) == 0 {
		merged.Location = intent.Location
	}
	if len(merged.Skills) == 0 {
		merged.Skills = intent.SkillsMust
	}
	if merged.ExperienceMin == nil {
		merged.ExperienceMin = intent.ExperienceMin
	}
	if merged.ExperienceMax == nil {
		merged.ExperienceMax = intent.ExperienceMax
	}
	if merged.SalaryMin == nil {
		merged.SalaryMin = intent.SalaryMin
	}
	if merged.SalaryMax == nil {
		merged.SalaryMax = intent.SalaryMax
	}
	return merged
}

func totalChunks(n, chunkSize int) int {
	if n == 0 {
		return 0
	}
	return (n + chunkSize - 1) / chunkSize
}
