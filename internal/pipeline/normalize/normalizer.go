// internal/pipeline/normalize/normalizer.go
package normalize

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"neura-search/internal/ai/llm"
	stderrors "neura-search/internal/common/errors"
	"neura-search/internal/common/logger"
	"neura-search/internal/common/metrics"
)

// UnnormalizableSentinel is the marker the LLM emits when it cannot produce
// a usable rewrite. Output carrying it is discarded in favor of the
// dictionary-only result.
const UnnormalizableSentinel = "[UNNORMALIZABLE]"

const systemPrompt = `You rewrite recruiting search text into canonical vocabulary.
Rules:
- Replace role and skill abbreviations with their full canonical names.
- Convert salary, experience and age figures to plain monthly/yearly numbers.
- Normalize punctuation to single spaces, keep the original language.
- Output ONLY the rewritten text, no explanation.
- If the text cannot be normalized, output exactly ` + UnnormalizableSentinel + `.`

// LLMClient is the completion surface the normalizer needs.
type LLMClient interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (string, error)
}

// Normalizer rewrites free text into canonical vocabulary: a dictionary
// pass always runs, an LLM pass runs only when the text still looks like it
// carries shorthand or is long enough to benefit from full-sentence
// standardization. Results are memoized by exact input string in the
// injected cache.
type Normalizer struct {
	dict         *Dictionary
	llm          LLMClient
	cache        Cache
	llmThreshold int
	logger       logger.Logger
}

func NewNormalizer(dict *Dictionary, llmClient LLMClient, cache Cache, llmThreshold int, log logger.Logger) *Normalizer {
	return &Normalizer{
		dict:         dict,
		llm:          llmClient,
		cache:        cache,
		llmThreshold: llmThreshold,
		logger:       log.WithFields(map[string]interface{}{"stage": "normalize"}),
	}
}

// Normalize rewrites text into canonical vocabulary. It never fails the
// pipeline: when the LLM pass errors or flags its output, the
// dictionary-only result is returned.
func (n *Normalizer) Normalize(ctx context.Context, text string) string {
	if cached, ok := n.cache.Get(ctx, text); ok {
		metrics.NormalizeCacheHits.WithLabelValues("hit").Inc()
		return cached
	}
	metrics.NormalizeCacheHits.WithLabelValues("miss").Inc()

	result := n.dict.Apply(text)

	if n.needsLLMPass(result) {
		llmResult, err := n.llm.Complete(ctx, &llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			UserPrompt:   result,
		})
		switch {
		case err != nil:
			metrics.StageFallbacks.WithLabelValues("normalize", string(stderrors.ErrCodeNormalizationFailed)).Inc()
			n.logger.WithError(stderrors.NewNormalizationFailedError(err)).Warn(
				"LLM normalization failed, using dictionary result", nil)
		case strings.Contains(llmResult, UnnormalizableSentinel):
			metrics.StageFallbacks.WithLabelValues("normalize", string(stderrors.ErrCodeNormalizationFailed)).Inc()
			n.logger.Warn("LLM flagged text as unnormalizable, using dictionary result", nil)
		default:
			result = strings.TrimSpace(llmResult)
		}
	}

	n.cache.Set(ctx, text, result)
	return result
}

// needsLLMPass reports whether the dictionary result still warrants a
// full-sentence LLM rewrite.
func (n *Normalizer) needsLLMPass(text string) bool {
	if n.llm == nil {
		return false
	}
	if n.dict.HasUnmappedAliasPattern(text) {
		return true
	}
	return utf8.RuneCountInString(text) > n.llmThreshold
}

var consecutiveWhitespace = regexp.MustCompile(`\s{2,}`)

// Validate reports why a normalized string is unusable. Failures are
// surfaced to the caller rather than silently repaired.
func (n *Normalizer) Validate(text string) error {
	switch {
	case strings.Contains(text, UnnormalizableSentinel):
		return stderrors.NewNormalizationInvalidError("text contains the unnormalizable sentinel")
	case n.dict.ContainsAlias(text):
		return stderrors.NewNormalizationInvalidError("text still contains a known alias")
	case utf8.RuneCountInString(text) < 10:
		return stderrors.NewNormalizationInvalidError(
			fmt.Sprintf("text too short: %d characters", utf8.RuneCountInString(text)))
	case consecutiveWhitespace.MatchString(text):
		return stderrors.NewNormalizationInvalidError("text contains consecutive whitespace")
	}
	return nil
}
