// internal/pipeline/understand/parser.go
package understand

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"neura-search/internal/ai/llm"
	stderrors "neura-search/internal/common/errors"
	"neura-search/internal/common/logger"
	"neura-search/internal/common/metrics"
	"neura-search/internal/models"
)

const cleanupSystemPrompt = `You rewrite a recruiting search query into one grammatical sentence.
Rules:
- Preserve the user's search direction. Most queries look for a candidate to hire.
- A company name alone means "find a candidate who works at that company", never "hire for that company".
- Keep every concrete constraint (role, skills, location, years, salary, education) from the input.
- Output ONLY the rewritten sentence.`

const structuringSystemPrompt = `You convert one recruiting search sentence into a JSON object.
Emit a single JSON object with exactly these keys in this order:
search_type, role, skills_must, skills_related, location, industry, education, company, experience_min, experience_max, salary_min, salary_max, gender, age_min, age_max, rewritten_query
Rules:
- search_type is "candidate" unless the user explicitly searches for a job posting, then "job".
- role and skills use canonical names, never abbreviations.
- skills_related lists skills implied but not stated, each as {"skill": string, "confidence": 1-5}.
- salary_min/salary_max are monthly figures: apply "k" (x1000) and "万" (x10000) multipliers, divide annual figures by 12.
- A single concrete number fills both ends of its range.
- Unknown numeric fields are null, unknown list fields are empty arrays, gender is null unless stated.
- rewritten_query is a retrieval-friendly restatement of the sentence.
Output ONLY the JSON object.`

// intentSchema strictly validates the structuring output before it is
// trusted. Anything outside the contract falls back to the minimal intent.
const intentSchema = `{
  "type": "object",
  "required": ["search_type", "role", "skills_must", "skills_related", "location", "rewritten_query"],
  "properties": {
    "search_type": {"type": "string", "enum": ["candidate", "job"]},
    "role": {"type": "array", "items": {"type": "string"}},
    "skills_must": {"type": "array", "items": {"type": "string"}},
    "skills_related": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["skill", "confidence"],
        "properties": {
          "skill": {"type": "string"},
          "confidence": {"type": "integer", "minimum": 1, "maximum": 5}
        }
      }
    },
    "location": {"type": "array", "items": {"type": "string"}},
    "industry": {"type": "array", "items": {"type": "string"}},
    "education": {"type": "array", "items": {"type": "string"}},
    "company": {"type": "array", "items": {"type": "string"}},
    "experience_min": {"type": ["integer", "null"]},
    "experience_max": {"type": ["integer", "null"]},
    "salary_min": {"type": ["integer", "null"]},
    "salary_max": {"type": ["integer", "null"]},
    "gender": {"type": ["string", "null"]},
    "age_min": {"type": ["integer", "null"]},
    "age_max": {"type": ["integer", "null"]},
    "rewritten_query": {"type": "string", "minLength": 1}
  }
}`

// LLMClient is the completion surface the parser needs.
type LLMClient interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (string, error)
}

// Parser turns free text into a ParsedIntent through two sequential LLM
// calls: cleanup into one grammatical sentence, then structuring into JSON.
// A structuring miss degrades to a minimal intent; a cleanup failure is
// fatal because nothing downstream has usable input without it.
type Parser struct {
	llm    LLMClient
	schema *gojsonschema.Schema
	logger logger.Logger
}

func NewParser(llmClient LLMClient, log logger.Logger) (*Parser, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(intentSchema))
	if err != nil {
		return nil, fmt.Errorf("compile intent schema: %w", err)
	}
	return &Parser{
		llm:    llmClient,
		schema: schema,
		logger: log.WithFields(map[string]interface{}{"stage": "understand"}),
	}, nil
}

// Parse runs cleanup then structuring and returns the post-processed intent.
func (p *Parser) Parse(ctx context.Context, userText string) (*models.ParsedIntent, error) {
	cleaned, err := p.llm.Complete(ctx, &llm.CompletionRequest{
		SystemPrompt: cleanupSystemPrompt,
		UserPrompt:   userText,
	})
	if err != nil {
		return nil, stderrors.NewCleanupFailedError(err)
	}
	cleaned = strings.TrimSpace(cleaned)

	raw, err := p.llm.Complete(ctx, &llm.CompletionRequest{
		SystemPrompt: structuringSystemPrompt,
		UserPrompt:   cleaned,
	})
	if err != nil {
		metrics.StageFallbacks.WithLabelValues("understand", string(stderrors.ErrCodeStructuringFailed)).Inc()
		p.logger.WithError(stderrors.NewStructuringFailedError(err)).Warn(
			"structuring call failed, using minimal intent", nil)
		return p.postProcess(models.MinimalIntent(cleaned), cleaned), nil
	}

	intent, perr := p.parseIntentJSON(raw)
	if perr != nil {
		metrics.StageFallbacks.WithLabelValues("understand", string(stderrors.ErrCodeIntentSchema)).Inc()
		p.logger.WithError(perr).Warn("structuring output rejected, using minimal intent",
			map[string]interface{}{"raw_length": len(raw)})
		return p.postProcess(models.MinimalIntent(cleaned), cleaned), nil
	}

	return p.postProcess(intent, cleaned), nil
}

// parseIntentJSON extracts the JSON object from the model output, validates
// it against the schema and unmarshals it.
func (p *Parser) parseIntentJSON(raw string) (*models.ParsedIntent, error) {
	jsonText := extractJSONObject(raw)
	if jsonText == "" {
		return nil, stderrors.NewStructuringFailedError(fmt.Errorf("no JSON object in output"))
	}

	validation, err := p.schema.Validate(gojsonschema.NewStringLoader(jsonText))
	if err != nil {
		return nil, stderrors.NewStructuringFailedError(err)
	}
	if !validation.Valid() {
		details := make([]string, 0, len(validation.Errors()))
		for _, e := range validation.Errors() {
			details = append(details, e.String())
		}
		return nil, stderrors.NewIntentSchemaError(strings.Join(details, "; "))
	}

	var intent models.ParsedIntent
	if err := json.Unmarshal([]byte(jsonText), &intent); err != nil {
		return nil, stderrors.NewStructuringFailedError(err)
	}
	return &intent, nil
}

// postProcess enforces the intent invariants the model cannot be trusted
// with: the candidate default, ordered ranges, single-sided range fill and
// a salary extracted from the sentence when the model left it out.
func (p *Parser) postProcess(intent *models.ParsedIntent, cleaned string) *models.ParsedIntent {
	if intent.SearchType != models.SearchTypeJob {
		intent.SearchType = models.SearchTypeCandidate
	}
	if intent.RewrittenQuery == "" {
		intent.RewrittenQuery = cleaned
	}

	if intent.SalaryMin == nil && intent.SalaryMax == nil {
		intent.SalaryMin, intent.SalaryMax = ParseSalaryRange(cleaned)
	}

	intent.SalaryMin, intent.SalaryMax = orderRange(intent.SalaryMin, intent.SalaryMax)
	intent.ExperienceMin, intent.ExperienceMax = orderRange(intent.ExperienceMin, intent.ExperienceMax)
	intent.AgeMin, intent.AgeMax = orderRange(intent.AgeMin, intent.AgeMax)

	for i, s := range intent.SkillsRelated {
		if s.Confidence < 1 {
			intent.SkillsRelated[i].Confidence = 1
		}
		if s.Confidence > 5 {
			intent.SkillsRelated[i].Confidence = 5
		}
	}

	return intent
}

// orderRange fills a single-sided range from its one concrete value and
// swaps an inverted pair.
func orderRange(min, max *int) (*int, *int) {
	if min == nil && max == nil {
		return nil, nil
	}
	if min == nil {
		v := *max
		return &v, max
	}
	if max == nil {
		v := *min
		return min, &v
	}
	if *min > *max {
		return max, min
	}
	return min, max
}

// extractJSONObject returns the outermost {...} span of raw, tolerating
// code fences and prose around it.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
