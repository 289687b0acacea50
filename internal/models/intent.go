// internal/models/intent.go
package models

// SearchType is the direction the user is searching in: looking for a
// person to hire, or looking for a job posting.
type SearchType string

const (
	SearchTypeCandidate SearchType = "candidate"
	SearchTypeJob       SearchType = "job"
)

// RelatedSkill is a skill inferred from the query rather than stated in it,
// with a 1-5 confidence grade.
type RelatedSkill struct {
	Skill      string `json:"skill"`
	Confidence int    `json:"confidence"`
}

// ParsedIntent is the structured output of the query understanding stage.
// Salary values are monthly-normalized at parse time and never converted
// again downstream. Numeric ranges satisfy min <= max when both are set.
type ParsedIntent struct {
	SearchType     SearchType     `json:"search_type"`
	Role           []string       `json:"role"`
	SkillsMust     []string       `json:"skills_must"`
	SkillsRelated  []RelatedSkill `json:"skills_related"`
	Location       []string       `json:"location"`
	Industry       []string       `json:"industry"`
	Education      []string       `json:"education"`
	Company        []string       `json:"company"`
	ExperienceMin  *int           `json:"experience_min"`
	ExperienceMax  *int           `json:"experience_max"`
	SalaryMin      *int           `json:"salary_min"`
	SalaryMax      *int           `json:"salary_max"`
	Gender         *string        `json:"gender"`
	AgeMin         *int           `json:"age_min"`
	AgeMax         *int           `json:"age_max"`
	RewrittenQuery string         `json:"rewritten_query"`
}

// MinimalIntent is the fallback produced when the structuring step cannot
// be parsed: only the rewritten query carries information, the search
// direction defaults to candidate.
func MinimalIntent(rewrittenQuery string) *ParsedIntent {
	return &ParsedIntent{
		SearchType:     SearchTypeCandidate,
		Role:           []string{},
		SkillsMust:     []string{},
		SkillsRelated:  []RelatedSkill{},
		Location:       []string{},
		Industry:       []string{},
		Education:      []string{},
		Company:        []string{},
		RewrittenQuery: rewrittenQuery,
	}
}
