// internal/models/search.go
package models

// SearchMode selects which corpus a search runs against.
type SearchMode string

const (
	ModeCandidates SearchMode = "candidates"
	ModeJobs       SearchMode = "jobs"
)

// SearchRequest is the payload accepted by POST /api/search.
type SearchRequest struct {
	Query     string        `json:"query"`
	Mode      SearchMode    `json:"mode"`
	Filters   SearchFilters `json:"filters"`
	Rerank    bool          `json:"rerank,omitempty"`
	TwoStage  bool          `json:"two_stage,omitempty"`
	Count     int           `json:"count,omitempty"`
	CompanyID string        `json:"company_id,omitempty"`
}

// SearchFilters are passed through to the retrieval store unmodified.
// Empty values must not constrain the query.
type SearchFilters struct {
	Location      []string `json:"location,omitempty"`
	Skills        []string `json:"skills,omitempty"`
	Status        string   `json:"status,omitempty"`
	ExperienceMin *int     `json:"experience_min,omitempty"`
	ExperienceMax *int     `json:"experience_max,omitempty"`
	SalaryMin     *int     `json:"salary_min,omitempty"`
	SalaryMax     *int     `json:"salary_max,omitempty"`
}

// IsZero reports whether no filter is set at all.
func (f SearchFilters) IsZero() bool {
	return len(f.Location) == 0 && len(f.Skills) == 0 && f.Status == "" &&
		f.ExperienceMin == nil && f.ExperienceMax == nil &&
		f.SalaryMin == nil && f.SalaryMax == nil
}
