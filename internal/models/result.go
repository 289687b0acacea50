// internal/models/result.go
package models

// CandidateProfile is the denormalized payload the retrieval store returns
// for each row. Field set follows the documented SQL function contract.
type CandidateProfile struct {
	Name            string   `json:"name"`
	CurrentRole     string   `json:"current_role"`
	Company         string   `json:"company"`
	Location        string   `json:"location"`
	Skills          []string `json:"skills"`
	ExperienceYears int      `json:"experience_years"`
	MonthlySalary   int      `json:"monthly_salary"`
	Summary         string   `json:"summary"`
}

// RetrievalCandidate is one row from the combined retrieval call. A nil
// score means the row was not matched by that channel; fusion treats a
// missing score as the channel's minimum.
type RetrievalCandidate struct {
	ID         string           `json:"id"`
	Profile    CandidateProfile `json:"profile"`
	Similarity *float64         `json:"similarity,omitempty"`
	FTSRank    *float64         `json:"fts_rank,omitempty"`
}

// FusedResult is a RetrievalCandidate with its fused ranking scores.
// Invariant: FinalScore = alpha*NormalizedVectorScore + (1-alpha)*NormalizedFTSScore.
type FusedResult struct {
	RetrievalCandidate
	NormalizedVectorScore float64 `json:"normalized_vector_score"`
	NormalizedFTSScore    float64 `json:"normalized_fts_score"`
	FinalScore            float64 `json:"final_score"`
	MatchScore            int     `json:"match_score"`
	RerankScore           *float64 `json:"rerank_score,omitempty"`
}
