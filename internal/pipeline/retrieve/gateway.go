// internal/pipeline/retrieve/gateway.go
package retrieve

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"neura-search/internal/common/database"
	stderrors "neura-search/internal/common/errors"
	"neura-search/internal/common/logger"
	"neura-search/internal/models"
)

// Params is one combined retrieval call. Empty or nil filter values never
// constrain the query; they are sent as SQL NULL.
type Params struct {
	Embedding           []float32
	FTSQuery            string
	Filters             models.SearchFilters
	SimilarityThreshold float64
	MatchCount          int
	CompanyID           string
}

// Gateway issues the combined vector+fts retrieval calls. The SQL functions
// compute both similarity and fts_rank server-side in one pass so the base
// table is joined once.
type Gateway struct {
	db     *database.PostgresClient
	logger logger.Logger
}

func NewGateway(db *database.PostgresClient, log logger.Logger) *Gateway {
	return &Gateway{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"stage": "retrieve"}),
	}
}

// Retrieve runs the combined hybrid search for one mode. A non-empty
// CompanyID routes to the company-scoped function.
func (g *Gateway) Retrieve(ctx context.Context, mode models.SearchMode, p *Params) ([]models.RetrievalCandidate, error) {
	fn := "hybrid_search_candidates"
	if mode == models.ModeJobs {
		fn = "hybrid_search_jobs"
	}

	args := []interface{}{
		pgvector.NewVector(p.Embedding),
		p.FTSQuery,
		p.SimilarityThreshold,
		p.MatchCount,
		nullStringArray(p.Filters.Location),
		nullStringArray(p.Filters.Skills),
		nullString(p.Filters.Status),
		nullInt(p.Filters.ExperienceMin),
		nullInt(p.Filters.ExperienceMax),
		nullInt(p.Filters.SalaryMin),
		nullInt(p.Filters.SalaryMax),
	}

	query := fmt.Sprintf("SELECT * FROM %s($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)", fn)
	if p.CompanyID != "" {
		fn += "_scoped"
		args = append(args, p.CompanyID)
		query = fmt.Sprintf("SELECT * FROM %s($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)", fn)
	}

	rows, err := g.db.Query(ctx, query, args...)
	if err != nil {
		return nil, g.mapError(ctx, err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// Rescore re-runs similarity for a bounded id set with a different
// embedding, used by the two-stage strategy's precision pass.
func (g *Gateway) Rescore(ctx context.Context, mode models.SearchMode, ids []string, embedding []float32, threshold float64, matchCount int) ([]models.RetrievalCandidate, error) {
	fn := "rescore_candidates_by_embedding"
	if mode == models.ModeJobs {
		fn = "rescore_jobs_by_embedding"
	}

	query := fmt.Sprintf("SELECT * FROM %s($1, $2, $3, $4)", fn)
	rows, err := g.db.Query(ctx, query,
		pq.Array(ids),
		pgvector.NewVector(embedding),
		threshold,
		matchCount,
	)
	if err != nil {
		return nil, g.mapError(ctx, err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

func (g *Gateway) mapError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return stderrors.NewRetrievalTimeoutError()
	}
	return stderrors.NewRetrievalFailedError(err)
}

func scanCandidates(rows *sql.Rows) ([]models.RetrievalCandidate, error) {
	candidates := []models.RetrievalCandidate{}
	for rows.Next() {
		var (
			c          models.RetrievalCandidate
			skills     pq.StringArray
			similarity sql.NullFloat64
			ftsRank    sql.NullFloat64
		)
		if err := rows.Scan(
			&c.ID,
			&c.Profile.Name,
			&c.Profile.CurrentRole,
			&c.Profile.Company,
			&c.Profile.Location,
			&skills,
			&c.Profile.ExperienceYears,
			&c.Profile.MonthlySalary,
			&c.Profile.Summary,
			&similarity,
			&ftsRank,
		); err != nil {
			return nil, stderrors.NewRetrievalFailedError(err)
		}
		c.Profile.Skills = skills
		if similarity.Valid {
			v := similarity.Float64
			c.Similarity = &v
		}
		if ftsRank.Valid {
			v := ftsRank.Float64
			c.FTSRank = &v
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, stderrors.NewRetrievalFailedError(err)
	}
	return candidates, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullStringArray(s []string) interface{} {
	if len(s) == 0 {
		return nil
	}
	return pq.Array(s)
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
