// internal/pipeline/retrieve/gateway_test.go
package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neura-search/internal/common/database"
	stderrors "neura-search/internal/common/errors"
	"neura-search/internal/common/logger"
	"neura-search/internal/models"
)

var candidateColumns = []string{
	"id", "name", "current_role", "company", "location", "skills",
	"experience_years", "monthly_salary", "summary", "similarity", "fts_rank",
}

func newTestGateway(t *testing.T) (*Gateway, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewGateway(&database.PostgresClient{DB: db}, logger.NewNoOpLogger()), mock
}

func TestRetrieve_ScansBothChannels(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`SELECT \* FROM hybrid_search_candidates\(`).
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow("c1", "张三", "后端开发工程师", "某科技公司", "深圳",
				"{Go,Kubernetes}", 6, 30000, "资深后端", 0.87, 0.42).
			AddRow("c2", "李四", "后端开发工程师", "另一公司", "深圳",
				"{Go}", 4, 25000, "后端", nil, 0.31))

	got, err := g.Retrieve(context.Background(), models.ModeCandidates, &Params{
		Embedding:           []float32{0.1, 0.2, 0.3},
		FTSQuery:            "资深 Go 后端开发工程师",
		SimilarityThreshold: 0.3,
		MatchCount:          20,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, []string{"Go", "Kubernetes"}, got[0].Profile.Skills)
	require.NotNil(t, got[0].Similarity)
	assert.Equal(t, 0.87, *got[0].Similarity)
	require.NotNil(t, got[0].FTSRank)
	assert.Equal(t, 0.42, *got[0].FTSRank)

	// c2 was not matched by the vector channel.
	assert.Nil(t, got[1].Similarity)
	require.NotNil(t, got[1].FTSRank)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetrieve_EmptyFiltersAreSQLNull(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`SELECT \* FROM hybrid_search_candidates\(`).
		WithArgs(
			sqlmock.AnyArg(), "query text", 0.3, 20,
			nil, nil, nil, nil, nil, nil, nil,
		).
		WillReturnRows(sqlmock.NewRows(candidateColumns))

	got, err := g.Retrieve(context.Background(), models.ModeCandidates, &Params{
		Embedding:           []float32{0.1},
		FTSQuery:            "query text",
		SimilarityThreshold: 0.3,
		MatchCount:          20,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetrieve_JobsModeUsesJobsFunction(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`SELECT \* FROM hybrid_search_jobs\(`).
		WillReturnRows(sqlmock.NewRows(candidateColumns))

	_, err := g.Retrieve(context.Background(), models.ModeJobs, &Params{
		Embedding:  []float32{0.1},
		FTSQuery:   "后端开发工程师职位",
		MatchCount: 20,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetrieve_CompanyScopedVariant(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`SELECT \* FROM hybrid_search_candidates_scoped\(`).
		WillReturnRows(sqlmock.NewRows(candidateColumns))

	_, err := g.Retrieve(context.Background(), models.ModeCandidates, &Params{
		Embedding:  []float32{0.1},
		FTSQuery:   "query text",
		MatchCount: 20,
		CompanyID:  "company-42",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetrieve_ErrorIsFatal(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`SELECT \* FROM hybrid_search_candidates\(`).
		WillReturnError(errors.New("connection reset"))

	_, err := g.Retrieve(context.Background(), models.ModeCandidates, &Params{
		Embedding:  []float32{0.1},
		FTSQuery:   "query text",
		MatchCount: 20,
	})
	require.Error(t, err)
	assert.True(t, stderrors.IsFatal(err))
}

func TestRescore_CallsRescoreFunction(t *testing.T) {
	g, mock := newTestGateway(t)

	mock.ExpectQuery(`SELECT \* FROM rescore_candidates_by_embedding\(`).
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow("c1", "张三", "后端开发工程师", "某科技公司", "深圳",
				"{Go}", 6, 30000, "资深后端", 0.91, nil))

	got, err := g.Rescore(context.Background(), models.ModeCandidates,
		[]string{"c1", "c2"}, []float32{0.4, 0.5}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Similarity)
	assert.Equal(t, 0.91, *got[0].Similarity)
	assert.Nil(t, got[0].FTSRank)
	assert.NoError(t, mock.ExpectationsWereMet())
}
