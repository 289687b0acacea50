// internal/server/server_test.go
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neura-search/internal/common/logger"
	"neura-search/internal/models"
	"neura-search/internal/search"
)

type fakeService struct {
	lastReq   *models.SearchRequest
	lastAlpha *float64
	debugRes  *search.DebugResult
	debugErr  error
}

func (f *fakeService) Run(_ context.Context, req *models.SearchRequest, w search.StreamWriter) {
	f.lastReq = req
	_ = w.WriteMeta(&models.StreamMeta{SearchID: "s-1", Mode: req.Mode})
	_ = w.WriteChunk([]models.FusedResult{
		{RetrievalCandidate: models.RetrievalCandidate{ID: "a"}, MatchScore: 90},
	}, 1, true)
	_ = w.WriteComplete(&models.StreamSummary{RecallCount: 1, ChunkCount: 1})
}

func (f *fakeService) Debug(_ context.Context, req *models.SearchRequest, alpha *float64) (*search.DebugResult, error) {
	f.lastReq = req
	f.lastAlpha = alpha
	return f.debugRes, f.debugErr
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

func newTestServer(svc *fakeService, dbErr, cacheErr error) *Server {
	return New(svc, &fakePinger{err: dbErr}, &fakePinger{err: cacheErr}, logger.NewNoOpLogger())
}

func TestHandleSearch_StreamsNDJSON(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(svc, nil, nil)

	body := `{"query": "深圳 后端 go", "mode": "candidates", "count": 5}`
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	require.NotNil(t, svc.lastReq)
	assert.Equal(t, "深圳 后端 go", svc.lastReq.Query)
	assert.Equal(t, 5, svc.lastReq.Count)

	var types []string
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		var chunk models.StreamChunk
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &chunk))
		types = append(types, string(chunk.Type))
	}
	assert.Equal(t, []string{"meta", "chunk", "complete"}, types)
}

func TestHandleSearch_RejectsEmptyQuery(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(svc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query": "  "}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.lastReq)
	assert.Contains(t, rec.Body.String(), "required")
}

func TestHandleSearch_RejectsInvalidMode(t *testing.T) {
	srv := newTestServer(&fakeService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query": "后端", "mode": "people"}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch_RejectsMalformedBody(t *testing.T) {
	srv := newTestServer(&fakeService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch_RejectsGet(t *testing.T) {
	srv := newTestServer(&fakeService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleDebugSearch_PassesAlphaOverride(t *testing.T) {
	svc := &fakeService{debugRes: &search.DebugResult{SearchID: "d-1", Alpha: 0.9}}
	srv := newTestServer(svc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/debug/search",
		strings.NewReader(`{"query": "后端", "alpha": 0.9}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastAlpha)
	assert.Equal(t, 0.9, *svc.lastAlpha)

	var res search.DebugResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "d-1", res.SearchID)
}

func TestHandleDebugSearch_RejectsAlphaOutOfRange(t *testing.T) {
	srv := newTestServer(&fakeService{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/debug/search",
		strings.NewReader(`{"query": "后端", "alpha": 1.5}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDebugSearch_PipelineErrorIs502(t *testing.T) {
	svc := &fakeService{debugErr: errors.New("retrieval down")}
	srv := newTestServer(svc, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/debug/search",
		strings.NewReader(`{"query": "后端"}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "retrieval down")
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&fakeService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestHandleReady(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		cacheErr error
		want     int
	}{
		{"all stores up", nil, nil, http.StatusOK},
		{"postgres down", errors.New("refused"), nil, http.StatusServiceUnavailable},
		{"redis down", nil, errors.New("refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeService{}, tt.dbErr, tt.cacheErr)

			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			rec := httptest.NewRecorder()
			srv.Routes().ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
