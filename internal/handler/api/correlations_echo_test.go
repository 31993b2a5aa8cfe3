package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CorrPull/internal/domain/models"
	"CorrPull/internal/usecase"
)

type stubRankings struct {
	got  models.RankingsRequest
	rows []models.RankedCorrelation
	err  error
	down error
}

func (s *stubRankings) Get(_ context.Context, q models.RankingsRequest) ([]models.RankedCorrelation, error) {
	s.got = q
	return s.rows, s.err
}

func (s *stubRankings) Health(context.Context) error { return s.down }

type stubJobs struct {
	got models.JobRequest
	err error
}

func (s *stubJobs) Run(_ context.Context, req models.JobRequest) (*models.JobResult, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.JobResult{RunID: "run-1", Primaries: len(req.PrimarySymbols)}, nil
}

type stubQueue struct {
	got models.JobRequest
	err error
}

func (s *stubQueue) Submit(_ context.Context, req models.JobRequest) (string, error) {
	s.got = req
	return "q-1", s.err
}

func (s *stubQueue) Status(_ context.Context, id string) (*models.JobStatus, error) {
	if id != "q-1" {
		return nil, usecase.ErrJobNotFound
	}
	return &models.JobStatus{JobID: id, State: "running", Attempts: 1}, nil
}

func newServer(r *stubRankings, j *stubJobs) *echo.Echo {
	e := echo.New()
	NewCorrelationsEchoHandler(nil, r, j, nil, 0).RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCorrelationsEndpoint(t *testing.T) {
	r := &stubRankings{rows: []models.RankedCorrelation{
		{RunID: "r1", Symbol: "SPY", Window: "2023", Side: models.SideNegative, Rank: 1, Candidate: "TLT", Correlation: -0.7},
	}}
	e := newServer(r, &stubJobs{})

	rec := do(e, http.MethodGet, "/api/correlations?symbol=SPY&side=negative&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// defaults fill the window
	assert.Equal(t, models.RankingsRequest{Symbol: "SPY", Window: "2023", Side: "negative", Limit: 5}, r.got)

	var body struct {
		Data models.RankingsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "r1", body.Data.RunID)
	require.Len(t, body.Data.Candidates, 1)
	assert.Equal(t, "TLT", body.Data.Candidates[0].Candidate)
}

func TestCorrelationsEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"missing symbol", "/api/correlations", nil, http.StatusBadRequest},
		{"bad side", "/api/correlations?symbol=SPY&side=up", nil, http.StatusBadRequest},
		{"limit too large", "/api/correlations?symbol=SPY&limit=900", nil, http.StatusBadRequest},
		{"not found", "/api/correlations?symbol=SPY", fmt.Errorf("%w: SPY", usecase.ErrRankingsNotFound), http.StatusNotFound},
		{"store failure", "/api/correlations?symbol=SPY", errors.New("conn reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newServer(&stubRankings{err: tt.err}, &stubJobs{})
			rec := do(e, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSubmitJob(t *testing.T) {
	j := &stubJobs{}
	e := newServer(&stubRankings{}, j)

	rec := do(e, http.MethodPost, "/api/jobs", `{"primary_symbols":["SPY","QQQ"],"windows":["2022"],"parallel":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"SPY", "QQQ"}, j.got.PrimarySymbols)
	assert.True(t, j.got.Parallel)
	assert.Contains(t, rec.Body.String(), `"run_id":"run-1"`)
}

func TestSubmitJobErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed", `{"primary_symbols":`, nil, http.StatusBadRequest},
		{"invalid", `{}`, fmt.Errorf("%w: no primaries", usecase.ErrInvalidJob), http.StatusBadRequest},
		{"timeout", `{}`, context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"failure", `{}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newServer(&stubRankings{}, &stubJobs{err: tt.err})
			rec := do(e, http.MethodPost, "/api/jobs", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	rec := do(newServer(&stubRankings{}, &stubJobs{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(newServer(&stubRankings{down: errors.New("down")}, &stubJobs{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitJobAsync(t *testing.T) {
	q := &stubQueue{}
	e := echo.New()
	NewCorrelationsEchoHandler(nil, &stubRankings{}, &stubJobs{}, q, 0).RegisterRoutes(e)

	rec := do(e, http.MethodPost, "/api/jobs?async=true", `{"primary_symbols":["SPY"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"job_id":"q-1"`)
	assert.Equal(t, []string{"SPY"}, q.got.PrimarySymbols)

	q.err = fmt.Errorf("%w: bad kind", usecase.ErrInvalidJob)
	rec = do(e, http.MethodPost, "/api/jobs?async=true", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJobAsyncWithoutQueue(t *testing.T) {
	rec := do(newServer(&stubRankings{}, &stubJobs{}), http.MethodPost, "/api/jobs?async=true", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobStatus(t *testing.T) {
	e := echo.New()
	NewCorrelationsEchoHandler(nil, &stubRankings{}, &stubJobs{}, &stubQueue{}, 0).RegisterRoutes(e)

	rec := do(e, http.MethodGet, "/api/jobs/q-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"running"`)

	rec = do(e, http.MethodGet, "/api/jobs/other", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(newServer(&stubRankings{}, &stubJobs{}), http.MethodGet, "/api/jobs/q-1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
