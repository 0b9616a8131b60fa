package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/pipeline"
	"github.com/sells-group/trip-cli/internal/resilience"
	"github.com/sells-group/trip-cli/internal/store"
)

type mockPlanner struct {
	mock.Mock
}

func (m *mockPlanner) Process(ctx context.Context, text string) *pipeline.Result {
	args := m.Called(ctx, text)
	return args.Get(0).(*pipeline.Result)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestBuildRouter_Health(t *testing.T) {
	h := buildRouter(nil, nil, nil, nil, 1)

	rr := doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_HealthReportsCircuits(t *testing.T) {
	br := resilience.NewBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_, _ = resilience.ExecuteVal(context.Background(), br.Get("flights"), func(_ context.Context) (float64, error) {
		return 0, errors.New("upstream down")
	})
	h := buildRouter(nil, nil, br, nil, 1)

	rr := doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"flights": "open"}, body.Circuits)
}

func TestBuildRouter_Plan(t *testing.T) {
	p := new(mockPlanner)
	p.On("Process", mock.Anything, "Trip from Miami to Orlando").Return(&pipeline.Result{
		RunID:   "run-1",
		Payload: samplePayload(),
	})
	h := buildRouter(p, nil, nil, nil, 2)

	rr := doRequest(t, h, http.MethodPost, "/v1/itineraries", `{"request":"Trip from Miami to Orlando"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		RunID   string         `json:"run_id"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, 390.5, resp.Payload["total_cost"])
	assert.Len(t, resp.Payload["days"], 2)
	p.AssertExpectations(t)
}

func TestBuildRouter_PlanErrorPayload(t *testing.T) {
	p := new(mockPlanner)
	p.On("Process", mock.Anything, mock.Anything).Return(&pipeline.Result{
		Payload: model.ErrorPayload("Travel dates must be in the future.", model.StatusCompleted),
	})
	h := buildRouter(p, nil, nil, nil, 1)

	rr := doRequest(t, h, http.MethodPost, "/v1/itineraries", `{"request":"trip in 2020"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"payload":{"error":"Travel dates must be in the future.","status":"completed"}}`, rr.Body.String())
}

func TestBuildRouter_PlanBadRequests(t *testing.T) {
	p := new(mockPlanner)
	h := buildRouter(p, nil, nil, nil, 1)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{not json`, "invalid request body"},
		{"missing request", `{}`, "request is required"},
		{"empty request", `{"request":""}`, "request is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, h, http.MethodPost, "/v1/itineraries", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
	p.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestBuildRouter_PlanBodyTooLarge(t *testing.T) {
	p := new(mockPlanner)
	h := buildRouter(p, nil, nil, nil, 1)

	body := `{"request":"` + strings.Repeat("x", maxRequestBody) + `"}`
	rr := doRequest(t, h, http.MethodPost, "/v1/itineraries", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	p.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestBuildRouter_NilDependencies(t *testing.T) {
	h := buildRouter(nil, nil, nil, nil, 1)

	for _, path := range []string{"/v1/runs", "/v1/runs/abc", "/v1/runs/abc/phases"} {
		rr := doRequest(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
	rr := doRequest(t, h, http.MethodPost, "/v1/itineraries", `{"request":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestBuildRouter_Runs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	done, err := st.CreateRun(ctx, "Trip from Miami to Orlando")
	require.NoError(t, err)
	phase, err := st.CreatePhase(ctx, done.ID, "extract_preferences")
	require.NoError(t, err)
	require.NoError(t, st.CompletePhase(ctx, phase.ID, &model.PhaseResult{Name: "extract_preferences", Status: model.PhaseStatusComplete}))
	require.NoError(t, st.UpdateRunResult(ctx, done.ID, &model.RunResult{Payload: samplePayload()}))

	pending, err := st.CreateRun(ctx, "Trip from Chicago to Paris")
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, pending.ID, model.StatusFetchingCosts))

	h := buildRouter(nil, st, nil, []string{"https://planner.example"}, 1)

	t.Run("list", func(t *testing.T) {
		rr := doRequest(t, h, http.MethodGet, "/v1/runs", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var runs []model.Run
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
		assert.Len(t, runs, 2)
	})

	t.Run("list by status", func(t *testing.T) {
		rr := doRequest(t, h, http.MethodGet, "/v1/runs?status=completed&limit=5", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var runs []model.Run
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
		require.Len(t, runs, 1)
		assert.Equal(t, done.ID, runs[0].ID)
	})

	t.Run("list empty", func(t *testing.T) {
		rr := doRequest(t, h, http.MethodGet, "/v1/runs?status=date_invalid", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("bad limit", func(t *testing.T) {
		rr := doRequest(t, h, http.MethodGet, "/v1/runs?limit=abc", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("get", func(t *testing.T) {
		rr := doRequest(t, h, http.MethodGet, "/v1/runs/"+done.ID, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var run model.Run
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
		assert.Equal(t, model.StatusCompleted, run.Status)
		require.NotNil(t, run.Result)
		assert.Equal(t, 390.5, run.Result.Payload.TotalCost)
	})

	t.Run("get missing", func(t *testing.T) {
		rr := doRequest(t, h, http.MethodGet, "/v1/runs/does-not-exist", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "run not found")
	})

	t.Run("phases", func(t *testing.T) {
		rr := doRequest(t, h, http.MethodGet, "/v1/runs/"+done.ID+"/phases", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var phases []model.RunPhase
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &phases))
		require.Len(t, phases, 1)
		assert.Equal(t, "extract_preferences", phases[0].Name)
		assert.Equal(t, model.PhaseStatusComplete, phases[0].Status)
	})
}

func TestBuildRouter_CORS(t *testing.T) {
	h := buildRouter(nil, nil, nil, []string{"https://planner.example"}, 1)

	req := httptest.NewRequest(http.MethodOptions, "/v1/itineraries", nil)
	req.Header.Set("Origin", "https://planner.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://planner.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestBuildRouter_PlanConcurrentRequests(t *testing.T) {
	p := new(mockPlanner)
	p.On("Process", mock.Anything, mock.Anything).Return(&pipeline.Result{Payload: samplePayload()})
	h := buildRouter(p, nil, nil, nil, 4)

	body, err := json.Marshal(planRequestBody{Request: "Trip from Miami to Orlando"})
	require.NoError(t, err)

	codes := make(chan int, 8)
	for i := 0; i < 8; i++ {
		go func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/itineraries", bytes.NewReader(body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			codes <- rr.Code
		}()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, http.StatusOK, <-codes)
	}
}
