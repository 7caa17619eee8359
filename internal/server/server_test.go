package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/agentrunner/internal/agent"
	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/record"
	"github.com/avi3tal/agentrunner/internal/store"
)

type stubReasoner struct {
	decision *agent.Decision
	err      error
}

func (s *stubReasoner) Decide(_ context.Context, _ *agent.Request) (*agent.Decision, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.decision, nil
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := New("agentrunner", nil, nil, &stubReasoner{}, logging.NewNop())
	rec := do(s, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "agentrunner", body["service"])
}

func TestMetrics(t *testing.T) {
	results := store.NewResultStore()
	results.Store(&store.Result{JobID: "j1"})
	s := New("agentrunner", nil, results, &stubReasoner{}, logging.NewNop())

	rec := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["results_held"])
	assert.Greater(t, body["goroutines"], float64(0))
}

func TestTestChat(t *testing.T) {
	t.Run("returns the decision", func(t *testing.T) {
		decision := &agent.Decision{
			ToolCalls: []agent.ToolCall{{
				Name:      agent.ToolExecutePipeline,
				Arguments: record.Map{"pipeline": record.List{}},
			}},
			Model:      "gpt-4o-mini",
			TokensUsed: 42,
		}
		s := New("agentrunner", nil, nil, &stubReasoner{decision: decision}, logging.NewNop())

		rec := do(s, http.MethodPost, "/test/chat", `{"task":"fetch items"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		calls := body["tool_calls"].([]any)
		require.Len(t, calls, 1)
		assert.Equal(t, agent.ToolExecutePipeline, calls[0].(map[string]any)["name"])
		assert.EqualValues(t, 42, body["tokens_used"])
	})

	t.Run("missing task is a bad request", func(t *testing.T) {
		s := New("agentrunner", nil, nil, &stubReasoner{}, logging.NewNop())
		rec := do(s, http.MethodPost, "/test/chat", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reasoner failure is a bad gateway", func(t *testing.T) {
		s := New("agentrunner", nil, nil, &stubReasoner{err: assert.AnError}, logging.NewNop())
		rec := do(s, http.MethodPost, "/test/chat", `{"task":"hi"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}
