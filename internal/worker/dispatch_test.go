package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avi3tal/agentrunner/internal/agent"
	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/patch"
	"github.com/avi3tal/agentrunner/internal/pipeline"
	"github.com/avi3tal/agentrunner/internal/queue"
	"github.com/avi3tal/agentrunner/internal/record"
	"github.com/avi3tal/agentrunner/internal/resolver"
)

type fakeOutputs map[string]record.Value

func (f fakeOutputs) NodeOutput(_ context.Context, _, nodeID string) (record.Value, error) {
	v, ok := f[nodeID]
	if !ok {
		return nil, &outputMissing{nodeID}
	}
	return v, nil
}

type outputMissing struct{ node string }

func (e *outputMissing) Error() string { return "no output for node " + e.node }

func mustArgs(t *testing.T, raw string) record.Map {
	t.Helper()
	var args record.Map
	require.NoError(t, json.Unmarshal([]byte(raw), &args))
	return args
}

func newDispatcher(t *testing.T, outputs fakeOutputs, orchestratorURL string) *Dispatcher {
	t.Helper()
	log := logging.NewNop()
	return NewDispatcher(
		resolver.New(outputs),
		pipeline.NewExecutor(log),
		patch.NewForwarder(orchestratorURL, log),
		log,
	)
}

func TestDispatchPipeline(t *testing.T) {
	ctx := context.Background()
	job := &queue.Job{JobID: "j1", RunID: "r1", NodeID: "agent_1"}

	t.Run("runs the pipeline and counts its steps", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode([]any{
				map[string]any{"name": "b", "price": 30.0},
				map[string]any{"name": "a", "price": 10.0},
				map[string]any{"name": "c", "price": 20.0},
			})
		}))
		defer srv.Close()

		args := mustArgs(t, `{"pipeline":[
			{"step":"http_request","url":"`+srv.URL+`"},
			{"step":"table_sort","field":"price","order":"asc"},
			{"step":"top_k","k":2}
		]}`)
		d := newDispatcher(t, fakeOutputs{}, "http://unused")

		result, err := d.Dispatch(ctx, job, agent.ToolCall{Name: agent.ToolExecutePipeline, Arguments: args})
		require.NoError(t, err)
		assert.Equal(t, "success", result["status"])
		assert.Equal(t, 3, result["pipeline_steps"])

		rows := result["data"].(record.List)
		require.Len(t, rows, 2)
		assert.Equal(t, "a", rows[0].(record.Map)["name"])
		assert.Equal(t, "c", rows[1].(record.Map)["name"])
	})

	t.Run("resolves node references in arguments", func(t *testing.T) {
		var gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.String()
			json.NewEncoder(w).Encode([]any{})
		}))
		defer srv.Close()

		args := mustArgs(t, `{"pipeline":[
			{"step":"http_request","url":"`+srv.URL+`/items?cat=${$nodes.n1.category}"}
		]}`)
		d := newDispatcher(t, fakeOutputs{"n1": record.Map{"category": "books"}}, "http://unused")

		_, err := d.Dispatch(ctx, job, agent.ToolCall{Name: agent.ToolExecutePipeline, Arguments: args})
		require.NoError(t, err)
		assert.Equal(t, "/items?cat=books", gotPath)
	})

	t.Run("missing pipeline array is rejected", func(t *testing.T) {
		d := newDispatcher(t, fakeOutputs{}, "http://unused")
		_, err := d.Dispatch(ctx, job, agent.ToolCall{Name: agent.ToolExecutePipeline, Arguments: record.Map{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline array")
	})

	t.Run("unresolvable reference fails before any lane runs", func(t *testing.T) {
		args := mustArgs(t, `{"pipeline":[{"step":"http_request","url":"$nodes.ghost.url"}]}`)
		d := newDispatcher(t, fakeOutputs{}, "http://unused")
		_, err := d.Dispatch(ctx, job, agent.ToolCall{Name: agent.ToolExecutePipeline, Arguments: args})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resolve")
	})
}

func TestDispatchPatch(t *testing.T) {
	ctx := context.Background()
	job := &queue.Job{JobID: "j1", RunID: "r1", NodeID: "agent_1", WorkflowOwner: "user-1"}

	t.Run("validates then forwards", func(t *testing.T) {
		var gotUser string
		var gotBody record.Map
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUser = r.Header.Get("X-User-ID")
			json.NewDecoder(r.Body).Decode(&gotBody)
			json.NewEncoder(w).Encode(map[string]any{
				"id": "patch-1", "run_id": "r1", "artifact_id": "a1", "cas_id": "c1", "seq": 4, "op_count": 1,
			})
		}))
		defer srv.Close()

		args := mustArgs(t, `{"operations":[
			{"op":"add","path":"/nodes/-","value":{"id":"sum_1","type":"summarizer","config":{}}}
		],"description":"add summarizer"}`)
		d := newDispatcher(t, fakeOutputs{}, srv.URL)

		result, err := d.Dispatch(ctx, job, agent.ToolCall{Name: agent.ToolPatchWorkflow, Arguments: args})
		require.NoError(t, err)
		assert.Equal(t, "success", result["status"])
		assert.Equal(t, "patch-1", result["patch_id"])
		assert.Equal(t, 1, result["op_count"])
		assert.Equal(t, "user-1", gotUser)
		assert.Equal(t, "agent_1", gotBody["node_id"])
	})

	t.Run("model-supplied owner overrides the job's", func(t *testing.T) {
		var gotUser string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUser = r.Header.Get("X-User-ID")
			json.NewEncoder(w).Encode(map[string]any{"id": "patch-2", "op_count": 0})
		}))
		defer srv.Close()

		args := mustArgs(t, `{"operations":[],"workflow_owner":"user-2"}`)
		d := newDispatcher(t, fakeOutputs{}, srv.URL)

		_, err := d.Dispatch(ctx, job, agent.ToolCall{Name: agent.ToolPatchWorkflow, Arguments: args})
		require.NoError(t, err)
		assert.Equal(t, "user-2", gotUser)
	})

	t.Run("invalid operations never reach the orchestrator", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
		}))
		defer srv.Close()

		args := mustArgs(t, `{"operations":[{"op":"teleport","path":"/nodes/-"}]}`)
		d := newDispatcher(t, fakeOutputs{}, srv.URL)

		_, err := d.Dispatch(ctx, job, agent.ToolCall{Name: agent.ToolPatchWorkflow, Arguments: args})
		require.Error(t, err)
		assert.False(t, called)

		var vErr *patch.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newDispatcher(t, fakeOutputs{}, "http://unused")
	_, err := d.Dispatch(context.Background(), &queue.Job{RunID: "r1"}, agent.ToolCall{Name: "summon_demon"})
	require.Error(t, err)

	var toolErr *UnknownToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "summon_demon", toolErr.Name)
}
