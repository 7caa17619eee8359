package worker

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentrunner/internal/agent"
	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/patch"
	"github.com/avi3tal/agentrunner/internal/pipeline"
	"github.com/avi3tal/agentrunner/internal/queue"
	"github.com/avi3tal/agentrunner/internal/record"
	"github.com/avi3tal/agentrunner/internal/resolver"
)

// UnknownToolError reports a tool name outside the closed lane set. It
// marks a configuration fault, never a retryable one.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// Dispatcher routes a tool call to its execution lane.
type Dispatcher struct {
	resolver  *resolver.Resolver
	pipelines *pipeline.Executor
	patches   *patch.Forwarder
	log       *logging.Logger
}

func NewDispatcher(res *resolver.Resolver, exec *pipeline.Executor, fwd *patch.Forwarder, log *logging.Logger) *Dispatcher {
	return &Dispatcher{resolver: res, pipelines: exec, patches: fwd, log: log}
}

// Dispatch executes one tool call and returns the result payload for the
// completion signal. Tool arguments are resolved against upstream node
// outputs before either lane runs.
func (d *Dispatcher) Dispatch(ctx context.Context, job *queue.Job, call agent.ToolCall) (record.Map, error) {
	resolved, err := d.resolver.Resolve(ctx, job.RunID, record.Value(call.Arguments))
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve tool arguments")
	}
	args, ok := resolved.(record.Map)
	if !ok {
		return nil, errors.New("resolved tool arguments are not an object")
	}

	switch call.Name {
	case agent.ToolExecutePipeline:
		return d.runPipeline(ctx, args)
	case agent.ToolPatchWorkflow:
		return d.runPatch(ctx, job, args)
	default:
		return nil, &UnknownToolError{Name: call.Name}
	}
}

func (d *Dispatcher) runPipeline(ctx context.Context, args record.Map) (record.Map, error) {
	raw, ok := args["pipeline"].(record.List)
	if !ok {
		return nil, errors.New("execute_pipeline requires a pipeline array")
	}
	steps, err := pipeline.ParseSteps(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid pipeline")
	}
	rows, err := d.pipelines.Execute(ctx, steps, nil)
	if err != nil {
		return nil, err
	}
	return record.Map{
		"status":         "success",
		"data":           rows,
		"pipeline_steps": len(steps),
	}, nil
}

func (d *Dispatcher) runPatch(ctx context.Context, job *queue.Job, args record.Map) (record.Map, error) {
	var ops []record.Map
	if raw, ok := args["operations"].(record.List); ok {
		for i, item := range raw {
			op, ok := item.(record.Map)
			if !ok {
				return nil, errors.Errorf("patch operation %d is not an object", i)
			}
			ops = append(ops, op)
		}
	}
	if err := patch.ValidateOperations(ops); err != nil {
		return nil, errors.Wrap(err, "patch rejected")
	}

	spec := patch.Spec{Operations: ops}
	if desc, ok := args["description"].(string); ok {
		spec.Description = desc
	}

	// The model may name these itself; otherwise they are environmental
	// and come from the job.
	runID := stringArg(args, "run_id", job.RunID)
	owner := stringArg(args, "workflow_owner", job.WorkflowOwner)
	nodeID := stringArg(args, "node_id", job.NodeID)

	res, err := d.patches.Forward(ctx, runID, owner, spec, nodeID)
	if err != nil {
		return nil, err
	}
	return record.Map{
		"status":      "success",
		"patch_id":    res.ID,
		"artifact_id": res.ArtifactID,
		"seq":         res.Seq,
		"op_count":    res.OpCount,
	}, nil
}

func stringArg(args record.Map, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
