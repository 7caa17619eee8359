package agent

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

const systemPrompt = `You are an agent node inside a running workflow. You are given a task,
the outputs of upstream nodes, and a snapshot of the current workflow.

You act by calling exactly one tool:

- execute_pipeline: fetch and transform data. The pipeline starts with an
  http_request step and may be followed by table_sort, table_filter,
  table_select and top_k steps, applied in order.
- patch_workflow: change the workflow itself with add/remove/replace
  operations against paths like /nodes/- or /edges/-.

Reference upstream outputs with $nodes.<node_id>.<field> paths, or embed
them in strings with ${...} interpolation. Never invent node ids that are
not present in the workflow snapshot or the context.

If the task cannot be served by either tool, answer in plain text
explaining why.`

// buildUserPrompt renders the job into the human message the model sees.
func buildUserPrompt(req *Request) (string, error) {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(req.Task)
	b.WriteString("\n")

	if req.Intent != "" {
		b.WriteString("\nClassified intent: ")
		b.WriteString(req.Intent)
		b.WriteString("\n")
	}

	if len(req.Context) > 0 {
		raw, err := json.MarshalIndent(req.Context, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal context")
		}
		b.WriteString("\nContext:\n")
		b.Write(raw)
		b.WriteString("\n")
	}

	if len(req.Workflow) > 0 {
		raw, err := json.MarshalIndent(req.Workflow, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal workflow snapshot")
		}
		b.WriteString("\nCurrent workflow:\n")
		b.Write(raw)
		b.WriteString("\n")
	}

	return b.String(), nil
}
