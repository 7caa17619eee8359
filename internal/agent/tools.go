package agent

import "github.com/tmc/langchaingo/llms"

// ToolExecutePipeline and ToolPatchWorkflow are the only tools the
// reasoning model may call. Anything else is a configuration error.
const (
	ToolExecutePipeline = "execute_pipeline"
	ToolPatchWorkflow   = "patch_workflow"
)

// toolDefinitions returns the tool schemas offered to the model on every
// decision request.
func toolDefinitions() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        ToolExecutePipeline,
				Description: "Run an ephemeral data pipeline: fetch data over HTTP, then transform it with sort, filter, select and top_k steps. Use this when the task asks to retrieve or reshape data.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"pipeline": map[string]any{
							"type":        "array",
							"description": "Ordered list of steps. Each step has a 'step' kind (http_request, table_sort, table_filter, table_select, top_k) plus kind-specific fields.",
							"items":       map[string]any{"type": "object"},
						},
					},
					"required": []string{"pipeline"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        ToolPatchWorkflow,
				Description: "Modify the running workflow with JSON-Patch style operations (add, remove, replace). Use this when the task asks to change the workflow itself: add nodes, rewire edges, update node config.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"operations": map[string]any{
							"type":        "array",
							"description": "Patch operations. Each has 'op' (add/remove/replace), 'path', and for add/replace a 'value'.",
							"items":       map[string]any{"type": "object"},
						},
						"description": map[string]any{
							"type":        "string",
							"description": "One-line human summary of the change.",
						},
					},
					"required": []string{"operations"},
				},
			},
		},
	}
}
