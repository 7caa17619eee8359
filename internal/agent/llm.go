// Package agent turns a job task into a tool-call decision via the
// reasoning model.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"

	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/record"
)

// ToolCall is one tool invocation requested by the model, with its
// arguments already decoded.
type ToolCall struct {
	ID        string
	Name      string
	Arguments record.Map
}

// Decision is the model's answer for one job.
type Decision struct {
	ToolCalls       []ToolCall
	Message         string
	FinishReason    string
	Model           string
	TokensUsed      int
	ExecutionTimeMS int64
}

// Client wraps a reasoning model behind the decision API the worker needs.
type Client struct {
	model llms.Model
	name  string
	log   *logging.Logger
}

// NewClient builds a client. name is recorded on every decision for
// result metadata; it does not select the model.
func NewClient(model llms.Model, name string, log *logging.Logger) *Client {
	return &Client{model: model, name: name, log: log}
}

// Request carries everything the model sees for one decision.
type Request struct {
	Task     string
	Context  record.Map
	Workflow record.Map
	Intent   string
}

// Decide asks the model for a tool-call decision. When the model answers
// with plain text instead of a tool call, the decision carries the text
// and an empty ToolCalls slice; the caller treats that as a text response.
func (c *Client) Decide(ctx context.Context, req *Request) (*Decision, error) {
	if req.Task == "" {
		return nil, errors.New("decision request requires a task")
	}

	human, err := buildUserPrompt(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build prompt")
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, human),
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, messages, llms.WithTools(toolDefinitions()))
	if err != nil {
		return nil, errors.Wrap(err, "reasoning request failed")
	}
	elapsed := time.Since(start).Milliseconds()

	if len(resp.Choices) == 0 {
		return nil, errors.New("reasoning response has no choices")
	}
	choice := resp.Choices[0]

	decision := &Decision{
		Message:         choice.Content,
		FinishReason:    choice.StopReason,
		Model:           c.name,
		ExecutionTimeMS: elapsed,
	}
	if info := choice.GenerationInfo; info != nil {
		if n, ok := record.AsNumber(info["TotalTokens"]); ok {
			decision.TokensUsed = int(n)
		}
	}

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		var args record.Map
		if tc.FunctionCall.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
				return nil, errors.Wrapf(err, "malformed arguments for tool %s", tc.FunctionCall.Name)
			}
		}
		decision.ToolCalls = append(decision.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: args,
		})
	}

	c.log.Debug("reasoning decision",
		"tool_calls", len(decision.ToolCalls),
		"tokens", decision.TokensUsed,
		"elapsed_ms", elapsed)
	return decision, nil
}
