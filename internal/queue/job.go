// Package queue consumes agent jobs from a Redis stream under a consumer
// group and publishes completion signals back to the coordinator.
package queue

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentrunner/internal/record"
)

// Job is one unit of agent work. Immutable once popped; it lives for
// exactly one pop → dispatch → signal → ack transaction.
type Job struct {
	JobID           string
	RunID           string
	NodeID          string
	Task            string
	Context         record.Map
	CurrentWorkflow record.Map
	WorkflowOwner   string
	MessageID       string
	SentAt          time.Time
}

// token is the wire shape of a queued job.
type token struct {
	ID       string `json:"id"`
	RunID    string `json:"run_id"`
	ToNode   string `json:"to_node"`
	SentAt   string `json:"sent_at"`
	Metadata struct {
		Task          string     `json:"task"`
		Context       record.Map `json:"context"`
		WorkflowOwner string     `json:"workflow_owner"`
	} `json:"metadata"`
}

// decodeToken parses a token payload into a Job. Missing required fields
// are reported together so the failure log names all of them at once.
func decodeToken(payload string) (*Job, error) {
	var tok token
	if err := json.Unmarshal([]byte(payload), &tok); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal token")
	}

	var missing []string
	if tok.ID == "" {
		missing = append(missing, "id")
	}
	if tok.RunID == "" {
		missing = append(missing, "run_id")
	}
	if tok.ToNode == "" {
		missing = append(missing, "to_node")
	}
	if tok.Metadata.Task == "" {
		missing = append(missing, "metadata.task")
	}
	if len(missing) > 0 {
		return nil, errors.Errorf("token missing required fields: %s", strings.Join(missing, ", "))
	}

	job := &Job{
		JobID:         tok.ID,
		RunID:         tok.RunID,
		NodeID:        tok.ToNode,
		Task:          tok.Metadata.Task,
		Context:       tok.Metadata.Context,
		WorkflowOwner: tok.Metadata.WorkflowOwner,
	}
	if tok.SentAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, tok.SentAt); err == nil {
			job.SentAt = ts
		}
	}
	return job, nil
}
