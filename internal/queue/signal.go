package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/record"
)

// completionList is the shared list the coordinator drains for signals.
const completionList = "completion_signals"

// Statuses a completion signal may carry.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// CompletionSignal tells the coordinator a node finished.
type CompletionSignal struct {
	Version    string       `json:"version"`
	JobID      string       `json:"job_id"`
	RunID      string       `json:"run_id"`
	NodeID     string       `json:"node_id"`
	Status     string       `json:"status"`
	ResultData record.Value `json:"result_data,omitempty"`
	ResultRef  string       `json:"result_ref,omitempty"`
	Metadata   record.Map   `json:"metadata,omitempty"`
	SignaledAt string       `json:"signaled_at"`
}

// Validate checks the signal invariants before it goes on the wire.
// A failed signal never carries result data; the failure reason travels
// in metadata instead.
func (s *CompletionSignal) Validate() error {
	if s.JobID == "" || s.RunID == "" || s.NodeID == "" {
		return errors.New("completion signal requires job_id, run_id and node_id")
	}
	switch s.Status {
	case StatusCompleted, StatusFailed:
	default:
		return errors.Errorf("invalid completion status %q", s.Status)
	}
	if s.Status == StatusFailed && (s.ResultData != nil || s.ResultRef != "") {
		return errors.New("failed signal must not carry result data")
	}
	return nil
}

// lister is the slice of the Redis client the signaler needs.
type lister interface {
	PushToList(ctx context.Context, key string, values ...any) error
}

// Signaler publishes completion signals and per-job results.
type Signaler struct {
	redis  lister
	prefix string
	log    *logging.Logger
}

// NewSignaler builds a signaler. prefix namespaces the legacy per-job
// result lists, e.g. "agent_result".
func NewSignaler(redis lister, prefix string, log *logging.Logger) *Signaler {
	return &Signaler{redis: redis, prefix: prefix, log: log}
}

// SignalCompletion validates and pushes the signal onto the shared
// completion list.
func (s *Signaler) SignalCompletion(ctx context.Context, sig *CompletionSignal) error {
	if sig.Version == "" {
		sig.Version = "1.0"
	}
	if sig.SignaledAt == "" {
		sig.SignaledAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := sig.Validate(); err != nil {
		return errors.Wrap(err, "invalid completion signal")
	}

	payload, err := json.Marshal(sig)
	if err != nil {
		return errors.Wrap(err, "failed to marshal completion signal")
	}
	if err := s.redis.PushToList(ctx, completionList, string(payload)); err != nil {
		return errors.Wrap(err, "failed to push completion signal")
	}
	s.log.Debug("signaled completion", "job_id", sig.JobID, "node_id", sig.NodeID, "status", sig.Status)
	return nil
}

// PublishResult pushes a result snapshot onto the per-job list that
// older clients poll directly.
func (s *Signaler) PublishResult(ctx context.Context, jobID string, result record.Map) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "failed to marshal job result")
	}
	key := s.prefix + ":" + jobID
	if err := s.redis.PushToList(ctx, key, string(payload)); err != nil {
		return errors.Wrapf(err, "failed to publish result for job %s", jobID)
	}
	return nil
}
