// Package store holds the worker's storage clients: the read-only
// run-scoped context store backed by Redis, and the in-memory result
// store behind the artifact:// reference contract.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/record"
	"github.com/avi3tal/agentrunner/internal/redisx"
)

// OutputNotFoundError reports a node with no output pointer in the run's
// context hash.
type OutputNotFoundError struct {
	NodeID string
}

func (e *OutputNotFoundError) Error() string {
	return fmt.Sprintf("node output not found: %s", e.NodeID)
}

// BlobNotFoundError reports an output pointer whose content-addressed
// value is missing. Distinct from OutputNotFoundError: the pointer existed.
type BlobNotFoundError struct {
	CASID string
}

func (e *BlobNotFoundError) Error() string {
	return fmt.Sprintf("CAS data not found: %s", e.CASID)
}

// ContextStore reads node outputs and workflow snapshots for a run.
// Writes happen upstream; this client never deletes or mutates entries.
type ContextStore struct {
	redis *redisx.Client
	log   *logging.Logger
}

// NewContextStore creates a context store over a shared Redis client.
func NewContextStore(redis *redisx.Client, log *logging.Logger) *ContextStore {
	return &ContextStore{redis: redis, log: log}
}

// NodeOutput loads a node's output through the two-level indirection:
// context:<run_id> hash field "<node_id>:output" holds a CAS pointer,
// cas:<pointer> holds the serialized value.
func (s *ContextStore) NodeOutput(ctx context.Context, runID, nodeID string) (record.Value, error) {
	contextKey := fmt.Sprintf("context:%s", runID)
	outputField := fmt.Sprintf("%s:output", nodeID)

	casRef, err := s.redis.GetHash(ctx, contextKey, outputField)
	if err != nil {
		if errors.Is(err, redisx.ErrNotFound) {
			return nil, &OutputNotFoundError{NodeID: nodeID}
		}
		return nil, err
	}

	data, err := s.redis.Get(ctx, fmt.Sprintf("cas:%s", casRef))
	if err != nil {
		if errors.Is(err, redisx.ErrNotFound) {
			return nil, &BlobNotFoundError{CASID: casRef}
		}
		return nil, err
	}

	value, err := record.Decode([]byte(data))
	if err != nil {
		// Not every blob is JSON; fall back to the raw string.
		return data, nil
	}
	return value, nil
}

// Snapshot loads the current workflow graph for a run, or nil when no
// snapshot has been stored yet. Absence is not an error: jobs created
// before the first node completes have nothing to see.
func (s *ContextStore) Snapshot(ctx context.Context, runID string) (record.Map, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("ir:%s", runID))
	if err != nil {
		if errors.Is(err, redisx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var snapshot record.Map
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, errors.Wrapf(err, "invalid workflow snapshot for run %s", runID)
	}
	return snapshot, nil
}
