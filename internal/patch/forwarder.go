package patch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/record"
)

const defaultForwardTimeout = 30 * time.Second

// Spec is a validated patch ready to forward.
type Spec struct {
	Operations  []record.Map
	Description string
}

// Result is the orchestrator's acknowledgement of an applied patch. Seq is
// the patch's total-order position within the run, assigned remotely.
type Result struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	ArtifactID string `json:"artifact_id"`
	CASID      string `json:"cas_id"`
	Seq        int    `json:"seq"`
	OpCount    int    `json:"op_count"`
}

// TransportError marks a network-level forward failure as retryable for
// the coordinating system. The forwarder itself never retries.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string   { return e.Err.Error() }
func (e *TransportError) Unwrap() error   { return e.Err }
func (e *TransportError) Retryable() bool { return true }

// Forwarder sends validated patches to the orchestrator API.
type Forwarder struct {
	baseURL string
	client  *http.Client
	log     *logging.Logger
}

// NewForwarder creates a forwarder for the given orchestrator base URL.
func NewForwarder(baseURL string, log *logging.Logger) *Forwarder {
	return &Forwarder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultForwardTimeout},
		log:     log,
	}
}

// WithHTTPClient overrides the HTTP client. For tests.
func (f *Forwarder) WithHTTPClient(c *http.Client) *Forwarder {
	f.client = c
	return f
}

// Forward posts the operations as a single run-scoped patch request,
// attributing the mutation to the originating node. An empty operations
// list still forwards; the orchestrator records it as a no-op patch.
func (f *Forwarder) Forward(ctx context.Context, runID, owner string, spec Spec, nodeID string) (*Result, error) {
	if runID == "" {
		return nil, errors.New("run_id is required")
	}

	operations := spec.Operations
	if operations == nil {
		operations = []record.Map{}
	}

	description := spec.Description
	if description == "" {
		description = "Agent-generated patch"
	}

	payload, err := json.Marshal(map[string]any{
		"node_id":     nodeID,
		"operations":  operations,
		"description": description,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal patch request")
	}

	url := fmt.Sprintf("%s/api/v1/runs/%s/patches", f.baseURL, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build patch request")
	}
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}

	f.log.Info("forwarding patch",
		"run_id", runID,
		"node_id", nodeID,
		"operations", len(operations))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: errors.Wrap(err, "patch request failed")}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("patch request failed: status=%d, body=%s", resp.StatusCode, body)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode patch response")
	}

	f.log.Info("patch applied",
		"run_id", runID,
		"patch_id", result.ID,
		"seq", result.Seq)

	return &result, nil
}
