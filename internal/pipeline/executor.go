package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/record"
)

const defaultHTTPTimeout = 30 * time.Second

// Executor runs pipelines step by step, threading each step's output into
// the next step's input.
type Executor struct {
	client *http.Client
	log    *logging.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the client used by http_request steps.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.client = c }
}

// NewExecutor creates an executor with a bounded-timeout HTTP client.
func NewExecutor(log *logging.Logger, opts ...Option) *Executor {
	e := &Executor{
		client: &http.Client{Timeout: defaultHTTPTimeout},
		log:    log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the steps sequentially, failing at the first step that
// errors. The wrapped error names the 1-based step index and step kind.
// An empty pipeline is rejected before any step runs.
func (e *Executor) Execute(ctx context.Context, steps []Step, input record.Value) (record.Value, error) {
	if len(steps) == 0 {
		return nil, errors.New("pipeline cannot be empty")
	}

	e.log.Info("executing pipeline", "steps", len(steps))

	data := input
	for i, step := range steps {
		var err error
		data, err = e.runStep(ctx, step, data)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline failed at step %d (%s)", i+1, step.Kind)
		}
		e.log.Debug("pipeline step completed", "step", i+1, "kind", step.Kind)
	}

	return data, nil
}

func (e *Executor) runStep(ctx context.Context, step Step, input record.Value) (record.Value, error) {
	switch step.Kind {
	case KindHTTPRequest:
		return runHTTP(ctx, e.client, step.HTTP)
	case KindTableSort:
		return applySort(step.Sort, input)
	case KindTableFilter:
		return applyFilter(step.Filter, input)
	case KindTableSelect:
		return applySelect(step.Select, input)
	case KindTopK:
		return applyTopK(step.TopK, input)
	default:
		return nil, errors.Errorf("unknown primitive: %s", step.Kind)
	}
}
