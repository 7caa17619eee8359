// Package worker runs the job processing loops: pop a job, get a
// decision, execute a lane, signal completion.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/avi3tal/agentrunner/internal/agent"
	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/metrics"
	"github.com/avi3tal/agentrunner/internal/queue"
	"github.com/avi3tal/agentrunner/internal/record"
	"github.com/avi3tal/agentrunner/internal/store"
)

// JobSource supplies jobs and acknowledges them once handled.
type JobSource interface {
	Pop(ctx context.Context) (*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
}

// Reasoner produces tool-call decisions.
type Reasoner interface {
	Decide(ctx context.Context, req *agent.Request) (*agent.Decision, error)
}

// Classifier hints at task intent. Optional; nil disables classification.
type Classifier interface {
	Classify(ctx context.Context, task string) agent.Intent
}

// Signaler publishes completion signals and legacy result previews.
type Signaler interface {
	SignalCompletion(ctx context.Context, sig *queue.CompletionSignal) error
	PublishResult(ctx context.Context, jobID string, result record.Map) error
}

// Executor runs one tool call against its lane.
type Executor interface {
	Dispatch(ctx context.Context, job *queue.Job, call agent.ToolCall) (record.Map, error)
}

const (
	errorBackoff         = time.Second
	defaultShutdownGrace = 30 * time.Second
)

// Pool runs N concurrent job loops over one consumer.
type Pool struct {
	source     JobSource
	reasoner   Reasoner
	classifier Classifier
	executor   Executor
	signaler   Signaler
	results    *store.ResultStore
	size       int
	grace      time.Duration
	log        *logging.Logger

	count int64
	mu    sync.Mutex
}

// Option tweaks pool behavior.
type Option func(*Pool)

// WithShutdownGrace bounds how long an in-flight job may keep running
// after shutdown is requested.
func WithShutdownGrace(d time.Duration) Option {
	return func(p *Pool) { p.grace = d }
}

func NewPool(source JobSource, reasoner Reasoner, classifier Classifier, executor Executor, signaler Signaler, results *store.ResultStore, size int, log *logging.Logger, opts ...Option) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		source:     source,
		reasoner:   reasoner,
		classifier: classifier,
		executor:   executor,
		signaler:   signaler,
		results:    results,
		size:       size,
		grace:      defaultShutdownGrace,
		log:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Processed reports how many jobs the pool has finished, either way.
func (p *Pool) Processed() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Run blocks until ctx is cancelled, then waits for in-flight jobs.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) {
	log := p.log.WithWorker(id)
	log.Debug("worker loop started")
	for {
		if ctx.Err() != nil {
			log.Debug("worker loop stopping")
			return
		}
		job, err := p.source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to pop job", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}

		// Shutdown must not abort a job already popped: cancellation of
		// ctx stops further pops, while the job itself runs on a
		// detached context bounded by the shutdown grace period.
		jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		stop := context.AfterFunc(ctx, func() {
			time.AfterFunc(p.grace, cancel)
		})
		p.process(jobCtx, log, job)
		stop()
		cancel()
	}
}

// process handles one job end to end. A job failure is signaled and
// acked; it never terminates the loop.
func (p *Pool) process(ctx context.Context, log *logging.Logger, job *queue.Job) {
	log = log.WithRunID(job.RunID).WithNodeID(job.NodeID)
	log.Info("processing job", "job_id", job.JobID, "task", job.Task)

	rt := metrics.Begin(job.SentAt)

	req := &agent.Request{
		Task:     job.Task,
		Context:  p.enhancedContext(job),
		Workflow: job.CurrentWorkflow,
	}
	if p.classifier != nil {
		intent := p.classifier.Classify(ctx, job.Task)
		req.Intent = intent.Kind
	}

	decision, err := p.reasoner.Decide(ctx, req)
	if err != nil {
		p.fail(ctx, log, job, rt, err)
		return
	}

	var result record.Map
	var call *agent.ToolCall
	if len(decision.ToolCalls) == 0 {
		result = record.Map{
			"status":  "success",
			"type":    "text_response",
			"message": decision.Message,
		}
	} else {
		// Only the first tool call is honored; the model is prompted
		// to make exactly one.
		call = &decision.ToolCalls[0]
		if len(decision.ToolCalls) > 1 {
			log.Info("ignoring extra tool calls", "count", len(decision.ToolCalls)-1)
		}
		result, err = p.executor.Dispatch(ctx, job, *call)
		if err != nil {
			p.fail(ctx, log, job, rt, err)
			return
		}
	}

	ref := p.storeResult(job, decision, call, result)

	meta := rt.Snapshot()
	meta["llm_model"] = decision.Model
	meta["tokens_used"] = decision.TokensUsed
	if call != nil {
		meta["tool"] = call.Name
	}

	// The full payload travels in the signal; the artifact reference is
	// for the legacy channel only.
	sig := &queue.CompletionSignal{
		JobID:      job.JobID,
		RunID:      job.RunID,
		NodeID:     job.NodeID,
		Status:     queue.StatusCompleted,
		ResultData: result,
		Metadata:   meta,
	}
	if err := p.signaler.SignalCompletion(ctx, sig); err != nil {
		log.Error("failed to signal completion", "job_id", job.JobID, "error", err)
	}
	legacy := record.Map{
		"version":        "1.0",
		"job_id":         job.JobID,
		"status":         queue.StatusCompleted,
		"result_ref":     ref,
		"result_preview": preview(result),
		"metadata":       meta,
	}
	if err := p.signaler.PublishResult(ctx, job.JobID, legacy); err != nil {
		log.Error("failed to publish result preview", "job_id", job.JobID, "error", err)
	}

	p.finish(ctx, log, job)
	log.Info("job completed", "job_id", job.JobID)
}

func (p *Pool) fail(ctx context.Context, log *logging.Logger, job *queue.Job, rt *metrics.Runtime, cause error) {
	errType, retry := classify(cause)
	log.Error("job failed", "job_id", job.JobID, "error", cause, "error_type", errType, "retryable", retry)

	meta := rt.Snapshot()
	meta["error_message"] = cause.Error()
	meta["error_type"] = errType
	meta["retryable"] = retry

	sig := &queue.CompletionSignal{
		JobID:    job.JobID,
		RunID:    job.RunID,
		NodeID:   job.NodeID,
		Status:   queue.StatusFailed,
		Metadata: meta,
	}
	if err := p.signaler.SignalCompletion(ctx, sig); err != nil {
		log.Error("failed to signal failure", "job_id", job.JobID, "error", err)
	}
	legacy := record.Map{
		"version": "1.0",
		"job_id":  job.JobID,
		"status":  queue.StatusFailed,
		"error": record.Map{
			"type":      errType,
			"message":   cause.Error(),
			"retryable": retry,
		},
		"metadata": meta,
	}
	if err := p.signaler.PublishResult(ctx, job.JobID, legacy); err != nil {
		log.Error("failed to publish failure result", "job_id", job.JobID, "error", err)
	}
	p.finish(ctx, log, job)
}

func (p *Pool) finish(ctx context.Context, log *logging.Logger, job *queue.Job) {
	if err := p.source.Ack(ctx, job); err != nil {
		log.Error("failed to ack job", "job_id", job.JobID, "error", err)
	}
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
}

func (p *Pool) storeResult(job *queue.Job, decision *agent.Decision, call *agent.ToolCall, result record.Map) string {
	if p.results == nil {
		return ""
	}
	res := &store.Result{
		JobID:      job.JobID,
		RunID:      job.RunID,
		NodeID:     job.NodeID,
		ResultData: result,
		Status:     queue.StatusCompleted,
		TokensUsed: decision.TokensUsed,
		LLMModel:   decision.Model,
	}
	if call != nil {
		res.ToolCalls = []string{call.Name}
	}
	return p.results.Store(res)
}

// enhancedContext merges the upstream context with the job's own
// coordinates so the model can reference them.
func (p *Pool) enhancedContext(job *queue.Job) record.Map {
	enhanced := record.Map{}
	for k, v := range job.Context {
		enhanced[k] = v
	}
	enhanced["current_node_id"] = job.NodeID
	enhanced["run_id"] = job.RunID
	if job.CurrentWorkflow != nil {
		enhanced["current_workflow"] = job.CurrentWorkflow
	}
	return enhanced
}
