package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avi3tal/agentrunner/internal/record"
)

// Result is a stored job outcome.
type Result struct {
	ResultID   string     `json:"result_id"`
	JobID      string     `json:"job_id"`
	RunID      string     `json:"run_id"`
	NodeID     string     `json:"node_id"`
	ResultData record.Map `json:"result_data"`
	Status     string     `json:"status"`
	ToolCalls  []string   `json:"tool_calls"`
	TokensUsed int        `json:"tokens_used"`
	LLMModel   string     `json:"llm_model"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ResultStore keeps job results in memory. The authoritative copy of each
// result travels in the completion signal; this store only backs the
// legacy artifact:// references.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]*Result
}

// NewResultStore creates an empty result store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]*Result)}
}

// Store saves a result and returns its artifact reference.
func (s *ResultStore) Store(res *Result) string {
	res.ResultID = uuid.New().String()
	res.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.results[res.ResultID] = res
	s.mu.Unlock()

	return fmt.Sprintf("artifact://%s", res.ResultID)
}

// Get retrieves a result by its ID, or nil when unknown.
func (s *ResultStore) Get(resultID string) *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results[resultID]
}

// Len reports how many results are held.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
