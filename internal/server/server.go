// Package server exposes the runner's HTTP surface: health, runtime
// metrics and a direct reasoning endpoint for smoke testing.
package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/avi3tal/agentrunner/internal/agent"
	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/store"
	"github.com/avi3tal/agentrunner/internal/worker"
)

// Server wraps the echo instance and its wiring.
type Server struct {
	echo    *echo.Echo
	name    string
	started time.Time
	pool    *worker.Pool
	results *store.ResultStore
	llm     worker.Reasoner
	log     *logging.Logger
}

func New(name string, pool *worker.Pool, results *store.ResultStore, llm worker.Reasoner, log *logging.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		name:    name,
		started: time.Now(),
		pool:    pool,
		results: results,
		llm:     llm,
		log:     log,
	}

	e.GET("/health", s.health)
	e.GET("/metrics", s.metrics)
	e.POST("/test/chat", s.testChat)
	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"service": s.name,
		"uptime":  time.Since(s.started).String(),
	})
}

func (s *Server) metrics(c echo.Context) error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	body := map[string]any{
		"goroutines":   runtime.NumGoroutine(),
		"memory_bytes": ms.Alloc,
	}
	if s.pool != nil {
		body["jobs_processed"] = s.pool.Processed()
	}
	if s.results != nil {
		body["results_held"] = s.results.Len()
	}
	return c.JSON(http.StatusOK, body)
}

type chatRequest struct {
	Task    string         `json:"task"`
	Context map[string]any `json:"context"`
}

// testChat runs a reasoning request outside the queue. It never executes
// a lane; the decision comes back as-is for inspection.
func (s *Server) testChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Task == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task is required")
	}

	decision, err := s.llm.Decide(c.Request().Context(), &agent.Request{
		Task:    req.Task,
		Context: req.Context,
	})
	if err != nil {
		s.log.Error("test chat failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	calls := make([]map[string]any, 0, len(decision.ToolCalls))
	for _, tc := range decision.ToolCalls {
		calls = append(calls, map[string]any{
			"name":      tc.Name,
			"arguments": tc.Arguments,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message":     decision.Message,
		"tool_calls":  calls,
		"tokens_used": decision.TokensUsed,
		"model":       decision.Model,
	})
}
