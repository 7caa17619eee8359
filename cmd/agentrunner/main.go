// Command agentrunner runs the agent job worker: it consumes jobs from
// the Redis job stream, asks the reasoning model for a tool decision,
// executes the chosen lane and signals completion back to the
// orchestrator.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/avi3tal/agentrunner/internal/agent"
	"github.com/avi3tal/agentrunner/internal/config"
	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/patch"
	"github.com/avi3tal/agentrunner/internal/pipeline"
	"github.com/avi3tal/agentrunner/internal/queue"
	"github.com/avi3tal/agentrunner/internal/redisx"
	"github.com/avi3tal/agentrunner/internal/resolver"
	"github.com/avi3tal/agentrunner/internal/server"
	"github.com/avi3tal/agentrunner/internal/store"
	"github.com/avi3tal/agentrunner/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agentrunner:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	log.Info("starting", "service", cfg.Service.Name, "workers", cfg.Service.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisx.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	model, err := newModel(cfg)
	if err != nil {
		return err
	}

	contexts := store.NewContextStore(rdb, log)
	results := store.NewResultStore()

	consumer := queue.NewConsumer(rdb, contexts, cfg.Redis.JobStream, cfg.Redis.WorkerGroup, log)
	if err := consumer.Init(ctx); err != nil {
		return err
	}
	log.Info("consumer ready", "stream", cfg.Redis.JobStream, "group", cfg.Redis.WorkerGroup, "consumer", consumer.Name())

	signaler := queue.NewSignaler(rdb, cfg.Redis.ResultPrefix, log)
	llm := agent.NewClient(model, cfg.LLM.Model, log)

	var classifier worker.Classifier
	if cfg.LLM.ClassifyIntent {
		classifier = agent.NewIntentClassifier(model, log)
	}

	dispatcher := worker.NewDispatcher(
		resolver.New(contexts),
		pipeline.NewExecutor(log, pipeline.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Pipeline.HTTPTimeout)})),
		patch.NewForwarder(cfg.Orchestrator.BaseURL, log),
		log,
	)

	pool := worker.NewPool(consumer, llm, classifier, dispatcher, signaler, results, cfg.Service.Workers, log,
		worker.WithShutdownGrace(time.Duration(cfg.Service.ShutdownTimeout)))

	srv := server.New(cfg.Service.Name, pool, results, llm, log)
	go func() {
		if err := srv.Start(cfg.Service.ListenAddr); err != nil {
			log.Error("http server stopped", "error", err)
		}
	}()
	log.Info("http server listening", "addr", cfg.Service.ListenAddr)

	pool.Run(ctx)

	grace := time.Duration(cfg.Service.ShutdownTimeout)
	log.Info("shutting down", "grace", grace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newModel(cfg *config.Config) (*openai.LLM, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.LLM.Model),
		openai.WithToken(cfg.LLM.APIKey),
	}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	return openai.New(opts...)
}
