// Package core wires the note graph services into one Engine.
package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/notegraph/internal/config"
	"github.com/agenthands/notegraph/internal/core/community"
	"github.com/agenthands/notegraph/internal/core/detect"
	"github.com/agenthands/notegraph/internal/core/extraction"
	"github.com/agenthands/notegraph/internal/core/graph"
	"github.com/agenthands/notegraph/internal/core/lifecycle"
	"github.com/agenthands/notegraph/internal/core/notes"
	"github.com/agenthands/notegraph/internal/core/scoring"
	"github.com/agenthands/notegraph/internal/core/summary"
	"github.com/agenthands/notegraph/internal/llm"
	"github.com/agenthands/notegraph/internal/metrics"
	"github.com/agenthands/notegraph/internal/store"
)

// Engine owns the services and the background detection queue. The store
// and model clients are injected and stay owned by the caller.
type Engine struct {
	Store     store.Store
	Notes     *notes.Service
	Graph     *graph.Service
	Detector  *detect.Detector
	Queue     *detect.Queue
	Lifecycle *lifecycle.Manager
	Metrics   *metrics.Collector

	cfg    *config.Config
	logger *zap.Logger
}

type Deps struct {
	Store    store.Store
	LLM      llm.LLMClient
	Embedder llm.EmbedderClient
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

func NewEngine(cfg *config.Config, deps Deps) (*Engine, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	st := deps.Store

	extractor, err := extraction.New(cfg.Detection.Extractor, deps.LLM, cfg.Prompts.Claims, logger)
	if err != nil {
		return nil, fmt.Errorf("claim extractor: %w", err)
	}
	scorer, err := scoring.New(cfg.Detection.Scorer, deps.LLM, deps.Embedder, cfg.Detection.UseEmbeddings, cfg.Prompts.Opposition)
	if err != nil {
		return nil, fmt.Errorf("claim scorer: %w", err)
	}
	clusters, err := community.New(cfg.Graph.Clustering)
	if err != nil {
		return nil, fmt.Errorf("cluster detection: %w", err)
	}
	namer, err := summary.New(cfg.Graph.Naming, deps.LLM, cfg.Prompts.ClusterName, logger)
	if err != nil {
		return nil, fmt.Errorf("cluster naming: %w", err)
	}

	detector := detect.NewDetector(st, extractor, scorer, cfg.Detection,
		detect.WithMetrics(deps.Metrics),
		detect.WithLogger(logger.Named("detector")))
	queue := detect.NewQueue(detector, st.Notes(), cfg.Detection,
		detect.WithQueueMetrics(deps.Metrics),
		detect.WithQueueLogger(logger.Named("detection-queue")))

	return &Engine{
		Store: st,
		Notes: notes.NewService(st.Notes(),
			notes.WithQueue(queue),
			notes.WithMetrics(deps.Metrics),
			notes.WithLogger(logger.Named("notes")),
			notes.WithMaxCASRetries(cfg.Notes.MaxCASRetries)),
		Graph: graph.NewService(st.Notes(), st.Edges(),
			graph.WithClusterDetector(clusters),
			graph.WithClusterNamer(namer),
			graph.WithMetrics(deps.Metrics),
			graph.WithLogger(logger.Named("graph"))),
		Detector: detector,
		Queue:    queue,
		Lifecycle: lifecycle.NewManager(st.Contradictions(), st.Notes(),
			lifecycle.WithMetrics(deps.Metrics),
			lifecycle.WithLogger(logger.Named("lifecycle"))),
		Metrics: deps.Metrics,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Start launches the detection workers and the sweeper, then queues the
// notes left unfinished by a previous run.
func (e *Engine) Start(ctx context.Context) error {
	e.Queue.Start()
	if err := e.Queue.StartSweeper(e.cfg.Detection.SweepSchedule); err != nil {
		return err
	}
	e.Queue.Sweep(ctx)
	return nil
}

// Shutdown stops the detection queue. In-flight jobs are cancelled and
// their notes picked up by the next sweep.
func (e *Engine) Shutdown(ctx context.Context) error {
	if err := e.Queue.Shutdown(ctx); err != nil {
		return fmt.Errorf("detection queue shutdown: %w", err)
	}
	e.logger.Info("engine stopped")
	return nil
}
