package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/notegraph/internal/auth"
	"github.com/agenthands/notegraph/internal/config"
	"github.com/agenthands/notegraph/internal/core"
	"github.com/agenthands/notegraph/internal/llm"
	"github.com/agenthands/notegraph/internal/metrics"
	"github.com/agenthands/notegraph/internal/server"
)

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [-c config_file]",
		Short: "Run the HTTP API and the detection workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(parent context.Context, flags *rootFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(flags.config)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Error("failed to close store", zap.Error(err))
		}
	}()

	deps := core.Deps{
		Store:   st,
		Metrics: metrics.New("notegraph"),
		Logger:  logger,
	}
	if cfg.LLM.Provider != "" {
		gen, emb, err := llm.NewClient(ctx, cfg.LLM, logger.Named("llm"))
		if err != nil {
			return fmt.Errorf("failed to initialize llm client: %w", err)
		}
		if closer, ok := gen.(io.Closer); ok {
			defer closer.Close()
		}
		deps.LLM, deps.Embedder = gen, emb
	}

	engine, err := core.NewEngine(cfg, deps)
	if err != nil {
		return err
	}
	verifier, err := auth.New(cfg.Auth)
	if err != nil {
		return err
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(engine, verifier, logger.Named("http")).SetupRouter(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
	}

	if err := engine.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr), zap.String("storage", cfg.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal, initiating graceful shutdown")
	case serveErr = <-errCh:
		logger.Error("server stopped unexpectedly", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutMS)*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("engine shutdown failed", zap.Error(err))
	}
	logger.Info("service has been shut down")
	return serveErr
}
