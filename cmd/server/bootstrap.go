package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agenthands/notegraph/internal/config"
	"github.com/agenthands/notegraph/internal/driver"
	"github.com/agenthands/notegraph/internal/store"
	"github.com/agenthands/notegraph/internal/store/graphstore"
	"github.com/agenthands/notegraph/internal/store/memory"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// openStore connects the configured backend. The caller closes it.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		logger.Warn("using the in-memory store, data is lost on restart")
		return memory.New(), nil
	case "neo4j":
		d, err := driver.NewNeo4jDriver(ctx, cfg.Neo4j, logger.Named("neo4j"))
		if err != nil {
			return nil, err
		}
		if err := d.BuildIndices(ctx); err != nil {
			_ = d.Close(ctx)
			return nil, err
		}
		return graphstore.New(d), nil
	}
	return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
}
