package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lorebind/internal/config"
	"lorebind/internal/store"
	"lorebind/internal/store/postgres"
	"lorebind/internal/store/sqlite"
)

type project struct {
	cfg    *config.ProjectConfig
	db     store.Store
	logger *zap.Logger
}

// openProject loads the config, builds the logger and opens the store.
// Callers must close it.
func openProject(ctx context.Context) (*project, error) {
	cfg, err := config.LoadProjectConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	db, err := openDB(ctx, cfg)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	logger.Debug("store opened", zap.String("project", cfg.Project), zap.String("owner", cfg.Owner))
	return &project{cfg: cfg, db: db, logger: logger}, nil
}

func (p *project) Close(ctx context.Context) {
	if err := p.db.Close(ctx); err != nil {
		p.logger.Warn("closing store", zap.Error(err))
	}
	_ = p.logger.Sync()
}

func openDB(ctx context.Context, cfg *config.ProjectConfig) (store.Store, error) {
	dsn := cfg.Database.DSN
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.New(ctx, dsn)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database dsn: expected sqlite:// or postgres://")
	}
}

// newLogger writes to stderr so stdout stays free for command output and the
// MCP stdio transport.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
