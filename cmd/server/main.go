package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
	"github.com/JonMunkholm/rosterbatch/internal/config"
	"github.com/JonMunkholm/rosterbatch/internal/history"
	"github.com/JonMunkholm/rosterbatch/internal/logging"
	"github.com/JonMunkholm/rosterbatch/internal/sheet"
	"github.com/JonMunkholm/rosterbatch/internal/storage"
	"github.com/JonMunkholm/rosterbatch/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"strategy", cfg.Batch.Strategy,
		"run_max_concurrent", cfg.Run.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("configuration", "config", cfg.String())

	mapping, err := config.LoadMapping(cfg.Batch)
	if err != nil {
		slog.Error("failed to load mapping", "error", err)
		os.Exit(1)
	}

	template, err := sheet.LoadTemplate(cfg.Batch.TemplatePath)
	if err != nil {
		slog.Error("failed to load template", "path", cfg.Batch.TemplatePath, "error", err)
		os.Exit(1)
	}

	engines, err := buildEngines(cfg.Batch, mapping, template)
	if err != nil {
		slog.Error("failed to build engines", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	opts := batch.ServiceOptions{
		Reader:  sheet.NewReader(),
		Limiter: batch.NewRunLimiter(cfg.Run.MaxConcurrent, cfg.Run.MaxWaitTime),
		Timeout: cfg.Run.Timeout,
	}

	// Archive storage is optional
	if cfg.Storage.URL != "" {
		store, err := storage.Open(ctx, cfg.Storage.URL, cfg.Storage.Prefix)
		if err != nil {
			slog.Error("failed to open archive storage", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		opts.Store = store
		slog.Info("archive storage enabled", "uri", store.URI(""))
	}

	// Run history goes to Postgres when configured, memory otherwise
	if cfg.Database.URL != "" {
		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		runs := history.NewPostgresStore(pool)
		if err := runs.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create history schema", "error", err)
			os.Exit(1)
		}
		opts.Recorder = runs
	} else {
		opts.Recorder = history.NewMemoryStore(cfg.History.MemoryCapacity)
		slog.Info("run history kept in memory", "capacity", cfg.History.MemoryCapacity)
	}

	service, err := batch.NewService(engines, strings.ToLower(cfg.Batch.Strategy), opts)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	slog.Info("engines ready",
		"strategies", service.Strategies(),
		"default", service.DefaultStrategy(),
		"mapped_columns", mapping.Fields.Width(),
	)

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active runs to complete (with timeout)
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
			if err := service.WaitForRuns(shutdownCtx); err != nil {
				slog.Warn("runs did not complete in time", "error", err)
			} else {
				slog.Info("all runs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// buildEngines creates one engine per available strategy. The group
// strategy exists only when a group column is configured.
func buildEngines(bc config.BatchConfig, m *config.Mapping, template *sheet.Template) (map[string]*batch.Engine, error) {
	unique, err := batch.ColumnNumber(bc.UniqueColumn)
	if err != nil {
		return nil, fmt.Errorf("unique column: %w", err)
	}

	groupCol := 0
	if bc.GroupColumn != "" {
		if groupCol, err = batch.ColumnNumber(bc.GroupColumn); err != nil {
			return nil, fmt.Errorf("group column: %w", err)
		}
	}

	engines := make(map[string]*batch.Engine)
	for _, name := range []string{batch.StrategyFixed, batch.StrategyGroup} {
		partitioner, ok := batch.ParseStrategy(name, bc.ChunkSize, groupCol)
		if !ok {
			continue
		}
		engine, err := batch.New(batch.Config{
			Mapping:       m.Fields,
			UniqueColumn:  unique,
			Normalize:     m.Normalize,
			StartRow:      bc.StartRow,
			Partitioner:   partitioner,
			SkipBlankKeys: bc.SkipBlankKeys,
			Package:       batch.PackageOptions{Manifest: bc.Manifest},
		}, template)
		if err != nil {
			return nil, fmt.Errorf("%s engine: %w", name, err)
		}
		engines[name] = engine
	}
	return engines, nil
}

// openPool connects to Postgres with the configured pool limits.
func openPool(ctx context.Context, dc config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(dc.MaxConns)
	poolConfig.MinConns = int32(dc.MinConns)
	poolConfig.MaxConnLifetime = dc.MaxConnLifetime
	poolConfig.MaxConnIdleTime = dc.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(dc.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
