package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"bridgeguard-backend/internal/config"
	"bridgeguard-backend/internal/storage/sqlstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	apply, dialect, closeFn, err := openTarget(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to connect", slog.String("driver", cfg.Storage.Driver), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeFn()

	files, err := filepath.Glob(filepath.Join(dir, dialect, "*.sql"))
	if err != nil {
		logger.Error("failed to list migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Error("failed to read migration", slog.String("file", file), slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := apply(ctx, string(content)); err != nil {
			logger.Error("failed to apply migration", slog.String("file", file), slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("applied migration", slog.String("file", file))
	}
}

type applyFunc func(ctx context.Context, script string) error

// openTarget returns an executor for the configured driver along with the
// migrations subdirectory it reads from.
func openTarget(ctx context.Context, cfg config.Storage) (applyFunc, string, func(), error) {
	if strings.EqualFold(cfg.Driver, "pgx") {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, "", nil, err
		}
		apply := func(ctx context.Context, script string) error {
			_, err := pool.Exec(ctx, script)
			return err
		}
		return apply, "postgres", pool.Close, nil
	}
	store, err := sqlstore.Open(sqlstore.ConnectionConfig{
		Type:     cfg.Driver,
		DSN:      cfg.DatabaseURL,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
	})
	if err != nil {
		return nil, "", nil, err
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, "", nil, err
	}
	return store.ApplyMigration, store.Dialect(), func() { _ = store.Close() }, nil
}
