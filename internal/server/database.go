package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/repository"
)

// ConnectStore opens the extraction history described by cfg.
func ConnectStore(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (repository.ExtractionRepository, error) {
	driver := "sqlite"
	if repository.IsPostgres(cfg.DSN) {
		driver = "postgres"
	}
	logger.Info("connecting to database", "driver", driver, "in_memory", cfg.DSN == "")
	repo, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
		DialTimeout:     3 * time.Second,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	logger.Info("successfully connected to database")
	return repo, nil
}

// PingStore pings the database to ensure it's responsive
func PingStore(ctx context.Context, repo repository.ExtractionRepository, logger *slog.Logger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Debug("pinging database")
	if err := repo.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

// CloseStore closes the database connections gracefully
func CloseStore(repo repository.ExtractionRepository, logger *slog.Logger) {
	if repo == nil {
		return
	}
	logger.Info("closing database connections")
	if err := repo.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
		return
	}
	logger.Info("database connections closed")
}
