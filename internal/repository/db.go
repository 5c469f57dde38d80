package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite" // SQLite driver
)

type Config struct {
	DSN             string // postgres:// URL, SQLite path, or empty for in-memory SQLite
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// IsPostgres reports whether dsn selects the Postgres backend.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open connects to the configured database, migrates the schema and returns
// the extraction repository.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (ExtractionRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if IsPostgres(cfg.DSN) {
		return openPostgres(ctx, cfg, logger)
	}
	return openSQLite(ctx, cfg, logger)
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*sqlStore, error) {
	logger.Info("repository.connect", "driver", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "labreport-extractor"

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &sqlStore{
		db:      stdlib.OpenDBFromPool(pool),
		dialect: dialectPostgres,
		logger:  logger,
		onClose: pool.Close,
	}
	if err := s.migrate(dctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Info("repository.connected", "driver", "postgres")
	return s, nil
}

func openSQLite(ctx context.Context, cfg Config, logger *slog.Logger) (*sqlStore, error) {
	dsn := cfg.DSN
	inMemory := dsn == "" || dsn == ":memory:"
	if inMemory {
		dsn = ":memory:"
	} else if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	logger.Info("repository.connect", "driver", "sqlite", "in_memory", inMemory)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// a single connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &sqlStore{db: db, dialect: dialectSQLite, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
