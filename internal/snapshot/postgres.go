package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/exam-engine/internal/models"
)

// PostgresStore implements Store on PostgreSQL. Snapshots are upserted into a
// single table keyed by (question_id, category), payload as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresStore creates a Postgres-backed snapshot store
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) load(ctx context.Context, category string, questionID int, out interface{}) (bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM question_snapshots WHERE question_id = $1 AND category = $2`,
		questionID, category,
	).Scan(&payload)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s snapshot: %w", category, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to decode %s snapshot: %w", category, err)
	}
	return true, nil
}

func (s *PostgresStore) save(ctx context.Context, category string, questionID int, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", category, err)
	}

	query := `
		INSERT INTO question_snapshots (question_id, category, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (question_id, category)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, questionID, category, payload); err != nil {
		return fmt.Errorf("failed to save %s snapshot: %w", category, err)
	}
	return nil
}

// LoadWorkspace restores a workspace snapshot, or (nil, nil) if none exists
func (s *PostgresStore) LoadWorkspace(ctx context.Context, questionID int) (*models.Workspace, error) {
	var ws models.Workspace
	found, err := s.load(ctx, CategoryWorkspace, questionID, &ws)
	if err != nil || !found {
		return nil, err
	}
	return &ws, nil
}

// SaveWorkspace persists a workspace snapshot
func (s *PostgresStore) SaveWorkspace(ctx context.Context, questionID int, ws *models.Workspace) error {
	return s.save(ctx, CategoryWorkspace, questionID, ws)
}

// LoadRunResult restores the last run result, or (nil, nil) if none exists
func (s *PostgresStore) LoadRunResult(ctx context.Context, questionID int) (*models.ExecutionResult, error) {
	var res models.ExecutionResult
	found, err := s.load(ctx, CategoryRunResult, questionID, &res)
	if err != nil || !found {
		return nil, err
	}
	return &res, nil
}

// SaveRunResult persists the latest run result
func (s *PostgresStore) SaveRunResult(ctx context.Context, questionID int, res *models.ExecutionResult) error {
	return s.save(ctx, CategoryRunResult, questionID, res)
}

// LoadAttachments restores the attachment set, or (nil, nil) if none exists
func (s *PostgresStore) LoadAttachments(ctx context.Context, questionID int) (models.AttachmentSet, error) {
	var atts models.AttachmentSet
	found, err := s.load(ctx, CategoryAttachments, questionID, &atts)
	if err != nil || !found {
		return nil, err
	}
	return atts, nil
}

// SaveAttachments persists the attachment set
func (s *PostgresStore) SaveAttachments(ctx context.Context, questionID int, atts models.AttachmentSet) error {
	return s.save(ctx, CategoryAttachments, questionID, atts)
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
