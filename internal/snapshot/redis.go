package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/exam-engine/internal/models"
)

// RedisStore implements Store on Redis. This is the default backend: snapshots
// are plain JSON values with no TTL, so a reload restores the last persisted
// state even across engine restarts.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies connectivity
func NewRedisStore(address, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) load(ctx context.Context, category string, questionID int, out interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key(category, questionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s snapshot: %w", category, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s snapshot: %w", category, err)
	}
	return true, nil
}

func (s *RedisStore) save(ctx context.Context, category string, questionID int, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", category, err)
	}
	if err := s.client.Set(ctx, key(category, questionID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save %s snapshot: %w", category, err)
	}
	return nil
}

// LoadWorkspace restores a workspace snapshot, or (nil, nil) if none exists
func (s *RedisStore) LoadWorkspace(ctx context.Context, questionID int) (*models.Workspace, error) {
	var ws models.Workspace
	found, err := s.load(ctx, CategoryWorkspace, questionID, &ws)
	if err != nil || !found {
		return nil, err
	}
	return &ws, nil
}

// SaveWorkspace persists a workspace snapshot
func (s *RedisStore) SaveWorkspace(ctx context.Context, questionID int, ws *models.Workspace) error {
	return s.save(ctx, CategoryWorkspace, questionID, ws)
}

// LoadRunResult restores the last run result, or (nil, nil) if none exists
func (s *RedisStore) LoadRunResult(ctx context.Context, questionID int) (*models.ExecutionResult, error) {
	var res models.ExecutionResult
	found, err := s.load(ctx, CategoryRunResult, questionID, &res)
	if err != nil || !found {
		return nil, err
	}
	return &res, nil
}

// SaveRunResult persists the latest run result
func (s *RedisStore) SaveRunResult(ctx context.Context, questionID int, res *models.ExecutionResult) error {
	return s.save(ctx, CategoryRunResult, questionID, res)
}

// LoadAttachments restores the attachment set, or (nil, nil) if none exists
func (s *RedisStore) LoadAttachments(ctx context.Context, questionID int) (models.AttachmentSet, error) {
	var atts models.AttachmentSet
	found, err := s.load(ctx, CategoryAttachments, questionID, &atts)
	if err != nil || !found {
		return nil, err
	}
	return atts, nil
}

// SaveAttachments persists the attachment set
func (s *RedisStore) SaveAttachments(ctx context.Context, questionID int, atts models.AttachmentSet) error {
	return s.save(ctx, CategoryAttachments, questionID, atts)
}

// Ping verifies Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
