package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
)

const (
	directoryKey      = "populi:student_directory"
	debounceKeyPrefix = "sync:debounce:"
)

// CacheRepository wraps Redis for the student directory cache and the
// page-view debounce markers. All methods tolerate a nil client so the
// service degrades to cache-miss behaviour without Redis.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// GetDirectory loads the lowercased-email to person-id map.
func (r *CacheRepository) GetDirectory(ctx context.Context) (map[string]string, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, directoryKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", directoryKey, err)
	}

	directory := map[string]string{}
	if err := json.Unmarshal(raw, &directory); err != nil {
		return nil, fmt.Errorf("unmarshal directory cache: %w", err)
	}
	return directory, nil
}

// SetDirectory stores the email directory with the given TTL.
func (r *CacheRepository) SetDirectory(ctx context.Context, directory map[string]string, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(directory)
	if err != nil {
		return fmt.Errorf("marshal directory cache: %w", err)
	}
	if err := r.client.Set(ctx, directoryKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", directoryKey, err)
	}
	return nil
}

// Debounce reserves a per-user window for page-view triggered syncs. It
// returns true when the caller won the window and may proceed. Redis
// failures fail open.
func (r *CacheRepository) Debounce(ctx context.Context, userID string, window time.Duration) (bool, error) {
	if r.client == nil {
		return true, nil
	}

	ok, err := r.client.SetNX(ctx, debounceKeyPrefix+userID, time.Now().UTC().Format(time.RFC3339), window).Result()
	if err != nil {
		r.logger.Warn("debounce check failed, allowing sync", zap.String("user_id", userID), zap.Error(err))
		return true, err
	}
	return ok, nil
}
