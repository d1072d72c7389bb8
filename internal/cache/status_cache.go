package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lgu-eportal/rptpay/internal/models"
	"github.com/redis/go-redis/v9"
)

// StatusCache is a read-through cache of each assessment's pending
// verification status. The database stays the source of truth; every write
// to an assessment's quarters must Invalidate its entry.
//
// Readers take the Generation before loading the status from the database and
// hand it back to Set. An Invalidate in between bumps the generation, and the
// stale status is dropped instead of stored.
type StatusCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, assessmentID int64) (*models.PendingStatus, error)
	Generation(ctx context.Context, assessmentID int64) (int64, error)
	Set(ctx context.Context, assessmentID int64, status models.PendingStatus, generation int64) error
	Invalidate(ctx context.Context, assessmentID int64) error
}

// entryTTL caps ttl so an entry holding an active code expires with the code.
// A non-positive result means the status must not be cached.
func entryTTL(status models.PendingStatus, ttl time.Duration, now time.Time) time.Duration {
	if status.Active && status.ExpiresAt != nil {
		if untilExpiry := status.ExpiresAt.Sub(now); untilExpiry < ttl {
			return untilExpiry
		}
	}
	return ttl
}

// RedisStatusCache implements StatusCache in redis.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStatusCache creates a StatusCache whose entries live for ttl.
func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{client: client, ttl: ttl, now: time.Now}
}

func (c *RedisStatusCache) Get(ctx context.Context, assessmentID int64) (*models.PendingStatus, error) {
	var status models.PendingStatus
	found, err := getJSON(c.client.Get(ctx, statusKey(assessmentID)), &status)
	if err != nil || !found {
		return nil, err
	}
	return &status, nil
}

func (c *RedisStatusCache) Generation(ctx context.Context, assessmentID int64) (int64, error) {
	gen, err := c.client.Get(ctx, statusGenerationKey(assessmentID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read status generation of assessment %d: %w", assessmentID, err)
	}
	return gen, nil
}

func (c *RedisStatusCache) Set(ctx context.Context, assessmentID int64, status models.PendingStatus, generation int64) error {
	ttl := entryTTL(status, c.ttl, c.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode pending status: %w", err)
	}

	genKey := statusGenerationKey(assessmentID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, statusKey(assessmentID), data, ttl)
			return nil
		})
		return err
	}, genKey)
	// A concurrent Invalidate aborted the write
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to store pending status of assessment %d: %w", assessmentID, err)
	}
	return nil
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, assessmentID int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, statusKey(assessmentID))
		pipe.Incr(ctx, statusGenerationKey(assessmentID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate pending status of assessment %d: %w", assessmentID, err)
	}
	return nil
}
