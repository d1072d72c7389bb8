// Package cache holds the per-session verification state and the pending
// status cache. Redis backs both in deployed environments; the in-memory
// implementations serve single-instance development and tests.
package cache

import (
	"context"
	"fmt"
	"net"

	"github.com/lgu-eportal/rptpay/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a go-redis client for the given configuration.
// The client connects lazily; call Ping to verify the connection.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisPinger adapts a redis client to the readiness check.
type RedisPinger struct {
	Client *redis.Client
}

// Ping checks if the redis connection is alive.
func (p RedisPinger) Ping(ctx context.Context) error {
	if p.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	if err := p.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

func verificationKey(sessionID string, assessmentID int64) string {
	return fmt.Sprintf("session:%s:verification:%d", sessionID, assessmentID)
}

func successKey(sessionID string, applicationID int64) string {
	return fmt.Sprintf("session:%s:payment_success:%d", sessionID, applicationID)
}

func statusKey(assessmentID int64) string {
	return fmt.Sprintf("assessment:%d:pending_status", assessmentID)
}

func statusGenerationKey(assessmentID int64) string {
	return fmt.Sprintf("assessment:%d:pending_status:generation", assessmentID)
}
