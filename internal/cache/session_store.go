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

// SessionStore keeps the per-session payment state. Lookups that find nothing
// return nil, nil.
type SessionStore interface {
	// SaveVerification stores the reference to the verification issued for an
	// assessment. The code itself is never stored here.
	SaveVerification(ctx context.Context, sessionID string, ref models.VerificationRef, ttl time.Duration) error
	GetVerification(ctx context.Context, sessionID string, assessmentID int64) (*models.VerificationRef, error)
	ClearVerification(ctx context.Context, sessionID string, assessmentID int64) error

	// SavePaymentSuccess stores the confirmation summary shown after settlement.
	SavePaymentSuccess(ctx context.Context, sessionID string, s models.PaymentSuccess, ttl time.Duration) error
	// ConsumePaymentSuccess returns the summary for an application and removes
	// it in the same step, so it can be read only once.
	ConsumePaymentSuccess(ctx context.Context, sessionID string, applicationID int64) (*models.PaymentSuccess, error)
}

// RedisSessionStore implements SessionStore with JSON values in redis.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a SessionStore backed by redis.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) SaveVerification(ctx context.Context, sessionID string, ref models.VerificationRef, ttl time.Duration) error {
	return setJSON(ctx, s.client, verificationKey(sessionID, ref.Target.AssessmentID), ref, ttl)
}

func (s *RedisSessionStore) GetVerification(ctx context.Context, sessionID string, assessmentID int64) (*models.VerificationRef, error) {
	var ref models.VerificationRef
	found, err := getJSON(s.client.Get(ctx, verificationKey(sessionID, assessmentID)), &ref)
	if err != nil || !found {
		return nil, err
	}
	return &ref, nil
}

func (s *RedisSessionStore) ClearVerification(ctx context.Context, sessionID string, assessmentID int64) error {
	if err := s.client.Del(ctx, verificationKey(sessionID, assessmentID)).Err(); err != nil {
		return fmt.Errorf("failed to clear verification reference: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) SavePaymentSuccess(ctx context.Context, sessionID string, summary models.PaymentSuccess, ttl time.Duration) error {
	return setJSON(ctx, s.client, successKey(sessionID, summary.ApplicationID), summary, ttl)
}

func (s *RedisSessionStore) ConsumePaymentSuccess(ctx context.Context, sessionID string, applicationID int64) (*models.PaymentSuccess, error) {
	var summary models.PaymentSuccess
	found, err := getJSON(s.client.GetDel(ctx, successKey(sessionID, applicationID)), &summary)
	if err != nil || !found {
		return nil, err
	}
	return &summary, nil
}

func setJSON(ctx context.Context, client *redis.Client, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// getJSON decodes the result of a string command. A missing key reports
// found=false without an error.
func getJSON(cmd *redis.StringCmd, dst interface{}) (bool, error) {
	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %v: %w", cmd.Args()[1], err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode %v: %w", cmd.Args()[1], err)
	}
	return true, nil
}
