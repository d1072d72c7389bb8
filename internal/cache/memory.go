package cache

import (
	"context"
	"sync"
	"time"

	"github.com/lgu-eportal/rptpay/internal/models"
)

type memoryEntry struct {
	expiresAt time.Time
	value     interface{}
}

// memoryMap is a mutex guarded map whose entries expire lazily on read.
type memoryMap struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func newMemoryMap() *memoryMap {
	return &memoryMap{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *memoryMap) set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
}

func (m *memoryMap) get(key string, remove bool) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	if remove {
		delete(m.entries, key)
	}
	return entry.value, true
}

func (m *memoryMap) del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// MemorySessionStore implements SessionStore in process memory.
type MemorySessionStore struct {
	m *memoryMap
}

// NewMemorySessionStore creates an empty in-memory SessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{m: newMemoryMap()}
}

func (s *MemorySessionStore) SaveVerification(_ context.Context, sessionID string, ref models.VerificationRef, ttl time.Duration) error {
	s.m.set(verificationKey(sessionID, ref.Target.AssessmentID), ref, ttl)
	return nil
}

func (s *MemorySessionStore) GetVerification(_ context.Context, sessionID string, assessmentID int64) (*models.VerificationRef, error) {
	v, ok := s.m.get(verificationKey(sessionID, assessmentID), false)
	if !ok {
		return nil, nil
	}
	ref := v.(models.VerificationRef)
	return &ref, nil
}

func (s *MemorySessionStore) ClearVerification(_ context.Context, sessionID string, assessmentID int64) error {
	s.m.del(verificationKey(sessionID, assessmentID))
	return nil
}

func (s *MemorySessionStore) SavePaymentSuccess(_ context.Context, sessionID string, summary models.PaymentSuccess, ttl time.Duration) error {
	s.m.set(successKey(sessionID, summary.ApplicationID), summary, ttl)
	return nil
}

func (s *MemorySessionStore) ConsumePaymentSuccess(_ context.Context, sessionID string, applicationID int64) (*models.PaymentSuccess, error) {
	v, ok := s.m.get(successKey(sessionID, applicationID), true)
	if !ok {
		return nil, nil
	}
	summary := v.(models.PaymentSuccess)
	return &summary, nil
}

// MemoryStatusCache implements StatusCache in process memory.
type MemoryStatusCache struct {
	mu          sync.Mutex
	m           *memoryMap
	generations map[int64]int64
	ttl         time.Duration
}

// NewMemoryStatusCache creates an empty in-memory StatusCache.
func NewMemoryStatusCache(ttl time.Duration) *MemoryStatusCache {
	return &MemoryStatusCache{m: newMemoryMap(), generations: make(map[int64]int64), ttl: ttl}
}

// WithClock replaces the clock entries expire against.
func (c *MemoryStatusCache) WithClock(now func() time.Time) *MemoryStatusCache {
	c.m.now = now
	return c
}

func (c *MemoryStatusCache) Get(_ context.Context, assessmentID int64) (*models.PendingStatus, error) {
	v, ok := c.m.get(statusKey(assessmentID), false)
	if !ok {
		return nil, nil
	}
	status := v.(models.PendingStatus)
	return &status, nil
}

func (c *MemoryStatusCache) Generation(_ context.Context, assessmentID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[assessmentID], nil
}

func (c *MemoryStatusCache) Set(_ context.Context, assessmentID int64, status models.PendingStatus, generation int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[assessmentID] != generation {
		return nil
	}
	if ttl := entryTTL(status, c.ttl, c.m.now()); ttl > 0 {
		c.m.set(statusKey(assessmentID), status, ttl)
	}
	return nil
}

func (c *MemoryStatusCache) Invalidate(_ context.Context, assessmentID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[assessmentID]++
	c.m.del(statusKey(assessmentID))
	return nil
}
