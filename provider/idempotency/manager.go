// Package idempotency caches the result of a non-streaming completion
// request so that a client retry with the same idempotency key returns
// the original response instead of triggering a second provider call
// (SPEC_FULL.md supplemental features).
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Manager generates idempotency keys and stores/retrieves cached results.
type Manager interface {
	GenerateKey(inputs ...any) (string, error)
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, key string, result any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const defaultTTL = 1 * time.Hour

// redisManager backs idempotency caching with Redis, the same client the
// rest of the gateway already uses for distributed state.
type redisManager struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisManager creates a Redis-backed Manager.
func NewRedisManager(client *redis.Client, prefix string, logger *zap.Logger) Manager {
	if prefix == "" {
		prefix = "idempotency:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisManager{client: client, prefix: prefix, logger: logger}
}

func (m *redisManager) GenerateKey(inputs ...any) (string, error) {
	return generateKey(inputs...)
}

func (m *redisManager) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	data, err := m.client.Get(ctx, m.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("idempotency get: %w", err)
	}
	return data, true, nil
}

func (m *redisManager) Set(ctx context.Context, key string, result any, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("idempotency marshal: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if err := m.client.Set(ctx, m.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency set: %w", err)
	}
	m.logger.Debug("idempotency key stored", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (m *redisManager) Delete(ctx context.Context, key string) error {
	if err := m.client.Del(ctx, m.prefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency delete: %w", err)
	}
	return nil
}

// memoryManager is an in-process fallback used when no Redis URL is
// configured, and by tests.
type memoryManager struct {
	mu     sync.RWMutex
	cache  map[string]cacheEntry
	logger *zap.Logger
	stopCh chan struct{}
}

type cacheEntry struct {
	data      json.RawMessage
	expiresAt time.Time
}

// NewMemoryManager creates an in-memory Manager with a background sweeper
// for expired entries.
func NewMemoryManager(logger *zap.Logger) Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &memoryManager{cache: make(map[string]cacheEntry), logger: logger, stopCh: make(chan struct{})}
	go m.sweepLoop()
	return m
}

func (m *memoryManager) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *memoryManager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, e := range m.cache {
		if now.After(e.expiresAt) {
			delete(m.cache, k)
		}
	}
}

// Close stops the background sweeper.
func (m *memoryManager) Close() {
	close(m.stopCh)
}

func (m *memoryManager) GenerateKey(inputs ...any) (string, error) {
	return generateKey(inputs...)
}

func (m *memoryManager) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.cache[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (m *memoryManager) Set(ctx context.Context, key string, result any, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("idempotency marshal: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *memoryManager) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

func generateKey(inputs ...any) (string, error) {
	if len(inputs) == 0 {
		return "", errors.New("idempotency: at least one input is required")
	}
	data, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("idempotency marshal inputs: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
