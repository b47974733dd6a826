package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"checkin-station/models"
)

// QueueStore persists the outbox collection as one serialized blob under an
// explicit per-station key. The whole collection is read-modify-written; a
// single active writer per key is assumed.
type QueueStore interface {
	Load(ctx context.Context) ([]models.QueueItem, error)
	Save(ctx context.Context, items []models.QueueItem) error
}

// RedisQueueStore is the production store, backed by the station's local
// Redis so the queue survives process restarts.
type RedisQueueStore struct {
	redis *redis.Client
	key   string
}

// OutboxKey builds the storage key for one station, keeping queues of
// co-located stations apart.
func OutboxKey(prefix, stationID string) string {
	return fmt.Sprintf("%s:%s", prefix, stationID)
}

func NewRedisQueueStore(client *redis.Client, key string) *RedisQueueStore {
	return &RedisQueueStore{redis: client, key: key}
}

func (s *RedisQueueStore) Load(ctx context.Context) ([]models.QueueItem, error) {
	data, err := s.redis.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("outbox load: %w", err)
	}

	var items []models.QueueItem
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, fmt.Errorf("outbox load: unmarshal: %w", err)
	}
	return items, nil
}

func (s *RedisQueueStore) Save(ctx context.Context, items []models.QueueItem) error {
	if items == nil {
		items = []models.QueueItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("outbox save: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("outbox save: %w", err)
	}
	return nil
}

// MemoryQueueStore keeps the collection in memory. Used by tests and as a
// degraded fallback when Redis is not configured.
type MemoryQueueStore struct {
	mu    sync.Mutex
	items []models.QueueItem
}

func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{}
}

func (s *MemoryQueueStore) Load(ctx context.Context) ([]models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.QueueItem, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *MemoryQueueStore) Save(ctx context.Context, items []models.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]models.QueueItem, len(items))
	copy(s.items, items)
	return nil
}
