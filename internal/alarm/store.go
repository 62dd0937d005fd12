package alarm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dbfleet/dbfleet/pkg/types"
)

// Store persists alarm states across restarts.
type Store interface {
	Load(ctx context.Context) (map[string]types.AlarmState, error)
	Save(ctx context.Context, key string, s types.AlarmState) error
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]types.AlarmState
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]types.AlarmState)}
}

func (m *MemoryStore) Load(_ context.Context) (map[string]types.AlarmState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]types.AlarmState, len(m.states))
	for k, s := range m.states {
		out[k] = copyState(s)
	}
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, s types.AlarmState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = copyState(s)
	return nil
}

// RedisStore keeps every state as a JSON value in one Redis hash, field = node key.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore returns a Store backed by the hash at key.
func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (map[string]types.AlarmState, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", s.key, err)
	}
	out := make(map[string]types.AlarmState, len(fields))
	for k, v := range fields {
		var st types.AlarmState
		if err := json.Unmarshal([]byte(v), &st); err != nil {
			return nil, fmt.Errorf("redis decode %s[%s]: %w", s.key, k, err)
		}
		out[k] = st
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, st types.AlarmState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, key, b).Err(); err != nil {
		return fmt.Errorf("redis hset %s[%s]: %w", s.key, key, err)
	}
	return nil
}
