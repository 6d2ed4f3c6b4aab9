package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const flowKeyPrefix = "flow:"

// FlowStore implements flow.Store on Redis string keys with a TTL.
type FlowStore struct {
	rdb *goredis.Client
}

func NewFlowStore(rdb *goredis.Client) *FlowStore {
	return &FlowStore{rdb: rdb}
}

func (s *FlowStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, flowKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load flow %s: %w", key, err)
	}
	return data, true, nil
}

func (s *FlowStore) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, flowKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save flow %s: %w", key, err)
	}
	return nil
}

func (s *FlowStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, flowKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", key, err)
	}
	return nil
}

func flowKey(key string) string {
	return flowKeyPrefix + key
}
