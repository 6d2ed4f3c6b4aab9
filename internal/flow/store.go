package flow

import (
	"context"
	"time"
)

// Store persists encoded flow state. Implementations live in the adapter
// packages (memory, redis).
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
