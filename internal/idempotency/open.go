package idempotency

import (
	"context"
	"fmt"

	"axalportal/internal/config"
)

// Open builds the store selected by the service config.
func Open(ctx context.Context, cfg config.ServiceConfig) (Store, error) {
	switch cfg.IdempotencyBackend {
	case "", config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendFile:
		return NewFileStore(cfg.IdempotencyStorePath)
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.IdempotencyDSN)
	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.IdempotencyBackend)
	}
}
