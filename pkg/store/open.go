package store

import (
	"context"
	"fmt"
)

// Open selects and opens a backend by name: "memory", "pebble" or "redis".
// The mutation and broker layers only ever see the Adapter interface, so
// the choice is purely a startup concern.
func Open(ctx context.Context, backend, dbPath, redisURL string) (Adapter, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "pebble":
		if dbPath == "" {
			return nil, fmt.Errorf("pebble backend requires a db path")
		}
		return OpenPebble(dbPath)
	case "redis":
		if redisURL == "" {
			return nil, fmt.Errorf("redis backend requires a redis url")
		}
		return OpenRedis(ctx, redisURL)
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}
