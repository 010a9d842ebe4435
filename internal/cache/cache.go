package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss means the key is not in the cache. Callers fall back to
// the record store; any other error is a cache failure worth logging.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the best-effort lookup layer in front of the record store.
// It holds short-code -> original-URL mappings (and a reverse mapping
// used to accelerate dedup). Staleness is harmless because records are
// immutable once created; entries are only ever written with values
// that came from a successfully created or read record.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
