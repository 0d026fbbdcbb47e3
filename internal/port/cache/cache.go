// Package cache defines the port interface for short-lived key-value caching.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
//
// A Set with a non-positive ttl stores nothing. A Get after a successful
// Set with a positive ttl observes the value until the ttl elapses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
