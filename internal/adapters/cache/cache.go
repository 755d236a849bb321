// Package cache stores encoded recommendation responses for a short time.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by a cache used after Close.
var ErrClosed = errors.New("cache closed")

// Cache is a byte-level TTL cache. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Close() error
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Close() error                                             { return nil }
