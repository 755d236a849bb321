package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Memory is an in-process cache bounded by entry count.
type Memory struct {
	c      *ristretto.Cache[string, []byte]
	closed atomic.Bool
}

// NewMemory creates a cache holding about size entries.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &Memory{c: c}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.closed.Load() {
		return nil, false, ErrClosed
	}
	v, ok := m.c.Get(key)
	return v, ok, nil
}

// Set stores val at a cost of one entry. The write becomes visible once
// ristretto has applied its buffer, so Set waits for that.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.c.SetWithTTL(key, val, 1, ttl)
	m.c.Wait()
	return nil
}

func (m *Memory) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.c.Close()
	}
	return nil
}
