package similarity

import (
	"sync/atomic"
	"time"
)

// Generation is one immutable, fully built index.
type Generation struct {
	Searcher Searcher
	Number   uint64
	BuiltAt  time.Time
	Size     int
	Clusters int
}

// Holder publishes index generations. Readers see either the old or the new
// generation, never a partially built one.
type Holder struct {
	current atomic.Pointer[Generation]
	seq     atomic.Uint64
}

// NewHolder returns an empty holder; Current fails until the first Publish.
func NewHolder() *Holder {
	return &Holder{}
}

// Publish swaps in s as the next generation and returns it.
func (h *Holder) Publish(s Searcher) *Generation {
	g := &Generation{
		Searcher: s,
		Number:   h.seq.Add(1),
		BuiltAt:  time.Now().UTC(),
		Size:     s.Len(),
	}
	if c, ok := s.(interface{ Clusters() int }); ok {
		g.Clusters = c.Clusters()
	}
	h.current.Store(g)
	return g
}

// Current returns the live generation or ErrIndexUnavailable.
func (h *Holder) Current() (*Generation, error) {
	g := h.current.Load()
	if g == nil {
		return nil, ErrIndexUnavailable
	}
	return g, nil
}

// Reset drops the live generation so queries fall back until the next Publish.
func (h *Holder) Reset() {
	h.current.Store(nil)
}
