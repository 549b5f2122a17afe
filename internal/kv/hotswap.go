package kv

import (
	"context"
	"sync"
)

// generation is one backing store and the reads currently running on it.
type generation struct {
	reader   Reader
	inflight sync.WaitGroup
}

// HotSwap is a Reader whose backing store can be replaced while serving.
type HotSwap struct {
	mu      sync.RWMutex
	current *generation
}

func NewHotSwap(initial Reader) *HotSwap {
	return &HotSwap{current: &generation{reader: initial}}
}

// Swap replaces the backing store. It returns the previous store and a
// channel that is closed once no read against it is still in flight, so
// the caller knows when the previous store can be closed.
func (h *HotSwap) Swap(next Reader) (Reader, <-chan struct{}) {
	h.mu.Lock()
	prev := h.current
	h.current = &generation{reader: next}
	h.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		prev.inflight.Wait()
		close(drained)
	}()
	return prev.reader, drained
}

// acquire pins the current generation until the returned release runs.
func (h *HotSwap) acquire() (*generation, func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	g := h.current
	g.inflight.Add(1)
	return g, g.inflight.Done
}

// Get delegates to the current store.
func (h *HotSwap) Get(ctx context.Context, key string) ([]byte, error) {
	g, release := h.acquire()
	defer release()
	return g.reader.Get(ctx, key)
}

// GetWithMetadata delegates to the current store.
func (h *HotSwap) GetWithMetadata(ctx context.Context, key string) (*Value, error) {
	g, release := h.acquire()
	defer release()
	return g.reader.GetWithMetadata(ctx, key)
}

var _ Reader = (*HotSwap)(nil)
