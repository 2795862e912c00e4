package catalog

import (
	"context"
	"sync"

	"github.com/timour/stateset-core/internal/core"
)

// MemoryReader is an in-memory Reader for callers, such as tests, that run
// without a live Mongo instance.
type MemoryReader struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMemoryReader constructs a MemoryReader seeded with items.
func NewMemoryReader(items ...Item) *MemoryReader {
	m := &MemoryReader{items: make(map[string]Item, len(items))}
	for _, it := range items {
		m.items[it.ProductID] = it
	}
	return m
}

// GetByProductID implements Reader.
func (m *MemoryReader) GetByProductID(_ context.Context, productID string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[productID]
	if !ok {
		return Item{}, core.NotFound("catalog_item", productID)
	}
	return it, nil
}
