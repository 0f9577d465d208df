package cache

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/leapstack-labs/leapmigrate/pkg/core"
)

// DefaultMaxEntries bounds the memory backend when no size is configured.
const DefaultMaxEntries = 256

// MemoryBackend keeps merge responses in a bounded LRU.
type MemoryBackend struct {
	entries *lru.Cache[string, *core.MergeResponse]
}

// NewMemoryBackend creates a memory backend holding up to maxEntries results.
func NewMemoryBackend(maxEntries int) (*MemoryBackend, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[string, *core.MergeResponse](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryBackend{entries: entries}, nil
}

// Get implements Backend.
func (b *MemoryBackend) Get(_ context.Context, key string) (*core.MergeResponse, bool, error) {
	resp, ok := b.entries.Get(key)
	return resp, ok, nil
}

// Set implements Backend.
func (b *MemoryBackend) Set(_ context.Context, key string, resp *core.MergeResponse) error {
	b.entries.Add(key, resp)
	return nil
}

// DeletePrefix implements Backend.
func (b *MemoryBackend) DeletePrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for _, key := range b.entries.Keys() {
		if strings.HasPrefix(key, prefix) && b.entries.Remove(key) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of cached entries.
func (b *MemoryBackend) Len() int {
	return b.entries.Len()
}
