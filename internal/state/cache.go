package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapmigrate/pkg/core"
)

// CacheBackend persists full merge responses in the merge_cache table so
// they survive process restarts.
type CacheBackend struct {
	store *SQLiteStore
}

// NewCacheBackend returns a cache backend over an opened store.
func NewCacheBackend(store *SQLiteStore) *CacheBackend {
	return &CacheBackend{store: store}
}

// Get loads a cached response.
func (b *CacheBackend) Get(ctx context.Context, key string) (*core.MergeResponse, bool, error) {
	if err := b.store.ready(); err != nil {
		return nil, false, err
	}

	var payload []byte
	err := b.store.db.QueryRowContext(ctx, `SELECT payload FROM merge_cache WHERE cache_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var resp core.MergeResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &resp, true, nil
}

// Set stores a response, replacing any previous entry for key.
func (b *CacheBackend) Set(ctx context.Context, key string, resp *core.MergeResponse) error {
	if err := b.store.ready(); err != nil {
		return err
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	_, err = b.store.db.ExecContext(ctx, `
		INSERT INTO merge_cache (cache_key, payload, created_at) VALUES (?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		key, payload, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (b *CacheBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := b.store.ready(); err != nil {
		return 0, err
	}

	res, err := b.store.db.ExecContext(ctx,
		`DELETE FROM merge_cache WHERE substr(cache_key, 1, ?) = ?`,
		len(prefix), prefix,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted cache entries: %w", err)
	}
	return int(n), nil
}
