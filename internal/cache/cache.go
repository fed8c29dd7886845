// Package cache provides time-bounded snapshot caches over the backing store.
//
// Each cache holds one full snapshot plus the time it was refreshed. Get
// returns the snapshot while it is younger than the TTL and otherwise reloads
// it synchronously from the store. Concurrent callers during a reload share
// the single in-flight load rather than racing separate ones. The vector and
// corpus caches are independent; a consumer reading both may observe
// mutually stale snapshots if the store was written between the two reads,
// which is accepted for a conversational search feature.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shiokaze/tazune/internal/models"
	"github.com/shiokaze/tazune/internal/storage"
)

// DefaultTTL is the snapshot lifetime used when none is configured.
const DefaultTTL = 60 * time.Second

// VectorCache caches the full set of item embeddings, keyed by item ID.
type VectorCache struct {
	store storage.Store
	ttl   time.Duration
	now   func() time.Time

	mu            sync.Mutex
	snapshot      map[string]*models.Embedding
	lastRefreshed time.Time
}

// NewVectorCache creates a vector cache over store. ttl <= 0 uses DefaultTTL.
func NewVectorCache(store storage.Store, ttl time.Duration) *VectorCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &VectorCache{store: store, ttl: ttl, now: time.Now}
}

// Get returns the current embedding snapshot, reloading it from the store if
// the snapshot is missing or older than the TTL. Callers must not mutate the
// returned map.
func (c *VectorCache) Get(ctx context.Context) (map[string]*models.Embedding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && c.now().Sub(c.lastRefreshed) < c.ttl {
		return c.snapshot, nil
	}

	embeddings, err := c.store.ListEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]*models.Embedding, len(embeddings))
	for _, emb := range embeddings {
		snapshot[emb.ItemID] = emb
	}
	c.snapshot = snapshot
	c.lastRefreshed = c.now()
	return c.snapshot, nil
}

// Invalidate clears the snapshot unconditionally, forcing the next Get to reload.
func (c *VectorCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.lastRefreshed = time.Time{}
}

// CorpusCache caches the full item list, newest-first.
type CorpusCache struct {
	store storage.Store
	ttl   time.Duration
	now   func() time.Time

	mu            sync.Mutex
	snapshot      []*models.Item
	lastRefreshed time.Time
}

// NewCorpusCache creates a corpus cache over store. ttl <= 0 uses DefaultTTL.
func NewCorpusCache(store storage.Store, ttl time.Duration) *CorpusCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CorpusCache{store: store, ttl: ttl, now: time.Now}
}

// Get returns the current item snapshot sorted by posted_at descending,
// reloading from the store if missing or expired. Callers must not mutate
// the returned slice.
func (c *CorpusCache) Get(ctx context.Context) ([]*models.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && c.now().Sub(c.lastRefreshed) < c.ttl {
		return c.snapshot, nil
	}

	items, err := c.store.ListItems(ctx, 0)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.Item{}
	}
	c.snapshot = items
	c.lastRefreshed = c.now()
	return c.snapshot, nil
}

// Invalidate clears the snapshot unconditionally, forcing the next Get to reload.
func (c *CorpusCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.lastRefreshed = time.Time{}
}
