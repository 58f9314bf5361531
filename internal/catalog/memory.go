package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
)

type memoryEntry struct {
	cards     []perks.OwnedCard
	expiresAt time.Time
}

// MemoryCache keeps owned cards in process memory for a fixed TTL.
type MemoryCache struct {
	source  perks.CatalogSource
	ttl     time.Duration
	nowFn   func() time.Time
	mutex   sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache wraps source with an in-process TTL cache.
func NewMemoryCache(source perks.CatalogSource, ttl time.Duration, now func() time.Time) (*MemoryCache, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidCacheConfig)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidCacheConfig)
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		source:  source,
		ttl:     ttl,
		nowFn:   now,
		entries: make(map[string]memoryEntry),
	}, nil
}

func (cache *MemoryCache) ListOwnedCards(ctx context.Context, userID perks.UserID) ([]perks.OwnedCard, error) {
	key := cacheKey(userID.String())
	cache.mutex.Lock()
	entry, found := cache.entries[key]
	if found && cache.nowFn().Before(entry.expiresAt) {
		cache.mutex.Unlock()
		return cloneCards(entry.cards), nil
	}
	cache.mutex.Unlock()

	cards, err := cache.source.ListOwnedCards(ctx, userID)
	if err != nil {
		return nil, err
	}

	cache.mutex.Lock()
	cache.entries[key] = memoryEntry{cards: cloneCards(cards), expiresAt: cache.nowFn().Add(cache.ttl)}
	cache.mutex.Unlock()
	return cards, nil
}

func (cache *MemoryCache) Invalidate(_ context.Context, userID perks.UserID) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	delete(cache.entries, cacheKey(userID.String()))
	return nil
}

func (cache *MemoryCache) Clear(_ context.Context) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cache.entries = make(map[string]memoryEntry)
	return nil
}
