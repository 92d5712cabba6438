// Package refdata caches externally sourced reference data lists (gender,
// education) with a bounded time to live.
package refdata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yomakenya/smsbridge/internal/models"
)

// Categories served by the provider.
const (
	CategoryGender    = "gender"
	CategoryEducation = "education"
)

// DefaultTTL is how long a fetched list stays fresh.
const DefaultTTL = time.Hour

// Provider fetches a reference data list for a category.
type Provider interface {
	Lookup(ctx context.Context, category string) ([]models.ReferenceOption, error)
}

type entry struct {
	options   []models.ReferenceOption
	fetchedAt time.Time
}

// Cache is a per-category reference data cache. A stale or missing category
// triggers a synchronous provider fetch; provider failures surface to the
// caller without falling back to stale data.
type Cache struct {
	provider Provider
	ttl      time.Duration

	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time // overridable in tests
}

// NewCache creates a cache over the given provider. A non-positive ttl uses
// DefaultTTL.
func NewCache(provider Provider, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		provider: provider,
		ttl:      ttl,
		entries:  make(map[string]entry),
		now:      time.Now,
	}
}

// Options returns the cached list for category, fetching from the provider
// when the cache is cold or stale.
func (c *Cache) Options(ctx context.Context, category string) ([]models.ReferenceOption, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[category]; ok && c.now().Sub(e.fetchedAt) < c.ttl {
		slog.Debug("refdata cache hit", "category", category, "count", len(e.options))
		return e.options, nil
	}

	options, err := c.provider.Lookup(ctx, category)
	if err != nil {
		slog.Error("refdata fetch failed", "category", category, "error", err)
		return nil, err
	}

	c.entries[category] = entry{options: options, fetchedAt: c.now()}
	slog.Debug("refdata cache refreshed", "category", category, "count", len(options))
	return options, nil
}

// Snapshot fetches the gender and education lists together for binding into a
// new conversation.
func (c *Cache) Snapshot(ctx context.Context) (genders, educations []models.ReferenceOption, err error) {
	genders, err = c.Options(ctx, CategoryGender)
	if err != nil {
		return nil, nil, err
	}
	educations, err = c.Options(ctx, CategoryEducation)
	if err != nil {
		return nil, nil, err
	}
	return genders, educations, nil
}
