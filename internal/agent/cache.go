package agent

import (
	"container/list"
	"context"
	"crypto/sha256"
	"sync"

	"github.com/google/uuid"
	"github.com/imobflow/imobflow/internal/models"
	"github.com/imobflow/imobflow/internal/telemetry"
	"github.com/mr-tron/base58"
)

// ProviderCache keeps one provider per tenant, bounded by size with least
// recently used eviction. Entries are keyed by tenant and carry a fingerprint
// of the credentials so a rotated key or changed model rebuilds the client.
type ProviderCache struct {
	mu      sync.Mutex
	size    int
	factory ProviderFactory
	order   *list.List
	entries map[uuid.UUID]*list.Element
}

type cacheEntry struct {
	tenantID    uuid.UUID
	fingerprint string
	provider    Provider
}

func NewProviderCache(size int, factory ProviderFactory) *ProviderCache {
	if size <= 0 {
		size = 64
	}
	return &ProviderCache{
		size:    size,
		factory: factory,
		order:   list.New(),
		entries: make(map[uuid.UUID]*list.Element),
	}
}

// Fingerprint identifies a provider configuration without retaining the key.
func Fingerprint(cfg models.AIConfig) string {
	h := sha256.New()
	for _, part := range []string{cfg.Provider, cfg.Model, cfg.BaseURL, cfg.APIKey} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return base58.Encode(h.Sum(nil)[:16])
}

// Get returns the cached provider for the tenant, building a new one when
// none is cached or the configuration changed.
func (c *ProviderCache) Get(ctx context.Context, tenantID uuid.UUID, cfg models.AIConfig) (Provider, error) {
	fp := Fingerprint(cfg)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[tenantID]; ok {
		entry := el.Value.(*cacheEntry)
		if entry.fingerprint == fp {
			c.order.MoveToFront(el)
			return entry.provider, nil
		}
		c.order.Remove(el)
		delete(c.entries, tenantID)
	}

	telemetry.GetMetrics().ProviderCacheMisses.Add(ctx, 1)

	provider, err := c.factory(cfg)
	if err != nil {
		return nil, err
	}

	c.entries[tenantID] = c.order.PushFront(&cacheEntry{tenantID: tenantID, fingerprint: fp, provider: provider})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).tenantID)
	}
	return provider, nil
}

// Invalidate drops the tenant's provider.
func (c *ProviderCache) Invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[tenantID]; ok {
		c.order.Remove(el)
		delete(c.entries, tenantID)
	}
}

func (c *ProviderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
