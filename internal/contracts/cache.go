// Package contracts caches brokerage contract metadata for process lifetime
// (SPEC_FULL.md §4.7): contracts are immutable once fetched, so the cache
// never invalidates an entry, only fills it lazily on first reference.
package contracts

import (
	"context"
	"fmt"
	"sync"

	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

// Fetcher is the subset of domain.BrokerClient the cache needs.
type Fetcher interface {
	SearchContract(ctx context.Context, contractID string) (domain.Contract, error)
}

// Cache is a process-wide, thread-safe contract store.
type Cache struct {
	fetcher Fetcher

	mu    sync.RWMutex
	byID  map[string]domain.Contract
	infly map[string]chan struct{} // in-flight fetch de-duplication per contract id
}

// New builds an empty Cache backed by fetcher.
func New(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		byID:    make(map[string]domain.Contract),
		infly:   make(map[string]chan struct{}),
	}
}

// Get returns the cached contract, fetching it once via REST on a miss.
// Concurrent Get calls for the same uncached contract id share one fetch.
// A fetch failure is returned to every waiter and nothing is cached, so a
// later Get retries.
func (c *Cache) Get(ctx context.Context, contractID string) (domain.Contract, error) {
	c.mu.RLock()
	if contract, ok := c.byID[contractID]; ok {
		c.mu.RUnlock()
		return contract, nil
	}
	wait, inflight := c.infly[contractID]
	c.mu.RUnlock()

	if inflight {
		select {
		case <-wait:
		case <-ctx.Done():
			return domain.Contract{}, ctx.Err()
		}
		c.mu.RLock()
		contract, ok := c.byID[contractID]
		c.mu.RUnlock()
		if ok {
			return contract, nil
		}
		return domain.Contract{}, fmt.Errorf("contracts: fetch for %s failed on another caller", contractID)
	}

	c.mu.Lock()
	if contract, ok := c.byID[contractID]; ok {
		c.mu.Unlock()
		return contract, nil
	}
	if _, ok := c.infly[contractID]; ok {
		c.mu.Unlock()
		return c.Get(ctx, contractID)
	}
	done := make(chan struct{})
	c.infly[contractID] = done
	c.mu.Unlock()

	contract, err := c.fetcher.SearchContract(ctx, contractID)

	c.mu.Lock()
	if err == nil {
		c.byID[contractID] = contract
	}
	delete(c.infly, contractID)
	c.mu.Unlock()
	close(done)

	if err != nil {
		return domain.Contract{}, fmt.Errorf("contracts: fetching %s: %w", contractID, err)
	}
	return contract, nil
}

// Peek returns the cached contract without fetching, reporting whether it
// was present.
func (c *Cache) Peek(contractID string) (domain.Contract, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	contract, ok := c.byID[contractID]
	return contract, ok
}

// Len reports the number of cached contracts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
