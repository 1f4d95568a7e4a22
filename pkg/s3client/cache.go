package s3client

import (
	"context"
	"sync"
)

// Cache holds one client per storage account. Clients are cheap to keep and
// safe for concurrent use, so they live until the account changes.
type Cache struct {
	mu      sync.Mutex
	clients map[int64]*Client
}

func NewCache() *Cache {
	return &Cache{clients: make(map[int64]*Client)}
}

// Get returns the cached client for an account, building one on first use.
func (c *Cache) Get(ctx context.Context, accountID int64, cfg Config) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[accountID]; ok {
		return client, nil
	}

	client, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.clients[accountID] = client
	return client, nil
}

// Invalidate drops the cached client after credentials change or the
// account is deleted.
func (c *Cache) Invalidate(accountID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, accountID)
}
