package adapter

import (
	"context"
	"sync"
)

type cachedName struct {
	NodeAdapter

	mu   sync.Mutex
	name string
}

// WithCachedName wraps a so SystemName only reaches the site until the
// first successful answer.
func WithCachedName(a NodeAdapter) NodeAdapter {
	if _, ok := a.(*cachedName); ok {
		return a
	}
	return &cachedName{NodeAdapter: a}
}

func (c *cachedName) SystemName(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.name != "" {
		return c.name, nil
	}
	name, err := c.NodeAdapter.SystemName(ctx)
	if err != nil {
		return "", err
	}
	c.name = name
	return name, nil
}
