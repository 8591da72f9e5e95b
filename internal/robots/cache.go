package robots

import "sync"

// Cache holds robots policies per origin for the lifetime of a run.
// There is no TTL and no eviction. Origins whose robots.txt could not be
// loaded are stored with a nil policy so they are not fetched again.
type Cache struct {
	mu       sync.RWMutex
	policies map[string]*Policy
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{policies: make(map[string]*Policy)}
}

// Load returns the cached policy for origin and whether an entry exists.
func (c *Cache) Load(origin string) (*Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.policies[origin]
	return p, ok
}

// Store records the policy for origin. A nil policy means "allow all".
func (c *Cache) Store(origin string, p *Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies[origin] = p
}

// Len returns the number of cached origins.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.policies)
}
