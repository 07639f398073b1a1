// Package cache holds short-lived keyed state, such as which warnings have
// already been logged recently.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const cleanupInterval = 30 * time.Second

// Cache is safe for concurrent use. Entries live until their own TTL runs out.
type Cache struct {
	entries *gocache.Cache
}

func New() *Cache {
	return &Cache{entries: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// FirstWithin reports whether key has not been seen in the last ttl, marking it
// as seen.
func (c *Cache) FirstWithin(key string, ttl time.Duration) bool {
	return c.entries.Add(key, struct{}{}, ttl) == nil
}

// Len counts the keys still inside their window.
func (c *Cache) Len() int {
	c.entries.DeleteExpired()
	return c.entries.ItemCount()
}
