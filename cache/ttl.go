// Package cache provides the read cache owned by an upstream collaborator.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"reqtrace/metrics"
)

// Defaults
const (
	DefaultSize = 2048
	DefaultTTL  = 5 * time.Minute
)

// TTL is a size-bounded cache whose entries expire purely by age.
// It is safe for concurrent use.
type TTL[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
}

// NewTTL creates a cache. Non-positive arguments fall back to the defaults.
func NewTTL[K comparable, V any](size int, ttl time.Duration) *TTL[K, V] {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTL[K, V]{lru: expirable.NewLRU[K, V](size, nil, ttl)}
}

// Get returns a live entry.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}
	return v, ok
}

// Put stores value under key, replacing any existing entry.
func (c *TTL[K, V]) Put(key K, value V) {
	c.lru.Add(key, value)
}

// Clear drops every entry.
func (c *TTL[K, V]) Clear() {
	c.lru.Purge()
}

// Len returns the number of entries, expired ones included until they are swept.
func (c *TTL[K, V]) Len() int {
	return c.lru.Len()
}
