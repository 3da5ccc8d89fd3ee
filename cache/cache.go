/*
 * Copyright 2025 The pgexporter Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cache implements the fingerprint -> artifact store of
// spec.md §4.5: TTL-based freshness, insertion-order eviction under a
// byte budget, and single-flight coalescing of concurrent fetches that
// share a fingerprint.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	bytes      []byte
	insertedAt time.Time
	ttl        time.Duration
}

func (e *entry) fresh(now time.Time) bool {
	return now.Sub(e.insertedAt) < e.ttl
}

// pending is the single-flight handle for one fingerprint's in-progress
// fetch. Waiters block on done, which is closed once, by the publisher.
type pending struct {
	done  chan struct{}
	bytes []byte
	err   error
}

// Cache is a bounded fingerprint -> bytes store with TTL freshness and
// single-flight coalescing. The zero value is not usable; use New.
type Cache struct {
	mu      sync.Mutex
	maxSize int64 // bytes; 0 disables caching entirely

	entries map[string]*entry
	order   []string // fingerprints in insertion order, oldest first
	size    int64

	pending map[string]*pending
}

// New returns a Cache that evicts once its total stored bytes would
// exceed maxSize. maxSize == 0 makes every request bypass the cache
// (spec.md §8 boundary case).
func New(maxSize int64) *Cache {
	return &Cache{
		maxSize: maxSize,
		entries: map[string]*entry{},
		pending: map[string]*pending{},
	}
}

// Fetch is the backend call a cache miss invokes. It returns the bytes
// to (maybe) cache, their TTL, and any error.
type Fetch func() ([]byte, time.Duration, error)

// GetOrFetch returns fresh bytes for fingerprint, fetching them via
// fetch on a miss. Concurrent callers with the same fingerprint observe
// exactly one backend fetch (spec.md §4.5/§8 single-flight property);
// a failing fetch wakes every waiter with the same error and publishes
// nothing.
func (c *Cache) GetOrFetch(fingerprint string, fetch Fetch) ([]byte, error) {
	c.mu.Lock()
	if b, ok := c.lockedGet(fingerprint); ok {
		c.mu.Unlock()
		return b, nil
	}
	if p, ok := c.pending[fingerprint]; ok {
		c.mu.Unlock()
		<-p.done
		return p.bytes, p.err
	}

	p := &pending{done: make(chan struct{})}
	c.pending[fingerprint] = p
	c.mu.Unlock()

	bytes, ttl, err := fetch()

	c.mu.Lock()
	if err == nil {
		c.publish(fingerprint, bytes, ttl)
	}
	delete(c.pending, fingerprint)
	c.mu.Unlock()

	p.bytes, p.err = bytes, err
	close(p.done)
	return bytes, err
}

// Get returns cached bytes for fingerprint without triggering a fetch.
func (c *Cache) Get(fingerprint string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lockedGet(fingerprint)
}

func (c *Cache) lockedGet(fingerprint string) ([]byte, bool) {
	e, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if !e.fresh(time.Now()) {
		c.lockedRemove(fingerprint)
		return nil, false
	}
	return e.bytes, true
}

// Clear removes every entry, used by the "clear prometheus" management
// verb.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*entry{}
	c.order = nil
	c.size = 0
}

// publish inserts bytes under fingerprint, evicting the oldest entries
// until it fits maxSize. If the entry alone exceeds maxSize (or
// maxSize is 0), nothing is stored — CACHE_OVERFLOW, not surfaced to
// the client (spec.md §7): the caller already has the bytes in hand.
func (c *Cache) publish(fingerprint string, bytes []byte, ttl time.Duration) {
	if c.maxSize == 0 {
		return
	}
	need := int64(len(bytes))
	if need > c.maxSize {
		return
	}
	for c.size+need > c.maxSize && len(c.order) > 0 {
		c.lockedRemove(c.order[0])
	}
	c.entries[fingerprint] = &entry{bytes: bytes, insertedAt: time.Now(), ttl: ttl}
	c.order = append(c.order, fingerprint)
	c.size += need
}

func (c *Cache) lockedRemove(fingerprint string) {
	e, ok := c.entries[fingerprint]
	if !ok {
		return
	}
	delete(c.entries, fingerprint)
	c.size -= int64(len(e.bytes))
	for i, f := range c.order {
		if f == fingerprint {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of entries currently stored (for tests and the
// "status details" management verb).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
