// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides the bounded, time-expiring read cache sitting
// in front of the repository's identity-lookup path.
//
// The cache is coarse on invalidation by design: any mutation through a
// repository purges every entry for that repository's type, because a
// single update can change which entry is "latest" for several
// different query-parameter combinations at once. Staleness is bounded
// by the TTL and by purge-on-write; a brief race between a purge and a
// concurrent populate is tolerated and self-heals within one TTL.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Key identifies one cached lookup. Every parameter that changes the
// result of a lookup must appear here, otherwise two different queries
// would collide on one entry.
type Key struct {
	Type    string
	UID     string
	Version string
	Status  string
	AtDate  string
	Extra   string
}

// String renders the composite key.
func (k Key) String() string {
	return strings.Join([]string{k.Type, k.UID, k.Version, k.Status, k.AtDate, k.Extra}, "|")
}

// Options configures an ItemCache.
type Options struct {
	// MaxEntries bounds the cache; the least recently used entry is
	// evicted when full. Zero disables the bound.
	MaxEntries int

	// TTL is how long an entry stays valid. Zero disables expiry.
	TTL time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntries: 1000,
		TTL:        10 * time.Second,
	}
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Purges    int64
}

type entry struct {
	key     string
	typ     string
	value   any
	addedAt time.Time
	elem    *list.Element
}

// ItemCache is a bounded TTL cache for repository lookups.
//
// Thread Safety: safe for concurrent use. A single mutex guards the
// map and the LRU list; entries are immutable once stored.
type ItemCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front = most recent
	opts    Options
	now     func() time.Time

	hits      int64
	misses    int64
	evictions int64
	purges    int64
}

// New creates an ItemCache with the given options.
func New(opts Options) *ItemCache {
	return &ItemCache{
		entries: make(map[string]*entry),
		lru:     list.New(),
		opts:    opts,
		now:     time.Now,
	}
}

// Get returns the cached value for k, if present and not expired.
func (c *ItemCache) Get(ctx context.Context, k Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k.String()]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		recordMiss(ctx)
		return nil, false
	}
	if c.opts.TTL > 0 && c.now().Sub(e.addedAt) > c.opts.TTL {
		c.removeLocked(e)
		atomic.AddInt64(&c.misses, 1)
		recordMiss(ctx)
		return nil, false
	}

	c.lru.MoveToFront(e.elem)
	atomic.AddInt64(&c.hits, 1)
	recordHit(ctx)
	return e.value, true
}

// Put stores the value for k, evicting the least recently used entry
// if the cache is full.
func (c *ItemCache) Put(ctx context.Context, k Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ks := k.String()
	if old, ok := c.entries[ks]; ok {
		c.removeLocked(old)
	}

	if c.opts.MaxEntries > 0 && len(c.entries) >= c.opts.MaxEntries {
		if back := c.lru.Back(); back != nil {
			c.removeLocked(back.Value.(*entry))
			atomic.AddInt64(&c.evictions, 1)
			recordEviction(ctx)
		}
	}

	e := &entry{key: ks, typ: k.Type, value: value, addedAt: c.now()}
	e.elem = c.lru.PushFront(e)
	c.entries[ks] = e
}

// PurgeType drops every entry belonging to one repository type. Called
// by the repository on every mutation, success or failure.
func (c *ItemCache) PurgeType(typ string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.typ == typ {
			c.removeLocked(e)
		}
	}
	atomic.AddInt64(&c.purges, 1)
}

// Purge drops every entry.
func (c *ItemCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.lru.Init()
	atomic.AddInt64(&c.purges, 1)
}

// Len returns the number of live entries.
func (c *ItemCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *ItemCache) Stats() Stats {
	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Purges:    atomic.LoadInt64(&c.purges),
	}
}

func (c *ItemCache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.lru.Remove(e.elem)
}
