// Package cache implements the segmented LRU the engine uses for its block
// read cache: independently-locked shards so a miss in one shard never
// blocks a hit (or a miss) in another, plus a get-or-compute primitive that
// gives single-flight semantics per shard.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// Shard is one independently-locked LRU partition of a Segmented cache.
type Shard[K comparable, V any] struct {
	mu  sync.Mutex
	lru *lru.LRU[K, V]
}

func newShard[K comparable, V any](capacity int, onEvict func(K, V)) (*Shard[K, V], error) {
	if capacity < 1 {
		capacity = 1
	}
	l, err := lru.NewLRU[K, V](capacity, onEvict)
	if err != nil {
		return nil, err
	}
	return &Shard[K, V]{lru: l}, nil
}

func (s *Shard[K, V]) get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Get(key)
}

func (s *Shard[K, V]) put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Add(key, value)
}

func (s *Shard[K, V]) remove(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Remove(key)
}

// getOrCompute looks up key under the shard lock; on miss it calls loader
// (still under the lock) and installs the result on success. Two
// concurrent misses for the same key in the same shard therefore
// serialize — single-flight, scoped to this shard. loader must be
// side-effect-safe to run while holding the lock; here it performs a file
// read, which is acceptable because the lock never blocks another shard or
// the active segment's writer.
func (s *Shard[K, V]) getOrCompute(key K, loader func() (V, error)) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.lru.Get(key); ok {
		return v, nil
	}
	v, err := loader()
	if err != nil {
		var zero V
		return zero, err
	}
	s.lru.Add(key, v)
	return v, nil
}

func (s *Shard[K, V]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Segmented is a sharded LRU: shard(k) = hash(k) mod len(shards). Each
// shard has its own mutex; operations on one shard never block operations
// on another.
type Segmented[K comparable, V any] struct {
	shards []*Shard[K, V]
	hash   func(K) uint64
}

// NewSegmented builds a Segmented cache with shardCount shards, each
// capped at capacityPerShard entries. onEvict, if non-nil, is invoked by
// the underlying LRU whenever an entry is evicted from any shard.
func NewSegmented[K comparable, V any](shardCount, capacityPerShard int, hash func(K) uint64, onEvict func(K, V)) (*Segmented[K, V], error) {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]*Shard[K, V], shardCount)
	for i := range shards {
		s, err := newShard[K, V](capacityPerShard, onEvict)
		if err != nil {
			return nil, err
		}
		shards[i] = s
	}
	return &Segmented[K, V]{shards: shards, hash: hash}, nil
}

func (c *Segmented[K, V]) shardFor(key K) *Shard[K, V] {
	return c.shards[c.hash(key)%uint64(len(c.shards))]
}

// Get returns the cached value for key, promoting it to most-recently-used.
func (c *Segmented[K, V]) Get(key K) (V, bool) { return c.shardFor(key).get(key) }

// Put installs or updates key's value, promoting it to most-recently-used
// and evicting the shard's least-recently-used entry if it was at capacity.
func (c *Segmented[K, V]) Put(key K, value V) { c.shardFor(key).put(key, value) }

// Remove evicts key if present.
func (c *Segmented[K, V]) Remove(key K) { c.shardFor(key).remove(key) }

// GetOrCompute is documented on Shard.getOrCompute; it routes to the shard
// owning key.
func (c *Segmented[K, V]) GetOrCompute(key K, loader func() (V, error)) (V, error) {
	return c.shardFor(key).getOrCompute(key, loader)
}

// Len returns the total number of entries cached across all shards.
func (c *Segmented[K, V]) Len() int {
	n := 0
	for _, s := range c.shards {
		n += s.len()
	}
	return n
}

// HashUint64 is the finalizer from MurmurHash3's 64-bit mix, used to
// spread the block cache's (segment, aligned-offset) keys evenly across
// shards despite their low bits rarely varying within one segment.
func HashUint64(k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}
