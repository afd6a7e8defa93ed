package storage

import (
	"fmt"
	"sync"
	"time"
)

// ShardedMemoryStorage spreads keys over independent MemoryStorage shards
// so that unrelated keys never contend on the same lock
type ShardedMemoryStorage[K comparable, V any] struct {
	shards     []*MemoryStorage[K, V]
	shardMask  int
	keyToShard func(K) int // Shard distribution function
}

// NewShardedMemoryStorage creates a new sharded storage
func NewShardedMemoryStorage[K comparable, V any](shardCount int, keyToShardFunc func(K) int) *ShardedMemoryStorage[K, V] {
	realShardCount := roundUpPowerOfTwo(shardCount)

	shards := make([]*MemoryStorage[K, V], realShardCount)
	for i := range shards {
		shards[i] = NewMemoryStorage[K, V]()
	}

	if keyToShardFunc == nil {
		keyToShardFunc = defaultKeyToShard[K](realShardCount)
	}

	return &ShardedMemoryStorage[K, V]{
		shards:     shards,
		shardMask:  realShardCount - 1,
		keyToShard: keyToShardFunc,
	}
}

func roundUpPowerOfTwo(n int) int {
	result := 1
	for result < n {
		result *= 2
	}
	return result
}

// defaultKeyToShard hashes string and numeric keys directly and everything else via fmt
func defaultKeyToShard[K comparable](shardCount int) func(K) int {
	mask := shardCount - 1
	return func(key K) int {
		switch k := any(key).(type) {
		case string:
			return int(fnv1a(k)) & mask
		case int:
			return k & mask
		case int64:
			return int(k) & mask
		case uint64:
			return int(k) & mask
		default:
			return int(fnv1a(fmt.Sprintf("%v", key))) & mask
		}
	}
}

// FNV-1a hash function
func fnv1a(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// getShard returns shard for key
func (s *ShardedMemoryStorage[K, V]) getShard(key K) *MemoryStorage[K, V] {
	return s.shards[s.keyToShard(key)&s.shardMask]
}

// WithClock replaces the time source of every shard
func (s *ShardedMemoryStorage[K, V]) WithClock(now func() time.Time) *ShardedMemoryStorage[K, V] {
	for _, shard := range s.shards {
		shard.WithClock(now)
	}
	return s
}

func (s *ShardedMemoryStorage[K, V]) Set(key K, value V) {
	s.getShard(key).Set(key, value)
}

func (s *ShardedMemoryStorage[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	s.getShard(key).SetWithTTL(key, value, ttl)
}

func (s *ShardedMemoryStorage[K, V]) Get(key K) (V, bool) {
	return s.getShard(key).Get(key)
}

func (s *ShardedMemoryStorage[K, V]) Delete(key K) bool {
	return s.getShard(key).Delete(key)
}

func (s *ShardedMemoryStorage[K, V]) Compute(key K, fn func(old V, exists bool) (V, bool)) (V, bool) {
	return s.getShard(key).Compute(key, fn)
}

func (s *ShardedMemoryStorage[K, V]) Expire(key K, ttl time.Duration) bool {
	return s.getShard(key).Expire(key, ttl)
}

// DeleteExpired sweeps all shards
func (s *ShardedMemoryStorage[K, V]) DeleteExpired() int {
	removed := 0
	for _, shard := range s.shards {
		removed += shard.DeleteExpired()
	}
	return removed
}

// GetAllValues returns all values as a slice
func (s *ShardedMemoryStorage[K, V]) GetAllValues() []V {
	var result []V
	for _, shard := range s.shards {
		result = append(result, shard.GetAllValues()...)
	}
	return result
}

// ForEach executes a function for each object, shard by shard
func (s *ShardedMemoryStorage[K, V]) ForEach(fn func(key K, value V) bool) {
	stopped := false
	for _, shard := range s.shards {
		shard.ForEach(func(k K, v V) bool {
			if !fn(k, v) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}
	}
}

// Count returns total number of objects
func (s *ShardedMemoryStorage[K, V]) Count() int {
	count := 0
	for _, shard := range s.shards {
		count += shard.Count()
	}
	return count
}

// ForEachParallel processes objects in parallel, one goroutine per shard
func (s *ShardedMemoryStorage[K, V]) ForEachParallel(fn func(key K, value V)) {
	var wg sync.WaitGroup
	wg.Add(len(s.shards))

	for _, shard := range s.shards {
		go func(shard *MemoryStorage[K, V]) {
			defer wg.Done()
			shard.ForEach(func(k K, v V) bool {
				fn(k, v)
				return true
			})
		}(shard)
	}

	wg.Wait()
}
