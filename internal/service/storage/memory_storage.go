package storage

import (
	"sync"
	"time"
)

// MemoryStorage - universal in-memory object storage
// K - key type, V - stored object type
type MemoryStorage[K comparable, V any] struct {
	data    map[K]V
	expires map[K]time.Time
	mutex   sync.RWMutex
	now     func() time.Time
}

// NewMemoryStorage creates a new storage
func NewMemoryStorage[K comparable, V any]() *MemoryStorage[K, V] {
	return &MemoryStorage[K, V]{
		data:    make(map[K]V),
		expires: make(map[K]time.Time),
		now:     time.Now,
	}
}

// WithClock replaces the time source used for expiry
func (s *MemoryStorage[K, V]) WithClock(now func() time.Time) *MemoryStorage[K, V] {
	s.now = now
	return s
}

// expiredLocked reports whether key has a deadline in the past. Caller holds the lock.
func (s *MemoryStorage[K, V]) expiredLocked(key K) bool {
	deadline, ok := s.expires[key]
	return ok && !s.now().Before(deadline)
}

// Set adds or updates an object and clears any expiry
func (s *MemoryStorage[K, V]) Set(key K, value V) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.data[key] = value
	delete(s.expires, key)
}

// SetWithTTL adds or updates an object that disappears after ttl
func (s *MemoryStorage[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.data[key] = value
	s.expires[key] = s.now().Add(ttl)
}

// Get returns an object by key
func (s *MemoryStorage[K, V]) Get(key K) (V, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, exists := s.data[key]
	if !exists || s.expiredLocked(key) {
		var zero V
		return zero, false
	}
	return value, true
}

// Delete removes an object by key
func (s *MemoryStorage[K, V]) Delete(key K) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, exists := s.data[key]
	live := exists && !s.expiredLocked(key)
	delete(s.data, key)
	delete(s.expires, key)
	return live
}

// Compute runs fn under the write lock; the expiry of an existing key is kept
func (s *MemoryStorage[K, V]) Compute(key K, fn func(old V, exists bool) (V, bool)) (V, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	old, exists := s.data[key]
	if exists && s.expiredLocked(key) {
		var zero V
		old, exists = zero, false
		delete(s.data, key)
		delete(s.expires, key)
	}

	value, keep := fn(old, exists)
	if !keep {
		delete(s.data, key)
		delete(s.expires, key)
		var zero V
		return zero, false
	}
	s.data[key] = value
	return value, true
}

// Expire sets a deadline on an existing key
func (s *MemoryStorage[K, V]) Expire(key K, ttl time.Duration) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.data[key]; !exists || s.expiredLocked(key) {
		return false
	}
	s.expires[key] = s.now().Add(ttl)
	return true
}

// DeleteExpired drops every object past its deadline and returns how many were removed
func (s *MemoryStorage[K, V]) DeleteExpired() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	for key := range s.expires {
		if s.expiredLocked(key) {
			delete(s.data, key)
			delete(s.expires, key)
			removed++
		}
	}
	return removed
}

// GetAllValues returns all live values as a slice
func (s *MemoryStorage[K, V]) GetAllValues() []V {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]V, 0, len(s.data))
	for k, v := range s.data {
		if s.expiredLocked(k) {
			continue
		}
		result = append(result, v)
	}
	return result
}

// ForEach executes a function for each live object
func (s *MemoryStorage[K, V]) ForEach(fn func(key K, value V) bool) {
	// Copy data under lock for subsequent processing
	s.mutex.RLock()
	items := make(map[K]V, len(s.data))
	for k, v := range s.data {
		if !s.expiredLocked(k) {
			items[k] = v
		}
	}
	s.mutex.RUnlock()

	// Process copied data without locking
	for k, v := range items {
		if !fn(k, v) {
			break
		}
	}
}

// Count returns the number of live objects
func (s *MemoryStorage[K, V]) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	count := 0
	for k := range s.data {
		if !s.expiredLocked(k) {
			count++
		}
	}
	return count
}
