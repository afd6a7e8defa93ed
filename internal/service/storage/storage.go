package storage

import "time"

// Storage defines interface for any object storage
type Storage[K comparable, V any] interface {
	Set(key K, value V)
	SetWithTTL(key K, value V, ttl time.Duration)
	Get(key K) (V, bool)
	Delete(key K) bool
	// Compute atomically replaces the value under key with the result of fn.
	// Returning keep=false removes the key.
	Compute(key K, fn func(old V, exists bool) (value V, keep bool)) (V, bool)
	Expire(key K, ttl time.Duration) bool
	DeleteExpired() int
	GetAllValues() []V
	ForEach(fn func(key K, value V) bool)
	Count() int
}
