package storage

import "sync"

// KeyedMutex serialises work per key using a fixed set of striped locks.
// Two keys only contend when they hash to the same stripe.
type KeyedMutex struct {
	stripes []sync.Mutex
	mask    uint32
}

// NewKeyedMutex creates a mutex set with at least stripeCount stripes
func NewKeyedMutex(stripeCount int) *KeyedMutex {
	n := roundUpPowerOfTwo(stripeCount)
	return &KeyedMutex{
		stripes: make([]sync.Mutex, n),
		mask:    uint32(n - 1),
	}
}

// Lock locks the stripe of key and returns its unlock function
func (m *KeyedMutex) Lock(key string) func() {
	mu := &m.stripes[fnv1a(key)&m.mask]
	mu.Lock()
	return mu.Unlock
}
