package kv

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value     any
	expiresAt time.Time // zero means no expiry
	createdAt time.Time
}

func (e *memoryEntry) isExpired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// MemoryBucket is an in-memory bucket, lost on restart.
type MemoryBucket struct {
	name    string
	entries map[string]*memoryEntry
	mu      sync.RWMutex
}

// NewMemoryBucket creates a new in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		entries: make(map[string]*memoryEntry),
	}
}

func (b *MemoryBucket) Name() string { return b.name }

func (b *MemoryBucket) IsPersistent() bool { return false }

func (b *MemoryBucket) Store(key string, value any, opts *StoreOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	entry := &memoryEntry{value: value, createdAt: now}
	if opts != nil && opts.TTL > 0 {
		entry.expiresAt = now.Add(opts.TTL)
	}
	if existing, ok := b.entries[key]; ok && !existing.isExpired() {
		entry.createdAt = existing.createdAt
	}

	b.entries[key] = entry
	return nil
}

func (b *MemoryBucket) Get(key string) (any, error) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if entry.isExpired() {
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return nil, nil
	}
	return entry.value, nil
}

func (b *MemoryBucket) Exists(key string) (bool, error) {
	v, err := b.Get(key)
	return v != nil, err
}

func (b *MemoryBucket) Delete(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.entries[key]
	delete(b.entries, key)
	return ok, nil
}

func (b *MemoryBucket) Keys() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var keys []string
	for key, entry := range b.entries {
		if entry.isExpired() {
			delete(b.entries, key)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (b *MemoryBucket) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[string]*memoryEntry)
	return nil
}

// CleanupExpired removes all expired entries and returns how many.
func (b *MemoryBucket) CleanupExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for key, entry := range b.entries {
		if entry.isExpired() {
			delete(b.entries, key)
			count++
		}
	}
	return count
}
