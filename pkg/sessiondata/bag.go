package sessiondata

import (
	"context"
	"sort"
	"sync"
)

// Bag is the property map of one skill. It is shared with the rendering host
// for as long as any delegate of the skill is alive. The zero value is ready
// to use.
type Bag struct {
	mu     sync.RWMutex
	once   sync.Once
	signal chan struct{}
	data   map[string]Value
}

// init ensures internal structures are allocated.
func (b *Bag) init() {
	b.once.Do(func() {
		b.data = make(map[string]Value)
		b.signal = make(chan struct{})
	})
}

// notify wakes goroutines blocked in Watch. Callers must hold b.mu.
func (b *Bag) notify() {
	close(b.signal)
	b.signal = make(chan struct{})
}

// Get returns the value for key and whether it was found.
func (b *Bag) Get(key string) (Value, bool) {
	b.init()
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.data[key]
	return v, ok
}

// Set stores value under key and notifies any goroutines blocked in Watch.
func (b *Bag) Set(key string, value Value) {
	b.init()
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data[key] = value
	b.notify()
}

// Delete removes key. It reports whether the key was present.
func (b *Bag) Delete(key string) bool {
	b.init()
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.data[key]; !ok {
		return false
	}

	delete(b.data, key)
	b.notify()
	return true
}

// Len returns the number of properties.
func (b *Bag) Len() int {
	b.init()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Keys returns a sorted slice of all property names.
func (b *Bag) Keys() []string {
	b.init()
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Snapshot returns a copy of every property.
func (b *Bag) Snapshot() map[string]Value {
	b.init()
	b.mu.RLock()
	defer b.mu.RUnlock()

	cp := make(map[string]Value, len(b.data))
	for k, v := range b.data {
		cp[k] = v
	}

	return cp
}

// Changed returns a channel that is closed on the next mutation of the bag.
func (b *Bag) Changed() <-chan struct{} {
	b.init()
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.signal
}

// Watch blocks until key exists in the bag or ctx is cancelled.
func (b *Bag) Watch(ctx context.Context, key string) (Value, error) {
	b.init()

	for {
		b.mu.RLock()
		v, ok := b.data[key]
		sig := b.signal
		b.mu.RUnlock()

		if ok {
			return v, nil
		}

		select {
		case <-ctx.Done():
			return Value{}, ctx.Err()
		case <-sig:
		}
	}
}

// String returns the string property key, or "" when absent or not a string.
func (b *Bag) String(key string) string {
	v, _ := b.Get(key)
	s, _ := v.AsString()
	return s
}

// Number returns the numeric property key, or 0 when absent or not a number.
func (b *Bag) Number(key string) float64 {
	v, _ := b.Get(key)
	n, _ := v.AsNumber()
	return n
}

// Bool returns the boolean property key, or false when absent or not a bool.
func (b *Bag) Bool(key string) bool {
	v, _ := b.Get(key)
	x, _ := v.AsBool()
	return x
}

// List returns the list property key, or nil when absent or not a list.
func (b *Bag) List(key string) []Value {
	v, _ := b.Get(key)
	l, _ := v.AsList()
	return l
}

// Map returns the map property key, or nil when absent or not a map.
func (b *Bag) Map(key string) map[string]Value {
	v, _ := b.Get(key)
	m, _ := v.AsMap()
	return m
}
