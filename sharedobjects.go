//go:build !ios && !android && (amd64 || arm64)

package projgo

import (
	"sort"
	"sync"
	"time"
	"weak"
)

// rehashDelay is how long the table must have been shrink-eligible before
// it is actually shrunk. When the collector reclaims many wrappers in a
// burst, shrinking immediately causes reduce/expand/reduce cycles; waiting
// a few seconds absorbs the burst. Variable for tests.
var rehashDelay = 4 * time.Second

// capacities are table sizes as prime numbers close to powers of 2.
var capacities = []int{61, 127, 257, 509, 1021, 2053, 4093, 8191, 16381, 32771, 65537}

// cacheEntry is one chained slot of sharedObjects: the native identity key
// and a weak reference to the canonical wrapper. The reference is weak so
// the cache never keeps a wrapper alive; once the collector clears it the
// entry is stale and is purged by the wrapper's disposer or lazily by the
// next lookup that walks the chain.
type cacheEntry struct {
	key  uintptr
	ref  weak.Pointer[Object]
	next *cacheEntry
}

// sharedObjects maps raw native object addresses to their canonical live
// wrapper, guaranteeing at most one wrapper per native object
// process-wide. Open-chained hash table; every structural mutation is
// serialized by mu.
type sharedObjects struct {
	mu    sync.Mutex
	table []*cacheEntry
	// count is the number of entries, including chained ones.
	count int
	// lastNormalCapacity is the last time the table did not need shrinking.
	lastNormalCapacity time.Time
}

// sharedCache is the process-wide wrapper identity cache.
var sharedCache = newSharedObjects()

func newSharedObjects() *sharedObjects {
	return &sharedObjects{
		table:              make([]*cacheEntry, capacities[0]),
		lastNormalCapacity: time.Now(),
	}
}

func hashKey(key uintptr, capacity int) int {
	return int(key % uintptr(capacity))
}

// If the number of entries is below this threshold the table should shrink.
func lowerCapacityThreshold(capacity int) int {
	return capacity >> 2
}

// If the number of entries is above this threshold the table should grow.
func upperCapacityThreshold(capacity int) int {
	return capacity - (capacity >> 2)
}

// get returns the live wrapper for key, or nil if the key is absent or its
// wrapper has been collected.
func (m *sharedObjects) get(key uintptr) *Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	for e := m.table[hashKey(key, len(m.table))]; e != nil; e = e.next {
		if e.key == key {
			return e.ref.Value()
		}
	}
	return nil
}

// putIfAbsent associates value with key unless a live wrapper is already
// present. Returns (existing, nil) when another wrapper won: the caller
// lost the race and must release its candidate's own handle, because each
// independent wrap of the same native object holds its own reference-count
// increment. Returns (nil, entry) when value was inserted; the entry is
// what the wrapper's disposer later hands to remove.
//
// Insertion is linearizable per key under m.mu: exactly one candidate wins.
func (m *sharedObjects) putIfAbsent(key uintptr, value *Object) (*Object, *cacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := hashKey(key, len(m.table))
	for e := m.table[index]; e != nil; e = e.next {
		if e.key == key {
			if old := e.ref.Value(); old != nil {
				return old, nil
			}
			// Stale entry for a collected wrapper: purge before inserting
			// the replacement. Removal may shrink the table, so the index
			// must be recomputed.
			m.removeLocked(e)
			index = hashKey(key, len(m.table))
		}
	}
	m.count++
	if m.count >= lowerCapacityThreshold(len(m.table)) {
		if m.count > upperCapacityThreshold(len(m.table)) {
			m.rehash()
			index = hashKey(key, len(m.table))
		}
		m.lastNormalCapacity = time.Now()
	}
	entry := &cacheEntry{key: key, ref: weak.Make(value), next: m.table[index]}
	m.table[index] = entry
	return nil, entry
}

// remove deletes e from the table. Invoked by a wrapper's disposer after
// collection; it does nothing if the entry was already purged lazily.
func (m *sharedObjects) remove(e *cacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(e)
}

func (m *sharedObjects) removeLocked(toRemove *cacheEntry) {
	index := hashKey(toRemove.key, len(m.table))
	var prev *cacheEntry
	for e := m.table[index]; e != nil; e = e.next {
		if e == toRemove {
			if prev != nil {
				prev.next = e.next
			} else {
				m.table[index] = e.next
			}
			m.count--
			if m.count < lowerCapacityThreshold(len(m.table)) {
				now := time.Now()
				if now.Sub(m.lastNormalCapacity) > rehashDelay {
					m.rehash()
					m.lastNormalCapacity = now
				}
			}
			return
		}
		prev = e
	}
}

// rehash resizes the table to about twice the entry count, snapped to the
// nearest prime of the capacity ladder, and redistributes all chains.
func (m *sharedObjects) rehash() {
	capacity := m.count * 2
	i := sort.SearchInts(capacities, capacity)
	if i < len(capacities) {
		if i > 0 && capacity-capacities[i-1] < capacities[i]-capacity {
			i--
		}
		capacity = capacities[i]
	} else {
		capacity = capacities[len(capacities)-1]
	}
	if capacity == len(m.table) {
		return
	}
	table := make([]*cacheEntry, capacity)
	for _, next := range m.table {
		for next != nil {
			e := next
			next = next.next // e.next is about to be overwritten
			index := hashKey(e.key, capacity)
			e.next = table[index]
			table[index] = e
		}
	}
	m.table = table
}

// size reports the current entry count, for tests and diagnostics.
func (m *sharedObjects) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// capacity reports the current table length, for tests and diagnostics.
func (m *sharedObjects) capacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table)
}
