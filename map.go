// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// package chainmap is a Go implementation of a hash table using separate
// chaining. See https://en.wikipedia.org/wiki/Hash_table#Separate_chaining.
//
// # Separate Chaining
//
// A Map is an array of buckets. Each bucket is a slice of slots holding the
// entries whose hash(key) modulo the number of buckets selects that bucket.
// Collisions are resolved by appending to the bucket and lookups scan the
// bucket linearly, so with a well distributed hash function every operation
// touches O(1) slots on average.
//
// # Resizing
//
// The number of buckets (the capacity) starts at 1 and is adjusted after
// every insertion and erasure that changes the number of entries:
//
//   - when the load factor reaches exactly 1 (len == capacity) the table
//     grows to 2*len buckets.
//   - when the load factor drops to exactly 1/4 (len*4 == capacity) the
//     table shrinks to 2*len buckets.
//
// Both cases rehash every entry into a freshly allocated bucket array and
// release the old array to the configured Allocator. Since len changes by
// exactly one per mutation, the exact-equality triggers are always hit on
// the way up and the way down, which keeps the load factor in [1/4, 1] and
// the amortized cost of a mutation O(1).
//
// # Iteration
//
// An Iterator is a (bucket, offset) position. The end position is the
// bucket index one past the last real bucket, so a scan that skips empty
// buckets always terminates there. Iterators capture the version of the map
// they were created against and panic if used after a structural mutation
// (insert of a new key, erase of a present key, Clear, Close, or a resize).
package chainmap

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

const (
	debug = false

	// The load factor numerators used by the resize policy. The table grows
	// when used*growLoad == capacity and shrinks when used*shrinkLoad ==
	// capacity. In both cases the new capacity is used*resizeFactor.
	growLoad     = 1
	shrinkLoad   = 4
	resizeFactor = 2
)

// ErrKeyNotFound is returned by At when the requested key is not present.
var ErrKeyNotFound = errors.New("chainmap: key not found")

// Slot holds a key and value.
type Slot[K comparable, V any] struct {
	key   K
	value V
}

// Entry is a key and value pair used to construct a Map from a literal list.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Map is an unordered map from keys to values with Insert, Erase, Find, At,
// Index and iteration operations. By default a Map[K,V] hashes keys with
// hash/maphash and compares them with ==. A different hash function or
// equality can be specified using the WithHash and WithEqual options.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	hash  HashFunc[K]
	equal EqualFunc[K]
	// The allocator to use for the bucket arrays.
	allocator Allocator[K, V]
	// buckets is capacity in length where capacity is always >= 1 for an
	// open map. Every slot in buckets[i] satisfies hash(key)%capacity == i.
	buckets [][]Slot[K, V]
	// The number of filled slots across all buckets (i.e. the number of
	// elements in the map).
	used int
	// version is bumped on every structural mutation and captured by
	// iterators so that stale positions can be detected.
	version uint64
}

// New constructs a new, empty Map with a capacity of 1 bucket.
func New[K comparable, V any](options ...option[K, V]) *Map[K, V] {
	m := &Map[K, V]{}
	m.Init(options...)
	return m
}

// FromSeq constructs a Map from a sequence of key/value pairs. The sequence
// is consumed once. If a key appears more than once the first occurrence
// wins.
func FromSeq[K comparable, V any](seq iter.Seq2[K, V], options ...option[K, V]) *Map[K, V] {
	m := New[K, V](options...)
	for k, v := range seq {
		m.Insert(k, v)
	}
	return m
}

// Of constructs a Map from a literal list of entries. If a key appears more
// than once the first occurrence wins.
func Of[K comparable, V any](entries ...Entry[K, V]) *Map[K, V] {
	return FromEntries(entries)
}

// FromEntries is like Of, but additionally accepts options.
func FromEntries[K comparable, V any](entries []Entry[K, V], options ...option[K, V]) *Map[K, V] {
	m := New[K, V](options...)
	for _, e := range entries {
		m.Insert(e.Key, e.Value)
	}
	return m
}

// Init initializes a Map, discarding any previous contents. Iterators
// created before Init are invalidated. If the map was using an allocator
// that manually manages memory, Close should be called before Init.
func (m *Map[K, V]) Init(options ...option[K, V]) {
	*m = Map[K, V]{
		allocator: defaultAllocator[K, V]{},
		version:   m.version + 1,
	}
	for _, op := range options {
		op.apply(m)
	}
	if m.hash == nil {
		m.hash = RuntimeHash[K]()
	}
	if m.equal == nil {
		m.equal = defaultEqual[K]
	}
	m.buckets = m.allocator.AllocBuckets(1)
	m.checkInvariants()
}

// Close closes the map, releasing the bucket array back to its configured
// allocator. It is unnecessary to close a map using the default allocator.
// It is invalid to use a Map after it has been closed, though Close itself
// is idempotent.
func (m *Map[K, V]) Close() {
	if m.buckets != nil {
		m.allocator.FreeBuckets(m.buckets)
		m.buckets = nil
		m.used = 0
		m.version++
	}
	m.allocator = nil
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// Empty returns true if the map contains no entries.
func (m *Map[K, V]) Empty() bool {
	return m.used == 0
}

// HashFunction returns the hash function used by the map.
func (m *Map[K, V]) HashFunction() HashFunc[K] {
	return m.hash
}

// Insert inserts an entry into the map. If an entry with the same key
// already exists Insert does nothing: the first value inserted for a key is
// retained. Use Index to overwrite an existing value.
func (m *Map[K, V]) Insert(key K, value V) {
	b, i := m.lookup(key)
	if i >= 0 {
		if debug {
			fmt.Printf("insert(%v): exists bucket=%d offset=%d\n", key, b, i)
		}
		return
	}
	m.uncheckedInsert(b, key, value)
}

// Erase erases the entry corresponding to the specified key from the map.
// It is a noop to erase a non-existent key.
func (m *Map[K, V]) Erase(key K) {
	b, i := m.lookup(key)
	if i < 0 {
		if debug {
			fmt.Printf("erase(%v): not-found bucket=%d\n", key, b)
		}
		return
	}

	// Shift the tail of the bucket down to preserve insertion order and
	// zero the vacated slot so the GC can reclaim the key and value.
	s := m.buckets[b]
	copy(s[i:], s[i+1:])
	s[len(s)-1] = Slot[K, V]{}
	m.buckets[b] = s[:len(s)-1]
	m.used--
	m.version++

	if debug {
		fmt.Printf("erase(%v): bucket=%d offset=%d used=%d\n", key, b, i, m.used)
	}
	m.maybeResize()
	m.checkInvariants()
}

// Get retrieves the value from the map for the specified key, return
// ok=false if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	b, i := m.lookup(key)
	if i < 0 {
		return value, false
	}
	return m.buckets[b][i].value, true
}

// At returns the value for the specified key. If the key is not present an
// error wrapping ErrKeyNotFound is returned.
func (m *Map[K, V]) At(key K) (V, error) {
	v, ok := m.Get(key)
	if !ok {
		return v, fmt.Errorf("%w: %v", ErrKeyNotFound, key)
	}
	return v, nil
}

// Index returns a pointer to the value stored for key, first inserting the
// zero value of V if the key is not present. The pointer is valid until the
// next structural mutation of the map.
func (m *Map[K, V]) Index(key K) *V {
	b, i := m.lookup(key)
	if i < 0 {
		var zero V
		m.uncheckedInsert(b, key, zero)
		// The insertion may have resized the table.
		b, i = m.lookup(key)
	}
	return &m.buckets[b][i].value
}

// Find returns an iterator positioned at the entry for key, or End() if the
// key is not present.
func (m *Map[K, V]) Find(key K) Iterator[K, V] {
	b, i := m.lookup(key)
	if i < 0 {
		return m.End()
	}
	return Iterator[K, V]{m: m, bucket: b, offset: i, version: m.version}
}

// Clear deletes all entries from the map, resetting it to a single empty
// bucket. The previous bucket array is released to the allocator.
func (m *Map[K, V]) Clear() {
	m.allocator.FreeBuckets(m.buckets)
	m.buckets = m.allocator.AllocBuckets(1)
	m.used = 0
	m.version++
	m.checkInvariants()
}

// capacity returns the number of buckets in the map.
func (m *Map[K, V]) capacity() int {
	return len(m.buckets)
}

// bucketIndex returns the index of the bucket holding key.
func (m *Map[K, V]) bucketIndex(key K) int {
	return int(m.hash(key) % uint64(len(m.buckets)))
}

// lookup returns the bucket for key and the offset of key within that
// bucket, or -1 if the key is not present.
func (m *Map[K, V]) lookup(key K) (b, i int) {
	b = m.bucketIndex(key)
	for j := range m.buckets[b] {
		if m.equal(m.buckets[b][j].key, key) {
			return b, j
		}
	}
	return b, -1
}

// uncheckedInsert appends an entry known not to be in the table to bucket
// b. Used by Insert and Index after they have failed to find an existing
// entry.
func (m *Map[K, V]) uncheckedInsert(b int, key K, value V) {
	m.buckets[b] = append(m.buckets[b], Slot[K, V]{key: key, value: value})
	m.used++
	m.version++
	if debug {
		fmt.Printf("insert(%v): bucket=%d used=%d\n", key, b, m.used)
	}
	m.maybeResize()
	m.checkInvariants()
}

// maybeResize applies the resize policy. The load factor thresholds are
// checked for exact equality.
func (m *Map[K, V]) maybeResize() {
	capacity := m.capacity()
	if m.used*growLoad != capacity && m.used*shrinkLoad != capacity {
		return
	}
	m.resize(m.used * resizeFactor)
}

// resize allocates a bucket array with newCapacity buckets, relocates every
// entry into it, and releases the old bucket array.
func (m *Map[K, V]) resize(newCapacity int) {
	oldBuckets := m.buckets
	m.buckets = m.allocator.AllocBuckets(newCapacity)

	if debug {
		fmt.Printf("resize: capacity=%d->%d  used=%d\n", len(oldBuckets), newCapacity, m.used)
	}

	for i := range oldBuckets {
		for j := range oldBuckets[i] {
			s := &oldBuckets[i][j]
			b := m.bucketIndex(s.key)
			m.buckets[b] = append(m.buckets[b], *s)
		}
	}

	m.allocator.FreeBuckets(oldBuckets)
	m.version++
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		if len(m.buckets) < 1 {
			panic(fmt.Sprintf("invariant failed: capacity is %d", len(m.buckets)))
		}

		// Every slot must reside in the bucket selected by its hash, and
		// there must be at most one slot per key.
		var used int
		for b := range m.buckets {
			for i := range m.buckets[b] {
				s := &m.buckets[b][i]
				if want := m.bucketIndex(s.key); want != b {
					panic(fmt.Sprintf("invariant failed: slot(%d,%d): %v in bucket %d, expected %d\n%s",
						b, i, s.key, b, want, m.debugString()))
				}
				for j := i + 1; j < len(m.buckets[b]); j++ {
					if m.equal(s.key, m.buckets[b][j].key) {
						panic(fmt.Sprintf("invariant failed: slot(%d,%d): duplicate key %v at offset %d\n%s",
							b, i, s.key, j, m.debugString()))
					}
				}
				used++
			}
		}

		if used != m.used {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, m.used, m.debugString()))
		}
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  version=%d\n", len(m.buckets), m.used, m.version)
	for b := range m.buckets {
		if len(m.buckets[b]) == 0 {
			fmt.Fprintf(&buf, "  %4d: empty\n", b)
			continue
		}
		fmt.Fprintf(&buf, "  %4d:", b)
		for i := range m.buckets[b] {
			s := &m.buckets[b][i]
			fmt.Fprintf(&buf, " %v=%v", s.key, s.value)
		}
		buf.WriteString("\n")
	}
	fmt.Fprintf(&buf, "  %4d: end\n", len(m.buckets))
	return buf.String()
}
