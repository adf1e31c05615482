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

package chainmap

import (
	"fmt"
	"iter"
)

// Iterator is a position within a Map. It is a lightweight value that is
// copied freely. The position is either a slot, identified by its bucket
// and offset within the bucket, or the end position which lies at the
// bucket index one past the last bucket.
//
// An Iterator is invalidated by any structural mutation of its Map. Using
// an invalidated Iterator panics. Typical use:
//
//	for it := m.Begin(); !it.Done(); it = it.Next() {
//	  fmt.Printf("%v: %v\n", it.Key(), it.Value())
//	}
type Iterator[K comparable, V any] struct {
	m       *Map[K, V]
	bucket  int
	offset  int
	version uint64
}

// Begin returns an iterator positioned at the first entry of the map, or
// End() if the map is empty.
func (m *Map[K, V]) Begin() Iterator[K, V] {
	it := Iterator[K, V]{m: m, version: m.version}
	return it.skipEmpty()
}

// End returns the end position of the map.
func (m *Map[K, V]) End() Iterator[K, V] {
	return Iterator[K, V]{m: m, bucket: len(m.buckets), version: m.version}
}

// Done returns true if the iterator is at the end position.
func (it Iterator[K, V]) Done() bool {
	it.check("Done")
	return it.bucket >= len(it.m.buckets)
}

// Next returns an iterator positioned at the entry following it. Advancing
// past the last entry yields the end position. Advancing the end position
// panics.
func (it Iterator[K, V]) Next() Iterator[K, V] {
	it.checkEntry("Next")
	it.offset++
	return it.skipEmpty()
}

// Equal returns true if it and other refer to the same position of the
// same version of the same map.
func (it Iterator[K, V]) Equal(other Iterator[K, V]) bool {
	return it == other
}

// Key returns the key at the iterator's position.
func (it Iterator[K, V]) Key() K {
	return it.slot("Key").key
}

// Value returns the value at the iterator's position.
func (it Iterator[K, V]) Value() V {
	return it.slot("Value").value
}

// SetValue replaces the value at the iterator's position. The key is
// unchanged and the map is not structurally modified, so it remains valid.
func (it Iterator[K, V]) SetValue(value V) {
	it.slot("SetValue").value = value
}

// Const returns a read-only view of the iterator's position.
func (it Iterator[K, V]) Const() ConstIterator[K, V] {
	return ConstIterator[K, V]{it: it}
}

// skipEmpty advances the iterator past exhausted and empty buckets. The
// scan stops at an entry or, at the latest, at the end position.
func (it Iterator[K, V]) skipEmpty() Iterator[K, V] {
	buckets := it.m.buckets
	for it.bucket < len(buckets) && it.offset >= len(buckets[it.bucket]) {
		it.bucket++
		it.offset = 0
	}
	if debug {
		fmt.Printf("iter: bucket=%d offset=%d\n", it.bucket, it.offset)
	}
	return it
}

func (it Iterator[K, V]) check(op string) {
	if it.m == nil {
		panic(fmt.Sprintf("chainmap: Iterator.%s called on zero Iterator", op))
	}
	if it.version != it.m.version {
		panic(fmt.Sprintf("chainmap: Iterator.%s called on invalidated iterator (version %d, map version %d)",
			op, it.version, it.m.version))
	}
}

func (it Iterator[K, V]) checkEntry(op string) {
	it.check(op)
	if it.bucket >= len(it.m.buckets) {
		panic(fmt.Sprintf("chainmap: Iterator.%s called on end iterator", op))
	}
}

func (it Iterator[K, V]) slot(op string) *Slot[K, V] {
	it.checkEntry(op)
	return &it.m.buckets[it.bucket][it.offset]
}

// ConstIterator is a read-only Iterator.
type ConstIterator[K comparable, V any] struct {
	it Iterator[K, V]
}

// Done returns true if the iterator is at the end position.
func (c ConstIterator[K, V]) Done() bool { return c.it.Done() }

// Next returns an iterator positioned at the entry following c.
func (c ConstIterator[K, V]) Next() ConstIterator[K, V] { return ConstIterator[K, V]{it: c.it.Next()} }

// Equal returns true if c and other refer to the same position.
func (c ConstIterator[K, V]) Equal(other ConstIterator[K, V]) bool { return c.it.Equal(other.it) }

// Key returns the key at the iterator's position.
func (c ConstIterator[K, V]) Key() K { return c.it.Key() }

// Value returns the value at the iterator's position.
func (c ConstIterator[K, V]) Value() V { return c.it.Value() }

// All calls yield sequentially for each key and value present in the map.
// If yield returns false, iteration stops. The order is the bucket order
// and is unspecified. The map must not be structurally mutated during
// iteration; doing so panics. Values may be updated through Index.
//
// All conforms to iter.Seq2, so the map can be ranged over:
//
//	for k, v := range m.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	for it := m.Begin(); !it.Done(); it = it.Next() {
		if !yield(it.Key(), it.Value()) {
			return
		}
	}
}

// Keys returns an iterator over the keys of the map.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.All(func(k K, _ V) bool {
			return yield(k)
		})
	}
}

// Values returns an iterator over the values of the map.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		m.All(func(_ K, v V) bool {
			return yield(v)
		})
	}
}

// View is a read-only handle on a Map. It supports lookups and iteration
// but no mutation.
type View[K comparable, V any] struct {
	m *Map[K, V]
}

// View returns a read-only handle on m.
func (m *Map[K, V]) View() View[K, V] {
	return View[K, V]{m: m}
}

// Len returns the number of entries in the map.
func (v View[K, V]) Len() int { return v.m.Len() }

// Empty returns true if the map contains no entries.
func (v View[K, V]) Empty() bool { return v.m.Empty() }

// Get retrieves the value for key, returning ok=false if it is not present.
func (v View[K, V]) Get(key K) (V, bool) { return v.m.Get(key) }

// At returns the value for key or an error wrapping ErrKeyNotFound.
func (v View[K, V]) At(key K) (V, error) { return v.m.At(key) }

// Find returns an iterator positioned at key, or End() if not present.
func (v View[K, V]) Find(key K) ConstIterator[K, V] { return v.m.Find(key).Const() }

// Begin returns an iterator positioned at the first entry.
func (v View[K, V]) Begin() ConstIterator[K, V] { return v.m.Begin().Const() }

// End returns the end position.
func (v View[K, V]) End() ConstIterator[K, V] { return v.m.End().Const() }

// All calls yield sequentially for each key and value present in the map.
func (v View[K, V]) All(yield func(key K, value V) bool) { v.m.All(yield) }
