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

// option provide an interface to do work on Map while it is being created.
type option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hashOption[K comparable, V any] struct {
	hash HashFunc[K]
}

func (op hashOption[K, V]) apply(m *Map[K, V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[K,V].
// The hash function must be deterministic and must return equal values for
// keys that are equal under the Map's equality.
func WithHash[K comparable, V any](hash HashFunc[K]) option[K, V] {
	return hashOption[K, V]{hash}
}

type equalOption[K comparable, V any] struct {
	equal EqualFunc[K]
}

func (op equalOption[K, V]) apply(m *Map[K, V]) {
	m.equal = op.equal
}

// WithEqual is an option to specify the key equality to use for a
// Map[K,V]. The default is ==. If equal(a, b) then hash(a) must equal
// hash(b).
func WithEqual[K comparable, V any](equal EqualFunc[K]) option[K, V] {
	return equalOption[K, V]{equal}
}

// Allocator specifies an interface for allocating and releasing the bucket
// arrays used by a Map. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// A Map allocates a new bucket array on creation, on every resize and on
// Clear, and releases the previous array immediately afterwards. If the
// allocator is manually managing memory then Map.Close must be called in
// order to ensure the final array is released.
type Allocator[K comparable, V any] interface {
	// AllocBuckets should return a slice equivalent to
	// make([][]Slot[K,V], n).
	AllocBuckets(n int) [][]Slot[K, V]

	// FreeBuckets can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocBuckets. The Map does not reference v after the call.
	FreeBuckets(v [][]Slot[K, V])
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) AllocBuckets(n int) [][]Slot[K, V] {
	return make([][]Slot[K, V], n)
}

func (defaultAllocator[K, V]) FreeBuckets(v [][]Slot[K, V]) {
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}
