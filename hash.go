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
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

// HashFunc maps a key to an unsigned integer. A Map places key in bucket
// HashFunc(key) % capacity, so a HashFunc must be deterministic for the
// lifetime of the Map.
type HashFunc[K any] func(key K) uint64

// EqualFunc reports whether two keys are equal.
type EqualFunc[K any] func(a, b K) bool

func defaultEqual[K comparable](a, b K) bool {
	return a == b
}

// RuntimeHash returns a hash function for any comparable key type backed by
// hash/maphash, which uses the same hashing as Go's builtin map. Each call
// returns a function with a fresh random seed.
func RuntimeHash[K comparable]() HashFunc[K] {
	seed := maphash.MakeSeed()
	return func(key K) uint64 {
		return maphash.Comparable(seed, key)
	}
}

// StringHash hashes a string key using xxHash64.
func StringHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// IntegerHash is the identity hash for integer keys. Bucket placement is a
// pure function of the key, so sequential keys fill sequential buckets.
func IntegerHash[K constraints.Integer](key K) uint64 {
	return uint64(key)
}

// Fmix64Hash hashes integer keys with the 64-bit finalizer of MurmurHash3,
// which avalanches every input bit across the output.
func Fmix64Hash[K constraints.Integer](key K) uint64 {
	return fmix64(uint64(key))
}

func fmix64(k uint64) uint64 {
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	k *= 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	return k
}
