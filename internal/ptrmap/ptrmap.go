// Package ptrmap implements the process-wide pointer->tag table (spec.md
// §4.D): a concurrent map from allocated-address to the 32-bit usecase tag
// that was active when the address was handed out, so a later Dealloc call
// can attribute the free back to its allocation-site tag.
//
// The sharding scheme is the same one the teacher's backend.Memory type uses
// to keep lock contention low across many concurrent I/O shards
// (backend/mem.go): a fixed number of mutex-guarded buckets, the address
// hashed into one of them.
package ptrmap

import "sync"

const defaultShards = 64

// Map is a sharded concurrent mapping from pointer address to tag.
type Map struct {
	shards []shard
	mask   uint64
}

type shard struct {
	mu sync.Mutex
	m  map[uintptr]uint32
}

// New constructs a Map with shardCount shards (rounded up to the next power
// of two). shardCount <= 0 selects a sensible default.
func New(shardCount int) *Map {
	if shardCount <= 0 {
		shardCount = defaultShards
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}

	shards := make([]shard, n)
	for i := range shards {
		shards[i].m = make(map[uintptr]uint32)
	}
	return &Map{shards: shards, mask: uint64(n - 1)}
}

func (m *Map) shardFor(ptr uintptr) *shard {
	// Pointers are word-aligned in practice; shifting drops the low bits
	// that would otherwise collapse every shard to the same bucket.
	h := uint64(ptr) >> 4
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return &m.shards[h&m.mask]
}

// Insert records ptr -> tag. A duplicate insert for an already-tracked
// pointer overwrites the previous tag; spec.md notes this should not happen
// given a well-behaved underlying allocator, but tolerating it costs
// nothing.
func (m *Map) Insert(ptr uintptr, tag uint32) {
	s := m.shardFor(ptr)
	s.mu.Lock()
	s.m[ptr] = tag
	s.mu.Unlock()
}

// Remove deletes and returns the tag recorded for ptr, if any.
func (m *Map) Remove(ptr uintptr) (tag uint32, ok bool) {
	s := m.shardFor(ptr)
	s.mu.Lock()
	tag, ok = s.m[ptr]
	if ok {
		delete(s.m, ptr)
	}
	s.mu.Unlock()
	return tag, ok
}

// Len returns the number of currently tracked pointers. Used by tests to
// assert the pointer-map-balance invariant (spec.md §8.6): at steady state
// with no outstanding tracked allocations, Len() == 0.
func (m *Map) Len() int {
	n := 0
	for i := range m.shards {
		m.shards[i].mu.Lock()
		n += len(m.shards[i].m)
		m.shards[i].mu.Unlock()
	}
	return n
}
