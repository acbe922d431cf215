package allocator

import (
	"sync"
	"unsafe"
)

// bucket sizes for Pooled, mirroring the teacher's size-bucketed
// sync.Pool scheme in internal/queue/pool.go (there: 128KB/256KB/512KB/1MB
// I/O buffers; here: smaller buckets suited to attribution-tracked
// allocations, which are typically much smaller than block I/O requests).
const (
	bucket1k  = 1 << 10
	bucket8k  = 8 << 10
	bucket64k = 64 << 10
)

var globalBuckets = struct {
	p1k  sync.Pool
	p8k  sync.Pool
	p64k sync.Pool
}{
	p1k:  sync.Pool{New: func() any { b := make([]byte, bucket1k); return &b }},
	p8k:  sync.Pool{New: func() any { b := make([]byte, bucket8k); return &b }},
	p64k: sync.Pool{New: func() any { b := make([]byte, bucket64k); return &b }},
}

func bucketFor(size uintptr) (*sync.Pool, uintptr) {
	switch {
	case size <= bucket1k:
		return &globalBuckets.p1k, bucket1k
	case size <= bucket8k:
		return &globalBuckets.p8k, bucket8k
	default:
		return &globalBuckets.p64k, bucket64k
	}
}

// Pooled is an Allocator backed by size-bucketed sync.Pools, adapted from
// the teacher's GetBuffer/PutBuffer buffer pool (internal/queue/pool.go):
// requests larger than the largest bucket fall back to a direct make(),
// same as the teacher's pool handling its own overflow case. Pooled exists
// for workloads that repeatedly Alloc/Dealloc similar-sized regions under
// one usecase and want the GC pressure of System reduced without giving up
// attribution.
type Pooled struct {
	mu   sync.Mutex
	live map[uintptr]*pooledEntry
}

type pooledEntry struct {
	buf      *[]byte
	bucketSz uintptr
	pool     *sync.Pool // nil if this allocation overflowed every bucket
}

// NewPooled constructs a Pooled allocator.
func NewPooled() *Pooled {
	return &Pooled{live: make(map[uintptr]*pooledEntry)}
}

// Alloc implements Allocator.
func (p *Pooled) Alloc(size uintptr) (uintptr, bool) {
	if size == 0 {
		size = 1
	}

	var entry pooledEntry
	if size <= bucket64k {
		pool, bucketSz := bucketFor(size)
		buf := pool.Get().(*[]byte)
		entry = pooledEntry{buf: buf, bucketSz: bucketSz, pool: pool}
	} else {
		buf := make([]byte, size)
		entry = pooledEntry{buf: &buf, bucketSz: size}
	}

	ptr := pointerFromSlice(*entry.buf)

	p.mu.Lock()
	p.live[ptr] = &entry
	p.mu.Unlock()

	return ptr, true
}

// Dealloc implements Allocator, returning the buffer to its bucket pool
// (or dropping it, for an overflow allocation) exactly as PutBuffer does.
func (p *Pooled) Dealloc(ptr uintptr, _ uintptr) {
	p.mu.Lock()
	entry, ok := p.live[ptr]
	if ok {
		delete(p.live, ptr)
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	if entry.pool != nil {
		*entry.buf = (*entry.buf)[:entry.bucketSz]
		entry.pool.Put(entry.buf)
	}
}

// Live reports how many pooled allocations are currently outstanding.
func (p *Pooled) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

//go:noinline
func pointerFromSlice(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
