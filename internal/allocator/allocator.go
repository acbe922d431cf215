// Package allocator provides the pluggable "underlying allocator" collaborator
// from spec.md §2/§4.E: the alloc(layout)->raw_ptr / dealloc(raw_ptr,layout)
// pair a Tracker wraps. Go has no manual free for ordinary heap objects, so
// every implementation here is responsible for pinning its own memory (so
// the GC doesn't reclaim it while "allocated") and releasing the pin on
// Dealloc.
package allocator

// Allocator is the collaborator spec.md calls out as out of scope but whose
// contract it specifies: allocate size bytes and return the raw address, or
// release a previously allocated address of the given size.
type Allocator interface {
	// Alloc returns the address of a size-byte region, or ok == false if
	// the allocation failed (mirrors a null return in spec.md's model).
	Alloc(size uintptr) (ptr uintptr, ok bool)
	// Dealloc releases a region previously returned by Alloc. Passing a
	// ptr/size pair that was not returned by Alloc is undefined, exactly
	// as with a real allocator.
	Dealloc(ptr uintptr, size uintptr)
}
