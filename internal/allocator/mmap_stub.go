//go:build !linux

package allocator

// Mmap is unavailable outside Linux in this build; construct it and every
// Alloc call will report failure rather than panicking, the same fallback
// shape as the teacher's iouring_stub.go for platforms without the real
// backend.
type Mmap struct{}

// NewMmap constructs a stub Mmap allocator.
func NewMmap() *Mmap { return &Mmap{} }

// Alloc always fails on this platform.
func (a *Mmap) Alloc(uintptr) (uintptr, bool) { return 0, false }

// Dealloc is a no-op on this platform.
func (a *Mmap) Dealloc(uintptr, uintptr) {}

// Live always reports zero on this platform.
func (a *Mmap) Live() int { return 0 }
