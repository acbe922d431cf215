package memento

import (
	"sync"

	"github.com/ehrlich-b/memento/internal/allocator"
)

// MockAllocator is a deterministic, in-memory Allocator for tests: instead
// of real addresses it hands out small sequential integers, so tests don't
// need unsafe pointer arithmetic to exercise Tracker.Alloc/Dealloc. It
// mirrors the teacher's NewMockBackend: exported, safe for concurrent test
// use, and tracks call counts for assertions.
type MockAllocator struct {
	mu        sync.Mutex
	next      uintptr
	live      map[uintptr]uintptr // ptr -> size
	allocs    int
	deallocs  int
	failAlloc bool
}

// NewMockAllocator constructs an empty MockAllocator.
func NewMockAllocator() *MockAllocator {
	return &MockAllocator{next: 1, live: make(map[uintptr]uintptr)}
}

// Alloc implements allocator.Allocator.
func (m *MockAllocator) Alloc(size uintptr) (uintptr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocs++
	if m.failAlloc {
		return 0, false
	}
	ptr := m.next
	m.next++
	m.live[ptr] = size
	return ptr, true
}

// Dealloc implements allocator.Allocator.
func (m *MockAllocator) Dealloc(ptr uintptr, _ uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deallocs++
	delete(m.live, ptr)
}

// SetFailAlloc makes every subsequent Alloc call fail, simulating an
// out-of-memory underlying allocator (spec.md §4.E step 1: "If it returns
// null, return null; do not record.").
func (m *MockAllocator) SetFailAlloc(fail bool) {
	m.mu.Lock()
	m.failAlloc = fail
	m.mu.Unlock()
}

// Counts returns the number of Alloc and Dealloc calls observed so far.
func (m *MockAllocator) Counts() (allocs, deallocs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocs, m.deallocs
}

// Live returns the number of allocations the mock believes are still live.
func (m *MockAllocator) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// MockRecorder is a Recorder that records every call it received, for tests
// asserting exactly what a Tracker reported. Like MockAllocator, it mirrors
// the teacher's call-tracking MockBackend.
type MockRecorder[U UseCase] struct {
	mu sync.Mutex

	AllocCalls   []AllocCall[U]
	DeallocCalls []DeallocCall[U]
	ErrorCalls   []ErrorCall

	// Track, if set, is returned from OnAlloc; defaults to true.
	Track bool
	// OnAllocHook, if set, runs inside OnAlloc before recording the call
	// and before consulting Track — used to simulate a recorder whose
	// OnAlloc itself triggers a nested Tracker operation (spec.md §8 S4,
	// "forced reentrancy").
	OnAllocHook func(tag U, size uintptr)
}

// AllocCall is one recorded OnAlloc invocation.
type AllocCall[U UseCase] struct {
	Tag  U
	Size uintptr
}

// DeallocCall is one recorded OnDealloc invocation.
type DeallocCall[U UseCase] struct {
	Tag  U
	Size uintptr
}

// ErrorCall is one recorded OnError invocation.
type ErrorCall struct {
	Kind ErrorKind
	Size *uintptr
}

// NewMockRecorder constructs a MockRecorder that tracks every allocation by
// default.
func NewMockRecorder[U UseCase]() *MockRecorder[U] {
	return &MockRecorder[U]{Track: true}
}

// OnAlloc implements Recorder.
func (m *MockRecorder[U]) OnAlloc(tag U, size uintptr) bool {
	if m.OnAllocHook != nil {
		m.OnAllocHook(tag, size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AllocCalls = append(m.AllocCalls, AllocCall[U]{Tag: tag, Size: size})
	return m.Track
}

// OnDealloc implements Recorder.
func (m *MockRecorder[U]) OnDealloc(tag U, size uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeallocCalls = append(m.DeallocCalls, DeallocCall[U]{Tag: tag, Size: size})
}

// OnError implements Recorder.
func (m *MockRecorder[U]) OnError(kind ErrorKind, size *uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorCalls = append(m.ErrorCalls, ErrorCall{Kind: kind, Size: size})
}

// Snapshot returns copies of the recorded call slices, safe to range over
// without racing a concurrently-running Tracker.
func (m *MockRecorder[U]) Snapshot() (allocs []AllocCall[U], deallocs []DeallocCall[U], errs []ErrorCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	allocs = append(allocs, m.AllocCalls...)
	deallocs = append(deallocs, m.DeallocCalls...)
	errs = append(errs, m.ErrorCalls...)
	return
}

var (
	_ Recorder[fakeUseCase] = (*MockRecorder[fakeUseCase])(nil)
	_ allocator.Allocator   = (*MockAllocator)(nil)
)
