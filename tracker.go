// Package memento is an in-process memory-attribution layer. It wraps an
// allocator and, for every tracked allocation and deallocation, attributes
// the event to whatever UseCase the calling goroutine is currently inside,
// accumulating per-usecase statistics (current bytes outstanding, peak
// bytes, total bytes ever allocated).
//
// Because Go gives no way to transparently intercept every allocation the
// runtime makes (unlike Rust's #[global_allocator]), callers opt in
// explicitly: construct a Tracker, call WithUsecase to scope a phase of
// work, and route the allocations you want attributed through Tracker.Alloc
// / Tracker.Dealloc instead of (or in addition to) make(). See SPEC_FULL.md
// §0 for the full rationale.
package memento

import (
	"sync/atomic"

	"github.com/ehrlich-b/memento/internal/allocator"
	"github.com/ehrlich-b/memento/internal/attribution"
	"github.com/ehrlich-b/memento/internal/errkind"
	"github.com/ehrlich-b/memento/internal/logging"
	"github.com/ehrlich-b/memento/internal/ptrmap"
)

// Config configures a Tracker. The zero value is valid: it selects the
// default pointer-map shard count and disables logging. DefaultConfig is the
// same except that it sets Logger to logging.Default(); mirrors the teacher's
// DeviceParams/DefaultParams shape (backend.go).
type Config struct {
	// PointerMapShards sizes the concurrent pointer->tag table. <= 0
	// selects a package default.
	PointerMapShards int
	// Logger receives cold-path diagnostics only (construction, and the
	// first occurrence of each error kind) — never the hot Alloc/Dealloc
	// path. Nil disables logging.
	Logger *logging.Logger
}

// DefaultConfig returns a Config with sensible defaults, in the same spirit
// as the teacher's backend.DefaultParams.
func DefaultConfig() Config {
	return Config{PointerMapShards: 0, Logger: logging.Default()}
}

// Tracker is the allocator shim of spec.md §4.E: it wraps an underlying
// Allocator and, on every Alloc/Dealloc, attributes the event to the
// calling goroutine's current usecase under a non-reentrancy discipline.
type Tracker[U UseCase] struct {
	codec    Codec[U]
	recorder Recorder[U]
	alloc    allocator.Allocator
	cell     *attribution.Cell
	ptrs     *ptrmap.Map
	logger   *logging.Logger

	loggedOnce [errkind.NumKinds]atomic.Bool
}

// New constructs a Tracker with the bundled StatsRecorder over a System
// (plain Go heap) allocator — the equivalent of the Rust crate's
// `Alloc::new()` shortcut for `Alloc::new_with(StatsRecorder::new(), System)`.
func New[U UseCase](codec Codec[U]) *Tracker[U] {
	cfg := DefaultConfig()
	rec := NewStatsRecorder[U](codec, 0)
	return NewWithRecorder[U](codec, rec, allocator.NewSystem(), cfg)
}

// NewWithRecorder constructs a Tracker with a caller-supplied recorder and
// underlying allocator, the equivalent of `Alloc::new_with`.
func NewWithRecorder[U UseCase](codec Codec[U], recorder Recorder[U], alloc allocator.Allocator, cfg Config) *Tracker[U] {
	t := &Tracker[U]{
		codec:    codec,
		recorder: recorder,
		alloc:    alloc,
		cell:     attribution.NewCell(),
		ptrs:     ptrmap.New(cfg.PointerMapShards),
		logger:   cfg.Logger,
	}
	if t.logger != nil {
		t.logger.Debugf("memento: tracker constructed")
	}
	return t
}

// Guard is a scoped handle over one WithUsecase acquisition (spec.md's
// "Guard"). It must be released on the goroutine that created it; Release
// restores whatever usecase was active before the Guard was acquired.
type Guard struct {
	inner *attribution.Guard
}

// Release restores the prior usecase. Safe to call on a nil Guard (no-op),
// so callers can unconditionally `defer guard.Release()` even when
// WithUsecase returned ok == false (and therefore a nil Guard).
func (g *Guard) Release() {
	if g == nil || g.inner == nil {
		return
	}
	g.inner.Release()
}

func mapErrKind(k attribution.ErrKind) ErrorKind {
	switch k {
	case attribution.ErrKindRefCell:
		return ContentionRefCell
	default:
		return ContentionThreadLocal
	}
}

// recordContention reports a failed synchronized-section entry to the
// recorder and, the first time a given kind is seen by this Tracker, to the
// logger — with the operation, the size (if any) and the kind attached as
// structured fields rather than baked into the message.
func (t *Tracker[U]) recordContention(op string, k attribution.ErrKind, size *uintptr) {
	kind := mapErrKind(k)
	t.recorder.OnError(kind, size)
	if t.logger != nil && t.loggedOnce[kind].CompareAndSwap(false, true) {
		l := t.logger.WithOp(op)
		if size != nil {
			l = l.WithSize(*size)
		}
		l.Debug("memento: dropped an event", "kind", kind.String())
	}
}

// logBadBytes reports, the first time it's ever seen, a raw tag that failed
// to decode — with the offending raw value and size attached as fields.
func (t *Tracker[U]) logBadBytes(op string, raw uint32, size uintptr) {
	if t.logger != nil && t.loggedOnce[BadBytes].CompareAndSwap(false, true) {
		t.logger.WithOp(op).WithTag(raw).WithSize(size).Debug("memento: raw tag failed to decode, using default")
	}
}

// WithUsecase switches the calling goroutine's current usecase to tag for
// as long as the returned Guard is alive. Nested acquisitions stack LIFO:
// each Guard remembers exactly the value that was active before it.
//
// WithUsecase (and therefore the Guard it returns) is itself a
// synchronized-section operation; calling it from inside a Recorder
// callback on the same goroutine will fail the same way Alloc/Dealloc do,
// returning ok == false. That failure is reported to the recorder as
// ContentionRefCell/ContentionThreadLocal exactly like any other dropped
// event.
func (t *Tracker[U]) WithUsecase(tag U) (guard *Guard, ok bool) {
	g, kind, acquired := t.cell.Acquire(tag.Encode())
	if !acquired {
		t.recordContention("WithUsecase", kind, nil)
		return nil, false
	}
	return &Guard{inner: g}, true
}

// Alloc forwards to the underlying allocator first, then — if it
// succeeded — attributes the allocation to the calling goroutine's current
// usecase (or the default tag, if none is active) and, if the recorder asks
// for it, tracks the pointer so a later Dealloc can be attributed too. The
// forward-first ordering is deliberate: spec.md §4.E requires it so that a
// null/failed allocation is never recorded.
func (t *Tracker[U]) Alloc(size uintptr) (ptr uintptr, ok bool) {
	ptr, ok = t.alloc.Alloc(size)
	if !ok {
		return 0, false
	}

	_, kind, entered := attribution.Borrow(t.cell, func(current *uint32) struct{} {
		raw := t.codec.Default().Encode()
		if current != nil {
			raw = *current
		}

		tag, decOK := t.codec.Decode(raw)
		if !decOK {
			tag = t.codec.Default()
			t.recorder.OnError(BadBytes, &size)
			t.logBadBytes("Alloc", raw, size)
		}

		if t.recorder.OnAlloc(tag, size) {
			t.ptrs.Insert(ptr, raw)
		}
		return struct{}{}
	})
	if !entered {
		t.recordContention("Alloc", kind, &size)
	}

	return ptr, true
}

// Dealloc removes ptr's pointer-map entry (if it was tracked), informs the
// recorder under the tag that entry held, and unconditionally forwards to
// the underlying allocator's Dealloc — in that order, so the pointer is
// still validly mapped while the lookup happens (spec.md §4.E).
func (t *Tracker[U]) Dealloc(ptr uintptr, size uintptr) {
	_, kind, entered := attribution.Borrow(t.cell, func(_ *uint32) struct{} {
		raw, existed := t.ptrs.Remove(ptr)
		if !existed {
			return struct{}{}
		}

		tag, decOK := t.codec.Decode(raw)
		if !decOK {
			tag = t.codec.Default()
			t.recorder.OnError(BadBytes, &size)
			t.logBadBytes("Dealloc", raw, size)
		}
		t.recorder.OnDealloc(tag, size)
		return struct{}{}
	})
	if !entered {
		t.recordContention("Dealloc", kind, &size)
	}

	t.alloc.Dealloc(ptr, size)
}

// borrowResult lets WithRecorder smuggle an (R, error) pair through
// attribution.Borrow, which is itself generic only over a single result
// type.
type borrowResult[R any] struct {
	val R
	err error
}

// WithRecorder runs f with the Tracker's recorder inside the synchronized
// section, so f cannot observe a concurrent mutation of the recorder by the
// current goroutine and so a reentrant call is suppressed the same way
// Alloc/Dealloc are. It is the one place this library returns a contention
// error directly to the caller, because recording the drop would itself
// require the section it failed to enter.
//
// WithRecorder is a package-level function rather than a method because Go
// methods cannot introduce additional type parameters beyond the receiver's.
func WithRecorder[U UseCase, R any](t *Tracker[U], f func(Recorder[U]) (R, error)) (R, error) {
	out, kind, entered := attribution.Borrow(t.cell, func(_ *uint32) borrowResult[R] {
		v, err := f(t.recorder)
		return borrowResult[R]{val: v, err: err}
	})
	if !entered {
		var zero R
		return zero, NewError("WithRecorder", mapErrKind(kind), nil)
	}
	if out.err != nil {
		var zero R
		return zero, WrapError("WithRecorder", out.err)
	}
	return out.val, nil
}

// PointerMapLen reports how many pointers are currently tracked. Exposed
// for tests asserting the pointer-map-balance invariant (spec.md §8.6).
func (t *Tracker[U]) PointerMapLen() int {
	return t.ptrs.Len()
}
