package memento

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Stage is the usecase enum shared by every test in this file.
type Stage uint32

const (
	StageNone Stage = iota
	StageLoadConfig
	StageProcessData
)

func (s Stage) Encode() uint32 { return uint32(s) }

type stageCodec struct{}

func (stageCodec) Decode(raw uint32) (Stage, bool) {
	if raw > uint32(StageProcessData) {
		return StageNone, false
	}
	return Stage(raw), true
}

func (stageCodec) Default() Stage { return StageNone }

func newTestTracker() (*Tracker[Stage], *MockAllocator, *MockRecorder[Stage]) {
	alloc := NewMockAllocator()
	rec := NewMockRecorder[Stage]()
	tracker := NewWithRecorder[Stage](stageCodec{}, rec, alloc, Config{})
	return tracker, alloc, rec
}

// S1: single-phase round-trip — alloc and dealloc inside one WithUsecase
// scope attribute both events to that usecase.
func TestS1SinglePhaseRoundTrip(t *testing.T) {
	tracker, _, rec := newTestTracker()

	guard, ok := tracker.WithUsecase(StageLoadConfig)
	require.True(t, ok)

	ptr, ok := tracker.Alloc(256)
	require.True(t, ok)
	tracker.Dealloc(ptr, 256)
	guard.Release()

	allocs, deallocs, _ := rec.Snapshot()
	require.Len(t, allocs, 1)
	require.Len(t, deallocs, 1)
	assert.Equal(t, StageLoadConfig, allocs[0].Tag)
	assert.Equal(t, uintptr(256), allocs[0].Size)
	assert.Equal(t, StageLoadConfig, deallocs[0].Tag)
}

// S2: nested attribution — an inner WithUsecase scope attributes its own
// allocation to the inner tag, and the outer scope resumes afterward.
func TestS2NestedAttribution(t *testing.T) {
	tracker, _, rec := newTestTracker()

	outer, ok := tracker.WithUsecase(StageLoadConfig)
	require.True(t, ok)

	ptrOuter, ok := tracker.Alloc(64)
	require.True(t, ok)

	inner, ok := tracker.WithUsecase(StageProcessData)
	require.True(t, ok)
	ptrInner, ok := tracker.Alloc(128)
	require.True(t, ok)
	inner.Release()

	ptrOuterAgain, ok := tracker.Alloc(32)
	require.True(t, ok)

	outer.Release()

	tracker.Dealloc(ptrOuter, 64)
	tracker.Dealloc(ptrInner, 128)
	tracker.Dealloc(ptrOuterAgain, 32)

	allocs, _, _ := rec.Snapshot()
	require.Len(t, allocs, 3)
	assert.Equal(t, StageLoadConfig, allocs[0].Tag)
	assert.Equal(t, StageProcessData, allocs[1].Tag)
	assert.Equal(t, StageLoadConfig, allocs[2].Tag)
}

// S3: unmatched free — a dealloc outside the allocating usecase's scope
// must still be attributed to the allocation-site tag, not the free-site.
func TestS3DeallocAttributedToAllocationSite(t *testing.T) {
	tracker, _, rec := newTestTracker()

	g, ok := tracker.WithUsecase(StageLoadConfig)
	require.True(t, ok)
	ptr, ok := tracker.Alloc(512)
	require.True(t, ok)
	g.Release()

	g2, ok := tracker.WithUsecase(StageProcessData)
	require.True(t, ok)
	tracker.Dealloc(ptr, 512)
	g2.Release()

	_, deallocs, _ := rec.Snapshot()
	require.Len(t, deallocs, 1)
	assert.Equal(t, StageLoadConfig, deallocs[0].Tag, "dealloc must be attributed to the allocation site, not the free site")
}

// S4: forced reentrancy — a recorder that calls back into the tracker from
// inside OnAlloc must see its nested call dropped with ContentionRefCell,
// while the outer call still succeeds normally.
func TestS4ForcedReentrancy(t *testing.T) {
	tracker, _, rec := newTestTracker()

	var nestedOK bool
	rec.OnAllocHook = func(tag Stage, size uintptr) {
		_, ok := tracker.Alloc(1)
		nestedOK = ok
	}

	g, ok := tracker.WithUsecase(StageLoadConfig)
	require.True(t, ok)
	ptr, ok := tracker.Alloc(16)
	require.True(t, ok, "the outer Alloc call must still succeed even though its recorder reentered")
	g.Release()
	tracker.Dealloc(ptr, 16)

	assert.True(t, nestedOK, "Alloc itself always reports the underlying allocator's result, regardless of attribution")

	allocs, _, errs := rec.Snapshot()
	// The outer alloc is recorded; the nested one is dropped before ever
	// reaching OnAlloc, so only one AllocCall is observed.
	require.Len(t, allocs, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, ContentionRefCell, errs[0].Kind)
}

// S5: flush clears stats — the bundled StatsRecorder must report the tag's
// Stat to the flush callback and then zero its Stat table.
func TestS5FlushClearsStats(t *testing.T) {
	codec := stageCodec{}
	rec := NewStatsRecorder[Stage](codec, 0)
	tracker := NewWithRecorder[Stage](codec, rec, NewMockAllocator(), Config{})

	g, _ := tracker.WithUsecase(StageLoadConfig)
	ptr, _ := tracker.Alloc(100)
	g.Release()
	tracker.Dealloc(ptr, 100)

	before := rec.Get(StageLoadConfig)
	assert.Equal(t, int64(100), before.Total)

	var flushed []Stat
	rec.Flush(func(_ Stage, s Stat) { flushed = append(flushed, s) }, func(ErrorKind, uint64) {})
	require.Len(t, flushed, 1)

	after := rec.Get(StageLoadConfig)
	assert.Equal(t, Stat{}, after, "Flush must clear the stats table")
}

// S6: bad decode — a raw tag that the Codec cannot decode is attributed to
// the default usecase and reported as BadBytes, rather than dropped, both
// at the allocation site and (independently) at the later free site.
func TestS6BadDecodeFallsBackToDefault(t *testing.T) {
	tracker, _, rec := newTestTracker()

	// Stage(99) is outside stageCodec.Decode's valid range ([0,
	// StageProcessData]); Go's type system does not stop us acquiring a
	// goroutine-local scope with it, so this forces a genuinely
	// undecodable raw tag through the public API.
	g, ok := tracker.WithUsecase(Stage(99))
	require.True(t, ok)
	ptr, ok := tracker.Alloc(16)
	require.True(t, ok)
	g.Release()

	allocs, _, errs := rec.Snapshot()
	require.Len(t, allocs, 1)
	assert.Equal(t, StageNone, allocs[0].Tag, "Alloc must substitute the default tag on decode failure")
	require.Len(t, errs, 1)
	assert.Equal(t, BadBytes, errs[0].Kind)

	// The pointer map still holds the raw (undecodable) tag, so freeing it
	// from a *different*, decodable usecase exercises Dealloc's own,
	// independent decode-failure branch.
	g2, ok := tracker.WithUsecase(StageLoadConfig)
	require.True(t, ok)
	tracker.Dealloc(ptr, 16)
	g2.Release()

	_, deallocs, errs := rec.Snapshot()
	require.Len(t, deallocs, 1)
	assert.Equal(t, StageNone, deallocs[0].Tag, "Dealloc must substitute the default tag on decode failure")
	require.Len(t, errs, 2)
	assert.Equal(t, BadBytes, errs[1].Kind)
}

func TestAllocReturnsFalseWhenUnderlyingAllocatorFails(t *testing.T) {
	tracker, alloc, rec := newTestTracker()
	alloc.SetFailAlloc(true)

	_, ok := tracker.Alloc(64)
	assert.False(t, ok)

	allocs, _, _ := rec.Snapshot()
	assert.Empty(t, allocs, "a failed underlying allocation must never be recorded")
}

func TestWithUsecaseFailsOnReentryFromRecorderCallback(t *testing.T) {
	tracker, _, rec := newTestTracker()

	var nestedOK bool
	rec.OnAllocHook = func(Stage, uintptr) {
		_, nestedOK = tracker.WithUsecase(StageProcessData)
	}

	g, ok := tracker.WithUsecase(StageLoadConfig)
	require.True(t, ok)
	_, ok = tracker.Alloc(16)
	require.True(t, ok)
	g.Release()

	assert.False(t, nestedOK)
}

func TestNilGuardReleaseIsNoop(t *testing.T) {
	var g *Guard
	assert.NotPanics(t, func() { g.Release() })
}

func TestPointerMapBalance(t *testing.T) {
	tracker, _, _ := newTestTracker()

	g, _ := tracker.WithUsecase(StageLoadConfig)
	var ptrs []uintptr
	for i := 0; i < 10; i++ {
		ptr, ok := tracker.Alloc(8)
		require.True(t, ok)
		ptrs = append(ptrs, ptr)
	}
	g.Release()

	assert.Equal(t, 10, tracker.PointerMapLen())

	for _, ptr := range ptrs {
		tracker.Dealloc(ptr, 8)
	}
	assert.Equal(t, 0, tracker.PointerMapLen())
}

func TestWithRecorderRunsUnderSynchronizedSection(t *testing.T) {
	tracker, _, rec := newTestTracker()

	out, err := WithRecorder[Stage, int](tracker, func(r Recorder[Stage]) (int, error) {
		assert.Same(t, rec, r)
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestWithRecorderFailsWhenCalledReentrantly(t *testing.T) {
	tracker, _, _ := newTestTracker()

	_, err := WithRecorder[Stage, int](tracker, func(Recorder[Stage]) (int, error) {
		_, innerErr := WithRecorder[Stage, int](tracker, func(Recorder[Stage]) (int, error) {
			return 0, nil
		})
		assert.Error(t, innerErr)
		assert.True(t, IsKind(innerErr, ContentionRefCell))
		return 0, nil
	})
	require.NoError(t, err)
}

// WithRecorder wraps whatever error f returns in memento context via
// WrapError, so a plain (non-*Error) error from caller code still surfaces
// with an Op and a Kind, exercising WrapError's non-*Error branch.
func TestWithRecorderWrapsPlainError(t *testing.T) {
	tracker, _, _ := newTestTracker()
	boom := errors.New("underlying recorder failure")

	_, err := WithRecorder[Stage, int](tracker, func(Recorder[Stage]) (int, error) {
		return 0, boom
	})

	require.Error(t, err)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "WithRecorder", me.Op)
	assert.ErrorIs(t, err, boom)
}

// WithRecorder also preserves an already-structured *Error's own Kind
// instead of flattening it to the default, when f returns one directly.
func TestWithRecorderPreservesWrappedErrorKind(t *testing.T) {
	tracker, _, _ := newTestTracker()

	_, err := WithRecorder[Stage, int](tracker, func(Recorder[Stage]) (int, error) {
		return 0, NewError("flush", BadBytes, nil)
	})

	require.Error(t, err)
	assert.True(t, IsKind(err, BadBytes))
}

func TestConcurrentUsecasesDoNotCrossAttribute(t *testing.T) {
	tracker, _, rec := newTestTracker()

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag := StageLoadConfig
			if i%2 == 0 {
				tag = StageProcessData
			}
			g, ok := tracker.WithUsecase(tag)
			require.True(t, ok)
			ptr, ok := tracker.Alloc(8)
			require.True(t, ok)
			tracker.Dealloc(ptr, 8)
			g.Release()
		}(i)
	}
	wg.Wait()

	allocs, deallocs, _ := rec.Snapshot()
	assert.Len(t, allocs, n)
	assert.Len(t, deallocs, n)
	for _, a := range allocs {
		assert.Contains(t, []Stage{StageLoadConfig, StageProcessData}, a.Tag)
	}
}

func TestNewConstructsUsableTracker(t *testing.T) {
	tracker := New[Stage](stageCodec{})
	g, ok := tracker.WithUsecase(StageProcessData)
	require.True(t, ok)
	ptr, ok := tracker.Alloc(32)
	require.True(t, ok)
	tracker.Dealloc(ptr, 32)
	g.Release()
}
