package memento

// UseCase is a finite, user-defined tag describing what the application is
// currently doing (spec.md §4.A). Usually implemented by a flat, C-style
// enum type. The encoding must be stable for the lifetime of the process
// and total: every value of the type must produce a uint32.
//
// Example:
//
//	type Stage uint32
//
//	const (
//		StageUnknown Stage = iota
//		StageLoadConfig
//		StageProcessData
//	)
//
//	func (s Stage) Encode() uint32 { return uint32(s) }
type UseCase interface {
	// Encode returns this tag's canonical 32-bit wire value. Must be a
	// total, pure function of the receiver.
	Encode() uint32
}

// Codec supplies the decode half of the UseCase contract (partial, since
// not every uint32 need correspond to a valid tag) plus the designated
// default tag, used whenever no usecase is active or a raw tag fails to
// decode.
type Codec[U UseCase] interface {
	// Decode attempts to recover a U from its wire value. ok is false if
	// raw does not correspond to any known tag.
	Decode(raw uint32) (U, bool)
	// Default returns the tag used when no usecase is active, or when
	// Decode fails.
	Default() U
}

// Recorder is the metrics sink a Tracker calls on every alloc/dealloc/error
// event (spec.md §4.B). Implementations must never panic and must tolerate
// being called from within an allocation — OnAlloc in particular is allowed
// to allocate itself (inserting into a map, say); any such nested call will
// simply find the synchronized section already held and be dropped with a
// ContentionRefCell error, which is the one invariant that makes this
// system correct (see SPEC_FULL.md §0).
type Recorder[U UseCase] interface {
	// OnAlloc is informed of an allocation of size bytes under tag. The
	// return value selects whether the allocated pointer should be
	// tracked so a later Dealloc can be attributed back to tag; a
	// Recorder uninterested in per-pointer attribution may always return
	// false to save memory.
	OnAlloc(tag U, size uintptr) bool
	// OnDealloc is informed of a deallocation of a previously tracked
	// pointer.
	OnDealloc(tag U, size uintptr)
	// OnError is informed that the Tracker dropped an event. Must not
	// allocate.
	OnError(kind ErrorKind, size *uintptr)
}
