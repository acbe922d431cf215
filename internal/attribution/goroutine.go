// Package attribution holds the goroutine-local current-usecase cell and its
// scoped acquisition guard.
package attribution

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the numeric id from the header line of a goroutine's
// own stack trace ("goroutine 123 [running]: ..."). This is the same trick
// the community's goroutine-local-storage helpers use in lieu of a stdlib
// primitive; it is slow relative to a real thread-local, but it is the only
// self-contained way to obtain a stable-for-the-goroutine's-lifetime identity
// without linking against runtime internals.
//
// ok is false if the header could not be parsed; callers must treat that the
// same way spec.md treats a thread-local that cannot be touched during
// thread teardown (ContentionThreadLocal).
func goroutineID() (id uint64, ok bool) {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0, false
	}
	b = b[len(prefix):]

	sp := bytes.IndexByte(b, ' ')
	if sp < 0 {
		return 0, false
	}

	id, err := strconv.ParseUint(string(b[:sp]), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
