// Package latch implements a hybrid optimistic/shared/exclusive latch: a
// single 64-bit word that packs a lock state into its high 8 bits and a
// monotonic version counter into its low 56 bits. The version is bumped on
// every transition out of exclusive mode (and on downgrade), which is what
// lets an optimistic reader detect, after the fact, whether a writer ran
// concurrently with its traversal.
//
// The bit layout and transition rules are ported from the reference
// HybridLock (see original_source/project/src/sync/lock.cc in the
// retrieval pack this module was built from); the spin-and-yield retry
// discipline around the try-variants follows
// hmarui66-blink-tree-go/latchmgr.go's BLTRWLock.
package latch

import (
	"fmt"
	"sync/atomic"
)

const (
	// versionBits is the width of the version field, in the low bits of
	// the packed word.
	versionBits = 56
	versionMask = (uint64(1) << versionBits) - 1

	// Unlocked is the state value meaning no holder of any kind.
	Unlocked uint64 = 0
	// MaxShared is the largest number of simultaneous shared holders.
	MaxShared uint64 = 254
	// Exclusive is the state value meaning a single exclusive holder.
	Exclusive uint64 = 255
)

// Latch is a 64-bit hybrid optimistic/shared/exclusive lock. The zero
// value is an unlocked latch at version 0, the same state New returns.
type Latch struct {
	stateAndVersion atomic.Uint64
}

// New returns a Latch in the unlocked state with version 0.
func New() *Latch {
	l := &Latch{}
	l.stateAndVersion.Store(pack(0, Unlocked))
	return l
}

func pack(version, state uint64) uint64 {
	return (version & versionMask) | (state << versionBits)
}

// State extracts the lock state from a packed state-and-version word.
func State(sv uint64) uint64 {
	return sv >> versionBits
}

// Version extracts the version counter from a packed state-and-version
// word.
func Version(sv uint64) uint64 {
	return sv & versionMask
}

// StateAndVersion returns the current packed word. It never blocks.
func (l *Latch) StateAndVersion() uint64 {
	return l.stateAndVersion.Load()
}

// State returns the current lock state.
func (l *Latch) State() uint64 {
	return State(l.StateAndVersion())
}

// Version returns the current version counter.
func (l *Latch) Version() uint64 {
	return Version(l.StateAndVersion())
}

// TryLockExclusive attempts to move from Unlocked straight to Exclusive.
// expected must be a snapshot obtained via StateAndVersion; the call fails
// if the latch has changed since, or if it was not unlocked. The version
// is left unchanged: acquiring exclusive is not, by itself, an event an
// optimistic reader needs to detect — only the matching release is.
func (l *Latch) TryLockExclusive(expected uint64) bool {
	if State(expected) != Unlocked {
		return false
	}
	return l.stateAndVersion.CompareAndSwap(expected, pack(Version(expected), Exclusive))
}

// UnlockExclusive releases an exclusive hold and bumps the version. Panics
// if the latch is not currently held exclusively.
func (l *Latch) UnlockExclusive() {
	sv := l.stateAndVersion.Load()
	if State(sv) != Exclusive {
		panic(fmt.Sprintf("latch: UnlockExclusive called while state = %d, want Exclusive", State(sv)))
	}
	l.stateAndVersion.Store(pack(Version(sv)+1, Unlocked))
}

// TryLockShared attempts to add one shared holder. Fails if the latch is
// held exclusively or already has MaxShared readers. The version is left
// unchanged, so optimistic readers coexist transparently with shared
// readers.
func (l *Latch) TryLockShared(expected uint64) bool {
	state := State(expected)
	if state >= MaxShared {
		return false
	}
	return l.stateAndVersion.CompareAndSwap(expected, pack(Version(expected), state+1))
}

// UnlockShared removes one shared holder. It never bumps the version: per
// the reference design, shared release is not an event an optimistic
// reader needs to detect, only exclusive release is. Panics if the latch
// is not currently shared-locked.
func (l *Latch) UnlockShared() {
	for {
		sv := l.stateAndVersion.Load()
		state := State(sv)
		if state == Unlocked || state == Exclusive {
			panic(fmt.Sprintf("latch: UnlockShared called while state = %d, want shared", state))
		}
		if l.stateAndVersion.CompareAndSwap(sv, pack(Version(sv), state-1)) {
			return
		}
	}
}

// UpgradeLock attempts to move the sole shared holder directly to
// exclusive. Valid only when expected records exactly one shared holder;
// the version is left unchanged (no writer has run yet — the upgrading
// thread is the only one about to become one).
func (l *Latch) UpgradeLock(expected uint64) bool {
	if State(expected) != 1 {
		return false
	}
	return l.stateAndVersion.CompareAndSwap(expected, pack(Version(expected), Exclusive))
}

// DowngradeLock moves an exclusively held latch to a single shared
// holder, bumping the version: the exclusive epoch is ending, so any
// optimistic reader that snapshotted during it must be made to restart.
// Panics if the latch is not currently held exclusively.
func (l *Latch) DowngradeLock() {
	sv := l.stateAndVersion.Load()
	if State(sv) != Exclusive {
		panic(fmt.Sprintf("latch: DowngradeLock called while state = %d, want Exclusive", State(sv)))
	}
	l.stateAndVersion.Store(pack(Version(sv)+1, 1))
}
