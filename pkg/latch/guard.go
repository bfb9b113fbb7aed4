package latch

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrRestart is the control-flow signal raised by Guard.Validate (and, by
// extension, Guard.Close on an optimistic guard) when an intervening
// exclusive holder is detected between the optimistic snapshot and the
// validation point. It carries no data and is never fatal: callers are
// expected to catch it at the boundary of the optimistic traversal and
// retry from scratch, exactly as spec.md's OptimisticList.Lookup does.
var ErrRestart = errors.New("latch: optimistic validation failed, restart required")

// Mode selects a Guard's acquisition protocol.
type Mode int

const (
	// ModeOptimistic takes no real lock: it snapshots the state-and-version
	// word and defers all checking to Validate/Close.
	ModeOptimistic Mode = iota
	// ModeShared blocks (spin-and-yield) until a shared hold is granted.
	ModeShared
	// ModeExclusive blocks (spin-and-yield) until an exclusive hold is
	// granted.
	ModeExclusive

	// modeMoved is the internal "disarmed" state a Guard enters after an
	// explicit Unlock or Validate, or after being the source of a
	// MoveFrom. Guards are never constructed in this mode by callers;
	// doing so is a programmer error.
	modeMoved
)

// Guard ties one latch acquisition to the lifetime of a *Guard value. Go
// has no destructors, so unlike the C++ original's RAII HybridGuard, a
// Guard does nothing automatically when it goes out of scope — callers
// must defer a call to Close (or call Unlock/Validate directly) exactly
// once.
type Guard struct {
	lock  *Latch
	mode  Mode
	state uint64
}

// New constructs a Guard in the given mode, blocking (for ModeShared and
// ModeExclusive) or snapshotting (for ModeOptimistic) as spec.md §4.2
// describes. Constructing a guard with any other mode value is a
// programmer error and panics.
func New(lock *Latch, mode Mode) *Guard {
	g := &Guard{lock: lock, mode: mode}
	switch mode {
	case ModeOptimistic:
		g.optimisticLock()
	case ModeShared:
		for {
			sv := lock.StateAndVersion()
			if lock.TryLockShared(sv) {
				return g
			}
			runtime.Gosched()
		}
	case ModeExclusive:
		for {
			sv := lock.StateAndVersion()
			if lock.TryLockExclusive(sv) {
				return g
			}
			runtime.Gosched()
		}
	default:
		panic(fmt.Sprintf("latch: Guard constructed with invalid mode %d", mode))
	}
	return g
}

func (g *Guard) optimisticLock() {
	sv := g.lock.StateAndVersion()
	for State(sv) == Exclusive {
		runtime.Gosched()
		sv = g.lock.StateAndVersion()
	}
	g.state = sv
}

// MoveFrom transfers other's latch, mode, and snapshot into g, leaving
// other disarmed (mode modeMoved). If g currently holds an optimistic
// scope, it is validated first — a failed validation returns ErrRestart
// and leaves other untouched (so the caller may still close it itself if
// it chooses, though in practice the whole traversal is about to
// restart).
func (g *Guard) MoveFrom(other *Guard) error {
	if g.mode == ModeOptimistic {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	g.lock = other.lock
	g.mode = other.mode
	g.state = other.state
	other.mode = modeMoved
	return nil
}

// Unlock releases a shared or exclusive hold and disarms the guard. It is
// a programmer error to call Unlock on an optimistic or already-disarmed
// guard; that panics, mirroring the reference implementation's assertion
// failure rather than silently doing nothing.
func (g *Guard) Unlock() {
	switch g.mode {
	case ModeShared:
		g.lock.UnlockShared()
	case ModeExclusive:
		g.lock.UnlockExclusive()
	default:
		panic(fmt.Sprintf("latch: Unlock called on guard in mode %d, want Shared or Exclusive", g.mode))
	}
	g.mode = modeMoved
}

// Validate is legal only on an optimistic guard. It disarms the guard
// first (mode becomes modeMoved, matching the reference's "mode
// transitions to MOVED before the check runs") and then compares the
// current state-and-version word against the snapshot taken at
// construction. If the latch is currently exclusive, or its version has
// moved on, it returns ErrRestart.
func (g *Guard) Validate() error {
	if g.mode != ModeOptimistic {
		panic(fmt.Sprintf("latch: Validate called on guard in mode %d, want Optimistic", g.mode))
	}
	g.mode = modeMoved
	latest := g.lock.StateAndVersion()
	if State(latest) == Exclusive || Version(latest) != Version(g.state) {
		return ErrRestart
	}
	return nil
}

// Close discharges whatever obligation the guard's current mode carries:
// for ModeOptimistic it validates (and so may return ErrRestart); for
// ModeShared/ModeExclusive it unlocks (never erroring); for a
// already-disarmed guard it is a no-op. Callers should defer Close
// immediately after constructing a guard, the way the reference
// implementation relies on ~HybridGuard.
func (g *Guard) Close() error {
	switch g.mode {
	case ModeOptimistic:
		return g.Validate()
	case ModeShared, ModeExclusive:
		g.Unlock()
		return nil
	default:
		return nil
	}
}
