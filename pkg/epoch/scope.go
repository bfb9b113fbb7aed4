package epoch

// Scope pins a participant's local epoch to the manager's current global
// epoch for the duration of a traversal, the way
// pkg/cowbtree/epoch.go's EpochGuard pins a reader's slot. While a Scope
// is open for participant tid, the manager can prove no handle deferred
// at or after the pinned epoch is safe to reclaim, so the participant may
// freely dereference anything it observes during the traversal it began.
//
// Go has no destructors, so unlike the C++ EpochGuard this does not
// unpin itself automatically: callers must call Close (typically via
// defer) exactly once, immediately after Enter.
type Scope struct {
	mgr *Manager
	tid int
}

// Enter publishes the manager's current global epoch into participant
// tid's local slot and returns the open Scope. The caller must not
// invoke AdvanceGlobalEpoch on its own behalf while the scope is open,
// and must complete any traversal it began before calling Close, per
// spec.md §4.4.
func (m *Manager) Enter(tid int) *Scope {
	m.localEpoch(tid).Store(m.CurrentEpoch())
	return &Scope{mgr: m, tid: tid}
}

// Epoch returns the epoch this scope pinned on Enter.
func (s *Scope) Epoch() uint64 {
	return s.mgr.localEpoch(s.tid).Load()
}

// Close writes the NotPinned sentinel into the participant's local slot,
// so the participant once again pins nothing.
func (s *Scope) Close() {
	s.mgr.localEpoch(s.tid).Store(NotPinned)
}
