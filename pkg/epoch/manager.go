// Package epoch implements epoch-based memory reclamation: a monotonic
// global epoch, a per-participant observed epoch, and a per-participant
// deferred-free list. A handle deferred by participant p at epoch e is
// only physically released once every participant currently inside an
// epoch.Scope has observed an epoch strictly greater than e — by then no
// optimistic reader can still be mid-traversal of the structure that
// referenced it.
//
// Grounded on pkg/cowbtree/epoch.go's EpochManager/ReaderGuard/Retire/
// TryReclaim from this module's teacher, restructured around spec.md's
// per-participant deferred lists (rather than a single map keyed by
// retirement epoch) so that reclamation is self-service: ReclaimOutdated
// may only be called by the participant that owns the list it walks,
// and never touches another participant's list, matching spec.md §5's
// "deferred[tid] ... is never accessed by another thread, including
// during reclamation."
package epoch

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/oltp-lab/hybridset/pkg/threadid"
	"golang.org/x/sys/cpu"
)

// NotPinned is the sentinel local-epoch value meaning "this participant is
// not currently inside an epoch scope and pins nothing."
const NotPinned = math.MaxUint64

// Releaser is implemented by deferred handles that need to do something
// more than become unreachable when they are reclaimed (the common case,
// a plain node pointer, needs nothing: once the deferred list drops its
// last reference the Go garbage collector reclaims it on its own).
type Releaser interface {
	Release()
}

type deferredRecord struct {
	handle any
	epoch  uint64
}

// participantSlot holds one participant's observed epoch and deferred
// list. It is cache-line padded on both sides so that one participant
// writing its own local epoch does not false-share the cache line with a
// neighbour's slot while a third participant scans all slots to compute
// the reclamation watermark (Manager.minObservedEpoch).
type participantSlot struct {
	_           cpu.CacheLinePad
	localEpoch  atomic.Uint64
	deferred    []deferredRecord
	_           cpu.CacheLinePad
}

// Manager is the epoch reclamation manager described in spec.md §4.3. It
// is capped at threadid.MaxParticipants slots; construct one with
// NewManager.
type Manager struct {
	globalEpoch atomic.Uint64
	slots       []*participantSlot
}

// NewManager returns a Manager sized for up to n participants. n is
// silently clamped to [1, threadid.MaxParticipants].
func NewManager(n int) *Manager {
	if n < 1 {
		n = 1
	}
	if n > threadid.MaxParticipants {
		n = threadid.MaxParticipants
	}
	m := &Manager{slots: make([]*participantSlot, n)}
	for i := range m.slots {
		slot := &participantSlot{}
		slot.localEpoch.Store(NotPinned)
		m.slots[i] = slot
	}
	return m
}

func (m *Manager) slot(tid int) *participantSlot {
	if tid < 0 || tid >= len(m.slots) {
		panic(fmt.Sprintf("epoch: participant id %d out of range [0,%d)", tid, len(m.slots)))
	}
	return m.slots[tid]
}

// AdvanceGlobalEpoch atomically increments the global epoch and returns
// the new value. Typically invoked by a single designated writer or
// coordinator; the policy is left to the caller, as spec.md §4.3
// prescribes.
func (m *Manager) AdvanceGlobalEpoch() uint64 {
	return m.globalEpoch.Add(1)
}

// CurrentEpoch returns the current global epoch.
func (m *Manager) CurrentEpoch() uint64 {
	return m.globalEpoch.Load()
}

// localEpoch returns the raw local-epoch value for tid, for use by Scope.
func (m *Manager) localEpoch(tid int) *atomic.Uint64 {
	return &m.slot(tid).localEpoch
}

// minObservedEpoch computes the minimum local epoch across every
// participant that is currently pinning one (i.e. excluding NotPinned
// slots). If no participant is pinning anything, it returns the current
// global epoch, matching the reference FreeOutdatedPtr's min_epoch
// computation.
func (m *Manager) minObservedEpoch() uint64 {
	min := m.globalEpoch.Load()
	for _, slot := range m.slots {
		e := slot.localEpoch.Load()
		if e < min {
			min = e
		}
	}
	return min
}

// DeferFree appends handle to participant tid's deferred list, stamped
// with tid's currently observed local epoch. The caller guarantees no
// further write to handle will happen after this call — ownership passes
// to the Manager.
func (m *Manager) DeferFree(tid int, handle any) {
	slot := m.slot(tid)
	slot.deferred = append(slot.deferred, deferredRecord{
		handle: handle,
		epoch:  slot.localEpoch.Load(),
	})
}

// ReclaimOutdated walks participant tid's own deferred list from the
// front, releasing every record whose epoch predates the minimum epoch
// currently observed by any participant, and stops at the first record
// that is not yet safe. It may only be called by the participant that
// owns tid's list — reclamation is self-service and requires no
// synchronisation beyond the epoch protocol itself. Returns the number of
// handles released.
func (m *Manager) ReclaimOutdated(tid int) int {
	minEpoch := m.minObservedEpoch()
	slot := m.slot(tid)

	i := 0
	for ; i < len(slot.deferred); i++ {
		if slot.deferred[i].epoch >= minEpoch {
			break
		}
		release(slot.deferred[i].handle)
	}
	slot.deferred = slot.deferred[i:]
	return i
}

// PendingCount returns the number of handles across all participants
// still awaiting reclamation.
func (m *Manager) PendingCount() int {
	n := 0
	for _, slot := range m.slots {
		n += len(slot.deferred)
	}
	return n
}

// PendingCountFor returns the number of handles awaiting reclamation for
// one participant.
func (m *Manager) PendingCountFor(tid int) int {
	return len(m.slot(tid).deferred)
}

// Close releases every still-deferred handle across all participants,
// matching spec.md §4.3's destructor guarantee. It is not safe to use the
// Manager afterwards.
func (m *Manager) Close() {
	for _, slot := range m.slots {
		for _, rec := range slot.deferred {
			release(rec.handle)
		}
		slot.deferred = nil
	}
}

func release(handle any) {
	if r, ok := handle.(Releaser); ok {
		r.Release()
	}
}
