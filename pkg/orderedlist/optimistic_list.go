package orderedlist

import (
	"cmp"
	"runtime"

	"github.com/oltp-lab/hybridset/pkg/epoch"
	"github.com/oltp-lab/hybridset/pkg/latch"
)

// OptimisticList is the optimistic ordered list of spec.md §4.6: a
// single hybrid latch (pkg/latch) serialises writers, and readers
// traverse the chain without taking the latch, validating against the
// latch's state-and-version word once the traversal ends and restarting
// the whole traversal if a writer intervened. Unlinked nodes are handed to an
// epoch.Manager rather than freed immediately, so a reader that is mid
// traversal of an already-unlinked node never dereferences freed memory.
//
// Grounded on original_source/project/src/list/list.cc's
// OptimisticSortedList, with thread identity passed explicitly as a
// participant index (tid, e.g. a pkg/threadid.Participant's ID) in place
// of the original's thread_local thread id.
type OptimisticList[K cmp.Ordered, V any] struct {
	lock  *latch.Latch
	epoch *epoch.Manager
	head  *node[K, V]
}

// NewOptimisticList returns an empty OptimisticList backed by mgr for
// deferred reclamation. mgr is typically shared across every structure
// a given set of participants touch, per spec.md §4.3.
func NewOptimisticList[K cmp.Ordered, V any](mgr *epoch.Manager) *OptimisticList[K, V] {
	return &OptimisticList[K, V]{
		lock:  latch.New(),
		epoch: mgr,
	}
}

// Insert inserts value at key under the exclusive latch, or overwrites
// the existing value if key is already present.
func (l *OptimisticList[K, V]) Insert(tid int, key K, value V) {
	g := latch.New(l.lock, latch.ModeExclusive)
	defer g.Unlock()

	if l.head == nil || l.head.key > key {
		n := newNode(key, value, l.head)
		l.head = n
		return
	}
	if l.head.key == key {
		l.head.setValue(value)
		return
	}

	prev := l.head
	for prev.getNext() != nil && prev.getNext().key < key {
		prev = prev.getNext()
	}
	if next := prev.getNext(); next != nil && next.key == key {
		next.setValue(value)
		return
	}
	prev.setNext(newNode(key, value, prev.getNext()))
}

// Lookup returns the value stored at key and true, or the zero value
// and false if key is absent. The traversal never blocks: it pins an
// epoch scope so any node it walks past cannot be reclaimed out from
// under it, reads optimistically, and restarts from scratch if
// Guard.Validate reports that a writer intervened, per spec.md §4.6's
// optimistic-read protocol and scenario 6.
func (l *OptimisticList[K, V]) Lookup(tid int, key K) (V, bool) {
	scope := l.epoch.Enter(tid)
	defer scope.Close()

	for {
		v, ok, restart := l.tryLookup(key)
		if !restart {
			return v, ok
		}
		runtime.Gosched()
	}
}

func (l *OptimisticList[K, V]) tryLookup(key K) (value V, found bool, restart bool) {
	g := latch.New(l.lock, latch.ModeOptimistic)

	cur := l.head
	for cur != nil && cur.key <= key {
		if cur.key == key {
			value = cur.getValue()
			found = true
			break
		}
		cur = cur.getNext()
	}

	if err := g.Validate(); err != nil {
		var zero V
		return zero, false, true
	}
	return value, found, false
}

// Delete removes key, if present, under the exclusive latch, reporting
// whether it was found. The unlinked node is not freed in place:
// ownership passes to the epoch manager via DeferFree, stamped with the
// epoch this call briefly pins, so the node survives until no
// concurrent optimistic reader can still be referencing it. This
// mirrors OptimisticSortedList::Delete's epoch_->DeferFreePointer call,
// except the stamp is taken from an explicit, briefly-opened scope
// rather than an ambient thread-local epoch, so the recorded epoch is
// always the current one rather than whatever the thread last observed.
func (l *OptimisticList[K, V]) Delete(tid int, key K) bool {
	g := latch.New(l.lock, latch.ModeExclusive)
	defer g.Unlock()

	var prev *node[K, V]
	cur := l.head
	for cur != nil && cur.key < key {
		prev = cur
		cur = cur.getNext()
	}
	if cur == nil || cur.key != key {
		return false
	}
	if prev == nil {
		l.head = cur.getNext()
	} else {
		prev.setNext(cur.getNext())
	}

	scope := l.epoch.Enter(tid)
	l.epoch.DeferFree(tid, cur)
	scope.Close()
	return true
}
