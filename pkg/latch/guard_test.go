package latch

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimisticValidationThrowsOnInterveningWrite(t *testing.T) {
	l := New()

	outer := New(l, ModeOptimistic)
	func() {
		inner := New(l, ModeExclusive)
		require.NoError(t, inner.Close())
	}()

	err := outer.Validate()
	assert.ErrorIs(t, err, ErrRestart)
}

func TestOptimisticValidationSucceedsWithNoWriter(t *testing.T) {
	l := New()
	g := New(l, ModeOptimistic)
	assert.NoError(t, g.Validate())
}

func TestSharedGuardsCoexist(t *testing.T) {
	l := New()
	g1 := New(l, ModeShared)
	g2 := New(l, ModeShared)
	defer g1.Unlock()
	defer g2.Unlock()
	assert.Equal(t, uint64(2), l.State())
}

func TestExclusiveGuardBlocksOthers(t *testing.T) {
	l := New()
	g := New(l, ModeExclusive)
	assert.False(t, l.TryLockShared(l.StateAndVersion()))
	require.NoError(t, g.Close())
	assert.True(t, l.TryLockShared(l.StateAndVersion()))
}

func TestUnlockOnOptimisticGuardPanics(t *testing.T) {
	l := New()
	g := New(l, ModeOptimistic)
	assert.Panics(t, func() { g.Unlock() })
}

func TestNewGuardInvalidModePanics(t *testing.T) {
	l := New()
	assert.Panics(t, func() { New(l, modeMoved) })
}

func TestMoveAssignmentValidatesOutgoingOptimisticScope(t *testing.T) {
	l1 := New()
	l2 := New()

	outer := New(l1, ModeOptimistic)
	func() {
		inner := New(l1, ModeExclusive)
		require.NoError(t, inner.Close())
	}()

	replacement := New(l2, ModeShared)
	err := outer.MoveFrom(replacement)
	assert.ErrorIs(t, err, ErrRestart)
}

func TestNormalOperationMixedReadersWriters(t *testing.T) {
	const numThreads = 10
	l := New()
	var counter int
	var mu sync.Mutex
	var restarts atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < numThreads; i++ {
		wg.Add(1)
		if i%2 == 0 {
			go func() {
				defer wg.Done()
				g := New(l, ModeExclusive)
				mu.Lock()
				counter++
				mu.Unlock()
				_ = g.Close()
			}()
		} else {
			go func() {
				defer wg.Done()
				for {
					g := New(l, ModeOptimistic)
					mu.Lock()
					ok := counter >= 0 && counter <= numThreads/2
					mu.Unlock()
					assert.True(t, ok)
					if err := g.Validate(); err != nil {
						restarts.Add(1)
						continue
					}
					break
				}
			}()
		}
	}
	wg.Wait()
	assert.Equal(t, numThreads/2, counter)
}

