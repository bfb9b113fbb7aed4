package threadid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAssignsDenseIDs(t *testing.T) {
	r := NewRegistry()

	p0, err := r.Register()
	require.NoError(t, err)
	p1, err := r.Register()
	require.NoError(t, err)

	assert.Equal(t, 0, p0.ID())
	assert.Equal(t, 1, p1.ID())
	assert.Equal(t, 2, r.Count())
}

func TestRegisterClampsAtCapacity(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < MaxParticipants; i++ {
		_, err := r.Register()
		require.NoError(t, err)
	}

	_, err := r.Register()
	assert.Error(t, err)
	assert.Equal(t, MaxParticipants, r.Count())
}

func TestRegisterConcurrentUnique(t *testing.T) {
	r := NewRegistry()
	const n = MaxParticipants

	var wg sync.WaitGroup
	ids := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			p, err := r.Register()
			require.NoError(t, err)
			ids[idx] = p.ID()
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate participant id %d", id)
		seen[id] = true
	}
}
