package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_StartsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())
	assert.Equal(t, int64(41), NewClockAt(41).Current())
}

func TestClock_NextIncrements(t *testing.T) {
	c := NewClockAt(9)
	assert.Equal(t, int64(10), c.Next())
	assert.Equal(t, int64(11), c.Next())
	assert.Equal(t, int64(11), c.Current())
}

func TestClock_ConcurrentNextUnique(t *testing.T) {
	c := NewClock()
	const goroutines, calls = 16, 200

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, calls)
			for i := 0; i < calls; i++ {
				local = append(local, c.Next())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, s := range local {
				seen[s] = true
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), c.Current())
}

func TestStore_UndoAdvancesClock(t *testing.T) {
	s := newTestStore(t)
	Insert(s, counter{})
	require.NoError(t, s.Enqueue(Update[counter]{Fn: func(c *counter) { c.Value++ }}))
	_, err := s.Commit()
	require.NoError(t, err)
	require.Equal(t, int64(1), s.Seq())

	require.NoError(t, s.Undo())
	assert.Equal(t, int64(2), s.Seq(), "seq never repeats within a store")
}
