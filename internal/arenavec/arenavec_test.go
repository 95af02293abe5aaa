package arenavec

import (
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scaffolding/internal/osmem"
)

type sample struct {
	Seq   int64
	Value float64
}

type named struct {
	Name string
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_AutoBacking(t *testing.T) {
	flat, err := New[sample](WithMaxLen(64))
	require.NoError(t, err)
	defer flat.Close()
	assert.Equal(t, BackingMapped, flat.Backing())

	boxed, err := New[named](WithMaxLen(64))
	require.NoError(t, err)
	defer boxed.Close()
	assert.Equal(t, BackingHeap, boxed.Backing())

	empty, err := New[struct{}](WithMaxLen(64))
	require.NoError(t, err)
	assert.Equal(t, BackingHeap, empty.Backing())
}

func TestNew_MappedRejectsPointers(t *testing.T) {
	_, err := New[named](WithBacking(BackingMapped))
	assert.ErrorIs(t, err, ErrPointerfulMapped)

	_, err = New[[]int](WithBacking(BackingMapped))
	assert.ErrorIs(t, err, ErrPointerfulMapped)
}

func TestNew_RejectsNonPositiveMax(t *testing.T) {
	_, err := New[int](WithMaxLen(0))
	assert.Error(t, err)
}

func TestPointerFree(t *testing.T) {
	assert.True(t, pointerFree(typeOf[int64]()))
	assert.True(t, pointerFree(typeOf[[4]uint8]()))
	assert.True(t, pointerFree(typeOf[sample]()))
	assert.False(t, pointerFree(typeOf[string]()))
	assert.False(t, pointerFree(typeOf[*int]()))
	assert.False(t, pointerFree(typeOf[map[int]int]()))
	assert.False(t, pointerFree(typeOf[any]()))
	assert.False(t, pointerFree(typeOf[struct {
		A int
		B []byte
	}]()))
}

// =============================================================================
// Push / Get
// =============================================================================

func typeOf[T any]() reflect.Type { return reflect.TypeFor[T]() }

func backings() map[string][]Option {
	return map[string][]Option{
		"heap":        {WithBacking(BackingHeap)},
		"mapped":      {WithBacking(BackingMapped)},
		"mapped-heap": {WithBacking(BackingMapped), WithMemory(osmem.NewHeap())},
	}
}

func TestVec_PushGet(t *testing.T) {
	for name, opts := range backings() {
		t.Run(name, func(t *testing.T) {
			v, err := New[sample](append(opts, WithMaxLen(100))...)
			require.NoError(t, err)
			defer v.Close()

			for i := 0; i < 100; i++ {
				idx, err := v.Push(sample{Seq: int64(i), Value: float64(i) / 2})
				require.NoError(t, err)
				assert.Equal(t, i, idx)
			}
			assert.Equal(t, 100, v.Len())

			p, ok := v.Get(42)
			require.True(t, ok)
			assert.Equal(t, int64(42), p.Seq)
			assert.Equal(t, 21.0, p.Value)

			_, ok = v.Get(100)
			assert.False(t, ok)
			_, ok = v.Get(-1)
			assert.False(t, ok)
		})
	}
}

func TestVec_CapacityExhausted(t *testing.T) {
	v, err := New[int](WithMaxLen(3))
	require.NoError(t, err)
	defer v.Close()

	for i := 0; i < 3; i++ {
		_, err := v.Push(i)
		require.NoError(t, err)
	}

	_, err = v.Push(3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExhausted)

	var ce *CapacityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 3, ce.MaxLen)
	assert.Equal(t, 3, v.Len(), "length stays clamped at capacity")
}

func TestVec_AddressStable(t *testing.T) {
	for name, opts := range backings() {
		t.Run(name, func(t *testing.T) {
			v, err := New[sample](append(opts, WithMaxLen(10_000))...)
			require.NoError(t, err)
			defer v.Close()

			_, err = v.Push(sample{Seq: 1})
			require.NoError(t, err)
			first, ok := v.Get(0)
			require.True(t, ok)

			for i := 1; i < 10_000; i++ {
				_, err := v.Push(sample{Seq: int64(i + 1)})
				require.NoError(t, err)
			}

			again, ok := v.Get(0)
			require.True(t, ok)
			assert.Same(t, first, again)
			assert.Equal(t, int64(1), first.Seq)
		})
	}
}

func TestVec_ConcurrentPushDenseUnique(t *testing.T) {
	for name, opts := range backings() {
		t.Run(name, func(t *testing.T) {
			const workers, perWorker = 8, 500
			v, err := New[sample](append(opts, WithMaxLen(workers*perWorker))...)
			require.NoError(t, err)
			defer v.Close()

			var (
				mu      sync.Mutex
				indices []int
				wg      sync.WaitGroup
			)
			ptrs := make([]*sample, workers*perWorker)
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					local := make([]int, 0, perWorker)
					for i := 0; i < perWorker; i++ {
						seq := int64(w*perWorker + i)
						idx, err := v.Push(sample{Seq: seq})
						if err != nil {
							t.Error(err)
							return
						}
						p, ok := v.Get(idx)
						if !ok {
							t.Errorf("index %d not readable after push", idx)
							return
						}
						ptrs[idx] = p
						local = append(local, idx)
					}
					mu.Lock()
					indices = append(indices, local...)
					mu.Unlock()
				}(w)
			}
			wg.Wait()

			sort.Ints(indices)
			require.Len(t, indices, workers*perWorker)
			for i, idx := range indices {
				require.Equal(t, i, idx, "indices form a dense unique range")
			}

			seen := make(map[int64]bool)
			for i, p := range ptrs {
				got, ok := v.Get(i)
				require.True(t, ok)
				assert.Same(t, p, got)
				seen[got.Seq] = true
			}
			assert.Len(t, seen, workers*perWorker)
		})
	}
}

func TestVec_ConcurrentPushOverCapacity(t *testing.T) {
	v, err := New[int](WithMaxLen(100))
	require.NoError(t, err)
	defer v.Close()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := v.Push(i)
				mu.Lock()
				if err != nil {
					full++
				} else {
					ok++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, ok)
	assert.Equal(t, 100, full)
	assert.Equal(t, 100, v.Len())
}

func TestVec_PushSlice(t *testing.T) {
	v, err := New[int](WithMaxLen(5))
	require.NoError(t, err)
	defer v.Close()

	_, err = v.Push(0)
	require.NoError(t, err)

	start, err := v.PushSlice([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1, start)
	assert.Equal(t, 4, v.Len())

	// Two more would exceed the capacity: nothing is claimed.
	_, err = v.PushSlice([]int{4, 5})
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 5, capErr.MaxLen)
	assert.Equal(t, 4, v.Len())

	start, err = v.PushSlice([]int{4})
	require.NoError(t, err)
	assert.Equal(t, 4, start)

	for i := 0; i < 5; i++ {
		p, ok := v.Get(i)
		require.True(t, ok, i)
		assert.Equal(t, i, *p)
	}

	start, err = v.PushSlice(nil)
	require.NoError(t, err)
	assert.Equal(t, 5, start)
}

func TestVec_ConcurrentPushSliceContiguous(t *testing.T) {
	const workers, batches, size = 8, 25, 4
	v, err := New[int](WithMaxLen(workers * batches * size))
	require.NoError(t, err)
	defer v.Close()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := 0; b < batches; b++ {
				id := (w*batches + b) * size
				_, err := v.PushSlice([]int{id, id + 1, id + 2, id + 3})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*batches*size, v.Len())
	for i := 0; i < v.Len(); i += size {
		first, ok := v.Get(i)
		require.True(t, ok)
		for k := 1; k < size; k++ {
			p, ok := v.Get(i + k)
			require.True(t, ok)
			assert.Equal(t, *first+k, *p, "batch at %d split", i)
		}
	}
}

func TestVec_PushFunc(t *testing.T) {
	v, err := New[named]()
	require.NoError(t, err)
	defer v.Close()

	idx, err := v.PushFunc(func(n *named) { n.Name = "alpha" })
	require.NoError(t, err)

	p, ok := v.Get(idx)
	require.True(t, ok)
	assert.Equal(t, "alpha", p.Name)
}

func TestVec_All(t *testing.T) {
	v, err := New[int](WithMaxLen(10))
	require.NoError(t, err)
	defer v.Close()

	for i := 0; i < 5; i++ {
		_, err := v.Push(i * i)
		require.NoError(t, err)
	}

	var got []int
	for i, p := range v.All() {
		assert.Equal(t, len(got), i)
		got = append(got, *p)
	}
	assert.Equal(t, []int{0, 1, 4, 9, 16}, got)
}

func TestVec_Reset(t *testing.T) {
	for name, opts := range backings() {
		t.Run(name, func(t *testing.T) {
			v, err := New[sample](append(opts, WithMaxLen(50))...)
			require.NoError(t, err)
			defer v.Close()

			for i := 0; i < 50; i++ {
				_, err := v.Push(sample{Seq: int64(i)})
				require.NoError(t, err)
			}
			v.Reset()
			assert.Equal(t, 0, v.Len())
			_, ok := v.Get(0)
			assert.False(t, ok)

			idx, err := v.PushFunc(func(*sample) {})
			require.NoError(t, err)
			assert.Equal(t, 0, idx)
			p, _ := v.Get(0)
			assert.Equal(t, sample{}, *p, "reset zeroes reused slots")
		})
	}
}

func TestVec_CloseRejectsPush(t *testing.T) {
	v, err := New[int](WithMaxLen(8))
	require.NoError(t, err)
	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	_, err = v.Push(1)
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}
