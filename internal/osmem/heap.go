package osmem

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// heapPageSize is the nominal commit granularity for heap reservations.
const heapPageSize = 4096

// heapMemory backs reservations with ordinary Go allocations. Reserve
// allocates eagerly, so it suits tests and platforms without mmap.
type heapMemory struct{}

// NewHeap returns a Memory whose regions live on the Go heap.
func NewHeap() Memory {
	return heapMemory{}
}

func (heapMemory) PageSize() int { return heapPageSize }

func (heapMemory) Reserve(n int) (Region, error) {
	if n <= 0 {
		return nil, fmt.Errorf("reserve %d bytes: %w", n, ErrOutOfRange)
	}
	size := AlignUp(n, heapPageSize)
	// []uint64 keeps the base 8-byte aligned for any element type placed on top.
	words := make([]uint64, size/8)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
	return &heapRegion{words: words, buf: buf}, nil
}

type heapRegion struct {
	words    []uint64
	buf      []byte
	released atomic.Bool
}

func (r *heapRegion) Bytes() []byte { return r.buf }

func (r *heapRegion) Len() int { return len(r.buf) }

func (r *heapRegion) Commit(off, n int) error {
	if r.released.Load() {
		return ErrReleased
	}
	return checkSpan(off, n, len(r.buf))
}

func (r *heapRegion) Decommit(off, n int) error {
	if r.released.Load() {
		return ErrReleased
	}
	if err := checkSpan(off, n, len(r.buf)); err != nil {
		return err
	}
	lo := AlignUp(off, heapPageSize)
	hi := AlignDown(off+n, heapPageSize)
	if hi <= lo {
		return nil
	}
	clear(r.buf[lo:hi])
	return nil
}

func (r *heapRegion) Release() error {
	if r.released.CompareAndSwap(false, true) {
		r.words = nil
		r.buf = nil
	}
	return nil
}
