//go:build linux || darwin || freebsd

package osmem

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Default returns the platform Memory: anonymous private mappings that start
// out PROT_NONE and are committed with mprotect.
func Default() Memory {
	return mmapMemory{page: unix.Getpagesize()}
}

type mmapMemory struct {
	page int
}

func (m mmapMemory) PageSize() int { return m.page }

func (m mmapMemory) Reserve(n int) (Region, error) {
	if n <= 0 {
		return nil, fmt.Errorf("reserve %d bytes: %w", n, ErrOutOfRange)
	}
	size := AlignUp(n, m.page)
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("reserve %d bytes: %w", size, err)
	}
	return &mmapRegion{mem: mem, page: m.page}, nil
}

type mmapRegion struct {
	mem      []byte
	page     int
	released atomic.Bool
}

func (r *mmapRegion) Bytes() []byte { return r.mem }

func (r *mmapRegion) Len() int { return len(r.mem) }

func (r *mmapRegion) Commit(off, n int) error {
	if r.released.Load() {
		return ErrReleased
	}
	if err := checkSpan(off, n, len(r.mem)); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	lo := AlignDown(off, r.page)
	hi := min(AlignUp(off+n, r.page), len(r.mem))
	if err := unix.Mprotect(r.mem[lo:hi], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("commit [%d, %d): %w", lo, hi, err)
	}
	return nil
}

func (r *mmapRegion) Decommit(off, n int) error {
	if r.released.Load() {
		return ErrReleased
	}
	if err := checkSpan(off, n, len(r.mem)); err != nil {
		return err
	}
	lo := AlignUp(off, r.page)
	hi := AlignDown(off+n, r.page)
	if hi <= lo {
		return nil
	}
	span := r.mem[lo:hi]
	if err := unix.Madvise(span, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("decommit [%d, %d): %w", lo, hi, err)
	}
	if err := unix.Mprotect(span, unix.PROT_NONE); err != nil {
		return fmt.Errorf("decommit [%d, %d): %w", lo, hi, err)
	}
	return nil
}

func (r *mmapRegion) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return nil
	}
	if err := unix.Munmap(r.mem); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	r.mem = nil
	return nil
}
