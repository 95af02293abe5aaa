// Package osmem is the operating-system capability surface consumed by the
// address-stable containers.
//
// A Memory reserves address ranges without backing them; a Region commits
// and decommits page-aligned spans of its reservation. Committed pages read
// as zero the first time they are touched.
//
// Atomic fetch-and-add and compare-and-swap are taken from sync/atomic,
// which provides them on every platform the Go runtime supports.
//
// # Go memory restriction
//
// Memory handed out by a mapped Region is invisible to the garbage
// collector. Values stored there must not contain Go pointers. Callers
// (see internal/arenavec) enforce this by only placing pointer-free types
// in mapped regions.
package osmem

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when an offset/length pair falls outside
	// the reserved region.
	ErrOutOfRange = errors.New("osmem: range outside reservation")

	// ErrReleased is returned when a region is used after Release.
	ErrReleased = errors.New("osmem: region released")
)

// Memory reserves address ranges.
type Memory interface {
	// PageSize is the commit granularity in bytes.
	PageSize() int

	// Reserve sets aside n bytes of address space, rounded up to a page
	// multiple. Nothing is committed.
	Reserve(n int) (Region, error)
}

// Region is one reservation returned by Memory.Reserve.
//
// Commit is idempotent and may race with itself on overlapping spans.
// Decommit and Release require that no other goroutine touches the span.
type Region interface {
	// Bytes exposes the whole reservation. Only committed pages may be
	// read or written.
	Bytes() []byte

	// Len is the reserved length in bytes.
	Len() int

	// Commit makes [off, off+n) readable and writable. The span is widened
	// to page boundaries.
	Commit(off, n int) error

	// Decommit returns [off, off+n) to the reserved state. Contents are
	// lost; the span is narrowed to whole pages it fully covers.
	Decommit(off, n int) error

	// Release gives the reservation back. Safe to call more than once.
	Release() error
}

// AlignUp rounds n up to a multiple of page.
func AlignUp(n, page int) int {
	return (n + page - 1) / page * page
}

// AlignDown rounds n down to a multiple of page.
func AlignDown(n, page int) int {
	return n / page * page
}

// checkSpan validates [off, off+n) against a reservation of size total.
func checkSpan(off, n, total int) error {
	if off < 0 || n < 0 || off+n > total {
		return fmt.Errorf("span [%d, %d) of %d bytes: %w", off, off+n, total, ErrOutOfRange)
	}
	return nil
}
