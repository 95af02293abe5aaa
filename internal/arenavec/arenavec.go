// Package arenavec implements an append-only vector whose elements never
// move.
//
// Capacity is fixed at construction: the chunk directory for MaxLen
// elements is allocated up front (and, for mapped backing, the address
// range reserved), while chunks themselves are materialised on first use.
// Pushing only takes shared access. The single contended word is the
// length counter, claimed with an atomic add; each element carries a
// publication flag so readers never observe a half-written slot.
//
// Pointers returned by Get stay valid until Close.
package arenavec

import (
	"errors"
	"fmt"
	"iter"
	"math/bits"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/roach88/scaffolding/internal/osmem"
)

// DefaultMaxLen is the capacity used when WithMaxLen is not given.
const DefaultMaxLen = 1 << 20

// ErrCapacityExhausted matches every *CapacityError.
var ErrCapacityExhausted = errors.New("arenavec: capacity exhausted")

// ErrPointerfulMapped is returned when mapped backing is requested for an
// element type that contains Go pointers.
var ErrPointerfulMapped = errors.New("arenavec: mapped backing requires a pointer-free element type")

// CapacityError reports a push past the reserved maximum. It is not
// recoverable without building a larger vector.
type CapacityError struct {
	MaxLen int
	Index  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("arenavec: index %d exceeds capacity of %d elements", e.Index, e.MaxLen)
}

// Is makes errors.Is(err, ErrCapacityExhausted) hold.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExhausted
}

// Backing selects where element storage lives.
type Backing int

const (
	// BackingAuto maps pointer-free element types and heap-allocates the rest.
	BackingAuto Backing = iota
	// BackingHeap allocates each chunk on the Go heap.
	BackingHeap
	// BackingMapped places elements in an osmem reservation.
	BackingMapped
)

func (b Backing) String() string {
	switch b {
	case BackingAuto:
		return "auto"
	case BackingHeap:
		return "heap"
	case BackingMapped:
		return "mapped"
	default:
		return fmt.Sprintf("backing(%d)", int(b))
	}
}

type options struct {
	maxLen  int
	mem     osmem.Memory
	backing Backing
}

// Option configures New.
type Option func(*options)

// WithMaxLen sets the maximum number of elements.
func WithMaxLen(n int) Option {
	return func(o *options) { o.maxLen = n }
}

// WithMemory sets the Memory used for mapped backing.
func WithMemory(m osmem.Memory) Option {
	return func(o *options) { o.mem = m }
}

// WithBacking selects the storage strategy.
func WithBacking(b Backing) Option {
	return func(o *options) { o.backing = b }
}

type chunk[T any] struct {
	vals  []T
	ready []atomic.Bool
}

// Vec is an address-stable append-only vector.
type Vec[T any] struct {
	n      atomic.Int64
	maxLen int
	shift  uint
	chunks []atomic.Pointer[chunk[T]]

	region   osmem.Region
	elemSize int
	backing  Backing
}

// New builds a vector. With mapped backing the whole capacity is reserved
// immediately and committed chunk by chunk.
func New[T any](opts ...Option) (*Vec[T], error) {
	o := options{maxLen: DefaultMaxLen}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxLen <= 0 {
		return nil, fmt.Errorf("arenavec: max length must be positive, got %d", o.maxLen)
	}

	typ := reflect.TypeFor[T]()
	size := int(typ.Size())
	flat := pointerFree(typ)

	backing := o.backing
	switch backing {
	case BackingAuto:
		backing = BackingHeap
		if flat && size > 0 {
			backing = BackingMapped
		}
	case BackingMapped:
		if !flat {
			return nil, fmt.Errorf("%w: %s", ErrPointerfulMapped, typ)
		}
		if size == 0 {
			backing = BackingHeap
		}
	case BackingHeap:
	default:
		return nil, fmt.Errorf("arenavec: unknown backing %s", backing)
	}

	page := 4096
	if backing == BackingMapped {
		if o.mem == nil {
			o.mem = osmem.Default()
		}
		page = o.mem.PageSize()
	}

	shift := chunkShift(size, page)
	chunkLen := 1 << shift
	nchunks := (o.maxLen + chunkLen - 1) / chunkLen

	v := &Vec[T]{
		maxLen:   o.maxLen,
		shift:    shift,
		chunks:   make([]atomic.Pointer[chunk[T]], nchunks),
		elemSize: size,
		backing:  backing,
	}
	if backing == BackingMapped {
		region, err := o.mem.Reserve(nchunks * chunkLen * size)
		if err != nil {
			return nil, fmt.Errorf("arenavec: reserve %d elements: %w", o.maxLen, err)
		}
		v.region = region
	}
	return v, nil
}

// chunkShift picks a power-of-two chunk length covering a few pages.
func chunkShift(size, page int) uint {
	if size == 0 {
		return 10
	}
	per := 4 * page / size
	if per < 16 {
		per = 16
	}
	return uint(bits.Len(uint(per)) - 1)
}

// pointerFree reports whether values of t contain no Go pointers.
func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || pointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Backing reports the storage strategy in use.
func (v *Vec[T]) Backing() Backing { return v.backing }

// MaxLen returns the capacity.
func (v *Vec[T]) MaxLen() int { return v.maxLen }

// Len returns the number of claimed slots. During concurrent pushes a
// claimed slot may not be readable yet.
func (v *Vec[T]) Len() int {
	n := v.n.Load()
	if n > int64(v.maxLen) {
		return v.maxLen
	}
	return int(n)
}

// Push appends x and returns its index.
func (v *Vec[T]) Push(x T) (int, error) {
	return v.PushFunc(func(p *T) { *p = x })
}

// PushFunc appends an element initialised in place by init. init runs
// before the element becomes visible to Get.
//
// If the chunk backing the claimed index cannot be committed the slot stays
// unpublished and the error is returned.
func (v *Vec[T]) PushFunc(init func(*T)) (int, error) {
	i := int(v.n.Add(1) - 1)
	if i >= v.maxLen {
		return -1, &CapacityError{MaxLen: v.maxLen, Index: i}
	}
	c, err := v.chunk(i >> v.shift)
	if err != nil {
		return -1, err
	}
	off := i & (1<<v.shift - 1)
	init(&c.vals[off])
	c.ready[off].Store(true)
	return i, nil
}

// PushSlice appends xs at contiguous indices and returns the first. The
// whole range is claimed in one step: if it does not fit nothing is claimed
// and a CapacityError is returned.
func (v *Vec[T]) PushSlice(xs []T) (int, error) {
	if len(xs) == 0 {
		return v.Len(), nil
	}
	var start int64
	for {
		start = v.n.Load()
		if start+int64(len(xs)) > int64(v.maxLen) {
			return -1, &CapacityError{MaxLen: v.maxLen, Index: int(start) + len(xs) - 1}
		}
		if v.n.CompareAndSwap(start, start+int64(len(xs))) {
			break
		}
	}
	for k, x := range xs {
		i := int(start) + k
		c, err := v.chunk(i >> v.shift)
		if err != nil {
			return -1, err
		}
		off := i & (1<<v.shift - 1)
		c.vals[off] = x
		c.ready[off].Store(true)
	}
	return int(start), nil
}

// Get returns a pointer to element i, or false if i is out of range or not
// yet published.
func (v *Vec[T]) Get(i int) (*T, bool) {
	if i < 0 || i >= v.Len() {
		return nil, false
	}
	c := v.chunks[i>>v.shift].Load()
	if c == nil {
		return nil, false
	}
	off := i & (1<<v.shift - 1)
	if !c.ready[off].Load() {
		return nil, false
	}
	return &c.vals[off], true
}

// All yields published elements in index order.
func (v *Vec[T]) All() iter.Seq2[int, *T] {
	return func(yield func(int, *T) bool) {
		n := v.Len()
		for i := 0; i < n; i++ {
			p, ok := v.Get(i)
			if !ok {
				continue
			}
			if !yield(i, p) {
				return
			}
		}
	}
}

// Reset zeroes every element and rewinds the length to zero. Chunks stay
// committed for reuse. Requires exclusive access.
func (v *Vec[T]) Reset() {
	used := (v.Len() + 1<<v.shift - 1) >> v.shift
	for ci := 0; ci < used; ci++ {
		c := v.chunks[ci].Load()
		if c == nil {
			continue
		}
		clear(c.vals)
		for j := range c.ready {
			c.ready[j].Store(false)
		}
	}
	v.n.Store(0)
}

// Close drops all chunks and releases reserved memory. Requires exclusive
// access; pointers obtained from Get are invalid afterwards.
func (v *Vec[T]) Close() error {
	for ci := range v.chunks {
		v.chunks[ci].Store(nil)
	}
	v.n.Store(int64(v.maxLen))
	if v.region == nil {
		return nil
	}
	err := v.region.Release()
	v.region = nil
	return err
}

// chunk returns chunk ci, materialising it if needed. Racing creators agree
// on whichever chunk wins the compare-and-swap.
func (v *Vec[T]) chunk(ci int) (*chunk[T], error) {
	if c := v.chunks[ci].Load(); c != nil {
		return c, nil
	}
	c, err := v.newChunk(ci)
	if err != nil {
		return nil, err
	}
	if v.chunks[ci].CompareAndSwap(nil, c) {
		return c, nil
	}
	return v.chunks[ci].Load(), nil
}

func (v *Vec[T]) newChunk(ci int) (*chunk[T], error) {
	n := 1 << v.shift
	c := &chunk[T]{ready: make([]atomic.Bool, n)}
	if v.region == nil {
		c.vals = make([]T, n)
		return c, nil
	}
	off := ci * n * v.elemSize
	if err := v.region.Commit(off, n*v.elemSize); err != nil {
		return nil, fmt.Errorf("arenavec: commit chunk %d: %w", ci, err)
	}
	base := unsafe.Pointer(&v.region.Bytes()[off])
	c.vals = unsafe.Slice((*T)(base), n)
	return c, nil
}
