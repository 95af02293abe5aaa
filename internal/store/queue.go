package store

import (
	"errors"
	"fmt"

	"github.com/roach88/scaffolding/internal/arenavec"
)

// DefaultMaxPending is the default queue capacity.
const DefaultMaxPending = 1 << 16

// queue is the store's FIFO of pending mutations.
//
// push needs only shared access and may be called from many goroutines.
// Draining and reset are single-threaded and happen inside Commit.
type queue struct {
	items *arenavec.Vec[Mutation]
}

func newQueue(maxPending int) (*queue, error) {
	items, err := arenavec.New[Mutation](
		arenavec.WithMaxLen(maxPending),
		arenavec.WithBacking(arenavec.BackingHeap),
	)
	if err != nil {
		return nil, fmt.Errorf("mutation queue: %w", err)
	}
	return &queue{items: items}, nil
}

func (q *queue) push(m Mutation) error {
	_, err := q.items.Push(m)
	return q.pushErr(err)
}

// pushAll queues ms at contiguous positions, or none of them when they do
// not fit.
func (q *queue) pushAll(ms []Mutation) error {
	_, err := q.items.PushSlice(ms)
	return q.pushErr(err)
}

func (q *queue) pushErr(err error) error {
	if errors.Is(err, arenavec.ErrCapacityExhausted) {
		return &Error{
			Code:    ErrCodeQueueFull,
			Message: fmt.Sprintf("more than %d pending mutations", q.items.MaxLen()),
			Err:     err,
		}
	}
	return err
}

// len counts claimed slots, including any still being written.
func (q *queue) len() int { return q.items.Len() }

// at returns pending mutation i; holes left by failed pushes read as false.
func (q *queue) at(i int) (Mutation, bool) {
	p, ok := q.items.Get(i)
	if !ok || *p == nil {
		return nil, false
	}
	return *p, true
}

func (q *queue) reset() { q.items.Reset() }

func (q *queue) close() error { return q.items.Close() }
