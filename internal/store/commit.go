package store

import (
	"fmt"

	"github.com/roach88/scaffolding/internal/typemap"
)

// Applied records one mutation applied by Commit.
type Applied struct {
	Seq      int64
	Target   typemap.ID
	Kind     string
	Mutation Mutation
}

// CommitResult lists what a commit applied, in application order.
type CommitResult struct {
	Applied []Applied
}

// Enqueue adds m to the pending queue. A Batch is flattened into its
// elements, which are queued contiguously; if they do not all fit none is
// queued and a QUEUE_FULL error is returned.
//
// Safe for concurrent use during the logic phase.
func (s *Store) Enqueue(m Mutation) error {
	ms := Flatten(m)
	if len(ms) == 1 {
		return s.queue.push(ms[0])
	}
	return s.queue.pushAll(ms)
}

// Pending returns the number of queued mutations.
func (s *Store) Pending() int { return s.queue.len() }

// Discard drops every pending mutation and returns how many were dropped.
// Requires exclusive access.
func (s *Store) Discard() int {
	n := s.queue.len()
	s.queue.reset()
	if n > 0 {
		s.logger.Debug("pending mutations discarded", "count", n)
	}
	return n
}

// Commit drains the queue, applying each mutation in the order it was
// enqueued. Mutations enqueued by a mutation's Apply are drained in the same
// commit.
//
// If a mutation fails, the mutations after it are discarded and an
// APPLY_FAILED error is returned with the result so far. The queue is
// always empty when Commit returns. Requires exclusive access.
func (s *Store) Commit() (CommitResult, error) {
	var (
		res        CommitResult
		steps      []step
		reversible = true
	)
	defer s.queue.reset()

	for i := 0; i < s.queue.len(); i++ {
		m, ok := s.queue.at(i)
		if !ok {
			continue
		}
		kind := Kind(m)

		var inverse Mutation
		if inv, ok := m.(Invertible); ok && s.history.enabled() {
			var err error
			if inverse, err = inv.Inverse(s); err != nil {
				return res, s.commitFailed(i, m, kind, fmt.Errorf("build inverse: %w", err), steps, reversible)
			}
		} else if !ok {
			reversible = false
		}

		if err := m.Apply(s); err != nil {
			return res, s.commitFailed(i, m, kind, err, steps, reversible)
		}

		seq := s.clock.Next()
		res.Applied = append(res.Applied, Applied{Seq: seq, Target: m.Target(), Kind: kind, Mutation: m})
		if inverse != nil {
			steps = append(steps, step{forward: m, inverse: inverse})
		}
		s.metrics.RecordMutation(kind)
	}

	s.finishHistory(steps, reversible)
	if len(res.Applied) > 0 {
		s.logger.Debug("commit applied", "mutations", len(res.Applied), "seq", s.clock.Current())
	}
	return res, nil
}

func (s *Store) commitFailed(i int, m Mutation, kind string, cause error, steps []step, reversible bool) error {
	dropped := s.queue.len() - i - 1
	s.finishHistory(steps, reversible)
	s.metrics.RecordCommitFailure()
	s.logger.Error("mutation apply failed",
		"kind", kind,
		"state", m.Target(),
		"dropped", dropped,
		"error", cause,
	)
	return &Error{
		Code:    ErrCodeApplyFailed,
		Message: fmt.Sprintf("%s mutation failed, %d pending discarded", kind, dropped),
		Target:  m.Target().String(),
		Err:     cause,
	}
}

// finishHistory records a commit, or forgets the history when the commit
// contained a mutation that cannot be inverted.
func (s *Store) finishHistory(steps []step, reversible bool) {
	if !reversible {
		s.history.reset()
		return
	}
	s.history.record(steps)
}
