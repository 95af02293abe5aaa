package store

import "fmt"

// DefaultHistoryLimit is the number of commits kept for undo.
const DefaultHistoryLimit = 64

// step pairs an applied mutation with the inverse captured before it ran.
type step struct {
	forward Mutation
	inverse Mutation
}

// history holds undo and redo stacks of whole commits.
type history struct {
	limit int
	undo  [][]step
	redo  [][]step
}

func (h *history) enabled() bool { return h.limit > 0 }

// record pushes a commit. A new commit invalidates anything undone.
func (h *history) record(steps []step) {
	if !h.enabled() || len(steps) == 0 {
		return
	}
	h.redo = h.redo[:0]
	h.undo = append(h.undo, steps)
	if over := len(h.undo) - h.limit; over > 0 {
		clear(h.undo[:over])
		h.undo = h.undo[over:]
	}
}

func (h *history) reset() {
	h.undo = nil
	h.redo = nil
}

// CanUndo reports whether Undo has a commit to revert.
func (s *Store) CanUndo() bool { return len(s.history.undo) > 0 }

// CanRedo reports whether Redo has a commit to reapply.
func (s *Store) CanRedo() bool { return len(s.history.redo) > 0 }

// Undo reverts the most recent commit by applying its inverses newest first.
// Requires exclusive access.
func (s *Store) Undo() error {
	n := len(s.history.undo)
	if n == 0 {
		return &Error{Code: ErrCodeNothingToUndo, Message: "no commit to undo"}
	}
	steps := s.history.undo[n-1]
	s.history.undo = s.history.undo[:n-1]

	for i := len(steps) - 1; i >= 0; i-- {
		if err := s.applyStep(steps[i].inverse, "undo"); err != nil {
			// A half-undone commit cannot be redone or undone reliably.
			s.history.reset()
			return err
		}
	}
	s.history.redo = append(s.history.redo, steps)
	s.metrics.RecordHistoryStep("undo")
	s.logger.Debug("commit undone", "mutations", len(steps), "seq", s.clock.Current())
	return nil
}

// Redo reapplies the most recently undone commit. Requires exclusive access.
func (s *Store) Redo() error {
	n := len(s.history.redo)
	if n == 0 {
		return &Error{Code: ErrCodeNothingToRedo, Message: "no undone commit to redo"}
	}
	steps := s.history.redo[n-1]
	s.history.redo = s.history.redo[:n-1]

	for _, st := range steps {
		if err := s.applyStep(st.forward, "redo"); err != nil {
			s.history.reset()
			return err
		}
	}
	s.history.undo = append(s.history.undo, steps)
	s.metrics.RecordHistoryStep("redo")
	s.logger.Debug("commit redone", "mutations", len(steps), "seq", s.clock.Current())
	return nil
}

func (s *Store) applyStep(m Mutation, op string) error {
	if err := m.Apply(s); err != nil {
		return &Error{
			Code:    ErrCodeApplyFailed,
			Message: fmt.Sprintf("%s of %s mutation failed", op, Kind(m)),
			Target:  m.Target().String(),
			Err:     err,
		}
	}
	s.clock.Next()
	return nil
}
