package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scaffolding/internal/typemap"
)

type counter struct{ Value int }

type tags struct{ Names []string }

func (t tags) Clone() tags {
	return tags{Names: append([]string(nil), t.Names...)}
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func counterValue(t *testing.T, s *Store) int {
	t.Helper()
	c, ok := Get[counter](s)
	require.True(t, ok, "counter present")
	return c.Value
}

// =============================================================================
// State access
// =============================================================================

func TestStore_InsertGet(t *testing.T) {
	s := newTestStore(t)

	_, ok := Get[counter](s)
	assert.False(t, ok)
	assert.False(t, Has[counter](s))

	Insert(s, counter{Value: 3})
	assert.Equal(t, 3, counterValue(t, s))
	assert.True(t, s.HasID(typemap.IDOf[counter]()))

	view, ok := View[counter](s)
	require.True(t, ok)
	assert.Equal(t, 3, view.Value)

	Insert(s, counter{Value: 4})
	assert.Equal(t, 4, view.Value, "view tracks replacement in place")
	assert.Len(t, s.States(), 1)
}

func TestStore_MustGetPanicsWhenMissing(t *testing.T) {
	s := newTestStore(t)

	assert.PanicsWithError(t,
		`MISSING_STATE: state was never inserted; is the plugin that provides it loaded? (state=store.counter)`,
		func() { MustGet[counter](s) })
}

func TestNew_RejectsNegativeHistory(t *testing.T) {
	_, err := New(WithHistoryLimit(-1))
	assert.Error(t, err)
}

// =============================================================================
// Commit
// =============================================================================

func TestCommit_AppliesInFIFOOrder(t *testing.T) {
	s := newTestStore(t)
	Insert(s, counter{})

	require.NoError(t, s.Enqueue(Replace[counter]{Value: counter{Value: 10}}))
	require.NoError(t, s.Enqueue(Update[counter]{Fn: func(c *counter) { c.Value *= 2 }}))
	require.NoError(t, s.Enqueue(Update[counter]{Fn: func(c *counter) { c.Value++ }}))
	assert.Equal(t, 3, s.Pending())

	res, err := s.Commit()
	require.NoError(t, err)

	assert.Equal(t, 21, counterValue(t, s))
	assert.Equal(t, 0, s.Pending(), "queue drained to empty")
	require.Len(t, res.Applied, 3)
	assert.Equal(t, []string{"replace", "update", "update"},
		[]string{res.Applied[0].Kind, res.Applied[1].Kind, res.Applied[2].Kind})
	for i, a := range res.Applied {
		assert.Equal(t, int64(i+1), a.Seq)
		assert.Equal(t, typemap.IDOf[counter](), a.Target)
	}
	assert.Equal(t, int64(3), s.Seq())
}

func TestCommit_EmptyQueue(t *testing.T) {
	s := newTestStore(t)
	res, err := s.Commit()
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.False(t, s.CanUndo())
}

func TestCommit_BatchFlattened(t *testing.T) {
	s := newTestStore(t)
	Insert(s, counter{})

	require.NoError(t, s.Enqueue(Batch{
		Update[counter]{Fn: func(c *counter) { c.Value += 1 }},
		Batch{
			Update[counter]{Fn: func(c *counter) { c.Value += 2 }},
			Replace[tags]{Value: tags{Names: []string{"a"}}},
		},
	}))
	assert.Equal(t, 3, s.Pending())

	res, err := s.Commit()
	require.NoError(t, err)
	assert.Len(t, res.Applied, 3)
	assert.Equal(t, 3, counterValue(t, s))
}

func TestCommit_FailureDiscardsRest(t *testing.T) {
	s := newTestStore(t)
	Insert(s, counter{})

	require.NoError(t, s.Enqueue(Update[counter]{Fn: func(c *counter) { c.Value = 1 }}))
	require.NoError(t, s.Enqueue(Update[tags]{Fn: func(*tags) {}})) // tags absent
	require.NoError(t, s.Enqueue(Update[counter]{Fn: func(c *counter) { c.Value = 99 }}))

	res, err := s.Commit()
	require.Error(t, err)
	assert.True(t, IsApplyFailed(err))
	assert.True(t, IsMissingState(err), "cause is reachable through Unwrap")

	assert.Len(t, res.Applied, 1)
	assert.Equal(t, 1, counterValue(t, s))
	assert.Equal(t, 0, s.Pending())

	// The part that did apply can still be undone.
	require.NoError(t, s.Undo())
	assert.Equal(t, 0, counterValue(t, s))
}

func TestCommit_FuncMayEnqueue(t *testing.T) {
	s := newTestStore(t)
	Insert(s, counter{})

	require.NoError(t, s.Enqueue(Func{
		ID:   typemap.IDOf[counter](),
		Name: "chain",
		Fn: func(st *Store) error {
			return st.Enqueue(Update[counter]{Fn: func(c *counter) { c.Value = 7 }})
		},
	}))

	res, err := s.Commit()
	require.NoError(t, err)
	assert.Len(t, res.Applied, 2)
	assert.Equal(t, "chain", res.Applied[0].Kind)
	assert.Equal(t, 7, counterValue(t, s))
}

func TestDiscard(t *testing.T) {
	s := newTestStore(t)
	Insert(s, counter{Value: 1})
	require.NoError(t, s.Enqueue(Replace[counter]{Value: counter{Value: 2}}))

	assert.Equal(t, 1, s.Discard())
	_, err := s.Commit()
	require.NoError(t, err)
	assert.Equal(t, 1, counterValue(t, s))
}

func TestEnqueue_QueueFull(t *testing.T) {
	s := newTestStore(t, WithMaxPending(2))

	require.NoError(t, s.Enqueue(Remove[counter]{}))
	require.NoError(t, s.Enqueue(Remove[counter]{}))
	err := s.Enqueue(Remove[counter]{})
	require.Error(t, err)
	assert.True(t, IsQueueFull(err))

	// The queue is reusable after a commit.
	_, err = s.Commit()
	require.NoError(t, err)
	assert.NoError(t, s.Enqueue(Remove[counter]{}))
}

func TestEnqueue_BatchAllOrNothing(t *testing.T) {
	s := newTestStore(t, WithMaxPending(3))
	Insert(s, counter{Value: 1})

	require.NoError(t, s.Enqueue(Replace[counter]{Value: counter{Value: 2}}))

	batch := Batch{
		Replace[counter]{Value: counter{Value: 3}},
		Replace[counter]{Value: counter{Value: 4}},
		Replace[counter]{Value: counter{Value: 5}},
	}
	err := s.Enqueue(batch)
	require.Error(t, err)
	assert.True(t, IsQueueFull(err))
	assert.Equal(t, 1, s.Pending(), "no element of the rejected batch is queued")

	res, err := s.Commit()
	require.NoError(t, err)
	assert.Len(t, res.Applied, 1)
	assert.Equal(t, 2, MustGet[counter](s).Value)

	// The same batch fits into the drained queue.
	require.NoError(t, s.Enqueue(batch))
	assert.Equal(t, 3, s.Pending())
	_, err = s.Commit()
	require.NoError(t, err)
	assert.Equal(t, 5, MustGet[counter](s).Value)
}

func TestEnqueue_Concurrent(t *testing.T) {
	s := newTestStore(t)
	Insert(s, counter{})

	const workers, per = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				if err := s.Enqueue(Update[counter]{Fn: func(c *counter) { c.Value++ }}); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	res, err := s.Commit()
	require.NoError(t, err)
	assert.Len(t, res.Applied, workers*per)
	assert.Equal(t, workers*per, counterValue(t, s))
}

// =============================================================================
// Inverses
// =============================================================================

func TestMutation_InverseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		initial *counter
		m       Invertible
	}{
		{"replace present", &counter{Value: 1}, Replace[counter]{Value: counter{Value: 5}}},
		{"replace absent", nil, Replace[counter]{Value: counter{Value: 5}}},
		{"remove present", &counter{Value: 2}, Remove[counter]{}},
		{"remove absent", nil, Remove[counter]{}},
		{"update present", &counter{Value: 3}, Update[counter]{Fn: func(c *counter) { c.Value = -3 }}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			if tt.initial != nil {
				Insert(s, *tt.initial)
			}
			before, hadBefore := Get[counter](s)

			inv, err := tt.m.Inverse(s)
			require.NoError(t, err)
			require.NoError(t, tt.m.Apply(s))
			require.NoError(t, inv.Apply(s))

			after, hasAfter := Get[counter](s)
			assert.Equal(t, hadBefore, hasAfter)
			assert.Equal(t, before, after)
		})
	}
}

func TestMutation_InverseDoesNotAliasCloner(t *testing.T) {
	s := newTestStore(t)
	Insert(s, tags{Names: []string{"a", "b"}})

	m := Update[tags]{Fn: func(tg *tags) { tg.Names[0] = "z" }}
	inv, err := m.Inverse(s)
	require.NoError(t, err)
	require.NoError(t, m.Apply(s))
	require.NoError(t, inv.Apply(s))

	got, _ := Get[tags](s)
	assert.Equal(t, []string{"a", "b"}, got.Names)
}

func TestKindAndPayload(t *testing.T) {
	assert.Equal(t, "replace", Kind(Replace[counter]{}))
	assert.Equal(t, "remove", Kind(Remove[counter]{}))
	assert.Equal(t, "update", Kind(Update[counter]{}))
	assert.Equal(t, "func", Kind(Func{}))
	assert.Equal(t, "batch", Kind(Batch{}))

	p, ok := Payload(Replace[counter]{Value: counter{Value: 2}})
	require.True(t, ok)
	assert.Equal(t, counter{Value: 2}, p)

	_, ok = Payload(Remove[counter]{})
	assert.False(t, ok)
}

func TestFlatten(t *testing.T) {
	assert.Nil(t, Flatten(nil))
	assert.Len(t, Flatten(Remove[counter]{}), 1)
	assert.Len(t, Flatten(Batch{Batch{}, Batch{Remove[counter]{}, Remove[tags]{}}}), 2)
}

// =============================================================================
// History
// =============================================================================

func TestHistory_UndoRedo(t *testing.T) {
	s := newTestStore(t)
	Insert(s, counter{})

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Enqueue(Update[counter]{Fn: func(c *counter) { c.Value += 10 }}))
		_, err := s.Commit()
		require.NoError(t, err)
	}
	assert.Equal(t, 30, counterValue(t, s))

	require.NoError(t, s.Undo())
	require.NoError(t, s.Undo())
	assert.Equal(t, 10, counterValue(t, s))
	assert.True(t, s.CanRedo())

	require.NoError(t, s.Redo())
	assert.Equal(t, 20, counterValue(t, s))

	// A new commit drops the redo stack.
	require.NoError(t, s.Enqueue(Replace[counter]{Value: counter{Value: 1}}))
	_, err := s.Commit()
	require.NoError(t, err)
	assert.False(t, s.CanRedo())
	assert.True(t, IsNothingToRedo(s.Redo()))
}

func TestHistory_UndoRestoresRemovedAndInserted(t *testing.T) {
	s := newTestStore(t)
	Insert(s, counter{Value: 4})

	require.NoError(t, s.Enqueue(Remove[counter]{}))
	require.NoError(t, s.Enqueue(Replace[tags]{Value: tags{Names: []string{"new"}}}))
	_, err := s.Commit()
	require.NoError(t, err)
	assert.False(t, Has[counter](s))

	require.NoError(t, s.Undo())
	assert.Equal(t, 4, counterValue(t, s))
	assert.False(t, Has[tags](s), "state inserted by the commit is removed again")
}

func TestHistory_Empty(t *testing.T) {
	s := newTestStore(t)
	err := s.Undo()
	assert.True(t, IsNothingToUndo(err))
}

func TestHistory_Limit(t *testing.T) {
	s := newTestStore(t, WithHistoryLimit(2))
	Insert(s, counter{})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Enqueue(Update[counter]{Fn: func(c *counter) { c.Value++ }}))
		_, err := s.Commit()
		require.NoError(t, err)
	}

	require.NoError(t, s.Undo())
	require.NoError(t, s.Undo())
	assert.True(t, IsNothingToUndo(s.Undo()))
	assert.Equal(t, 3, counterValue(t, s))
}

func TestHistory_Disabled(t *testing.T) {
	s := newTestStore(t, WithHistoryLimit(0))
	Insert(s, counter{})
	require.NoError(t, s.Enqueue(Update[counter]{Fn: func(c *counter) { c.Value++ }}))
	_, err := s.Commit()
	require.NoError(t, err)

	assert.False(t, s.CanUndo())
}

func TestHistory_FuncClears(t *testing.T) {
	s := newTestStore(t)
	Insert(s, counter{})

	require.NoError(t, s.Enqueue(Update[counter]{Fn: func(c *counter) { c.Value++ }}))
	_, err := s.Commit()
	require.NoError(t, err)
	require.True(t, s.CanUndo())

	require.NoError(t, s.Enqueue(Func{Fn: func(*Store) error { return nil }}))
	_, err = s.Commit()
	require.NoError(t, err)
	assert.False(t, s.CanUndo())
}

// =============================================================================
// Plugins
// =============================================================================

func TestLoad_Idempotent(t *testing.T) {
	s := newTestStore(t)
	runs := 0
	p := NewPlugin("counter", func(st *Store) error {
		runs++
		Insert(st, counter{})
		return nil
	})

	require.NoError(t, s.Load(p))
	require.NoError(t, s.Load(p))
	assert.Equal(t, 1, runs)
	assert.True(t, s.Loaded("counter"))
}

func TestLoad_DiamondRunsSharedOnce(t *testing.T) {
	s := newTestStore(t)
	runs := map[string]int{}
	mk := func(name string, deps ...Plugin) Plugin {
		return NewPlugin(name, func(*Store) error {
			runs[name]++
			return nil
		}, deps...)
	}

	base := mk("base")
	left := mk("left", base)
	right := mk("right", base)
	top := mk("top", left, right)

	require.NoError(t, s.Load(top))
	assert.Equal(t, map[string]int{"base": 1, "left": 1, "right": 1, "top": 1}, runs)
	assert.Equal(t, []string{"base", "left", "right", "top"}, s.Plugins())
}

func TestLoad_SameNameDifferentValue(t *testing.T) {
	s := newTestStore(t)
	runs := 0
	load := func(*Store) error { runs++; return nil }

	require.NoError(t, s.Load(NewPlugin("x", load)))
	require.NoError(t, s.Load(NewPlugin("x", load)))
	assert.Equal(t, 1, runs, "identity is the plugin name")
}

// cyclic lets a test wire a dependency loop.
type cyclic struct {
	name string
	deps []Plugin
	runs *int
}

func (c *cyclic) Name() string       { return c.name }
func (c *cyclic) Requires() []Plugin { return c.deps }
func (c *cyclic) Load(*Store) error  { *c.runs++; return nil }

func TestLoad_CycleDetectedBeforeLoad(t *testing.T) {
	s := newTestStore(t)
	runs := 0
	a := &cyclic{name: "a", runs: &runs}
	b := &cyclic{name: "b", runs: &runs}
	a.deps = []Plugin{b}
	b.deps = []Plugin{a}

	err := s.Load(a)
	require.Error(t, err)
	assert.True(t, IsCycleError(err))
	assert.Equal(t, 0, runs, "no load routine on the cycle ran")
	assert.False(t, s.Loaded("a"))
	assert.False(t, s.Loaded("b"))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"a", "b", "a"}, se.Path)
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestLoad_FailureNotMarked(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")
	fail := true
	p := NewPlugin("flaky", func(*Store) error {
		if fail {
			return boom
		}
		return nil
	})

	err := s.Load(p)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.Loaded("flaky"))

	fail = false
	require.NoError(t, s.Load(p))
	assert.True(t, s.Loaded("flaky"))
}

// =============================================================================
// Scenario
// =============================================================================

func TestScenario_CounterPlusFive(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load(NewPlugin("counter", func(st *Store) error {
		Insert(st, counter{Value: 0})
		return nil
	})))

	require.NoError(t, s.Enqueue(Replace[counter]{Value: counter{Value: MustGet[counter](s).Value + 5}}))
	_, err := s.Commit()
	require.NoError(t, err)

	assert.Equal(t, 5, counterValue(t, s))
}
