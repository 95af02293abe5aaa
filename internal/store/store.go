package store

import (
	"fmt"
	"log/slog"

	"github.com/roach88/scaffolding/internal/observability"
	"github.com/roach88/scaffolding/internal/osmem"
	"github.com/roach88/scaffolding/internal/typemap"
)

// Store holds one instance per state type plus the queue of mutations
// waiting to be applied to them.
//
// Concurrency contract:
//   - Insert, Load, Commit, Discard, Undo, Redo, and Close need exclusive
//     access (plugin load and commit are single-threaded phases).
//   - Get, View, Has, and Enqueue may run concurrently with each other as
//     long as none of the exclusive operations is running.
type Store struct {
	states  *typemap.Map
	queue   *queue
	plugins *registry
	history history
	clock   *Clock

	mem     osmem.Memory
	logger  *slog.Logger
	metrics *observability.Metrics
}

type options struct {
	maxPending   int
	historyLimit int
	mem          osmem.Memory
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// Option configures New.
type Option func(*options)

// WithMaxPending bounds the number of mutations queued between commits.
func WithMaxPending(n int) Option {
	return func(o *options) { o.maxPending = n }
}

// WithHistoryLimit sets how many commits Undo can revert. Zero disables
// history.
func WithHistoryLimit(n int) Option {
	return func(o *options) { o.historyLimit = n }
}

// WithMemory sets the Memory plugins should use for address-stable
// containers they put in the store. Defaults to osmem.Default().
func WithMemory(m osmem.Memory) Option {
	return func(o *options) { o.mem = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records store activity on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates an empty store.
func New(opts ...Option) (*Store, error) {
	o := options{
		maxPending:   DefaultMaxPending,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.historyLimit < 0 {
		return nil, fmt.Errorf("store: history limit must not be negative, got %d", o.historyLimit)
	}
	if o.mem == nil {
		o.mem = osmem.Default()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	q, err := newQueue(o.maxPending)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{
		states:  typemap.New(),
		queue:   q,
		plugins: newRegistry(),
		history: history{limit: o.historyLimit},
		clock:   NewClock(),
		mem:     o.mem,
		logger:  o.logger,
		metrics: o.metrics,
	}, nil
}

// Close releases the queue's storage. Pending mutations are dropped.
func (s *Store) Close() error {
	return s.queue.close()
}

// Memory returns the Memory configured for address-stable containers.
func (s *Store) Memory() osmem.Memory { return s.mem }

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger { return s.logger }

// Seq returns the sequence number of the last applied mutation.
func (s *Store) Seq() int64 { return s.clock.Current() }

// Insert puts v in the store directly, bypassing the queue and history.
// Meant for plugin load routines.
func Insert[T any](s *Store, v T) {
	if _, replaced := typemap.Insert(s.states, v); replaced {
		s.logger.Debug("state replaced", "state", typemap.IDOf[T]())
	}
}

// Get returns a copy of the committed state of type T.
func Get[T any](s *Store) (T, bool) {
	p, ok := typemap.Get[T](s.states)
	if !ok {
		var zero T
		return zero, false
	}
	return *p, true
}

// MustGet returns the state of type T and panics if it was never inserted.
func MustGet[T any](s *Store) T {
	v, ok := Get[T](s)
	if !ok {
		panic(NewMissingStateError(typemap.IDOf[T]().String()))
	}
	return v
}

// View returns a pointer to the committed state of type T. The pointee must
// not be modified; it stays valid until the state is removed.
func View[T any](s *Store) (*T, bool) {
	return typemap.Get[T](s.states)
}

// Has reports whether a state of type T is present.
func Has[T any](s *Store) bool {
	return typemap.Contains[T](s.states)
}

// HasID reports whether a state with identity id is present.
func (s *Store) HasID(id typemap.ID) bool {
	return s.states.Has(id)
}

// States lists the identities of all present states, ordered by name.
func (s *Store) States() []typemap.ID {
	return s.states.IDs()
}
