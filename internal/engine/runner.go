package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/scaffolding/internal/arenavec"
	"github.com/roach88/scaffolding/internal/journal"
	"github.com/roach88/scaffolding/internal/observability"
	"github.com/roach88/scaffolding/internal/stackvec"
	"github.com/roach88/scaffolding/internal/store"
	"github.com/roach88/scaffolding/internal/typemap"
	"github.com/roach88/scaffolding/internal/warehouse"
)

// Mode selects when write handles turn changes into mutations.
type Mode int

const (
	// ModeDelayed emits one mutation per changed write handle after the
	// logic returns.
	ModeDelayed Mode = iota
	// ModeImmediate emits a mutation on every change.
	ModeImmediate
)

func (m Mode) String() string {
	switch m {
	case ModeDelayed:
		return "delayed"
	case ModeImmediate:
		return "immediate"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "delayed" or "immediate".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "delayed", "":
		return ModeDelayed, nil
	case "immediate":
		return ModeImmediate, nil
	default:
		return 0, fmt.Errorf("unknown capture mode %q (want delayed or immediate)", s)
	}
}

// Run kinds, as recorded in the journal and in metrics.
const (
	KindSequential = "sequential"
	KindParallel   = "parallel"
)

// derivedOwner attributes mutations that another mutation enqueued while
// it was applied.
const derivedOwner = "(commit)"

// Runner drives executables against a store and commits what they emit.
//
// A Runner needs exclusive use of its store while a pass runs; passes must
// not overlap.
type Runner struct {
	store   *store.Store
	mode    Mode
	workers int
	ids     RunIDGenerator
	journal *journal.Journal
	metrics *observability.Metrics
	logger  *slog.Logger

	inflight atomic.Pointer[warehouse.Warehouse[string]]
}

// RunnerOption configures NewRunner.
type RunnerOption func(*Runner)

// WithMode sets the capture mode. Default: ModeDelayed.
func WithMode(m Mode) RunnerOption {
	return func(r *Runner) { r.mode = m }
}

// WithWorkers bounds how many executables a parallel pass runs at once.
// Zero or less means runtime.GOMAXPROCS(0).
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) { r.workers = n }
}

// WithRunIDGenerator sets how run IDs are generated. Default: UUIDv7.
func WithRunIDGenerator(g RunIDGenerator) RunnerOption {
	return func(r *Runner) { r.ids = g }
}

// WithJournal records every pass in j.
func WithJournal(j *journal.Journal) RunnerOption {
	return func(r *Runner) { r.journal = j }
}

// WithMetrics records passes on m.
func WithMetrics(m *observability.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger. Default: the store's logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner over s.
func NewRunner(s *store.Store, opts ...RunnerOption) *Runner {
	r := &Runner{store: s, ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers <= 0 {
		r.workers = runtime.GOMAXPROCS(0)
	}
	if r.logger == nil {
		r.logger = s.Logger()
	}
	return r
}

// Mode returns the runner's capture mode.
func (r *Runner) Mode() Mode { return r.mode }

// Change is a committed mutation together with the executable that
// emitted it.
type Change struct {
	Executable string
	store.Applied
}

// Report describes one pass.
type Report struct {
	RunID       string
	Kind        string
	Mode        Mode
	Executables int
	Changes     []Change
	Duration    time.Duration
}

// Mutations returns the number of committed mutations.
func (r Report) Mutations() int { return len(r.Changes) }

// Execute runs exes one after another in the caller's goroutine. Each
// executable's mutations are committed before the next one starts, so
// later executables see earlier changes.
//
// The pass stops at the first failure. The failing executable's pending
// mutations are discarded; commits made before it stand. The context is
// checked before each executable, never during one.
//
// The store's queue must be empty when the pass starts; otherwise the pass
// fails with PENDING_MUTATIONS and the queue is left untouched.
func (r *Runner) Execute(ctx context.Context, exes ...*Executable) (Report, error) {
	start := time.Now()
	rep := Report{RunID: r.ids.Generate(), Kind: KindSequential, Mode: r.mode, Executables: len(exes)}

	var runErr error
	if n := r.store.Pending(); n > 0 {
		runErr = newPendingError(n)
		exes = nil
	}
	for _, exe := range exes {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := exe.invoke(r.store, r.mode, r.store.Enqueue); err != nil {
			r.metrics.RecordExecutable(false)
			r.store.Discard()
			runErr = err
			break
		}
		r.metrics.RecordExecutable(true)

		res, err := r.store.Commit()
		for _, a := range res.Applied {
			rep.Changes = append(rep.Changes, Change{Executable: exe.name, Applied: a})
		}
		if err != nil {
			runErr = err
			break
		}
	}

	rep.Duration = time.Since(start)
	return rep, r.finish(ctx, rep, runErr)
}

// ExecuteParallel runs exes concurrently, each with its own handles and
// its own local batch of mutations. The store is not modified until every
// executable has finished; then the batches are enqueued in submission
// order and committed.
//
// If any executable fails, nothing is committed and the errors of all
// failing executables are joined in submission order. As with Execute, the
// store's queue must be empty when the pass starts.
func (r *Runner) ExecuteParallel(ctx context.Context, exes ...*Executable) (Report, error) {
	start := time.Now()
	rep := Report{RunID: r.ids.Generate(), Kind: KindParallel, Mode: r.mode, Executables: len(exes)}

	runErr := r.parallel(ctx, exes, &rep)
	rep.Duration = time.Since(start)
	return rep, r.finish(ctx, rep, runErr)
}

func (r *Runner) parallel(ctx context.Context, exes []*Executable, rep *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := r.store.Pending(); n > 0 {
		return newPendingError(n)
	}
	if len(exes) == 0 {
		return nil
	}

	inflight, err := warehouse.New[string](
		arenavec.WithMaxLen(len(exes)),
		arenavec.WithBacking(arenavec.BackingHeap),
	)
	if err != nil {
		return fmt.Errorf("track in-flight executables: %w", err)
	}
	// Heap-backed, so it is not closed: InFlight may still be iterating it.
	r.inflight.Store(inflight)
	defer r.inflight.Store(nil)

	batches := make([]stackvec.Vec[store.Mutation], len(exes))
	errs := make([]error, len(exes))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, exe := range exes {
		g.Go(func() error {
			if h, err := inflight.Insert(exe.name); err == nil {
				defer inflight.Remove(h)
			}
			batch := &batches[i]
			errs[i] = exe.invoke(r.store, r.mode, func(m store.Mutation) error {
				for _, e := range store.Flatten(m) {
					batch.Push(e)
				}
				return nil
			})
			return nil
		})
	}
	// Barrier: no batch is applied before every worker is done.
	_ = g.Wait()

	for _, err := range errs {
		r.metrics.RecordExecutable(err == nil)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	r.warnOverlappingWrites(exes)

	var owners []string
	for i := range batches {
		for _, m := range batches[i].All() {
			if err := r.store.Enqueue(m); err != nil {
				r.store.Discard()
				return err
			}
			owners = append(owners, exes[i].name)
		}
	}

	res, err := r.store.Commit()
	for k, a := range res.Applied {
		owner := derivedOwner
		if k < len(owners) {
			owner = owners[k]
		}
		rep.Changes = append(rep.Changes, Change{Executable: owner, Applied: a})
	}
	return err
}

// warnOverlappingWrites logs when two executables of one parallel pass
// declared write intent on the same state. Both batches apply; the later
// submission's value wins.
func (r *Runner) warnOverlappingWrites(exes []*Executable) {
	writers := make(map[typemap.ID]string)
	for _, exe := range exes {
		for _, id := range exe.Writes() {
			if first, ok := writers[id]; ok && first != exe.name {
				r.logger.Warn("parallel executables write the same state",
					"state", id,
					"first", first,
					"second", exe.name,
				)
				continue
			}
			writers[id] = exe.name
		}
	}
}

// InFlight lists the executables a parallel pass is running right now.
// Empty outside a parallel pass.
func (r *Runner) InFlight() []string {
	w := r.inflight.Load()
	if w == nil {
		return nil
	}
	var names []string
	for _, name := range w.All() {
		names = append(names, *name)
	}
	return names
}

func (r *Runner) finish(ctx context.Context, rep Report, runErr error) error {
	r.metrics.RecordRun(rep.Kind, runErr == nil, rep.Duration)

	if r.journal != nil {
		// A cancelled pass is still recorded.
		if err := r.record(context.WithoutCancel(ctx), rep, runErr); err != nil {
			r.logger.Error("journal write failed", "run", rep.RunID, "error", err)
			runErr = errors.Join(runErr, err)
		}
	}

	if runErr != nil {
		r.logger.Error("run failed",
			"run", rep.RunID,
			"kind", rep.Kind,
			"executables", rep.Executables,
			"mutations", rep.Mutations(),
			"error", runErr,
		)
		return runErr
	}
	r.logger.Debug("run complete",
		"run", rep.RunID,
		"kind", rep.Kind,
		"mode", rep.Mode,
		"executables", rep.Executables,
		"mutations", rep.Mutations(),
		"duration", rep.Duration,
	)
	return nil
}

func (r *Runner) record(ctx context.Context, rep Report, runErr error) error {
	run := journal.Run{
		ID:          rep.RunID,
		Mode:        rep.Kind,
		Status:      journal.StatusOK,
		Executables: rep.Executables,
	}
	if runErr != nil {
		run.Status = journal.StatusFailed
		run.Error = runErr.Error()
	}

	entries := make([]journal.Entry, 0, len(rep.Changes))
	for _, c := range rep.Changes {
		payload, ok := store.Payload(c.Mutation)
		entries = append(entries, journal.NewEntry(rep.RunID, c.Seq, c.Executable, c.Target.String(), c.Kind, payload, ok))
	}
	if _, err := r.journal.WriteRun(ctx, run, entries); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}
