// Package demo is a small application built on the store and runner. The
// CLI's demo command runs it, and tests use it as an end-to-end fixture.
package demo

import (
	"context"
	"fmt"

	"github.com/roach88/scaffolding/internal/arenavec"
	"github.com/roach88/scaffolding/internal/engine"
	"github.com/roach88/scaffolding/internal/store"
)

// Counter is bumped by sequential passes.
type Counter struct {
	Value int `json:"value"`
}

// A and B are independent states incremented in parallel.
type A struct {
	N int `json:"n"`
}

type B struct {
	N int `json:"n"`
}

// Sample is one telemetry reading. It holds no pointers, so the samples
// vector can live in mapped memory.
type Sample struct {
	Source uint32
	Value  int64
}

// Telemetry collects samples. Executables append through a read handle:
// Push needs only shared access, so many samplers can run in one parallel
// pass without a write intent.
type Telemetry struct {
	Samples *arenavec.Vec[Sample]
}

// Summary aggregates the telemetry collected so far.
type Summary struct {
	Samples int   `json:"samples"`
	Total   int64 `json:"total"`
}

// DefaultMaxSamples bounds the telemetry vector.
const DefaultMaxSamples = 1 << 16

// CorePlugin inserts Counter, A, and B.
func CorePlugin() store.Plugin {
	return store.NewPlugin("demo/core", func(s *store.Store) error {
		store.Insert(s, Counter{})
		store.Insert(s, A{})
		store.Insert(s, B{})
		return nil
	})
}

// TelemetryPlugin inserts Telemetry backed by the store's memory.
func TelemetryPlugin(maxSamples int) store.Plugin {
	return store.NewPlugin("demo/telemetry", func(s *store.Store) error {
		samples, err := arenavec.New[Sample](
			arenavec.WithMaxLen(maxSamples),
			arenavec.WithMemory(s.Memory()),
		)
		if err != nil {
			return fmt.Errorf("telemetry samples: %w", err)
		}
		store.Insert(s, Telemetry{Samples: samples})
		store.Insert(s, Summary{})
		return nil
	}, CorePlugin())
}

// Plugin loads the whole demo application.
func Plugin(maxSamples int) store.Plugin {
	return store.NewPlugin("demo", func(*store.Store) error { return nil },
		CorePlugin(), TelemetryPlugin(maxSamples))
}

// Close releases the telemetry vector, if loaded.
func Close(s *store.Store) error {
	t, ok := store.Get[Telemetry](s)
	if !ok || t.Samples == nil {
		return nil
	}
	return t.Samples.Close()
}

// Bump adds by to Counter, one step at a time.
func Bump(by int) *engine.Executable {
	return engine.Func1("bump", engine.Write[Counter](), func(c *engine.Mut[Counter]) error {
		for range by {
			c.Modify(func(v *Counter) { v.Value++ })
		}
		return nil
	})
}

// IncA increments A.
func IncA() *engine.Executable {
	return engine.Func1("inc-a", engine.Write[A](), func(a *engine.Mut[A]) error {
		a.Modify(func(v *A) { v.N++ })
		return nil
	})
}

// IncB increments B.
func IncB() *engine.Executable {
	return engine.Func1("inc-b", engine.Write[B](), func(b *engine.Mut[B]) error {
		b.Modify(func(v *B) { v.N++ })
		return nil
	})
}

// Sampler appends one reading to Telemetry.
func Sampler(source uint32, value int64) *engine.Executable {
	name := fmt.Sprintf("sample-%d", source)
	return engine.Func1(name, engine.Read[Telemetry](), func(t *engine.Ref[Telemetry]) error {
		_, err := t.View().Samples.Push(Sample{Source: source, Value: value})
		return err
	})
}

// Summarize recomputes Summary from Telemetry.
func Summarize() *engine.Executable {
	return engine.Func2("summarize", engine.Read[Telemetry](), engine.Write[Summary](),
		func(t *engine.Ref[Telemetry], sum *engine.Mut[Summary]) error {
			var next Summary
			for _, s := range t.View().Samples.All() {
				next.Samples++
				next.Total += s.Value
			}
			sum.Set(next)
			return nil
		})
}

// Options sizes a demo run.
type Options struct {
	// Increments is how far the sequential pass bumps Counter.
	Increments int
	// Samplers is how many sampler executables join the parallel pass.
	Samplers int
}

// Result is the state after Run, plus the report of every pass.
type Result struct {
	Counter Counter         `json:"counter"`
	A       A               `json:"a"`
	B       B               `json:"b"`
	Summary Summary         `json:"summary"`
	Reports []engine.Report `json:"-"`
}

// Run drives three passes: a sequential bump, a parallel pass that
// increments A and B while the samplers record telemetry, and a
// sequential summary. s must have Plugin loaded.
func Run(ctx context.Context, r *engine.Runner, s *store.Store, opts Options) (Result, error) {
	var res Result

	rep, err := r.Execute(ctx, Bump(opts.Increments))
	res.Reports = append(res.Reports, rep)
	if err != nil {
		return res, fmt.Errorf("bump pass: %w", err)
	}

	exes := []*engine.Executable{IncA(), IncB()}
	for i := range opts.Samplers {
		exes = append(exes, Sampler(uint32(i+1), int64(i+1)))
	}
	rep, err = r.ExecuteParallel(ctx, exes...)
	res.Reports = append(res.Reports, rep)
	if err != nil {
		return res, fmt.Errorf("parallel pass: %w", err)
	}

	rep, err = r.Execute(ctx, Summarize())
	res.Reports = append(res.Reports, rep)
	if err != nil {
		return res, fmt.Errorf("summary pass: %w", err)
	}

	res.Counter = store.MustGet[Counter](s)
	res.A = store.MustGet[A](s)
	res.B = store.MustGet[B](s)
	res.Summary = store.MustGet[Summary](s)
	return res, nil
}
