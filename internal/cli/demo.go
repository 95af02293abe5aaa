package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/scaffolding/internal/config"
	"github.com/roach88/scaffolding/internal/demo"
	"github.com/roach88/scaffolding/internal/engine"
	"github.com/roach88/scaffolding/internal/journal"
	"github.com/roach88/scaffolding/internal/observability"
	"github.com/roach88/scaffolding/internal/store"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	Increments  int
	Samplers    int
	Mode        string
	Workers     int
	Journal     string
	MetricsAddr string

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	return newDemoCommand(&DemoOptions{RootOptions: rootOpts})
}

func newDemoCommand(opts *DemoOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the demo application",
		Long: `Load the demo plugins into a fresh store and run three passes:

  1. sequential: bump Counter --increments times through one write handle
  2. parallel:   increment A and B while --samplers executables append telemetry
  3. sequential: summarize the telemetry

Flags override the matching config values. With --journal every pass is
recorded in a SQLite journal. With --metrics-addr the prometheus metrics are
served at /metrics until Ctrl-C.

Example:
  scaffold demo --increments 5
  scaffold demo --mode immediate --journal ./journal.db
  scaffold demo --metrics-addr :9090 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Increments, "increments", 5, "how far the sequential pass bumps Counter")
	cmd.Flags().IntVar(&opts.Samplers, "samplers", 4, "sampler executables in the parallel pass")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "capture mode (delayed|immediate); overrides config")
	cmd.Flags().IntVar(&opts.Workers, "workers", -1, "parallel workers (0 = one per CPU); overrides config")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to journal database; overrides config")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	return cmd
}

// DemoResult is the output of the demo command.
type DemoResult struct {
	demo.Result
	Runs []RunSummary `json:"runs"`
}

// RunSummary describes one pass of the demo.
type RunSummary struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Mode        string `json:"mode"`
	Executables int    `json:"executables"`
	Mutations   int    `json:"mutations"`
}

// WriteText renders the result for humans.
func (r DemoResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Counter: %d\n", r.Counter.Value)
	fmt.Fprintf(w, "A: %d  B: %d\n", r.A.N, r.B.N)
	fmt.Fprintf(w, "Telemetry: %d samples, total %d\n", r.Summary.Samples, r.Summary.Total)
	for _, run := range r.Runs {
		fmt.Fprintf(w, "  %-10s  %s  %d executables, %d mutations\n", run.Kind, run.ID, run.Executables, run.Mutations)
	}
	return nil
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	applyDemoFlags(opts, cmd, &cfg)
	logger := opts.logger(cmd.ErrOrStderr(), cfg)

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	storeOpts := append(cfg.StoreOptions(), store.WithLogger(logger), store.WithMetrics(metrics))
	s, err := store.New(storeOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create store", err)
	}
	defer s.Close()

	if err := s.Load(demo.Plugin(demo.DefaultMaxSamples)); err != nil {
		return out.Fail(ExitCommandError, "failed to load plugins", err)
	}
	defer demo.Close(s)

	runnerOpts, err := cfg.RunnerOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid runner config", err)
	}
	runnerOpts = append(runnerOpts, engine.WithLogger(logger), engine.WithMetrics(metrics))
	if opts.RunIDs != nil {
		runnerOpts = append(runnerOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}

	if cfg.Journal.Path != "" {
		logger.Debug("opening journal", "path", cfg.Journal.Path)
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		runnerOpts = append(runnerOpts, engine.WithJournal(j))
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	r := engine.NewRunner(s, runnerOpts...)
	res, err := demo.Run(ctx, r, s, demo.Options{Increments: opts.Increments, Samplers: opts.Samplers})
	if err != nil {
		return out.Fail(ExitFailure, "demo failed", err)
	}

	result := DemoResult{Result: res}
	for _, rep := range res.Reports {
		result.Runs = append(result.Runs, RunSummary{
			ID:          rep.RunID,
			Kind:        rep.Kind,
			Mode:        rep.Mode.String(),
			Executables: rep.Executables,
			Mutations:   rep.Mutations(),
		})
	}
	if err := out.Success(result); err != nil {
		return err
	}

	if opts.MetricsAddr != "" {
		return serveMetrics(ctx, opts.MetricsAddr, reg, cmd.OutOrStdout(), logger)
	}
	return nil
}

// applyDemoFlags lets explicitly set flags override the config file.
func applyDemoFlags(opts *DemoOptions, cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Runner.Mode = opts.Mode
	}
	if flags.Changed("workers") {
		cfg.Runner.Workers = opts.Workers
	}
	if flags.Changed("journal") {
		cfg.Journal.Path = opts.Journal
	}
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// serveMetrics serves /metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, w io.Writer, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen for metrics", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String())
	fmt.Fprintf(w, "Serving metrics on http://%s/metrics\n", ln.Addr())
	fmt.Fprintln(w, "Press Ctrl-C to stop.")

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "metrics server error", err)
	}
	logger.Info("metrics server stopped")
	return nil
}
