package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/scaffolding/internal/journal"
)

// JournalOptions holds flags for the journal commands.
type JournalOptions struct {
	*RootOptions
	Database string
}

// NewJournalCommand creates the journal command group.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect a run journal",
		Long: `Inspect the SQLite journal written by "scaffold demo --journal".

Example:
  scaffold journal runs --db ./journal.db
  scaffold journal entries --db ./journal.db <run-id>
  scaffold journal state --db ./journal.db demo.Counter
  scaffold journal verify --db ./journal.db <run-id>`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to journal database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(&cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(opts, cmd, func(ctx context.Context, j *journal.Journal) (any, error) {
				runs, err := j.Runs(ctx)
				return RunList(runs), err
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "entries <run-id>",
		Short: "List the mutations a run committed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(opts, cmd, func(ctx context.Context, j *journal.Journal) (any, error) {
				if _, err := j.Run(ctx, args[0]); err != nil {
					return nil, err
				}
				entries, err := j.Entries(ctx, args[0])
				return EntryList(entries), err
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "state <type>",
		Short: "List every mutation that targeted a state type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(opts, cmd, func(ctx context.Context, j *journal.Journal) (any, error) {
				entries, err := j.EntriesFor(ctx, args[0])
				return EntryList(entries), err
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <run-id>",
		Short: "Recompute a run's digests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(opts, cmd, func(ctx context.Context, j *journal.Journal) (any, error) {
				if err := j.Verify(ctx, args[0]); err != nil {
					return nil, err
				}
				return verifyResult{RunID: args[0], Verified: true}, nil
			})
		},
	})

	return cmd
}

// withJournal opens the journal named by --db, runs query, and prints
// its result.
func withJournal(opts *JournalOptions, cmd *cobra.Command, query func(context.Context, *journal.Journal) (any, error)) error {
	out := opts.formatter(cmd)

	// Open would create a missing file; the inspection commands never should.
	if _, err := os.Stat(opts.Database); err != nil {
		return out.Fail(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(opts.Database)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := query(ctx, j)
	switch {
	case errors.Is(err, journal.ErrRunNotFound):
		return out.Fail(ExitCommandError, "unknown run", err)
	case err != nil:
		return out.Fail(ExitFailure, cmd.Name()+" failed", err)
	}
	return out.Success(result)
}

// RunList renders journal runs.
type RunList []journal.Run

// WriteText prints one row per run. Errors and digests are only in JSON
// output.
func (l RunList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tEXECUTABLES\tMUTATIONS")
	for _, r := range l {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", r.ID, r.Mode, r.Status, r.Executables, r.Mutations)
	}
	return tw.Flush()
}

// EntryList renders journal entries.
type EntryList []journal.Entry

// WriteText prints one row per entry.
func (l EntryList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "No entries.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSEQ\tEXECUTABLE\tSTATE\tKIND\tPAYLOAD")
	for _, e := range l {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", e.RunID, e.Seq, e.Executable, e.Target, e.Kind, e.Payload)
	}
	return tw.Flush()
}

type verifyResult struct {
	RunID    string `json:"run_id"`
	Verified bool   `json:"verified"`
}

func (v verifyResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Run %s verified.\n", v.RunID)
	return err
}
