package journal

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/scaffolding/internal/canon"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run summarizes one runner pass.
type Run struct {
	ID          string `json:"id"`
	Mode        string `json:"mode"`
	Status      string `json:"status"`
	Executables int    `json:"executables"`
	Mutations   int    `json:"mutations"`
	Error       string `json:"error,omitempty"`
	Digest      string `json:"digest"`
}

// Entry is one committed mutation.
type Entry struct {
	RunID      string `json:"run_id"`
	Seq        int64  `json:"seq"`
	Executable string `json:"executable"`
	Target     string `json:"target"`
	Kind       string `json:"kind"`
	// Payload is the canonical JSON of the written value; empty when the
	// mutation carries none or it does not encode.
	Payload string `json:"payload,omitempty"`
	Digest  string `json:"digest"`
}

// NewEntry builds an entry and computes its digest. A payload that cannot
// be encoded is recorded as empty rather than failing the run.
func NewEntry(runID string, seq int64, executable, target, kind string, payload any, hasPayload bool) Entry {
	e := Entry{
		RunID:      runID,
		Seq:        seq,
		Executable: executable,
		Target:     target,
		Kind:       kind,
	}
	if hasPayload {
		if b, err := canon.Marshal(payload); err == nil {
			e.Payload = string(b)
		}
	}
	e.Digest = entryDigest(e)
	return e
}

func entryDigest(e Entry) string {
	b, err := canon.Marshal(map[string]any{
		"run_id":     e.RunID,
		"seq":        e.Seq,
		"executable": e.Executable,
		"target":     e.Target,
		"kind":       e.Kind,
		"payload":    e.Payload,
	})
	if err != nil {
		// Only strings and integers above; encoding cannot fail.
		panic(fmt.Sprintf("journal: entry digest: %v", err))
	}
	return canon.Digest(canon.DomainEntry, b)
}

func runDigest(r Run, entries []Entry) string {
	// Entries are read back by seq, so the digest covers them in seq order.
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry) int { return cmp.Compare(a.Seq, b.Seq) })
	digests := make([]any, len(sorted))
	for i, e := range sorted {
		digests[i] = e.Digest
	}
	b, err := canon.Marshal(map[string]any{
		"id":          r.ID,
		"mode":        r.Mode,
		"status":      r.Status,
		"executables": r.Executables,
		"mutations":   r.Mutations,
		"error":       r.Error,
		"entries":     digests,
	})
	if err != nil {
		panic(fmt.Sprintf("journal: run digest: %v", err))
	}
	return canon.Digest(canon.DomainRun, b)
}

// WriteRun records a run and its entries in one transaction. The run's
// Mutations count and Digest are filled in from entries.
func (j *Journal) WriteRun(ctx context.Context, r Run, entries []Entry) (Run, error) {
	r.Mutations = len(entries)
	r.Digest = runDigest(r, entries)

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return r, fmt.Errorf("write run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, mode, status, executables, mutations, error, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Mode, r.Status, r.Executables, r.Mutations, r.Error, r.Digest)
	if err != nil {
		return r, fmt.Errorf("write run %s: %w", r.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (run_id, seq, executable, target, kind, payload, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return r, fmt.Errorf("write run %s: %w", r.ID, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.RunID != r.ID {
			return r, fmt.Errorf("write run %s: entry seq %d belongs to run %s", r.ID, e.Seq, e.RunID)
		}
		if _, err := stmt.ExecContext(ctx, e.RunID, e.Seq, e.Executable, e.Target, e.Kind, e.Payload, e.Digest); err != nil {
			return r, fmt.Errorf("write run %s entry seq %d: %w", r.ID, e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return r, fmt.Errorf("write run %s: %w", r.ID, err)
	}
	return r, nil
}

// Runs lists recorded runs, oldest first.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, mode, status, executables, mutations, error, digest
		FROM runs
		ORDER BY ordinal ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Mode, &r.Status, &r.Executables, &r.Mutations, &r.Error, &r.Digest); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ErrRunNotFound is returned by Run for an unknown ID.
var ErrRunNotFound = errors.New("journal: run not found")

// Run returns one recorded run.
func (j *Journal) Run(ctx context.Context, id string) (Run, error) {
	var r Run
	err := j.db.QueryRowContext(ctx, `
		SELECT id, mode, status, executables, mutations, error, digest
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Mode, &r.Status, &r.Executables, &r.Mutations, &r.Error, &r.Digest)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return r, fmt.Errorf("query run %s: %w", id, err)
	}
	return r, nil
}

// Entries lists a run's entries in seq order.
func (j *Journal) Entries(ctx context.Context, runID string) ([]Entry, error) {
	return j.queryEntries(ctx, `
		SELECT run_id, seq, executable, target, kind, payload, digest
		FROM entries
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// EntriesFor lists every entry that targeted the named state type, in
// run order then seq order.
func (j *Journal) EntriesFor(ctx context.Context, target string) ([]Entry, error) {
	return j.queryEntries(ctx, `
		SELECT e.run_id, e.seq, e.executable, e.target, e.kind, e.payload, e.digest
		FROM entries e
		JOIN runs r ON r.id = e.run_id
		WHERE e.target = ?
		ORDER BY r.ordinal ASC, e.seq ASC
	`, target)
}

func (j *Journal) queryEntries(ctx context.Context, query string, arg any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Executable, &e.Target, &e.Kind, &e.Payload, &e.Digest); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Verify recomputes every digest of a run and reports the first mismatch.
func (j *Journal) Verify(ctx context.Context, runID string) error {
	r, err := j.Run(ctx, runID)
	if err != nil {
		return err
	}
	entries, err := j.Entries(ctx, runID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if got := entryDigest(e); got != e.Digest {
			return fmt.Errorf("journal: entry seq %d of run %s: digest %s, recorded %s", e.Seq, runID, got, e.Digest)
		}
	}
	if got := runDigest(r, entries); got != r.Digest {
		return fmt.Errorf("journal: run %s: digest %s, recorded %s", runID, got, r.Digest)
	}
	return nil
}
