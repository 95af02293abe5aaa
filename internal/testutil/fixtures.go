package testutil

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/scaffolding/internal/journal"
	"github.com/roach88/scaffolding/internal/osmem"
	"github.com/roach88/scaffolding/internal/store"
)

// NewStore creates a store on heap memory that is closed when the test
// ends. opts are applied after the defaults and may override them.
func NewStore(t testing.TB, opts ...store.Option) *store.Store {
	t.Helper()
	all := append([]store.Option{store.WithMemory(osmem.NewHeap())}, opts...)
	s, err := store.New(all...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// NewJournal opens a journal in a fresh temporary directory.
func NewJournal(t testing.TB) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

// LogBuffer collects text log output for assertions.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything logged so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewLogger returns a debug-level text logger writing to a LogBuffer.
func NewLogger() (*slog.Logger, *LogBuffer) {
	b := &LogBuffer{}
	return slog.New(slog.NewTextHandler(b, &slog.HandlerOptions{Level: slog.LevelDebug})), b
}
