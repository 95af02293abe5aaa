// Package config loads the scaffold configuration file.
//
// The file is YAML. It is decoded with gopkg.in/yaml.v3, unified with the
// embedded CUE schema (schema.cue), which supplies defaults and rejects
// unknown keys and out-of-range values, and then decoded into Config.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/scaffolding/internal/engine"
	"github.com/roach88/scaffolding/internal/osmem"
	"github.com/roach88/scaffolding/internal/store"
)

//go:embed schema.cue
var schemaCUE string

// Config is a validated configuration with defaults applied.
type Config struct {
	Store   StoreConfig   `json:"store" yaml:"store"`
	Runner  RunnerConfig  `json:"runner" yaml:"runner"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// StoreConfig sizes the store.
type StoreConfig struct {
	MaxPending   int    `json:"max_pending" yaml:"max_pending"`
	HistoryLimit int    `json:"history_limit" yaml:"history_limit"`
	Memory       string `json:"memory" yaml:"memory"`
}

// RunnerConfig configures the runner.
type RunnerConfig struct {
	Mode    string `json:"mode" yaml:"mode"`
	Workers int    `json:"workers" yaml:"workers"`
}

// JournalConfig locates the journal database.
type JournalConfig struct {
	Path string `json:"path" yaml:"path"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// ValidationError lists every problem found in a configuration source.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Source, strings.Join(e.Problems, "; "))
}

// Default returns the configuration of an empty file.
func Default() Config {
	c, err := Parse(nil, "defaults")
	if err != nil {
		// The embedded schema gives every field a default.
		panic(fmt.Sprintf("config: defaults: %v", err))
	}
	return c
}

// Load reads and validates the file at path. An empty path yields Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, path)
}

// Parse validates YAML data. source names the data in errors.
func Parse(data []byte, source string) (Config, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML in %s: %w", source, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, validationError(source, err)
	}

	var c Config
	if err := v.Decode(&c); err != nil {
		return Config{}, validationError(source, err)
	}
	return c, nil
}

func validationError(source string, err error) error {
	ve := &ValidationError{Source: source}
	for _, e := range cueerrors.Errors(err) {
		ve.Problems = append(ve.Problems, e.Error())
	}
	if len(ve.Problems) == 0 {
		ve.Problems = []string{err.Error()}
	}
	return ve
}

// StoreOptions converts the store section into store options.
func (c Config) StoreOptions() []store.Option {
	mem := osmem.Default()
	if c.Store.Memory == "heap" {
		mem = osmem.NewHeap()
	}
	return []store.Option{
		store.WithMaxPending(c.Store.MaxPending),
		store.WithHistoryLimit(c.Store.HistoryLimit),
		store.WithMemory(mem),
	}
}

// RunnerOptions converts the runner section into runner options.
func (c Config) RunnerOptions() ([]engine.RunnerOption, error) {
	mode, err := engine.ParseMode(c.Runner.Mode)
	if err != nil {
		return nil, err
	}
	return []engine.RunnerOption{
		engine.WithMode(mode),
		engine.WithWorkers(c.Runner.Workers),
	}, nil
}

// LogLevel returns the configured slog level.
func (c Config) LogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// YAML renders the configuration, defaults included.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
