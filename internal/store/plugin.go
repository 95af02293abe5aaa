package store

import (
	"slices"
)

// Plugin populates a store with state. Plugins are identified by name: a
// Store runs each name's load routine at most once no matter how many
// dependents require it.
type Plugin interface {
	// Name identifies the plugin.
	Name() string

	// Requires lists plugins that must be loaded first, in order.
	Requires() []Plugin

	// Load inserts the plugin's state into s.
	Load(s *Store) error
}

type funcPlugin struct {
	name     string
	requires []Plugin
	load     func(*Store) error
}

// NewPlugin builds a Plugin from a load function.
func NewPlugin(name string, load func(*Store) error, requires ...Plugin) Plugin {
	return &funcPlugin{name: name, requires: requires, load: load}
}

func (p *funcPlugin) Name() string       { return p.name }
func (p *funcPlugin) Requires() []Plugin { return p.requires }
func (p *funcPlugin) Load(s *Store) error {
	if p.load == nil {
		return nil
	}
	return p.load(s)
}

// registry tracks which plugins this store has loaded.
type registry struct {
	loaded map[string]bool
	order  []string
}

func newRegistry() *registry {
	return &registry{loaded: make(map[string]bool)}
}

// Load loads p and, before it, everything p requires.
//
// A plugin that requires itself, directly or transitively, yields a
// PLUGIN_CYCLE error before any load routine on the cycle runs. Plugins
// outside the cycle that were loaded on the way stay loaded.
// Requires exclusive access.
func (s *Store) Load(p Plugin) error {
	return s.load(p, nil)
}

func (s *Store) load(p Plugin, path []string) error {
	name := p.Name()
	if s.plugins.loaded[name] {
		return nil
	}
	if slices.Contains(path, name) {
		cycle := append(slices.Clone(path), name)
		return &Error{
			Code:    ErrCodePluginCycle,
			Message: "plugin dependency cycle",
			Plugin:  name,
			Path:    cycle[slices.Index(cycle, name):],
		}
	}

	path = append(path, name)
	for _, dep := range p.Requires() {
		if err := s.load(dep, path); err != nil {
			return err
		}
	}

	if err := p.Load(s); err != nil {
		s.logger.Error("plugin load failed", "plugin", name, "error", err)
		return &Error{
			Code:    ErrCodePluginFailed,
			Message: "load routine failed",
			Plugin:  name,
			Err:     err,
		}
	}

	s.plugins.loaded[name] = true
	s.plugins.order = append(s.plugins.order, name)
	s.metrics.RecordPluginLoad(name)
	s.logger.Debug("plugin loaded", "plugin", name, "requires", len(p.Requires()))
	return nil
}

// Loaded reports whether the plugin called name has been loaded.
func (s *Store) Loaded(name string) bool {
	return s.plugins.loaded[name]
}

// Plugins lists loaded plugin names in load order.
func (s *Store) Plugins() []string {
	return slices.Clone(s.plugins.order)
}
