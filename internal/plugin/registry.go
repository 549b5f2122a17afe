// Package plugin resolves configured plugin names to their capabilities.
//
// A plugin is any value implementing one or more of ingest.Transformer,
// ingest.Deriver and query.Provider. Plugins are looked up by name in a
// Registry once at startup; there is no late binding.
package plugin

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/query"
)

var ErrUnknownPlugin = errors.New("unknown plugin")

// Factory builds a plugin from its configured options.
type Factory func(opts map[string]any) (any, error)

// Registry maps plugin names to factories.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Names are unique.
func (r *Registry) Register(name string, f Factory) error {
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: plugin %q registered twice", ingest.ErrConfig, name)
	}
	r.factories[name] = f
	return nil
}

// Names lists registered plugin names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtins returns a registry holding every builtin plugin.
func Builtins() *Registry {
	r := NewRegistry()
	for name, f := range map[string]Factory{
		"frontmatter": newFrontMatter,
		"markdown":    newMarkdown,
		"json":        newJSON,
		"yaml":        newYAML,
		"toml":        newTOML,
		"hcl":         newHCL,
		"split":       newSplit,
		"list":        newList,
		"search":      newSearch,
		"alias":       newAlias,
	} {
		_ = r.Register(name, f)
	}
	return r
}

// Set is a resolved plugin list, split by capability and kept in
// configuration order.
type Set struct {
	Transformers []ingest.Transformer
	Derivers     []ingest.Deriver
	Providers    []query.Provider
}

// Resolve instantiates configs in order.
func (r *Registry) Resolve(configs []api.PluginConfig) (*Set, error) {
	set := &Set{}
	for i, cfg := range configs {
		f, ok := r.factories[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("%w: plugins[%d] %q", ErrUnknownPlugin, i, cfg.Name)
		}
		p, err := f(cfg.Options)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", cfg.Name, err)
		}

		capable := false
		if t, ok := p.(ingest.Transformer); ok {
			set.Transformers = append(set.Transformers, t)
			capable = true
		}
		if d, ok := p.(ingest.Deriver); ok {
			set.Derivers = append(set.Derivers, d)
			capable = true
		}
		if q, ok := p.(query.Provider); ok {
			set.Providers = append(set.Providers, q)
			capable = true
		}
		if !capable {
			return nil, fmt.Errorf("%w: plugin %s has no capability", ingest.ErrConfig, cfg.Name)
		}
	}
	return set, nil
}

// Register binds every provider in the set to router. Alias cycles are
// configuration errors and leave the router untouched.
func (s *Set) Register(router *query.Router) error {
	if err := checkAliasCycles(s.Providers); err != nil {
		return err
	}
	for _, p := range s.Providers {
		if err := router.RegisterProvider(p); err != nil {
			return err
		}
	}
	return nil
}
