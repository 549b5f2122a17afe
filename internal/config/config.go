// Package config loads the kiln.yaml project file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
)

// DefaultFile is looked up in the working directory when --config is unset.
const DefaultFile = "kiln.yaml"

var ErrInvalid = errors.New("invalid configuration")

// Project is the whole configuration of one site.
type Project struct {
	// Source is the content root directory.
	Source string `yaml:"source"`
	// Output is where build writes the dataset file.
	Output string `yaml:"output"`
	// Namespace is the primary content namespace.
	Namespace string `yaml:"namespace"`
	Plugins   []api.PluginConfig `yaml:"plugins"`

	Serve      Serve      `yaml:"serve"`
	Store      Store      `yaml:"store"`
	Cloudflare Cloudflare `yaml:"cloudflare"`
}

type Serve struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	BasePath    string `yaml:"base_path"`
	Upstream    string `yaml:"upstream"`
}

// Store selects the local SQLite store used by preview and serve.
type Store struct {
	Path string `yaml:"path"`
}

type Cloudflare struct {
	AccountID          string `yaml:"account_id"`
	NamespaceID        string `yaml:"namespace_id"`
	PreviewNamespaceID string `yaml:"preview_namespace_id"`
}

// Default returns the configuration used when no file exists.
func Default() *Project {
	p := &Project{}
	p.applyDefaults()
	return p
}

func (p *Project) applyDefaults() {
	if p.Source == "" {
		p.Source = "content"
	}
	if p.Output == "" {
		p.Output = "dist/data.json"
	}
	if p.Namespace == "" {
		p.Namespace = ingest.DefaultNamespace
	}
	if p.Serve.Addr == "" {
		p.Serve.Addr = ":8080"
	}
	if p.Store.Path == "" {
		p.Store.Path = ".kiln/preview.db"
	}
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Project, error) {
	p := &Project{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads path. Relative paths inside the file resolve against the
// file's directory. A missing DefaultFile yields Default().
func Load(path string) (*Project, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for _, field := range []*string{&p.Source, &p.Output, &p.Store.Path} {
		if !filepath.IsAbs(*field) {
			*field = filepath.Join(dir, *field)
		}
	}
	return p, nil
}

// Validate reports every problem at once.
func (p *Project) Validate() error {
	var result *multierror.Error
	if err := ingest.ValidateNamespace(p.Namespace); err != nil {
		result = multierror.Append(result, fmt.Errorf("%w: namespace: %v", ErrInvalid, err))
	}
	for i, plugin := range p.Plugins {
		if plugin.Name == "" {
			result = multierror.Append(result, fmt.Errorf("%w: plugins[%d]: name is required", ErrInvalid, i))
		}
	}
	if bp := p.Serve.BasePath; bp != "" && !strings.HasPrefix(bp, "/") {
		result = multierror.Append(result, fmt.Errorf("%w: serve.base_path %q must start with /", ErrInvalid, bp))
	}
	if up := p.Serve.Upstream; up != "" {
		if u, err := url.Parse(up); err != nil || u.Scheme == "" || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("%w: serve.upstream %q must be an absolute url", ErrInvalid, up))
		}
	}
	return result.ErrorOrNil()
}
