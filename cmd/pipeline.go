package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/zap"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/config"
	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/kv"
	"github.com/agentic-research/kiln/internal/plugin"
	"github.com/agentic-research/kiln/internal/query"
)

func resolvePlugins(project *config.Project) (*plugin.Set, error) {
	return plugin.Builtins().Resolve(project.Plugins)
}

// buildDataset runs the whole ingest pipeline over project.Source.
func buildDataset(ctx context.Context, project *config.Project, logger *zap.Logger) ([]api.Entry, error) {
	set, err := resolvePlugins(project)
	if err != nil {
		return nil, err
	}
	engine, err := ingest.NewEngine(project.Namespace, set.Transformers, set.Derivers)
	if err != nil {
		return nil, err
	}
	engine.Logger = logger

	root, err := filepath.Abs(project.Source)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	return engine.BuildDir(ctx, osfs.New(root), "/")
}

// newRouter registers the project's query providers over store.
func newRouter(project *config.Project, store kv.Reader, logger *zap.Logger) (*query.Router, error) {
	set, err := resolvePlugins(project)
	if err != nil {
		return nil, err
	}
	router, err := query.NewRouter(store,
		query.WithLogger(logger),
		query.WithPrimaryNamespace(project.Namespace))
	if err != nil {
		return nil, err
	}
	if err := set.Register(router); err != nil {
		return nil, err
	}
	return router, nil
}

// openReader loads a dataset file into memory, or opens a SQLite store
// when path ends in .db.
func openReader(path string) (kv.Reader, func() error, error) {
	if strings.HasSuffix(path, ".db") {
		store, err := kv.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	entries, err := ingest.ReadDataset(path)
	if err != nil {
		return nil, nil, err
	}
	return kv.NewMemoryStoreFrom(entries), func() error { return nil }, nil
}
