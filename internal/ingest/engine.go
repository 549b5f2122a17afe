package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/kiln/api"
)

const defaultConcurrency = 32

// Engine drives the build: transform chain, derive stage, namespace assignment.
type Engine struct {
	// Namespace receives the transformed primary entries.
	Namespace    string
	Transformers []Transformer
	Derivers     []Deriver
	// Concurrency bounds parallel chain and derive invocations.
	Concurrency int
	Logger      *zap.Logger
}

// NewEngine validates the pipeline configuration and returns an Engine.
func NewEngine(namespace string, transformers []Transformer, derivers []Deriver) (*Engine, error) {
	e := &Engine{
		Namespace:    namespace,
		Transformers: transformers,
		Derivers:     derivers,
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) validate() error {
	if err := ValidateNamespace(e.Namespace); err != nil {
		return fmt.Errorf("primary namespace: %w", err)
	}
	claimed := map[string]bool{e.Namespace: true}
	for i, d := range e.Derivers {
		ns := d.Namespace()
		if ns == "" {
			return fmt.Errorf("%w: deriver %d (%T) declares no namespace", ErrConfig, i, d)
		}
		if err := ValidateNamespace(ns); err != nil {
			return fmt.Errorf("deriver %d (%T): %w", i, d, err)
		}
		if claimed[ns] {
			return fmt.Errorf("%w: namespace %q claimed twice", ErrConfig, ns)
		}
		claimed[ns] = true
	}
	return nil
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Engine) limit() int {
	if e.Concurrency <= 0 {
		return defaultConcurrency
	}
	return e.Concurrency
}

// BuildDir walks root in fsys and builds the dataset from its files.
func (e *Engine) BuildDir(ctx context.Context, fsys billy.Filesystem, root string) ([]api.Entry, error) {
	entries, err := Walk(ctx, fsys, root)
	if err != nil {
		return nil, err
	}
	return e.Build(ctx, entries)
}

// Build runs the full pipeline over source entries and returns the
// namespaced dataset. The whole build fails on the first error.
func (e *Engine) Build(ctx context.Context, source []api.Entry) ([]api.Entry, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	transformed, err := e.Transform(ctx, source)
	if err != nil {
		return nil, err
	}
	derived, err := e.Derive(ctx, transformed)
	if err != nil {
		return nil, err
	}

	out := Assign(e.Namespace, transformed)
	for i, d := range e.Derivers {
		out = append(out, Assign(d.Namespace(), derived[i])...)
	}
	if err := CheckUnique(out); err != nil {
		return nil, err
	}

	e.logger().Info("build complete",
		zap.Int("source", len(source)),
		zap.Int("primary", len(transformed)),
		zap.Int("entries", len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// Transform runs every entry through the chain. Each plugin's output fans
// out fully before the next plugin sees it. Output order follows input order.
func (e *Engine) Transform(ctx context.Context, source []api.Entry) ([]api.Entry, error) {
	results := make([][]api.Entry, len(source))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit())
	for i, entry := range source {
		g.Go(func() error {
			out, err := e.chain(ctx, entry)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var n int
	for _, r := range results {
		n += len(r)
	}
	out := make([]api.Entry, 0, n)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (e *Engine) chain(ctx context.Context, entry api.Entry) ([]api.Entry, error) {
	batch := []api.Entry{entry}
	for _, t := range e.Transformers {
		var next []api.Entry
		for _, b := range batch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out, err := t.Transform(ctx, b)
			if err != nil {
				return nil, wrapContent(t, b.Key, err)
			}
			next = append(next, out...)
		}
		batch = next
	}
	return batch, nil
}

func wrapContent(t Transformer, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ce *ContentError
	if errors.As(err, &ce) {
		if ce.Plugin == "" {
			ce.Plugin = PluginName(t)
		}
		return err
	}
	return &ContentError{Key: key, Plugin: PluginName(t), Err: err}
}

// Derive invokes every deriver once with the full transformed set. The
// result slice is indexed like e.Derivers; keys are not yet namespaced.
func (e *Engine) Derive(ctx context.Context, transformed []api.Entry) ([][]api.Entry, error) {
	results := make([][]api.Entry, len(e.Derivers))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit())
	for i, d := range e.Derivers {
		g.Go(func() error {
			view := make([]api.Entry, len(transformed))
			copy(view, transformed)
			out, err := d.Derive(ctx, view)
			if err != nil {
				return fmt.Errorf("derive %s: %w", d.Namespace(), err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
