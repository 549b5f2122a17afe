package ingest

import (
	"context"
	"fmt"

	"github.com/agentic-research/kiln/api"
)

// Transformer is one link of the transform chain.
// It returns the entries that replace e: a single entry to rewrite or pass
// through, several to split, none to filter. An entry the plugin does not
// recognise must be passed through unchanged, never rejected.
type Transformer interface {
	Transform(ctx context.Context, e api.Entry) ([]api.Entry, error)
}

// Deriver produces additional entries from the whole transformed entry set.
// Its output is placed under Namespace, never under the primary namespace.
// The entries slice is read-only.
type Deriver interface {
	Namespace() string
	Derive(ctx context.Context, entries []api.Entry) ([]api.Entry, error)
}

// Named is implemented by plugins that report their configured name.
type Named interface {
	Name() string
}

// PluginName returns p's name, or its Go type when p is not Named.
func PluginName(p any) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}

// TransformFunc adapts a function to Transformer.
type TransformFunc func(ctx context.Context, e api.Entry) ([]api.Entry, error)

// Transform implements Transformer.
func (f TransformFunc) Transform(ctx context.Context, e api.Entry) ([]api.Entry, error) {
	return f(ctx, e)
}
