package plugin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/query"
)

// alias exposes a folder of another namespace under its own name.
// With target "data" and prefix "posts", "<namespace>/hello" answers
// like "data/posts/hello".
type alias struct {
	namespace string
	target    string
	prefix    string
}

func newAlias(opts map[string]any) (any, error) {
	ns, err := requiredString(opts, "namespace")
	if err != nil {
		return nil, err
	}
	target, err := stringOption(opts, "target", ingest.DefaultNamespace)
	if err != nil {
		return nil, err
	}
	if target == ns {
		return nil, fmt.Errorf("%w: alias %s targets itself", ingest.ErrConfig, ns)
	}
	prefix, err := stringOption(opts, "prefix", "")
	if err != nil {
		return nil, err
	}
	prefix = strings.Trim(prefix, ingest.Delimiter)
	if prefix != "" {
		prefix += ingest.Delimiter
	}
	return &alias{namespace: ns, target: target, prefix: prefix}, nil
}

// maxAliasHops bounds alias chains that were registered without going
// through Set.Register.
const maxAliasHops = 8

type aliasHopsKey struct{}

func (p *alias) Namespace() string { return p.namespace }

func (p *alias) NewHandler(env query.Env) (query.Handler, error) {
	return query.HandlerFunc(func(ctx context.Context, slug string, opts query.Options) (query.Result, error) {
		hops, _ := ctx.Value(aliasHopsKey{}).(int)
		if hops >= maxAliasHops {
			return query.NotFound, fmt.Errorf("alias %s: more than %d hops to %s", p.namespace, maxAliasHops, p.target)
		}
		ctx = context.WithValue(ctx, aliasHopsKey{}, hops+1)
		return env.Router.Query(ctx, p.target, p.prefix+slug, opts)
	}), nil
}

// checkAliasCycles rejects alias chains that lead back to themselves.
func checkAliasCycles(providers []query.Provider) error {
	targets := make(map[string]string)
	for _, p := range providers {
		if a, ok := p.(*alias); ok {
			targets[a.namespace] = a.target
		}
	}
	names := make([]string, 0, len(targets))
	for ns := range targets {
		names = append(names, ns)
	}
	sort.Strings(names)

	for _, start := range names {
		path := []string{start}
		seen := map[string]bool{start: true}
		for next, ok := targets[start]; ok; next, ok = targets[next] {
			path = append(path, next)
			if seen[next] {
				return fmt.Errorf("%w: alias cycle %s", ingest.ErrConfig, strings.Join(path, " -> "))
			}
			seen[next] = true
		}
	}
	return nil
}
