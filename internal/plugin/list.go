package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/kv"
	"github.com/agentic-research/kiln/internal/query"
)

// list derives a directory listing for every folder prefix. The entry at
// "<namespace>/<prefix>" holds the references beneath that prefix; the
// empty prefix lists everything.
type list struct {
	namespace string
}

func newList(opts map[string]any) (any, error) {
	ns, err := stringOption(opts, "namespace", "references")
	if err != nil {
		return nil, err
	}
	return &list{namespace: ns}, nil
}

func (p *list) Namespace() string { return p.namespace }

func (p *list) Derive(_ context.Context, entries []api.Entry) ([]api.Entry, error) {
	folders := make(map[string][]api.Reference)
	for _, e := range entries {
		ref := api.Reference{Slug: e.Key, Metadata: e.Metadata}
		for _, prefix := range ancestors(e.Key) {
			folders[prefix] = append(folders[prefix], ref)
		}
	}

	prefixes := make([]string, 0, len(folders))
	for prefix := range folders {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	out := make([]api.Entry, 0, len(prefixes))
	for _, prefix := range prefixes {
		refs := folders[prefix]
		sort.Slice(refs, func(i, j int) bool { return refs[i].Slug < refs[j].Slug })
		value, err := json.Marshal(refs)
		if err != nil {
			return nil, err
		}
		out = append(out, api.Entry{Key: prefix, Value: value})
	}
	return out, nil
}

// ancestors returns the proper folder prefixes of key, "" first.
// "a/b/c" yields "", "a", "a/b".
func ancestors(key string) []string {
	out := []string{""}
	for i := 0; i < len(key); i++ {
		if key[i] == '/' && i > 0 {
			out = append(out, key[:i])
		}
	}
	return out
}

// depth is the number of path segments in slug.
func depth(slug string) int {
	if slug == "" {
		return 0
	}
	return strings.Count(slug, ingest.Delimiter) + 1
}

// NewHandler serves listings. By default only direct children of the
// folder are returned; with includeSubfolders every descendant is.
func (p *list) NewHandler(env query.Env) (query.Handler, error) {
	return query.HandlerFunc(func(ctx context.Context, slug string, opts query.Options) (query.Result, error) {
		var refs []api.Reference
		err := kv.GetJSON(ctx, env.Store, ingest.JoinKey(p.namespace, slug), &refs)
		if errors.Is(err, kv.ErrNotFound) {
			return query.NotFound, nil
		}
		if err != nil {
			return query.NotFound, err
		}
		if opts.Bool("includeSubfolders") {
			return query.Hit(refs), nil
		}

		children := depth(slug) + 1
		direct := make([]api.Reference, 0, len(refs))
		for _, ref := range refs {
			if depth(ref.Slug) == children {
				direct = append(direct, ref)
			}
		}
		return query.Hit(direct), nil
	}), nil
}
