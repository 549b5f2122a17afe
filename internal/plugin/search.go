package plugin

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/kv"
	"github.com/agentic-research/kiln/internal/query"
	"github.com/agentic-research/kiln/internal/search"
)

// IndexKey is the slug of the derived index inside the search namespace.
const IndexKey = "index"

const indexCacheSize = 4

// searcher derives a BM25 index over the text entries and serves ranked
// hits from it. The query slug restricts hits to keys under that prefix.
type searcher struct {
	namespace string
	limit     int
}

func newSearch(opts map[string]any) (any, error) {
	ns, err := stringOption(opts, "namespace", "search")
	if err != nil {
		return nil, err
	}
	limit, err := intOption(opts, "limit", 10)
	if err != nil {
		return nil, err
	}
	return &searcher{namespace: ns, limit: limit}, nil
}

func (p *searcher) Namespace() string { return p.namespace }

func (p *searcher) Derive(_ context.Context, entries []api.Entry) ([]api.Entry, error) {
	docs := make([]search.Document, 0, len(entries))
	for _, e := range entries {
		if !utf8.Valid(e.Value) {
			continue
		}
		docs = append(docs, search.Document{
			Slug:     e.Key,
			Metadata: e.Metadata,
			Fields: []search.Field{
				{Text: metadataString(e.Metadata, "title"), Weight: 3},
				{Text: metadataString(e.Metadata, "description"), Weight: 2},
				{Text: PlainText(e.Value), Weight: 1},
			},
		})
	}
	value, err := json.Marshal(search.Build(docs))
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	return []api.Entry{{Key: IndexKey, Value: value}}, nil
}

func metadataString(m api.Metadata, key string) string {
	s, _ := m[key].(string)
	return s
}

// NewHandler serves ranked results.
//
// Options:
//   - q: query text; absent or empty yields no hits.
//   - limit: maximum hits, defaulting to the plugin's limit.
func (p *searcher) NewHandler(env query.Env) (query.Handler, error) {
	cache, err := lru.New[string, *search.Index](indexCacheSize)
	if err != nil {
		return nil, err
	}
	key := ingest.JoinKey(p.namespace, IndexKey)

	return query.HandlerFunc(func(ctx context.Context, prefix string, opts query.Options) (query.Result, error) {
		raw, err := env.Store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			return query.NotFound, nil
		}
		if err != nil {
			return query.NotFound, err
		}

		sum := blake3.Sum256(raw)
		digest := hex.EncodeToString(sum[:])
		index, ok := cache.Get(digest)
		if !ok {
			index, err = search.Parse(raw)
			if err != nil {
				return query.NotFound, err
			}
			cache.Add(digest, index)
			env.Logger.Debug("search index loaded", zap.Int("documents", index.Len()), zap.String("digest", digest[:12]))
		}

		q, _ := opts.Scalar("q")
		hits := index.Search(q, opts.Int("limit", p.limit), prefix)
		if hits == nil {
			hits = []search.Result{}
		}
		return query.Hit(hits), nil
	}), nil
}
