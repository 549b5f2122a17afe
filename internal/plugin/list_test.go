package plugin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/kv"
	"github.com/agentic-research/kiln/internal/query"
)

var tree = []api.Entry{
	{Key: "foo", Metadata: api.Metadata{"title": "A"}},
	{Key: "bar/baz"},
	{Key: "bar/qux/deep", Metadata: api.Metadata{"title": "D"}},
}

func TestAncestors(t *testing.T) {
	assert.Equal(t, []string{""}, ancestors("foo"))
	assert.Equal(t, []string{"", "a", "a/b"}, ancestors("a/b/c"))
}

func TestList_Derive(t *testing.T) {
	p, err := newList(nil)
	require.NoError(t, err)
	l := p.(*list)
	assert.Equal(t, "references", l.Namespace())

	out, err := l.Derive(context.Background(), tree)
	require.NoError(t, err)

	buckets := map[string][]api.Reference{}
	for _, e := range out {
		var refs []api.Reference
		require.NoError(t, json.Unmarshal(e.Value, &refs))
		buckets[e.Key] = refs
	}
	require.Len(t, buckets, 3)

	root := buckets[""]
	require.Len(t, root, 3)
	assert.Equal(t, "bar/baz", root[0].Slug)
	assert.Equal(t, "bar/qux/deep", root[1].Slug)
	assert.Equal(t, "foo", root[2].Slug)
	assert.Equal(t, "A", root[2].Metadata["title"])
	assert.Nil(t, root[0].Metadata)

	assert.Len(t, buckets["bar"], 2)
	assert.Len(t, buckets["bar/qux"], 1)
	assert.NotContains(t, buckets, "foo", "leaves get no bucket of their own")
}

func TestList_NullMetadataSerialized(t *testing.T) {
	out, err := (&list{namespace: "references"}).Derive(context.Background(), []api.Entry{{Key: "x"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"slug":"x","metadata":null}]`, string(out[0].Value))
}

func listRouter(t *testing.T) *query.Router {
	t.Helper()
	l := &list{namespace: "references"}
	derived, err := l.Derive(context.Background(), tree)
	require.NoError(t, err)

	router, err := query.NewRouter(kv.NewMemoryStoreFrom(ingest.Assign("references", derived)))
	require.NoError(t, err)
	require.NoError(t, router.RegisterProvider(l))
	return router
}

func slugs(t *testing.T, res query.Result) []string {
	t.Helper()
	require.True(t, res.Found)
	refs := res.Payload.([]api.Reference)
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Slug
	}
	return out
}

func TestList_Handler(t *testing.T) {
	router := listRouter(t)
	ctx := context.Background()

	res, err := router.Query(ctx, "references", "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, slugs(t, res))

	res, err = router.Query(ctx, "references", "bar", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bar/baz"}, slugs(t, res))

	res, err = router.Query(ctx, "references", "bar", query.Options{"includeSubfolders": {"yes"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"bar/baz", "bar/qux/deep"}, slugs(t, res))

	res, err = router.Query(ctx, "references", "", query.Options{"includeSubfolders": {""}})
	require.NoError(t, err)
	assert.Len(t, slugs(t, res), 3)

	res, err = router.Query(ctx, "references", "nope", nil)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestList_HandlerOnlySubfolders(t *testing.T) {
	l := &list{namespace: "references"}
	derived, err := l.Derive(context.Background(), []api.Entry{{Key: "a/b/c"}})
	require.NoError(t, err)
	router, err := query.NewRouter(kv.NewMemoryStoreFrom(ingest.Assign("references", derived)))
	require.NoError(t, err)
	require.NoError(t, router.RegisterProvider(l))

	res, err := router.Query(context.Background(), "references", "a", nil)
	require.NoError(t, err)
	assert.Empty(t, slugs(t, res), "found but empty")
}
