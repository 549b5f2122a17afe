package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/kv"
)

func newTestRouter(t *testing.T, entries ...api.Entry) *Router {
	t.Helper()
	r, err := NewRouter(kv.NewMemoryStoreFrom(entries), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return r
}

func echo(payload any) HandlerFactory {
	return func(Env) (Handler, error) {
		return HandlerFunc(func(_ context.Context, slug string, opts Options) (Result, error) {
			return Hit(map[string]any{"slug": slug, "payload": payload, "opts": opts}), nil
		}), nil
	}
}

func TestRouter_DefaultDataHandler(t *testing.T) {
	r := newTestRouter(t, api.Entry{Key: "data/foo", Value: []byte("Hello"), Metadata: api.Metadata{"title": "A"}})
	assert.Equal(t, []string{"data"}, r.Namespaces())

	res, err := r.Query(context.Background(), "data", "foo", nil)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, Data{Content: "Hello", Metadata: api.Metadata{"title": "A"}}, res.Payload)
}

func TestRouter_EmptyValueIsFound(t *testing.T) {
	r := newTestRouter(t, api.Entry{Key: "data/e", Value: []byte{}, Metadata: api.Metadata{"k": "v"}})

	res, err := r.Query(context.Background(), "data", "e", nil)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "", res.Payload.(Data).Content)
}

func TestRouter_Misses(t *testing.T) {
	r := newTestRouter(t)

	res, err := r.Query(context.Background(), "data", "missing", nil)
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = r.Query(context.Background(), "nope", "foo", nil)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestRouter_DuplicateNamespace(t *testing.T) {
	r := newTestRouter(t)
	require.NoError(t, r.Register("x", echo(1)))

	assert.ErrorIs(t, r.Register("x", echo(2)), ErrNamespaceTaken)
	assert.ErrorIs(t, r.Register("data", echo(2)), ErrNamespaceTaken)
	assert.ErrorIs(t, r.Register("Bad/NS", echo(2)), ingest.ErrConfig)
}

func TestRouter_FactoryError(t *testing.T) {
	r := newTestRouter(t)
	boom := errors.New("boom")
	err := r.Register("x", func(Env) (Handler, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"data"}, r.Namespaces())
}

func TestRouter_PassesSlugAndOptions(t *testing.T) {
	r := newTestRouter(t)
	require.NoError(t, r.Register("echo", echo("p")))

	opts := Options{"tag": {"a", "b"}}
	res, err := r.Query(context.Background(), "echo", "x/y", opts)
	require.NoError(t, err)
	got := res.Payload.(map[string]any)
	assert.Equal(t, "x/y", got["slug"])
	assert.Equal(t, opts, got["opts"])
}

func TestRouter_EnvGivesRouterAccess(t *testing.T) {
	r := newTestRouter(t, api.Entry{Key: "data/posts/a", Value: []byte("A")})
	require.NoError(t, r.Register("posts", func(env Env) (Handler, error) {
		return HandlerFunc(func(ctx context.Context, slug string, opts Options) (Result, error) {
			return env.Router.Query(ctx, "data", "posts/"+slug, opts)
		}), nil
	}))

	res, err := r.Query(context.Background(), "posts", "a", nil)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "A", res.Payload.(Data).Content)
}

func TestRouter_PrimaryNamespace(t *testing.T) {
	r, err := NewRouter(kv.NewMemoryStoreFrom([]api.Entry{{Key: "site/a", Value: []byte("A")}}), WithPrimaryNamespace("site"))
	require.NoError(t, err)

	res, err := r.Query(context.Background(), "site", "a", nil)
	require.NoError(t, err)
	assert.True(t, res.Found)

	res, err = r.Query(context.Background(), "data", "a", nil)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk on fire") }
func (failingStore) GetWithMetadata(context.Context, string) (*kv.Value, error) {
	return nil, errors.New("disk on fire")
}

func TestDataHandler_StoreFault(t *testing.T) {
	r, err := NewRouter(failingStore{})
	require.NoError(t, err)

	_, err = r.Query(context.Background(), "data", "a", nil)
	assert.ErrorContains(t, err, "disk on fire")
}

func TestDataHandler_Select(t *testing.T) {
	r := newTestRouter(t,
		api.Entry{Key: "data/people", Value: []byte(`{"people":[{"name":"ada"},{"name":"bob"}]}`)},
		api.Entry{Key: "data/text", Value: []byte("not json")},
	)
	ctx := context.Background()

	res, err := r.Query(ctx, "data", "people", Options{"select": {"$.people[*].name"}})
	require.NoError(t, err)
	assert.JSONEq(t, `["ada","bob"]`, res.Payload.(Data).Content)

	res, err = r.Query(ctx, "data", "text", Options{"select": {"$.x"}})
	require.NoError(t, err)
	assert.Equal(t, "[]", res.Payload.(Data).Content)

	_, err = r.Query(ctx, "data", "people", Options{"select": {"$.x["}})
	assert.Error(t, err)
}
