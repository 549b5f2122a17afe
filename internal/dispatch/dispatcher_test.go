package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/kv"
	"github.com/agentic-research/kiln/internal/plugin"
	"github.com/agentic-research/kiln/internal/query"
)

// site builds the two-file example site through the real pipeline.
func site(t *testing.T) *query.Router {
	t.Helper()
	fsys := memfs.New()
	require.NoError(t, util.WriteFile(fsys, "foo.md", []byte("---\ntitle: A\n---\nHello"), 0o644))
	require.NoError(t, util.WriteFile(fsys, "bar/baz.json", []byte(`{"x":1}`), 0o644))

	set, err := plugin.Builtins().Resolve([]api.PluginConfig{{Name: "markdown"}, {Name: "json"}, {Name: "list"}})
	require.NoError(t, err)
	engine, err := ingest.NewEngine(ingest.DefaultNamespace, set.Transformers, set.Derivers)
	require.NoError(t, err)
	engine.Logger = zaptest.NewLogger(t)

	entries, err := engine.BuildDir(context.Background(), fsys, "/")
	require.NoError(t, err)

	router, err := query.NewRouter(kv.NewMemoryStoreFrom(entries), query.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.NoError(t, set.Register(router))
	return router
}

func get(t *testing.T, h http.Handler, target string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestDispatcher_ExampleSite(t *testing.T) {
	d := &Dispatcher{Router: site(t), Logger: zaptest.NewLogger(t)}

	code, body := get(t, d, "/data/foo")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"content":"Hello","metadata":{"title":"A"}}`, body)

	code, body = get(t, d, "/data/bar/baz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"content":"{\"x\":1}","metadata":null}`, body)

	code, body = get(t, d, "/data/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Not found", body)

	code, body = get(t, d, "/references/")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"slug":"foo","metadata":{"title":"A"}}]`, body)

	code, body = get(t, d, "/references/?includeSubfolders=1")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"slug":"bar/baz","metadata":null},{"slug":"foo","metadata":{"title":"A"}}]`, body)

	code, _ = get(t, d, "/unknown/foo")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDispatcher_BasePath(t *testing.T) {
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "origin "+r.URL.Path)
	})
	d := &Dispatcher{BasePath: "/api/", Router: site(t), Upstream: origin}

	code, _ := get(t, d, "/api/data/foo")
	assert.Equal(t, http.StatusOK, code)

	code, body := get(t, d, "/about")
	assert.Equal(t, http.StatusTeapot, code, "upstream status passes through")
	assert.Equal(t, "origin /about", body)

	code, _ = get(t, d, "/apiary")
	assert.Equal(t, http.StatusTeapot, code, "prefix must end at a segment")

	code, _ = get(t, d, "/api")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDispatcher_NoUpstream(t *testing.T) {
	d := &Dispatcher{BasePath: "/api", Router: site(t)}
	code, body := get(t, d, "/elsewhere")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Not found", body)
}

func TestDispatcher_MethodNotAllowed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	d := &Dispatcher{BasePath: "/api", Router: site(t), Upstream: origin, Metrics: m}

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, httptest.NewRequest(method, "/api/data/foo", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))
		assert.Equal(t, "Method Not Allowed", rec.Body.String())
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.requests.WithLabelValues(OutcomeMethodNotAllowed)))

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/api/data/foo", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/form", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code, "other methods still reach the upstream")
}

type stubRouter func(ctx context.Context, ns, slug string, opts query.Options) (query.Result, error)

func (f stubRouter) Query(ctx context.Context, ns, slug string, opts query.Options) (query.Result, error) {
	return f(ctx, ns, slug, opts)
}

func TestDispatcher_Faults(t *testing.T) {
	cases := map[string]stubRouter{
		"error": func(context.Context, string, string, query.Options) (query.Result, error) {
			return query.NotFound, errors.New("store down")
		},
		"panic": func(context.Context, string, string, query.Options) (query.Result, error) {
			panic("handler bug")
		},
		"unencodable": func(context.Context, string, string, query.Options) (query.Result, error) {
			return query.Hit(make(chan int)), nil
		},
	}
	for name, router := range cases {
		t.Run(name, func(t *testing.T) {
			d := &Dispatcher{Router: router, Logger: zaptest.NewLogger(t)}
			code, body := get(t, d, "/data/x")
			assert.Equal(t, http.StatusInternalServerError, code)
			assert.Equal(t, "Internal Server Error", body)
		})
	}
}

func TestDispatcher_ParsesRequest(t *testing.T) {
	var gotNS, gotSlug string
	var gotOpts query.Options
	d := &Dispatcher{Router: stubRouter(func(_ context.Context, ns, slug string, opts query.Options) (query.Result, error) {
		gotNS, gotSlug, gotOpts = ns, slug, opts
		return query.Hit(opts), nil
	})}

	code, body := get(t, d, "/search/docs/guides?q=kv&tag=a&tag=b")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "search", gotNS)
	assert.Equal(t, "docs/guides", gotSlug)
	assert.Equal(t, query.Options{"q": {"kv"}, "tag": {"a", "b"}}, gotOpts)
	assert.JSONEq(t, `{"q":"kv","tag":["a","b"]}`, body)

	_, _ = get(t, d, "/references")
	assert.Equal(t, "references", gotNS)
	assert.Equal(t, "", gotSlug)

	code, _ = get(t, d, "/")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDispatcher_EmptyPayloadIsFound(t *testing.T) {
	d := &Dispatcher{Router: stubRouter(func(context.Context, string, string, query.Options) (query.Result, error) {
		return query.Hit([]api.Reference{}), nil
	})}
	code, body := get(t, d, "/references/x")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]", body)
}

func TestDispatcher_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	d := &Dispatcher{Router: site(t), Metrics: m, BasePath: "/api"}

	get(t, d, "/api/data/foo")
	get(t, d, "/api/data/foo")
	get(t, d, "/api/data/nope")
	get(t, d, "/outside")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(OutcomeResolved)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(OutcomeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(OutcomePassthrough)))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "collectors register once per registry")
}

func TestMonitor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	d := &Dispatcher{Router: site(t), Metrics: m}
	get(t, d, "/data/foo")

	mon := NewMonitor(reg)
	code, body := get(t, mon, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, body = get(t, mon, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `kiln_dispatch_requests_total{outcome="resolved"} 1`)
	assert.True(t, strings.Contains(body, "kiln_dispatch_request_duration_seconds_bucket"))
}

func TestUpstream_Proxies(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Origin", "yes")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
	}))
	defer origin.Close()

	up, err := NewUpstream(origin.URL, zaptest.NewLogger(t))
	require.NoError(t, err)
	d := &Dispatcher{BasePath: "/api", Router: site(t), Upstream: up}

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blog/post", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-Origin"))
	assert.JSONEq(t, `{"path":"/blog/post"}`, rec.Body.String())

	_, err = NewUpstream("not a url", nil)
	assert.Error(t, err)
}
