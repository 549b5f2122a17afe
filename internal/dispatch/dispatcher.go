// Package dispatch turns HTTP requests into router queries.
//
// GET and HEAD requests under the base path are parsed as
// "<base>/<namespace>/<slug...>?<options>" and answered with the handler's
// JSON payload; other methods there get 405. Everything outside the base
// path is handed to the upstream origin.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentic-research/kiln/internal/query"
)

const (
	bodyNotFound      = "Not found"
	bodyInternalError = "Internal Server Error"
	bodyNotAllowed    = "Method Not Allowed"
)

// Querier is the router surface the dispatcher needs.
type Querier interface {
	Query(ctx context.Context, ns, slug string, opts query.Options) (query.Result, error)
}

// Dispatcher is an http.Handler over a Querier.
type Dispatcher struct {
	// BasePath prefixes every query URL, e.g. "/api". Empty serves from root.
	BasePath string
	Router   Querier
	// Upstream receives requests outside BasePath. Nil answers them 404.
	Upstream http.Handler
	Logger   *zap.Logger
	Metrics  *Metrics
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	rest, ok := d.trimBase(r.URL.Path)
	if !ok {
		d.Metrics.observe(OutcomePassthrough, start)
		if d.Upstream == nil {
			writeText(w, http.StatusNotFound, bodyNotFound)
			return
		}
		d.Upstream.ServeHTTP(w, r)
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		d.Metrics.observe(OutcomeMethodNotAllowed, start)
		w.Header().Set("Allow", "GET, HEAD")
		writeText(w, http.StatusMethodNotAllowed, bodyNotAllowed)
		return
	}

	ns, slug, _ := strings.Cut(rest, "/")
	if ns == "" {
		d.Metrics.observe(OutcomeNotFound, start)
		writeText(w, http.StatusNotFound, bodyNotFound)
		return
	}

	res, err := d.query(r.Context(), ns, slug, query.ParseOptions(r.URL.Query()))
	if err == nil && res.Found {
		var body []byte
		body, err = json.Marshal(res.Payload)
		if err == nil {
			d.Metrics.observe(OutcomeResolved, start)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
	}
	if err != nil {
		d.Metrics.observe(OutcomeError, start)
		d.logger().Error("query failed",
			zap.String("path", r.URL.Path),
			zap.String("namespace", ns),
			zap.String("slug", slug),
			zap.Error(err))
		writeText(w, http.StatusInternalServerError, bodyInternalError)
		return
	}

	d.Metrics.observe(OutcomeNotFound, start)
	writeText(w, http.StatusNotFound, bodyNotFound)
}

// trimBase strips BasePath. Paths outside it report false.
func (d *Dispatcher) trimBase(path string) (string, bool) {
	base := strings.TrimRight(d.BasePath, "/")
	if base == "" {
		return strings.TrimPrefix(path, "/"), true
	}
	if path == base {
		return "", true
	}
	rest, ok := strings.CutPrefix(path, base+"/")
	return rest, ok
}

// query runs the lookup, converting a handler panic into an error.
func (d *Dispatcher) query(ctx context.Context, ns, slug string, opts query.Options) (res query.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return d.Router.Query(ctx, ns, slug, opts)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
