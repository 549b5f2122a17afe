// Package query maps (namespace, slug, options) lookups onto the handler
// that owns the namespace.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/kv"
)

// ErrNamespaceTaken is returned when a namespace is registered twice.
var ErrNamespaceTaken = errors.New("namespace already registered")

// Result is a handler outcome. Found is false when the slug does not exist,
// which is not an error. A found result may carry an empty payload.
type Result struct {
	Payload any
	Found   bool
}

// NotFound is the miss result.
var NotFound = Result{}

// Hit wraps payload in a found result.
func Hit(payload any) Result {
	return Result{Payload: payload, Found: true}
}

// Handler resolves slugs within one namespace. A returned error is a
// runtime fault, never a miss.
type Handler interface {
	Handle(ctx context.Context, slug string, opts Options) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, slug string, opts Options) (Result, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, slug string, opts Options) (Result, error) {
	return f(ctx, slug, opts)
}

// Env is what a handler factory gets to build its handler.
type Env struct {
	Store  kv.Reader
	Router *Router
	Logger *zap.Logger
}

// HandlerFactory builds the handler for a namespace.
type HandlerFactory func(env Env) (Handler, error)

// Provider is the query capability of a plugin.
type Provider interface {
	Namespace() string
	NewHandler(env Env) (Handler, error)
}

// Router holds one handler per namespace. Registration happens at startup;
// after that the table is read-only and Query is safe for concurrent use.
type Router struct {
	store    kv.Reader
	logger   *zap.Logger
	primary  string
	handlers map[string]Handler
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the logger handed to handler factories.
func WithLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// WithPrimaryNamespace renames the default content namespace.
func WithPrimaryNamespace(ns string) RouterOption {
	return func(r *Router) { r.primary = ns }
}

// NewRouter returns a router with the content handler registered under the
// primary namespace.
func NewRouter(store kv.Reader, opts ...RouterOption) (*Router, error) {
	r := &Router{
		store:    store,
		logger:   zap.NewNop(),
		primary:  ingest.DefaultNamespace,
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Register(r.primary, NewDataHandler(r.primary)); err != nil {
		return nil, err
	}
	return r, nil
}

// Register binds factory's handler to ns.
func (r *Router) Register(ns string, factory HandlerFactory) error {
	if err := ingest.ValidateNamespace(ns); err != nil {
		return err
	}
	if _, ok := r.handlers[ns]; ok {
		return fmt.Errorf("%w: %s", ErrNamespaceTaken, ns)
	}
	h, err := factory(Env{Store: r.store, Router: r, Logger: r.logger.With(zap.String("namespace", ns))})
	if err != nil {
		return fmt.Errorf("handler for %s: %w", ns, err)
	}
	r.handlers[ns] = h
	return nil
}

// RegisterProvider registers a plugin's query capability.
func (r *Router) RegisterProvider(p Provider) error {
	return r.Register(p.Namespace(), p.NewHandler)
}

// Namespaces lists registered namespaces in lexical order.
func (r *Router) Namespaces() []string {
	names := make([]string, 0, len(r.handlers))
	for ns := range r.handlers {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// Query dispatches to the namespace's handler. An unregistered namespace is
// a miss.
func (r *Router) Query(ctx context.Context, ns, slug string, opts Options) (Result, error) {
	h, ok := r.handlers[ns]
	if !ok {
		return NotFound, nil
	}
	return h.Handle(ctx, slug, opts)
}
