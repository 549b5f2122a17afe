package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ohler55/ojg/jp"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
	"github.com/agentic-research/kiln/internal/kv"
)

// Data is the payload of the content namespace.
type Data struct {
	Content  string       `json:"content"`
	Metadata api.Metadata `json:"metadata"`
}

// NewDataHandler serves entries stored under ns.
//
// Options:
//   - select: JSONPath applied to JSON content; Content becomes the JSON
//     array of matches.
func NewDataHandler(ns string) HandlerFactory {
	return func(env Env) (Handler, error) {
		return HandlerFunc(func(ctx context.Context, slug string, opts Options) (Result, error) {
			v, err := env.Store.GetWithMetadata(ctx, ingest.JoinKey(ns, slug))
			if errors.Is(err, kv.ErrNotFound) {
				return NotFound, nil
			}
			if err != nil {
				return NotFound, err
			}

			content := string(v.Data)
			if expr, ok := opts.Scalar("select"); ok {
				content, err = selectJSON(v.Data, expr)
				if err != nil {
					return NotFound, err
				}
			}
			return Hit(Data{Content: content, Metadata: v.Metadata}), nil
		}), nil
	}
}

func selectJSON(raw []byte, expr string) (string, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return "", fmt.Errorf("invalid jsonpath %q: %w", expr, err)
	}
	var matches []any
	var doc any
	if err := json.Unmarshal(raw, &doc); err == nil && doc != nil {
		matches = x.Get(doc)
	}
	if matches == nil {
		matches = []any{}
	}
	out, err := json.Marshal(matches)
	if err != nil {
		return "", fmt.Errorf("encode selection: %w", err)
	}
	return string(out), nil
}
