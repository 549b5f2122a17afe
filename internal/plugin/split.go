package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
)

// split fans one JSON collection file out into an entry per selected object.
// "people.list.json" with selector "$.people[*]" and key "id" yields
// "people/<id>" for each member.
type split struct {
	match    string
	selector jp.Expr
	key      string
}

func newSplit(opts map[string]any) (any, error) {
	match, err := stringOption(opts, "match", ".list.json")
	if err != nil {
		return nil, err
	}
	if match == "" {
		return nil, fmt.Errorf("%w: option match must not be empty", ingest.ErrConfig)
	}
	selector, err := stringOption(opts, "selector", "$[*]")
	if err != nil {
		return nil, err
	}
	expr, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: selector %q: %v", ingest.ErrConfig, selector, err)
	}
	key, err := stringOption(opts, "key", "id")
	if err != nil {
		return nil, err
	}
	return &split{match: match, selector: expr, key: key}, nil
}

func (p *split) Name() string { return "split" }

func (p *split) Transform(_ context.Context, e api.Entry) ([]api.Entry, error) {
	base, _, ok := trimExtension(e.Key, p.match)
	if !ok {
		return []api.Entry{e}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(e.Value))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ingest.ContentError{Key: e.Key, Err: err}
	}
	if doc == nil {
		return []api.Entry{}, nil
	}

	matches := p.selector.Get(doc)
	out := make([]api.Entry, 0, len(matches))
	for i, m := range matches {
		obj, ok := m.(map[string]any)
		if !ok {
			return nil, &ingest.ContentError{Key: e.Key, Err: fmt.Errorf("match %d is %T, not an object", i, m)}
		}
		id := idString(obj[p.key])
		if id == "" || strings.Contains(id, ingest.Delimiter) {
			return nil, &ingest.ContentError{Key: e.Key, Err: fmt.Errorf("match %d: %s must be a non-empty scalar without %q", i, p.key, ingest.Delimiter)}
		}

		item := make(map[string]any, len(obj))
		for k, v := range obj {
			item[k] = v
		}
		value, metadata, err := splitDocument(item)
		if err != nil {
			return nil, &ingest.ContentError{Key: e.Key, Err: err}
		}
		out = append(out, api.Entry{Key: path.Join(base, id), Value: value, Metadata: metadata})
	}
	return out, nil
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case bool:
		return fmt.Sprint(id)
	default:
		return ""
	}
}
