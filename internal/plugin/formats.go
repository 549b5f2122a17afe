package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/tidwall/jsonc"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
)

// decodeFunc parses a whole file into a generic document.
type decodeFunc func(key, ext string, src []byte) (any, error)

// structured handles object-shaped data files. The top-level "metadata"
// member becomes the entry metadata; the rest is stored as JSON.
type structured struct {
	name       string
	extensions []string
	decode     decodeFunc
}

func (p *structured) Name() string { return p.name }

func (p *structured) Transform(_ context.Context, e api.Entry) ([]api.Entry, error) {
	key, ext, ok := trimExtension(e.Key, p.extensions...)
	if !ok {
		return []api.Entry{e}, nil
	}
	doc, err := p.decode(e.Key, ext, e.Value)
	if err != nil {
		return nil, &ingest.ContentError{Key: e.Key, Err: err}
	}
	value, metadata, err := splitDocument(doc)
	if err != nil {
		return nil, &ingest.ContentError{Key: e.Key, Err: err}
	}
	return []api.Entry{{Key: key, Value: value, Metadata: metadata}}, nil
}

func newJSON(map[string]any) (any, error) {
	return &structured{name: "json", extensions: []string{".jsonc", ".json"}, decode: decodeJSON}, nil
}

func newYAML(map[string]any) (any, error) {
	return &structured{name: "yaml", extensions: []string{".yaml", ".yml"}, decode: decodeYAML}, nil
}

func newTOML(map[string]any) (any, error) {
	return &structured{name: "toml", extensions: []string{".toml"}, decode: decodeTOML}, nil
}

func newHCL(map[string]any) (any, error) {
	return &structured{name: "hcl", extensions: []string{".hcl"}, decode: decodeHCL}, nil
}

func decodeJSON(_, ext string, src []byte) (any, error) {
	if ext == ".jsonc" {
		src = jsonc.ToJSON(src)
	}
	dec := json.NewDecoder(bytes.NewReader(src))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after json value")
	}
	if doc == nil {
		return nil, fmt.Errorf("top-level value must be an object, got null")
	}
	return doc, nil
}

func decodeYAML(_, _ string, src []byte) (any, error) {
	var doc any
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeTOML(_, _ string, src []byte) (any, error) {
	doc := map[string]any{}
	if err := toml.Unmarshal(src, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeHCL(key, _ string, src []byte) (any, error) {
	file, diags := hclsyntax.ParseConfig(src, key, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	vals := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		vals[name] = v
	}
	obj := cty.ObjectVal(vals)
	raw, err := ctyjson.Marshal(obj, obj.Type())
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
