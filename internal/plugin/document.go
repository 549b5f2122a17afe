package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentic-research/kiln/api"
)

// metadataKey is the member structured formats reserve for entry metadata.
const metadataKey = "metadata"

// normalize round-trips v through JSON so every format yields the same
// value types (strings, json.Number, bools, maps, slices).
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("not representable as json: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeMetadata converts front-matter style maps into JSON-safe metadata.
func normalizeMetadata(m map[string]any) (api.Metadata, error) {
	if m == nil {
		return api.Metadata{}, nil
	}
	v, err := normalize(m)
	if err != nil {
		return nil, err
	}
	return api.Metadata(v.(map[string]any)), nil
}

// splitDocument separates the metadata member from a decoded document and
// returns the remainder as compact JSON.
func splitDocument(doc any) ([]byte, api.Metadata, error) {
	v, err := normalize(doc)
	if err != nil {
		return nil, nil, err
	}
	if v == nil {
		v = map[string]any{}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("top-level value must be an object, got %T", v)
	}

	var metadata api.Metadata
	if raw, ok := obj[metadataKey]; ok {
		delete(obj, metadataKey)
		switch m := raw.(type) {
		case map[string]any:
			metadata = m
		case nil:
		default:
			return nil, nil, fmt.Errorf("%s must be an object, got %T", metadataKey, raw)
		}
	}

	value, err := json.Marshal(obj)
	if err != nil {
		return nil, nil, err
	}
	return value, metadata, nil
}

// trimExtension strips the first matching extension from key.
func trimExtension(key string, extensions ...string) (string, string, bool) {
	for _, ext := range extensions {
		if strings.HasSuffix(key, ext) {
			return strings.TrimSuffix(key, ext), ext, true
		}
	}
	return key, "", false
}
