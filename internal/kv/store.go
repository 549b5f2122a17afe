// Package kv defines the key-value store contract the serving layer reads
// from, plus the stores used for local preview and serving.
package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/kiln/api"
)

var ErrNotFound = errors.New("key not found")

// Value is a stored payload together with its metadata.
type Value struct {
	Data     []byte
	Metadata api.Metadata
}

// Reader is the read side of a store. A missing key is ErrNotFound.
// Readers must be safe for concurrent use.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetWithMetadata(ctx context.Context, key string) (*Value, error)
}

// Writer is the write side of a store.
type Writer interface {
	Put(ctx context.Context, key string, value []byte, metadata api.Metadata) error
}

// Store reads and writes.
type Store interface {
	Reader
	Writer
}

// ValueType selects the decoded form returned by Decode.
type ValueType int

const (
	Text ValueType = iota
	JSON
	ArrayBuffer
	Stream
)

// Decode returns raw as a string (Text), a decoded JSON document (JSON),
// a byte slice (ArrayBuffer) or an io.Reader (Stream).
func Decode(raw []byte, t ValueType) (any, error) {
	switch t {
	case Text:
		return string(raw), nil
	case JSON:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode json value: %w", err)
		}
		return v, nil
	case ArrayBuffer:
		return raw, nil
	case Stream:
		return io.NopCloser(bytes.NewReader(raw)), nil
	default:
		return nil, fmt.Errorf("unknown value type %d", t)
	}
}

// GetJSON fetches key and unmarshals it into dst.
func GetJSON(ctx context.Context, r Reader, key string, dst any) error {
	raw, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

const loadConcurrency = 16

// Load puts every entry into w concurrently.
func Load(ctx context.Context, w Writer, entries []api.Entry) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for _, e := range entries {
		g.Go(func() error {
			if err := w.Put(ctx, e.Key, e.Value, e.Metadata); err != nil {
				return fmt.Errorf("put %s: %w", e.Key, err)
			}
			return nil
		})
	}
	return g.Wait()
}
