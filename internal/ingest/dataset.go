package ingest

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	"github.com/natefinch/atomic"
	"github.com/zeebo/blake3"

	"github.com/agentic-research/kiln/api"
)

const compressedSuffix = ".zst"

// EncodeRecords converts entries to their interchange form. Values that are
// not valid UTF-8 are base64 encoded and flagged.
func EncodeRecords(entries []api.Entry) []api.Record {
	records := make([]api.Record, len(entries))
	for i, e := range entries {
		r := api.Record{Key: e.Key, Metadata: e.Metadata}
		if utf8.Valid(e.Value) {
			r.Value = string(e.Value)
		} else {
			r.Value = base64.StdEncoding.EncodeToString(e.Value)
			r.Base64 = true
		}
		records[i] = r
	}
	return records
}

// DecodeRecords is the inverse of EncodeRecords.
func DecodeRecords(records []api.Record) ([]api.Entry, error) {
	entries := make([]api.Entry, len(records))
	for i, r := range records {
		e := api.Entry{Key: r.Key, Metadata: r.Metadata, Value: []byte(r.Value)}
		if r.Base64 {
			v, err := base64.StdEncoding.DecodeString(r.Value)
			if err != nil {
				return nil, fmt.Errorf("record %s: decode base64: %w", r.Key, err)
			}
			e.Value = v
		}
		entries[i] = e
	}
	return entries, nil
}

// MarshalDataset renders entries as the indented JSON record array.
func MarshalDataset(entries []api.Entry) ([]byte, error) {
	data, err := json.MarshalIndent(EncodeRecords(entries), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal dataset: %w", err)
	}
	return data, nil
}

// UnmarshalDataset parses a JSON record array.
func UnmarshalDataset(data []byte) ([]api.Entry, error) {
	var records []api.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("dataset must be a json array of records: %w", err)
	}
	return DecodeRecords(records)
}

// Digest is the BLAKE3 hex digest of the marshalled dataset.
func Digest(entries []api.Entry) (string, error) {
	data, err := MarshalDataset(entries)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WriteDataset writes entries to path atomically. A ".zst" suffix selects
// zstd compression.
func WriteDataset(path string, entries []api.Entry) error {
	data, err := MarshalDataset(entries)
	if err != nil {
		return err
	}
	if strings.HasSuffix(path, compressedSuffix) {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		_ = enc.Close()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write dataset %s: %w", path, err)
	}
	return nil
}

// ReadDataset loads a dataset written by WriteDataset.
func ReadDataset(path string) ([]api.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if strings.HasSuffix(path, compressedSuffix) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", path, err)
		}
	}
	entries, err := UnmarshalDataset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}
