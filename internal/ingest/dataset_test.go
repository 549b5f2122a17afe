package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/kiln/api"
)

var sample = []api.Entry{
	{Key: "data/foo", Value: []byte("Hello"), Metadata: api.Metadata{"title": "A"}},
	{Key: "data/empty", Value: []byte{}, Metadata: api.Metadata{"draft": true}},
	{Key: "data/logo.png", Value: []byte{0x89, 'P', 'N', 'G', 0xff, 0x00}},
	{Key: "data/plain", Value: []byte("no front matter"), Metadata: api.Metadata{}},
}

func TestEncodeRecords_Base64ForBinary(t *testing.T) {
	records := EncodeRecords(sample)
	assert.False(t, records[0].Base64)
	assert.Equal(t, "Hello", records[0].Value)
	assert.True(t, records[2].Base64)
	assert.Equal(t, "iVBOR/8A", records[2].Value)

	back, err := DecodeRecords(records)
	require.NoError(t, err)
	assert.Equal(t, sample[2].Value, back[2].Value)
}

func TestDecodeRecords_BadBase64(t *testing.T) {
	_, err := DecodeRecords([]api.Record{{Key: "k", Value: "!!", Base64: true}})
	assert.ErrorContains(t, err, "record k")
}

func TestDataset_RoundTrip(t *testing.T) {
	for _, name := range []string{"data.json", "data.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "dist", name)
			require.NoError(t, WriteDataset(path, sample))

			got, err := ReadDataset(path)
			require.NoError(t, err)
			if diff := cmp.Diff(sample, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMarshalDataset_EmptyMetadataKept(t *testing.T) {
	data, err := MarshalDataset([]api.Entry{
		{Key: "data/plain", Value: []byte("x"), Metadata: api.Metadata{}},
		{Key: "data/bare", Value: []byte("y")},
	})
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]any{}, raw[0]["metadata"])
	assert.NotContains(t, raw[1], "metadata")

	got, err := UnmarshalDataset(data)
	require.NoError(t, err)
	assert.Equal(t, api.Metadata{}, got[0].Metadata)
	assert.Nil(t, got[1].Metadata)
}

func TestWriteDataset_Compresses(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.json")
	packed := filepath.Join(dir, "a.json.zst")
	entries := make([]api.Entry, 200)
	for i := range entries {
		entries[i] = api.Entry{Key: fmt.Sprintf("data/page-%d", i), Value: []byte("repeated text repeated text")}
	}
	require.NoError(t, WriteDataset(plain, entries))
	require.NoError(t, WriteDataset(packed, entries))

	ps, err := os.Stat(plain)
	require.NoError(t, err)
	zs, err := os.Stat(packed)
	require.NoError(t, err)
	assert.Less(t, zs.Size(), ps.Size())
}

func TestUnmarshalDataset_RejectsObject(t *testing.T) {
	_, err := UnmarshalDataset([]byte(`{"key":"x"}`))
	assert.Error(t, err)
}

func TestDigest_Stable(t *testing.T) {
	a, err := Digest(sample)
	require.NoError(t, err)
	b, err := Digest(sample)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Digest(sample[:1])
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
