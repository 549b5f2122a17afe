package query

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions_RepeatedKeysFormArrays(t *testing.T) {
	values, err := url.ParseQuery("tag=a&tag=b&includeSubfolders=yes")
	require.NoError(t, err)
	opts := ParseOptions(values)

	raw, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag":["a","b"],"includeSubfolders":"yes"}`, string(raw))

	assert.Equal(t, []string{"a", "b"}, opts.List("tag"))
	v, ok := opts.Scalar("tag")
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestOptions_Bool(t *testing.T) {
	opts := Options{
		"empty": {""},
		"one":   {"1"},
		"yes":   {"yes"},
		"no":    {"no"},
		"off":   {"OFF"},
		"zero":  {"0"},
		"none":  {},
	}
	assert.True(t, opts.Bool("empty"))
	assert.True(t, opts.Bool("one"))
	assert.True(t, opts.Bool("yes"))
	assert.True(t, opts.Bool("none"))
	assert.False(t, opts.Bool("no"))
	assert.False(t, opts.Bool("off"))
	assert.False(t, opts.Bool("zero"))
	assert.False(t, opts.Bool("missing"))
}

func TestOptions_Int(t *testing.T) {
	opts := Options{"limit": {"3"}, "bad": {"x"}}
	assert.Equal(t, 3, opts.Int("limit", 10))
	assert.Equal(t, 10, opts.Int("bad", 10))
	assert.Equal(t, 10, opts.Int("missing", 10))
}

func TestOptions_UnmarshalJSON(t *testing.T) {
	var opts Options
	require.NoError(t, json.Unmarshal([]byte(`{"q":"kv","limit":5,"tags":["a",true],"flag":null}`), &opts))
	assert.Equal(t, Options{
		"q":     {"kv"},
		"limit": {"5"},
		"tags":  {"a", "true"},
		"flag":  {""},
	}, opts)
}
