package query

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Options is the open option bag handed to handlers. A key holding one value
// is a scalar; several values form an array. Handlers document the keys they
// read and ignore the rest.
type Options map[string][]string

// ParseOptions converts query-string values into Options.
func ParseOptions(values url.Values) Options {
	opts := make(Options, len(values))
	for k, v := range values {
		opts[k] = append([]string(nil), v...)
	}
	return opts
}

// Scalar returns the first value for key.
func (o Options) Scalar(key string) (string, bool) {
	v, ok := o[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// List returns every value for key.
func (o Options) List(key string) []string {
	return o[key]
}

// Bool treats a present key as true unless its value is false, 0, no or off.
func (o Options) Bool(key string) bool {
	v, ok := o.Scalar(key)
	if !ok {
		_, present := o[key]
		return present
	}
	switch strings.ToLower(v) {
	case "false", "0", "no", "off":
		return false
	}
	return true
}

// Int returns key parsed as an integer, or def when absent or malformed.
func (o Options) Int(key string, def int) int {
	v, ok := o.Scalar(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// MarshalJSON renders singletons as strings and repeated keys as arrays.
func (o Options) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(o))
	for _, k := range keys {
		if len(o[k]) == 1 {
			out[k] = o[k][0]
		} else {
			out[k] = o[k]
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts strings, numbers, booleans or arrays of them.
func (o *Options) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = FromMap(raw)
	return nil
}

// FromMap converts a decoded JSON object into Options.
func FromMap(m map[string]any) Options {
	opts := make(Options, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case []any:
			vals := make([]string, 0, len(t))
			for _, item := range t {
				vals = append(vals, scalarString(item))
			}
			opts[k] = vals
		default:
			opts[k] = []string{scalarString(t)}
		}
	}
	return opts
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
