package api

import "encoding/json"

// Metadata is the open, string-keyed map attached to an entry at put time.
// A nil Metadata means the entry carries no metadata at all.
type Metadata map[string]any

// Entry is the atomic unit of a dataset.
type Entry struct {
	// Key is a '/'-delimited path. Unique within its final namespace.
	Key string `json:"key"`
	// Value is the text or binary payload.
	Value []byte `json:"value"`
	// Metadata is queryable independently of Value.
	Metadata Metadata `json:"metadata,omitempty"`
}

// Clone returns a copy of e whose Value can be modified without touching e.
// Metadata is shared; plugins replace it rather than mutate it.
func (e Entry) Clone() Entry {
	v := make([]byte, len(e.Value))
	copy(v, e.Value)
	return Entry{Key: e.Key, Value: v, Metadata: e.Metadata}
}

// Reference is a lightweight projection of an Entry used for listings.
type Reference struct {
	Slug     string   `json:"slug"`
	Metadata Metadata `json:"metadata"`
}

// Record is the interchange form of an Entry in a dataset file.
// When Base64 is set, Value holds the base64 encoding of binary content.
type Record struct {
	Key      string   `json:"key"`
	Value    string   `json:"value"`
	Metadata Metadata `json:"metadata,omitempty"`
	Base64   bool     `json:"base64,omitempty"`
}

// MarshalJSON omits absent metadata but keeps an empty object, so a dataset
// round trip preserves the difference between no metadata and {}.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	out := struct {
		plain
		Metadata *Metadata `json:"metadata,omitempty"`
	}{plain: plain(r)}
	if r.Metadata != nil {
		out.Metadata = &r.Metadata
	}
	return json.Marshal(out)
}
