// Package search is a BM25 (Okapi) full-text index built once per dataset
// and queried at serve time.
//
// Documents carry weighted text fields; a field's tokens are repeated Weight
// times in the composite document. Each term keeps a roaring bitmap of the
// documents containing it, so a query only scores documents that share at
// least one term with it. The index serializes to JSON so it can be stored
// as a single dataset entry.
package search

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/kiln/api"
)

const (
	paramK1      = 1.2
	paramB       = 0.75
	paramEpsilon = 0.25
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Field is a weighted text field. Weights of 0 or less skip the field.
type Field struct {
	Text   string
	Weight int
}

// Document is one indexable entry.
type Document struct {
	Slug     string
	Metadata api.Metadata
	Fields   []Field
}

// Result is one search hit.
type Result struct {
	Slug     string       `json:"slug"`
	Score    float64      `json:"score"`
	Metadata api.Metadata `json:"metadata"`
}

type indexedDocument struct {
	Slug     string         `json:"slug"`
	Metadata api.Metadata   `json:"metadata"`
	Length   int            `json:"length"`
	Terms    map[string]int `json:"terms"`
}

type serialized struct {
	Documents     []indexedDocument `json:"documents"`
	AverageLength float64           `json:"averageLength"`
	Postings      map[string]string `json:"postings"`
}

// Index is immutable after Build or Parse and safe for concurrent reads.
type Index struct {
	documents     []indexedDocument
	averageLength float64
	postings      map[string]*roaring.Bitmap
	idf           map[string]float64
}

// Build indexes documents in the order given.
func Build(documents []Document) *Index {
	index := &Index{
		documents: make([]indexedDocument, len(documents)),
		postings:  make(map[string]*roaring.Bitmap),
	}

	var totalLength int
	for i, document := range documents {
		tokens := compositeTokens(document.Fields)
		terms := make(map[string]int)
		for _, token := range tokens {
			terms[token]++
		}
		for term := range terms {
			bm, ok := index.postings[term]
			if !ok {
				bm = roaring.New()
				index.postings[term] = bm
			}
			bm.Add(uint32(i))
		}
		index.documents[i] = indexedDocument{
			Slug:     document.Slug,
			Metadata: document.Metadata,
			Length:   len(tokens),
			Terms:    terms,
		}
		totalLength += len(tokens)
	}
	if len(documents) > 0 {
		index.averageLength = float64(totalLength) / float64(len(documents))
	}
	index.computeIDF()
	return index
}

func (index *Index) computeIDF() {
	index.idf = make(map[string]float64, len(index.postings))
	count := float64(len(index.documents))
	for term, bm := range index.postings {
		frequency := float64(bm.GetCardinality())
		idf := math.Log(1 + (count-frequency+0.5)/(frequency+0.5))
		if idf < 0 {
			idf = paramEpsilon
		}
		index.idf[term] = idf
	}
}

// Len is the number of indexed documents.
func (index *Index) Len() int { return len(index.documents) }

// MarshalJSON implements json.Marshaler.
func (index *Index) MarshalJSON() ([]byte, error) {
	s := serialized{
		Documents:     index.documents,
		AverageLength: index.averageLength,
		Postings:      make(map[string]string, len(index.postings)),
	}
	for term, bm := range index.postings {
		encoded, err := bm.ToBase64()
		if err != nil {
			return nil, fmt.Errorf("encode postings for %q: %w", term, err)
		}
		s.Postings[term] = encoded
	}
	return json.Marshal(s)
}

// Parse restores an index written with json.Marshal.
func Parse(data []byte) (*Index, error) {
	var s serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse search index: %w", err)
	}
	index := &Index{
		documents:     s.Documents,
		averageLength: s.AverageLength,
		postings:      make(map[string]*roaring.Bitmap, len(s.Postings)),
	}
	for term, encoded := range s.Postings {
		bm := roaring.New()
		if _, err := bm.FromBase64(encoded); err != nil {
			return nil, fmt.Errorf("decode postings for %q: %w", term, err)
		}
		index.postings[term] = bm
	}
	index.computeIDF()
	return index, nil
}

// Search ranks documents whose slug starts with prefix against query and
// returns at most limit hits (all hits when limit <= 0). Ties keep index
// order.
func (index *Index) Search(query string, limit int, prefix string) []Result {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var matching []*roaring.Bitmap
	for _, token := range queryTokens {
		if bm, ok := index.postings[token]; ok {
			matching = append(matching, bm)
		}
	}
	if len(matching) == 0 {
		return nil
	}
	candidates := roaring.FastOr(matching...)

	type scored struct {
		index int
		score float64
	}
	var hits []scored
	it := candidates.Iterator()
	for it.HasNext() {
		i := int(it.Next())
		if !strings.HasPrefix(index.documents[i].Slug, prefix) {
			continue
		}
		if score := index.score(i, queryTokens); score > 0 {
			hits = append(hits, scored{index: i, score: score})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		document := index.documents[hit.index]
		results[i] = Result{Slug: document.Slug, Score: hit.score, Metadata: document.Metadata}
	}
	return results
}

func (index *Index) score(documentIndex int, queryTokens []string) float64 {
	document := index.documents[documentIndex]
	length := float64(document.Length)

	var score float64
	for _, token := range queryTokens {
		idf, ok := index.idf[token]
		if !ok {
			continue
		}
		frequency := float64(document.Terms[token])
		if frequency == 0 {
			continue
		}
		numerator := frequency * (paramK1 + 1)
		denominator := frequency + paramK1*(1-paramB+paramB*length/index.averageLength)
		score += idf * numerator / denominator
	}
	return score
}

func compositeTokens(fields []Field) []string {
	var tokens []string
	for _, field := range fields {
		if field.Weight <= 0 {
			continue
		}
		fieldTokens := Tokenize(field.Text)
		for i := 0; i < field.Weight; i++ {
			tokens = append(tokens, fieldTokens...)
		}
	}
	return tokens
}

// Tokenize splits text into lowercase letter/digit runs, dropping tokens
// shorter than two characters.
func Tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := matches[:0]
	for _, match := range matches {
		if len([]rune(match)) >= 2 {
			tokens = append(tokens, match)
		}
	}
	return tokens
}
