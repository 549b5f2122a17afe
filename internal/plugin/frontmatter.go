package plugin

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
)

const fence = "---"

var errUnterminated = errors.New("unterminated front matter")

// splitFrontMatter separates a leading YAML block delimited by "---" lines
// from the body. Content without a block yields empty metadata.
func splitFrontMatter(src []byte) (api.Metadata, []byte, error) {
	text := string(src)
	text = strings.TrimPrefix(text, "\ufeff")

	open, rest, ok := strings.Cut(text, "\n")
	if !ok || strings.TrimRight(open, " \t\r") != fence {
		return api.Metadata{}, src, nil
	}

	var block, body string
	found := false
	for offset := 0; offset <= len(rest); {
		end := strings.IndexByte(rest[offset:], '\n')
		line := rest[offset:]
		next := len(rest)
		if end >= 0 {
			line = rest[offset : offset+end]
			next = offset + end + 1
		}
		if strings.TrimRight(line, " \t\r") == fence {
			block, body = rest[:offset], rest[next:]
			found = true
			break
		}
		if end < 0 {
			break
		}
		offset = next
	}
	if !found {
		return nil, nil, errUnterminated
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return nil, nil, err
	}
	metadata, err := normalizeMetadata(raw)
	if err != nil {
		return nil, nil, err
	}
	return metadata, []byte(body), nil
}

// frontMatter lifts a YAML header into metadata and leaves the key intact.
// Option match selects keys by suffix.
type frontMatter struct {
	match string
}

func newFrontMatter(opts map[string]any) (any, error) {
	match, err := stringOption(opts, "match", ".md")
	if err != nil {
		return nil, err
	}
	return &frontMatter{match: match}, nil
}

func (p *frontMatter) Name() string { return "frontmatter" }

func (p *frontMatter) Transform(_ context.Context, e api.Entry) ([]api.Entry, error) {
	if !strings.HasSuffix(e.Key, p.match) {
		return []api.Entry{e}, nil
	}
	metadata, body, err := splitFrontMatter(e.Value)
	if err != nil {
		return nil, &ingest.ContentError{Key: e.Key, Err: err}
	}
	body = bytes.TrimSpace(body)
	return []api.Entry{{Key: e.Key, Value: body, Metadata: metadata}}, nil
}
