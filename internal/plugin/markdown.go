package plugin

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/agentic-research/kiln/api"
	"github.com/agentic-research/kiln/internal/ingest"
)

var markdownExtensions = []string{".md", ".markdown"}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// markdown turns "<path>.md" into "<path>" with front matter as metadata.
// With render: html the body is converted to HTML.
type markdown struct {
	html bool
}

func newMarkdown(opts map[string]any) (any, error) {
	render, err := stringOption(opts, "render", "")
	if err != nil {
		return nil, err
	}
	switch render {
	case "", "markdown":
		return &markdown{}, nil
	case "html":
		return &markdown{html: true}, nil
	default:
		return nil, fmt.Errorf("%w: render must be markdown or html, got %q", ingest.ErrConfig, render)
	}
}

func (p *markdown) Name() string { return "markdown" }

func (p *markdown) Transform(_ context.Context, e api.Entry) ([]api.Entry, error) {
	key, _, ok := trimExtension(e.Key, markdownExtensions...)
	if !ok {
		return []api.Entry{e}, nil
	}
	metadata, body, err := splitFrontMatter(e.Value)
	if err != nil {
		return nil, &ingest.ContentError{Key: e.Key, Err: err}
	}
	body = []byte(strings.TrimSpace(strings.ReplaceAll(string(body), "\r", "")))

	if p.html {
		var buf bytes.Buffer
		if err := md.Convert(body, &buf); err != nil {
			return nil, &ingest.ContentError{Key: e.Key, Err: err}
		}
		body = buf.Bytes()
	}
	return []api.Entry{{Key: key, Value: body, Metadata: metadata}}, nil
}

// PlainText extracts the readable text of a markdown document, separating
// blocks with newlines.
func PlainText(src []byte) string {
	doc := md.Parser().Parse(text.NewReader(src))
	var buf strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}
