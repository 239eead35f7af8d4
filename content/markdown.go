package content

import (
	"bytes"
	"fmt"
	"html"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Typographer),
)

// FromMarkdown renders a Markdown chapter to HTML and parses it. The title
// is the first heading, or the file name without its extension.
func FromMarkdown(src []byte, name string) (*Document, error) {
	title := markdownTitle(src)
	if title == "" {
		title = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html><html><head><title>")
	buf.WriteString(html.EscapeString(title))
	buf.WriteString("</title></head><body>")
	if err := markdown.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("content: render %s: %w", name, err)
	}
	buf.WriteString("</body></html>")
	return Parse(buf.Bytes(), name, nil)
}

func markdownTitle(src []byte) string {
	doc := markdown.Parser().Parse(text.NewReader(src))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			return strings.TrimSpace(string(h.Text(src)))
		}
	}
	return ""
}
