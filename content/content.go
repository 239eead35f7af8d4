// Package content turns chapter sources into the node trees the paginator
// walks: XHTML from an ePub archive, or Markdown.
package content

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/simp-lee/republish/epub"
)

// FileReader resolves archive paths to bytes. *epub.Book implements it.
type FileReader interface {
	ReadFile(name string) ([]byte, error)
}

// Document is one parsed chapter.
type Document struct {
	// Name is the archive path the document was read from.
	Name  string
	Title string
	// Style is the chapter's linked and inline CSS, in document order.
	Style string
	// Body is the <body> element. Its children are the chapter content.
	Body *html.Node
	// Warnings lists stylesheets that could not be read.
	Warnings []string
}

// Empty returns a document with an empty body, used in place of a chapter
// that could not be read.
func Empty(name string) *Document {
	return &Document{
		Name: name,
		Body: &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"},
	}
}

var xmlEncodingPattern = regexp.MustCompile(`^\s*<\?xml[^>]*encoding=["']([A-Za-z0-9._-]+)["']`)

// Parse decodes and parses chapter markup. name is the chapter's archive
// path, used to resolve stylesheet links through files; files may be nil.
func Parse(data []byte, name string, files FileReader) (*Document, error) {
	r, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("content: %s: %w", name, err)
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("content: parse %s: %w", name, err)
	}

	doc := &Document{Name: name}
	doc.Body = findElement(root, atom.Body)
	if doc.Body == nil {
		return nil, fmt.Errorf("content: %s: %w", name, ErrNoBody)
	}
	if t := findElement(root, atom.Title); t != nil {
		doc.Title = strings.TrimSpace(textContent(t))
	}
	if head := findElement(root, atom.Head); head != nil {
		doc.collectStyle(head, files)
	}
	normalize(doc.Body)
	return doc, nil
}

// decode returns a UTF-8 reader over data. An encoding named in the XML
// declaration wins; otherwise the HTML sniffing rules apply (BOM, <meta>,
// then UTF-8 validity).
func decode(data []byte) (io.Reader, error) {
	if m := xmlEncodingPattern.FindSubmatch(data); m != nil {
		label := strings.ToLower(string(m[1]))
		if label != "utf-8" && label != "utf8" {
			enc, err := htmlindex.Get(label)
			if err == nil {
				return transform.NewReader(bytes.NewReader(data), enc.NewDecoder()), nil
			}
		}
	}
	return charset.NewReader(bytes.NewReader(data), "")
}

func (d *Document) collectStyle(head *html.Node, files FileReader) {
	var sb strings.Builder
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Link:
			if !hasToken(attr(c, "rel"), "stylesheet") || files == nil {
				continue
			}
			p := epub.ResolvePath(d.Name, attr(c, "href"))
			if p == "" {
				continue
			}
			css, err := files.ReadFile(p)
			if err != nil {
				d.Warnings = append(d.Warnings, fmt.Sprintf("stylesheet %s: %v", p, err))
				continue
			}
			sb.Write(css)
			sb.WriteByte('\n')
		case atom.Style:
			sb.WriteString(textContent(c))
			sb.WriteByte('\n')
		}
	}
	d.Style = sb.String()
}

// normalize drops scripts and comments from the body and puts text in NFC
// so that hyphenation patterns and width tables see composed characters.
func normalize(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode,
			c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Noscript):
			n.RemoveChild(c)
		case c.Type == html.TextNode:
			c.Data = norm.NFC.String(c.Data)
		default:
			normalize(c)
		}
		c = next
	}
}

// ImageSource returns the archive path an <img> src or SVG <image> href
// points at, resolved against the chapter path base. Data URIs and external
// URLs yield "".
func ImageSource(n *html.Node, base string) string {
	if !IsImage(n) {
		return ""
	}
	ref := attr(n, "src")
	if n.DataAtom != atom.Img {
		for _, a := range n.Attr {
			if a.Key == "href" || a.Key == "xlink:href" {
				ref = a.Val
			}
		}
	}
	return epub.ResolvePath(base, ref)
}

// DataURI encodes data as a base64 data: URI.
func DataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// IsImage reports whether n is an <img> or an SVG <image> element.
func IsImage(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	return n.DataAtom == atom.Img || (n.Data == "image" && n.Namespace == "svg")
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
