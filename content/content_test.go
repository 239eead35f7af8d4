package content

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type fileMap map[string]string

func (m fileMap) ReadFile(name string) ([]byte, error) {
	s, ok := m[name]
	if !ok {
		return nil, errors.New("not found: " + name)
	}
	return []byte(s), nil
}

func TestParse_XHTML(t *testing.T) {
	src := `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title> Chapter 1 </title>
  <link rel="stylesheet" type="text/css" href="../css/book.css"/>
  <link rel="stylesheet" href="../css/missing.css"/>
  <link rel="icon" href="../css/ignored.css"/>
  <style>p { indent: 1em }</style>
</head>
<body><!-- note --><p>Cafe&#x301; <script>x()</script>ok</p></body>
</html>`
	files := fileMap{
		"OEBPS/css/book.css":    "body { margin: 0 }",
		"OEBPS/css/ignored.css": "nope",
	}

	doc, err := Parse([]byte(src), "OEBPS/text/ch1.xhtml", files)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if doc.Title != "Chapter 1" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.Style != "body { margin: 0 }\np { indent: 1em }\n" {
		t.Errorf("Style = %q", doc.Style)
	}
	if len(doc.Warnings) != 1 || !strings.Contains(doc.Warnings[0], "missing.css") {
		t.Errorf("Warnings = %v", doc.Warnings)
	}
	if doc.Body == nil || doc.Body.DataAtom != atom.Body {
		t.Fatalf("Body = %v", doc.Body)
	}

	p := doc.Body.FirstChild
	if p == nil || p.DataAtom != atom.P {
		t.Fatalf("first body child = %+v, want <p> (comment removed)", p)
	}
	if got := textContent(p); got != "Caf\u00e9 ok" {
		t.Errorf("paragraph text = %q, want NFC %q", got, "Caf\u00e9 ok")
	}
}

func TestParse_Charsets(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"meta charset", append([]byte(`<html><head><meta charset="windows-1252"></head><body><p>caf`), 0xE9, '<', '/', 'p', '>')},
		{"xml declaration", append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><html><body><p>caf`), 0xE9, '<', '/', 'p', '>')},
		{"utf-8", []byte("<html><body><p>caf\u00e9</p></body></html>")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.data, "ch.xhtml", nil)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := textContent(doc.Body); got != "caf\u00e9" {
				t.Errorf("body text = %q, want %q", got, "caf\u00e9")
			}
		})
	}
}

func TestImageSource(t *testing.T) {
	doc, err := Parse([]byte(`<html><body>
<img src="../images/a.png"/>
<img src="data:image/png;base64,AAAA"/>
<img src="http://example.com/b.png"/>
<svg xmlns:xlink="http://www.w3.org/1999/xlink"><image xlink:href="../images/c.jpg"/></svg>
</body></html>`), "OEBPS/text/ch1.xhtml", nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	var got []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if IsImage(n) {
			got = append(got, ImageSource(n, doc.Name))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc.Body)

	want := []string{"OEBPS/images/a.png", "", "", "OEBPS/images/c.jpg"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("ImageSource() = %q, want %q", got, want)
	}
}

func TestDataURI(t *testing.T) {
	if got := DataURI("image/png", []byte("hi")); got != "data:image/png;base64,aGk=" {
		t.Errorf("DataURI() = %q", got)
	}
}

func TestFromMarkdown(t *testing.T) {
	src := []byte("# The Start\n\nIt was a \"dark\" night.\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	doc, err := FromMarkdown(src, "book/01-start.md")
	if err != nil {
		t.Fatalf("FromMarkdown() error = %v", err)
	}
	if doc.Title != "The Start" {
		t.Errorf("Title = %q", doc.Title)
	}
	h1 := findElement(doc.Body, atom.H1)
	if h1 == nil || textContent(h1) != "The Start" {
		t.Errorf("h1 = %v", h1)
	}
	if p := findElement(doc.Body, atom.P); p == nil || !strings.Contains(textContent(p), "\u201cdark\u201d") {
		t.Errorf("paragraph missing typographic quotes")
	}
	if findElement(doc.Body, atom.Table) == nil {
		t.Error("GFM table not rendered")
	}
}

func TestFromMarkdown_TitleFallback(t *testing.T) {
	doc, err := FromMarkdown([]byte("Just text."), "book/02-interlude.md")
	if err != nil {
		t.Fatalf("FromMarkdown() error = %v", err)
	}
	if doc.Title != "02-interlude" {
		t.Errorf("Title = %q, want file name", doc.Title)
	}
}

func TestEmpty(t *testing.T) {
	doc := Empty("x.xhtml")
	if doc.Body == nil || doc.Body.FirstChild != nil || doc.Name != "x.xhtml" {
		t.Errorf("Empty() = %+v", doc)
	}
}
