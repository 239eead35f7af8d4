package layout

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"math"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// body parses an HTML fragment and returns its <body>.
func body(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><body>" + s + "</body></html>"))
	if err != nil {
		t.Fatalf("html.Parse() error = %v", err)
	}
	var find func(*html.Node) *html.Node
	find = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if b := find(c); b != nil {
				return b
			}
		}
		return nil
	}
	return find(doc)
}

func lineTexts(lines []Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		var sb strings.Builder
		for _, s := range l.Spans {
			sb.WriteString(s.Text)
		}
		out = append(out, sb.String())
	}
	return out
}

func TestLines_Wrapping(t *testing.T) {
	noGap := Options{}
	tests := []struct {
		name  string
		html  string
		width float64
		opts  Options
		want  []string
	}{
		{"greedy", "<p>aaaa bbbb cccc</p>", 10, noGap, []string{"aaaa bbbb", "cccc"}},
		{"collapsed whitespace", "<p>  aaaa \n\t bbbb  </p>", 20, noGap, []string{"aaaa bbbb"}},
		{"paragraph gap", "<p>a</p><p>b</p>", 10, Options{ParagraphGap: 1}, []string{"a", "", "b"}},
		{"no gap", "<p>a</p><p>b</p>", 10, noGap, []string{"a", "b"}},
		{"div has no gap", "<div>a</div><div>b</div>", 10, Options{ParagraphGap: 1}, []string{"a", "b"}},
		{"soft hyphen", "<p>xx hy\u00adphen\u00adation</p>", 6, noGap, []string{"xx hy-", "phen-", "ation"}},
		{"trailing soft hyphen", "<p>hy\u00ad</p>", 6, noGap, []string{"hy-"}},
		{"hard break", "<p>abcdefghij</p>", 4, noGap, []string{"abcd", "efgh", "ij"}},
		{"br", "a<br>b", 10, noGap, []string{"a", "b"}},
		{"double br", "a<br><br>b", 10, noGap, []string{"a", "", "b"}},
		{"pre", "<pre>x  y\nz</pre>", 10, noGap, []string{"x  y", "z"}},
		{"ordered list", "<ol><li>one</li><li>two</li></ol>", 20, Options{Indent: 2}, []string{"1. one", "2. two"}},
		{"unordered list", "<ul><li>one</li></ul>", 20, Options{Indent: 2}, []string{"• one"}},
		{"inline styles", "<p>a <b>b</b> c</p>", 20, noGap, []string{"a b c"}},
		{"script ignored", "<p>a</p><script>var x;</script>", 20, noGap, []string{"a"}},
		{"image alt", `<p><img alt="fig"/></p>`, 20, noGap, []string{"[fig]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lineTexts(Lines(body(t, tt.html), CellMetrics{}, tt.width, tt.opts))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Lines() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLines_Styles(t *testing.T) {
	lines := Lines(body(t, "<h1>T</h1><p>a <em>b</em></p>"), CellMetrics{}, 20, Options{})
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if s := lines[0].Spans[0].Style; s&Heading == 0 || s&Bold == 0 {
		t.Errorf("heading style = %b", s)
	}
	spans := lines[1].Spans
	if len(spans) != 2 || spans[1].Style != Italic || spans[1].Text != " b" {
		t.Errorf("paragraph spans = %+v", spans)
	}
}

func TestLines_Indent(t *testing.T) {
	lines := Lines(body(t, "<blockquote><p>aaaa bbbb</p></blockquote>"), CellMetrics{}, 10, Options{Indent: 2})
	if got := lineTexts(lines); !reflect.DeepEqual(got, []string{"aaaa", "bbbb"}) {
		t.Errorf("Lines() = %q", got)
	}
	if lines[0].Indent != 2 {
		t.Errorf("Indent = %v, want 2", lines[0].Indent)
	}
}

func TestLines_ImageBox(t *testing.T) {
	lines := Lines(body(t, `<p><img src="a.png" width="80" height="64"/></p>`), CellMetrics{}, 20, Options{})
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
	l := lines[0]
	if l.Height != 4 || l.Width != 10 {
		t.Errorf("image line = %vx%v, want 10x4", l.Width, l.Height)
	}
	if l.Spans[0].Image == nil {
		t.Error("span has no Image")
	}
	if h := Height(lines); h != 4 {
		t.Errorf("Height() = %v, want 4", h)
	}
}

func TestCellMetrics_Width(t *testing.T) {
	m := CellMetrics{}
	tests := []struct {
		s    string
		want float64
	}{
		{"abc", 3},
		{"日本", 4},
		{"e\u0301", 1},
		{"a\u00adb", 2},
		{"", 0},
	}
	for _, tt := range tests {
		if got := m.Width(tt.s); got != tt.want {
			t.Errorf("Width(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
	if x, y := m.PixelSize(); x != 8 || y != 16 {
		t.Errorf("PixelSize() = %v,%v, want 8,16", x, y)
	}
}

func TestFontMetrics_Default(t *testing.T) {
	m, err := NewFontMetrics("", 0, 0)
	if err != nil {
		t.Fatalf("NewFontMetrics() error = %v", err)
	}
	if got := m.Width("abc"); got != 21 {
		t.Errorf("Width(abc) = %v, want 21", got)
	}
	if got := m.Width("a\u00adb"); got != 14 {
		t.Errorf("Width with soft hyphen = %v, want 14", got)
	}
	if got := m.LineHeight(); math.Abs(got-15.6) > 1e-9 {
		t.Errorf("LineHeight() = %v, want 15.6", got)
	}
	if _, err := NewFontMetrics("/nonexistent/font.ttf", 12, 1); err == nil {
		t.Error("NewFontMetrics(missing file) error = nil")
	}
}

func TestSurface_Region(t *testing.T) {
	s := NewSurface(CellMetrics{}, 10, 2, Options{Indent: 2})
	r := s.Acquire()
	if s.Active() != 1 {
		t.Fatalf("Active() = %d, want 1", s.Active())
	}

	bq := &html.Node{Type: html.ElementNode, DataAtom: atom.Blockquote, Data: "blockquote"}
	p := &html.Node{Type: html.ElementNode, DataAtom: atom.P, Data: "p"}
	text := &html.Node{Type: html.TextNode, Data: "aaaa bbbb"}
	r.Root().AppendChild(bq)
	bq.AppendChild(p)
	p.AppendChild(text)

	if r.Overflow() {
		t.Error("two lines overflowed a two-line surface")
	}
	text.Data = "aaaa bbbb cccc"
	if !r.Overflow() {
		t.Error("three lines did not overflow a two-line surface")
	}
	if got := r.ContentWidth(p); got != 64 {
		t.Errorf("ContentWidth(p) = %v, want 64", got)
	}
	if w, h := r.Capacity(); w != 80 || h != 32 {
		t.Errorf("Capacity() = %v,%v, want 80,32", w, h)
	}

	r.Release()
	r.Release()
	if s.Active() != 0 {
		t.Errorf("Active() after Release = %d, want 0", s.Active())
	}
	if r.Overflow() {
		t.Error("released region reported overflow")
	}
}

func TestIntrinsicSize(t *testing.T) {
	img := image.NewPaletted(image.Rect(0, 0, 3, 2), color.Palette{color.Black, color.White})
	var pngBuf, gifBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}
	if err := gif.Encode(&gifBuf, img, nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		data  []byte
		w, h  int
		isErr bool
	}{
		{"png", pngBuf.Bytes(), 3, 2, false},
		{"gif", gifBuf.Bytes(), 3, 2, false},
		{"svg attrs", []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="120px" height="40"></svg>`), 120, 40, false},
		{"svg viewBox", []byte(`<?xml version="1.0"?><svg viewBox="0 0 300 150"></svg>`), 300, 150, false},
		{"svg without size", []byte(`<svg></svg>`), 0, 0, true},
		{"garbage", []byte("not an image"), 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := IntrinsicSize(tt.data)
			if (err != nil) != tt.isErr {
				t.Fatalf("IntrinsicSize() error = %v, wantErr %v", err, tt.isErr)
			}
			if w != tt.w || h != tt.h {
				t.Errorf("IntrinsicSize() = %dx%d, want %dx%d", w, h, tt.w, tt.h)
			}
		})
	}
}
