package layout

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Style is a set of inline text attributes.
type Style uint8

const (
	Bold Style = 1 << iota
	Italic
	Underline
	Heading
	Link
	Preformatted
)

// Span is a run of text in one style, or an image box.
type Span struct {
	Text  string
	Style Style
	Width float64

	// Image is the <img> (or SVG <image>) element for image boxes; Text then
	// holds its alt text.
	Image  *html.Node
	Height float64
}

// Line is one laid-out line box. Gap lines carry no spans and stand for the
// spacing between blocks; Rule lines are horizontal rules.
type Line struct {
	Indent float64
	Width  float64
	Height float64
	Spans  []Span
	Gap    bool
	Rule   bool
}

// Options tunes the flow model.
type Options struct {
	// ParagraphGap is the space between spaced blocks (paragraphs, headings,
	// lists), in lines.
	ParagraphGap float64
	// Indent is the inset of each blockquote or list level, in units.
	Indent float64
}

// DefaultOptions is one blank line between paragraphs and a two-unit
// indent per nesting level.
var DefaultOptions = Options{ParagraphGap: 1, Indent: 2}

// Height returns the total height of lines.
func Height(lines []Line) float64 {
	h := 0.0
	for _, l := range lines {
		h += l.Height
	}
	return h
}

// Lines lays out the children of root in a column width units wide.
func Lines(root *html.Node, m Metrics, width float64, opts Options) []Line {
	f := &flow{m: m, width: width, opts: opts}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		f.walk(c)
	}
	f.endLine()
	return f.lines
}

type flow struct {
	m     Metrics
	width float64
	opts  Options

	lines   []Line
	cur     Line
	indent  float64
	style   Style
	pre     int
	space   bool
	gap     bool
	marker  string
	markerW float64
}

type blockKind uint8

const (
	inline blockKind = iota
	plain
	spaced
)

func classify(a atom.Atom) blockKind {
	switch a {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Blockquote, atom.Pre, atom.Figure, atom.Table, atom.Dl:
		return spaced
	case atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer, atom.Nav,
		atom.Aside, atom.Main, atom.Li, atom.Dt, atom.Dd, atom.Figcaption, atom.Tr,
		atom.Address, atom.Center, atom.Body, atom.Html, atom.Caption, atom.Tbody,
		atom.Thead, atom.Tfoot:
		return plain
	}
	return inline
}

func (f *flow) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		f.text(n.Data)
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Head, atom.Title, atom.Template:
		return
	case atom.Br:
		f.lineBreak()
		return
	case atom.Img, atom.Image:
		f.image(n)
		return
	case atom.Hr:
		f.endLine()
		f.flushGap()
		f.lines = append(f.lines, Line{Indent: f.indent, Height: f.m.LineHeight(), Rule: true})
		f.gap = true
		return
	}
	if n.Data == "image" && n.Namespace == "svg" {
		f.image(n)
		return
	}

	kind := classify(n.DataAtom)
	saveStyle, saveIndent := f.style, f.indent
	switch n.DataAtom {
	case atom.B, atom.Strong, atom.Th:
		f.style |= Bold
	case atom.I, atom.Em, atom.Cite, atom.Var, atom.Dfn:
		f.style |= Italic
	case atom.U, atom.Ins:
		f.style |= Underline
	case atom.A:
		if attr(n, "href") != "" {
			f.style |= Link
		}
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		f.style |= Heading | Bold
	case atom.Pre:
		f.style |= Preformatted
		f.pre++
	case atom.Blockquote, atom.Ul, atom.Ol, atom.Dd:
		f.indent += f.opts.Indent
	}

	if kind != inline {
		f.endLine()
		if kind == spaced {
			f.gap = true
		}
		f.space = false
	}
	if n.DataAtom == atom.Li {
		f.marker = listMarker(n)
		f.markerW = f.m.Width(f.marker)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		f.walk(c)
	}

	if kind != inline {
		f.endLine()
		if kind == spaced {
			f.gap = true
		}
		f.space = false
	}
	if n.DataAtom == atom.Li {
		f.marker = ""
	}
	if n.DataAtom == atom.Pre {
		f.pre--
	}
	f.style, f.indent = saveStyle, saveIndent
}

func listMarker(li *html.Node) string {
	if li.Parent == nil || li.Parent.DataAtom != atom.Ol {
		return "• "
	}
	n := 1
	if s, err := strconv.Atoi(attr(li.Parent, "start")); err == nil {
		n = s
	}
	for c := li.PrevSibling; c != nil; c = c.PrevSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			n++
		}
	}
	return strconv.Itoa(n) + ". "
}

func (f *flow) text(s string) {
	if f.pre > 0 {
		for i, seg := range strings.Split(s, "\n") {
			if i > 0 {
				f.lineBreak()
			}
			if seg != "" {
				f.raw(strings.ReplaceAll(seg, "\t", "    "))
			}
		}
		return
	}

	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				f.word(s[start:i])
				start = -1
			}
			f.space = true
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		f.word(s[start:])
	}
}

func (f *flow) avail() float64 {
	return f.width - f.indent
}

// word places one whitespace-delimited word, breaking it at a soft hyphen
// or, as a last resort, between grapheme clusters.
func (f *flow) word(w string) {
	// A trailing soft hyphen only survives where a page broke the word.
	if trimmed, ok := strings.CutSuffix(w, softHyphen); ok {
		w = trimmed + "-"
	}
	for w != "" {
		sep := 0.0
		if f.space && len(f.cur.Spans) > 0 {
			sep = f.m.Width(" ")
		}
		used := f.cur.Width + sep
		if len(f.cur.Spans) == 0 {
			used = f.markerW
		}
		ww := f.m.Width(w)
		if used+ww <= f.avail() {
			f.place(w, ww)
			return
		}

		if head, tail, ok := f.splitAtSoftHyphen(w, f.avail()-used); ok {
			f.place(head+"-", f.m.Width(head+"-"))
			f.endLine()
			w = tail
			continue
		}
		if len(f.cur.Spans) > 0 {
			f.endLine()
			continue
		}

		head, tail := f.splitGraphemes(w, f.avail()-used)
		f.place(head, f.m.Width(head))
		f.endLine()
		w = tail
	}
}

// splitAtSoftHyphen finds the last soft hyphen in w whose prefix plus a
// visible hyphen fits in room.
func (f *flow) splitAtSoftHyphen(w string, room float64) (string, string, bool) {
	for i := strings.LastIndex(w, softHyphen); i > 0; i = strings.LastIndex(w[:i], softHyphen) {
		head := w[:i]
		if f.m.Width(head+"-") <= room {
			return head, w[i+len(softHyphen):], true
		}
	}
	return "", "", false
}

// splitGraphemes returns the longest prefix of w that fits in room, never
// less than one cluster.
func (f *flow) splitGraphemes(w string, room float64) (string, string) {
	end := 0
	g := uniseg.NewGraphemes(w)
	for g.Next() {
		_, to := g.Positions()
		if end > 0 && f.m.Width(w[:to]) > room {
			break
		}
		end = to
	}
	return w[:end], w[end:]
}

// raw places preformatted text, hard-breaking at the column edge.
func (f *flow) raw(s string) {
	for s != "" {
		room := f.avail() - f.cur.Width
		if len(f.cur.Spans) == 0 {
			room = f.avail() - f.markerW
		}
		if f.m.Width(s) <= room {
			f.place(s, f.m.Width(s))
			return
		}
		head, tail := f.splitGraphemes(s, room)
		if len(f.cur.Spans) > 0 && f.m.Width(head) > room {
			f.endLine()
			continue
		}
		f.place(head, f.m.Width(head))
		f.endLine()
		s = tail
	}
}

func (f *flow) startLine() {
	f.flushGap()
	f.cur = Line{Indent: f.indent}
	if f.marker != "" {
		f.cur.Spans = append(f.cur.Spans, Span{Text: f.marker, Width: f.markerW})
		f.cur.Width = f.markerW
		f.marker = ""
		f.markerW = 0
	}
}

func (f *flow) flushGap() {
	if f.gap && len(f.lines) > 0 && f.opts.ParagraphGap > 0 {
		f.lines = append(f.lines, Line{Height: f.opts.ParagraphGap * f.m.LineHeight(), Gap: true})
	}
	f.gap = false
}

func (f *flow) place(text string, width float64) {
	if len(f.cur.Spans) == 0 {
		f.startLine()
	} else if f.space {
		text = " " + text
		width += f.m.Width(" ")
	}
	f.space = false
	text = strings.ReplaceAll(text, softHyphen, "")

	if n := len(f.cur.Spans); n > 0 {
		last := &f.cur.Spans[n-1]
		if last.Image == nil && last.Style == f.style {
			last.Text += text
			last.Width += width
			f.cur.Width += width
			return
		}
	}
	f.cur.Spans = append(f.cur.Spans, Span{Text: text, Style: f.style, Width: width})
	f.cur.Width += width
}

func (f *flow) image(n *html.Node) {
	bw, bh, ok := f.imageBox(n)
	if !ok {
		alt := attr(n, "alt")
		if alt == "" {
			alt = "image"
		}
		f.word("[" + alt + "]")
		return
	}
	sep := 0.0
	if f.space && len(f.cur.Spans) > 0 {
		sep = f.m.Width(" ")
	}
	if len(f.cur.Spans) > 0 && f.cur.Width+sep+bw > f.avail() {
		f.endLine()
	}
	if len(f.cur.Spans) == 0 {
		f.startLine()
	} else if f.space {
		f.cur.Spans = append(f.cur.Spans, Span{Text: " ", Style: f.style, Width: sep})
		f.cur.Width += sep
	}
	f.space = false
	f.cur.Spans = append(f.cur.Spans, Span{Text: attr(n, "alt"), Image: n, Width: bw, Height: bh})
	f.cur.Width += bw
}

// imageBox converts the element's width and height attributes from pixels
// to units.
func (f *flow) imageBox(n *html.Node) (float64, float64, bool) {
	w, okW := pixels(attr(n, "width"))
	h, okH := pixels(attr(n, "height"))
	if !okW || !okH {
		return 0, 0, false
	}
	px, py := f.m.PixelSize()
	return math.Ceil(w / px), math.Ceil(h / py), true
}

func pixels(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func (f *flow) lineBreak() {
	if len(f.cur.Spans) == 0 {
		f.startLine()
		f.cur.Height = f.m.LineHeight()
		f.lines = append(f.lines, f.cur)
		f.cur = Line{}
		f.space = false
		return
	}
	f.endLine()
	f.space = false
}

func (f *flow) endLine() {
	if len(f.cur.Spans) == 0 {
		return
	}
	h := f.m.LineHeight()
	for _, s := range f.cur.Spans {
		if s.Height > h {
			h = s.Height
		}
	}
	f.cur.Height = h
	f.lines = append(f.lines, f.cur)
	f.cur = Line{}
	f.space = false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// indentAt returns the inset of n's content box inside root.
func indentAt(n, root *html.Node, opts Options) float64 {
	in := 0.0
	for p := n; p != nil && p != root; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		switch p.DataAtom {
		case atom.Blockquote, atom.Ul, atom.Ol, atom.Dd:
			in += opts.Indent
		}
	}
	return in
}
