// Package paginate splits a chapter's node tree into pages that each fit a
// render region. The split runs as a cooperative state machine on a
// sched.Loop, emitting every page as soon as it is complete.
package paginate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/simp-lee/republish/content"
	"github.com/simp-lee/republish/sched"
)

const softHyphen = '\u00ad'

// Region is the render target a traversal fills. layout.Region implements
// it.
type Region interface {
	// Root is the frame pages are built under.
	Root() *html.Node
	// Overflow reports whether the content under Root exceeds capacity.
	Overflow() bool
	// ContentWidth is the width in pixels available to children of n.
	ContentWidth(n *html.Node) float64
	// Capacity is the full page area in pixels.
	Capacity() (width, height float64)
	Release()
}

// DefaultPageDelay is the pause after each emitted page.
const DefaultPageDelay = 10 * time.Millisecond

// imageShrinkSteps and imageShrinkFactor bound the attempt to make an
// overflowing image fit by shrinking every image on the page.
const (
	imageShrinkSteps  = 3
	imageShrinkFactor = 0.9
)

// Options configures a Traversal. The zero value is usable.
type Options struct {
	// Hyphenate inserts soft hyphens into a text run. Nil disables
	// hyphenation.
	Hyphenate func(string) string
	// ImageSize returns the intrinsic pixel size of an image element and may
	// rewrite its attributes. Declared width and height take precedence
	// over the returned size.
	ImageSize func(n *html.Node) (width, height int, ok bool)
	// StepDelay is the pause between ordinary steps.
	StepDelay time.Duration
	// PageDelay is the pause after a step that emitted a page. Zero means
	// DefaultPageDelay; negative means no pause.
	PageDelay time.Duration
	Logger    *slog.Logger
}

// Traversal is a single pagination run over one tree. It is not reusable.
type Traversal struct {
	src    *html.Node
	region Region
	opts   Options
	log    *slog.Logger

	ctx        context.Context
	loop       *sched.Loop
	onPage     func(*Page)
	onComplete func(error)

	// stack holds the open source elements and their clones in the current
	// page; stack[0] pairs the source root with the region frame.
	stack []openElement
	next  *html.Node
	text  *textRun
	pages int
	dirty bool

	started bool
	done    bool
}

type openElement struct {
	src   *html.Node
	clone *html.Node
}

// textRun is a text node being fitted token by token.
type textRun struct {
	tokens []string
	pos    int
	clone  *html.Node
}

// New prepares a traversal of root's children into region. root itself is
// not copied; the region frame stands in for it.
func New(root *html.Node, region Region, opts Options) *Traversal {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.PageDelay == 0 {
		opts.PageDelay = DefaultPageDelay
	}
	return &Traversal{
		src:    root,
		region: region,
		opts:   opts,
		log:    opts.Logger,
		stack:  []openElement{{src: root, clone: region.Root()}},
		next:   root.FirstChild,
	}
}

// Start schedules the traversal on loop. onPage receives each page in
// order; onComplete runs exactly once, with nil when the whole tree was
// paginated or ctx.Err() when ctx ended first. The region is released
// before onComplete runs. Start may only be called once.
func (t *Traversal) Start(ctx context.Context, loop *sched.Loop, onPage func(*Page), onComplete func(error)) {
	if t.started {
		return
	}
	t.started = true
	t.ctx = ctx
	t.loop = loop
	t.onPage = onPage
	t.onComplete = onComplete
	loop.Post(t.step)
}

// Pages returns the number of pages emitted so far.
func (t *Traversal) Pages() int { return t.pages }

func (t *Traversal) step() {
	if t.done {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("traversal step panicked", "panic", r, "pages", t.pages)
			t.finish(fmt.Errorf("%w: %v", ErrAborted, r))
		}
	}()

	if err := t.ctx.Err(); err != nil {
		t.log.Debug("traversal abandoned", "pages", t.pages, "error", err)
		t.finish(err)
		return
	}

	flushed := t.advance()
	if t.done {
		return
	}
	delay := t.opts.StepDelay
	if flushed {
		delay = t.opts.PageDelay
	}
	t.loop.After(delay, t.step)
}

// advance processes one open event, one text run page or the end of the
// tree. It reports whether a page was emitted.
func (t *Traversal) advance() bool {
	if t.text != nil {
		return t.fitText()
	}
	for t.next == nil {
		if len(t.stack) == 1 {
			t.flush()
			t.finish(nil)
			return true
		}
		closed := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.next = closed.src.NextSibling
	}

	n := t.next
	switch n.Type {
	case html.ElementNode:
		return t.open(n)
	case html.TextNode:
		t.next = n.NextSibling
		if !t.startText(n) {
			return false
		}
		return t.fitText()
	default:
		t.next = n.NextSibling
		return false
	}
}

func (t *Traversal) top() *html.Node {
	return t.stack[len(t.stack)-1].clone
}

func (t *Traversal) open(n *html.Node) bool {
	clone := shallowClone(n)
	if isAtomic(n) {
		t.next = n.NextSibling
		return t.placeAtomic(clone)
	}
	t.top().AppendChild(clone)
	t.stack = append(t.stack, openElement{src: n, clone: clone})
	t.next = n.FirstChild
	return false
}

// placeAtomic inserts an element that cannot be split across pages.
func (t *Traversal) placeAtomic(clone *html.Node) bool {
	image := content.IsImage(clone)
	if image {
		t.sizeImage(clone)
	}
	parent := t.top()
	parent.AppendChild(clone)
	if !t.region.Overflow() {
		t.dirty = true
		return false
	}
	if image && t.shrinkImages() {
		t.dirty = true
		return false
	}
	if !t.dirty {
		// Nothing else is on this page; moving on would not help.
		t.dirty = true
		return false
	}

	parent.RemoveChild(clone)
	t.flush()
	t.reset()
	t.top().AppendChild(clone)
	t.dirty = true
	return true
}

// sizeImage sets width and height on an image clone, scaled down to fit
// the container width and the page height.
func (t *Traversal) sizeImage(img *html.Node) {
	var iw, ih int
	sized := false
	if t.opts.ImageSize != nil {
		iw, ih, sized = t.opts.ImageSize(img)
	}
	w, okW := dimension(img, "width")
	h, okH := dimension(img, "height")
	if !okW || !okH {
		if !sized || iw <= 0 || ih <= 0 {
			return
		}
		w, h = float64(iw), float64(ih)
	}

	cw := t.region.ContentWidth(t.top())
	_, ch := t.region.Capacity()
	if scale := math.Min(cw/w, ch/h); scale < 1 {
		w, h = w*scale, h*scale
	}
	setDimension(img, "width", w)
	setDimension(img, "height", h)
}

// shrinkImages scales every sized image on the page down in steps until
// the page fits. On failure the original sizes are restored.
func (t *Traversal) shrinkImages() bool {
	type sized struct {
		n    *html.Node
		w, h float64
	}
	var imgs []sized
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if content.IsImage(n) {
			w, okW := dimension(n, "width")
			h, okH := dimension(n, "height")
			if okW && okH {
				imgs = append(imgs, sized{n, w, h})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(t.region.Root())
	if len(imgs) == 0 {
		return false
	}

	scale := 1.0
	for i := 0; i < imageShrinkSteps; i++ {
		scale *= imageShrinkFactor
		for _, img := range imgs {
			setDimension(img.n, "width", img.w*scale)
			setDimension(img.n, "height", img.h*scale)
		}
		if !t.region.Overflow() {
			return true
		}
	}
	for _, img := range imgs {
		setDimension(img.n, "width", img.w)
		setDimension(img.n, "height", img.h)
	}
	return false
}

func (t *Traversal) startText(n *html.Node) bool {
	data := n.Data
	if t.opts.Hyphenate != nil && !t.inPre() {
		data = t.opts.Hyphenate(data)
	}
	tokens := tokenize(data)
	if len(tokens) == 0 {
		return false
	}
	clone := &html.Node{Type: html.TextNode}
	t.top().AppendChild(clone)
	t.text = &textRun{tokens: tokens, clone: clone}
	return true
}

func (t *Traversal) inPre() bool {
	for _, o := range t.stack {
		if o.src.DataAtom == atom.Pre {
			return true
		}
	}
	return false
}

// fitText puts as much of the current text run on the page as fits. When
// the rest does not fit, the page is emitted and the run stays pending for
// the next step.
func (t *Traversal) fitText() bool {
	run := t.text
	rest := run.tokens[run.pos:]
	run.clone.Data = strings.Join(rest, "")
	if !t.region.Overflow() {
		t.markText(run.clone.Data)
		t.text = nil
		return false
	}

	k := t.fitPrefix(run.clone, rest)
	if k == 0 {
		if t.dirty {
			run.clone.Parent.RemoveChild(run.clone)
			t.flush()
			t.reset()
			run.clone.Data = ""
			t.top().AppendChild(run.clone)
			return true
		}
		// A fresh page that cannot hold a single token takes one anyway.
		k = 1
	}

	run.clone.Data = strings.Join(rest[:k], "")
	t.markText(run.clone.Data)
	run.pos += k
	if run.pos == len(run.tokens) {
		t.text = nil
		return false
	}
	t.flush()
	t.reset()
	run.clone = &html.Node{Type: html.TextNode}
	t.top().AppendChild(run.clone)
	return true
}

// fitPrefix returns the largest k < len(tokens) such that the first k
// tokens fit. It leaves n.Data unspecified.
func (t *Traversal) fitPrefix(n *html.Node, tokens []string) int {
	lo, hi := 0, len(tokens)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		n.Data = strings.Join(tokens[:mid], "")
		if t.region.Overflow() {
			hi = mid - 1
		} else {
			lo = mid
		}
	}
	return lo
}

func (t *Traversal) markText(s string) {
	if strings.TrimFunc(s, unicode.IsSpace) != "" {
		t.dirty = true
	}
}

// flush emits a snapshot of the region as the next page.
func (t *Traversal) flush() {
	t.dropEmptyShells()
	root := deepClone(t.region.Root())
	p := &Page{index: t.pages, root: root}
	t.pages++
	t.onPage(p)
}

// dropEmptyShells removes the clones of open elements that have nothing on
// this page yet; reset reopens them on the next one. Closed elements stay,
// empty or not.
func (t *Traversal) dropEmptyShells() {
	for i := len(t.stack) - 1; i > 0; i-- {
		clone := t.stack[i].clone
		if clone.FirstChild != nil || clone.Parent == nil {
			return
		}
		clone.Parent.RemoveChild(clone)
	}
}

// reset empties the region and reopens the current ancestor chain in it.
func (t *Traversal) reset() {
	frame := t.region.Root()
	for c := frame.FirstChild; c != nil; {
		next := c.NextSibling
		frame.RemoveChild(c)
		c = next
	}
	parent := frame
	for i := 1; i < len(t.stack); i++ {
		clone := shallowClone(t.stack[i].src)
		if clone.DataAtom == atom.Ol {
			t.continueNumbering(clone, i)
		}
		parent.AppendChild(clone)
		t.stack[i].clone = clone
		parent = clone
	}
	t.dirty = false
}

// continueNumbering sets start on a reopened <ol> so item numbers carry on
// from the previous page.
func (t *Traversal) continueNumbering(ol *html.Node, depth int) {
	src := t.stack[depth].src
	var current *html.Node
	if depth+1 < len(t.stack) {
		current = t.stack[depth+1].src
	} else {
		current = t.next
	}
	start := 1
	if v, err := strconv.Atoi(getAttr(src, "start")); err == nil {
		start = v
	}
	for c := src.FirstChild; c != nil && c != current; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			start++
		}
	}
	setAttr(ol, "start", strconv.Itoa(start))
}

func (t *Traversal) finish(err error) {
	if t.done {
		return
	}
	t.done = true
	t.region.Release()
	t.onComplete(err)
}

// tokenize splits s into fitting units: a token ends after a whitespace
// run or a soft hyphen that is followed by more text. Leading whitespace
// stays with the first token, so the tokens concatenate back to s.
func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	var tokens []string
	start := 0
	hasText, prevBreak := false, false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if !space && prevBreak && hasText {
			tokens = append(tokens, s[start:i])
			start = i
			hasText = false
		}
		if !space {
			hasText = true
		}
		prevBreak = space || r == softHyphen
	}
	return append(tokens, s[start:])
}

func isAtomic(n *html.Node) bool {
	if content.IsImage(n) {
		return true
	}
	switch n.DataAtom {
	case atom.Br, atom.Hr:
		return true
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func dimension(n *html.Node, key string) (float64, bool) {
	s := strings.TrimSuffix(strings.TrimSpace(getAttr(n, key)), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func setDimension(n *html.Node, key string, v float64) {
	if v < 1 {
		v = 1
	}
	setAttr(n, key, strconv.Itoa(int(v)))
}
