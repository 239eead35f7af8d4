package layout

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Surface is a fixed-size page area that hands out scratch regions to
// measure content against. A Surface and its regions belong to one
// goroutine.
type Surface struct {
	m      Metrics
	width  float64
	height float64
	opts   Options
	active int
}

// NewSurface returns a surface of width by height units.
func NewSurface(m Metrics, width, height float64, opts Options) *Surface {
	return &Surface{m: m, width: width, height: height, opts: opts}
}

// Metrics returns the surface's text metrics.
func (s *Surface) Metrics() Metrics { return s.m }

// Size returns the page area in units.
func (s *Surface) Size() (width, height float64) { return s.width, s.height }

// Options returns the flow options the surface lays content out with.
func (s *Surface) Options() Options { return s.opts }

// Active returns the number of acquired regions not yet released.
func (s *Surface) Active() int { return s.active }

// Acquire returns a fresh region with an empty frame. The caller must call
// Release when done with it.
func (s *Surface) Acquire() *Region {
	s.active++
	return &Region{
		s:    s,
		root: &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"},
	}
}

// Region is a scratch render target: content appended under Root is laid
// out against the surface's capacity on every Overflow call.
type Region struct {
	s        *Surface
	root     *html.Node
	released bool
}

// Root returns the frame element content is appended to.
func (r *Region) Root() *html.Node { return r.root }

// Overflow reports whether the content under Root is taller than the
// surface. A released region never overflows.
func (r *Region) Overflow() bool {
	if r.released {
		return false
	}
	lines := Lines(r.root, r.s.m, r.s.width, r.s.opts)
	return Height(lines) > r.s.height
}

// ContentWidth returns the width in pixels available to children of n,
// which must be attached under Root.
func (r *Region) ContentWidth(n *html.Node) float64 {
	px, _ := r.s.m.PixelSize()
	w := r.s.width - indentAt(n, r.root, r.s.opts)
	if w < 0 {
		w = 0
	}
	return w * px
}

// Capacity returns the page area in pixels.
func (r *Region) Capacity() (width, height float64) {
	px, py := r.s.m.PixelSize()
	return r.s.width * px, r.s.height * py
}

// Release returns the region to the surface. Release is idempotent.
func (r *Region) Release() {
	if r.released {
		return
	}
	r.released = true
	r.s.active--
}
