// Package reader pages through a whole book: it keeps one Section per
// chapter, fills a set of display slots from them and tracks absolute page
// numbers across chapter boundaries.
//
// Everything in this package runs on a single sched.Loop. Handler methods
// must be called from a task on that loop, or before the loop starts.
package reader

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"time"

	"golang.org/x/net/html"

	"github.com/simp-lee/republish/content"
	"github.com/simp-lee/republish/hyphen"
	"github.com/simp-lee/republish/layout"
	"github.com/simp-lee/republish/paginate"
	"github.com/simp-lee/republish/sched"
)

// Defaults for Options fields left zero.
const (
	DefaultSlots           = 1
	DefaultPrefetch        = 2
	DefaultPrefetchStagger = 50 * time.Millisecond
	DefaultLoadPacing      = 100 * time.Millisecond
	DefaultBusyDelay       = 50 * time.Millisecond
)

// Options configures a Handler.
type Options struct {
	// Slots is the number of pages shown side by side.
	Slots int

	// Prefetch is how many sections ahead of the current one are loaded
	// in the background after each page turn. Negative disables prefetch.
	Prefetch int

	// PrefetchStagger separates successive prefetch loads.
	PrefetchStagger time.Duration

	// LoadPacing is the pause between section loads during Display.
	LoadPacing time.Duration

	// BusyDelay is how long a page turn may wait before EventBusy fires.
	BusyDelay time.Duration

	// StepDelay and PageDelay are passed to each traversal.
	StepDelay time.Duration
	PageDelay time.Duration

	// Hyphenator inserts soft hyphens into chapter text. Nil disables
	// hyphenation.
	Hyphenator *hyphen.Hyphenator

	// InlineImages rewrites image references to data: URIs so pages render
	// without access to the book.
	InlineImages bool

	// OnEvent receives state changes. It runs on the loop.
	OnEvent func(Event)

	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Slots < 1 {
		o.Slots = DefaultSlots
	}
	if o.Prefetch == 0 {
		o.Prefetch = DefaultPrefetch
	}
	if o.PrefetchStagger <= 0 {
		o.PrefetchStagger = DefaultPrefetchStagger
	}
	if o.LoadPacing <= 0 {
		o.LoadPacing = DefaultLoadPacing
	}
	if o.BusyDelay <= 0 {
		o.BusyDelay = DefaultBusyDelay
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// TurnState tells whether a page turn is in flight.
type TurnState int

const (
	Idle TurnState = iota
	Turning
)

func (s TurnState) String() string {
	if s == Turning {
		return "turning"
	}
	return "idle"
}

// Handler navigates a book page by page, N slots at a time.
type Handler struct {
	ctx     context.Context
	book    *Book
	surface *layout.Surface
	loop    *sched.Loop
	opts    Options
	log     *slog.Logger

	sections    []*Section
	curr        int
	slots       []*paginate.Page
	spreadStart int
	state       TurnState
	busy        bool
	busyTimer   *sched.Timer
	displaying  bool

	// offsets[i] is the absolute index of section i's first page.
	offsets []int
}

// NewHandler returns a handler over book that lays pages out on surface.
// Traversals stop when ctx is cancelled; sections then keep the pages
// produced so far.
func NewHandler(ctx context.Context, book *Book, surface *layout.Surface, loop *sched.Loop, opts Options) *Handler {
	opts.setDefaults()
	h := &Handler{
		ctx:     ctx,
		book:    book,
		surface: surface,
		loop:    loop,
		opts:    opts,
		log:     opts.Logger,
		slots:   make([]*paginate.Page, opts.Slots),
	}
	for i, ch := range book.Chapters {
		h.sections = append(h.sections, newSection(h, i, ch))
	}
	return h
}

// Book returns the book being read.
func (h *Handler) Book() *Book { return h.book }

// SlotCount returns the number of display slots.
func (h *Handler) SlotCount() int { return len(h.slots) }

// Slots returns the pages currently shown, one per slot. A nil entry is a
// slot past the end of its section.
func (h *Handler) Slots() []*paginate.Page {
	return append([]*paginate.Page(nil), h.slots...)
}

// Sections returns the book's sections in reading order.
func (h *Handler) Sections() []*Section {
	return append([]*Section(nil), h.sections...)
}

// Current returns the index of the current section.
func (h *Handler) Current() int { return h.curr }

// Chapter returns the current section's title.
func (h *Handler) Chapter() string {
	if len(h.sections) == 0 {
		return ""
	}
	return h.sections[h.curr].Title()
}

// State returns whether a page turn is in flight.
func (h *Handler) State() TurnState { return h.state }

// Display starts the initial load: sections are paginated one after the
// other, LoadPacing apart, and the first spread is filled as soon as the
// first section has a page.
func (h *Handler) Display() {
	if h.displaying || len(h.sections) == 0 {
		return
	}
	h.displaying = true

	var loadFrom func(i int)
	loadFrom = func(i int) {
		if i >= len(h.sections) {
			h.log.Debug("initial load finished")
			return
		}
		if h.ctx.Err() != nil {
			h.log.Debug("initial load stopped", "section", i, "error", h.ctx.Err())
			return
		}
		var onFirst func()
		if i == 0 {
			onFirst = h.NextPage
		}
		h.sections[i].Load(onFirst, func(int) {
			h.loop.After(h.opts.LoadPacing, func() { loadFrom(i + 1) })
		})
	}
	loadFrom(0)
}

// NextPage fills the slots with the following spread, moving into the
// next section when the current one is exhausted. It does nothing at the
// end of the book or while a turn is in flight.
func (h *Handler) NextPage() {
	if h.state == Turning {
		h.log.Debug("page turn dropped", "direction", "next")
		return
	}
	if len(h.sections) == 0 {
		return
	}
	if h.sections[h.curr].IsLastPage() {
		if h.curr+1 >= len(h.sections) {
			return
		}
		h.curr++
		h.sections[h.curr].SeekBeginning()
	}
	h.fill()
}

// PrevPage fills the slots with the preceding spread, moving to the last
// spread of the previous section from the first spread of a section. It
// does nothing at the beginning of the book or while a turn is in flight.
func (h *Handler) PrevPage() {
	if h.state == Turning {
		h.log.Debug("page turn dropped", "direction", "prev")
		return
	}
	if len(h.sections) == 0 {
		return
	}
	s := h.sections[h.curr]
	if h.spreadStart > 0 {
		target := max(0, h.spreadStart-len(h.slots))
		s.Rewind(s.CurrPage() - target)
		h.fill()
		return
	}
	if h.curr == 0 {
		return
	}

	prev := h.sections[h.curr-1]
	h.beginTurn()
	prev.SeekEnd(func(pageCount int) {
		h.curr = prev.Index()
		n := len(h.slots)
		last := 0
		if pageCount > 0 {
			last = (pageCount - 1) / n * n
		}
		prev.Rewind(pageCount - last)
		h.fill()
	})
}

// GoToSection shows the first spread of the named section.
func (h *Handler) GoToSection(name string) error {
	idx := -1
	for i, s := range h.sections {
		if s.Name() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrUnknownSection
	}
	if h.state == Turning {
		return ErrBusy
	}
	h.curr = idx
	h.sections[idx].SeekBeginning()
	h.fill()
	return nil
}

// SetSlots changes the number of display slots and refills the current
// spread from its first page. Sections already loaded keep their padding.
func (h *Handler) SetSlots(n int) error {
	if n < 1 {
		return ErrInvalidSlots
	}
	if h.state == Turning {
		return ErrBusy
	}
	shown := h.slots[0] != nil
	h.slots = make([]*paginate.Page, n)
	h.offsets = nil
	if shown && len(h.sections) > 0 {
		s := h.sections[h.curr]
		s.Rewind(s.CurrPage() - h.spreadStart)
		h.fill()
	}
	return nil
}

// beginTurn enters the Turning state and arms the busy indicator.
func (h *Handler) beginTurn() {
	if h.state == Turning {
		return
	}
	h.state = Turning
	h.busyTimer = h.loop.After(h.opts.BusyDelay, func() {
		if h.state == Turning && !h.busy {
			h.busy = true
			h.emit(Event{Kind: EventBusy})
		}
	})
}

// fill requests one page per slot from the current section's cursor.
func (h *Handler) fill() {
	h.beginTurn()
	s := h.sections[h.curr]
	h.spreadStart = s.CurrPage()

	next := make([]*paginate.Page, len(h.slots))
	remaining := len(next)
	for i := range next {
		i := i
		s.NextPage(func(p *paginate.Page) {
			next[i] = p
			remaining--
			if remaining == 0 {
				h.endTurn(next)
			}
		})
	}
}

func (h *Handler) endTurn(next []*paginate.Page) {
	h.busyTimer.Stop()
	h.busyTimer = nil
	h.slots = next
	h.state = Idle
	h.emit(Event{Kind: EventSlots})
	if h.busy {
		h.busy = false
		h.emit(Event{Kind: EventIdle})
	}
	h.prefetch()
}

// prefetch schedules background loads of the next few sections.
func (h *Handler) prefetch() {
	if h.ctx.Err() != nil {
		return
	}
	for k := 1; k <= h.opts.Prefetch; k++ {
		i := h.curr + k
		if i >= len(h.sections) {
			return
		}
		s := h.sections[i]
		if s.State() != NotLoaded {
			continue
		}
		delay := time.Duration(k) * h.opts.PrefetchStagger
		h.log.Debug("prefetch scheduled", "section", s.Name(), "delay", delay)
		h.loop.After(delay, func() {
			if h.ctx.Err() == nil {
				s.Load(nil, nil)
			}
		})
	}
}

func (h *Handler) sectionLoaded(s *Section) {
	h.emit(Event{Kind: EventSectionLoaded, Section: s.Index(), Pages: s.pageCount})
}

func (h *Handler) emit(e Event) {
	if h.opts.OnEvent != nil {
		h.opts.OnEvent(e)
	}
}

// traversalOptions returns the per-section traversal configuration.
func (h *Handler) traversalOptions(s *Section, log *slog.Logger) paginate.Options {
	opts := paginate.Options{
		StepDelay: h.opts.StepDelay,
		PageDelay: h.opts.PageDelay,
		Logger:    log,
	}
	if h.opts.Hyphenator != nil {
		opts.Hyphenate = h.opts.Hyphenator.Text
	}
	if h.book.Files != nil {
		opts.ImageSize = func(n *html.Node) (int, int, bool) {
			return h.imageSize(s, n, log)
		}
	}
	return opts
}

// imageSize reads the image an element refers to and measures its size.
// With InlineImages the reference is replaced by the image data.
func (h *Handler) imageSize(s *Section, n *html.Node, log *slog.Logger) (int, int, bool) {
	src := content.ImageSource(n, s.Name())
	if src == "" {
		return 0, 0, false
	}
	data, err := h.book.Files.ReadFile(src)
	if err != nil {
		log.Debug("image unreadable", "src", src, "error", err)
		return 0, 0, false
	}
	if h.opts.InlineImages {
		setImageRef(n, content.DataURI(mediaType(src, data), data))
	}
	w, ht, err := layout.IntrinsicSize(data)
	if err != nil {
		log.Debug("image size unknown", "src", src, "error", err)
		return 0, 0, false
	}
	return w, ht, true
}

func mediaType(name string, data []byte) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func setImageRef(n *html.Node, ref string) {
	for i, a := range n.Attr {
		switch a.Key {
		case "src", "href", "xlink:href":
			n.Attr[i].Val = ref
			return
		}
	}
}
