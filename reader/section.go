package reader

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/simp-lee/republish/content"
	"github.com/simp-lee/republish/paginate"
)

// LoadState is the pagination state of a Section.
type LoadState int

const (
	NotLoaded LoadState = iota
	Loading
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case NotLoaded:
		return "not-loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Section is one chapter's page cache and cursor. It paginates its chapter
// at most once; requests made while pagination runs are queued and served
// in order as pages arrive.
//
// A Section belongs to its Handler's loop and must only be used from it.
type Section struct {
	h       *Handler
	index   int
	chapter Chapter
	title   string
	style   string

	state     LoadState
	pages     []*paginate.Page
	pageCount int
	currPage  int
	runs      int

	waiters    []func(*paginate.Page)
	onFirst    []func()
	onComplete []func(pageCount int)
}

func newSection(h *Handler, index int, ch Chapter) *Section {
	return &Section{h: h, index: index, chapter: ch, title: ch.Title}
}

// Index returns the section's position in the book.
func (s *Section) Index() int { return s.index }

// Name returns the chapter name.
func (s *Section) Name() string { return s.chapter.Name }

// Title returns the chapter title: the table-of-contents entry, else the
// document's own title once loaded, else the name.
func (s *Section) Title() string {
	if s.title != "" {
		return s.title
	}
	return s.chapter.Name
}

// Style returns the chapter's stylesheet text. It is empty until loading
// starts.
func (s *Section) Style() string { return s.style }

// State returns the load state.
func (s *Section) State() LoadState { return s.state }

// CurrPage returns the cursor: the index of the page the next NextPage
// returns.
func (s *Section) CurrPage() int { return s.currPage }

// PageCount returns the padded page count and true once loaded.
func (s *Section) PageCount() (int, bool) {
	if s.state != Loaded {
		return 0, false
	}
	return s.pageCount, true
}

// Load starts pagination if it has not started yet. onFirstPage runs once
// the section has at least one page; onComplete runs when pagination is
// finished. Either may be nil. Callbacks registered while loading run in
// registration order.
func (s *Section) Load(onFirstPage func(), onComplete func(pageCount int)) {
	switch s.state {
	case Loaded:
		if onFirstPage != nil {
			onFirstPage()
		}
		if onComplete != nil {
			onComplete(s.pageCount)
		}
		return
	case Loading:
		if onFirstPage != nil {
			if len(s.pages) > 0 {
				onFirstPage()
			} else {
				s.onFirst = append(s.onFirst, onFirstPage)
			}
		}
		if onComplete != nil {
			s.onComplete = append(s.onComplete, onComplete)
		}
		return
	}

	s.state = Loading
	if onFirstPage != nil {
		s.onFirst = append(s.onFirst, onFirstPage)
	}
	if onComplete != nil {
		s.onComplete = append(s.onComplete, onComplete)
	}
	s.start()
}

func (s *Section) start() {
	log := s.h.log.With("section", s.chapter.Name)
	started := s.h.loop.Now()
	log.Debug("section load started")

	doc := s.document(log)
	s.style = doc.Style
	if s.title == "" {
		s.title = doc.Title
	}

	s.runs++
	opts := s.h.traversalOptions(s, log)
	tr := paginate.New(doc.Body, s.h.surface.Acquire(), opts)
	tr.Start(s.h.ctx, s.h.loop, s.appendPage, func(err error) {
		s.complete(err, tr.Pages(), log, s.h.loop.Now().Sub(started))
	})
}

// document reads the chapter, substituting an empty one on failure.
func (s *Section) document(log *slog.Logger) *content.Document {
	if s.chapter.Load == nil {
		return content.Empty(s.chapter.Name)
	}
	doc, err := s.chapter.Load()
	if err != nil {
		log.Warn("chapter unreadable", "error", err)
		return content.Empty(s.chapter.Name)
	}
	for _, w := range doc.Warnings {
		log.Warn("chapter warning", "warning", w)
	}
	return doc
}

func (s *Section) appendPage(p *paginate.Page) {
	s.pages = append(s.pages, p)
	if len(s.pages) == 1 {
		s.runFirst()
	}
	s.serve()
}

// complete pads the emitted pages and answers everyone waiting on the load.
func (s *Section) complete(err error, emitted int, log *slog.Logger, elapsed time.Duration) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Info("section load abandoned", "pages", emitted, "error", err)
	default:
		log.Error("section load failed", "pages", emitted, "error", err)
	}

	n := s.h.SlotCount()
	for len(s.pages) == 0 || len(s.pages)%n != 0 {
		s.pages = append(s.pages, paginate.BlankPage(len(s.pages)))
	}
	s.pageCount = len(s.pages)
	s.state = Loaded
	log.Info("section loaded", "pages", s.pageCount, "blank", s.pageCount-emitted, "duration", elapsed)

	s.serve()
	for len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		w(nil)
	}
	s.runFirst()
	callbacks := s.onComplete
	s.onComplete = nil
	for _, cb := range callbacks {
		cb(s.pageCount)
	}
	s.h.sectionLoaded(s)
}

func (s *Section) runFirst() {
	callbacks := s.onFirst
	s.onFirst = nil
	for _, cb := range callbacks {
		cb()
	}
}

// serve hands out pages to queued NextPage callers while pages exist.
func (s *Section) serve() {
	for len(s.waiters) > 0 && s.currPage < len(s.pages) {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		p := s.pages[s.currPage]
		s.currPage++
		w(p)
	}
}

// NextPage passes the page at the cursor to cb and advances the cursor,
// loading the section first if needed. At the end of a loaded section cb
// receives nil and the cursor stays put.
func (s *Section) NextPage(cb func(*paginate.Page)) {
	if len(s.waiters) == 0 && s.currPage < len(s.pages) {
		p := s.pages[s.currPage]
		s.currPage++
		cb(p)
		return
	}
	if s.state == Loaded {
		cb(nil)
		return
	}
	s.waiters = append(s.waiters, cb)
	if s.state == NotLoaded {
		s.Load(nil, nil)
	}
}

// PrevPage moves the cursor back one page and returns the page there, or
// nil when the cursor is already at the beginning.
func (s *Section) PrevPage() *paginate.Page {
	if s.currPage == 0 {
		return nil
	}
	s.currPage--
	return s.pages[s.currPage]
}

// SeekBeginning moves the cursor to the first page.
func (s *Section) SeekBeginning() { s.currPage = 0 }

// SeekEnd loads the section, moves the cursor past the last page and
// reports the page count.
func (s *Section) SeekEnd(cb func(pageCount int)) {
	s.Load(nil, func(pageCount int) {
		s.currPage = pageCount
		cb(pageCount)
	})
}

// Rewind moves the cursor back n pages, stopping at the first page.
func (s *Section) Rewind(n int) {
	s.currPage = max(0, s.currPage-n)
}

// IsFirstPage reports whether the cursor is at the first page.
func (s *Section) IsFirstPage() bool { return s.currPage == 0 }

// IsLastPage reports whether the cursor is past the last page. It is false
// while the page count is unknown.
func (s *Section) IsLastPage() bool {
	return s.state == Loaded && s.currPage >= s.pageCount
}
