// Package tui is the terminal front end: it shows a reader.Handler's
// slots side by side and turns key presses into navigation.
package tui

import (
	"context"
	"io"
	"log/slog"

	"github.com/gdamore/tcell/v2"

	"github.com/simp-lee/republish/layout"
	"github.com/simp-lee/republish/reader"
	"github.com/simp-lee/republish/sched"
)

// Action is a navigation command bound to a key.
type Action int

const (
	ActionNone Action = iota
	ActionNext
	ActionPrev
	ActionNextChapter
	ActionPrevChapter
	ActionQuit
)

// KeyAction maps a key press to an action.
func KeyAction(ev *tcell.EventKey) Action {
	switch ev.Key() {
	case tcell.KeyRight, tcell.KeyDown, tcell.KeyPgDn, tcell.KeyEnter:
		return ActionNext
	case tcell.KeyLeft, tcell.KeyUp, tcell.KeyPgUp, tcell.KeyBackspace, tcell.KeyBackspace2:
		return ActionPrev
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return ActionQuit
	case tcell.KeyRune:
		switch ev.Rune() {
		case ' ', 'l', 'j':
			return ActionNext
		case 'h', 'k':
			return ActionPrev
		case ']':
			return ActionNextChapter
		case '[':
			return ActionPrevChapter
		case 'q':
			return ActionQuit
		}
	}
	return ActionNone
}

// Reader runs a book on a terminal screen. Fields below the screen are
// owned by the loop.
type Reader struct {
	screen tcell.Screen
	loop   *sched.Loop
	book   *reader.Book
	opts   reader.Options
	log    *slog.Logger
	frames chan Frame

	h       *reader.Handler
	cancel  context.CancelFunc
	surface *layout.Surface
	width   int
	height  int
	busy    bool
}

// New returns a reader for book. opts.Slots sets the number of pages shown
// side by side; opts.OnEvent is replaced.
func New(screen tcell.Screen, loop *sched.Loop, book *reader.Book, opts reader.Options) *Reader {
	if opts.Slots < 1 {
		opts.Slots = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{
		screen: screen,
		loop:   loop,
		book:   book,
		opts:   opts,
		log:    log,
		frames: make(chan Frame, 1),
	}
}

// Run draws frames and handles input until the user quits or ctx ends.
// The loop must be running.
func (r *Reader) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	events := make(chan tcell.Event)
	go func() {
		for {
			ev := r.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	w, h := r.screen.Size()
	r.loop.Post(func() { r.open(ctx, w, h) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-r.frames:
			Draw(r.screen, f)
			r.screen.Show()
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				r.screen.Sync()
				w, h := r.screen.Size()
				r.loop.Post(func() { r.open(ctx, w, h) })
			case *tcell.EventKey:
				action := KeyAction(ev)
				if action == ActionQuit {
					return nil
				}
				if action != ActionNone {
					r.loop.Post(func() { r.do(action) })
				}
			}
		}
	}
}

// open paginates the book for a screen of w by h cells, staying in the
// current chapter when the size changes.
func (r *Reader) open(ctx context.Context, w, h int) {
	if r.h != nil && w == r.width && h == r.height {
		return
	}
	r.width, r.height = w, h

	slotWidth, height := Geometry(w, h, r.opts.Slots)
	r.surface = layout.NewSurface(layout.CellMetrics{}, float64(slotWidth), float64(height), layout.DefaultOptions)

	chapter := ""
	if r.h != nil {
		if secs := r.h.Sections(); len(secs) > 0 {
			chapter = secs[r.h.Current()].Name()
		}
	}

	// The previous handler stops paginating once its context is cancelled.
	if r.cancel != nil {
		r.cancel()
	}
	hctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	var hd *reader.Handler
	opts := r.opts
	opts.OnEvent = func(e reader.Event) {
		if r.h == hd {
			r.onEvent(e)
		}
	}
	hd = reader.NewHandler(hctx, r.book, r.surface, r.loop, opts)
	r.h = hd
	r.busy = false
	r.log.Info("layout", "width", slotWidth, "height", height, "slots", r.opts.Slots)

	if chapter != "" {
		if err := hd.GoToSection(chapter); err != nil {
			r.log.Warn("reopen chapter", "chapter", chapter, "error", err)
		}
	} else {
		hd.Display()
	}
	r.publish()
}

func (r *Reader) do(a Action) {
	switch a {
	case ActionNext:
		r.h.NextPage()
	case ActionPrev:
		r.h.PrevPage()
	case ActionNextChapter, ActionPrevChapter:
		delta := 1
		if a == ActionPrevChapter {
			delta = -1
		}
		secs := r.h.Sections()
		i := r.h.Current() + delta
		if i < 0 || i >= len(secs) {
			return
		}
		if err := r.h.GoToSection(secs[i].Name()); err != nil {
			r.log.Debug("chapter change refused", "error", err)
		}
	}
}

func (r *Reader) onEvent(e reader.Event) {
	switch e.Kind {
	case reader.EventBusy:
		r.busy = true
	case reader.EventIdle:
		r.busy = false
	}
	r.publish()
}

// publish hands the current state to the UI goroutine, replacing a frame
// it has not drawn yet.
func (r *Reader) publish() {
	f := r.snapshot()
	select {
	case <-r.frames:
	default:
	}
	r.frames <- f
}

func (r *Reader) snapshot() Frame {
	width, _ := r.surface.Size()
	f := Frame{
		Title:     r.book.Title,
		Chapter:   r.h.Chapter(),
		Busy:      r.busy,
		SlotWidth: int(width),
	}
	f.Page, f.PageKnown = r.h.PageNumber()
	f.Total, f.TotalKnown = r.h.TotalPages()
	for _, p := range r.h.Slots() {
		var lines []layout.Line
		if p != nil && !p.Blank() {
			lines = layout.Lines(p.Root(), r.surface.Metrics(), width, r.surface.Options())
		}
		f.Slots = append(f.Slots, lines)
	}
	return f
}
