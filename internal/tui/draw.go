package tui

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"

	"github.com/simp-lee/republish/layout"
)

// Gap is the number of blank columns between slots.
const Gap = 3

// Frame is everything needed to draw one screen. It is built on the
// reader's loop and drawn on the UI goroutine.
type Frame struct {
	Title      string
	Chapter    string
	Page       int
	PageKnown  bool
	Total      int
	TotalKnown bool
	Busy       bool
	SlotWidth  int
	// Slots holds the laid-out lines of each slot; nil for an empty slot.
	Slots [][]layout.Line
}

// Geometry returns the slot width and page height for a screen of w by h
// cells. One row each is kept for the header and the status line.
func Geometry(w, h, slots int) (slotWidth, height int) {
	slotWidth = (w - Gap*(slots-1)) / slots
	height = h - 2
	return max(slotWidth, 1), max(height, 1)
}

var (
	headerStyle = tcell.StyleDefault.Bold(true)
	footerStyle = tcell.StyleDefault.Foreground(tcell.ColorGray)
	imageStyle  = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

// Draw renders f onto screen. The caller calls Show.
func Draw(screen tcell.Screen, f Frame) {
	screen.Clear()
	w, h := screen.Size()

	header := f.Title
	if f.Chapter != "" && f.Chapter != f.Title {
		if header != "" {
			header += " | "
		}
		header += f.Chapter
	}
	drawText(screen, 0, 0, w, header, headerStyle)

	for i, lines := range f.Slots {
		x0 := i * (f.SlotWidth + Gap)
		drawLines(screen, x0, 1, min(f.SlotWidth, w-x0), h-2, lines)
	}

	drawText(screen, 0, h-1, w, status(f), footerStyle)
}

func status(f Frame) string {
	var s string
	switch {
	case f.PageKnown && f.TotalKnown:
		s = fmt.Sprintf("page %d of %d", f.Page, f.Total)
	case f.PageKnown:
		s = fmt.Sprintf("page %d", f.Page)
	}
	if f.Busy {
		if s != "" {
			s += "  "
		}
		s += "loading..."
	}
	return s
}

func drawLines(screen tcell.Screen, x0, y0, width, height int, lines []layout.Line) {
	y := y0
	for _, line := range lines {
		if y >= y0+height {
			return
		}
		rows := max(1, int(math.Ceil(line.Height)))
		switch {
		case line.Gap:
			y += int(math.Ceil(line.Height))
			continue
		case line.Rule:
			for x := x0 + int(line.Indent); x < x0+width; x++ {
				screen.SetContent(x, y, '─', nil, footerStyle)
			}
			y += rows
			continue
		}

		x := x0 + int(line.Indent)
		for _, sp := range line.Spans {
			if sp.Image != nil {
				drawBox(screen, x, y, min(int(sp.Width), x0+width-x), min(int(sp.Height), y0+height-y), sp.Text)
				x += int(sp.Width)
				continue
			}
			x = drawText(screen, x, y, x0+width-x, sp.Text, spanStyle(sp.Style))
		}
		y += rows
	}
}

// drawBox fills an image placeholder and labels it with the alt text.
func drawBox(screen tcell.Screen, x, y, w, h int, label string) {
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			screen.SetContent(x+dx, y+dy, '░', nil, imageStyle)
		}
	}
	if label != "" && w > 2 && h > 0 {
		drawText(screen, x+1, y, w-2, label, imageStyle)
	}
}

// drawText writes text grapheme by grapheme, stopping before maxWidth
// columns are exceeded. It returns the column after the last cell written.
func drawText(screen tcell.Screen, x, y, maxWidth int, text string, style tcell.Style) int {
	limit := x + maxWidth
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		cw := runewidth.StringWidth(g.Str())
		if cw == 0 {
			continue
		}
		if x+cw > limit {
			break
		}
		runes := g.Runes()
		screen.SetContent(x, y, runes[0], runes[1:], style)
		x += cw
	}
	return x
}

func spanStyle(s layout.Style) tcell.Style {
	st := tcell.StyleDefault
	if s&layout.Bold != 0 {
		st = st.Bold(true)
	}
	if s&layout.Italic != 0 {
		st = st.Italic(true)
	}
	if s&(layout.Underline|layout.Link) != 0 {
		st = st.Underline(true)
	}
	if s&layout.Heading != 0 {
		st = st.Foreground(tcell.ColorYellow)
	}
	if s&layout.Preformatted != 0 {
		st = st.Foreground(tcell.ColorTeal)
	}
	return st
}
