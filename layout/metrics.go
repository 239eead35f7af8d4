package layout

import (
	"fmt"
	"strings"

	"github.com/fogleman/gg"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

const softHyphen = "\u00ad"

// Metrics measures text for the flow model. Widths and heights are in
// layout units; PixelSize converts CSS pixels (image dimensions) to units.
type Metrics interface {
	// Width returns the advance of s on one line. Soft hyphens are zero-width.
	Width(s string) float64
	LineHeight() float64
	// PixelSize returns how many CSS pixels one unit spans horizontally and
	// vertically.
	PixelSize() (x, y float64)
}

// CellMetrics measures text in terminal cells: one line is one row and
// East Asian wide characters take two columns.
type CellMetrics struct {
	// CellWidth and CellHeight are the pixel size of a cell, used to map
	// image dimensions onto the grid. Zero means 8x16.
	CellWidth  float64
	CellHeight float64
}

func (m CellMetrics) Width(s string) float64 {
	w := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cluster := g.Str()
		if cluster == softHyphen {
			continue
		}
		if cw := runewidth.StringWidth(cluster); cw > 0 {
			w += cw
		}
	}
	return float64(w)
}

func (m CellMetrics) LineHeight() float64 { return 1 }

func (m CellMetrics) PixelSize() (float64, float64) {
	x, y := m.CellWidth, m.CellHeight
	if x <= 0 {
		x = 8
	}
	if y <= 0 {
		y = 16
	}
	return x, y
}

// FontMetrics measures text in pixels with a font face loaded through gg.
// A FontMetrics is not safe for concurrent use.
type FontMetrics struct {
	dc         *gg.Context
	lineHeight float64
}

// NewFontMetrics loads the TrueType font at path at the given point size.
// An empty path selects gg's built-in 7x13 bitmap face. spacing multiplies
// the font height to give the line height; zero means 1.2.
func NewFontMetrics(path string, points, spacing float64) (*FontMetrics, error) {
	dc := gg.NewContext(1, 1)
	if path != "" {
		if err := dc.LoadFontFace(path, points); err != nil {
			return nil, fmt.Errorf("layout: load font %s: %w", path, err)
		}
	}
	if spacing <= 0 {
		spacing = 1.2
	}
	return &FontMetrics{dc: dc, lineHeight: dc.FontHeight() * spacing}, nil
}

func (m *FontMetrics) Width(s string) float64 {
	w, _ := m.dc.MeasureString(strings.ReplaceAll(s, softHyphen, ""))
	return w
}

func (m *FontMetrics) LineHeight() float64 { return m.lineHeight }

func (m *FontMetrics) PixelSize() (float64, float64) { return 1, 1 }
