// Package hyphen inserts soft hyphens (U+00AD) at the break points found by
// Liang's pattern algorithm, the method TeX uses, with bundled English
// patterns.
package hyphen

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
	"github.com/speedata/hyphenation"
	"golang.org/x/text/language"
)

// SoftHyphen marks a break opportunity that is invisible unless the line
// actually breaks there.
const SoftHyphen = '\u00ad'

//go:embed patterns_en.txt
var patternsEN string

//go:embed exceptions_en.txt
var exceptionsEN string

// Hyphenator finds break points in words. Pattern matching is done by
// speedata/hyphenation; exception words and the margins are applied here.
// A Hyphenator is immutable after construction and safe for concurrent use.
type Hyphenator struct {
	lang       *hyphenation.Lang
	exceptions map[string][]int

	// LeftMin and RightMin are the fewest letters kept before the first and
	// after the last break.
	LeftMin  int
	RightMin int
}

// New returns the hyphenator for a BCP 47 language tag. Only English is
// bundled; other languages return ErrUnsupportedLanguage.
func New(lang string) (*Hyphenator, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("hyphen: parse language %q: %w", lang, err)
	}
	base, _ := tag.Base()
	switch base.String() {
	case "en":
		return NewPatterns(strings.Fields(patternsEN), strings.Fields(exceptionsEN))
	}
	return nil, fmt.Errorf("hyphen: %s: %w", base, ErrUnsupportedLanguage)
}

// NewPatterns builds a hyphenator from Liang patterns such as "hy3ph" or
// ".un1" and exception words written with explicit hyphens ("ta-ble").
func NewPatterns(patterns, exceptions []string) (*Hyphenator, error) {
	lang, err := hyphenation.New(strings.NewReader(strings.Join(patterns, "\n")))
	if err != nil {
		return nil, fmt.Errorf("hyphen: load patterns: %w", err)
	}
	h := &Hyphenator{
		lang:       lang,
		exceptions: make(map[string][]int, len(exceptions)),
		LeftMin:    2,
		RightMin:   3,
	}
	for _, e := range exceptions {
		var points []int
		n := 0
		for _, r := range e {
			if r == '-' {
				points = append(points, n)
				continue
			}
			n++
		}
		h.exceptions[string(lower(strings.ReplaceAll(e, "-", "")))] = points
	}
	return h, nil
}

// lower maps every rune to lower case on its own, so the result has as
// many runes as s. strings.ToLower may not (U+0130 becomes two runes).
func lower(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

// Points returns the rune offsets inside word where a break is allowed. An
// offset k means a break between rune k-1 and rune k.
func (h *Hyphenator) Points(word string) []int {
	runes := lower(word)
	n := len(runes)
	if n < h.LeftMin+h.RightMin {
		return nil
	}
	if points, ok := h.exceptions[string(runes)]; ok {
		return points
	}

	var points []int
	for _, k := range h.lang.Hyphenate(string(runes)) {
		if k >= h.LeftMin && k <= n-h.RightMin {
			points = append(points, k)
		}
	}
	return points
}

// Hyphenate returns word with a soft hyphen at every break point.
func (h *Hyphenator) Hyphenate(word string) string {
	points := h.Points(word)
	if len(points) == 0 {
		return word
	}
	var sb strings.Builder
	sb.Grow(len(word) + 2*len(points))
	i, next := 0, 0
	for _, r := range word {
		if next < len(points) && points[next] == i {
			sb.WriteRune(SoftHyphen)
			next++
		}
		sb.WriteRune(r)
		i++
	}
	return sb.String()
}

// Text hyphenates every alphabetic word in s and leaves everything else,
// whitespace and punctuation included, untouched.
func (h *Hyphenator) Text(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	state := -1
	for len(s) > 0 {
		var word string
		word, s, state = uniseg.FirstWordInString(s, state)
		if isAlphabetic(word) {
			sb.WriteString(h.Hyphenate(word))
		} else {
			sb.WriteString(word)
		}
	}
	return sb.String()
}

func isAlphabetic(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
