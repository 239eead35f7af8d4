package epub

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// entityRef matches a named character reference.
var entityRef = regexp.MustCompile(`&([A-Za-z][A-Za-z0-9]*);`)

// xmlEntities are understood by encoding/xml and left alone.
var xmlEntities = map[string]bool{"amp": true, "lt": true, "gt": true, "quot": true, "apos": true}

// numericEntities rewrites HTML named entities as numeric character
// references so encoding/xml can parse OPF and NCX files that use them.
// Names are looked up in the HTML5 table, falling back to lowercase for
// books that write &NBSP; and the like. Unknown names are kept.
func numericEntities(data []byte) []byte {
	return entityRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(ref[1 : len(ref)-1])
		if xmlEntities[name] {
			return ref
		}
		s, ok := unescape(string(ref))
		if !ok {
			if s, ok = unescape("&" + strings.ToLower(name) + ";"); !ok {
				return ref
			}
		}
		out := make([]byte, 0, 8*len(s))
		for _, r := range s {
			out = append(out, "&#"...)
			out = strconv.AppendInt(out, int64(r), 10)
			out = append(out, ';')
		}
		return out
	})
}

// unescape resolves a single reference. html.UnescapeString also accepts
// legacy prefixes such as the &not in &notes;, so anything that leaves more
// than the one or two code points of a real entity is rejected.
func unescape(ref string) (string, bool) {
	s := html.UnescapeString(ref)
	if s == ref || utf8.RuneCountInString(s) > 2 {
		return "", false
	}
	return s, true
}
