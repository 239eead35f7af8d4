package epub

import (
	"sort"
	"strconv"
	"strings"
)

// extractMetadata converts the raw OPF metadata into Metadata. ePub 3
// <meta refines> entries supply file-as, role, identifier-type and
// display-seq where the ePub 2 attributes are absent.
func extractMetadata(opf *opfPackage) Metadata {
	om := &opf.Metadata
	refines := buildRefinesMap(om.Metas)

	md := Metadata{
		Version:     opf.Version,
		Titles:      extractTitles(om.Titles, refines),
		Authors:     extractAuthors(om.Creators, refines),
		Publisher:   firstNonEmpty(om.Publishers),
		Date:        firstNonEmpty(om.Dates),
		Description: firstNonEmpty(om.Descriptions),
	}
	for _, l := range om.Languages {
		if v := strings.TrimSpace(l.Value); v != "" {
			md.Language = append(md.Language, v)
		}
	}
	for _, id := range om.Identifiers {
		v := strings.TrimSpace(id.Value)
		if v == "" {
			continue
		}
		ident := Identifier{Value: v, Scheme: id.Scheme, ID: id.ID}
		if ident.Scheme == "" && id.ID != "" {
			ident.Scheme, _ = findRefine(refines, id.ID, "identifier-type")
		}
		md.Identifiers = append(md.Identifiers, ident)
	}
	return md
}

func firstNonEmpty(elems []opfDCElement) string {
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// buildRefinesMap maps element ID (without "#") to the metas refining it.
func buildRefinesMap(metas []opfMeta) map[string][]opfMeta {
	m := make(map[string][]opfMeta)
	for _, meta := range metas {
		if id, ok := strings.CutPrefix(meta.Refines, "#"); ok && id != "" {
			m[id] = append(m[id], meta)
		}
	}
	return m
}

func findRefine(refines map[string][]opfMeta, id, property string) (string, bool) {
	for _, m := range refines[id] {
		if m.Property != property {
			continue
		}
		if v := strings.TrimSpace(m.Value); v != "" {
			return v, true
		}
	}
	return "", false
}

// extractTitles returns non-empty titles, ordered by display-seq when any
// title carries one. Titles without a sequence sort last, in document order.
func extractTitles(titles []opfDCElement, refines map[string][]opfMeta) []string {
	type entry struct {
		value string
		seq   int
	}
	var entries []entry
	for _, t := range titles {
		v := strings.TrimSpace(t.Value)
		if v == "" {
			continue
		}
		e := entry{value: v}
		if s, ok := findRefine(refines, t.ID, "display-seq"); ok && t.ID != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				e.seq = n
			}
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i].seq, entries[j].seq
		switch {
		case si == 0:
			return false
		case sj == 0:
			return true
		default:
			return si < sj
		}
	})

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

func extractAuthors(creators []opfDCElement, refines map[string][]opfMeta) []Author {
	var authors []Author
	for _, c := range creators {
		name := strings.TrimSpace(c.Value)
		if name == "" {
			continue
		}
		a := Author{Name: name, FileAs: c.FileAs, Role: c.Role}
		if c.ID != "" {
			if a.FileAs == "" {
				a.FileAs, _ = findRefine(refines, c.ID, "file-as")
			}
			if a.Role == "" {
				a.Role, _ = findRefine(refines, c.ID, "role")
			}
		}
		authors = append(authors, a)
	}
	return authors
}
