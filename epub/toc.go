package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parseTOC reads the nav document (ePub 3) or the NCX (ePub 2, and the
// ePub 3 fallback) and stores the result in b.toc. Failures are recorded as
// warnings and leave an empty TOC.
func (b *Book) parseTOC() {
	spineMap := make(map[string]int, len(b.spine))
	for i, si := range b.spine {
		spineMap[b.resolveOPFPath(si.Href)] = i
	}

	if strings.HasPrefix(b.opf.Version, "3") {
		if toc, ok := b.parseNavTOC(); ok {
			assignSpineIndices(toc, spineMap)
			b.toc = toc
			return
		}
	}
	if toc, ok := b.parseNCXTOC(); ok {
		assignSpineIndices(toc, spineMap)
		b.toc = toc
		return
	}
	b.toc = []TOCItem{}
}

func (b *Book) parseNavTOC() ([]TOCItem, bool) {
	// Walk the OPF slice, not the map, so the first nav item wins.
	var navItem *manifestItem
	for _, raw := range b.opf.Manifest.Items {
		if slices.Contains(strings.Fields(raw.Properties), "nav") {
			navItem = b.manifestByID[raw.ID]
			break
		}
	}
	if navItem == nil {
		return nil, false
	}

	navPath := b.resolveOPFPath(navItem.Href)
	data, err := b.ReadFile(navPath)
	if err != nil {
		b.warnings = append(b.warnings, fmt.Sprintf("failed to read nav document: %v", err))
		return nil, false
	}
	toc, err := parseNavDocument(data, navPath)
	if err != nil {
		b.warnings = append(b.warnings, fmt.Sprintf("failed to parse nav document: %v", err))
		return nil, false
	}
	return toc, toc != nil
}

func (b *Book) parseNCXTOC() ([]TOCItem, bool) {
	ncxItem, ok := b.manifestByID[b.opf.Spine.Toc]
	if !ok {
		return nil, false
	}
	ncxPath := b.resolveOPFPath(ncxItem.Href)
	data, err := b.ReadFile(ncxPath)
	if err != nil {
		b.warnings = append(b.warnings, fmt.Sprintf("failed to read NCX file: %v", err))
		return nil, false
	}
	toc, err := parseNCX(data, ncxPath)
	if err != nil {
		b.warnings = append(b.warnings, fmt.Sprintf("failed to parse NCX file: %v", err))
		return nil, false
	}
	return toc, true
}

// assignSpineIndices sets SpineIndex on each item by matching its Href
// (without fragment) against the spine.
func assignSpineIndices(items []TOCItem, spineMap map[string]int) {
	for i := range items {
		if idx, ok := spineMap[hrefWithoutFragment(items[i].Href)]; ok && items[i].Href != "" {
			items[i].SpineIndex = idx
		}
		assignSpineIndices(items[i].Children, spineMap)
	}
}

func hrefWithoutFragment(href string) string {
	if idx := strings.IndexByte(href, '#'); idx >= 0 {
		return href[:idx]
	}
	return href
}

func flattenTOCItems(flat *[]*TOCItem, items []TOCItem) {
	for i := range items {
		*flat = append(*flat, &items[i])
		flattenTOCItems(flat, items[i].Children)
	}
}

type ncxDocument struct {
	XMLName xml.Name      `xml:"ncx"`
	Points  []ncxNavPoint `xml:"navMap>navPoint"`
}

type ncxNavPoint struct {
	ID        string        `xml:"id,attr"`
	PlayOrder string        `xml:"playOrder,attr"`
	Label     string        `xml:"navLabel>text"`
	Content   ncxContent    `xml:"content"`
	Children  []ncxNavPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// parseNCX parses an NCX document. Siblings are ordered by playOrder when
// every sibling carries a numeric one; otherwise document order is kept.
func parseNCX(data []byte, ncxPath string) ([]TOCItem, error) {
	data = stripBOM(numericEntities(data))

	var doc ncxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("epub: parse NCX: %w", err)
	}
	return convertNavPoints(doc.Points, ncxPath), nil
}

func convertNavPoints(points []ncxNavPoint, ncxPath string) []TOCItem {
	if len(points) == 0 {
		return nil
	}
	sortByPlayOrder(points)

	items := make([]TOCItem, 0, len(points))
	for _, np := range points {
		items = append(items, TOCItem{
			Title:      strings.TrimSpace(np.Label),
			Href:       resolveRelativePath(ncxPath, strings.TrimSpace(np.Content.Src)),
			SpineIndex: -1,
			Children:   convertNavPoints(np.Children, ncxPath),
		})
	}
	return items
}

func sortByPlayOrder(points []ncxNavPoint) {
	orders := make([]int, len(points))
	for i, np := range points {
		n, err := strconv.Atoi(strings.TrimSpace(np.PlayOrder))
		if err != nil {
			return
		}
		orders[i] = n
	}
	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return orders[idx[a]] < orders[idx[b]] })
	sorted := make([]ncxNavPoint, len(points))
	for i, j := range idx {
		sorted[i] = points[j]
	}
	copy(points, sorted)
}

// parseNavDocument parses an ePub 3 nav document and returns the
// epub:type="toc" list. basePath resolves relative hrefs.
func parseNavDocument(data []byte, basePath string) ([]TOCItem, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("epub: parse nav document: %w", err)
	}
	nav := findNav(doc, "toc")
	if nav == nil {
		return nil, nil
	}
	ol := findFirstElement(nav, atom.Ol)
	if ol == nil {
		return nil, nil
	}
	return parseNavOL(ol, basePath), nil
}

func findNav(n *html.Node, epubType string) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Nav && slices.Contains(strings.Fields(attr(n, "epub:type")), epubType) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNav(c, epubType); found != nil {
			return found
		}
	}
	return nil
}

func parseNavOL(ol *html.Node, basePath string) []TOCItem {
	var items []TOCItem
	for c := ol.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			items = append(items, parseNavLI(c, basePath))
		}
	}
	return items
}

// parseNavLI reads the <a> (or a <span> heading) and any nested <ol>.
func parseNavLI(li *html.Node, basePath string) TOCItem {
	item := TOCItem{SpineIndex: -1}
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.A:
			if item.Href == "" {
				item.Href = resolveRelativePath(basePath, attr(c, "href"))
				item.Title = strings.TrimSpace(textContent(c))
			}
		case atom.Span:
			if item.Title == "" {
				item.Title = strings.TrimSpace(textContent(c))
			}
		case atom.Ol:
			item.Children = parseNavOL(c, basePath)
		}
	}
	return item
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirstElement(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
		if found := findFirstElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
