package paginate

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is one screenful of content. Its tree is owned by the Page and is
// never modified after the page is emitted; callers must not modify it
// either.
type Page struct {
	index int
	root  *html.Node
	blank bool
}

func newFrame() *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
}

// BlankPage returns an empty padding page at index.
func BlankPage(index int) *Page {
	return &Page{index: index, root: newFrame(), blank: true}
}

// Index returns the page's position within its section.
func (p *Page) Index() int { return p.index }

// Blank reports whether p is a padding page.
func (p *Page) Blank() bool { return p.blank }

// Root returns the frame element holding the page content.
func (p *Page) Root() *html.Node { return p.root }

// HTML renders the page content, without the frame element.
func (p *Page) HTML() string {
	var sb strings.Builder
	for c := p.root.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}

// Text returns the concatenated text of the page, soft hyphens included.
func (p *Page) Text() string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(p.root)
	return sb.String()
}

// shallowClone copies n without its children or tree links.
func shallowClone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]html.Attribute(nil), n.Attr...)
	}
	return c
}

func deepClone(n *html.Node) *html.Node {
	c := shallowClone(n)
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(deepClone(ch))
	}
	return c
}
