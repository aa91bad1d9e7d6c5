package dom

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// ParseOptions configure ParseHTML.
type ParseOptions struct {
	URL         string
	FrameURL    string
	NotTopFrame bool
	Viewport    Viewport
}

// DefaultViewport is used when ParseOptions.Viewport is zero.
var DefaultViewport = Viewport{Width: 1280, Height: 800}

// ParseHTML builds a Document from static markup. Geometry comes from inline
// absolute positioning: left, top, width and height in px, given in page
// coordinates. display, visibility and opacity are read from inline styles
// too; display:none zeroes the box of the element and its subtree, and
// visibility inherits. Declarative shadow roots
// (<template shadowrootmode="open">) are attached to their host.
func ParseHTML(r io.Reader, opts ParseOptions) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	d := newDocument(root)
	d.URL = opts.URL
	d.FrameURL = opts.FrameURL
	if d.FrameURL == "" {
		d.FrameURL = opts.URL
	}
	d.IsTopFrame = !opts.NotTopFrame
	d.Viewport = opts.Viewport
	if d.Viewport.Width == 0 && d.Viewport.Height == 0 {
		d.Viewport.Width, d.Viewport.Height = DefaultViewport.Width, DefaultViewport.Height
	}

	d.attachShadowRoots()

	l := &staticLayout{doc: d}
	l.layout(root, false, "visible")
	d.Extent = Extent{
		DocScrollWidth:  max(l.right, d.Viewport.Width),
		DocScrollHeight: max(l.bottom, d.Viewport.Height),
		DocClientWidth:  d.Viewport.Width,
		DocClientHeight: d.Viewport.Height,
	}

	walk(root, func(n *html.Node) bool {
		if Tag(n) == "title" {
			d.Title = CollapseSpace(TextContent(n))
			return false
		}
		return true
	})
	return d, nil
}

func (d *Document) attachShadowRoots() {
	var templates []*html.Node
	walk(d.Root, func(n *html.Node) bool {
		if Tag(n) == "template" {
			if _, ok := Attr(n, "shadowrootmode"); ok && n.Parent != nil && IsElement(n.Parent) {
				templates = append(templates, n)
			}
		}
		return true
	})
	for _, t := range templates {
		host := t.Parent
		host.RemoveChild(t)
		frag := &html.Node{Type: html.DocumentNode}
		for c := t.FirstChild; c != nil; {
			next := c.NextSibling
			t.RemoveChild(c)
			frag.AppendChild(c)
			c = next
		}
		d.shadow[host] = frag
	}
}

type staticLayout struct {
	doc    *Document
	nextID int
	right  float64
	bottom float64
}

func (l *staticLayout) layout(n *html.Node, hidden bool, visibility string) {
	if IsElement(n) {
		l.nextID++
		l.doc.register(n, l.nextID)

		decl := parseStyleAttr(n)
		st := Style{Display: decl["display"], Visibility: visibility, Opacity: "1"}
		if _, ok := Attr(n, "hidden"); ok && st.Display == "" {
			st.Display = "none"
		}
		if Tag(n) == "input" {
			if t, _ := Attr(n, "type"); strings.EqualFold(t, "hidden") {
				st.Display = "none"
			}
		}
		if v, ok := decl["visibility"]; ok {
			st.Visibility = v
		}
		if v, ok := decl["opacity"]; ok {
			st.Opacity = v
		}
		visibility = st.Visibility
		if st.Display == "none" {
			hidden = true
		}

		info := l.doc.infoFor(n)
		info.style = st
		if !hidden {
			left, top := px(decl["left"]), px(decl["top"])
			w, h := px(decl["width"]), px(decl["height"])
			info.rect = Rect{
				X:      left - l.doc.Viewport.ScrollX,
				Y:      top - l.doc.Viewport.ScrollY,
				Width:  w,
				Height: h,
			}
			l.right = max(l.right, left+w)
			l.bottom = max(l.bottom, top+h)
		}

		if sr, ok := l.doc.shadow[n]; ok {
			l.layout(sr, hidden, visibility)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		l.layout(c, hidden, visibility)
	}
}

func parseStyleAttr(n *html.Node) map[string]string {
	out := make(map[string]string)
	raw, ok := Attr(n, "style")
	if !ok {
		return out
	}
	for _, decl := range strings.Split(raw, ";") {
		k, v, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important"))
		if k != "" {
			out[k] = strings.ToLower(v)
		}
	}
	return out
}

func px(v string) float64 {
	v = strings.TrimSpace(strings.TrimSuffix(v, "px"))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
