// Package dom is an in-memory document snapshot: an x/net/html tree plus the
// layout, computed visibility styles and live form values captured from the
// page. Selector queries run over the snapshot, so everything built on top of
// it can be exercised without a browser.
package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Rect is a bounding box in viewport coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Intersects reports whether r overlaps the viewport of size w×h.
func (r Rect) Intersects(w, h float64) bool {
	return r.X < w && r.Y < h && r.X+r.Width > 0 && r.Y+r.Height > 0
}

// Style holds the computed style properties visibility depends on.
type Style struct {
	Display    string `json:"display"`
	Visibility string `json:"visibility"`
	Opacity    string `json:"opacity"`
}

// Viewport is the window size and scroll offset.
type Viewport struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ScrollX float64 `json:"scroll_x"`
	ScrollY float64 `json:"scroll_y"`
}

// Extent holds the scroll and client dimensions of the document element and
// the body, used to derive the full page size.
type Extent struct {
	DocScrollWidth   float64 `json:"doc_scroll_width"`
	DocScrollHeight  float64 `json:"doc_scroll_height"`
	DocClientWidth   float64 `json:"doc_client_width"`
	DocClientHeight  float64 `json:"doc_client_height"`
	BodyScrollWidth  float64 `json:"body_scroll_width"`
	BodyScrollHeight float64 `json:"body_scroll_height"`
	BodyClientWidth  float64 `json:"body_client_width"`
	BodyClientHeight float64 `json:"body_client_height"`
}

// PageSize returns the full page width and height.
func (e Extent) PageSize() (float64, float64) {
	w := max(e.DocScrollWidth, e.BodyScrollWidth, e.DocClientWidth, e.BodyClientWidth)
	h := max(e.DocScrollHeight, e.BodyScrollHeight, e.DocClientHeight, e.BodyClientHeight)
	return w, h
}

type nodeInfo struct {
	id    int
	rect  Rect
	style Style
	value *string
}

// Document is one captured page state.
type Document struct {
	Root       *html.Node
	URL        string
	Title      string
	FrameURL   string
	IsTopFrame bool
	Viewport   Viewport
	Extent     Extent

	info   map[*html.Node]*nodeInfo
	byID   map[int]*html.Node
	shadow map[*html.Node]*html.Node
}

func newDocument(root *html.Node) *Document {
	return &Document{
		Root:       root,
		IsTopFrame: true,
		info:       make(map[*html.Node]*nodeInfo),
		byID:       make(map[int]*html.Node),
		shadow:     make(map[*html.Node]*html.Node),
	}
}

func (d *Document) infoFor(n *html.Node) *nodeInfo {
	in, ok := d.info[n]
	if !ok {
		in = &nodeInfo{}
		d.info[n] = in
	}
	return in
}

func (d *Document) register(n *html.Node, id int) {
	d.infoFor(n).id = id
	d.byID[id] = n
}

// Rect returns the bounding box of n. Nodes without layout have a zero box.
func (d *Document) Rect(n *html.Node) Rect {
	if in, ok := d.info[n]; ok {
		return in.rect
	}
	return Rect{}
}

// Style returns the computed visibility styles of n.
func (d *Document) Style(n *html.Node) Style {
	if in, ok := d.info[n]; ok {
		return in.style
	}
	return Style{}
}

// NodeID returns the snapshot id of n, or 0.
func (d *Document) NodeID(n *html.Node) int {
	if in, ok := d.info[n]; ok {
		return in.id
	}
	return 0
}

// NodeByID returns the node registered under id.
func (d *Document) NodeByID(id int) (*html.Node, bool) {
	n, ok := d.byID[id]
	return n, ok
}

// ShadowRoot returns the open shadow root attached to host, if any.
func (d *Document) ShadowRoot(host *html.Node) (*html.Node, bool) {
	r, ok := d.shadow[host]
	return r, ok
}

// Value returns the live value of a form control: the captured value when the
// snapshot carried one, otherwise the markup default.
func (d *Document) Value(n *html.Node) string {
	if in, ok := d.info[n]; ok && in.value != nil {
		return *in.value
	}
	switch Tag(n) {
	case "textarea":
		return TextContent(n)
	case "select":
		if opt := SelectedOption(n); opt != nil {
			if v, ok := Attr(opt, "value"); ok {
				return v
			}
			return CollapseSpace(TextContent(opt))
		}
		return ""
	}
	v, _ := Attr(n, "value")
	return v
}

// SetValue records the live value of a form control.
func (d *Document) SetValue(n *html.Node, v string) {
	d.infoFor(n).value = &v
}

// Query returns the elements under the document root matching a CSS selector,
// in document order. An invalid selector matches nothing.
func (d *Document) Query(sel string) []*html.Node {
	return d.QueryIn(d.Root, sel)
}

// QueryIn runs a CSS selector under scope, which is the document root or a
// shadow root.
func (d *Document) QueryIn(scope *html.Node, sel string) []*html.Node {
	if scope == nil {
		return nil
	}
	return goquery.NewDocumentFromNode(scope).Find(sel).Nodes
}

// XPath evaluates an XPath expression against the document root.
func (d *Document) XPath(expr string) ([]*html.Node, error) {
	return htmlquery.QueryAll(d.Root, expr)
}

// GetElementByID returns the first element in the document with the given id.
func (d *Document) GetElementByID(id string) *html.Node {
	var found *html.Node
	walk(d.Root, func(n *html.Node) bool {
		if v, ok := Attr(n, "id"); ok && v == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Body returns the body element.
func (d *Document) Body() *html.Node {
	var body *html.Node
	walk(d.Root, func(n *html.Node) bool {
		if Tag(n) == "body" {
			body = n
			return false
		}
		return true
	})
	return body
}

// RootOf returns the topmost ancestor of n: the document root or a shadow root.
func RootOf(n *html.Node) *html.Node {
	for n != nil && n.Parent != nil {
		n = n.Parent
	}
	return n
}

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Tag returns the lowercase tag name of an element, or "".
func Tag(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	return strings.ToLower(n.Data)
}

// Attr returns the value of attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// ParentElement returns the nearest element ancestor of n.
func ParentElement(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if IsElement(p) {
			return p
		}
	}
	return nil
}

// SameTagSiblings returns the element children of n's parent that share n's
// tag, including n itself, in document order.
func SameTagSiblings(n *html.Node) []*html.Node {
	if n.Parent == nil {
		return []*html.Node{n}
	}
	var out []*html.Node
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if IsElement(c) && c.Data == n.Data {
			out = append(out, c)
		}
	}
	return out
}

// TextContent concatenates the text under n, skipping script and style.
// Nested textareas are skipped; their text is a field value.
func TextContent(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
			return
		case html.ElementNode:
			switch c.Data {
			case "script", "style", "template":
				return
			case "textarea":
				if c != n {
					return
				}
			}
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			rec(ch)
		}
	}
	if n != nil {
		rec(n)
	}
	return sb.String()
}

// CollapseSpace trims s and collapses whitespace runs to single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SelectedOption returns the selected option of a select element, falling
// back to the first option.
func SelectedOption(sel *html.Node) *html.Node {
	var first, selected *html.Node
	walk(sel, func(n *html.Node) bool {
		if Tag(n) != "option" {
			return true
		}
		if first == nil {
			first = n
		}
		if _, ok := Attr(n, "selected"); ok && selected == nil {
			selected = n
		}
		return true
	})
	if selected != nil {
		return selected
	}
	return first
}

// Walk visits n and its descendants in document order until fn returns false.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	walk(n, fn)
}

func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}
