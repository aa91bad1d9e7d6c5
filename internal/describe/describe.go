// Package describe identifies page elements: accessible names, structural
// CSS and positional XPath selectors, filtered attributes and visibility.
package describe

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/kalambet/steptrace/internal/dom"
	"github.com/kalambet/steptrace/internal/model"
	"github.com/kalambet/steptrace/internal/redact"
)

const (
	maxCSSDepth   = 7
	maxXPathDepth = 8
	maxAttrLen    = 200
	maxTextName   = 120
	maxValueName  = 80
	maxNearbyText = 200
	nearbyLevels  = 3
)

// attrAllowlist lists the attributes copied into descriptors. value is
// deliberately absent.
var attrAllowlist = []string{
	"id", "name", "type", "role", "aria-label", "aria-labelledby", "placeholder",
	"title", "alt", "href", "data-testid", "for", "autocomplete",
}

// Describe returns the scanner descriptor for n, or nil if n is not an element.
// p decides whether a field value may stand in for its label.
func Describe(d *dom.Document, n *html.Node, p *redact.Policy) *model.ElementDescriptor {
	if !dom.IsElement(n) {
		return nil
	}
	r := d.Rect(n)
	css, unique := CSSSelector(d, n)
	return &model.ElementDescriptor{
		Tag:        dom.Tag(n),
		Type:       typeOf(n),
		Role:       role(n),
		Label:      Name(d, n, p),
		Disabled:   Disabled(n),
		BBox:       bbox(r),
		Selectors:  model.Selectors{CSS: css, XPath: XPath(n), Unique: unique},
		Attrs:      Attrs(n),
		InViewport: r.Intersects(d.Viewport.Width, d.Viewport.Height),
	}
}

// Ref returns the detailed reference used for the target of an action, or nil
// if n is not an element.
func Ref(d *dom.Document, n *html.Node, p *redact.Policy) *model.ElementRef {
	if !dom.IsElement(n) {
		return nil
	}
	css, unique := CSSSelector(d, n)
	return &model.ElementRef{
		DOM: model.RefDOM{
			Tag:        dom.Tag(n),
			Attrs:      Attrs(n),
			Selectors:  model.Selectors{CSS: css, XPath: XPath(n), Unique: unique},
			NearbyText: NearbyText(n),
			Name:       Name(d, n, p),
			Role:       role(n),
		},
		Layout: model.RefLayout{
			BBox: bbox(d.Rect(n)),
			Viewport: model.Viewport{
				Width:   d.Viewport.Width,
				Height:  d.Viewport.Height,
				ScrollX: d.Viewport.ScrollX,
				ScrollY: d.Viewport.ScrollY,
			},
		},
		Context: model.RefContext{FrameURL: d.FrameURL, IsTopFrame: d.IsTopFrame},
	}
}

// Visible reports whether n is rendered: not display:none, not
// visibility:hidden, not fully transparent, with a non-empty box. Elements
// scrolled out of the viewport still count as visible.
func Visible(d *dom.Document, n *html.Node) bool {
	st := d.Style(n)
	if st.Display == "none" || st.Visibility == "hidden" || strings.TrimSpace(st.Opacity) == "0" {
		return false
	}
	r := d.Rect(n)
	return r.Width > 0 && r.Height > 0
}

// Disabled reports native or ARIA disabled state.
func Disabled(n *html.Node) bool {
	if _, ok := dom.Attr(n, "disabled"); ok {
		return true
	}
	v, _ := dom.Attr(n, "aria-disabled")
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// Attrs copies the allowlisted attributes of n whose values are at most 200
// characters long.
func Attrs(n *html.Node) map[string]string {
	out := make(map[string]string)
	for _, k := range attrAllowlist {
		v, ok := dom.Attr(n, k)
		if !ok || utf8.RuneCountInString(v) > maxAttrLen {
			continue
		}
		out[k] = v
	}
	return out
}

// NearbyText returns the text of the closest ancestor, at most three levels
// up, whose text differs from the element's own.
func NearbyText(n *html.Node) string {
	own := dom.CollapseSpace(dom.TextContent(n))
	p := dom.ParentElement(n)
	for i := 0; i < nearbyLevels && p != nil; i++ {
		if t := dom.CollapseSpace(dom.TextContent(p)); t != "" && t != own {
			return truncate(t, maxNearbyText)
		}
		p = dom.ParentElement(p)
	}
	return ""
}

func typeOf(n *html.Node) string {
	v, _ := dom.Attr(n, "type")
	return strings.ToLower(strings.TrimSpace(v))
}

func role(n *html.Node) string {
	v, _ := dom.Attr(n, "role")
	return strings.TrimSpace(v)
}

func bbox(r dom.Rect) model.BBox {
	return model.BBox{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
