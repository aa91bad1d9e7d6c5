package describe

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/kalambet/steptrace/internal/dom"
	"github.com/kalambet/steptrace/internal/redact"
)

var textInputTypes = map[string]bool{
	"": true, "text": true, "search": true, "email": true, "url": true,
	"tel": true, "number": true, "password": true,
}

// Name resolves the accessible name of n. The first non-empty source wins:
// aria-label, aria-labelledby, an associated label, alt, title, then for
// text inputs the placeholder and a short current value, then the rendered
// text and finally the tag name. A field value is used only when p allows it
// to be recorded.
func Name(d *dom.Document, n *html.Node, p *redact.Policy) string {
	return truncate(name(d, n, p), maxTextName)
}

func name(d *dom.Document, n *html.Node, p *redact.Policy) string {
	if v := attrText(n, "aria-label"); v != "" {
		return v
	}
	if ids := attrText(n, "aria-labelledby"); ids != "" {
		root := dom.RootOf(n)
		var parts []string
		for _, id := range strings.Fields(ids) {
			if el := elementByID(root, id); el != nil {
				if t := dom.CollapseSpace(dom.TextContent(el)); t != "" {
					parts = append(parts, t)
				}
			}
		}
		if s := strings.Join(parts, " "); s != "" {
			return s
		}
	}
	if v := labelText(n); v != "" {
		return v
	}
	if v := attrText(n, "alt"); v != "" {
		return v
	}
	if v := attrText(n, "title"); v != "" {
		return v
	}
	if isTextInput(n) {
		if v := attrText(n, "placeholder"); v != "" {
			return v
		}
		if v := strings.TrimSpace(d.Value(n)); v != "" && utf8.RuneCountInString(v) <= maxValueName && p.Exposable(n, v) {
			return v
		}
		// A textarea's text is its default value.
		return dom.Tag(n)
	}
	if t := dom.CollapseSpace(dom.TextContent(n)); t != "" {
		return truncate(t, maxTextName)
	}
	return dom.Tag(n)
}

func isTextInput(n *html.Node) bool {
	switch dom.Tag(n) {
	case "textarea":
		return true
	case "input":
		return textInputTypes[typeOf(n)]
	}
	return false
}

// labelText returns the text of a <label for=id> in the same tree, or of a
// wrapping label.
func labelText(n *html.Node) string {
	switch dom.Tag(n) {
	case "input", "select", "textarea", "button", "meter", "output", "progress":
	default:
		return ""
	}
	if id, _ := dom.Attr(n, "id"); id != "" {
		var text string
		dom.Walk(dom.RootOf(n), func(c *html.Node) bool {
			if dom.Tag(c) != "label" {
				return true
			}
			if f, _ := dom.Attr(c, "for"); f == id {
				if t := dom.CollapseSpace(dom.TextContent(c)); t != "" {
					text = t
					return false
				}
			}
			return true
		})
		if text != "" {
			return text
		}
	}
	for p := dom.ParentElement(n); p != nil; p = dom.ParentElement(p) {
		if dom.Tag(p) == "label" {
			return dom.CollapseSpace(dom.TextContent(p))
		}
	}
	return ""
}

func attrText(n *html.Node, key string) string {
	v, _ := dom.Attr(n, key)
	return dom.CollapseSpace(v)
}

func elementByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	dom.Walk(root, func(c *html.Node) bool {
		if v, ok := dom.Attr(c, "id"); ok && v == id && dom.IsElement(c) {
			found = c
			return false
		}
		return true
	})
	return found
}
