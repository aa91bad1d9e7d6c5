package describe

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/kalambet/steptrace/internal/dom"
)

// CSSSelector builds a structural selector for n and reports whether it
// matches exactly one element in n's tree. An id short-circuits to #id.
// Otherwise segments are prepended one ancestor at a time, up to seven
// levels, returning at the first unique prefix; when none is unique the
// seven-level path is returned with unique=false.
func CSSSelector(d *dom.Document, n *html.Node) (string, bool) {
	if !dom.IsElement(n) {
		return "", false
	}
	root := dom.RootOf(n)
	if id, _ := dom.Attr(n, "id"); id != "" {
		sel := "#" + EscapeIdent(id)
		return sel, len(d.QueryIn(root, sel)) == 1
	}

	var parts []string
	sel := ""
	cur := n
	for i := 0; i < maxCSSDepth && cur != nil; i++ {
		parts = append([]string{segment(cur)}, parts...)
		sel = strings.Join(parts, " > ")
		if len(d.QueryIn(root, sel)) == 1 {
			return sel, true
		}
		cur = dom.ParentElement(cur)
	}
	return sel, false
}

func segment(n *html.Node) string {
	var sb strings.Builder
	sb.WriteString(EscapeIdent(dom.Tag(n)))
	for _, k := range []string{"role", "name", "aria-label"} {
		if v, ok := dom.Attr(n, k); ok && v != "" {
			fmt.Fprintf(&sb, `[%s="%s"]`, k, escapeString(v))
		}
	}
	if cls, ok := dom.Attr(n, "class"); ok {
		for i, c := range strings.Fields(cls) {
			if i == 2 {
				break
			}
			sb.WriteString("." + EscapeIdent(c))
		}
	}
	if sibs := dom.SameTagSiblings(n); len(sibs) > 1 {
		fmt.Fprintf(&sb, ":nth-of-type(%d)", ordinal(n, sibs))
	}
	return sb.String()
}

// XPath builds a positional path of tag[k] steps, up to eight levels. An
// ancestor with an id anchors the path as //*[@id="..."]. Paths that reach the
// top of the tree start with "/", truncated paths with "//".
func XPath(n *html.Node) string {
	var parts []string
	cur := n
	for i := 0; i < maxXPathDepth && dom.IsElement(cur); i++ {
		if id, _ := dom.Attr(cur, "id"); id != "" {
			anchor := "//*[@id=" + xpathLiteral(id) + "]"
			if len(parts) == 0 {
				return anchor
			}
			return anchor + "/" + strings.Join(parts, "/")
		}
		k := ordinal(cur, dom.SameTagSiblings(cur))
		parts = append([]string{dom.Tag(cur) + "[" + strconv.Itoa(k) + "]"}, parts...)
		cur = cur.Parent
	}
	if len(parts) == 0 {
		return ""
	}
	if dom.IsElement(cur) {
		return "//" + strings.Join(parts, "/")
	}
	return "/" + strings.Join(parts, "/")
}

func ordinal(n *html.Node, sibs []*html.Node) int {
	for i, s := range sibs {
		if s == n {
			return i + 1
		}
	}
	return 1
}

// EscapeIdent escapes s for use as a CSS identifier, following CSS.escape.
func EscapeIdent(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == 0:
			sb.WriteRune('\uFFFD')
		case (r >= 0x1 && r <= 0x1f) || r == 0x7f,
			i == 0 && r >= '0' && r <= '9',
			i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			fmt.Fprintf(&sb, `\%x `, r)
		case i == 0 && r == '-' && len(runes) == 1:
			sb.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			sb.WriteRune(r)
		default:
			sb.WriteRune('\\')
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func escapeString(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			sb.WriteRune('\\')
			sb.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, `\%x `, r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(parts, `, '"', `) + ")"
}
