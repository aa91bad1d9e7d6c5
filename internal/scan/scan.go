// Package scan enumerates the interactable elements of a document and
// renders them as a ranked, size-bounded summary.
package scan

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/kalambet/steptrace/internal/describe"
	"github.com/kalambet/steptrace/internal/dom"
	"github.com/kalambet/steptrace/internal/model"
	"github.com/kalambet/steptrace/internal/redact"
)

// DefaultLimit is the number of elements kept when no limit is given.
const DefaultLimit = 60

// Candidates selects every element that may be interacted with.
const Candidates = `button, a[href], input, select, textarea, [role="button"], [role="link"], [contenteditable]`

type candidate struct {
	node *html.Node
	desc *model.ElementDescriptor
}

// Scan returns the DOM state for d: visible, named candidates ranked
// in-viewport first, then by top and left edge, truncated to limit. At most
// 2×limit survivors are examined. Labels are resolved under p.
func Scan(d *dom.Document, limit int, p *redact.Policy) model.DOMState {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var found []candidate
	for _, n := range candidates(d, d.Root) {
		if len(found) >= 2*limit {
			break
		}
		if v, ok := dom.Attr(n, "contenteditable"); ok && strings.EqualFold(strings.TrimSpace(v), "false") && !native(n) {
			continue
		}
		if !describe.Visible(d, n) {
			continue
		}
		desc := describe.Describe(d, n, p)
		if strings.TrimSpace(desc.Label) == "" {
			continue
		}
		found = append(found, candidate{node: n, desc: desc})
	}

	rank(found)
	if len(found) > limit {
		found = found[:limit]
	}

	state := model.DOMState{
		SelectorMap:   make(map[string]model.ElementDescriptor, len(found)),
		ElementsCount: len(found),
	}
	lines := make([]string, 0, len(found))
	for i, c := range found {
		idx := strconv.Itoa(i + 1)
		lines = append(lines, "["+idx+"] "+c.desc.Label)
		state.SelectorMap[idx] = *c.desc
	}
	state.LLMRepresentation = strings.Join(lines, "\n")
	return state
}

// candidates returns the elements matching Candidates under scope, followed
// by those inside each open shadow root it hosts.
func candidates(d *dom.Document, scope *html.Node) []*html.Node {
	out := d.QueryIn(scope, Candidates)
	dom.Walk(scope, func(n *html.Node) bool {
		if sr, ok := d.ShadowRoot(n); ok {
			out = append(out, candidates(d, sr)...)
		}
		return true
	})
	return out
}

func rank(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i].desc, cs[j].desc
		if a.InViewport != b.InViewport {
			return a.InViewport
		}
		if a.BBox.Y != b.BBox.Y {
			return a.BBox.Y < b.BBox.Y
		}
		return a.BBox.X < b.BBox.X
	})
}

// native reports whether n matches the candidate set by tag or role rather
// than only through contenteditable.
func native(n *html.Node) bool {
	switch dom.Tag(n) {
	case "button", "input", "select", "textarea":
		return true
	case "a":
		_, ok := dom.Attr(n, "href")
		return ok
	}
	r, _ := dom.Attr(n, "role")
	return r == "button" || r == "link"
}
