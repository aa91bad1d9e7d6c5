package coordinator

import (
	"bytes"
	"encoding/json"

	"github.com/kalambet/steptrace/internal/model"
)

// Diff compares the observed fields of pre and post and returns only those
// that changed. Values are compared in their serialized form. elements_count
// is compared only when both observations carry DOM state.
func Diff(pre, post model.Observation) model.Derived {
	d := model.Derived{Changes: map[string]model.FieldChange{}}
	add := func(field string, before, after any) {
		b, errB := json.Marshal(before)
		a, errA := json.Marshal(after)
		if errB != nil || errA != nil || !bytes.Equal(a, b) {
			d.Changes[field] = model.FieldChange{Before: before, After: after}
		}
	}

	add("url", pre.URL, post.URL)
	add("title", pre.Title, post.Title)
	add("scroll_y", pre.PageInfo.ScrollY, post.PageInfo.ScrollY)
	add("scroll_x", pre.PageInfo.ScrollX, post.PageInfo.ScrollX)
	add("page_height", pre.PageInfo.PageHeight, post.PageInfo.PageHeight)
	if len(pre.DOMState.SelectorMap) > 0 && len(post.DOMState.SelectorMap) > 0 {
		add("elements_count", pre.DOMState.ElementsCount, post.DOMState.ElementsCount)
	}
	return d
}
