package capture

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/kalambet/steptrace/internal/describe"
	"github.com/kalambet/steptrace/internal/dom"
	"github.com/kalambet/steptrace/internal/model"
)

const maxInputValue = 2000

func (r *Recorder) click(ev Event, doc *dom.Document) (model.Action, model.Observation, bool) {
	if ev.Button != 0 {
		return model.Action{}, model.Observation{}, false
	}
	target := ResolveTarget(doc, ev)
	if !dom.IsElement(target) {
		return model.Action{}, model.Observation{}, false
	}
	act := model.Action{
		Type: model.ActionClick,
		Pointer: &model.Pointer{
			X:         ev.X,
			Y:         ev.Y,
			Button:    ev.Button,
			Modifiers: ev.Modifiers,
		},
		Target: describe.Ref(doc, target, r.redact),
	}
	return act, r.observe(doc, target, true), true
}

func (r *Recorder) focus(ev Event, doc *dom.Document) {
	target := ResolveTarget(doc, ev)
	if !editable(target) {
		return
	}
	held := &heldFocus{
		nodeID: doc.NodeID(target),
		xpath:  describe.XPath(target),
		pre:    r.observe(doc, target, true),
	}
	r.mu.Lock()
	r.held = held
	r.mu.Unlock()
}

func (r *Recorder) change(ev Event, doc *dom.Document) (model.Action, model.Observation, bool) {
	target := ResolveTarget(doc, ev)
	if !editable(target) {
		return model.Action{}, model.Observation{}, false
	}

	r.mu.Lock()
	held := r.held
	r.held = nil
	r.mu.Unlock()

	var pre model.Observation
	if held != nil && sameTarget(doc, held, target) {
		pre = held.pre
	} else {
		pre = r.observe(doc, target, true)
	}

	ref := describe.Ref(doc, target, r.redact)
	if dom.Tag(target) == "select" {
		return model.Action{
			Type:        model.ActionSelect,
			Target:      ref,
			OptionValue: doc.Value(target),
		}, pre, true
	}

	act := model.Action{Type: model.ActionInput, Target: ref}
	value := fieldText(doc, target)
	if !r.redact.Exposable(target, value) {
		act.Value = model.RedactedValue
		act.Redacted = true
	} else {
		act.Value = truncateRunes(value, maxInputValue)
	}
	return act, pre, true
}

func (r *Recorder) key(ev Event, doc *dom.Document) (model.Action, model.Observation, bool) {
	if !r.keys[ev.Key] {
		return model.Action{}, model.Observation{}, false
	}
	target := ResolveTarget(doc, ev)
	if !dom.IsElement(target) || dom.Tag(target) == "html" || dom.Tag(target) == "body" {
		target = nil
	}
	act := model.Action{
		Type:    model.ActionKey,
		Keys:    keyCombo(ev),
		KeyInfo: &model.KeyInfo{Key: ev.Key, Code: ev.Code, Modifiers: ev.Modifiers},
	}
	if target != nil {
		act.Target = describe.Ref(doc, target, r.redact)
	}
	return act, r.observe(doc, target, false), true
}

// editable reports whether n takes typed or selected input.
func editable(n *html.Node) bool {
	switch dom.Tag(n) {
	case "input", "textarea", "select":
		return true
	case "":
		return false
	}
	v, ok := dom.Attr(n, "contenteditable")
	return ok && !strings.EqualFold(strings.TrimSpace(v), "false")
}

func sameTarget(doc *dom.Document, held *heldFocus, target *html.Node) bool {
	if id := doc.NodeID(target); id != 0 && id == held.nodeID {
		return true
	}
	if held.xpath == "" {
		return false
	}
	nodes, err := doc.XPath(held.xpath)
	return err == nil && len(nodes) == 1 && nodes[0] == target
}

func fieldText(doc *dom.Document, n *html.Node) string {
	switch dom.Tag(n) {
	case "input", "textarea":
		return doc.Value(n)
	}
	return strings.TrimSpace(dom.TextContent(n))
}

func keyCombo(ev Event) string {
	var parts []string
	m := ev.Modifiers
	if m.Ctrl {
		parts = append(parts, "Control")
	}
	if m.Alt {
		parts = append(parts, "Alt")
	}
	if m.Meta {
		parts = append(parts, "Meta")
	}
	if m.Shift {
		parts = append(parts, "Shift")
	}
	return strings.Join(append(parts, ev.Key), "+")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
