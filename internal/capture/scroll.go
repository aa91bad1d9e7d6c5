package capture

import (
	"github.com/kalambet/steptrace/internal/dom"
	"github.com/kalambet/steptrace/internal/model"
)

// queueScroll accumulates the displacement of ev and restarts the quiet
// window. Only the trailing edge emits.
func (r *Recorder) queueScroll(ev Event, doc *dom.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scroll.timer != nil {
		r.scroll.timer.Stop()
	}
	r.scroll.dx += ev.DX
	r.scroll.dy += ev.DY
	r.scroll.doc = doc
	r.scroll.gen++
	gen := r.scroll.gen
	r.scroll.timer = r.clock.AfterFunc(r.cfg.ScrollDebounce, func() { r.flushScroll(gen) })
}

func (r *Recorder) flushScroll(gen int) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("scroll flush panicked", "panic", p)
		}
	}()

	r.mu.Lock()
	if gen != r.scroll.gen || r.scroll.doc == nil {
		r.mu.Unlock()
		return
	}
	dx, dy, doc := r.scroll.dx, r.scroll.dy, r.scroll.doc
	r.scroll = pendingScroll{gen: r.scroll.gen}
	r.mu.Unlock()

	act := model.Action{Type: model.ActionScroll, DX: dx, DY: dy}
	r.send(act, r.observe(doc, nil, false))
}

func (r *Recorder) resetScrollLocked() {
	if r.scroll.timer != nil {
		r.scroll.timer.Stop()
	}
	r.scroll = pendingScroll{gen: r.scroll.gen + 1}
}
