// Package capture turns raw input events from the page into action events,
// each paired with the observation of the page just before the action.
package capture

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/kalambet/steptrace/internal/clock"
	"github.com/kalambet/steptrace/internal/dom"
	"github.com/kalambet/steptrace/internal/model"
	"github.com/kalambet/steptrace/internal/observe"
	"github.com/kalambet/steptrace/internal/redact"
)

// Raw event types sent by the page hook.
const (
	EventPointerDown = "pointerdown"
	EventScroll      = "scroll"
	EventFocusIn     = "focusin"
	EventChange      = "change"
	EventKeyDown     = "keydown"
)

// Event is one raw input event. Path holds the node ids of the composed event
// path, innermost first; Target is the id of the retargeted event target.
type Event struct {
	Type      string          `json:"type"`
	Path      []int           `json:"path,omitempty"`
	Target    int             `json:"target,omitempty"`
	X         float64         `json:"x,omitempty"`
	Y         float64         `json:"y,omitempty"`
	Button    int             `json:"button,omitempty"`
	Modifiers model.Modifiers `json:"modifiers"`
	Key       string          `json:"key,omitempty"`
	Code      string          `json:"code,omitempty"`
	DX        float64         `json:"dx,omitempty"`
	DY        float64         `json:"dy,omitempty"`
}

// Emitter receives the recorded action events.
type Emitter interface {
	Emit(ev model.ActionEvent) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(model.ActionEvent) error

func (f EmitterFunc) Emit(ev model.ActionEvent) error { return f(ev) }

// Config tunes a Recorder.
type Config struct {
	ScanLimit      int
	ScrollDebounce time.Duration
	// Keys is the allowlist of recorded key names.
	Keys []string
	// SensitiveNames are extra field name fragments whose values are redacted.
	SensitiveNames []string
}

// DefaultConfig returns the baseline capture policy.
func DefaultConfig() Config {
	return Config{
		ScanLimit:      60,
		ScrollDebounce: 250 * time.Millisecond,
		Keys:           []string{"Enter", "Escape", "Tab"},
	}
}

type heldFocus struct {
	nodeID int
	xpath  string
	pre    model.Observation
}

type pendingScroll struct {
	dx, dy float64
	doc    *dom.Document
	timer  clock.Timer
	gen    int
}

// Recorder converts raw events into action events. It is safe for concurrent
// use; events are normally delivered from a single goroutine.
type Recorder struct {
	emit    Emitter
	clock   clock.Clock
	cfg     Config
	keys    map[string]bool
	redact  *redact.Policy
	enabled atomic.Bool

	mu     sync.Mutex
	held   *heldFocus
	scroll pendingScroll

	logger *slog.Logger
}

// NewRecorder returns a disabled Recorder that sends actions to emit.
func NewRecorder(emit Emitter, clk clock.Clock, cfg Config) *Recorder {
	if cfg.ScrollDebounce <= 0 {
		cfg.ScrollDebounce = DefaultConfig().ScrollDebounce
	}
	if len(cfg.Keys) == 0 {
		cfg.Keys = DefaultConfig().Keys
	}
	keys := make(map[string]bool, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys[strings.TrimSpace(k)] = true
	}
	return &Recorder{
		emit:   emit,
		clock:  clk,
		cfg:    cfg,
		keys:   keys,
		redact: redact.New(cfg.SensitiveNames),
		logger: slog.Default(),
	}
}

// SetEnabled turns emission on or off. Disabling drops any pending scroll
// and held focus state.
func (r *Recorder) SetEnabled(on bool) {
	r.enabled.Store(on)
	if on {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held = nil
	r.resetScrollLocked()
}

// Enabled reports whether actions are currently emitted.
func (r *Recorder) Enabled() bool {
	return r.enabled.Load()
}

// Close cancels the pending scroll timer.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetScrollLocked()
}

// Handle processes one raw event observed on doc. It never panics and never
// returns an error; failures are logged and dropped.
func (r *Recorder) Handle(ev Event, doc *dom.Document) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("capture handler panicked", "event", ev.Type, "panic", fmt.Sprint(p))
		}
	}()
	if doc == nil {
		return
	}

	switch ev.Type {
	case EventPointerDown:
		if act, pre, ok := r.click(ev, doc); ok {
			r.send(act, pre)
		}
	case EventScroll:
		r.queueScroll(ev, doc)
	case EventFocusIn:
		r.focus(ev, doc)
	case EventChange:
		if act, pre, ok := r.change(ev, doc); ok {
			r.send(act, pre)
		}
	case EventKeyDown:
		if act, pre, ok := r.key(ev, doc); ok {
			r.send(act, pre)
		}
	default:
		r.logger.Debug("ignoring raw event", "event", ev.Type)
	}
}

func (r *Recorder) send(act model.Action, pre model.Observation) {
	if !r.enabled.Load() {
		return
	}
	ev := model.ActionEvent{
		Kind:       model.KindStep,
		Action:     act,
		Pre:        pre,
		Timestamps: model.NewTimestamps(r.clock.Now()),
	}
	if err := r.emit.Emit(ev); err != nil {
		r.logger.Debug("emitting action failed", "action", act.Type, "error", err)
	}
}

func (r *Recorder) observe(doc *dom.Document, target *html.Node, withDOM bool) model.Observation {
	return observe.Build(doc, observe.Options{
		Target:          target,
		CaptureDOMState: withDOM,
		ScanLimit:       r.cfg.ScanLimit,
		Redact:          r.redact,
	})
}

// ResolveTarget returns the first element of the composed path, falling back
// to the plain event target.
func ResolveTarget(doc *dom.Document, ev Event) *html.Node {
	for _, id := range ev.Path {
		if n, ok := doc.NodeByID(id); ok && dom.IsElement(n) {
			return n
		}
	}
	if n, ok := doc.NodeByID(ev.Target); ok {
		return n
	}
	return nil
}
