// Package browser drives a Chrome tab over the DevTools protocol. It injects
// the capture hook, turns page messages into recorder events and serves the
// page, screenshot and tab lookups the coordinator needs.
package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/kalambet/steptrace/internal/capture"
	"github.com/kalambet/steptrace/internal/dom"
	"github.com/kalambet/steptrace/internal/model"
	"github.com/kalambet/steptrace/internal/observe"
	"github.com/kalambet/steptrace/internal/redact"
)

//go:embed snapshot.js
var snapshotJS string

//go:embed hook.js
var hookTemplate string

const bindingName = "__steptraceEmit"

// pageScrollQuiet is how long the page waits after the last scroll before
// it reports the burst.
const pageScrollQuiet = 100 * time.Millisecond

// ErrNoPage is returned when the driver has no tab to talk to.
var ErrNoPage = errors.New("browser: no page attached")

// Config selects the browser to drive. With an empty ControlURL a local
// Chrome is launched.
type Config struct {
	ControlURL string
	Bin        string
	Headless   bool
	StartURL   string
	ScanLimit  int
	Keys       []string

	// SensitiveNames extend the fields whose values never name an element.
	SensitiveNames []string

	// WindowWidth and WindowHeight size a launched browser window.
	WindowWidth  int
	WindowHeight int
}

// Driver is a connected browser tab.
type Driver struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	cfg      Config
	redact   *redact.Policy

	mu      sync.Mutex
	rec     *capture.Recorder
	enabled bool

	// hookMu serializes hook registration.
	hookMu     sync.Mutex
	stopExpose func() error
	removeHook func() error

	logger *slog.Logger
}

// Launch connects to the browser at cfg.ControlURL, or starts one, and
// attaches to its first tab.
func Launch(ctx context.Context, cfg Config) (*Driver, error) {
	d := &Driver{cfg: cfg, redact: redact.New(cfg.SensitiveNames), logger: slog.Default()}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Context(ctx).Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
			l = l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		d.launcher = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		d.cleanupLauncher()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	d.browser = b

	pages, err := b.Pages()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("list pages: %w", err)
	}
	switch p := pages.First(); {
	case p == nil:
		p, err = b.Page(proto.TargetCreateTarget{URL: cfg.StartURL})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("open page: %w", err)
		}
		d.page = p
	case cfg.StartURL != "":
		d.page = p
		if err := p.Navigate(cfg.StartURL); err != nil {
			d.logger.Warn("navigating to start url failed", "url", cfg.StartURL, "error", err)
		}
	default:
		d.page = p
	}
	d.logger.Info("browser connected", "control_url", controlURL, "launched", d.launcher != nil)
	return d, nil
}

// Attach routes page events to rec.
func (d *Driver) Attach(rec *capture.Recorder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec = rec
}

// Page returns the driven tab.
func (d *Driver) Page() *rod.Page {
	return d.page
}

// Close detaches from the page. A launched browser is shut down; an attached
// one is left running.
func (d *Driver) Close() error {
	d.hookMu.Lock()
	stop, remove := d.stopExpose, d.removeHook
	d.stopExpose, d.removeHook = nil, nil
	d.hookMu.Unlock()

	var errs []error
	if remove != nil {
		errs = append(errs, remove())
	}
	if stop != nil {
		errs = append(errs, stop())
	}
	if d.launcher != nil && d.browser != nil {
		errs = append(errs, d.browser.Close())
	}
	d.cleanupLauncher()
	return errors.Join(errs...)
}

func (d *Driver) cleanupLauncher() {
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher.Cleanup()
	}
}

// EnsureCaptureScript installs the page hook in the current document and in
// every document loaded later. Repeated calls are no-ops.
func (d *Driver) EnsureCaptureScript(ctx context.Context) error {
	if d.page == nil {
		return ErrNoPage
	}
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	if d.stopExpose != nil {
		return nil
	}

	// The binding listener lives as long as the page, not the request.
	stop, err := d.page.Expose(bindingName, d.onMessage)
	if err != nil {
		return fmt.Errorf("exposing binding: %w", err)
	}
	hook := renderHook(d.cfg.Keys, d.isEnabled())
	remove, err := d.page.EvalOnNewDocument(hook)
	if err != nil {
		_ = stop()
		return fmt.Errorf("registering hook: %w", err)
	}
	if _, err := d.page.Context(ctx).Evaluate(rod.Eval("() => {" + hook + "}")); err != nil {
		_ = remove()
		_ = stop()
		return fmt.Errorf("injecting hook: %w", err)
	}
	d.stopExpose, d.removeHook = stop, remove
	return nil
}

// SetEnabled toggles capture in the recorder and in the page hook. Documents
// loaded later start in the same state.
func (d *Driver) SetEnabled(ctx context.Context, enabled bool) error {
	d.mu.Lock()
	rec := d.rec
	d.enabled = enabled
	d.mu.Unlock()
	if rec != nil {
		rec.SetEnabled(enabled)
	}
	if d.page == nil {
		return ErrNoPage
	}
	if err := d.replaceHook(enabled); err != nil {
		return err
	}
	_, err := d.page.Context(ctx).Evaluate(rod.Eval(
		`(on) => { if (window.__steptrace) window.__steptrace.enabled = on; }`, enabled))
	if err != nil {
		return fmt.Errorf("toggling page hook: %w", err)
	}
	return nil
}

// replaceHook swaps the new-document hook for one that starts enabled or
// disabled. It does nothing before EnsureCaptureScript.
func (d *Driver) replaceHook(enabled bool) error {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	if d.removeHook == nil {
		return nil
	}
	if err := d.removeHook(); err != nil {
		return fmt.Errorf("removing hook: %w", err)
	}
	d.removeHook = nil
	remove, err := d.page.EvalOnNewDocument(renderHook(d.cfg.Keys, enabled))
	if err != nil {
		return fmt.Errorf("registering hook: %w", err)
	}
	d.removeHook = remove
	return nil
}

func (d *Driver) isEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// CapturePost snapshots the live page and builds an observation from it.
func (d *Driver) CapturePost(ctx context.Context, captureDOMState bool) (model.Observation, error) {
	if d.page == nil {
		return model.Observation{}, ErrNoPage
	}
	res, err := d.page.Context(ctx).Evaluate(rod.Eval(snapshotJS))
	if err != nil {
		return model.Observation{}, fmt.Errorf("snapshot page: %w", err)
	}
	var snap dom.Snapshot
	if err := res.Value.Unmarshal(&snap); err != nil {
		return model.Observation{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	doc, err := dom.FromSnapshot(snap)
	if err != nil {
		return model.Observation{}, err
	}
	return observe.Build(doc, observe.Options{
		CaptureDOMState: captureDOMState,
		ScanLimit:       d.cfg.ScanLimit,
		Redact:          d.redact,
	}), nil
}

// Screenshot captures the visible viewport as PNG.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if d.page == nil {
		return nil, ErrNoPage
	}
	return d.page.Context(ctx).Screenshot(false, nil)
}

// ActiveTab returns the id, url and title of the driven tab.
func (d *Driver) ActiveTab(ctx context.Context) (model.TabInfo, error) {
	if d.page == nil {
		return model.TabInfo{}, ErrNoPage
	}
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return model.TabInfo{}, fmt.Errorf("page info: %w", err)
	}
	return model.TabInfo{ID: string(info.TargetID), URL: info.URL, Title: info.Title}, nil
}

// BrowserInfo returns the browser version details.
func (d *Driver) BrowserInfo(ctx context.Context) (model.BrowserInfo, error) {
	if d.browser == nil {
		return model.BrowserInfo{}, ErrNoPage
	}
	v, err := d.browser.Context(ctx).Version()
	if err != nil {
		return model.BrowserInfo{}, fmt.Errorf("browser version: %w", err)
	}
	return model.BrowserInfo{UserAgent: v.UserAgent, Product: v.Product, ProtocolVersion: v.ProtocolVersion}, nil
}

func (d *Driver) onMessage(payload gson.JSON) (interface{}, error) {
	raw, err := payload.MarshalJSON()
	if err != nil {
		return nil, err
	}
	ev, doc, err := decodeMessage(raw)
	if err != nil {
		d.logger.Debug("dropping page message", "error", err)
		return nil, nil
	}
	d.mu.Lock()
	rec := d.rec
	d.mu.Unlock()
	if rec != nil {
		rec.Handle(ev, doc)
	}
	return nil, nil
}

type hookMessage struct {
	Event    capture.Event `json:"event"`
	Snapshot dom.Snapshot  `json:"snapshot"`
}

// decodeMessage parses one page hook message into a raw event and the
// document it was observed on.
func decodeMessage(raw []byte) (capture.Event, *dom.Document, error) {
	var msg hookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return capture.Event{}, nil, fmt.Errorf("decoding message: %w", err)
	}
	if msg.Event.Type == "" {
		return capture.Event{}, nil, errors.New("message has no event type")
	}
	doc, err := dom.FromSnapshot(msg.Snapshot)
	if err != nil {
		return capture.Event{}, nil, err
	}
	return msg.Event, doc, nil
}

// renderHook fills the hook template. The hook emits only while enabled.
func renderHook(keys []string, enabled bool) string {
	if len(keys) == 0 {
		keys = capture.DefaultConfig().Keys
	}
	k, _ := json.Marshal(keys)
	return strings.NewReplacer(
		"__SNAPSHOT__", strings.TrimSpace(snapshotJS),
		"__KEYS__", string(k),
		"__ENABLED__", strconv.FormatBool(enabled),
		"__SCROLL_QUIET__", strconv.Itoa(int(pageScrollQuiet.Milliseconds())),
		"__STEPTRACE_BINDING__", bindingName,
	).Replace(hookTemplate)
}
