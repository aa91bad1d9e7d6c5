// Package coordinator owns the recorder state. Every settings mutation runs
// on a single goroutine consuming a request queue, so step numbers are
// assigned and persisted without races. Post-action observations are
// captured by delayed tasks that re-check the active episode before
// finalizing a step.
package coordinator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/steptrace/internal/clock"
	"github.com/kalambet/steptrace/internal/export"
	"github.com/kalambet/steptrace/internal/model"
	"github.com/kalambet/steptrace/internal/storage"
)

// ErrClosed is returned by requests made after the service loop exited.
var ErrClosed = errors.New("coordinator: closed")

const (
	defaultPostDelay       = 500 * time.Millisecond
	defaultScrollPostDelay = 200 * time.Millisecond
	defaultCaptureTimeout  = 10 * time.Second
)

// Status messages.
const (
	msgStarted      = "Recording started."
	msgStopped      = "Recording stopped."
	msgNotRecording = "Not recording."
	msgCleared      = "Cleared."
	msgOptions      = "Options updated."
	msgNoEpisode    = "No episode."
)

// Deps are the collaborators of a Service. Page, Screenshots and Tabs may be
// nil; the corresponding captures then degrade to error markers.
type Deps struct {
	Store       Store
	Page        Page
	Screenshots Screenshotter
	Tabs        TabInfoProvider
	Clock       clock.Clock

	// DefaultOptions seed the settings of a fresh or cleared recorder.
	// Nil means model.DefaultOptions.
	DefaultOptions *model.Options

	PostDelay       time.Duration
	ScrollPostDelay time.Duration
	CaptureTimeout  time.Duration
}

// StepResult reports the number assigned to a recorded step.
type StepResult struct {
	StepNumber int `json:"stepNumber"`
}

// ExportResult is the response to an export request. Episode is nil when
// nothing has been recorded.
type ExportResult struct {
	Episode     *export.Episode `json:"episode,omitempty"`
	EpisodeID   *string         `json:"episodeId"`
	StepCount   int             `json:"stepCount"`
	LastMessage string          `json:"lastMessage"`
}

type request struct {
	run func(ctx context.Context)
}

// Service is the step coordinator.
type Service struct {
	store Store
	page  Page
	shots Screenshotter
	tabs  TabInfoProvider
	clock clock.Clock
	opts  model.Options

	postDelay       time.Duration
	scrollPostDelay time.Duration
	captureTimeout  time.Duration

	reqs chan request
	done chan struct{}

	// base is the context of the running loop; tasks derive from it.
	base context.Context

	taskMu sync.Mutex
	tasks  map[taskKey]*task
	// wg counts scheduled tasks; running counts those whose timer fired.
	wg      sync.WaitGroup
	running sync.WaitGroup

	metrics metrics
	logger  *slog.Logger
}

// New creates a Service. Call Run to start processing requests.
func New(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.PostDelay <= 0 {
		deps.PostDelay = defaultPostDelay
	}
	if deps.ScrollPostDelay <= 0 {
		deps.ScrollPostDelay = defaultScrollPostDelay
	}
	if deps.CaptureTimeout <= 0 {
		deps.CaptureTimeout = defaultCaptureTimeout
	}
	opts := model.DefaultOptions()
	if deps.DefaultOptions != nil {
		opts = *deps.DefaultOptions
	}
	return &Service{
		store:           deps.Store,
		page:            deps.Page,
		shots:           deps.Screenshots,
		tabs:            deps.Tabs,
		clock:           deps.Clock,
		opts:            opts,
		postDelay:       deps.PostDelay,
		scrollPostDelay: deps.ScrollPostDelay,
		captureTimeout:  deps.CaptureTimeout,
		reqs:            make(chan request),
		done:            make(chan struct{}),
		tasks:           make(map[taskKey]*task),
		metrics:         newMetrics(),
		logger:          slog.Default(),
	}
}

// Run processes requests until ctx is cancelled. Outstanding post-capture
// tasks are cancelled and awaited before Run returns.
func (s *Service) Run(ctx context.Context) error {
	s.base = ctx
	defer func() {
		close(s.done)
		s.cancelTasks("")
		s.wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-s.reqs:
			req.run(ctx)
		}
	}
}

// Wait blocks until every post-capture whose delay has elapsed has finished.
// Tasks still waiting on their timer are not awaited.
func (s *Service) Wait() {
	s.running.Wait()
}

type result[T any] struct {
	val T
	err error
}

// do runs fn on the service goroutine and returns its result.
func do[T any](ctx context.Context, s *Service, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	res := make(chan result[T], 1)
	req := request{run: func(lctx context.Context) {
		v, err := fn(lctx)
		res <- result[T]{val: v, err: err}
	}}

	select {
	case s.reqs <- req:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.done:
		return zero, ErrClosed
	}
	select {
	case r := <-res:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.done:
		return zero, ErrClosed
	}
}

// Status returns the current settings.
func (s *Service) Status(ctx context.Context) (model.Settings, error) {
	return do(ctx, s, func(context.Context) (model.Settings, error) {
		return s.loadSettings()
	})
}

// Start begins a new episode. opts are merged over the persisted options.
func (s *Service) Start(ctx context.Context, opts *model.OptionsPatch) (model.Settings, error) {
	return do(ctx, s, func(context.Context) (model.Settings, error) {
		return s.start(ctx, opts)
	})
}

// Stop ends recording. Recorded steps are kept for export.
func (s *Service) Stop(ctx context.Context) (model.Settings, error) {
	return do(ctx, s, func(context.Context) (model.Settings, error) {
		return s.stop(ctx)
	})
}

// Clear deletes the active episode and resets the settings.
func (s *Service) Clear(ctx context.Context) (model.Settings, error) {
	return do(ctx, s, func(context.Context) (model.Settings, error) {
		return s.clear(ctx)
	})
}

// SetOptions merges the provided option fields into the settings.
func (s *Service) SetOptions(ctx context.Context, opts *model.OptionsPatch) (model.Settings, error) {
	return do(ctx, s, func(context.Context) (model.Settings, error) {
		st, err := s.loadSettings()
		if err != nil {
			return model.Settings{}, err
		}
		st.Options = st.Options.Apply(opts)
		st.LastMessage = msgOptions
		if err := s.store.SaveSettings(st); err != nil {
			return model.Settings{}, fmt.Errorf("saving settings: %w", err)
		}
		return st, nil
	})
}

// Export returns the active episode with its ordered steps.
func (s *Service) Export(ctx context.Context) (ExportResult, error) {
	return do(ctx, s, func(context.Context) (ExportResult, error) {
		return s.export()
	})
}

// OnActionEvent records a step for ev. ok is false when the event was
// ignored because nothing is being recorded.
func (s *Service) OnActionEvent(ctx context.Context, ev model.ActionEvent) (StepResult, bool, error) {
	type out struct {
		res StepResult
		ok  bool
	}
	o, err := do(ctx, s, func(context.Context) (out, error) {
		res, ok, err := s.recordStep(ctx, ev)
		return out{res: res, ok: ok}, err
	})
	return o.res, o.ok, err
}

func (s *Service) loadSettings() (model.Settings, error) {
	st, err := s.store.GetSettings()
	if errors.Is(err, storage.ErrNotFound) {
		return s.defaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	return st, nil
}

func (s *Service) defaultSettings() model.Settings {
	st := model.DefaultSettings()
	st.Options = s.opts
	return st
}

func (s *Service) start(ctx context.Context, patch *model.OptionsPatch) (model.Settings, error) {
	st, err := s.loadSettings()
	if err != nil {
		return model.Settings{}, err
	}
	opts := st.Options.Apply(patch)
	id := uuid.NewString()
	now := s.clock.Now().UTC()

	ep := model.Episode{EpisodeID: id, CreatedAt: now, Options: opts}
	if s.tabs != nil {
		cctx, cancel := context.WithTimeout(ctx, s.captureTimeout)
		if info, err := s.tabs.BrowserInfo(cctx); err == nil {
			ep.Browser = info
		} else {
			s.logger.Debug("browser info unavailable", "error", err)
		}
		if tab, err := s.tabs.ActiveTab(cctx); err == nil {
			ep.Origin = model.OriginInfo{URL: tab.URL, Title: tab.Title, TabID: tab.ID}
		} else {
			s.logger.Debug("tab info unavailable", "error", err)
		}
		cancel()
	}
	if err := s.store.SaveEpisode(ep); err != nil {
		return model.Settings{}, fmt.Errorf("saving episode: %w", err)
	}

	msg := msgStarted
	if err := s.ensureCaptureScript(ctx); err != nil {
		s.logger.Warn("capture script not injected", "episode_id", id, "error", err)
		msg = fmt.Sprintf("Recording started, but the capture script could not be injected: %v", err)
	}

	st = model.Settings{
		IsRecording: true,
		EpisodeID:   &id,
		StartedAt:   &now,
		StepCount:   0,
		LastMessage: msg,
		Options:     opts,
	}
	if err := s.store.SaveSettings(st); err != nil {
		return model.Settings{}, fmt.Errorf("saving settings: %w", err)
	}
	s.setPageEnabled(ctx, true)
	s.logger.Info("recording started", "episode_id", id)
	return st, nil
}

func (s *Service) stop(ctx context.Context) (model.Settings, error) {
	st, err := s.loadSettings()
	if err != nil {
		return model.Settings{}, err
	}
	if !st.IsRecording {
		st.LastMessage = msgNotRecording
	} else {
		st.IsRecording = false
		st.LastMessage = msgStopped
		s.logger.Info("recording stopped", "episode_id", st.ActiveEpisode(), "steps", st.StepCount)
	}
	if err := s.store.SaveSettings(st); err != nil {
		return model.Settings{}, fmt.Errorf("saving settings: %w", err)
	}
	s.setPageEnabled(ctx, false)
	return st, nil
}

func (s *Service) clear(ctx context.Context) (model.Settings, error) {
	st, err := s.loadSettings()
	if err != nil {
		return model.Settings{}, err
	}
	if id := st.ActiveEpisode(); id != "" {
		s.cancelTasks(id)
		if err := s.store.DeleteEpisode(id); err != nil {
			return model.Settings{}, fmt.Errorf("deleting episode: %w", err)
		}
		s.logger.Info("episode cleared", "episode_id", id)
	}
	st = s.defaultSettings()
	st.LastMessage = msgCleared
	if err := s.store.SaveSettings(st); err != nil {
		return model.Settings{}, fmt.Errorf("saving settings: %w", err)
	}
	s.setPageEnabled(ctx, false)
	return st, nil
}

func (s *Service) export() (ExportResult, error) {
	empty := ExportResult{LastMessage: msgNoEpisode}
	st, err := s.loadSettings()
	if err != nil {
		return ExportResult{}, err
	}
	id := st.ActiveEpisode()
	if id == "" {
		return empty, nil
	}
	ep, err := s.store.GetEpisode(id)
	if errors.Is(err, storage.ErrNotFound) {
		return empty, nil
	}
	if err != nil {
		return ExportResult{}, fmt.Errorf("loading episode: %w", err)
	}
	steps, err := s.store.ListSteps(id)
	if err != nil {
		return ExportResult{}, fmt.Errorf("listing steps: %w", err)
	}
	return ExportResult{
		Episode:     export.New(ep, steps),
		EpisodeID:   &id,
		StepCount:   st.StepCount,
		LastMessage: st.LastMessage,
	}, nil
}

func (s *Service) recordStep(ctx context.Context, ev model.ActionEvent) (StepResult, bool, error) {
	if ev.Kind != model.KindStep {
		return StepResult{}, false, nil
	}
	st, err := s.loadSettings()
	if err != nil {
		return StepResult{}, false, err
	}
	id := st.ActiveEpisode()
	if !st.IsRecording || id == "" {
		return StepResult{}, false, nil
	}

	n := st.StepCount
	pre := ev.Pre
	s.overlayTab(ctx, &pre)
	if st.Options.CaptureScreenshots {
		s.attachScreenshot(ctx, &pre)
	}

	ts := ev.Timestamps
	if ts.TMs == 0 {
		ts = model.NewTimestamps(s.clock.Now())
	}
	step := model.Step{
		StepID:     uuid.NewString(),
		EpisodeID:  id,
		StepNumber: n,
		TMs:        ts.TMs,
		TISO:       ts.TISO,
		Pre:        pre,
		Action:     ev.Action,
	}
	if err := s.store.PutStep(step); err != nil {
		return StepResult{}, false, fmt.Errorf("persisting step %d: %w", n, err)
	}

	st.StepCount = n + 1
	st.LastMessage = fmt.Sprintf("Captured step %d (%s).", n, ev.Action.Type)
	if err := s.store.SaveSettings(st); err != nil {
		return StepResult{}, false, fmt.Errorf("saving settings: %w", err)
	}

	delay := s.postDelay
	if ev.Action.Type == model.ActionScroll {
		delay = s.scrollPostDelay
	}
	s.schedule(taskKey{episode: id, step: n}, delay, ev.Action.Type, pre)
	s.metrics.stepCreated(ctx, ev.Action.Type)
	s.logger.Debug("step recorded", "episode_id", id, "step", n, "action", ev.Action.Type)
	return StepResult{StepNumber: n}, true, nil
}

func (s *Service) ensureCaptureScript(ctx context.Context) error {
	if s.page == nil {
		return errors.New("no page attached")
	}
	cctx, cancel := context.WithTimeout(ctx, s.captureTimeout)
	defer cancel()
	return s.page.EnsureCaptureScript(cctx)
}

func (s *Service) setPageEnabled(ctx context.Context, on bool) {
	if s.page == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, s.captureTimeout)
	defer cancel()
	if err := s.page.SetEnabled(cctx, on); err != nil {
		s.logger.Warn("toggling page capture failed", "enabled", on, "error", err)
	}
}

// overlayTab replaces the page-reported url and title with the tab's.
func (s *Service) overlayTab(ctx context.Context, obs *model.Observation) {
	if s.tabs == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, s.captureTimeout)
	defer cancel()
	tab, err := s.tabs.ActiveTab(cctx)
	if err != nil {
		s.logger.Debug("tab lookup failed", "error", err)
		return
	}
	obs.Tab = &tab
	if tab.URL != "" {
		obs.URL = tab.URL
	}
	if tab.Title != "" {
		obs.Title = tab.Title
	}
}

func (s *Service) attachScreenshot(ctx context.Context, obs *model.Observation) {
	if s.shots == nil {
		obs.ScreenshotError = "screenshots unavailable"
		return
	}
	cctx, cancel := context.WithTimeout(ctx, s.captureTimeout)
	defer cancel()
	png, err := s.shots.Screenshot(cctx)
	if err != nil {
		obs.ScreenshotError = err.Error()
		return
	}
	obs.Screenshot = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
