package coordinator

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kalambet/steptrace/internal/clock"
	"github.com/kalambet/steptrace/internal/model"
	"github.com/kalambet/steptrace/internal/storage"
	"github.com/kalambet/steptrace/internal/telemetry"
)

type taskKey struct {
	episode string
	step    int
}

type task struct {
	timer  clock.Timer
	cancel context.CancelFunc
}

var tracer = telemetry.Tracer("steptrace/coordinator")

// schedule arms the post-capture of a step. It runs on the service goroutine.
func (s *Service) schedule(key taskKey, delay time.Duration, action string, pre model.Observation) {
	ctx, cancel := context.WithCancel(s.base)
	t := &task{cancel: cancel}

	s.wg.Add(1)
	s.taskMu.Lock()
	s.tasks[key] = t
	t.timer = s.clock.AfterFunc(delay, func() {
		s.running.Add(1)
		go func() {
			defer s.running.Done()
			s.postCapture(ctx, key, t, action, pre)
		}()
	})
	s.taskMu.Unlock()
}

// cancelTasks stops the tasks of an episode, or all tasks when episode is "".
func (s *Service) cancelTasks(episode string) {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	for k, t := range s.tasks {
		if episode != "" && k.episode != episode {
			continue
		}
		t.cancel()
		if t.timer.Stop() {
			s.wg.Done()
		}
		delete(s.tasks, k)
	}
}

func (s *Service) finishTask(key taskKey, t *task) {
	s.taskMu.Lock()
	if s.tasks[key] == t {
		delete(s.tasks, key)
	}
	s.taskMu.Unlock()
	t.cancel()
	s.wg.Done()
}

// postCapture observes the page after an action and finalizes the step,
// unless the episode it belongs to is no longer the active one.
func (s *Service) postCapture(ctx context.Context, key taskKey, t *task, action string, pre model.Observation) {
	defer s.finishTask(key, t)
	started := time.Now()

	ctx, span := tracer.Start(ctx, "coordinator.post_capture", trace.WithAttributes(
		attribute.String("episode_id", key.episode),
		attribute.Int("step", key.step),
		attribute.String("action", action),
	))
	defer span.End()

	st, err := do(ctx, s, func(context.Context) (model.Settings, error) {
		return s.loadSettings()
	})
	if ctx.Err() != nil {
		s.abandon(ctx, key, "cancelled", nil)
		return
	}
	if err != nil {
		s.abandon(ctx, key, "unavailable", err)
		return
	}
	if st.ActiveEpisode() != key.episode {
		s.abandon(ctx, key, "episode_changed", nil)
		return
	}

	post := s.capturePost(ctx, st.Options.CaptureDOMState)
	s.overlayTab(ctx, &post)
	if st.Options.CaptureScreenshots {
		s.attachScreenshot(ctx, &post)
	}
	derived := Diff(pre, post)

	_, err = do(ctx, s, func(context.Context) (struct{}, error) {
		cur, err := s.loadSettings()
		if err != nil {
			return struct{}{}, err
		}
		if cur.ActiveEpisode() != key.episode {
			return struct{}{}, errEpisodeChanged
		}
		return struct{}{}, s.store.FinalizeStep(key.episode, key.step, post, derived)
	})
	switch {
	case err == nil:
		s.metrics.stepFinalized(ctx, action, time.Since(started))
		s.logger.Debug("step finalized", "episode_id", key.episode, "step", key.step, "changes", len(derived.Changes))
	case ctx.Err() != nil:
		s.abandon(ctx, key, "cancelled", nil)
	case errors.Is(err, errEpisodeChanged), errors.Is(err, storage.ErrNotFound):
		s.abandon(ctx, key, "episode_changed", nil)
	default:
		s.abandon(ctx, key, "finalize_failed", err)
	}
}

var errEpisodeChanged = errors.New("episode changed")

func (s *Service) abandon(ctx context.Context, key taskKey, reason string, err error) {
	s.metrics.stepAbandoned(context.WithoutCancel(ctx), reason)
	if err != nil {
		s.logger.Warn("post-capture abandoned", "episode_id", key.episode, "step", key.step, "reason", reason, "error", err)
		return
	}
	s.logger.Debug("post-capture abandoned", "episode_id", key.episode, "step", key.step, "reason", reason)
}

func (s *Service) capturePost(ctx context.Context, withDOM bool) model.Observation {
	if s.page == nil {
		return model.Observation{DOMState: model.EmptyDOMState(), Error: "no page attached"}
	}
	cctx, cancel := context.WithTimeout(ctx, s.captureTimeout)
	defer cancel()
	obs, err := s.page.CapturePost(cctx, withDOM)
	if err != nil {
		return model.Observation{DOMState: model.EmptyDOMState(), Error: err.Error()}
	}
	if obs.DOMState.SelectorMap == nil {
		obs.DOMState.SelectorMap = map[string]model.ElementDescriptor{}
	}
	return obs
}
