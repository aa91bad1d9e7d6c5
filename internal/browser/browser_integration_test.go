//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kalambet/steptrace/internal/browser"
	"github.com/kalambet/steptrace/internal/capture"
	"github.com/kalambet/steptrace/internal/clock"
	"github.com/kalambet/steptrace/internal/model"
)

type sink struct {
	mu     sync.Mutex
	events []model.ActionEvent
}

func (s *sink) Emit(ev model.ActionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDriverCapturesClick(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><head><title>Shop</title></head><body><button id="go">Search</button></body></html>`)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	d, err := browser.Launch(ctx, browser.Config{Headless: true, StartURL: ts.URL})
	require.NoError(t, err)
	defer d.Close()

	out := &sink{}
	rec := capture.NewRecorder(out, clock.Real(), capture.DefaultConfig())
	defer rec.Close()
	d.Attach(rec)

	require.NoError(t, d.EnsureCaptureScript(ctx))
	require.NoError(t, d.SetEnabled(ctx, true))

	obs, err := d.CapturePost(ctx, true)
	require.NoError(t, err)
	require.Equal(t, "Shop", obs.Title)
	require.Contains(t, obs.DOMState.LLMRepresentation, "[1] Search")

	tab, err := d.ActiveTab(ctx)
	require.NoError(t, err)
	require.Equal(t, ts.URL+"/", tab.URL)

	png, err := d.Screenshot(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, png)

	d.Page().MustElement("#go").MustClick()
	require.Eventually(t, func() bool { return out.count() >= 1 }, 5*time.Second, 50*time.Millisecond)

	out.mu.Lock()
	ev := out.events[0]
	out.mu.Unlock()
	require.Equal(t, model.ActionClick, ev.Action.Type)
	require.Equal(t, "Search", ev.Action.Target.DOM.Name)
	require.Equal(t, "#go", ev.Action.Target.DOM.Selectors.CSS)
}

func TestHookStartsDisabledAndFollowsSetEnabled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body><p>feed</p></body></html>`)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	d, err := browser.Launch(ctx, browser.Config{Headless: true, StartURL: ts.URL})
	require.NoError(t, err)
	defer d.Close()

	enabled := func() bool {
		return d.Page().MustEval(`() => !!(window.__steptrace && window.__steptrace.enabled)`).Bool()
	}

	require.NoError(t, d.EnsureCaptureScript(ctx))
	require.False(t, enabled())

	require.NoError(t, d.SetEnabled(ctx, true))
	require.True(t, enabled())
	d.Page().MustReload().MustWaitLoad()
	require.True(t, enabled(), "a reloaded document should start enabled")

	require.NoError(t, d.SetEnabled(ctx, false))
	d.Page().MustReload().MustWaitLoad()
	require.False(t, enabled(), "a reloaded document should start disabled")
}
