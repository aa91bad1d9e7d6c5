package coordinator

import (
	"context"

	"github.com/kalambet/steptrace/internal/model"
)

// Store abstracts the durable episode store.
type Store interface {
	GetSettings() (model.Settings, error)
	SaveSettings(st model.Settings) error
	SaveEpisode(ep model.Episode) error
	GetEpisode(id string) (model.Episode, error)
	DeleteEpisode(id string) error
	PutStep(st model.Step) error
	FinalizeStep(episodeID string, stepNumber int, post model.Observation, derived model.Derived) error
	ListSteps(episodeID string) ([]model.Step, error)
}

// Page is the page context the recorder talks to.
type Page interface {
	// SetEnabled toggles event emission in the page.
	SetEnabled(ctx context.Context, enabled bool) error
	// CapturePost observes the page after an action.
	CapturePost(ctx context.Context, captureDOMState bool) (model.Observation, error)
	// EnsureCaptureScript installs the page hook if it is missing.
	EnsureCaptureScript(ctx context.Context) error
}

// Screenshotter captures the visible part of the active tab as PNG.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// TabInfoProvider looks up the active tab and the browser.
type TabInfoProvider interface {
	ActiveTab(ctx context.Context) (model.TabInfo, error)
	BrowserInfo(ctx context.Context) (model.BrowserInfo, error)
}
