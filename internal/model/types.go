// Package model holds the episode data types shared by the capture pipeline,
// the coordinator, storage and export.
package model

import "time"

// RedactedValue replaces the value of sensitive fields in input actions.
const RedactedValue = "<redacted>"

// Options are the per-recording capture switches.
type Options struct {
	CaptureScreenshots bool `json:"captureScreenshots"`
	CaptureDOMState    bool `json:"captureDomState"`
}

// OptionsPatch carries a partial options update. Nil fields are left as-is.
type OptionsPatch struct {
	CaptureScreenshots *bool `json:"captureScreenshots,omitempty"`
	CaptureDOMState    *bool `json:"captureDomState,omitempty"`
}

// Apply merges the non-nil fields of p over o.
func (o Options) Apply(p *OptionsPatch) Options {
	if p == nil {
		return o
	}
	if p.CaptureScreenshots != nil {
		o.CaptureScreenshots = *p.CaptureScreenshots
	}
	if p.CaptureDOMState != nil {
		o.CaptureDOMState = *p.CaptureDOMState
	}
	return o
}

// DefaultOptions returns the options a fresh recorder starts with.
func DefaultOptions() Options {
	return Options{CaptureScreenshots: true, CaptureDOMState: true}
}

// Settings is the single live recorder state record.
type Settings struct {
	IsRecording bool       `json:"isRecording"`
	EpisodeID   *string    `json:"episodeId"`
	StartedAt   *time.Time `json:"startedAt"`
	StepCount   int        `json:"stepCount"`
	LastMessage string     `json:"lastMessage"`
	Options     Options    `json:"options"`
}

// DefaultSettings returns the reset, non-recording state.
func DefaultSettings() Settings {
	return Settings{
		LastMessage: "Idle.",
		Options:     DefaultOptions(),
	}
}

// ActiveEpisode returns the episode id, or "" when none is set.
func (s Settings) ActiveEpisode() string {
	if s.EpisodeID == nil {
		return ""
	}
	return *s.EpisodeID
}

// BrowserInfo describes the browser an episode was recorded in.
type BrowserInfo struct {
	UserAgent       string `json:"user_agent,omitempty"`
	Product         string `json:"product,omitempty"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

// OriginInfo describes the tab that was active when recording started.
type OriginInfo struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
	TabID string `json:"tab_id,omitempty"`
}

// Episode is the immutable metadata of one recorded session.
type Episode struct {
	EpisodeID string      `json:"episode_id"`
	CreatedAt time.Time   `json:"created_at"`
	Browser   BrowserInfo `json:"browser"`
	Origin    OriginInfo  `json:"origin"`
	Options   Options     `json:"options"`
}

// Step is one recorded action with its observations. Post and Derived stay
// nil while the step is pending.
type Step struct {
	StepID     string       `json:"step_id"`
	EpisodeID  string       `json:"-"`
	StepNumber int          `json:"step_number"`
	TMs        int64        `json:"t_ms"`
	TISO       string       `json:"t_iso"`
	Pre        Observation  `json:"pre"`
	Action     Action       `json:"action"`
	Post       *Observation `json:"post"`
	Derived    *Derived     `json:"derived"`
}

// Finalized reports whether the post-observation has been merged in.
func (s Step) Finalized() bool {
	return s.Post != nil
}

// FieldChange is one entry of a derived diff.
type FieldChange struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// Derived holds the observation fields that changed across a step. Unchanged
// fields are absent.
type Derived struct {
	Changes map[string]FieldChange `json:"changes"`
}

// TabInfo is the authoritative tab metadata overlaid onto observations.
type TabInfo struct {
	ID    string `json:"id,omitempty"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Timestamps are stamped by the page side at the moment of the action.
type Timestamps struct {
	TMs  int64  `json:"t_ms"`
	TISO string `json:"t_iso"`
}

// NewTimestamps stamps t in both forms.
func NewTimestamps(t time.Time) Timestamps {
	return Timestamps{TMs: t.UnixMilli(), TISO: t.UTC().Format(time.RFC3339Nano)}
}

// ActionEvent is the message the capture side sends for every recorded action.
type ActionEvent struct {
	Kind       string      `json:"kind"`
	Action     Action      `json:"action"`
	Pre        Observation `json:"pre"`
	Timestamps Timestamps  `json:"timestamps"`
}

// KindStep is the only action event kind.
const KindStep = "step"
