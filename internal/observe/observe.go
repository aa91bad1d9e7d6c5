// Package observe assembles page observations from a document snapshot.
package observe

import (
	"golang.org/x/net/html"

	"github.com/kalambet/steptrace/internal/describe"
	"github.com/kalambet/steptrace/internal/dom"
	"github.com/kalambet/steptrace/internal/model"
	"github.com/kalambet/steptrace/internal/redact"
	"github.com/kalambet/steptrace/internal/scan"
)

// Options control what Build captures.
type Options struct {
	// Target, when set, is attached as dom_state.interacted_element.
	Target          *html.Node
	CaptureDOMState bool
	ScanLimit       int
	Redact          *redact.Policy
}

// Build returns the observation of d. Without DOM capture the dom_state is the
// empty form; url and title are set only for the top-level frame.
func Build(d *dom.Document, opts Options) model.Observation {
	obs := model.Observation{
		DOMState:   model.EmptyDOMState(),
		PageInfo:   PageInfo(d),
		FrameURL:   d.FrameURL,
		IsTopFrame: d.IsTopFrame,
	}
	if opts.CaptureDOMState {
		obs.DOMState = scan.Scan(d, opts.ScanLimit, opts.Redact)
	}
	if opts.Target != nil {
		obs.DOMState.InteractedElement = describe.Ref(d, opts.Target, opts.Redact)
	}
	if d.IsTopFrame {
		obs.URL = d.URL
		obs.Title = d.Title
	}
	return obs
}

// PageInfo derives viewport and full-page geometry. Pixel counts around the
// viewport never go below zero.
func PageInfo(d *dom.Document) model.PageInfo {
	v := d.Viewport
	pw, ph := d.Extent.PageSize()
	return model.PageInfo{
		ViewportWidth:  v.Width,
		ViewportHeight: v.Height,
		PageWidth:      pw,
		PageHeight:     ph,
		ScrollX:        v.ScrollX,
		ScrollY:        v.ScrollY,
		PixelsAbove:    max(0, v.ScrollY),
		PixelsBelow:    max(0, ph-(v.ScrollY+v.Height)),
		PixelsLeft:     max(0, v.ScrollX),
		PixelsRight:    max(0, pw-(v.ScrollX+v.Width)),
	}
}
