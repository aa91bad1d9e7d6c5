package model

// BBox is an element bounding box in viewport coordinates.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Selectors locate an element. Unique is false when the CSS selector is the
// best-effort fallback that matched more than one element.
type Selectors struct {
	CSS    string `json:"css"`
	XPath  string `json:"xpath,omitempty"`
	Unique bool   `json:"unique"`
}

// ElementDescriptor is one entry of the scanner's selector map.
type ElementDescriptor struct {
	Tag        string            `json:"tag"`
	Type       string            `json:"type,omitempty"`
	Role       string            `json:"role,omitempty"`
	Label      string            `json:"label"`
	Disabled   bool              `json:"disabled"`
	BBox       BBox              `json:"bbox"`
	Selectors  Selectors         `json:"selectors"`
	Attrs      map[string]string `json:"attrs"`
	InViewport bool              `json:"in_viewport"`
}

// Viewport is the visible window geometry and scroll offset.
type Viewport struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ScrollX float64 `json:"scroll_x"`
	ScrollY float64 `json:"scroll_y"`
}

// ElementRef identifies an acted-upon element in more detail than a descriptor.
type ElementRef struct {
	DOM     RefDOM     `json:"dom"`
	Layout  RefLayout  `json:"layout"`
	Context RefContext `json:"context"`
}

type RefDOM struct {
	Tag        string            `json:"tag"`
	Attrs      map[string]string `json:"attrs"`
	Selectors  Selectors         `json:"selectors"`
	NearbyText string            `json:"nearby_text,omitempty"`
	Name       string            `json:"name"`
	Role       string            `json:"role,omitempty"`
}

type RefLayout struct {
	BBox     BBox     `json:"bbox"`
	Viewport Viewport `json:"viewport"`
}

type RefContext struct {
	FrameURL   string `json:"frame_url"`
	IsTopFrame bool   `json:"is_top_frame"`
}

// DOMState is the compact page representation produced by the scanner.
type DOMState struct {
	LLMRepresentation string                       `json:"llm_representation"`
	SelectorMap       map[string]ElementDescriptor `json:"selector_map"`
	ElementsCount     int                          `json:"elements_count"`
	InteractedElement *ElementRef                  `json:"interacted_element,omitempty"`
}

// EmptyDOMState is the zero form used when DOM capture is disabled.
func EmptyDOMState() DOMState {
	return DOMState{SelectorMap: map[string]ElementDescriptor{}}
}

// PageInfo is viewport and full-page geometry.
type PageInfo struct {
	ViewportWidth  float64 `json:"viewport_width"`
	ViewportHeight float64 `json:"viewport_height"`
	PageWidth      float64 `json:"page_width"`
	PageHeight     float64 `json:"page_height"`
	ScrollX        float64 `json:"scroll_x"`
	ScrollY        float64 `json:"scroll_y"`
	PixelsAbove    float64 `json:"pixels_above"`
	PixelsBelow    float64 `json:"pixels_below"`
	PixelsLeft     float64 `json:"pixels_left"`
	PixelsRight    float64 `json:"pixels_right"`
}

// Observation is a snapshot of page state before or after an action.
type Observation struct {
	DOMState        DOMState `json:"dom_state"`
	URL             string   `json:"url,omitempty"`
	Title           string   `json:"title,omitempty"`
	Tab             *TabInfo `json:"tab,omitempty"`
	PageInfo        PageInfo `json:"page_info"`
	FrameURL        string   `json:"frame_url"`
	IsTopFrame      bool     `json:"is_top_frame"`
	Screenshot      string   `json:"screenshot,omitempty"`
	ScreenshotError string   `json:"screenshot_error,omitempty"`
	Error           string   `json:"error,omitempty"`
}
