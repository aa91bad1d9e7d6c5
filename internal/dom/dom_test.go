package dom

import (
	"strings"
	"testing"
)

func parse(t *testing.T, markup string, opts ParseOptions) *Document {
	t.Helper()
	d, err := ParseHTML(strings.NewReader(markup), opts)
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}
	return d
}

func TestParseHTMLLayout(t *testing.T) {
	d := parse(t, `<html><head><title> Sign  in </title></head><body>
		<button id="go" style="left: 10px; top: 900px; width: 80px; height: 20px">Go</button>
		<div style="display:none"><a id="inner" href="/x" style="left:0;top:0;width:10px;height:10px">x</a></div>
		<div style="visibility: hidden"><span id="ghost">g</span></div>
	</body></html>`, ParseOptions{URL: "https://example.test/", Viewport: Viewport{Width: 800, Height: 600, ScrollY: 500}})

	if d.Title != "Sign in" {
		t.Errorf("Title = %q, want %q", d.Title, "Sign in")
	}
	if d.FrameURL != "https://example.test/" || !d.IsTopFrame {
		t.Errorf("frame = %q top=%v", d.FrameURL, d.IsTopFrame)
	}

	btn := d.GetElementByID("go")
	if btn == nil {
		t.Fatal("button not found")
	}
	want := Rect{X: 10, Y: 400, Width: 80, Height: 20}
	if got := d.Rect(btn); got != want {
		t.Errorf("Rect = %+v, want %+v", got, want)
	}

	if got := d.Rect(d.GetElementByID("inner")); got != (Rect{}) {
		t.Errorf("Rect under display:none = %+v, want zero", got)
	}
	if got := d.Style(d.GetElementByID("ghost")).Visibility; got != "hidden" {
		t.Errorf("inherited visibility = %q, want hidden", got)
	}

	w, h := d.Extent.PageSize()
	if w != 800 || h != 920 {
		t.Errorf("PageSize = %v x %v, want 800 x 920", w, h)
	}
}

func TestParseHTMLShadowRoot(t *testing.T) {
	d := parse(t, `<body><my-widget id="host"><template shadowrootmode="open"><button class="inner">Press</button></template></my-widget></body>`, ParseOptions{})

	host := d.GetElementByID("host")
	sr, ok := d.ShadowRoot(host)
	if !ok {
		t.Fatal("shadow root not attached")
	}
	if n := len(d.Query("button")); n != 0 {
		t.Errorf("document query found %d buttons, want 0", n)
	}
	btns := d.QueryIn(sr, "button.inner")
	if len(btns) != 1 {
		t.Fatalf("shadow query found %d buttons, want 1", len(btns))
	}
	if RootOf(btns[0]) != sr {
		t.Error("RootOf(shadow button) is not the shadow root")
	}
	if h, ok := d.Host(sr); !ok || h != host {
		t.Error("Host(shadow root) did not return the host")
	}
	if d.NodeID(btns[0]) == 0 {
		t.Error("shadow content has no node id")
	}
}

func TestValue(t *testing.T) {
	d := parse(t, `<body>
		<input id="a" value="default">
		<textarea id="b">notes</textarea>
		<select id="c"><option value="1">One</option><option selected>Two</option></select>
	</body>`, ParseOptions{})

	a := d.GetElementByID("a")
	if got := d.Value(a); got != "default" {
		t.Errorf("input Value = %q", got)
	}
	d.SetValue(a, "typed")
	if got := d.Value(a); got != "typed" {
		t.Errorf("input Value after SetValue = %q", got)
	}
	if got := d.Value(d.GetElementByID("b")); got != "notes" {
		t.Errorf("textarea Value = %q", got)
	}
	if got := d.Value(d.GetElementByID("c")); got != "Two" {
		t.Errorf("select Value = %q", got)
	}
}

func TestXPath(t *testing.T) {
	d := parse(t, `<body><div><p>a</p><p id="second">b</p></div></body>`, ParseOptions{})
	nodes, err := d.XPath(`/html[1]/body[1]/div[1]/p[2]`)
	if err != nil {
		t.Fatalf("XPath: %v", err)
	}
	if len(nodes) != 1 || nodes[0] != d.GetElementByID("second") {
		t.Errorf("XPath matched %d nodes, want the second paragraph", len(nodes))
	}
}

func TestFromSnapshot(t *testing.T) {
	val := "hello"
	s := Snapshot{
		URL:        "https://example.test/form",
		Title:      "Form",
		IsTopFrame: true,
		Viewport:   Viewport{Width: 1024, Height: 768},
		Root: &SnapshotNode{ID: 1, Kind: KindElement, Tag: "HTML", Children: []*SnapshotNode{
			{ID: 2, Kind: KindElement, Tag: "body", Children: []*SnapshotNode{
				{ID: 3, Kind: KindElement, Tag: "input", Attrs: map[string]string{"type": "text", "name": "q"},
					Rect: &Rect{X: 5, Y: 6, Width: 100, Height: 20}, Style: &Style{Display: "inline-block", Visibility: "visible", Opacity: "1"}, Value: &val},
				{Kind: KindText, Text: "label"},
				{ID: 4, Kind: KindElement, Tag: "x-card", Shadow: []*SnapshotNode{
					{ID: 5, Kind: KindElement, Tag: "button", Children: []*SnapshotNode{{Kind: KindText, Text: "OK"}}},
				}},
			}},
		}},
	}

	d, err := FromSnapshot(s)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	in, ok := d.NodeByID(3)
	if !ok {
		t.Fatal("node 3 missing")
	}
	if Tag(in) != "input" || d.Value(in) != "hello" {
		t.Errorf("input tag=%q value=%q", Tag(in), d.Value(in))
	}
	if got := d.Rect(in); got.Width != 100 {
		t.Errorf("Rect = %+v", got)
	}
	if len(d.Query(`input[name="q"]`)) != 1 {
		t.Error("CSS query did not match the decoded input")
	}
	host, _ := d.NodeByID(4)
	sr, ok := d.ShadowRoot(host)
	if !ok || len(d.QueryIn(sr, "button")) != 1 {
		t.Error("shadow content not decoded")
	}
	if d.Title != "Form" || d.FrameURL != s.URL {
		t.Errorf("title=%q frame=%q", d.Title, d.FrameURL)
	}
}

func TestFromSnapshotEmpty(t *testing.T) {
	if _, err := FromSnapshot(Snapshot{}); err != ErrEmptySnapshot {
		t.Errorf("err = %v, want ErrEmptySnapshot", err)
	}
}

func TestFromSnapshotGeometryOnly(t *testing.T) {
	d, err := FromSnapshot(Snapshot{
		URL:          "https://example.test/feed",
		Title:        "Feed",
		IsTopFrame:   true,
		Viewport:     Viewport{Width: 800, Height: 600, ScrollY: 1200},
		Extent:       Extent{DocScrollHeight: 5000},
		GeometryOnly: true,
	})
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if d.Viewport.ScrollY != 1200 || d.Extent.DocScrollHeight != 5000 || d.FrameURL != "https://example.test/feed" {
		t.Errorf("document = %+v", d)
	}
	if n := len(d.Query("*")); n != 0 {
		t.Errorf("geometry-only document has %d elements", n)
	}
}
