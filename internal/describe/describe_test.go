package describe

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/kalambet/steptrace/internal/dom"
	"github.com/kalambet/steptrace/internal/redact"
)

func parse(t *testing.T, markup string) *dom.Document {
	t.Helper()
	d, err := dom.ParseHTML(strings.NewReader(markup), dom.ParseOptions{URL: "https://example.test/"})
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}
	return d
}

func byID(t *testing.T, d *dom.Document, id string) *html.Node {
	t.Helper()
	n := d.GetElementByID(id)
	if n == nil {
		t.Fatalf("element #%s not found", id)
	}
	return n
}

func TestNameResolutionOrder(t *testing.T) {
	d := parse(t, `<body>
		<button id="aria" aria-label=" Close  dialog " title="ignored">X</button>
		<span id="l1">First</span><span id="l2">Name</span>
		<input id="lb" aria-labelledby="l1 missing l2">
		<label for="email">Email address</label><input id="email" type="email" placeholder="you@example.com">
		<label>Remember <input id="wrapped" type="checkbox"></label>
		<img id="img" alt="Logo">
		<a id="titled" href="/" title="Home"></a>
		<input id="ph" type="search" placeholder="Search docs">
		<input id="val" value="prefilled">
		<input id="pw" type="password" value="hunter2">
		<div id="text" role="button">  Save
			changes </div>
		<div id="empty" role="button"></div>
	</body>`)

	tests := []struct {
		id   string
		want string
	}{
		{"aria", "Close dialog"},
		{"lb", "First Name"},
		{"email", "Email address"},
		{"wrapped", "Remember"},
		{"img", "Logo"},
		{"titled", "Home"},
		{"ph", "Search docs"},
		{"val", "prefilled"},
		{"pw", "input"},
		{"text", "Save changes"},
		{"empty", "div"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := Name(d, byID(t, d, tt.id), nil); got != tt.want {
				t.Errorf("Name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNameTruncatesText(t *testing.T) {
	long := strings.Repeat("a", 300)
	d := parse(t, `<body><a id="x" href="/">`+long+`</a></body>`)
	if got := Name(d, byID(t, d, "x"), nil); len(got) != 120 {
		t.Errorf("len(Name) = %d, want 120", len(got))
	}
}

func TestNameNeverUsesSensitiveValue(t *testing.T) {
	d := parse(t, `<body>
		<input id="code" name="passcode" value="hunter2secret">
		<input id="csc" autocomplete="cc-csc" value="987">
		<input id="card" name="note" value="4111 1111 1111 1111">
		<input id="ssn" name="tax_ssn" value="123-45-6789">
		<textarea id="secret" name="passcode_hint">opensesame</textarea>
		<div id="wrap" role="button">Hint <textarea name="passcode">opensesame</textarea></div>
	</body>`)
	p := redact.New([]string{"ssn"})

	tests := []struct {
		id, want string
	}{
		{"code", "input"},
		{"csc", "input"},
		{"card", "input"},
		{"ssn", "input"},
		{"secret", "textarea"},
		{"wrap", "Hint"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := Name(d, byID(t, d, tt.id), p); got != tt.want {
				t.Errorf("Name = %q, want %q", got, tt.want)
			}
		})
	}

	ref := Ref(d, byID(t, d, "code"), p)
	if strings.Contains(ref.DOM.Name+ref.DOM.NearbyText, "hunter2") {
		t.Errorf("ref leaks value: %+v", ref.DOM)
	}
	if got := Name(d, byID(t, d, "ssn"), nil); got != "123-45-6789" {
		t.Errorf("without extra names Name = %q", got)
	}
}

func TestCSSSelectorID(t *testing.T) {
	d := parse(t, `<body><button id="1st:go">Go</button></body>`)
	sel, unique := CSSSelector(d, byID(t, d, "1st:go"))
	if sel != `#\31 st\:go` {
		t.Errorf("selector = %q", sel)
	}
	if !unique {
		t.Error("escaped id selector should match exactly one element")
	}
}

func TestCSSSelectorUniquePrefix(t *testing.T) {
	d := parse(t, `<body>
		<form><button name="submit" class="btn primary large">Go</button></form>
		<div class="toolbar"><button>A</button><button>B</button></div>
		<nav><button>C</button><button>D</button></nav>
	</body>`)

	form := d.Query("form button")[0]
	sel, unique := CSSSelector(d, form)
	if sel != `button[name="submit"].btn.primary` || !unique {
		t.Errorf("selector = %q unique=%v", sel, unique)
	}

	second := d.Query("div.toolbar button")[1]
	sel, unique = CSSSelector(d, second)
	if sel != `div.toolbar > button:nth-of-type(2)` || !unique {
		t.Errorf("selector = %q unique=%v", sel, unique)
	}
	if got := d.Query(sel); len(got) != 1 || got[0] != second {
		t.Error("selector does not resolve back to the element")
	}
}

func TestCSSSelectorFallbackNotUnique(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<body>")
	for i := 0; i < 2; i++ {
		sb.WriteString(`<section><div><div><div><div><div><div><span>x</span></div></div></div></div></div></div></section>`)
	}
	sb.WriteString("</body>")
	d := parse(t, sb.String())

	spans := d.Query("span")
	sel, unique := CSSSelector(d, spans[0])
	if unique {
		t.Errorf("selector %q reported unique", sel)
	}
	if got := strings.Count(sel, " > ") + 1; got != 7 {
		t.Errorf("fallback has %d segments, want 7: %q", got, sel)
	}
}

func TestXPath(t *testing.T) {
	d := parse(t, `<body><div><p>a</p><p><b>b</b></p></div><ul id="list"><li>1</li><li><a>2</a></li></ul></body>`)

	b := d.Query("b")[0]
	if got := XPath(b); got != "/html[1]/body[1]/div[1]/p[2]/b[1]" {
		t.Errorf("XPath = %q", got)
	}
	nodes, err := d.XPath(XPath(b))
	if err != nil || len(nodes) != 1 || nodes[0] != b {
		t.Errorf("XPath does not resolve back: %v", err)
	}

	a := d.Query("a")[0]
	if got := XPath(a); got != `//*[@id="list"]/li[2]/a[1]` {
		t.Errorf("XPath = %q", got)
	}
	if got := XPath(byID(t, d, "list")); got != `//*[@id="list"]` {
		t.Errorf("XPath(id) = %q", got)
	}
}

func TestAttrs(t *testing.T) {
	d := parse(t, `<body><input id="q" name="q" value="secret" data-testid="search" title="`+strings.Repeat("t", 201)+`"></body>`)
	got := Attrs(byID(t, d, "q"))
	if _, ok := got["value"]; ok {
		t.Error("value attribute must not be captured")
	}
	if _, ok := got["title"]; ok {
		t.Error("over-long title must be dropped")
	}
	if got["data-testid"] != "search" || got["name"] != "q" || got["id"] != "q" {
		t.Errorf("Attrs = %v", got)
	}
}

func TestVisible(t *testing.T) {
	d := parse(t, `<body>
		<button id="ok" style="left:0;top:0;width:10px;height:10px">a</button>
		<button id="offscreen" style="left:0;top:5000px;width:10px;height:10px">b</button>
		<button id="transparent" style="opacity:0;width:10px;height:10px">c</button>
		<button id="hidden" style="visibility:hidden;width:10px;height:10px">d</button>
		<button id="none" style="display:none;width:10px;height:10px">e</button>
		<button id="zero" style="width:0;height:10px">f</button>
	</body>`)
	want := map[string]bool{"ok": true, "offscreen": true, "transparent": false, "hidden": false, "none": false, "zero": false}
	for id, w := range want {
		if got := Visible(d, byID(t, d, id)); got != w {
			t.Errorf("Visible(#%s) = %v, want %v", id, got, w)
		}
	}
}

func TestRef(t *testing.T) {
	d := parse(t, `<body><div><p>Search the catalog <button id="go" style="left:5px;top:6px;width:40px;height:20px">Go</button></p></div></body>`)
	ref := Ref(d, byID(t, d, "go"), nil)
	if ref == nil {
		t.Fatal("Ref returned nil")
	}
	if ref.DOM.Name != "Go" || ref.DOM.Tag != "button" {
		t.Errorf("DOM = %+v", ref.DOM)
	}
	if ref.DOM.NearbyText != "Search the catalog Go" {
		t.Errorf("NearbyText = %q", ref.DOM.NearbyText)
	}
	if ref.Layout.BBox.Width != 40 || ref.Layout.Viewport.Width != 1280 {
		t.Errorf("Layout = %+v", ref.Layout)
	}
	if ref.Context.FrameURL != "https://example.test/" || !ref.Context.IsTopFrame {
		t.Errorf("Context = %+v", ref.Context)
	}
	if Ref(d, d.Root, nil) != nil {
		t.Error("Ref(document) should be nil")
	}
}

func TestDescribeDisabled(t *testing.T) {
	d := parse(t, `<body><button id="a" disabled>A</button><div id="b" role="button" aria-disabled="true">B</div><button id="c">C</button></body>`)
	for id, want := range map[string]bool{"a": true, "b": true, "c": false} {
		if got := Describe(d, byID(t, d, id), nil).Disabled; got != want {
			t.Errorf("Disabled(#%s) = %v, want %v", id, got, want)
		}
	}
	if Describe(d, d.Root, nil) != nil {
		t.Error("Describe(document) should be nil")
	}
}
