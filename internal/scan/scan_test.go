package scan

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/steptrace/internal/dom"
	"github.com/kalambet/steptrace/internal/redact"
)

func parse(t *testing.T, markup string) *dom.Document {
	t.Helper()
	d, err := dom.ParseHTML(strings.NewReader(markup), dom.ParseOptions{
		URL:      "https://example.test/",
		Viewport: dom.Viewport{Width: 800, Height: 600},
	})
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}
	return d
}

func TestScanInViewportRanksFirst(t *testing.T) {
	d := parse(t, `<body>
		<button style="left:0;top:2000px;width:100px;height:30px">Below</button>
		<button style="left:0;top:100px;width:100px;height:30px">Above</button>
	</body>`)

	got := Scan(d, DefaultLimit, nil)
	want := "[1] Above\n[2] Below"
	if got.LLMRepresentation != want {
		t.Errorf("LLMRepresentation = %q, want %q", got.LLMRepresentation, want)
	}
	if !got.SelectorMap["1"].InViewport || got.SelectorMap["2"].InViewport {
		t.Errorf("in_viewport flags wrong: %+v", got.SelectorMap)
	}
	if got.ElementsCount != 2 {
		t.Errorf("ElementsCount = %d, want 2", got.ElementsCount)
	}
}

func TestScanOrdersByTopThenLeft(t *testing.T) {
	d := parse(t, `<body>
		<a href="/c" style="left:300px;top:50px;width:50px;height:20px">C</a>
		<a href="/b" style="left:10px;top:50px;width:50px;height:20px">B</a>
		<a href="/a" style="left:500px;top:10px;width:50px;height:20px">A</a>
	</body>`)
	if got := Scan(d, 0, nil).LLMRepresentation; got != "[1] A\n[2] B\n[3] C" {
		t.Errorf("LLMRepresentation = %q", got)
	}
}

func TestScanFilters(t *testing.T) {
	d := parse(t, `<body>
		<a style="left:0;top:0;width:50px;height:20px">no href</a>
		<a href="/" style="display:none;width:50px;height:20px">hidden</a>
		<button style="left:0;top:0;width:50px;height:20px;opacity:0">transparent</button>
		<div contenteditable="false" style="left:0;top:0;width:50px;height:20px">locked</div>
		<div contenteditable style="left:0;top:40px;width:200px;height:80px">Notes</div>
		<div role="link" style="left:0;top:200px;width:50px;height:20px">More</div>
		<input type="text" placeholder="Query" style="left:0;top:300px;width:50px;height:20px">
	</body>`)
	got := Scan(d, 10, nil)
	want := "[1] Notes\n[2] More\n[3] Query"
	if got.LLMRepresentation != want {
		t.Errorf("LLMRepresentation = %q, want %q", got.LLMRepresentation, want)
	}
}

func TestScanLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<body>")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, `<button style="left:0;top:%dpx;width:40px;height:10px">b%d</button>`, 1000-i*10, i)
	}
	sb.WriteString("</body>")
	d := parse(t, sb.String())

	got := Scan(d, 5, nil)
	if got.ElementsCount != 5 || len(got.SelectorMap) != 5 {
		t.Fatalf("ElementsCount = %d, map = %d, want 5", got.ElementsCount, len(got.SelectorMap))
	}
	// Only the first 2×limit candidates in document order are ranked.
	if first := got.SelectorMap["1"].Label; first != "b9" {
		t.Errorf("first label = %q, want b9", first)
	}
}

func TestScanDeterministic(t *testing.T) {
	markup := `<body>
		<form><input name="q" style="left:10px;top:10px;width:200px;height:20px"><button style="left:220px;top:10px;width:60px;height:20px">Search</button></form>
		<nav><a href="/1" style="left:0;top:100px;width:40px;height:20px">One</a><a href="/2" style="left:50px;top:100px;width:40px;height:20px">Two</a></nav>
	</body>`
	first := Scan(parse(t, markup), DefaultLimit, nil)
	for i := 0; i < 3; i++ {
		again := Scan(parse(t, markup), DefaultLimit, nil)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("scan not deterministic (-first +again):\n%s", diff)
		}
	}
	if !strings.Contains(first.LLMRepresentation, "] Search") {
		t.Errorf("LLMRepresentation missing Search: %q", first.LLMRepresentation)
	}
}

func TestScanIncludesOpenShadowRoots(t *testing.T) {
	d := parse(t, `<body>
		<button style="left:0;top:10px;width:80px;height:20px">Home</button>
		<cart-panel style="left:0;top:40px;width:300px;height:100px">
			<template shadowrootmode="open">
				<button style="left:10px;top:50px;width:80px;height:20px">Checkout</button>
			</template>
		</cart-panel>
	</body>`)

	got := Scan(d, DefaultLimit, nil)
	if want := "[1] Home\n[2] Checkout"; got.LLMRepresentation != want {
		t.Errorf("LLMRepresentation = %q, want %q", got.LLMRepresentation, want)
	}
}

func TestScanNeverLabelsWithSensitiveValue(t *testing.T) {
	d := parse(t, `<body>
		<input name="passcode" value="hunter2secret" style="left:0;top:10px;width:80px;height:20px">
		<input autocomplete="cc-csc" value="987" style="left:0;top:40px;width:80px;height:20px">
	</body>`)

	got := Scan(d, DefaultLimit, redact.New(nil))
	if want := "[1] input\n[2] input"; got.LLMRepresentation != want {
		t.Errorf("LLMRepresentation = %q, want %q", got.LLMRepresentation, want)
	}
	for idx, desc := range got.SelectorMap {
		if desc.Label != "input" {
			t.Errorf("selector_map[%s].label = %q", idx, desc.Label)
		}
	}
}
