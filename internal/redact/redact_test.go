package redact

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/kalambet/steptrace/internal/dom"
)

func field(t *testing.T, markup string) *html.Node {
	t.Helper()
	d, err := dom.ParseHTML(strings.NewReader("<body>"+markup+"</body>"), dom.ParseOptions{})
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}
	found := d.Query("body > *")
	if len(found) == 0 {
		t.Fatal("no field in markup")
	}
	return found[0]
}

func TestSensitiveField(t *testing.T) {
	p := New([]string{" SSN ", ""})
	tests := []struct {
		markup string
		want   bool
	}{
		{`<input id="f" type="password">`, true},
		{`<input id="f" type="PASSWORD">`, true},
		{`<input id="f" name="user_passcode">`, true},
		{`<input id="f" name="Password2">`, true},
		{`<input id="f" autocomplete="cc-csc">`, true},
		{`<input id="f" autocomplete="cc-number">`, true},
		{`<textarea id="f" name="passcode_hint"></textarea>`, true},
		{`<input id="f" name="tax_ssn">`, true},
		{`<input id="user_ssn" name="x">`, true},
		{`<input id="f" name="q" autocomplete="email">`, false},
		{`<div id="f" name="password"></div>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.markup, func(t *testing.T) {
			if got := p.SensitiveField(field(t, tt.markup)); got != tt.want {
				t.Errorf("SensitiveField = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNilPolicyUsesBuiltins(t *testing.T) {
	var p *Policy
	if !p.SensitiveField(field(t, `<input id="f" name="passcode">`)) {
		t.Error("nil policy missed a passcode field")
	}
	if p.SensitiveField(field(t, `<input id="f" name="tax_ssn">`)) {
		t.Error("nil policy applied extra names")
	}
}

func TestExposable(t *testing.T) {
	p := New(nil)
	plain := field(t, `<input id="f" name="note">`)
	if !p.Exposable(plain, "blue shoes") {
		t.Error("plain value should be exposable")
	}
	if p.Exposable(plain, "card 4111-1111-1111-1111") {
		t.Error("card number should not be exposable")
	}
	if p.Exposable(field(t, `<input id="f" autocomplete="cc-csc">`), "987") {
		t.Error("security code should not be exposable")
	}
}

func TestContainsCardNumber(t *testing.T) {
	tests := map[string]bool{
		"4111111111111111":           true,
		"pay 4111 1111 1111 1111 ok": true,
		"5500-0000-0000-0004":        true,
		"4111111111111112":           false,
		"order 1234567":              false,
		"":                           false,
	}
	for s, want := range tests {
		if got := ContainsCardNumber(s); got != want {
			t.Errorf("ContainsCardNumber(%q) = %v, want %v", s, got, want)
		}
	}
}
