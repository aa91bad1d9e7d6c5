// Package redact decides which form values may leave the page. The same
// policy guards recorded input values and every place an element's value
// could surface as its name.
package redact

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/kalambet/steptrace/internal/dom"
)

var (
	sensitiveNames        = []string{"password", "passcode"}
	sensitiveAutocomplete = []string{"cc-", "credit", "card"}

	// 13 to 19 digits, optionally grouped by spaces or dashes.
	cardNumberRe = regexp.MustCompile(`\b[0-9](?:[- ]?[0-9]){12,18}\b`)
)

// Policy is a sensitive-field policy. The nil Policy applies the built-in
// heuristics only.
type Policy struct {
	extraNames []string
}

// New returns a Policy that also treats fields whose name or id contains one
// of extraNames as sensitive.
func New(extraNames []string) *Policy {
	p := &Policy{}
	for _, s := range extraNames {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			p.extraNames = append(p.extraNames, s)
		}
	}
	return p
}

// SensitiveField reports whether the value of input or textarea n must not
// leave the page.
func (p *Policy) SensitiveField(n *html.Node) bool {
	switch dom.Tag(n) {
	case "input", "textarea":
	default:
		return false
	}
	if t, _ := dom.Attr(n, "type"); strings.EqualFold(strings.TrimSpace(t), "password") {
		return true
	}
	name, _ := dom.Attr(n, "name")
	name = strings.ToLower(name)
	if containsAny(name, sensitiveNames) {
		return true
	}
	ac, _ := dom.Attr(n, "autocomplete")
	if containsAny(strings.ToLower(ac), sensitiveAutocomplete) {
		return true
	}
	if p != nil && len(p.extraNames) > 0 {
		id, _ := dom.Attr(n, "id")
		if containsAny(name, p.extraNames) || containsAny(strings.ToLower(id), p.extraNames) {
			return true
		}
	}
	return false
}

// Exposable reports whether value, read from n, may be recorded in the clear.
func (p *Policy) Exposable(n *html.Node, value string) bool {
	return !p.SensitiveField(n) && !ContainsCardNumber(value)
}

// ContainsCardNumber reports whether s holds a Luhn-valid card number.
func ContainsCardNumber(s string) bool {
	for _, m := range cardNumberRe.FindAllString(s, -1) {
		if luhnValid(m) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	if s == "" {
		return false
	}
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func luhnValid(number string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)

	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if alt {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		alt = !alt
	}
	return sum%10 == 0
}
