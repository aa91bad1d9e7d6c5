package dom

import "golang.org/x/net/html"

// Host returns the shadow host of a shadow root.
func (d *Document) Host(root *html.Node) (*html.Node, bool) {
	for h, r := range d.shadow {
		if r == root {
			return h, true
		}
	}
	return nil, false
}
