package dom

import (
	"errors"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Snapshot is the serialized page state produced by the page hook. A
// geometry-only snapshot carries page info, viewport and extent but no tree.
type Snapshot struct {
	URL          string        `json:"url"`
	Title        string        `json:"title"`
	FrameURL     string        `json:"frame_url"`
	IsTopFrame   bool          `json:"is_top_frame"`
	Viewport     Viewport      `json:"viewport"`
	Extent       Extent        `json:"extent"`
	GeometryOnly bool          `json:"geometry_only,omitempty"`
	Root         *SnapshotNode `json:"root"`
}

// SnapshotNode is one serialized DOM node. Ids are stable for the lifetime
// of the page, so they can be matched across snapshots.
type SnapshotNode struct {
	ID       int               `json:"id,omitempty"`
	Kind     string            `json:"kind"`
	Tag      string            `json:"tag,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Rect     *Rect             `json:"rect,omitempty"`
	Style    *Style            `json:"style,omitempty"`
	Value    *string           `json:"value,omitempty"`
	Children []*SnapshotNode   `json:"children,omitempty"`
	Shadow   []*SnapshotNode   `json:"shadow,omitempty"`
}

// Snapshot node kinds.
const (
	KindElement = "element"
	KindText    = "text"
)

// ErrEmptySnapshot is returned when a full snapshot carries no root element.
var ErrEmptySnapshot = errors.New("snapshot has no root element")

// FromSnapshot rebuilds a Document from a page snapshot. A geometry-only
// snapshot yields a document with no elements.
func FromSnapshot(s Snapshot) (*Document, error) {
	if s.Root == nil && !s.GeometryOnly {
		return nil, ErrEmptySnapshot
	}
	root := &html.Node{Type: html.DocumentNode}
	d := newDocument(root)
	d.URL = s.URL
	d.Title = s.Title
	d.FrameURL = s.FrameURL
	if d.FrameURL == "" {
		d.FrameURL = s.URL
	}
	d.IsTopFrame = s.IsTopFrame
	d.Viewport = s.Viewport
	d.Extent = s.Extent

	if n := d.build(s.Root); n != nil {
		root.AppendChild(n)
	}
	return d, nil
}

func (d *Document) build(sn *SnapshotNode) *html.Node {
	if sn == nil {
		return nil
	}
	switch sn.Kind {
	case KindText:
		return &html.Node{Type: html.TextNode, Data: sn.Text}
	case KindElement, "":
	default:
		return nil
	}

	tag := strings.ToLower(sn.Tag)
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	keys := make([]string, 0, len(sn.Attrs))
	for k := range sn.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: sn.Attrs[k]})
	}

	info := d.infoFor(n)
	if sn.ID != 0 {
		d.register(n, sn.ID)
	}
	if sn.Rect != nil {
		info.rect = *sn.Rect
	}
	if sn.Style != nil {
		info.style = *sn.Style
	}
	if sn.Value != nil {
		v := *sn.Value
		info.value = &v
	}

	for _, c := range sn.Children {
		if cn := d.build(c); cn != nil {
			n.AppendChild(cn)
		}
	}
	if len(sn.Shadow) > 0 {
		frag := &html.Node{Type: html.DocumentNode}
		for _, c := range sn.Shadow {
			if cn := d.build(c); cn != nil {
				frag.AppendChild(cn)
			}
		}
		d.shadow[n] = frag
	}
	return n
}
