package overlay

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"pageoverlay/internal/tree"
)

type IndicatorKind string

const (
	IndicatorLoading IndicatorKind = "loading"
	IndicatorError   IndicatorKind = "error"
)

// Indicators renders loading and error state inside an overlay. The engine decides
// when and where; implementations decide what it looks like.
type Indicators interface {
	Mount(overlay *html.Node, kind IndicatorKind, cause error)
	Unmount(overlay *html.Node, kind IndicatorKind)
}

// Decorator styles a translated-content node. scope is the nearest shadow root, or the
// document head, and may be nil. Undecorate is called once the last overlay of a scope
// is gone and removes whatever Decorate added to it.
type Decorator interface {
	Decorate(content, scope *html.Node)
	Undecorate(scope *html.Node)
}

// MarkupIndicators renders indicators as marker spans.
type MarkupIndicators struct{}

func (MarkupIndicators) Mount(overlay *html.Node, kind IndicatorKind, cause error) {
	n := tree.NewElement(atom.Span,
		"class", "po-indicator po-indicator-"+string(kind),
		AttrIndicator, string(kind),
	)
	switch kind {
	case IndicatorLoading:
		tree.SetAttr(n, "aria-busy", "true")
	case IndicatorError:
		tree.SetAttr(n, "role", "alert")
		if cause != nil {
			tree.SetAttr(n, "title", cause.Error())
		}
	}
	overlay.AppendChild(n)
}

func (MarkupIndicators) Unmount(overlay *html.Node, kind IndicatorKind) {
	for c := overlay.FirstChild; c != nil; {
		next := c.NextSibling
		if v, ok := tree.Attr(c, AttrIndicator); ok && v == string(kind) {
			overlay.RemoveChild(c)
		}
		c = next
	}
}

// IndicatorOf returns the kind of indicator mounted in overlay, if any.
func IndicatorOf(overlay *html.Node) (IndicatorKind, bool) {
	for c := overlay.FirstChild; c != nil; c = c.NextSibling {
		if v, ok := tree.Attr(c, AttrIndicator); ok {
			return IndicatorKind(v), true
		}
	}
	return "", false
}

// StyleDecorator tags content with a preset class and injects CustomCSS once per scope.
type StyleDecorator struct {
	Preset string
	CSS    string
}

const attrStyle = "data-po-style"

func (d StyleDecorator) Decorate(content, scope *html.Node) {
	if d.Preset != "" {
		class, _ := tree.Attr(content, "class")
		tree.SetAttr(content, "class", class+" po-preset-"+d.Preset)
	}
	if d.CSS == "" || scope == nil {
		return
	}
	for c := scope.FirstChild; c != nil; c = c.NextSibling {
		if _, ok := tree.Attr(c, attrStyle); ok {
			return
		}
	}
	style := tree.NewElement(atom.Style, attrStyle, "")
	style.AppendChild(tree.NewText(d.CSS))
	if tree.IsShadowRoot(scope) {
		scope.InsertBefore(style, scope.FirstChild)
		return
	}
	scope.AppendChild(style)
}

func (StyleDecorator) Undecorate(scope *html.Node) {
	if scope == nil {
		return
	}
	for c := scope.FirstChild; c != nil; {
		next := c.NextSibling
		if _, ok := tree.Attr(c, attrStyle); ok {
			scope.RemoveChild(c)
		}
		c = next
	}
}

// Content returns the translated-content node of overlay, if any.
func Content(overlay *html.Node) *html.Node {
	for c := overlay.FirstChild; c != nil; c = c.NextSibling {
		if tree.HasClass(c, ClassContent) {
			return c
		}
	}
	return nil
}
