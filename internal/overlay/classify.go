package overlay

import (
	"log/slog"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"pageoverlay/internal/logging"
	"pageoverlay/internal/siterules"
	"pageoverlay/internal/tree"
)

// Label is the set of classification flags of one element.
type Label uint8

const (
	// LabelBlock marks an element that is, or contains, a block unit.
	LabelBlock Label = 1 << iota
	// LabelInline marks an inline-laid-out element with text.
	LabelInline
	// LabelParagraph marks an element with inline or text children: a translation trigger.
	LabelParagraph
)

func (l Label) Has(f Label) bool {
	return l&f != 0
}

func (l Label) String() string {
	var parts []string
	if l.Has(LabelParagraph) {
		parts = append(parts, "paragraph")
	}
	if l.Has(LabelBlock) {
		parts = append(parts, "block")
	}
	if l.Has(LabelInline) {
		parts = append(parts, "inline")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Labels is the output of one classification pass. Every visited element is present,
// ignored ones with a zero label.
type Labels struct {
	Session string
	marks   map[*html.Node]Label
}

func (l *Labels) Of(n *html.Node) Label {
	return l.marks[n]
}

func (l *Labels) Visited(n *html.Node) bool {
	_, ok := l.marks[n]
	return ok
}

func (l *Labels) Len() int {
	return len(l.marks)
}

// Marks returns a copy of the node to label assignment.
func (l *Labels) Marks() map[*html.Node]Label {
	out := make(map[*html.Node]Label, len(l.marks))
	for n, label := range l.marks {
		out[n] = label
	}
	return out
}

type result uint8

const (
	resultIgnore result = iota
	resultBlock
	resultInline
)

// excludedTags are never translated, whatever their content.
var excludedTags = map[atom.Atom]bool{
	atom.Head: true, atom.Title: true, atom.Meta: true, atom.Link: true, atom.Base: true,
	atom.Script: true, atom.Noscript: true, atom.Style: true, atom.Template: true,
	atom.Textarea: true, atom.Input: true, atom.Select: true, atom.Option: true,
	atom.Img: true, atom.Picture: true, atom.Video: true, atom.Audio: true, atom.Canvas: true,
	atom.Source: true, atom.Track: true, atom.Svg: true, atom.Math: true,
	atom.Pre: true, atom.Kbd: true, atom.Samp: true, atom.Hr: true,
	atom.Object: true, atom.Embed: true,
}

var chromeTags = map[atom.Atom]bool{
	atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
}

var chromeRoles = map[string]bool{
	"navigation": true, "banner": true, "contentinfo": true, "complementary": true,
}

type classifier struct {
	doc      *tree.Document
	layout   tree.Layout
	settings Settings
	logger   *slog.Logger

	matchers map[*html.Node]*siterules.Matcher
	labels   *Labels
}

func newClassifier(doc *tree.Document, layout tree.Layout, settings Settings, logger *slog.Logger, session string) *classifier {
	return &classifier{
		doc:      doc,
		layout:   layout,
		settings: settings,
		logger:   logger,
		matchers: map[*html.Node]*siterules.Matcher{},
		labels:   &Labels{Session: session, marks: map[*html.Node]Label{}},
	}
}

func (c *classifier) run(root *html.Node) *Labels {
	if tree.IsShadowRoot(root) {
		c.container(root)
	} else if root.Type == html.ElementNode {
		c.element(root)
	}
	return c.labels
}

// element classifies n and everything under it. The returned flag reports whether n
// has text of its own (not counting shadow or embedded content).
func (c *classifier) element(n *html.Node) (result, bool) {
	c.labels.marks[n] = 0
	if c.skipped(n) {
		return resultIgnore, false
	}

	if root := tree.ShadowRoot(n); root != nil {
		c.container(root)
	}
	if tree.IsFrame(n) {
		if body, err := c.doc.Frame(n); err == nil {
			c.element(body)
		} else {
			c.logger.Debug("skipping embedded document", logging.Err(err))
		}
	}

	hasBlock, hasInline, hasText := c.children(n)
	if !hasText {
		return resultIgnore, false
	}

	var label Label
	if hasInline {
		label |= LabelParagraph
	}

	display := c.layout.Display(n)
	if c.matcher(n).ForceBlock(n) {
		display = tree.DisplayBlock
	}

	res := resultInline
	if hasBlock || !display.InlineLike() {
		label |= LabelBlock
		res = resultBlock
	} else {
		label |= LabelInline
	}
	c.labels.marks[n] = label
	return res, true
}

// container classifies a shadow root. It has no layout of its own, so it only ever
// carries Paragraph and Block.
func (c *classifier) container(root *html.Node) {
	c.labels.marks[root] = 0
	hasBlock, hasInline, _ := c.children(root)

	var label Label
	if hasInline {
		label |= LabelParagraph
	}
	if hasBlock {
		label |= LabelBlock
	}
	c.labels.marks[root] = label
}

func (c *classifier) children(n *html.Node) (hasBlock, hasInline, hasText bool) {
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		switch ch.Type {
		case html.TextNode:
			if !tree.IsBlank(ch.Data) {
				hasInline, hasText = true, true
			}
		case html.ElementNode:
			if tree.IsShadowRoot(ch) {
				continue
			}
			// An overlay stands in for content it was made from, which may be gone in
			// translation-only mode.
			if IsOverlay(ch) {
				hasInline, hasText = true, true
				continue
			}
			res, text := c.element(ch)
			hasText = hasText || text
			switch res {
			case resultBlock:
				hasBlock = true
			case resultInline:
				hasInline = true
			}
		}
	}
	return hasBlock, hasInline, hasText
}

func (c *classifier) skipped(n *html.Node) bool {
	switch {
	case IsOverlay(n), excludedTags[n.DataAtom], optedOut(n):
		return true
	case !c.layout.Visible(n):
		return true
	case c.settings.MainContentOnly && isChrome(n):
		return true
	}
	return c.matcher(n).Skip(n)
}

func optedOut(n *html.Node) bool {
	if v, ok := tree.Attr(n, "translate"); ok && strings.EqualFold(strings.TrimSpace(v), "no") {
		return true
	}
	return tree.HasClass(n, "notranslate")
}

func isChrome(n *html.Node) bool {
	if chromeTags[n.DataAtom] {
		return true
	}
	role, _ := tree.Attr(n, "role")
	return chromeRoles[strings.ToLower(strings.TrimSpace(role))]
}

// matcher returns the compiled site overrides for the tree n belongs to. Embedded
// documents get their own matcher.
func (c *classifier) matcher(n *html.Node) *siterules.Matcher {
	if c.settings.Overrides.Empty() {
		return nil
	}
	top := n
	for top.Parent != nil {
		top = top.Parent
	}
	if m, ok := c.matchers[top]; ok {
		return m
	}
	m, err := c.settings.Overrides.Compile(top)
	if err != nil {
		c.logger.Warn("site overrides ignored", logging.Err(err))
		m = nil
	}
	c.matchers[top] = m
	return m
}
