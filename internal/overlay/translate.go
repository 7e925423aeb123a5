package overlay

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/language"

	"pageoverlay/internal/logging"
	"pageoverlay/internal/tree"
)

// forcedInlineTags always get inline translated content, whatever their layout.
var forcedInlineTags = map[atom.Atom]bool{
	atom.A: true, atom.B: true, atom.Strong: true, atom.Em: true, atom.I: true,
	atom.U: true, atom.S: true, atom.Small: true, atom.Sub: true, atom.Sup: true,
	atom.Label: true, atom.Abbr: true, atom.Mark: true, atom.Code: true,
}

var rtlLanguages = map[string]bool{
	"ar": true, "he": true, "fa": true, "ur": true, "ps": true, "sd": true,
	"yi": true, "dv": true, "ug": true, "ckb": true, "syr": true,
}

// TranslateUnit translates nodes, a single element or a run of sibling nodes, as one
// string. An overlay of an earlier session found at the unit is torn down first; with
// toggle set nothing else happens.
func (e *Engine) TranslateUnit(ctx context.Context, doc *tree.Document, nodes []*html.Node, session string, toggle bool) Report {
	r := e.newRun(doc, session, toggle)
	e.translateUnit(ctx, r, unit{nodes: nodes})
	return r.report
}

func (e *Engine) translateUnit(ctx context.Context, r *run, u unit) {
	if container := e.translateLocked(ctx, r, u); container != nil {
		// Restoring the earlier overlay replaced the unit's nodes. Start over on the
		// restored content under the same session.
		labels := e.Classify(r.doc, container, r.session)
		e.commit(labels)
		e.walk(ctx, r, container)
	}
}

// translateLocked runs one unit under the engine lock, releasing it around the backend
// call. It returns a container to walk again when the unit no longer exists after
// teardown.
func (e *Engine) translateLocked(ctx context.Context, r *run, u unit) *html.Node {
	e.mu.Lock()
	defer e.mu.Unlock()

	nodes := u.nodes
	if len(nodes) == 0 {
		return nil
	}
	for _, n := range nodes {
		if !r.doc.Contains(n) {
			e.logger.Debug("unit detached before translation", slog.String("session", r.session))
			return nil
		}
	}

	if !e.tracker.Acquire(nodes) {
		e.logger.Debug("unit already in flight", slog.String("session", r.session))
		return nil
	}
	defer e.tracker.Release(nodes)

	target := resolveTarget(nodes)
	if existing := findOverlay(target); existing != nil {
		if sessionOf(existing) == r.session {
			r.report.Skipped++
			return nil
		}

		restored := e.removeOverlay(r.doc, existing)
		r.report.TornDown++
		if r.toggle {
			return nil
		}

		remaining := originals(nodes)
		if !allContained(r.doc, remaining) || len(remaining) == 0 {
			if restored != nil && r.doc.Contains(restored) {
				return restored
			}
			return nil
		}
		nodes = remaining
		target = resolveTarget(nodes)
	}

	text := e.unitText(r.doc, nodes)
	if text == "" || tree.IsNumeric(text) {
		r.report.Skipped++
		return nil
	}

	element := len(nodes) == 1 && nodes[0].Type == html.ElementNode
	var captured *html.Node
	if r.settings.Mode == ModeTranslationOnly {
		container := target
		if !element {
			container = target.Parent
		}
		if e.captureSnapshot(container) {
			captured = container
		}
	}

	ov := newOverlay(r.settings.Mode, r.session)
	if element {
		target.AppendChild(ov)
	} else {
		tree.InsertAfter(target, ov)
	}
	e.indicators.Mount(ov, IndicatorLoading, nil)
	if _, err := e.states.fire(ov, eventStart); err != nil {
		e.logger.Warn("overlay state", logging.Err(err))
	}
	r.report.Dispatched++

	e.mu.Unlock()
	translated, err := e.call(ctx, text)
	e.mu.Lock()

	e.settle(r, nodes, target, ov, u.forceBlock, text, translated, err)
	if captured != nil && !e.anchorsOverlay(captured) {
		e.tracker.DeleteSnapshot(captured)
	}
	return nil
}

func (e *Engine) call(ctx context.Context, text string) (string, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.sem.Release(1)
	return e.backend.Translate(ctx, text)
}

// settle applies a backend outcome to the overlay. Callers hold the engine lock.
func (e *Engine) settle(r *run, nodes []*html.Node, target, ov *html.Node, forceBlock bool, source, translated string, err error) {
	if e.states.get(ov) != StatePending || !r.doc.Contains(ov) {
		e.logger.Debug("overlay removed while translating", slog.String("session", r.session))
		return
	}

	if err != nil {
		e.indicators.Unmount(ov, IndicatorLoading)
		e.indicators.Mount(ov, IndicatorError, err)
		e.fire(ov, eventFail)
		r.report.Failed++
		e.logger.Warn("translation failed",
			slog.String("session", r.session),
			slog.Int("chars", len(source)),
			logging.Err(err),
		)
		return
	}

	result := tree.NormalizeText(translated)
	if result == "" || result == source {
		tree.Detach(ov)
		e.fire(ov, eventDiscard)
		r.report.Discarded++
		return
	}

	e.indicators.Unmount(ov, IndicatorLoading)
	content := e.content(r.settings.TargetLang, result, e.inlineContent(target, forceBlock))
	ov.AppendChild(content)
	r.decorator.Decorate(content, e.scope(r.doc, ov))

	if r.settings.Mode == ModeTranslationOnly {
		e.replaceOriginals(r.doc, nodes, ov)
	}
	e.fire(ov, eventSucceed)
	r.report.Translated++
}

func (e *Engine) fire(ov *html.Node, ev event) {
	if _, err := e.states.fire(ov, ev); err != nil {
		e.logger.Warn("overlay state", logging.Err(err))
	}
}

// replaceOriginals removes the content ov was made from. Nodes hosting shadow or
// embedded content stay, since that content is translated on its own. Without a
// snapshot to restore from, the originals stay and the overlay behaves as a bilingual
// one.
func (e *Engine) replaceOriginals(doc *tree.Document, nodes []*html.Node, ov *html.Node) {
	if e.snapshotHolder(ov) == nil {
		e.logger.Warn("keeping original content", logging.Err(ErrNoSnapshot))
		return
	}

	if len(nodes) == 1 && nodes[0].Type == html.ElementNode && ov.Parent != nil {
		parent := ov.Parent
		for c := parent.FirstChild; c != nil; {
			next := c.NextSibling
			if c != ov && !hostsEmbedded(doc, c) {
				parent.RemoveChild(c)
				e.forget(doc, c)
			}
			c = next
		}
		return
	}
	for _, n := range nodes {
		if n != ov && !hostsEmbedded(doc, n) {
			tree.Detach(n)
			e.forget(doc, n)
		}
	}
}

func hostsEmbedded(doc *tree.Document, n *html.Node) bool {
	found := false
	embeddedRoots(doc, n, func(*html.Node) { found = true })
	return found
}

// snapshotHolder returns the nearest ancestor of n with recorded original content.
func (e *Engine) snapshotHolder(n *html.Node) *html.Node {
	for a := n.Parent; a != nil; a = a.Parent {
		if _, ok := e.tracker.Snapshot(a); ok {
			return a
		}
	}
	return nil
}

func (e *Engine) unitText(doc *tree.Document, nodes []*html.Node) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode && n.DataAtom == atom.Br {
			parts = append(parts, "\n")
			continue
		}
		// Shadow and embedded content is walked on its own. A shadow root that is the
		// unit itself still has text; an embedded document never does.
		skip := func(c *html.Node) bool {
			if c == n && !tree.IsFrame(c) {
				return false
			}
			return IsOverlay(c) || tree.IsShadowRoot(c) || tree.IsFrame(c) ||
				excludedTags[c.DataAtom] || optedOut(c) || !e.layout.Visible(c)
		}
		text, err := doc.Text(n, skip)
		if err != nil {
			// Text that cannot be read is treated as absent.
			e.logger.Debug("text extraction failed", logging.Err(err))
			continue
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return tree.NormalizeText(strings.Join(parts, " "))
}

// inlineContent decides how translated content for target is laid out.
func (e *Engine) inlineContent(target *html.Node, forceBlock bool) bool {
	if target.Type == html.ElementNode && forcedInlineTags[target.DataAtom] {
		return true
	}
	if p := target.Parent; p != nil && p.Type == html.ElementNode && e.layout.Display(p).FlexLike() {
		return true
	}
	if forceBlock {
		return false
	}
	if target.Type != html.ElementNode {
		return true
	}
	label := e.labels[target]
	return label.Has(LabelInline) && !label.Has(LabelBlock)
}

func (e *Engine) content(lang language.Tag, text string, inline bool) *html.Node {
	class := ClassContent + " " + ClassBlock
	if inline {
		class = ClassContent + " " + ClassInline
	}
	content := tree.NewElement(atom.Span, "class", class)
	if lang != language.Und {
		tree.SetAttr(content, "lang", lang.String())
		tree.SetAttr(content, "dir", direction(lang))
	}

	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			content.AppendChild(tree.NewElement(atom.Br))
		}
		content.AppendChild(tree.NewText(line))
	}
	return content
}

func direction(tag language.Tag) string {
	base, _ := tag.Base()
	if rtlLanguages[base.String()] {
		return "rtl"
	}
	return "ltr"
}

// scope finds where styles for content under n belong: the nearest shadow root, else
// the head of the document n lives in.
func (e *Engine) scope(doc *tree.Document, n *html.Node) *html.Node {
	top := n
	for a := n.Parent; a != nil; a = a.Parent {
		if tree.IsShadowRoot(a) {
			return a
		}
		top = a
	}
	if top == doc.Root {
		return doc.Head()
	}
	return tree.FindElement(top, atom.Head)
}

// resolveTarget finds the node an overlay for nodes attaches to. A single element is
// unwrapped through single-child wrappers; otherwise the last member is the target.
func resolveTarget(nodes []*html.Node) *html.Node {
	last := nodes[len(nodes)-1]
	if len(nodes) != 1 || last.Type != html.ElementNode || IsOverlay(last) {
		return last
	}

	target := last
	for {
		next := onlyElementChild(target)
		if next == nil {
			return target
		}
		target = next
	}
}

func onlyElementChild(n *html.Node) *html.Node {
	var only *html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case tree.IsBlankText(c), IsOverlay(c):
		case c.Type == html.ElementNode && only == nil && !tree.IsShadowRoot(c):
			only = c
		case c.Type == html.CommentNode:
		default:
			return nil
		}
	}
	return only
}

// findOverlay looks for an overlay belonging to target: target itself, one of its
// children, or its next non-blank sibling.
func findOverlay(target *html.Node) *html.Node {
	if IsOverlay(target) {
		return target
	}
	for c := target.FirstChild; c != nil; c = c.NextSibling {
		if IsOverlay(c) {
			return c
		}
	}
	for s := target.NextSibling; s != nil; s = s.NextSibling {
		if tree.IsBlankText(s) {
			continue
		}
		if IsOverlay(s) {
			return s
		}
		break
	}
	return nil
}

func originals(nodes []*html.Node) []*html.Node {
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if !IsOverlay(n) {
			out = append(out, n)
		}
	}
	return out
}

func allContained(doc *tree.Document, nodes []*html.Node) bool {
	for _, n := range nodes {
		if !doc.Contains(n) {
			return false
		}
	}
	return true
}
