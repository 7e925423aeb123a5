package overlay

import (
	"context"
	"log/slog"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"pageoverlay/internal/logging"
	"pageoverlay/internal/tree"
)

// unit is a list of sibling nodes translated as one string.
type unit struct {
	nodes []*html.Node
	// forceBlock renders a run split off by a block sibling as a block.
	forceBlock bool
}

// segment is one step of a paragraph's children: either a run of inline content or a
// block child to recurse into.
type segment struct {
	run   *unit
	block *html.Node
}

// groupChildren partitions the children of a paragraph container into maximal inline
// runs and block children, in document order. Whitespace text and ignored elements
// neither join nor break a run. A <br> inside a run joins it as a line break; one at
// either end is dropped. Overlays left by an earlier session join a run as a
// placeholder for the content they replaced; those of the current session are skipped.
func groupChildren(parent *html.Node, labelOf func(*html.Node) Label, session string, forceBlock bool) []segment {
	var (
		out     []segment
		current []*html.Node
	)
	flush := func() {
		for len(current) > 0 && current[len(current)-1].DataAtom == atom.Br {
			current = current[:len(current)-1]
		}
		if len(current) > 0 {
			out = append(out, segment{run: &unit{nodes: current, forceBlock: forceBlock}})
			current = nil
		}
	}

	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if !tree.IsBlank(c.Data) {
				current = append(current, c)
			}
		case html.ElementNode:
			switch label := labelOf(c); {
			case c.DataAtom == atom.Br:
				if len(current) > 0 {
					current = append(current, c)
				}
			case IsOverlay(c):
				if sessionOf(c) != session {
					current = append(current, c)
				}
			case tree.IsShadowRoot(c):
			case label.Has(LabelBlock):
				flush()
				out = append(out, segment{block: c})
			case label.Has(LabelInline):
				current = append(current, c)
			}
		}
	}
	flush()
	return out
}

func hasBlockChild(n *html.Node, labelOf func(*html.Node) Label) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !IsOverlay(c) && !tree.IsShadowRoot(c) && labelOf(c).Has(LabelBlock) {
			return true
		}
	}
	return false
}

// Walk translates the units of a subtree classified under session. It returns once
// every triggered translation has settled. Unless toggle is set, a subtree that
// already holds an overlay is left alone.
func (e *Engine) Walk(ctx context.Context, doc *tree.Document, root *html.Node, session string, toggle bool) Report {
	r := e.newRun(doc, session, toggle)
	if !toggle {
		e.mu.Lock()
		exists := hasOverlay(doc, root)
		e.mu.Unlock()
		if exists {
			e.logger.Debug("subtree already translated", slog.String("session", session))
			return r.report
		}
	}
	e.walk(ctx, r, root)
	return r.report
}

type plan struct {
	units    []unit
	children []*html.Node
	// captured are containers whose snapshot this level took.
	captured []*html.Node
}

func (e *Engine) walk(ctx context.Context, r *run, root *html.Node) {
	e.mu.Lock()
	if e.stamps[root] != r.session {
		e.mu.Unlock()
		e.logger.Debug("stale walk", slog.String("session", r.session))
		return
	}
	p := e.plan(r, root)
	e.mu.Unlock()

	var g errgroup.Group
	for _, u := range p.units {
		g.Go(func() error {
			e.translateUnit(ctx, r, u)
			return nil
		})
	}
	for _, child := range p.children {
		g.Go(func() error {
			e.walk(ctx, r, child)
			return nil
		})
	}
	_ = g.Wait()

	if len(p.captured) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, container := range p.captured {
		if !e.anchorsOverlay(container) {
			e.tracker.DeleteSnapshot(container)
		}
	}
}

// anchorsOverlay reports whether some overlay under container restores through its
// snapshot rather than through one of a descendant. Callers hold the engine lock.
func (e *Engine) anchorsOverlay(container *html.Node) bool {
	for _, ov := range FindOverlays(nil, container) {
		if e.snapshotHolder(ov) == container {
			return true
		}
	}
	return false
}

// plan decides what one level of the walk does. Callers hold the engine lock.
func (e *Engine) plan(r *run, root *html.Node) plan {
	var p plan
	labelOf := func(n *html.Node) Label { return e.labels[n] }

	rootUnit := false
	if labelOf(root).Has(LabelParagraph) {
		if !hasBlockChild(root, labelOf) {
			p.units = append(p.units, unit{nodes: []*html.Node{root}})
			rootUnit = true
		} else {
			flex := root.Type == html.ElementNode && e.layout.Display(root).FlexLike()
			for _, seg := range groupChildren(root, labelOf, r.session, !flex) {
				if seg.block != nil {
					p.children = append(p.children, seg.block)
					continue
				}
				p.units = append(p.units, *seg.run)
			}
		}
		// Unit text leaves out shadow and embedded content, so it is walked separately.
		for _, u := range p.units {
			for _, n := range u.nodes {
				embeddedRoots(r.doc, n, func(sub *html.Node) {
					p.children = append(p.children, sub)
				})
			}
		}
	} else {
		for c := root.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && !IsOverlay(c) && !tree.IsShadowRoot(c) {
				p.children = append(p.children, c)
			}
		}
	}

	if !rootUnit {
		if sr := tree.ShadowRoot(root); sr != nil {
			p.children = append(p.children, sr)
		}
		if tree.IsFrame(root) {
			if body, err := r.doc.Frame(root); err == nil {
				p.children = append(p.children, body)
			}
		}
	}

	if r.settings.Mode == ModeTranslationOnly {
		for _, u := range p.units {
			container := unitContainer(u.nodes)
			if container != nil && e.captureSnapshot(container) {
				p.captured = append(p.captured, container)
			}
		}
	}
	return p
}

// embeddedRoots calls fn for each shadow root and embedded document body found at or
// under n, without entering them.
func embeddedRoots(doc *tree.Document, n *html.Node, fn func(*html.Node)) {
	if n.Type != html.ElementNode || IsOverlay(n) {
		return
	}
	if sr := tree.ShadowRoot(n); sr != nil {
		fn(sr)
	}
	if tree.IsFrame(n) {
		if body, err := doc.Frame(n); err == nil {
			fn(body)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !tree.IsShadowRoot(c) {
			embeddedRoots(doc, c, fn)
		}
	}
}

// unitContainer is the element whose content a translation-only overlay for nodes
// rewrites.
func unitContainer(nodes []*html.Node) *html.Node {
	if len(nodes) == 0 {
		return nil
	}
	if len(nodes) == 1 && nodes[0].Type == html.ElementNode && !IsOverlay(nodes[0]) {
		return resolveTarget(nodes)
	}
	return nodes[len(nodes)-1].Parent
}

// captureSnapshot records the original content of container. Content that already
// holds overlays is not original and is never recorded. Callers hold the engine lock.
func (e *Engine) captureSnapshot(container *html.Node) bool {
	if _, ok := e.tracker.Snapshot(container); ok {
		return false
	}
	if hasOverlay(nil, container) {
		return false
	}
	content, err := tree.RenderChildren(container)
	if err != nil {
		e.logger.Warn("capture original content", slog.String("container", container.Data), logging.Err(err))
		return false
	}
	return e.tracker.SetSnapshot(container, content)
}
