package overlay

import (
	"log/slog"

	"golang.org/x/net/html"

	"pageoverlay/internal/logging"
	"pageoverlay/internal/tree"
)

// RemoveOverlay tears down one overlay. A translation-only overlay restores the
// original content of the nearest container that has a snapshot.
func (e *Engine) RemoveOverlay(doc *tree.Document, overlay *html.Node) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeOverlay(doc, overlay)
}

// RemoveAll tears down every overlay under root, including those in shadow roots and
// embedded documents, and returns how many were removed.
func (e *Engine) RemoveAll(doc *tree.Document, root *html.Node) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for _, ov := range FindOverlays(doc, root) {
		// Restoring an earlier container may already have dropped this one.
		if !doc.Contains(ov) {
			continue
		}
		e.removeOverlay(doc, ov)
		removed++
	}
	return removed
}

// removeOverlay returns the container whose content was restored, or nil when the
// overlay was simply detached. Callers hold the engine lock.
func (e *Engine) removeOverlay(doc *tree.Document, ov *html.Node) *html.Node {
	scope := e.scope(doc, ov)
	defer e.releaseScope(scope)

	if modeOf(ov) == ModeTranslationOnly {
		if container := e.snapshotHolder(ov); container != nil {
			if e.restore(doc, container) {
				return container
			}
		} else {
			e.logger.Warn("removing overlay without restoring content",
				slog.String("session", sessionOf(ov)),
				logging.Err(ErrNoSnapshot),
			)
		}
	}

	if e.states.get(ov) != StateNone {
		e.fire(ov, eventTeardown)
	}
	tree.Detach(ov)
	e.forget(doc, ov)
	return nil
}

// restore swaps the snapshot of container back in, retiring every overlay and
// snapshot inside it.
func (e *Engine) restore(doc *tree.Document, container *html.Node) bool {
	if !doc.Contains(container) {
		e.logger.Warn("restore original content", slog.String("container", container.Data), logging.Err(ErrDetached))
		return false
	}
	snapshot, _ := e.tracker.Snapshot(container)
	overlays := FindOverlays(nil, container)
	var nested []*html.Node
	forEachElement(container, func(n *html.Node) {
		if _, ok := e.tracker.Snapshot(n); ok {
			nested = append(nested, n)
		}
	})
	var retired []*html.Node
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		retired = append(retired, c)
	}

	if err := tree.ReplaceChildren(container, snapshot); err != nil {
		e.logger.Warn("restore original content", slog.String("container", container.Data), logging.Err(err))
		return false
	}

	for _, ov := range overlays {
		if e.states.get(ov) != StateNone {
			e.fire(ov, eventTeardown)
		}
	}
	for _, n := range nested {
		e.tracker.DeleteSnapshot(n)
	}
	e.tracker.DeleteSnapshot(container)
	for _, n := range retired {
		e.forget(doc, n)
	}
	return true
}

// releaseScope removes injected styles from scope once no overlay styled through it
// is left. Callers hold the engine lock.
func (e *Engine) releaseScope(scope *html.Node) {
	if scope == nil {
		return
	}
	region := scope
	if !tree.IsShadowRoot(scope) {
		region = scope.Parent
	}
	if region == nil || overlayInScope(region) {
		return
	}
	e.decoratorFor(e.Settings()).Undecorate(scope)
}

// overlayInScope reports whether an overlay sits under n outside nested shadow roots.
func overlayInScope(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || tree.IsShadowRoot(c) {
			continue
		}
		if IsOverlay(c) || overlayInScope(c) {
			return true
		}
	}
	return false
}

func forEachElement(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			fn(c)
		}
		forEachElement(c, fn)
	}
}
