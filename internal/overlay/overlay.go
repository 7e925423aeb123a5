// Package overlay annotates a rendered page and overlays machine translations on it
// without losing the original content.
//
// A pass has two halves. The classifier labels every element under a root as block,
// inline or paragraph (a container that triggers translation) and stamps it with the
// pass's session id. The walker then reads those labels, picks translation units
// (whole paragraphs or maximal runs of inline siblings), inserts an overlay for each
// and fills it with the backend's result. Overlays can be torn down again, restoring
// the page exactly.
package overlay

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/language"

	"pageoverlay/internal/siterules"
	"pageoverlay/internal/tree"
)

const (
	ClassOverlay = "po-overlay"
	ClassContent = "po-content"
	ClassInline  = "po-inline"
	ClassBlock   = "po-block"

	AttrMode      = "data-po-mode"
	AttrSession   = "data-po-session"
	AttrIndicator = "data-po-indicator"
)

// Mode selects how translated content is combined with the original.
type Mode string

const (
	// ModeBilingual keeps the original and adds the translation next to it.
	ModeBilingual Mode = "bilingual"
	// ModeTranslationOnly replaces the original, keeping a snapshot to restore it.
	ModeTranslationOnly Mode = "translation-only"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBilingual:
		return ModeBilingual, nil
	case ModeTranslationOnly, "translation_only", "replace":
		return ModeTranslationOnly, nil
	}
	return "", fmt.Errorf("unknown translation mode %q", s)
}

// Translator is the translation backend.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

type TranslatorFunc func(ctx context.Context, text string) (string, error)

func (f TranslatorFunc) Translate(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Settings is the configuration snapshot a walk reads. It is never mutated during a
// walk; SetSettings replaces it for later walks.
type Settings struct {
	Mode            Mode
	SourceLang      language.Tag
	TargetLang      language.Tag
	MainContentOnly bool
	Overrides       siterules.Override
	StylePreset     string
	CustomCSS       string
}

func DefaultSettings() Settings {
	return Settings{
		Mode:        ModeBilingual,
		SourceLang:  language.Und,
		TargetLang:  language.SimplifiedChinese,
		StylePreset: "default",
	}
}

// Reason is why the caller started a pass.
type Reason uint8

const (
	// ReasonPage translates a subtree, leaving already translated subtrees alone.
	ReasonPage Reason = iota
	// ReasonToggle flips a subtree: translated units are restored, others translated.
	ReasonToggle
)

func IsOverlay(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && tree.HasClass(n, ClassOverlay)
}

func sessionOf(ov *html.Node) string {
	v, _ := tree.Attr(ov, AttrSession)
	return v
}

func modeOf(ov *html.Node) Mode {
	v, _ := tree.Attr(ov, AttrMode)
	return Mode(v)
}

func newOverlay(mode Mode, session string) *html.Node {
	return tree.NewElement(atom.Span,
		"class", ClassOverlay,
		AttrMode, string(mode),
		AttrSession, session,
		"translate", "no",
	)
}

// FindOverlays lists every overlay under root in document order, looking inside
// shadow roots and, when doc is given, embedded documents. It does not descend into
// an overlay it found.
func FindOverlays(doc *tree.Document, root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if IsOverlay(n) {
			out = append(out, n)
			return
		}
		if doc != nil && tree.IsFrame(n) {
			if body, err := doc.Frame(n); err == nil {
				walk(body)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

func hasOverlay(doc *tree.Document, root *html.Node) bool {
	return len(FindOverlays(doc, root)) > 0
}
