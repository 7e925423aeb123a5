package tree

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	spaceRun       = regexp.MustCompile(`[^\S\n]+`)
	newlineRun     = regexp.MustCompile(` *\n[\s]*`)
	collapsibleRun = regexp.MustCompile(`\s+`)
)

// Text flattens the rendered text of n. Source whitespace collapses to single spaces
// and <br> becomes a newline. Subtrees for which skip returns true contribute nothing.
// An inaccessible embedded document yields an error.
func (d *Document) Text(n *html.Node, skip func(*html.Node) bool) (string, error) {
	var b strings.Builder
	if err := d.collectText(&b, n, skip); err != nil {
		return "", err
	}
	return NormalizeText(b.String()), nil
}

func (d *Document) collectText(b *strings.Builder, n *html.Node, skip func(*html.Node) bool) error {
	switch n.Type {
	case html.TextNode:
		b.WriteString(collapsibleRun.ReplaceAllString(n.Data, " "))
		return nil
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := d.collectText(b, c, skip); err != nil {
				return err
			}
		}
		return nil
	}

	if skip != nil && skip(n) {
		return nil
	}
	if n.DataAtom == atom.Br {
		b.WriteByte('\n')
		return nil
	}
	if IsFrame(n) {
		body, err := d.Frame(n)
		if err != nil {
			return err
		}
		return d.collectText(b, body, skip)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := d.collectText(b, c, skip); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeText collapses runs of non-newline whitespace to one space, squeezes line
// breaks to a single newline and trims the result.
func NormalizeText(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	s = newlineRun.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// IsNumeric reports whether s has no letters at all: only digits, separators,
// punctuation and symbols.
func IsNumeric(s string) bool {
	for _, r := range s {
		if unicode.IsNumber(r) || unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		return false
	}
	return true
}
