// Package markdown exports overlaid pages as Markdown.
package markdown

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

func FromHTML(html string) (string, error) {
	markdownText, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", err
	}

	markdownText = strings.ReplaceAll(markdownText, "\r\n", "\n")
	return strings.TrimSpace(markdownText), nil
}

// FromOverlaidHTML converts a page carrying translation overlays. Indicators and
// injected styles are dropped and block translations start on their own line.
func FromOverlaidHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find(".po-indicator, style[data-po-style]").Remove()
	doc.Find(".po-overlay > .po-block").BeforeHtml("<br>")

	cleaned, err := doc.Html()
	if err != nil {
		return "", err
	}
	return FromHTML(cleaned)
}
