package tree

import (
	"strings"

	"github.com/JohannesKaufmann/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Display is the rendered display mode of an element.
type Display uint8

const (
	DisplayInline Display = iota
	DisplayInlineBlock
	DisplayInlineFlex
	DisplayBlock
	DisplayListItem
	DisplayFlex
	DisplayGrid
	DisplayTable
	DisplayNone
)

func (d Display) InlineLike() bool {
	return d == DisplayInline || d == DisplayInlineBlock || d == DisplayInlineFlex
}

func (d Display) FlexLike() bool {
	return d == DisplayFlex || d == DisplayInlineFlex
}

func (d Display) String() string {
	switch d {
	case DisplayInline:
		return "inline"
	case DisplayInlineBlock:
		return "inline-block"
	case DisplayInlineFlex:
		return "inline-flex"
	case DisplayBlock:
		return "block"
	case DisplayListItem:
		return "list-item"
	case DisplayFlex:
		return "flex"
	case DisplayGrid:
		return "grid"
	case DisplayTable:
		return "table"
	default:
		return "none"
	}
}

// Layout exposes the two rendered properties the engine looks at.
type Layout interface {
	Display(n *html.Node) Display
	Visible(n *html.Node) bool
}

// StyleLayout resolves layout from inline style declarations, the hidden attribute
// and user-agent defaults for the tag. It never looks at stylesheets.
type StyleLayout struct{}

func (StyleLayout) Display(n *html.Node) Display {
	if n == nil || n.Type != html.ElementNode {
		return DisplayInline
	}
	if _, hidden := Attr(n, "hidden"); hidden {
		return DisplayNone
	}
	if v, ok := styleProperty(n, "display"); ok {
		if d, ok := parseDisplay(v); ok {
			return d
		}
	}
	return defaultDisplay(n)
}

func (l StyleLayout) Visible(n *html.Node) bool {
	if l.Display(n) == DisplayNone {
		return false
	}
	if v, ok := styleProperty(n, "visibility"); ok {
		switch v {
		case "hidden", "collapse":
			return false
		}
	}
	if v, ok := styleProperty(n, "opacity"); ok && (v == "0" || v == "0.0") {
		return false
	}
	return true
}

func styleProperty(n *html.Node, name string) (string, bool) {
	style, ok := Attr(n, "style")
	if !ok {
		return "", false
	}
	var value string
	found := false
	for _, decl := range strings.Split(style, ";") {
		key, val, ok := strings.Cut(decl, ":")
		if !ok || strings.ToLower(strings.TrimSpace(key)) != name {
			continue
		}
		val = strings.ToLower(strings.TrimSpace(val))
		val = strings.TrimSpace(strings.TrimSuffix(val, "!important"))
		value, found = val, true
	}
	return value, found
}

func parseDisplay(v string) (Display, bool) {
	switch v {
	case "none":
		return DisplayNone, true
	case "inline", "contents":
		return DisplayInline, true
	case "inline-block":
		return DisplayInlineBlock, true
	case "inline-flex":
		return DisplayInlineFlex, true
	case "block", "flow-root":
		return DisplayBlock, true
	case "list-item":
		return DisplayListItem, true
	case "flex":
		return DisplayFlex, true
	case "grid", "inline-grid":
		return DisplayGrid, true
	case "table", "table-row", "table-cell", "table-row-group", "table-header-group", "table-footer-group", "table-caption":
		return DisplayTable, true
	}
	return 0, false
}

var hiddenTags = map[atom.Atom]bool{
	atom.Head: true, atom.Title: true, atom.Meta: true, atom.Link: true,
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Base: true,
}

var blockTags = map[atom.Atom]bool{
	atom.Html: true, atom.Body: true, atom.Address: true, atom.Article: true,
	atom.Aside: true, atom.Blockquote: true, atom.Center: true, atom.Dd: true,
	atom.Details: true, atom.Dialog: true, atom.Dir: true, atom.Div: true, atom.Dl: true,
	atom.Dt: true, atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true,
	atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true, atom.Hgroup: true,
	atom.Hr: true, atom.Main: true, atom.Menu: true, atom.Nav: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Summary: true, atom.Ul: true,
	atom.Legend: true, atom.Optgroup: true,
}

var tableTags = map[atom.Atom]bool{
	atom.Table: true, atom.Caption: true, atom.Thead: true, atom.Tbody: true,
	atom.Tfoot: true, atom.Tr: true, atom.Td: true, atom.Th: true,
}

func defaultDisplay(n *html.Node) Display {
	switch {
	case hiddenTags[n.DataAtom]:
		return DisplayNone
	case n.DataAtom == atom.Li:
		return DisplayListItem
	case tableTags[n.DataAtom]:
		return DisplayTable
	case blockTags[n.DataAtom]:
		return DisplayBlock
	case n.DataAtom == atom.Button, n.DataAtom == atom.Select, n.DataAtom == atom.Img,
		n.DataAtom == atom.Input, n.DataAtom == atom.Textarea:
		return DisplayInlineBlock
	}
	if dom.NameIsBlockNode(n.Data) {
		return DisplayBlock
	}
	return DisplayInline
}
