package tree

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func Attr(n *html.Node, key string) (string, bool) {
	if n == nil || n.Type != html.ElementNode {
		return "", false
	}
	return dom.GetAttribute(n, key)
}

func SetAttr(n *html.Node, key, value string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func HasClass(n *html.Node, class string) bool {
	v, ok := Attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// NewElement builds a detached element with the given attributes in key, value order.
func NewElement(a atom.Atom, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// IsBlank reports whether s holds nothing but whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func IsBlankText(n *html.Node) bool {
	return n != nil && n.Type == html.TextNode && IsBlank(n.Data)
}

func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// InsertAfter places n directly after ref under ref's parent.
func InsertAfter(ref, n *html.Node) {
	if ref.Parent == nil {
		return
	}
	ref.Parent.InsertBefore(n, ref.NextSibling)
}

// ShadowRoot returns the declarative shadow root of host, if any.
func ShadowRoot(host *html.Node) *html.Node {
	if host == nil || host.Type != html.ElementNode {
		return nil
	}
	for c := host.FirstChild; c != nil; c = c.NextSibling {
		if IsShadowRoot(c) {
			return c
		}
	}
	return nil
}

func IsShadowRoot(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode || n.DataAtom != atom.Template {
		return false
	}
	if _, ok := Attr(n, "shadowrootmode"); ok {
		return true
	}
	_, ok := Attr(n, "shadowroot")
	return ok
}

// IsFrame reports whether n embeds a foreign document.
func IsFrame(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == atom.Iframe
}

// RenderChildren serializes the children of n, the form kept as an original-content
// snapshot.
func RenderChildren(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render child of <%s>: %w", n.Data, err)
		}
	}
	return buf.String(), nil
}

// ReplaceChildren parses serialized in the context of n and swaps it in for n's
// current children.
func ReplaceChildren(n *html.Node, serialized string) error {
	ctx := n
	if n.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	}
	nodes, err := html.ParseFragment(strings.NewReader(serialized), ctx)
	if err != nil {
		return fmt.Errorf("parse snapshot of <%s>: %w", n.Data, err)
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, c := range nodes {
		n.AppendChild(c)
	}
	return nil
}
