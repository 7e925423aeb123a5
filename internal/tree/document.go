package tree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrInaccessibleFrame is returned for an embedded document the engine cannot read,
// such as an iframe loaded from another origin instead of srcdoc.
var ErrInaccessibleFrame = errors.New("embedded document is not accessible")

// Document is a parsed page plus the embedded documents reachable from it.
type Document struct {
	Root *html.Node

	mu     sync.Mutex
	frames map[*html.Node]*html.Node
}

func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	return NewDocument(root), nil
}

func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func NewDocument(root *html.Node) *Document {
	return &Document{
		Root:   root,
		frames: map[*html.Node]*html.Node{},
	}
}

func (d *Document) Body() *html.Node {
	return FindElement(d.Root, atom.Body)
}

func (d *Document) Head() *html.Node {
	return FindElement(d.Root, atom.Head)
}

// Frame returns the body of the document embedded by an iframe. The srcdoc is parsed
// once; later calls return the same tree so mutations are kept.
func (d *Document) Frame(iframe *html.Node) (*html.Node, error) {
	if iframe == nil || iframe.Type != html.ElementNode || iframe.DataAtom != atom.Iframe {
		return nil, ErrInaccessibleFrame
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if doc, ok := d.frames[iframe]; ok {
		return frameBody(doc), nil
	}

	srcdoc, ok := Attr(iframe, "srcdoc")
	if !ok {
		return nil, ErrInaccessibleFrame
	}

	doc, err := html.Parse(strings.NewReader(srcdoc))
	if err != nil {
		return nil, fmt.Errorf("parse iframe srcdoc: %w", err)
	}
	d.frames[iframe] = doc
	return frameBody(doc), nil
}

func frameBody(doc *html.Node) *html.Node {
	if body := FindElement(doc, atom.Body); body != nil {
		return body
	}
	return doc
}

// Contains reports whether n is still attached to the page or to one of its parsed
// embedded documents.
func (d *Document) Contains(n *html.Node) bool {
	if n == nil {
		return false
	}
	top := n
	for top.Parent != nil {
		top = top.Parent
	}
	if top == d.Root {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, doc := range d.frames {
		if doc == top {
			return true
		}
	}
	return false
}

// Render serializes the page. Embedded documents that were parsed are written back
// into their iframe's srcdoc first.
func (d *Document) Render(w io.Writer) error {
	if err := d.syncFrames(); err != nil {
		return err
	}
	if err := html.Render(w, d.Root); err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}
	return nil
}

func (d *Document) String() (string, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (d *Document) syncFrames() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for iframe, doc := range d.frames {
		var buf bytes.Buffer
		if err := html.Render(&buf, doc); err != nil {
			return fmt.Errorf("render iframe srcdoc: %w", err)
		}
		SetAttr(iframe, "srcdoc", buf.String())
	}
	return nil
}

// FindElement returns the first element with the given atom in document order.
func FindElement(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// FindByID returns the first element whose id attribute equals id.
func FindByID(n *html.Node, id string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode {
		if v, ok := Attr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindByID(c, id); found != nil {
			return found
		}
	}
	return nil
}
