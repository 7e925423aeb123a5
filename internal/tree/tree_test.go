package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func mustParse(t *testing.T, body string) *Document {
	t.Helper()
	doc, err := ParseString("<html><head></head><body>" + body + "</body></html>")
	require.NoError(t, err)
	return doc
}

func TestText(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<div id="d">  Hello
	   <b>big</b>   world<br>second <span hidden>gone</span>line<br><br>  third </div>`)

	got, err := doc.Text(FindByID(doc.Root, "d"), func(n *html.Node) bool {
		_, hidden := Attr(n, "hidden")
		return hidden
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello big world\nsecond line\nthird", got)
}

func TestTextFrames(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<div id="ok">Outer <iframe srcdoc="&lt;p&gt;inner&lt;/p&gt;"></iframe></div>`+
		`<div id="bad">Outer <iframe src="https://example.com"></iframe></div>`)

	got, err := doc.Text(FindByID(doc.Root, "ok"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Outer inner", got)

	_, err = doc.Text(FindByID(doc.Root, "bad"), nil)
	assert.ErrorIs(t, err, ErrInaccessibleFrame)
}

func TestFrameIsParsedOnce(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<iframe id="f" srcdoc="&lt;p&gt;inner&lt;/p&gt;"></iframe>`)
	iframe := FindByID(doc.Root, "f")

	body, err := doc.Frame(iframe)
	require.NoError(t, err)
	again, err := doc.Frame(iframe)
	require.NoError(t, err)
	assert.Same(t, body, again)
	assert.True(t, doc.Contains(body.FirstChild))

	body.FirstChild.FirstChild.Data = "changed"
	out, err := doc.String()
	require.NoError(t, err)
	assert.Contains(t, out, "changed")

	_, err = doc.Frame(FindElement(doc.Root, atom.Body))
	assert.ErrorIs(t, err, ErrInaccessibleFrame)
}

func TestContains(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p id="p">x</p>`)
	p := FindByID(doc.Root, "p")
	assert.True(t, doc.Contains(p))

	Detach(p)
	assert.False(t, doc.Contains(p))
	assert.False(t, doc.Contains(nil))
}

func TestReplaceChildrenRoundTrip(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<div id="c">Lead <a href="/x">link</a><p>para &amp; more</p><!-- note --></div>`)
	c := FindByID(doc.Root, "c")

	snapshot, err := RenderChildren(c)
	require.NoError(t, err)

	for c.FirstChild != nil {
		c.RemoveChild(c.FirstChild)
	}
	c.AppendChild(NewText("replaced"))

	require.NoError(t, ReplaceChildren(c, snapshot))
	restored, err := RenderChildren(c)
	require.NoError(t, err)
	assert.Equal(t, snapshot, restored)
}

func TestNodeHelpers(t *testing.T) {
	t.Parallel()

	n := NewElement(atom.Span, "class", "a po-x", "id", "s")
	assert.True(t, HasClass(n, "po-x"))
	assert.False(t, HasClass(n, "po"))

	SetAttr(n, "id", "t")
	SetAttr(n, "lang", "de")
	v, ok := Attr(n, "id")
	assert.True(t, ok)
	assert.Equal(t, "t", v)
	v, _ = Attr(n, "lang")
	assert.Equal(t, "de", v)

	parent := NewElement(atom.Div)
	first := NewText("one")
	parent.AppendChild(first)
	InsertAfter(first, n)
	assert.Same(t, n, first.NextSibling)

	assert.True(t, IsBlankText(NewText(" \n\t")))
	assert.False(t, IsBlankText(NewText(" x ")))
}

func TestShadowRoot(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<x-card id="h"><template shadowrootmode="open"><p>in</p></template>light</x-card>`+
		`<template id="plain"><p>inert</p></template>`)

	root := ShadowRoot(FindByID(doc.Root, "h"))
	require.NotNil(t, root)
	assert.True(t, IsShadowRoot(root))
	assert.False(t, IsShadowRoot(FindByID(doc.Root, "plain")))
	assert.Nil(t, ShadowRoot(FindByID(doc.Root, "plain")))
}

func TestStyleLayout(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<div id="div">d</div><span id="span">s</span><li id="li">l</li>`+
		`<span id="flex" style="color: red; display: inline-flex !important">f</span>`+
		`<div id="hidden" hidden>h</div><p id="invisible" style="visibility:hidden">v</p>`+
		`<p id="transparent" style="opacity: 0">o</p><section id="section">s</section>`+
		`<button id="button">b</button>`)
	layout := StyleLayout{}
	get := func(id string) *html.Node { return FindByID(doc.Root, id) }

	tests := map[string]Display{
		"div":     DisplayBlock,
		"span":    DisplayInline,
		"li":      DisplayListItem,
		"flex":    DisplayInlineFlex,
		"hidden":  DisplayNone,
		"section": DisplayBlock,
		"button":  DisplayInlineBlock,
	}
	for id, want := range tests {
		if n := get(id); n != nil {
			assert.Equal(t, want, layout.Display(n), id)
		}
	}

	assert.True(t, layout.Display(get("flex")).InlineLike())
	assert.True(t, layout.Display(get("flex")).FlexLike())
	assert.False(t, layout.Display(get("div")).InlineLike())

	assert.True(t, layout.Visible(get("div")))
	assert.False(t, layout.Visible(get("hidden")))
	assert.False(t, layout.Visible(get("invisible")))
	assert.False(t, layout.Visible(get("transparent")))
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  a \t b  ":     "a b",
		"a \n\n  \n b":   "a\nb",
		"\n\nx\n":        "x",
		"line one\nline": "line one\nline",
		"   ":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeText(in), "%q", in)
	}
}

func TestIsNumeric(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"42", "3.14", "2024-01-01 12:30", "$ 1,000", "(1) / [2]", "½ ①"} {
		assert.True(t, IsNumeric(s), s)
	}
	for _, s := range []string{"v1.2", "10 km", "第3章", "x"} {
		assert.False(t, IsNumeric(s), s)
	}
}

func TestRenderDocument(t *testing.T) {
	t.Parallel()

	doc, err := Parse(strings.NewReader(`<p>x</p>`))
	require.NoError(t, err)
	require.NotNil(t, doc.Body())
	require.NotNil(t, doc.Head())

	out, err := doc.String()
	require.NoError(t, err)
	assert.Equal(t, "<html><head></head><body><p>x</p></body></html>", out)
}
