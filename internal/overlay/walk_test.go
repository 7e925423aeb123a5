package overlay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"pageoverlay/internal/tree"
)

func TestGroupChildrenMaximalRuns(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<div id="c"><span id="a">A</span> B <div id="blk">C</div>  <em id="d">D</em><b id="e">E</b></div>`)
	engine := newEngine(&fakeBackend{}, ModeBilingual)
	labels := engine.Classify(doc, doc.Body(), "s1")

	c := byID(t, doc, "c")
	segments := groupChildren(c, labels.Of, "s1", true)
	require.Len(t, segments, 3)

	first := segments[0].run
	require.NotNil(t, first)
	require.Len(t, first.nodes, 2)
	assert.Equal(t, byID(t, doc, "a"), first.nodes[0])
	assert.Equal(t, html.TextNode, first.nodes[1].Type)
	assert.Equal(t, " B ", first.nodes[1].Data)
	assert.True(t, first.forceBlock)

	assert.Nil(t, segments[1].run)
	assert.Equal(t, byID(t, doc, "blk"), segments[1].block)

	last := segments[2].run
	require.NotNil(t, last)
	assert.Equal(t, []*html.Node{byID(t, doc, "d"), byID(t, doc, "e")}, last.nodes)
}

func TestGroupChildrenOverlays(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<div id="c">Lead<span id="old" class="po-overlay" data-po-session="s0">x</span>`+
		`<div id="blk">C</div>Tail<span id="cur" class="po-overlay" data-po-session="s1">y</span></div>`)
	engine := newEngine(&fakeBackend{}, ModeBilingual)
	labels := engine.Classify(doc, doc.Body(), "s1")

	segments := groupChildren(byID(t, doc, "c"), labels.Of, "s1", false)
	require.Len(t, segments, 3)
	require.Len(t, segments[0].run.nodes, 2)
	assert.Equal(t, byID(t, doc, "old"), segments[0].run.nodes[1])
	assert.False(t, segments[0].run.forceBlock)
	require.Len(t, segments[2].run.nodes, 1)
	assert.Equal(t, "Tail", segments[2].run.nodes[0].Data)
}

func TestGroupChildrenLineBreaks(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<div id="c">Line one<br>Line two<div id="blk">Block</div><br><em id="e">Tail</em><br></div>`)
	engine := newEngine(&fakeBackend{}, ModeBilingual)
	labels := engine.Classify(doc, doc.Body(), "s1")

	segments := groupChildren(byID(t, doc, "c"), labels.Of, "s1", true)
	require.Len(t, segments, 3)

	first := segments[0].run.nodes
	require.Len(t, first, 3)
	assert.Equal(t, atom.Br, first[1].DataAtom)
	assert.Equal(t, "Line two", first[2].Data)

	assert.Equal(t, byID(t, doc, "blk"), segments[1].block)
	assert.Equal(t, []*html.Node{byID(t, doc, "e")}, segments[2].run.nodes)
}

func TestWalkGroupsRunsAndRecursesIntoBlocks(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	doc := parse(t, `<div id="c"><span id="a">A</span> B <div id="blk">C</div><em id="d">D</em><b id="e">E</b></div>`)
	engine := newEngine(backend, ModeBilingual)

	report, err := engine.Run(context.Background(), doc, byID(t, doc, "c"), ReasonPage)
	require.NoError(t, err)
	assert.Equal(t, []string{"A B", "C", "D E"}, backend.Calls())
	assert.Equal(t, 3, report.Translated)

	// Run overlays follow the last member of their run.
	assert.True(t, IsOverlay(byID(t, doc, "a").NextSibling.NextSibling))
	assert.True(t, IsOverlay(byID(t, doc, "e").NextSibling))
	assert.True(t, IsOverlay(byID(t, doc, "blk").LastChild))
}

func TestResolveTarget(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<div id="w1"> <div id="w2"><span id="leaf">Deep</span></div> </div>`+
		`<div id="mixed"><span>One</span> and <span>two</span></div>`+
		`<div id="pair"><b id="x">x</b><i id="y">y</i></div>`)

	assert.Equal(t, byID(t, doc, "leaf"), resolveTarget([]*html.Node{byID(t, doc, "w1")}))
	assert.Equal(t, byID(t, doc, "mixed"), resolveTarget([]*html.Node{byID(t, doc, "mixed")}))
	assert.Equal(t, byID(t, doc, "pair"), resolveTarget([]*html.Node{byID(t, doc, "pair")}))

	run := []*html.Node{byID(t, doc, "x"), byID(t, doc, "y")}
	assert.Equal(t, byID(t, doc, "y"), resolveTarget(run))

	text := byID(t, doc, "mixed").FirstChild.NextSibling
	assert.Equal(t, text, resolveTarget([]*html.Node{text}))
}

func TestFindOverlay(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<p id="inside">Text<span id="ov1" class="po-overlay">a</span></p>`+
		`<p id="next">Text</p> <span id="ov2" class="po-overlay">b</span>`+
		`<p id="none">Text</p><p>Other</p><span class="po-overlay">c</span>`)

	assert.Equal(t, byID(t, doc, "ov1"), findOverlay(byID(t, doc, "inside")))
	assert.Equal(t, byID(t, doc, "ov2"), findOverlay(byID(t, doc, "next")))
	assert.Equal(t, byID(t, doc, "ov2"), findOverlay(byID(t, doc, "ov2")))
	assert.Nil(t, findOverlay(byID(t, doc, "none")))
}

func TestFindOverlaysDoesNotDescend(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<div><span class="po-overlay" id="outer"><span class="po-overlay">nested</span></span></div>`+
		`<x-a><template shadowrootmode="open"><span class="po-overlay" id="shadow">s</span></template></x-a>`+
		`<iframe srcdoc="&lt;span class=&quot;po-overlay&quot;&gt;f&lt;/span&gt;"></iframe>`)

	all := FindOverlays(doc, doc.Body())
	require.Len(t, all, 3)
	assert.Equal(t, byID(t, doc, "outer"), all[0])
	assert.Equal(t, byID(t, doc, "shadow"), all[1])
	assert.True(t, tree.HasClass(all[2], ClassOverlay))

	assert.Len(t, FindOverlays(nil, doc.Body()), 2)
}
