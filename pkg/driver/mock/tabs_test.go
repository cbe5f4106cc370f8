package mock

import (
	"context"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/domkit/pkg/core"
)

const framesFixture = `<html><body>
<h1>Checkout</h1>
<iframe id="card" srcdoc="<input id='number' type='text'><button id='pay'>Pay</button>"></iframe>
<iframe id="help" src="https://shop.test/help"></iframe>
<div id="not-a-frame"></div>
</body></html>`

func first(t *testing.T, s core.Scope, css string) core.Element {
	t.Helper()
	els, err := s.QueryAll(context.Background(), css)
	require.NoError(t, err)
	require.NotEmpty(t, els, "no match for %s", css)
	return els[0]
}

func TestFrames(t *testing.T) {
	ctx := context.Background()
	b := New(
		WithSite("https://shop.test/checkout", framesFixture),
		WithSite("https://shop.test/help", `<html><head><title>Help</title></head><body><p id="faq">FAQ</p></body></html>`),
	)
	defer b.Close()
	pg, err := b.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, pg.Navigate(ctx, "https://shop.test/checkout"))

	// Frame content is not part of the parent document.
	els, err := pg.QueryAll(ctx, "#number")
	require.NoError(t, err)
	assert.Empty(t, els)

	card, err := first(t, pg, "#card").Frame(ctx)
	require.NoError(t, err)
	require.NoError(t, first(t, card, "#number").Fill(ctx, "4242"))
	u, err := card.URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "about:srcdoc", u)

	again, err := first(t, pg, "#card").Frame(ctx)
	require.NoError(t, err)
	v, err := first(t, again, "#number").Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4242", v, "the same frame page is returned for the same element")

	frames, err := pg.Frames(ctx)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	title, err := frames[1].Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Help", title)

	_, err = first(t, pg, "#not-a-frame").Frame(ctx)
	assert.ErrorIs(t, err, core.ErrNotAFrame)

	// Frames close with their tab.
	require.NoError(t, card.Close())
	_, err = card.QueryAll(ctx, "#pay")
	require.NoError(t, err)
	require.NoError(t, pg.Close())
	_, err = card.QueryAll(ctx, "#pay")
	assert.ErrorIs(t, err, core.ErrBrowserDisconnected)
}

func TestFrames_ResetOnNavigation(t *testing.T) {
	ctx := context.Background()
	b := New(WithSite("https://shop.test/checkout", framesFixture), WithSite("https://shop.test/help", "<p>help</p>"))
	defer b.Close()
	pg, err := b.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, pg.Navigate(ctx, "https://shop.test/checkout"))

	card, err := first(t, pg, "#card").Frame(ctx)
	require.NoError(t, err)
	require.NoError(t, first(t, card, "#number").Fill(ctx, "4242"))

	require.NoError(t, pg.Reload(ctx))
	card, err = first(t, pg, "#card").Frame(ctx)
	require.NoError(t, err)
	v, err := first(t, card, "#number").Value(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestTabs(t *testing.T) {
	ctx := context.Background()
	b := New(
		WithSite("https://shop.test/", `<a id="terms" href="https://shop.test/terms" target="_blank">Terms</a>`),
		WithSite("https://shop.test/terms", `<title>Terms</title><p>terms</p>`),
		WithSite("https://shop.test/cart", `<title>Cart</title>`),
	)
	defer b.Close()
	pg, err := b.NewPage(ctx)
	require.NoError(t, err)
	root := pg.(*Page)
	require.NoError(t, pg.Navigate(ctx, "https://shop.test/"))

	require.NoError(t, first(t, pg, "#terms").Click(ctx, core.ClickOptions{}))
	tabs, err := pg.Tabs(ctx)
	require.NoError(t, err)
	require.Len(t, tabs, 2)
	u, err := tabs[1].URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/terms", u)
	assert.Same(t, root, root.ActiveTab(), "popups open in the background")

	cart, err := pg.OpenTab(ctx, "https://shop.test/cart")
	require.NoError(t, err)
	assert.Same(t, cart, root.ActiveTab())
	tabs, err = cart.Tabs(ctx)
	require.NoError(t, err)
	assert.Len(t, tabs, 3)

	require.NoError(t, tabs[1].BringToFront(ctx))
	assert.Same(t, tabs[1], root.ActiveTab())

	require.NoError(t, tabs[1].Close())
	tabs, err = pg.Tabs(ctx)
	require.NoError(t, err)
	assert.Len(t, tabs, 2)
	assert.Same(t, root, root.ActiveTab(), "closing the active tab activates the first")

	_, err = pg.OpenTab(ctx, "https://shop.test/missing")
	assert.ErrorIs(t, err, core.ErrBrowserUnreachable)
	tabs, err = pg.Tabs(ctx)
	require.NoError(t, err)
	assert.Len(t, tabs, 2, "a tab that failed to load is closed")

	// Closing the first tab disposes the context.
	require.NoError(t, pg.Close())
	_, err = cart.URL(ctx)
	assert.ErrorIs(t, err, core.ErrBrowserDisconnected)
}

func TestTabs_Standalone(t *testing.T) {
	ctx := context.Background()
	p := NewPage(`<a href="/x" target="_blank">x</a>`)

	tabs, err := p.Tabs(ctx)
	require.NoError(t, err)
	assert.Len(t, tabs, 1)
	require.NoError(t, p.BringToFront(ctx))
	_, err = p.OpenTab(ctx, "https://shop.test/")
	assert.Error(t, err)
	assert.NoError(t, first(t, p, "a").Click(ctx, core.ClickOptions{}))
}

const boardFixture = `<html><body>
<ul id="todo"><li id="task-1">Write</li><li id="task-2">Review</li></ul>
<ul id="done"></ul>
<div id="trash"></div>
<div id="hidden" style="display:none"></div>
</body></html>`

func TestDragTo(t *testing.T) {
	ctx := context.Background()
	p := NewPage(boardFixture)

	require.NoError(t, first(t, p, "#task-1").DragTo(ctx, first(t, p, "#done")))
	assert.Equal(t, 1, p.Query("#done > li#task-1").Length(), "without a handler the node moves")
	assert.Equal(t, 1, p.Query("#todo > li").Length())

	var dropped []string
	p.OnDrop("#trash", func(ctx context.Context, p *Page, src, dst *Element) error {
		dropped = append(dropped, src.Describe())
		p.Mutate(func(doc *goquery.Document) { doc.Find("#task-2").Remove() })
		return nil
	})
	require.NoError(t, first(t, p, "#task-2").DragTo(ctx, first(t, p, "#trash")))
	assert.Equal(t, []string{"li#task-2"}, dropped)
	assert.Equal(t, 0, p.Query("#task-2").Length())
	assert.Equal(t, []string{"li#task-1 -> ul#done", "li#task-2 -> div#trash"}, p.Drags())

	err := first(t, p, "#done").DragTo(ctx, first(t, p, "#hidden"))
	assert.ErrorIs(t, err, core.ErrElementNotVisible)

	err = first(t, p, "#done").DragTo(ctx, first(t, p, "#task-1"))
	assert.Error(t, err, "an element cannot be dropped into its own subtree")

	other := NewPage(boardFixture)
	assert.Error(t, first(t, p, "#done").DragTo(ctx, first(t, other, "#trash")))
}

func TestDragTo_Stale(t *testing.T) {
	ctx := context.Background()
	p := NewPage(boardFixture)
	src := first(t, p, "#task-1")
	dst := first(t, p, "#done")
	require.NoError(t, p.SetContent(boardFixture))

	assert.ErrorIs(t, src.DragTo(ctx, dst), core.ErrStaleElement)
}
