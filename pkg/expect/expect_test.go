package expect

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/driver/mock"
	"github.com/devicelab-dev/domkit/pkg/locator"
)

const fixture = `<html><head><title>Dashboard</title></head><body>
<h1 id="heading">  Welcome back  </h1>
<button id="save" disabled>Save</button>
<button id="cancel">Cancel</button>
<div id="toast" hidden>Saved!</div>
<input id="email" value="a@b.test" data-state="clean">
<ul><li>a</li><li>b</li></ul>
</body></html>`

func setup(t *testing.T) (*mock.Page, *Expect) {
	t.Helper()
	b := mock.New(mock.WithSite("https://app.test/dashboard", fixture))
	pg, err := b.NewPage(context.Background())
	require.NoError(t, err)
	require.NoError(t, pg.Navigate(context.Background(), "https://app.test/dashboard"))
	t.Cleanup(func() { _ = b.Close() })
	return pg.(*mock.Page), New(pg, WithTimeout(150*time.Millisecond), WithInterval(5*time.Millisecond))
}

func TestVisibility(t *testing.T) {
	ctx := context.Background()
	_, x := setup(t)

	assert.NoError(t, x.Visible(ctx, locator.Sel("#heading")))
	assert.NoError(t, x.Hidden(ctx, locator.Sel("#toast")))
	assert.NoError(t, x.Hidden(ctx, locator.Sel("#missing")))

	err := x.Visible(ctx, locator.Sel("#toast"))
	assert.ErrorIs(t, err, core.ErrConditionNotMet)
	assert.Contains(t, err.Error(), "#toast to be visible")
	assert.Contains(t, err.Error(), "not visible")
}

func TestVisibleEventually(t *testing.T) {
	ctx := context.Background()
	p, x := setup(t)
	x = New(p, WithTimeout(2*time.Second), WithInterval(5*time.Millisecond))

	go func() {
		time.Sleep(30 * time.Millisecond)
		p.Mutate(func(doc *goquery.Document) { doc.Find("#toast").RemoveAttr("hidden") })
	}()
	assert.NoError(t, x.Visible(ctx, locator.Sel("#toast")))
}

func TestEnabledDisabled(t *testing.T) {
	ctx := context.Background()
	_, x := setup(t)

	assert.NoError(t, x.Disabled(ctx, locator.Sel("#save")))
	assert.NoError(t, x.Enabled(ctx, locator.Sel("#cancel")))
	assert.ErrorIs(t, x.Enabled(ctx, locator.Sel("#save")), core.ErrConditionNotMet)
}

func TestText(t *testing.T) {
	ctx := context.Background()
	_, x := setup(t)

	assert.NoError(t, x.Text(ctx, locator.Sel("#heading"), "Welcome back"))
	assert.NoError(t, x.ContainsText(ctx, locator.Sel("#heading"), "back"))
	assert.NoError(t, x.MatchesText(ctx, locator.Sel("#heading"), regexp.MustCompile(`^Welcome`)))

	err := x.Text(ctx, locator.Sel("#heading"), "Welcome")
	assert.ErrorIs(t, err, core.ErrTextMismatch)
	assert.Contains(t, err.Error(), `"Welcome back"`)

	err = x.Text(ctx, locator.Sel("#nothing"), "x")
	assert.ErrorIs(t, err, core.ErrTextMismatch)
	assert.Contains(t, err.Error(), "no element")
}

func TestAttributeValueCount(t *testing.T) {
	ctx := context.Background()
	_, x := setup(t)

	assert.NoError(t, x.Attribute(ctx, locator.Sel("#email"), "data-state", "clean"))
	assert.ErrorIs(t, x.Attribute(ctx, locator.Sel("#email"), "data-state", "dirty"), core.ErrConditionNotMet)
	assert.ErrorIs(t, x.Attribute(ctx, locator.Sel("#email"), "aria-label", "x"), core.ErrConditionNotMet)

	assert.NoError(t, x.Value(ctx, locator.Sel("#email"), "a@b.test"))
	assert.NoError(t, x.Count(ctx, locator.Sel("li"), 2))
	assert.ErrorIs(t, x.Count(ctx, locator.Sel("li"), 3), core.ErrConditionNotMet)
}

func TestPageAssertions(t *testing.T) {
	ctx := context.Background()
	_, x := setup(t)

	assert.NoError(t, x.URL(ctx, "https://app.test/dashboard"))
	assert.NoError(t, x.URLMatches(ctx, regexp.MustCompile(`/dashboard$`)))
	assert.NoError(t, x.Title(ctx, "Dashboard"))
	assert.NoError(t, x.TitleMatches(ctx, regexp.MustCompile(`^Dash`)))
	assert.NoError(t, x.PageContainsText(ctx, "Welcome back"))

	err := x.Title(ctx, "Login")
	assert.ErrorIs(t, err, core.ErrConditionNotMet)
	assert.Contains(t, err.Error(), `"Dashboard"`)

	assert.ErrorIs(t, x.PageContainsText(ctx, "Saved!"), core.ErrTextMismatch, "hidden text is not rendered")
}
