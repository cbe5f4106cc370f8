package mock

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/devicelab-dev/domkit/pkg/core"
)

const blankDocument = "<html><head></head><body></body></html>"

// ClickFunc runs when an element matching its selector is clicked. It is
// called without the page lock held, so it may freely read and rewrite the
// document.
type ClickFunc func(ctx context.Context, p *Page, el *Element) error

// EvalFunc answers Page.Evaluate.
type EvalFunc func(js string, args []interface{}) (interface{}, error)

// DropFunc runs when an element is dragged onto an element matching its
// selector. Like ClickFunc it is called without the page lock held.
type DropFunc func(ctx context.Context, p *Page, src, dst *Element) error

type clickHandler struct {
	selector string
	fn       ClickFunc
}

type dropHandler struct {
	selector string
	fn       DropFunc
}

// Page is a mock implementation of core.Page.
type Page struct {
	mu      sync.Mutex
	browser *Browser

	url     string
	doc     *html.Node
	history []string
	pos     int

	handlers []clickHandler
	drops    []dropHandler
	eval     EvalFunc
	waiters  []*dialogWaiter
	dialogs  []*Dialog
	clicks   []string
	drags    []string
	scrolls  []string
	keys     []string
	focused  *html.Node
	closed   bool

	// Tabs of one context share a group; the first tab owns it. Frame
	// pages have a parent instead.
	group  *tabGroup
	owner  bool
	parent *Page
	frames map[*html.Node]*Page
}

func newPage(b *Browser) *Page {
	doc, _ := html.Parse(strings.NewReader(blankDocument))
	return &Page{browser: b, url: "about:blank", doc: doc}
}

// NewPage returns a standalone page showing doc.
func NewPage(doc string) *Page {
	p := newPage(nil)
	if err := p.SetContent(doc); err != nil {
		panic(err)
	}
	return p
}

// SetContent replaces the document. Elements resolved from the previous
// document become stale. Click handlers are kept.
func (p *Page) SetContent(doc string) error {
	n, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return fmt.Errorf("mock: parse document: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = n
	p.focused = nil
	p.frames = nil
	return nil
}

// Mutate edits the document in place. Nodes that stay attached remain valid.
func (p *Page) Mutate(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(goquery.NewDocumentFromNode(p.doc))
}

// Query runs a CSS query for test assertions.
func (p *Page) Query(css string) *goquery.Selection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return goquery.NewDocumentFromNode(p.doc).Find(css)
}

// OnClick registers fn for clicks on elements matching css.
func (p *Page) OnClick(css string, fn ClickFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, clickHandler{selector: css, fn: fn})
}

// OnDrop registers fn for drags onto elements matching css.
func (p *Page) OnDrop(css string, fn DropFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drops = append(p.drops, dropHandler{selector: css, fn: fn})
}

// OnEvaluate sets the responder for Evaluate.
func (p *Page) OnEvaluate(fn EvalFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eval = fn
}

// Clicks returns descriptions of every clicked element, in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Scrolls describes every element scrolled into view, in order.
func (p *Page) Scrolls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scrolls...)
}

// Drags returns "source -> target" for every drag, in order.
func (p *Page) Drags() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.drags...)
}

// Keys returns every pressed key, in order.
func (p *Page) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// Dialogs returns every dialog opened so far.
func (p *Page) Dialogs() []*Dialog {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Dialog(nil), p.dialogs...)
}

func (p *Page) check() error {
	if p.closed {
		return core.ErrBrowserDisconnected.WithMessage("page is closed")
	}
	return nil
}

// Navigate loads url from the browser's sites. Click handlers are reset and
// the site's setup functions run.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.load(ctx, url); err != nil {
		return err
	}
	p.mu.Lock()
	p.history = append(p.history[:p.pos], url)
	p.pos = len(p.history)
	p.mu.Unlock()
	return nil
}

func (p *Page) load(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content := blankDocument
	var setup []SetupFunc
	if url != "about:blank" {
		if p.browser == nil {
			return core.ErrBrowserUnreachable.WithMessagef("no content for %s", url)
		}
		s, ok := p.browser.lookup(url)
		if !ok {
			return core.ErrBrowserUnreachable.WithMessagef("no content for %s", url)
		}
		content, setup = s.html, s.setup
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("mock: parse %s: %w", url, err)
	}

	p.mu.Lock()
	if err := p.check(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.doc = doc
	p.url = url
	p.focused = nil
	p.handlers = nil
	p.drops = nil
	p.frames = nil
	p.mu.Unlock()

	for _, fn := range setup {
		fn(p)
	}
	return nil
}

// Reload loads the current URL again.
func (p *Page) Reload(ctx context.Context) error {
	p.mu.Lock()
	url := p.url
	p.mu.Unlock()
	return p.load(ctx, url)
}

// Back goes one entry back in history.
func (p *Page) Back(ctx context.Context) error {
	return p.step(ctx, -1)
}

// Forward goes one entry forward in history.
func (p *Page) Forward(ctx context.Context) error {
	return p.step(ctx, 1)
}

func (p *Page) step(ctx context.Context, delta int) error {
	p.mu.Lock()
	// pos points one past the current entry.
	target := p.pos - 1 + delta
	if target < 0 || target >= len(p.history) {
		p.mu.Unlock()
		return nil
	}
	url := p.history[target]
	p.mu.Unlock()

	if err := p.load(ctx, url); err != nil {
		return err
	}
	p.mu.Lock()
	p.pos = target + 1
	p.mu.Unlock()
	return nil
}

// WaitLoad returns immediately; mock documents load synchronously.
func (p *Page) WaitLoad(ctx context.Context) error {
	return ctx.Err()
}

// URL returns the current URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, p.check()
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return "", err
	}
	t := htmlquery.FindOne(p.doc, "//title")
	if t == nil {
		return "", nil
	}
	return strings.TrimSpace(htmlquery.InnerText(t)), nil
}

// Press records key.
func (p *Page) Press(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	p.keys = append(p.keys, key)
	return nil
}

// Screenshot returns a 1x1 PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	err := p.check()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HTML serializes the document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, p.doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Evaluate forwards to the OnEvaluate responder.
func (p *Page) Evaluate(ctx context.Context, js string, args ...interface{}) (interface{}, error) {
	p.mu.Lock()
	fn := p.eval
	err := p.check()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("mock: no evaluate responder for %q", js)
	}
	return fn(js, args)
}

// QueryAll runs a CSS query over the whole document, piercing open shadow
// roots.
func (p *Page) QueryAll(ctx context.Context, selector string) ([]core.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return nil, err
	}
	return p.queryCSS(p.doc, selector), nil
}

// XPathAll evaluates expr against the document. Shadow content is not
// reachable.
func (p *Page) XPathAll(ctx context.Context, expr string) ([]core.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return nil, err
	}
	return p.queryXPath(p.doc, expr)
}

// Close closes the tab and cancels pending dialog waiters. Closing the
// first tab of a context closes the rest. Frame pages close with their tab.
func (p *Page) Close() error {
	if p.parent != nil {
		return nil
	}
	if !p.shut() {
		return nil
	}
	for _, t := range p.detachTab() {
		_ = t.Close()
	}
	return nil
}

// shut marks p and its frames closed. It reports false when p was
// already closed.
func (p *Page) shut() bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.closed = true
	for _, w := range p.waiters {
		w.close()
	}
	p.waiters = nil
	frames := p.frames
	p.mu.Unlock()

	for _, f := range frames {
		f.shut()
	}
	return true
}

func (p *Page) queryCSS(root *html.Node, selector string) []core.Element {
	var out []core.Element
	for _, n := range goquery.NewDocumentFromNode(root).Find(selector).Nodes {
		if n == root || crossesClosedBoundary(root, n) {
			continue
		}
		out = append(out, &Element{page: p, node: n})
	}
	return out
}

func (p *Page) queryXPath(root *html.Node, expr string) ([]core.Element, error) {
	nodes, err := htmlquery.QueryAll(root, expr)
	if err != nil {
		return nil, fmt.Errorf("mock: invalid xpath %q: %w", expr, err)
	}
	var out []core.Element
	for _, n := range nodes {
		if n.Type != html.ElementNode || n == root || crossesAnyBoundary(root, n) {
			continue
		}
		out = append(out, &Element{page: p, node: n})
	}
	return out, nil
}

func (p *Page) matchingHandlers(n *html.Node) []ClickFunc {
	var out []ClickFunc
	for _, h := range p.handlers {
		if p.matches(h.selector, n) {
			out = append(out, h.fn)
		}
	}
	return out
}

func (p *Page) matchingDrops(n *html.Node) []DropFunc {
	var out []DropFunc
	for _, h := range p.drops {
		if p.matches(h.selector, n) {
			out = append(out, h.fn)
		}
	}
	return out
}

func (p *Page) matches(css string, n *html.Node) bool {
	for _, m := range goquery.NewDocumentFromNode(p.doc).Find(css).Nodes {
		if m == n {
			return true
		}
	}
	return false
}

func (p *Page) attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == p.doc {
			return true
		}
	}
	return false
}
