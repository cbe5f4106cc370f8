package mock

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// tabGroup is the set of tabs sharing one browser context.
type tabGroup struct {
	pages  []*Page
	active *Page
}

// OpenTab opens url in a new tab of the page's context and makes it active.
func (p *Page) OpenTab(ctx context.Context, url string) (core.Page, error) {
	tab, err := p.openTab(ctx, url)
	if err != nil {
		return nil, err
	}
	p.browser.mu.Lock()
	tab.group.active = tab
	p.browser.mu.Unlock()
	return tab, nil
}

// openTab adds a tab to the group without activating it, the way a popup
// opens.
func (p *Page) openTab(ctx context.Context, url string) (*Page, error) {
	if p.browser == nil {
		return nil, fmt.Errorf("mock: standalone pages cannot open tabs")
	}
	root := p.tabRoot()
	tab := newPage(p.browser)

	b := p.browser
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, core.ErrBrowserDisconnected
	}
	tab.group = root.group
	tab.group.pages = append(tab.group.pages, tab)
	b.pages = append(b.pages, tab)
	b.mu.Unlock()

	if err := tab.Navigate(ctx, url); err != nil {
		_ = tab.Close()
		return nil, err
	}
	return tab, nil
}

// tabRoot returns the page that owns the browser context. Frames resolve to
// the tab that holds them.
func (p *Page) tabRoot() *Page {
	for p.parent != nil {
		p = p.parent
	}
	return p
}

// Tabs lists the open tabs of the context in opening order.
func (p *Page) Tabs(ctx context.Context) ([]core.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := p.tabRoot()
	if root.group == nil {
		return []core.Page{root}, nil
	}
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	out := make([]core.Page, 0, len(root.group.pages))
	for _, t := range root.group.pages {
		out = append(out, t)
	}
	return out, nil
}

// ActiveTab returns the tab last brought to front.
func (p *Page) ActiveTab() *Page {
	root := p.tabRoot()
	if root.group == nil {
		return root
	}
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	return root.group.active
}

// BringToFront marks the tab active.
func (p *Page) BringToFront(ctx context.Context) error {
	root := p.tabRoot()
	root.mu.Lock()
	err := root.check()
	root.mu.Unlock()
	if err != nil {
		return err
	}
	if root.group != nil {
		p.browser.mu.Lock()
		root.group.active = root
		p.browser.mu.Unlock()
	}
	return nil
}

// detachTab removes p from its group. Closing the owning tab closes the
// others too, as disposing a browser context does.
func (p *Page) detachTab() []*Page {
	if p.group == nil || p.browser == nil {
		return nil
	}
	p.browser.mu.Lock()
	defer p.browser.mu.Unlock()
	g := p.group
	if p.owner {
		rest := make([]*Page, 0, len(g.pages))
		for _, t := range g.pages {
			if t != p {
				rest = append(rest, t)
			}
		}
		g.pages = nil
		g.active = nil
		return rest
	}
	kept := g.pages[:0]
	for _, t := range g.pages {
		if t != p {
			kept = append(kept, t)
		}
	}
	g.pages = kept
	if g.active == p && len(kept) > 0 {
		g.active = kept[0]
	}
	return nil
}

// Frames returns a page for every iframe and frame in the document.
func (p *Page) Frames(ctx context.Context) ([]core.Page, error) {
	els, err := p.QueryAll(ctx, "iframe, frame")
	if err != nil {
		return nil, err
	}
	out := make([]core.Page, 0, len(els))
	for _, el := range els {
		f, err := el.Frame(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Frame returns the document inside an iframe or frame. Content comes from
// srcdoc, or from the browser's site for src. The same page is returned
// for the same element until the parent document is replaced.
func (e *Element) Frame(ctx context.Context) (core.Page, error) {
	p := e.page
	p.mu.Lock()
	if err := e.live(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if e.node.DataAtom != atom.Iframe && e.node.DataAtom != atom.Frame {
		p.mu.Unlock()
		return nil, core.ErrNotAFrame.WithMessagef("%s is not an iframe or frame", describeNode(e.node))
	}
	if f, ok := p.frames[e.node]; ok {
		p.mu.Unlock()
		return f, nil
	}
	srcdoc, hasDoc := attr(e.node, "srcdoc")
	src, _ := attr(e.node, "src")
	p.mu.Unlock()

	f := newPage(p.browser)
	f.parent = p
	switch {
	case hasDoc:
		if err := f.SetContent(srcdoc); err != nil {
			return nil, err
		}
		f.url = "about:srcdoc"
	case src != "" && src != "about:blank":
		if err := f.load(ctx, src); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.frames[e.node]; ok {
		return existing, nil
	}
	if p.frames == nil {
		p.frames = make(map[*html.Node]*Page)
	}
	p.frames[e.node] = f
	return f, nil
}

// isPopupLink reports whether clicking n opens a new tab.
func isPopupLink(n *html.Node) (string, bool) {
	if n.DataAtom != atom.A {
		return "", false
	}
	target, _ := attr(n, "target")
	href, ok := attr(n, "href")
	if !ok || !strings.EqualFold(target, "_blank") {
		return "", false
	}
	return href, true
}
