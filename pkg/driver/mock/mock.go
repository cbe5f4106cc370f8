// Package mock provides an in-memory browser for testing without Chrome.
//
// Pages hold a parsed HTML document. CSS queries run through goquery and pierce
// declarative open shadow roots (<template shadowrootmode="open">); XPath
// queries run through htmlquery and stay on their side of a shadow boundary,
// the way document.evaluate does in a real browser. Click behaviour is
// scripted per selector with Page.OnClick.
package mock

import (
	"context"
	"net/url"
	"os"
	"sync"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// SetupFunc prepares a page after it loads a site, typically by registering
// click handlers.
type SetupFunc func(p *Page)

type site struct {
	html  string
	setup []SetupFunc
}

// Browser is a mock implementation of core.Browser.
type Browser struct {
	mu     sync.Mutex
	sites  map[string]site
	load   LoaderFunc
	pages  []*Page
	closed bool
}

// LoaderFunc supplies the document for a URL that has no registered site.
type LoaderFunc func(url string) (doc string, ok bool)

// Option configures a Browser.
type Option func(*Browser)

// WithSite serves doc at url. setup runs every time a page loads url.
func WithSite(url, doc string, setup ...SetupFunc) Option {
	return func(b *Browser) { b.sites[url] = site{html: doc, setup: setup} }
}

// WithLoader consults load for URLs without a registered site.
func WithLoader(load LoaderFunc) Option {
	return func(b *Browser) { b.load = load }
}

// FileLoader serves file:// URLs from disk.
func FileLoader(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	data, err := os.ReadFile(u.Path) //#nosec G304 -- fixture path from the flow
	if err != nil {
		return "", false
	}
	return string(data), true
}

// New creates a mock browser.
func New(opts ...Option) *Browser {
	b := &Browser{sites: make(map[string]site)}
	for _, o := range opts {
		o(b)
	}
	return b
}

// AddSite serves doc at url.
func (b *Browser) AddSite(url, doc string, setup ...SetupFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sites[url] = site{html: doc, setup: setup}
}

func (b *Browser) lookup(url string) (site, bool) {
	b.mu.Lock()
	s, ok := b.sites[url]
	load := b.load
	b.mu.Unlock()
	if ok || load == nil {
		return s, ok
	}
	doc, ok := load(url)
	return site{html: doc}, ok
}

// NewPage opens a blank page.
func (b *Browser) NewPage(ctx context.Context) (core.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, core.ErrBrowserDisconnected
	}
	p := newPage(b)
	p.owner = true
	p.group = &tabGroup{pages: []*Page{p}, active: p}
	b.pages = append(b.pages, p)
	return p, nil
}

// Pages returns every page opened so far.
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Page, len(b.pages))
	copy(out, b.pages)
	return out
}

// Info returns browser details.
func (b *Browser) Info() *core.BrowserInfo {
	return &core.BrowserInfo{Name: "mock", Version: "1.0", Headless: true}
}

// Close closes every page.
func (b *Browser) Close() error {
	b.mu.Lock()
	pages := b.pages
	b.closed = true
	b.mu.Unlock()
	for _, p := range pages {
		_ = p.Close()
	}
	return nil
}
