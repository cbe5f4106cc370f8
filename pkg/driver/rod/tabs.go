package rod

import (
	"context"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// tabSet keeps the tabs of one incognito context in opening order.
type tabSet struct {
	mu   sync.Mutex
	tabs []*Page
}

func (s *tabSet) add(p *Page) {
	s.mu.Lock()
	s.tabs = append(s.tabs, p)
	s.mu.Unlock()
}

func (s *tabSet) remove(p *Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tabs[:0]
	for _, t := range s.tabs {
		if t != p {
			kept = append(kept, t)
		}
	}
	s.tabs = kept
}

// adopt wraps a target of the same context as a tab.
func (p *Page) adopt(pg *rod.Page) *Page {
	tab := &Page{page: pg, context: p.context, browser: p.browser, log: p.log, tabs: p.tabs}
	p.tabs.add(tab)
	return tab
}

// OpenTab opens url in a new tab of the page's context and brings it to
// front.
func (p *Page) OpenTab(ctx context.Context, url string) (core.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapErr(err, "open tab")
	}
	pg, err := p.browser.newTarget(p.context)
	if err != nil {
		return nil, err
	}
	tab := p.adopt(pg)
	p.log.Debug("tab opened", zap.String("target", string(pg.TargetID)), zap.String("url", url))
	if err := tab.Navigate(ctx, url); err != nil {
		_ = tab.Close()
		return nil, err
	}
	if err := tab.BringToFront(ctx); err != nil {
		return nil, err
	}
	return tab, nil
}

// Tabs lists the open tabs of the context. Tabs the page opened itself,
// such as target=_blank popups, are adopted and listed after the known ones.
func (p *Page) Tabs(ctx context.Context) ([]core.Page, error) {
	res, err := proto.TargetGetTargets{}.Call(p.context.Context(ctx))
	if err != nil {
		return nil, mapErr(err, "list tabs")
	}
	var ids []proto.TargetTargetID
	open := make(map[proto.TargetTargetID]bool)
	for _, info := range res.TargetInfos {
		if info.Type == proto.TargetTargetInfoTypePage && info.BrowserContextID == p.context.BrowserContextID {
			ids = append(ids, info.TargetID)
			open[info.TargetID] = true
		}
	}

	p.tabs.mu.Lock()
	known := make(map[proto.TargetTargetID]bool)
	kept := p.tabs.tabs[:0]
	for _, t := range p.tabs.tabs {
		if open[t.page.TargetID] {
			kept = append(kept, t)
			known[t.page.TargetID] = true
		}
	}
	p.tabs.tabs = kept
	p.tabs.mu.Unlock()

	for _, id := range ids {
		if known[id] {
			continue
		}
		pg, err := p.context.Context(ctx).PageFromTarget(id)
		if err != nil {
			return nil, mapErr(err, "attach tab")
		}
		p.browser.setViewport(pg)
		p.adopt(pg)
	}

	p.tabs.mu.Lock()
	defer p.tabs.mu.Unlock()
	out := make([]core.Page, len(p.tabs.tabs))
	for i, t := range p.tabs.tabs {
		out[i] = t
	}
	return out, nil
}

// BringToFront activates the tab.
func (p *Page) BringToFront(ctx context.Context) error {
	_, err := p.page.Context(ctx).Activate()
	return mapErr(err, "activate tab")
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

// Frame returns the document of an iframe or frame as a page. Cross-origin
// frames are reached through their own execution context.
func (e *Element) Frame(ctx context.Context) (core.Page, error) {
	res, err := e.eval(ctx, tagNameJS)
	if err != nil {
		return nil, mapErr(err, "read tag")
	}
	if tag := res.Value.Str(); tag != "IFRAME" && tag != "FRAME" {
		return nil, core.ErrNotAFrame.WithMessagef("%s is not an iframe or frame", e.Describe())
	}
	fp, err := e.with(ctx).Frame()
	if err != nil {
		return nil, mapErr(err, "enter frame "+e.Describe())
	}
	if err := fp.Context(ctx).WaitLoad(); err != nil {
		return nil, mapErr(err, "wait frame load")
	}
	parent := e.page
	return &Page{
		page:    fp,
		context: parent.context,
		browser: parent.browser,
		log:     parent.log.With(zap.String("frame", e.Describe())),
		tabs:    parent.tabs,
		frame:   true,
	}, nil
}
