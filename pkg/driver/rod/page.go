package rod

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// Page is a Chrome tab, or a frame inside one. The first tab of a flow owns
// its incognito context; tabs opened from it share that context.
type Page struct {
	page    *rod.Page
	context *rod.Browser
	browser *Browser
	log     *zap.Logger
	tabs    *tabSet

	owner bool
	frame bool

	closeOnce sync.Once
}

// Rod returns the underlying rod page.
func (p *Page) Rod() *rod.Page { return p.page }

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.log.Debug("navigate", zap.String("url", url))
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return mapErr(err, "navigate "+url)
	}
	return mapErr(pg.WaitLoad(), "wait load "+url)
}

// Reload reloads the page.
func (p *Page) Reload(ctx context.Context) error {
	pg := p.page.Context(ctx)
	if err := pg.Reload(); err != nil {
		return mapErr(err, "reload")
	}
	return mapErr(pg.WaitLoad(), "wait load")
}

// Back navigates one entry back in history.
func (p *Page) Back(ctx context.Context) error {
	pg := p.page.Context(ctx)
	if err := pg.NavigateBack(); err != nil {
		return mapErr(err, "back")
	}
	return mapErr(pg.WaitLoad(), "wait load")
}

// Forward navigates one entry forward in history.
func (p *Page) Forward(ctx context.Context) error {
	pg := p.page.Context(ctx)
	if err := pg.NavigateForward(); err != nil {
		return mapErr(err, "forward")
	}
	return mapErr(pg.WaitLoad(), "wait load")
}

// WaitLoad waits for the load event of the current document.
func (p *Page) WaitLoad(ctx context.Context) error {
	return mapErr(p.page.Context(ctx).WaitLoad(), "wait load")
}

// URL returns the current URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", mapErr(err, "read url")
	}
	return info.URL, nil
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", mapErr(err, "read title")
	}
	return info.Title, nil
}

// Press sends key, or a chord such as "Control+A", to the focused element.
func (p *Page) Press(ctx context.Context, key string) error {
	mods, k, err := parseChord(key)
	if err != nil {
		return err
	}
	ka := p.page.Context(ctx).KeyActions()
	if len(mods) > 0 {
		ka = ka.Press(mods...)
	}
	// Do releases any key still held, so modifiers need no explicit release.
	return mapErr(ka.Type(k).Do(), "press "+key)
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	img, err := p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, mapErr(err, "screenshot")
	}
	return img, nil
}

// HTML returns the serialized document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	s, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", mapErr(err, "read html")
	}
	return s, nil
}

// Evaluate runs a function expression in the page and returns its result.
// Promises are awaited.
func (p *Page) Evaluate(ctx context.Context, js string, args ...interface{}) (interface{}, error) {
	res, err := p.page.Context(ctx).Evaluate(rod.Eval(js, args...).ByPromise())
	if err != nil {
		return nil, mapErr(err, "evaluate")
	}
	return res.Value.Val(), nil
}

// QueryAll returns every element matching selector, piercing open shadow
// roots.
func (p *Page) QueryAll(ctx context.Context, selector string) ([]core.Element, error) {
	els, err := p.page.Context(ctx).ElementsByJS(rod.Eval(deepQueryJS, selector))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("query %q", selector))
	}
	return p.wrap(els), nil
}

// XPathAll evaluates expr against the document. Shadow trees are not
// entered.
func (p *Page) XPathAll(ctx context.Context, expr string) ([]core.Element, error) {
	els, err := p.page.Context(ctx).ElementsByJS(rod.Eval(xpathJS, expr))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("xpath %q", expr))
	}
	return p.wrap(els), nil
}

// NextDialog subscribes to the next JavaScript dialog.
func (p *Page) NextDialog(ctx context.Context) core.DialogWaiter {
	return newDialogWaiter(ctx, p)
}

// Close closes the tab. Closing the owning tab also disposes the browser
// context and with it every other tab. Closing a frame does nothing.
func (p *Page) Close() error {
	if p.frame {
		return nil
	}
	var err error
	p.closeOnce.Do(func() {
		if cerr := p.page.Close(); cerr != nil {
			err = mapErr(cerr, "close page")
		}
		p.tabs.remove(p)
		if !p.owner {
			return
		}
		if cerr := p.context.Close(); cerr != nil && err == nil {
			err = mapErr(cerr, "close browser context")
		}
		p.browser.forget(p)
	})
	return err
}

func (p *Page) wrap(els rod.Elements) []core.Element {
	out := make([]core.Element, len(els))
	for i, el := range els {
		out[i] = &Element{page: p, el: el}
	}
	return out
}

var staleMessages = []string{
	"Cannot find context with specified id",
	"Execution context was destroyed",
	"Could not find node with given id",
	"No node with given id found",
	"Node is detached from document",
	"Could not find object with given id",
	"element is not connected",
}

var disconnectMessages = []string{
	"use of closed network connection",
	"websocket: close",
	"Target closed",
	"No target with given id found",
	"Session with given id not found",
}

// mapErr converts rod and CDP failures into execution errors.
func mapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var ee *core.ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrTimeout.WithMessagef("%s timed out", op).WithCause(err)
	}
	var notFound *rod.ObjectNotFoundError
	if errors.As(err, &notFound) {
		return core.ErrStaleElement.WithMessagef("%s: element is stale", op).WithCause(err)
	}
	msg := err.Error()
	for _, s := range staleMessages {
		if strings.Contains(msg, s) {
			return core.ErrStaleElement.WithMessagef("%s: element is stale", op).WithCause(err)
		}
	}
	for _, s := range disconnectMessages {
		if strings.Contains(msg, s) {
			return core.ErrBrowserDisconnected.WithMessagef("%s: browser connection lost", op).WithCause(err)
		}
	}
	if strings.Contains(msg, "net::ERR_") {
		return core.ErrBrowserUnreachable.WithMessage(op).WithCause(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
