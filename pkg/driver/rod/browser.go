// Package rod implements the browser boundary on Chrome through the DevTools
// protocol, using go-rod.
//
// Every page lives in its own incognito browser context, so cookies and
// storage never leak between flows that run in parallel.
package rod

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/logger"
)

// Config configures how Chrome is started or reached.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome.
	// Empty launches a local Chrome.
	RemoteURL string

	// Bin is the Chrome executable. Empty uses an installed Chrome, else a
	// Chromium downloaded into BrowserDir.
	Bin string

	// BrowserDir caches downloaded Chromium builds.
	BrowserDir string

	Headless  bool
	NoSandbox bool

	// Stealth creates pages with go-rod/stealth evasions applied.
	Stealth bool

	// SlowMotion delays every input action, useful when watching a run.
	SlowMotion time.Duration

	ViewportWidth  int
	ViewportHeight int

	IgnoreCertErrors bool

	Logger *zap.Logger
}

func (c *Config) defaults() {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 800
	}
	if c.Logger == nil {
		c.Logger = logger.Named("rod")
	}
}

// Browser is a connected Chrome instance.
type Browser struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	info    core.BrowserInfo
	pages   map[*Page]struct{}
	closed  bool
}

// Launch starts Chrome, or connects to cfg.RemoteURL, and returns the
// connected browser.
func Launch(ctx context.Context, cfg Config) (*Browser, error) {
	cfg.defaults()
	log := cfg.Logger

	b := &Browser{cfg: cfg, pages: make(map[*Page]struct{})}

	wsURL := cfg.RemoteURL
	if wsURL != "" {
		log.Info("connecting to remote chrome", zap.String("url", wsURL))
	} else {
		l := launcher.New().Context(ctx).Headless(cfg.Headless).NoSandbox(cfg.NoSandbox)
		bin := cfg.Bin
		if bin == "" {
			bin, _ = launcher.LookPath()
		}
		if bin == "" && cfg.BrowserDir != "" {
			lb := launcher.NewBrowser()
			lb.Context = ctx
			lb.RootDir = cfg.BrowserDir
			lb.Logger = zap.NewStdLog(log)
			p, err := lb.Get()
			if err != nil {
				return nil, core.ErrBrowserUnreachable.WithMessagef("download chromium to %s", cfg.BrowserDir).WithCause(err)
			}
			bin = p
		}
		if bin != "" {
			l = l.Bin(bin)
		}
		// Anti-detection flag.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, core.ErrBrowserUnreachable.WithMessage("launch chrome").WithCause(err)
		}
		wsURL = u
		b.lnch = l
		log.Info("launched local chrome", zap.String("url", wsURL), zap.Bool("headless", cfg.Headless))
	}

	rb := rod.New().ControlURL(wsURL)
	if cfg.SlowMotion > 0 {
		rb = rb.SlowMotion(cfg.SlowMotion)
	}
	if err := rb.Connect(); err != nil {
		_ = b.cleanup()
		return nil, core.ErrBrowserUnreachable.WithMessagef("connect to %s", wsURL).WithCause(err)
	}
	b.browser = rb

	if cfg.IgnoreCertErrors {
		if err := rb.IgnoreCertErrors(true); err != nil {
			log.Warn("ignore cert errors failed", zap.Error(err))
		}
	}

	b.info = core.BrowserInfo{Name: "chrome", Headless: cfg.Headless}
	if v, err := (proto.BrowserGetVersion{}).Call(rb); err == nil {
		b.info.Version = v.Product
		b.info.UserAgent = v.UserAgent
	} else {
		log.Warn("read browser version", zap.Error(err))
	}

	return b, nil
}

// NewPage opens a page in a fresh incognito context.
func (b *Browser) NewPage(ctx context.Context) (core.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.browser == nil {
		return nil, core.ErrBrowserDisconnected
	}
	if err := ctx.Err(); err != nil {
		return nil, mapErr(err, "create page")
	}

	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, mapErr(err, "create browser context")
	}
	page, err := b.newTarget(incognito)
	if err != nil {
		_ = incognito.Close()
		return nil, err
	}

	p := &Page{page: page, context: incognito, browser: b, log: b.cfg.Logger, owner: true}
	p.tabs = &tabSet{tabs: []*Page{p}}
	b.pages[p] = struct{}{}
	b.cfg.Logger.Debug("page opened", zap.String("target", string(page.TargetID)))
	return p, nil
}

// newTarget opens a blank tab in incognito with the configured evasions and
// viewport.
func (b *Browser) newTarget(incognito *rod.Browser) (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if b.cfg.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, mapErr(err, "create page")
	}
	b.setViewport(page)
	return page, nil
}

func (b *Browser) setViewport(page *rod.Page) {
	err := proto.EmulationSetDeviceMetricsOverride{
		Width:             b.cfg.ViewportWidth,
		Height:            b.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}.Call(page)
	if err != nil {
		b.cfg.Logger.Warn("set viewport", zap.Error(err))
	}
}

func (b *Browser) forget(p *Page) {
	b.mu.Lock()
	delete(b.pages, p)
	b.mu.Unlock()
}

// Info returns browser details.
func (b *Browser) Info() *core.BrowserInfo {
	info := b.info
	return &info
}

// Close closes every open page and shuts Chrome down. A remote Chrome is
// only disconnected.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pages := make([]*Page, 0, len(b.pages))
	for p := range b.pages {
		pages = append(pages, p)
	}
	b.mu.Unlock()

	for _, p := range pages {
		_ = p.Close()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleanup()
}

func (b *Browser) cleanup() error {
	var err error
	if b.browser != nil {
		if b.lnch != nil {
			err = b.browser.Close()
		}
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	if err != nil && strings.Contains(err.Error(), "websocket: close") {
		err = nil
	}
	return err
}
