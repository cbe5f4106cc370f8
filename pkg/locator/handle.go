package locator

import (
	"context"
	"time"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// Default wait settings for lazy handles.
const (
	DefaultTimeout  = 5 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// Ref is an element reference: either a selector string (Sel) or a Handle.
type Ref interface {
	isRef()
}

// Sel is a selector string used as a Ref. Nothing is checked until the
// handle built from it is acted on.
type Sel string

func (Sel) isRef() {}

// String returns the selector text.
func (s Sel) String() string { return string(s) }

// Handle is an element reference the engines can act on.
//
// *LazyHandle re-resolves its selector on every call and waits for the
// element; *ResolvedHandle wraps an element that is already confirmed.
type Handle interface {
	Ref

	// Element returns the first matching element, waiting for it to attach.
	Element(ctx context.Context) (core.Element, error)
	// Elements returns every current match without waiting.
	Elements(ctx context.Context) ([]core.Element, error)
	// Count returns the number of current matches without waiting.
	Count(ctx context.Context) (int, error)

	// Locator chains a lazy selector under this handle.
	Locator(selector string) *LazyHandle

	Click(ctx context.Context, opts ...ClickOption) error
	Fill(ctx context.Context, value string) error
	Hover(ctx context.Context) error
	SelectOption(ctx context.Context, values ...string) error
	SetChecked(ctx context.Context, checked bool) error
	SetFiles(ctx context.Context, paths ...string) error
	ScrollIntoView(ctx context.Context) error

	Text(ctx context.Context) (string, error)
	AllTexts(ctx context.Context) ([]string, error)
	Value(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	Checked(ctx context.Context) (bool, error)

	String() string
}

// Option tunes a lazy handle.
type Option func(*settings)

type settings struct {
	timeout  time.Duration
	interval time.Duration
}

func defaultSettings() settings {
	return settings{timeout: DefaultTimeout, interval: DefaultInterval}
}

// WithTimeout sets how long actions wait for the element.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// ClickOption tunes a single click.
type ClickOption func(*clickConfig)

type clickConfig struct {
	opts    core.ClickOptions
	timeout time.Duration
}

// Button selects the mouse button.
func Button(b core.MouseButton) ClickOption {
	return func(c *clickConfig) { c.opts.Button = b }
}

// ClickCount sets how many clicks are sent (2 for a double click).
func ClickCount(n int) ClickOption {
	return func(c *clickConfig) { c.opts.ClickCount = n }
}

// Force skips the visible/enabled wait.
func Force() ClickOption {
	return func(c *clickConfig) { c.opts.Force = true }
}

// ClickTimeout overrides the handle timeout for one click.
func ClickTimeout(d time.Duration) ClickOption {
	return func(c *clickConfig) { c.timeout = d }
}

func buildClick(opts []ClickOption) clickConfig {
	var c clickConfig
	for _, o := range opts {
		o(&c)
	}
	c.opts = c.opts.Normalize()
	return c
}

// Resolve turns a Ref into a Handle. A Handle is returned as is; a Sel is
// wrapped lazily against scope with no existence check and no error.
func Resolve(scope core.Scope, ref Ref, opts ...Option) Handle {
	switch r := ref.(type) {
	case Handle:
		return r
	case Sel:
		return New(scope, string(r), opts...)
	default:
		return New(scope, "", opts...)
	}
}
