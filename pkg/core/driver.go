package core

import (
	"context"
	"time"
)

// Browser starts isolated pages. Implementations: rod (Chrome over CDP), mock.
// Every page returned by NewPage owns its own document context; flows running
// on different pages never share state.
type Browser interface {
	// NewPage opens a fresh, isolated page.
	NewPage(ctx context.Context) (Page, error)

	// Info returns browser details for reports.
	Info() *BrowserInfo

	// Close shuts the browser down.
	Close() error
}

// Scope is anything selectors can be evaluated against: a page, an element
// or a shadow root.
type Scope interface {
	// QueryAll returns every element matching a CSS selector, in document
	// order. Open shadow roots are pierced.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// XPathAll evaluates a path expression relative to the scope.
	// Evaluated on a page it does not cross shadow boundaries.
	XPathAll(ctx context.Context, expr string) ([]Element, error)
}

// Page is a single tab with its own document.
type Page interface {
	Scope

	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	WaitLoad(ctx context.Context) error

	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// Press sends a key (or a "Control+A" style chord) to the focused element.
	Press(ctx context.Context, key string) error

	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)

	// Evaluate runs a function expression in the page and returns its
	// JSON-compatible result.
	Evaluate(ctx context.Context, js string, args ...interface{}) (interface{}, error)

	// NextDialog subscribes to the next dialog the page opens. The
	// subscription fires at most once.
	NextDialog(ctx context.Context) DialogWaiter

	// Frames returns a page for every iframe and frame in the document, in
	// document order.
	Frames(ctx context.Context) ([]Page, error)

	// OpenTab opens url in a new tab that shares this page's browser
	// context (cookies, storage).
	OpenTab(ctx context.Context, url string) (Page, error)

	// Tabs lists the open tabs of this page's browser context in the order
	// they were opened, including popups the pages opened themselves.
	Tabs(ctx context.Context) ([]Page, error)

	// BringToFront makes the tab the active one.
	BringToFront(ctx context.Context) error

	// Close closes the page. Closing the first tab of a context disposes
	// the whole context; closing a frame page is a no-op.
	Close() error
}

// Element is a node resolved in a specific document snapshot. It must not be
// used after the document navigates away; drivers report ErrStaleElement.
type Element interface {
	Scope

	// ShadowRoot returns the open shadow root attached to the element,
	// obtained through in-page evaluation. ErrNoShadowRoot when none.
	ShadowRoot(ctx context.Context) (Element, error)

	Click(ctx context.Context, opts ClickOptions) error
	Fill(ctx context.Context, value string) error
	Hover(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error
	SelectOption(ctx context.Context, values ...string) error
	SetChecked(ctx context.Context, checked bool) error
	SetFiles(ctx context.Context, paths ...string) error

	// DragTo presses the mouse on the element, moves to the center of
	// target and releases it there.
	DragTo(ctx context.Context, target Element) error

	// Frame returns the document of an iframe or frame element as a page.
	// ErrNotAFrame for any other element.
	Frame(ctx context.Context) (Page, error)

	// Text returns the rendered text of the element.
	Text(ctx context.Context) (string, error)
	Value(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	Checked(ctx context.Context) (bool, error)

	// Describe returns a short human-readable form, e.g. button#shadow-btn.
	Describe() string
}

// MouseButton selects which button a click uses.
type MouseButton string

// MouseButton values
const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// ClickOptions tunes a click.
type ClickOptions struct {
	Button     MouseButton
	ClickCount int  // 0 means 1
	Force      bool // skip visibility/enabled checks
}

// Normalize fills zero values.
func (o ClickOptions) Normalize() ClickOptions {
	if o.Button == "" {
		o.Button = ButtonLeft
	}
	if o.ClickCount <= 0 {
		o.ClickCount = 1
	}
	return o
}

// DialogWaiter is a one-shot dialog subscription.
type DialogWaiter interface {
	// Wait blocks until the dialog opens or ctx is done.
	Wait(ctx context.Context) (Dialog, error)

	// Cancel tears the subscription down. Safe to call more than once.
	Cancel()
}

// Dialog is an open alert, confirm, prompt or beforeunload dialog.
type Dialog interface {
	Type() string
	Message() string
	Accept(ctx context.Context, promptText string) error
	Dismiss(ctx context.Context) error
}

// CommandResult represents the outcome of executing a single command
type CommandResult struct {
	// Core outcome
	Success  bool          `json:"success"`
	Error    error         `json:"-"`
	Duration time.Duration `json:"duration"`

	// Human-readable output
	Message string `json:"message,omitempty"`

	// Element information (for click, fill, assertions)
	Element *ElementInfo `json:"element,omitempty"`

	// Generic data for command-specific results
	// Examples: table cell text, dialog message, row count
	Data interface{} `json:"data,omitempty"`
}

// ElementInfo represents information about a DOM element
type ElementInfo struct {
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Visible  bool   `json:"visible"`
	Enabled  bool   `json:"enabled"`
}

// BrowserInfo contains browser details
type BrowserInfo struct {
	Name      string `json:"name"`              // chrome, mock
	Version   string `json:"version,omitempty"` // e.g., "HeadlessChrome/126.0"
	UserAgent string `json:"userAgent,omitempty"`
	Headless  bool   `json:"headless"`
}
