package locator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// LazyHandle is a selector bound to a scope. Every call re-runs the query
// against the live document, so two handles built from the same selector
// always observe the same state.
type LazyHandle struct {
	scope  core.Scope
	parent Handle
	sel    Selector
	text   *regexp.Regexp
	nth    int // -1 = all matches
	cfg    settings
}

// New creates a lazy handle for selector under scope.
func New(scope core.Scope, selector string, opts ...Option) *LazyHandle {
	cfg := defaultSettings()
	for _, o := range opts {
		o(&cfg)
	}
	return &LazyHandle{scope: scope, sel: Parse(selector), nth: -1, cfg: cfg}
}

func (*LazyHandle) isRef() {}

// Selector returns the parsed selector of the last chain segment.
func (h *LazyHandle) Selector() Selector { return h.sel }

// Timeout returns the action timeout.
func (h *LazyHandle) Timeout() time.Duration { return h.cfg.timeout }

// Locator chains selector under every match of h.
func (h *LazyHandle) Locator(selector string) *LazyHandle {
	return &LazyHandle{parent: h, sel: Parse(selector), nth: -1, cfg: h.cfg}
}

// FilterText narrows matches to elements whose trimmed text matches re.
func (h *LazyHandle) FilterText(re *regexp.Regexp) *LazyHandle {
	c := *h
	c.text = re
	return &c
}

// HasText narrows matches to elements whose text contains s.
func (h *LazyHandle) HasText(s string) *LazyHandle {
	return h.FilterText(regexp.MustCompile(regexp.QuoteMeta(s)))
}

// ExactText narrows matches to elements whose trimmed text equals s.
func (h *LazyHandle) ExactText(s string) *LazyHandle {
	return h.FilterText(regexp.MustCompile("^" + regexp.QuoteMeta(s) + "$"))
}

// Nth narrows matches to the i-th one (0-based).
func (h *LazyHandle) Nth(i int) *LazyHandle {
	c := *h
	c.nth = i
	return &c
}

// With returns a copy with different wait settings.
func (h *LazyHandle) With(opts ...Option) *LazyHandle {
	c := *h
	for _, o := range opts {
		o(&c.cfg)
	}
	return &c
}

// String describes the chain, e.g. #host >> xpath=.//button >> nth=0.
func (h *LazyHandle) String() string {
	var b strings.Builder
	if h.parent != nil {
		b.WriteString(h.parent.String())
		b.WriteString(" >> ")
	}
	b.WriteString(h.sel.String())
	if h.text != nil {
		fmt.Fprintf(&b, " >> has-text=/%s/", h.text.String())
	}
	if h.nth >= 0 {
		fmt.Fprintf(&b, " >> nth=%d", h.nth)
	}
	return b.String()
}

// Elements returns every current match without waiting.
func (h *LazyHandle) Elements(ctx context.Context) ([]core.Element, error) {
	scopes, err := h.scopes(ctx)
	if err != nil {
		return nil, err
	}

	var out []core.Element
	for _, s := range scopes {
		var found []core.Element
		if h.sel.IsPath() {
			found, err = s.XPathAll(ctx, h.sel.Expr)
		} else {
			found, err = s.QueryAll(ctx, h.sel.Expr)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}

	if h.text != nil {
		filtered := out[:0]
		for _, el := range out {
			txt, err := el.Text(ctx)
			if err != nil {
				return nil, err
			}
			if h.text.MatchString(strings.TrimSpace(txt)) {
				filtered = append(filtered, el)
			}
		}
		out = filtered
	}

	if h.nth >= 0 {
		if h.nth >= len(out) {
			return nil, nil
		}
		return out[h.nth : h.nth+1], nil
	}
	return out, nil
}

func (h *LazyHandle) scopes(ctx context.Context) ([]core.Scope, error) {
	if h.parent == nil {
		if h.scope == nil {
			return nil, core.ErrElementNotFound.WithMessagef("selector %q has no scope", h.sel.String())
		}
		return []core.Scope{h.scope}, nil
	}
	parents, err := h.parent.Elements(ctx)
	if err != nil {
		return nil, err
	}
	scopes := make([]core.Scope, len(parents))
	for i, p := range parents {
		scopes[i] = p
	}
	return scopes, nil
}

// Count returns the number of current matches without waiting.
func (h *LazyHandle) Count(ctx context.Context) (int, error) {
	els, err := h.Elements(ctx)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

// Element waits for the first match.
func (h *LazyHandle) Element(ctx context.Context) (core.Element, error) {
	var el core.Element
	err := Poll(ctx, h.cfg.timeout, h.cfg.interval, h.String(), func(ctx context.Context) (bool, error) {
		els, err := h.Elements(ctx)
		if err != nil {
			return false, err
		}
		if len(els) == 0 {
			return false, nil
		}
		el = els[0]
		return true, nil
	})
	return el, err
}

// act waits for the first match (and, when actionable is set, for it to be
// visible and enabled) and then runs fn on it. Stale or detached elements
// are re-resolved until the timeout.
func (h *LazyHandle) act(ctx context.Context, timeout time.Duration, actionable bool, fn func(ctx context.Context, el core.Element) error) error {
	if timeout <= 0 {
		timeout = h.cfg.timeout
	}
	what := h.String()
	if actionable {
		what += " to be visible and enabled"
	}
	return Poll(ctx, timeout, h.cfg.interval, what, func(ctx context.Context) (bool, error) {
		els, err := h.Elements(ctx)
		if err != nil {
			return false, err
		}
		if len(els) == 0 {
			return false, nil
		}
		el := els[0]
		if actionable {
			ok, err := ready(ctx, el)
			if err != nil || !ok {
				return false, err
			}
		}
		if err := fn(ctx, el); err != nil {
			return false, err
		}
		return true, nil
	})
}

func ready(ctx context.Context, el core.Element) (bool, error) {
	visible, err := el.Visible(ctx)
	if err != nil || !visible {
		return false, err
	}
	return el.Enabled(ctx)
}

// Click waits for the element to be actionable and clicks it.
func (h *LazyHandle) Click(ctx context.Context, opts ...ClickOption) error {
	c := buildClick(opts)
	return h.act(ctx, c.timeout, !c.opts.Force, func(ctx context.Context, el core.Element) error {
		return el.Click(ctx, c.opts)
	})
}

// Fill waits for the element to be actionable and replaces its value.
func (h *LazyHandle) Fill(ctx context.Context, value string) error {
	return h.act(ctx, 0, true, func(ctx context.Context, el core.Element) error {
		return el.Fill(ctx, value)
	})
}

// Hover moves the pointer over the element.
func (h *LazyHandle) Hover(ctx context.Context) error {
	return h.act(ctx, 0, true, func(ctx context.Context, el core.Element) error {
		return el.Hover(ctx)
	})
}

// SelectOption selects options of a <select> by value or label.
func (h *LazyHandle) SelectOption(ctx context.Context, values ...string) error {
	return h.act(ctx, 0, true, func(ctx context.Context, el core.Element) error {
		return el.SelectOption(ctx, values...)
	})
}

// SetChecked checks or unchecks a checkbox or radio.
func (h *LazyHandle) SetChecked(ctx context.Context, checked bool) error {
	return h.act(ctx, 0, true, func(ctx context.Context, el core.Element) error {
		return el.SetChecked(ctx, checked)
	})
}

// SetFiles sets the files of a file input. Hidden inputs are allowed.
func (h *LazyHandle) SetFiles(ctx context.Context, paths ...string) error {
	return h.act(ctx, 0, false, func(ctx context.Context, el core.Element) error {
		return el.SetFiles(ctx, paths...)
	})
}

// ScrollIntoView scrolls the element into the viewport.
func (h *LazyHandle) ScrollIntoView(ctx context.Context) error {
	return h.act(ctx, 0, false, func(ctx context.Context, el core.Element) error {
		return el.ScrollIntoView(ctx)
	})
}

// Text waits for the element and returns its rendered text.
func (h *LazyHandle) Text(ctx context.Context) (string, error) {
	var txt string
	err := h.act(ctx, 0, false, func(ctx context.Context, el core.Element) error {
		var err error
		txt, err = el.Text(ctx)
		return err
	})
	return txt, err
}

// AllTexts returns the text of every current match without waiting.
func (h *LazyHandle) AllTexts(ctx context.Context) ([]string, error) {
	els, err := h.Elements(ctx)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		txt, err := el.Text(ctx)
		if err != nil {
			return nil, err
		}
		texts = append(texts, txt)
	}
	return texts, nil
}

// Value waits for the element and returns its form value.
func (h *LazyHandle) Value(ctx context.Context) (string, error) {
	var v string
	err := h.act(ctx, 0, false, func(ctx context.Context, el core.Element) error {
		var err error
		v, err = el.Value(ctx)
		return err
	})
	return v, err
}

// Attribute waits for the element and reads an attribute.
func (h *LazyHandle) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := h.act(ctx, 0, false, func(ctx context.Context, el core.Element) error {
		var err error
		v, ok, err = el.Attribute(ctx, name)
		return err
	})
	return v, ok, err
}

// Visible reports whether the first match is visible. It does not wait; no
// match means not visible.
func (h *LazyHandle) Visible(ctx context.Context) (bool, error) {
	els, err := h.Elements(ctx)
	if err != nil || len(els) == 0 {
		return false, err
	}
	return els[0].Visible(ctx)
}

// Enabled waits for the element and reports whether it is enabled.
func (h *LazyHandle) Enabled(ctx context.Context) (bool, error) {
	var v bool
	err := h.act(ctx, 0, false, func(ctx context.Context, el core.Element) error {
		var err error
		v, err = el.Enabled(ctx)
		return err
	})
	return v, err
}

// Checked waits for the element and reports whether it is checked.
func (h *LazyHandle) Checked(ctx context.Context) (bool, error) {
	var v bool
	err := h.act(ctx, 0, false, func(ctx context.Context, el core.Element) error {
		var err error
		v, err = el.Checked(ctx)
		return err
	})
	return v, err
}
