// Package expect provides polling assertions over a page.
//
// Every assertion re-checks its condition until it holds or the timeout
// elapses, then fails with ErrConditionNotMet (or ErrTextMismatch for text)
// carrying the last observed value.
package expect

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/locator"
)

// Expect asserts against one page.
type Expect struct {
	page     core.Page
	timeout  time.Duration
	interval time.Duration
}

// Option configures an Expect.
type Option func(*Expect)

// WithTimeout sets how long assertions keep retrying.
func WithTimeout(d time.Duration) Option {
	return func(x *Expect) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithInterval sets the retry interval.
func WithInterval(d time.Duration) Option {
	return func(x *Expect) {
		if d > 0 {
			x.interval = d
		}
	}
}

// New creates an Expect for page.
func New(page core.Page, opts ...Option) *Expect {
	x := &Expect{page: page, timeout: locator.DefaultTimeout, interval: locator.DefaultInterval}
	for _, o := range opts {
		o(x)
	}
	return x
}

func (x *Expect) handle(ref locator.Ref) locator.Handle {
	return locator.Resolve(x.page, ref, locator.WithTimeout(x.timeout), locator.WithInterval(x.interval))
}

// until polls check. check returns whether the condition holds and the value
// it observed, used in the failure message.
func (x *Expect) until(ctx context.Context, failure *core.ExecutionError, what string, check func(ctx context.Context) (bool, string, error)) error {
	var last string
	err := locator.Poll(ctx, x.timeout, x.interval, what, func(ctx context.Context) (bool, error) {
		ok, observed, err := check(ctx)
		if err != nil {
			return false, err
		}
		last = observed
		return ok, nil
	})
	if err == nil {
		return nil
	}
	if core.CodeOf(err) != core.ErrWaitTimeout.Code {
		return err
	}
	return failure.
		WithMessagef("expected %s, got %s", what, last).
		WithDetails(map[string]interface{}{"expected": what, "actual": last}).
		WithCause(err)
}

func state(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}

// Visible waits for ref to be visible.
func (x *Expect) Visible(ctx context.Context, ref locator.Ref) error {
	h := x.handle(ref)
	return x.until(ctx, core.ErrConditionNotMet, h.String()+" to be visible", func(ctx context.Context) (bool, string, error) {
		v, err := h.Visible(ctx)
		return v, state(v, "visible", "not visible"), err
	})
}

// Hidden waits for ref to be hidden or absent.
func (x *Expect) Hidden(ctx context.Context, ref locator.Ref) error {
	h := x.handle(ref)
	return x.until(ctx, core.ErrConditionNotMet, h.String()+" to be hidden", func(ctx context.Context) (bool, string, error) {
		v, err := h.Visible(ctx)
		return !v, state(v, "visible", "hidden"), err
	})
}

func (x *Expect) enabled(ctx context.Context, ref locator.Ref, want bool) error {
	h := x.handle(ref)
	what := h.String() + state(want, " to be enabled", " to be disabled")
	return x.until(ctx, core.ErrConditionNotMet, what, func(ctx context.Context) (bool, string, error) {
		els, err := h.Elements(ctx)
		if err != nil || len(els) == 0 {
			return false, "no element", err
		}
		v, err := els[0].Enabled(ctx)
		return v == want, state(v, "enabled", "disabled"), err
	})
}

// Enabled waits for ref to be enabled.
func (x *Expect) Enabled(ctx context.Context, ref locator.Ref) error {
	return x.enabled(ctx, ref, true)
}

// Disabled waits for ref to be disabled.
func (x *Expect) Disabled(ctx context.Context, ref locator.Ref) error {
	return x.enabled(ctx, ref, false)
}

func (x *Expect) text(ctx context.Context, ref locator.Ref, what string, match func(string) bool) error {
	h := x.handle(ref)
	return x.until(ctx, core.ErrTextMismatch, h.String()+" "+what, func(ctx context.Context) (bool, string, error) {
		els, err := h.Elements(ctx)
		if err != nil || len(els) == 0 {
			return false, "no element", err
		}
		txt, err := els[0].Text(ctx)
		if err != nil {
			return false, "", err
		}
		txt = strings.TrimSpace(txt)
		return match(txt), fmt.Sprintf("%q", txt), nil
	})
}

// Text waits for ref's trimmed text to equal want.
func (x *Expect) Text(ctx context.Context, ref locator.Ref, want string) error {
	return x.text(ctx, ref, fmt.Sprintf("to have text %q", want), func(s string) bool { return s == want })
}

// ContainsText waits for ref's text to contain want.
func (x *Expect) ContainsText(ctx context.Context, ref locator.Ref, want string) error {
	return x.text(ctx, ref, fmt.Sprintf("to contain text %q", want), func(s string) bool { return strings.Contains(s, want) })
}

// MatchesText waits for ref's trimmed text to match re.
func (x *Expect) MatchesText(ctx context.Context, ref locator.Ref, re *regexp.Regexp) error {
	return x.text(ctx, ref, fmt.Sprintf("to match /%s/", re), re.MatchString)
}

// Attribute waits for ref's attribute name to equal want.
func (x *Expect) Attribute(ctx context.Context, ref locator.Ref, name, want string) error {
	h := x.handle(ref)
	what := fmt.Sprintf("%s to have %s=%q", h.String(), name, want)
	return x.until(ctx, core.ErrConditionNotMet, what, func(ctx context.Context) (bool, string, error) {
		els, err := h.Elements(ctx)
		if err != nil || len(els) == 0 {
			return false, "no element", err
		}
		v, ok, err := els[0].Attribute(ctx, name)
		if !ok {
			return false, "no attribute " + name, err
		}
		return v == want, fmt.Sprintf("%s=%q", name, v), err
	})
}

// Value waits for ref's form value to equal want.
func (x *Expect) Value(ctx context.Context, ref locator.Ref, want string) error {
	h := x.handle(ref)
	what := fmt.Sprintf("%s to have value %q", h.String(), want)
	return x.until(ctx, core.ErrConditionNotMet, what, func(ctx context.Context) (bool, string, error) {
		els, err := h.Elements(ctx)
		if err != nil || len(els) == 0 {
			return false, "no element", err
		}
		v, err := els[0].Value(ctx)
		return v == want, fmt.Sprintf("%q", v), err
	})
}

// Count waits for ref to match exactly n elements.
func (x *Expect) Count(ctx context.Context, ref locator.Ref, n int) error {
	h := x.handle(ref)
	what := fmt.Sprintf("%s to match %d elements", h.String(), n)
	return x.until(ctx, core.ErrConditionNotMet, what, func(ctx context.Context) (bool, string, error) {
		c, err := h.Count(ctx)
		return c == n, fmt.Sprintf("%d", c), err
	})
}

// URL waits for the page URL to equal want.
func (x *Expect) URL(ctx context.Context, want string) error {
	return x.pageString(ctx, fmt.Sprintf("URL %q", want), x.page.URL, func(s string) bool { return s == want })
}

// URLMatches waits for the page URL to match re.
func (x *Expect) URLMatches(ctx context.Context, re *regexp.Regexp) error {
	return x.pageString(ctx, fmt.Sprintf("URL matching /%s/", re), x.page.URL, re.MatchString)
}

// Title waits for the page title to equal want.
func (x *Expect) Title(ctx context.Context, want string) error {
	return x.pageString(ctx, fmt.Sprintf("title %q", want), x.page.Title, func(s string) bool { return s == want })
}

// TitleMatches waits for the page title to match re.
func (x *Expect) TitleMatches(ctx context.Context, re *regexp.Regexp) error {
	return x.pageString(ctx, fmt.Sprintf("title matching /%s/", re), x.page.Title, re.MatchString)
}

// PageContainsText waits for the body text to contain text.
func (x *Expect) PageContainsText(ctx context.Context, text string) error {
	h := x.handle(locator.Sel("body"))
	return x.text(ctx, h, fmt.Sprintf("to contain text %q", text), func(s string) bool { return strings.Contains(s, text) })
}

func (x *Expect) pageString(ctx context.Context, what string, read func(context.Context) (string, error), match func(string) bool) error {
	return x.until(ctx, core.ErrConditionNotMet, what, func(ctx context.Context) (bool, string, error) {
		s, err := read(ctx)
		return match(s), fmt.Sprintf("%q", s), err
	})
}
