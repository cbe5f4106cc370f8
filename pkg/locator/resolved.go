package locator

import (
	"context"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// ResolvedHandle wraps an element whose existence is already confirmed.
// It is bound to the document snapshot it came from.
type ResolvedHandle struct {
	el   core.Element
	desc string
	cfg  settings
}

// Resolved wraps el. desc is used in error messages; when empty the
// element's own description is used.
func Resolved(el core.Element, desc string, opts ...Option) *ResolvedHandle {
	cfg := defaultSettings()
	for _, o := range opts {
		o(&cfg)
	}
	if desc == "" {
		desc = el.Describe()
	}
	return &ResolvedHandle{el: el, desc: desc, cfg: cfg}
}

func (*ResolvedHandle) isRef() {}

// String returns the description.
func (h *ResolvedHandle) String() string { return h.desc }

// Element returns the wrapped element.
func (h *ResolvedHandle) Element(context.Context) (core.Element, error) { return h.el, nil }

// Elements returns the wrapped element.
func (h *ResolvedHandle) Elements(context.Context) ([]core.Element, error) {
	return []core.Element{h.el}, nil
}

// Count is always 1.
func (h *ResolvedHandle) Count(context.Context) (int, error) { return 1, nil }

// Locator chains a lazy selector scoped to the wrapped element.
func (h *ResolvedHandle) Locator(selector string) *LazyHandle {
	return &LazyHandle{parent: h, sel: Parse(selector), nth: -1, cfg: h.cfg}
}

// Click clicks the element. With Force unset, a hidden or disabled element
// is reported immediately rather than awaited.
func (h *ResolvedHandle) Click(ctx context.Context, opts ...ClickOption) error {
	c := buildClick(opts)
	if !c.opts.Force {
		if err := h.checkActionable(ctx); err != nil {
			return err
		}
	}
	return h.el.Click(ctx, c.opts)
}

// Fill replaces the element's value.
func (h *ResolvedHandle) Fill(ctx context.Context, value string) error {
	if err := h.checkActionable(ctx); err != nil {
		return err
	}
	return h.el.Fill(ctx, value)
}

func (h *ResolvedHandle) checkActionable(ctx context.Context) error {
	ok, err := ready(ctx, h.el)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrElementNotVisible.WithMessagef("%s is not visible and enabled", h.desc)
	}
	return nil
}

// Hover moves the pointer over the element.
func (h *ResolvedHandle) Hover(ctx context.Context) error { return h.el.Hover(ctx) }

// SelectOption selects options of a <select>.
func (h *ResolvedHandle) SelectOption(ctx context.Context, values ...string) error {
	return h.el.SelectOption(ctx, values...)
}

// SetChecked checks or unchecks the element.
func (h *ResolvedHandle) SetChecked(ctx context.Context, checked bool) error {
	return h.el.SetChecked(ctx, checked)
}

// SetFiles sets the files of a file input.
func (h *ResolvedHandle) SetFiles(ctx context.Context, paths ...string) error {
	return h.el.SetFiles(ctx, paths...)
}

// ScrollIntoView scrolls the element into view.
func (h *ResolvedHandle) ScrollIntoView(ctx context.Context) error { return h.el.ScrollIntoView(ctx) }

// Text returns the rendered text.
func (h *ResolvedHandle) Text(ctx context.Context) (string, error) { return h.el.Text(ctx) }

// AllTexts returns the text as a single-item slice.
func (h *ResolvedHandle) AllTexts(ctx context.Context) ([]string, error) {
	txt, err := h.el.Text(ctx)
	if err != nil {
		return nil, err
	}
	return []string{txt}, nil
}

// Value returns the form value.
func (h *ResolvedHandle) Value(ctx context.Context) (string, error) { return h.el.Value(ctx) }

// Attribute reads an attribute.
func (h *ResolvedHandle) Attribute(ctx context.Context, name string) (string, bool, error) {
	return h.el.Attribute(ctx, name)
}

// Visible reports visibility.
func (h *ResolvedHandle) Visible(ctx context.Context) (bool, error) { return h.el.Visible(ctx) }

// Enabled reports whether the element is enabled.
func (h *ResolvedHandle) Enabled(ctx context.Context) (bool, error) { return h.el.Enabled(ctx) }

// Checked reports whether the element is checked.
func (h *ResolvedHandle) Checked(ctx context.Context) (bool, error) { return h.el.Checked(ctx) }
