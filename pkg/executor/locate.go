package executor

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/flow"
	"github.com/devicelab-dev/domkit/pkg/locator"
)

// buildHandle turns a flow selector into a lazy handle under scope. Nothing
// is resolved until the handle is acted on. Filters apply in order:
// within, hasText, exactText, index.
func buildHandle(scope core.Scope, sel *flow.Selector, opts ...locator.Option) (*locator.LazyHandle, error) {
	if sel.IsEmpty() {
		return nil, core.ErrMissingRequired.WithMessage("selector is required")
	}

	var h *locator.LazyHandle
	if sel.Within != nil {
		parent, err := buildHandle(scope, sel.Within, opts...)
		if err != nil {
			return nil, err
		}
		h = parent.Locator(sel.Expression())
	} else {
		h = locator.New(scope, sel.Expression(), opts...)
	}

	if sel.HasText != "" {
		h = h.HasText(sel.HasText)
	}
	if sel.ExactText != "" {
		h = h.ExactText(sel.ExactText)
	}
	if sel.Index != "" {
		i, err := strconv.Atoi(strings.TrimSpace(sel.Index))
		if err != nil || i < 0 {
			return nil, core.ErrInvalidConfig.WithMessagef("selector index %q is not a non-negative integer", sel.Index)
		}
		h = h.Nth(i)
	}
	return h, nil
}

// resolveURL resolves target against base. Absolute targets and an empty
// base are returned unchanged.
func resolveURL(base, target string) (string, error) {
	if base == "" || target == "" {
		return target, nil
	}
	t, err := url.Parse(target)
	if err != nil {
		return "", core.ErrInvalidConfig.WithMessagef("invalid url %q", target).WithCause(err)
	}
	if t.IsAbs() {
		return target, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", core.ErrInvalidConfig.WithMessagef("invalid base url %q", base).WithCause(err)
	}
	return b.ResolveReference(t).String(), nil
}

// pageFunction wraps a bare expression so it can be passed to
// Page.Evaluate, which expects a function.
func pageFunction(script string) string {
	s := strings.TrimSpace(extractJS(script))
	if strings.HasPrefix(s, "function") || strings.HasPrefix(s, "async") || strings.Contains(s, "=>") {
		return s
	}
	return "() => (" + s + ")"
}
