// Package shadow locates elements inside shadow trees.
//
// Native selectors are handed to the browser layer, which pierces open shadow
// roots itself, and stay lazy. Path selectors cannot cross a shadow boundary,
// so they are re-rooted on the host's shadow root and checked immediately:
// a missing host and a missing inner element are reported as different errors.
package shadow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/locator"
	"github.com/devicelab-dev/domkit/pkg/logger"
)

// Resolver finds elements inside shadow trees of a page.
type Resolver struct {
	scope core.Scope
	log   *zap.Logger
	opts  []locator.Option
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithLocatorOptions sets the wait settings of handles built from selector
// strings.
func WithLocatorOptions(opts ...locator.Option) Option {
	return func(r *Resolver) { r.opts = append(r.opts, opts...) }
}

// New creates a resolver over scope, usually a core.Page.
func New(scope core.Scope, opts ...Option) *Resolver {
	r := &Resolver{scope: scope, log: logger.Named("shadow")}
	for _, o := range opts {
		o(r)
	}
	return r
}

// FindInShadow returns a handle to inner inside the shadow tree of host.
//
// A native inner selector yields a lazy handle without touching the page.
// A path inner selector (xpath=...) is resolved now: ErrShadowHostNotFound
// when host matches nothing, ErrElementNotFoundInShadow when the host's
// shadow root has no match or cannot be read.
func (r *Resolver) FindInShadow(ctx context.Context, host locator.Ref, inner string) (locator.Handle, error) {
	sel := locator.Parse(inner)
	h := locator.Resolve(r.scope, host, r.opts...)

	if !sel.IsPath() {
		r.log.Debug("native shadow lookup", zap.String("host", h.String()), zap.String("selector", inner))
		return h.Locator(inner), nil
	}
	return r.findByPath(ctx, h, sel)
}

func (r *Resolver) findByPath(ctx context.Context, host locator.Handle, sel locator.Selector) (locator.Handle, error) {
	hostDesc := host.String()
	details := map[string]interface{}{"host": hostDesc, "selector": sel.String()}

	hosts, err := host.Elements(ctx)
	if err != nil {
		return nil, core.ErrShadowHostNotFound.
			WithMessagef("shadow host %q not found", hostDesc).
			WithDetails(details).
			WithCause(err)
	}
	if len(hosts) == 0 {
		return nil, core.ErrShadowHostNotFound.
			WithMessagef("shadow host %q not found", hostDesc).
			WithDetails(details)
	}

	notFound := core.ErrElementNotFoundInShadow.
		WithMessagef("element %q not found in shadow DOM of %q", sel.String(), hostDesc).
		WithDetails(details)

	root, err := hosts[0].ShadowRoot(ctx)
	if err != nil {
		r.log.Debug("shadow root unavailable", zap.String("host", hostDesc), zap.Error(err))
		return nil, notFound.WithCause(err)
	}

	matches, err := root.XPathAll(ctx, sel.Expr)
	if err != nil {
		return nil, notFound.WithCause(err)
	}
	if len(matches) == 0 {
		return nil, notFound
	}

	r.log.Debug("resolved in shadow root",
		zap.String("host", hostDesc),
		zap.String("selector", sel.String()),
		zap.Int("matches", len(matches)))
	return locator.Resolved(matches[0], fmt.Sprintf("%s >> shadow >> %s", hostDesc, sel.String()), r.opts...), nil
}

// ClickInShadow finds inner in host's shadow tree and clicks it.
func (r *Resolver) ClickInShadow(ctx context.Context, host locator.Ref, inner string, opts ...locator.ClickOption) error {
	h, err := r.FindInShadow(ctx, host, inner)
	if err != nil {
		return err
	}
	return h.Click(ctx, opts...)
}

// FillInShadow finds inner in host's shadow tree and sets its value.
func (r *Resolver) FillInShadow(ctx context.Context, host locator.Ref, inner, value string) error {
	h, err := r.FindInShadow(ctx, host, inner)
	if err != nil {
		return err
	}
	return h.Fill(ctx, value)
}

// TextInShadow returns the text of inner in host's shadow tree.
func (r *Resolver) TextInShadow(ctx context.Context, host locator.Ref, inner string) (string, error) {
	h, err := r.FindInShadow(ctx, host, inner)
	if err != nil {
		return "", err
	}
	return h.Text(ctx)
}
