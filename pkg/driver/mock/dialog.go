package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// Dialog is a mock implementation of core.Dialog.
type Dialog struct {
	typ          string
	message      string
	defaultValue string

	mu       sync.Mutex
	done     chan struct{}
	handled  bool
	accepted bool
	prompt   string
}

func newDialog(typ, message, defaultValue string) *Dialog {
	return &Dialog{typ: typ, message: message, defaultValue: defaultValue, done: make(chan struct{})}
}

// Type returns alert, confirm, prompt or beforeunload.
func (d *Dialog) Type() string { return d.typ }

// Message returns the dialog text.
func (d *Dialog) Message() string { return d.message }

// Accept closes the dialog with OK. promptText is used for prompts; empty
// means the prompt's default value.
func (d *Dialog) Accept(ctx context.Context, promptText string) error {
	if promptText == "" {
		promptText = d.defaultValue
	}
	return d.resolve(true, promptText)
}

// Dismiss closes the dialog with Cancel.
func (d *Dialog) Dismiss(ctx context.Context) error {
	return d.resolve(false, "")
}

func (d *Dialog) resolve(accepted bool, prompt string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handled {
		return fmt.Errorf("mock: %s dialog %q already handled", d.typ, d.message)
	}
	d.handled, d.accepted, d.prompt = true, accepted, prompt
	close(d.done)
	return nil
}

// Result reports how the dialog was closed.
func (d *Dialog) Result() (handled, accepted bool, prompt string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handled, d.accepted, d.prompt
}

// RaiseDialog opens a dialog from inside a click handler. When a waiter is
// subscribed the call blocks until the dialog is accepted or dismissed, the
// way page scripts block on alert(). Without a subscriber the dialog is
// dismissed at once.
func (p *Page) RaiseDialog(ctx context.Context, typ, message, defaultValue string) (accepted bool, prompt string) {
	d := newDialog(typ, message, defaultValue)

	p.mu.Lock()
	p.dialogs = append(p.dialogs, d)
	var w *dialogWaiter
	if len(p.waiters) > 0 {
		w = p.waiters[0]
		p.waiters = p.waiters[1:]
	}
	p.mu.Unlock()

	if w == nil {
		_ = d.Dismiss(ctx)
		return false, ""
	}
	w.deliver(d)

	select {
	case <-d.done:
	case <-ctx.Done():
		_ = d.Dismiss(ctx)
	}
	_, accepted, prompt = d.Result()
	return accepted, prompt
}

type dialogWaiter struct {
	page *Page
	ch   chan *Dialog
	once sync.Once
	quit chan struct{}
}

// NextDialog subscribes to the next dialog.
func (p *Page) NextDialog(ctx context.Context) core.DialogWaiter {
	w := &dialogWaiter{page: p, ch: make(chan *Dialog, 1), quit: make(chan struct{})}
	p.mu.Lock()
	if p.closed {
		w.close()
	} else {
		p.waiters = append(p.waiters, w)
	}
	p.mu.Unlock()
	return w
}

func (w *dialogWaiter) deliver(d *Dialog) {
	w.ch <- d
}

func (w *dialogWaiter) close() {
	w.once.Do(func() { close(w.quit) })
}

// Wait blocks until a dialog opens.
func (w *dialogWaiter) Wait(ctx context.Context) (core.Dialog, error) {
	select {
	case d := <-w.ch:
		return d, nil
	case <-w.quit:
		return nil, core.ErrNoDialog.WithMessage("dialog subscription cancelled")
	case <-ctx.Done():
		return nil, core.ErrNoDialog.WithCause(ctx.Err())
	}
}

// Cancel removes the subscription.
func (w *dialogWaiter) Cancel() {
	p := w.page
	p.mu.Lock()
	for i, x := range p.waiters {
		if x == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	w.close()
}
