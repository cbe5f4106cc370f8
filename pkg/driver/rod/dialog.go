package rod

import (
	"context"
	"sync"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// dialogWaiter is a one-shot Page.javascriptDialogOpening subscription.
type dialogWaiter struct {
	page   *Page
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan *proto.PageJavascriptDialogOpening
	handle func(*proto.PageHandleJavaScriptDialog) error
}

func newDialogWaiter(ctx context.Context, p *Page) *dialogWaiter {
	wctx, cancel := context.WithCancel(ctx)
	wait, handle := p.page.Context(wctx).HandleDialog()
	w := &dialogWaiter{
		page:   p,
		ctx:    wctx,
		cancel: cancel,
		ch:     make(chan *proto.PageJavascriptDialogOpening, 1),
		handle: handle,
	}
	go func() {
		e := wait()
		// wait returns an empty event when the subscription is cancelled.
		if wctx.Err() == nil {
			w.ch <- e
		}
	}()
	return w
}

// Wait blocks until the dialog opens.
func (w *dialogWaiter) Wait(ctx context.Context) (core.Dialog, error) {
	select {
	case e := <-w.ch:
		w.page.log.Debug("dialog opened", zap.String("type", string(e.Type)), zap.String("message", e.Message))
		return &dialog{event: e, handle: w.handle}, nil
	case <-ctx.Done():
		return nil, core.ErrNoDialog.WithCause(ctx.Err())
	case <-w.ctx.Done():
		return nil, core.ErrNoDialog.WithMessage("dialog subscription cancelled").WithCause(w.ctx.Err())
	}
}

// Cancel stops listening.
func (w *dialogWaiter) Cancel() { w.cancel() }

type dialog struct {
	event  *proto.PageJavascriptDialogOpening
	handle func(*proto.PageHandleJavaScriptDialog) error

	mu       sync.Mutex
	answered bool
}

func (d *dialog) Type() string    { return string(d.event.Type) }
func (d *dialog) Message() string { return d.event.Message }

func (d *dialog) answer(accept bool, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.answered {
		return core.ErrNoDialog.WithMessage("dialog already answered")
	}
	d.answered = true
	return mapErr(d.handle(&proto.PageHandleJavaScriptDialog{Accept: accept, PromptText: text}), "answer dialog")
}

// Accept accepts the dialog. An empty promptText keeps the prompt's default.
func (d *dialog) Accept(ctx context.Context, promptText string) error {
	if promptText == "" {
		promptText = d.event.DefaultPrompt
	}
	return d.answer(true, promptText)
}

// Dismiss cancels the dialog.
func (d *dialog) Dismiss(ctx context.Context) error {
	return d.answer(false, "")
}
