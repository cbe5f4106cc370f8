// Package dialog answers JavaScript dialogs (alert, confirm, prompt) opened
// by a single triggering action.
//
// Each call subscribes to the next dialog just before running the trigger and
// removes the subscription when it returns, so no page-wide listener outlives
// the action that needed it.
package dialog

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/logger"
)

// DefaultTimeout bounds the wait for a dialog after the trigger has run.
const DefaultTimeout = 5 * time.Second

// Action is how a dialog is closed.
type Action string

// Action values
const (
	Accept  Action = "accept"
	Dismiss Action = "dismiss"
)

// Response describes how to answer the dialog.
type Response struct {
	Action     Action
	PromptText string // typed into prompt() dialogs on accept

	// ExpectMessage, when set, must equal the dialog text. The dialog is
	// still answered on mismatch.
	ExpectMessage string

	Timeout time.Duration
}

// Result is what the dialog showed and how it was answered.
type Result struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Accepted bool   `json:"accepted"`
}

// Handle runs trigger and answers the dialog it opens. Trigger and waiter run
// concurrently because pages block on alert() until it is answered.
//
// Fails with ErrNoDialog when no dialog opens within the timeout, and with
// ErrTextMismatch when ExpectMessage does not match.
func Handle(ctx context.Context, page core.Page, resp Response, trigger func(ctx context.Context) error) (*Result, error) {
	if resp.Action == "" {
		resp.Action = Accept
	}
	if resp.Action != Accept && resp.Action != Dismiss {
		return nil, core.ErrInvalidConfig.WithMessagef("unknown dialog action %q", resp.Action)
	}
	timeout := resp.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	w := page.NextDialog(ctx)
	defer w.Cancel()

	g, gctx := errgroup.WithContext(ctx)
	var res Result

	g.Go(func() error {
		wctx, cancel := context.WithTimeout(gctx, timeout)
		defer cancel()

		d, err := w.Wait(wctx)
		if err != nil {
			return core.ErrNoDialog.WithMessagef("no dialog opened within %s", timeout).WithCause(err)
		}
		res.Type, res.Message = d.Type(), d.Message()
		logger.Debug("dialog %s %q: %s", res.Type, res.Message, resp.Action)

		if resp.Action == Dismiss {
			err = d.Dismiss(gctx)
		} else {
			err = d.Accept(gctx, resp.PromptText)
			res.Accepted = err == nil
		}
		return err
	})
	g.Go(func() error {
		return trigger(gctx)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if resp.ExpectMessage != "" && res.Message != resp.ExpectMessage {
		return &res, core.ErrTextMismatch.
			WithMessagef("dialog text = %q, want %q", res.Message, resp.ExpectMessage).
			WithDetails(map[string]interface{}{"actual": res.Message, "expected": resp.ExpectMessage})
	}
	return &res, nil
}

// AcceptNext accepts the dialog opened by trigger.
func AcceptNext(ctx context.Context, page core.Page, trigger func(ctx context.Context) error) error {
	_, err := Handle(ctx, page, Response{Action: Accept}, trigger)
	return err
}

// DismissNext dismisses the dialog opened by trigger.
func DismissNext(ctx context.Context, page core.Page, trigger func(ctx context.Context) error) error {
	_, err := Handle(ctx, page, Response{Action: Dismiss}, trigger)
	return err
}

// TextOf accepts the dialog opened by trigger and returns its text.
func TextOf(ctx context.Context, page core.Page, trigger func(ctx context.Context) error) (string, error) {
	res, err := Handle(ctx, page, Response{Action: Accept}, trigger)
	if err != nil {
		return "", err
	}
	return res.Message, nil
}
