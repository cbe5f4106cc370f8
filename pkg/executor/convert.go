package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/report"
)

// commandResultToElement converts core.CommandResult to report.Element.
func commandResultToElement(r *core.CommandResult) *report.Element {
	if r == nil || r.Element == nil {
		return nil
	}
	el := r.Element
	return &report.Element{
		Found:    true,
		Selector: el.Selector,
		Text:     el.Text,
		Visible:  el.Visible,
		Enabled:  el.Enabled,
	}
}

// suggestions are hints shown next to well-known failures.
var suggestions = map[string]string{
	core.ErrShadowHostNotFound.Code:      "Check the host selector; the custom element may not be defined yet.",
	core.ErrElementNotFoundInShadow.Code: "The shadow root is open but the inner selector matched nothing.",
	core.ErrNoShadowRoot.Code:            "The host has no open shadow root; closed roots cannot be pierced.",
	core.ErrInvalidMonthName.Code:        "Use an English month name such as March or Mar.",
	core.ErrDateNotReachable.Code:        "Increase maxSteps or check the picker's label and navigation selectors.",
	core.ErrColumnNotFound.Code:          "Header text must match exactly after trimming.",
	core.ErrHeaderNotFound.Code:          "Header text must match exactly after trimming.",
	core.ErrRowNotFound.Code:             "Row text is matched as a case-insensitive substring of the whole row.",
	core.ErrNoDialog.Code:                "Make sure the nested commands open the dialog.",
	core.ErrNotAFrame.Code:               "switchToFrame needs a selector for an <iframe> or <frame>.",
	core.ErrTabNotFound.Code:             "The tab may not have opened yet; raise the step timeout or check the url/title filter.",
	core.ErrWaitTimeout.Code:             "The element never appeared; check the selector or raise timeouts.actionMs.",
}

// commandResultToError converts core.CommandResult error to report.Error.
func commandResultToError(r *core.CommandResult) *report.Error {
	if r == nil || (r.Error == nil && r.Success) {
		return nil
	}

	message := r.Message
	if message == "" && r.Error != nil {
		message = r.Error.Error()
	}

	out := &report.Error{
		Type:    errorType(r.Error),
		Code:    core.CodeOf(r.Error),
		Message: message,
	}
	out.Suggestion = suggestions[out.Code]

	var ee *core.ExecutionError
	if errors.As(r.Error, &ee) && len(ee.Details) > 0 {
		if data, err := json.Marshal(ee.Details); err == nil {
			out.Details = string(data)
		}
	}
	return out
}

// errorType names the error category used in reports.
func errorType(err error) string {
	if c := core.CategoryOf(err); c != core.ErrCategoryNone {
		return c.String()
	}
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, context.DeadlineExceeded):
		return core.ErrCategoryTimeout.String()
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return "unknown"
}

// commandResultData renders the value a command read, if any.
func commandResultData(r *core.CommandResult) string {
	if r == nil || r.Data == nil {
		return ""
	}
	if s, ok := r.Data.(string); ok {
		return s
	}
	return fmt.Sprint(r.Data)
}

// resultMessage returns the most specific description of a result.
func resultMessage(r *core.CommandResult) string {
	switch {
	case r == nil:
		return ""
	case r.Message != "":
		return r.Message
	case r.Error != nil:
		return r.Error.Error()
	}
	return ""
}
