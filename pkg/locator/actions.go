package locator

import (
	"context"
)

// ClickIfVisible clicks h only when it is currently visible. It does not wait
// and swallows nothing but the "not there" case: a failing click on a visible
// element is still returned.
func ClickIfVisible(ctx context.Context, h Handle) (bool, error) {
	visible, err := h.Visible(ctx)
	if err != nil || !visible {
		return false, err
	}
	return true, h.Click(ctx)
}
