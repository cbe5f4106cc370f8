package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/flow"
	"github.com/devicelab-dev/domkit/pkg/locator"
)

// ============================================================================
// Frames and tabs
// ============================================================================

// leaveFrames returns the element scope to the current tab's document.
func (fr *FlowRunner) leaveFrames() {
	fr.page = fr.tab
}

// setTab moves the flow to tab, outside any frame.
func (fr *FlowRunner) setTab(tab core.Page) {
	fr.tab = tab
	fr.page = tab
}

func (fr *FlowRunner) switchToFrame(ctx context.Context, s *flow.SwitchToFrameStep) *core.CommandResult {
	h, err := fr.handle(s, &s.Selector)
	if err != nil {
		return errorResult(err, err.Error())
	}
	el, err := h.Element(ctx)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Frame %s not found: %v", h, err))
	}
	frame, err := el.Frame(ctx)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Failed to enter frame %s: %v", h, err))
	}
	fr.page = frame
	fr.log.Debug("entered frame", zap.String("frame", h.String()))
	return successResult("Switched to frame "+h.String(), &core.ElementInfo{Selector: h.String()})
}

func (fr *FlowRunner) openTab(ctx context.Context, s *flow.OpenTabStep) *core.CommandResult {
	target, err := resolveURL(fr.flow.Config.URL, s.URL)
	if err != nil {
		return errorResult(err, err.Error())
	}
	if target == "" {
		return errorResult(core.ErrMissingRequired.WithMessage("openTab requires a url"), "No URL to open")
	}
	nctx, cancel := fr.navigateContext(ctx)
	defer cancel()
	tab, err := fr.tab.OpenTab(nctx, target)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Failed to open tab %s: %v", target, err))
	}
	fr.setTab(tab)
	return successResult("Opened tab "+target, nil)
}

// pickTab returns the tab at index, or the first whose URL and title contain
// url and title. It returns nil when none matches yet.
func pickTab(ctx context.Context, tabs []core.Page, index int, url, title string) (core.Page, error) {
	if index >= 0 {
		if index < len(tabs) {
			return tabs[index], nil
		}
		return nil, nil
	}
	for _, t := range tabs {
		if url != "" {
			u, err := t.URL(ctx)
			if err != nil {
				return nil, err
			}
			if !strings.Contains(u, url) {
				continue
			}
		}
		if title != "" {
			got, err := t.Title(ctx)
			if err != nil {
				return nil, err
			}
			if !strings.Contains(got, title) {
				continue
			}
		}
		return t, nil
	}
	return nil, nil
}

func (fr *FlowRunner) switchTab(ctx context.Context, s *flow.SwitchTabStep) *core.CommandResult {
	index := -1
	if s.Index != "" {
		if index = fr.script.ParseInt(s.Index, -1); index < 0 {
			return errorResult(core.ErrInvalidConfig.WithMessagef("tab index %q is not a non-negative integer", s.Index), "Invalid tab index")
		}
	}

	var found core.Page
	var open int
	err := locator.Poll(ctx, fr.actionTimeout(s), 0, s.Describe(), func(ctx context.Context) (bool, error) {
		tabs, err := fr.tab.Tabs(ctx)
		if err != nil {
			return false, err
		}
		open = len(tabs)
		found, err = pickTab(ctx, tabs, index, s.URL, s.Title)
		return found != nil, err
	})
	if errors.Is(err, core.ErrWaitTimeout) {
		err = core.ErrTabNotFound.
			WithMessagef("no tab matches %s among %d open", strings.TrimPrefix(s.Describe(), "switchTab: "), open).
			WithDetails(map[string]interface{}{"index": s.Index, "url": s.URL, "title": s.Title, "open": open}).
			WithCause(err)
	}
	if err != nil {
		return errorResult(err, err.Error())
	}
	if err := found.BringToFront(ctx); err != nil {
		return errorResult(err, fmt.Sprintf("Failed to activate tab: %v", err))
	}
	fr.setTab(found)
	u, _ := found.URL(ctx)
	return dataResult("Switched to tab "+u, u)
}

// closeTab closes the current tab and returns to the first. The first tab
// holds the flow's browser context and stays open until the flow ends.
func (fr *FlowRunner) closeTab(ctx context.Context) *core.CommandResult {
	tabs, err := fr.tab.Tabs(ctx)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Failed to list tabs: %v", err))
	}
	if len(tabs) == 0 || tabs[0] == fr.tab {
		return errorResult(core.ErrInvalidConfig.WithMessage("closeTab cannot close the flow's first tab"), "Cannot close the first tab")
	}
	if err := fr.tab.Close(); err != nil {
		return errorResult(err, fmt.Sprintf("Failed to close tab: %v", err))
	}
	first := tabs[0]
	if err := first.BringToFront(ctx); err != nil {
		return errorResult(err, fmt.Sprintf("Failed to activate tab: %v", err))
	}
	fr.setTab(first)
	return successResult(fmt.Sprintf("Closed tab, %d open", len(tabs)-1), nil)
}

// ============================================================================
// Drag, upload, wait
// ============================================================================

func (fr *FlowRunner) dragAndDrop(ctx context.Context, s *flow.DragAndDropStep) *core.CommandResult {
	src, err := fr.handle(s, &s.Source)
	if err != nil {
		return errorResult(err, err.Error())
	}
	dst, err := fr.handle(s, &s.Dest)
	if err != nil {
		return errorResult(err, err.Error())
	}
	from, err := src.Element(ctx)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Drag source %s not found: %v", src, err))
	}
	to, err := dst.Element(ctx)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Drop target %s not found: %v", dst, err))
	}
	if err := from.DragTo(ctx, to); err != nil {
		return errorResult(err, fmt.Sprintf("Failed to drag %s to %s: %v", src, dst, err))
	}
	return successResult(fmt.Sprintf("Dragged %s to %s", src, dst), actedOn(src))
}

func (fr *FlowRunner) uploadFile(ctx context.Context, s *flow.UploadFileStep) *core.CommandResult {
	paths := make([]string, 0, len(s.Paths()))
	names := make([]string, 0, len(s.Paths()))
	for _, p := range s.Paths() {
		abs := fr.script.ResolvePath(p)
		if _, err := os.Stat(abs); err != nil {
			err = core.ErrInvalidConfig.WithMessagef("upload file not found: %s", p).WithCause(err)
			return errorResult(err, err.Error())
		}
		paths = append(paths, abs)
		names = append(names, filepath.Base(abs))
	}
	if len(paths) == 0 {
		return errorResult(core.ErrMissingRequired.WithMessage("uploadFile requires file or files"), "No files to upload")
	}
	return fr.act(s, &s.Selector, "Uploaded "+strings.Join(names, ", ")+" to", func(h locator.Handle) error {
		return h.SetFiles(ctx, paths...)
	})
}

func (fr *FlowRunner) waitForURL(ctx context.Context, s *flow.WaitForURLStep) *core.CommandResult {
	var (
		match func(string) bool
		want  string
	)
	switch {
	case s.Equals != "":
		want = fmt.Sprintf("%q", s.Equals)
		match = func(u string) bool { return u == s.Equals }
	case s.Matches != "":
		re, err := regexp.Compile(s.Matches)
		if err != nil {
			return errorResult(core.ErrInvalidConfig.WithMessagef("invalid pattern %q", s.Matches).WithCause(err), err.Error())
		}
		want = "/" + s.Matches + "/"
		match = re.MatchString
	default:
		return errorResult(core.ErrMissingRequired.WithMessage("waitForUrl requires equals or matches"), "Nothing to wait for")
	}

	timeout := fr.actionTimeout(s)
	var last string
	err := locator.Poll(ctx, timeout, 0, s.Describe(), func(ctx context.Context) (bool, error) {
		u, err := fr.tab.URL(ctx)
		if err != nil {
			return false, err
		}
		last = u
		return match(u), nil
	})
	if errors.Is(err, core.ErrWaitTimeout) {
		err = core.ErrWaitTimeout.
			WithMessagef("URL is %q after %s, want %s", last, timeout, want).
			WithDetails(map[string]interface{}{"expected": want, "actual": last}).
			WithCause(err)
	}
	if err != nil {
		return errorResult(err, err.Error())
	}
	return dataResult("URL is "+last, last)
}
