package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/calendar"
	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/dialog"
	"github.com/devicelab-dev/domkit/pkg/expect"
	"github.com/devicelab-dev/domkit/pkg/flow"
	"github.com/devicelab-dev/domkit/pkg/jsengine"
	"github.com/devicelab-dev/domkit/pkg/locator"
	"github.com/devicelab-dev/domkit/pkg/shadow"
	"github.com/devicelab-dev/domkit/pkg/table"
)

// successResult creates a success result.
func successResult(msg string, elem *core.ElementInfo) *core.CommandResult {
	return &core.CommandResult{
		Success: true,
		Message: msg,
		Element: elem,
	}
}

// errorResult creates an error result.
func errorResult(err error, msg string) *core.CommandResult {
	return &core.CommandResult{
		Success: false,
		Error:   err,
		Message: msg,
	}
}

// dataResult creates a success result carrying a value read from the page.
func dataResult(msg string, data string) *core.CommandResult {
	return &core.CommandResult{Success: true, Message: msg, Data: data}
}

// actedOn describes an element an action succeeded on. Actions only run on
// visible, enabled elements.
func actedOn(h locator.Handle) *core.ElementInfo {
	return &core.ElementInfo{Selector: fmt.Sprint(h), Visible: true, Enabled: true}
}

// actionTimeout returns the wait budget for a step: its own timeout when set,
// otherwise the flow's.
func (fr *FlowRunner) actionTimeout(step flow.Step) time.Duration {
	if b, ok := step.(interface{ Base() *flow.BaseStep }); ok && b.Base().TimeoutMs > 0 {
		return time.Duration(b.Base().TimeoutMs) * time.Millisecond
	}
	return fr.timeout
}

func (fr *FlowRunner) locatorOptions(step flow.Step) []locator.Option {
	return []locator.Option{locator.WithTimeout(fr.actionTimeout(step))}
}

func (fr *FlowRunner) handle(step flow.Step, sel *flow.Selector) (*locator.LazyHandle, error) {
	return buildHandle(fr.page, sel, fr.locatorOptions(step)...)
}

// runCommand executes a leaf step against the page or the script engine.
// Variables have already been expanded.
func (fr *FlowRunner) runCommand(step flow.Step) *core.CommandResult {
	ctx := fr.ctx
	switch s := step.(type) {
	// Scripting
	case *flow.DefineVariablesStep:
		return fr.script.ExecuteDefineVariables(s)
	case *flow.RunScriptStep:
		return fr.script.ExecuteRunScript(s)
	case *flow.AssertTrueStep:
		return fr.script.ExecuteAssertTrue(s)
	case *flow.EvalScriptStep:
		if s.InPage {
			return fr.evalInPage(ctx, s)
		}
		return fr.script.ExecuteEvalScript(s)

	// Navigation
	case *flow.OpenStep:
		return fr.open(ctx, s)
	case *flow.BackStep:
		return fr.navigate(ctx, "Went back", core.Page.Back)
	case *flow.ForwardStep:
		return fr.navigate(ctx, "Went forward", core.Page.Forward)
	case *flow.ReloadStep:
		return fr.navigate(ctx, "Reloaded", core.Page.Reload)
	case *flow.WaitForURLStep:
		return fr.waitForURL(ctx, s)

	// Interaction
	case *flow.ClickStep:
		return fr.click(ctx, s)
	case *flow.FillStep:
		return fr.act(step, &s.Selector, "Filled", func(h locator.Handle) error { return h.Fill(ctx, s.Value) })
	case *flow.HoverStep:
		return fr.act(step, &s.Selector, "Hovered", func(h locator.Handle) error { return h.Hover(ctx) })
	case *flow.SelectOptionStep:
		return fr.act(step, &s.Selector, "Selected "+strings.Join(s.Values(), ", "), func(h locator.Handle) error {
			return h.SelectOption(ctx, s.Values()...)
		})
	case *flow.CheckStep:
		return fr.act(step, &s.Selector, fmt.Sprintf("Set checked=%t", s.Want()), func(h locator.Handle) error {
			return h.SetChecked(ctx, s.Want())
		})
	case *flow.PressKeyStep:
		if err := fr.page.Press(ctx, s.Key); err != nil {
			return errorResult(err, fmt.Sprintf("Failed to press %s: %v", s.Key, err))
		}
		return successResult("Pressed "+s.Key, nil)
	case *flow.CopyTextFromStep:
		return fr.copyTextFrom(ctx, s)
	case *flow.DragAndDropStep:
		return fr.dragAndDrop(ctx, s)
	case *flow.UploadFileStep:
		return fr.uploadFile(ctx, s)
	case *flow.ScrollIntoViewStep:
		return fr.act(step, &s.Selector, "Scrolled to", func(h locator.Handle) error { return h.ScrollIntoView(ctx) })

	// Frames and tabs
	case *flow.SwitchToFrameStep:
		return fr.switchToFrame(ctx, s)
	case *flow.SwitchToMainFrameStep:
		fr.leaveFrames()
		return successResult("Switched to main frame", nil)
	case *flow.OpenTabStep:
		return fr.openTab(ctx, s)
	case *flow.SwitchTabStep:
		return fr.switchTab(ctx, s)
	case *flow.CloseTabStep:
		return fr.closeTab(ctx)

	// Shadow DOM
	case *flow.ClickInShadowStep:
		return fr.inShadow(step, &s.ShadowTarget, "Clicked", func(r *shadow.Resolver, host locator.Ref) error {
			return r.ClickInShadow(ctx, host, s.Selector)
		})
	case *flow.FillInShadowStep:
		return fr.inShadow(step, &s.ShadowTarget, "Filled", func(r *shadow.Resolver, host locator.Ref) error {
			return r.FillInShadow(ctx, host, s.Selector, s.Value)
		})

	// Dates
	case *flow.SelectDateStep:
		return fr.selectDate(ctx, s)
	case *flow.FillNativeDateStep:
		h, err := fr.handle(step, &s.Selector)
		if err != nil {
			return errorResult(err, err.Error())
		}
		if err := calendar.FillNativeDate(ctx, fr.page, h, s.Date, fr.locatorOptions(step)...); err != nil {
			return errorResult(err, fmt.Sprintf("Failed to fill date: %v", err))
		}
		return successResult("Filled date "+s.Date, actedOn(h))
	case *flow.VerifyDateRangeStep:
		if err := calendar.VerifyDateRange(s.Start, s.End); err != nil {
			return errorResult(err, err.Error())
		}
		return successResult(fmt.Sprintf("%s is not after %s", s.Start, s.End), nil)

	// Tables
	case *flow.CopyCellValueStep:
		return fr.copyCellValue(ctx, s)
	case *flow.AssertCellValueStep:
		return fr.assertCellValue(ctx, s)
	case *flow.AssertRowExistsStep:
		return fr.assertRowExists(ctx, s)
	case *flow.AssertRowCountStep:
		return fr.assertTableCount(ctx, step, &s.Table, s.Count, "row", (*table.Engine).GetRowCount)
	case *flow.AssertColumnCountStep:
		return fr.assertTableCount(ctx, step, &s.Table, s.Count, "column", (*table.Engine).GetColumnCount)

	// Assertions
	case *flow.AssertVisibleStep:
		return fr.expectOn(step, &s.Selector, "visible", func(x *expect.Expect, h locator.Handle) error {
			return x.Visible(ctx, h)
		})
	case *flow.AssertNotVisibleStep:
		return fr.expectOn(step, &s.Selector, "not visible", func(x *expect.Expect, h locator.Handle) error {
			return x.Hidden(ctx, h)
		})
	case *flow.AssertTextStep:
		return fr.assertText(ctx, s)
	case *flow.AssertURLStep:
		return fr.assertPage(ctx, step, "url", s.Equals, s.Matches, (*expect.Expect).URL, (*expect.Expect).URLMatches)
	case *flow.AssertTitleStep:
		return fr.assertPage(ctx, step, "title", s.Equals, s.Matches, (*expect.Expect).Title, (*expect.Expect).TitleMatches)

	// Dialogs
	case *flow.HandleDialogStep:
		return fr.handleDialog(ctx, s)

	case *flow.TakeScreenshotStep:
		return fr.takeScreenshot(ctx, s)

	case *flow.UnsupportedStep:
		return errorResult(core.ErrInvalidConfig.WithMessagef("unsupported step %s: %s", s.Type(), s.Reason), s.Describe())
	}

	return errorResult(core.ErrInvalidConfig.WithMessagef("no handler for step %s", step.Type()),
		fmt.Sprintf("Unknown step type: %s", step.Type()))
}

// ============================================================================
// Navigation
// ============================================================================

func (fr *FlowRunner) open(ctx context.Context, s *flow.OpenStep) *core.CommandResult {
	target, err := resolveURL(fr.flow.Config.URL, s.URL)
	if err != nil {
		return errorResult(err, err.Error())
	}
	if target == "" {
		return errorResult(core.ErrMissingRequired.WithMessage("open requires a url"), "No URL to open")
	}
	return fr.navigate(ctx, "Opened "+target, func(p core.Page, ctx context.Context) error {
		return p.Navigate(ctx, target)
	})
}

// navigateContext bounds ctx by the navigation timeout.
func (fr *FlowRunner) navigateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if fr.config.NavigationTimeout > 0 {
		return context.WithTimeout(ctx, fr.config.NavigationTimeout)
	}
	return ctx, func() {}
}

// navigate runs a navigation of the current tab bounded by the navigation
// timeout and waits for the load event. Any frame scope is left first.
func (fr *FlowRunner) navigate(ctx context.Context, msg string, nav func(p core.Page, ctx context.Context) error) *core.CommandResult {
	ctx, cancel := fr.navigateContext(ctx)
	defer cancel()
	fr.leaveFrames()
	if err := nav(fr.page, ctx); err != nil {
		return errorResult(err, fmt.Sprintf("Navigation failed: %v", err))
	}
	if err := fr.page.WaitLoad(ctx); err != nil {
		return errorResult(err, fmt.Sprintf("Page did not finish loading: %v", err))
	}
	return successResult(msg, nil)
}

// syncPage refreshes the page state scripts read through the domkit global.
func (fr *FlowRunner) syncPage() {
	u, errURL := fr.tab.URL(fr.ctx)
	t, errTitle := fr.tab.Title(fr.ctx)
	fr.script.UpdatePage(func(p *jsengine.PageInfo) {
		if errURL == nil {
			p.URL = u
		}
		if errTitle == nil {
			p.Title = t
		}
	})
}

// ============================================================================
// Interaction
// ============================================================================

// act resolves sel and runs fn on the handle.
func (fr *FlowRunner) act(step flow.Step, sel *flow.Selector, msg string, fn func(h locator.Handle) error) *core.CommandResult {
	h, err := fr.handle(step, sel)
	if err != nil {
		return errorResult(err, err.Error())
	}
	if err := fn(h); err != nil {
		return errorResult(err, fmt.Sprintf("%s %s failed: %v", step.Type(), h, err))
	}
	return successResult(fmt.Sprintf("%s %s", msg, h), actedOn(h))
}

func (fr *FlowRunner) click(ctx context.Context, s *flow.ClickStep) *core.CommandResult {
	h, err := fr.handle(s, &s.Selector)
	if err != nil {
		return errorResult(err, err.Error())
	}

	if s.IfVisible {
		clicked, err := locator.ClickIfVisible(ctx, h)
		if err != nil {
			return errorResult(err, fmt.Sprintf("Failed to click %s: %v", h, err))
		}
		if !clicked {
			return successResult(fmt.Sprintf("Skipped %s (not visible)", h), nil)
		}
		return successResult("Clicked "+h.String(), actedOn(h))
	}

	var opts []locator.ClickOption
	if s.Button != "" {
		opts = append(opts, locator.Button(core.MouseButton(s.Button)))
	}
	if s.ClickCount > 0 {
		opts = append(opts, locator.ClickCount(s.ClickCount))
	}
	if s.Force {
		opts = append(opts, locator.Force())
	}
	if err := h.Click(ctx, opts...); err != nil {
		return errorResult(err, fmt.Sprintf("Failed to click %s: %v", h, err))
	}
	return successResult("Clicked "+h.String(), actedOn(h))
}

func (fr *FlowRunner) copyTextFrom(ctx context.Context, s *flow.CopyTextFromStep) *core.CommandResult {
	h, err := fr.handle(s, &s.Selector)
	if err != nil {
		return errorResult(err, err.Error())
	}
	text, err := h.Text(ctx)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Failed to read text of %s: %v", h, err))
	}
	text = strings.TrimSpace(text)
	fr.storeValue(s.Variable, text)

	result := dataResult(fmt.Sprintf("Copied %q", text), text)
	result.Element = &core.ElementInfo{Selector: h.String(), Text: text, Visible: true, Enabled: true}
	return result
}

// storeValue sets copiedText and, when name is set, a flow variable.
func (fr *FlowRunner) storeValue(name, value string) {
	fr.script.SetCopiedText(value)
	if name != "" {
		fr.script.SetVariable(name, value)
	}
}

// ============================================================================
// Shadow DOM
// ============================================================================

func (fr *FlowRunner) inShadow(step flow.Step, t *flow.ShadowTarget, msg string, fn func(r *shadow.Resolver, host locator.Ref) error) *core.CommandResult {
	host, err := fr.handle(step, &t.Host)
	if err != nil {
		return errorResult(err, err.Error())
	}
	r := shadow.New(fr.page,
		shadow.WithLogger(fr.log.Named("shadow")),
		shadow.WithLocatorOptions(fr.locatorOptions(step)...))
	if err := fn(r, host); err != nil {
		return errorResult(err, fmt.Sprintf("%s %s >> %s failed: %v", step.Type(), host, t.Selector, err))
	}
	return successResult(fmt.Sprintf("%s %s >> %s", msg, host, t.Selector),
		&core.ElementInfo{Selector: t.Selector, Visible: true, Enabled: true})
}

// ============================================================================
// Dates
// ============================================================================

// calendarOptions merges the step's picker selectors over the run defaults.
func (fr *FlowRunner) calendarOptions(s *flow.SelectDateStep) calendar.Options {
	o := fr.config.Calendar
	if s.NextButton != "" {
		o.NextButton = s.NextButton
	}
	if s.PrevButton != "" {
		o.PrevButton = s.PrevButton
	}
	if s.MonthLabel != "" {
		o.Label = s.MonthLabel
	}
	if s.DayCell != "" {
		o.DayCell = s.DayCell
	}
	if s.MaxSteps > 0 {
		o.MaxSteps = s.MaxSteps
	}
	return o.WithDefaults()
}

// dateTarget returns the "D Month YYYY" text the navigator selects.
func dateTarget(s *flow.SelectDateStep) string {
	if s.Date != "" {
		return s.Date
	}
	return strings.Join([]string{s.Day, s.Month, s.Year}, " ")
}

func (fr *FlowRunner) selectDate(ctx context.Context, s *flow.SelectDateStep) *core.CommandResult {
	picker, err := fr.handle(s, &s.Picker)
	if err != nil {
		return errorResult(err, err.Error())
	}
	target := dateTarget(s)
	nav := calendar.New(fr.page, fr.calendarOptions(s),
		calendar.WithLogger(fr.log.Named("calendar")),
		calendar.WithLocatorOptions(fr.locatorOptions(s)...))
	if err := nav.SelectDate(ctx, picker, target); err != nil {
		return errorResult(err, fmt.Sprintf("Failed to select %s: %v", target, err))
	}
	return successResult("Selected "+target, nil)
}

// ============================================================================
// Tables
// ============================================================================

func (fr *FlowRunner) tableEngine(step flow.Step) *table.Engine {
	return table.New(fr.page,
		table.WithLogger(fr.log.Named("table")),
		table.WithLocatorOptions(fr.locatorOptions(step)...))
}

func (fr *FlowRunner) copyCellValue(ctx context.Context, s *flow.CopyCellValueStep) *core.CommandResult {
	tbl, err := fr.handle(s, &s.Table)
	if err != nil {
		return errorResult(err, err.Error())
	}
	value, err := fr.tableEngine(s).GetTableCellValue(ctx, tbl, s.Row, s.Column)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Failed to read %s[%s][%s]: %v", tbl, s.Row, s.Column, err))
	}
	fr.storeValue(s.Variable, value)
	return dataResult(fmt.Sprintf("Copied %q", value), value)
}

// settle re-runs check until it passes or the step's timeout expires.
// Mismatches are retried; any other error ends the wait. On timeout the last
// mismatch is returned.
func settle(ctx context.Context, timeout time.Duration, what string, check func(ctx context.Context) error) error {
	var mismatch error
	err := locator.Poll(ctx, timeout, 0, what, func(ctx context.Context) (bool, error) {
		err := check(ctx)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, core.ErrTextMismatch), errors.Is(err, core.ErrConditionNotMet), errors.Is(err, core.ErrRowNotFound):
			mismatch = err
			return false, nil
		default:
			return false, err
		}
	})
	if errors.Is(err, core.ErrWaitTimeout) && mismatch != nil {
		return mismatch
	}
	return err
}

func (fr *FlowRunner) assertCellValue(ctx context.Context, s *flow.AssertCellValueStep) *core.CommandResult {
	tbl, err := fr.handle(s, &s.Table)
	if err != nil {
		return errorResult(err, err.Error())
	}
	engine := fr.tableEngine(s)
	var got string
	err = settle(ctx, fr.actionTimeout(s), s.Describe(), func(ctx context.Context) error {
		v, err := engine.GetTableCellValue(ctx, tbl, s.Row, s.Column)
		if err != nil {
			return err
		}
		got = v
		if got != s.Equals {
			return core.ErrTextMismatch.
				WithMessagef("cell [%s][%s] = %q, want %q", s.Row, s.Column, got, s.Equals).
				WithDetails(map[string]interface{}{"actual": got, "expected": s.Equals})
		}
		return nil
	})
	if err != nil {
		return errorResult(err, err.Error())
	}
	return dataResult(fmt.Sprintf("Cell [%s][%s] = %q", s.Row, s.Column, got), got)
}

func (fr *FlowRunner) assertRowExists(ctx context.Context, s *flow.AssertRowExistsStep) *core.CommandResult {
	tbl, err := fr.handle(s, &s.Table)
	if err != nil {
		return errorResult(err, err.Error())
	}
	engine := fr.tableEngine(s)
	want := s.Want()
	err = settle(ctx, fr.actionTimeout(s), s.Describe(), func(ctx context.Context) error {
		found, err := engine.VerifyRowExists(ctx, tbl, s.Values)
		if err != nil {
			return err
		}
		switch {
		case want && !found:
			return core.ErrRowNotFound.
				WithMessagef("no row in %s matches %v", tbl, s.Values).
				WithDetails(map[string]interface{}{"expected": s.Values})
		case !want && found:
			return core.ErrConditionNotMet.
				WithMessagef("a row in %s matches %v", tbl, s.Values).
				WithDetails(map[string]interface{}{"unexpected": s.Values})
		}
		return nil
	})
	if err != nil {
		return errorResult(err, err.Error())
	}
	if want {
		return successResult("Row found", nil)
	}
	return successResult("Row absent", nil)
}

func (fr *FlowRunner) assertTableCount(ctx context.Context, step flow.Step, sel *flow.Selector, count, what string,
	read func(*table.Engine, context.Context, locator.Ref) (int, error)) *core.CommandResult {
	tbl, err := fr.handle(step, sel)
	if err != nil {
		return errorResult(err, err.Error())
	}
	want := fr.script.ParseInt(count, -1)
	if want < 0 {
		return errorResult(core.ErrInvalidConfig.WithMessagef("%s count %q is not a non-negative integer", what, count), "Invalid count")
	}
	engine := fr.tableEngine(step)
	var got int
	err = settle(ctx, fr.actionTimeout(step), step.Describe(), func(ctx context.Context) error {
		n, err := read(engine, ctx, tbl)
		if err != nil {
			return err
		}
		got = n
		if got != want {
			return core.ErrConditionNotMet.
				WithMessagef("%s has %d %ss, want %d", tbl, got, what, want).
				WithDetails(map[string]interface{}{"actual": got, "expected": want})
		}
		return nil
	})
	if err != nil {
		return errorResult(err, err.Error())
	}
	return dataResult(fmt.Sprintf("%d %ss", got, what), fmt.Sprint(got))
}

// ============================================================================
// Assertions
// ============================================================================

func (fr *FlowRunner) expectations(step flow.Step) *expect.Expect {
	return expect.New(fr.page, expect.WithTimeout(fr.actionTimeout(step)))
}

func (fr *FlowRunner) expectOn(step flow.Step, sel *flow.Selector, what string, fn func(x *expect.Expect, h locator.Handle) error) *core.CommandResult {
	h, err := fr.handle(step, sel)
	if err != nil {
		return errorResult(err, err.Error())
	}
	if err := fn(fr.expectations(step), h); err != nil {
		return errorResult(err, err.Error())
	}
	return successResult(fmt.Sprintf("%s is %s", h, what), &core.ElementInfo{Selector: h.String(), Visible: what == "visible"})
}

func (fr *FlowRunner) assertText(ctx context.Context, s *flow.AssertTextStep) *core.CommandResult {
	var re *regexp.Regexp
	if s.Matches != "" {
		var err error
		if re, err = regexp.Compile(s.Matches); err != nil {
			return errorResult(core.ErrInvalidConfig.WithMessagef("invalid pattern %q", s.Matches).WithCause(err), err.Error())
		}
	}
	return fr.expectOn(s, &s.Selector, "matching", func(x *expect.Expect, h locator.Handle) error {
		switch {
		case s.Equals != "":
			return x.Text(ctx, h, s.Equals)
		case s.Contains != "":
			return x.ContainsText(ctx, h, s.Contains)
		case re != nil:
			return x.MatchesText(ctx, h, re)
		}
		return core.ErrMissingRequired.WithMessage("assertText requires equals, contains or matches")
	})
}

func (fr *FlowRunner) assertPage(ctx context.Context, step flow.Step, what, equals, matches string,
	eq func(*expect.Expect, context.Context, string) error,
	match func(*expect.Expect, context.Context, *regexp.Regexp) error) *core.CommandResult {
	x := fr.expectations(step)
	var err error
	switch {
	case equals != "":
		err = eq(x, ctx, equals)
	case matches != "":
		re, cerr := regexp.Compile(matches)
		if cerr != nil {
			return errorResult(core.ErrInvalidConfig.WithMessagef("invalid pattern %q", matches).WithCause(cerr), cerr.Error())
		}
		err = match(x, ctx, re)
	default:
		err = core.ErrMissingRequired.WithMessagef("assert %s requires equals or matches", what)
	}
	if err != nil {
		return errorResult(err, err.Error())
	}
	return successResult(fmt.Sprintf("Page %s matches", what), nil)
}

// ============================================================================
// Dialogs, scripts, screenshots
// ============================================================================

// handleDialog arms a one-shot dialog handler and runs the nested steps that
// open the dialog.
func (fr *FlowRunner) handleDialog(ctx context.Context, s *flow.HandleDialogStep) *core.CommandResult {
	resp := dialog.Response{
		Action:        dialog.Action(strings.ToLower(s.Action)),
		PromptText:    s.PromptText,
		ExpectMessage: s.Message,
		Timeout:       fr.actionTimeout(s),
	}

	trigger := func(gctx context.Context) error {
		prev := fr.ctx
		fr.ctx = gctx
		defer func() { fr.ctx = prev }()
		for _, nested := range s.Steps {
			result := fr.executeNestedStep(nested)
			if !result.Success && !nested.IsOptional() {
				if result.Error != nil {
					return result.Error
				}
				return core.ErrConditionNotMet.WithMessage(result.Message)
			}
		}
		return nil
	}

	res, err := dialog.Handle(ctx, fr.page, resp, trigger)
	if res != nil {
		fr.script.UpdatePage(func(p *jsengine.PageInfo) { p.DialogText = res.Message })
		if s.Variable != "" {
			fr.script.SetVariable(s.Variable, res.Message)
		}
	}
	if err != nil {
		result := errorResult(err, fmt.Sprintf("Dialog handling failed: %v", err))
		if res != nil {
			result.Data = res.Message
		}
		return result
	}
	fr.log.Debug("dialog handled", zap.String("type", res.Type), zap.Bool("accepted", res.Accepted))
	return dataResult(fmt.Sprintf("%s dialog %q: %s", res.Type, res.Message, resp.Action), res.Message)
}

func (fr *FlowRunner) evalInPage(ctx context.Context, s *flow.EvalScriptStep) *core.CommandResult {
	v, err := fr.page.Evaluate(ctx, pageFunction(s.Script))
	if err != nil {
		return errorResult(err, fmt.Sprintf("Page eval failed: %v", err))
	}
	var text string
	switch t := v.(type) {
	case nil:
	case string:
		text = t
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return errorResult(err, fmt.Sprintf("Page eval returned an unencodable value: %v", err))
		}
		text = string(data)
	}
	if s.Variable != "" {
		fr.script.SetVariable(s.Variable, text)
	}
	return dataResult("Page eval completed", text)
}

func (fr *FlowRunner) takeScreenshot(ctx context.Context, s *flow.TakeScreenshotStep) *core.CommandResult {
	data, err := fr.tab.Screenshot(ctx)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Screenshot failed: %v", err))
	}
	name := s.Path
	if name == "" {
		fr.screenshots++
		name = fmt.Sprintf("screenshot-%03d", fr.screenshots)
	}
	if !strings.HasSuffix(strings.ToLower(name), ".png") {
		name += ".png"
	}
	path, err := fr.flowWriter.SaveNamed(name, data)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Failed to save screenshot: %v", err))
	}
	return dataResult("Saved "+path, path)
}
