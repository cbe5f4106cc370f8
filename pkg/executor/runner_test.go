package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/devicelab-dev/domkit/pkg/calendar"
	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/driver/mock"
	"github.com/devicelab-dev/domkit/pkg/flow"
	"github.com/devicelab-dev/domkit/pkg/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const appURL = "https://app.test/"

const appPage = `<html><head><title>Demo App</title></head><body>
<form id="login">
  <input id="user" type="text">
  <button id="submit" type="button">Sign in</button>
</form>
<p id="greeting"></p>
<p id="status"></p>
<button id="inc">+1</button><span id="count">0</span>
<my-widget id="widget">
  <template shadowrootmode="open">
    <input id="inner" type="text">
    <button id="inner-btn">Go</button>
  </template>
</my-widget>
<button id="confirm">Delete</button>
<p id="result"></p>
<table id="users">
  <thead><tr><th>Name</th><th>Role</th><th>Status</th><th>Actions</th></tr></thead>
  <tbody>
    <tr><td>Alice Johnson</td><td>Admin</td><td>Active</td><td><button>Edit</button></td></tr>
    <tr><td>Bob Smith</td><td>Editor</td><td>Active</td><td><button>Edit</button></td></tr>
    <tr><td>Charlie Brown</td><td>Viewer</td><td>Inactive</td><td><button>Edit</button></td></tr>
  </tbody>
</table>
</body></html>`

const usersPage = `<html><head><title>Users</title></head><body><h1 id="heading">Users</h1></body></html>`

func setText(p *mock.Page, css, text string) {
	p.Mutate(func(doc *goquery.Document) { doc.Find(css).SetText(text) })
}

// setupApp wires the demo app's click behaviour.
func setupApp(p *mock.Page) {
	p.OnClick("#submit", func(ctx context.Context, p *mock.Page, el *mock.Element) error {
		user := p.Query("#user").AttrOr("value", "")
		setText(p, "#greeting", "Hello "+user)
		return nil
	})
	count := 0
	p.OnClick("#inc", func(ctx context.Context, p *mock.Page, el *mock.Element) error {
		count++
		setText(p, "#count", fmt.Sprint(count))
		return nil
	})
	p.OnClick("#inner-btn", func(ctx context.Context, p *mock.Page, el *mock.Element) error {
		value := p.Query("#inner").AttrOr("value", "")
		setText(p, "#result", "shadow clicked with "+value)
		return nil
	})
	p.OnClick("#confirm", func(ctx context.Context, p *mock.Page, el *mock.Element) error {
		if ok, _ := p.RaiseDialog(ctx, "confirm", "Delete item?", ""); ok {
			setText(p, "#result", "deleted")
		} else {
			setText(p, "#result", "kept")
		}
		return nil
	})
}

func newBrowser(opts ...mock.Option) *mock.Browser {
	base := []mock.Option{
		mock.WithSite(appURL, appPage, setupApp),
		mock.WithSite(appURL+"users", usersPage),
	}
	return mock.New(append(base, opts...)...)
}

func testConfig(dir string) RunnerConfig {
	return RunnerConfig{
		OutputDir:     dir,
		Artifacts:     ArtifactNever,
		ActionTimeout: 300 * time.Millisecond,
		RunnerVersion: "1.0.0",
		DriverName:    "mock",
	}
}

func appFlow(name string, steps ...flow.Step) flow.Flow {
	return flow.Flow{
		SourcePath: name + ".yaml",
		Config:     flow.Config{Name: name, URL: appURL},
		Steps:      steps,
	}
}

func base(t flow.StepType) flow.BaseStep { return flow.BaseStep{StepType: t} }

func sel(q string) flow.Selector { return flow.Selector{Query: q} }

func readReport(t *testing.T, dir string) (*report.Index, []report.FlowDetail) {
	t.Helper()
	index, flows, err := report.ReadReport(dir)
	require.NoError(t, err)
	return index, flows
}

func TestRunner_Run_AllPassed(t *testing.T) {
	dir := t.TempDir()
	browser := newBrowser()

	f := appFlow("Login",
		&flow.FillStep{BaseStep: base(flow.StepFill), Selector: sel("#user"), Value: "ada"},
		&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#submit")},
		&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#greeting"), Equals: "Hello ada"},
		&flow.AssertTitleStep{BaseStep: base(flow.StepAssertTitle), Equals: "Demo App"},
	)

	result, err := New(browser, testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)

	if result.Status != report.StatusPassed {
		t.Fatalf("Status = %s, want passed (%+v)", result.Status, result.FlowResults)
	}
	if result.PassedFlows != 1 || result.TotalFlows != 1 {
		t.Errorf("PassedFlows = %d, TotalFlows = %d", result.PassedFlows, result.TotalFlows)
	}
	fr := result.FlowResults[0]
	if fr.StepsPassed != 4 || fr.StepsTotal != 4 {
		t.Errorf("StepsPassed = %d, StepsTotal = %d, want 4/4", fr.StepsPassed, fr.StepsTotal)
	}
	if fr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", fr.Attempts)
	}

	index, flows := readReport(t, dir)
	assert.Equal(t, report.StatusPassed, index.Status)
	assert.Equal(t, "mock", index.Browser.Name)
	assert.Equal(t, "mock", index.Runner.Driver)
	require.Len(t, flows, 1)
	for i, cmd := range flows[0].Commands {
		assert.Equal(t, report.StatusPassed, cmd.Status, "command %d", i)
	}
	click := flows[0].Commands[1]
	require.NotNil(t, click.Element)
	assert.True(t, click.Element.Found)
	assert.True(t, click.Element.Visible)
	assert.Empty(t, flows[0].Commands[0].Artifacts.Screenshot, "artifacts are off")

	pages := browser.Pages()
	require.Len(t, pages, 1)
	assert.Equal(t, []string{"button#submit"}, pages[0].Clicks())
}

func TestRunner_Run_FailureSkipsRemaining(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Artifacts = ArtifactOnFailure

	f := appFlow("Broken",
		&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#submit")},
		&flow.AssertVisibleStep{BaseStep: base(flow.StepAssertVisible), Selector: sel("#missing")},
		&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#submit")},
	)

	result, err := New(newBrowser(), cfg).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)

	fr := result.FlowResults[0]
	if fr.Status != report.StatusFailed {
		t.Fatalf("Status = %s, want failed", fr.Status)
	}
	if fr.StepsPassed != 1 || fr.StepsFailed != 1 || fr.StepsSkipped != 1 {
		t.Errorf("passed/failed/skipped = %d/%d/%d, want 1/1/1", fr.StepsPassed, fr.StepsFailed, fr.StepsSkipped)
	}
	if fr.Error == "" {
		t.Error("flow error should be set")
	}

	_, flows := readReport(t, dir)
	cmds := flows[0].Commands
	assert.Equal(t, report.StatusPassed, cmds[0].Status)
	assert.Empty(t, cmds[0].Artifacts.Screenshot, "passing steps capture nothing on failure mode")
	assert.Equal(t, report.StatusFailed, cmds[1].Status)
	assert.Equal(t, report.StatusSkipped, cmds[2].Status)

	require.NotNil(t, cmds[1].Error)
	assert.Equal(t, core.ErrConditionNotMet.Code, cmds[1].Error.Code)
	assert.Equal(t, "assertion", cmds[1].Error.Type)

	require.NotEmpty(t, cmds[1].Artifacts.Screenshot)
	require.NotEmpty(t, cmds[1].Artifacts.PageHTML)
	_, err = os.Stat(filepath.Join(dir, cmds[1].Artifacts.Screenshot))
	assert.NoError(t, err)
	html, err := os.ReadFile(filepath.Join(dir, cmds[1].Artifacts.PageHTML))
	require.NoError(t, err)
	assert.Contains(t, string(html), `id="submit"`)
}

func TestRunner_Run_OptionalFailureContinues(t *testing.T) {
	dir := t.TempDir()

	missing := &flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#cookie-banner")}
	missing.Optional = true
	missing.TimeoutMs = 50

	f := appFlow("Optional",
		missing,
		&flow.FillStep{BaseStep: base(flow.StepFill), Selector: sel("#user"), Value: "bob"},
	)

	result, err := New(newBrowser(), testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)

	fr := result.FlowResults[0]
	assert.Equal(t, report.StatusPassed, fr.Status)
	assert.Equal(t, 1, fr.StepsFailed)
	assert.Equal(t, 1, fr.StepsPassed)
}

func TestRunner_Run_ClickIfVisible(t *testing.T) {
	dir := t.TempDir()

	f := appFlow("Banner",
		&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#cookie-banner"), IfVisible: true},
		&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc"), IfVisible: true},
		&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#count"), Equals: "1"},
	)

	result, err := New(newBrowser(), testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	assert.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)
}

func TestRunner_Run_RelativeOpen(t *testing.T) {
	dir := t.TempDir()

	f := appFlow("Navigate",
		&flow.OpenStep{BaseStep: base(flow.StepOpen), URL: "/users"},
		&flow.AssertURLStep{BaseStep: base(flow.StepAssertURL), Equals: appURL + "users"},
		&flow.AssertTitleStep{BaseStep: base(flow.StepAssertTitle), Matches: "^Us"},
		&flow.BackStep{BaseStep: base(flow.StepBack)},
		&flow.AssertURLStep{BaseStep: base(flow.StepAssertURL), Equals: appURL},
		&flow.AssertTrueStep{BaseStep: base(flow.StepAssertTrue), Script: "domkit.url == BASE_URL"},
	)

	result, err := New(newBrowser(), testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	assert.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)
}

func TestRunner_Run_UnknownURLFailsFlow(t *testing.T) {
	dir := t.TempDir()

	f := flow.Flow{
		SourcePath: "down.yaml",
		Config:     flow.Config{Name: "Down", URL: "https://down.test/"},
		Steps:      []flow.Step{&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#x")}},
	}

	result, err := New(newBrowser(), testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)

	fr := result.FlowResults[0]
	assert.Equal(t, report.StatusFailed, fr.Status)
	assert.Contains(t, fr.Error, "https://down.test/")

	_, flows := readReport(t, dir)
	assert.Equal(t, report.StatusSkipped, flows[0].Commands[0].Status)
}

func TestRunner_Run_ShadowSteps(t *testing.T) {
	dir := t.TempDir()

	f := appFlow("Shadow",
		&flow.FillInShadowStep{
			BaseStep:     base(flow.StepFillInShadow),
			ShadowTarget: flow.ShadowTarget{Host: sel("#widget"), Selector: "#inner"},
			Value:        "hello",
		},
		&flow.ClickInShadowStep{
			BaseStep:     base(flow.StepClickInShadow),
			ShadowTarget: flow.ShadowTarget{Host: sel("#widget"), Selector: "xpath=.//button[@id='inner-btn']"},
		},
		&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#result"), Equals: "shadow clicked with hello"},
	)

	result, err := New(newBrowser(), testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	assert.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)
}

func TestRunner_Run_ShadowHostMissing(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		code     string
	}{
		// Native lookups stay lazy and fail on the action wait.
		{"native", "#inner-btn", core.ErrWaitTimeout.Code},
		{"path", "xpath=.//button[@id='inner-btn']", core.ErrShadowHostNotFound.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			f := appFlow("Shadow",
				&flow.ClickInShadowStep{
					BaseStep:     base(flow.StepClickInShadow),
					ShadowTarget: flow.ShadowTarget{Host: sel("#nope"), Selector: tt.selector},
				},
			)

			result, err := New(newBrowser(), testConfig(dir)).Run(context.Background(), []flow.Flow{f})
			require.NoError(t, err)
			assert.Equal(t, report.StatusFailed, result.Status)

			_, flows := readReport(t, dir)
			cmd := flows[0].Commands[0]
			require.NotNil(t, cmd.Error)
			assert.Equal(t, tt.code, cmd.Error.Code)
			assert.NotEmpty(t, cmd.Error.Suggestion)
		})
	}
}

// calendarSite renders a month picker. Every change re-renders the document.
func calendarSite(start calendar.Period) mock.SetupFunc {
	return func(p *mock.Page) {
		shown, open, selected := start, false, ""
		render := func() error {
			var b strings.Builder
			b.WriteString(`<html><body><button id="open-calendar">Pick</button>`)
			fmt.Fprintf(&b, `<p id="selected-date-display">%s</p>`, selected)
			hidden := ""
			if !open {
				hidden = " hidden"
			}
			fmt.Fprintf(&b, `<div class="calendar"%s>`, hidden)
			fmt.Fprintf(&b, `<button id="prev-month">&lt;</button><span id="current-month-year">%s</span><button id="next-month">&gt;</button>`, shown)
			days := time.Date(shown.Year(), shown.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
			b.WriteString(`<table><tbody><tr>`)
			for d := 1; d <= days; d++ {
				fmt.Fprintf(&b, `<td class="calendar-day" data-day="%d">%d</td>`, d, d)
				if d%7 == 0 {
					b.WriteString(`</tr><tr>`)
				}
			}
			b.WriteString(`</tr></tbody></table></div></body></html>`)
			return p.SetContent(b.String())
		}
		_ = render()

		p.OnClick("#open-calendar", func(ctx context.Context, p *mock.Page, el *mock.Element) error {
			open = true
			return render()
		})
		p.OnClick("#next-month", func(ctx context.Context, p *mock.Page, el *mock.Element) error {
			shown = shown.Add(1)
			return render()
		})
		p.OnClick("#prev-month", func(ctx context.Context, p *mock.Page, el *mock.Element) error {
			shown = shown.Add(-1)
			return render()
		})
		p.OnClick(".calendar-day", func(ctx context.Context, p *mock.Page, el *mock.Element) error {
			day, _, _ := el.Attribute(ctx, "data-day")
			selected = fmt.Sprintf("%s %s", day, shown)
			open = false
			return render()
		})
	}
}

func TestRunner_Run_SelectDate(t *testing.T) {
	dir := t.TempDir()
	browser := newBrowser(mock.WithSite(appURL+"calendar", "<html></html>", calendarSite(calendar.NewPeriod(2026, time.February))))

	f := flow.Flow{
		SourcePath: "dates.yaml",
		Config:     flow.Config{Name: "Dates", URL: appURL + "calendar", Env: map[string]string{"MONTH": "April"}},
		Steps: []flow.Step{
			&flow.SelectDateStep{BaseStep: base(flow.StepSelectDate), Picker: sel("#open-calendar"), Day: "15", Month: "${MONTH}", Year: "2026"},
			&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#selected-date-display"), Equals: "15 April 2026"},
			&flow.SelectDateStep{BaseStep: base(flow.StepSelectDate), Picker: sel("#open-calendar"), Date: "9 Mar 2026"},
			&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#selected-date-display"), Equals: "9 March 2026"},
			&flow.VerifyDateRangeStep{BaseStep: base(flow.StepVerifyDateRange), Start: "2026-03-09", End: "2026-04-15"},
		},
	}

	result, err := New(browser, testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	assert.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)
}

func TestRunner_Run_SelectDateErrors(t *testing.T) {
	tests := []struct {
		name string
		step *flow.SelectDateStep
		code string
	}{
		{
			name: "invalid month",
			step: &flow.SelectDateStep{BaseStep: base(flow.StepSelectDate), Picker: sel("#open-calendar"), Date: "15 Smarch 2026"},
			code: core.ErrInvalidMonthName.Code,
		},
		{
			name: "beyond budget",
			step: &flow.SelectDateStep{BaseStep: base(flow.StepSelectDate), Picker: sel("#open-calendar"), Date: "1 June 2026", MaxSteps: 2},
			code: core.ErrDateNotReachable.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			browser := newBrowser(mock.WithSite(appURL+"calendar", "<html></html>", calendarSite(calendar.NewPeriod(2026, time.February))))
			f := flow.Flow{
				SourcePath: "dates.yaml",
				Config:     flow.Config{Name: "Dates", URL: appURL + "calendar"},
				Steps:      []flow.Step{tt.step},
			}

			result, err := New(browser, testConfig(dir)).Run(context.Background(), []flow.Flow{f})
			require.NoError(t, err)
			assert.Equal(t, report.StatusFailed, result.Status)

			_, flows := readReport(t, dir)
			require.NotNil(t, flows[0].Commands[0].Error)
			assert.Equal(t, tt.code, flows[0].Commands[0].Error.Code)
		})
	}
}

func TestRunner_Run_TableSteps(t *testing.T) {
	dir := t.TempDir()
	absent := false

	f := appFlow("Tables",
		&flow.CopyCellValueStep{BaseStep: base(flow.StepCopyCellValue), Table: sel("#users"), Row: "Bob Smith", Column: "Role", Variable: "ROLE"},
		&flow.AssertCellValueStep{BaseStep: base(flow.StepAssertCellValue), Table: sel("#users"), Row: "Charlie", Column: "Status", Equals: "Inactive"},
		&flow.AssertRowExistsStep{BaseStep: base(flow.StepAssertRowExists), Table: sel("#users"), Values: map[string]string{"Name": "Alice Johnson", "Role": "Admin"}},
		&flow.AssertRowExistsStep{BaseStep: base(flow.StepAssertRowExists), Table: sel("#users"), Values: map[string]string{"Name": "Zed"}, Exists: &absent},
		&flow.AssertRowCountStep{BaseStep: base(flow.StepAssertRowCount), Table: sel("#users"), Count: "3"},
		&flow.AssertColumnCountStep{BaseStep: base(flow.StepAssertColumnCount), Table: sel("#users"), Count: "4"},
		&flow.AssertTrueStep{BaseStep: base(flow.StepAssertTrue), Script: "ROLE == 'Editor' && domkit.copiedText == 'Editor'"},
	)

	result, err := New(newBrowser(), testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	require.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)

	_, flows := readReport(t, dir)
	assert.Equal(t, "Editor", flows[0].Commands[0].Data)
	assert.Equal(t, "3", flows[0].Commands[4].Data)
}

func TestRunner_Run_TableErrors(t *testing.T) {
	tests := []struct {
		name string
		step flow.Step
		code string
	}{
		{
			name: "unknown column",
			step: &flow.CopyCellValueStep{BaseStep: base(flow.StepCopyCellValue), Table: sel("#users"), Row: "Bob", Column: "Department"},
			code: core.ErrColumnNotFound.Code,
		},
		{
			name: "unknown row",
			step: &flow.CopyCellValueStep{BaseStep: base(flow.StepCopyCellValue), Table: sel("#users"), Row: "Zed", Column: "Role"},
			code: core.ErrRowNotFound.Code,
		},
		{
			name: "cell mismatch",
			step: &flow.AssertCellValueStep{BaseStep: base(flow.StepAssertCellValue), Table: sel("#users"), Row: "Bob", Column: "Role", Equals: "Admin"},
			code: core.ErrTextMismatch.Code,
		},
		{
			name: "missing row",
			step: &flow.AssertRowExistsStep{BaseStep: base(flow.StepAssertRowExists), Table: sel("#users"), Values: map[string]string{"Name": "Zed"}},
			code: core.ErrRowNotFound.Code,
		},
		{
			name: "row count",
			step: &flow.AssertRowCountStep{BaseStep: base(flow.StepAssertRowCount), Table: sel("#users"), Count: "5"},
			code: core.ErrConditionNotMet.Code,
		},
		{
			name: "invalid count",
			step: &flow.AssertRowCountStep{BaseStep: base(flow.StepAssertRowCount), Table: sel("#users"), Count: "many"},
			code: core.ErrInvalidConfig.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := testConfig(dir)
			cfg.ActionTimeout = 100 * time.Millisecond

			result, err := New(newBrowser(), cfg).Run(context.Background(), []flow.Flow{appFlow("Tables", tt.step)})
			require.NoError(t, err)
			assert.Equal(t, report.StatusFailed, result.Status)

			_, flows := readReport(t, dir)
			require.NotNil(t, flows[0].Commands[0].Error)
			assert.Equal(t, tt.code, flows[0].Commands[0].Error.Code)
		})
	}
}

func TestRunner_Run_HandleDialog(t *testing.T) {
	dir := t.TempDir()

	f := appFlow("Dialogs",
		&flow.HandleDialogStep{
			BaseStep: base(flow.StepHandleDialog),
			Action:   "accept",
			Message:  "Delete item?",
			Variable: "CONFIRM_TEXT",
			Steps:    []flow.Step{&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#confirm")}},
		},
		&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#result"), Equals: "deleted"},
		&flow.AssertTrueStep{BaseStep: base(flow.StepAssertTrue), Script: "CONFIRM_TEXT == 'Delete item?' && domkit.dialogText == CONFIRM_TEXT"},
		&flow.HandleDialogStep{
			BaseStep: base(flow.StepHandleDialog),
			Action:   "dismiss",
			Steps:    []flow.Step{&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#confirm")}},
		},
		&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#result"), Equals: "kept"},
	)

	result, err := New(newBrowser(), testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	require.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)

	_, flows := readReport(t, dir)
	cmd := flows[0].Commands[0]
	assert.Equal(t, "Delete item?", cmd.Data)
	require.Len(t, cmd.SubCommands, 1)
	assert.Equal(t, "click", cmd.SubCommands[0].Type)
	assert.Equal(t, report.StatusPassed, cmd.SubCommands[0].Status)
}

func TestRunner_Run_HandleDialogNoDialog(t *testing.T) {
	dir := t.TempDir()

	f := appFlow("Dialogs",
		&flow.HandleDialogStep{
			BaseStep: base(flow.StepHandleDialog),
			Steps:    []flow.Step{&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc")}},
		},
	)

	result, err := New(newBrowser(), testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, result.Status)

	_, flows := readReport(t, dir)
	require.NotNil(t, flows[0].Commands[0].Error)
	assert.Equal(t, core.ErrNoDialog.Code, flows[0].Commands[0].Error.Code)
}

func TestRunner_Run_RepeatAndRunFlow(t *testing.T) {
	dir := t.TempDir()

	f := appFlow("Control",
		&flow.RepeatStep{
			BaseStep: base(flow.StepRepeat),
			Times:    "3",
			Steps:    []flow.Step{&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc")}},
		},
		&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#count"), Equals: "3"},
		&flow.RunFlowStep{
			BaseStep: base(flow.StepRunFlow),
			When:     &flow.Condition{Visible: &flow.Selector{Query: "#missing"}},
			Steps:    []flow.Step{&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc")}},
		},
		&flow.RunFlowStep{
			BaseStep: base(flow.StepRunFlow),
			When:     &flow.Condition{NotVisible: &flow.Selector{Query: "#missing"}},
			Env:      map[string]string{"WHO": "nested"},
			Steps: []flow.Step{
				&flow.FillStep{BaseStep: base(flow.StepFill), Selector: sel("#user"), Value: "${WHO}"},
				&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#submit")},
			},
		},
		&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#greeting"), Equals: "Hello nested"},
		&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#count"), Equals: "3"},
	)

	result, err := New(newBrowser(), testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	require.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)

	_, flows := readReport(t, dir)
	assert.Len(t, flows[0].Commands[0].SubCommands, 3)
	assert.Empty(t, flows[0].Commands[2].SubCommands, "skipped runFlow runs nothing")
	assert.Len(t, flows[0].Commands[3].SubCommands, 2)
}

func TestRunner_Run_RepeatWhile(t *testing.T) {
	dir := t.TempDir()

	f := appFlow("While",
		&flow.DefineVariablesStep{BaseStep: base(flow.StepDefineVariables), Env: map[string]string{"N": "0"}},
		&flow.RepeatStep{
			BaseStep: base(flow.StepRepeat),
			While:    flow.Condition{Script: "Number(N) < 4"},
			Steps: []flow.Step{
				&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc")},
				&flow.RunScriptStep{BaseStep: base(flow.StepRunScript), Script: "output.N = String(Number(N) + 1)"},
			},
		},
		&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#count"), Equals: "4"},
	)

	result, err := New(newBrowser(), testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	assert.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)
}

func TestRunner_Run_RunEnv(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Env = map[string]string{"USER": "grace", "ROLE": "admin"}

	f := appFlow("Env",
		&flow.FillStep{BaseStep: base(flow.StepFill), Selector: sel("#user"), Value: "${USER}"},
		&flow.AssertTrueStep{BaseStep: base(flow.StepAssertTrue), Script: "${ROLE == 'editor'}"},
	)
	f.Config.Env = map[string]string{"ROLE": "editor"}

	browser := newBrowser()
	result, err := New(browser, cfg).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	require.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)

	value, _ := browser.Pages()[0].Query("#user").Attr("value")
	assert.Equal(t, "grace", value)
}

func TestRunner_Run_StopOnFail(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.StopOnFail = true

	flows := []flow.Flow{
		appFlow("Fails", &flow.AssertVisibleStep{BaseStep: base(flow.StepAssertVisible), Selector: sel("#missing")}),
		appFlow("Never runs", &flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc")}),
		appFlow("Never runs either", &flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc")}),
	}

	result, err := New(newBrowser(), cfg).Run(context.Background(), flows)
	require.NoError(t, err)

	assert.Equal(t, report.StatusFailed, result.Status)
	assert.Equal(t, 1, result.FailedFlows)
	assert.Equal(t, 2, result.SkippedFlows)

	index, _ := readReport(t, dir)
	assert.Equal(t, report.StatusSkipped, index.Flows[1].Status)
	assert.Equal(t, report.StatusSkipped, index.Flows[2].Status)
}

func TestRunner_Run_Retries(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Retries = 2

	loads := 0
	var mu sync.Mutex
	browser := newBrowser(mock.WithSite(appURL+"flaky", `<p id="status"></p>`, func(p *mock.Page) {
		mu.Lock()
		loads++
		n := loads
		mu.Unlock()
		setText(p, "#status", fmt.Sprintf("attempt %d", n))
	}))

	f := flow.Flow{
		SourcePath: "flaky.yaml",
		Config:     flow.Config{Name: "Flaky", URL: appURL + "flaky"},
		Steps: []flow.Step{
			&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#status"), Equals: "attempt 2"},
		},
	}

	result, err := New(browser, cfg).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)

	fr := result.FlowResults[0]
	assert.Equal(t, report.StatusPassed, fr.Status)
	assert.Equal(t, 2, fr.Attempts)
	assert.Len(t, browser.Pages(), 2, "each attempt runs on a fresh page")

	index, flows := readReport(t, dir)
	require.Len(t, index.Flows[0].AttemptHistory, 2)
	assert.Equal(t, report.StatusFailed, index.Flows[0].AttemptHistory[0].Status)
	assert.Equal(t, report.StatusPassed, index.Flows[0].AttemptHistory[1].Status)
	assert.Equal(t, report.StatusPassed, flows[0].Commands[0].Status)
}

func TestRunner_Run_Parallel(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Parallelism = 2

	browser := newBrowser()
	var flows []flow.Flow
	for i := 0; i < 4; i++ {
		flows = append(flows, appFlow(fmt.Sprintf("Flow %d", i),
			&flow.FillStep{BaseStep: base(flow.StepFill), Selector: sel("#user"), Value: fmt.Sprintf("user%d", i)},
			&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#submit")},
			&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#greeting"), Equals: fmt.Sprintf("Hello user%d", i)},
		))
	}

	result, err := New(browser, cfg).Run(context.Background(), flows)
	require.NoError(t, err)

	assert.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)
	assert.Equal(t, 4, result.PassedFlows)
	assert.Len(t, browser.Pages(), 4)
	for i, fr := range result.FlowResults {
		assert.Equal(t, fmt.Sprintf("flow-%03d", i), fr.ID, "results keep flow order")
	}
}

func TestRunner_Run_ContextCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flows := []flow.Flow{
		appFlow("A", &flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc")}),
		appFlow("B", &flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc")}),
	}

	result, err := New(newBrowser(), testConfig(dir)).Run(ctx, flows)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SkippedFlows)
	assert.Equal(t, report.StatusPassed, result.Status, "skipped flows do not fail a run")
}

func TestRunner_Run_BrowserClosed(t *testing.T) {
	dir := t.TempDir()
	browser := newBrowser()
	require.NoError(t, browser.Close())

	result, err := New(browser, testConfig(dir)).Run(context.Background(),
		[]flow.Flow{appFlow("A", &flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc")})})
	require.NoError(t, err)

	assert.Equal(t, report.StatusFailed, result.Status)
	assert.Contains(t, result.FlowResults[0].Error, "open page")
}

func TestRunner_Run_ArtifactsAlwaysAndScreenshot(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Artifacts = ArtifactAlways

	f := appFlow("Artifacts",
		&flow.TakeScreenshotStep{BaseStep: base(flow.StepTakeScreenshot), Path: "login"},
		&flow.TakeScreenshotStep{BaseStep: base(flow.StepTakeScreenshot)},
		&flow.RunScriptStep{BaseStep: base(flow.StepRunScript), Script: "console.log('hello from script')"},
	)

	result, err := New(newBrowser(), cfg).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	require.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)

	_, flows := readReport(t, dir)
	cmds := flows[0].Commands
	for i, cmd := range cmds {
		assert.NotEmpty(t, cmd.Artifacts.Screenshot, "command %d", i)
	}
	assert.True(t, strings.HasSuffix(cmds[0].Data, "login.png"), cmds[0].Data)
	assert.True(t, strings.HasSuffix(cmds[1].Data, "screenshot-001.png"), cmds[1].Data)
	_, err = os.Stat(filepath.Join(dir, cmds[0].Data))
	assert.NoError(t, err)

	require.NotEmpty(t, flows[0].Artifacts.ConsoleLog)
	log, err := os.ReadFile(filepath.Join(dir, flows[0].Artifacts.ConsoleLog))
	require.NoError(t, err)
	assert.Contains(t, string(log), "hello from script")
}

func TestRunner_Run_EvalInPage(t *testing.T) {
	dir := t.TempDir()
	var scripts []string
	browser := mock.New(mock.WithSite(appURL, appPage, func(p *mock.Page) {
		p.OnEvaluate(func(js string, args []interface{}) (interface{}, error) {
			scripts = append(scripts, js)
			return map[string]interface{}{"items": 2}, nil
		})
	}))

	f := appFlow("Eval",
		&flow.EvalScriptStep{BaseStep: base(flow.StepEvalScript), Script: "({items: 2})", InPage: true, Variable: "STATE"},
		&flow.AssertTrueStep{BaseStep: base(flow.StepAssertTrue), Script: "JSON.parse(STATE).items === 2"},
	)

	result, err := New(browser, testConfig(dir)).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	require.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)
	assert.Equal(t, []string{"() => (({items: 2}))"}, scripts)
}

func TestRunner_Run_LifecycleHooksAndCallbacks(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	var events []string
	cfg.OnFlowStart = func(idx, total int, name, file string) {
		events = append(events, fmt.Sprintf("start %d/%d %s %s", idx, total, name, file))
	}
	cfg.OnStepComplete = func(idx int, desc string, passed bool, ms int64, errMsg string) {
		events = append(events, fmt.Sprintf("step %d %t", idx, passed))
	}
	cfg.OnFlowEnd = func(name string, passed bool, ms int64) {
		events = append(events, fmt.Sprintf("end %s %t", name, passed))
	}

	f := appFlow("Hooks",
		&flow.AssertTextStep{BaseStep: base(flow.StepAssertText), Selector: sel("#count"), Equals: "1"},
	)
	f.Config.OnFlowStart = []flow.Step{&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc")}}
	f.Config.OnFlowComplete = []flow.Step{&flow.ClickStep{BaseStep: base(flow.StepClick), Selector: sel("#inc")}}

	browser := newBrowser()
	result, err := New(browser, cfg).Run(context.Background(), []flow.Flow{f})
	require.NoError(t, err)
	require.Equal(t, report.StatusPassed, result.Status, "%+v", result.FlowResults)

	assert.Equal(t, []string{"start 0/1 Hooks Hooks.yaml", "step 0 true", "end Hooks true"}, events)
	assert.Len(t, browser.Pages()[0].Clicks(), 2, "onFlowComplete runs after the steps")
}

func TestBuildRunResult(t *testing.T) {
	tests := []struct {
		name     string
		statuses []report.Status
		want     report.Status
	}{
		{"all passed", []report.Status{report.StatusPassed, report.StatusPassed}, report.StatusPassed},
		{"one failed", []report.Status{report.StatusPassed, report.StatusFailed}, report.StatusFailed},
		{"skipped only", []report.Status{report.StatusSkipped}, report.StatusPassed},
		{"empty", nil, report.StatusPassed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []FlowResult
			for _, s := range tt.statuses {
				results = append(results, FlowResult{Status: s})
			}
			got := buildRunResult(results, 42)
			if got.Status != tt.want {
				t.Errorf("Status = %s, want %s", got.Status, tt.want)
			}
			if got.TotalFlows != len(tt.statuses) || got.Duration != 42 {
				t.Errorf("TotalFlows = %d, Duration = %d", got.TotalFlows, got.Duration)
			}
		})
	}
}

func TestParseArtifactMode(t *testing.T) {
	tests := map[string]ArtifactMode{
		"always":    ArtifactAlways,
		"never":     ArtifactNever,
		"onFailure": ArtifactOnFailure,
		"":          ArtifactOnFailure,
		"bogus":     ArtifactOnFailure,
	}
	for in, want := range tests {
		if got := ParseArtifactMode(in); got != want {
			t.Errorf("ParseArtifactMode(%q) = %v, want %v", in, got, want)
		}
	}
}
