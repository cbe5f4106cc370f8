package flow

import (
	"fmt"
	"sort"
	"strings"
)

// StepType represents the type of step.
type StepType string

// Step type constants.
const (
	// Navigation
	StepOpen       StepType = "open"
	StepBack       StepType = "back"
	StepForward    StepType = "forward"
	StepReload     StepType = "reload"
	StepWaitForURL StepType = "waitForUrl"

	// Interaction
	StepClick          StepType = "click"
	StepFill           StepType = "fill"
	StepHover          StepType = "hover"
	StepSelectOption   StepType = "selectOption"
	StepCheck          StepType = "check"
	StepPressKey       StepType = "pressKey"
	StepCopyTextFrom   StepType = "copyTextFrom"
	StepDragAndDrop    StepType = "dragAndDrop"
	StepUploadFile     StepType = "uploadFile"
	StepScrollIntoView StepType = "scrollIntoView"

	// Frames and tabs
	StepSwitchToFrame     StepType = "switchToFrame"
	StepSwitchToMainFrame StepType = "switchToMainFrame"
	StepOpenTab           StepType = "openTab"
	StepSwitchTab         StepType = "switchTab"
	StepCloseTab          StepType = "closeTab"

	// Shadow DOM
	StepClickInShadow StepType = "clickInShadow"
	StepFillInShadow  StepType = "fillInShadow"

	// Dates
	StepSelectDate      StepType = "selectDate"
	StepFillNativeDate  StepType = "fillNativeDate"
	StepVerifyDateRange StepType = "verifyDateRange"

	// Tables
	StepCopyCellValue     StepType = "copyCellValue"
	StepAssertCellValue   StepType = "assertCellValue"
	StepAssertRowExists   StepType = "assertRowExists"
	StepAssertRowCount    StepType = "assertRowCount"
	StepAssertColumnCount StepType = "assertColumnCount"

	// Assertions
	StepAssertVisible    StepType = "assertVisible"
	StepAssertNotVisible StepType = "assertNotVisible"
	StepAssertText       StepType = "assertText"
	StepAssertURL        StepType = "assertUrl"
	StepAssertTitle      StepType = "assertTitle"
	StepAssertTrue       StepType = "assertTrue"

	// Dialogs
	StepHandleDialog StepType = "handleDialog"

	// Flow Control
	StepRepeat     StepType = "repeat"
	StepRetry      StepType = "retry"
	StepRunFlow    StepType = "runFlow"
	StepRunScript  StepType = "runScript"
	StepEvalScript StepType = "evalScript"

	// Other
	StepTakeScreenshot  StepType = "takeScreenshot"
	StepDefineVariables StepType = "defineVariables"
)

// Step is the interface for all flow steps.
type Step interface {
	Type() StepType
	IsOptional() bool
	Label() string
	Describe() string
}

// BaseStep contains common fields for all steps.
type BaseStep struct {
	StepType  StepType `yaml:"-"`
	Optional  bool     `yaml:"optional"`
	StepLabel string   `yaml:"label"`
	TimeoutMs int      `yaml:"timeout"`
}

// Type returns the step type.
func (b *BaseStep) Type() StepType { return b.StepType }

// IsOptional returns whether the step is optional.
func (b *BaseStep) IsOptional() bool { return b.Optional }

// Label returns the step label.
func (b *BaseStep) Label() string { return b.StepLabel }

// Describe returns a human-readable description.
func (b *BaseStep) Describe() string { return string(b.StepType) }

// Base returns the embedded BaseStep.
func (b *BaseStep) Base() *BaseStep { return b }

// Targeted is implemented by steps that act on one element.
type Targeted interface {
	Target() *Selector
}

// ============================================
// Navigation Steps
// ============================================

// OpenStep navigates the page to a URL.
type OpenStep struct {
	BaseStep `yaml:",inline"`
	URL      string `yaml:"url"`
}

// BackStep navigates back in history.
type BackStep struct {
	BaseStep `yaml:",inline"`
}

// ForwardStep navigates forward in history.
type ForwardStep struct {
	BaseStep `yaml:",inline"`
}

// ReloadStep reloads the page.
type ReloadStep struct {
	BaseStep `yaml:",inline"`
}

// WaitForURLStep waits until the tab's URL equals or matches a value.
type WaitForURLStep struct {
	BaseStep `yaml:",inline"`
	Equals   string `yaml:"equals"`
	Matches  string `yaml:"matches"`
}

// ============================================
// Interaction Steps
// ============================================

// ClickStep clicks an element.
type ClickStep struct {
	BaseStep   `yaml:",inline"`
	Selector   Selector `yaml:",inline"`
	Button     string   `yaml:"button"` // left, right, middle
	ClickCount int      `yaml:"clickCount"`
	Force      bool     `yaml:"force"`

	// IfVisible clicks only when the element is visible right now and
	// passes otherwise, without waiting.
	IfVisible bool `yaml:"ifVisible"`
}

// FillStep replaces the value of an input.
type FillStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	Value    string   `yaml:"value"`
}

// HoverStep moves the mouse over an element.
type HoverStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
}

// SelectOptionStep selects options of a <select> by value or label.
type SelectOptionStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	Option   string   `yaml:"option"`
	Options  []string `yaml:"options"`
}

// Values returns Option and Options combined.
func (s *SelectOptionStep) Values() []string {
	if s.Option == "" {
		return s.Options
	}
	return append([]string{s.Option}, s.Options...)
}

// CheckStep sets a checkbox or radio.
type CheckStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	Checked  *bool    `yaml:"checked"` // Default true
}

// Want returns the requested checked state.
func (s *CheckStep) Want() bool {
	return s.Checked == nil || *s.Checked
}

// PressKeyStep presses a key or chord such as "Control+A".
type PressKeyStep struct {
	BaseStep `yaml:",inline"`
	Key      string `yaml:"key"`
}

// CopyTextFromStep stores an element's text in a variable.
type CopyTextFromStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	Variable string   `yaml:"variable"` // Default: copiedText only
}

// DragAndDropStep drags one element onto another.
type DragAndDropStep struct {
	BaseStep `yaml:",inline"`
	Source   Selector `yaml:"source"`
	Dest     Selector `yaml:"target"`
}

// UploadFileStep sets the files of an <input type=file>. Relative paths
// resolve against the flow file's directory.
type UploadFileStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	File     string   `yaml:"file"`
	Files    []string `yaml:"files"`
}

// Paths returns File and Files combined.
func (s *UploadFileStep) Paths() []string {
	if s.File == "" {
		return s.Files
	}
	return append([]string{s.File}, s.Files...)
}

// ScrollIntoViewStep scrolls an element into the viewport.
type ScrollIntoViewStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
}

// ============================================
// Frame and Tab Steps
// ============================================

// SwitchToFrameStep scopes the following steps to an iframe's document.
// Switching again from inside a frame enters a nested frame.
type SwitchToFrameStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
}

// SwitchToMainFrameStep returns the scope to the tab's document.
type SwitchToMainFrameStep struct {
	BaseStep `yaml:",inline"`
}

// OpenTabStep opens a URL in a new tab and switches to it.
type OpenTabStep struct {
	BaseStep `yaml:",inline"`
	URL      string `yaml:"url"`
}

// SwitchTabStep switches to an open tab by position, URL or title. The
// step waits for a matching tab, so a popup still opening is found.
type SwitchTabStep struct {
	BaseStep `yaml:",inline"`
	Index    string `yaml:"index"` // 0 is the flow's first tab
	URL      string `yaml:"url"`   // substring of the tab's URL
	Title    string `yaml:"title"` // substring of the tab's title
}

// CloseTabStep closes the current tab and switches to the first.
type CloseTabStep struct {
	BaseStep `yaml:",inline"`
}

// ============================================
// Shadow DOM Steps
// ============================================

// ShadowTarget addresses an element inside a shadow host.
type ShadowTarget struct {
	Host     Selector `yaml:"host"`
	Selector string   `yaml:"selector"` // css, or path expression resolved eagerly
}

// ClickInShadowStep clicks an element inside a shadow root.
type ClickInShadowStep struct {
	BaseStep     `yaml:",inline"`
	ShadowTarget `yaml:",inline"`
}

// FillInShadowStep fills an input inside a shadow root.
type FillInShadowStep struct {
	BaseStep     `yaml:",inline"`
	ShadowTarget `yaml:",inline"`
	Value        string `yaml:"value"`
}

// ============================================
// Date Steps
// ============================================

// SelectDateStep picks a date in a calendar widget.
type SelectDateStep struct {
	BaseStep   `yaml:",inline"`
	Picker     Selector `yaml:"picker"`
	Date       string   `yaml:"date"` // "15 March 2026" or day/month/year below
	Day        string   `yaml:"day"`
	Month      string   `yaml:"month"`
	Year       string   `yaml:"year"`
	NextButton string   `yaml:"nextButton"`
	PrevButton string   `yaml:"prevButton"`
	MonthLabel string   `yaml:"monthLabel"`
	DayCell    string   `yaml:"dayCell"`
	MaxSteps   int      `yaml:"maxSteps"`
}

// FillNativeDateStep fills an <input type=date> with YYYY-MM-DD.
type FillNativeDateStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	Date     string   `yaml:"date"`
}

// VerifyDateRangeStep checks that start is not after end.
type VerifyDateRangeStep struct {
	BaseStep `yaml:",inline"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
}

// ============================================
// Table Steps
// ============================================

// CopyCellValueStep stores a table cell in a variable.
type CopyCellValueStep struct {
	BaseStep `yaml:",inline"`
	Table    Selector `yaml:"table"`
	Row      string   `yaml:"row"` // Text contained in the row
	Column   string   `yaml:"column"`
	Variable string   `yaml:"variable"`
}

// AssertCellValueStep asserts a table cell value.
type AssertCellValueStep struct {
	BaseStep `yaml:",inline"`
	Table    Selector `yaml:"table"`
	Row      string   `yaml:"row"`
	Column   string   `yaml:"column"`
	Equals   string   `yaml:"equals"`
}

// AssertRowExistsStep asserts a row matching every column value exists,
// or with exists: false, that none does.
type AssertRowExistsStep struct {
	BaseStep `yaml:",inline"`
	Table    Selector          `yaml:"table"`
	Values   map[string]string `yaml:"values"`
	Exists   *bool             `yaml:"exists"`
}

// Want returns whether the row is expected to exist.
func (s *AssertRowExistsStep) Want() bool {
	return s.Exists == nil || *s.Exists
}

// AssertRowCountStep asserts the number of body rows.
type AssertRowCountStep struct {
	BaseStep `yaml:",inline"`
	Table    Selector `yaml:"table"`
	Count    string   `yaml:"count"` // String for variable support
}

// AssertColumnCountStep asserts the number of header cells.
type AssertColumnCountStep struct {
	BaseStep `yaml:",inline"`
	Table    Selector `yaml:"table"`
	Count    string   `yaml:"count"`
}

// ============================================
// Assertion Steps
// ============================================

// AssertVisibleStep asserts element is visible.
type AssertVisibleStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
}

// AssertNotVisibleStep asserts element is hidden or absent.
type AssertNotVisibleStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
}

// AssertTextStep asserts an element's text.
type AssertTextStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	Equals   string   `yaml:"equals"`
	Contains string   `yaml:"contains"`
	Matches  string   `yaml:"matches"` // Regular expression
}

// AssertURLStep asserts the page URL.
type AssertURLStep struct {
	BaseStep `yaml:",inline"`
	Equals   string `yaml:"equals"`
	Matches  string `yaml:"matches"`
}

// AssertTitleStep asserts the page title.
type AssertTitleStep struct {
	BaseStep `yaml:",inline"`
	Equals   string `yaml:"equals"`
	Matches  string `yaml:"matches"`
}

// AssertTrueStep asserts a script condition is true.
type AssertTrueStep struct {
	BaseStep `yaml:",inline"`
	Script   string `yaml:"condition"`
}

// Condition represents a test condition.
type Condition struct {
	Visible    *Selector `yaml:"visible"`
	NotVisible *Selector `yaml:"notVisible"`
	Script     string    `yaml:"scriptCondition"`
}

// IsEmpty reports whether no condition is set.
func (c *Condition) IsEmpty() bool {
	return c == nil || (c.Visible == nil && c.NotVisible == nil && c.Script == "")
}

// ============================================
// Dialog Steps
// ============================================

// HandleDialogStep answers the dialog opened by its nested steps.
type HandleDialogStep struct {
	BaseStep   `yaml:",inline"`
	Action     string `yaml:"action"` // accept (default) or dismiss
	PromptText string `yaml:"promptText"`
	Message    string `yaml:"message"`  // Expected dialog text
	Variable   string `yaml:"variable"` // Stores the dialog text
	Steps      []Step `yaml:"-"`
}

// ============================================
// Flow Control Steps
// ============================================

// RepeatStep repeats steps.
type RepeatStep struct {
	BaseStep `yaml:",inline"`
	Times    string    `yaml:"times"` // String for variable support
	While    Condition `yaml:"while"`
	Steps    []Step    `yaml:"-"`
}

// RetryStep retries steps on failure.
type RetryStep struct {
	BaseStep   `yaml:",inline"`
	MaxRetries string            `yaml:"maxRetries"` // String for variable support
	Steps      []Step            `yaml:"-"`
	File       string            `yaml:"file"`
	Env        map[string]string `yaml:"env"`
}

// RunFlowStep runs another flow.
type RunFlowStep struct {
	BaseStep `yaml:",inline"`
	File     string            `yaml:"file"`
	Steps    []Step            `yaml:"-"` // Inline steps
	When     *Condition        `yaml:"when"`
	Env      map[string]string `yaml:"env"`
}

// RunScriptStep runs a script.
type RunScriptStep struct {
	BaseStep `yaml:",inline"`
	Script   string            `yaml:"script"` // Script content or filename (string form)
	File     string            `yaml:"file"`   // Script filename (map form)
	Env      map[string]string `yaml:"env"`
}

// ScriptPath returns the script path (either Script or File field).
func (s *RunScriptStep) ScriptPath() string {
	if s.File != "" {
		return s.File
	}
	return s.Script
}

// EvalScriptStep evaluates JavaScript in the flow's script engine, or in
// the page when InPage is set.
type EvalScriptStep struct {
	BaseStep `yaml:",inline"`
	Script   string `yaml:"script"`
	InPage   bool   `yaml:"inPage"`
	Variable string `yaml:"variable"` // Stores the page result
}

// ============================================
// Other Steps
// ============================================

// TakeScreenshotStep takes a screenshot.
type TakeScreenshotStep struct {
	BaseStep `yaml:",inline"`
	Path     string `yaml:"path"`
}

// DefineVariablesStep defines variables.
type DefineVariablesStep struct {
	BaseStep `yaml:",inline"`
	Env      map[string]string `yaml:"env"`
}

// UnsupportedStep represents an unsupported step.
type UnsupportedStep struct {
	BaseStep `yaml:",inline"`
	Reason   string
}

// Describe returns a description including the unsupported reason.
func (s *UnsupportedStep) Describe() string {
	return string(s.StepType) + " (unsupported: " + s.Reason + ")"
}

// ============================================
// Target() implementations
// ============================================

func (s *ClickStep) Target() *Selector            { return &s.Selector }
func (s *FillStep) Target() *Selector             { return &s.Selector }
func (s *HoverStep) Target() *Selector            { return &s.Selector }
func (s *SelectOptionStep) Target() *Selector     { return &s.Selector }
func (s *CheckStep) Target() *Selector            { return &s.Selector }
func (s *CopyTextFromStep) Target() *Selector     { return &s.Selector }
func (s *DragAndDropStep) Target() *Selector      { return &s.Source }
func (s *UploadFileStep) Target() *Selector       { return &s.Selector }
func (s *ScrollIntoViewStep) Target() *Selector   { return &s.Selector }
func (s *SwitchToFrameStep) Target() *Selector    { return &s.Selector }
func (s *FillNativeDateStep) Target() *Selector   { return &s.Selector }
func (s *AssertVisibleStep) Target() *Selector    { return &s.Selector }
func (s *AssertNotVisibleStep) Target() *Selector { return &s.Selector }
func (s *AssertTextStep) Target() *Selector       { return &s.Selector }
func (s *SelectDateStep) Target() *Selector       { return &s.Picker }
func (s *CopyCellValueStep) Target() *Selector    { return &s.Table }
func (s *AssertCellValueStep) Target() *Selector  { return &s.Table }
func (s *AssertRowExistsStep) Target() *Selector  { return &s.Table }
func (s *AssertRowCountStep) Target() *Selector   { return &s.Table }
func (s *AssertColumnCountStep) Target() *Selector {
	return &s.Table
}

// ============================================
// Describe() implementations for detailed output
// ============================================

// Describe returns a human-readable description of the open step.
func (s *OpenStep) Describe() string { return "open: " + s.URL }

// Describe returns a human-readable description of the click step.
func (s *ClickStep) Describe() string {
	d := "click: " + s.Selector.DescribeQuoted()
	if s.IfVisible {
		d += " (if visible)"
	}
	return d
}

// Describe returns a human-readable description of the fill step.
func (s *FillStep) Describe() string {
	return fmt.Sprintf("fill: %s = %q", s.Selector.DescribeQuoted(), s.Value)
}

// Describe returns a human-readable description of the hover step.
func (s *HoverStep) Describe() string { return "hover: " + s.Selector.DescribeQuoted() }

// Describe returns a human-readable description of the drag step.
func (s *DragAndDropStep) Describe() string {
	return fmt.Sprintf("dragAndDrop: %s -> %s", s.Source.DescribeQuoted(), s.Dest.DescribeQuoted())
}

// Describe returns a human-readable description of the upload step.
func (s *UploadFileStep) Describe() string {
	return fmt.Sprintf("uploadFile: %s = %s", s.Selector.DescribeQuoted(), strings.Join(s.Paths(), ", "))
}

// Describe returns a human-readable description of the scroll step.
func (s *ScrollIntoViewStep) Describe() string {
	return "scrollIntoView: " + s.Selector.DescribeQuoted()
}

// Describe returns a human-readable description of the frame switch.
func (s *SwitchToFrameStep) Describe() string {
	return "switchToFrame: " + s.Selector.DescribeQuoted()
}

// Describe returns a human-readable description of the open tab step.
func (s *OpenTabStep) Describe() string { return "openTab: " + s.URL }

// Describe returns a human-readable description of the tab switch.
func (s *SwitchTabStep) Describe() string {
	switch {
	case s.URL != "":
		return "switchTab: url ~ " + s.URL
	case s.Title != "":
		return "switchTab: title ~ " + s.Title
	default:
		return "switchTab: " + s.Index
	}
}

// Describe returns a human-readable description of the wait for URL step.
func (s *WaitForURLStep) Describe() string {
	if s.Matches != "" {
		return "waitForUrl: /" + s.Matches + "/"
	}
	return "waitForUrl: " + s.Equals
}

// Describe returns a human-readable description of the press key step.
func (s *PressKeyStep) Describe() string { return "pressKey: " + s.Key }

// Describe returns a human-readable description of the copy text step.
func (s *CopyTextFromStep) Describe() string {
	return "copyTextFrom: " + s.Selector.DescribeQuoted()
}

// Describe returns a human-readable description of the click in shadow step.
func (s *ClickInShadowStep) Describe() string {
	return fmt.Sprintf("clickInShadow: %s >> %s", s.Host.DescribeQuoted(), s.Selector)
}

// Describe returns a human-readable description of the fill in shadow step.
func (s *FillInShadowStep) Describe() string {
	return fmt.Sprintf("fillInShadow: %s >> %s = %q", s.Host.DescribeQuoted(), s.Selector, s.Value)
}

// Describe returns a human-readable description of the select date step.
func (s *SelectDateStep) Describe() string {
	if s.Date != "" {
		return "selectDate: " + s.Date
	}
	return fmt.Sprintf("selectDate: %s %s %s", s.Day, s.Month, s.Year)
}

// Describe returns a human-readable description of the native date step.
func (s *FillNativeDateStep) Describe() string {
	return fmt.Sprintf("fillNativeDate: %s = %s", s.Selector.DescribeQuoted(), s.Date)
}

// Describe returns a human-readable description of the date range step.
func (s *VerifyDateRangeStep) Describe() string {
	return fmt.Sprintf("verifyDateRange: %s .. %s", s.Start, s.End)
}

// Describe returns a human-readable description of the copy cell step.
func (s *CopyCellValueStep) Describe() string {
	return fmt.Sprintf("copyCellValue: %s[%s][%s]", s.Table.Describe(), s.Row, s.Column)
}

// Describe returns a human-readable description of the cell assertion.
func (s *AssertCellValueStep) Describe() string {
	return fmt.Sprintf("assertCellValue: %s[%s][%s] = %q", s.Table.Describe(), s.Row, s.Column, s.Equals)
}

// Describe returns a human-readable description of the row assertion.
func (s *AssertRowExistsStep) Describe() string {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + s.Values[k]
	}
	verb := "assertRowExists"
	if !s.Want() {
		verb = "assertRowExists (absent)"
	}
	return fmt.Sprintf("%s: %s {%s}", verb, s.Table.Describe(), strings.Join(pairs, ", "))
}

// Describe returns a human-readable description of the row count assertion.
func (s *AssertRowCountStep) Describe() string {
	return fmt.Sprintf("assertRowCount: %s = %s", s.Table.Describe(), s.Count)
}

// Describe returns a human-readable description of the column count assertion.
func (s *AssertColumnCountStep) Describe() string {
	return fmt.Sprintf("assertColumnCount: %s = %s", s.Table.Describe(), s.Count)
}

// Describe returns a human-readable description of the assert visible step.
func (s *AssertVisibleStep) Describe() string {
	return "assertVisible: " + s.Selector.DescribeQuoted()
}

// Describe returns a human-readable description of the assert not visible step.
func (s *AssertNotVisibleStep) Describe() string {
	return "assertNotVisible: " + s.Selector.DescribeQuoted()
}

// Describe returns a human-readable description of the text assertion.
func (s *AssertTextStep) Describe() string {
	switch {
	case s.Contains != "":
		return fmt.Sprintf("assertText: %s contains %q", s.Selector.DescribeQuoted(), s.Contains)
	case s.Matches != "":
		return fmt.Sprintf("assertText: %s matches /%s/", s.Selector.DescribeQuoted(), s.Matches)
	default:
		return fmt.Sprintf("assertText: %s = %q", s.Selector.DescribeQuoted(), s.Equals)
	}
}

// Describe returns a human-readable description of the URL assertion.
func (s *AssertURLStep) Describe() string {
	if s.Matches != "" {
		return "assertUrl: /" + s.Matches + "/"
	}
	return "assertUrl: " + s.Equals
}

// Describe returns a human-readable description of the title assertion.
func (s *AssertTitleStep) Describe() string {
	if s.Matches != "" {
		return "assertTitle: /" + s.Matches + "/"
	}
	return "assertTitle: " + s.Equals
}

// Describe returns a human-readable description of the dialog step.
func (s *HandleDialogStep) Describe() string {
	action := s.Action
	if action == "" {
		action = "accept"
	}
	return "handleDialog: " + action
}

// Describe returns a human-readable description of the run flow step.
func (s *RunFlowStep) Describe() string {
	if s.File != "" {
		return "runFlow: " + s.File
	}
	return "runFlow"
}

// Describe returns a human-readable description of the screenshot step.
func (s *TakeScreenshotStep) Describe() string {
	if s.Path != "" {
		return "takeScreenshot: " + s.Path
	}
	return "takeScreenshot"
}
