package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/flow"
	"github.com/devicelab-dev/domkit/pkg/jsengine"
)

// envVarPattern matches ALL_CAPS identifiers that look like env variables
var envVarPattern = regexp.MustCompile(`\b([A-Z][A-Z0-9_]{2,})\b`)

// ScriptEngine holds flow variables and the JS runtime behind ${...}
// expressions, runScript and assertTrue.
type ScriptEngine struct {
	js        *jsengine.Engine
	variables map[string]string
	flowDir   string // resolves relative script and flow paths
}

// NewScriptEngine creates a new script engine.
func NewScriptEngine(log *zap.Logger) *ScriptEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &ScriptEngine{
		js:        jsengine.New(jsengine.WithLogger(log)),
		variables: make(map[string]string),
	}
}

// Close stops the JS runtime's timers.
func (se *ScriptEngine) Close() {
	if se.js != nil {
		se.js.Close()
	}
}

// SetFlowDir sets the current flow directory for relative path resolution.
func (se *ScriptEngine) SetFlowDir(dir string) {
	se.flowDir = dir
}

// SetVariable sets a variable in both Go map and JS engine.
func (se *ScriptEngine) SetVariable(name, value string) {
	se.variables[name] = value
	se.js.SetVariable(name, value)
}

// SetVariables sets multiple variables.
func (se *ScriptEngine) SetVariables(vars map[string]string) {
	for k, v := range vars {
		se.SetVariable(k, v)
	}
}

// ImportSystemEnv imports upper-case environment variables (BASE_URL,
// ADMIN_PASSWORD) so flows can reference them as $NAME.
func (se *ScriptEngine) ImportSystemEnv() {
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if ok && envVarPattern.MatchString(name) {
			se.SetVariable(name, value)
		}
	}
}

// GetVariable returns a variable value.
func (se *ScriptEngine) GetVariable(name string) string {
	return se.variables[name]
}

// SetCopiedText sets domkit.copiedText.
func (se *ScriptEngine) SetCopiedText(text string) {
	se.js.SetCopiedText(text)
}

// GetCopiedText returns the stored copied text.
func (se *ScriptEngine) GetCopiedText() string {
	return se.js.GetCopiedText()
}

// UpdatePage updates the page state scripts see through the domkit global.
func (se *ScriptEngine) UpdatePage(fn func(*jsengine.PageInfo)) {
	se.js.UpdatePage(fn)
}

// ConsoleLines drains console output written by scripts.
func (se *ScriptEngine) ConsoleLines() []string {
	return se.js.ConsoleLines()
}

// GetOutput returns the JS output variables.
func (se *ScriptEngine) GetOutput() map[string]interface{} {
	return se.js.GetOutput()
}

// SyncOutputToVariables copies JS output back to variables.
func (se *ScriptEngine) SyncOutputToVariables() {
	for k, v := range se.js.GetOutput() {
		se.SetVariable(k, fmt.Sprintf("%v", v))
	}
}

// ExpandVariables expands ${expr} and $VAR syntax in text.
func (se *ScriptEngine) ExpandVariables(text string) string {
	if text == "" {
		return text
	}
	if result, err := se.js.ExpandVariables(text); err == nil {
		text = result
	}
	return se.expandDollarVars(text)
}

// expandDollarVars expands $VAR syntax (without braces) using stored
// variables. Longer names go first so $USER_ID wins over $USER.
func (se *ScriptEngine) expandDollarVars(text string) string {
	if !strings.Contains(text, "$") {
		return text
	}
	names := make([]string, 0, len(se.variables))
	for name := range se.variables {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return len(names[i]) > len(names[j])
	})

	for _, name := range names {
		text = expandDollarVar(text, name, se.variables[name])
	}
	return text
}

// expandDollarVar replaces $VAR with value, checking word boundaries.
func expandDollarVar(text, name, value string) string {
	pattern := "$" + name
	idx := 0
	for {
		pos := strings.Index(text[idx:], pattern)
		if pos == -1 {
			break
		}
		pos += idx

		endPos := pos + len(pattern)
		if endPos < len(text) && isIdentByte(text[endPos]) {
			idx = endPos
			continue
		}

		text = text[:pos] + value + text[endPos:]
		idx = pos + len(value)
	}
	return text
}

func isIdentByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// predefine declares every ENV_LIKE name in script as undefined when it is
// not set, so a missing variable is falsy instead of a ReferenceError.
func (se *ScriptEngine) predefine(script string) {
	for _, name := range envVarPattern.FindAllString(script, -1) {
		se.js.DefineUndefinedIfMissing(name)
	}
}

// RunScript executes a JavaScript script.
func (se *ScriptEngine) RunScript(script string, env map[string]string) error {
	script = se.ExpandVariables(script)
	for k, v := range env {
		se.SetVariable(k, v)
	}
	se.predefine(script)

	if err := se.js.RunScript(script); err != nil {
		return err
	}
	se.SyncOutputToVariables()
	return nil
}

// EvalCondition evaluates a script condition and returns true/false.
func (se *ScriptEngine) EvalCondition(script string) (bool, error) {
	script = se.expandDollarVars(extractJS(script))
	se.predefine(script)

	result, err := se.js.Eval(script)
	if err != nil {
		return false, err
	}
	return truthy(result), nil
}

func truthy(v interface{}) bool {
	switch v := v.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return v != nil
	}
}

// ResolvePath resolves a relative path against the flow directory.
func (se *ScriptEngine) ResolvePath(path string) string {
	if filepath.IsAbs(path) || se.flowDir == "" {
		return path
	}
	return filepath.Join(se.flowDir, path)
}

// extractJS extracts JavaScript from a ${...} wrapper if present.
func extractJS(script string) string {
	script = strings.TrimSpace(script)
	if strings.HasPrefix(script, "${") && strings.HasSuffix(script, "}") {
		return script[2 : len(script)-1]
	}
	return script
}

// ============================================
// Step Execution Helpers
// ============================================

// ExecuteDefineVariables handles defineVariables step.
func (se *ScriptEngine) ExecuteDefineVariables(step *flow.DefineVariablesStep) *core.CommandResult {
	for k, v := range step.Env {
		se.SetVariable(k, se.ExpandVariables(v))
	}
	return &core.CommandResult{
		Success: true,
		Message: fmt.Sprintf("Defined %d variable(s)", len(step.Env)),
	}
}

// ExecuteRunScript handles runScript step. A value ending in .js is read as
// a file relative to the flow.
func (se *ScriptEngine) ExecuteRunScript(step *flow.RunScriptStep) *core.CommandResult {
	script := step.ScriptPath()

	if strings.HasSuffix(script, ".js") {
		filePath := se.ResolvePath(script)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return errorResult(core.ErrInvalidConfig.WithCause(err),
				fmt.Sprintf("Cannot read script file: %s", filePath))
		}
		script = string(content)
	}

	if err := se.RunScript(script, step.Env); err != nil {
		return errorResult(err, fmt.Sprintf("Script execution failed: %v", err))
	}
	return &core.CommandResult{Success: true, Message: "Script executed successfully"}
}

// ExecuteEvalScript handles evalScript steps that run in the flow's engine.
func (se *ScriptEngine) ExecuteEvalScript(step *flow.EvalScriptStep) *core.CommandResult {
	script := extractJS(step.Script)
	se.predefine(script)
	if err := se.js.RunScript(script); err != nil {
		return errorResult(err, fmt.Sprintf("Eval failed: %v", err))
	}
	se.SyncOutputToVariables()
	return &core.CommandResult{Success: true, Message: "Eval completed"}
}

// ExecuteAssertTrue handles assertTrue step.
func (se *ScriptEngine) ExecuteAssertTrue(step *flow.AssertTrueStep) *core.CommandResult {
	result, err := se.EvalCondition(step.Script)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Assertion evaluation failed: %v", err))
	}
	if !result {
		return errorResult(core.ErrConditionNotMet.WithMessagef("%s is false", step.Script),
			fmt.Sprintf("assertTrue failed: %s", step.Script))
	}
	return &core.CommandResult{Success: true, Message: "Assertion passed"}
}

// withEnvVars applies environment variables and returns a restore function.
func (se *ScriptEngine) withEnvVars(env map[string]string) func() {
	oldVars := make(map[string]string, len(env))
	for k, v := range env {
		oldVars[k] = se.GetVariable(k)
		se.SetVariable(k, se.ExpandVariables(v))
	}
	return func() {
		for k, v := range oldVars {
			se.SetVariable(k, v)
		}
	}
}

// ParseInt parses an integer from string, supporting variable expansion
// and 10_000 style separators.
func (se *ScriptEngine) ParseInt(s string, defaultVal int) int {
	s = strings.ReplaceAll(se.ExpandVariables(s), "_", "")
	if val, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return val
	}
	return defaultVal
}

// ExpandStep returns a copy of step with variables expanded in every string
// field sent to the page. The parsed step is left untouched so loops expand
// it again on every iteration.
func (se *ScriptEngine) ExpandStep(step flow.Step) flow.Step {
	step = cloneStep(step)
	x := se.ExpandVariables
	switch s := step.(type) {
	case *flow.OpenStep:
		s.URL = x(s.URL)
	case *flow.ClickStep:
		s.Selector = *se.expandSelector(&s.Selector)
	case *flow.FillStep:
		s.Selector = *se.expandSelector(&s.Selector)
		s.Value = x(s.Value)
	case *flow.HoverStep:
		s.Selector = *se.expandSelector(&s.Selector)
	case *flow.SelectOptionStep:
		s.Selector = *se.expandSelector(&s.Selector)
		s.Option = x(s.Option)
		options := make([]string, len(s.Options))
		for i, o := range s.Options {
			options[i] = x(o)
		}
		s.Options = options
	case *flow.CheckStep:
		s.Selector = *se.expandSelector(&s.Selector)
	case *flow.PressKeyStep:
		s.Key = x(s.Key)
	case *flow.CopyTextFromStep:
		s.Selector = *se.expandSelector(&s.Selector)
	case *flow.DragAndDropStep:
		s.Source = *se.expandSelector(&s.Source)
		s.Dest = *se.expandSelector(&s.Dest)
	case *flow.UploadFileStep:
		s.Selector = *se.expandSelector(&s.Selector)
		s.File = x(s.File)
		files := make([]string, len(s.Files))
		for i, f := range s.Files {
			files[i] = x(f)
		}
		s.Files = files
	case *flow.ScrollIntoViewStep:
		s.Selector = *se.expandSelector(&s.Selector)
	case *flow.SwitchToFrameStep:
		s.Selector = *se.expandSelector(&s.Selector)
	case *flow.OpenTabStep:
		s.URL = x(s.URL)
	case *flow.SwitchTabStep:
		s.Index, s.URL, s.Title = x(s.Index), x(s.URL), x(s.Title)
	case *flow.WaitForURLStep:
		s.Equals, s.Matches = x(s.Equals), x(s.Matches)
	case *flow.ClickInShadowStep:
		s.Host = *se.expandSelector(&s.Host)
		s.Selector = x(s.Selector)
	case *flow.FillInShadowStep:
		s.Host = *se.expandSelector(&s.Host)
		s.Selector = x(s.Selector)
		s.Value = x(s.Value)
	case *flow.SelectDateStep:
		s.Picker = *se.expandSelector(&s.Picker)
		s.Date, s.Day, s.Month, s.Year = x(s.Date), x(s.Day), x(s.Month), x(s.Year)
	case *flow.FillNativeDateStep:
		s.Selector = *se.expandSelector(&s.Selector)
		s.Date = x(s.Date)
	case *flow.VerifyDateRangeStep:
		s.Start, s.End = x(s.Start), x(s.End)
	case *flow.CopyCellValueStep:
		s.Table = *se.expandSelector(&s.Table)
		s.Row, s.Column = x(s.Row), x(s.Column)
	case *flow.AssertCellValueStep:
		s.Table = *se.expandSelector(&s.Table)
		s.Row, s.Column, s.Equals = x(s.Row), x(s.Column), x(s.Equals)
	case *flow.AssertRowExistsStep:
		s.Table = *se.expandSelector(&s.Table)
		values := make(map[string]string, len(s.Values))
		for k, v := range s.Values {
			values[x(k)] = x(v)
		}
		s.Values = values
	case *flow.AssertRowCountStep:
		s.Table = *se.expandSelector(&s.Table)
	case *flow.AssertColumnCountStep:
		s.Table = *se.expandSelector(&s.Table)
	case *flow.AssertVisibleStep:
		s.Selector = *se.expandSelector(&s.Selector)
	case *flow.AssertNotVisibleStep:
		s.Selector = *se.expandSelector(&s.Selector)
	case *flow.AssertTextStep:
		s.Selector = *se.expandSelector(&s.Selector)
		s.Equals, s.Contains, s.Matches = x(s.Equals), x(s.Contains), x(s.Matches)
	case *flow.AssertURLStep:
		s.Equals, s.Matches = x(s.Equals), x(s.Matches)
	case *flow.AssertTitleStep:
		s.Equals, s.Matches = x(s.Equals), x(s.Matches)
	case *flow.HandleDialogStep:
		s.PromptText, s.Message = x(s.PromptText), x(s.Message)
	case *flow.TakeScreenshotStep:
		s.Path = x(s.Path)
	}
	return step
}

// cloneStep returns a shallow copy of a pointer step.
func cloneStep(step flow.Step) flow.Step {
	v := reflect.ValueOf(step)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return step
	}
	c := reflect.New(v.Elem().Type())
	c.Elem().Set(v.Elem())
	if s, ok := c.Interface().(flow.Step); ok {
		return s
	}
	return step
}

// expandSelector expands variables in selector fields and returns a copy.
func (se *ScriptEngine) expandSelector(sel *flow.Selector) *flow.Selector {
	if sel == nil {
		return nil
	}
	expanded := *sel
	expanded.Query = se.ExpandVariables(expanded.Query)
	expanded.CSS = se.ExpandVariables(expanded.CSS)
	expanded.XPath = se.ExpandVariables(expanded.XPath)
	expanded.ID = se.ExpandVariables(expanded.ID)
	expanded.HasText = se.ExpandVariables(expanded.HasText)
	expanded.ExactText = se.ExpandVariables(expanded.ExactText)
	expanded.Index = se.ExpandVariables(expanded.Index)
	expanded.Within = se.expandSelector(sel.Within)
	return &expanded
}
