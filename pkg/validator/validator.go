// Package validator validates flow files before execution.
// It parses all files upfront, resolves runFlow references, checks required
// step fields and detects errors, so a run never starts on a broken suite.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/devicelab-dev/domkit/pkg/calendar"
	"github.com/devicelab-dev/domkit/pkg/config"
	"github.com/devicelab-dev/domkit/pkg/flow"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// TestCases is the list of top-level flow files in execution order.
	// runFlow targets are validated but not listed.
	TestCases []string
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

func (r *Result) addError(file, format string, args ...interface{}) {
	r.Errors = append(r.Errors, &ValidationError{File: file, Message: fmt.Sprintf(format, args...)})
}

// Validator validates flow files.
type Validator struct {
	includeTags []string
	excludeTags []string
}

// New creates a new Validator.
func New(includeTags, excludeTags []string) *Validator {
	return &Validator{
		includeTags: includeTags,
		excludeTags: excludeTags,
	}
}

// Validate validates a file or directory.
//
// For a directory, the flows listed by config.yaml's flows patterns are
// used; without patterns, the top-level .yaml/.yml files are. Tag filters
// from config.yaml are added to the validator's own.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}

	info, err := os.Stat(path)
	if err != nil {
		result.addError(path, "cannot access: %v", err)
		return result
	}

	include, exclude := v.includeTags, v.excludeTags
	var files []string
	if info.IsDir() {
		cfg, err := config.LoadFromDir(path)
		if err != nil {
			result.addError(path, "invalid config: %v", err)
			return result
		}
		include = append(append([]string(nil), include...), cfg.IncludeTags...)
		exclude = append(append([]string(nil), exclude...), cfg.ExcludeTags...)

		files, err = collectFlowFiles(path, cfg.Flows)
		if err != nil {
			result.addError(path, "failed to scan directory: %v", err)
			return result
		}
	} else {
		files = []string{path}
	}

	w := &walker{result: result, include: include, exclude: exclude, validated: make(map[string]bool)}
	for _, file := range files {
		w.validateFile(file, nil)
	}
	return result
}

// collectFlowFiles resolves patterns against dir. Supported forms are
// shell globs ("smoke/*.yaml"), "**" for every flow below dir and
// "prefix/**" for every flow below dir/prefix. A pattern naming a directory
// selects that directory's top-level flows.
func collectFlowFiles(dir string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return topLevelFlows(dir)
	}

	seen := make(map[string]bool)
	var files []string
	add := func(paths ...string) {
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				files = append(files, p)
			}
		}
	}

	for _, pattern := range patterns {
		switch {
		case pattern == "**":
			found, err := allFlows(dir)
			if err != nil {
				return nil, err
			}
			add(found...)

		case strings.HasSuffix(pattern, "/**"):
			found, err := allFlows(filepath.Join(dir, strings.TrimSuffix(pattern, "/**")))
			if err != nil {
				return nil, err
			}
			add(found...)

		default:
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			sort.Strings(matches)
			for _, m := range matches {
				info, err := os.Stat(m)
				if err != nil {
					continue
				}
				if info.IsDir() {
					found, err := topLevelFlows(m)
					if err != nil {
						return nil, err
					}
					add(found...)
				} else if isFlowFile(m) {
					add(m)
				}
			}
		}
	}
	return files, nil
}

// topLevelFlows lists flow files directly inside dir.
func topLevelFlows(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isFlowFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// allFlows lists flow files anywhere below dir.
func allFlows(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && isFlowFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// isFlowFile reports whether name is a .yaml/.yml file other than the
// workspace config.
func isFlowFile(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	if base == "config.yaml" || base == "config.yml" {
		return false
	}
	ext := filepath.Ext(base)
	return ext == ".yaml" || ext == ".yml"
}

// walker carries state across one Validate call.
type walker struct {
	result    *Result
	include   []string
	exclude   []string
	validated map[string]bool
}

// validateFile validates a single file and its runFlow dependencies.
func (w *walker) validateFile(filePath string, chain []string) {
	// Check for circular dependency
	for _, ancestor := range chain {
		if ancestor == filePath {
			cycle := append(append([]string(nil), chain...), filePath)
			w.result.addError(filePath, "circular dependency detected: %s", strings.Join(cycle, " -> "))
			return
		}
	}

	// Skip if already validated
	if w.validated[filePath] {
		return
	}

	f, err := flow.ParseFile(filePath)
	if err != nil {
		w.result.addError(filePath, "parse error: %v", err)
		return
	}

	// Tag filters apply to top-level files, not runFlow targets.
	topLevel := len(chain) == 0
	if topLevel && !flow.ShouldIncludeFlow(f, w.include, w.exclude) {
		return
	}

	w.validated[filePath] = true
	if topLevel {
		w.result.TestCases = append(w.result.TestCases, filePath)
	}

	newChain := append(append([]string(nil), chain...), filePath)
	w.validateSteps(f.Steps, filePath, newChain)
	w.validateSteps(f.Config.OnFlowStart, filePath, newChain)
	w.validateSteps(f.Config.OnFlowComplete, filePath, newChain)
}

// validateSteps checks each step and follows file references.
func (w *walker) validateSteps(steps []flow.Step, parentFile string, chain []string) {
	parentDir := filepath.Dir(parentFile)

	for i, step := range steps {
		if msg := checkStep(step); msg != "" {
			w.result.addError(parentFile, "step %d (%s): %s", i+1, step.Type(), msg)
		}

		switch s := step.(type) {
		case *flow.UploadFileStep:
			for _, p := range s.Paths() {
				if dynamic(p) {
					continue
				}
				if _, err := os.Stat(resolveFilePath(parentDir, p)); err != nil {
					w.result.addError(parentFile, "step %d (%s): file not found: %s", i+1, step.Type(), p)
				}
			}

		case *flow.RunFlowStep:
			if s.File != "" {
				w.validateFile(resolveFilePath(parentDir, s.File), chain)
			}
			w.validateSteps(s.Steps, parentFile, chain)

		case *flow.RepeatStep:
			w.validateSteps(s.Steps, parentFile, chain)

		case *flow.RetryStep:
			if s.File != "" {
				w.validateFile(resolveFilePath(parentDir, s.File), chain)
			}
			w.validateSteps(s.Steps, parentFile, chain)

		case *flow.HandleDialogStep:
			w.validateSteps(s.Steps, parentFile, chain)
		}
	}
}

// dynamic reports whether s is expanded at run time and cannot be checked
// statically.
func dynamic(s string) bool {
	return strings.Contains(s, "$")
}

// checkStep returns a description of the first problem with step, or "".
//
//nolint:gocyclo
func checkStep(step flow.Step) string {
	if t, ok := step.(flow.Targeted); ok && t.Target().IsEmpty() {
		return "selector is required"
	}

	switch s := step.(type) {
	case *flow.UnsupportedStep:
		return s.Reason

	case *flow.SelectOptionStep:
		if len(s.Values()) == 0 {
			return "option or options is required"
		}

	case *flow.PressKeyStep:
		if s.Key == "" {
			return "key is required"
		}

	case *flow.DragAndDropStep:
		if s.Dest.IsEmpty() {
			return "target is required"
		}
	case *flow.UploadFileStep:
		if len(s.Paths()) == 0 {
			return "file or files is required"
		}

	case *flow.WaitForURLStep:
		if s.Equals == "" && s.Matches == "" {
			return "equals or matches is required"
		}
		return checkPattern(s.Matches)
	case *flow.OpenTabStep:
		if s.URL == "" {
			return "url is required"
		}
	case *flow.SwitchTabStep:
		if s.Index == "" && s.URL == "" && s.Title == "" {
			return "index, url or title is required"
		}
		if s.Index != "" && !dynamic(s.Index) {
			if n, err := strconv.Atoi(strings.TrimSpace(s.Index)); err != nil || n < 0 {
				return fmt.Sprintf("index %q is not a non-negative integer", s.Index)
			}
		}

	case *flow.ClickInShadowStep:
		return checkShadow(&s.ShadowTarget)
	case *flow.FillInShadowStep:
		return checkShadow(&s.ShadowTarget)

	case *flow.SelectDateStep:
		return checkSelectDate(s)

	case *flow.FillNativeDateStep:
		if s.Date == "" {
			return "date is required"
		}
		if !dynamic(s.Date) {
			if _, err := calendar.ParseDate(s.Date); err != nil {
				return err.Error()
			}
		}

	case *flow.VerifyDateRangeStep:
		if s.Start == "" || s.End == "" {
			return "start and end are required"
		}
		if !dynamic(s.Start) && !dynamic(s.End) {
			if err := calendar.VerifyDateRange(s.Start, s.End); err != nil {
				return err.Error()
			}
		}

	case *flow.CopyCellValueStep:
		if s.Row == "" || s.Column == "" {
			return "row and column are required"
		}
	case *flow.AssertCellValueStep:
		if s.Row == "" || s.Column == "" {
			return "row and column are required"
		}
	case *flow.AssertRowExistsStep:
		if len(s.Values) == 0 {
			return "values is required"
		}
	case *flow.AssertRowCountStep:
		return checkCount(s.Count)
	case *flow.AssertColumnCountStep:
		return checkCount(s.Count)

	case *flow.AssertTextStep:
		if s.Equals == "" && s.Contains == "" && s.Matches == "" {
			return "equals, contains or matches is required"
		}
		return checkPattern(s.Matches)
	case *flow.AssertURLStep:
		if s.Equals == "" && s.Matches == "" {
			return "equals or matches is required"
		}
		return checkPattern(s.Matches)
	case *flow.AssertTitleStep:
		if s.Equals == "" && s.Matches == "" {
			return "equals or matches is required"
		}
		return checkPattern(s.Matches)
	case *flow.AssertTrueStep:
		if s.Script == "" {
			return "condition is required"
		}

	case *flow.HandleDialogStep:
		switch strings.ToLower(s.Action) {
		case "", "accept", "dismiss":
		default:
			return fmt.Sprintf("action %q: want accept or dismiss", s.Action)
		}
		if len(s.Steps) == 0 {
			return "commands that open the dialog are required"
		}

	case *flow.RunFlowStep:
		if s.File == "" && len(s.Steps) == 0 {
			return "file or commands is required"
		}
	case *flow.RetryStep:
		if s.File == "" && len(s.Steps) == 0 {
			return "file or commands is required"
		}
	case *flow.RunScriptStep:
		if s.ScriptPath() == "" {
			return "script is required"
		}
	case *flow.EvalScriptStep:
		if s.Script == "" {
			return "script is required"
		}
	}
	return ""
}

func checkShadow(t *flow.ShadowTarget) string {
	if t.Host.IsEmpty() {
		return "host is required"
	}
	if t.Selector == "" {
		return "selector is required"
	}
	return ""
}

func checkSelectDate(s *flow.SelectDateStep) string {
	if s.Date == "" && (s.Day == "" || s.Month == "" || s.Year == "") {
		return "date, or day, month and year, is required"
	}
	if s.MaxSteps < 0 {
		return "maxSteps must not be negative"
	}
	if s.Date != "" {
		if !dynamic(s.Date) {
			if _, err := calendar.ParseTarget(s.Date); err != nil {
				return err.Error()
			}
		}
		return ""
	}
	if !dynamic(s.Month) {
		if _, err := calendar.MonthIndex(s.Month); err != nil {
			return err.Error()
		}
	}
	return ""
}

func checkCount(count string) string {
	if count == "" {
		return "count is required"
	}
	if dynamic(count) {
		return ""
	}
	if n, err := strconv.Atoi(strings.TrimSpace(count)); err != nil || n < 0 {
		return fmt.Sprintf("count %q is not a non-negative integer", count)
	}
	return ""
}

func checkPattern(pattern string) string {
	if pattern == "" || dynamic(pattern) {
		return ""
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Sprintf("invalid pattern: %v", err)
	}
	return ""
}

// resolveFilePath resolves a file path relative to a base directory.
func resolveFilePath(baseDir, filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(baseDir, filePath)
}
