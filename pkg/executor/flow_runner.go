package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/flow"
	"github.com/devicelab-dev/domkit/pkg/jsengine"
	"github.com/devicelab-dev/domkit/pkg/report"
)

// FlowRunner executes a single flow on its own page.
type FlowRunner struct {
	ctx         context.Context
	flow        flow.Flow
	detail      *report.FlowDetail
	page        core.Page // scope of element steps: the tab or a frame in it
	tab         core.Page // tab the flow is on
	browser     *core.BrowserInfo
	config      RunnerConfig
	indexWriter *report.IndexWriter
	flowWriter  *report.FlowWriter
	script      *ScriptEngine
	log         *zap.Logger
	timeout     time.Duration // per-action wait
	depth       int           // Nesting depth for runFlow reporting
	flowIdx     int           // Current flow index (0-based)
	totalFlows  int           // Total number of flows
	screenshots int           // unnamed takeScreenshot counter
	// Step counters
	stepsPassed  int
	stepsFailed  int
	stepsSkipped int
	// Sub-command tracking for compound steps (runFlow, repeat, retry, handleDialog)
	subCommands []report.Command
}

// isCompound reports whether step runs nested steps. Compound steps are
// not counted themselves; their nested steps are.
func isCompound(step flow.Step) bool {
	switch step.(type) {
	case *flow.RepeatStep, *flow.RetryStep, *flow.RunFlowStep, *flow.HandleDialogStep:
		return true
	}
	return false
}

// Run executes the flow and returns the result.
func (fr *FlowRunner) Run() FlowResult {
	flowStart := time.Now()

	if fr.flow.Config.Timeout > 0 {
		var cancel context.CancelFunc
		fr.ctx, cancel = context.WithTimeout(fr.ctx, time.Duration(fr.flow.Config.Timeout)*time.Millisecond)
		defer cancel()
	}

	fr.flowWriter = report.NewFlowWriter(fr.detail, fr.config.OutputDir, fr.indexWriter)

	fr.script = NewScriptEngine(fr.log.Named("script"))
	defer fr.script.Close()

	fr.script.ImportSystemEnv()
	fr.script.SetVariables(fr.config.Env)
	if fr.flow.SourcePath != "" {
		fr.script.SetFlowDir(filepath.Dir(fr.flow.SourcePath))
	}
	if fr.browser != nil {
		fr.script.UpdatePage(func(p *jsengine.PageInfo) { p.Browser = fr.browser.Name })
	}
	if fr.flow.Config.URL != "" {
		fr.script.SetVariable("BASE_URL", fr.flow.Config.URL)
	}
	fr.script.SetVariables(fr.flow.Config.Env)

	fr.timeout = fr.config.ActionTimeout
	if fr.flow.Config.ActionTimeout > 0 {
		fr.timeout = time.Duration(fr.flow.Config.ActionTimeout) * time.Millisecond
	}

	flowName := fr.detail.Name
	flowFile := filepath.Base(fr.flow.SourcePath)
	if fr.config.OnFlowStart != nil {
		fr.config.OnFlowStart(fr.flowIdx, fr.totalFlows, flowName, flowFile)
	}
	fr.log.Info("flow started", zap.String("file", flowFile))

	fr.flowWriter.Start()

	flowStatus := report.StatusPassed
	var flowError string

	// onFlowComplete runs even on failure; its failures are ignored.
	defer func() {
		for _, step := range fr.flow.Config.OnFlowComplete {
			fr.executeNestedStep(step)
		}
	}()

	fail := func(msg string) FlowResult {
		fr.flowWriter.SkipRemainingCommands(0)
		fr.saveConsole()
		fr.flowWriter.End(report.StatusFailed)
		if fr.config.OnFlowEnd != nil {
			fr.config.OnFlowEnd(flowName, false, time.Since(flowStart).Milliseconds())
		}
		return fr.result(report.StatusFailed, time.Since(flowStart).Milliseconds(), msg)
	}

	// The flow URL is opened before onFlowStart so hooks can act on the page.
	if fr.flow.Config.URL != "" {
		if result := fr.open(fr.ctx, &flow.OpenStep{URL: fr.flow.Config.URL}); !result.Success {
			return fail(fmt.Sprintf("open %s: %s", fr.flow.Config.URL, resultMessage(result)))
		}
		fr.syncPage()
	}

	for _, step := range fr.flow.Config.OnFlowStart {
		result := fr.executeNestedStep(step)
		if !result.Success && !step.IsOptional() {
			return fail(fmt.Sprintf("onFlowStart failed: %s", resultMessage(result)))
		}
	}

	for i, step := range fr.flow.Steps {
		if fr.ctx.Err() != nil {
			fr.flowWriter.SkipRemainingCommands(i)
			flowStatus = report.StatusSkipped
			flowError = "execution cancelled"
			break
		}

		stepStatus, stepError, stepDuration := fr.executeStep(i, step)

		if fr.config.OnStepComplete != nil {
			fr.config.OnStepComplete(i, step.Describe(), stepStatus == report.StatusPassed, stepDuration, stepError)
		}

		if !isCompound(step) {
			switch stepStatus {
			case report.StatusPassed:
				fr.stepsPassed++
			case report.StatusFailed:
				fr.stepsFailed++
			case report.StatusSkipped:
				fr.stepsSkipped++
			}
		}

		if stepStatus == report.StatusFailed {
			if step.IsOptional() {
				continue
			}
			fr.flowWriter.SkipRemainingCommands(i + 1)
			for _, rest := range fr.flow.Steps[i+1:] {
				if !isCompound(rest) {
					fr.stepsSkipped++
				}
			}
			flowStatus = report.StatusFailed
			flowError = stepError
			break
		}
	}

	fr.saveConsole()
	fr.flowWriter.End(flowStatus)

	flowDuration := time.Since(flowStart).Milliseconds()
	fr.log.Info("flow finished",
		zap.String("status", string(flowStatus)),
		zap.Int64("durationMs", flowDuration))

	if fr.config.OnFlowEnd != nil {
		fr.config.OnFlowEnd(flowName, flowStatus == report.StatusPassed, flowDuration)
	}

	return fr.result(flowStatus, flowDuration, flowError)
}

func (fr *FlowRunner) result(status report.Status, duration int64, errMsg string) FlowResult {
	return FlowResult{
		ID:           fr.detail.ID,
		Name:         fr.detail.Name,
		Status:       status,
		Duration:     duration,
		Error:        errMsg,
		StepsTotal:   fr.stepsPassed + fr.stepsFailed + fr.stepsSkipped,
		StepsPassed:  fr.stepsPassed,
		StepsFailed:  fr.stepsFailed,
		StepsSkipped: fr.stepsSkipped,
	}
}

// saveConsole writes script console output to the flow's console log.
func (fr *FlowRunner) saveConsole() {
	lines := fr.script.ConsoleLines()
	if len(lines) == 0 {
		return
	}
	path, err := fr.flowWriter.SaveConsoleLog([]byte(strings.Join(lines, "\n") + "\n"))
	if err != nil {
		fr.log.Warn("save console log", zap.Error(err))
		return
	}
	fr.flowWriter.SetFlowArtifacts(report.FlowArtifacts{ConsoleLog: path})
}

// dispatch expands step and routes it to its handler.
func (fr *FlowRunner) dispatch(step flow.Step) *core.CommandResult {
	switch s := step.(type) {
	case *flow.RepeatStep:
		return fr.executeRepeat(s)
	case *flow.RetryStep:
		return fr.executeRetry(s)
	case *flow.RunFlowStep:
		return fr.executeRunFlow(s)
	}

	start := time.Now()
	result := fr.runCommand(fr.script.ExpandStep(step))
	result.Duration = time.Since(start)

	switch step.(type) {
	case *flow.OpenStep, *flow.BackStep, *flow.ReloadStep, *flow.ClickStep, *flow.PressKeyStep, *flow.HandleDialogStep:
		fr.syncPage()
	}

	if !result.Success {
		fr.log.Debug("step failed",
			zap.String("step", step.Describe()),
			zap.String("code", core.CodeOf(result.Error)),
			zap.String("message", result.Message))
	}
	return result
}

// executeStep executes a top-level step and updates the report.
// Returns status, error message, and duration in milliseconds.
func (fr *FlowRunner) executeStep(idx int, step flow.Step) (report.Status, string, int64) {
	stepStart := time.Now()

	fr.flowWriter.CommandStart(idx)

	fr.subCommands = nil
	result := fr.dispatch(step)

	stepDuration := time.Since(stepStart).Milliseconds()

	status := report.StatusPassed
	var errorInfo *report.Error
	var errorMsg string
	if !result.Success {
		status = report.StatusFailed
		errorInfo = commandResultToError(result)
		if errorInfo != nil {
			errorMsg = errorInfo.Message
		}
	}

	var artifacts report.CommandArtifacts
	if fr.config.Artifacts == ArtifactAlways || (fr.config.Artifacts == ArtifactOnFailure && !result.Success) {
		artifacts = fr.captureArtifacts(idx)
	}

	out := report.CommandOutcome{
		Status:    status,
		Element:   commandResultToElement(result),
		Error:     errorInfo,
		Artifacts: artifacts,
		Data:      commandResultData(result),
	}
	if isCompound(step) {
		out.SubCommands = fr.subCommands
	}
	fr.subCommands = nil
	fr.flowWriter.Finish(idx, out)

	return status, errorMsg, stepDuration
}

// executeRepeat handles repeat step execution.
func (fr *FlowRunner) executeRepeat(step *flow.RepeatStep) *core.CommandResult {
	times := fr.script.ParseInt(step.Times, 0)
	hasWhile := !step.While.IsEmpty()
	if times <= 0 {
		if !hasWhile {
			times = 1
		} else {
			times = 1000 // Default max iterations for while loops
		}
	}

	iterations := 0
	for ; iterations < times; iterations++ {
		if fr.ctx.Err() != nil {
			return errorResult(fr.ctx.Err(), "Repeat cancelled")
		}
		if hasWhile && !fr.CheckCondition(fr.ctx, step.While) {
			break
		}
		for _, nestedStep := range step.Steps {
			result := fr.executeNestedStep(nestedStep)
			if !result.Success && !nestedStep.IsOptional() {
				return result
			}
		}
	}

	return successResult(fmt.Sprintf("Repeat completed (%d iterations)", iterations), nil)
}

// executeRetry handles retry step execution.
func (fr *FlowRunner) executeRetry(step *flow.RetryStep) *core.CommandResult {
	maxRetries := fr.script.ParseInt(step.MaxRetries, 3)
	if maxRetries < 1 {
		maxRetries = 1
	}

	defer fr.script.withEnvVars(step.Env)()

	if step.File != "" && len(step.Steps) == 0 {
		filePath := fr.script.ResolvePath(step.File)
		subFlow, err := flow.ParseFile(filePath)
		if err != nil {
			return errorResult(err, fmt.Sprintf("Failed to parse flow file: %s", filePath))
		}
		return fr.retry(maxRetries, func() *core.CommandResult { return fr.executeSubFlow(*subFlow) })
	}

	return fr.retry(maxRetries, func() *core.CommandResult { return fr.runSteps(step.Steps, "Retry block completed") })
}

// retry runs attempt until it succeeds or maxRetries attempts have failed.
func (fr *FlowRunner) retry(maxRetries int, attempt func() *core.CommandResult) *core.CommandResult {
	var last *core.CommandResult
	for n := 1; n <= maxRetries; n++ {
		if fr.ctx.Err() != nil {
			return errorResult(fr.ctx.Err(), "Retry cancelled")
		}
		last = attempt()
		if last.Success {
			return successResult(fmt.Sprintf("Retry succeeded on attempt %d", n), nil)
		}
		fr.log.Debug("retry attempt failed", zap.Int("attempt", n), zap.String("message", last.Message))
	}
	return errorResult(last.Error, fmt.Sprintf("Retry failed after %d attempts: %s", maxRetries, resultMessage(last)))
}

// runSteps runs nested steps until the first required failure.
func (fr *FlowRunner) runSteps(steps []flow.Step, done string) *core.CommandResult {
	for _, nestedStep := range steps {
		if fr.ctx.Err() != nil {
			return errorResult(fr.ctx.Err(), "Cancelled")
		}
		result := fr.executeNestedStep(nestedStep)
		if !result.Success && !nestedStep.IsOptional() {
			return result
		}
	}
	return successResult(done, nil)
}

// executeRunFlow handles runFlow step execution.
func (fr *FlowRunner) executeRunFlow(step *flow.RunFlowStep) *core.CommandResult {
	if step.When != nil && !fr.CheckCondition(fr.ctx, *step.When) {
		return successResult("Skipped (when condition not met)", nil)
	}

	if fr.config.OnNestedFlowStart != nil && step.File != "" {
		fr.config.OnNestedFlowStart(fr.depth+1, "Run "+step.File)
	}

	fr.depth++
	defer func() { fr.depth-- }()

	defer fr.script.withEnvVars(step.Env)()

	if len(step.Steps) > 0 {
		return fr.runSteps(step.Steps, "Inline flow completed")
	}

	if step.File == "" {
		return errorResult(core.ErrMissingRequired.WithMessage("runFlow requires file or commands"),
			"runFlow requires file or inline steps")
	}

	filePath := fr.script.ResolvePath(step.File)
	subFlow, err := flow.ParseFile(filePath)
	if err != nil {
		return errorResult(err, fmt.Sprintf("Failed to parse flow file: %s", filePath))
	}
	return fr.executeSubFlow(*subFlow)
}

// executeNestedStep executes a step inside a compound step and records it
// as a sub-command of the current top-level command.
func (fr *FlowRunner) executeNestedStep(step flow.Step) *core.CommandResult {
	start := time.Now()

	// A nested compound step collects its own sub-commands.
	compound := isCompound(step)
	var parentSubCommands []report.Command
	if compound {
		parentSubCommands = fr.subCommands
		fr.subCommands = nil
	}

	result := fr.dispatch(step)

	var nestedSubCommands []report.Command
	if compound {
		nestedSubCommands = fr.subCommands
		fr.subCommands = parentSubCommands
	}
	duration := time.Since(start).Milliseconds()

	if !compound {
		if result.Success {
			fr.stepsPassed++
		} else {
			fr.stepsFailed++
		}
	}

	if fr.config.OnNestedStep != nil && fr.depth > 0 {
		errMsg := ""
		if !result.Success {
			errMsg = resultMessage(result)
		}
		fr.config.OnNestedStep(fr.depth, step.Describe(), result.Success, duration, errMsg)
	}

	status := report.StatusPassed
	if !result.Success {
		status = report.StatusFailed
	}

	cmd := report.NewCommand(0, step)
	now := time.Now()
	cmd.Status = status
	cmd.StartTime = &start
	cmd.EndTime = &now
	cmd.Duration = &duration
	cmd.Element = commandResultToElement(result)
	cmd.Data = commandResultData(result)
	if !result.Success {
		cmd.Error = commandResultToError(result)
	}
	if compound {
		cmd.SubCommands = nestedSubCommands
	}
	cmd.Index = len(fr.subCommands)
	cmd.ID = fmt.Sprintf("sub-%d", cmd.Index)
	fr.subCommands = append(fr.subCommands, cmd)

	return result
}

// executeSubFlow executes a sub-flow without separate report tracking.
func (fr *FlowRunner) executeSubFlow(subFlow flow.Flow) *core.CommandResult {
	prevDir := fr.script.flowDir
	if subFlow.SourcePath != "" {
		fr.script.SetFlowDir(filepath.Dir(subFlow.SourcePath))
	}
	defer func() { fr.script.flowDir = prevDir }()

	defer fr.script.withEnvVars(subFlow.Config.Env)()

	name := subFlow.Config.Name
	if name == "" {
		name = filepath.Base(subFlow.SourcePath)
	}
	return fr.runSteps(subFlow.Steps, fmt.Sprintf("Sub-flow '%s' completed", name))
}

// CheckCondition evaluates a repeat/runFlow condition against the current
// page. Element checks do not wait.
func (fr *FlowRunner) CheckCondition(ctx context.Context, cond flow.Condition) bool {
	if cond.Visible != nil {
		h, err := buildHandle(fr.page, fr.script.expandSelector(cond.Visible))
		if err != nil {
			return false
		}
		if ok, err := h.Visible(ctx); err != nil || !ok {
			return false
		}
	}

	if cond.NotVisible != nil {
		h, err := buildHandle(fr.page, fr.script.expandSelector(cond.NotVisible))
		if err != nil {
			return false
		}
		if ok, err := h.Visible(ctx); err != nil || ok {
			return false
		}
	}

	if cond.Script != "" {
		ok, err := fr.script.EvalCondition(cond.Script)
		if err != nil || !ok {
			return false
		}
	}

	return true
}

// captureArtifacts saves a screenshot and the page HTML for a command.
func (fr *FlowRunner) captureArtifacts(cmdIdx int) report.CommandArtifacts {
	var artifacts report.CommandArtifacts

	if data, err := fr.tab.Screenshot(fr.ctx); err == nil && len(data) > 0 {
		if path, err := fr.flowWriter.SaveScreenshot(cmdIdx, data); err == nil {
			artifacts.Screenshot = path
		}
	} else if err != nil {
		fr.log.Debug("screenshot failed", zap.Error(err))
	}

	if doc, err := fr.page.HTML(fr.ctx); err == nil && doc != "" {
		if path, err := fr.flowWriter.SavePageHTML(cmdIdx, []byte(doc)); err == nil {
			artifacts.PageHTML = path
		}
	}

	return artifacts
}
