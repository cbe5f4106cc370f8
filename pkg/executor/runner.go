// Package executor runs parsed flows against a browser and records the
// results in a report.
package executor

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/domkit/pkg/calendar"
	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/flow"
	"github.com/devicelab-dev/domkit/pkg/logger"
	"github.com/devicelab-dev/domkit/pkg/report"
)

// ArtifactMode determines when to capture screenshots and page HTML.
type ArtifactMode int

const (
	// ArtifactOnFailure captures artifacts only when a step fails.
	ArtifactOnFailure ArtifactMode = iota
	// ArtifactAlways captures artifacts after every step.
	ArtifactAlways
	// ArtifactNever disables artifact capture.
	ArtifactNever
)

// ParseArtifactMode maps onFailure, always and never to a mode. Anything
// else is ArtifactOnFailure.
func ParseArtifactMode(s string) ArtifactMode {
	switch s {
	case "always":
		return ArtifactAlways
	case "never":
		return ArtifactNever
	default:
		return ArtifactOnFailure
	}
}

// RunnerConfig configures the test runner.
type RunnerConfig struct {
	OutputDir   string       // Report output directory
	Parallelism int          // Max concurrent flows (0 = sequential)
	StopOnFail  bool         // Stop starting flows after the first failure
	Retries     int          // Extra attempts for a failed flow (0 = no retries)
	Artifacts   ArtifactMode // When to capture artifacts

	// HTML, when set, keeps report.html current while the run goes.
	HTML *report.HTMLConfig

	ActionTimeout     time.Duration    // Per-action wait; flows and steps may override
	NavigationTimeout time.Duration    // Bound for open, back and reload
	Calendar          calendar.Options // Default date picker selectors

	Env map[string]string // Run-level variables; flow env overrides them

	CI *report.CI

	// Runner metadata
	RunnerVersion string
	DriverName    string

	// Live progress callbacks
	OnFlowStart       func(flowIdx, totalFlows int, name, file string)
	OnStepComplete    func(idx int, desc string, passed bool, durationMs int64, err string)
	OnNestedStep      func(depth int, desc string, passed bool, durationMs int64, err string)
	OnNestedFlowStart func(depth int, desc string)
	OnFlowEnd         func(name string, passed bool, durationMs int64)
}

// RunResult contains the outcome of a test run.
type RunResult struct {
	Status       report.Status
	TotalFlows   int
	PassedFlows  int
	FailedFlows  int
	SkippedFlows int
	Duration     int64 // Wall clock duration in milliseconds
	FlowResults  []FlowResult
}

// FlowResult contains the outcome of a single flow execution.
type FlowResult struct {
	ID           string
	Name         string
	Status       report.Status
	Duration     int64
	Error        string
	Attempts     int
	StepsTotal   int
	StepsPassed  int
	StepsFailed  int
	StepsSkipped int
}

// Runner orchestrates flow execution. Every flow runs on its own page.
type Runner struct {
	config  RunnerConfig
	browser core.Browser
	log     *zap.Logger
}

// New creates a new Runner.
func New(browser core.Browser, cfg RunnerConfig) *Runner {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 5 * time.Second
	}
	cfg.Calendar = cfg.Calendar.WithDefaults()
	return &Runner{
		config:  cfg,
		browser: browser,
		log:     logger.Named("executor"),
	}
}

// Run executes all flows and generates reports.
func (r *Runner) Run(ctx context.Context, flows []flow.Flow) (*RunResult, error) {
	builderCfg := report.BuilderConfig{
		OutputDir:     r.config.OutputDir,
		CI:            r.config.CI,
		RunnerVersion: r.config.RunnerVersion,
		DriverName:    r.config.DriverName,
	}
	if info := r.browser.Info(); info != nil {
		builderCfg.Browser = report.Browser{
			Name:      info.Name,
			Version:   info.Version,
			UserAgent: info.UserAgent,
			Headless:  info.Headless,
		}
	}

	index, flowDetails, err := report.BuildSkeleton(flows, builderCfg)
	if err != nil {
		return nil, err
	}
	if err := report.WriteSkeleton(r.config.OutputDir, index, flowDetails); err != nil {
		return nil, err
	}

	var opts []report.IndexOption
	if r.config.HTML != nil {
		opts = append(opts, report.WithHTML(*r.config.HTML))
	}
	indexWriter := report.NewIndexWriter(r.config.OutputDir, index, opts...)
	defer indexWriter.Close()

	indexWriter.Start()
	start := time.Now()
	r.log.Info("run started", zap.String("runId", index.RunID), zap.Int("flows", len(flows)))

	results := r.executeFlows(ctx, flows, flowDetails, indexWriter)

	indexWriter.End()

	result := buildRunResult(results, time.Since(start).Milliseconds())
	r.log.Info("run finished",
		zap.String("status", string(result.Status)),
		zap.Int("passed", result.PassedFlows),
		zap.Int("failed", result.FailedFlows),
		zap.Int("skipped", result.SkippedFlows))
	return result, nil
}

// executeFlows runs flows with at most Parallelism in flight. Once a flow
// fails under StopOnFail, flows that have not started are skipped.
func (r *Runner) executeFlows(ctx context.Context, flows []flow.Flow, flowDetails []report.FlowDetail, indexWriter *report.IndexWriter) []FlowResult {
	results := make([]FlowResult, len(flows))
	total := len(flows)

	limit := r.config.Parallelism
	if limit <= 0 {
		limit = 1
	}

	var stop atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(limit)

	for i := range flows {
		i := i
		g.Go(func() error {
			if stop.Load() || ctx.Err() != nil {
				results[i] = r.skipFlow(&flowDetails[i], indexWriter, "run stopped")
				return nil
			}
			results[i] = r.executeFlow(ctx, flows[i], &flowDetails[i], indexWriter, i, total)
			if r.config.StopOnFail && results[i].Status == report.StatusFailed {
				stop.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// skipFlow records a flow that never ran.
func (r *Runner) skipFlow(detail *report.FlowDetail, indexWriter *report.IndexWriter, reason string) FlowResult {
	w := report.NewFlowWriter(detail, r.config.OutputDir, indexWriter)
	w.SkipRemainingCommands(0)
	w.End(report.StatusSkipped)
	return FlowResult{
		ID:           detail.ID,
		Name:         detail.Name,
		Status:       report.StatusSkipped,
		Error:        reason,
		StepsTotal:   len(detail.Commands),
		StepsSkipped: len(detail.Commands),
	}
}

// executeFlow runs a flow, retrying on a fresh page while it fails and
// attempts remain.
func (r *Runner) executeFlow(ctx context.Context, f flow.Flow, detail *report.FlowDetail, indexWriter *report.IndexWriter, flowIdx, totalFlows int) FlowResult {
	pristine := *detail
	pristine.Commands = append([]report.Command(nil), detail.Commands...)

	attempts := r.config.Retries + 1
	var result FlowResult
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			*detail = pristine
			detail.Commands = append([]report.Command(nil), pristine.Commands...)
		}
		result = r.runAttempt(ctx, f, detail, indexWriter, flowIdx, totalFlows)
		result.Attempts = attempt
		if attempts > 1 {
			indexWriter.RecordAttempt(detail.ID, attempt, result.Status, result.Duration, result.Error, "flows/"+detail.ID+".json")
		}
		if result.Status != report.StatusFailed || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			r.log.Info("retrying flow", zap.String("flow", detail.Name), zap.Int("attempt", attempt+1))
		}
	}
	return result
}

// runAttempt opens a page, runs the flow on it and closes it.
func (r *Runner) runAttempt(ctx context.Context, f flow.Flow, detail *report.FlowDetail, indexWriter *report.IndexWriter, flowIdx, totalFlows int) FlowResult {
	page, err := r.browser.NewPage(ctx)
	if err != nil {
		r.log.Error("open page", zap.String("flow", detail.Name), zap.Error(err))
		w := report.NewFlowWriter(detail, r.config.OutputDir, indexWriter)
		w.Start()
		w.SkipRemainingCommands(0)
		w.End(report.StatusFailed)
		return FlowResult{
			ID:     detail.ID,
			Name:   detail.Name,
			Status: report.StatusFailed,
			Error:  "open page: " + err.Error(),
		}
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.log.Debug("close page", zap.Error(err))
		}
	}()

	fr := &FlowRunner{
		ctx:         ctx,
		flow:        f,
		detail:      detail,
		page:        page,
		tab:         page,
		browser:     r.browser.Info(),
		config:      r.config,
		indexWriter: indexWriter,
		log:         r.log.With(zap.String("flow", detail.Name)),
		flowIdx:     flowIdx,
		totalFlows:  totalFlows,
	}
	return fr.Run()
}

// buildRunResult aggregates flow results into a run result.
func buildRunResult(flowResults []FlowResult, wallClock int64) *RunResult {
	result := &RunResult{
		TotalFlows:  len(flowResults),
		FlowResults: flowResults,
		Duration:    wallClock,
	}

	for _, fr := range flowResults {
		switch fr.Status {
		case report.StatusPassed:
			result.PassedFlows++
		case report.StatusFailed:
			result.FailedFlows++
		case report.StatusSkipped:
			result.SkippedFlows++
		}
	}

	// Skipped flows do not fail a run.
	result.Status = report.StatusPassed
	if result.FailedFlows > 0 {
		result.Status = report.StatusFailed
	}
	return result
}
