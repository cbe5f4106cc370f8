package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devicelab-dev/domkit/pkg/calendar"
	"github.com/devicelab-dev/domkit/pkg/config"
	"github.com/devicelab-dev/domkit/pkg/core"
	"github.com/devicelab-dev/domkit/pkg/driver/mock"
	roddriver "github.com/devicelab-dev/domkit/pkg/driver/rod"
	"github.com/devicelab-dev/domkit/pkg/executor"
	"github.com/devicelab-dev/domkit/pkg/flow"
	"github.com/devicelab-dev/domkit/pkg/logger"
	"github.com/devicelab-dev/domkit/pkg/report"
	"github.com/devicelab-dev/domkit/pkg/validator"
)

var testCommand = &cli.Command{
	Name:      "test",
	Usage:     "Run flows in a browser",
	ArgsUsage: "<flow-file-or-folder>...",
	Description: `Run one or more flow files in a browser.

Settings come from config.yaml in the flow folder (or --config), with
command-line flags taking precedence.

Reports are generated in the output directory:
  - Default: report.outputDir from config, else $DOMKIT_HOME/reports, plus /<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/ (no timestamp subfolder)

Examples:
  domkit test flow.yaml
  domkit test flows/ -e USER=test -e PASS=secret
  domkit test flows/ --include-tags smoke --parallel 4
  domkit --remote-url ws://127.0.0.1:9222/devtools/browser/abc test flows/
  domkit test flows/ --output ./my-reports --flatten`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to workspace config.yaml",
		},
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Environment variables (KEY=VALUE)",
		},
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only include flows with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Exclude flows with these tags",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
		&cli.IntFlag{
			Name:    "parallel",
			Usage:   "Run up to N flows at once, each on its own page",
			EnvVars: []string{"DOMKIT_PARALLEL"},
		},
		&cli.BoolFlag{
			Name:  "stop-on-fail",
			Usage: "Skip flows not yet started after the first failure",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Extra attempts for a failed flow",
		},
		&cli.StringFlag{
			Name:    "artifacts",
			Usage:   "When to capture screenshots and page HTML (onFailure, always, never)",
			EnvVars: []string{"DOMKIT_ARTIFACTS"},
		},
		&cli.IntFlag{
			Name:    "timeout",
			Usage:   "Per-action wait in ms",
			EnvVars: []string{"DOMKIT_ACTION_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:  "slow-motion",
			Usage: "Delay every input action by N ms",
		},
	},
	Action: runTest,
}

// RunConfig holds the complete test run configuration.
type RunConfig struct {
	// Paths
	FlowPaths  []string
	ConfigPath string

	// Environment
	Env map[string]string

	// Filtering
	IncludeTags []string
	ExcludeTags []string

	// Output
	OutputDir string // Final resolved output directory

	// Execution
	Parallel   int
	StopOnFail bool
	Retries    int
	Verbose    bool

	// Workspace settings after flag overrides and defaults
	Workspace *config.Config
}

func runTest(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one flow file or folder is required")
	}
	cfg, err := buildRunConfig(c)
	if err != nil {
		return err
	}

	printBanner()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := executeTest(ctx, cfg)
	if err != nil {
		return err
	}
	if result.Status != report.StatusPassed {
		return cli.Exit("", 1)
	}
	return nil
}

// buildRunConfig merges config.yaml with command-line flags.
func buildRunConfig(c *cli.Context) (*RunConfig, error) {
	paths := c.Args().Slice()

	ws, err := loadWorkspaceConfig(c.String("config"), paths)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(c, ws)
	ws.ApplyDefaults()
	if err := ws.Validate(); err != nil {
		return nil, err
	}

	output := c.String("output")
	if output == "" && !c.Bool("flatten") {
		output = ws.Report.OutputDir
	}
	outputDir, err := resolveOutputDir(output, c.Bool("flatten"))
	if err != nil {
		return nil, err
	}

	// CLI env overrides workspace env
	env := make(map[string]string, len(ws.Env))
	for k, v := range ws.Env {
		env[k] = v
	}
	for k, v := range parseEnvVars(c.StringSlice("env")) {
		env[k] = v
	}

	return &RunConfig{
		FlowPaths:   paths,
		ConfigPath:  c.String("config"),
		Env:         env,
		IncludeTags: append(append([]string(nil), ws.IncludeTags...), c.StringSlice("include-tags")...),
		ExcludeTags: append(append([]string(nil), ws.ExcludeTags...), c.StringSlice("exclude-tags")...),
		OutputDir:   outputDir,
		Parallel:    c.Int("parallel"),
		StopOnFail:  c.Bool("stop-on-fail"),
		Retries:     c.Int("retries"),
		Verbose:     c.Bool("verbose"),
		Workspace:   ws,
	}, nil
}

// loadWorkspaceConfig loads the explicit config file, or config.yaml next
// to the first flow path.
func loadWorkspaceConfig(path string, flowPaths []string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if len(flowPaths) == 0 {
		return &config.Config{}, nil
	}
	dir := flowPaths[0]
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	return config.LoadFromDir(dir)
}

// applyFlagOverrides copies explicitly set flags over workspace values.
// Global flags are read through the lineage, so they work before or after
// the subcommand name.
func applyFlagOverrides(c *cli.Context, ws *config.Config) {
	if c.IsSet("driver") {
		ws.Browser.Driver = c.String("driver")
	}
	if c.IsSet("headless") {
		headless := c.Bool("headless")
		ws.Browser.Headless = &headless
	}
	if c.IsSet("remote-url") {
		ws.Browser.RemoteURL = c.String("remote-url")
	}
	if c.IsSet("browser-bin") {
		ws.Browser.Bin = c.String("browser-bin")
	}
	if c.IsSet("stealth") {
		ws.Browser.Stealth = c.Bool("stealth")
	}
	if c.IsSet("slow-motion") {
		ws.Browser.SlowMotionMs = c.Int("slow-motion")
	}
	if c.IsSet("artifacts") {
		ws.Report.Artifacts = c.String("artifacts")
	}
	if c.IsSet("timeout") {
		ws.Timeouts.ActionMs = c.Int("timeout")
	}
}

// resolveOutputDir determines the output directory based on flags.
// - No output: ./reports/<timestamp>/
// - output given: <output>/<timestamp>/
// - output + flatten: <output>/ (error if output not given)
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = "./reports"
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

// executeTest validates the flows, starts the browser and runs them.
func executeTest(ctx context.Context, cfg *RunConfig) (*executor.RunResult, error) {
	// 1. Create output directory
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// 2. Initialize logging
	level := zapcore.InfoLevel
	if cfg.Verbose {
		level = zapcore.DebugLevel
	}
	logPath := filepath.Join(cfg.OutputDir, "domkit.log")
	if err := logger.InitLevel(logPath, level); err != nil {
		fmt.Printf("Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()

	log := logger.Named("cli")
	log.Info("test execution started",
		zap.String("output", cfg.OutputDir),
		zap.String("driver", cfg.Workspace.Browser.Driver))

	// 3. Validate and parse flows
	flows, err := validateAndParseFlows(cfg)
	if err != nil {
		log.Error("flow validation failed", zap.Error(err))
		return nil, err
	}
	log.Info("flows validated", zap.Int("count", len(flows)))

	// 4. Start the browser
	browser, cleanup, err := createBrowser(ctx, cfg.Workspace)
	if err != nil {
		log.Error("browser start failed", zap.Error(err))
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	defer cleanup()
	if info := browser.Info(); info != nil {
		printSetupSuccess(fmt.Sprintf("Browser: %s %s", info.Name, info.Version))
	}
	printSetupSuccess(fmt.Sprintf("Report directory: %s", cfg.OutputDir))
	fmt.Printf("\n%sExecution%s\n", color(colorBold), color(colorReset))
	fmt.Println(strings.Repeat("─", 40))

	// 5. Execute flows
	runner := executor.New(browser, runnerConfig(cfg))
	result, err := runner.Run(ctx, flows)
	if err != nil {
		log.Error("flow execution failed", zap.Error(err))
		return nil, err
	}
	log.Info("flow execution completed",
		zap.Int("passed", result.PassedFlows),
		zap.Int("failed", result.FailedFlows),
		zap.Int("skipped", result.SkippedFlows))

	// 6. Print results from the written report
	if err := printUnifiedOutput(cfg.OutputDir, result); err != nil {
		fmt.Printf("Warning: Failed to print unified output: %v\n", err)
		printSummary(result)
	}

	fmt.Println()
	fmt.Println("  Reports:")
	fmt.Printf("    JSON:   %s\n", filepath.Join(cfg.OutputDir, "report.json"))
	if cfg.Workspace.Report.HTMLEnabled() {
		fmt.Printf("    HTML:   %s\n", filepath.Join(cfg.OutputDir, "report.html"))
	}
	fmt.Printf("    Log:    %s\n", logPath)
	fmt.Println()

	return result, nil
}

// runnerConfig maps the run configuration onto the executor.
func runnerConfig(cfg *RunConfig) executor.RunnerConfig {
	ws := cfg.Workspace
	var html *report.HTMLConfig
	if ws.Report.HTMLEnabled() {
		html = &report.HTMLConfig{EmbedAssets: ws.Report.EmbedHTML}
	}
	return executor.RunnerConfig{
		OutputDir:         cfg.OutputDir,
		Parallelism:       cfg.Parallel,
		StopOnFail:        cfg.StopOnFail,
		Retries:           cfg.Retries,
		Artifacts:         executor.ParseArtifactMode(ws.Report.Artifacts),
		HTML:              html,
		ActionTimeout:     ws.Timeouts.Action(),
		NavigationTimeout: ws.Timeouts.Navigation(),
		Calendar: calendar.Options{
			NextButton: ws.Calendar.NextButton,
			PrevButton: ws.Calendar.PrevButton,
			Label:      ws.Calendar.Label,
			DayCell:    ws.Calendar.DayCell,
			MaxSteps:   ws.Calendar.MaxSteps,
		},
		Env:               cfg.Env,
		CI:                detectCI(),
		RunnerVersion:     Version,
		DriverName:        ws.Browser.Driver,
		OnFlowStart:       onFlowStart,
		OnStepComplete:    onStepComplete,
		OnNestedStep:      onNestedStep,
		OnNestedFlowStart: onNestedFlowStart,
		OnFlowEnd:         onFlowEnd,
	}
}

// detectCI reads build information from well-known CI variables.
func detectCI() *report.CI {
	switch {
	case os.Getenv("GITHUB_ACTIONS") == "true":
		ci := &report.CI{
			Provider: "github",
			BuildID:  os.Getenv("GITHUB_RUN_ID"),
			Branch:   os.Getenv("GITHUB_REF_NAME"),
			Commit:   os.Getenv("GITHUB_SHA"),
		}
		if server, repo := os.Getenv("GITHUB_SERVER_URL"), os.Getenv("GITHUB_REPOSITORY"); server != "" && repo != "" && ci.BuildID != "" {
			ci.BuildURL = fmt.Sprintf("%s/%s/actions/runs/%s", server, repo, ci.BuildID)
		}
		return ci
	case os.Getenv("GITLAB_CI") == "true":
		return &report.CI{
			Provider: "gitlab",
			BuildID:  os.Getenv("CI_PIPELINE_ID"),
			BuildURL: os.Getenv("CI_PIPELINE_URL"),
			Branch:   os.Getenv("CI_COMMIT_REF_NAME"),
			Commit:   os.Getenv("CI_COMMIT_SHA"),
		}
	case os.Getenv("JENKINS_URL") != "":
		return &report.CI{
			Provider: "jenkins",
			BuildID:  os.Getenv("BUILD_NUMBER"),
			BuildURL: os.Getenv("BUILD_URL"),
			Branch:   os.Getenv("GIT_BRANCH"),
			Commit:   os.Getenv("GIT_COMMIT"),
		}
	}
	return nil
}

// validateAndParseFlows validates and parses all flow files.
func validateAndParseFlows(cfg *RunConfig) ([]flow.Flow, error) {
	v := validator.New(cfg.IncludeTags, cfg.ExcludeTags)
	var allTestCases []string
	var allErrors []error

	for _, path := range cfg.FlowPaths {
		result := v.Validate(path)
		allTestCases = append(allTestCases, result.TestCases...)
		allErrors = append(allErrors, result.Errors...)
	}

	if len(allErrors) > 0 {
		fmt.Fprintf(os.Stderr, "Validation errors:\n")
		for _, err := range allErrors {
			fmt.Fprintf(os.Stderr, "  - %v\n", err)
		}
		return nil, fmt.Errorf("validation failed with %d error(s)", len(allErrors))
	}

	if len(allTestCases) == 0 {
		return nil, fmt.Errorf("no test flows found")
	}

	fmt.Printf("\n%sSetup%s\n", color(colorBold), color(colorReset))
	fmt.Println(strings.Repeat("─", 40))
	printSetupSuccess(fmt.Sprintf("Found %d test flow(s)", len(allTestCases)))

	var flows []flow.Flow
	for _, path := range allTestCases {
		f, err := flow.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		flows = append(flows, *f)
	}

	return flows, nil
}

// createBrowser starts the configured driver. The returned cleanup closes
// the browser.
func createBrowser(ctx context.Context, ws *config.Config) (core.Browser, func(), error) {
	switch ws.Browser.Driver {
	case "mock":
		b := mock.New(mock.WithLoader(mock.FileLoader))
		return b, func() { _ = b.Close() }, nil

	case "rod":
		printSetupStep("Starting Chrome...")
		b, err := roddriver.Launch(ctx, roddriver.Config{
			RemoteURL:        ws.Browser.RemoteURL,
			Bin:              ws.Browser.Bin,
			BrowserDir:       config.GetBrowserDir(),
			Headless:         ws.Browser.IsHeadless(),
			NoSandbox:        os.Getenv("CI") != "",
			Stealth:          ws.Browser.Stealth,
			SlowMotion:       time.Duration(ws.Browser.SlowMotionMs) * time.Millisecond,
			ViewportWidth:    ws.Browser.Viewport.Width,
			ViewportHeight:   ws.Browser.Viewport.Height,
			IgnoreCertErrors: ws.Browser.IgnoreCertErrors,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				logger.Warn("close browser: %v", err)
			}
		}, nil
	}
	return nil, nil, core.ErrInvalidConfig.WithMessagef("unknown driver %q", ws.Browser.Driver)
}

func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}
