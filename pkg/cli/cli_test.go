package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/domkit/pkg/config"
	"github.com/devicelab-dev/domkit/pkg/executor"
	"github.com/devicelab-dev/domkit/pkg/report"
)

const fixturePage = `<html><head><title>Fixture</title></head><body>
<input id="user" type="text">
<my-widget id="widget">
  <template shadowrootmode="open">
    <input id="inner" type="text">
    <button id="inner-btn">Go</button>
  </template>
</my-widget>
<table id="users">
  <thead><tr><th>Name</th><th>Role</th></tr></thead>
  <tbody>
    <tr><td>Alice Johnson</td><td>Admin</td></tr>
    <tr><td>Bob Smith</td><td>Editor</td></tr>
  </tbody>
</table>
</body></html>`

// silence discards stdout for the rest of the test.
func silence(t *testing.T) {
	t.Helper()
	oldStdout := os.Stdout
	os.Stdout, _ = os.Open(os.DevNull)
	t.Cleanup(func() { os.Stdout = oldStdout })
}

// workspace writes the fixture page and the given flows into a temp dir and
// returns the dir and the page's file URL.
func workspace(t *testing.T, flows map[string]string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	page := filepath.Join(dir, "app.html")
	if err := os.WriteFile(page, []byte(fixturePage), 0o644); err != nil {
		t.Fatal(err)
	}
	pageURL := "file://" + filepath.ToSlash(page)
	for name, content := range flows {
		content = strings.ReplaceAll(content, "{{URL}}", pageURL)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir, pageURL
}

const passingFlow = `
name: Fixture checks
url: {{URL}}
tags: [smoke]
---
- fill:
    selector: "#user"
    value: ${USER}
- assertTitle: Fixture
- fillInShadow:
    host: my-widget
    selector: "#inner"
    value: hello
- clickInShadow:
    host: "#widget"
    selector: xpath=.//button
- assertCellValue:
    table: "#users"
    row: Bob
    column: Role
    equals: Editor
- assertRowCount:
    table: "#users"
    count: "2"
- verifyDateRange:
    start: 2026-04-01
    end: 2026-04-30
`

const failingFlow = `
name: Broken
url: {{URL}}
tags: [wip]
---
- assertCellValue:
    table: "#users"
    row: Bob
    column: Salary
    equals: "1"
`

// newTestApp builds the app with exit handling disabled so cli.Exit errors
// come back to the test.
func newTestApp(out *bytes.Buffer) *cli.App {
	app := NewApp()
	app.ExitErrHandler = func(*cli.Context, error) {}
	if out != nil {
		app.Writer = out
	}
	return app
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

func TestResolveOutputDir_Default(t *testing.T) {
	dir, err := resolveOutputDir("", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(dir, "reports/") {
		t.Errorf("expected dir to start with reports/, got %s", dir)
	}
	parts := strings.Split(dir, "/")
	if len(parts) != 2 {
		t.Errorf("expected reports/<timestamp>, got %s", dir)
	}
}

func TestResolveOutputDir_CustomOutput(t *testing.T) {
	dir, err := resolveOutputDir("./my-reports", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(dir, "my-reports/") {
		t.Errorf("expected dir to start with my-reports/, got %s", dir)
	}
}

func TestResolveOutputDir_Flatten(t *testing.T) {
	dir, err := resolveOutputDir("./my-reports", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir != "my-reports" {
		t.Errorf("expected my-reports, got %s", dir)
	}
}

func TestResolveOutputDir_FlattenWithoutOutput(t *testing.T) {
	_, err := resolveOutputDir("", true)
	if err == nil {
		t.Fatal("expected error when flatten is used without output")
	}

	if !strings.Contains(err.Error(), "--flatten requires --output") {
		t.Errorf("expected error about --flatten requiring --output, got: %v", err)
	}
}

func TestParseEnvVars(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want map[string]string
	}{
		{"valid", []string{"USER=test", "PASS=secret", "EMPTY="}, map[string]string{"USER": "test", "PASS": "secret", "EMPTY": ""}},
		{"value with equals", []string{"QUERY=a=b"}, map[string]string{"QUERY": "a=b"}},
		{"invalid format", []string{"NOEQUALS"}, map[string]string{}},
		{"empty", nil, map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseEnvVars(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("parseEnvVars(%v) = %v, want %v", tt.in, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	flagNames := make(map[string]bool)
	for _, f := range GlobalFlags {
		for _, name := range f.Names() {
			flagNames[name] = true
		}
	}

	for _, name := range []string{"driver", "d", "headless", "remote-url", "browser-bin", "stealth", "verbose", "no-ansi"} {
		if !flagNames[name] {
			t.Errorf("expected flag %q to be defined", name)
		}
	}
}

func TestTestCommand_NoArgs(t *testing.T) {
	err := newTestApp(nil).Run([]string{"domkit", "test"})
	if err == nil {
		t.Error("expected error when no flow files provided")
	}
}

// captureRunConfig runs the test command's flag handling and returns the
// resulting configuration without executing anything.
func captureRunConfig(t *testing.T, args ...string) (*RunConfig, error) {
	t.Helper()
	var cfg *RunConfig
	cmd := *testCommand
	cmd.Action = func(c *cli.Context) error {
		var err error
		cfg, err = buildRunConfig(c)
		return err
	}
	app := &cli.App{
		Name:           "domkit",
		Flags:          GlobalFlags,
		Commands:       []*cli.Command{&cmd},
		ExitErrHandler: func(*cli.Context, error) {},
	}
	err := app.Run(append([]string{"domkit"}, args...))
	return cfg, err
}

func TestBuildRunConfig_ConfigAndFlags(t *testing.T) {
	dir := t.TempDir()
	cfgYAML := `
includeTags: [smoke]
env:
  USER: config-user
  ROLE: viewer
browser:
  driver: rod
  headless: false
  stealth: true
timeouts:
  actionMs: 1500
calendar:
  nextButton: ".next"
report:
  artifacts: always
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfgYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")

	cfg, err := captureRunConfig(t,
		"--driver", "mock", "--headless",
		"test", "-e", "USER=cli-user", "--exclude-tags", "wip",
		"--output", out, "--flatten", "--parallel", "3", "--retries", "1",
		"--stop-on-fail", "--timeout", "750", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ws := cfg.Workspace
	if ws.Browser.Driver != "mock" {
		t.Errorf("Driver = %q, want mock (flag overrides config)", ws.Browser.Driver)
	}
	if !ws.Browser.IsHeadless() {
		t.Error("--headless should override headless: false")
	}
	if !ws.Browser.Stealth {
		t.Error("stealth from config should be kept")
	}
	if ws.Timeouts.ActionMs != 750 {
		t.Errorf("ActionMs = %d, want 750", ws.Timeouts.ActionMs)
	}
	if ws.Report.Artifacts != "always" {
		t.Errorf("Artifacts = %q, want always", ws.Report.Artifacts)
	}
	if cfg.Env["USER"] != "cli-user" || cfg.Env["ROLE"] != "viewer" {
		t.Errorf("Env = %v, want CLI USER over config and config ROLE", cfg.Env)
	}
	if len(cfg.IncludeTags) != 1 || cfg.IncludeTags[0] != "smoke" {
		t.Errorf("IncludeTags = %v", cfg.IncludeTags)
	}
	if len(cfg.ExcludeTags) != 1 || cfg.ExcludeTags[0] != "wip" {
		t.Errorf("ExcludeTags = %v", cfg.ExcludeTags)
	}
	if cfg.OutputDir != filepath.Clean(out) {
		t.Errorf("OutputDir = %q, want %q", cfg.OutputDir, out)
	}
	if cfg.Parallel != 3 || cfg.Retries != 1 || !cfg.StopOnFail {
		t.Errorf("Parallel/Retries/StopOnFail = %d/%d/%v", cfg.Parallel, cfg.Retries, cfg.StopOnFail)
	}

	rc := runnerConfig(cfg)
	if rc.Artifacts != executor.ArtifactAlways {
		t.Errorf("runner Artifacts = %v", rc.Artifacts)
	}
	if rc.ActionTimeout.Milliseconds() != 750 || rc.NavigationTimeout.Milliseconds() != config.DefaultNavigationMs {
		t.Errorf("runner timeouts = %v / %v", rc.ActionTimeout, rc.NavigationTimeout)
	}
	if rc.Calendar.NextButton != ".next" || rc.Calendar.MaxSteps != config.DefaultMaxSteps {
		t.Errorf("runner Calendar = %+v", rc.Calendar)
	}
	if rc.DriverName != "mock" || rc.Parallelism != 3 || rc.Retries != 1 || !rc.StopOnFail {
		t.Errorf("runner config = %+v", rc)
	}
}

func TestBuildRunConfig_InvalidValues(t *testing.T) {
	dir := t.TempDir()

	_, err := captureRunConfig(t, "--driver", "selenium", "test", "--output", dir, dir)
	if err == nil || !strings.Contains(err.Error(), "selenium") {
		t.Errorf("expected invalid driver error, got %v", err)
	}

	_, err = captureRunConfig(t, "test", "--artifacts", "sometimes", "--output", dir, dir)
	if err == nil {
		t.Error("expected invalid artifacts error")
	}

	_, err = captureRunConfig(t, "test", "--config", filepath.Join(dir, "missing.yaml"), dir)
	if err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Errorf("expected config load error, got %v", err)
	}
}

func TestLoadWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("browser:\n  driver: mock\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	flowFile := filepath.Join(dir, "login.yaml")

	for _, path := range []string{dir, flowFile} {
		cfg, err := loadWorkspaceConfig("", []string{path})
		if err != nil {
			t.Fatalf("loadWorkspaceConfig(%q) error = %v", path, err)
		}
		if cfg.Browser.Driver != "mock" {
			t.Errorf("loadWorkspaceConfig(%q) driver = %q, want mock", path, cfg.Browser.Driver)
		}
	}

	cfg, err := loadWorkspaceConfig("", nil)
	if err != nil || cfg.Browser.Driver != "" {
		t.Errorf("no paths: cfg = %+v, err = %v", cfg, err)
	}
}

func TestDetectCI(t *testing.T) {
	for _, k := range []string{"GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"} {
		t.Setenv(k, "")
	}
	if ci := detectCI(); ci != nil {
		t.Errorf("detectCI() = %+v, want nil outside CI", ci)
	}

	t.Setenv("GITHUB_ACTIONS", "true")
	t.Setenv("GITHUB_RUN_ID", "42")
	t.Setenv("GITHUB_SERVER_URL", "https://github.com")
	t.Setenv("GITHUB_REPOSITORY", "acme/shop")
	t.Setenv("GITHUB_SHA", "abc123")
	ci := detectCI()
	if ci == nil || ci.Provider != "github" || ci.Commit != "abc123" {
		t.Fatalf("detectCI() = %+v", ci)
	}
	if ci.BuildURL != "https://github.com/acme/shop/actions/runs/42" {
		t.Errorf("BuildURL = %q", ci.BuildURL)
	}

	t.Setenv("GITHUB_ACTIONS", "")
	t.Setenv("GITLAB_CI", "true")
	t.Setenv("CI_PIPELINE_ID", "7")
	if ci := detectCI(); ci == nil || ci.Provider != "gitlab" || ci.BuildID != "7" {
		t.Errorf("detectCI() = %+v, want gitlab", ci)
	}
}

func mockRunConfig(t *testing.T, paths ...string) *RunConfig {
	t.Helper()
	ws := &config.Config{Browser: config.BrowserConfig{Driver: "mock"}}
	ws.Report.OutputDir = t.TempDir()
	ws.Report.Artifacts = "never"
	ws.Timeouts.ActionMs = 300
	ws.ApplyDefaults()
	return &RunConfig{
		FlowPaths: paths,
		Env:       map[string]string{"USER": "ada"},
		OutputDir: ws.Report.OutputDir,
		Workspace: ws,
	}
}

func TestExecuteTest_MockDriver(t *testing.T) {
	silence(t)
	dir, _ := workspace(t, map[string]string{"fixture.yaml": passingFlow})

	cfg := mockRunConfig(t, dir)
	result, err := executeTest(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != report.StatusPassed {
		t.Fatalf("Status = %s, want passed (%+v)", result.Status, result.FlowResults)
	}
	if result.FlowResults[0].StepsPassed != 7 {
		t.Errorf("StepsPassed = %d, want 7", result.FlowResults[0].StepsPassed)
	}

	index, flows, err := report.ReadReport(cfg.OutputDir)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if index.Runner.Driver != "mock" || index.Browser.Name != "mock" {
		t.Errorf("index runner/browser = %+v / %+v", index.Runner, index.Browser)
	}
	if flows[0].Name != "Fixture checks" {
		t.Errorf("flow name = %q", flows[0].Name)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "domkit.log")); err != nil {
		t.Errorf("log file missing: %v", err)
	}
	html, err := os.ReadFile(filepath.Join(cfg.OutputDir, "report.html"))
	if err != nil {
		t.Fatalf("report.html missing: %v", err)
	}
	if !strings.Contains(string(html), "Fixture checks") {
		t.Error("report.html should list the flow")
	}
}

func TestExecuteTest_ValidationErrors(t *testing.T) {
	silence(t)
	dir, _ := workspace(t, map[string]string{"bad.yaml": "- flyTo: \"#x\"\n"})

	_, err := executeTest(context.Background(), mockRunConfig(t, dir))
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestExecuteTest_NoFlows(t *testing.T) {
	silence(t)
	dir, _ := workspace(t, map[string]string{"wip.yaml": failingFlow})

	cfg := mockRunConfig(t, dir)
	cfg.ExcludeTags = []string{"wip"}
	_, err := executeTest(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "no test flows found") {
		t.Errorf("expected no flows error, got %v", err)
	}
}

func TestApp_TestCommand(t *testing.T) {
	silence(t)
	dir, _ := workspace(t, map[string]string{
		"fixture.yaml": passingFlow,
		"broken.yaml":  failingFlow,
	})
	out := filepath.Join(t.TempDir(), "run")

	err := newTestApp(nil).Run([]string{"domkit", "--driver", "mock",
		"test", "--output", out, "--flatten", "--artifacts", "never", "--timeout", "300", "-e", "USER=ada", dir})
	if code := exitCode(err); code != 1 {
		t.Fatalf("exit code = %d (err %v), want 1 for a failing flow", code, err)
	}

	index, flows, err := report.ReadReport(out)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if index.Summary.Passed != 1 || index.Summary.Failed != 1 {
		t.Errorf("Summary = %+v", index.Summary)
	}
	for _, f := range flows {
		if f.Name != "Broken" {
			continue
		}
		cmd := f.Commands[0]
		if cmd.Error == nil || cmd.Error.Code != "column_not_found" {
			t.Errorf("Broken error = %+v, want column_not_found", cmd.Error)
		}
	}

	err = newTestApp(nil).Run([]string{"domkit", "--driver", "mock",
		"test", "--output", out, "--flatten", "--include-tags", "smoke", "--artifacts", "never", "-e", "USER=ada", dir})
	if err != nil {
		t.Errorf("smoke-only run: unexpected error %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	dir, _ := workspace(t, map[string]string{"fixture.yaml": passingFlow})

	var out bytes.Buffer
	if err := newTestApp(&out).Run([]string{"domkit", "validate", dir}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "1 flow(s) valid") {
		t.Errorf("output = %q", out.String())
	}

	badDir, _ := workspace(t, map[string]string{"bad.yaml": "- selectDate:\n    picker: \"#d\"\n    date: 1 Smarch 2026\n"})
	out.Reset()
	err := newTestApp(&out).Run([]string{"domkit", "validate", badDir})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(out.String(), "Smarch") {
		t.Errorf("output should name the bad month: %q", out.String())
	}

	if err := newTestApp(&out).Run([]string{"domkit", "validate"}); err == nil {
		t.Error("expected error without paths")
	}
}

func TestReportCommands(t *testing.T) {
	silence(t)
	dir, _ := workspace(t, map[string]string{"broken.yaml": failingFlow})
	cfg := mockRunConfig(t, dir)
	if _, err := executeTest(context.Background(), cfg); err != nil {
		t.Fatalf("executeTest: %v", err)
	}

	var out bytes.Buffer
	err := newTestApp(&out).Run([]string{"domkit", "report", "summary", cfg.OutputDir})
	if code := exitCode(err); code != 1 {
		t.Errorf("summary exit code = %d, want 1 for a failed run", code)
	}
	for _, want := range []string{"failed", "Broken", "column_not_found", "Salary"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := newTestApp(&out).Run([]string{"domkit", "report", "watch", "--interval", "10ms", cfg.OutputDir}); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !strings.Contains(out.String(), "Broken") || !strings.Contains(out.String(), "failed") {
		t.Errorf("watch output = %q", out.String())
	}

	out.Reset()
	shared := filepath.Join(t.TempDir(), "shared.html")
	if err := newTestApp(&out).Run([]string{"domkit", "report", "html", "--embed", "--title", "Broken run", "--output", shared, cfg.OutputDir}); err != nil {
		t.Fatalf("html: %v", err)
	}
	page, err := os.ReadFile(shared)
	if err != nil {
		t.Fatalf("html output missing: %v", err)
	}
	for _, want := range []string{"<title>Broken run</title>", "column_not_found", "Salary"} {
		if !strings.Contains(string(page), want) {
			t.Errorf("html missing %q", want)
		}
	}
	if !strings.Contains(out.String(), shared) {
		t.Errorf("html output = %q", out.String())
	}

	out.Reset()
	if err := newTestApp(&out).Run([]string{"domkit", "report", "recover", cfg.OutputDir}); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !strings.Contains(out.String(), "failed") {
		t.Errorf("recover output = %q", out.String())
	}

	if err := newTestApp(&out).Run([]string{"domkit", "report", "summary"}); err == nil {
		t.Error("expected error without a report dir")
	}
}

func TestWriteHierarchy(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fixturePage))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	writeHierarchy(&out, doc, false)
	tree := out.String()
	for _, want := range []string{
		"body\n",
		"  input#user\n",
		"  my-widget#widget\n",
		"    #shadow-root (open)\n",
		`      button#inner-btn "Go"`,
		`        td "Bob Smith"`,
	} {
		if !strings.Contains(tree, want) {
			t.Errorf("tree missing %q:\n%s", want, tree)
		}
	}

	out.Reset()
	writeHierarchy(&out, doc, true)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if lines[0] != "depth,tag,id,class,text" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(out.String(), "3,button,inner-btn,,Go") {
		t.Errorf("csv missing shadow button:\n%s", out.String())
	}
}

func TestHierarchyCommand(t *testing.T) {
	_, pageURL := workspace(t, nil)

	var out bytes.Buffer
	if err := newTestApp(&out).Run([]string{"domkit", "--driver", "mock", "hierarchy", pageURL}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "my-widget#widget") {
		t.Errorf("output = %q", out.String())
	}

	err := newTestApp(&out).Run([]string{"domkit", "--driver", "mock", "hierarchy", "file:///nonexistent/page.html"})
	if err == nil {
		t.Error("expected error for unreachable page")
	}
}

func TestCSVField(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"a,b", `"a,b"`},
		{`say "hi"`, `"say ""hi"""`},
	}
	for _, tt := range tests {
		if got := csvField(tt.in); got != tt.want {
			t.Errorf("csvField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFailedCommands(t *testing.T) {
	cmds := []report.Command{
		{Type: "click", Status: report.StatusPassed},
		{Type: "runFlow", Status: report.StatusFailed, SubCommands: []report.Command{
			{Type: "fill", Status: report.StatusPassed},
			{Type: "assertCellValue", Status: report.StatusFailed},
		}},
		{Type: "open", Status: report.StatusFailed},
		{Type: "click", Status: report.StatusSkipped},
	}

	got := failedCommands(cmds)
	if len(got) != 2 || got[0].Type != "assertCellValue" || got[1].Type != "open" {
		t.Errorf("failedCommands() = %+v", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0ms"},
		{500, "500ms"},
		{999, "999ms"},
		{1000, "1.0s"},
		{1500, "1.5s"},
		{59999, "60.0s"},
		{60000, "1m 0s"},
		{125000, "2m 5s"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.ms), func(t *testing.T) {
			if got := formatDuration(tt.ms); got != tt.want {
				t.Errorf("formatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
			}
		})
	}
}

func TestIsCompoundStep(t *testing.T) {
	for _, desc := range []string{"runFlow: login.yaml", "repeat: 3 times", "retry: 2", "handleDialog: accept"} {
		if !isCompoundStep(desc) {
			t.Errorf("isCompoundStep(%q) = false", desc)
		}
	}
	if isCompoundStep("click: #submit") {
		t.Error("click is not compound")
	}
}

func TestColor(t *testing.T) {
	orig := colorsEnabled
	defer func() { colorsEnabled = orig }()

	colorsEnabled = true
	if color(colorRed) != colorRed {
		t.Error("expected color code when enabled")
	}
	colorsEnabled = false
	if color(colorRed) != "" {
		t.Error("expected empty string when disabled")
	}
}

func TestPrintCallbacks_NoCrash(t *testing.T) {
	silence(t)
	onFlowStart(0, 2, "Login", "login.yaml")
	onStepComplete(0, "click: #submit", true, 120, "")
	onStepComplete(1, "assertVisible: #x", true, 6000, "")
	onStepComplete(2, "assertVisible: #y", false, 300, "element not found")
	onNestedFlowStart(1, "runFlow: sub.yaml")
	onNestedStep(1, "fill: #user", false, 10, "boom")
	onFlowEnd("Login", false, 1200)
	printSummary(&executor.RunResult{
		Status:      report.StatusFailed,
		TotalFlows:  2,
		PassedFlows: 1,
		FailedFlows: 1,
		FlowResults: []executor.FlowResult{
			{Name: "A very long flow name that certainly exceeds the table width", Status: report.StatusPassed, StepsTotal: 2, StepsPassed: 2, Attempts: 1},
			{Name: "Skipped", Status: report.StatusSkipped, StepsTotal: 1, StepsSkipped: 1},
		},
	})
}
