package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/domkit/pkg/executor"
	"github.com/devicelab-dev/domkit/pkg/report"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Slow step threshold in milliseconds
const slowThresholdMs = 5000

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printBanner() {
	fmt.Println()
	fmt.Printf("  %sdomkit %s%s\n", color(colorBold), Version, color(colorReset))
	fmt.Println()
}

func printSetupStep(msg string) {
	fmt.Printf("  %s⏳%s %s\n", color(colorCyan), color(colorReset), msg)
}

func printSetupSuccess(msg string) {
	fmt.Printf("  %s✓%s %s\n", color(colorGreen), color(colorReset), msg)
}

// isCompoundStep reports whether desc names a step that wraps other steps.
// Their duration is the sum of their children, so they are never slow.
func isCompoundStep(desc string) bool {
	for _, prefix := range []string{"runFlow", "repeat", "retry", "handleDialog"} {
		if strings.HasPrefix(desc, prefix) {
			return true
		}
	}
	return false
}

// printStepLine prints one step result at indent.
func printStepLine(indent, desc string, passed bool, durationMs int64, errMsg string) {
	durStr := formatDuration(durationMs)
	if passed {
		symbol, symbolColor, durColor := "✓", color(colorGreen), ""
		if durationMs >= slowThresholdMs && !isCompoundStep(desc) {
			symbol, symbolColor, durColor = "⚠", color(colorYellow), color(colorYellow)
		}
		fmt.Printf("%s%s%s%s %s %s(%s)%s\n",
			indent, symbolColor, symbol, color(colorReset), desc, durColor, durStr, color(colorReset))
		return
	}
	fmt.Printf("%s%s✗%s %s (%s)\n", indent, color(colorRed), color(colorReset), desc, durStr)
	if errMsg != "" {
		fmt.Printf("%s  %s╰─%s %s\n", indent, color(colorGray), color(colorReset), errMsg)
	}
}

// Live progress callbacks

func onFlowStart(flowIdx, totalFlows int, name, file string) {
	fmt.Printf("\n  %s[%d/%d]%s %s%s%s (%s)\n",
		color(colorCyan), flowIdx+1, totalFlows, color(colorReset),
		color(colorBold), name, color(colorReset), file)
	fmt.Println("  " + strings.Repeat("─", 60))
}

func onStepComplete(_ int, desc string, passed bool, durationMs int64, errMsg string) {
	printStepLine("    ", desc, passed, durationMs, errMsg)
}

func onNestedFlowStart(depth int, desc string) {
	indent := strings.Repeat("  ", 2+depth)
	fmt.Printf("%s%s▸%s %s\n", indent, color(colorCyan), color(colorReset), desc)
}

func onNestedStep(depth int, desc string, passed bool, durationMs int64, errMsg string) {
	printStepLine(strings.Repeat("  ", 3+depth), desc, passed, durationMs, errMsg)
}

func onFlowEnd(name string, passed bool, durationMs int64) {
	symbol, symbolColor := "✓", color(colorGreen)
	if !passed {
		symbol, symbolColor = "✗", color(colorRed)
	}
	fmt.Printf("  %s%s %s%s %s%s%s\n",
		symbolColor, symbol, color(colorReset), name, color(colorGray), formatDuration(durationMs), color(colorReset))
}

// printUnifiedOutput prints the failed commands of every failed flow and
// the summary table, reading both from the written report.
func printUnifiedOutput(outputDir string, result *executor.RunResult) error {
	index, flows, err := report.ReadReport(outputDir)
	if err != nil {
		return err
	}

	printFailures(flows)
	printSummaryTable(index, result)
	return nil
}

// printFailures lists each failed command with its error code and
// suggestion.
func printFailures(flows []report.FlowDetail) {
	header := false
	for _, f := range flows {
		for _, cmd := range failedCommands(f.Commands) {
			if !header {
				fmt.Printf("\n%sFailures%s\n", color(colorBold), color(colorReset))
				fmt.Println(strings.Repeat("─", 40))
				header = true
			}
			desc := cmd.Label
			if desc == "" {
				desc = cmd.Type
			}
			fmt.Printf("  %s✗%s %s: %s\n", color(colorRed), color(colorReset), f.Name, desc)
			if cmd.Error == nil {
				continue
			}
			fmt.Printf("      %s[%s/%s]%s %s\n", color(colorGray), cmd.Error.Type, cmd.Error.Code, color(colorReset), cmd.Error.Message)
			if cmd.Error.Suggestion != "" {
				fmt.Printf("      %shint:%s %s\n", color(colorCyan), color(colorReset), cmd.Error.Suggestion)
			}
			if cmd.Artifacts.Screenshot != "" {
				fmt.Printf("      screenshot: %s\n", cmd.Artifacts.Screenshot)
			}
		}
	}
}

// failedCommands returns the innermost failed commands.
func failedCommands(cmds []report.Command) []report.Command {
	var out []report.Command
	for _, cmd := range cmds {
		if cmd.Status != report.StatusFailed {
			continue
		}
		if nested := failedCommands(cmd.SubCommands); len(nested) > 0 {
			out = append(out, nested...)
			continue
		}
		out = append(out, cmd)
	}
	return out
}

// printSummaryTable prints per-flow counts with the browser header.
func printSummaryTable(index *report.Index, result *executor.RunResult) {
	browser := index.Browser.Name
	if index.Browser.Version != "" {
		browser += " " + index.Browser.Version
	}
	if index.Browser.Headless {
		browser += " (headless)"
	}
	fmt.Printf("\n  Browser: %s\n", browser)
	printSummary(result)
}

func printSummary(result *executor.RunResult) {
	totalSteps, passedSteps, failedSteps, skippedSteps := 0, 0, 0, 0
	for _, fr := range result.FlowResults {
		totalSteps += fr.StepsTotal
		passedSteps += fr.StepsPassed
		failedSteps += fr.StepsFailed
		skippedSteps += fr.StepsSkipped
	}

	fmt.Println()
	if passedSteps > 0 {
		fmt.Printf("  %s%d steps passing%s (%s)\n", color(colorGreen), passedSteps, color(colorReset), formatDuration(result.Duration))
	}
	if failedSteps > 0 {
		fmt.Printf("  %s%d steps failing%s\n", color(colorRed), failedSteps, color(colorReset))
	}
	if skippedSteps > 0 {
		fmt.Printf("  %s%d steps skipped%s\n", color(colorCyan), skippedSteps, color(colorReset))
	}
	fmt.Println()

	tableWidth := 100
	fmt.Println(strings.Repeat("═", tableWidth))
	fmt.Printf("  %-42s %6s %7s %6s %6s %6s %8s %10s\n", "Flow", "Status", "Steps", "Pass", "Fail", "Skip", "Tries", "Duration")
	fmt.Println(strings.Repeat("─", tableWidth))

	for _, fr := range result.FlowResults {
		status, statusColor := "✓ PASS", color(colorGreen)
		switch fr.Status {
		case report.StatusFailed:
			status, statusColor = "✗ FAIL", color(colorRed)
		case report.StatusSkipped:
			status, statusColor = "- SKIP", color(colorCyan)
		}

		name := fr.Name
		if len(name) > 42 {
			name = name[:39] + "..."
		}

		fmt.Printf("  %-42s %s%6s%s %7d %6d %6d %6d %8d %10s\n",
			name, statusColor, status, color(colorReset),
			fr.StepsTotal, fr.StepsPassed, fr.StepsFailed, fr.StepsSkipped, fr.Attempts,
			formatDuration(fr.Duration))
	}

	fmt.Println(strings.Repeat("─", tableWidth))
	statusStr := fmt.Sprintf("%d/%d", result.PassedFlows, result.TotalFlows)
	statusColor := color(colorGreen)
	if result.FailedFlows > 0 {
		statusColor = color(colorRed)
	}
	fmt.Printf("  %s%-42s%s %s%6s%s %7d %6d %6d %6d %8s %10s\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, statusStr, color(colorReset),
		totalSteps, passedSteps, failedSteps, skippedSteps, "",
		formatDuration(result.Duration))
	fmt.Println(strings.Repeat("═", tableWidth))
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}

// reportPath joins a report-relative path onto dir.
func reportPath(dir, rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(dir, rel)
}
