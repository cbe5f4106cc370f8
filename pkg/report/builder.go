package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/domkit/pkg/flow"
)

// BuilderConfig contains configuration for building the report skeleton.
type BuilderConfig struct {
	OutputDir     string  // Base output directory for reports
	Browser       Browser // Browser information
	CI            *CI     // CI/CD information (optional)
	RunnerVersion string
	DriverName    string // rod, mock
}

// BuildSkeleton creates the initial report structure from parsed flows.
// All flows and commands are set to "pending" status.
// This should be called after YAML validation, before execution starts.
func BuildSkeleton(flows []flow.Flow, cfg BuilderConfig) (*Index, []FlowDetail, error) {
	now := time.Now()

	index := &Index{
		Version:     Version,
		RunID:       uuid.NewString(),
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Browser:     cfg.Browser,
		CI:          cfg.CI,
		Runner: RunnerInfo{
			Version: cfg.RunnerVersion,
			Driver:  cfg.DriverName,
		},
		Summary: Summary{
			Total:   len(flows),
			Pending: len(flows),
		},
		Flows: make([]FlowEntry, len(flows)),
	}

	flowDetails := make([]FlowDetail, len(flows))

	for i, f := range flows {
		flowID := fmt.Sprintf("flow-%03d", i)
		flowName := FlowName(f)
		commands := buildCommands(f.Steps)

		index.Flows[i] = FlowEntry{
			Index:      i,
			ID:         flowID,
			Name:       flowName,
			SourceFile: f.SourcePath,
			DataFile:   filepath.Join("flows", flowID+".json"),
			AssetsDir:  filepath.Join("assets", flowID),
			Status:     StatusPending,
			Commands: CommandSummary{
				Total:   len(commands),
				Pending: len(commands),
			},
		}

		flowDetails[i] = FlowDetail{
			ID:         flowID,
			Name:       flowName,
			SourceFile: f.SourcePath,
			URL:        f.Config.URL,
			Tags:       f.Config.Tags,
			Commands:   commands,
		}
	}

	return index, flowDetails, nil
}

// FlowName returns the display name of a flow: its configured name, or the
// file name without extension.
func FlowName(f flow.Flow) string {
	if f.Config.Name != "" {
		return f.Config.Name
	}
	base := filepath.Base(f.SourcePath)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

// buildCommands creates Command entries from flow steps.
func buildCommands(steps []flow.Step) []Command {
	commands := make([]Command, len(steps))
	for i, step := range steps {
		commands[i] = NewCommand(i, step)
	}
	return commands
}

// NewCommand creates a pending Command for a step.
func NewCommand(index int, step flow.Step) Command {
	return Command{
		ID:     fmt.Sprintf("cmd-%03d", index),
		Index:  index,
		Type:   string(step.Type()),
		Label:  step.Label(),
		YAML:   step.Describe(),
		Status: StatusPending,
		Params: extractParams(step),
	}
}

// extractParams extracts command parameters from a step.
func extractParams(step flow.Step) *CommandParams {
	params := &CommandParams{}

	switch s := step.(type) {
	case *flow.OpenStep:
		params.URL = s.URL
	case *flow.OpenTabStep:
		params.URL = s.URL
	case *flow.WaitForURLStep:
		params.Value = s.Equals
		if s.Matches != "" {
			params.Value = s.Matches
		}
	case *flow.SwitchTabStep:
		params.Value = strings.TrimPrefix(s.Describe(), "switchTab: ")
	case *flow.DragAndDropStep:
		params.Target = convertSelector(&s.Dest)
	case *flow.UploadFileStep:
		params.Value = strings.Join(s.Paths(), ", ")
	case *flow.FillStep:
		params.Value = s.Value
	case *flow.ClickInShadowStep:
		params.Host = convertSelector(&s.Host)
		params.Selector = &Selector{Type: selectorType(s.Selector), Value: s.Selector}
	case *flow.FillInShadowStep:
		params.Host = convertSelector(&s.Host)
		params.Selector = &Selector{Type: selectorType(s.Selector), Value: s.Selector}
		params.Value = s.Value
	case *flow.SelectDateStep:
		params.Date = s.Date
		if params.Date == "" && s.Day != "" {
			params.Date = strings.Join([]string{s.Day, s.Month, s.Year}, " ")
		}
	case *flow.FillNativeDateStep:
		params.Date = s.Date
	case *flow.AssertCellValueStep:
		params.Value = s.Equals
	case *flow.AssertTextStep:
		for _, v := range []string{s.Equals, s.Contains, s.Matches} {
			if v != "" {
				params.Value = v
				break
			}
		}
	}

	if t, ok := step.(flow.Targeted); ok {
		sel := convertSelector(t.Target())
		switch step.(type) {
		case *flow.CopyCellValueStep, *flow.AssertCellValueStep, *flow.AssertRowExistsStep,
			*flow.AssertRowCountStep, *flow.AssertColumnCountStep:
			params.Table = sel
		default:
			params.Selector = sel
		}
	}

	if b, ok := step.(interface{ Base() *flow.BaseStep }); ok && b.Base().TimeoutMs > 0 {
		params.Timeout = b.Base().TimeoutMs
	}

	if *params == (CommandParams{}) {
		return nil
	}
	return params
}

// convertSelector converts flow.Selector to report.Selector.
func convertSelector(sel *flow.Selector) *Selector {
	if sel.IsEmpty() {
		return nil
	}
	expr := sel.Expression()
	out := &Selector{
		Type:      selectorType(expr),
		Value:     expr,
		HasText:   sel.HasText,
		ExactText: sel.ExactText,
		Index:     sel.Index,
	}
	if sel.Within != nil {
		out.Within = sel.Within.Describe()
	}
	return out
}

func selectorType(expr string) string {
	switch {
	case strings.HasPrefix(expr, "xpath="), strings.HasPrefix(expr, "/"), strings.HasPrefix(expr, "./"):
		return "xpath"
	case strings.HasPrefix(expr, "#") && !strings.ContainsAny(expr, " .[>:"):
		return "id"
	default:
		return "css"
	}
}

// WriteSkeleton writes the initial skeleton to disk.
// Creates report.json and all flow detail files with pending status.
func WriteSkeleton(outputDir string, index *Index, flowDetails []FlowDetail) error {
	// Ensure directories exist
	if err := ensureDir(filepath.Join(outputDir, "flows")); err != nil {
		return fmt.Errorf("create flows dir: %w", err)
	}
	if err := ensureDir(filepath.Join(outputDir, "assets")); err != nil {
		return fmt.Errorf("create assets dir: %w", err)
	}

	// Write each flow detail file
	for _, fd := range flowDetails {
		flowPath := filepath.Join(outputDir, "flows", fd.ID+".json")
		if err := atomicWriteJSON(flowPath, fd); err != nil {
			return fmt.Errorf("write flow %s: %w", fd.ID, err)
		}

		// Create assets directory for this flow
		assetsPath := filepath.Join(outputDir, "assets", fd.ID)
		if err := ensureDir(assetsPath); err != nil {
			return fmt.Errorf("create assets dir for %s: %w", fd.ID, err)
		}
	}

	// Write index file
	indexPath := filepath.Join(outputDir, "report.json")
	if err := atomicWriteJSON(indexPath, index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	return nil
}
