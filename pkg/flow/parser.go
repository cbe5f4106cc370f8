package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/domkit/pkg/logger"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single YAML flow file.
func ParseFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided flow file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses flow YAML content. A file with two documents carries
// config in the first and steps in the second.
func Parse(data []byte, sourcePath string) (*Flow, error) {
	parts := splitYAMLDocuments(string(data))

	flow := &Flow{
		SourcePath: sourcePath,
	}

	if len(parts) == 0 {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "empty flow file",
		}
	}

	if len(parts) == 1 {
		if err := parseSteps(parts[0], flow); err != nil {
			return nil, err
		}
	} else {
		if err := parseConfig(parts[0], flow); err != nil {
			return nil, err
		}
		if err := parseSteps(parts[1], flow); err != nil {
			return nil, err
		}
	}

	return flow, nil
}

func splitYAMLDocuments(content string) []string {
	var parts []string
	var current strings.Builder
	inMultiline := false
	multilineIndent := 0

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if !inMultiline {
			if strings.HasSuffix(trimmed, "|") || strings.HasSuffix(trimmed, ">") ||
				strings.HasSuffix(trimmed, "|-") || strings.HasSuffix(trimmed, ">-") {
				inMultiline = true
				if i+1 < len(lines) {
					next := lines[i+1]
					multilineIndent = len(next) - len(strings.TrimLeft(next, " \t"))
				}
			}
		} else {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if trimmed != "" && indent < multilineIndent {
				inMultiline = false
			}
		}

		if !inMultiline && trimmed == "---" && strings.TrimLeft(line, " \t") == "---" {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}

	if current.Len() > 0 {
		s := strings.TrimSpace(current.String())
		if s != "" {
			parts = append(parts, current.String())
		}
	}

	return parts
}

func parseConfig(content string, flow *Flow) error {
	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Message: fmt.Sprintf("invalid config: %v", err),
		}
	}

	// Parse lifecycle hooks (onFlowStart, onFlowComplete)
	var rawConfig struct {
		OnFlowStart    []yaml.Node `yaml:"onFlowStart"`
		OnFlowComplete []yaml.Node `yaml:"onFlowComplete"`
	}
	if err := yaml.Unmarshal([]byte(content), &rawConfig); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Message: fmt.Sprintf("invalid config: %v", err),
		}
	}

	for _, node := range rawConfig.OnFlowStart {
		step, err := parseStep(&node, flow.SourcePath)
		if err != nil {
			return err
		}
		config.OnFlowStart = append(config.OnFlowStart, step)
	}

	for _, node := range rawConfig.OnFlowComplete {
		step, err := parseStep(&node, flow.SourcePath)
		if err != nil {
			return err
		}
		config.OnFlowComplete = append(config.OnFlowComplete, step)
	}

	flow.Config = config
	return nil
}

func parseSteps(content string, flow *Flow) error {
	var rawSteps []yaml.Node
	if err := yaml.Unmarshal([]byte(content), &rawSteps); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Message: fmt.Sprintf("invalid steps: %v", err),
		}
	}

	for _, node := range rawSteps {
		step, err := parseStep(&node, flow.SourcePath)
		if err != nil {
			return err
		}
		flow.Steps = append(flow.Steps, step)
	}

	return nil
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	// Handle scalar nodes like "- back" (no colon, no params)
	if node.Kind == yaml.ScalarNode {
		stepType := node.Value
		if !isStepType(stepType) {
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    node.Line,
				Message: fmt.Sprintf("unknown step type: %s", stepType),
			}
		}
		// Create empty value node for steps with no parameters
		emptyNode := &yaml.Node{Kind: yaml.MappingNode}
		return decodeStep(StepType(stepType), emptyNode, sourcePath)
	}

	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "step must be a mapping or command name",
		}
	}

	stepType, valueNode := extractStepType(node)
	if stepType == "" || valueNode == nil {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "unknown step type",
		}
	}

	return decodeStep(StepType(stepType), valueNode, sourcePath)
}

func extractStepType(node *yaml.Node) (string, *yaml.Node) {
	for i := 0; i < len(node.Content)-1; i += 2 {
		key := node.Content[i].Value
		if isStepType(key) {
			return key, node.Content[i+1]
		}
	}
	return "", nil
}

func isStepType(key string) bool {
	_, ok := stepTypes[StepType(key)]
	return ok
}

var stepTypes = map[StepType]struct{}{
	StepOpen: {}, StepBack: {}, StepForward: {}, StepReload: {}, StepWaitForURL: {},
	StepClick: {}, StepFill: {}, StepHover: {}, StepSelectOption: {}, StepCheck: {},
	StepPressKey: {}, StepCopyTextFrom: {}, StepDragAndDrop: {}, StepUploadFile: {}, StepScrollIntoView: {},
	StepSwitchToFrame: {}, StepSwitchToMainFrame: {}, StepOpenTab: {}, StepSwitchTab: {}, StepCloseTab: {},
	StepClickInShadow: {}, StepFillInShadow: {},
	StepSelectDate: {}, StepFillNativeDate: {}, StepVerifyDateRange: {},
	StepCopyCellValue: {}, StepAssertCellValue: {}, StepAssertRowExists: {},
	StepAssertRowCount: {}, StepAssertColumnCount: {},
	StepAssertVisible: {}, StepAssertNotVisible: {}, StepAssertText: {},
	StepAssertURL: {}, StepAssertTitle: {}, StepAssertTrue: {},
	StepHandleDialog: {},
	StepRepeat: {}, StepRetry: {}, StepRunFlow: {}, StepRunScript: {}, StepEvalScript: {},
	StepTakeScreenshot: {}, StepDefineVariables: {},
}

// based is implemented by every step through its embedded BaseStep.
type based interface {
	Step
	Base() *BaseStep
}

// decodeInto decodes a mapping into s. A scalar value is handed to
// scalar instead; steps without a scalar form pass nil and reject it.
func decodeInto(s based, stepType StepType, valueNode *yaml.Node, sourcePath string, scalar func(string)) (Step, error) {
	if valueNode.Kind == yaml.ScalarNode {
		if scalar == nil {
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    valueNode.Line,
				Message: fmt.Sprintf("%s requires a mapping", stepType),
			}
		}
		scalar(valueNode.Value)
	} else if err := valueNode.Decode(s); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}
	s.Base().StepType = stepType
	return s, nil
}

//nolint:gocyclo
func decodeStep(stepType StepType, valueNode *yaml.Node, sourcePath string) (Step, error) {
	switch stepType {
	case StepOpen:
		s := &OpenStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.URL = v })

	case StepBack:
		return &BackStep{BaseStep: BaseStep{StepType: stepType}}, nil

	case StepForward:
		return &ForwardStep{BaseStep: BaseStep{StepType: stepType}}, nil

	case StepReload:
		return &ReloadStep{BaseStep: BaseStep{StepType: stepType}}, nil

	case StepWaitForURL:
		s := &WaitForURLStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Equals = v })

	case StepClick:
		s := &ClickStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Selector.Query = v })

	case StepFill:
		s := &FillStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepHover:
		s := &HoverStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Selector.Query = v })

	case StepSelectOption:
		s := &SelectOptionStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepCheck:
		s := &CheckStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Selector.Query = v })

	case StepPressKey:
		s := &PressKeyStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Key = v })

	case StepCopyTextFrom:
		s := &CopyTextFromStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Selector.Query = v })

	case StepDragAndDrop:
		s := &DragAndDropStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepUploadFile:
		s := &UploadFileStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepScrollIntoView:
		s := &ScrollIntoViewStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Selector.Query = v })

	case StepSwitchToFrame:
		s := &SwitchToFrameStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Selector.Query = v })

	case StepSwitchToMainFrame:
		return &SwitchToMainFrameStep{BaseStep: BaseStep{StepType: stepType}}, nil

	case StepOpenTab:
		s := &OpenTabStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.URL = v })

	case StepSwitchTab:
		s := &SwitchTabStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Index = v })

	case StepCloseTab:
		return &CloseTabStep{BaseStep: BaseStep{StepType: stepType}}, nil

	case StepClickInShadow:
		s := &ClickInShadowStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepFillInShadow:
		s := &FillInShadowStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepSelectDate:
		s := &SelectDateStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepFillNativeDate:
		s := &FillNativeDateStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepVerifyDateRange:
		s := &VerifyDateRangeStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepCopyCellValue:
		s := &CopyCellValueStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepAssertCellValue:
		s := &AssertCellValueStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepAssertRowExists:
		s := &AssertRowExistsStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepAssertRowCount:
		s := &AssertRowCountStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepAssertColumnCount:
		s := &AssertColumnCountStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepAssertVisible:
		s := &AssertVisibleStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Selector.Query = v })

	case StepAssertNotVisible:
		s := &AssertNotVisibleStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Selector.Query = v })

	case StepAssertText:
		s := &AssertTextStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, nil)

	case StepAssertURL:
		s := &AssertURLStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Equals = v })

	case StepAssertTitle:
		s := &AssertTitleStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Equals = v })

	case StepAssertTrue:
		s := &AssertTrueStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Script = v })

	case StepHandleDialog:
		return parseHandleDialogStep(valueNode, sourcePath)

	case StepRepeat:
		return parseRepeatStep(valueNode, sourcePath)

	case StepRetry:
		return parseRetryStep(valueNode, sourcePath)

	case StepRunFlow:
		return parseRunFlowStep(valueNode, sourcePath)

	case StepRunScript:
		s := &RunScriptStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Script = v })

	case StepEvalScript:
		s := &EvalScriptStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Script = v })

	case StepTakeScreenshot:
		s := &TakeScreenshotStep{}
		return decodeInto(s, stepType, valueNode, sourcePath, func(v string) { s.Path = v })

	case StepDefineVariables:
		var s DefineVariablesStep
		s.Env = make(map[string]string)
		if valueNode.Kind == yaml.MappingNode {
			for i := 0; i < len(valueNode.Content)-1; i += 2 {
				s.Env[valueNode.Content[i].Value] = valueNode.Content[i+1].Value
			}
		}
		s.StepType = stepType
		return &s, nil

	default:
		return &UnsupportedStep{
			BaseStep: BaseStep{StepType: stepType},
			Reason:   "unknown step type",
		}, nil
	}
}

// parseCommands parses a nested commands list.
func parseCommands(nodes []yaml.Node, sourcePath string) ([]Step, error) {
	var steps []Step
	for i := range nodes {
		step, err := parseStep(&nodes[i], sourcePath)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// parseHandleDialogStep handles handleDialog with the commands that open the dialog.
func parseHandleDialogStep(valueNode *yaml.Node, sourcePath string) (Step, error) {
	s := &HandleDialogStep{BaseStep: BaseStep{StepType: StepHandleDialog}}
	if valueNode.Kind == yaml.ScalarNode {
		s.Action = valueNode.Value
		return s, nil
	}

	var raw struct {
		Action     string      `yaml:"action"`
		PromptText string      `yaml:"promptText"`
		Message    string      `yaml:"message"`
		Variable   string      `yaml:"variable"`
		Commands   []yaml.Node `yaml:"commands"`
		Optional   bool        `yaml:"optional"`
		Label      string      `yaml:"label"`
		Timeout    int         `yaml:"timeout"`
	}
	if err := valueNode.Decode(&raw); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}

	s.Action = raw.Action
	s.PromptText = raw.PromptText
	s.Message = raw.Message
	s.Variable = raw.Variable
	s.Optional = raw.Optional
	s.StepLabel = raw.Label
	s.TimeoutMs = raw.Timeout

	steps, err := parseCommands(raw.Commands, sourcePath)
	if err != nil {
		return nil, err
	}
	s.Steps = steps
	return s, nil
}

// parseRepeatStep handles repeat with nested commands.
func parseRepeatStep(valueNode *yaml.Node, sourcePath string) (Step, error) {
	var raw struct {
		Times    string      `yaml:"times"` // String for variable support
		While    Condition   `yaml:"while"`
		Commands []yaml.Node `yaml:"commands"`
		Optional bool        `yaml:"optional"`
		Label    string      `yaml:"label"`
	}

	if err := valueNode.Decode(&raw); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}

	s := &RepeatStep{
		BaseStep: BaseStep{
			StepType:  StepRepeat,
			Optional:  raw.Optional,
			StepLabel: raw.Label,
		},
		Times: raw.Times,
		While: raw.While,
	}

	steps, err := parseCommands(raw.Commands, sourcePath)
	if err != nil {
		return nil, err
	}
	s.Steps = steps

	return s, nil
}

// parseRetryStep handles retry with nested commands.
func parseRetryStep(valueNode *yaml.Node, sourcePath string) (Step, error) {
	var raw struct {
		MaxRetries string            `yaml:"maxRetries"` // String for variable support
		Commands   []yaml.Node       `yaml:"commands"`
		File       string            `yaml:"file"`
		Env        map[string]string `yaml:"env"`
		Optional   bool              `yaml:"optional"`
		Label      string            `yaml:"label"`
	}

	if err := valueNode.Decode(&raw); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}

	s := &RetryStep{
		BaseStep: BaseStep{
			StepType:  StepRetry,
			Optional:  raw.Optional,
			StepLabel: raw.Label,
		},
		MaxRetries: raw.MaxRetries,
		File:       raw.File,
		Env:        raw.Env,
	}

	steps, err := parseCommands(raw.Commands, sourcePath)
	if err != nil {
		return nil, err
	}
	s.Steps = steps

	return s, nil
}

// parseRunFlowStep handles runFlow with optional nested commands.
func parseRunFlowStep(valueNode *yaml.Node, sourcePath string) (Step, error) {
	s := &RunFlowStep{BaseStep: BaseStep{StepType: StepRunFlow}}

	if valueNode.Kind == yaml.ScalarNode {
		s.File = valueNode.Value
		return s, nil
	}

	var raw struct {
		File     string            `yaml:"file"`
		Commands []yaml.Node       `yaml:"commands"`
		When     *Condition        `yaml:"when"`
		Env      map[string]string `yaml:"env"`
		Optional bool              `yaml:"optional"`
		Label    string            `yaml:"label"`
	}

	if err := valueNode.Decode(&raw); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}

	s.File = raw.File
	s.When = raw.When
	s.Env = raw.Env
	s.Optional = raw.Optional
	s.StepLabel = raw.Label

	steps, err := parseCommands(raw.Commands, sourcePath)
	if err != nil {
		return nil, err
	}
	s.Steps = steps

	return s, nil
}

func wrapParseError(path string, line int, err error) error {
	return &ParseError{
		Path:    path,
		Line:    line,
		Message: err.Error(),
	}
}

// ParseDirectory parses all YAML files in a directory.
func ParseDirectory(dir string, includeTags, excludeTags []string) ([]*Flow, error) {
	var flows []*Flow

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		flow, parseErr := ParseFile(path)
		if parseErr != nil {
			logger.Warn("skipping %s: %v", path, parseErr)
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", path, parseErr)
			return nil
		}

		if ShouldIncludeFlow(flow, includeTags, excludeTags) {
			flows = append(flows, flow)
		}
		return nil
	})

	return flows, err
}

// ShouldIncludeFlow checks if a flow matches tag filters.
func ShouldIncludeFlow(flow *Flow, includeTags, excludeTags []string) bool {
	if len(includeTags) > 0 {
		hasTag := false
		for _, tag := range flow.Config.Tags {
			for _, include := range includeTags {
				if tag == include {
					hasTag = true
					break
				}
			}
		}
		if !hasTag {
			return false
		}
	}

	for _, tag := range flow.Config.Tags {
		for _, exclude := range excludeTags {
			if tag == exclude {
				return false
			}
		}
	}

	return true
}
