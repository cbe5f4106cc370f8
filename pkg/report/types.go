// Package report provides JSON-based test reporting with real-time updates.
//
// Layout of a report directory:
//   - report.json: main index (small, frequently updated, mutex-protected)
//   - flows/flow-XXX.json: per-flow detail files, one writer each
//   - assets/flow-XXX/: per-flow artifacts (screenshots, page HTML, console logs)
//
// The index is the single source of truth for status and change tracking.
// Consumers poll report.json and only fetch changed flow details.
package report

import "time"

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the execution status.
type Status string

// Status values.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusSkipped
}

// ============================================================================
// INDEX (report.json)
// ============================================================================

// Index is the main report file that binds everything together.
type Index struct {
	Version     string      `json:"version"`
	RunID       string      `json:"runId"`
	UpdateSeq   uint64      `json:"updateSeq"`
	Status      Status      `json:"status"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     *time.Time  `json:"endTime,omitempty"`
	LastUpdated time.Time   `json:"lastUpdated"`
	Browser     Browser     `json:"browser"`
	CI          *CI         `json:"ci,omitempty"`
	Runner      RunnerInfo  `json:"runner"`
	Summary     Summary     `json:"summary"`
	Flows       []FlowEntry `json:"flows"`
}

// Browser describes the browser the run used.
type Browser struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Headless  bool   `json:"headless"`
}

// CI contains CI/CD build information.
type CI struct {
	Provider string `json:"provider,omitempty"`
	BuildID  string `json:"buildId,omitempty"`
	BuildURL string `json:"buildUrl,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Commit   string `json:"commit,omitempty"`
}

// RunnerInfo identifies the tool that produced the report.
type RunnerInfo struct {
	Version string `json:"version"`
	Driver  string `json:"driver"` // rod, mock
}

// Summary contains aggregated counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Running int `json:"running"`
	Pending int `json:"pending"`
}

// FlowEntry is the index entry for a flow.
type FlowEntry struct {
	Index          int            `json:"index"`
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	SourceFile     string         `json:"sourceFile"`
	DataFile       string         `json:"dataFile"`
	AssetsDir      string         `json:"assetsDir"`
	Status         Status         `json:"status"`
	UpdateSeq      uint64         `json:"updateSeq"`
	StartTime      *time.Time     `json:"startTime,omitempty"`
	EndTime        *time.Time     `json:"endTime,omitempty"`
	Duration       *int64         `json:"duration,omitempty"` // milliseconds
	LastUpdated    *time.Time     `json:"lastUpdated,omitempty"`
	Commands       CommandSummary `json:"commands"`
	Attempts       int            `json:"attempts"`
	AttemptHistory []AttemptEntry `json:"attemptHistory,omitempty"`
	Error          *string        `json:"error,omitempty"`
}

// CommandSummary contains command counts for a flow.
type CommandSummary struct {
	Total   int  `json:"total"`
	Passed  int  `json:"passed"`
	Failed  int  `json:"failed"`
	Skipped int  `json:"skipped"`
	Running int  `json:"running"`
	Pending int  `json:"pending"`
	Current *int `json:"current,omitempty"` // Currently running command index
}

// AttemptEntry tracks retry attempts.
type AttemptEntry struct {
	Attempt  int    `json:"attempt"`
	DataFile string `json:"dataFile"`
	Status   Status `json:"status"`
	Duration int64  `json:"duration"` // milliseconds
	Error    string `json:"error,omitempty"`
}

// ============================================================================
// FLOW DETAIL (flows/flow-XXX.json)
// ============================================================================

// FlowDetail contains full flow execution details.
type FlowDetail struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	SourceFile string        `json:"sourceFile"`
	URL        string        `json:"url,omitempty"`
	Tags       []string      `json:"tags,omitempty"`
	StartTime  time.Time     `json:"startTime"`
	EndTime    *time.Time    `json:"endTime,omitempty"`
	Duration   *int64        `json:"duration,omitempty"` // milliseconds
	Commands   []Command     `json:"commands"`
	Artifacts  FlowArtifacts `json:"artifacts"`
}

// Command represents a single command execution.
type Command struct {
	ID          string           `json:"id"`
	Index       int              `json:"index"`
	Type        string           `json:"type"`
	Label       string           `json:"label,omitempty"`
	YAML        string           `json:"yaml,omitempty"`
	Status      Status           `json:"status"`
	StartTime   *time.Time       `json:"startTime,omitempty"`
	EndTime     *time.Time       `json:"endTime,omitempty"`
	Duration    *int64           `json:"duration,omitempty"` // milliseconds
	Params      *CommandParams   `json:"params,omitempty"`
	Element     *Element         `json:"element,omitempty"`
	Data        string           `json:"data,omitempty"` // Value read by the command (cell text, dialog text)
	Error       *Error           `json:"error,omitempty"`
	Artifacts   CommandArtifacts `json:"artifacts"`
	SubCommands []Command        `json:"subCommands,omitempty"`
}

// CommandParams contains command-specific parameters.
type CommandParams struct {
	Selector *Selector `json:"selector,omitempty"`
	Host     *Selector `json:"host,omitempty"` // Shadow host for *InShadow commands
	Table    *Selector `json:"table,omitempty"`
	Target   *Selector `json:"target,omitempty"` // Drop target for dragAndDrop
	Value    string    `json:"value,omitempty"`
	URL      string    `json:"url,omitempty"`
	Date     string    `json:"date,omitempty"`
	Timeout  int       `json:"timeout,omitempty"`
}

// Selector represents an element selector.
type Selector struct {
	Type      string `json:"type"` // css, xpath, id
	Value     string `json:"value"`
	HasText   string `json:"hasText,omitempty"`
	ExactText string `json:"exactText,omitempty"`
	Index     string `json:"index,omitempty"`
	Within    string `json:"within,omitempty"`
}

// Element contains information about the element a command acted on.
type Element struct {
	Found    bool   `json:"found"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Visible  bool   `json:"visible,omitempty"`
	Enabled  bool   `json:"enabled,omitempty"`
}

// Error contains error details.
type Error struct {
	Type       string `json:"type"` // assertion, timeout, connection, page, input, config
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ============================================================================
// ARTIFACTS (paths only, never inline data)
// ============================================================================

// FlowArtifacts contains flow-level artifact paths.
type FlowArtifacts struct {
	ConsoleLog string `json:"consoleLog,omitempty"`
}

// CommandArtifacts contains command-level artifact paths.
type CommandArtifacts struct {
	Screenshot string `json:"screenshot,omitempty"`
	PageHTML   string `json:"pageHtml,omitempty"`
}

// ============================================================================
// UPDATE TYPES
// ============================================================================

// FlowUpdate contains the fields to update in index for a flow.
type FlowUpdate struct {
	Status    Status
	StartTime *time.Time
	EndTime   *time.Time
	Duration  *int64
	Commands  CommandSummary
	Error     *string
}
