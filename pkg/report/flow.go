package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// FlowWriter writes updates for a single flow.
// Each flow goroutine has its own FlowWriter - no locking needed.
type FlowWriter struct {
	flow      *FlowDetail
	path      string
	assetsDir string
	index     *IndexWriter
}

// NewFlowWriter creates a new FlowWriter for a flow.
func NewFlowWriter(flowDetail *FlowDetail, outputDir string, index *IndexWriter) *FlowWriter {
	flowPath := filepath.Join(outputDir, "flows", flowDetail.ID+".json")
	assetsDir := filepath.Join(outputDir, "assets", flowDetail.ID)

	_ = ensureDir(assetsDir)

	return &FlowWriter{
		flow:      flowDetail,
		path:      flowPath,
		assetsDir: assetsDir,
		index:     index,
	}
}

// Start marks the flow as started.
func (w *FlowWriter) Start() {
	now := time.Now()
	w.flow.StartTime = now

	w.flush()
	w.updateIndex(StatusRunning, &now, nil, nil)
}

// CommandStart marks a command as started.
func (w *FlowWriter) CommandStart(cmdIndex int) {
	if cmdIndex < 0 || cmdIndex >= len(w.flow.Commands) {
		return
	}

	now := time.Now()
	cmd := &w.flow.Commands[cmdIndex]
	cmd.Status = StatusRunning
	cmd.StartTime = &now

	w.flush()
	w.updateIndexProgress()
}

// CommandOutcome is the result of one command as recorded in the report.
type CommandOutcome struct {
	Status      Status
	Element     *Element
	Error       *Error
	Artifacts   CommandArtifacts
	Data        string
	SubCommands []Command
}

// CommandEnd marks a command as complete.
func (w *FlowWriter) CommandEnd(cmdIndex int, status Status, element *Element, err *Error, artifacts CommandArtifacts) {
	w.Finish(cmdIndex, CommandOutcome{Status: status, Element: element, Error: err, Artifacts: artifacts})
}

// Finish records the outcome of a command.
func (w *FlowWriter) Finish(cmdIndex int, out CommandOutcome) {
	if cmdIndex < 0 || cmdIndex >= len(w.flow.Commands) {
		return
	}

	now := time.Now()
	cmd := &w.flow.Commands[cmdIndex]
	cmd.Status = out.Status
	cmd.EndTime = &now

	if cmd.StartTime != nil {
		duration := now.Sub(*cmd.StartTime).Milliseconds()
		cmd.Duration = &duration
	}

	cmd.Element = out.Element
	cmd.Error = out.Error
	cmd.Artifacts = out.Artifacts
	cmd.Data = out.Data
	cmd.SubCommands = out.SubCommands

	w.flush()
	w.updateIndexProgress()
}

// End marks the flow as complete.
func (w *FlowWriter) End(status Status) {
	now := time.Now()
	w.flow.EndTime = &now

	var duration int64
	if !w.flow.StartTime.IsZero() {
		duration = now.Sub(w.flow.StartTime).Milliseconds()
		w.flow.Duration = &duration
	}

	w.flush()

	var errMsg *string
	if status == StatusFailed {
		// Find first error
		for _, cmd := range w.flow.Commands {
			if cmd.Error != nil {
				errMsg = &cmd.Error.Message
				break
			}
		}
	}

	w.updateIndex(status, nil, &now, &duration)
	if errMsg != nil {
		w.index.UpdateFlow(w.flow.ID, &FlowUpdate{
			Status:   status,
			EndTime:  &now,
			Duration: &duration,
			Commands: w.commandSummary(),
			Error:    errMsg,
		})
	}
}

// SetFlowArtifacts sets flow-level artifacts.
func (w *FlowWriter) SetFlowArtifacts(artifacts FlowArtifacts) {
	w.flow.Artifacts = artifacts
	w.flush()
}

// SaveScreenshot saves a PNG screenshot and returns the relative path.
func (w *FlowWriter) SaveScreenshot(cmdIndex int, data []byte) (string, error) {
	return w.saveAsset(fmt.Sprintf("cmd-%03d-screenshot.png", cmdIndex), data)
}

// SavePageHTML saves the page HTML and returns the relative path.
func (w *FlowWriter) SavePageHTML(cmdIndex int, data []byte) (string, error) {
	return w.saveAsset(fmt.Sprintf("cmd-%03d-page.html", cmdIndex), data)
}

// SaveNamed saves data under a caller-chosen file name, for takeScreenshot
// steps with an explicit path.
func (w *FlowWriter) SaveNamed(name string, data []byte) (string, error) {
	return w.saveAsset(filepath.Base(name), data)
}

// SaveConsoleLog saves script console output and returns the relative path.
func (w *FlowWriter) SaveConsoleLog(data []byte) (string, error) {
	return w.saveAsset("console.log", data)
}

func (w *FlowWriter) saveAsset(filename string, data []byte) (string, error) {
	absPath := filepath.Join(w.assetsDir, filename)
	if err := os.WriteFile(absPath, data, 0o644); err != nil { //#nosec G306 -- report assets are meant to be shared
		return "", err
	}
	return filepath.Join("assets", w.flow.ID, filename), nil
}

// GetFlowDetail returns the current flow detail (for reading).
func (w *FlowWriter) GetFlowDetail() *FlowDetail {
	return w.flow
}

// flush writes the flow detail to disk.
func (w *FlowWriter) flush() {
	if err := atomicWriteJSON(w.path, w.flow); err != nil {
		w.index.log.Warn("write flow detail", zap.String("flow", w.flow.ID), zap.Error(err))
	}
}

// updateIndex updates the index with current flow state.
func (w *FlowWriter) updateIndex(status Status, startTime, endTime *time.Time, duration *int64) {
	w.index.UpdateFlow(w.flow.ID, &FlowUpdate{
		Status:    status,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  duration,
		Commands:  w.commandSummary(),
	})
}

// updateIndexProgress updates the index with progress only.
func (w *FlowWriter) updateIndexProgress() {
	w.index.UpdateFlow(w.flow.ID, &FlowUpdate{
		Status:   StatusRunning,
		Commands: w.commandSummary(),
	})
}

// commandSummary computes command summary.
func (w *FlowWriter) commandSummary() CommandSummary {
	return summarize(w.flow.Commands)
}

// SkipRemainingCommands marks all pending commands as skipped.
// Called when a command fails and we need to skip the rest.
func (w *FlowWriter) SkipRemainingCommands(fromIndex int) {
	for i := fromIndex; i < len(w.flow.Commands); i++ {
		if w.flow.Commands[i].Status == StatusPending {
			w.flow.Commands[i].Status = StatusSkipped
		}
	}
	w.flush()
}
