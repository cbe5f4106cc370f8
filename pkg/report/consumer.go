package report

import (
	"fmt"
	"path/filepath"
	"time"
)

// Consumer reads a report directory that may still be written to. It
// remembers sequence numbers so each Poll returns only flows that changed.
type Consumer struct {
	reportDir     string
	lastGlobalSeq uint64
	lastFlowSeq   map[string]uint64
}

// NewConsumer creates a Consumer for reportDir.
func NewConsumer(reportDir string) *Consumer {
	return &Consumer{
		reportDir:   reportDir,
		lastFlowSeq: make(map[string]uint64),
	}
}

// Poll reads the index and returns the IDs of flows whose sequence number
// moved since the last call.
func (c *Consumer) Poll() ([]string, *Index, error) {
	index, err := c.ReadIndex()
	if err != nil {
		return nil, nil, err
	}

	var changed []string
	if c.lastGlobalSeq == 0 || index.UpdateSeq != c.lastGlobalSeq {
		for _, f := range index.Flows {
			if last, ok := c.lastFlowSeq[f.ID]; !ok || f.UpdateSeq != last {
				changed = append(changed, f.ID)
				c.lastFlowSeq[f.ID] = f.UpdateSeq
			}
		}
	}
	c.lastGlobalSeq = index.UpdateSeq
	return changed, index, nil
}

// ReadIndex reads the current index.
func (c *Consumer) ReadIndex() (*Index, error) {
	return ReadIndex(filepath.Join(c.reportDir, "report.json"))
}

// ReadFlow reads one flow detail by ID.
func (c *Consumer) ReadFlow(flowID string) (*FlowDetail, error) {
	return ReadFlowDetail(filepath.Join(c.reportDir, "flows", flowID+".json"))
}

// Reset forgets what earlier polls have seen.
func (c *Consumer) Reset() {
	c.lastGlobalSeq = 0
	c.lastFlowSeq = make(map[string]uint64)
}

// ReadReport reads the index and every flow detail it references.
func ReadReport(reportDir string) (*Index, []FlowDetail, error) {
	index, err := ReadIndex(filepath.Join(reportDir, "report.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("read index: %w", err)
	}

	flows := make([]FlowDetail, 0, len(index.Flows))
	for _, entry := range index.Flows {
		fd, err := ReadFlowDetail(filepath.Join(reportDir, entry.DataFile))
		if err != nil {
			return nil, nil, fmt.Errorf("read flow %s: %w", entry.ID, err)
		}
		flows = append(flows, *fd)
	}
	return index, flows, nil
}

// Recover repairs a report left behind by a run that was killed. Flows
// still marked running get a status inferred from their commands; a flow
// that never finished is failed as interrupted. The index is rewritten
// only when something changed.
func Recover(reportDir string) error {
	indexPath := filepath.Join(reportDir, "report.json")
	index, err := ReadIndex(indexPath)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}

	changed := false
	now := time.Now()
	for i := range index.Flows {
		f := &index.Flows[i]
		if f.Status.IsTerminal() {
			continue
		}

		status := StatusFailed
		fd, err := ReadFlowDetail(filepath.Join(reportDir, f.DataFile))
		if err == nil {
			status = inferStatus(fd.Commands)
			f.Commands = summarize(fd.Commands)
		}
		if status == StatusRunning || status == StatusPending {
			status = StatusFailed
			msg := "Flow interrupted"
			f.Error = &msg
		}

		f.Status = status
		f.EndTime = &now
		f.UpdateSeq++
		changed = true
	}

	if !changed {
		return nil
	}

	index.Summary = summarizeFlows(index.Flows)
	index.Status = runStatus(index.Flows)
	if index.EndTime == nil {
		index.EndTime = &now
	}
	index.UpdateSeq++
	index.LastUpdated = now
	return atomicWriteJSON(indexPath, index)
}

// inferStatus derives a flow status from its commands. Anything short of
// every command passing or one failing means the flow did not finish.
func inferStatus(commands []Command) Status {
	if len(commands) == 0 {
		return StatusFailed
	}
	passed := 0
	for _, c := range commands {
		switch c.Status {
		case StatusFailed:
			return StatusFailed
		case StatusPassed:
			passed++
		}
	}
	if passed == len(commands) {
		return StatusPassed
	}
	return StatusRunning
}

func summarize(commands []Command) CommandSummary {
	s := CommandSummary{Total: len(commands)}
	for i, cmd := range commands {
		switch cmd.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusRunning:
			s.Running++
			idx := i
			s.Current = &idx
		case StatusPending:
			s.Pending++
		}
	}
	return s
}

func summarizeFlows(flows []FlowEntry) Summary {
	var s Summary
	for _, f := range flows {
		s.Total++
		switch f.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusRunning:
			s.Running++
		case StatusPending:
			s.Pending++
		}
	}
	return s
}

// runStatus determines overall run status from flows.
func runStatus(flows []FlowEntry) Status {
	hasFailure := false
	for _, f := range flows {
		if !f.Status.IsTerminal() {
			return StatusRunning
		}
		if f.Status == StatusFailed {
			hasFailure = true
		}
	}
	if hasFailure {
		return StatusFailed
	}
	return StatusPassed
}
