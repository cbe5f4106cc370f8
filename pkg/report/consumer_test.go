package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// killedRun leaves a report the way a run killed mid-flow does: login
// stopped while clickInShadow was running and the cart flow never started.
func killedRun(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	index, details, err := BuildSkeleton(testFlows(), BuilderConfig{DriverName: "rod", Browser: Browser{Name: "chromium"}})
	if err != nil {
		t.Fatalf("BuildSkeleton() error = %v", err)
	}
	if err := WriteSkeleton(dir, index, details); err != nil {
		t.Fatalf("WriteSkeleton() error = %v", err)
	}

	iw := NewIndexWriter(dir, index)
	iw.Start()
	login := NewFlowWriter(&details[0], dir, iw)
	login.Start()
	for i := 0; i < 2; i++ {
		login.CommandStart(i)
		login.Finish(i, CommandOutcome{Status: StatusPassed})
	}
	login.CommandStart(2)
	iw.Close()
	return dir
}

// writeReport writes a one-flow report whose flow is still marked running.
func writeReport(t *testing.T, commands []Command, withDetail bool) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "flows"), 0o755); err != nil {
		t.Fatal(err)
	}
	index := &Index{
		Version:   Version,
		Status:    StatusRunning,
		UpdateSeq: 4,
		Flows: []FlowEntry{{
			ID:        "flow-000",
			Name:      "orders",
			Status:    StatusRunning,
			DataFile:  filepath.Join("flows", "flow-000.json"),
			UpdateSeq: 3,
		}},
	}
	if err := atomicWriteJSON(filepath.Join(dir, "report.json"), index); err != nil {
		t.Fatal(err)
	}
	if withDetail {
		fd := &FlowDetail{ID: "flow-000", Name: "orders", Commands: commands}
		if err := atomicWriteJSON(filepath.Join(dir, "flows", "flow-000.json"), fd); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestConsumer_Poll(t *testing.T) {
	dir := t.TempDir()
	index, details, err := BuildSkeleton(testFlows(), BuilderConfig{DriverName: "mock"})
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteSkeleton(dir, index, details); err != nil {
		t.Fatal(err)
	}

	c := NewConsumer(dir)
	changed, got, err := c.Poll()
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(changed) != 2 || got.Status != StatusPending {
		t.Fatalf("first poll = %v (%s), want both flows pending", changed, got.Status)
	}
	if changed, _, _ = c.Poll(); len(changed) != 0 {
		t.Errorf("unchanged report reported %v", changed)
	}

	iw := NewIndexWriter(dir, index)
	defer iw.Close()
	iw.Start()
	changed, got, err = c.Poll()
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 0 || got.Status != StatusRunning {
		t.Errorf("run start: changed = %v, status = %s", changed, got.Status)
	}

	cart := NewFlowWriter(&details[1], dir, iw)
	cart.Start()
	cart.End(StatusPassed)
	changed, got, err = c.Poll()
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 1 || changed[0] != "flow-001" {
		t.Fatalf("changed = %v, want [flow-001]", changed)
	}
	if got.Flows[1].Status != StatusPassed || got.Flows[0].Status != StatusPending {
		t.Errorf("statuses = %s, %s", got.Flows[0].Status, got.Flows[1].Status)
	}

	c.Reset()
	if changed, _, _ = c.Poll(); len(changed) != 2 {
		t.Errorf("after Reset changed = %v, want both flows", changed)
	}
}

func TestConsumer_Poll_MissingIndex(t *testing.T) {
	if _, _, err := NewConsumer(t.TempDir()).Poll(); err == nil {
		t.Error("expected error without report.json")
	}
}

func TestConsumer_ReadFlow(t *testing.T) {
	dir, iw := runReport(t)
	iw.Close()
	c := NewConsumer(dir)

	fd, err := c.ReadFlow("flow-000")
	if err != nil {
		t.Fatalf("ReadFlow() error = %v", err)
	}
	wantStatus := []Status{StatusPassed, StatusPassed, StatusFailed, StatusSkipped, StatusSkipped}
	if len(fd.Commands) != len(wantStatus) {
		t.Fatalf("got %d commands, want %d", len(fd.Commands), len(wantStatus))
	}
	for i, want := range wantStatus {
		if fd.Commands[i].Status != want {
			t.Errorf("%s status = %s, want %s", fd.Commands[i].Type, fd.Commands[i].Status, want)
		}
	}

	click := fd.Commands[2]
	if click.Type != "clickInShadow" || click.Error == nil {
		t.Fatalf("command 2 = %+v", click)
	}
	if click.Error.Code != "shadow_host_not_found" || click.Error.Suggestion == "" {
		t.Errorf("error = %+v", click.Error)
	}
	if click.Params == nil || click.Params.Host == nil || click.Params.Host.Value != "shop-app" {
		t.Errorf("params = %+v", click.Params)
	}
	if _, err := os.Stat(filepath.Join(dir, click.Artifacts.Screenshot)); err != nil {
		t.Errorf("screenshot %q: %v", click.Artifacts.Screenshot, err)
	}

	if _, err := c.ReadFlow("flow-009"); err == nil {
		t.Error("expected error for unknown flow")
	}
}

func TestReadReport(t *testing.T) {
	dir, iw := runReport(t)
	iw.End()
	iw.Close()

	index, flows, err := ReadReport(dir)
	if err != nil {
		t.Fatalf("ReadReport() error = %v", err)
	}
	if index.Status != StatusFailed {
		t.Errorf("run status = %s, want failed", index.Status)
	}
	if index.Summary.Total != 2 || index.Summary.Passed != 1 || index.Summary.Failed != 1 {
		t.Errorf("summary = %+v", index.Summary)
	}
	if e := index.Flows[0].Error; e == nil || !strings.Contains(*e, "shop-app") {
		t.Errorf("flow error = %v", e)
	}
	if len(flows) != 2 || flows[0].ID != "flow-000" || flows[1].ID != "flow-001" {
		t.Fatalf("flows = %+v", flows)
	}
	if flows[0].Commands[3].Params.Table.Value != "#orders" {
		t.Errorf("assertCellValue table = %+v", flows[0].Commands[3].Params.Table)
	}
}

func TestReadReport_MissingFlowFile(t *testing.T) {
	dir, iw := runReport(t)
	iw.Close()
	if err := os.Remove(filepath.Join(dir, "flows", "flow-001.json")); err != nil {
		t.Fatal(err)
	}
	_, _, err := ReadReport(dir)
	if err == nil || !strings.Contains(err.Error(), "flow-001") {
		t.Errorf("ReadReport() error = %v, want it to name flow-001", err)
	}
}

func TestRecover(t *testing.T) {
	rowNotFound := &Error{
		Type:       "element",
		Code:       "row_not_found",
		Message:    `no row containing "1009"`,
		Suggestion: "Row text is matched as a case-insensitive substring of the whole row.",
	}

	tests := []struct {
		name       string
		commands   []Command
		withDetail bool
		wantStatus Status
		wantError  string
		wantCounts CommandSummary
	}{
		{
			name: "table read finished",
			commands: []Command{
				{Type: "open", Status: StatusPassed},
				{Type: "assertCellValue", Status: StatusPassed, Data: "$20"},
			},
			withDetail: true,
			wantStatus: StatusPassed,
			wantCounts: CommandSummary{Total: 2, Passed: 2},
		},
		{
			name: "row not found",
			commands: []Command{
				{Type: "open", Status: StatusPassed},
				{Type: "copyCellValue", Status: StatusFailed, Error: rowNotFound},
				{Type: "back", Status: StatusSkipped},
			},
			withDetail: true,
			wantStatus: StatusFailed,
			wantCounts: CommandSummary{Total: 3, Passed: 1, Failed: 1, Skipped: 1},
		},
		{
			name: "killed during shadow click",
			commands: []Command{
				{Type: "open", Status: StatusPassed},
				{Type: "clickInShadow", Status: StatusRunning},
				{Type: "selectDate", Status: StatusPending},
			},
			withDetail: true,
			wantStatus: StatusFailed,
			wantError:  "Flow interrupted",
			wantCounts: CommandSummary{Total: 3, Passed: 1, Running: 1, Pending: 1, Current: intPtr(1)},
		},
		{
			name:       "detail never written",
			wantStatus: StatusFailed,
			wantError:  "Flow interrupted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeReport(t, tt.commands, tt.withDetail)
			if err := Recover(dir); err != nil {
				t.Fatalf("Recover() error = %v", err)
			}
			index, err := ReadIndex(filepath.Join(dir, "report.json"))
			if err != nil {
				t.Fatal(err)
			}

			f := index.Flows[0]
			if f.Status != tt.wantStatus {
				t.Errorf("flow status = %s, want %s", f.Status, tt.wantStatus)
			}
			gotErr := ""
			if f.Error != nil {
				gotErr = *f.Error
			}
			if gotErr != tt.wantError {
				t.Errorf("flow error = %q, want %q", gotErr, tt.wantError)
			}
			if !sameSummary(f.Commands, tt.wantCounts) {
				t.Errorf("commands = %+v, want %+v", f.Commands, tt.wantCounts)
			}
			if index.Status != tt.wantStatus || index.EndTime == nil || f.EndTime == nil {
				t.Errorf("run status = %s, endTime = %v", index.Status, index.EndTime)
			}
			if index.UpdateSeq != 5 || f.UpdateSeq != 4 {
				t.Errorf("seq = %d/%d, want 5/4", index.UpdateSeq, f.UpdateSeq)
			}
		})
	}
}

func TestRecover_KilledRun(t *testing.T) {
	dir := killedRun(t)
	if err := Recover(dir); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	index, flows, err := ReadReport(dir)
	if err != nil {
		t.Fatal(err)
	}
	login := index.Flows[0]
	if login.Status != StatusFailed || login.Error == nil || *login.Error != "Flow interrupted" {
		t.Errorf("login = %s / %v", login.Status, login.Error)
	}
	if login.Commands.Current == nil || *login.Commands.Current != 2 {
		t.Errorf("current command = %v, want 2 (clickInShadow)", login.Commands.Current)
	}
	if flows[0].Commands[2].Type != "clickInShadow" {
		t.Errorf("command 2 = %s", flows[0].Commands[2].Type)
	}
	if index.Status != StatusFailed || index.Summary.Running != 0 {
		t.Errorf("run = %s, summary = %+v", index.Status, index.Summary)
	}

	seq := index.UpdateSeq
	if err := Recover(dir); err != nil {
		t.Fatal(err)
	}
	again, err := ReadIndex(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatal(err)
	}
	if again.UpdateSeq != seq {
		t.Errorf("second Recover rewrote the index (seq %d -> %d)", seq, again.UpdateSeq)
	}
}

func TestRecover_FinishedRun(t *testing.T) {
	dir, iw := runReport(t)
	iw.End()
	iw.Close()
	before, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatal(err)
	}

	if err := Recover(dir); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	after, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("Recover rewrote a finished report")
	}
}

func TestRecover_MissingIndex(t *testing.T) {
	if err := Recover(t.TempDir()); err == nil {
		t.Error("expected error without report.json")
	}
}

func TestInferStatus(t *testing.T) {
	cmd := func(typ string, s Status) Command { return Command{Type: typ, Status: s} }
	tests := []struct {
		name     string
		commands []Command
		want     Status
	}{
		{"no commands", nil, StatusFailed},
		{"all passed", []Command{cmd("selectDate", StatusPassed), cmd("assertCellValue", StatusPassed)}, StatusPassed},
		{"shadow host missing", []Command{cmd("open", StatusPassed), cmd("clickInShadow", StatusFailed), cmd("back", StatusSkipped)}, StatusFailed},
		{"mid calendar", []Command{cmd("open", StatusPassed), cmd("selectDate", StatusRunning)}, StatusRunning},
		{"not started", []Command{cmd("copyCellValue", StatusPending)}, StatusRunning},
		{"all skipped", []Command{cmd("fillInShadow", StatusSkipped)}, StatusRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferStatus(tt.commands); got != tt.want {
				t.Errorf("inferStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name  string
		flows []Status
		want  Status
	}{
		{"all passed", []Status{StatusPassed, StatusPassed}, StatusPassed},
		{"one failed", []Status{StatusPassed, StatusFailed}, StatusFailed},
		{"skipped counts as done", []Status{StatusPassed, StatusSkipped}, StatusPassed},
		{"still running", []Status{StatusFailed, StatusRunning}, StatusRunning},
		{"not started", []Status{StatusPending}, StatusRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flows := make([]FlowEntry, len(tt.flows))
			for i, s := range tt.flows {
				flows[i].Status = s
			}
			if got := runStatus(flows); got != tt.want {
				t.Errorf("runStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func intPtr(i int) *int { return &i }

func sameSummary(a, b CommandSummary) bool {
	if (a.Current == nil) != (b.Current == nil) {
		return false
	}
	if a.Current != nil && *a.Current != *b.Current {
		return false
	}
	a.Current, b.Current = nil, nil
	return a == b
}
