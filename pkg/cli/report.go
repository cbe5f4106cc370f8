package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/domkit/pkg/report"
)

var reportCommand = &cli.Command{
	Name:  "report",
	Usage: "Inspect a report directory",
	Subcommands: []*cli.Command{
		{
			Name:      "summary",
			Usage:     "Print flow results and failures",
			ArgsUsage: "<report-dir>",
			Action:    runReportSummary,
		},
		{
			Name:      "watch",
			Usage:     "Follow a report while a run writes it",
			ArgsUsage: "<report-dir>",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "interval",
					Usage: "Polling interval",
					Value: time.Second,
				},
			},
			Action: runReportWatch,
		},
		{
			Name:      "html",
			Usage:     "Write report.html for a report directory",
			ArgsUsage: "<report-dir>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "output",
					Usage: "HTML file to write (default <report-dir>/report.html)",
				},
				&cli.BoolFlag{
					Name:  "embed",
					Usage: "Inline screenshots so the file can be shared on its own",
				},
				&cli.StringFlag{
					Name:  "title",
					Usage: "Page title",
				},
			},
			Action: runReportHTML,
		},
		{
			Name:      "recover",
			Usage:     "Finalize a report left behind by an interrupted run",
			ArgsUsage: "<report-dir>",
			Action:    runReportRecover,
		},
	},
}

func reportDirArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("exactly one report directory is required")
	}
	return c.Args().First(), nil
}

func runReportSummary(c *cli.Context) error {
	dir, err := reportDirArg(c)
	if err != nil {
		return err
	}
	index, flows, err := report.ReadReport(dir)
	if err != nil {
		return err
	}
	writeReportSummary(c.App.Writer, dir, index, flows)
	if index.Status == report.StatusFailed {
		return cli.Exit("", 1)
	}
	return nil
}

// writeReportSummary prints one line per flow and every failed command.
func writeReportSummary(w io.Writer, dir string, index *report.Index, flows []report.FlowDetail) {
	fmt.Fprintf(w, "Run %s: %s\n", index.RunID, index.Status)
	fmt.Fprintf(w, "  %d total, %d passed, %d failed, %d skipped\n",
		index.Summary.Total, index.Summary.Passed, index.Summary.Failed, index.Summary.Skipped)

	for i, entry := range index.Flows {
		dur := int64(0)
		if entry.Duration != nil {
			dur = *entry.Duration
		}
		line := fmt.Sprintf("  %-8s %s (%s)", entry.Status, entry.Name, formatDuration(dur))
		if entry.Attempts > 1 {
			line += fmt.Sprintf(" after %d attempts", entry.Attempts)
		}
		fmt.Fprintln(w, line)

		if i >= len(flows) {
			continue
		}
		for _, cmd := range failedCommands(flows[i].Commands) {
			desc := cmd.Label
			if desc == "" {
				desc = cmd.Type
			}
			fmt.Fprintf(w, "      ✗ %s\n", desc)
			if cmd.Error != nil {
				fmt.Fprintf(w, "        [%s/%s] %s\n", cmd.Error.Type, cmd.Error.Code, cmd.Error.Message)
				if cmd.Error.Suggestion != "" {
					fmt.Fprintf(w, "        hint: %s\n", cmd.Error.Suggestion)
				}
			}
			if cmd.Artifacts.Screenshot != "" {
				fmt.Fprintf(w, "        screenshot: %s\n", reportPath(dir, cmd.Artifacts.Screenshot))
			}
		}
	}
}

func runReportWatch(c *cli.Context) error {
	dir, err := reportDirArg(c)
	if err != nil {
		return err
	}
	return watchReport(c.Context, report.NewConsumer(dir), c.Duration("interval"), c.App.Writer)
}

// watchReport prints every flow whose state moved until the run reaches a
// terminal status or ctx is cancelled.
func watchReport(ctx context.Context, consumer *report.Consumer, interval time.Duration, w io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		changed, index, err := consumer.Poll()
		if err != nil {
			return err
		}
		byID := make(map[string]report.FlowEntry, len(index.Flows))
		for _, f := range index.Flows {
			byID[f.ID] = f
		}
		for _, id := range changed {
			f := byID[id]
			progress := ""
			if f.Commands.Total > 0 {
				done := f.Commands.Passed + f.Commands.Failed + f.Commands.Skipped
				progress = fmt.Sprintf(" %d/%d", done, f.Commands.Total)
			}
			fmt.Fprintf(w, "%-8s %s%s\n", f.Status, f.Name, progress)
		}
		if index.Status.IsTerminal() {
			fmt.Fprintf(w, "run %s %s\n", index.RunID, index.Status)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func runReportHTML(c *cli.Context) error {
	dir, err := reportDirArg(c)
	if err != nil {
		return err
	}
	cfg := report.HTMLConfig{
		OutputPath:  c.String("output"),
		EmbedAssets: c.Bool("embed"),
		Title:       c.String("title"),
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(dir, "report.html")
	}
	if err := report.GenerateHTML(dir, cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "HTML report: %s\n", cfg.OutputPath)
	return nil
}

func runReportRecover(c *cli.Context) error {
	dir, err := reportDirArg(c)
	if err != nil {
		return err
	}
	if err := report.Recover(dir); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, "report.html")); err == nil {
		if err := report.GenerateHTML(dir, report.HTMLConfig{}); err != nil {
			return err
		}
	}
	index, err := report.NewConsumer(dir).ReadIndex()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Report %s: %s\n", dir, index.Status)
	return nil
}
