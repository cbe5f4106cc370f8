// Package cli provides the command-line interface for domkit.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands. Each one overrides the
// matching config.yaml value when set.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "driver",
		Aliases: []string{"d"},
		Usage:   "Browser driver (rod, mock)",
		EnvVars: []string{"DOMKIT_DRIVER"},
	},
	&cli.BoolFlag{
		Name:    "headless",
		Usage:   "Run the browser without a window",
		EnvVars: []string{"DOMKIT_HEADLESS"},
	},
	&cli.StringFlag{
		Name:    "remote-url",
		Usage:   "DevTools WebSocket URL of a running Chrome",
		EnvVars: []string{"DOMKIT_REMOTE_URL"},
	},
	&cli.StringFlag{
		Name:    "browser-bin",
		Usage:   "Chrome executable (downloaded when empty)",
		EnvVars: []string{"DOMKIT_BROWSER_BIN"},
	},
	&cli.BoolFlag{
		Name:    "stealth",
		Usage:   "Create pages with anti-detection evasions",
		EnvVars: []string{"DOMKIT_STEALTH"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable debug logging",
		EnvVars: []string{"DOMKIT_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "domkit",
		Usage:   "Browser flow runner with shadow DOM, date picker and table steps",
		Version: Version,
		Description: `domkit executes YAML flow files against a browser.

Examples:
  domkit test flow.yaml
  domkit test flows/ -e USER=test
  domkit --driver mock test fixtures/
  domkit validate flows/
  domkit hierarchy https://example.com
  domkit report summary ./reports/2026-04-01_10-00-00`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			testCommand,
			validateCommand,
			reportCommand,
			hierarchyCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
