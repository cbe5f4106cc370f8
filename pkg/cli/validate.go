package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/domkit/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check flow files without starting a browser",
	ArgsUsage: "<flow-file-or-folder>...",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only include flows with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Exclude flows with these tags",
		},
	},
	Action: runValidate,
}

func runValidate(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one flow file or folder is required")
	}

	v := validator.New(c.StringSlice("include-tags"), c.StringSlice("exclude-tags"))
	w := c.App.Writer
	total, failed := 0, 0
	for _, path := range c.Args().Slice() {
		result := v.Validate(path)
		total += len(result.TestCases)
		for _, tc := range result.TestCases {
			fmt.Fprintf(w, "  ✓ %s\n", tc)
		}
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  ✗ %v\n", err)
		}
		failed += len(result.Errors)
	}

	if failed > 0 {
		return fmt.Errorf("validation failed with %d error(s)", failed)
	}
	fmt.Fprintf(w, "%d flow(s) valid\n", total)
	return nil
}
