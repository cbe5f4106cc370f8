package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/urfave/cli/v2"
	"golang.org/x/net/html"

	"github.com/devicelab-dev/domkit/pkg/config"
	"github.com/devicelab-dev/domkit/pkg/core"
)

var hierarchyCommand = &cli.Command{
	Name:      "hierarchy",
	Usage:     "Print the element tree of a page",
	ArgsUsage: "<url>",
	Description: `Open a page and print its elements, including declarative shadow roots,
as an indented tree or as CSV.

Examples:
  domkit hierarchy https://example.com
  domkit hierarchy --compact https://example.com
  domkit --driver mock hierarchy file:///tmp/fixture.html`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "compact",
			Usage: "Output in CSV format",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to workspace config.yaml",
		},
	},
	Action: runHierarchy,
}

func runHierarchy(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one url is required")
	}

	ws := &config.Config{}
	if path := c.String("config"); path != "" {
		var err error
		if ws, err = config.Load(path); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	applyFlagOverrides(c, ws)
	ws.ApplyDefaults()
	if err := ws.Validate(); err != nil {
		return err
	}

	browser, cleanup, err := createBrowser(c.Context, ws)
	if err != nil {
		return err
	}
	defer cleanup()

	doc, err := pageDocument(c.Context, browser, c.Args().First(), ws.Timeouts.Navigation())
	if err != nil {
		return err
	}
	writeHierarchy(c.App.Writer, doc, c.Bool("compact"))
	return nil
}

// pageDocument loads url in a new page and parses its HTML.
func pageDocument(ctx context.Context, browser core.Browser, url string, timeout time.Duration) (*goquery.Document, error) {
	page, err := browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := page.Navigate(navCtx, url); err != nil {
		return nil, err
	}
	src, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(src))
}

// writeHierarchy prints body's element tree. Template contents are
// included, so declarative shadow roots appear under their host.
func writeHierarchy(w io.Writer, doc *goquery.Document, compact bool) {
	if compact {
		fmt.Fprintln(w, "depth,tag,id,class,text")
	}
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			walkElements(n, 0, func(n *html.Node, depth int) {
				writeNode(w, n, depth, compact)
			})
		}
	})
}

func walkElements(n *html.Node, depth int, visit func(*html.Node, int)) {
	if n.Type != html.ElementNode {
		return
	}
	visit(n, depth)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, depth+1, visit)
	}
}

func writeNode(w io.Writer, n *html.Node, depth int, compact bool) {
	var id, class, mode string
	for _, a := range n.Attr {
		switch a.Key {
		case "id":
			id = a.Val
		case "class":
			class = a.Val
		case "shadowrootmode":
			mode = a.Val
		}
	}
	text := ownText(n)

	if compact {
		fmt.Fprintf(w, "%d,%s,%s,%s,%s\n", depth, n.Data, csvField(id), csvField(class), csvField(text))
		return
	}

	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	if n.Data == "template" && mode != "" {
		b.WriteString("#shadow-root (" + mode + ")")
	} else {
		b.WriteString(n.Data)
		if id != "" {
			b.WriteString("#" + id)
		}
		for _, cl := range strings.Fields(class) {
			b.WriteString("." + cl)
		}
	}
	if text != "" {
		fmt.Fprintf(&b, " %q", text)
	}
	fmt.Fprintln(w, b.String())
}

// ownText returns the trimmed text of n's direct text children.
func ownText(n *html.Node) string {
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

func csvField(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
