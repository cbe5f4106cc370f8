package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HTMLConfig controls report.html generation.
type HTMLConfig struct {
	OutputPath  string // Defaults to <report dir>/report.html
	EmbedAssets bool   // Inline screenshots as data URIs so the file is portable
	Title       string // Defaults to "domkit report"
}

// GenerateHTML renders report.html from the JSON report in reportDir.
// While the run is still going the page reloads itself every few seconds.
func GenerateHTML(reportDir string, cfg HTMLConfig) error {
	index, flows, err := ReadReport(reportDir)
	if err != nil {
		return err
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(reportDir, "report.html")
	}

	var buf bytes.Buffer
	if err := RenderHTML(&buf, reportDir, index, flows, cfg); err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	tmp := cfg.OutputPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return os.Rename(tmp, cfg.OutputPath)
}

// RenderHTML writes the report page for index and flows. Asset paths are
// resolved against reportDir when embedding.
func RenderHTML(w io.Writer, reportDir string, index *Index, flows []FlowDetail, cfg HTMLConfig) error {
	if cfg.Title == "" {
		cfg.Title = "domkit report"
	}
	return reportTemplate.Execute(w, buildHTMLData(reportDir, index, flows, cfg))
}

type htmlData struct {
	Title         string
	GeneratedAt   string
	Index         *Index
	Live          bool
	PassRate      float64
	TotalDuration string
	Flows         []htmlFlow
}

type htmlFlow struct {
	Entry       FlowEntry
	Detail      FlowDetail
	Duration    string
	DurationPct float64
	Commands    []htmlCommand
}

type htmlCommand struct {
	Command
	Label      string
	Duration   string
	Target     string
	Screenshot string
	PageHTML   string
	Children   []htmlCommand
}

func buildHTMLData(reportDir string, index *Index, flows []FlowDetail, cfg HTMLConfig) htmlData {
	var longest int64
	for _, e := range index.Flows {
		if e.Duration != nil && *e.Duration > longest {
			longest = *e.Duration
		}
	}

	data := htmlData{
		Title:       cfg.Title,
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Index:       index,
		Live:        !index.Status.IsTerminal(),
	}
	if index.Summary.Total > 0 {
		data.PassRate = float64(index.Summary.Passed) / float64(index.Summary.Total) * 100
	}
	if index.EndTime != nil {
		ms := index.EndTime.Sub(index.StartTime).Milliseconds()
		data.TotalDuration = durationText(&ms)
	}

	for i, entry := range index.Flows {
		f := htmlFlow{Entry: entry, Duration: durationText(entry.Duration)}
		if entry.Duration != nil && longest > 0 {
			f.DurationPct = float64(*entry.Duration) / float64(longest) * 100
		}
		if i < len(flows) {
			f.Detail = flows[i]
			f.Commands = htmlCommands(reportDir, flows[i].Commands, cfg)
		}
		data.Flows = append(data.Flows, f)
	}
	return data
}

func htmlCommands(reportDir string, cmds []Command, cfg HTMLConfig) []htmlCommand {
	out := make([]htmlCommand, 0, len(cmds))
	for _, c := range cmds {
		hc := htmlCommand{
			Command:  c,
			Label:    c.Label,
			Duration: durationText(c.Duration),
			Target:   commandTarget(c.Params),
			PageHTML: c.Artifacts.PageHTML,
			Children: htmlCommands(reportDir, c.SubCommands, cfg),
		}
		if hc.Label == "" {
			hc.Label = c.Type
		}
		if shot := c.Artifacts.Screenshot; shot != "" {
			hc.Screenshot = shot
			if cfg.EmbedAssets {
				hc.Screenshot = dataURI(filepath.Join(reportDir, shot))
			}
		}
		out = append(out, hc)
	}
	return out
}

// commandTarget describes what a command addressed, e.g. "my-widget >> #inner".
func commandTarget(p *CommandParams) string {
	if p == nil {
		return ""
	}
	var parts []string
	if p.Host != nil {
		parts = append(parts, p.Host.Value)
	}
	if p.Table != nil {
		parts = append(parts, p.Table.Value)
	}
	if p.Selector != nil {
		parts = append(parts, p.Selector.Value)
	}
	target := strings.Join(parts, " >> ")
	if p.Target != nil {
		target += " -> " + p.Target.Value
	}
	switch {
	case p.URL != "":
		target = strings.TrimSpace(target + " " + p.URL)
	case p.Date != "":
		target = strings.TrimSpace(target + " " + p.Date)
	}
	return target
}

func durationText(ms *int64) string {
	if ms == nil {
		return "-"
	}
	d := time.Duration(*ms) * time.Millisecond
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", *ms)
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// dataURI inlines an image file. Unreadable files yield "", which hides the
// image.
func dataURI(path string) string {
	data, err := os.ReadFile(path) //#nosec G304 -- asset paths come from the report
	if err != nil {
		return ""
	}
	mime := "image/png"
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".jpg" || ext == ".jpeg" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct": func(f float64) string { return fmt.Sprintf("%.0f", f) },
	"uri": func(s string) template.URL {
		// Only data URIs built by dataURI and relative asset paths reach here.
		return template.URL(s) //#nosec G203
	},
}).Parse(reportHTML))

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
{{- if .Live}}
<meta http-equiv="refresh" content="3">
{{- end}}
<title>{{.Title}}</title>
<style>
:root { --passed:#16a34a; --failed:#dc2626; --skipped:#ca8a04; --running:#0891b2; --pending:#6b7280; --border:#e5e7eb; --muted:#6b7280; }
* { box-sizing: border-box; }
body { font: 14px/1.5 -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0; color: #111827; background: #f9fafb; }
header { padding: 20px 32px; background: #fff; border-bottom: 1px solid var(--border); }
header h1 { margin: 0 0 4px; font-size: 20px; }
.meta { color: var(--muted); font-size: 12px; }
.summary { display: flex; gap: 24px; margin-top: 12px; }
.summary div { font-size: 12px; color: var(--muted); }
.summary b { display: block; font-size: 20px; color: #111827; }
main { padding: 24px 32px; }
details.flow { background: #fff; border: 1px solid var(--border); border-left: 4px solid var(--pending); border-radius: 6px; margin-bottom: 12px; }
details.flow > summary { cursor: pointer; padding: 10px 14px; display: flex; gap: 12px; align-items: center; }
details.flow .name { flex: 1; font-weight: 600; }
.bar { width: 120px; height: 6px; background: var(--border); border-radius: 3px; overflow: hidden; }
.bar span { display: block; height: 100%; background: var(--running); }
.badge { font-size: 11px; text-transform: uppercase; padding: 1px 6px; border-radius: 4px; color: #fff; background: var(--pending); }
.passed { border-left-color: var(--passed) !important; } .badge.passed { background: var(--passed); }
.failed { border-left-color: var(--failed) !important; } .badge.failed { background: var(--failed); }
.skipped { border-left-color: var(--skipped) !important; } .badge.skipped { background: var(--skipped); }
.running { border-left-color: var(--running) !important; } .badge.running { background: var(--running); }
ol.commands { margin: 0; padding: 0 14px 12px 36px; }
ol.commands ol.commands { padding: 4px 0 0 24px; }
li.command { padding: 4px 0; border-bottom: 1px dashed var(--border); }
li.command:last-child { border-bottom: none; }
.target { font-family: ui-monospace, Menlo, monospace; font-size: 12px; color: var(--muted); }
.data { font-family: ui-monospace, Menlo, monospace; font-size: 12px; }
.error { margin-top: 4px; padding: 6px 10px; background: rgba(220,38,38,.06); border-radius: 4px; }
.error code { color: var(--failed); }
.hint { color: var(--muted); font-style: italic; }
.attempts { font-size: 12px; color: var(--muted); padding: 0 14px 10px; }
img.shot { display: block; max-width: 360px; margin-top: 6px; border: 1px solid var(--border); }
</style>
</head>
<body>
<header>
  <h1>{{.Title}}</h1>
  <div class="meta">
    Run {{.Index.RunID}} · <span class="badge {{.Index.Status}}">{{.Index.Status}}</span>
    · {{.Index.Browser.Name}} {{.Index.Browser.Version}}{{if .Index.Browser.Headless}} (headless){{end}}
    · driver {{.Index.Runner.Driver}}
    {{- with .Index.CI}} · {{.Provider}}{{if .BuildURL}} <a href="{{.BuildURL}}">build {{.BuildID}}</a>{{end}}{{if .Commit}} @ {{.Commit}}{{end}}{{end}}
    · generated {{.GeneratedAt}}
  </div>
  <div class="summary">
    <div><b>{{.Index.Summary.Total}}</b>flows</div>
    <div><b>{{.Index.Summary.Passed}}</b>passed</div>
    <div><b>{{.Index.Summary.Failed}}</b>failed</div>
    <div><b>{{.Index.Summary.Skipped}}</b>skipped</div>
    <div><b>{{pct .PassRate}}%</b>pass rate</div>
    {{- if .TotalDuration}}<div><b>{{.TotalDuration}}</b>duration</div>{{end}}
  </div>
</header>
<main>
{{- range .Flows}}
<details class="flow {{.Entry.Status}}" id="{{.Entry.ID}}"{{if eq .Entry.Status "failed"}} open{{end}}>
  <summary>
    <span class="badge {{.Entry.Status}}">{{.Entry.Status}}</span>
    <span class="name">{{.Entry.Name}}</span>
    <span class="target">{{.Entry.SourceFile}}</span>
    <span>{{.Entry.Commands.Passed}}/{{.Entry.Commands.Total}}</span>
    <span>{{.Duration}}</span>
    <span class="bar"><span style="width: {{pct .DurationPct}}%"></span></span>
  </summary>
  {{- if .Detail.URL}}<div class="attempts">{{.Detail.URL}}</div>{{end}}
  {{- if gt (len .Entry.AttemptHistory) 1}}
  <div class="attempts">Attempts: {{range .Entry.AttemptHistory}}#{{.Attempt}} {{.Status}} · {{end}}</div>
  {{- end}}
  {{template "commands" .Commands}}
</details>
{{- else}}
<p class="meta">No flows.</p>
{{- end}}
</main>
</body>
</html>
{{define "commands"}}{{if .}}
<ol class="commands">
{{- range .}}
  <li class="command">
    <span class="badge {{.Status}}">{{.Status}}</span>
    <b>{{.Label}}</b>
    {{- if .Target}} <span class="target">{{.Target}}</span>{{end}}
    <span class="meta">{{.Duration}}</span>
    {{- if .Data}} → <span class="data">{{.Data}}</span>{{end}}
    {{- with .Element}}{{if .Text}} <span class="meta">“{{.Text}}”</span>{{end}}{{end}}
    {{- with .Error}}
    <div class="error">
      <code>{{.Type}}{{if .Code}}/{{.Code}}{{end}}</code> {{.Message}}
      {{- if .Suggestion}}<div class="hint">{{.Suggestion}}</div>{{end}}
    </div>
    {{- end}}
    {{- if .Screenshot}}<img class="shot" src="{{uri .Screenshot}}" alt="screenshot">{{end}}
    {{- if .PageHTML}} <a class="meta" href="{{uri .PageHTML}}">page html</a>{{end}}
    {{template "commands" .Children}}
  </li>
{{- end}}
</ol>
{{end}}{{end}}`
