// Package report renders a coverage.Report as a console summary, a JSON
// document matching the schema callers script against, and an HTML
// file-and-source view, plus the optional toggle/functional side
// report.
package report

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"rtlcov/internal/coverage"
	"rtlcov/internal/probe"
)

// ConsoleOptions configures the console renderer.
type ConsoleOptions struct {
	Color bool
}

// NewConsoleOptions auto-detects color support: only when stdout is a
// terminal and NO_COLOR isn't set.
func NewConsoleOptions() ConsoleOptions {
	color := term.IsTerminal(int(os.Stdout.Fd()))
	if os.Getenv("NO_COLOR") != "" {
		color = false
	}
	return ConsoleOptions{Color: color}
}

// Console writes a human-readable summary of rep to w.
func Console(w io.Writer, rep coverage.Report, opts ConsoleOptions) {
	green, red, reset := "", "", ""
	if opts.Color {
		green, red, reset = "\033[32m", "\033[31m", "\033[0m"
	}

	files := make([]coverage.FileSummary, len(rep.Files))
	copy(files, rep.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	for _, f := range files {
		lineColor := green
		if f.LinesHit < f.LinesTotal {
			lineColor = red
		}
		branchColor := green
		if f.BranchesHit < f.BranchesTotal {
			branchColor = red
		}
		fmt.Fprintf(w, "%s\n  lines:    %s%d/%d%s\n  branches: %s%d/%d%s\n",
			f.Path,
			lineColor, f.LinesHit, f.LinesTotal, reset,
			branchColor, f.BranchesHit, f.BranchesTotal, reset)
	}

	t := rep.Totals()
	fmt.Fprintf(w, "\n========================================\n")
	fmt.Fprintf(w, "Coverage Summary\n")
	fmt.Fprintf(w, "========================================\n")
	fmt.Fprintf(w, "Lines:    %d/%d (%.1f%%)\n", t.LinesHit, t.LinesTotal, t.LinePercent())
	fmt.Fprintf(w, "Branches: %d/%d (%.1f%%)\n", t.BranchesHit, t.BranchesTotal, t.BranchPercent())
}

// jsonDoc mirrors the wire schema: {"files": {"<abs-path>": {...}}}.
type jsonDoc struct {
	Files map[string]jsonFile `json:"files"`
}

type jsonFile struct {
	LinesTotal        int                `json:"lines_total"`
	LinesHit          int                `json:"lines_hit"`
	BranchesTotal     int                `json:"branches_total"`
	BranchesHit       int                `json:"branches_hit"`
	UncoveredLines    []jsonUncoveredLine `json:"uncovered_lines"`
	UncoveredBranches []jsonUncoveredBranch `json:"uncovered_branches"`
}

type jsonUncoveredLine struct {
	Line   int    `json:"line"`
	Detail string `json:"detail"`
}

type jsonUncoveredBranch struct {
	Line   int    `json:"line"`
	Detail string `json:"detail"`
	Probe  string `json:"probe"`
}

// JSON writes rep to w in the documented schema.
func JSON(w io.Writer, rep coverage.Report) error {
	doc := jsonDoc{Files: make(map[string]jsonFile, len(rep.Files))}
	for _, f := range rep.Files {
		jf := jsonFile{
			LinesTotal:    f.LinesTotal,
			LinesHit:      f.LinesHit,
			BranchesTotal: f.BranchesTotal,
			BranchesHit:   f.BranchesHit,
		}
		for _, p := range f.Uncovered {
			if p.Kind == probe.KindLine {
				jf.UncoveredLines = append(jf.UncoveredLines, jsonUncoveredLine{Line: p.Line, Detail: string(p.Detail)})
			} else {
				jf.UncoveredBranches = append(jf.UncoveredBranches, jsonUncoveredBranch{Line: p.Line, Detail: string(p.Detail), Probe: p.Name})
			}
		}
		doc.Files[f.Path] = jf
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// jsonProbe is one entry of the --dump-probes output: the full Probe
// list as it stood right after instrumentation, before any simulation
// has run. Operators diff this against their testbench's $dumpvars
// depth to confirm every probe signal will actually be captured.
type jsonProbe struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Detail string `json:"detail"`
}

// JSONProbes writes the full probe list to w for --dump-probes.
func JSONProbes(w io.Writer, probes []probe.Probe) error {
	out := make([]jsonProbe, 0, len(probes))
	for _, p := range probes {
		out = append(out, jsonProbe{Name: p.Name, Kind: string(p.Kind), File: p.File, Line: p.Line, Detail: string(p.Detail)})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// HTML writes a file-and-source view of rep to w. sources supplies the
// original (pre-instrumentation) text for each file in rep.
func HTML(w io.Writer, rep coverage.Report, sources map[string]string) error {
	files := make([]coverage.FileSummary, len(rep.Files))
	copy(files, rep.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">\n")
	b.WriteString("<title>rtlcov coverage report</title>\n<style>\n")
	b.WriteString(htmlCSS)
	b.WriteString("</style>\n</head><body>\n")

	t := rep.Totals()
	fmt.Fprintf(&b, "<h1>Coverage Summary</h1>\n<p>Lines: %d/%d (%.1f%%) &middot; Branches: %d/%d (%.1f%%)</p>\n",
		t.LinesHit, t.LinesTotal, t.LinePercent(), t.BranchesHit, t.BranchesTotal, t.BranchPercent())

	for _, f := range files {
		fmt.Fprintf(&b, "<h2>%s</h2>\n<p>lines %d/%d &middot; branches %d/%d</p>\n",
			html.EscapeString(f.Path), f.LinesHit, f.LinesTotal, f.BranchesHit, f.BranchesTotal)

		src, ok := sources[f.Path]
		if !ok {
			b.WriteString("<p><em>source unavailable</em></p>\n")
			continue
		}

		b.WriteString("<pre class=\"src\">\n")
		for i, line := range strings.Split(src, "\n") {
			lineNo := i + 1
			class := "na"
			switch f.LineStatus[lineNo] {
			case coverage.StatusCovered:
				class = "cov"
			case coverage.StatusUncovered:
				class = "uncov"
			}
			fmt.Fprintf(&b, "<span class=\"%s\"><span class=\"ln\">%4d</span> %s</span>\n",
				class, lineNo, html.EscapeString(line))
		}
		b.WriteString("</pre>\n")
	}

	b.WriteString("</body></html>\n")
	_, err := io.WriteString(w, b.String())
	return err
}

const htmlCSS = `body { font-family: monospace; background: #1e1e1e; color: #ddd; }
pre.src { background: #252525; padding: 0.5em; overflow-x: auto; }
.ln { color: #777; margin-right: 1em; }
.cov { background: #16301c; display: block; }
.uncov { background: #3a1a1a; display: block; }
.na { display: block; }
`
