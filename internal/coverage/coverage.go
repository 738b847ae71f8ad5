// Package coverage aggregates instrumentation probes and their
// observed VCD hits into per-file and whole-run summaries: the
// per-line status map and the branch/line totals the report package
// renders.
package coverage

import (
	"sort"

	"rtlcov/internal/instrument"
	"rtlcov/internal/probe"
)

// LineStatus classifies one physical source line for rendering.
type LineStatus int

const (
	StatusNA LineStatus = iota
	StatusCovered
	StatusUncovered
)

// FileSummary is one file's coverage result.
type FileSummary struct {
	Path          string
	LinesTotal    int
	LinesHit      int
	BranchesTotal int
	BranchesHit   int
	LineStatus    map[int]LineStatus
	Uncovered     []probe.Probe // first line probe of each uncovered line plus every unhit branch probe, sorted by line
}

// BuildFileSummary derives a FileSummary from one instrumented file's
// probes and the set of probe names the VCD scan reported as hit.
//
// A source line can carry more than one line probe (e.g. an inline
// "if (c) stmt;" gets both the if-header probe and the statement's
// probe); branch probes are counted separately below. So
// line coverage is computed per distinct source line: a line counts
// as hit if any line-probe attached to it was hit.
func BuildFileSummary(res instrument.FileResult, hits map[string]bool) FileSummary {
	fs := FileSummary{Path: res.Path, LineStatus: make(map[int]LineStatus)}

	byLine := make(map[int][]probe.Probe)
	for _, p := range res.Probes {
		if p.Kind == probe.KindLine {
			byLine[p.Line] = append(byLine[p.Line], p)
		}
	}

	lines := make([]int, 0, len(byLine))
	for l := range byLine {
		lines = append(lines, l)
	}
	sort.Ints(lines)

	for _, l := range lines {
		fs.LinesTotal++
		hit := false
		for _, p := range byLine[l] {
			if hits[p.Name] {
				hit = true
				break
			}
		}
		if hit {
			fs.LinesHit++
			fs.LineStatus[l] = StatusCovered
		} else {
			fs.LineStatus[l] = StatusUncovered
			fs.Uncovered = append(fs.Uncovered, byLine[l][0])
		}
	}

	for _, p := range res.Probes {
		if p.Kind != probe.KindBranch {
			continue
		}
		fs.BranchesTotal++
		if hits[p.Name] {
			fs.BranchesHit++
		} else {
			fs.Uncovered = append(fs.Uncovered, p)
		}
	}

	sort.Slice(fs.Uncovered, func(i, j int) bool { return fs.Uncovered[i].Line < fs.Uncovered[j].Line })
	return fs
}

// Report is the coverage result for a whole run, one FileSummary per
// instrumented source file.
type Report struct {
	Files []FileSummary
}

// Build aggregates every instrumented file's result against a single
// run's VCD hit set.
func Build(results []instrument.FileResult, hits map[string]bool) Report {
	r := Report{Files: make([]FileSummary, 0, len(results))}
	for _, res := range results {
		r.Files = append(r.Files, BuildFileSummary(res, hits))
	}
	return r
}

// Totals is the sum of every file's line/branch counts.
type Totals struct {
	LinesTotal    int
	LinesHit      int
	BranchesTotal int
	BranchesHit   int
}

func (r Report) Totals() Totals {
	var t Totals
	for _, f := range r.Files {
		t.LinesTotal += f.LinesTotal
		t.LinesHit += f.LinesHit
		t.BranchesTotal += f.BranchesTotal
		t.BranchesHit += f.BranchesHit
	}
	return t
}

// LinePercent and BranchPercent return 100.0 when there is nothing to
// cover, so an empty design reads as fully covered rather than NaN.
func (t Totals) LinePercent() float64 {
	if t.LinesTotal == 0 {
		return 100.0
	}
	return 100.0 * float64(t.LinesHit) / float64(t.LinesTotal)
}

func (t Totals) BranchPercent() float64 {
	if t.BranchesTotal == 0 {
		return 100.0
	}
	return 100.0 * float64(t.BranchesHit) / float64(t.BranchesTotal)
}

// TopUncovered returns up to n uncovered probes across every file,
// sorted by file path then line number, for --top-uncovered. n <= 0
// means unbounded.
func (r Report) TopUncovered(n int) []probe.Probe {
	var all []probe.Probe
	for _, f := range r.Files {
		all = append(all, f.Uncovered...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].File != all[j].File {
			return all[i].File < all[j].File
		}
		return all[i].Line < all[j].Line
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}
