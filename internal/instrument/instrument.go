// Package instrument rewrites Verilog/SystemVerilog source files,
// inserting single-bit probe registers at statement and branch sites
// so that a downstream simulation run's value-change dump records
// which lines and branches actually executed. It works line-by-line
// over classify.Classify output; it never builds or needs a syntax
// tree, and passes anything it doesn't recognize through unchanged.
package instrument

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rtlcov/internal/classify"
	"rtlcov/internal/probe"
)

// FileResult is the outcome of instrumenting one RTL source file.
type FileResult struct {
	Path         string
	Source       string
	Instrumented string
	Probes       []probe.Probe
}

// File instruments the content of one RTL file, starting probe
// numbering from counter, and returns the rewritten source plus the
// advanced counter for the next file to continue from.
func File(path string, content string, counter probe.Counter) (FileResult, probe.Counter) {
	lines := splitLines(content)
	var outAll []string
	var allProbes []probe.Probe

	i := 0
	for i < len(lines) {
		if classify.Classify(lines[i]).Kind != classify.KindModule {
			outAll = append(outAll, lines[i])
			i++
			continue
		}

		end := findEndmodule(lines, i)
		if end < 0 {
			// No matching endmodule: best-effort passthrough rather than
			// risk corrupting a file we can't delimit.
			outAll = append(outAll, lines[i:]...)
			i = len(lines)
			continue
		}

		moduleLines := lines[i : end+1]
		st := newModuleState(moduleLines, i+1, path, counter)
		modOut, modProbes := st.run()
		counter = st.counter

		outAll = append(outAll, modOut...)
		allProbes = append(allProbes, modProbes...)
		i = end + 1
	}

	return FileResult{
		Path:         path,
		Source:       content,
		Instrumented: strings.Join(outAll, "\n"),
		Probes:       allProbes,
	}, counter
}

func findEndmodule(lines []string, start int) int {
	for k := start + 1; k < len(lines); k++ {
		if classify.Classify(lines[k]).Kind == classify.KindEndmodule {
			return k
		}
	}
	return -1
}

func splitLines(content string) []string {
	return strings.Split(content, "\n")
}

// InstrumentDir instruments every *.v/*.sv file directly under dir,
// in deterministic (sorted) path order.
//
// Probe numbering is assigned in two passes: a sizing pass
// instruments each file independently (starting from a local
// counter) purely to learn how many probes it produces, then a final
// pass reserves a disjoint id range per file — via probe.Counter.Reserve
// — and re-instruments from that range's start. Both instrumentation
// calls are pure functions of the file's content, so re-running is
// cheap, and each pass is embarrassingly parallel per file; this
// implementation just runs them sequentially.
func InstrumentDir(dir string) ([]FileResult, error) {
	paths, err := listVerilogFiles(dir)
	if err != nil {
		return nil, err
	}

	type staged struct {
		path    string
		content string
		count   int
	}

	staged1 := make([]staged, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		sizing, _ := File(p, string(raw), probe.NewCounter())
		staged1 = append(staged1, staged{path: p, content: string(raw), count: len(sizing.Probes)})
	}

	results := make([]FileResult, len(staged1))
	counter := probe.NewCounter()
	for idx, sf := range staged1 {
		var start probe.Counter
		start, counter = counter.Reserve(sf.count)
		result, _ := File(sf.path, sf.content, start)
		results[idx] = result
	}

	return results, nil
}

// listVerilogFiles returns every *.v/*.sv file directly under dir as an
// absolute path. Probes record the absolute path of their original
// source, and this is the one spot that turns a (possibly relative)
// --rtl-dir into the paths probes and reports key off of for the rest
// of the run.
func listVerilogFiles(dir string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving rtl directory %s: %w", dir, err)
	}
	var out []string
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("reading rtl directory %s: %w", absDir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".v" && ext != ".sv" {
			continue
		}
		out = append(out, filepath.Join(absDir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
