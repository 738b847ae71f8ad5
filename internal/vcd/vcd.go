// Package vcd reads a Value Change Dump produced by a simulation run
// and determines which coverage probes it ever drove to 1. It is
// deliberately not a general VCD library: it understands exactly the
// two sections it needs (the $var header and the value-change
// section) and nothing else, streaming both in a single pass over one
// io.Reader so memory use is bounded by the number of signals/probes
// being tracked, not the size of the dump.
package vcd

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"rtlcov/internal/probe"
)

var (
	reVar     = regexp.MustCompile(`^\$var\s+(\S+)\s+(\d+)\s+(\S+)\s+(\S+)`)
	reScope   = regexp.MustCompile(`^\$scope\s+\S+\s+(\S+)`)
	reUpscope = regexp.MustCompile(`^\$upscope\b`)
)

// Definitions is the result of streaming a VCD header: a mapping from
// short code to VcdVar, keyed by code, built while tracking the
// $scope/$upscope nesting so each $var's Name carries its full dotted
// hierarchical path.
type Definitions struct {
	ByCode map[string]probe.VcdVar
	// scopeOf records the dotted scope path a code was declared under,
	// independent of its own leaf name; the reporter can use it to
	// filter by instance when more than one module instantiates the
	// same probe-bearing source (not needed for this tool's own
	// single-elaboration probes, but part of the documented contract).
	scopeOf map[string]string
}

// ParseDefinitions streams lines from scanner until $enddefinitions,
// maintaining the $scope/$upscope stack. Malformed directives are
// skipped with a warning rather than aborting the whole parse.
func ParseDefinitions(scanner *bufio.Scanner) (Definitions, []string, error) {
	defs := Definitions{
		ByCode:  make(map[string]probe.VcdVar),
		scopeOf: make(map[string]string),
	}
	var warnings []string
	var stack []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "$enddefinitions"):
			return defs, warnings, nil
		case strings.HasPrefix(line, "$scope"):
			m := reScope.FindStringSubmatch(line)
			if m == nil {
				warnings = append(warnings, fmt.Sprintf("malformed $scope directive, skipped: %q", line))
				continue
			}
			stack = append(stack, m[1])
		case strings.HasPrefix(line, "$upscope"):
			if !reUpscope.MatchString(line) {
				warnings = append(warnings, fmt.Sprintf("malformed $upscope directive, skipped: %q", line))
				continue
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case strings.HasPrefix(line, "$var"):
			m := reVar.FindStringSubmatch(line)
			if m == nil || !strings.HasSuffix(line, "$end") {
				warnings = append(warnings, fmt.Sprintf("malformed $var declaration, skipped: %q", line))
				continue
			}
			width := 0
			fmt.Sscanf(m[2], "%d", &width)
			code, ref := m[3], m[4]
			name := ref
			if len(stack) > 0 {
				name = strings.Join(stack, ".") + "." + ref
			}
			defs.ByCode[code] = probe.VcdVar{Code: code, Name: name, Width: width}
			defs.scopeOf[code] = strings.Join(stack, ".")
		default:
			// Any other header directive ($timescale, $date, $version,
			// ...) is irrelevant to line/branch coverage; ignored.
		}
	}
	if err := scanner.Err(); err != nil {
		return defs, warnings, fmt.Errorf("reading vcd definitions: %w", err)
	}
	// EOF before $enddefinitions: treat what we parsed as final rather
	// than erroring, consistent with the "pass through / skip, never
	// abort the whole run" policy for malformed VCD input.
	return defs, warnings, nil
}

// leaf returns the final dot-separated component of a hierarchical VCD
// name, which is what the reporter matches probe names against: the
// probe register's own name, regardless of which instance path the
// testbench dumped it under.
func leaf(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// Analyze reads r (a full VCD stream: header through value changes)
// and reports, for each probe in probes, whether its register was ever
// driven to a logic 1. Probes resolved from the header but never seen
// high map to false; probes whose leaf name never appears in the $var
// header at all (e.g. the testbench's $dumpvars depth didn't reach the
// probe signals) are absent from the map entirely, so callers can
// tell "never executed" apart from "never dumped".
//
// Scanning the value-change section stops as soon as every probe
// resolved from the header has been seen driven high at least once, so
// a design with thousands of uninteresting signals costs only as much
// as the probes actually being tracked.
func Analyze(r io.Reader, probes []probe.Probe) (hits map[string]bool, warnings []string, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	wanted := make(map[string]bool, len(probes))
	for _, p := range probes {
		wanted[p.Name] = true
	}

	defs, warnings, err := ParseDefinitions(scanner)
	if err != nil {
		return nil, warnings, err
	}

	// Resolve each wanted probe name to the VCD code(s) whose leaf name
	// matches it. Build code -> probe name directly so the scan loop
	// below never has to re-split hierarchical names per line.
	nameOfCode := make(map[string]string, len(defs.ByCode))
	targets := make(map[string]bool, len(defs.ByCode))
	for code, v := range defs.ByCode {
		if wanted[leaf(v.Name)] {
			nameOfCode[code] = leaf(v.Name)
			targets[code] = true
		}
	}

	remaining := len(targets)
	hitCodes := make(map[string]bool, len(targets))

	for remaining > 0 && scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		switch line[0] {
		case '#', '$':
			// timestamp or directive: irrelevant to the scalar-probe pass.
			continue
		case '0', '1', 'x', 'X', 'z', 'Z':
			if len(line) < 2 {
				continue
			}
			val, code := line[0], line[1:]
			if val == '1' && targets[code] && !hitCodes[code] {
				hitCodes[code] = true
				remaining--
			}
		case 'b', 'B':
			parts := strings.Fields(line)
			if len(parts) != 2 {
				continue
			}
			bits, code := parts[0][1:], parts[1]
			if targets[code] && !hitCodes[code] && strings.ContainsRune(bits, '1') {
				hitCodes[code] = true
				remaining--
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, warnings, fmt.Errorf("reading vcd value changes: %w", err)
	}

	hits = make(map[string]bool, len(nameOfCode))
	for code, name := range nameOfCode {
		if hitCodes[code] {
			hits[name] = true
		} else if !hits[name] {
			hits[name] = false
		}
	}
	return hits, warnings, nil
}
