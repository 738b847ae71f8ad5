package vcd

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"rtlcov/internal/probe"
)

// The toggle analyzer is a separate report mode from the probe pass:
// instead of watching a known set of probe registers, it tracks every
// signal the dump declares and records, per bit, whether both a 0 and
// a 1 were ever observed. On top of that it can sample a program
// counter and instruction word on rising clock edges and build
// execution histograms, which is useful when the design under test is
// a processor.

// ToggleOptions configures one AnalyzeToggle pass. The signal names
// are hierarchical-name suffixes (".clk" matches tb.dut.clk); when
// more than one signal matches, the shortest full name wins. PC and
// Instr left empty disable instruction sampling.
type ToggleOptions struct {
	// IncludeTB counts testbench-side signals too; by default only
	// signals under ScopePrefix contribute to toggle totals.
	IncludeTB   bool
	ScopePrefix string
	Clock       string
	PC          string
	Instr       string
}

// DefaultToggleOptions matches the common testbench layout: sample on
// any signal ending in ".clk", no scope filter.
func DefaultToggleOptions() ToggleOptions {
	return ToggleOptions{Clock: ".clk"}
}

// BitToggle records whether one bit of a signal was ever observed at
// each logic level. x/z observations count as neither.
type BitToggle struct {
	Seen0 bool
	Seen1 bool
}

func (b *BitToggle) add(ch byte) {
	switch ch {
	case '0':
		b.Seen0 = true
	case '1':
		b.Seen1 = true
	}
}

// Covered reports whether the bit toggled both ways.
func (b BitToggle) Covered() bool {
	return b.Seen0 && b.Seen1
}

// VarToggle is one signal's per-bit toggle state.
type VarToggle struct {
	Var   probe.VcdVar
	Scope string
	Bits  []BitToggle
}

func newVarToggle(v probe.VcdVar, scope string) *VarToggle {
	width := v.Width
	if width < 1 {
		width = 1
	}
	return &VarToggle{Var: v, Scope: scope, Bits: make([]BitToggle, width)}
}

func (v *VarToggle) addScalar(ch byte) {
	v.Bits[0].add(ch)
}

// addVector applies a binary value string MSB-first, zero-extending
// short values and keeping the low-order bits of over-long ones, the
// way a simulator truncates on assignment.
func (v *VarToggle) addVector(bits string) {
	s := strings.ToLower(strings.TrimSpace(bits))
	if len(s) < len(v.Bits) {
		s = strings.Repeat("0", len(v.Bits)-len(s)) + s
	}
	if len(s) > len(v.Bits) {
		s = s[len(s)-len(v.Bits):]
	}
	for i := 0; i < len(s); i++ {
		v.Bits[i].add(s[i])
	}
}

// CoveredBits counts the bits that toggled both ways.
func (v *VarToggle) CoveredBits() int {
	n := 0
	for _, b := range v.Bits {
		if b.Covered() {
			n++
		}
	}
	return n
}

func (v *VarToggle) TotalBits() int {
	return len(v.Bits)
}

// ScopeBits aggregates covered/total bit counts for one scope.
type ScopeBits struct {
	Covered int
	Total   int
}

// InstrSample is the rising-edge functional sample: how many
// instructions were observed, the PC range they span, and histograms
// keyed by the instruction word's opcode field, its funct field (for
// opcode 0) and its rt field (for opcode 1, the branch-on-register
// group).
type InstrSample struct {
	Samples   int
	UniquePCs int
	MinPC     uint32
	MaxPC     uint32
	Opcodes   map[int]int
	Functs    map[int]int
	BranchRT  map[int]int
}

// ToggleResult is the outcome of one AnalyzeToggle pass.
type ToggleResult struct {
	// Vars holds the signals that survived filtering, least-covered
	// first (ratio, then width as tie-break).
	Vars        []*VarToggle
	PerScope    map[string]ScopeBits
	CoveredBits int
	TotalBits   int
	// Sample is nil when the clock, PC or instruction signal could
	// not all be resolved from the dump's header.
	Sample *InstrSample
}

// findSignalCode resolves a hierarchical-name suffix to a VCD code,
// preferring the shortest matching full name so "tb.dut.clk" beats
// "tb.dut.sub.clk" for suffix ".clk". Empty suffix resolves nothing.
func findSignalCode(defs Definitions, suffix string) string {
	if suffix == "" {
		return ""
	}
	best := ""
	bestName := ""
	for code, v := range defs.ByCode {
		if !strings.HasSuffix(v.Name, suffix) {
			continue
		}
		if best == "" || len(v.Name) < len(bestName) {
			best, bestName = code, v.Name
		}
	}
	return best
}

// isConstantName reports whether a leaf name looks like a localparam
// or macro constant (all caps/digits/underscores with at least one
// letter); such symbols never toggle and would only dilute the
// totals.
func isConstantName(full string) bool {
	leaf := leaf(full)
	if leaf == "" {
		return false
	}
	hasUpper := false
	for i := 0; i < len(leaf); i++ {
		c := leaf[i]
		switch {
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return hasUpper
}

func (o ToggleOptions) skip(scope, fullName string) bool {
	if !o.IncludeTB && o.ScopePrefix != "" && !strings.HasPrefix(scope, o.ScopePrefix) {
		return true
	}
	return isConstantName(fullName)
}

// decodeBinary parses an unsigned binary value string; x/z anywhere
// makes the value unusable.
func decodeBinary(bits string) (uint32, bool) {
	s := strings.ToLower(strings.TrimSpace(bits))
	if s == "" || strings.ContainsAny(s, "xz") {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 2, 64)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// AnalyzeToggle streams a full VCD (header and value changes) and
// returns per-bit toggle coverage plus, when the clock/PC/instruction
// signals resolve, the rising-edge instruction sample.
func AnalyzeToggle(r io.Reader, opts ToggleOptions) (*ToggleResult, []string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	defs, warnings, err := ParseDefinitions(scanner)
	if err != nil {
		return nil, warnings, err
	}

	toggles := make(map[string]*VarToggle, len(defs.ByCode))
	for code, v := range defs.ByCode {
		toggles[code] = newVarToggle(v, defs.scopeOf[code])
	}

	clkCode := findSignalCode(defs, opts.Clock)
	pcCode := findSignalCode(defs, opts.PC)
	instrCode := findSignalCode(defs, opts.Instr)
	sampling := clkCode != "" && pcCode != "" && instrCode != ""

	var sample *InstrSample
	lastVector := make(map[string]string, 2)
	pcsSeen := make(map[uint32]bool)
	clkPrev := byte(0)
	clkSeen := false

	record := func() {
		pc, okPC := decodeBinary(lastVector[pcCode])
		instr, okInstr := decodeBinary(lastVector[instrCode])
		if !okPC || !okInstr {
			return
		}
		if sample == nil {
			sample = &InstrSample{
				Opcodes:  make(map[int]int),
				Functs:   make(map[int]int),
				BranchRT: make(map[int]int),
				MinPC:    pc,
				MaxPC:    pc,
			}
		}
		sample.Samples++
		if !pcsSeen[pc] {
			pcsSeen[pc] = true
			sample.UniquePCs++
		}
		if pc < sample.MinPC {
			sample.MinPC = pc
		}
		if pc > sample.MaxPC {
			sample.MaxPC = pc
		}
		op := int(instr>>26) & 0x3f
		sample.Opcodes[op]++
		if op == 0 {
			sample.Functs[int(instr)&0x3f]++
		}
		if op == 1 {
			sample.BranchRT[int(instr>>16)&0x1f]++
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line[0] {
		case '#', '$':
			continue
		case '0', '1', 'x', 'X', 'z', 'Z':
			if len(line) < 2 {
				continue
			}
			val, code := lower(line[0]), line[1:]
			if vt, ok := toggles[code]; ok {
				vt.addScalar(val)
			}
			if sampling && code == clkCode {
				if clkSeen && clkPrev == '0' && val == '1' {
					record()
				}
				clkPrev = val
				clkSeen = true
			}
		case 'b', 'B':
			parts := strings.Fields(line)
			if len(parts) != 2 {
				continue
			}
			bits, code := parts[0][1:], parts[1]
			if vt, ok := toggles[code]; ok {
				vt.addVector(bits)
			}
			if sampling && (code == pcCode || code == instrCode) {
				lastVector[code] = bits
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, warnings, err
	}

	res := &ToggleResult{PerScope: make(map[string]ScopeBits), Sample: sample}
	for code, vt := range toggles {
		if opts.skip(vt.Scope, defs.ByCode[code].Name) {
			continue
		}
		covered, total := vt.CoveredBits(), vt.TotalBits()
		sb := res.PerScope[vt.Scope]
		sb.Covered += covered
		sb.Total += total
		res.PerScope[vt.Scope] = sb
		res.CoveredBits += covered
		res.TotalBits += total
		res.Vars = append(res.Vars, vt)
	}
	sort.Slice(res.Vars, func(i, j int) bool {
		a, b := res.Vars[i], res.Vars[j]
		ra := ratio(a.CoveredBits(), a.TotalBits())
		rb := ratio(b.CoveredBits(), b.TotalBits())
		if ra != rb {
			return ra < rb
		}
		if a.TotalBits() != b.TotalBits() {
			return a.TotalBits() < b.TotalBits()
		}
		return a.Var.Name < b.Var.Name
	})

	return res, warnings, nil
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
