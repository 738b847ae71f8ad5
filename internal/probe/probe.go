// Package probe defines the data model shared across instrumentation,
// VCD analysis and reporting: the Probe and VcdVar records described in
// the coverage engine's data model.
package probe

import "fmt"

// Kind distinguishes a line probe from a branch probe.
type Kind string

const (
	KindLine   Kind = "line"
	KindBranch Kind = "branch"
)

// Detail tags the syntactic site a probe was attached to.
type Detail string

const (
	DetailStmt         Detail = "stmt"
	DetailIf           Detail = "if"
	DetailCase         Detail = "case"
	DetailAssign       Detail = "assign"
	DetailIfTrue       Detail = "if_true"
	DetailElse         Detail = "else"
	DetailCaseItem     Detail = "case_item"
	DetailCaseItemStmt Detail = "case_item_stmt"
	DetailEndcase      Detail = "endcase"
)

// Probe identifies a single instrumentation site. It is immutable once
// created: the instrumenter constructs probes monotonically and never
// mutates them afterward.
type Probe struct {
	Name   string // e.g. "__cov_L000001" or "__cov_B000002"
	Kind   Kind
	File   string // absolute path of the original RTL source
	Line   int    // 1-based line number in the original source
	Detail Detail
}

// lineProbePrefix / branchProbePrefix are the two name prefixes the
// Verilog register declarations use; both are syntactically legal
// Verilog identifiers and globally unique by construction (monotonic
// counter, zero-padded to a fixed width).
const (
	lineProbePrefix   = "__cov_L"
	branchProbePrefix = "__cov_B"
)

// NewLine constructs a line probe, consuming the next id from counter
// and returning the advanced counter alongside the probe. The counter
// is threaded as a value so that instrumentation has no shared mutable
// state across files; see Counter.
func NewLine(counter Counter, file string, line int, detail Detail) (Probe, Counter) {
	id, next := counter.next()
	return Probe{
		Name:   fmt.Sprintf("%s%06d", lineProbePrefix, id),
		Kind:   KindLine,
		File:   file,
		Line:   line,
		Detail: detail,
	}, next
}

// NewBranch constructs a branch probe the same way NewLine does.
func NewBranch(counter Counter, file string, line int, detail Detail) (Probe, Counter) {
	id, next := counter.next()
	return Probe{
		Name:   fmt.Sprintf("%s%06d", branchProbePrefix, id),
		Kind:   KindBranch,
		File:   file,
		Line:   line,
		Detail: detail,
	}, next
}

// Counter is the global monotonic probe-id counter. It is an immutable
// value: next returns both the id to use and the counter's new state,
// so callers thread it explicitly instead of sharing a mutable field.
// InstrumentDir reserves disjoint ranges of this counter per file
// before instrumenting, which is what lets per-file instrumentation be
// parallelized later without a lock (see Reserve).
type Counter struct {
	value int
}

// NewCounter returns a counter starting at 1 (probe id 0 is reserved so
// that an unset/zero id is never mistaken for a real probe).
func NewCounter() Counter {
	return Counter{value: 1}
}

func (c Counter) next() (int, Counter) {
	return c.value, Counter{value: c.value + 1}
}

// Reserve carves out a contiguous range of n ids starting at the
// counter's current value, returning the first id in the range and a
// counter advanced past the whole range. Used to partition probe-id
// space per file up front, so per-file instrumentation never contends
// over a shared counter.
func (c Counter) Reserve(n int) (Counter, Counter) {
	if n <= 0 {
		return c, c
	}
	return c, Counter{value: c.value + n}
}

// Value exposes the counter's raw numeric state, mostly for tests and
// for computing how large a reserved range actually needs to be.
func (c Counter) Value() int {
	return c.value
}
