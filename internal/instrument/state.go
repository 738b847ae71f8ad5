package instrument

import (
	"fmt"
	"regexp"
	"strings"

	"rtlcov/internal/classify"
	"rtlcov/internal/probe"
)

// reEndElseSuffix recognizes the common single-line idiom
// "end else ..." (closing one branch and opening the next on the same
// physical line). classify.Classify sees only the leading "end" and
// reports KindEnd, since it classifies a line by its single leading
// token; handleEnd recovers the "else ..." suffix itself and routes it
// through the same branch-probe logic as a standalone else line.
var reEndElseSuffix = regexp.MustCompile(`^end\s+(else\b.*)$`)

// reElseIf recognizes the equally common single-line "else if (...)"
// form. Like reEndElseSuffix, this exists because classify reports the
// whole line as KindElse without exposing the embedded if-condition;
// handleElseIf re-derives it and gives that rung its own if_true/else
// probe pair (see DESIGN.md on else-if chains).
var reElseIf = regexp.MustCompile(`^else\s+(if\s*\(.*)$`)

// reElseWord finds an "else" keyword embedded in an if line's tail,
// e.g. "if (c) x = 1; else x = 0;". Such one-line chains are passed
// through untouched: there is no place to put a probe without
// splitting the statement apart.
var reElseWord = regexp.MustCompile(`\belse\b`)

func splitElseIf(code string) (string, bool) {
	m := reElseIf.FindStringSubmatch(code)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// pendingKind tags which of the three branch-probe slots (then/else/
// case-item) is currently armed. Modeling the three single-slot
// pending probes as one tagged value keeps "at most one pending probe
// at a time" true by construction instead of relying on three
// independently-nullable fields.
type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingThen
	pendingElse
	pendingCaseItem
)

type pendingSlot struct {
	kind pendingKind
	p    probe.Probe
}

// owedEnd records one synthetic `begin` the instrumenter opened whose
// matching `end` cannot be emitted until the construct inside it has
// finished. depth/caseDepth identify the nesting level the block was
// opened at; settle emits the `end` once the state machine is back at
// that level and the following line does not continue an if/else
// chain. procExit marks the block synthesized around an unbraced
// procedure body: closing it also leaves the procedure.
type owedEnd struct {
	depth     int
	caseDepth int
	procExit  bool
}

// moduleState is the instrumenter's per-module state machine. One
// moduleState processes exactly one module's physical lines and is
// discarded afterward; the probe.Counter it started with is threaded
// back out so the next module continues the global numbering.
type moduleState struct {
	lines     []string
	startLine int // 1-based source line number of lines[0]
	file      string

	counter probe.Counter
	probes  []probe.Probe
	out     []string

	inProc            bool
	procDepth         int
	awaitingProcBegin bool
	caseDepth         int
	pending           pendingSlot
	owed              []owedEnd

	// endStack holds, per currently-open case construct (LIFO), the
	// number of synthetic `end`s owed once that construct's matching
	// `endcase` is emitted. Pushed in handleCase from
	// synthEndsForNextCase, popped in handleEndcase. A straight stack
	// rather than a case_depth-indexed map, so there is no
	// reset-on-procedure-exit footgun to get wrong.
	endStack []int
	// synthEndsForNextCase accumulates synthetic-begin opens recorded
	// by an if/else rewrite that saw a `case` header coming up; the
	// very next handleCase call drains it onto endStack.
	synthEndsForNextCase int
}

func newModuleState(lines []string, startLine int, file string, counter probe.Counter) *moduleState {
	return &moduleState{
		lines:     lines,
		startLine: startLine,
		file:      file,
		counter:   counter,
	}
}

func (st *moduleState) lineNo(i int) int {
	return st.startLine + i
}

func (st *moduleState) emit(s string) {
	st.out = append(st.out, s)
}

func (st *moduleState) emitProbeAssign(p probe.Probe) {
	st.out = append(st.out, fmt.Sprintf("  %s = 1'b1;", p.Name))
}

func (st *moduleState) newLineProbe(line int, detail probe.Detail) probe.Probe {
	var p probe.Probe
	p, st.counter = probe.NewLine(st.counter, st.file, line, detail)
	st.probes = append(st.probes, p)
	return p
}

func (st *moduleState) newBranchProbe(line int, detail probe.Detail) probe.Probe {
	var p probe.Probe
	p, st.counter = probe.NewBranch(st.counter, st.file, line, detail)
	st.probes = append(st.probes, p)
	return p
}

// flushPending emits the pending probe assignment, if any, clearing
// the slot. Used by the begin rule and the case-item rules, where a
// bare assignment is legal at the insertion point.
func (st *moduleState) flushPending() {
	if st.pending.kind != pendingNone {
		st.emitProbeAssign(st.pending.p)
		st.pending = pendingSlot{}
	}
}

// openPendingBlock consumes a pending probe at a point where the next
// construct is itself a statement (an if or a case serving as an
// unbraced branch/case-item body). A bare probe assignment would be a
// second statement in a single-statement context, so the probe and
// the construct are wrapped in a synthetic block whose end is owed
// until the construct completes.
func (st *moduleState) openPendingBlock() {
	if st.pending.kind == pendingNone {
		return
	}
	p := st.pending.p
	st.pending = pendingSlot{}
	st.emit("begin")
	st.procDepth++
	st.owed = append(st.owed, owedEnd{depth: st.procDepth, caseDepth: st.caseDepth})
	st.emitProbeAssign(p)
}

// peekNextNonBlank finds the next non-blank physical line at or after
// from, returning its index and classification, or (-1, zero Line) if
// none remains in this module.
func (st *moduleState) peekNextNonBlank(from int) (int, classify.Line) {
	for k := from; k < len(st.lines); k++ {
		if strings.TrimSpace(st.lines[k]) == "" {
			continue
		}
		return k, classify.Classify(st.lines[k])
	}
	return -1, classify.Line{}
}

// settle emits synthetic `end`s whose construct has completed: the
// state machine is back at the depth the block was opened at and the
// next line does not extend the chain with a further else. Called
// after every consumed line.
func (st *moduleState) settle(next int) {
	for len(st.owed) > 0 {
		if !st.inProc || st.pending.kind != pendingNone || st.synthEndsForNextCase > 0 {
			return
		}
		top := st.owed[len(st.owed)-1]
		if top.depth != st.procDepth || top.caseDepth != st.caseDepth {
			return
		}
		if _, cl := st.peekNextNonBlank(next); cl.Kind == classify.KindElse {
			return
		}
		st.emit("end")
		st.owed = st.owed[:len(st.owed)-1]
		if top.procExit {
			st.inProc = false
			st.procDepth = 0
			st.caseDepth = 0
		} else {
			st.procDepth--
		}
	}
}

// synthProcBegin legalizes an unbraced procedure body: the header was
// emitted without a begin, and the line about to be processed is the
// procedure's single statement. A ` begin` is appended to the emitted
// header and its `end` is owed until that statement (possibly a whole
// if/else chain or case) completes.
func (st *moduleState) synthProcBegin() {
	for k := len(st.out) - 1; k >= 0; k-- {
		code, _ := classify.StripComment(st.out[k])
		if strings.TrimSpace(code) == "" {
			continue
		}
		st.out[k] = appendBegin(st.out[k])
		break
	}
	st.procDepth = 1
	st.awaitingProcBegin = false
	st.owed = append(st.owed, owedEnd{depth: 1, procExit: true})
}

// run drives the state machine across the module's lines and returns
// the rewritten output lines plus every probe created. i tracks
// position separately from the fixed lines slice since some rules
// consume more than one physical line per step.
func (st *moduleState) run() ([]string, []probe.Probe) {
	declIdx := -1
	searchingDecl := false

	i := 0
	for i < len(st.lines) {
		cl := classify.Classify(st.lines[i])

		if cl.Kind == classify.KindModule {
			st.emit(st.lines[i])
			searchingDecl = true
			i++
			continue
		}

		if searchingDecl {
			if isDeclStop(cl) {
				declIdx = len(st.out)
				searchingDecl = false
				// fall through: this line is handled by the switch below
			} else {
				st.emit(st.lines[i])
				i++
				continue
			}
		}

		if st.inProc && st.awaitingProcBegin {
			switch cl.Kind {
			case classify.KindIf, classify.KindElse, classify.KindCase,
				classify.KindCaseItemInline, classify.KindCaseItemStrict:
				st.synthProcBegin()
			case classify.KindOther:
				if strings.TrimSpace(cl.Code) != "" {
					st.synthProcBegin()
				}
			case classify.KindEndmodule, classify.KindAssign, classify.KindDeclaration,
				classify.KindEnd, classify.KindEndcase:
				// The procedure's body must have been inline on its
				// header line; there is nothing here to instrument.
				st.inProc = false
				st.awaitingProcBegin = false
			}
		}

		n := 1
		switch cl.Kind {
		case classify.KindEndmodule:
			st.emit(st.lines[i])
		case classify.KindAssign:
			n = st.handleAssign(i)
		case classify.KindProcHeader:
			st.handleProcHeader(i)
		case classify.KindBegin:
			st.handleBegin(i)
		case classify.KindEnd:
			n = st.handleEnd(i)
		case classify.KindIf:
			n = st.handleIf(i)
		case classify.KindElse:
			n = st.handleElse(i)
		case classify.KindCase:
			st.handleCase(i)
		case classify.KindEndcase:
			st.handleEndcase(i)
		case classify.KindCaseItemInline:
			n = st.handleCaseItemInline(i)
		case classify.KindCaseItemStrict:
			n = st.handleCaseItemStrict(i)
		default:
			n = st.handleGeneric(i)
		}
		i += n
		st.settle(i)
	}

	if declIdx >= 0 && len(st.probes) > 0 {
		st.spliceDecls(declIdx)
	}

	return st.out, st.probes
}

func (st *moduleState) spliceDecls(idx int) {
	decl := make([]string, 0, 2*len(st.probes)+3)
	decl = append(decl, "// coverage probes")
	for _, p := range st.probes {
		decl = append(decl, fmt.Sprintf("reg %s;", p.Name))
	}
	decl = append(decl, "initial begin")
	for _, p := range st.probes {
		decl = append(decl, fmt.Sprintf("  %s = 1'b0;", p.Name))
	}
	decl = append(decl, "end")
	out := make([]string, 0, len(st.out)+len(decl))
	out = append(out, st.out[:idx]...)
	out = append(out, decl...)
	out = append(out, st.out[idx:]...)
	st.out = out
}

// isDeclStop reports whether this line ends the declaration-insertion
// search: the probe registers must land after the port list and the
// module's own declarations, but before the first procedural
// construct, since declarations between procedural blocks are
// rejected by some simulators.
func isDeclStop(cl classify.Line) bool {
	switch cl.Kind {
	case classify.KindProcHeader, classify.KindAssign, classify.KindModule, classify.KindEndmodule:
		return true
	}
	code := strings.TrimSpace(cl.Code)
	for _, kw := range []string{"primitive", "task", "function", "generate"} {
		if strings.HasPrefix(code, kw) {
			return true
		}
	}
	return false
}

// ----- rule handlers -----

// handleAssign coalesces a continuous assignment across physical
// lines, probes each non-empty line, and appends a synthetic
// sensitivity block keyed on the assignment's LHS identifiers, so the
// probes fire whenever the assignment's target would be re-evaluated.
func (st *moduleState) handleAssign(i int) int {
	j := i
	for {
		if strings.Contains(st.lines[j], ";") {
			break
		}
		if j+1 >= len(st.lines) {
			break
		}
		j++
	}

	var lineProbes []probe.Probe
	for k := i; k <= j; k++ {
		st.emit(st.lines[k])
		if strings.TrimSpace(st.lines[k]) != "" {
			lineProbes = append(lineProbes, st.newLineProbe(st.lineNo(k), probe.DetailAssign))
		}
	}

	full := strings.Join(st.lines[i:j+1], " ")
	lhs, ok := splitAssignLHS(full)
	var ids []string
	if ok {
		ids = classify.Identifiers(lhs)
	}

	if len(ids) == 0 {
		st.emit("initial begin")
	} else {
		st.emit(fmt.Sprintf("always @(%s) begin", strings.Join(ids, " or ")))
	}
	for _, p := range lineProbes {
		st.emitProbeAssign(p)
	}
	st.emit("end")

	return j - i + 1
}

// splitAssignLHS returns the text between "assign" and the first
// top-level '=' of stmt (excluding multi-char relational operators
// ending in '=' and "=="), i.e. the assignment target expression.
func splitAssignLHS(stmt string) (string, bool) {
	body := strings.TrimSpace(stmt)
	body = strings.TrimPrefix(body, "assign")
	body = strings.TrimSpace(body)

	for idx := 0; idx < len(body); idx++ {
		if body[idx] != '=' {
			continue
		}
		prevOK := idx == 0 || !strings.ContainsRune("<>=!", rune(body[idx-1]))
		nextOK := idx+1 >= len(body) || body[idx+1] != '='
		if prevOK && nextOK {
			return strings.TrimSpace(body[:idx]), true
		}
	}
	return "", false
}

func (st *moduleState) handleProcHeader(i int) {
	raw := st.lines[i]
	cl := classify.Classify(raw)
	st.emit(raw)
	st.inProc = true
	st.procDepth = 0
	st.awaitingProcBegin = true
	st.caseDepth = 0
	st.pending = pendingSlot{}
	if cl.HasBegin {
		st.procDepth = 1
		st.awaitingProcBegin = false
	}
}

func (st *moduleState) handleBegin(i int) {
	st.emit(st.lines[i])
	if !st.inProc {
		return
	}
	st.awaitingProcBegin = false
	st.procDepth++
	st.flushPending()
}

// handleEnd does the depth bookkeeping for a closing `end`, plus the
// "end else ..." composite-line case: the trailing else is handed to
// handleElseLine instead of being emitted a second time. Returns the
// number of physical lines consumed.
func (st *moduleState) handleEnd(i int) int {
	raw := st.lines[i]
	cl := classify.Classify(raw)

	if !st.inProc {
		st.emit(raw)
		return 1
	}

	st.procDepth--
	if st.procDepth <= 0 {
		st.inProc = false
		st.procDepth = 0
		st.caseDepth = 0
		st.pending = pendingSlot{}
		st.owed = nil
		st.synthEndsForNextCase = 0
		st.emit(raw)
		return 1
	}

	if m := reEndElseSuffix.FindStringSubmatch(cl.Code); m != nil {
		return st.handleElseLine(i, raw, m[1])
	}

	st.emit(raw)
	return 1
}

// handleCase emits the case-header line probe and drains
// synthEndsForNextCase onto endStack for the matching handleEndcase
// to consume.
func (st *moduleState) handleCase(i int) {
	raw := st.lines[i]
	if !st.inProc {
		st.emit(raw)
		return
	}
	st.openPendingBlock()
	if st.procDepth >= 1 {
		lp := st.newLineProbe(st.lineNo(i), probe.DetailCase)
		st.emitProbeAssign(lp)
	}
	st.emit(raw)
	st.caseDepth++
	st.endStack = append(st.endStack, st.synthEndsForNextCase)
	st.synthEndsForNextCase = 0
}

// handleEndcase emits the endcase and then any synthetic `end`s owed
// for `if ... case` / `else case` rewrites around this construct. No
// probe is ever inserted between the last case item and the endcase.
func (st *moduleState) handleEndcase(i int) {
	if !st.inProc {
		st.emit(st.lines[i])
		return
	}
	st.emit(st.lines[i])
	owed := 0
	if n := len(st.endStack); n > 0 {
		owed = st.endStack[n-1]
		st.endStack = st.endStack[:n-1]
	}
	for k := 0; k < owed; k++ {
		st.emit("end")
	}
	if st.caseDepth > 0 {
		st.caseDepth--
	}
}

// handleIf processes a standalone if line. Returns the number of
// physical lines consumed.
func (st *moduleState) handleIf(i int) int {
	raw := st.lines[i]
	cl := classify.Classify(raw)
	if !st.inProc {
		st.emit(raw)
		return 1
	}
	st.openPendingBlock()
	return 1 + st.ifCore(i, raw, cl)
}

// ifCore implements the branch-probe logic shared by a standalone if
// line and the if-condition extracted from an inline "else if". raw is
// the literal text to emit for the if line itself (verbatim for a real
// if; synthesized for an else-if's extracted remainder); cl is that
// text's own classification. Returns the number of *additional*
// physical lines consumed beyond the if line (0 if the body is left
// pending for a later begin/statement to pick up).
func (st *moduleState) ifCore(i int, raw string, cl classify.Line) int {
	lineNo := st.lineNo(i)
	if st.procDepth >= 1 {
		lp := st.newLineProbe(lineNo, probe.DetailIf)
		st.emitProbeAssign(lp)
	}

	head, tail, balanced := splitIfTail(cl.Code)
	if !balanced {
		return st.ifMultiLineCondition(i, raw)
	}

	if tail != "" && !strings.HasPrefix(tail, "begin") {
		if reElseWord.MatchString(tail) || !strings.HasSuffix(tail, ";") {
			// A one-line if/else chain (or something unrecognized)
			// after the condition: pass through untouched.
			st.emit(raw)
			return 0
		}
		// "if (cond) stmt;" on one line: the statement moves into a
		// synthetic block together with its probes.
		indent := leadingWhitespace(raw)
		_, comment := classify.StripComment(raw)
		ifTrue := st.newBranchProbe(lineNo, probe.DetailIfTrue)
		h := indent + head + " begin"
		if c := strings.TrimRight(comment, "\r\n"); c != "" {
			h += " " + c
		}
		st.emit(h)
		st.emitProbeAssign(ifTrue)
		lp := st.newLineProbe(lineNo, probe.DetailStmt)
		st.emitProbeAssign(lp)
		st.emit(indent + "  " + tail)
		st.emit(indent + "end")
		return 0
	}

	ifTrue := st.newBranchProbe(lineNo, probe.DetailIfTrue)

	if cl.HasBegin {
		st.emit(raw)
		st.procDepth++
		st.emitProbeAssign(ifTrue)
		return 0
	}

	j, nextCl := st.peekNextNonBlank(i + 1)
	switch {
	case j < 0:
		st.emit(raw)
		st.pending = pendingSlot{kind: pendingThen, p: ifTrue}
		return 0
	case nextCl.Kind == classify.KindCase:
		st.emit(appendBegin(raw))
		st.emitProbeAssign(ifTrue)
		st.synthEndsForNextCase++
		return 0
	case nextCl.Kind == classify.KindIf:
		// An unbraced if whose body is another if: open a synthetic
		// block so the probe is legal, and process the nested if as a
		// fresh site of its own.
		st.emit(appendBegin(raw))
		st.procDepth++
		st.owed = append(st.owed, owedEnd{depth: st.procDepth, caseDepth: st.caseDepth})
		st.emitProbeAssign(ifTrue)
		for k := i + 1; k < j; k++ {
			st.emit(st.lines[k])
		}
		return (j - i) + st.ifCore(j, st.lines[j], nextCl)
	case nextCl.Kind != classify.KindBegin && nextCl.Kind != classify.KindElse:
		st.emit(raw)
		st.emit("begin")
		st.emitProbeAssign(ifTrue)
		for k := i + 1; k < j; k++ {
			st.emit(st.lines[k])
		}
		blp := st.newLineProbe(st.lineNo(j), probe.DetailStmt)
		st.emitProbeAssign(blp)
		st.emit(st.lines[j])
		st.emit("end")
		return j - i
	default:
		st.emit(raw)
		st.pending = pendingSlot{kind: pendingThen, p: ifTrue}
		return 0
	}
}

// ifMultiLineCondition handles an if whose condition's parentheses do
// not balance on one physical line: the header lines pass through
// verbatim until they balance, and the branch probe is attached to
// whatever follows the closing paren. When the tail is a statement on
// the same line there is nowhere legal to put a probe without parsing
// the expression, so that form keeps only the line probe.
func (st *moduleState) ifMultiLineCondition(i int, raw string) int {
	if raw != st.lines[i] {
		// Synthesized text (else-if extraction): give up on the
		// branch probe rather than re-consuming source lines.
		st.emit(raw)
		return 0
	}
	depth := 0
	end := i
	for k := i; k < len(st.lines); k++ {
		code, _ := classify.StripComment(st.lines[k])
		depth += strings.Count(code, "(") - strings.Count(code, ")")
		st.emit(st.lines[k])
		end = k
		if depth <= 0 && k > i {
			break
		}
	}

	code, _ := classify.StripComment(st.lines[end])
	trimmed := strings.TrimSpace(code)
	after := ""
	if idx := strings.LastIndexByte(trimmed, ')'); idx >= 0 {
		after = strings.TrimSpace(trimmed[idx+1:])
	}
	switch {
	case strings.HasPrefix(after, "begin"):
		st.procDepth++
		ifTrue := st.newBranchProbe(st.lineNo(i), probe.DetailIfTrue)
		st.emitProbeAssign(ifTrue)
	case after == "":
		ifTrue := st.newBranchProbe(st.lineNo(i), probe.DetailIfTrue)
		st.pending = pendingSlot{kind: pendingThen, p: ifTrue}
	}
	return end - i
}

// handleElse processes a standalone else line.
func (st *moduleState) handleElse(i int) int {
	raw := st.lines[i]
	cl := classify.Classify(raw)
	if !st.inProc {
		st.emit(raw)
		return 1
	}
	return st.handleElseLine(i, raw, cl.Code)
}

// handleElseLine implements the else decision tree against an explicit
// (raw, elseCode) pair rather than re-deriving them from st.lines[i],
// so it can also serve the "end else ..." composite line (handleEnd)
// without re-emitting the physical line twice. elseCode is the
// "else ..." text (comment-stripped) used to drive the decisions; raw
// is what actually gets emitted.
func (st *moduleState) handleElseLine(i int, raw string, elseCode string) int {
	lineNo := st.lineNo(i)

	if ifText, ok := splitElseIf(elseCode); ok {
		return st.handleElseIf(i, raw, ifText)
	}

	tail := strings.TrimSpace(strings.TrimPrefix(elseCode, "else"))
	if tail != "" && !strings.HasPrefix(tail, "begin") &&
		(reElseWord.MatchString(tail) || !strings.HasSuffix(tail, ";")) {
		// Unrecognized tail after the else: pass through untouched.
		st.emit(raw)
		return 1
	}

	elseProbe := st.newBranchProbe(lineNo, probe.DetailElse)

	if strings.HasPrefix(tail, "begin") {
		st.emit(raw)
		st.procDepth++
		st.emitProbeAssign(elseProbe)
		return 1
	}

	if tail != "" {
		// "else stmt;" on one line: same synthetic block as the
		// inline if-body form.
		indent := leadingWhitespace(raw)
		_, comment := classify.StripComment(raw)
		head := elsePrefix(raw) + "else begin"
		if c := strings.TrimRight(comment, "\r\n"); c != "" {
			head += " " + c
		}
		st.emit(head)
		st.emitProbeAssign(elseProbe)
		lp := st.newLineProbe(lineNo, probe.DetailStmt)
		st.emitProbeAssign(lp)
		st.emit(indent + "  " + tail)
		st.emit(indent + "end")
		return 1
	}

	j, nextCl := st.peekNextNonBlank(i + 1)
	switch {
	case j < 0:
		st.emit(raw)
		st.pending = pendingSlot{kind: pendingElse, p: elseProbe}
		return 1
	case nextCl.Kind == classify.KindCase:
		st.emit(appendBegin(raw))
		st.emitProbeAssign(elseProbe)
		st.synthEndsForNextCase++
		return 1
	case nextCl.Kind == classify.KindIf:
		// "else" with the nested if on its own line: open a synthetic
		// block, record the else branch, and process the if as a
		// fresh site with its own probes.
		st.emit(appendBegin(raw))
		st.procDepth++
		st.owed = append(st.owed, owedEnd{depth: st.procDepth, caseDepth: st.caseDepth})
		st.emitProbeAssign(elseProbe)
		for k := i + 1; k < j; k++ {
			st.emit(st.lines[k])
		}
		return (j - i + 1) + st.ifCore(j, st.lines[j], nextCl)
	case nextCl.Kind != classify.KindBegin:
		st.emit(raw)
		st.emit("begin")
		st.emitProbeAssign(elseProbe)
		for k := i + 1; k < j; k++ {
			st.emit(st.lines[k])
		}
		blp := st.newLineProbe(st.lineNo(j), probe.DetailStmt)
		st.emitProbeAssign(blp)
		st.emit(st.lines[j])
		st.emit("end")
		return j - i + 1
	default:
		st.emit(raw)
		st.pending = pendingSlot{kind: pendingElse, p: elseProbe}
		return 1
	}
}

// handleElseIf rewrites "else if (cond) ..." (with or without a
// leading "end" on the same line) into "else begin / <else-probe> /
// if (cond) ...", owing the block's end until the whole nested
// if/else chain completes. The rung gets both the else probe (entered
// at all) and its own if_true probe via ifCore.
func (st *moduleState) handleElseIf(i int, raw string, ifText string) int {
	lineNo := st.lineNo(i)
	_, comment := classify.StripComment(raw)

	elseProbe := st.newBranchProbe(lineNo, probe.DetailElse)
	head := elsePrefix(raw) + "else begin"
	if c := strings.TrimRight(comment, "\r\n"); c != "" {
		head += " " + c
	}
	st.emit(head)
	st.procDepth++
	st.owed = append(st.owed, owedEnd{depth: st.procDepth, caseDepth: st.caseDepth})
	st.emitProbeAssign(elseProbe)

	indent := leadingWhitespace(raw)
	innerRaw := indent + "  " + ifText
	return 1 + st.ifCore(i, innerRaw, classify.Classify(innerRaw))
}

// handleCaseItemInline rewrites "LABEL : stmt;" to a block carrying
// the case-item branch probe and the statement's line probe.
func (st *moduleState) handleCaseItemInline(i int) int {
	raw := st.lines[i]
	cl := classify.Classify(raw)
	if !st.inProc {
		st.emit(raw)
		return 1
	}
	lineNo := st.lineNo(i)

	st.flushPending()
	branch := st.newBranchProbe(lineNo, probe.DetailCaseItem)
	lp := st.newLineProbe(lineNo, probe.DetailCaseItemStmt)

	indent := leadingWhitespace(raw)
	st.emit(indent + cl.Label + " : begin")
	st.emitProbeAssign(branch)
	st.emitProbeAssign(lp)
	body := indent + "  " + cl.Body
	if cl.Comment != "" {
		body += " " + cl.Comment
	}
	st.emit(body)
	st.emit(indent + "end")
	return 1
}

// handleCaseItemStrict processes "LABEL :" / "LABEL : begin" alone on
// a line. Without a begin the branch probe goes pending, to be picked
// up by the item body's begin or wrapped around its single statement.
func (st *moduleState) handleCaseItemStrict(i int) int {
	raw := st.lines[i]
	cl := classify.Classify(raw)
	if !st.inProc {
		st.emit(raw)
		return 1
	}
	lineNo := st.lineNo(i)

	st.flushPending()
	branch := st.newBranchProbe(lineNo, probe.DetailCaseItem)

	if cl.HasBegin {
		st.emit(raw)
		st.emitProbeAssign(branch)
		st.procDepth++
		return 1
	}

	st.emit(raw)
	st.pending = pendingSlot{kind: pendingCaseItem, p: branch}
	return 1
}

// handleGeneric probes any other statement line inside a procedure. A
// pending branch probe wraps the statement in a synthetic block: the
// pending slot is only still armed here when the statement is an
// unbraced single-statement body, where a bare extra assignment would
// be illegal.
func (st *moduleState) handleGeneric(i int) int {
	raw := st.lines[i]
	cl := classify.Classify(raw)

	if strings.TrimSpace(cl.Code) == "" || !st.inProc || st.procDepth < 1 {
		st.emit(raw)
		return 1
	}

	lp := st.newLineProbe(st.lineNo(i), probe.DetailStmt)
	if st.pending.kind != pendingNone {
		p := st.pending.p
		st.pending = pendingSlot{}
		indent := leadingWhitespace(raw)
		st.emit(indent + "begin")
		st.emitProbeAssign(p)
		st.emitProbeAssign(lp)
		st.emit(raw)
		st.emit(indent + "end")
		return 1
	}
	st.emitProbeAssign(lp)
	st.emit(raw)
	return 1
}

// splitIfTail splits an if line's code into the header through the
// condition's closing paren and whatever follows it. balanced is
// false when the condition's parentheses continue past this line.
func splitIfTail(code string) (head, tail string, balanced bool) {
	trimmed := strings.TrimSpace(code)
	open := strings.IndexByte(trimmed, '(')
	if open < 0 {
		return "", "", false
	}
	depth := 0
	for k := open; k < len(trimmed); k++ {
		switch trimmed[k] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(trimmed[:k+1]), strings.TrimSpace(trimmed[k+1:]), true
			}
		}
	}
	return "", "", false
}

// appendBegin rewrites raw by appending " begin" after its code and
// before any trailing comment.
func appendBegin(raw string) string {
	code, comment := classify.StripComment(raw)
	indent := leadingWhitespace(raw)
	trimmed := strings.TrimRight(strings.TrimSpace(code), " \t")
	result := indent + trimmed + " begin"
	comment = strings.TrimRight(comment, "\r\n")
	if comment != "" {
		result += " " + comment
	}
	return result
}

// elsePrefix returns raw's text up to its "else" keyword: the indent,
// plus a leading "end " for the composite "end else ..." form.
func elsePrefix(raw string) string {
	if idx := strings.Index(raw, "else"); idx >= 0 {
		return raw[:idx]
	}
	return leadingWhitespace(raw)
}

func leadingWhitespace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}
