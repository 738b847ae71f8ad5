package report

import (
	"bytes"
	"strings"
	"testing"

	"rtlcov/internal/probe"
	"rtlcov/internal/vcd"
)

func sampleToggleResult() *vcd.ToggleResult {
	v := &vcd.VarToggle{
		Var:   probe.VcdVar{Code: "!", Name: "tb.dut.en", Width: 1},
		Scope: "tb.dut",
		Bits:  []vcd.BitToggle{{Seen0: true, Seen1: false}},
	}
	return &vcd.ToggleResult{
		Vars:        []*vcd.VarToggle{v},
		PerScope:    map[string]vcd.ScopeBits{"tb.dut": {Covered: 0, Total: 1}},
		CoveredBits: 0,
		TotalBits:   1,
		Sample: &vcd.InstrSample{
			Samples:   3,
			UniquePCs: 2,
			MinPC:     0,
			MaxPC:     8,
			Opcodes:   map[int]int{0x08: 2, 0x00: 1},
			Functs:    map[int]int{0x20: 1},
			BranchRT:  map[int]int{},
		},
	}
}

func TestToggleReportsBitTotals(t *testing.T) {
	var buf bytes.Buffer
	Toggle(&buf, sampleToggleResult(), DefaultToggleOptions())
	out := buf.String()
	if !strings.Contains(out, "Bits covered: 0/1") {
		t.Errorf("expected bit totals, got %q", out)
	}
	if !strings.Contains(out, "tb.dut.en: 0/1") {
		t.Errorf("expected least-covered signal listing, got %q", out)
	}
	if !strings.Contains(out, "Instructions sampled: 3") {
		t.Errorf("expected instruction sample count, got %q", out)
	}
	if !strings.Contains(out, "08(2)") {
		t.Errorf("expected opcode histogram entry, got %q", out)
	}
}

func TestToggleReportNoSample(t *testing.T) {
	res := sampleToggleResult()
	res.Sample = nil
	var buf bytes.Buffer
	Toggle(&buf, res, DefaultToggleOptions())
	if !strings.Contains(buf.String(), "sampling skipped") {
		t.Errorf("expected a note that sampling was skipped, got %q", buf.String())
	}
}

func TestToggleReportEmptyTotalsNA(t *testing.T) {
	res := &vcd.ToggleResult{PerScope: map[string]vcd.ScopeBits{}}
	var buf bytes.Buffer
	Toggle(&buf, res, DefaultToggleOptions())
	if !strings.Contains(buf.String(), "n/a") {
		t.Errorf("expected n/a for empty totals, got %q", buf.String())
	}
}
