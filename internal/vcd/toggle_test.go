package vcd

import (
	"strings"
	"testing"

	"rtlcov/internal/probe"
)

const toggleVCD = `$timescale 1ns $end
$scope module tb $end
$var reg 1 ! clk $end
$scope module dut $end
$var reg 1 " en $end
$var reg 32 # program_counter $end
$var reg 32 $ instruction $end
$var reg 8 % WIDTH $end
$upscope $end
$upscope $end
$enddefinitions $end
#0
0!
0"
b00000000000000000000000000000000 #
b00100000000010000000000000000001 $
#5
1!
#10
0!
1"
b00000000000000000000000000000100 #
b00000000000000010000100000100000 $
#15
1!
#20
0"
`

func TestAnalyzeToggleBits(t *testing.T) {
	res, warnings, err := AnalyzeToggle(strings.NewReader(toggleVCD), DefaultToggleOptions())
	if err != nil {
		t.Fatalf("AnalyzeToggle: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	var en *VarToggle
	for _, v := range res.Vars {
		if v.Var.Name == "tb.dut.en" {
			en = v
		}
	}
	if en == nil {
		t.Fatalf("tb.dut.en missing from results: %+v", res.Vars)
	}
	if en.CoveredBits() != 1 {
		t.Errorf("en saw both 0 and 1, expected 1 covered bit, got %d", en.CoveredBits())
	}
}

func TestAnalyzeToggleSkipsConstants(t *testing.T) {
	res, _, err := AnalyzeToggle(strings.NewReader(toggleVCD), DefaultToggleOptions())
	if err != nil {
		t.Fatalf("AnalyzeToggle: %v", err)
	}
	for _, v := range res.Vars {
		if v.Var.Name == "tb.dut.WIDTH" {
			t.Errorf("all-caps constant symbol should be filtered from toggle totals")
		}
	}
}

func TestAnalyzeToggleScopePrefix(t *testing.T) {
	opts := DefaultToggleOptions()
	opts.ScopePrefix = "tb.dut"
	res, _, err := AnalyzeToggle(strings.NewReader(toggleVCD), opts)
	if err != nil {
		t.Fatalf("AnalyzeToggle: %v", err)
	}
	for _, v := range res.Vars {
		if !strings.HasPrefix(v.Var.Name, "tb.dut.") {
			t.Errorf("signal %s outside scope prefix survived filtering", v.Var.Name)
		}
	}
}

// Two rising clock edges, but PC/instruction only valid on both for
// the sampled transitions; the opcode histogram keys off bits 31:26.
func TestAnalyzeToggleInstructionSampling(t *testing.T) {
	opts := DefaultToggleOptions()
	opts.PC = ".program_counter"
	opts.Instr = ".instruction"
	res, _, err := AnalyzeToggle(strings.NewReader(toggleVCD), opts)
	if err != nil {
		t.Fatalf("AnalyzeToggle: %v", err)
	}
	if res.Sample == nil {
		t.Fatalf("expected instruction sampling to resolve clk/pc/instr")
	}
	s := res.Sample
	if s.Samples != 2 {
		t.Errorf("expected 2 rising-edge samples, got %d", s.Samples)
	}
	if s.UniquePCs != 2 {
		t.Errorf("expected 2 unique PCs, got %d", s.UniquePCs)
	}
	// First sampled word 0x20080001 is opcode 0x08 (addi); second is
	// opcode 0 with funct 0x20 (add).
	if s.Opcodes[0x08] != 1 {
		t.Errorf("expected one opcode-0x08 sample, got %+v", s.Opcodes)
	}
	if s.Opcodes[0x00] != 1 || s.Functs[0x20] != 1 {
		t.Errorf("expected one SPECIAL add sample, got opcodes %+v functs %+v", s.Opcodes, s.Functs)
	}
}

func TestAnalyzeToggleNoSamplingWithoutSignals(t *testing.T) {
	res, _, err := AnalyzeToggle(strings.NewReader(toggleVCD), DefaultToggleOptions())
	if err != nil {
		t.Fatalf("AnalyzeToggle: %v", err)
	}
	if res.Sample != nil {
		t.Errorf("expected no instruction sample when pc/instr suffixes are unset")
	}
}

func TestVarToggleVectorWidthAdjustment(t *testing.T) {
	vt := newVarToggle(probe.VcdVar{Code: "!", Name: "tb.sig", Width: 4}, "tb")
	vt.addVector("1")    // zero-extended to 0001
	vt.addVector("0110") // exact
	if got := vt.CoveredBits(); got != 3 {
		t.Errorf("expected 3 covered bits after 0001+0110, got %d", got)
	}
	vt.addVector("111111") // over-long: low 4 bits kept
	if got := vt.CoveredBits(); got != 4 {
		t.Errorf("expected all 4 bits covered, got %d", got)
	}
}
