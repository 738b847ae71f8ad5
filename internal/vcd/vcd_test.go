package vcd

import (
	"strings"
	"testing"

	"rtlcov/internal/probe"
)

func sampleProbes() []probe.Probe {
	return []probe.Probe{
		{Name: "__cov_L000001", Kind: probe.KindLine, File: "/rtl/a.v", Line: 2, Detail: probe.DetailStmt},
		{Name: "__cov_B000001", Kind: probe.KindBranch, File: "/rtl/a.v", Line: 3, Detail: probe.DetailIfTrue},
		{Name: "__cov_B000002", Kind: probe.KindBranch, File: "/rtl/a.v", Line: 5, Detail: probe.DetailElse},
	}
}

const sampleVCD = `$timescale 1ns $end
$scope module top $end
$var reg 1 ! __cov_L000001 $end
$var reg 1 " __cov_B000001 $end
$var reg 1 # __cov_B000002 $end
$var wire 4 $ unrelated_bus $end
$upscope $end
$enddefinitions $end
#0
$dumpvars
x!
x"
x#
b0000 $
$end
#10
1!
1"
#20
b1111 $
#30
`

func TestAnalyzeScalarHits(t *testing.T) {
	hits, warnings, err := Analyze(strings.NewReader(sampleVCD), sampleProbes())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if !hits["__cov_L000001"] {
		t.Errorf("expected __cov_L000001 to be hit")
	}
	if !hits["__cov_B000001"] {
		t.Errorf("expected __cov_B000001 to be hit")
	}
	if hits["__cov_B000002"] {
		t.Errorf("__cov_B000002 never went high, should not be hit")
	}
	if _, declared := hits["__cov_B000002"]; !declared {
		t.Errorf("a declared-but-unhit probe should map to false, not be absent")
	}
}

func TestAnalyzeVectorValue(t *testing.T) {
	vcd := `$var reg 1 ! __cov_L000001 $end
$enddefinitions $end
#0
b0000 !
#10
b0010 !
`
	probes := []probe.Probe{{Name: "__cov_L000001", Kind: probe.KindLine}}
	hits, _, err := Analyze(strings.NewReader(vcd), probes)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !hits["__cov_L000001"] {
		t.Errorf("expected a vector value containing a 1 bit to count as hit")
	}
}

func TestAnalyzeMalformedVarWarns(t *testing.T) {
	vcd := `$var reg 1 ! __cov_L000001
$enddefinitions $end
#0
1!
`
	probes := []probe.Probe{{Name: "__cov_L000001", Kind: probe.KindLine}}
	_, warnings, err := Analyze(strings.NewReader(vcd), probes)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(warnings) == 0 {
		t.Errorf("expected a warning for the malformed $var line")
	}
}

func TestAnalyzeUnknownProbeAbsent(t *testing.T) {
	vcd := `$var reg 1 ! __cov_L000001 $end
$enddefinitions $end
#0
1!
`
	probes := []probe.Probe{
		{Name: "__cov_L000001", Kind: probe.KindLine},
		{Name: "__cov_L000002", Kind: probe.KindLine},
	}
	hits, _, err := Analyze(strings.NewReader(vcd), probes)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if hits["__cov_L000002"] {
		t.Errorf("probe never declared in the dump must not appear as hit")
	}
	if _, ok := hits["__cov_L000002"]; ok {
		t.Errorf("absent probe should not appear in the hits map at all")
	}
}
