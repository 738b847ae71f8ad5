package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleRTL = `module mux2(input sel, input a, input b, output reg y);
always @(*) begin
  if (sel) begin
    y = a;
  end else begin
    y = b;
  end
end
endmodule
`

// buildFakeVCD declares every probe name emitted for sampleRTL; with
// hitFirst it drives only the first dumped probe (the if header's line
// probe) to 1 and leaves every other probe at x. The exact probe names
// are read back from the --dump-probes output so this test doesn't
// hardcode __cov_L/B numbering.
func buildFakeVCD(t *testing.T, probeNames []string, hitFirst bool) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("$timescale 1ns $end\n$scope module top $end\n")
	codes := make(map[string]string, len(probeNames))
	for i, name := range probeNames {
		code := string(rune('!' + i))
		codes[name] = code
		b.WriteString("$var reg 1 " + code + " " + name + " $end\n")
	}
	b.WriteString("$upscope $end\n$enddefinitions $end\n#0\n")
	for i, name := range probeNames {
		val := "x"
		if hitFirst && i == 0 {
			val = "1"
		}
		b.WriteString(val + codes[name] + "\n")
	}
	return b.String()
}

func tempOutput(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("creating temp output: %v", err)
	}
	return f
}

func TestRunMissingRTLDirReturnsExitCode2(t *testing.T) {
	stdout, stderr := tempOutput(t), tempOutput(t)
	code := run(context.Background(), []string{"--rtl-dir", "/nonexistent-dir-xyz"}, stdout, stderr)
	if code != 2 {
		t.Fatalf("expected exit code 2 for missing rtl-dir, got %d", code)
	}
}

func TestRunNoRunAnalyzesExistingVCD(t *testing.T) {
	rtlDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(rtlDir, "mux2.v"), []byte(sampleRTL), 0644); err != nil {
		t.Fatal(err)
	}

	probesPath := filepath.Join(t.TempDir(), "probes.json")
	stdout, stderr := tempOutput(t), tempOutput(t)
	code := run(context.Background(), []string{
		"--rtl-dir", rtlDir,
		"--no-run",
		"--vcd", "/nonexistent.vcd",
		"--dump-probes", probesPath,
	}, stdout, stderr)
	if code != 2 {
		t.Fatalf("expected exit code 2 for a missing --vcd, got %d", code)
	}

	data, err := os.ReadFile(probesPath)
	if err != nil {
		t.Fatalf("expected --dump-probes to be written before the vcd check: %v", err)
	}
	var dumped []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &dumped); err != nil {
		t.Fatalf("parsing dumped probes: %v", err)
	}
	if len(dumped) == 0 {
		t.Fatal("expected at least one probe to be dumped")
	}

	names := make([]string, len(dumped))
	for i, p := range dumped {
		names[i] = p.Name
	}

	vcdPath := filepath.Join(t.TempDir(), "dump.vcd")
	if err := os.WriteFile(vcdPath, []byte(buildFakeVCD(t, names, true)), 0644); err != nil {
		t.Fatal(err)
	}

	jsonPath := filepath.Join(t.TempDir(), "report.json")
	stdout2, stderr2 := tempOutput(t), tempOutput(t)
	code = run(context.Background(), []string{
		"--rtl-dir", rtlDir,
		"--no-run",
		"--vcd", vcdPath,
		"--json", jsonPath,
	}, stdout2, stderr2)
	if code != 0 {
		stderrData, _ := os.ReadFile(stderr2.Name())
		t.Fatalf("expected exit code 0, got %d; stderr: %s", code, stderrData)
	}

	reportData, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("reading json report: %v", err)
	}
	if !strings.Contains(string(reportData), "lines_total") {
		t.Errorf("expected json report schema fields, got: %s", reportData)
	}
}

func TestRunToggleReport(t *testing.T) {
	rtlDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(rtlDir, "mux2.v"), []byte(sampleRTL), 0644); err != nil {
		t.Fatal(err)
	}

	probesPath := filepath.Join(t.TempDir(), "probes.json")
	stdout, stderr := tempOutput(t), tempOutput(t)
	run(context.Background(), []string{
		"--rtl-dir", rtlDir,
		"--no-run",
		"--vcd", "/nonexistent.vcd",
		"--dump-probes", probesPath,
	}, stdout, stderr)

	data, err := os.ReadFile(probesPath)
	if err != nil {
		t.Fatal(err)
	}
	var dumped []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &dumped); err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(dumped))
	for i, p := range dumped {
		names[i] = p.Name
	}

	vcdPath := filepath.Join(t.TempDir(), "dump.vcd")
	if err := os.WriteFile(vcdPath, []byte(buildFakeVCD(t, names, true)), 0644); err != nil {
		t.Fatal(err)
	}

	stdout2, stderr2 := tempOutput(t), tempOutput(t)
	code := run(context.Background(), []string{
		"--rtl-dir", rtlDir,
		"--no-run",
		"--vcd", vcdPath,
		"--toggle-report",
	}, stdout2, stderr2)
	if code != 0 {
		stderrData, _ := os.ReadFile(stderr2.Name())
		t.Fatalf("expected exit code 0, got %d; stderr: %s", code, stderrData)
	}

	out, _ := os.ReadFile(stdout2.Name())
	if !strings.Contains(string(out), "Toggle Coverage") {
		t.Errorf("expected toggle coverage section in stdout, got: %s", out)
	}
	// No pc/instr suffixes configured, so sampling must be skipped.
	if !strings.Contains(string(out), "sampling skipped") {
		t.Errorf("expected sampling-skipped note, got: %s", out)
	}
}
