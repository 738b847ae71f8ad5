package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "rtlcov.yaml")

	yamlBody := `
tb: tb/top_tb.v
rtl_dir: rtl
vcd: out/dump.vcd
top_uncovered: 25
compile_cmd: iverilog
run_cmd: vvp
`
	if err := os.WriteFile(configFile, []byte(yamlBody), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadFile(configFile)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.TB != "tb/top_tb.v" {
		t.Errorf("TB = %q, want %q", cfg.TB, "tb/top_tb.v")
	}
	if cfg.RTLDir != "rtl" {
		t.Errorf("RTLDir = %q, want %q", cfg.RTLDir, "rtl")
	}
	if cfg.TopUncovered != 25 {
		t.Errorf("TopUncovered = %d, want 25", cfg.TopUncovered)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/rtlcov.yaml")
	if err == nil {
		t.Fatal("expected an error for a nonexistent config file")
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "rtlcov.yaml")
	if err := os.WriteFile(configFile, []byte("tb: [unterminated"), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	if _, err := LoadFile(configFile); err == nil {
		t.Fatal("expected an error for invalid YAML")
	}
}

func TestMergePrecedence(t *testing.T) {
	base := Defaults()
	fromFile := Config{RTLDir: "rtl", TopUncovered: 10}
	merged := Merge(base, fromFile)
	if merged.TopUncovered != 10 {
		t.Errorf("expected config file to override default TopUncovered, got %d", merged.TopUncovered)
	}

	fromFlags := Config{TopUncovered: 5}
	final := Merge(merged, fromFlags)
	if final.TopUncovered != 5 {
		t.Errorf("expected CLI flag to override config file TopUncovered, got %d", final.TopUncovered)
	}
	if final.RTLDir != "rtl" {
		t.Errorf("expected RTLDir from config file to survive when flags don't set it, got %q", final.RTLDir)
	}
}

func TestMergeToggleFields(t *testing.T) {
	base := Defaults()
	if base.ClockSignal != ".clk" {
		t.Fatalf("expected default clock suffix .clk, got %q", base.ClockSignal)
	}

	merged := Merge(base, Config{ToggleReport: true, PCSignal: ".pc", InstrSignal: ".instr"})
	if !merged.ToggleReport {
		t.Errorf("expected ToggleReport to merge through")
	}
	if merged.PCSignal != ".pc" || merged.InstrSignal != ".instr" {
		t.Errorf("expected sampling suffixes to merge, got %q/%q", merged.PCSignal, merged.InstrSignal)
	}
	if merged.ClockSignal != ".clk" {
		t.Errorf("expected unset clock suffix to keep its default, got %q", merged.ClockSignal)
	}
}

func TestValidateMissingInputs(t *testing.T) {
	if err := Validate(Config{}); err != ErrMissingRTLDir {
		t.Errorf("expected ErrMissingRTLDir for empty config, got %v", err)
	}

	if err := Validate(Config{RTLDir: "rtl"}); err != ErrMissingTB {
		t.Errorf("expected ErrMissingTB when tb is unset and --no-run absent, got %v", err)
	}

	if err := Validate(Config{RTLDir: "rtl", NoRun: true}); err != ErrMissingVCD {
		t.Errorf("expected ErrMissingVCD when --no-run set without --vcd, got %v", err)
	}

	if err := Validate(Config{RTLDir: "rtl", NoRun: true, VCD: "dump.vcd"}); err != nil {
		t.Errorf("expected no error for --no-run with --vcd set, got %v", err)
	}

	if err := Validate(Config{RTLDir: "rtl", TB: "tb.v"}); err != nil {
		t.Errorf("expected no error when tb and rtl-dir are both set, got %v", err)
	}
}
