// Package config loads and validates the settings that drive one
// rtlcov run: the CLI flags plus an optional YAML sidecar that
// pre-populates them.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved set of inputs for one run: defaults,
// then an optional --config file, then explicit flags, applied in that
// order so flags always win.
type Config struct {
	TB           string `yaml:"tb"`
	RTLDir       string `yaml:"rtl_dir"`
	VCD          string `yaml:"vcd"`
	NoRun        bool   `yaml:"no_run"`
	WorkDir      string `yaml:"work_dir"`
	JSON         string `yaml:"json"`
	HTML         string `yaml:"html"`
	DumpProbes   string `yaml:"dump_probes"`
	TopUncovered int    `yaml:"top_uncovered"`

	CompileCmd string `yaml:"compile_cmd"`
	RunCmd     string `yaml:"run_cmd"`

	// Toggle/functional side report (separate from line/branch
	// coverage; reads the same VCD a second time).
	ToggleReport bool   `yaml:"toggle_report"`
	IncludeTB    bool   `yaml:"include_tb"`
	ScopePrefix  string `yaml:"scope_prefix"`
	ClockSignal  string `yaml:"clk_signal"`
	PCSignal     string `yaml:"pc_signal"`
	InstrSignal  string `yaml:"instr_signal"`

	Verbose   bool   `yaml:"verbose"`
	LogFormat string `yaml:"log_format"`
}

// Defaults returns the baseline Config applied before any --config file
// or flag is considered.
func Defaults() Config {
	return Config{
		TopUncovered: 50,
		CompileCmd:   "iverilog",
		RunCmd:       "vvp",
		ClockSignal:  ".clk",
		LogFormat:    "text",
	}
}

// LoadFile reads and parses an optional YAML sidecar. It checks only
// that the file is valid YAML for Config; field values are not
// validated here (Validate runs on the merged result). A missing
// --config flag is not an error at this layer; callers simply don't
// call LoadFile.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Merge overlays override onto base: any non-zero field in override
// replaces base's value. Used twice per run — once to overlay an
// optional --config file onto Defaults(), once to overlay explicit CLI
// flags onto that result — so the precedence is always
// defaults < config file < command line.
func Merge(base, override Config) Config {
	out := base
	if override.TB != "" {
		out.TB = override.TB
	}
	if override.RTLDir != "" {
		out.RTLDir = override.RTLDir
	}
	if override.VCD != "" {
		out.VCD = override.VCD
	}
	if override.NoRun {
		out.NoRun = true
	}
	if override.WorkDir != "" {
		out.WorkDir = override.WorkDir
	}
	if override.JSON != "" {
		out.JSON = override.JSON
	}
	if override.HTML != "" {
		out.HTML = override.HTML
	}
	if override.DumpProbes != "" {
		out.DumpProbes = override.DumpProbes
	}
	if override.TopUncovered != 0 {
		out.TopUncovered = override.TopUncovered
	}
	if override.CompileCmd != "" {
		out.CompileCmd = override.CompileCmd
	}
	if override.RunCmd != "" {
		out.RunCmd = override.RunCmd
	}
	if override.ToggleReport {
		out.ToggleReport = true
	}
	if override.IncludeTB {
		out.IncludeTB = true
	}
	if override.ScopePrefix != "" {
		out.ScopePrefix = override.ScopePrefix
	}
	if override.ClockSignal != "" {
		out.ClockSignal = override.ClockSignal
	}
	if override.PCSignal != "" {
		out.PCSignal = override.PCSignal
	}
	if override.InstrSignal != "" {
		out.InstrSignal = override.InstrSignal
	}
	if override.Verbose {
		out.Verbose = true
	}
	if override.LogFormat != "" {
		out.LogFormat = override.LogFormat
	}
	return out
}

// Sentinel validation errors, one fixed message per missing required
// field, so callers can assert on which requirement failed.
var (
	ErrMissingRTLDir = fmt.Errorf("rtl-dir is required")
	ErrMissingTB     = fmt.Errorf("tb is required unless --no-run is set together with an existing --vcd")
	ErrMissingVCD    = fmt.Errorf("vcd is required")
)

// Validate checks that cfg has enough information to run. It does not
// check the filesystem; callers stat paths themselves so the exact
// missing-input message can name the path.
func Validate(cfg Config) error {
	if cfg.RTLDir == "" {
		return ErrMissingRTLDir
	}
	if cfg.NoRun {
		if cfg.VCD == "" {
			return ErrMissingVCD
		}
		return nil
	}
	if cfg.TB == "" {
		return ErrMissingTB
	}
	return nil
}
