// Command rtlcov is the CLI entrypoint for the source-level RTL
// coverage engine: it instruments a directory of Verilog sources,
// optionally drives an external simulator against a user testbench,
// analyzes the resulting VCD, and renders console/JSON/HTML coverage
// reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/borud/broker"

	"rtlcov/internal/config"
	"rtlcov/internal/coverage"
	"rtlcov/internal/instrument"
	"rtlcov/internal/probe"
	"rtlcov/internal/report"
	"rtlcov/internal/simulator"
	"rtlcov/internal/vcd"
)

const version = "0.1.0"

func main() {
	ctx := context.Background()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr *os.File) int {
	flags := flag.NewFlagSet("rtlcov", flag.ContinueOnError)
	flags.SetOutput(stderr)

	tb := flags.String("tb", "", "testbench file")
	rtlDir := flags.String("rtl-dir", "", "directory whose *.v/*.sv files are instrumented")
	vcdPath := flags.String("vcd", "", "VCD produced by the testbench (read with --no-run, written otherwise)")
	noRun := flags.Bool("no-run", false, "skip simulator invocation; analyze an existing VCD")
	workDir := flags.String("work", "", "persist instrumented RTL in DIR; default is a temporary directory, removed on exit")
	jsonPath := flags.String("json", "", "write a JSON coverage report to PATH")
	htmlPath := flags.String("html", "", "write an HTML coverage report to PATH")
	dumpProbes := flags.String("dump-probes", "", "write the full probe list (pre-simulation) as JSON to PATH")
	topUncovered := flags.Int("top-uncovered", 50, "cap the uncovered-probe lists to N entries")
	compileCmd := flags.String("compile-cmd", "", "simulator compile command (default iverilog)")
	runCmd := flags.String("run-cmd", "", "simulator run command (default vvp)")
	toggleReport := flags.Bool("toggle-report", false, "also emit per-bit toggle coverage and instruction histograms")
	includeTB := flags.Bool("include-tb", false, "with --scope-prefix, also count signals outside that prefix (testbench side) in the toggle report")
	scopePrefix := flags.String("scope-prefix", "", "restrict toggle coverage to scopes under this prefix")
	clkSignal := flags.String("clk-signal", "", "hierarchical suffix of the sampling clock (default .clk)")
	pcSignal := flags.String("pc-signal", "", "hierarchical suffix of the program counter; enables instruction sampling")
	instrSignal := flags.String("instr-signal", "", "hierarchical suffix of the instruction word; enables instruction sampling")
	configPath := flags.String("config", "", "optional YAML config file pre-populating the flags above")
	verbose := flags.Bool("verbose", false, "verbose progress output and debug logging")
	verboseShort := flags.Bool("v", false, "shorthand for --verbose")
	logFormat := flags.String("log-format", "", "text or json (default text)")
	showVersion := flags.Bool("version", false, "show version information")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintf(stderr, "error parsing flags: %v\n", err)
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "rtlcov version %s\n", version)
		return 0
	}

	cfg := config.Defaults()
	if *configPath != "" {
		fromFile, err := config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 2
		}
		cfg = config.Merge(cfg, fromFile)
	}
	cfg = config.Merge(cfg, flagOverrides(flags, flagValues{
		tb: tb, rtlDir: rtlDir, vcd: vcdPath, noRun: noRun, work: workDir,
		json: jsonPath, html: htmlPath, dumpProbes: dumpProbes, topUncovered: topUncovered,
		compileCmd: compileCmd, runCmd: runCmd,
		toggleReport: toggleReport, includeTB: includeTB, scopePrefix: scopePrefix,
		clkSignal: clkSignal, pcSignal: pcSignal, instrSignal: instrSignal,
		verbose: verbose, verboseShort: verboseShort, logFormat: logFormat,
	}))

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	logger := newLogger(stderr, cfg)
	b := broker.New(broker.Config{
		DownStreamChanLen:  16,
		PublishChanLen:     16,
		SubscribeChanLen:   16,
		UnsubscribeChanLen: 16,
	})
	if cfg.Verbose {
		subscribeProgress(b, stdout, logger)
	}

	if _, err := os.Stat(cfg.RTLDir); err != nil {
		fmt.Fprintf(stderr, "error: rtl directory %s: %v\n", cfg.RTLDir, err)
		return 2
	}
	if !cfg.NoRun {
		if _, err := os.Stat(cfg.TB); err != nil {
			fmt.Fprintf(stderr, "error: testbench %s: %v\n", cfg.TB, err)
			return 2
		}
	}

	results, err := instrument.InstrumentDir(cfg.RTLDir)
	if err != nil {
		fmt.Fprintf(stderr, "error instrumenting rtl: %v\n", err)
		return 1
	}

	allProbes := collectProbes(results)
	if cfg.DumpProbes != "" {
		if err := writeProbeDump(cfg.DumpProbes, allProbes); err != nil {
			fmt.Fprintf(stderr, "error writing --dump-probes: %v\n", err)
			return 1
		}
	}

	work := cfg.WorkDir
	cleanup := func() {}
	if work == "" {
		tmp, err := os.MkdirTemp("", "rtlcov-")
		if err != nil {
			fmt.Fprintf(stderr, "error creating work directory: %v\n", err)
			return 1
		}
		work = tmp
		cleanup = func() { os.RemoveAll(tmp) }
	}
	defer cleanup()

	instrumentedPaths, err := writeInstrumented(work, results)
	if err != nil {
		fmt.Fprintf(stderr, "error writing instrumented rtl: %v\n", err)
		return 1
	}

	if !cfg.NoRun {
		drv := simulator.New("", logger, b)
		if cfg.CompileCmd != "" {
			drv.CompileCmd = cfg.CompileCmd
		}
		if cfg.RunCmd != "" {
			drv.RunCmd = cfg.RunCmd
		}
		outBin := filepath.Join(work, "sim.out")
		if err := drv.Run(ctx, outBin, cfg.TB, instrumentedPaths); err != nil {
			fmt.Fprintf(stderr, "simulator failed: %v\n", err)
			return 1
		}
	}

	if _, err := os.Stat(cfg.VCD); err != nil {
		fmt.Fprintf(stderr, "error: vcd %s: %v\n", cfg.VCD, err)
		return 2
	}

	f, err := os.Open(cfg.VCD)
	if err != nil {
		fmt.Fprintf(stderr, "error opening vcd: %v\n", err)
		return 1
	}
	hits, warnings, err := vcd.Analyze(f, allProbes)
	f.Close()
	if err != nil {
		fmt.Fprintf(stderr, "error analyzing vcd: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		logger.Warn("vcd definition skipped", "reason", w)
	}
	logMissingProbes(logger, allProbes, hits)

	rep := coverage.Build(results, hits)

	report.Console(stdout, rep, report.NewConsoleOptions())

	if cfg.JSON != "" {
		if err := writeJSON(cfg.JSON, rep); err != nil {
			fmt.Fprintf(stderr, "error writing --json: %v\n", err)
			return 1
		}
	}
	if cfg.HTML != "" {
		if err := writeHTML(cfg.HTML, rep, results); err != nil {
			fmt.Fprintf(stderr, "error writing --html: %v\n", err)
			return 1
		}
	}

	top := rep.TopUncovered(cfg.TopUncovered)
	if len(top) > 0 {
		fmt.Fprintf(stdout, "\nTop %d uncovered sites:\n", len(top))
		for _, p := range top {
			fmt.Fprintf(stdout, "  %s:%d  %s  (%s)\n", p.File, p.Line, p.Detail, p.Name)
		}
	}

	if cfg.ToggleReport {
		if err := runToggleReport(stdout, logger, cfg); err != nil {
			fmt.Fprintf(stderr, "error running toggle report: %v\n", err)
			return 1
		}
	}

	return 0
}

// runToggleReport re-reads the VCD for the per-bit toggle and
// instruction-sampling side report. Separate pass on purpose: the
// probe scan short-circuits once every probe has been seen high,
// while toggle coverage has to read the whole dump.
func runToggleReport(stdout *os.File, logger *slog.Logger, cfg config.Config) error {
	f, err := os.Open(cfg.VCD)
	if err != nil {
		return fmt.Errorf("opening vcd: %w", err)
	}
	defer f.Close()

	opts := vcd.ToggleOptions{
		IncludeTB:   cfg.IncludeTB,
		ScopePrefix: cfg.ScopePrefix,
		Clock:       cfg.ClockSignal,
		PC:          cfg.PCSignal,
		Instr:       cfg.InstrSignal,
	}
	res, warnings, err := vcd.AnalyzeToggle(f, opts)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warn("vcd definition skipped", "reason", w)
	}

	fmt.Fprintln(stdout)
	report.Toggle(stdout, res, report.ToggleOptions{TopSignals: cfg.TopUncovered, TopScopes: 20})
	return nil
}

// flagValues bundles the parsed flag pointers so flagOverrides doesn't
// need an arm-long parameter list.
type flagValues struct {
	tb, rtlDir, vcd              *string
	noRun                        *bool
	work, json, html, dumpProbes *string
	topUncovered                 *int
	compileCmd, runCmd           *string
	toggleReport, includeTB      *bool
	scopePrefix, clkSignal       *string
	pcSignal, instrSignal        *string
	verbose, verboseShort        *bool
	logFormat                    *string
}

// flagOverrides builds a config.Config containing only the flags the
// user actually set (non-zero), so config.Merge's "non-zero field
// wins" rule implements "flags override the config file" without
// flags silently re-applying their own zero-value defaults over a
// config file's explicit settings.
func flagOverrides(flags *flag.FlagSet, v flagValues) config.Config {
	var c config.Config
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tb":
			c.TB = *v.tb
		case "rtl-dir":
			c.RTLDir = *v.rtlDir
		case "vcd":
			c.VCD = *v.vcd
		case "no-run":
			c.NoRun = *v.noRun
		case "work":
			c.WorkDir = *v.work
		case "json":
			c.JSON = *v.json
		case "html":
			c.HTML = *v.html
		case "dump-probes":
			c.DumpProbes = *v.dumpProbes
		case "top-uncovered":
			c.TopUncovered = *v.topUncovered
		case "compile-cmd":
			c.CompileCmd = *v.compileCmd
		case "run-cmd":
			c.RunCmd = *v.runCmd
		case "toggle-report":
			c.ToggleReport = *v.toggleReport
		case "include-tb":
			c.IncludeTB = *v.includeTB
		case "scope-prefix":
			c.ScopePrefix = *v.scopePrefix
		case "clk-signal":
			c.ClockSignal = *v.clkSignal
		case "pc-signal":
			c.PCSignal = *v.pcSignal
		case "instr-signal":
			c.InstrSignal = *v.instrSignal
		case "verbose", "v":
			c.Verbose = true
		case "log-format":
			c.LogFormat = *v.logFormat
		}
	})
	if *v.verbose || *v.verboseShort {
		c.Verbose = true
	}
	return c
}

func newLogger(stderr *os.File, cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(stderr, opts)
	} else {
		handler = slog.NewTextHandler(stderr, opts)
	}
	return slog.New(handler)
}

// subscribeProgress prints a progress line for each pipeline lifecycle
// event when --verbose is set.
func subscribeProgress(b *broker.Broker, stdout *os.File, logger *slog.Logger) {
	sub, err := b.Subscribe("/pipeline")
	if err != nil {
		logger.Warn("failed to subscribe to pipeline events", "error", err)
		return
	}
	go func() {
		for msg := range sub.Messages() {
			switch evt := msg.Payload.(type) {
			case simulator.EventCompileStarted:
				fmt.Fprintf(stdout, "[compile] %s %v\n", evt.Cmd, evt.Args)
			case simulator.EventCompileFinished:
				fmt.Fprintln(stdout, "[compile] done")
			case simulator.EventRunStarted:
				fmt.Fprintf(stdout, "[run] %s %v\n", evt.Cmd, evt.Args)
			case simulator.EventRunFinished:
				fmt.Fprintln(stdout, "[run] done")
			case simulator.EventProcessError:
				fmt.Fprintf(stdout, "[%s] error: %v\n", evt.Stage, evt.Error)
			}
		}
	}()
}

func collectProbes(results []instrument.FileResult) []probe.Probe {
	var all []probe.Probe
	for _, r := range results {
		all = append(all, r.Probes...)
	}
	return all
}

func writeInstrumented(workDir string, results []instrument.FileResult) ([]string, error) {
	var paths []string
	for _, r := range results {
		name := filepath.Base(r.Path)
		dst := filepath.Join(workDir, name)
		if err := os.WriteFile(dst, []byte(r.Instrumented), 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", dst, err)
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

// logMissingProbes warns once per run with an aggregate count of
// probes the VCD never declared at all (the testbench's $dumpvars
// depth didn't reach them), rather than one warning per occurrence.
// Missing probes are still counted as uncovered.
func logMissingProbes(logger *slog.Logger, all []probe.Probe, hits map[string]bool) {
	missing := 0
	for _, p := range all {
		if _, seen := hits[p.Name]; !seen {
			missing++
		}
	}
	if missing > 0 {
		logger.Warn("probes not declared in vcd (treated as uncov)", "count", missing, "total", len(all))
	}
}

func writeProbeDump(path string, probes []probe.Probe) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	return report.JSONProbes(f, probes)
}

func writeJSON(path string, rep coverage.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	return report.JSON(f, rep)
}

func writeHTML(path string, rep coverage.Report, results []instrument.FileResult) error {
	sources := make(map[string]string, len(results))
	for _, r := range results {
		sources[r.Path] = r.Source
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	return report.HTML(f, rep, sources)
}
