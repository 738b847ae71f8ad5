// Package simulator invokes an external Verilog-2005-capable compiler
// and runner on the instrumented RTL plus the user's testbench,
// surfacing both streams through structured logging and failing fast
// on a non-zero exit. It never inspects the VCD itself; that is
// internal/vcd's job once the run completes.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/borud/broker"
)

const publishTimeout = 1 * time.Second

// Driver invokes the configured compile/run command templates against
// instrumented RTL and a testbench, blocking until the simulation
// completes. The subprocess is the pipeline's only blocking call; it
// runs to completion before any VCD parsing begins.
type Driver struct {
	CompileCmd string // defaults to "iverilog"
	RunCmd     string // defaults to "vvp"
	Dir        string // working directory for both commands (repo root)

	Logger *slog.Logger
	Broker *broker.Broker
}

// New returns a Driver with the Icarus Verilog defaults. Any tool
// that accepts "-o OUT testbench rtl..." to compile and "OUT" to run
// can be substituted via the command fields.
func New(dir string, logger *slog.Logger, b *broker.Broker) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		CompileCmd: "iverilog",
		RunCmd:     "vvp",
		Dir:        dir,
		Logger:     logger,
		Broker:     b,
	}
}

// Run compiles out from testbench+rtl paths, then executes it,
// returning once the simulation has finished writing its VCD. Compile
// receives "-o out" followed by the testbench path then every RTL
// path; run executes out with no further arguments.
func (d *Driver) Run(ctx context.Context, out string, tbPath string, rtlPaths []string) error {
	compileArgs := append([]string{"-o", out, tbPath}, rtlPaths...)
	d.publish(EventCompileStarted{Cmd: d.compileCmd(), Args: compileArgs})
	if err := d.exec(ctx, d.compileCmd(), compileArgs, "compile"); err != nil {
		d.publish(EventProcessError{Stage: "compile", Error: err})
		return err
	}
	d.publish(EventCompileFinished{Cmd: d.compileCmd()})

	runArgs := []string{out}
	d.publish(EventRunStarted{Cmd: d.runCmd(), Args: runArgs})
	if err := d.exec(ctx, d.runCmd(), runArgs, "run"); err != nil {
		d.publish(EventProcessError{Stage: "run", Error: err})
		return err
	}
	d.publish(EventRunFinished{})
	return nil
}

func (d *Driver) compileCmd() string {
	if d.CompileCmd != "" {
		return d.CompileCmd
	}
	return "iverilog"
}

func (d *Driver) runCmd() string {
	if d.RunCmd != "" {
		return d.RunCmd
	}
	return "vvp"
}

// exec runs name with args in d.Dir, routing both stdout and stderr
// through a logWriter tagged with source so operators can tell compile
// noise from run noise in a single log stream.
func (d *Driver) exec(ctx context.Context, name string, args []string, source string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = d.Dir
	cmd.Stdout = newLogWriter(d.Logger, source)
	cmd.Stderr = newLogWriter(d.Logger, source)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s failed: %w", source, err)
	}
	return nil
}

func (d *Driver) publish(evt any) {
	if d.Broker == nil {
		return
	}
	_ = d.Broker.Publish("/pipeline", evt, publishTimeout)
}
