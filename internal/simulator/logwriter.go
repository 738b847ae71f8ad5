package simulator

import (
	"bufio"
	"context"
	"log/slog"
	"strings"
)

// logWriter is an io.Writer adapter that routes a simulator subprocess's
// output through structured logging, one line at a time, tagged by
// which stage it came from ("compile" or "run").
type logWriter struct {
	logger *slog.Logger
	source string
}

func newLogWriter(logger *slog.Logger, source string) *logWriter {
	return &logWriter{logger: logger, source: source}
}

// Write implements io.Writer, splitting p into lines and logging each
// one. Icarus Verilog prefixes compile errors with the source file and
// line (e.g. "top.v:12: error: ...") but carries no level marker, so
// every line is logged at Warn: compile/run output only ever appears
// when something is worth an operator's attention or the command has
// already failed by the time Wait() returns.
func (lw *logWriter) Write(p []byte) (n int, err error) {
	scanner := bufio.NewScanner(strings.NewReader(string(p)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lw.logger.Log(context.Background(), slog.LevelWarn, line, "source", lw.source)
	}
	return len(p), nil
}
