package simulator

// Lifecycle events published to the "/pipeline" broker topic while the
// driver runs. Publishing is fire-and-forget; the CLI subscribes to
// render progress lines when --verbose is set.

// EventCompileStarted is published right before the compile command runs.
type EventCompileStarted struct {
	Cmd  string
	Args []string
}

// EventCompileFinished is published once the compile command exits
// successfully.
type EventCompileFinished struct {
	Cmd string
}

// EventRunStarted is published right before the compiled simulation
// binary is executed.
type EventRunStarted struct {
	Cmd  string
	Args []string
}

// EventRunFinished is published once the simulation run exits
// successfully.
type EventRunFinished struct{}

// EventProcessError is published when either the compile or run stage
// fails; Stage distinguishes which one.
type EventProcessError struct {
	Stage string // "compile" or "run"
	Error error
}
