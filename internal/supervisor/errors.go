package supervisor

import (
	"errors"
	"fmt"
)

var errStopping = errors.New("fleet is stopping")

// CheckFailedError aborts the fleet: the smoke-test worker exited abnormally
// and nothing else was spawned.
type CheckFailedError struct {
	Worker   string
	ExitCode int
	Err      error
}

func (e *CheckFailedError) Error() string {
	return fmt.Sprintf("check worker %s failed (exit code %d): %v", e.Worker, e.ExitCode, e.Err)
}

func (e *CheckFailedError) Unwrap() error { return e.Err }

// WorkerCrashedError records a fleet worker that exited abnormally on its
// own. It is reported in the Summary and never aborts the siblings.
type WorkerCrashedError struct {
	Worker   string
	PID      int
	ExitCode int
	Err      error
}

func (e *WorkerCrashedError) Error() string {
	return fmt.Sprintf("worker %s (pid %d) crashed with exit code %d: %v", e.Worker, e.PID, e.ExitCode, e.Err)
}

func (e *WorkerCrashedError) Unwrap() error { return e.Err }
