package executor

import "fmt"

// errPaused signals that execution stopped at an approval gate. It
// propagates up through nested recipes to the run entry point, which
// reports the pause to the caller instead of treating it as a failure.
type errPaused struct {
	Stage string
}

func (e *errPaused) Error() string {
	return fmt.Sprintf("paused for approval at stage %q", e.Stage)
}

// errSkipRemaining signals an on_error skip_remaining policy: the
// failed step is recorded and every step after it is skipped, then the
// run completes successfully.
type errSkipRemaining struct {
	StepID string
	Cause  error
}

func (e *errSkipRemaining) Error() string {
	return fmt.Sprintf("step %q failed, skipping remaining steps: %v", e.StepID, e.Cause)
}

func (e *errSkipRemaining) Unwrap() error {
	return e.Cause
}
