package sequencer

import (
	"errors"
	"fmt"
	"time"

	"github.com/yoanbernabeu/provisioner/internal/transport"
)

// Step classification errors
var (
	ErrRemoteCommandFailed = errors.New("remote command failed")
	ErrRemoteTimeout       = errors.New("remote command timed out")
	ErrInvalidStep         = errors.New("invalid step")
)

// Step is one provisioning command. The command text is opaque.
type Step struct {
	Index   int
	Name    string
	Command string
	// Timeout of zero means the sequencer default.
	Timeout time.Duration
}

// Label returns the step name, falling back to its command.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Command
}

// StepResult is the record of one attempted step.
type StepResult struct {
	Step   Step
	Result *transport.Result
}

// Success reports whether the remote command exited zero in time.
func (r StepResult) Success() bool {
	return r.Result.Success()
}

// Failure classifies why the step failed, or returns nil on success.
func (r StepResult) Failure() error {
	switch {
	case r.Success():
		return nil
	case r.Result == nil:
		return fmt.Errorf("%w: no result", ErrRemoteCommandFailed)
	case r.Result.Err != nil:
		return r.Result.Err
	case r.Result.TimedOut && r.Step.Timeout > 0:
		return fmt.Errorf("%w after %s", ErrRemoteTimeout, r.Step.Timeout)
	case r.Result.TimedOut:
		return ErrRemoteTimeout
	default:
		return fmt.Errorf("%w: exit status %d", ErrRemoteCommandFailed, r.Result.ExitCode)
	}
}

// RunOutcome is the final record of a run. Results is always a prefix of
// the steps that were given, and NotAttempted holds the rest.
type RunOutcome struct {
	RunID        string
	Results      []StepResult
	NotAttempted []Step
	Success      bool
	State        State
	Started      time.Time
	Finished     time.Time
}

// FailedStep returns the result that halted the run, or nil.
func (o *RunOutcome) FailedStep() *StepResult {
	if o == nil || o.Success || len(o.Results) == 0 {
		return nil
	}
	last := &o.Results[len(o.Results)-1]
	if last.Success() {
		return nil
	}
	return last
}

// Duration is the wall time of the run.
func (o *RunOutcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}
