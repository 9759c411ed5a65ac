package cmd

import "errors"

// Process exit codes.
const (
	ExitOK                   = 0
	ExitFailure              = 1
	ExitInvalidConfig        = 2
	ExitTransportUnavailable = 3
)

// exitError carries a process exit code. reported is set when the failure
// was already printed and Execute must stay quiet.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return ExitFailure
}
