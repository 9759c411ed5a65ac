package transport

import "errors"

// Selection errors
var (
	// ErrTransportUnavailable means no strategy can run in this environment.
	ErrTransportUnavailable = errors.New("no remote execution strategy available")
	ErrInvalidInput         = errors.New("invalid execution input")
)

// Session errors
var (
	ErrAuthRejected     = errors.New("authentication rejected")
	ErrHostKey          = errors.New("host key verification failed")
	ErrConnectionFailed = errors.New("connection failed")
	ErrSessionClosed    = errors.New("session closed before command completed")
	ErrResourceCleanup  = errors.New("failed to release session resources")
)
