package sequencer

import (
	"context"
	"time"

	"github.com/yoanbernabeu/provisioner/internal/transport"
)

// MockExecutor is a test double that records commands and returns configured results.
type MockExecutor struct {
	AvailableFunc func(target transport.Target) error
	ExecuteFunc   func(ctx context.Context, target transport.Target, command string, timeout time.Duration) (*transport.Result, error)
	Commands      []string
	Timeouts      []time.Duration
}

// Available delegates to AvailableFunc.
func (m *MockExecutor) Available(target transport.Target) error {
	if m.AvailableFunc != nil {
		return m.AvailableFunc(target)
	}
	return nil
}

// Execute records the command and delegates to ExecuteFunc.
func (m *MockExecutor) Execute(ctx context.Context, target transport.Target, command string, timeout time.Duration) (*transport.Result, error) {
	m.Commands = append(m.Commands, command)
	m.Timeouts = append(m.Timeouts, timeout)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, target, command, timeout)
	}
	return &transport.Result{Stdout: "", Stderr: "", ExitCode: 0, Strategy: "mock"}, nil
}
