package sequencer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yoanbernabeu/provisioner/internal/constants"
	"github.com/yoanbernabeu/provisioner/internal/security"
	"github.com/yoanbernabeu/provisioner/internal/transport"
)

// Executor runs one remote command. *transport.Transport implements it.
type Executor interface {
	Available(target transport.Target) error
	Execute(ctx context.Context, target transport.Target, command string, timeout time.Duration) (*transport.Result, error)
}

// Sequencer runs steps strictly in order and halts on the first failure.
type Sequencer struct {
	exec           Executor
	observer       Observer
	defaultTimeout time.Duration
	secrets        []string
	newRunID       func() string
	now            func() time.Time
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithObserver adds an observer. Observers are notified in the order added.
func WithObserver(o Observer) Option {
	return func(s *Sequencer) {
		if existing, ok := s.observer.(Observers); ok {
			s.observer = append(existing, o)
			return
		}
		s.observer = Observers{o}
	}
}

// WithDefaultTimeout sets the timeout for steps that do not carry one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

// WithSecrets registers values to mask in events and results besides the
// target credential.
func WithSecrets(secrets ...string) Option {
	return func(s *Sequencer) {
		s.secrets = append(s.secrets, secrets...)
	}
}

// New creates a Sequencer around exec.
func New(exec Executor, opts ...Option) *Sequencer {
	s := &Sequencer{
		exec:           exec,
		observer:       Observers{},
		defaultTimeout: constants.DefaultStepTimeout,
		newRunID:       uuid.NewString,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes steps against target. The returned error is reserved for
// problems found before any step runs: invalid input or no usable
// transport. Everything after that is reported in the RunOutcome.
func (s *Sequencer) Run(ctx context.Context, target transport.Target, steps []Step) (*RunOutcome, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	steps, err := s.prepare(steps)
	if err != nil {
		return nil, err
	}
	if err := s.exec.Available(target); err != nil {
		return nil, err
	}

	redactor := security.NewRedactor(append([]string{target.Credential.Reveal()}, s.secrets...)...)
	machine := NewMachine(len(steps))
	outcome := &RunOutcome{
		RunID:   s.newRunID(),
		Results: make([]StepResult, 0, len(steps)),
		Started: s.now(),
	}
	total := len(steps)
	emit := func(e Event) {
		e.RunID = outcome.RunID
		e.Total = total
		e.Time = s.now()
		s.observer.Notify(e)
	}

	emit(Event{Kind: RunStarted})
	if err := machine.Start(); err != nil {
		return nil, err
	}

	for !machine.Done() {
		step := steps[machine.Index()]
		command := redactor.RedactCommand(step.Command)
		emit(Event{Kind: StepStarted, Index: step.Index, Name: step.Name, Command: command})

		result := s.execute(ctx, target, step)
		result.Stdout = redactor.Redact(result.Stdout)
		result.Stderr = redactor.Redact(result.Stderr)

		stepResult := StepResult{Step: step, Result: result}
		outcome.Results = append(outcome.Results, stepResult)
		emit(Event{Kind: StepFinished, Index: step.Index, Name: step.Name, Command: command, Result: result})

		if stepResult.Success() {
			err = machine.Advance()
		} else {
			err = machine.Fail()
		}
		if err != nil {
			return nil, err
		}
	}

	if machine.State() == StateFailed {
		outcome.NotAttempted = steps[machine.Index()+1:]
		for _, skipped := range outcome.NotAttempted {
			emit(Event{
				Kind:    StepSkipped,
				Index:   skipped.Index,
				Name:    skipped.Name,
				Command: redactor.RedactCommand(skipped.Command),
			})
		}
	}

	outcome.State = machine.State()
	outcome.Success = outcome.State == StateSucceeded
	outcome.Finished = s.now()
	emit(Event{Kind: RunFinished, Outcome: outcome})

	return outcome, nil
}

// prepare validates steps and fills in indexes and timeouts on a copy.
func (s *Sequencer) prepare(steps []Step) ([]Step, error) {
	prepared := make([]Step, len(steps))
	for i, step := range steps {
		if strings.TrimSpace(step.Command) == "" {
			return nil, fmt.Errorf("%w %d: command is required", ErrInvalidStep, i+1)
		}
		if step.Timeout < 0 {
			return nil, fmt.Errorf("%w %d: negative timeout %s", ErrInvalidStep, i+1, step.Timeout)
		}
		step.Index = i
		if step.Timeout == 0 {
			step.Timeout = s.defaultTimeout
		}
		prepared[i] = step
	}
	return prepared, nil
}

// execute runs one step and always returns a result. Errors surfaced by
// the executor become the step's failure.
func (s *Sequencer) execute(ctx context.Context, target transport.Target, step Step) *transport.Result {
	if err := ctx.Err(); err != nil {
		return &transport.Result{ExitCode: -1, Err: fmt.Errorf("run cancelled before step %d: %w", step.Index+1, err)}
	}

	result, err := s.exec.Execute(ctx, target, step.Command, step.Timeout)
	if err != nil {
		if result == nil {
			result = &transport.Result{ExitCode: -1}
		}
		if result.Err == nil {
			result.Err = err
		}
	}
	if result == nil {
		result = &transport.Result{ExitCode: -1, Err: fmt.Errorf("%w: executor returned no result", ErrRemoteCommandFailed)}
	}
	return result
}
