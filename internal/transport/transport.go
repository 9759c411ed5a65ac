package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoanbernabeu/provisioner/internal/constants"
	"github.com/yoanbernabeu/provisioner/internal/security"
)

// Secret holds a credential. Every fmt verb prints the mask instead of the
// value; call Reveal to get the plaintext.
type Secret string

func (s Secret) String() string   { return constants.Mask }
func (s Secret) GoString() string { return strconv.Quote(constants.Mask) }

// Format implements fmt.Formatter so width, flags and unusual verbs such
// as %x or %d print the mask too.
func (s Secret) Format(f fmt.State, verb rune) {
	if verb == 'v' && f.Flag('#') {
		fmt.Fprint(f, s.GoString())
		return
	}
	fmt.Fprint(f, constants.Mask)
}

// Reveal returns the plaintext credential.
func (s Secret) Reveal() string { return string(s) }

// Target is the remote host a command runs against.
type Target struct {
	Host       string
	User       string
	Port       int
	Credential Secret
	// KnownHosts is a known_hosts file used to verify the host key.
	KnownHosts            string
	InsecureIgnoreHostKey bool
}

// Validate checks the fields every strategy needs.
func (t Target) Validate() error {
	if t.Host == "" {
		return fmt.Errorf("%w: target host is required", ErrInvalidInput)
	}
	if t.User == "" {
		return fmt.Errorf("%w: target user is required", ErrInvalidInput)
	}
	if t.Credential == "" {
		return fmt.Errorf("%w: target credential is required", ErrInvalidInput)
	}
	if t.Port < 0 || t.Port > 65535 {
		return fmt.Errorf("%w: invalid target port %d", ErrInvalidInput, t.Port)
	}
	return nil
}

// Address returns host:port, defaulting to port 22.
func (t Target) Address() string {
	return net.JoinHostPort(strings.Trim(t.Host, "[]"), strconv.Itoa(t.port()))
}

func (t Target) port() int {
	if t.Port == 0 {
		return constants.DefaultSSHPort
	}
	return t.Port
}

// Result is what one remote command produced.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// TimedOut is set when the command was stopped at its deadline.
	TimedOut bool
	Elapsed  time.Duration
	Strategy string
	// Err is a transport failure (connection, authentication, cancellation).
	// A non-zero exit status is not an error.
	Err error
}

// Success reports whether the remote process exited with status zero.
func (r *Result) Success() bool {
	return r != nil && r.Err == nil && !r.TimedOut && r.ExitCode == 0
}

// Capability is the outcome of a strategy's local capability probe.
type Capability int

const (
	Unavailable Capability = iota
	Available
)

func (c Capability) String() string {
	switch c {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Strategy is one mechanism for running a command on a remote host.
type Strategy interface {
	Name() string
	// Probe reports whether the mechanism exists locally. It must not
	// contact the remote host.
	Probe(target Target) Capability
	// Run executes command and blocks until it completes or ctx is done.
	// A non-zero exit status is reported in the Result, not as an error.
	Run(ctx context.Context, target Target, command string) (*Result, error)
}

// ProbeResult pairs a strategy with its probed capability.
type ProbeResult struct {
	Strategy   string
	Capability Capability
}

// Transport runs commands through the first available strategy.
type Transport struct {
	strategies  []Strategy
	logger      logrus.FieldLogger
	dialTimeout time.Duration
}

// Option configures a Transport.
type Option func(*Transport)

// WithStrategies replaces the default strategy chain. Order is preference.
func WithStrategies(strategies ...Strategy) Option {
	return func(t *Transport) {
		t.strategies = strategies
	}
}

// WithLogger sets the logger used for warnings such as cleanup failures.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithDialTimeout bounds connection setup for the default strategies.
func WithDialTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.dialTimeout = d
	}
}

// New creates a Transport. Without WithStrategies the chain is the
// in-process SSH client followed by the interactive ssh binary.
func New(opts ...Option) *Transport {
	t := &Transport{
		logger:      logrus.StandardLogger(),
		dialTimeout: constants.DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.strategies == nil {
		t.strategies = []Strategy{
			NewDirect(t.dialTimeout),
			NewInteractive(t.logger, t.dialTimeout),
		}
	}
	return t
}

// Probe reports the capability of every strategy in preference order.
func (t *Transport) Probe(target Target) []ProbeResult {
	results := make([]ProbeResult, 0, len(t.strategies))
	for _, s := range t.strategies {
		results = append(results, ProbeResult{Strategy: s.Name(), Capability: s.Probe(target)})
	}
	return results
}

// Available returns ErrTransportUnavailable when no strategy can run.
func (t *Transport) Available(target Target) error {
	if t.selectStrategy(target) == nil {
		return ErrTransportUnavailable
	}
	return nil
}

// selectStrategy probes on every call so a strategy that was missing for
// one step can still be chosen for the next.
func (t *Transport) selectStrategy(target Target) Strategy {
	for _, s := range t.strategies {
		if s.Probe(target) == Available {
			return s
		}
	}
	return nil
}

// Execute runs command on target with a hard deadline. A returned error is
// either ErrInvalidInput or ErrTransportUnavailable; everything that
// happens once a strategy is chosen is reported in the Result.
func (t *Transport) Execute(ctx context.Context, target Target, command string, timeout time.Duration) (*Result, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("%w: command is required", ErrInvalidInput)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidInput, timeout)
	}

	strategy := t.selectStrategy(target)
	if strategy == nil {
		return nil, ErrTransportUnavailable
	}

	log := t.logger.WithFields(logrus.Fields{
		"strategy": strategy.Name(),
		"host":     target.Host,
	})
	log.Debug("executing remote command")

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	result, err := strategy.Run(runCtx, target, command)
	if result == nil {
		result = &Result{ExitCode: -1}
	}
	result.Strategy = strategy.Name()
	result.Elapsed = time.Since(started)

	if err != nil {
		// Deadline of this step, not of the caller's context.
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			result.TimedOut = true
			log.WithField("timeout", timeout).Warn("remote command timed out")
		} else {
			result.Err = err
		}
		if result.ExitCode == 0 {
			result.ExitCode = -1
		}
	}

	redactor := security.NewRedactor(target.Credential.Reveal())
	result.Stdout = redactor.Redact(result.Stdout)
	result.Stderr = redactor.Redact(result.Stderr)
	if result.Err != nil {
		result.Err = redactedError{err: result.Err, msg: redactor.Redact(result.Err.Error())}
	}

	return result, nil
}

// redactedError keeps the error chain for errors.Is while masking the
// credential in its message.
type redactedError struct {
	err error
	msg string
}

func (e redactedError) Error() string { return e.msg }
func (e redactedError) Unwrap() error { return e.err }
