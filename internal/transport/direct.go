package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/melbahja/goph"
	"github.com/yoanbernabeu/provisioner/internal/constants"
	"golang.org/x/crypto/ssh"
)

// Direct runs commands through an in-process SSH client with password
// authentication. It opens one connection per command.
type Direct struct {
	dialTimeout time.Duration
}

// NewDirect creates the in-process SSH strategy.
func NewDirect(dialTimeout time.Duration) *Direct {
	if dialTimeout <= 0 {
		dialTimeout = constants.DefaultDialTimeout
	}
	return &Direct{dialTimeout: dialTimeout}
}

// Name implements Strategy.
func (d *Direct) Name() string { return "direct" }

// Probe reports Available when the host key can be verified locally. The
// in-process client has no interactive way to accept an unknown key.
func (d *Direct) Probe(target Target) Capability {
	if source, _ := resolveHostKeySource(target); source == hostKeyNone {
		return Unavailable
	}
	return Available
}

// Run implements Strategy.
func (d *Direct) Run(ctx context.Context, target Target, command string) (*Result, error) {
	client, err := d.connect(ctx, target)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	cmd, err := client.CommandContext(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer cmd.Close()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// On deadline kill the remote process and tear the channel down so
	// Run returns.
	stop := context.AfterFunc(ctx, func() {
		_ = cmd.Signal(ssh.SIGKILL)
		_ = cmd.Close()
		_ = client.Close()
	})
	err = cmd.Run()
	stop()
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		// The buffers may still be written to, so they are not read.
		return &Result{ExitCode: -1}, ctxErr
	}

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		result.ExitCode = -1
		var missingErr *ssh.ExitMissingError
		if errors.As(err, &missingErr) {
			return result, fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
		return result, fmt.Errorf("failed to execute command: %w", err)
	}

	return result, nil
}

// connect dials target, giving up when ctx is done.
func (d *Direct) connect(ctx context.Context, target Target) (*goph.Client, error) {
	callback, err := hostKeyCallback(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHostKey, err)
	}

	password := target.Credential.Reveal()
	sshConfig := &ssh.ClientConfig{
		User: target.User,
		Auth: goph.Auth{
			ssh.Password(password),
			ssh.KeyboardInteractive(passwordChallenge(password)),
		},
		HostKeyCallback: callback,
		Timeout:         d.dialTimeout,
	}

	hostPort := target.Address()
	dialer := net.Dialer{Timeout: d.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return nil, fmt.Errorf("%w to %s: %v", ErrConnectionFailed, hostPort, err)
	}

	// The handshake does not take a context.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	_ = conn.SetDeadline(time.Now().Add(d.dialTimeout))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, hostPort, sshConfig)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyDialError(target, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &goph.Client{Client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// passwordChallenge answers keyboard-interactive prompts with the password.
func passwordChallenge(password string) ssh.KeyboardInteractiveChallenge {
	return func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	}
}

func classifyDialError(target Target, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"):
		return fmt.Errorf("%w for %s@%s: %v", ErrAuthRejected, target.User, target.Host, err)
	case strings.Contains(msg, "knownhosts"), strings.Contains(msg, "host key"):
		return fmt.Errorf("%w for %s: %v", ErrHostKey, target.Host, err)
	default:
		return fmt.Errorf("%w to %s: %v", ErrConnectionFailed, target.Address(), err)
	}
}
