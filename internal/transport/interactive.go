package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/yoanbernabeu/provisioner/internal/constants"
)

// Interactive runs commands by driving the system ssh client through a
// pseudo-terminal, answering its password prompt from memory. The password
// never appears in argv, the environment or on disk.
type Interactive struct {
	binary      string
	tempDir     string
	dialTimeout time.Duration
	logger      logrus.FieldLogger
	lookPath    func(string) (string, error)
}

// InteractiveOption configures an Interactive strategy.
type InteractiveOption func(*Interactive)

// WithBinary sets the ssh client to run, by name or path.
func WithBinary(binary string) InteractiveOption {
	return func(i *Interactive) {
		i.binary = binary
	}
}

// WithTempDir sets where per-session scratch directories are created.
func WithTempDir(dir string) InteractiveOption {
	return func(i *Interactive) {
		i.tempDir = dir
	}
}

// NewInteractive creates the pseudo-terminal strategy.
func NewInteractive(logger logrus.FieldLogger, dialTimeout time.Duration, opts ...InteractiveOption) *Interactive {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if dialTimeout <= 0 {
		dialTimeout = constants.DefaultDialTimeout
	}
	i := &Interactive{
		binary:      "ssh",
		dialTimeout: dialTimeout,
		logger:      logger,
		lookPath:    exec.LookPath,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Name implements Strategy.
func (i *Interactive) Name() string { return "interactive" }

// Probe reports Available when an ssh client is installed and the platform
// has pseudo-terminals.
func (i *Interactive) Probe(Target) Capability {
	if runtime.GOOS == "windows" {
		return Unavailable
	}
	if _, err := i.lookPath(i.binary); err != nil {
		return Unavailable
	}
	return Available
}

// Run implements Strategy.
func (i *Interactive) Run(ctx context.Context, target Target, command string) (*Result, error) {
	binary, err := i.lookPath(i.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	dir, err := os.MkdirTemp(i.tempDir, "provisioner-ssh-")
	if err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			i.logger.WithError(fmt.Errorf("%w: %v", ErrResourceCleanup, rmErr)).
				WithField("path", dir).
				Warn("ResourceCleanupFailure")
		}
	}()

	args, err := i.sshArgs(target, dir)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, args...)
	cmd.Env = append(os.Environ(), "TERM=dumb", "LC_ALL=C")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 50, Cols: 512})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}
	proc := newPtyProcess(cmd, ptmx)
	defer proc.close()

	sess, err := newSession(ptmx, proc.output(), target.Credential.Reveal(), command)
	if err != nil {
		proc.kill()
		return nil, err
	}

	if err := sess.drive(ctx); err != nil {
		proc.kill()
		return sess.partialResult(), err
	}

	if !proc.waitFor(constants.ShutdownGrace) {
		i.logger.WithField("host", target.Host).Warn("ssh did not exit after logout, killing it")
		proc.kill()
	}
	return sess.result(), nil
}

// sshArgs builds the ssh command line. Host keys go to a known_hosts file
// inside the session directory so the user's file is never modified.
func (i *Interactive) sshArgs(target Target, dir string) ([]string, error) {
	sessionKnownHosts := filepath.Join(dir, "known_hosts")
	strict := "accept-new"

	source, path := resolveHostKeySource(target)
	switch source {
	case hostKeyInsecure:
		strict = "no"
	case hostKeyEnv:
		if err := os.WriteFile(sessionKnownHosts, []byte(os.Getenv(constants.EnvKnownHosts)), 0600); err != nil {
			return nil, fmt.Errorf("failed to write session known_hosts: %w", err)
		}
		strict = "yes"
	case hostKeyFile:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read known_hosts: %w", err)
		}
		if err := os.WriteFile(sessionKnownHosts, data, 0600); err != nil {
			return nil, fmt.Errorf("failed to write session known_hosts: %w", err)
		}
		strict = "yes"
	}

	return []string{
		"-o", "StrictHostKeyChecking=" + strict,
		"-o", "UserKnownHostsFile=" + sessionKnownHosts,
		"-o", "PreferredAuthentications=keyboard-interactive,password",
		"-o", "PubkeyAuthentication=no",
		"-o", "NumberOfPasswordPrompts=1",
		"-o", "ConnectTimeout=" + strconv.Itoa(int(i.dialTimeout.Seconds())),
		"-p", strconv.Itoa(target.port()),
		"-l", target.User,
		target.Host,
	}, nil
}

// ptyProcess owns the ssh child and its terminal.
type ptyProcess struct {
	cmd    *exec.Cmd
	pty    *os.File
	exited chan struct{}
	chunks chan []byte
	stop   chan struct{}
}

func newPtyProcess(cmd *exec.Cmd, ptmx *os.File) *ptyProcess {
	p := &ptyProcess{
		cmd:    cmd,
		pty:    ptmx,
		exited: make(chan struct{}),
		chunks: make(chan []byte, 64),
		stop:   make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	go p.read()
	return p
}

// read forwards terminal output until the terminal closes. On Linux the
// master returns EIO once the child has exited.
func (p *ptyProcess) read() {
	defer close(p.chunks)
	buf := make([]byte, 4096)
	for {
		n, err := p.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case p.chunks <- chunk:
			case <-p.stop:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *ptyProcess) output() <-chan []byte { return p.chunks }

func (p *ptyProcess) waitFor(d time.Duration) bool {
	select {
	case <-p.exited:
		return true
	case <-time.After(d):
		return false
	}
}

func (p *ptyProcess) kill() {
	select {
	case <-p.exited:
		return
	default:
	}
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// close kills the child if needed, reaps it and releases the terminal.
func (p *ptyProcess) close() {
	p.kill()
	<-p.exited
	close(p.stop)
	_ = p.pty.Close()
}
