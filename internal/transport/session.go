package transport

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/yoanbernabeu/provisioner/internal/security"
)

// sessionState is a step of the scripted ssh conversation.
type sessionState int

const (
	stateAwaitPrompt sessionState = iota
	stateSendCredential
	stateAwaitShell
	stateSendCommand
	stateAwaitCompletion
	stateTerminate
	stateDone
)

func (s sessionState) String() string {
	switch s {
	case stateAwaitPrompt:
		return "await-prompt"
	case stateSendCredential:
		return "send-credential"
	case stateAwaitShell:
		return "await-shell"
	case stateSendCommand:
		return "send-command"
	case stateAwaitCompletion:
		return "await-completion"
	case stateTerminate:
		return "terminate"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var (
	passwordPrompt = regexp.MustCompile(`(?i)(password|passphrase)[^\r\n]*:\s*$`)
	shellPrompt    = regexp.MustCompile(`[$#>%] ?$`)
)

// sshFailure maps an ssh client message to a transport error.
type sshFailure struct {
	pattern *regexp.Regexp
	err     error
}

var sshFailures = []sshFailure{
	{regexp.MustCompile(`(?im)^.*permission denied.*$`), ErrAuthRejected},
	{regexp.MustCompile(`(?im)^.*(host key verification failed|remote host identification has changed).*$`), ErrHostKey},
	{regexp.MustCompile(`(?im)^.*(connection refused|could not resolve hostname|connection timed out|no route to host|network is unreachable|connection closed by).*$`), ErrConnectionFailed},
}

// session drives one login, one command and one logout over a terminal.
type session struct {
	w        io.Writer
	chunks   <-chan []byte
	password string
	command  string
	marker   string

	state    sessionState
	buf      string
	stdout   string
	stderr   string
	exitCode int
}

func newSession(w io.Writer, chunks <-chan []byte, password, command string) (*session, error) {
	marker, err := security.GenerateMarker("__PRV_")
	if err != nil {
		return nil, err
	}
	return &session{
		w:        w,
		chunks:   chunks,
		password: password,
		command:  command,
		marker:   marker,
		exitCode: -1,
	}, nil
}

// drive runs the conversation to completion or to the first failure.
func (s *session) drive(ctx context.Context) error {
	for s.state != stateDone {
		if err := s.step(ctx); err != nil {
			return fmt.Errorf("%w (state %s)", err, s.state)
		}
	}
	return nil
}

func (s *session) step(ctx context.Context) error {
	switch s.state {
	case stateAwaitPrompt:
		idx, match, _, err := s.expect(ctx, s.withFailures(passwordPrompt)...)
		if err != nil {
			return err
		}
		if idx > 0 {
			return s.fail(idx-1, match)
		}
		s.state = stateSendCredential

	case stateSendCredential:
		if _, err := io.WriteString(s.w, s.password+"\r"); err != nil {
			return fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
		s.state = stateAwaitShell

	case stateAwaitShell:
		patterns := append(s.withFailures(shellPrompt), passwordPrompt)
		idx, match, _, err := s.expect(ctx, patterns...)
		if err != nil {
			return err
		}
		switch {
		case idx == 0:
			s.state = stateSendCommand
		case idx == len(patterns)-1:
			// Asked again: the password was refused.
			s.stderr = "Permission denied"
			return ErrAuthRejected
		default:
			return s.fail(idx-1, match)
		}

	case stateSendCommand:
		// Markers are split by quotes on the wire so an echo of the typed
		// line never matches them.
		setup := "stty -echo 2>/dev/null; PS1=''; PS2=''; unset PROMPT_COMMAND; " +
			`echo "` + s.marker + `""_BEGIN__"` + "\r"
		if _, err := io.WriteString(s.w, setup); err != nil {
			return fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
		beginLine := regexp.MustCompile(regexp.QuoteMeta(s.marker+"_BEGIN__") + `\r?\n`)
		if _, _, _, err := s.expect(ctx, beginLine); err != nil {
			return err
		}
		if _, err := io.WriteString(s.w, s.framedCommand()); err != nil {
			return fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
		s.state = stateAwaitCompletion

	case stateAwaitCompletion:
		endLine := regexp.MustCompile(regexp.QuoteMeta(s.marker+"_END__") + `:(\d+)`)
		_, match, before, err := s.expect(ctx, endLine)
		if err != nil {
			return err
		}
		code, err := strconv.Atoi(match[1])
		if err != nil {
			return fmt.Errorf("%w: malformed exit status %q", ErrSessionClosed, match[1])
		}
		s.stdout = normalizeOutput(before)
		s.exitCode = code
		s.state = stateTerminate

	case stateTerminate:
		// The shell may already be gone; Run reaps the process either way.
		_, _ = io.WriteString(s.w, "exit\r")
		s.state = stateDone
	}
	return nil
}

// framedCommand is the command and its end marker as one input line. The
// subshell keeps an exit in the command from ending the login shell, and
// closing stdin keeps the command from reading the rest of the input.
func (s *session) framedCommand() string {
	return "( " + s.command + "\n) </dev/null; " +
		`echo "` + s.marker + `""_END__:$?"` + "\r"
}

func (s *session) withFailures(first *regexp.Regexp) []*regexp.Regexp {
	patterns := []*regexp.Regexp{first}
	for _, f := range sshFailures {
		patterns = append(patterns, f.pattern)
	}
	return patterns
}

func (s *session) fail(i int, match []string) error {
	s.stderr = strings.TrimSpace(match[0])
	return fmt.Errorf("%w: %s", sshFailures[i].err, s.stderr)
}

// expect reads terminal output until one of patterns matches and returns the
// index of the earliest match, its submatches and the text preceding it.
// Consumed text is dropped from the buffer.
func (s *session) expect(ctx context.Context, patterns ...*regexp.Regexp) (int, []string, string, error) {
	for {
		best, bestLoc := -1, []int(nil)
		for i, p := range patterns {
			loc := p.FindStringSubmatchIndex(s.buf)
			if loc != nil && (bestLoc == nil || loc[0] < bestLoc[0]) {
				best, bestLoc = i, loc
			}
		}
		if best >= 0 {
			match := make([]string, len(bestLoc)/2)
			for j := range match {
				if bestLoc[2*j] >= 0 {
					match[j] = s.buf[bestLoc[2*j]:bestLoc[2*j+1]]
				}
			}
			before := s.buf[:bestLoc[0]]
			s.buf = s.buf[bestLoc[1]:]
			return best, match, before, nil
		}

		select {
		case <-ctx.Done():
			return -1, nil, "", ctx.Err()
		case chunk, ok := <-s.chunks:
			if !ok {
				return -1, nil, "", ErrSessionClosed
			}
			s.buf += string(chunk)
		}
	}
}

// partialResult is what was captured before the conversation failed.
func (s *session) partialResult() *Result {
	r := &Result{Stderr: s.stderr, ExitCode: -1}
	if s.state == stateAwaitCompletion {
		r.Stdout = normalizeOutput(s.buf)
	}
	return r
}

func (s *session) result() *Result {
	return &Result{Stdout: s.stdout, ExitCode: s.exitCode}
}

// normalizeOutput undoes the terminal's newline translation.
func normalizeOutput(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
