package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/yoanbernabeu/provisioner/internal/sequencer"
	"github.com/yoanbernabeu/provisioner/internal/transport"
)

// Console prints run progress for a human at a terminal.
type Console struct {
	out     io.Writer
	errOut  io.Writer
	verbose bool
}

// NewConsole creates a Console writing to stdout and stderr.
func NewConsole(verbose bool) *Console {
	return NewConsoleWriter(os.Stdout, os.Stderr, verbose)
}

// NewConsoleWriter creates a Console with explicit writers.
func NewConsoleWriter(out, errOut io.Writer, verbose bool) *Console {
	return &Console{out: out, errOut: errOut, verbose: verbose}
}

// Notify implements sequencer.Observer.
func (c *Console) Notify(e sequencer.Event) {
	switch e.Kind {
	case sequencer.RunStarted:
		fmt.Fprintf(c.out, "🚀 Running %d step(s)\n", e.Total)
		c.verbosef("Run ID: %s", e.RunID)

	case sequencer.StepStarted:
		fmt.Fprintf(c.out, "\n▶️  Step %d/%d: %s\n", e.Index+1, e.Total, label(e))
		if e.Name != "" {
			c.verbosef("Running: %s", e.Command)
		}

	case sequencer.StepFinished:
		c.stepFinished(e)

	case sequencer.StepSkipped:
		fmt.Fprintf(c.out, "⏭️  Step %d/%d not attempted: %s\n", e.Index+1, e.Total, label(e))

	case sequencer.RunFinished:
		c.runFinished(e.Outcome)
	}
}

func (c *Console) stepFinished(e sequencer.Event) {
	r := e.Result
	if r.Success() {
		fmt.Fprintf(c.out, "✅ Step %d completed\n", e.Index+1)
		printIndented(c.out, r.Stdout)
		c.verbosef("took %s via %s", r.Elapsed.Round(time.Millisecond), r.Strategy)
		return
	}

	fmt.Fprintf(c.errOut, "❌ Step %d failed (%s): %s\n", e.Index+1, failureReason(r), e.Command)
	printIndented(c.out, r.Stdout)
	printIndented(c.errOut, r.Stderr)
	c.verbosef("took %s via %s", r.Elapsed.Round(time.Millisecond), r.Strategy)
}

func (c *Console) runFinished(o *sequencer.RunOutcome) {
	if o == nil {
		return
	}
	fmt.Fprintln(c.out)
	if o.Success {
		fmt.Fprintf(c.out, "✅ All %d step(s) completed in %s\n", len(o.Results), o.Duration().Round(time.Millisecond))
		return
	}
	total := len(o.Results) + len(o.NotAttempted)
	if failed := o.FailedStep(); failed != nil {
		fmt.Fprintf(c.errOut, "❌ Provisioning halted at step %d of %d: %v\n", failed.Step.Index+1, total, failed.Failure())
	}
	if n := len(o.NotAttempted); n > 0 {
		fmt.Fprintf(c.out, "⚠️  %d step(s) not attempted\n", n)
	}
}

func (c *Console) verbosef(msg string, args ...interface{}) {
	if c.verbose {
		fmt.Fprintf(c.out, "   "+msg+"\n", args...)
	}
}

func label(e sequencer.Event) string {
	if e.Name != "" {
		return e.Name
	}
	return e.Command
}

// failureReason is the short status shown next to a failed step.
func failureReason(r *transport.Result) string {
	switch {
	case r == nil:
		return "no result"
	case r.TimedOut:
		return "timed out"
	case r.Err != nil:
		return r.Err.Error()
	default:
		return fmt.Sprintf("exit %d", r.ExitCode)
	}
}

func printIndented(w io.Writer, text string) {
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "   %s\n", line)
	}
}
