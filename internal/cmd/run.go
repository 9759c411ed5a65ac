package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/provisioner/internal/config"
	"github.com/yoanbernabeu/provisioner/internal/constants"
	"github.com/yoanbernabeu/provisioner/internal/progress"
	"github.com/yoanbernabeu/provisioner/internal/sequencer"
	"github.com/yoanbernabeu/provisioner/internal/transport"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the plan on the target host",
	Long: `Runs every step of the plan on the target host, in order.

The run stops at the first step that exits non-zero, times out or cannot
be started. Steps after it are reported as not attempted.

Each step uses the in-process SSH client when host key material is
available, and the system ssh binary otherwise.

Exit codes:
  0  all steps succeeded
  1  a step failed
  2  the plan or credential is invalid
  3  no SSH strategy is available on this machine`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runPasswordStdin bool
	runTimeout       time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runPasswordStdin, "password-stdin", false, "Read the password from the first line of stdin")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Timeout for steps without their own (default: plan defaults or 5m)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := LoadValidPlan(ctx)
	if err != nil {
		return err
	}

	cred, err := ResolvePassword(ctx, plan, cmd.InOrStdin(), runPasswordStdin)
	if err != nil {
		return err
	}

	logger, closeLog, err := OpenLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	opts := []sequencer.Option{
		sequencer.WithObserver(progress.NewConsole(verbose)),
		sequencer.WithDefaultTimeout(stepTimeout(plan)),
	}
	if logFile != "" {
		opts = append(opts, sequencer.WithObserver(progress.NewLog(logger)))
	}
	if traceFile != "" {
		tracer, err := progress.OpenTracer(traceFile, Version)
		if err != nil {
			return fmt.Errorf("failed to open trace file: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownGrace)
			defer cancel()
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				PrintWarning("Failed to flush traces: %v", err)
			}
		}()
		opts = append(opts, sequencer.WithObserver(tracer))
	}

	seq := sequencer.New(NewTransport(logger), opts...)
	target := plan.TransportTarget(cred.Password)

	PrintVerbose("Target: %s@%s", target.User, target.Address())
	outcome, err := seq.Run(ctx, target, plan.SequencerSteps())
	if err != nil {
		if errors.Is(err, transport.ErrTransportUnavailable) {
			return withExitCode(ExitTransportUnavailable,
				fmt.Errorf("%w: install an ssh client or configure known_hosts (see 'provisioner doctor')", err))
		}
		return withExitCode(ExitInvalidConfig, err)
	}

	return outcomeError(outcome)
}

// stepTimeout is the timeout for steps that do not set one: --timeout,
// then defaults.timeout, then the built-in default.
func stepTimeout(plan *config.Plan) time.Duration {
	switch {
	case runTimeout > 0:
		return runTimeout
	case plan.Defaults.Timeout > 0:
		return plan.Defaults.Timeout
	default:
		return constants.DefaultStepTimeout
	}
}

// outcomeError converts a failed run into an exit error. The console
// observer has already printed the details.
func outcomeError(outcome *sequencer.RunOutcome) error {
	if outcome.Success {
		return nil
	}

	err := errors.New("provisioning failed")
	if failed := outcome.FailedStep(); failed != nil {
		err = fmt.Errorf("step %d failed: %w", failed.Step.Index+1, failed.Failure())
	}
	return &exitError{code: ExitFailure, err: err, reported: true}
}
