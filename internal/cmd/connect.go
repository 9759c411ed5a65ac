package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/yoanbernabeu/provisioner/internal/config"
	"github.com/yoanbernabeu/provisioner/internal/constants"
	"github.com/yoanbernabeu/provisioner/internal/progress"
	"github.com/yoanbernabeu/provisioner/internal/transport"
)

// LoadValidPlan loads the plan named by --config and validates it. Any
// problem with the plan itself exits with ExitInvalidConfig.
func LoadValidPlan(ctx context.Context) (*config.Plan, error) {
	plan, err := config.LoadPlan(ctx, GetConfigFile())
	if err != nil {
		return nil, withExitCode(ExitInvalidConfig, err)
	}

	if errors := config.ValidatePlan(plan); errors.HasErrors() {
		return nil, withExitCode(ExitInvalidConfig, fmt.Errorf("invalid plan: %w", errors))
	}

	return plan, nil
}

// ResolvePassword finds the target password for plan. The terminal prompt
// is only offered when stdin is a terminal and not reserved for
// --password-stdin.
func ResolvePassword(ctx context.Context, plan *config.Plan, stdin io.Reader, useStdin bool) (*config.Credential, error) {
	sources := config.CredentialSources{
		Getenv:   os.Getenv,
		Stdin:    stdin,
		UseStdin: useStdin,
	}
	if !useStdin && IsInteractive() {
		sources.Prompt = PromptPassword
	}

	cred, err := config.ResolveCredential(ctx, plan.Target.Credential, sources)
	if err != nil {
		return nil, withExitCode(ExitInvalidConfig, err)
	}
	PrintVerbose("Credential source: %s", cred.Source)
	return cred, nil
}

// OpenLogger creates the structured logger. Entries go to --log-file when
// set and to stderr otherwise. The returned func closes the file.
func OpenLogger() (*logrus.Logger, func(), error) {
	var out io.Writer = os.Stderr
	closeLog := func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeLog = func() { f.Close() }
	}

	logger, err := progress.NewLogger(out, logFormat, verbose)
	if err != nil {
		closeLog()
		return nil, nil, withExitCode(ExitInvalidConfig, err)
	}
	return logger, closeLog, nil
}

// NewTransport creates the default strategy chain.
func NewTransport(logger logrus.FieldLogger) *transport.Transport {
	return transport.New(
		transport.WithLogger(logger),
		transport.WithDialTimeout(constants.DefaultDialTimeout),
	)
}
