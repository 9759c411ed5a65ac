package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/provisioner/internal/config"
	"github.com/yoanbernabeu/provisioner/internal/constants"
	"github.com/yoanbernabeu/provisioner/internal/security"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the steps the plan would run",
	Long: `Loads and validates the plan, then prints the target and the ordered
steps with their timeouts. Nothing is sent to the target host.

Commands are printed with secrets masked.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	plan, err := LoadValidPlan(cmd.Context())
	if err != nil {
		return err
	}

	envName := plan.Target.Credential.Env
	if envName == "" {
		envName = constants.EnvPassword
	}
	printPlan(cmd.OutOrStdout(), plan, security.NewRedactor(os.Getenv(envName)))
	return nil
}

func printPlan(w io.Writer, plan *config.Plan, redactor *security.Redactor) {
	defaultTimeout := plan.Defaults.Timeout
	if defaultTimeout == 0 {
		defaultTimeout = constants.DefaultStepTimeout
	}
	target := config.HostSpec{User: plan.Target.User, Host: plan.Target.Host, Port: plan.Target.Port}

	fmt.Fprintln(w, "📋 Plan:")
	fmt.Fprintf(w, "   Target:      %s\n", target)
	fmt.Fprintf(w, "   Credential:  %s\n", credentialSource(plan.Target.Credential))
	fmt.Fprintf(w, "   Steps:       %d\n", len(plan.Steps))

	if len(plan.Steps) == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "   No steps to run.")
		return
	}

	fmt.Fprintln(w)
	for i, step := range plan.Steps {
		timeout := step.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		command := redactor.RedactCommand(step.Run)
		if step.Name != "" {
			fmt.Fprintf(w, "   %d. %s (timeout %s)\n", i+1, step.Name, timeout)
			fmt.Fprintf(w, "      %s\n", command)
		} else {
			fmt.Fprintf(w, "   %d. %s (timeout %s)\n", i+1, command, timeout)
		}
	}
}

func credentialSource(c config.CredentialConfig) string {
	if c.SecretURL != "" {
		return "secret " + c.SecretURL
	}
	if c.Env != "" {
		return "$" + c.Env
	}
	return "$" + constants.EnvPassword
}
