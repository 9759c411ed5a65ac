package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/provisioner/internal/config"
	"github.com/yoanbernabeu/provisioner/internal/constants"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample plan",
	Long: `Creates a provision.yaml with a sample target and the steps that
bootstrap a Node.js host: package index update, NodeSource repository,
Node.js, pm2, then an application checkout with its dependencies.

Edit target.host and the steps before running it.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initForce bool
	initHost  string
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing plan")
	initCmd.Flags().StringVar(&initHost, "host", "", "Target host as user@host[:port]")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = constants.PlanFile
	}

	if config.PlanExists(path) && !initForce {
		if !IsInteractive() || !PromptConfirm(fmt.Sprintf("%s already exists. Overwrite?", path), cmd.InOrStdin()) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	plan, err := samplePlan(initHost)
	if err != nil {
		return withExitCode(ExitInvalidConfig, err)
	}

	if err := config.SavePlan(plan, path); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}

	PrintSuccess("Created %s", path)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Review the steps in %s\n", path)
	fmt.Printf("  2. export %s=...\n", constants.EnvPassword)
	fmt.Println("  3. provisioner doctor && provisioner run")
	return nil
}

// samplePlan returns the default plan, pointed at host when given.
func samplePlan(host string) (*config.Plan, error) {
	plan := config.DefaultPlan()
	if host == "" {
		return plan, nil
	}

	spec, err := config.ParseHostSpec(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}
	plan.Target.Host = spec.Host
	if spec.User != "" {
		plan.Target.User = spec.User
	}
	if spec.Port != 0 {
		plan.Target.Port = spec.Port
	}

	if errors := config.ValidatePlan(plan); errors.HasErrors() {
		return nil, errors
	}
	return plan, nil
}
