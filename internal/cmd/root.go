package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/provisioner/internal/constants"
	"github.com/yoanbernabeu/provisioner/internal/progress"
)

var (
	// Version is set at build time
	Version = "dev"

	// Global flags
	verbose   bool
	cfgFile   string
	logFormat string
	logFile   string
	traceFile string
)

var rootCmd = &cobra.Command{
	Use:   "provisioner",
	Short: "Run an ordered list of shell commands on a remote host",
	Long: `Provisioner runs the steps of a plan, one after the other, on a remote
host over SSH with password authentication. It stops at the first step that
fails and reports which steps never ran.

Quick start:
  provisioner init            # Write a sample provision.yaml
  provisioner doctor          # Check which SSH strategies are usable
  provisioner plan            # Show the steps that would run
  provisioner run             # Run them

The password is never stored in the plan. It is read from the secret store,
an environment variable, stdin (--password-stdin) or a terminal prompt.

CI/CD Environment Variables:
  PROVISIONER_PASSWORD              Target password (default credential env)
  PROVISIONER_HOST                  Override target.host
  PROVISIONER_USER                  Override target.user
  PROVISIONER_PLAN                  Plan location (default: provision.yaml)
  PROVISIONER_KNOWN_HOSTS           SSH known_hosts content
  PROVISIONER_SKIP_HOST_KEY_CHECK   Skip host key verification (true/false)`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	var exitErr *exitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.reported) {
		PrintError("%v", err)
	}
	return err
}

// GetRootCmd returns the root command, used to generate documentation
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed logs")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Plan file or URL (default: provision.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", progress.FormatText, "Structured log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write structured run logs to this file")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace-file", "", "Write OpenTelemetry spans to this file")

	rootCmd.SetVersionTemplate(`Provisioner {{.Version}}
`)
}

// IsVerbose returns true if verbose mode is enabled
func IsVerbose() bool {
	return verbose
}

// GetConfigFile returns the plan location from --config or PROVISIONER_PLAN
func GetConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return os.Getenv(constants.EnvPlan)
}

// PrintError prints a formatted error message
func PrintError(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "❌ "+msg+"\n", args...)
}

// PrintSuccess prints a success message
func PrintSuccess(msg string, args ...interface{}) {
	fmt.Printf("✅ "+msg+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(msg string, args ...interface{}) {
	fmt.Printf("ℹ️  "+msg+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	fmt.Printf("⚠️  "+msg+"\n", args...)
}

// PrintVerbose prints a message only in verbose mode
func PrintVerbose(msg string, args ...interface{}) {
	if verbose {
		fmt.Printf("   "+msg+"\n", args...)
	}
}
