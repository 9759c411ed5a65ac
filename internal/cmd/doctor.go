package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/provisioner/internal/config"
	"github.com/yoanbernabeu/provisioner/internal/transport"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check which SSH strategies are usable",
	Long: `Probes each SSH strategy on this machine, in preference order:

  direct       in-process SSH client, needs known_hosts for the target
               (or PROVISIONER_SKIP_HOST_KEY_CHECK=true)
  interactive  the system ssh binary driven through a pseudo-terminal

The target host is never contacted. Exits 3 when no strategy is available.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var target transport.Target

	plan, err := LoadValidPlan(cmd.Context())
	switch {
	case err == nil:
		target = plan.TransportTarget("")
	case errors.Is(err, config.ErrPlanNotFound):
		PrintWarning("No plan found, probing with default host key settings")
	default:
		return err
	}

	logger, closeLog, err := OpenLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	results := NewTransport(logger).Probe(target)
	if !printProbes(cmd.OutOrStdout(), results) {
		return withExitCode(ExitTransportUnavailable, transport.ErrTransportUnavailable)
	}
	return nil
}

// printProbes prints one line per strategy and reports whether any is
// available.
func printProbes(w io.Writer, results []transport.ProbeResult) bool {
	fmt.Fprintln(w, "🔍 SSH strategies:")

	selected := ""
	for _, r := range results {
		icon := "❌"
		if r.Capability == transport.Available {
			icon = "✅"
			if selected == "" {
				selected = r.Strategy
			}
		}
		fmt.Fprintf(w, "   %s %-12s %s\n", icon, r.Strategy, r.Capability)
	}

	fmt.Fprintln(w)
	if selected == "" {
		fmt.Fprintln(w, "No strategy available: install OpenSSH or provide known_hosts for the target.")
		return false
	}
	fmt.Fprintf(w, "Steps will run via %s.\n", selected)
	return true
}
