package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardlabs/wardclaw/internal/config"
)

var cfgPath string

// Execute runs the command tree.
func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:   "wardclaw",
		Short: "Local-first, policy-gated agent runtime",
		Long: `wardclaw runs language-model tasks against local tools behind an
explicit permission policy. Every tool call is checked against the active
profile, risky calls wait for human confirmation, and everything that
happens lands in a tamper-evident audit log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "config file path")

	rootCmd.AddCommand(
		runCmd(),
		chatCmd(),
		serveCmd(),
		mcpCmd(),
		skillsCmd(),
		profileCmd(),
		logsCmd(),
		pendingCmd(),
		approveCmd(),
		denyCmd(),
		tokenCmd(),
		versionCmd(version),
	)

	return rootCmd.Execute()
}

func versionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("wardclaw " + version)
		},
	}
}
