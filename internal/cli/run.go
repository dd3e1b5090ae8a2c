package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wardlabs/wardclaw/internal/tui"
)

func runCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "run <task...>",
		Short: "Run a single task and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			orch := rt.orchestrator(&tui.ConfirmGate{})
			res, err := orch.RunTask(cmd.Context(), strings.Join(args, " "), profile)
			if err != nil {
				return fmt.Errorf("task failed: %w", err)
			}
			fmt.Println(res.Answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "permission profile (defaults to configured profile)")
	return cmd
}

func chatCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			// The chat TUI owns the terminal, so gated actions resolve
			// through the pending store instead of an inline prompt.
			orch := rt.orchestrator(newStoreGate(rt, rt.logger))

			name := profile
			if name == "" {
				name = rt.cfg.DefaultProfile
			}
			return tui.Chat(cmd.Context(), name, func(ctx context.Context, text string) (string, error) {
				res, err := orch.RunTask(ctx, text, profile)
				return res.Answer, err
			})
		},
	}

	cmd.Flags().StringVarP(&profile, "profile", "p", "", "permission profile (defaults to configured profile)")
	return cmd
}
