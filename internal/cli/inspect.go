package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardlabs/wardclaw/internal/audit"
	"github.com/wardlabs/wardclaw/internal/config"
	"github.com/wardlabs/wardclaw/internal/policy"
	"github.com/wardlabs/wardclaw/internal/server"
	"github.com/wardlabs/wardclaw/internal/skills"
	"github.com/wardlabs/wardclaw/internal/types"
)

func skillsCmd() *cobra.Command {
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("error")
			registry := skills.NewRegistry(logger)
			if err := skills.RegisterBuiltins(registry); err != nil {
				return err
			}
			loader := skills.NewLoader(skills.DefaultSkillsDir(), logger)
			if err := loader.LoadInto(registry); err != nil {
				logger.Warn("user skills not loaded", "error", err)
			}

			manifests := registry.Manifests()
			sort.Slice(manifests, func(i, j int) bool { return manifests[i].Name < manifests[j].Name })

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCONFIRM\tDESCRIPTION")
			for _, m := range manifests {
				confirm := ""
				if m.RequiresConfirmation {
					confirm = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, confirm, m.Description)
			}
			return w.Flush()
		},
	}

	cmd := &cobra.Command{
		Use:     "skills",
		Aliases: []string{"skill"},
		Short:   "Inspect registered skills",
		RunE:    list.RunE,
	}
	cmd.AddCommand(list)
	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect permission profiles",
	}
	cmd.AddCommand(profileListCmd(), profileShowCmd())
	return cmd
}

func loadProfiles() ([]types.Profile, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	profiles := policy.Builtins()
	names := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		names[p.Name] = true
	}
	for _, p := range cfg.ResolvedProfiles() {
		if names[p.Name] {
			// Config profiles shadow builtins of the same name.
			for i := range profiles {
				if profiles[i].Name == p.Name {
					profiles[i] = p
				}
			}
			continue
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

func profileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := loadProfiles()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tAUTO-CONFIRM\tSKILLS")
			for _, p := range profiles {
				fmt.Fprintf(w, "%s\t%v\t%s\n", p.Name, p.AutoConfirm, strings.Join(p.AllowedSkills, ", "))
			}
			return w.Flush()
		},
	}
}

func profileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one profile as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := loadProfiles()
			if err != nil {
				return err
			}
			for _, p := range profiles {
				if p.Name == args[0] {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(p)
				}
			}
			return fmt.Errorf("profile not found: %s", args[0])
		},
	}
}

func logsCmd() *cobra.Command {
	var n int

	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the last audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			entries, err := audit.Tail(auditPathFor(cfg), n)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, e := range entries {
				detail := e.Details.Preview
				if detail == "" {
					detail = e.Details.Answer
				}
				if detail == "" {
					detail = e.Details.Reason
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.Timestamp, e.SessionID, e.Event, detail)
			}
			return w.Flush()
		},
	}
	tail.Flags().IntVarP(&n, "lines", "n", 50, "number of entries to show")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			res := audit.Verify(auditPathFor(cfg))
			if !res.Valid {
				return fmt.Errorf("audit chain broken at line %d: %s", res.ErrorLine, res.Error)
			}
			fmt.Printf("audit chain valid: %d entries\n", res.Lines)
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect the audit log",
		RunE:  tail.RunE,
	}
	cmd.Flags().IntVarP(&n, "lines", "n", 50, "number of entries to show")
	cmd.AddCommand(tail, verify)
	return cmd
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List pending confirmation requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			reqs, err := rt.approvals.List()
			if err != nil {
				return err
			}
			if len(reqs) == 0 {
				fmt.Println("no pending requests")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSTATUS\tPREVIEW\tAGE")
			for _, r := range reqs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.Key, r.Status, r.Preview, time.Since(r.CreatedAt).Round(time.Second))
			}
			return w.Flush()
		},
	}
}

func approveCmd() *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "approve <key>",
		Short: "Approve a pending confirmation request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.approvals.Approve(args[0], window); err != nil {
				return err
			}
			if window > 0 {
				fmt.Printf("approved %s for %s\n", args[0], window)
			} else {
				fmt.Printf("approved %s\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&window, "for", 0, "keep the approval valid for repeats (e.g. 5m)")
	return cmd
}

func denyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deny <key>",
		Short: "Deny a pending confirmation request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.approvals.Deny(args[0]); err != nil {
				return err
			}
			fmt.Printf("denied %s\n", args[0])
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var expiry time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return fmt.Errorf("auth.secret is not set; the API runs unauthenticated")
			}
			token, err := server.GenerateToken(subject, []byte(cfg.Auth.Secret), expiry)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&expiry, "expiry", 24*time.Hour, "token lifetime")
	return cmd
}

func auditPathFor(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "audit.jsonl")
}
