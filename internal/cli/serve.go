package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wardlabs/wardclaw/internal/mcp"
	"github.com/wardlabs/wardclaw/internal/scheduler"
	"github.com/wardlabs/wardclaw/internal/server"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and scheduled tasks until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			orch := rt.orchestrator(newStoreGate(rt, rt.logger))

			if addr == "" {
				addr = rt.cfg.Server.Addr
			}
			srv := server.New(server.Deps{
				Addr:      addr,
				Orch:      orch,
				Tasks:     rt.tasks,
				Registry:  rt.registry,
				Approvals: rt.approvals,
				Bus:       rt.bus,
				AuditPath: rt.auditPath,
				Secret:    rt.cfg.Auth.Secret,
				Logger:    rt.logger,
			})

			sched := scheduler.New(orch, 0, rt.logger)
			sched.Load(rt.cfg.Scheduler.Jobs)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(ctx) })
			g.Go(func() error { return sched.Start(ctx) })
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to configured address)")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the runtime over the Model Context Protocol on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			orch := rt.orchestrator(newStoreGate(rt, rt.logger))
			s := mcp.New(mcp.Deps{
				Orch:      orch,
				Engine:    rt.engine,
				Registry:  rt.registry,
				Tasks:     rt.tasks,
				Approvals: rt.approvals,
				Logger:    rt.logger,
			})
			return s.Run(ctx)
		},
	}
}
