// Package mcp exposes the runtime as a Model Context Protocol server on
// stdio, so external agent hosts can submit tasks and inspect policy without
// talking to the HTTP API.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wardlabs/wardclaw/internal/agent"
	"github.com/wardlabs/wardclaw/internal/approval"
	"github.com/wardlabs/wardclaw/internal/policy"
	"github.com/wardlabs/wardclaw/internal/skills"
	"github.com/wardlabs/wardclaw/internal/task"
)

// Deps collects the MCP server's collaborators.
type Deps struct {
	Orch      *agent.Orchestrator
	Engine    *policy.Engine
	Registry  *skills.Registry
	Tasks     *task.Store
	Approvals *approval.Store
	Version   string
	Logger    *slog.Logger
}

// Server wraps the MCP SDK server around the task runtime.
type Server struct {
	mcpServer *mcpsdk.Server
	orch      *agent.Orchestrator
	engine    *policy.Engine
	registry  *skills.Registry
	tasks     *task.Store
	approvals *approval.Store
	logger    *slog.Logger
}

// New creates an MCP server and registers its tools.
func New(d Deps) *Server {
	version := d.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		orch:      d.Orch,
		engine:    d.Engine,
		registry:  d.Registry,
		tasks:     d.Tasks,
		approvals: d.Approvals,
		logger:    d.Logger.With("component", "mcp"),
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "wardclaw",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting on stdio")
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "wardclaw_run_task",
		Description: "Run a natural-language task through the policy-gated agent runtime. Returns the final answer; denied actions are explained in the answer.",
	}, s.handleRunTask)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "wardclaw_check",
		Description: "Check whether a skill invocation would be allowed under a profile, without executing it.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "wardclaw_skills",
		Description: "List the skills the runtime can execute.",
	}, s.handleSkills)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "wardclaw_approve",
		Description: "Approve a pending confirmation request by key. An optional duration keeps the approval valid for repeat requests.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "wardclaw_pending",
		Description: "List pending confirmation requests awaiting approval.",
	}, s.handlePending)
}
