// Package cli implements the wardclaw command tree. Each command builds the
// runtime from configuration, runs, and tears it down; serve mode keeps it
// alive until a signal arrives.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/wardlabs/wardclaw/internal/agent"
	"github.com/wardlabs/wardclaw/internal/approval"
	"github.com/wardlabs/wardclaw/internal/audit"
	"github.com/wardlabs/wardclaw/internal/config"
	"github.com/wardlabs/wardclaw/internal/events"
	"github.com/wardlabs/wardclaw/internal/models"
	"github.com/wardlabs/wardclaw/internal/policy"
	"github.com/wardlabs/wardclaw/internal/session"
	"github.com/wardlabs/wardclaw/internal/skills"
	"github.com/wardlabs/wardclaw/internal/task"
)

// runtime holds one wired instance of the agent stack.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	engine    *policy.Engine
	registry  *skills.Registry
	router    *models.Router
	sessions  *session.Store
	auditLog  *audit.Log
	auditPath string
	bus       *events.Bus
	tasks     *task.Store
	approvals *approval.Store
}

func newRuntime(cfgPath string) (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	logger := newLogger(cfg.LogLevel)

	profiles := policy.Builtins()
	for _, p := range cfg.ResolvedProfiles() {
		profiles = append(profiles, p)
	}
	engine := policy.NewEngine(profiles)

	registry := skills.NewRegistry(logger)
	if err := skills.RegisterBuiltins(registry); err != nil {
		return nil, fmt.Errorf("register builtin skills: %w", err)
	}
	loader := skills.NewLoader(skills.DefaultSkillsDir(), logger)
	if err := loader.LoadInto(registry); err != nil {
		logger.Warn("user skills not loaded", "error", err)
	}

	router := models.NewRouter(logger)
	for alias, p := range cfg.Providers {
		switch p.Kind {
		case "ollama":
			router.Register(alias, models.NewOllamaProvider(p.BaseURL))
		case "openai":
			router.Register(alias, models.NewOpenAIProvider(alias, p.BaseURL, p.APIKey))
		default:
			logger.Warn("unknown provider kind", "alias", alias, "kind", p.Kind)
		}
	}
	if alias, _, ok := strings.Cut(cfg.DefaultModel, "/"); ok {
		if err := router.SetDefault(alias); err != nil {
			logger.Warn("default model alias not registered", "alias", alias)
		}
	}

	sessions, err := session.Open(filepath.Join(cfg.DataDir, "sessions.db"))
	if err != nil {
		return nil, err
	}

	auditPath := filepath.Join(cfg.DataDir, "audit.jsonl")
	auditLog, err := audit.Open(auditPath)
	if err != nil {
		_ = sessions.Close()
		return nil, err
	}

	approvals, err := approval.NewStore(filepath.Join(cfg.DataDir, "pending"))
	if err != nil {
		_ = sessions.Close()
		_ = auditLog.Close()
		return nil, err
	}

	bus := events.NewBus(logger)
	auditLog.SetNotify(func(e audit.Entry) {
		bus.Publish(events.TopicAuditRecorded, e)
	})

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		engine:    engine,
		registry:  registry,
		router:    router,
		sessions:  sessions,
		auditLog:  auditLog,
		auditPath: auditPath,
		bus:       bus,
		tasks:     task.NewStore(),
		approvals: approvals,
	}, nil
}

// orchestrator builds the task orchestrator with the given confirmation
// gate. A nil gate fails gated actions safe.
func (r *runtime) orchestrator(gate agent.Gate) *agent.Orchestrator {
	return agent.New(agent.Deps{
		Config:   r.cfg,
		Router:   r.router,
		Engine:   r.engine,
		Registry: r.registry,
		Sessions: r.sessions,
		Audit:    r.auditLog,
		Bus:      r.bus,
		Tasks:    r.tasks,
		Gate:     gate,
		Logger:   r.logger,
	})
}

func (r *runtime) Close() {
	if err := r.sessions.Close(); err != nil {
		r.logger.Warn("session store close failed", "error", err)
	}
	if err := r.auditLog.Close(); err != nil {
		r.logger.Warn("audit log close failed", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
