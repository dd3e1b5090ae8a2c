// Package agent runs tasks: a bounded model/tool loop where every tool call
// passes through the policy engine and, when required, a confirmation gate.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wardlabs/wardclaw/internal/audit"
	"github.com/wardlabs/wardclaw/internal/config"
	"github.com/wardlabs/wardclaw/internal/events"
	"github.com/wardlabs/wardclaw/internal/models"
	"github.com/wardlabs/wardclaw/internal/policy"
	"github.com/wardlabs/wardclaw/internal/session"
	"github.com/wardlabs/wardclaw/internal/skills"
	"github.com/wardlabs/wardclaw/internal/task"
)

const systemPreamble = `You are wardclaw, a local agent runtime. Solve the user's task.
Use the provided tools when you need to touch files, run commands, or inspect
the repository; answer directly when you do not. Be concise.`

// Confirmation is what a gate shows the human before a risky call runs.
type Confirmation struct {
	SessionID string
	Skill     string
	Preview   string
	Reason    string
}

// Gate asks a human to approve one tool call. Implementations block until
// resolved; the error return is for infrastructure failures only.
type Gate interface {
	Confirm(ctx context.Context, c Confirmation) (bool, error)
}

// StatusUpdate is published on the task.status topic.
type StatusUpdate struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

// SkillLogLine is published on the skill.log topic.
type SkillLogLine struct {
	TaskID string `json:"task_id"`
	Skill  string `json:"skill"`
	Line   string `json:"line"`
}

// Orchestrator wires the runtime's collaborators into the task loop. All
// dependencies are injected; the zero value is unusable.
type Orchestrator struct {
	cfg      *config.Config
	router   *models.Router
	engine   *policy.Engine
	registry *skills.Registry
	sessions *session.Store
	auditLog *audit.Log
	bus      *events.Bus
	tasks    *task.Store
	gate     Gate
	logger   *slog.Logger
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Config   *config.Config
	Router   *models.Router
	Engine   *policy.Engine
	Registry *skills.Registry
	Sessions *session.Store
	Audit    *audit.Log
	Bus      *events.Bus
	Tasks    *task.Store
	// Gate may be nil; confirmation-required actions then fail safe.
	Gate   Gate
	Logger *slog.Logger
}

// New creates an orchestrator.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		cfg:      d.Config,
		router:   d.Router,
		engine:   d.Engine,
		registry: d.Registry,
		sessions: d.Sessions,
		auditLog: d.Audit,
		bus:      d.Bus,
		tasks:    d.Tasks,
		gate:     d.Gate,
		logger:   d.Logger.With("component", "agent"),
	}
}

// Result is the outcome of one task run.
type Result struct {
	TaskID string `json:"task_id"`
	Answer string `json:"answer"`
}

// RunTask executes one task to its final answer. Policy denials, tool
// failures, and model-reported errors all complete the task with an
// explanatory answer; only infrastructure failures return a non-nil error.
// The returned Result carries the task ID even on failure.
func (o *Orchestrator) RunTask(ctx context.Context, text, profileName string) (Result, error) {
	if profileName == "" {
		profileName = o.cfg.DefaultProfile
	}
	profile := o.engine.Profile(profileName)

	t := o.tasks.Create(text, profile.Name)
	o.publishStatus(t.ID, task.StatusPending)

	answer, err := o.run(ctx, t.ID, profile.Name, text)
	return Result{TaskID: t.ID, Answer: answer}, err
}

func (o *Orchestrator) run(ctx context.Context, taskID, profileName, text string) (string, error) {
	if err := o.sessions.Create(ctx, taskID, profileName, text); err != nil {
		return o.fail(ctx, taskID, fmt.Errorf("open session: %w", err))
	}
	if err := o.tasks.Transition(taskID, task.StatusRunning); err != nil {
		return o.fail(ctx, taskID, err)
	}
	o.publishStatus(taskID, task.StatusRunning)

	if err := o.record(taskID, audit.EventTaskStarted, audit.Details{Task: text, Profile: profileName}); err != nil {
		return o.fail(ctx, taskID, err)
	}

	history := []models.Message{{Role: "user", Content: text}}
	if err := o.appendSession(ctx, taskID, session.Message{SessionID: taskID, Role: "user", Content: text}); err != nil {
		return o.fail(ctx, taskID, err)
	}

	tools := o.toolCatalog()

	for turn := 0; turn < o.cfg.MaxTurns; turn++ {
		resp, err := o.router.Generate(ctx, o.cfg.DefaultModel, models.Request{
			System:   systemPreamble,
			Messages: history,
			Tools:    tools,
		})
		if err != nil {
			return o.fail(ctx, taskID, fmt.Errorf("model turn: %w", err))
		}

		switch resp.Kind {
		case models.KindText:
			return o.finish(ctx, taskID, resp.Text)

		case models.KindError:
			return o.finish(ctx, taskID, "Model error: "+resp.ErrMsg)

		case models.KindToolCall:
			answer, done, err := o.handleToolCall(ctx, taskID, profileName, resp, &history)
			if err != nil {
				return o.fail(ctx, taskID, err)
			}
			if done {
				return o.finish(ctx, taskID, answer)
			}

		default:
			return o.fail(ctx, taskID, fmt.Errorf("unknown response kind %q", resp.Kind))
		}
	}

	return o.finish(ctx, taskID, "Task aborted: tool-call limit exceeded")
}

// handleToolCall runs the first call of a tool-call batch. done=true means
// the task ends now with answer; done=false means the result was appended
// to history and the loop continues.
func (o *Orchestrator) handleToolCall(ctx context.Context, taskID, profileName string, resp models.Response, history *[]models.Message) (answer string, done bool, err error) {
	call := resp.ToolCalls[0]
	if len(resp.ToolCalls) > 1 {
		o.logger.Debug("multiple tool calls in batch, running first only",
			"task", taskID, "count", len(resp.ToolCalls))
	}

	*history = append(*history, models.Message{Role: "assistant", ToolCalls: []models.ToolCall{call}})
	if err := o.appendSession(ctx, taskID, session.Message{
		SessionID:  taskID,
		Role:       "assistant",
		Content:    policy.RenderPreview(call.Name, call.Args),
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}); err != nil {
		return "", false, err
	}

	manifest, ok := o.registry.Get(call.Name)
	if !ok {
		return fmt.Sprintf("Skill %s not found", call.Name), true, nil
	}

	decision := o.engine.Evaluate(call.Name, call.Args, manifest, profileName)
	preview := decision.Preview
	if preview == "" {
		preview = policy.RenderPreview(call.Name, call.Args)
	}

	if !decision.Allowed {
		if !decision.RequiresConfirmation {
			return fmt.Sprintf("Permission denied: %s", decision.Reason), true, nil
		}
		approved, answer, err := o.confirm(ctx, taskID, call.Name, preview, decision)
		if err != nil || !approved {
			return answer, true, err
		}
	}

	if err := o.record(taskID, audit.EventToolCalled, audit.Details{
		Skill:   call.Name,
		CallID:  call.ID,
		Preview: preview,
	}); err != nil {
		return "", false, err
	}

	result := o.registry.Execute(ctx, call.Name, skills.Context{
		Args:    call.Args,
		Profile: o.engine.Profile(profileName),
		Settings: skills.Settings{
			Workspace:      o.cfg.Workspace,
			CommandTimeout: o.cfg.CommandTimeout,
		},
		Log: func(line string) {
			o.bus.Publish(events.TopicSkillLog, SkillLogLine{TaskID: taskID, Skill: call.Name, Line: line})
		},
	})

	okFlag := result.OK
	if err := o.record(taskID, audit.EventToolResult, audit.Details{
		Skill:  call.Name,
		CallID: call.ID,
		OK:     &okFlag,
	}); err != nil {
		return "", false, err
	}

	if !result.OK {
		return "Tool failed: " + result.Error, true, nil
	}

	*history = append(*history, models.Message{
		Role:       "tool",
		Content:    result.Data,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	})
	if err := o.appendSession(ctx, taskID, session.Message{
		SessionID:  taskID,
		Role:       "tool",
		Content:    result.Data,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}); err != nil {
		return "", false, err
	}
	return "", false, nil
}

// confirm routes a confirmable denial through the gate. Dangerous-pattern
// and command-allowlist denials reach here too: the gate is their only way
// through, auto-confirm never is.
func (o *Orchestrator) confirm(ctx context.Context, taskID, skill, preview string, decision policy.Decision) (approved bool, answer string, err error) {
	if o.gate == nil {
		return false, "Permission denied (confirmation handler missing)", nil
	}

	if err := o.record(taskID, audit.EventConfirmationRequested, audit.Details{
		Skill:   skill,
		Preview: preview,
		Reason:  string(decision.Reason),
	}); err != nil {
		return false, "", err
	}

	ok, err := o.gate.Confirm(ctx, Confirmation{
		SessionID: taskID,
		Skill:     skill,
		Preview:   preview,
		Reason:    string(decision.Reason),
	})
	if err != nil {
		return false, "", fmt.Errorf("confirmation gate: %w", err)
	}

	resolved := "denied"
	if ok {
		resolved = "approved"
	}
	if err := o.record(taskID, audit.EventConfirmationResolved, audit.Details{
		Skill:    skill,
		Decision: resolved,
	}); err != nil {
		return false, "", err
	}

	if !ok {
		return false, "Permission denied by user", nil
	}
	return true, "", nil
}

// finish completes the task with its final answer.
func (o *Orchestrator) finish(ctx context.Context, taskID, answer string) (string, error) {
	if err := o.appendSession(ctx, taskID, session.Message{SessionID: taskID, Role: "assistant", Content: answer}); err != nil {
		return o.fail(ctx, taskID, err)
	}
	// Audit before the state flip so a failed write still routes through
	// fail while the task is transitionable.
	if err := o.record(taskID, audit.EventTaskCompleted, audit.Details{Status: "completed", Answer: answer}); err != nil {
		return o.fail(ctx, taskID, err)
	}
	if err := o.sessions.Complete(ctx, taskID, "completed"); err != nil {
		return o.fail(ctx, taskID, err)
	}
	if err := o.tasks.SetOutcome(taskID, answer, ""); err != nil {
		return o.fail(ctx, taskID, err)
	}
	if err := o.tasks.Transition(taskID, task.StatusCompleted); err != nil {
		return o.fail(ctx, taskID, err)
	}
	o.publishStatus(taskID, task.StatusCompleted)
	return answer, nil
}

// fail marks the task failed. Best-effort bookkeeping: the original error is
// what the caller needs to see.
func (o *Orchestrator) fail(ctx context.Context, taskID string, cause error) (string, error) {
	o.logger.Error("task failed", "task", taskID, "error", cause)

	_ = o.sessions.Complete(ctx, taskID, "failed")
	_ = o.tasks.SetOutcome(taskID, "", cause.Error())
	// A task can fail while still pending; step it through running first.
	_ = o.tasks.Transition(taskID, task.StatusRunning)
	if err := o.tasks.Transition(taskID, task.StatusFailed); err == nil {
		o.publishStatus(taskID, task.StatusFailed)
	}
	_ = o.record(taskID, audit.EventTaskCompleted, audit.Details{Status: "failed", Reason: cause.Error()})

	return "", cause
}

func (o *Orchestrator) toolCatalog() []models.ToolSchema {
	manifests := o.registry.Manifests()
	out := make([]models.ToolSchema, 0, len(manifests))
	for _, m := range manifests {
		params := m.ArgsSchema
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		out = append(out, models.ToolSchema{
			Name:        m.Name,
			Description: m.Description,
			Parameters:  params,
		})
	}
	return out
}

func (o *Orchestrator) record(taskID, event string, details audit.Details) error {
	if err := o.auditLog.Record(audit.Entry{SessionID: taskID, Event: event, Details: details}); err != nil {
		return fmt.Errorf("audit %s: %w", event, err)
	}
	return nil
}

func (o *Orchestrator) appendSession(ctx context.Context, taskID string, m session.Message) error {
	if err := o.sessions.AppendMessage(ctx, m); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (o *Orchestrator) publishStatus(taskID string, status task.Status) {
	o.bus.Publish(events.TopicTaskStatus, StatusUpdate{TaskID: taskID, Status: status})
}
