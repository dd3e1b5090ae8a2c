package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wardlabs/wardclaw/internal/audit"
	"github.com/wardlabs/wardclaw/internal/config"
	"github.com/wardlabs/wardclaw/internal/events"
	"github.com/wardlabs/wardclaw/internal/models"
	"github.com/wardlabs/wardclaw/internal/policy"
	"github.com/wardlabs/wardclaw/internal/session"
	"github.com/wardlabs/wardclaw/internal/skills"
	"github.com/wardlabs/wardclaw/internal/task"
	"github.com/wardlabs/wardclaw/internal/types"
)

// scriptedProvider returns its responses in order and repeats the last one.
type scriptedProvider struct {
	responses []models.Response
	err       error
	requests  []models.Request
	// before, when set, runs at the start of every Generate call.
	before func()
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, req models.Request) (models.Response, error) {
	if p.before != nil {
		p.before()
	}
	p.requests = append(p.requests, req)
	if p.err != nil {
		return models.Response{}, p.err
	}
	i := len(p.requests) - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}

// recordingGate resolves every confirmation with a fixed verdict.
type recordingGate struct {
	approve bool
	err     error
	asked   []Confirmation
}

func (g *recordingGate) Confirm(ctx context.Context, c Confirmation) (bool, error) {
	g.asked = append(g.asked, c)
	return g.approve, g.err
}

type harness struct {
	orch     *Orchestrator
	provider *scriptedProvider
	tasks    *task.Store
	sessions *session.Store
	audit    string
	auditLog *audit.Log
	bus      *events.Bus
}

func toolCall(name string, pairs ...types.Pair) models.Response {
	return models.Response{
		Kind:      models.KindToolCall,
		ToolCalls: []models.ToolCall{{ID: "call_1", Name: name, Args: types.NewArgs(pairs...)}},
	}
}

func newHarness(t *testing.T, provider *scriptedProvider, gate Gate) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	sessions, err := session.Open(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	auditPath := filepath.Join(dir, "audit.jsonl")
	auditLog, err := audit.Open(auditPath)
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { _ = auditLog.Close() })

	registry := skills.NewRegistry(logger)
	mustRegister := func(m *types.Manifest, h skills.Handler) {
		t.Helper()
		if err := registry.Register(m, h); err != nil {
			t.Fatal(err)
		}
	}
	mustRegister(&types.Manifest{Name: "demo.echo", Description: "echo"},
		func(ctx context.Context, inv skills.Context) skills.Result {
			msg, _ := inv.Args.String("msg")
			inv.Logf("echoing %s", msg)
			return skills.Success("echo: " + msg)
		})
	mustRegister(&types.Manifest{Name: "demo.fail", Description: "always fails"},
		func(ctx context.Context, inv skills.Context) skills.Result {
			return skills.Failure("disk on fire")
		})
	mustRegister(&types.Manifest{Name: "demo.guarded", Description: "needs a human", RequiresConfirmation: true},
		func(ctx context.Context, inv skills.Context) skills.Result {
			return skills.Success("guarded ran")
		})

	engine := policy.NewEngine([]types.Profile{
		{Name: "open", AllowedSkills: []string{"demo.*"}},
		{Name: "locked", AllowedSkills: []string{"nothing.here"}},
	})

	router := models.NewRouter(logger)
	router.Register("scripted", provider)

	cfg := config.Default()
	cfg.DefaultModel = "scripted/test-model"
	cfg.MaxTurns = 4

	bus := events.NewBus(logger)
	tasks := task.NewStore()

	orch := New(Deps{
		Config:   cfg,
		Router:   router,
		Engine:   engine,
		Registry: registry,
		Sessions: sessions,
		Audit:    auditLog,
		Bus:      bus,
		Tasks:    tasks,
		Gate:     gate,
		Logger:   logger,
	})
	return &harness{orch: orch, provider: provider, tasks: tasks, sessions: sessions, audit: auditPath, auditLog: auditLog, bus: bus}
}

func (h *harness) auditEvents(t *testing.T) []string {
	t.Helper()
	entries, err := audit.Tail(h.audit, 0)
	if err != nil {
		t.Fatalf("audit.Tail: %v", err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Event
	}
	return out
}

func (h *harness) onlyTask(t *testing.T) *task.Task {
	t.Helper()
	all := h.tasks.List()
	if len(all) != 1 {
		t.Fatalf("%d tasks in store", len(all))
	}
	return all[0]
}

func TestRunTaskTextAnswer(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{models.TextResponse("four")}}
	h := newHarness(t, p, nil)

	res, err := h.orch.RunTask(context.Background(), "what is 2+2", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if res.Answer !="four" {
		t.Errorf("answer = %q", res.Answer)
	}

	tk := h.onlyTask(t)
	if tk.ID != res.TaskID {
		t.Errorf("returned task id %s, store has %s", res.TaskID, tk.ID)
	}
	if tk.Status != task.StatusCompleted || tk.Answer != "four" {
		t.Errorf("task = %+v", tk)
	}

	events := h.auditEvents(t)
	if len(events) != 2 || events[0] != audit.EventTaskStarted || events[1] != audit.EventTaskCompleted {
		t.Errorf("audit = %v", events)
	}

	sess, msgs, err := h.sessions.Get(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("session Get: %v", err)
	}
	if sess.Status != "completed" {
		t.Errorf("session status = %s", sess.Status)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestRunTaskReturnsOwnTaskID(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{
		models.TextResponse("first"),
		models.TextResponse("second"),
	}}
	h := newHarness(t, p, nil)

	first, err := h.orch.RunTask(context.Background(), "a", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	second, err := h.orch.RunTask(context.Background(), "b", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if first.TaskID == second.TaskID {
		t.Fatalf("both runs returned task %s", first.TaskID)
	}

	// Each result must point at its own task, not whatever the store
	// lists first.
	tk, ok := h.tasks.Get(first.TaskID)
	if !ok || tk.Answer != "first" {
		t.Errorf("task %s = %+v", first.TaskID, tk)
	}
	tk, ok = h.tasks.Get(second.TaskID)
	if !ok || tk.Answer != "second" {
		t.Errorf("task %s = %+v", second.TaskID, tk)
	}
}

func TestRunTaskToolLoop(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{
		toolCall("demo.echo", types.Pair{Key: "msg", Value: "hi"}),
		models.TextResponse("the echo said hi"),
	}}
	h := newHarness(t, p, nil)

	var logged []SkillLogLine
	h.bus.Subscribe(events.TopicSkillLog, func(topic string, payload any) error {
		logged = append(logged, payload.(SkillLogLine))
		return nil
	})

	res, err := h.orch.RunTask(context.Background(), "echo hi", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if res.Answer !="the echo said hi" {
		t.Errorf("answer = %q", res.Answer)
	}

	got := h.auditEvents(t)
	want := []string{audit.EventTaskStarted, audit.EventToolCalled, audit.EventToolResult, audit.EventTaskCompleted}
	if len(got) != len(want) {
		t.Fatalf("audit = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("audit[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// The second model turn must carry the tool result back.
	second := p.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" || last.Content != "echo: hi" || last.ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", last)
	}

	if len(logged) != 1 || logged[0].Skill != "demo.echo" {
		t.Errorf("skill log = %+v", logged)
	}
}

func TestRunTaskSkillNotFound(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{toolCall("ghost.skill")}}
	h := newHarness(t, p, nil)

	res, err := h.orch.RunTask(context.Background(), "x", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if res.Answer !="Skill ghost.skill not found" {
		t.Errorf("answer = %q", res.Answer)
	}
	if tk := h.onlyTask(t); tk.Status != task.StatusCompleted {
		t.Errorf("status = %s", tk.Status)
	}
}

func TestRunTaskPolicyDenied(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{toolCall("demo.echo")}}
	h := newHarness(t, p, nil)

	res, err := h.orch.RunTask(context.Background(), "x", "locked")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if res.Answer !="Permission denied: skill_not_in_profile" {
		t.Errorf("answer = %q", res.Answer)
	}
	// A hard denial never reaches tool_called.
	for _, e := range h.auditEvents(t) {
		if e == audit.EventToolCalled {
			t.Error("denied call was audited as tool_called")
		}
	}
}

func TestRunTaskConfirmationMissingGate(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{toolCall("demo.guarded")}}
	h := newHarness(t, p, nil)

	res, err := h.orch.RunTask(context.Background(), "x", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if res.Answer !="Permission denied (confirmation handler missing)" {
		t.Errorf("answer = %q", res.Answer)
	}
}

func TestRunTaskConfirmationDenied(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{
		toolCall("demo.guarded", types.Pair{Key: "why", Value: "testing"}),
	}}
	gate := &recordingGate{approve: false}
	h := newHarness(t, p, gate)

	res, err := h.orch.RunTask(context.Background(), "x", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if res.Answer !="Permission denied by user" {
		t.Errorf("answer = %q", res.Answer)
	}
	if len(gate.asked) != 1 {
		t.Fatalf("gate asked %d times", len(gate.asked))
	}
	if gate.asked[0].Preview != `demo.guarded(why: "testing")` {
		t.Errorf("preview = %q", gate.asked[0].Preview)
	}

	got := h.auditEvents(t)
	want := []string{audit.EventTaskStarted, audit.EventConfirmationRequested, audit.EventConfirmationResolved, audit.EventTaskCompleted}
	if len(got) != len(want) {
		t.Fatalf("audit = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("audit[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRunTaskConfirmationApproved(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{
		toolCall("demo.guarded"),
		models.TextResponse("done"),
	}}
	gate := &recordingGate{approve: true}
	h := newHarness(t, p, gate)

	res, err := h.orch.RunTask(context.Background(), "x", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if res.Answer !="done" {
		t.Errorf("answer = %q", res.Answer)
	}

	got := h.auditEvents(t)
	want := []string{
		audit.EventTaskStarted,
		audit.EventConfirmationRequested,
		audit.EventConfirmationResolved,
		audit.EventToolCalled,
		audit.EventToolResult,
		audit.EventTaskCompleted,
	}
	if len(got) != len(want) {
		t.Fatalf("audit = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("audit[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRunTaskGateError(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{toolCall("demo.guarded")}}
	gate := &recordingGate{err: errors.New("gate transport lost")}
	h := newHarness(t, p, gate)

	_, err := h.orch.RunTask(context.Background(), "x", "open")
	if err == nil {
		t.Fatal("gate failure should be an infrastructure error")
	}
	if tk := h.onlyTask(t); tk.Status != task.StatusFailed {
		t.Errorf("status = %s", tk.Status)
	}
}

func TestRunTaskToolFailure(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{toolCall("demo.fail")}}
	h := newHarness(t, p, nil)

	res, err := h.orch.RunTask(context.Background(), "x", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if res.Answer !="Tool failed: disk on fire" {
		t.Errorf("answer = %q", res.Answer)
	}
	if tk := h.onlyTask(t); tk.Status != task.StatusCompleted {
		t.Errorf("tool failure should still complete the task, got %s", tk.Status)
	}
}

func TestRunTaskModelError(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{models.ErrorResponse("context window exceeded")}}
	h := newHarness(t, p, nil)

	res, err := h.orch.RunTask(context.Background(), "x", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if res.Answer !="Model error: context window exceeded" {
		t.Errorf("answer = %q", res.Answer)
	}
	if tk := h.onlyTask(t); tk.Status != task.StatusCompleted {
		t.Errorf("status = %s", tk.Status)
	}
}

func TestRunTaskTransportErrorFailsTask(t *testing.T) {
	p := &scriptedProvider{err: errors.New("connection refused")}
	h := newHarness(t, p, nil)

	_, err := h.orch.RunTask(context.Background(), "x", "open")
	if err == nil {
		t.Fatal("want error")
	}
	tk := h.onlyTask(t)
	if tk.Status != task.StatusFailed {
		t.Errorf("status = %s", tk.Status)
	}
	if !strings.Contains(tk.Error, "connection refused") {
		t.Errorf("task error = %q", tk.Error)
	}
}

func TestRunTaskTurnLimit(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{
		toolCall("demo.echo", types.Pair{Key: "msg", Value: "again"}),
	}}
	h := newHarness(t, p, nil)

	res, err := h.orch.RunTask(context.Background(), "x", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if res.Answer !="Task aborted: tool-call limit exceeded" {
		t.Errorf("answer = %q", res.Answer)
	}
	if len(p.requests) != 4 {
		t.Errorf("model called %d times, want 4", len(p.requests))
	}
	if tk := h.onlyTask(t); tk.Status != task.StatusCompleted {
		t.Errorf("status = %s", tk.Status)
	}
}

func TestRunTaskFirstToolCallOnly(t *testing.T) {
	batch := models.Response{
		Kind: models.KindToolCall,
		ToolCalls: []models.ToolCall{
			{ID: "call_1", Name: "demo.echo", Args: types.NewArgs(types.Pair{Key: "msg", Value: "one"})},
			{ID: "call_2", Name: "demo.fail"},
		},
	}
	p := &scriptedProvider{responses: []models.Response{batch, models.TextResponse("ok")}}
	h := newHarness(t, p, nil)

	res, err := h.orch.RunTask(context.Background(), "x", "open")
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if res.Answer !="ok" {
		t.Errorf("answer = %q", res.Answer)
	}

	entries, err := audit.Tail(h.audit, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Event == audit.EventToolCalled && e.Details.Skill != "demo.echo" {
			t.Errorf("executed %s, want only the first call", e.Details.Skill)
		}
	}
}

func TestRunTaskCompletionWriteFailureFailsTask(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{models.TextResponse("done")}}
	h := newHarness(t, p, nil)
	// Break the audit log right before the final answer arrives, so the
	// completion record cannot be written.
	p.before = func() { _ = h.auditLog.Close() }

	_, err := h.orch.RunTask(context.Background(), "x", "open")
	if err == nil {
		t.Fatal("want error when the completion record cannot be written")
	}
	// The caller saw an error, so the task record must say failed rather
	// than completed.
	if tk := h.onlyTask(t); tk.Status != task.StatusFailed {
		t.Errorf("status = %s, want failed", tk.Status)
	}
}

func TestRunTaskPublishesStatus(t *testing.T) {
	p := &scriptedProvider{responses: []models.Response{models.TextResponse("hi")}}
	h := newHarness(t, p, nil)

	var statuses []task.Status
	h.bus.Subscribe(events.TopicTaskStatus, func(topic string, payload any) error {
		statuses = append(statuses, payload.(StatusUpdate).Status)
		return nil
	})

	if _, err := h.orch.RunTask(context.Background(), "x", "open"); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	want := []task.Status{task.StatusPending, task.StatusRunning, task.StatusCompleted}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("statuses[%d] = %s", i, statuses[i])
		}
	}
}
