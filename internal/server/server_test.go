package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

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
	"github.com/wardlabs/wardclaw/internal/types"
)

type staticProvider struct{ text string }

func (p *staticProvider) Name() string { return "static" }

func (p *staticProvider) Generate(ctx context.Context, req models.Request) (models.Response, error) {
	return models.TextResponse(p.text), nil
}

type testEnv struct {
	srv       *Server
	http      *httptest.Server
	bus       *events.Bus
	approvals *approval.Store
	tasks     *task.Store
}

func newEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	sessions, err := session.Open(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	auditPath := filepath.Join(dir, "audit.jsonl")
	auditLog, err := audit.Open(auditPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = auditLog.Close() })

	registry := skills.NewRegistry(logger)
	if err := registry.Register(&types.Manifest{Name: "demo.echo", Description: "echo"},
		func(ctx context.Context, inv skills.Context) skills.Result {
			return skills.Success("ok")
		}); err != nil {
		t.Fatal(err)
	}

	router := models.NewRouter(logger)
	router.Register("static", &staticProvider{text: "server answer"})

	cfg := config.Default()
	cfg.DefaultModel = "static/m"

	bus := events.NewBus(logger)
	tasks := task.NewStore()

	orch := agent.New(agent.Deps{
		Config:   cfg,
		Router:   router,
		Engine:   policy.NewEngine(nil),
		Registry: registry,
		Sessions: sessions,
		Audit:    auditLog,
		Bus:      bus,
		Tasks:    tasks,
		Logger:   logger,
	})

	approvals, err := approval.NewStore(filepath.Join(dir, "pending"))
	if err != nil {
		t.Fatal(err)
	}

	srv := New(Deps{
		Addr:      "127.0.0.1:0",
		Orch:      orch,
		Tasks:     tasks,
		Registry:  registry,
		Approvals: approvals,
		Bus:       bus,
		AuditPath: auditPath,
		Secret:    secret,
		Logger:    logger,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, http: ts, bus: bus, approvals: approvals, tasks: tasks}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(e.http.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, "")
	resp, err := http.Get(e.http.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	got := decodeBody[map[string]string](t, resp)
	if got["status"] != "ok" {
		t.Errorf("body = %v", got)
	}
}

func TestCreateAndGetTask(t *testing.T) {
	e := newEnv(t, "")

	resp := e.postJSON(t, "/v1/tasks", map[string]string{"text": "hello", "profile": "readonly"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	created := decodeBody[createTaskResponse](t, resp)
	if created.Answer != "server answer" || created.TaskID == "" {
		t.Errorf("response = %+v", created)
	}

	getResp, err := http.Get(e.http.URL + "/v1/tasks/" + created.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", getResp.StatusCode)
	}
	got := decodeBody[task.Task](t, getResp)
	if got.Status != task.StatusCompleted || got.Answer != "server answer" {
		t.Errorf("task = %+v", got)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	e := newEnv(t, "")
	resp := e.postJSON(t, "/v1/tasks", map[string]string{"profile": "readonly"})
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestGetUnknownTask(t *testing.T) {
	e := newEnv(t, "")
	resp, err := http.Get(e.http.URL + "/v1/tasks/ghost")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestSkillsEndpoint(t *testing.T) {
	e := newEnv(t, "")
	resp, err := http.Get(e.http.URL + "/v1/skills")
	if err != nil {
		t.Fatal(err)
	}
	got := decodeBody[[]types.Manifest](t, resp)
	if len(got) != 1 || got[0].Name != "demo.echo" {
		t.Errorf("skills = %+v", got)
	}
}

func TestAuditEndpoint(t *testing.T) {
	e := newEnv(t, "")
	resp := e.postJSON(t, "/v1/tasks", map[string]string{"text": "hi"})
	_ = resp.Body.Close()

	auditResp, err := http.Get(e.http.URL + "/v1/audit?n=10")
	if err != nil {
		t.Fatal(err)
	}
	entries := decodeBody[[]audit.Entry](t, auditResp)
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Event != audit.EventTaskStarted {
		t.Errorf("first event = %s", entries[0].Event)
	}

	bad, err := http.Get(e.http.URL + "/v1/audit?n=zero")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = bad.Body.Close() }()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("bad n status = %d", bad.StatusCode)
	}
}

func TestPendingApproveDeny(t *testing.T) {
	e := newEnv(t, "")
	for _, key := range []string{"k1", "k2"} {
		if err := e.approvals.Create(approval.Request{Key: key, Skill: "shell.run"}); err != nil {
			t.Fatal(err)
		}
	}

	listResp, err := http.Get(e.http.URL + "/v1/pending")
	if err != nil {
		t.Fatal(err)
	}
	pending := decodeBody[[]approval.Request](t, listResp)
	if len(pending) != 2 {
		t.Fatalf("pending = %d", len(pending))
	}

	resp := e.postJSON(t, "/v1/pending/k1/approve", map[string]string{"for": "5m"})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("approve status = %d", resp.StatusCode)
	}
	status, _ := e.approvals.Check("k1")
	if status != approval.StatusApproved {
		t.Errorf("k1 status = %s", status)
	}

	resp = e.postJSON(t, "/v1/pending/k2/deny", nil)
	_ = resp.Body.Close()
	status, _ = e.approvals.Check("k2")
	if status != approval.StatusDenied {
		t.Errorf("k2 status = %s", status)
	}

	resp = e.postJSON(t, "/v1/pending/ghost/approve", nil)
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("ghost approve status = %d", resp.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := newEnv(t, "test-secret")

	resp, err := http.Get(e.http.URL + "/v1/skills")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d", resp.StatusCode)
	}

	// healthz stays open
	resp, err = http.Get(e.http.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	token, err := GenerateToken("cli", []byte("test-secret"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest("GET", e.http.URL+"/v1/skills", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d", resp.StatusCode)
	}

	wrong, err := GenerateToken("cli", []byte("other-secret"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	req, _ = http.NewRequest("GET", e.http.URL+"/v1/skills", nil)
	req.Header.Set("Authorization", "Bearer "+wrong)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("forged token status = %d", resp.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	e := newEnv(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + e.http.URL[len("http"):] + "/v1/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Give the server a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	e.bus.Publish(events.TopicTaskStatus, map[string]string{"task_id": "t1", "status": "running"})

	var frame wsEvent
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Topic != events.TopicTaskStatus {
		t.Errorf("topic = %s", frame.Topic)
	}
}
