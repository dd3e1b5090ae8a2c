package approval

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAwaitApproved(t *testing.T) {
	s := newTestStore(t)
	w := NewWaiter(s, 5*time.Second, discardLogger())

	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := s.Approve("k1", 0); err != nil {
			t.Errorf("Approve: %v", err)
		}
	}()

	approved, err := w.Await(context.Background(), Request{Key: "k1", Skill: "shell.run"})
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !approved {
		t.Error("approved = false")
	}
}

func TestAwaitDenied(t *testing.T) {
	s := newTestStore(t)
	w := NewWaiter(s, 5*time.Second, discardLogger())

	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := s.Deny("k1"); err != nil {
			t.Errorf("Deny: %v", err)
		}
	}()

	approved, err := w.Await(context.Background(), Request{Key: "k1"})
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if approved {
		t.Error("denied request reported approved")
	}
}

func TestAwaitTimeoutDenies(t *testing.T) {
	s := newTestStore(t)
	w := NewWaiter(s, 100*time.Millisecond, discardLogger())

	approved, err := w.Await(context.Background(), Request{Key: "k1"})
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if approved {
		t.Error("timed-out request reported approved")
	}
	// The timeout denial is retired with the request, so a later call
	// starts fresh instead of inheriting it.
	if _, err := s.Get("k1"); err == nil {
		t.Error("timed-out request still on disk")
	}
}

func TestAwaitOneShotApprovalNotReused(t *testing.T) {
	s := newTestStore(t)
	w := NewWaiter(s, 200*time.Millisecond, discardLogger())

	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := s.Approve("k1", 0); err != nil {
			t.Errorf("Approve: %v", err)
		}
	}()
	approved, err := w.Await(context.Background(), Request{Key: "k1", Skill: "shell.run"})
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !approved {
		t.Fatal("first Await not approved")
	}

	// The same key with nobody approving must wait out its timeout and
	// come back refused, not ride the earlier one-shot approval.
	approved, err = w.Await(context.Background(), Request{Key: "k1", Skill: "shell.run"})
	if err != nil {
		t.Fatalf("second Await: %v", err)
	}
	if approved {
		t.Error("one-shot approval answered a second call")
	}
}

func TestAwaitWindowedApprovalReused(t *testing.T) {
	s := newTestStore(t)
	w := NewWaiter(s, 200*time.Millisecond, discardLogger())

	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := s.Approve("k1", time.Minute); err != nil {
			t.Errorf("Approve: %v", err)
		}
	}()
	if approved, err := w.Await(context.Background(), Request{Key: "k1"}); err != nil || !approved {
		t.Fatalf("first Await = %v, %v", approved, err)
	}

	// Within the granted window identical calls resolve without asking.
	approved, err := w.Await(context.Background(), Request{Key: "k1"})
	if err != nil {
		t.Fatalf("second Await: %v", err)
	}
	if !approved {
		t.Error("approval window not honored")
	}
}

func TestAwaitDenialNotReused(t *testing.T) {
	s := newTestStore(t)
	w := NewWaiter(s, 2*time.Second, discardLogger())

	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := s.Deny("k1"); err != nil {
			t.Errorf("Deny: %v", err)
		}
	}()
	if approved, err := w.Await(context.Background(), Request{Key: "k1"}); err != nil || approved {
		t.Fatalf("first Await = %v, %v", approved, err)
	}

	// The denial is spent; the next call files a fresh request that can
	// be approved on its own merits.
	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := s.Approve("k1", 0); err != nil {
			t.Errorf("Approve: %v", err)
		}
	}()
	approved, err := w.Await(context.Background(), Request{Key: "k1"})
	if err != nil {
		t.Fatalf("second Await: %v", err)
	}
	if !approved {
		t.Error("fresh request inherited the spent denial")
	}
}

func TestAwaitAlreadyResolved(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create(Request{Key: "k1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Approve("k1", time.Minute); err != nil {
		t.Fatal(err)
	}

	w := NewWaiter(s, time.Second, discardLogger())
	approved, err := w.Await(context.Background(), Request{Key: "k1"})
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !approved {
		t.Error("pre-approved request reported refused")
	}
}

func TestAwaitFiresOnPending(t *testing.T) {
	s := newTestStore(t)
	w := NewWaiter(s, time.Second, discardLogger())

	var seen *Request
	w.OnPending = func(r Request) { seen = &r }

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = s.Approve("k1", 0)
	}()

	if _, err := w.Await(context.Background(), Request{Key: "k1", Skill: "filesystem.write"}); err != nil {
		t.Fatalf("Await: %v", err)
	}
	if seen == nil || seen.Skill != "filesystem.write" {
		t.Errorf("OnPending saw %+v", seen)
	}
}
