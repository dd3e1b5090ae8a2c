package types

import (
	"encoding/json"
	"testing"
)

func TestArgsPreservesOrder(t *testing.T) {
	raw := `{"cmd":"rm -rf /tmp/x","cwd":"/tmp","attempts":2}`

	var a Args
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"cmd", "cwd", "attempts"}
	pairs := a.Pairs()
	if len(pairs) != len(want) {
		t.Fatalf("expected %d pairs, got %d", len(want), len(pairs))
	}
	for i, k := range want {
		if pairs[i].Key != k {
			t.Errorf("pair %d: expected key %q, got %q", i, k, pairs[i].Key)
		}
	}

	if s, ok := a.String("cmd"); !ok || s != "rm -rf /tmp/x" {
		t.Errorf("String(cmd) = %q, %v", s, ok)
	}
	if v, ok := a.Get("attempts"); !ok || v != float64(2) {
		t.Errorf("Get(attempts) = %v, %v", v, ok)
	}
}

func TestArgsRoundTrip(t *testing.T) {
	a := NewArgs(
		Pair{Key: "path", Value: "/project/README.md"},
		Pair{Key: "mode", Value: "text"},
	)

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"path":"/project/README.md","mode":"text"}` {
		t.Errorf("unexpected encoding: %s", data)
	}

	var back Args
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Len() != 2 {
		t.Errorf("expected 2 args after round trip, got %d", back.Len())
	}
}

func TestArgsSetOverwriteKeepsPosition(t *testing.T) {
	a := NewArgs(Pair{Key: "x", Value: 1}, Pair{Key: "y", Value: 2})
	a.Set("x", 9)

	pairs := a.Pairs()
	if pairs[0].Key != "x" || pairs[0].Value != 9 {
		t.Errorf("expected x=9 at position 0, got %+v", pairs[0])
	}
	if a.Len() != 2 {
		t.Errorf("expected length 2, got %d", a.Len())
	}
}

func TestArgsRejectsNonObject(t *testing.T) {
	var a Args
	if err := json.Unmarshal([]byte(`[1,2]`), &a); err == nil {
		t.Error("expected error for non-object input")
	}
}

func TestArgsNestedValues(t *testing.T) {
	raw := `{"opts":{"depth":3},"tags":["a","b"]}`

	var a Args
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	opts, ok := a.Get("opts")
	if !ok {
		t.Fatal("missing opts")
	}
	m, ok := opts.(map[string]any)
	if !ok || m["depth"] != float64(3) {
		t.Errorf("nested number not normalized: %#v", opts)
	}
}
