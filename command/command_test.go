package command

import (
	"math"
	"testing"
)

func TestNew_RejectsEmptyType(t *testing.T) {
	if _, err := New("", PriorityPlayer, 0, 0, nil, "req-1"); err == nil {
		t.Fatal("expected error for empty type")
	}
}

func TestNew_RejectsInvalidPriority(t *testing.T) {
	if _, err := New("spend", Priority(99), 0, 0, nil, "req-1"); err == nil {
		t.Fatal("expected error for invalid priority")
	}
}

func TestNew_RejectsNegativeTimestampOrStep(t *testing.T) {
	if _, err := New("spend", PriorityPlayer, -1, 0, nil, "req-1"); err == nil {
		t.Fatal("expected error for negative timestamp")
	}
	if _, err := New("spend", PriorityPlayer, 0, -1, nil, "req-1"); err == nil {
		t.Fatal("expected error for negative step")
	}
}

func TestNew_RejectsNonJSONSafePayload(t *testing.T) {
	if _, err := New("spend", PriorityPlayer, 0, 0, map[string]any{"amount": math.NaN()}, "req-1"); err == nil {
		t.Fatal("expected error for NaN in payload")
	}
	if _, err := New("spend", PriorityPlayer, 0, 0, func() {}, "req-1"); err == nil {
		t.Fatal("expected error for function payload")
	}
}

func TestNew_AcceptsValidCommand(t *testing.T) {
	c, err := New("spend", PriorityPlayer, 10, 5, map[string]any{"amount": 1.5}, "req-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Type() != "spend" || c.Priority() != PriorityPlayer || c.Step() != 5 || c.RequestID() != "req-1" {
		t.Fatal("constructed command fields do not match inputs")
	}
}

func TestIsJSONSafePayload_DetectsCycles(t *testing.T) {
	m := map[string]any{}
	m["self"] = m
	if IsJSONSafePayload(m) {
		t.Fatal("expected cyclic map to be rejected")
	}
}

func TestIsJSONSafePayload_AllowsNestedSafeValues(t *testing.T) {
	payload := map[string]any{
		"list": []any{1, "two", 3.0, nil, true},
		"nested": map[string]any{
			"inner": []any{"a", "b"},
		},
	}
	if !IsJSONSafePayload(payload) {
		t.Fatal("expected nested plain values to be JSON-safe")
	}
}

func TestPriority_StringAndValid(t *testing.T) {
	cases := map[Priority]string{
		PriorityPlayer:     "PLAYER",
		PriorityAutomation: "AUTOMATION",
		PrioritySystem:     "SYSTEM",
	}
	for p, want := range cases {
		if !p.Valid() {
			t.Fatalf("expected %v to be valid", p)
		}
		if got := p.String(); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
	if Priority(42).Valid() {
		t.Fatal("expected out-of-range priority to be invalid")
	}
}

func TestAuthorize_PermitsUnlistedType(t *testing.T) {
	c, _ := New("unlisted-type", PriorityPlayer, 0, 0, nil, "req-1")
	ok, event := Authorize(c, PhaseLive)
	if !ok || event != nil {
		t.Fatal("expected a type absent from AUTHORIZATIONS to be permitted")
	}
}

func TestAuthorize_RejectsDisallowedPriority(t *testing.T) {
	const typ = "test-admin-only"
	AUTHORIZATIONS[typ] = Policy{AllowedPriorities: []Priority{PrioritySystem}, Reason: "admin only"}
	defer delete(AUTHORIZATIONS, typ)

	c, _ := New(typ, PriorityPlayer, 0, 0, nil, "req-1")
	ok, event := Authorize(c, PhaseLive)
	if ok {
		t.Fatal("expected rejection for disallowed priority")
	}
	if event == nil {
		t.Fatal("expected an UnauthorizedEvent on rejection")
	}
	if event.Type != typ || event.AttemptedPriority != PriorityPlayer || event.Phase != PhaseLive || event.Reason != "admin only" {
		t.Fatalf("unexpected event contents: %+v", event)
	}
}

func TestAuthorize_PermitsAllowedPriority(t *testing.T) {
	const typ = "test-system-or-player"
	AUTHORIZATIONS[typ] = Policy{AllowedPriorities: []Priority{PrioritySystem, PriorityPlayer}}
	defer delete(AUTHORIZATIONS, typ)

	c, _ := New(typ, PriorityPlayer, 0, 0, nil, "req-1")
	ok, event := Authorize(c, PhaseReplay)
	if !ok || event != nil {
		t.Fatal("expected permitted priority to pass authorization")
	}
}
