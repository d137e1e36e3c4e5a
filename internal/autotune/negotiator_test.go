package autotune

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestNegotiator(t *testing.T) (*Negotiator, *RunSettings, *time.Time) {
	t.Helper()
	rs := NewRunSettings(Settings{
		"model":       "small-fast",
		"batchSize":   4,
		"temperature": 0.3,
	}, Settings{
		"temperature": 0.5,
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seq := 0
	n := NewNegotiator(rs, []string{"small-fast", "big-precise"}, func(string) bool { return true })
	n.SetClock(func() time.Time { return now })
	n.SetIDSource(func() string { seq++; return fmt.Sprintf("p%d", seq) })
	return n, rs, &now
}

func code(t *testing.T, err error) string {
	t.Helper()
	var ne *NegotiationError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NegotiationError, got %v", err)
	}
	return ne.Code
}

func TestNewRunSettings_Layering(t *testing.T) {
	_, rs, _ := newTestNegotiator(t)

	if rs.Effective["temperature"] != 0.5 {
		t.Errorf("user override should win over base, got %v", rs.Effective["temperature"])
	}
	if rs.Effective["model"] != "small-fast" {
		t.Errorf("base value should survive, got %v", rs.Effective["model"])
	}
}

func TestPropose_UnknownKeyRejected(t *testing.T) {
	n, _, _ := newTestNegotiator(t)

	_, err := n.Propose("execution", Settings{"turboMode": true}, "go faster")
	if code(t, err) != CodePatchInvalid {
		t.Errorf("expected SETTINGS_PATCH_INVALID, got %v", err)
	}
}

func TestPropose_ModelAllowlist(t *testing.T) {
	n, _, _ := newTestNegotiator(t)

	_, err := n.Propose("execution", Settings{"model": "untrusted-model"}, "")
	if code(t, err) != CodePatchInvalid {
		t.Errorf("model outside allowlist must be refused, got %v", err)
	}

	if _, err := n.Propose("execution", Settings{"model": "big-precise"}, ""); err != nil {
		t.Errorf("allowlisted model refused: %v", err)
	}
}

func TestPropose_ToolDependentKey(t *testing.T) {
	rs := NewRunSettings(Settings{}, nil)
	n := NewNegotiator(rs, nil, func(tool string) bool { return false })

	_, err := n.Propose("execution", Settings{"streaming": true}, "")
	if code(t, err) != CodePatchInvalid {
		t.Errorf("tool-dependent key with disabled tool must be refused, got %v", err)
	}
}

func TestPropose_RangeAndTypeChecks(t *testing.T) {
	n, _, _ := newTestNegotiator(t)

	cases := []Settings{
		{"batchSize": 0},
		{"batchSize": 2.5},
		{"batchSize": "four"},
		{"temperature": 3.0},
		{"qcEnabled": "yes"},
		{"proofreadCriteria": "vibes"},
	}
	for _, patch := range cases {
		if _, err := n.Propose("execution", patch, ""); err == nil {
			t.Errorf("patch %v should have been refused", patch)
		}
	}
}

func TestApply_HappyPath(t *testing.T) {
	n, rs, _ := newTestNegotiator(t)

	p, err := n.Propose("execution", Settings{"batchSize": 8}, "larger batches are stable")
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	applied, err := n.Apply(p.ID, false)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if applied.Status != StatusApplied {
		t.Errorf("status %s, want applied", applied.Status)
	}
	if rs.Effective["batchSize"] != 8 {
		t.Errorf("effective batchSize %v, want 8", rs.Effective["batchSize"])
	}
	if rs.AgentOverrides["batchSize"] != 8 {
		t.Errorf("agent overrides should carry the diff, got %v", rs.AgentOverrides)
	}
	if _, ok := rs.AgentOverrides["temperature"]; ok {
		t.Error("user-overridden key must not leak into agent overrides")
	}
}

func TestApply_RehydratedSettingsWithNullAntiFlap(t *testing.T) {
	_, rs, _ := newTestNegotiator(t)
	rs.AutoTune.AntiFlapByKey = nil

	// A persisted run carrying "antiFlap": null comes back with a nil map.
	data, err := json.Marshal(rs)
	if err != nil {
		t.Fatal(err)
	}
	var rehydrated RunSettings
	if err := json.Unmarshal(data, &rehydrated); err != nil {
		t.Fatal(err)
	}
	if rehydrated.AutoTune.AntiFlapByKey != nil {
		t.Fatal("fixture should rehydrate with a nil anti-flap map")
	}

	n := NewNegotiator(&rehydrated, []string{"small-fast", "big-precise"}, func(string) bool { return true })
	p, err := n.Propose("execution", Settings{"batchSize": 8}, "larger batches")
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	if _, err := n.Apply(p.ID, false); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if rehydrated.AutoTune.AntiFlapByKey["batchSize"] == nil {
		t.Error("apply should have recorded per-key history")
	}
}

func TestApply_UnknownProposal(t *testing.T) {
	n, _, _ := newTestNegotiator(t)

	_, err := n.Apply("nope", false)
	if code(t, err) != CodeProposalNotFound {
		t.Errorf("expected PROPOSAL_NOT_FOUND, got %v", err)
	}
}

func TestApply_AskUserMode(t *testing.T) {
	n, rs, now := newTestNegotiator(t)
	rs.AutoTune.Mode = "ask_user"

	p, _ := n.Propose("execution", Settings{"batchSize": 8}, "")
	_, err := n.Apply(p.ID, false)
	if code(t, err) != CodeNeedUserConfirm {
		t.Errorf("expected NEED_USER_CONFIRM, got %v", err)
	}

	*now = now.Add(time.Second)
	if _, err := n.Apply(p.ID, true); err != nil {
		t.Errorf("confirmed apply failed: %v", err)
	}
}

func TestApply_Cooldown(t *testing.T) {
	n, _, now := newTestNegotiator(t)

	p1, _ := n.Propose("execution", Settings{"batchSize": 8}, "")
	if _, err := n.Apply(p1.ID, false); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}

	*now = now.Add(10 * time.Second)
	p2, _ := n.Propose("execution", Settings{"temperature": 0.7}, "")
	_, err := n.Apply(p2.ID, false)
	if code(t, err) != CodeApplyCooldown {
		t.Errorf("expected AUTOTUNE_APPLY_COOLDOWN, got %v", err)
	}

	*now = now.Add(ApplyCooldown)
	if _, err := n.Apply(p2.ID, false); err != nil {
		t.Errorf("apply after cooldown failed: %v", err)
	}
}

func TestApply_AntiFlapRefusesRevert(t *testing.T) {
	n, _, now := newTestNegotiator(t)

	// batchSize 4 -> 8.
	p1, _ := n.Propose("execution", Settings{"batchSize": 8}, "")
	if _, err := n.Apply(p1.ID, false); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}

	// Revert 8 -> 4 inside the window.
	*now = now.Add(time.Minute)
	p2, _ := n.Propose("execution", Settings{"batchSize": 4}, "")
	_, err := n.Apply(p2.ID, false)
	if code(t, err) != CodeAntiFlap {
		t.Fatalf("expected AUTOTUNE_ANTI_FLAP, got %v", err)
	}

	// The key now cools down; even a non-revert value is refused.
	*now = now.Add(time.Second)
	p3, _ := n.Propose("execution", Settings{"batchSize": 16}, "")
	_, err = n.Apply(p3.ID, false)
	if code(t, err) != CodeAntiFlapCooldown {
		t.Errorf("expected AUTOTUNE_ANTI_FLAP_COOLDOWN, got %v", err)
	}
}

func TestApply_AntiFlapAllowsRevertAfterWindow(t *testing.T) {
	n, rs, now := newTestNegotiator(t)

	p1, _ := n.Propose("execution", Settings{"batchSize": 8}, "")
	if _, err := n.Apply(p1.ID, false); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	*now = now.Add(AntiFlapWindow + time.Second)
	p2, _ := n.Propose("execution", Settings{"batchSize": 4}, "")
	if _, err := n.Apply(p2.ID, false); err != nil {
		t.Errorf("revert outside the window should pass, got %v", err)
	}
	if rs.Effective["batchSize"] != 4 {
		t.Errorf("effective batchSize %v, want 4", rs.Effective["batchSize"])
	}
}

func TestApply_FirstChangeAlwaysAllowed(t *testing.T) {
	n, _, _ := newTestNegotiator(t)

	// No history for qcEnabled: the first change can never flap.
	p, _ := n.Propose("execution", Settings{"qcEnabled": true}, "")
	if _, err := n.Apply(p.ID, false); err != nil {
		t.Errorf("first change refused: %v", err)
	}
}

func TestApply_SupersedesOutstandingProposals(t *testing.T) {
	n, rs, _ := newTestNegotiator(t)

	p1, _ := n.Propose("execution", Settings{"batchSize": 8}, "")
	p2, _ := n.Propose("execution", Settings{"temperature": 0.9}, "")

	if _, err := n.Apply(p1.ID, false); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got := rs.FindProposal(p2.ID).Status; got != StatusSuperseded {
		t.Errorf("outstanding proposal should be superseded, got %s", got)
	}
}

func TestReject(t *testing.T) {
	n, rs, _ := newTestNegotiator(t)

	p, _ := n.Propose("execution", Settings{"batchSize": 8}, "")
	if _, err := n.Reject(p.ID, "not now"); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rs.FindProposal(p.ID).Status != StatusRejected {
		t.Error("proposal should be rejected")
	}

	if _, err := n.Reject("ghost", ""); code(t, err) != CodeProposalNotFound {
		t.Errorf("expected PROPOSAL_NOT_FOUND, got %v", err)
	}
}

func TestExplain(t *testing.T) {
	n, _, _ := newTestNegotiator(t)

	p, _ := n.Propose("execution", Settings{"batchSize": 8}, "throughput")
	if _, err := n.Apply(p.ID, false); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	n.Propose("execution", Settings{"temperature": 0.9}, "")

	ex := n.Explain("execution")
	if ex.LastAppliedID != p.ID || ex.LastAppliedWhy != "throughput" {
		t.Errorf("explain should report the last applied proposal, got %+v", ex)
	}
	if ex.OutstandingCount != 1 {
		t.Errorf("outstanding count %d, want 1", ex.OutstandingCount)
	}
	if len(ex.AgentTunedKeys) != 1 || ex.AgentTunedKeys[0] != "batchSize" {
		t.Errorf("agent-tuned keys %v, want [batchSize]", ex.AgentTunedKeys)
	}
}

func TestProposalRingIsBounded(t *testing.T) {
	n, rs, _ := newTestNegotiator(t)

	for i := 0; i < MaxProposals+20; i++ {
		if _, err := n.Propose("execution", Settings{"batchSize": 8}, ""); err != nil {
			t.Fatalf("propose %d failed: %v", i, err)
		}
	}
	if len(rs.AutoTune.Proposals) != MaxProposals {
		t.Errorf("proposal ring length %d, want %d", len(rs.AutoTune.Proposals), MaxProposals)
	}
}
