package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lingoloop/internal/config"
	"lingoloop/internal/policy"
)

func TestPolicyConfigFrom_MapsResolverInputs(t *testing.T) {
	cfg := config.Default()
	cfg.Policy.ProfileDefaults["page.get_stats"] = "auto"
	cfg.Policy.UserOverrides["context.compress"] = "off"
	cfg.Policy.Capabilities["streaming"] = false
	cfg.LLM.AllowedModels = []string{"gemini-2.5-pro"}

	pc := PolicyConfigFrom(cfg)
	if pc.ProfileDefaults["page.get_stats"] != policy.ModeAuto {
		t.Errorf("profile default not mapped: %v", pc.ProfileDefaults)
	}
	if pc.UserOverrides["context.compress"] != policy.ModeOff {
		t.Errorf("user override not mapped: %v", pc.UserOverrides)
	}
	if pc.Capabilities["streaming"] {
		t.Error("capability flag not mapped")
	}
	if len(pc.AllowedModels) != 1 || pc.AllowedModels[0] != "gemini-2.5-pro" {
		t.Errorf("allowed models not mapped: %v", pc.AllowedModels)
	}
}

func TestWatchPolicyConfig_SwapsDispatcherPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("name: live\n"), 0644); err != nil {
		t.Fatal(err)
	}

	d := testDispatcher(Deps{})
	j := testJob("hello")
	execOK(t, d, j, "page.get_stats", nil)

	w, err := d.WatchPolicyConfig(context.Background(), path)
	if err != nil {
		t.Fatalf("WatchPolicyConfig failed: %v", err)
	}
	defer w.Stop()

	next := `
policy:
  user_overrides:
    "page.get_stats": "off"
`
	if err := os.WriteFile(path, []byte(next), 0644); err != nil {
		t.Fatal(err)
	}

	// The swap lands asynchronously; the next dispatch after it re-resolves
	// the effective policy.
	deadline := time.Now().Add(10 * time.Second)
	for {
		out := exec(t, d, j, "page.get_stats", nil)
		if out["ok"] == false {
			errObj, _ := out["error"].(map[string]any)
			if errObj["code"] != CodeToolDisabled {
				t.Fatalf("unexpected refusal: %v", out)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("reloaded user override never took effect")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
