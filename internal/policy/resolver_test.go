package policy

import "testing"

func TestResolve_PrecedenceChain(t *testing.T) {
	in := Inputs{
		Stage: "execution",
		Tools: []string{"a", "b", "c", "d"},
		ProfileDefaults: map[string]Mode{
			"a": ModeOff, "b": ModeOff, "c": ModeOff,
		},
		UserOverrides: map[string]Mode{
			"b": ModeOn, "c": ModeOn,
		},
		AgentOverrides: map[string]Mode{
			"c": ModeOff,
		},
	}

	d := Resolve(in)

	if d.Modes["a"] != ModeOff {
		t.Errorf("a: profile default should win, got %s", d.Modes["a"])
	}
	if d.Modes["b"] != ModeOn {
		t.Errorf("b: user override should beat profile, got %s", d.Modes["b"])
	}
	if d.Modes["c"] != ModeOff {
		t.Errorf("c: agent override should beat user, got %s", d.Modes["c"])
	}
	if d.Modes["d"] != ModeAuto {
		t.Errorf("d: unconfigured tool should be auto, got %s", d.Modes["d"])
	}
}

func TestResolve_CapabilityGateForcesOff(t *testing.T) {
	in := Inputs{
		Stage:              "execution",
		Tools:              []string{"stream"},
		UserOverrides:      map[string]Mode{"stream": ModeOn},
		AgentOverrides:     map[string]Mode{"stream": ModeOn},
		Capabilities:       map[string]bool{},
		RequiredCapability: map[string]string{"stream": "streaming"},
	}

	d := Resolve(in)

	if d.Modes["stream"] != ModeOff {
		t.Errorf("capability gate should force off, got %s", d.Modes["stream"])
	}
	if len(d.RuntimeHints) == 0 {
		t.Error("expected a runtime hint naming the missing capability")
	}
}

func TestResolve_InvalidLayerValueIgnored(t *testing.T) {
	in := Inputs{
		Tools:         []string{"a"},
		UserOverrides: map[string]Mode{"a": Mode("sometimes")},
	}

	d := Resolve(in)
	if d.Modes["a"] != ModeAuto {
		t.Errorf("invalid mode value should be skipped, got %s", d.Modes["a"])
	}
}

func TestMode_Enabled(t *testing.T) {
	if !ModeOn.Enabled() || !ModeAuto.Enabled() {
		t.Error("on and auto should count as enabled")
	}
	if ModeOff.Enabled() {
		t.Error("off should not count as enabled")
	}
}
