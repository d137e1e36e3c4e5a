// Package policy resolves the effective per-tool enablement for a job.
//
// Three layers feed the decision, in rising precedence: profile defaults
// (deployment baseline), user overrides (explicit end-user choices), and
// agent proposals (model-initiated). A capability gate sits outside the
// precedence chain: a tool whose required capability is absent resolves off
// no matter what the layers say.
package policy

import (
	"fmt"
	"sort"
)

// Mode is the resolved enablement of a single tool.
type Mode string

const (
	ModeOn   Mode = "on"
	ModeOff  Mode = "off"
	ModeAuto Mode = "auto"
)

// Valid reports whether m is one of the three known modes.
func (m Mode) Valid() bool {
	return m == ModeOn || m == ModeOff || m == ModeAuto
}

// Enabled reports whether a resolved mode permits execution.
// Auto counts as enabled; the dispatcher only refuses hard off.
func (m Mode) Enabled() bool {
	return m != ModeOff
}

// Inputs carries everything resolution depends on.
type Inputs struct {
	// Stage is the current job stage ("planning", "execution", "proofreading").
	Stage string

	// Tools lists the tool names in scope for the stage.
	Tools []string

	// ProfileDefaults is the per-deployment baseline, keyed by tool name.
	ProfileDefaults map[string]Mode

	// UserOverrides holds explicit end-user choices.
	UserOverrides map[string]Mode

	// AgentOverrides holds model-proposed overrides.
	AgentOverrides map[string]Mode

	// Capabilities flags what the hosting surface currently supports.
	Capabilities map[string]bool

	// RequiredCapability maps tool name to the capability it needs, if any.
	RequiredCapability map[string]string
}

// Decision is the full resolution output for one stage.
type Decision struct {
	// Modes maps tool name to its resolved mode.
	Modes map[string]Mode

	// Reasons maps tool name to a human-readable explanation of the
	// winning layer or gate.
	Reasons map[string]string

	// RuntimeHints lists stage-level notes (missing capabilities etc.).
	RuntimeHints []string
}

// Resolve merges the layers for every tool in scope.
// Precedence per key: profile default < user override < agent override.
// A missing capability forces off regardless of the layers.
func Resolve(in Inputs) Decision {
	d := Decision{
		Modes:   make(map[string]Mode, len(in.Tools)),
		Reasons: make(map[string]string, len(in.Tools)),
	}

	gated := make([]string, 0)
	for _, name := range in.Tools {
		mode := ModeAuto
		reason := "default"

		if m, ok := in.ProfileDefaults[name]; ok && m.Valid() {
			mode = m
			reason = "profile default"
		}
		if m, ok := in.UserOverrides[name]; ok && m.Valid() {
			mode = m
			reason = "user override"
		}
		if m, ok := in.AgentOverrides[name]; ok && m.Valid() {
			mode = m
			reason = "agent override"
		}

		if cap, ok := in.RequiredCapability[name]; ok && cap != "" && !in.Capabilities[cap] {
			mode = ModeOff
			reason = fmt.Sprintf("capability %q unavailable", cap)
			gated = append(gated, cap)
		}

		d.Modes[name] = mode
		d.Reasons[name] = reason
	}

	if len(gated) > 0 {
		sort.Strings(gated)
		seen := make(map[string]bool, len(gated))
		for _, cap := range gated {
			if seen[cap] {
				continue
			}
			seen[cap] = true
			d.RuntimeHints = append(d.RuntimeHints,
				fmt.Sprintf("capability %q is unavailable on this surface; dependent tools are off", cap))
		}
	}
	return d
}
