package tools

import (
	"context"
	"encoding/json"

	"lingoloop/internal/policy"
)

func handleGetToolPolicy(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	st := rt.Job.Agent
	return map[string]any{
		"stage":        rt.Stage,
		"modes":        st.ToolPolicyEffective,
		"reasons":      st.ToolPolicyReasons,
		"runtimeHints": st.ToolPolicyRuntimeHints,
	}, nil
}

type toolPolicyArgs struct {
	Tools map[string]string `json:"tools"`
}

// validateToolPolicyPatch checks names and mode values.
func validateToolPolicyPatch(a toolPolicyArgs) (map[string]policy.Mode, error) {
	if len(a.Tools) == 0 {
		return nil, Errf(CodeBadToolArgs, "tools must not be empty")
	}
	out := make(map[string]policy.Mode, len(a.Tools))
	for name, raw := range a.Tools {
		if _, ok := lookupTool(name); !ok {
			return nil, Errf(CodeUnknownTool, "no such tool %q", name)
		}
		m := policy.Mode(raw)
		if !m.Valid() {
			return nil, Errf(CodeBadToolArgs, "tool %q: mode must be on, off, or auto", name)
		}
		out[name] = m
	}
	return out, nil
}

// handleSetToolPolicy applies agent-layer tool overrides and re-resolves
// immediately so the change is visible to this same dispatch cycle's
// followers (autotune tool-compat checks, policy.get_tool_policy).
func handleSetToolPolicy(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a toolPolicyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	modes, err := validateToolPolicyPatch(a)
	if err != nil {
		return nil, err
	}

	st := rt.Job.Agent
	if st.AgentToolOverrides == nil {
		st.AgentToolOverrides = make(map[string]policy.Mode)
	}
	for name, m := range modes {
		st.AgentToolOverrides[name] = m
	}
	st.InvalidatePolicyCache()
	rt.dispatcher.resolvePolicy(rt.Job, rt.Stage)

	return map[string]any{
		"applied": modes,
		"modes":   st.ToolPolicyEffective,
	}, nil
}

// handleProposeToolPolicy is the dry-run variant: it reports what the
// patch would change without mutating the agent layer.
func handleProposeToolPolicy(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a toolPolicyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	modes, err := validateToolPolicyPatch(a)
	if err != nil {
		return nil, err
	}

	st := rt.Job.Agent
	changes := make(map[string]map[string]any)
	for name, m := range modes {
		cur := st.ToolPolicyEffective[name]
		if cur == m {
			continue
		}
		changes[name] = map[string]any{"from": cur, "to": m}
	}
	return map[string]any{"wouldChange": changes}, nil
}
