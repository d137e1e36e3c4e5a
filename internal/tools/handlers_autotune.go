package tools

import (
	"context"
	"encoding/json"

	"lingoloop/internal/autotune"
)

func handleAutotuneGetContext(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	rs := rt.Job.RunSettings

	specs := autotune.DefaultKeySpecs()
	settable := make([]string, 0, len(specs))
	for key := range specs {
		settable = append(settable, key)
	}

	return map[string]any{
		"stage":          rt.Stage,
		"effective":      rs.Effective,
		"userOverrides":  rs.UserOverrides,
		"agentOverrides": rs.AgentOverrides,
		"settableKeys":   settable,
		"mode":           rs.AutoTune.Mode,
		"lastAppliedTs":  rs.AutoTune.LastAppliedAt,
	}, nil
}

type autotuneProposeArgs struct {
	Patch  map[string]any `json:"patch"`
	Reason string         `json:"reason"`
}

func handleAutotunePropose(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a autotuneProposeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	p, err := rt.negotiator().Propose(string(rt.Stage), autotune.Settings(a.Patch), a.Reason)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"proposalId":  p.ID,
		"diffSummary": p.DiffSummary,
		"warnings":    p.Warnings,
	}, nil
}

type autotuneApplyArgs struct {
	ProposalID      string `json:"proposalId"`
	ConfirmedByUser bool   `json:"confirmedByUser"`
}

func handleAutotuneApply(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a autotuneApplyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.ProposalID == "" {
		return nil, Errf(CodeBadToolArgs, "proposalId is required")
	}

	p, err := rt.negotiator().Apply(a.ProposalID, a.ConfirmedByUser)
	if err != nil {
		return nil, err
	}

	rt.Job.Agent.AddReport("info", "settings applied: "+p.DiffSummary, rt.Deps.Clock())
	return map[string]any{
		"proposalId": p.ID,
		"applied":    p.Patch,
		"effective":  rt.Job.RunSettings.Effective,
	}, nil
}

type autotuneRejectArgs struct {
	ProposalID string `json:"proposalId"`
	Reason     string `json:"reason"`
}

func handleAutotuneReject(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a autotuneRejectArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.ProposalID == "" {
		return nil, Errf(CodeBadToolArgs, "proposalId is required")
	}

	p, err := rt.negotiator().Reject(a.ProposalID, a.Reason)
	if err != nil {
		return nil, err
	}
	return map[string]any{"proposalId": p.ID, "status": p.Status}, nil
}

func handleAutotuneExplain(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	ex := rt.negotiator().Explain(string(rt.Stage))
	return map[string]any{"explanation": ex}, nil
}
