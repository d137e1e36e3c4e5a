package tools

import (
	"context"
	"encoding/json"

	"lingoloop/internal/agent"
)

type reportAddArgs struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func handleReportAdd(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a reportAddArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Message == "" {
		return nil, Errf(CodeBadToolArgs, "message is required")
	}
	switch a.Level {
	case "":
		a.Level = "info"
	case "info", "warn":
	default:
		return nil, Errf(CodeBadToolArgs, "level must be info or warn")
	}

	rt.Job.Agent.AddReport(a.Level, a.Message, rt.Deps.Clock())
	return map[string]any{"reports": len(rt.Job.Agent.Reports)}, nil
}

type checklistUpdateArgs struct {
	Items []agent.ChecklistItem `json:"items"`
}

func handleChecklistUpdate(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a checklistUpdateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Items) == 0 {
		return nil, Errf(CodeBadToolArgs, "items must not be empty")
	}
	for _, item := range a.Items {
		if item.Label == "" {
			return nil, Errf(CodeBadToolArgs, "checklist items need a label")
		}
		switch item.Status {
		case "todo", "doing", "done":
		default:
			return nil, Errf(CodeBadToolArgs, "item %q: status must be todo, doing, or done", item.Label)
		}
	}

	rt.Job.Agent.Checklist = a.Items
	return map[string]any{"items": len(a.Items)}, nil
}

type contextCompressArgs struct {
	Summary string `json:"summary"`

	// KeepReports bounds how many recent reports survive compression.
	KeepReports int `json:"keepReports"`
}

// handleContextCompress swaps accumulated working context for a short
// summary: the agent calls it when its own context window fills up.
func handleContextCompress(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a contextCompressArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Summary == "" {
		return nil, Errf(CodeBadToolArgs, "summary is required")
	}
	keep := a.KeepReports
	if keep <= 0 {
		keep = 20
	}

	st := rt.Job.Agent
	dropped := 0
	if len(st.Reports) > keep {
		dropped = len(st.Reports) - keep
		st.Reports = append([]agent.Report(nil), st.Reports[len(st.Reports)-keep:]...)
	}
	st.ContextSummary = a.Summary

	return map[string]any{"droppedReports": dropped}, nil
}
