package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"lingoloop/internal/agent"
	"lingoloop/internal/guard"
	"lingoloop/internal/llm"
)

type proofPlanArgs struct {
	BlockIDs []string `json:"blockIds"`
	Criteria []string `json:"criteria"`
	Mode     string   `json:"mode"`
}

// handleProofPlan opens a proofreading pass. With no explicit targets it
// enqueues every completed block still tagged raw.
func handleProofPlan(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a proofPlanArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Mode != "" && a.Mode != "auto" && a.Mode != "manual" {
		return nil, Errf(CodeBadToolArgs, "mode must be auto or manual, got %q", a.Mode)
	}

	j := rt.Job
	targets := a.BlockIDs
	if len(targets) == 0 {
		ids := make([]string, 0, len(j.BlocksByID))
		for id := range j.BlocksByID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			b := j.BlocksByID[id]
			if b.Quality.Tag == agent.QualityRaw && b.TranslatedText != "" &&
				!containsStr(j.PendingBlockIDs, id) {
				targets = append(targets, id)
			}
		}
	} else {
		for _, id := range targets {
			if j.Block(id) == nil {
				return nil, Errf(CodeBlockNotFound, "no block %q", id)
			}
		}
	}
	if len(targets) == 0 {
		return nil, Errf(CodeBadToolSequence, "nothing to proofread: no completed raw blocks")
	}

	j.Proofreading.Plan(targets, a.Criteria, a.Mode)
	j.Status = agent.StatusCompleting
	j.Agent.Phase = "proofreading"

	return map[string]any{
		"pass":     j.Proofreading.Pass,
		"queued":   len(targets),
		"criteria": j.Proofreading.Criteria,
	}, nil
}

func handleProofNextBlock(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	p := rt.Job.Proofreading
	if !p.Active() {
		return nil, Errf(CodeBadToolSequence, "no proofreading pass is open")
	}
	if len(p.PendingBlockIDs) == 0 {
		return map[string]any{"done": true, "remaining": 0}, nil
	}
	b := rt.Job.Block(p.PendingBlockIDs[0])
	if b == nil {
		return nil, Errf(CodeInternal, "proofreading queue references missing block %q", p.PendingBlockIDs[0])
	}
	return map[string]any{
		"blockId":        b.BlockID,
		"originalText":   b.OriginalText,
		"translatedText": b.TranslatedText,
		"pass":           p.Pass,
		"remaining":      len(p.PendingBlockIDs),
	}, nil
}

type proofTranslateArgs struct {
	BlockID string `json:"blockId"`
	Action  string `json:"action"` // proofread (default), literal, style
}

// handleProofTranslateBlock re-runs a block under proofreading criteria.
// A block that came back unchanged is on cooldown for further proofread
// attempts; literal/style rewrites bypass the guard because they change
// the target, not just retry it.
func handleProofTranslateBlock(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a proofTranslateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	j := rt.Job
	if !j.Proofreading.Active() {
		return nil, Errf(CodeBadToolSequence, "no proofreading pass is open")
	}
	b := j.Block(a.BlockID)
	if b == nil {
		return nil, Errf(CodeBlockNotFound, "no block %q", a.BlockID)
	}

	action := agent.ProofreadAction(a.Action)
	switch action {
	case "", agent.ActionProofread:
		action = agent.ActionProofread
	case agent.ActionLiteral, agent.ActionStyle:
		// Requested rewrite overrides the stuck-translation cooldown.
		j.Agent.ProofreadGuard.Forget(b.BlockID)
	default:
		return nil, Errf(CodeBadToolArgs, "action must be proofread, literal or style, got %q", a.Action)
	}

	if until, cooling := j.Agent.ProofreadGuard.Cooling(b.BlockID); cooling {
		return nil, Errf(CodeNoImprovementCool,
			"block %s yielded no improvement recently, retry after %s", b.BlockID, until.Format("15:04:05")).
			WithExtra("retryAfterTs", until)
	}

	if rt.Deps.LLM == nil {
		return nil, Errf(CodeStreamDown, "no model transport is attached to this surface")
	}

	model, temperature := proofRouteFor(j, b)
	resp, err := rt.Deps.LLM.Run(rt.jobContext(ctx), llm.Request{
		Model:       model,
		System:      proofreadSystemPrompt(j, action),
		Input:       fmt.Sprintf("Original:\n%s\n\nCurrent translation:\n%s", b.OriginalText, b.TranslatedText),
		Temperature: temperature,
	})
	if err != nil {
		return nil, Errf(CodeStreamDown, "proofread stream failed: %v", err)
	}

	if v, rec := j.Agent.ProofreadGuard.Check(b.BlockID, resp.Text); v == guard.VerdictRepeat {
		j.Agent.AddReport("warn",
			fmt.Sprintf("proofreading of block %s yielded no improvement", b.BlockID), rt.Deps.Clock())
		return nil, Errf(CodeNoImprovement,
			"proofreading returned the same translation for block %s", b.BlockID).
			WithExtra("retryAfterTs", rec.CooldownUntil)
	}

	db := rt.debouncer()
	db.Cancel(b.BlockID)
	db.Push(b.BlockID, resp.Text, true)

	j.Proofreading.RequestedActionByBlockID[b.BlockID] = action
	b.Quality = agent.Quality{
		Tag:       qualityForAction(action),
		ModelUsed: resp.Model,
		RouteUsed: "proofread",
		Pass:      j.Proofreading.Pass,
	}

	return map[string]any{
		"blockId": b.BlockID,
		"text":    resp.Text,
		"action":  string(action),
		"model":   resp.Model,
	}, nil
}

func handleProofMarkDone(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a markBlockArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	j := rt.Job
	if !j.Proofreading.Active() {
		return nil, Errf(CodeBadToolSequence, "no proofreading pass is open")
	}
	b := j.Block(a.BlockID)
	if b == nil {
		return nil, Errf(CodeBlockNotFound, "no block %q", a.BlockID)
	}

	if a.Text != "" {
		db := rt.debouncer()
		db.Cancel(a.BlockID)
		db.Push(a.BlockID, a.Text, true)
	}
	if b.Quality.Tag == agent.QualityRaw || b.Quality.Tag == "" {
		b.Quality.Tag = agent.QualityProofread
		b.Quality.Pass = j.Proofreading.Pass
	}
	j.Proofreading.MarkDone(a.BlockID)

	if rt.Deps.Memory != nil {
		rt.Deps.Memory.StoreDone(rt.jobContext(ctx), j, b)
	}

	return map[string]any{
		"blockId":   a.BlockID,
		"remaining": len(j.Proofreading.PendingBlockIDs),
		"pass":      j.Proofreading.Pass,
	}, nil
}

func handleProofMarkFailed(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a markBlockArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	j := rt.Job
	if !j.Proofreading.Active() {
		return nil, Errf(CodeBadToolSequence, "no proofreading pass is open")
	}
	if j.Block(a.BlockID) == nil {
		return nil, Errf(CodeBlockNotFound, "no block %q", a.BlockID)
	}

	j.Proofreading.MarkFailed(a.BlockID)
	j.Agent.AddReport("warn",
		fmt.Sprintf("proofreading of block %s failed: %s", a.BlockID, orUnspecified(a.Reason)), rt.Deps.Clock())

	return map[string]any{
		"blockId":   a.BlockID,
		"failed":    len(j.Proofreading.FailedBlockIDs),
		"remaining": len(j.Proofreading.PendingBlockIDs),
	}, nil
}

// handleProofFinish closes the pass. An open pass may be finished with
// blocks still pending; they simply stay at their current quality.
func handleProofFinish(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	j := rt.Job
	if !j.Proofreading.Active() {
		return nil, Errf(CodeBadToolSequence, "no proofreading pass is open")
	}
	skipped := len(j.Proofreading.PendingBlockIDs)
	pass := j.Proofreading.Pass
	j.Proofreading.Finish()

	if len(j.PendingBlockIDs) == 0 {
		j.Status = agent.StatusDone
		j.Agent.Phase = "done"
	} else {
		j.Status = agent.StatusRunning
		j.Agent.Phase = "execution"
	}

	return map[string]any{
		"pass":      pass,
		"proofread": len(j.Proofreading.DoneBlockIDs),
		"skipped":   skipped,
		"status":    j.Status,
	}, nil
}

// proofRouteFor prefers the dedicated proofread model when one is set.
func proofRouteFor(j *agent.Job, b *agent.Block) (model string, temperature float64) {
	model, temperature = routeFor(j, b)
	if pm, ok := j.RunSettings.Effective["proofreadModel"].(string); ok && pm != "" {
		model = pm
	}
	return model, temperature
}

func proofreadSystemPrompt(j *agent.Job, action agent.ProofreadAction) string {
	var sb strings.Builder
	switch action {
	case agent.ActionLiteral:
		fmt.Fprintf(&sb, "Produce a strictly literal %s translation of the original. Output only the translation.", j.TargetLanguage)
	case agent.ActionStyle:
		fmt.Fprintf(&sb, "Rewrite the %s translation for natural style while preserving meaning. Output only the translation.", j.TargetLanguage)
	default:
		fmt.Fprintf(&sb, "Proofread the %s translation against the original and return an improved version. Output only the translation.", j.TargetLanguage)
		if len(j.Proofreading.Criteria) > 0 {
			fmt.Fprintf(&sb, "\nFocus on: %s.", strings.Join(j.Proofreading.Criteria, ", "))
		}
	}
	if len(j.Agent.Glossary) > 0 {
		sb.WriteString("\nRespect the established glossary.")
	}
	return sb.String()
}

func qualityForAction(action agent.ProofreadAction) agent.QualityTag {
	switch action {
	case agent.ActionLiteral:
		return agent.QualityLiteral
	case agent.ActionStyle:
		return agent.QualityStyled
	default:
		return agent.QualityProofread
	}
}
