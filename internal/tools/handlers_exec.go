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

type nextBlockArgs struct {
	BatchSize int `json:"batchSize"`
}

// handleNextBlock hands the model its next unit(s) of work. Identical
// consecutive batches feed the repeated-batch counter the auditor reads.
func handleNextBlock(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a nextBlockArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.BatchSize < 0 {
		return nil, Errf(CodeBadToolArgs, "batchSize must be non-negative")
	}
	size := a.BatchSize
	if size == 0 {
		size = settingsInt(rt.Job, "batchSize", 1)
	}

	j := rt.Job
	if j.Status == agent.StatusAwaitingCategories {
		return nil, Errf(CodeBadToolSequence, "job is awaiting user category selection")
	}
	if j.Status == agent.StatusPreparing || j.Status == agent.StatusPlanning {
		j.Status = agent.StatusRunning
		j.Agent.Phase = "execution"
	}

	var batch []map[string]any
	var ids []string
	for _, id := range j.PendingBlockIDs {
		if len(batch) >= size {
			break
		}
		b := j.BlocksByID[id]
		if b == nil {
			continue
		}
		if len(j.SelectedCategories) > 0 && b.Category != "" && !containsStr(j.SelectedCategories, b.Category) {
			continue
		}
		ids = append(ids, id)
		batch = append(batch, map[string]any{
			"blockId":      b.BlockID,
			"originalText": b.OriginalText,
			"category":     b.Category,
			"attempts":     b.TranslateAttempts,
		})
	}
	j.Agent.TrackBatch(strings.Join(ids, ","))

	if len(batch) == 0 {
		// Category filtering can empty the batch while blocks are still
		// pending; only a drained pending set means done.
		return map[string]any{
			"done":      len(j.PendingBlockIDs) == 0,
			"remaining": len(j.PendingBlockIDs),
		}, nil
	}
	return map[string]any{
		"blocks":    batch,
		"remaining": len(j.PendingBlockIDs),
	}, nil
}

type translateBlockArgs struct {
	BlockID string `json:"blockId"`
}

// handleTranslateBlock translates one unit, streaming deltas through the
// debouncer. Translation memory is consulted first; a hit skips the model
// call entirely and lands as a single final flush.
func handleTranslateBlock(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a translateBlockArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	b := rt.Job.Block(a.BlockID)
	if b == nil {
		return nil, Errf(CodeBlockNotFound, "no block %q", a.BlockID)
	}

	callCtx := rt.jobContext(ctx)
	db := rt.debouncer()

	if rt.Deps.Memory != nil {
		if cached, hit := rt.Deps.Memory.Lookup(callCtx, rt.Job, b); hit {
			db.Cancel(b.BlockID)
			db.Push(b.BlockID, cached, true)
			b.TranslateAttempts++
			if b.Quality.Tag == "" {
				b.Quality.Tag = agent.QualityRaw
			}
			b.Quality.RouteUsed = "memory"
			return map[string]any{
				"blockId":    b.BlockID,
				"text":       cached,
				"fromMemory": true,
			}, nil
		}
	}

	if rt.Deps.LLM == nil {
		return nil, Errf(CodeStreamDown, "no model transport is attached to this surface")
	}

	model, temperature := routeFor(rt.Job, b)
	resp, err := rt.Deps.LLM.Run(callCtx, llm.Request{
		Model:       model,
		System:      translateSystemPrompt(rt.Job),
		Input:       translateInput(rt.Job, b),
		Temperature: temperature,
		Stream:      settingsBool(rt.Job, "streaming", true),
		OnDelta: func(delta string) {
			db.Push(b.BlockID, delta, false)
		},
	})
	if err != nil {
		db.Cancel(b.BlockID)
		return nil, Errf(CodeStreamDown, "translation stream failed: %v", err)
	}

	// Final flush: supersede whatever the lane accumulated with the
	// response's authoritative total.
	db.Cancel(b.BlockID)
	db.Push(b.BlockID, resp.Text, true)

	b.TranslateAttempts++
	b.Quality = agent.Quality{Tag: agent.QualityRaw, ModelUsed: resp.Model, RouteUsed: "stream", Pass: b.Quality.Pass}

	if v, _ := rt.Job.Agent.TranslateGuard.Check(b.BlockID, resp.Text); v == guard.VerdictRepeat {
		rt.Job.Agent.AddReport("warn",
			fmt.Sprintf("block %s produced an identical translation twice", b.BlockID), rt.Deps.Clock())
	}

	return map[string]any{
		"blockId": b.BlockID,
		"text":    resp.Text,
		"model":   resp.Model,
	}, nil
}

type applyDeltaArgs struct {
	BlockID string `json:"blockId"`
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

func handleApplyDelta(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a applyDeltaArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	b := rt.Job.Block(a.BlockID)
	if b == nil {
		return nil, Errf(CodeBlockNotFound, "no block %q", a.BlockID)
	}

	db := rt.debouncer()
	if a.IsFinal && b.TranslatedText == a.Text {
		// Re-applying the final text is a no-op; the lane (if any) still
		// needs tearing down.
		db.Cancel(a.BlockID)
		return map[string]any{"applied": true, "final": true}, nil
	}
	db.Push(a.BlockID, a.Text, a.IsFinal)

	return map[string]any{"applied": true, "final": a.IsFinal}, nil
}

type markBlockArgs struct {
	BlockID string `json:"blockId"`
	Text    string `json:"text"`
	Reason  string `json:"reason"`
}

func handleMarkBlockDone(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a markBlockArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	j := rt.Job
	b := j.Block(a.BlockID)
	if b == nil {
		return nil, Errf(CodeBlockNotFound, "no block %q", a.BlockID)
	}

	if a.Text != "" {
		db := rt.debouncer()
		db.Cancel(a.BlockID)
		db.Push(a.BlockID, a.Text, true)
	}
	if b.Quality.Tag == "" {
		b.Quality.Tag = agent.QualityRaw
	}

	j.MarkBlockDone(a.BlockID)

	if rt.Deps.Memory != nil {
		rt.Deps.Memory.StoreDone(rt.jobContext(ctx), j, b)
	}

	if len(j.PendingBlockIDs) == 0 && !j.Proofreading.Active() {
		j.Status = agent.StatusDone
		j.Agent.Phase = "done"
	}

	return map[string]any{
		"blockId":         a.BlockID,
		"completedBlocks": j.CompletedBlocks,
		"remaining":       len(j.PendingBlockIDs),
		"status":          j.Status,
	}, nil
}

func handleMarkBlockFailed(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a markBlockArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	j := rt.Job
	b := j.Block(a.BlockID)
	if b == nil {
		return nil, Errf(CodeBlockNotFound, "no block %q", a.BlockID)
	}

	rt.debouncer().Cancel(a.BlockID)
	b.TranslateAttempts++
	j.MarkBlockFailed(a.BlockID)
	j.Agent.AddReport("warn",
		fmt.Sprintf("block %s failed: %s", a.BlockID, orUnspecified(a.Reason)), rt.Deps.Clock())

	return map[string]any{
		"blockId":   a.BlockID,
		"failed":    len(j.FailedBlockIDs),
		"remaining": len(j.PendingBlockIDs),
	}, nil
}

// handleAuditProgress is advisory: a stall or loop signal tells the
// orchestrating layer to consider escalation, it never halts the job here.
func handleAuditProgress(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	signal := rt.Job.Agent.ProgressAudit.Audit(progressSnapshot(rt.Job, rt.Stage), rt.Deps.Clock())

	switch signal {
	case guard.SignalRepeatLoop:
		return nil, Errf(CodeAgentRepeatLoop,
			"the same batch has been requested %d times in a row", rt.Job.Agent.RepeatedBatches)
	case guard.SignalNoProgress:
		return nil, Errf(CodeAgentNoProgress,
			"no observable progress across %d consecutive audits", guard.StallThreshold)
	}
	return map[string]any{
		"progressing":     true,
		"completedBlocks": rt.Job.CompletedBlocks,
		"remaining":       len(rt.Job.PendingBlockIDs),
	}, nil
}

// --- shared helpers ---

// routeFor picks model and temperature: per-category pipeline first,
// effective run settings second.
func routeFor(j *agent.Job, b *agent.Block) (model string, temperature float64) {
	model, _ = j.RunSettings.Effective["model"].(string)
	if t, ok := toFloat(j.RunSettings.Effective["temperature"]); ok {
		temperature = t
	}
	if cfg := j.Agent.Pipeline[b.Category]; cfg != nil && cfg.Model != "" {
		model = cfg.Model
	}
	return model, temperature
}

func translateSystemPrompt(j *agent.Job) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a document translator. Translate into %s. Output only the translation.", j.TargetLanguage)
	if len(j.Agent.Glossary) > 0 {
		sb.WriteString("\nGlossary (term = required translation):")
		terms := make([]string, 0, len(j.Agent.Glossary))
		for term := range j.Agent.Glossary {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			fmt.Fprintf(&sb, "\n%s = %s", term, j.Agent.Glossary[term])
		}
	}
	if j.Agent.ContextSummary != "" {
		sb.WriteString("\nDocument context: ")
		sb.WriteString(j.Agent.ContextSummary)
	}
	return sb.String()
}

func translateInput(j *agent.Job, b *agent.Block) string {
	return b.OriginalText
}

func settingsInt(j *agent.Job, key string, fallback int) int {
	if f, ok := toFloat(j.RunSettings.Effective[key]); ok && f > 0 {
		return int(f)
	}
	return fallback
}

func settingsBool(j *agent.Job, key string, fallback bool) bool {
	if b, ok := j.RunSettings.Effective[key].(bool); ok {
		return b
	}
	return fallback
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func containsStr(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}

func orUnspecified(s string) string {
	if s == "" {
		return "unspecified"
	}
	return s
}
