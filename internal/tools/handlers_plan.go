package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"lingoloop/internal/agent"
)

type setTaxonomyArgs struct {
	Categories      []string          `json:"categories"`
	CategoryByBlock map[string]string `json:"categoryByBlock"`
	CategoryByRange map[string]string `json:"categoryByRange"`
	Glossary        map[string]string `json:"glossary"`
}

func handleSetTaxonomy(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a setTaxonomyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Categories) == 0 {
		return nil, Errf(CodeBadToolArgs, "categories must not be empty")
	}

	known := make(map[string]bool, len(a.Categories))
	for _, c := range a.Categories {
		known[c] = true
	}
	for blockID, cat := range a.CategoryByBlock {
		if !known[cat] {
			return nil, Errf(CodeBadToolArgs, "block %q maps to undeclared category %q", blockID, cat)
		}
		if rt.Job.Block(blockID) == nil {
			return nil, Errf(CodeBlockNotFound, "no block %q", blockID)
		}
	}
	for rangeID, cat := range a.CategoryByRange {
		if !known[cat] {
			return nil, Errf(CodeBadToolArgs, "range %q maps to undeclared category %q", rangeID, cat)
		}
	}

	st := rt.Job.Agent
	st.Taxonomy = agent.Taxonomy{
		Categories:      a.Categories,
		CategoryByBlock: a.CategoryByBlock,
		CategoryByRange: a.CategoryByRange,
	}
	for blockID, cat := range a.CategoryByBlock {
		rt.Job.Block(blockID).Category = cat
	}
	for term, translation := range a.Glossary {
		st.Glossary[term] = translation
	}

	// Changing the taxonomy invalidates a previous finish-analysis pass.
	st.FinishAnalysisValidated = false

	return map[string]any{
		"categories":   a.Categories,
		"mappedBlocks": len(a.CategoryByBlock),
	}, nil
}

type setPipelineArgs struct {
	Pipeline map[string]*agent.PipelineConfig `json:"pipeline"`
}

func handleSetPipeline(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a setPipelineArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Pipeline) == 0 {
		return nil, Errf(CodeBadToolArgs, "pipeline must not be empty")
	}

	for cat, cfg := range a.Pipeline {
		if cfg == nil {
			return nil, Errf(CodeBadToolArgs, "category %q has no pipeline config", cat)
		}
		if cfg.BatchSize < 0 || cfg.BatchSize > 64 {
			return nil, Errf(CodeBadToolArgs, "category %q batchSize out of range", cat)
		}
	}

	st := rt.Job.Agent
	for cat, cfg := range a.Pipeline {
		st.Pipeline[cat] = cfg
	}
	st.FinishAnalysisValidated = false

	return map[string]any{"configuredCategories": len(st.Pipeline)}, nil
}

type recommendCategoriesArgs struct {
	Categories []string `json:"categories"`
	Rationale  string   `json:"rationale"`
}

func handleRecommendCategories(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	var a recommendCategoriesArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Categories) == 0 {
		return nil, Errf(CodeBadToolArgs, "categories must not be empty")
	}
	if rt.Deps.Selector == nil {
		return nil, Errf(CodeSelectorDown, "no category selector is attached to this surface")
	}
	if err := rt.Deps.Selector.SetAgentCategoryRecommendations(ctx, rt.Job, a.Categories, a.Rationale); err != nil {
		return nil, Errf(CodeSelectorDown, "category selector failed: %v", err)
	}
	return map[string]any{"recommended": a.Categories}, nil
}

// handleRequestFinishAnalysis validates that the plan is complete: a
// taxonomy exists and every category has a pipeline. Success arms
// ui.ask_user_categories.
func handleRequestFinishAnalysis(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	st := rt.Job.Agent

	if len(st.Taxonomy.Categories) == 0 {
		return nil, Errf(CodePlanIncomplete, "no taxonomy has been set")
	}
	var missing []string
	for _, cat := range st.Taxonomy.Categories {
		if _, ok := st.Pipeline[cat]; !ok {
			missing = append(missing, cat)
		}
	}
	if len(missing) > 0 {
		return nil, Errf(CodePlanIncomplete, "categories without a pipeline: %v", missing)
	}

	st.FinishAnalysisValidated = true
	st.AddReport("info", "plan validated: analysis complete", rt.Deps.Clock())

	return map[string]any{
		"validated":  true,
		"categories": st.Taxonomy.Categories,
	}, nil
}

// handleAskUserCategories hands category selection to the user. Refused
// until a finish-analysis validation has succeeded.
func handleAskUserCategories(ctx context.Context, rt *Runtime, args json.RawMessage) (map[string]any, error) {
	st := rt.Job.Agent
	if !st.FinishAnalysisValidated {
		return nil, Errf(CodeBadToolSequence,
			"ask_user_categories requires a successful plan.request_finish_analysis first")
	}
	if rt.Deps.Selector == nil {
		return nil, Errf(CodeSelectorDown, "no category selector is attached to this surface")
	}
	if err := rt.Deps.Selector.SetSelectedCategories(ctx, rt.Job, st.Taxonomy.Categories); err != nil {
		return nil, Errf(CodeSelectorDown, "category selector failed: %v", err)
	}

	rt.Job.Status = agent.StatusAwaitingCategories
	st.Phase = "awaiting_categories"
	st.AddReport("info", fmt.Sprintf("awaiting user category selection (%d categories)",
		len(st.Taxonomy.Categories)), rt.Deps.Clock())

	return map[string]any{"status": rt.Job.Status}, nil
}
