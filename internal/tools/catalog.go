package tools

import "lingoloop/internal/agent"

// ToolInfo describes one catalog entry.
type ToolInfo struct {
	// Name is the dotted tool identifier the model calls.
	Name string

	// Description is surfaced to the model alongside the schema.
	Description string

	// Stages lists the scopes the tool is offered in.
	Stages []agent.Stage

	// RequiresCapability names a host capability the tool cannot run
	// without; the policy resolver force-disables it when absent.
	RequiresCapability string
}

var planningStages = []agent.Stage{agent.StagePlanning, agent.StageExecution}
var sharedStages = []agent.Stage{agent.StagePlanning, agent.StageExecution, agent.StageProofreading}
var executionStages = []agent.Stage{agent.StageExecution}
var proofStages = []agent.Stage{agent.StageProofreading}

// catalog is the static tool list. The dispatcher verifies at construction
// that every entry has exactly one registered handler.
var catalog = []ToolInfo{
	// Planning tools stay available during execution so the agent can
	// refine its taxonomy mid-run, but not once a proofreading pass opens.
	{Name: "page.get_stats", Description: "Page and job statistics", Stages: planningStages},
	{Name: "page.get_blocks", Description: "Inspect translatable blocks", Stages: planningStages},
	{Name: "page.get_preanalysis", Description: "Classifier pre-analysis summary", Stages: planningStages, RequiresCapability: "classifier"},
	{Name: "page.get_ranges", Description: "Inspect grouped block ranges", Stages: planningStages},
	{Name: "plan.set_taxonomy", Description: "Set content categories and block mapping", Stages: planningStages},
	{Name: "plan.set_pipeline", Description: "Set per-category execution pipeline", Stages: planningStages},
	{Name: "plan.recommend_categories", Description: "Recommend categories for user selection", Stages: planningStages, RequiresCapability: "category_selector"},
	{Name: "plan.request_finish_analysis", Description: "Validate the plan before user handoff", Stages: planningStages},
	{Name: "ui.ask_user_categories", Description: "Hand category selection to the user", Stages: planningStages, RequiresCapability: "category_selector"},

	// Shared tools stay available in every stage.
	{Name: "policy.get_tool_policy", Description: "Inspect effective tool policy", Stages: sharedStages},
	{Name: "policy.set_tool_policy", Description: "Override tool policy (agent layer)", Stages: sharedStages},
	{Name: "policy.propose_tool_policy", Description: "Dry-run a tool policy change", Stages: sharedStages},
	{Name: "autotune.get_context", Description: "Current run settings and constraints", Stages: sharedStages},
	{Name: "autotune.propose", Description: "Propose a run settings patch", Stages: sharedStages},
	{Name: "autotune.apply", Description: "Apply a settings proposal", Stages: sharedStages},
	{Name: "autotune.reject", Description: "Reject a settings proposal", Stages: sharedStages},
	{Name: "autotune.explain", Description: "Explain current effective settings", Stages: sharedStages},
	{Name: "report.add", Description: "Append to the event log", Stages: sharedStages},
	{Name: "checklist.update", Description: "Update the plan checklist", Stages: sharedStages},
	{Name: "context.compress", Description: "Replace accumulated context with a summary", Stages: sharedStages},

	// Execution tools.
	{Name: "job.next_block", Description: "Fetch the next pending block(s)", Stages: executionStages},
	{Name: "job.translate_block", Description: "Translate one block, streaming", Stages: executionStages, RequiresCapability: "streaming"},
	{Name: "job.apply_delta", Description: "Apply partial or final translated text", Stages: executionStages},
	{Name: "job.mark_block_done", Description: "Mark a block translated", Stages: executionStages},
	{Name: "job.mark_block_failed", Description: "Mark a block failed", Stages: executionStages},
	{Name: "job.audit_progress", Description: "Check for stalls and loops", Stages: []agent.Stage{agent.StageExecution, agent.StageProofreading}},

	// Proofreading tools.
	{Name: "proof.plan", Description: "Plan a proofreading pass", Stages: []agent.Stage{agent.StageExecution, agent.StageProofreading}},
	{Name: "proof.next_block", Description: "Fetch the next block to proofread", Stages: proofStages},
	{Name: "proof.translate_block", Description: "Re-translate one block, streaming", Stages: proofStages, RequiresCapability: "streaming"},
	{Name: "proof.mark_done", Description: "Mark a block proofread", Stages: proofStages},
	{Name: "proof.mark_failed", Description: "Mark a proofread attempt failed", Stages: proofStages},
	{Name: "proof.finish", Description: "End the proofreading pass", Stages: proofStages},
}

// deprecatedAliases maps retired tool names to their replacements.
var deprecatedAliases = map[string]string{
	"job.fetch_next":        "job.next_block",
	"job.stream_translate":  "job.translate_block",
	"proof.mark_block_done": "proof.mark_done",
}

// Catalog returns the full static tool list.
func Catalog() []ToolInfo {
	out := make([]ToolInfo, len(catalog))
	copy(out, catalog)
	return out
}

// ToolsForStage returns the tool names offered in a stage, in catalog order.
func ToolsForStage(stage agent.Stage) []string {
	var names []string
	for _, t := range catalog {
		for _, s := range t.Stages {
			if s == stage {
				names = append(names, t.Name)
				break
			}
		}
	}
	return names
}

// RequiredCapabilities maps tool name to required capability for the
// policy resolver.
func RequiredCapabilities() map[string]string {
	out := make(map[string]string)
	for _, t := range catalog {
		if t.RequiresCapability != "" {
			out[t.Name] = t.RequiresCapability
		}
	}
	return out
}

// lookupTool returns the catalog entry by name.
func lookupTool(name string) (ToolInfo, bool) {
	for _, t := range catalog {
		if t.Name == name {
			return t, true
		}
	}
	return ToolInfo{}, false
}

// inStage reports whether a tool is offered in the given stage.
func (t ToolInfo) inStage(stage agent.Stage) bool {
	for _, s := range t.Stages {
		if s == stage {
			return true
		}
	}
	return false
}
