package tools

// registerHandlers wires the full handler table. NewDispatcher verifies
// the table and catalog match one-to-one.
func (d *Dispatcher) registerHandlers() {
	d.handlers["page.get_stats"] = handlePageGetStats
	d.handlers["page.get_blocks"] = handlePageGetBlocks
	d.handlers["page.get_preanalysis"] = handlePageGetPreanalysis
	d.handlers["page.get_ranges"] = handlePageGetRanges

	d.handlers["plan.set_taxonomy"] = handleSetTaxonomy
	d.handlers["plan.set_pipeline"] = handleSetPipeline
	d.handlers["plan.recommend_categories"] = handleRecommendCategories
	d.handlers["plan.request_finish_analysis"] = handleRequestFinishAnalysis
	d.handlers["ui.ask_user_categories"] = handleAskUserCategories

	d.handlers["policy.get_tool_policy"] = handleGetToolPolicy
	d.handlers["policy.set_tool_policy"] = handleSetToolPolicy
	d.handlers["policy.propose_tool_policy"] = handleProposeToolPolicy

	d.handlers["autotune.get_context"] = handleAutotuneGetContext
	d.handlers["autotune.propose"] = handleAutotunePropose
	d.handlers["autotune.apply"] = handleAutotuneApply
	d.handlers["autotune.reject"] = handleAutotuneReject
	d.handlers["autotune.explain"] = handleAutotuneExplain

	d.handlers["report.add"] = handleReportAdd
	d.handlers["checklist.update"] = handleChecklistUpdate
	d.handlers["context.compress"] = handleContextCompress

	d.handlers["job.next_block"] = handleNextBlock
	d.handlers["job.translate_block"] = handleTranslateBlock
	d.handlers["job.apply_delta"] = handleApplyDelta
	d.handlers["job.mark_block_done"] = handleMarkBlockDone
	d.handlers["job.mark_block_failed"] = handleMarkBlockFailed
	d.handlers["job.audit_progress"] = handleAuditProgress

	d.handlers["proof.plan"] = handleProofPlan
	d.handlers["proof.next_block"] = handleProofNextBlock
	d.handlers["proof.translate_block"] = handleProofTranslateBlock
	d.handlers["proof.mark_done"] = handleProofMarkDone
	d.handlers["proof.mark_failed"] = handleProofMarkFailed
	d.handlers["proof.finish"] = handleProofFinish
}
