package agent

import (
	"testing"

	"lingoloop/internal/autotune"
)

func stageJob() *Job {
	return NewJob("j", "es", nil, autotune.NewRunSettings(autotune.Settings{}, nil))
}

func TestResolveStage_PlanningByDefault(t *testing.T) {
	j := stageJob()
	if got := ResolveStage(j); got != StagePlanning {
		t.Errorf("fresh job stage %s, want planning", got)
	}
}

func TestResolveStage_ExecutionWhenRunning(t *testing.T) {
	j := stageJob()
	j.Status = StatusRunning
	j.Agent.Phase = "execution"
	if got := ResolveStage(j); got != StageExecution {
		t.Errorf("running job stage %s, want execution", got)
	}
}

func TestResolveStage_ProofreadingWins(t *testing.T) {
	j := stageJob()
	j.Status = StatusRunning
	j.Agent.Phase = "execution"
	j.Proofreading.Plan([]string{"b1"}, nil, "auto")

	if got := ResolveStage(j); got != StageProofreading {
		t.Errorf("stage %s, want proofreading", got)
	}

	// Pending units keep the stage even after enable is dropped.
	j.Proofreading.Enabled = false
	if got := ResolveStage(j); got != StageProofreading {
		t.Errorf("stage with pending proof units %s, want proofreading", got)
	}

	j.Proofreading.Finish()
	if got := ResolveStage(j); got != StageExecution {
		t.Errorf("stage after finish %s, want execution", got)
	}
}

func TestResolveStage_AwaitingCategoriesIsPlanning(t *testing.T) {
	j := stageJob()
	j.Status = StatusAwaitingCategories
	j.Agent.Phase = "awaiting_categories"
	if got := ResolveStage(j); got != StagePlanning {
		t.Errorf("awaiting_categories stage %s, want planning", got)
	}
}

func TestProofreadingState_SetsStayDisjoint(t *testing.T) {
	p := NewProofreadingState()
	p.Plan([]string{"b1", "b2"}, []string{"fluency"}, "auto")

	p.MarkFailed("b1")
	p.MarkDone("b1") // retry succeeded

	for _, id := range p.PendingBlockIDs {
		if id == "b1" {
			t.Error("b1 should have left pending")
		}
	}
	if len(p.FailedBlockIDs) != 0 {
		t.Errorf("failed %v, want empty", p.FailedBlockIDs)
	}
	if len(p.DoneBlockIDs) != 1 {
		t.Errorf("done %v, want [b1]", p.DoneBlockIDs)
	}
}
