package agent

import (
	"testing"

	"lingoloop/internal/autotune"
)

func testJob(blockTexts map[string]string) *Job {
	blocks := make([]*Block, 0, len(blockTexts))
	// Deterministic order for the pending list.
	for _, id := range []string{"b1", "b2", "b3", "b4", "b5"} {
		if text, ok := blockTexts[id]; ok {
			blocks = append(blocks, &Block{BlockID: id, OriginalText: text})
		}
	}
	return NewJob("job-1", "es", blocks, autotune.NewRunSettings(autotune.Settings{}, nil))
}

func assertDisjoint(t *testing.T, j *Job) {
	t.Helper()
	failed := make(map[string]bool, len(j.FailedBlockIDs))
	for _, id := range j.FailedBlockIDs {
		failed[id] = true
	}
	for _, id := range j.PendingBlockIDs {
		if failed[id] {
			t.Fatalf("block %s is both pending and failed", id)
		}
	}
	if j.CompletedBlocks > j.TotalBlocks {
		t.Fatalf("completed %d exceeds total %d", j.CompletedBlocks, j.TotalBlocks)
	}
}

func TestMarkBlockDone(t *testing.T) {
	j := testJob(map[string]string{"b1": "x"})

	j.MarkBlockDone("b1")

	if len(j.PendingBlockIDs) != 0 {
		t.Errorf("pending should be empty, got %v", j.PendingBlockIDs)
	}
	if j.CompletedBlocks != 1 {
		t.Errorf("completed %d, want 1", j.CompletedBlocks)
	}
	assertDisjoint(t, j)
}

func TestMarkBlockDone_Idempotent(t *testing.T) {
	j := testJob(map[string]string{"b1": "x", "b2": "y"})

	j.MarkBlockDone("b1")
	j.MarkBlockDone("b1")

	if j.CompletedBlocks != 1 {
		t.Errorf("double done should not double count, got %d", j.CompletedBlocks)
	}
	assertDisjoint(t, j)
}

func TestMarkBlockFailed_ThenDone(t *testing.T) {
	j := testJob(map[string]string{"b1": "x", "b2": "y"})

	j.MarkBlockFailed("b1")
	assertDisjoint(t, j)
	if len(j.FailedBlockIDs) != 1 {
		t.Fatalf("failed set %v, want [b1]", j.FailedBlockIDs)
	}

	// A later retry succeeding clears the failure but the block was no
	// longer pending, so the counter holds.
	j.MarkBlockDone("b1")
	assertDisjoint(t, j)
	if len(j.FailedBlockIDs) != 0 {
		t.Errorf("failed set should be cleared, got %v", j.FailedBlockIDs)
	}
}

func TestMarkSequences_KeepInvariants(t *testing.T) {
	j := testJob(map[string]string{"b1": "a", "b2": "b", "b3": "c", "b4": "d", "b5": "e"})

	ops := []struct {
		fail bool
		id   string
	}{
		{false, "b1"}, {true, "b2"}, {false, "b2"}, {true, "b3"},
		{true, "b3"}, {false, "b4"}, {false, "b4"}, {false, "b5"},
	}
	for _, op := range ops {
		if op.fail {
			j.MarkBlockFailed(op.id)
		} else {
			j.MarkBlockDone(op.id)
		}
		assertDisjoint(t, j)
	}
}

func TestNextPendingBlock(t *testing.T) {
	j := testJob(map[string]string{"b1": "x", "b2": "y"})

	if got := j.NextPendingBlock(); got == nil || got.BlockID != "b1" {
		t.Fatalf("expected b1 first, got %+v", got)
	}
	j.MarkBlockDone("b1")
	if got := j.NextPendingBlock(); got == nil || got.BlockID != "b2" {
		t.Fatalf("expected b2 next, got %+v", got)
	}
	j.MarkBlockDone("b2")
	if got := j.NextPendingBlock(); got != nil {
		t.Fatalf("expected nil when drained, got %+v", got)
	}
}

func TestNewJob_HashesOriginals(t *testing.T) {
	j := testJob(map[string]string{"b1": "hello"})
	if j.Block("b1").OriginalHash == "" {
		t.Error("original hash should be computed at construction")
	}
}
