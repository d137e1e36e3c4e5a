package guard

import (
	"testing"
	"time"
)

func snap() Snapshot {
	return Snapshot{
		Completed:       3,
		Failed:          1,
		PendingBlockIDs: []string{"b4", "b5"},
		Stage:           "execution",
	}
}

func TestProgressAudit_StallAfterFourIdenticalKeys(t *testing.T) {
	a := &ProgressAudit{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < StallThreshold-1; i++ {
		if got := a.Audit(snap(), now); got != SignalOK {
			t.Fatalf("audit %d: expected ok, got %s", i+1, got)
		}
		now = now.Add(time.Minute)
	}

	if got := a.Audit(snap(), now); got != SignalNoProgress {
		t.Fatalf("audit %d: expected no_progress, got %s", StallThreshold, got)
	}
}

func TestProgressAudit_ProgressResetsCounter(t *testing.T) {
	a := &ProgressAudit{}
	now := time.Now()

	a.Audit(snap(), now)
	a.Audit(snap(), now)
	a.Audit(snap(), now)

	s := snap()
	s.Completed = 4
	s.PendingBlockIDs = []string{"b5"}
	if got := a.Audit(s, now); got != SignalOK {
		t.Fatalf("progress should reset the stall counter, got %s", got)
	}
	if a.KeyRepeats != 1 {
		t.Errorf("expected key repeats 1 after change, got %d", a.KeyRepeats)
	}
}

func TestProgressAudit_PendingOrderDoesNotMatter(t *testing.T) {
	a := &ProgressAudit{}
	now := time.Now()

	s1 := snap()
	s1.PendingBlockIDs = []string{"b4", "b5"}
	s2 := snap()
	s2.PendingBlockIDs = []string{"b5", "b4"}

	a.Audit(s1, now)
	a.Audit(s2, now)
	if a.KeyRepeats != 2 {
		t.Errorf("reordered pending set should hash identically, repeats=%d", a.KeyRepeats)
	}
}

func TestProgressAudit_RepeatLoopSignal(t *testing.T) {
	a := &ProgressAudit{}
	s := snap()
	s.RepeatedBatches = RepeatLoopThreshold

	if got := a.Audit(s, time.Now()); got != SignalRepeatLoop {
		t.Fatalf("expected repeat_loop, got %s", got)
	}
}

func TestProgressAudit_LastAppliedBreaksKey(t *testing.T) {
	a := &ProgressAudit{}
	now := time.Now()

	s1 := snap()
	s1.LastAppliedAt = now
	s2 := snap()
	s2.LastAppliedAt = now.Add(time.Second)

	a.Audit(s1, now)
	a.Audit(s2, now)
	if a.KeyRepeats != 1 {
		t.Error("a fresh applied-delta timestamp counts as progress")
	}
}
