package guard

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// StallThreshold is how many consecutive identical progress keys
	// count as a stall.
	StallThreshold = 4

	// RepeatLoopThreshold is the repeated-batch count that counts as a
	// loop. The counter itself is maintained by the dispatch layer.
	RepeatLoopThreshold = 3
)

// Signal is the auditor's advisory output.
type Signal string

const (
	SignalOK         Signal = "ok"
	SignalNoProgress Signal = "no_progress"
	SignalRepeatLoop Signal = "repeat_loop"
)

// Snapshot is the observable job shape one audit call sees.
type Snapshot struct {
	Completed       int
	Failed          int
	PendingBlockIDs []string
	LastAppliedAt   time.Time
	Stage           string
	ProofDone       int
	ProofFailed     int
	RepeatedBatches int
}

// ProgressAudit is the persisted auditor state.
type ProgressAudit struct {
	LastKey     string    `json:"lastKey"`
	KeyRepeats  int       `json:"keyRepeats"`
	LastAuditAt time.Time `json:"lastAuditAt,omitempty"`
}

// Audit folds one snapshot into the audit state and classifies it.
// The repeat-loop check fires before the stall check: a job stuck
// re-requesting the same batch is the more specific diagnosis.
func (a *ProgressAudit) Audit(s Snapshot, now time.Time) Signal {
	a.LastAuditAt = now

	if s.RepeatedBatches >= RepeatLoopThreshold {
		return SignalRepeatLoop
	}

	key := progressKey(s)
	if key == a.LastKey {
		a.KeyRepeats++
	} else {
		a.LastKey = key
		a.KeyRepeats = 1
	}

	if a.KeyRepeats >= StallThreshold {
		return SignalNoProgress
	}
	return SignalOK
}

// progressKey digests everything that changes when a job makes progress.
func progressKey(s Snapshot) string {
	ids := append([]string(nil), s.PendingBlockIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("c=%d|f=%d|p=%s|t=%d|s=%s|pd=%d|pf=%d",
		s.Completed,
		s.Failed,
		HashText(strings.Join(ids, ",")),
		s.LastAppliedAt.UnixMilli(),
		s.Stage,
		s.ProofDone,
		s.ProofFailed,
	)
}
