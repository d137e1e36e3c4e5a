// Package agent holds the data model for one translation job: the job
// itself, its blocks, the agent's working state, and the proofreading
// partition. Mutation helpers keep the set invariants (pending and failed
// disjoint, completed never above total) in one place so tool handlers
// cannot drift them apart.
package agent

import (
	"time"

	"lingoloop/internal/autotune"
	"lingoloop/internal/guard"
)

// Status is the job lifecycle phase.
type Status string

const (
	StatusPreparing          Status = "preparing"
	StatusPlanning           Status = "planning"
	StatusAwaitingCategories Status = "awaiting_categories"
	StatusRunning            Status = "running"
	StatusCompleting         Status = "completing"
	StatusDone               Status = "done"
	StatusFailed             Status = "failed"
	StatusCancelled          Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// QualityTag grades the provenance of a block's current translation.
// Tags only advance forward; a targeted literal or style re-translation is
// the one action allowed to reset them.
type QualityTag string

const (
	QualityRaw       QualityTag = "raw"
	QualityProofread QualityTag = "proofread"
	QualityLiteral   QualityTag = "literal"
	QualityStyled    QualityTag = "styled"
)

// Quality records how a block's current translation was produced.
type Quality struct {
	Tag       QualityTag `json:"tag"`
	ModelUsed string     `json:"modelUsed,omitempty"`
	RouteUsed string     `json:"routeUsed,omitempty"`
	Pass      int        `json:"pass"`
}

// Block is one translatable text unit.
type Block struct {
	BlockID           string  `json:"blockId"`
	OriginalText      string  `json:"originalText"`
	OriginalHash      string  `json:"originalHash"`
	TranslatedText    string  `json:"translatedText,omitempty"`
	Category          string  `json:"category,omitempty"`
	Quality           Quality `json:"quality"`
	TranslateAttempts int     `json:"translateAttempts"`
}

// Job is the unit of work: one page translation with all its blocks,
// agent state, and run settings. It is mutated in place by tool handlers;
// the hosting loop drives one tool call at a time per job, so no locking
// is applied here.
type Job struct {
	ID             string `json:"id"`
	Status         Status `json:"status"`
	PageURL        string `json:"pageUrl,omitempty"`
	TargetLanguage string `json:"targetLanguage"`

	BlocksByID      map[string]*Block `json:"blocksById"`
	PendingBlockIDs []string          `json:"pendingBlockIds"`
	FailedBlockIDs  []string          `json:"failedBlockIds"`
	CompletedBlocks int               `json:"completedBlocks"`
	TotalBlocks     int               `json:"totalBlocks"`

	SelectedCategories []string `json:"selectedCategories,omitempty"`

	Agent         *State                `json:"agentState"`
	Proofreading  *ProofreadingState    `json:"proofreading"`
	RunSettings   *autotune.RunSettings `json:"runSettings"`
	MemoryContext *MemoryContext        `json:"memoryContext,omitempty"`

	// LastAppliedAt is the time of the latest applied delta, part of the
	// progress key.
	LastAppliedAt time.Time `json:"lastAppliedAt,omitempty"`
}

// MemoryContext records how translation memory participated in this job.
type MemoryContext struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
	Stores int `json:"stores"`
}

// NewJob builds a job in the preparing state with the given blocks pending.
func NewJob(id, targetLanguage string, blocks []*Block, rs *autotune.RunSettings) *Job {
	j := &Job{
		ID:             id,
		Status:         StatusPreparing,
		TargetLanguage: targetLanguage,
		BlocksByID:     make(map[string]*Block, len(blocks)),
		Agent:          NewState(),
		Proofreading:   NewProofreadingState(),
		RunSettings:    rs,
		MemoryContext:  &MemoryContext{},
	}
	for _, b := range blocks {
		if b.OriginalHash == "" {
			b.OriginalHash = guard.HashText(b.OriginalText)
		}
		j.BlocksByID[b.BlockID] = b
		j.PendingBlockIDs = append(j.PendingBlockIDs, b.BlockID)
	}
	j.TotalBlocks = len(blocks)
	return j
}

// Block returns the block with the given id, or nil.
func (j *Job) Block(blockID string) *Block {
	return j.BlocksByID[blockID]
}

// MarkBlockDone moves a block out of pending (and out of failed, if a retry
// succeeded) and advances the completion counter, capped at totals.
func (j *Job) MarkBlockDone(blockID string) {
	wasPending := contains(j.PendingBlockIDs, blockID)
	j.PendingBlockIDs = remove(j.PendingBlockIDs, blockID)
	j.FailedBlockIDs = remove(j.FailedBlockIDs, blockID)
	if wasPending && j.CompletedBlocks < j.TotalBlocks {
		j.CompletedBlocks++
	}
}

// MarkBlockFailed moves a block from pending to failed. The two sets stay
// disjoint: a block is never in both.
func (j *Job) MarkBlockFailed(blockID string) {
	j.PendingBlockIDs = remove(j.PendingBlockIDs, blockID)
	if !contains(j.FailedBlockIDs, blockID) {
		j.FailedBlockIDs = append(j.FailedBlockIDs, blockID)
	}
}

// NextPendingBlock returns the first pending block, or nil when drained.
func (j *Job) NextPendingBlock() *Block {
	for _, id := range j.PendingBlockIDs {
		if b := j.BlocksByID[id]; b != nil {
			return b
		}
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
