package agent

// ProofreadAction is a targeted re-translation request for one block.
type ProofreadAction string

const (
	ActionProofread ProofreadAction = "proofread"
	ActionLiteral   ProofreadAction = "literal"
	ActionStyle     ProofreadAction = "style"
)

// ProofreadingState is the proofreading partition of a job. Its pending
// set is separate from the execution pending set; a block is never pending
// in both at once.
type ProofreadingState struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode"` // "auto" or "manual"
	Pass    int    `json:"pass"`

	PendingBlockIDs []string `json:"pendingBlockIds"`
	DoneBlockIDs    []string `json:"doneBlockIds"`
	FailedBlockIDs  []string `json:"failedBlockIds"`

	Criteria []string `json:"criteria,omitempty"`

	RequestedActionByBlockID map[string]ProofreadAction `json:"requestedActionByBlockId,omitempty"`
}

// NewProofreadingState returns a disabled proofreading record.
func NewProofreadingState() *ProofreadingState {
	return &ProofreadingState{
		Mode:                     "auto",
		RequestedActionByBlockID: make(map[string]ProofreadAction),
	}
}

// Plan enables proofreading for the given blocks and criteria, starting a
// new pass. Blocks already done in a previous pass may be re-enqueued.
func (p *ProofreadingState) Plan(blockIDs []string, criteria []string, mode string) {
	p.Enabled = true
	p.Pass++
	if mode != "" {
		p.Mode = mode
	}
	p.Criteria = criteria
	p.PendingBlockIDs = append([]string(nil), blockIDs...)
	p.DoneBlockIDs = nil
	p.FailedBlockIDs = nil
}

// MarkDone moves a block from the proofreading pending set to done.
func (p *ProofreadingState) MarkDone(blockID string) {
	p.PendingBlockIDs = remove(p.PendingBlockIDs, blockID)
	p.FailedBlockIDs = remove(p.FailedBlockIDs, blockID)
	if !contains(p.DoneBlockIDs, blockID) {
		p.DoneBlockIDs = append(p.DoneBlockIDs, blockID)
	}
	delete(p.RequestedActionByBlockID, blockID)
}

// MarkFailed moves a block from the proofreading pending set to failed.
func (p *ProofreadingState) MarkFailed(blockID string) {
	p.PendingBlockIDs = remove(p.PendingBlockIDs, blockID)
	if !contains(p.FailedBlockIDs, blockID) {
		p.FailedBlockIDs = append(p.FailedBlockIDs, blockID)
	}
}

// Finish disables proofreading, leaving the done/failed record intact.
func (p *ProofreadingState) Finish() {
	p.Enabled = false
	p.PendingBlockIDs = nil
}

// Active reports whether proofreading is driving the job right now.
func (p *ProofreadingState) Active() bool {
	return p != nil && (p.Enabled || len(p.PendingBlockIDs) > 0)
}
