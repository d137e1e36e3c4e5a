package agent

import (
	"time"

	"lingoloop/internal/guard"
	"lingoloop/internal/policy"
)

const (
	// MaxReports bounds the human-readable event log.
	MaxReports = 200

	// MaxTraceEntries bounds the tool execution trace.
	MaxTraceEntries = 500
)

// TraceStatus classifies one tool call outcome in the trace.
type TraceStatus string

const (
	TraceOK    TraceStatus = "ok"
	TraceError TraceStatus = "error"
	TraceSkip  TraceStatus = "skip"
)

// TraceEntry is one line of the tool execution audit trail. Every tool
// call produces exactly one.
type TraceEntry struct {
	Ts         time.Time   `json:"ts"`
	CallID     string      `json:"callId"`
	Tool       string      `json:"tool"`
	Source     string      `json:"source"` // "model" or "system"
	Status     TraceStatus `json:"status"`
	ErrorCode  string      `json:"errorCode,omitempty"`
	DurationMs int64       `json:"durationMs"`
}

// Report is one entry of the human-readable event log.
type Report struct {
	Ts      time.Time `json:"ts"`
	Level   string    `json:"level"` // "info" or "warn"
	Message string    `json:"message"`
}

// ChecklistItem is one ordered status marker on the agent's plan.
type ChecklistItem struct {
	Label  string `json:"label"`
	Status string `json:"status"` // "todo", "doing", "done"
}

// Taxonomy is the content classification the agent builds during planning.
type Taxonomy struct {
	Categories      []string          `json:"categories,omitempty"`
	CategoryByBlock map[string]string `json:"categoryByBlock,omitempty"`
	CategoryByRange map[string]string `json:"categoryByRange,omitempty"`
}

// PipelineConfig is the per-category execution plan: model routing,
// batching, context and QC settings.
type PipelineConfig struct {
	Model               string `json:"model,omitempty"`
	Route               string `json:"route,omitempty"`
	BatchSize           int    `json:"batchSize,omitempty"`
	ContextWindowBlocks int    `json:"contextWindowBlocks,omitempty"`
	QCEnabled           bool   `json:"qcEnabled"`
}

// State is the agent's working state for one job.
type State struct {
	Phase string `json:"phase"`

	Taxonomy Taxonomy                   `json:"taxonomy"`
	Pipeline map[string]*PipelineConfig `json:"pipeline,omitempty"` // keyed by category

	Checklist []ChecklistItem `json:"checklist,omitempty"`
	Reports   []Report        `json:"reports,omitempty"`

	ToolExecutionTrace []TraceEntry `json:"toolExecutionTrace,omitempty"`

	// Cached policy resolution for the current dispatch cycle.
	ToolPolicyEffective    map[string]policy.Mode `json:"toolPolicyEffective,omitempty"`
	ToolPolicyReasons      map[string]string      `json:"toolPolicyReasons,omitempty"`
	ToolPolicyRuntimeHints []string               `json:"toolPolicyRuntimeHints,omitempty"`

	// AgentToolOverrides holds model-proposed tool policy overrides,
	// the top precedence layer under the capability gate.
	AgentToolOverrides map[string]policy.Mode `json:"agentToolOverrides,omitempty"`

	Glossary       map[string]string `json:"glossary,omitempty"`
	ContextSummary string            `json:"contextSummary,omitempty"`

	// FinishAnalysisValidated gates ask_user_categories.
	FinishAnalysisValidated bool `json:"finishAnalysisValidated"`

	// RepeatedBatches counts consecutive identical batch requests,
	// maintained by the fetch handlers and read by the progress auditor.
	RepeatedBatches int    `json:"repeatedBatches"`
	LastBatchKey    string `json:"lastBatchKey,omitempty"`

	TranslateGuard *guard.RepeatGuard   `json:"translateGuard"`
	ProofreadGuard *guard.RepeatGuard   `json:"proofreadGuard"`
	ProgressAudit  *guard.ProgressAudit `json:"progressAudit"`
}

// NewState builds an empty agent state in the planning phase.
func NewState() *State {
	return &State{
		Phase:          "planning",
		Pipeline:       make(map[string]*PipelineConfig),
		Glossary:       make(map[string]string),
		TranslateGuard: guard.NewRepeatGuard(false),
		ProofreadGuard: guard.NewRepeatGuard(true),
		ProgressAudit:  &guard.ProgressAudit{},
	}
}

// AddTrace appends one trace entry, evicting the oldest past the bound.
func (s *State) AddTrace(e TraceEntry) {
	s.ToolExecutionTrace = append(s.ToolExecutionTrace, e)
	if len(s.ToolExecutionTrace) > MaxTraceEntries {
		s.ToolExecutionTrace = s.ToolExecutionTrace[len(s.ToolExecutionTrace)-MaxTraceEntries:]
	}
}

// AddReport appends one event log entry, evicting the oldest past the bound.
func (s *State) AddReport(level, message string, ts time.Time) {
	s.Reports = append(s.Reports, Report{Ts: ts, Level: level, Message: message})
	if len(s.Reports) > MaxReports {
		s.Reports = s.Reports[len(s.Reports)-MaxReports:]
	}
}

// TrackBatch updates the repeated-batch counter: an identical key to the
// previous fetch increments it, anything else resets it.
func (s *State) TrackBatch(key string) {
	if key != "" && key == s.LastBatchKey {
		s.RepeatedBatches++
	} else {
		s.RepeatedBatches = 0
	}
	s.LastBatchKey = key
}

// InvalidatePolicyCache drops the cached effective policy so the next
// dispatch re-resolves. Called when overrides or capabilities change.
func (s *State) InvalidatePolicyCache() {
	s.ToolPolicyEffective = nil
	s.ToolPolicyReasons = nil
	s.ToolPolicyRuntimeHints = nil
}
