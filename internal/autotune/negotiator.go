package autotune

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"

	"lingoloop/internal/logging"
)

const (
	// ApplyCooldown is the minimum spacing between successful applies.
	ApplyCooldown = 45 * time.Second

	// AntiFlapWindow is how recent a key change must be for a revert to
	// count as flapping.
	AntiFlapWindow = 2 * time.Minute

	// MaxProposals bounds the proposal ring.
	MaxProposals = 100

	// MaxDecisionLog bounds the decision log.
	MaxDecisionLog = 200
)

// Negotiation error codes, surfaced verbatim on the tool wire.
const (
	CodePatchInvalid     = "SETTINGS_PATCH_INVALID"
	CodeProposalNotFound = "PROPOSAL_NOT_FOUND"
	CodeNeedUserConfirm  = "NEED_USER_CONFIRM"
	CodeApplyCooldown    = "AUTOTUNE_APPLY_COOLDOWN"
	CodeAntiFlap         = "AUTOTUNE_ANTI_FLAP"
	CodeAntiFlapCooldown = "AUTOTUNE_ANTI_FLAP_COOLDOWN"
)

// NegotiationError is a refusal with a wire code.
type NegotiationError struct {
	Code    string
	Message string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func refuse(code, format string, args ...any) *NegotiationError {
	return &NegotiationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValueKind is the expected scalar type of a settings key.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindBool   ValueKind = "bool"
)

// KeySpec declares one settable key: its type, bounds, and any tool the
// setting only makes sense with.
type KeySpec struct {
	Kind ValueKind

	// Min/Max bound numeric keys (inclusive). Ignored for other kinds.
	Min, Max float64

	// Enum restricts string keys to a fixed set when non-empty.
	Enum []string

	// Model marks the key's value as a model name, checked against the
	// model allowlist.
	Model bool

	// DependsOnTool names a tool that must resolve enabled for the key
	// to be settable.
	DependsOnTool string
}

// DefaultKeySpecs is the allowlist of agent-settable run parameters.
func DefaultKeySpecs() map[string]KeySpec {
	return map[string]KeySpec{
		"model":               {Kind: KindString, Model: true},
		"proofreadModel":      {Kind: KindString, Model: true},
		"temperature":         {Kind: KindFloat, Min: 0, Max: 2},
		"batchSize":           {Kind: KindInt, Min: 1, Max: 64},
		"maxParallelRequests": {Kind: KindInt, Min: 1, Max: 8},
		"contextWindowBlocks": {Kind: KindInt, Min: 0, Max: 32},
		"qcEnabled":           {Kind: KindBool},
		"streaming":           {Kind: KindBool, DependsOnTool: "job.translate_block"},
		"proofreadCriteria":   {Kind: KindString, Enum: []string{"fluency", "accuracy", "terminology", "style"}},
	}
}

// ToolCheck reports whether a tool would currently resolve as enabled.
type ToolCheck func(tool string) bool

// Negotiator validates and decides settings proposals for one job.
type Negotiator struct {
	rs *RunSettings

	keySpecs      map[string]KeySpec
	allowedModels map[string]bool
	toolEnabled   ToolCheck

	now   func() time.Time
	newID func() string
}

// NewNegotiator wires a negotiator around a job's run settings.
// allowedModels may be nil to accept any model name.
func NewNegotiator(rs *RunSettings, allowedModels []string, toolEnabled ToolCheck) *Negotiator {
	models := make(map[string]bool, len(allowedModels))
	for _, m := range allowedModels {
		models[m] = true
	}
	return &Negotiator{
		rs:            rs,
		keySpecs:      DefaultKeySpecs(),
		allowedModels: models,
		toolEnabled:   toolEnabled,
		now:           time.Now,
		newID:         func() string { return uuid.NewString() },
	}
}

// SetClock overrides the time source. Used by tests.
func (n *Negotiator) SetClock(now func() time.Time) { n.now = now }

// SetIDSource overrides proposal id generation. Used by tests.
func (n *Negotiator) SetIDSource(f func() string) { n.newID = f }

// Propose validates and normalizes a patch and records it as a proposal.
func (n *Negotiator) Propose(stage string, patch Settings, reason string) (*Proposal, error) {
	if len(patch) == 0 {
		return nil, refuse(CodePatchInvalid, "empty patch")
	}

	normalized := make(Settings, len(patch))
	var warnings []string
	for key, raw := range patch {
		spec, ok := n.keySpecs[key]
		if !ok {
			return nil, refuse(CodePatchInvalid, "key %q is not settable", key)
		}
		val, err := n.normalizeValue(key, spec, raw)
		if err != nil {
			return nil, err
		}
		if spec.DependsOnTool != "" && n.toolEnabled != nil && !n.toolEnabled(spec.DependsOnTool) {
			return nil, refuse(CodePatchInvalid,
				"key %q requires tool %q, which is not enabled", key, spec.DependsOnTool)
		}
		if cur, ok := n.rs.Effective[key]; ok && reflect.DeepEqual(cur, val) {
			warnings = append(warnings, fmt.Sprintf("key %q already has value %v", key, val))
		}
		normalized[key] = val
	}

	p := &Proposal{
		ID:          n.newID(),
		Ts:          n.now(),
		Stage:       stage,
		Patch:       normalized,
		DiffSummary: summarizeDiff(n.rs.Effective, normalized),
		Reason:      reason,
		Warnings:    warnings,
		Status:      StatusProposed,
	}

	n.rs.AutoTune.Proposals = append(n.rs.AutoTune.Proposals, p)
	if len(n.rs.AutoTune.Proposals) > MaxProposals {
		n.rs.AutoTune.Proposals = n.rs.AutoTune.Proposals[len(n.rs.AutoTune.Proposals)-MaxProposals:]
	}
	n.rs.AutoTune.LastProposalID = p.ID
	n.logDecision(p.ID, "proposed", p.DiffSummary)

	logging.For(logging.CategoryAutotune).Infow("settings proposal",
		"proposalId", p.ID, "stage", stage, "diff", p.DiffSummary)
	return p, nil
}

// Apply decides a proposal. confirmedByUser satisfies ask_user mode.
//
// Refusals, in check order: unknown proposal, missing user confirmation,
// global apply cooldown, per-key anti-flap. A revert of a key to its
// immediately-previous value inside the anti-flap window is refused and
// places the key under cooldown; further attempts on a cooling key are
// refused without re-checking the revert.
func (n *Negotiator) Apply(proposalID string, confirmedByUser bool) (*Proposal, error) {
	p := n.rs.FindProposal(proposalID)
	if p == nil {
		return nil, refuse(CodeProposalNotFound, "no proposal %q", proposalID)
	}
	if p.Status != StatusProposed {
		return nil, refuse(CodeProposalNotFound, "proposal %q is already %s", proposalID, p.Status)
	}

	now := n.now()

	if n.rs.AutoTune.Mode == "ask_user" && !confirmedByUser {
		return nil, refuse(CodeNeedUserConfirm, "mode is ask_user and no confirmation was given")
	}

	if last := n.rs.AutoTune.LastAppliedAt; !last.IsZero() && now.Sub(last) < ApplyCooldown {
		remaining := ApplyCooldown - now.Sub(last)
		n.logDecision(p.ID, "refused", CodeApplyCooldown)
		return nil, refuse(CodeApplyCooldown, "last apply was %s ago; wait %s",
			now.Sub(last).Round(time.Second), remaining.Round(time.Second))
	}

	if err := n.checkAntiFlap(p, now); err != nil {
		n.logDecision(p.ID, "refused", err.(*NegotiationError).Code)
		return nil, err
	}

	// Commit: patch the effective view, re-derive the agent layer as the
	// diff against base+user, and record per-key history.
	baseline := n.rs.Baseline()
	newEffective := n.rs.Effective.Merge(p.Patch)
	// Rebuilt from persisted JSON the map can come back nil.
	if n.rs.AutoTune.AntiFlapByKey == nil {
		n.rs.AutoTune.AntiFlapByKey = make(map[string]*KeyHistory)
	}
	for key, val := range p.Patch {
		old := n.rs.Effective[key]
		if reflect.DeepEqual(old, val) {
			continue
		}
		n.rs.AutoTune.AntiFlapByKey[key] = &KeyHistory{
			Prev:      old,
			Current:   val,
			ChangedAt: now,
		}
	}
	n.rs.Effective = newEffective
	n.rs.AgentOverrides = newEffective.Diff(baseline)

	p.Status = StatusApplied
	for _, other := range n.rs.AutoTune.Proposals {
		if other.ID != p.ID && other.Status == StatusProposed {
			other.Status = StatusSuperseded
		}
	}
	n.rs.AutoTune.LastAppliedAt = now
	n.logDecision(p.ID, "applied", p.DiffSummary)

	logging.For(logging.CategoryAutotune).Infow("settings applied",
		"proposalId", p.ID, "diff", p.DiffSummary)
	return p, nil
}

// Reject marks a proposal rejected. Pure bookkeeping.
func (n *Negotiator) Reject(proposalID, reason string) (*Proposal, error) {
	p := n.rs.FindProposal(proposalID)
	if p == nil {
		return nil, refuse(CodeProposalNotFound, "no proposal %q", proposalID)
	}
	if p.Status == StatusProposed {
		p.Status = StatusRejected
	}
	n.logDecision(p.ID, "rejected", reason)
	return p, nil
}

// Explanation is the negotiator's self-report.
type Explanation struct {
	Stage            string   `json:"stage"`
	Effective        Settings `json:"effective"`
	AgentTunedKeys   []string `json:"agentTunedKeys"`
	LastAppliedID    string   `json:"lastAppliedProposalId,omitempty"`
	LastAppliedWhy   string   `json:"lastAppliedReason,omitempty"`
	OutstandingCount int      `json:"outstandingProposals"`
}

// Explain reports the effective settings, which keys the agent has tuned
// away from the user/profile baseline, and the last applied reason.
func (n *Negotiator) Explain(stage string) Explanation {
	ex := Explanation{
		Stage:     stage,
		Effective: n.rs.Effective.Clone(),
	}
	for key := range n.rs.AgentOverrides {
		ex.AgentTunedKeys = append(ex.AgentTunedKeys, key)
	}
	for i := len(n.rs.AutoTune.Proposals) - 1; i >= 0; i-- {
		p := n.rs.AutoTune.Proposals[i]
		switch p.Status {
		case StatusApplied:
			if ex.LastAppliedID == "" {
				ex.LastAppliedID = p.ID
				ex.LastAppliedWhy = p.Reason
			}
		case StatusProposed:
			ex.OutstandingCount++
		}
	}
	return ex
}

// checkAntiFlap refuses patches that revert a recently-changed key.
// A key with no history is always allowed: the first change to anything
// cannot flap.
func (n *Negotiator) checkAntiFlap(p *Proposal, now time.Time) error {
	for key, val := range p.Patch {
		hist := n.rs.AutoTune.AntiFlapByKey[key]
		if hist == nil {
			continue
		}
		if !hist.CooldownUntil.IsZero() && now.Before(hist.CooldownUntil) {
			return refuse(CodeAntiFlapCooldown,
				"key %q is cooling down until %s", key, hist.CooldownUntil.Format(time.RFC3339))
		}
		if hist.Prev == nil {
			continue
		}
		if now.Sub(hist.ChangedAt) < AntiFlapWindow && reflect.DeepEqual(val, hist.Prev) {
			hist.CooldownUntil = now.Add(AntiFlapWindow)
			return refuse(CodeAntiFlap,
				"key %q would revert to its previous value %v within the anti-flap window", key, val)
		}
	}
	return nil
}

// normalizeValue coerces raw (usually JSON-decoded) into the key's kind.
func (n *Negotiator) normalizeValue(key string, spec KeySpec, raw any) (any, error) {
	switch spec.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, refuse(CodePatchInvalid, "key %q wants a string, got %T", key, raw)
		}
		if spec.Model && len(n.allowedModels) > 0 && !n.allowedModels[s] {
			return nil, refuse(CodePatchInvalid, "model %q is not in the allowlist", s)
		}
		if len(spec.Enum) > 0 {
			ok := false
			for _, e := range spec.Enum {
				if e == s {
					ok = true
					break
				}
			}
			if !ok {
				return nil, refuse(CodePatchInvalid, "key %q must be one of %v", key, spec.Enum)
			}
		}
		return s, nil

	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, refuse(CodePatchInvalid, "key %q wants a bool, got %T", key, raw)
		}
		return b, nil

	case KindInt:
		f, ok := toFloat(raw)
		if !ok || f != math.Trunc(f) {
			return nil, refuse(CodePatchInvalid, "key %q wants an integer, got %v", key, raw)
		}
		if f < spec.Min || f > spec.Max {
			return nil, refuse(CodePatchInvalid, "key %q out of range [%v, %v]", key, spec.Min, spec.Max)
		}
		return int(f), nil

	case KindFloat:
		f, ok := toFloat(raw)
		if !ok {
			return nil, refuse(CodePatchInvalid, "key %q wants a number, got %T", key, raw)
		}
		if f < spec.Min || f > spec.Max {
			return nil, refuse(CodePatchInvalid, "key %q out of range [%v, %v]", key, spec.Min, spec.Max)
		}
		return f, nil
	}
	return nil, refuse(CodePatchInvalid, "key %q has unknown kind", key)
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (n *Negotiator) logDecision(proposalID, action, detail string) {
	n.rs.AutoTune.DecisionLog = append(n.rs.AutoTune.DecisionLog, DecisionEntry{
		Ts:         n.now(),
		ProposalID: proposalID,
		Action:     action,
		Detail:     detail,
	})
	if len(n.rs.AutoTune.DecisionLog) > MaxDecisionLog {
		n.rs.AutoTune.DecisionLog = n.rs.AutoTune.DecisionLog[len(n.rs.AutoTune.DecisionLog)-MaxDecisionLog:]
	}
}
