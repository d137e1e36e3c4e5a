// Package autotune lets the agent retune its own run parameters mid-job
// through a propose/apply/reject negotiation, with an apply cooldown and
// per-key anti-flap protection so a model reacting to noisy signals cannot
// oscillate a parameter without a human in the loop.
package autotune

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Settings is one layer of run settings, keyed by setting name.
type Settings map[string]any

// Clone returns a shallow copy. Values are JSON scalars, so shallow is deep
// enough.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge applies overlay on top of s and returns the result.
func (s Settings) Merge(overlay Settings) Settings {
	out := s.Clone()
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// Diff returns the keys of s whose values differ from base, with s's values.
func (s Settings) Diff(base Settings) Settings {
	out := make(Settings)
	for k, v := range s {
		if bv, ok := base[k]; !ok || !reflect.DeepEqual(bv, v) {
			out[k] = v
		}
	}
	return out
}

// ProposalStatus tracks a proposal through its lifecycle.
type ProposalStatus string

const (
	StatusProposed   ProposalStatus = "proposed"
	StatusApplied    ProposalStatus = "applied"
	StatusRejected   ProposalStatus = "rejected"
	StatusSuperseded ProposalStatus = "superseded"
)

// Proposal is one validated settings patch awaiting or past a decision.
type Proposal struct {
	ID          string         `json:"id"`
	Ts          time.Time      `json:"ts"`
	Stage       string         `json:"stage"`
	Patch       Settings       `json:"patch"`
	DiffSummary string         `json:"diffSummary"`
	Reason      string         `json:"reason"`
	Warnings    []string       `json:"warnings,omitempty"`
	Status      ProposalStatus `json:"status"`
}

// DecisionEntry is one line of the negotiation audit log.
type DecisionEntry struct {
	Ts         time.Time `json:"ts"`
	ProposalID string    `json:"proposalId"`
	Action     string    `json:"action"` // proposed, applied, rejected, refused
	Detail     string    `json:"detail,omitempty"`
}

// KeyHistory is the anti-flap record for one settings key.
type KeyHistory struct {
	Prev          any       `json:"prev,omitempty"`
	Current       any       `json:"current,omitempty"`
	ChangedAt     time.Time `json:"changedAt,omitempty"`
	CooldownUntil time.Time `json:"cooldownUntil,omitempty"`
}

// AutoTuneState is the negotiation bookkeeping carried on run settings.
type AutoTuneState struct {
	Enabled        bool                   `json:"enabled"`
	Mode           string                 `json:"mode"` // "auto" or "ask_user"
	LastProposalID string                 `json:"lastProposalId,omitempty"`
	Proposals      []*Proposal            `json:"proposals"`
	DecisionLog    []DecisionEntry        `json:"decisionLog"`
	LastAppliedAt  time.Time              `json:"lastAppliedTs,omitempty"`
	AntiFlapByKey  map[string]*KeyHistory `json:"antiFlap"`
}

// RunSettings is the layered settings record owned by a job.
// Effective is always apply(apply(Base, UserOverrides), AgentOverrides).
type RunSettings struct {
	Base           Settings      `json:"base"`
	UserOverrides  Settings      `json:"userOverrides"`
	AgentOverrides Settings      `json:"agentOverrides"`
	Effective      Settings      `json:"effective"`
	AutoTune       AutoTuneState `json:"autoTune"`
}

// NewRunSettings builds a record from a base layer and optional user
// overrides, computing the effective view.
func NewRunSettings(base, user Settings) *RunSettings {
	rs := &RunSettings{
		Base:           base.Clone(),
		UserOverrides:  user.Clone(),
		AgentOverrides: make(Settings),
		AutoTune: AutoTuneState{
			Enabled:       true,
			Mode:          "auto",
			AntiFlapByKey: make(map[string]*KeyHistory),
		},
	}
	rs.Recompute()
	return rs
}

// Recompute rebuilds Effective from the three layers.
func (rs *RunSettings) Recompute() {
	rs.Effective = rs.Base.Merge(rs.UserOverrides).Merge(rs.AgentOverrides)
}

// Baseline is the non-agent view: base plus user overrides only.
func (rs *RunSettings) Baseline() Settings {
	return rs.Base.Merge(rs.UserOverrides)
}

// FindProposal returns the proposal with the given id, or nil.
func (rs *RunSettings) FindProposal(id string) *Proposal {
	for _, p := range rs.AutoTune.Proposals {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// summarizeDiff renders "key: old -> new" lines in key order.
func summarizeDiff(effective, patch Settings) string {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "; "
		}
		if old, ok := effective[k]; ok {
			out += fmt.Sprintf("%s: %v -> %v", k, old, patch[k])
		} else {
			out += fmt.Sprintf("%s: (unset) -> %v", k, patch[k])
		}
	}
	return out
}
