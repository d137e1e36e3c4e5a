// Package guard implements the repeat-result guard and the progress auditor.
//
// Both are pure bookkeeping over hashes and counters: the guard watches one
// unit at a time for results that stopped changing, the auditor watches the
// whole job for audits that stopped changing. Neither halts anything itself;
// they return advisory signals the orchestration layer acts on.
package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// NoImprovementCooldown is how long a unit is refused further proofreading
// after producing an identical result twice in a row.
const NoImprovementCooldown = 10 * time.Minute

// Verdict classifies one guard check.
type Verdict string

const (
	VerdictOK       Verdict = "ok"
	VerdictRepeat   Verdict = "no_improvement"
	VerdictCooldown Verdict = "no_improvement_cooldown"
)

// UnitRecord is the per-unit state the guard keeps.
type UnitRecord struct {
	LastHash      string    `json:"lastHash"`
	Attempts      int       `json:"attempts"`
	Repeats       int       `json:"repeats"`
	CooldownUntil time.Time `json:"cooldownUntil,omitempty"`
}

// RepeatGuard detects per-unit results that are not changing between
// attempts. Two independent instances exist per job: one for plain
// translation attempts, one for proofreading re-passes. Only the
// proofreading instance issues cooldowns.
type RepeatGuard struct {
	Units map[string]*UnitRecord `json:"units"`

	// Cooldowns enables the refusal window on repeat detection.
	Cooldowns bool `json:"cooldowns"`

	now func() time.Time
}

// NewRepeatGuard returns a guard; cooldowns selects the proofreading
// behavior (refuse repeated units for NoImprovementCooldown).
func NewRepeatGuard(cooldowns bool) *RepeatGuard {
	return &RepeatGuard{
		Units:     make(map[string]*UnitRecord),
		Cooldowns: cooldowns,
		now:       time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (g *RepeatGuard) SetClock(now func() time.Time) { g.now = now }

// Check records a produced result for a unit and classifies it.
//
// A unit inside its cooldown window returns VerdictCooldown without
// recording the attempt. A result hashing identically to the unit's
// previous result returns VerdictRepeat, increments the repeat counter
// and, when cooldowns are enabled, opens the cooldown window.
func (g *RepeatGuard) Check(blockID, text string) (Verdict, *UnitRecord) {
	if g.now == nil {
		g.now = time.Now
	}
	if g.Units == nil {
		g.Units = make(map[string]*UnitRecord)
	}

	now := g.now()
	rec, ok := g.Units[blockID]
	if !ok {
		rec = &UnitRecord{}
		g.Units[blockID] = rec
	}

	if g.Cooldowns && !rec.CooldownUntil.IsZero() && now.Before(rec.CooldownUntil) {
		return VerdictCooldown, rec
	}

	h := HashText(text)
	if rec.LastHash != "" && rec.LastHash == h {
		rec.Attempts++
		rec.Repeats++
		if g.Cooldowns {
			rec.CooldownUntil = now.Add(NoImprovementCooldown)
		}
		return VerdictRepeat, rec
	}

	rec.LastHash = h
	rec.Attempts++
	rec.Repeats = 0
	rec.CooldownUntil = time.Time{}
	return VerdictOK, rec
}

// Cooling reports whether a unit is inside its refusal window, and until
// when. Lets callers refuse before spending a model call.
func (g *RepeatGuard) Cooling(blockID string) (time.Time, bool) {
	if g.now == nil {
		g.now = time.Now
	}
	rec, ok := g.Units[blockID]
	if !ok || rec.CooldownUntil.IsZero() {
		return time.Time{}, false
	}
	if g.now().Before(rec.CooldownUntil) {
		return rec.CooldownUntil, true
	}
	return time.Time{}, false
}

// Forget drops the record for a unit, e.g. after a targeted literal or
// style re-translation that legitimately restarts the attempt history.
func (g *RepeatGuard) Forget(blockID string) {
	delete(g.Units, blockID)
}

// HashText returns the content hash used for repeat detection and
// translation-memory keys.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}
