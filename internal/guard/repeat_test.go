package guard

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRepeatGuard_FirstResultIsOK(t *testing.T) {
	g := NewRepeatGuard(true)

	v, rec := g.Check("b1", "hola")
	if v != VerdictOK {
		t.Fatalf("first result should be ok, got %s", v)
	}
	if rec.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", rec.Attempts)
	}
}

func TestRepeatGuard_IdenticalSecondResult(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewRepeatGuard(true)
	g.SetClock(fixedClock(base))

	g.Check("b1", "hola")
	v, rec := g.Check("b1", "hola")

	if v != VerdictRepeat {
		t.Fatalf("identical result should be flagged, got %s", v)
	}
	if rec.Repeats != 1 {
		t.Errorf("expected repeat count 1, got %d", rec.Repeats)
	}
	if !rec.CooldownUntil.After(base) {
		t.Error("cooldown timestamp should be in the future")
	}
	if got, want := rec.CooldownUntil, base.Add(NoImprovementCooldown); !got.Equal(want) {
		t.Errorf("cooldown until %v, want %v", got, want)
	}
}

func TestRepeatGuard_CooldownRefusesFurtherAttempts(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	g := NewRepeatGuard(true)
	g.SetClock(func() time.Time { return now })

	g.Check("b1", "hola")
	g.Check("b1", "hola") // opens cooldown

	now = base.Add(time.Minute)
	v, _ := g.Check("b1", "hola mundo")
	if v != VerdictCooldown {
		t.Fatalf("attempt inside cooldown should be refused, got %s", v)
	}

	// After the window the unit is workable again.
	now = base.Add(NoImprovementCooldown + time.Second)
	v, _ = g.Check("b1", "hola mundo")
	if v != VerdictOK {
		t.Fatalf("attempt after cooldown should pass, got %s", v)
	}
}

func TestRepeatGuard_NoCooldownsForPlainTranslation(t *testing.T) {
	g := NewRepeatGuard(false)

	g.Check("b1", "x")
	v, rec := g.Check("b1", "x")

	if v != VerdictRepeat {
		t.Fatalf("repeat still detected, got %s", v)
	}
	if !rec.CooldownUntil.IsZero() {
		t.Error("translation guard must not open cooldown windows")
	}
}

func TestRepeatGuard_ChangedResultResetsRepeats(t *testing.T) {
	g := NewRepeatGuard(false)

	g.Check("b1", "x")
	g.Check("b1", "x")
	v, rec := g.Check("b1", "y")

	if v != VerdictOK {
		t.Fatalf("changed result should be ok, got %s", v)
	}
	if rec.Repeats != 0 {
		t.Errorf("repeats should reset on change, got %d", rec.Repeats)
	}
}

func TestRepeatGuard_Forget(t *testing.T) {
	g := NewRepeatGuard(true)
	g.Check("b1", "x")
	g.Forget("b1")

	if _, ok := g.Units["b1"]; ok {
		t.Error("Forget should drop the unit record")
	}
}
