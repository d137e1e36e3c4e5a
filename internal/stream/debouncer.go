// Package stream turns the model's noisy per-token translation stream into
// a bounded-rate sequence of host writes, one throttled lane per unit.
//
// Without throttling, streaming produces one host write per token; without a
// guaranteed final flush, a unit could finish mid-buffer and never reach its
// full text. The debouncer solves both: intermediate flushes are rate- and
// size-gated, the final flush is unconditional and tears the lane down.
package stream

import (
	"sync"
	"time"

	"lingoloop/internal/logging"
)

const (
	// DefaultMinInterval is the minimum spacing between intermediate
	// flushes for one unit.
	DefaultMinInterval = 150 * time.Millisecond

	// DefaultCharThreshold flushes early once this many characters have
	// accumulated since the last flush.
	DefaultCharThreshold = 32
)

// ApplyFunc writes accumulated text for a unit to the host surface.
// isFinal marks the last write for the unit.
type ApplyFunc func(blockID, text string, isFinal bool)

// unitState is the per-unit lane: everything between two flushes.
type unitState struct {
	buffered     string
	pendingChars int
	lastFlushAt  time.Time
	timer        Timer
}

// Debouncer coalesces partial-translation deltas per unit.
type Debouncer struct {
	mu    sync.Mutex
	units map[string]*unitState

	apply         ApplyFunc
	clock         Clock
	minInterval   time.Duration
	charThreshold int
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(d *Debouncer) { d.clock = c }
}

// WithThresholds overrides the flush gates.
func WithThresholds(minInterval time.Duration, charThreshold int) Option {
	return func(d *Debouncer) {
		d.minInterval = minInterval
		d.charThreshold = charThreshold
	}
}

// NewDebouncer builds a debouncer that delivers flushes through apply.
func NewDebouncer(apply ApplyFunc, opts ...Option) *Debouncer {
	d := &Debouncer{
		units:         make(map[string]*unitState),
		apply:         apply,
		clock:         RealClock(),
		minInterval:   DefaultMinInterval,
		charThreshold: DefaultCharThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Push feeds one delta for a unit.
//
// An intermediate flush happens immediately when the elapsed time since the
// unit's last flush reaches the interval gate, or when the accumulated
// character count reaches the size gate; otherwise the delta is buffered and
// a single trailing timer covers the remaining wait. A final push bypasses
// every gate, flushes whatever has accumulated plus this delta, and discards
// the lane, so the last applied value is always the true final value.
func (d *Debouncer) Push(blockID, delta string, isFinal bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	u, ok := d.units[blockID]
	if !ok {
		u = &unitState{lastFlushAt: now}
		d.units[blockID] = u
	}

	u.buffered += delta
	u.pendingChars += len(delta)

	if isFinal {
		d.flushLocked(blockID, u, now, true)
		delete(d.units, blockID)
		return
	}

	elapsed := now.Sub(u.lastFlushAt)
	if elapsed >= d.minInterval || u.pendingChars >= d.charThreshold {
		d.flushLocked(blockID, u, now, false)
		return
	}

	d.armLocked(blockID, u, d.minInterval-elapsed)
}

// Cancel discards any buffered text and pending timer for a unit without
// applying it. Used when a translation attempt is superseded or aborted.
func (d *Debouncer) Cancel(blockID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.units[blockID]
	if !ok {
		return
	}
	if u.timer != nil {
		u.timer.Stop()
	}
	delete(d.units, blockID)
}

// CancelAll discards every lane without applying. Used when the owning job
// reaches an end state.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for blockID, u := range d.units {
		if u.timer != nil {
			u.timer.Stop()
		}
		delete(d.units, blockID)
	}
}

// ActiveUnits returns the number of lanes with live state.
func (d *Debouncer) ActiveUnits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.units)
}

// flushLocked applies the accumulated text and resets the lane's gates.
// Any armed timer is cleared first so a trailing fire cannot double-apply.
func (d *Debouncer) flushLocked(blockID string, u *unitState, now time.Time, isFinal bool) {
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
	u.lastFlushAt = now
	u.pendingChars = 0
	d.apply(blockID, u.buffered, isFinal)
}

// armLocked schedules the trailing flush, replacing any previous timer so
// at most one is pending per unit.
func (d *Debouncer) armLocked(blockID string, u *unitState, wait time.Duration) {
	if u.timer != nil {
		u.timer.Stop()
	}
	u.timer = d.clock.AfterFunc(wait, func() {
		d.onTimer(blockID)
	})
}

// onTimer is the trailing-timer callback. A lane already flushed or torn
// down is a no-op; the timer only delivers text the gates never did.
func (d *Debouncer) onTimer(blockID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.units[blockID]
	if !ok {
		return
	}
	u.timer = nil
	if u.pendingChars == 0 {
		return
	}
	logging.For(logging.CategoryStream).Debugw("trailing flush",
		"blockId", blockID, "chars", u.pendingChars)
	d.flushLocked(blockID, u, d.clock.Now(), false)
}
