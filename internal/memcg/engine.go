// Package memcg implements the memory-priority decision engine: a
// sliding-window aggregator over page-fault events for one HIGH
// resource group, a time-bounded protection window opened when the
// fault rate crosses a threshold, and the reclaim-path decision
// callbacks consulted for the HIGH group (protection floors) and for
// LOW groups (throttle delay).
//
// Every exported method is safe for unbounded concurrent callers and
// completes without allocating, blocking, or taking locks; the reclaim
// path invokes the decision callbacks on arbitrary CPUs.
package memcg

import (
	"time"
)

// Engine is the decision engine for one HIGH group. Construct it with
// NewEngine and hand it to the host runtime; the configuration cannot
// change afterwards.
type Engine struct {
	cfg Config

	window  packedWindow
	trigger triggerState
	stats   Counters

	// now returns elapsed monotonic time since the engine epoch.
	// Replaced in tests.
	now func() time.Duration
}

// NewEngine creates an engine for the given configuration.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	epoch := time.Now()
	return &Engine{
		cfg: cfg,
		now: func() time.Duration { return time.Since(epoch) },
	}, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// OnEvent consumes one fault-count event. Events for other groups or
// of other kinds are ignored; they are not of interest, not errors.
//
// The event value is folded into the current aggregation window, or
// into a fresh window when the current one has aged past one second.
// When the window sum exceeds the fault threshold the protection
// window opens at the event's arrival time and the aggregation window
// restarts empty.
func (e *Engine) OnEvent(groupID uint64, kind EventKind, value uint64) {
	if groupID != e.cfg.HighGroupID || kind != EventPageFault {
		return
	}

	now := e.now()
	nowMS := uint32(now / time.Millisecond)

	for {
		old := e.window.load()
		sum, start := unpackWindow(old)

		newStart := start
		newSum := uint64(sum) + value
		if nowMS-start >= windowLengthMS {
			newStart = nowMS
			newSum = value
		}

		if newSum > e.cfg.FaultThreshold {
			// Open the protection window and restart aggregation so
			// the next second starts clean.
			if e.window.compareAndSwap(old, packWindow(0, nowMS)) {
				e.trigger.set(now)
				return
			}
			continue
		}

		if e.window.compareAndSwap(old, packWindow(saturate32(newSum), newStart)) {
			return
		}
	}
}

// ProtectionActive reports whether the protection window is open:
// a threshold crossing was recorded less than one second ago.
func (e *Engine) ProtectionActive() bool {
	t, ok := e.trigger.get()
	if !ok {
		return false
	}
	return e.now()-t < windowLength
}

// ShouldTreatAsProtected answers the reclaim path's protection query
// for the HIGH group.
//
// ModeBelowLow counts every query and every active answer; ModeBelowMin
// deliberately counts nothing, mirroring the kernel-side program.
func (e *Engine) ShouldTreatAsProtected(mode ProtectionMode) bool {
	switch mode {
	case ModeBelowLow:
		e.stats.inc(CounterBelowLowCalls)
		if !e.cfg.UseBelowLow {
			return false
		}
		if e.ProtectionActive() {
			e.stats.inc(CounterBelowLowActive)
			return true
		}
		return false
	case ModeBelowMin:
		if !e.cfg.UseBelowMin {
			return false
		}
		return e.ProtectionActive()
	}
	return false
}

// ThrottleDelayFor answers the reclaim path's throttle query for a LOW
// group found over its memory.high ceiling. The attachment path routes
// only non-HIGH groups here; the engine does not re-check the id.
func (e *Engine) ThrottleDelayFor(groupID uint64) time.Duration {
	_ = groupID
	e.stats.inc(CounterThrottleCalls)
	if e.cfg.ThrottleDelay > 0 && e.ProtectionActive() {
		e.stats.inc(CounterThrottleActive)
		return e.cfg.ThrottleDelay
	}
	return 0
}

// Stats returns the current counter values. The four reads are
// independent; no cross-counter atomicity is implied.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}
