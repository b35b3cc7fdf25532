package memcg

import "time"

// EventSink receives fault-count events from the host memory
// subsystem. The sink performs its own group and kind filtering; the
// event source delivers everything it observes.
type EventSink interface {
	OnEvent(groupID uint64, kind EventKind, value uint64)
}

// ReclaimDecider answers the host reclaim path's decisions:
// ShouldTreatAsProtected for the HIGH group during reclaim evaluation,
// ThrottleDelayFor for every other group found over its memory.high
// ceiling. The host owns call frequency and timing.
type ReclaimDecider interface {
	ShouldTreatAsProtected(mode ProtectionMode) bool
	ThrottleDelayFor(groupID uint64) time.Duration
}

var (
	_ EventSink      = (*Engine)(nil)
	_ ReclaimDecider = (*Engine)(nil)
)
