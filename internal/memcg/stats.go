package memcg

import "sync/atomic"

// CounterID indexes the engine's diagnostic counters. The slot order
// matches the kernel-side stats map.
type CounterID uint32

const (
	// CounterThrottleCalls counts every throttle-delay query.
	CounterThrottleCalls CounterID = iota
	// CounterThrottleActive counts throttle queries answered with a
	// non-zero delay.
	CounterThrottleActive
	// CounterBelowLowCalls counts every below_low protection query.
	CounterBelowLowCalls
	// CounterBelowLowActive counts below_low queries answered true.
	CounterBelowLowActive

	numCounters
)

func (c CounterID) String() string {
	switch c {
	case CounterThrottleCalls:
		return "throttle_calls"
	case CounterThrottleActive:
		return "throttle_active"
	case CounterBelowLowCalls:
		return "below_low_calls"
	case CounterBelowLowActive:
		return "below_low_active"
	}
	return "unknown"
}

// Stats is a point-in-time view of the four counters, indexed by
// CounterID.
type Stats [numCounters]uint64

// Counters is a fixed set of monotonically increasing counters,
// incremented atomically and never reset.
type Counters struct {
	vals [numCounters]atomic.Uint64
}

func (c *Counters) inc(id CounterID) {
	c.vals[id].Add(1)
}

// snapshot reads the four counters one by one. Concurrent increments
// may land between the reads.
func (c *Counters) snapshot() Stats {
	var s Stats
	for i := range c.vals {
		s[i] = c.vals[i].Load()
	}
	return s
}
