package memcg

import (
	"fmt"
	"math"
	"time"
)

// EventKind identifies the kind of a delivered memory event. Values
// follow the kernel vm_event_item enum so the event source can pass
// tracepoint items through unmodified.
type EventKind uint32

// EventPageFault is PGFAULT in the kernel vm_event_item enum. It is the
// only kind the engine acts on.
const EventPageFault EventKind = 23

// ProtectionMode selects which reclaim floor a protection query is
// asking about.
type ProtectionMode uint8

const (
	// ModeBelowLow asks whether the HIGH group should be treated as
	// below its memory.low floor.
	ModeBelowLow ProtectionMode = iota
	// ModeBelowMin asks whether the HIGH group should be treated as
	// below its memory.min floor.
	ModeBelowMin
)

func (m ProtectionMode) String() string {
	switch m {
	case ModeBelowLow:
		return "below_low"
	case ModeBelowMin:
		return "below_min"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Config holds the engine configuration. It is written once by the
// attachment path and never mutated after NewEngine.
type Config struct {
	// HighGroupID is the resource group whose faults are aggregated.
	// All events for other groups are ignored.
	HighGroupID uint64 `json:"high_group_id"`

	// FaultThreshold is the fault-event sum that must be exceeded
	// within one aggregation window to open the protection window.
	FaultThreshold uint64 `json:"fault_threshold"`

	// ThrottleDelay is returned to LOW groups over their memory.high
	// ceiling while protection is active. Zero disables throttling.
	ThrottleDelay time.Duration `json:"throttle_delay"`

	// UseBelowLow enables the below_low protection decision.
	UseBelowLow bool `json:"use_below_low"`

	// UseBelowMin enables the below_min protection decision.
	UseBelowMin bool `json:"use_below_min"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.HighGroupID == 0 {
		return fmt.Errorf("high group id must be set")
	}
	if c.ThrottleDelay < 0 {
		return fmt.Errorf("throttle delay cannot be negative")
	}
	if c.ThrottleDelay.Milliseconds() > math.MaxUint32 {
		return fmt.Errorf("throttle delay %v exceeds 32-bit milliseconds", c.ThrottleDelay)
	}
	return nil
}

// DefaultConfig returns defaults matching the userspace loader:
// trigger on the first fault, throttle LOW groups for 2 seconds,
// protect via the memory.low floor only.
func DefaultConfig() *Config {
	return &Config{
		FaultThreshold: 1,
		ThrottleDelay:  2000 * time.Millisecond,
		UseBelowLow:    true,
		UseBelowMin:    false,
	}
}
