package memcg

import (
	"math"
	"sync/atomic"
	"time"
)

// windowLength bounds both the aggregation window and the protection
// window, matching the kernel-side program's fixed one second.
const windowLength = time.Second

const windowLengthMS = uint32(windowLength / time.Millisecond)

// The aggregation window is a single packed word so that accumulating
// into the window and resetting it are one compare-and-swap: the high
// 32 bits hold the running event sum, the low 32 bits the window start
// in milliseconds of the engine clock. Start comparisons use unsigned
// subtraction and stay correct across the ~49.7 day wrap.

func packWindow(sum, startMS uint32) uint64 {
	return uint64(sum)<<32 | uint64(startMS)
}

func unpackWindow(v uint64) (sum, startMS uint32) {
	return uint32(v >> 32), uint32(v)
}

// saturate32 clamps a sum to the packed field width. FaultThreshold
// values at or above this ceiling can never be crossed.
func saturate32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// packedWindow is the shared aggregation window.
type packedWindow struct {
	state atomic.Uint64
}

func (w *packedWindow) load() uint64 {
	return w.state.Load()
}

func (w *packedWindow) compareAndSwap(old, new uint64) bool {
	return w.state.CompareAndSwap(old, new)
}

// triggerState records when the threshold was last crossed, as
// nanoseconds of the engine clock. Zero means never; it is only ever
// judged stale by elapsed time, never cleared.
type triggerState struct {
	ts atomic.Int64
}

func (t *triggerState) set(now time.Duration) {
	t.ts.Store(int64(now))
}

func (t *triggerState) get() (time.Duration, bool) {
	v := t.ts.Load()
	if v == 0 {
		return 0, false
	}
	return time.Duration(v), true
}
