package memcg

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowPacking(t *testing.T) {
	cases := []struct {
		sum, start uint32
	}{
		{0, 0},
		{1, 999},
		{math.MaxUint32, math.MaxUint32},
		{12345, 0},
		{0, math.MaxUint32},
	}
	for _, tc := range cases {
		sum, start := unpackWindow(packWindow(tc.sum, tc.start))
		assert.Equal(t, tc.sum, sum)
		assert.Equal(t, tc.start, start)
	}
}

func TestSaturate32(t *testing.T) {
	assert.Equal(t, uint32(7), saturate32(7))
	assert.Equal(t, uint32(math.MaxUint32), saturate32(math.MaxUint32))
	assert.Equal(t, uint32(math.MaxUint32), saturate32(math.MaxUint32+1))
}

// The window-start comparison relies on unsigned wraparound: a window
// started just before the 32-bit millisecond counter wraps must still
// be seen as fresh by events arriving just after the wrap.
func TestWindowStartComparisonAcrossWrap(t *testing.T) {
	start := uint32(math.MaxUint32 - 100)
	now := start + 200 // wraps past zero

	assert.Less(t, now-start, windowLengthMS)
}

func TestTriggerStateZeroMeansNever(t *testing.T) {
	var ts triggerState

	_, ok := ts.get()
	assert.False(t, ok)

	ts.set(5 * time.Millisecond)
	got, ok := ts.get()
	require.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, got)
}
