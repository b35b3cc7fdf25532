package memcg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HighGroupID = 1
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	assert.Error(t, cfg.Validate(), "high group id is required")

	cfg = &Config{HighGroupID: 1, ThrottleDelay: -time.Millisecond}
	assert.Error(t, cfg.Validate())

	cfg = &Config{HighGroupID: 1, ThrottleDelay: (1 << 33) * time.Millisecond}
	assert.Error(t, cfg.Validate())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, uint64(1), cfg.FaultThreshold)
	assert.Equal(t, 2*time.Second, cfg.ThrottleDelay)
	assert.True(t, cfg.UseBelowLow)
	assert.False(t, cfg.UseBelowMin)
}

func TestCounterNames(t *testing.T) {
	assert.Equal(t, "throttle_calls", CounterThrottleCalls.String())
	assert.Equal(t, "throttle_active", CounterThrottleActive.String())
	assert.Equal(t, "below_low_calls", CounterBelowLowCalls.String())
	assert.Equal(t, "below_low_active", CounterBelowLowActive.String())
	assert.Equal(t, "below_low", ModeBelowLow.String())
	assert.Equal(t, "below_min", ModeBelowMin.String())
}
