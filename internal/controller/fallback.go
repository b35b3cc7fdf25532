package controller

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/yunwei37/agentcgroup/internal/cgroups"
	"github.com/yunwei37/agentcgroup/internal/memcg"
)

// pressureRatio activates protection when the parent cgroup's usage
// exceeds this share of its memory.max.
const pressureRatio = 0.85

// Fallback limits applied while protection is active, as shares of the
// parent limit. Absolute values are used when the parent is unlimited.
const (
	highLowShare = 0.8
	lowHighShare = 0.5
	highLowAbs   = uint64(1) << 30   // 1 GiB
	lowHighAbs   = uint64(512) << 20 // 512 MiB
)

// CgroupController approximates the kernel-side behavior with standard
// cgroup v2 controls.
//
// Normal state:
//
//	HIGH  memory.low  = 0     (no special protection)
//	LOW   memory.high = max   (no throttling)
//
// Protection active:
//
//	HIGH  memory.low  = large (kernel shields it from reclaim)
//	LOW   memory.high = small (kernel throttles its allocations)
//
// Each poll tick derives pressure from memory.events high deltas, PSI
// stall growth, and parent usage ratio, feeds them to the decision
// engine as fault events, and applies whatever the engine's reclaim
// callbacks answer.
type CgroupController struct {
	logger *zap.Logger

	cfg    Config
	engine *memcg.Engine

	highID uint64
	lowIDs []uint64
	parent string

	protectionActive bool
	protectionStart  time.Time

	lastHighEvents uint64
	lastPSITotal   uint64

	activations uint64
	lastTrigger string
	knownTools  map[string]struct{}
}

// NewCgroupController creates the userspace fallback backend.
func NewCgroupController(logger *zap.Logger) *CgroupController {
	return &CgroupController{
		logger:     logger.Named("memcg-cgroup"),
		knownTools: make(map[string]struct{}),
	}
}

func (c *CgroupController) Backend() string { return "cgroup" }

// Engine exposes the decision engine for reporting. It is nil before
// Attach.
func (c *CgroupController) Engine() *memcg.Engine {
	return c.engine
}

// Attach resolves the session cgroups, builds the decision engine, and
// records pressure baselines.
func (c *CgroupController) Attach(cfg Config) error {
	highID, err := cgroups.GroupID(cfg.HighPath)
	if err != nil {
		return fmt.Errorf("resolve high cgroup: %w", err)
	}

	lowIDs := make([]uint64, 0, len(cfg.LowPaths))
	for _, low := range cfg.LowPaths {
		id, err := cgroups.GroupID(low)
		if err != nil {
			return fmt.Errorf("resolve low cgroup: %w", err)
		}
		lowIDs = append(lowIDs, id)
	}

	engine, err := memcg.NewEngine(memcg.Config{
		HighGroupID:    highID,
		FaultThreshold: cfg.FaultThreshold,
		ThrottleDelay:  cfg.ThrottleDelay,
		UseBelowLow:    cfg.UseBelowLow,
		UseBelowMin:    cfg.UseBelowMin,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	c.cfg = cfg
	c.engine = engine
	c.highID = highID
	c.lowIDs = lowIDs
	c.parent = filepath.Dir(cfg.HighPath)

	if events, err := cgroups.MemoryEvents(cfg.HighPath); err == nil {
		c.lastHighEvents = events["high"]
	}
	if total, err := cgroups.PSISomeTotal(c.parent); err == nil {
		c.lastPSITotal = total
	}

	c.setNormal()
	c.logger.Info("cgroup fallback attached",
		zap.Uint64("high_id", highID),
		zap.Int("low_groups", len(lowIDs)))
	return nil
}

// Detach restores the normal state.
func (c *CgroupController) Detach() {
	if c.engine == nil {
		return
	}
	c.setNormal()
	c.logger.Info("cgroup fallback detached")
	c.engine = nil
}

// Poll runs one monitoring tick.
func (c *CgroupController) Poll(ctx context.Context) {
	if c.engine == nil || ctx.Err() != nil {
		return
	}

	now := time.Now()

	// While protected, only watch for window expiry; pressure is not
	// re-evaluated until limits are restored.
	if c.protectionActive {
		if now.Sub(c.protectionStart) >= c.cfg.protectionWindow() {
			c.setNormal()
			c.protectionActive = false
			c.logger.Debug("protection window expired, restored normal state")
		}
		return
	}

	trigger := c.feedPressureSignals()

	protected := c.engine.ShouldTreatAsProtected(memcg.ModeBelowLow)
	if c.cfg.UseBelowMin {
		protected = c.engine.ShouldTreatAsProtected(memcg.ModeBelowMin) || protected
	}
	if protected {
		c.activateProtection()
		c.protectionActive = true
		c.protectionStart = now
		c.activations++
		c.lastTrigger = trigger
		c.logger.Info("memory pressure detected, protection activated",
			zap.String("trigger", trigger))
	}

	c.scanToolGroups()
}

// feedPressureSignals reads the three pressure signals and delivers
// them to the engine as fault events. It returns a description of the
// strongest signal seen, for stats.
func (c *CgroupController) feedPressureSignals() string {
	trigger := ""

	// Signal 1: memory.events high counter. The delta is a real fault
	// count and feeds the aggregation window as-is.
	if events, err := cgroups.MemoryEvents(c.cfg.HighPath); err == nil {
		current := events["high"]
		var delta uint64
		if current > c.lastHighEvents {
			delta = current - c.lastHighEvents
		}
		c.lastHighEvents = current
		if delta > 0 {
			c.engine.OnEvent(c.highID, memcg.EventPageFault, delta)
			trigger = fmt.Sprintf("memory.events(delta=%d)", delta)
		}
	}

	// Signal 2: PSI stall growth on the parent. Any growth is treated
	// as a threshold-sized burst so one tick is enough to trigger.
	if total, err := cgroups.PSISomeTotal(c.parent); err == nil {
		var delta uint64
		if total > c.lastPSITotal {
			delta = total - c.lastPSITotal
		}
		c.lastPSITotal = total
		if delta > 0 {
			c.engine.OnEvent(c.highID, memcg.EventPageFault, c.cfg.FaultThreshold+1)
			if trigger == "" {
				trigger = fmt.Sprintf("psi(delta=%dus)", delta)
			}
		}
	}

	// Signal 3: parent usage approaching its limit.
	if current, err := cgroups.MemoryCurrent(c.parent); err == nil {
		if limit, ok, err := cgroups.MemoryMax(c.parent); err == nil && ok && limit > 0 {
			ratio := float64(current) / float64(limit)
			if ratio >= pressureRatio {
				c.engine.OnEvent(c.highID, memcg.EventPageFault, c.cfg.FaultThreshold+1)
				if trigger == "" {
					trigger = fmt.Sprintf("usage(%.0f%%)", ratio*100)
				}
			}
		}
	}

	return trigger
}

// setNormal restores default limits: no protection, no throttling.
func (c *CgroupController) setNormal() {
	if err := cgroups.WriteControl(c.cfg.HighPath, "memory.low", "0"); err != nil {
		c.logger.Warn("restore memory.low", zap.Error(err))
	}
	for _, low := range c.cfg.LowPaths {
		if err := cgroups.WriteControl(low, "memory.high", "max"); err != nil {
			c.logger.Warn("restore memory.high", zap.Error(err))
		}
	}
}

// activateProtection shields HIGH from reclaim and throttles every LOW
// group whose throttle query answers a non-zero delay.
func (c *CgroupController) activateProtection() {
	highLow := highLowAbs
	lowHigh := lowHighAbs
	if limit, ok, err := cgroups.MemoryMax(c.parent); err == nil && ok && limit > 0 {
		highLow = uint64(float64(limit) * highLowShare)
		lowHigh = uint64(float64(limit) * lowHighShare)
	}

	if err := cgroups.WriteControl(c.cfg.HighPath, "memory.low",
		strconv.FormatUint(highLow, 10)); err != nil {
		c.logger.Warn("protect memory.low", zap.Error(err))
	}

	for i, low := range c.cfg.LowPaths {
		value := "max"
		if c.engine.ThrottleDelayFor(c.lowIDs[i]) > 0 {
			value = strconv.FormatUint(lowHigh, 10)
		}
		if err := cgroups.WriteControl(low, "memory.high", value); err != nil {
			c.logger.Warn("throttle memory.high", zap.Error(err))
		}
	}
}

// scanToolGroups tracks per-tool-call child cgroups created under the
// HIGH session by the tool wrapper, pruning ones already removed.
func (c *CgroupController) scanToolGroups() {
	current := make(map[string]struct{})
	for _, path := range cgroups.ScanToolGroups(c.cfg.HighPath) {
		current[path] = struct{}{}
		if _, known := c.knownTools[path]; !known {
			c.logger.Debug("new tool cgroup", zap.String("path", path))
		}
	}
	c.knownTools = current
}

// Stats reports the fallback state. Engine counters are reported
// separately via Engine.
func (c *CgroupController) Stats() map[string]string {
	return map[string]string{
		"backend":            "cgroup",
		"protection_active":  strconv.FormatBool(c.protectionActive),
		"activations":        strconv.FormatUint(c.activations, 10),
		"last_trigger":       c.lastTrigger,
		"known_tool_cgroups": strconv.Itoa(len(c.knownTools)),
	}
}
