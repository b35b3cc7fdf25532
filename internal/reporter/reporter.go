// Package reporter periodically renders the engine counters and
// controller state for humans and exports them as OTEL metrics.
package reporter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/yunwei37/agentcgroup/internal/controller"
	"github.com/yunwei37/agentcgroup/internal/memcg"
)

// Reporter reads engine and controller statistics off the hot path.
// The engine may be nil when the kernel backend is active; its counters
// then live in kernel maps and are printed by the loader itself.
type Reporter struct {
	engine   *memcg.Engine
	ctrl     controller.Controller
	logger   *zap.Logger
	interval time.Duration
	verbose  bool

	queries      metric.Int64ObservableCounter
	activations  metric.Int64ObservableCounter
	registration metric.Registration
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithVerbose logs a stats line every interval instead of only on
// demand.
func WithVerbose() Option {
	return func(r *Reporter) { r.verbose = true }
}

// WithInterval overrides the default 1s reporting interval.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// New creates a reporter and registers the OTEL instruments.
func New(engine *memcg.Engine, ctrl controller.Controller, logger *zap.Logger, opts ...Option) (*Reporter, error) {
	r := &Reporter{
		engine:   engine,
		ctrl:     ctrl,
		logger:   logger.Named("reporter"),
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.setupMetrics(); err != nil {
		return nil, fmt.Errorf("setting up metrics: %w", err)
	}
	return r, nil
}

func (r *Reporter) setupMetrics() error {
	if r.engine == nil {
		return nil
	}

	meter := otel.GetMeterProvider().Meter("agentcgroup.memcg")

	var err error
	r.queries, err = meter.Int64ObservableCounter(
		"memcg.reclaim.queries",
		metric.WithDescription("Reclaim-path decision queries, by callback"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	r.activations, err = meter.Int64ObservableCounter(
		"memcg.reclaim.active_answers",
		metric.WithDescription("Decision queries answered while protection was active, by callback"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	// The callback snapshots the engine counters outside the reclaim
	// path; the engine itself never touches OTEL.
	r.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := r.engine.Stats()
		o.ObserveInt64(r.queries, int64(s[memcg.CounterThrottleCalls]),
			metric.WithAttributes(attribute.String("callback", "get_high_delay_ms")))
		o.ObserveInt64(r.queries, int64(s[memcg.CounterBelowLowCalls]),
			metric.WithAttributes(attribute.String("callback", "below_low")))
		o.ObserveInt64(r.activations, int64(s[memcg.CounterThrottleActive]),
			metric.WithAttributes(attribute.String("callback", "get_high_delay_ms")))
		o.ObserveInt64(r.activations, int64(s[memcg.CounterBelowLowActive]),
			metric.WithAttributes(attribute.String("callback", "below_low")))
		return nil
	}, r.queries, r.activations)
	return err
}

// Run logs statistics every interval until ctx is cancelled or stopCh
// closes.
func (r *Reporter) Run(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	fields := make([]zap.Field, 0, 8)
	if r.engine != nil {
		s := r.engine.Stats()
		for id := memcg.CounterID(0); int(id) < len(s); id++ {
			fields = append(fields, zap.Uint64(id.String(), s[id]))
		}
	}
	for k, v := range r.ctrl.Stats() {
		fields = append(fields, zap.String(k, v))
	}

	if r.verbose {
		r.logger.Info("memcg stats", fields...)
	} else {
		r.logger.Debug("memcg stats", fields...)
	}
}

// Close unregisters the OTEL callback.
func (r *Reporter) Close() {
	if r.registration != nil {
		_ = r.registration.Unregister()
	}
}

// RenderTable renders the current statistics as a table, used for the
// final dump on shutdown.
func (r *Reporter) RenderTable() string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Stat", "Value"})

	if r.engine != nil {
		s := r.engine.Stats()
		for id := memcg.CounterID(0); int(id) < len(s); id++ {
			t.AppendRow(table.Row{id.String(), s[id]})
		}
		t.AppendSeparator()
	}

	ctrlStats := r.ctrl.Stats()
	keys := make([]string, 0, len(ctrlStats))
	for k := range ctrlStats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.AppendRow(table.Row{k, ctrlStats[k]})
	}

	return t.Render()
}
