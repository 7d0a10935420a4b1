/*
Package aggregation provides the snapshot pre-aggregation job.

PURPOSE:
  Periodically computes every registered metric for every tenant and
  period and writes the results to the durable store, so that cold
  fast-cache misses are answered from a snapshot instead of a live
  calculation. The cascade only ever reads these snapshots.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on start
  - A failure for one (tenant, metric, period) is logged and skipped
  - Custom periods have no fixed range and are never pre-aggregated

USAGE:
  scheduler := aggregation.NewScheduler(store, registry, store, clock, logger)
  scheduler.Interval = 6 * time.Hour
  scheduler.Start(ctx)
  // ... later
  scheduler.Stop()

SEE ALSO:
  - metric/cascade.go: Consumes snapshots on fast-cache miss
  - store/sqlite/sqlite.go: financer_metrics table
*/
package aggregation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/metrics-engine/metric"
)

// TenantLister enumerates the tenants to pre-aggregate.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]metric.TenantID, error)
}

// RunResult summarizes one pass.
type RunResult struct {
	Tenants int
	Written int
	Failed  int
}

// Scheduler pre-aggregates metric snapshots on an interval.
type Scheduler struct {
	Tenants   TenantLister
	Registry  *metric.Registry
	Snapshots metric.SnapshotWriter
	Clock     metric.Clock
	Logger    *slog.Logger
	Interval  time.Duration
	Periods   []metric.Period
	Enabled   bool

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a scheduler over every non-custom period.
func NewScheduler(tenants TenantLister, registry *metric.Registry, snapshots metric.SnapshotWriter, clock metric.Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = metric.SystemClock{}
	}
	return &Scheduler{
		Tenants:   tenants,
		Registry:  registry,
		Snapshots: snapshots,
		Clock:     clock,
		Logger:    logger,
		Interval:  6 * time.Hour,
		Periods: []metric.Period{
			metric.Period7Days, metric.Period30Days, metric.Period3Months,
			metric.Period6Months, metric.Period12Months,
		},
		Enabled: true,
	}
}

// Start begins the scheduler. It is a no-op when disabled or already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("aggregation scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(ctx)

	s.Logger.Info("aggregation scheduler started", "interval", s.Interval, "periods", s.Periods)
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("aggregation scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.runLogged(ctx)
	for {
		select {
		case <-s.ticker.C:
			s.runLogged(ctx)
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.Logger.Error("aggregation pass failed", "error", err)
		return
	}
	s.Logger.Info("aggregation pass complete",
		"tenants", res.Tenants, "written", res.Written, "failed", res.Failed)
}

// RunOnce computes and writes one snapshot per tenant, metric and period.
// Only listing tenants and context cancellation abort the pass.
func (s *Scheduler) RunOnce(ctx context.Context) (RunResult, error) {
	tenants, err := s.Tenants.ListTenants(ctx)
	if err != nil {
		return RunResult{}, err
	}

	res := RunResult{Tenants: len(tenants)}
	resolver := metric.NewPeriodResolver(s.Clock)
	calcs := s.Registry.All()

	for _, tenant := range tenants {
		for _, mt := range s.Registry.Types() {
			for _, period := range s.Periods {
				if err := ctx.Err(); err != nil {
					return res, err
				}
				if period == metric.PeriodCustom {
					continue
				}
				if err := s.aggregate(ctx, resolver, calcs[mt], mt, tenant, period); err != nil {
					res.Failed++
					s.Logger.Warn("skipping snapshot",
						"tenant_id", tenant, "metric_type", mt, "period", period, "error", err)
					continue
				}
				res.Written++
			}
		}
	}
	return res, nil
}

func (s *Scheduler) aggregate(ctx context.Context, resolver *metric.PeriodResolver, calc metric.Calculator, mt metric.MetricType, tenant metric.TenantID, period metric.Period) error {
	rng, err := resolver.Resolve(period, nil, nil)
	if err != nil {
		return err
	}
	raw, err := calc.Calculate(ctx, tenant, rng, period)
	if err != nil {
		return err
	}
	return s.Snapshots.SaveSnapshot(ctx, metric.Snapshot{
		TenantID:  tenant,
		Metric:    mt,
		Period:    period,
		Data:      raw,
		UpdatedAt: s.Clock.Now(),
	})
}
