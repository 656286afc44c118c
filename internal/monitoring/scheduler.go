package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roylee0704/gron"
	"go.uber.org/atomic"

	"kwatch/internal/models"
	"kwatch/internal/monitoring/interfaces"
	"kwatch/internal/providers"
	"kwatch/internal/storage"
	"kwatch/internal/structures"
)

// Scheduler drives the periodic check cycle and the daily retention purge.
// Cross-instance exclusion comes from the store's claim leases; the cycling
// flag only prevents overlapping cycles within this process.
type Scheduler struct {
	config    *structures.Config
	logger    providers.Logger
	metrics   providers.MetricsProviderInterface
	store     storage.Store
	executor  *CheckExecutor
	snapshots *SnapshotStore
	cron      *gron.Cron
	cycling   atomic.Bool
}

func NewScheduler(config *structures.Config, logger providers.Logger,
	metrics providers.MetricsProviderInterface, store storage.Store,
	executor *CheckExecutor, snapshots *SnapshotStore) interfaces.SchedulerInterface {
	return &Scheduler{
		config:    config,
		logger:    logger,
		metrics:   metrics,
		store:     store,
		executor:  executor,
		snapshots: snapshots,
	}
}

func (s *Scheduler) Init() {
	s.cron = gron.New()

	s.cron.AddFunc(gron.Every(s.config.Scheduler.CycleInterval), func() {
		report, err := s.RunCycle(context.Background(), time.Now())
		if err != nil {
			s.logger.Errorf(providers.TypeCheck, "Check cycle aborted: %s", err)
			return
		}
		s.logger.Infof(providers.TypeCheck, "Check cycle done: %d attempted, %d succeeded, %d failed",
			report.Attempted, report.Succeeded, report.Failed)
	})

	s.cron.AddFunc(gron.Every(24*time.Hour), func() {
		if err := s.purge(context.Background(), time.Now()); err != nil {
			s.logger.Errorf(providers.TypeCheck, "Retention purge failed: %s", err)
		}
	})

	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// RunCycle claims due monitors in batches and checks them on a bounded
// worker pool. Returns an error without running when a cycle is already in
// flight in this process.
func (s *Scheduler) RunCycle(ctx context.Context, now time.Time) (interfaces.CycleReport, error) {
	if !s.cycling.CompareAndSwap(false, true) {
		return interfaces.CycleReport{}, fmt.Errorf("a check cycle is already running")
	}
	defer s.cycling.Store(false)

	start := time.Now()
	workers := s.config.Scheduler.MaxConcurrent
	lease := s.config.Scheduler.LeaseTime

	var attempted, succeeded, failed atomic.Int64
	jobs := make(chan *models.Monitor)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if _, err := s.executor.Run(ctx, m); err != nil {
					failed.Inc()
				} else {
					succeeded.Inc()
				}
			}
		}()
	}

	var feedErr error
feed:
	for {
		batch, err := s.store.ClaimDue(ctx, now, workers, lease)
		if err != nil {
			feedErr = fmt.Errorf("claiming due monitors: %w", err)
			break
		}
		if len(batch) == 0 {
			break
		}
		for i, m := range batch {
			select {
			case jobs <- m:
				attempted.Inc()
			case <-ctx.Done():
				// Claims for monitors that never reached a worker are
				// released so the next cycle picks them up immediately.
				s.releaseClaims(batch[i:])
				feedErr = ctx.Err()
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	report := interfaces.CycleReport{
		Attempted: int(attempted.Load()),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}
	s.metrics.SetMonitorsDue(report.Attempted)
	s.metrics.ObserveCycleDuration(time.Since(start))
	return report, feedErr
}

// CheckNow runs a single monitor out of band. The monitor is claimed first,
// so a manual trigger never races a cycle already checking it.
func (s *Scheduler) CheckNow(ctx context.Context, monitorID string) error {
	m, err := s.store.ClaimOne(ctx, monitorID, time.Now(), s.config.Scheduler.LeaseTime)
	if err != nil {
		return err
	}
	_, err = s.executor.Run(ctx, m)
	return err
}

func (s *Scheduler) releaseClaims(monitors []*models.Monitor) {
	for _, m := range monitors {
		if err := s.store.ReleaseClaim(context.Background(), m.ID); err != nil {
			s.logger.Warnf(providers.TypeCheck, "Releasing claim on %s failed: %s", m.ID, err)
		}
	}
}

func (s *Scheduler) purge(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-time.Duration(s.config.Scheduler.RetentionDays) * 24 * time.Hour)
	deleted, err := s.store.PurgeCheckResultsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if s.snapshots != nil {
		if _, err := s.snapshots.Prune(cutoff); err != nil {
			return err
		}
	}
	s.logger.Infof(providers.TypeCheck, "Retention purge removed %d check results older than %s",
		deleted, cutoff.Format(time.RFC3339))
	return nil
}
