package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/clock"
	obsmetrics "github.com/smallbiznis/stagepass/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/stagepass/internal/payout/domain"
	"github.com/smallbiznis/stagepass/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobPayoutSettlement = "payout_settlement"

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	PayoutSvc payoutdomain.Service
	Config    Config `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	payoutSvc payoutdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.PayoutSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		payoutSvc: p.PayoutSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.AddErrors(1)
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name, err)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		log.Info("scheduler.job.lock_held")
		return nil
	}
	// Deadline is a soft timeout; the next tick picks up the rest.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		log.Warn("scheduler.job.timeout",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobPayoutSettlement, s.PayoutSettlementJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler.run.failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// PayoutSettlementJob settles the events whose payout delay elapsed today.
// Re-running it on the same day is safe: settled events are skipped and
// failed payouts are retried.
func (s *Scheduler) PayoutSettlementJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPayoutSettlement)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	report, err := s.payoutSvc.RunSettlement(ctx, s.clock.Now())
	if err != nil {
		return err
	}

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(JobPayoutSettlement, "events", report.EventsScanned)
	schedMetrics.AddBatchProcessed(JobPayoutSettlement, "payouts", report.Transferred)
	skipped := map[string]int{}
	for _, result := range report.Results {
		switch result.Outcome {
		case payoutdomain.OutcomeSkipped:
			skipped[result.Reason]++
		case payoutdomain.OutcomeFailed:
			s.logSchedulerError(ctx, run, "scheduler.payout.failed", errors.New(result.Reason),
				zap.String("event_id", result.EventID.String()),
				zap.String("artist_id", result.ArtistID.String()),
			)
		}
	}
	for reason, count := range skipped {
		schedMetrics.AddBatchSkipped(JobPayoutSettlement, reason, count)
	}
	run.AddProcessed(report.Transferred)
	return nil
}
