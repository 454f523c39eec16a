package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tugas/internal/audit/domain"
	"github.com/smallbiznis/tugas/internal/auditcontext"
	"github.com/smallbiznis/tugas/internal/clock"
	obsmetrics "github.com/smallbiznis/tugas/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/tugas/internal/payment/domain"
	"github.com/smallbiznis/tugas/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobResumePending = "resume_pending"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type pendingResumer interface {
	ResumePending(ctx context.Context, olderThan time.Time, limit int) (paymentdomain.ResumeResult, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc paymentdomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock       `optional:"true"`
	Locker     *ratelimit.Locker `optional:"true"`
	Config     Config            `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	payments pendingResumer
	locker   jobLocker
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.PaymentSvc == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	var locker jobLocker
	if p.Locker != nil {
		locker = p.Locker
	}
	return newScheduler(p.Log, p.Config, p.GenID, clk, p.PaymentSvc, locker), nil
}

func newScheduler(log *zap.Logger, cfg Config, genID *snowflake.Node, clk clock.Clock, payments pendingResumer, locker jobLocker) *Scheduler {
	return &Scheduler{
		log:      log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      cfg.withDefaults(),
		genID:    genID,
		clock:    clk,
		payments: payments,
		locker:   locker,
		metrics:  obsmetrics.Scheduler(),
	}
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err := s.withJobLock(ctx, name, fn)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.AddErrors(1)
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	// a timed out pass is picked up again on the next tick
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, JobResumePending, s.cfg.BatchSize, s.cfg.JobTimeout, s.ResumePendingJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ResumePendingJob drains PENDING records older than the grace window, one
// batch at a time, until a batch makes no progress.
func (s *Scheduler) ResumePendingJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobResumePending, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	var jobErr error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}

		// records touched during this pass get a fresh updated_at and fall out of the window
		olderThan := s.clock.Now().Add(-s.cfg.PendingGrace)
		result, err := s.payments.ResumePending(ctx, olderThan, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.resume.failed", JobResumePending, err)
			return errors.Join(jobErr, err)
		}

		s.metrics.AddBatchProcessed(JobResumePending, "confirmed", result.Confirmed)
		s.metrics.AddBatchProcessed(JobResumePending, "failed", result.Failed)
		s.metrics.AddBatchProcessed(JobResumePending, "pending", result.Pending)
		s.metrics.AddBatchProcessed(JobResumePending, "error", result.Errors)
		run.AddProcessed(result.Confirmed + result.Failed)
		run.AddErrors(result.Errors)

		if result.Errors > 0 {
			jobErr = errors.Join(jobErr, fmt.Errorf("%d pending records could not be resumed", result.Errors))
		}
		if result.Scanned < s.cfg.BatchSize || result.Confirmed+result.Failed == 0 {
			break
		}
	}
	return jobErr
}
