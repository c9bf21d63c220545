package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobPendingPaymentSweep = "pending_payment_sweep"

	sweepLockKey = "storefront:scheduler:" + JobPendingPaymentSweep
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Policy     *config.CheckoutPolicyHolder
	PaymentSvc paymentdomain.Service
	Locker     *ratelimit.Locker            `optional:"true"`
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	Config     Config                       `optional:"true"`
}

// Scheduler re-verifies payments whose customers never came back from the
// hosted checkout and whose webhook never arrived.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	policy     *config.CheckoutPolicyHolder
	paymentSvc paymentdomain.Service
	locker     *ratelimit.Locker
	metrics    *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.PaymentSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		paymentSvc: p.PaymentSvc,
		locker:     p.Locker,
		metrics:    p.Metrics,
	}, nil
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

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	// deadline is a soft timeout; the next tick picks up what is left
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one sweep. Replicas sharing a redis lease skip the run
// while another replica holds it.
func (s *Scheduler) RunOnce(parent context.Context) error {
	err := s.locker.WithLock(parent, sweepLockKey, s.cfg.LockTTL, func(ctx context.Context) error {
		return s.runJob(ctx, JobPendingPaymentSweep, s.cfg.BatchSize, s.cfg.JobTimeout, s.SweepPendingPaymentsJob)
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		s.metrics.IncBatchDeferred(JobPendingPaymentSweep, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.log.Debug("sweep deferred, lease held elsewhere")
		return nil
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepPendingPaymentsJob verifies one batch of PENDING payments created
// between the reverify window and the reverify delay.
func (s *Scheduler) SweepPendingPaymentsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPendingPaymentSweep, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	policy := s.policy.Get()
	now := s.clock.Now()
	from := now.Add(-policy.PendingReverifyWindow)
	to := now.Add(-policy.PendingReverifyAfter)

	payments, err := s.paymentSvc.ListStalePending(ctx, from, to, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.sweep.list.failed", err)
		return err
	}

	var jobErr error
	for _, payment := range payments {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		result, err := s.paymentSvc.VerifyPayment(ctx, paymentdomain.SourceSweep, payment.Reference)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.metrics.AddBatchProcessed(JobPendingPaymentSweep, "error", 1)
			s.logSchedulerError(ctx, run, "scheduler.sweep.verify.failed", err,
				zap.String("payment_reference", payment.Reference),
			)
			continue
		}
		run.AddProcessed(1)
		s.metrics.AddBatchProcessed(JobPendingPaymentSweep, paymentdomain.OutcomeLabel(result.Status), 1)
		s.logger(ctx).Debug("scheduler.sweep.verified",
			zap.String("payment_reference", payment.Reference),
			zap.String("order_number", result.OrderNumber),
			zap.String("outcome", result.Status),
		)
	}
	return jobErr
}
