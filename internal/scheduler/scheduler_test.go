package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	paymentmock "github.com/smallbiznis/storefront/internal/payment/domain/mock"
	"github.com/smallbiznis/storefront/internal/storetest"
	"go.uber.org/zap"
)

var testLabels = map[string]string{
	"service": "storefront",
	"env":     "test",
}

func newTestScheduler(t *testing.T, svc paymentdomain.Service, now time.Time) (*Scheduler, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	metrics := obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{
		ServiceName: "storefront",
		Environment: "test",
	})

	s, err := New(Params{
		Log:        zap.NewNop(),
		GenID:      storetest.NewNode(t),
		Clock:      clock.NewFakeClock(now),
		Policy:     config.NewStaticCheckoutPolicy(config.DefaultCheckoutPolicy()),
		PaymentSvc: svc,
		Metrics:    metrics,
		Config:     Config{BatchSize: 10},
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, registry
}

func TestNewRequiresPaymentService(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop(), GenID: storetest.NewNode(t), Clock: clock.New()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunJobTimeoutDoesNotReturnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	s, registry := newTestScheduler(t, paymentmock.NewMockService(ctrl), time.Now())

	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	errorLabels := withLabels(map[string]string{
		"job":    "timeout_job",
		"reason": obsmetrics.SchedulerJobReasonDeadlineExceeded,
	})
	if got := getCounterValue(t, registry, "storefront_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
	if got := getCounterValue(t, registry, "storefront_scheduler_job_runs_total", withLabels(map[string]string{"job": "timeout_job"})); got != 1 {
		t.Fatalf("expected run count 1, got %v", got)
	}
}

func TestRunJobWrapsOtherErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	s, _ := newTestScheduler(t, paymentmock.NewMockService(ctrl), time.Now())

	boom := errors.New("boom")
	err := s.runJob(context.Background(), "failing_job", 0, time.Second, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestSweepUsesReverifyWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := config.DefaultCheckoutPolicy()

	ctrl := gomock.NewController(t)
	svc := paymentmock.NewMockService(ctrl)
	svc.EXPECT().
		ListStalePending(gomock.Any(), now.Add(-policy.PendingReverifyWindow), now.Add(-policy.PendingReverifyAfter), 10).
		Return(nil, nil)

	s, registry := newTestScheduler(t, svc, now)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := getCounterValue(t, registry, "storefront_scheduler_job_runs_total", withLabels(map[string]string{"job": JobPendingPaymentSweep})); got != 1 {
		t.Fatalf("expected run count 1, got %v", got)
	}
}

func TestSweepVerifiesEachStalePayment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ctrl := gomock.NewController(t)
	svc := paymentmock.NewMockService(ctrl)
	svc.EXPECT().
		ListStalePending(gomock.Any(), gomock.Any(), gomock.Any(), 10).
		Return([]paymentdomain.Payment{
			{Reference: "SFP-PAID"},
			{Reference: "SFP-OPEN"},
			{Reference: "SFP-DOWN"},
		}, nil)
	svc.EXPECT().
		VerifyPayment(gomock.Any(), paymentdomain.SourceSweep, "SFP-PAID").
		Return(&paymentdomain.ReconcileResult{Status: paymentdomain.OutcomeCompleted, Reference: "SFP-PAID", OrderNumber: "SF-260301-AAAAA"}, nil)
	svc.EXPECT().
		VerifyPayment(gomock.Any(), paymentdomain.SourceSweep, "SFP-OPEN").
		Return(&paymentdomain.ReconcileResult{Status: "abandoned", Reference: "SFP-OPEN"}, nil)
	svc.EXPECT().
		VerifyPayment(gomock.Any(), paymentdomain.SourceSweep, "SFP-DOWN").
		Return(nil, paymentdomain.ErrVerificationFailed)

	s, registry := newTestScheduler(t, svc, now)
	err := s.RunOnce(context.Background())
	if !errors.Is(err, paymentdomain.ErrVerificationFailed) {
		t.Fatalf("expected verification failure to surface, got %v", err)
	}

	cases := map[string]float64{
		paymentdomain.OutcomeCompleted: 1,
		"open":                         1,
		"error":                        1,
	}
	for outcome, want := range cases {
		labels := withLabels(map[string]string{"job": JobPendingPaymentSweep, "outcome": outcome})
		if got := getCounterValue(t, registry, "storefront_scheduler_batch_processed_total", labels); got != want {
			t.Fatalf("outcome %s: expected %v, got %v", outcome, want, got)
		}
	}
}

func TestSweepListFailureIsReported(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := paymentmock.NewMockService(ctrl)
	svc.EXPECT().
		ListStalePending(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("db down"))

	s, registry := newTestScheduler(t, svc, time.Now())
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	labels := withLabels(map[string]string{"job": JobPendingPaymentSweep, "reason": obsmetrics.SchedulerJobReasonUnknown})
	if got := getCounterValue(t, registry, "storefront_scheduler_job_errors_total", labels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func withLabels(extra map[string]string) map[string]string {
	labels := make(map[string]string, len(testLabels)+len(extra))
	for k, v := range testLabels {
		labels[k] = v
	}
	for k, v := range extra {
		labels[k] = v
	}
	return labels
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
