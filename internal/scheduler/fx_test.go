package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/storefront/internal/config"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	paymentmock "github.com/smallbiznis/storefront/internal/payment/domain/mock"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestRegisterSweeperSkipsWhenDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	s, _ := newTestScheduler(t, paymentmock.NewMockService(ctrl), time.Now())

	lc := fxtest.NewLifecycle(t)
	registerSweeper(lc, config.Config{SchedulerEnabled: false}, s, zap.NewNop())
	lc.RequireStart().RequireStop()
}

func TestRegisterSweeperRunsUntilStopped(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := paymentmock.NewMockService(ctrl)

	swept := make(chan struct{}, 1)
	svc.EXPECT().
		ListStalePending(gomock.Any(), gomock.Any(), gomock.Any(), 10).
		DoAndReturn(func(context.Context, time.Time, time.Time, int) ([]paymentdomain.Payment, error) {
			select {
			case swept <- struct{}{}:
			default:
			}
			return nil, nil
		}).
		MinTimes(1)

	s, _ := newTestScheduler(t, svc, time.Now())

	lc := fxtest.NewLifecycle(t)
	registerSweeper(lc, config.Config{SchedulerEnabled: true}, s, zap.NewNop())
	lc.RequireStart()

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the sweep loop to run once after start")
	}

	lc.RequireStop()
}
