package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/storefront/internal/config"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Decision is the verdict for one request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits at most limit requests per key within window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

const keyCheckoutInitialize = "storefront:ratelimit:initialize:%s"

type CheckoutLimiterParams struct {
	fx.In

	Log        *zap.Logger
	Policy     *config.CheckoutPolicyHolder
	Limiter    Limiter
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// CheckoutLimiter throttles payment initialization per client. A backend
// failure lets the request through.
type CheckoutLimiter struct {
	log        *zap.Logger
	policy     *config.CheckoutPolicyHolder
	limiter    Limiter
	obsMetrics *obsmetrics.Metrics
}

func NewCheckoutLimiter(p CheckoutLimiterParams) *CheckoutLimiter {
	return &CheckoutLimiter{
		log:        p.Log.Named("ratelimit.checkout"),
		policy:     p.Policy,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

func (l *CheckoutLimiter) AllowInitialize(ctx context.Context, clientKey string) Decision {
	if l == nil || l.limiter == nil {
		return Decision{Allowed: true}
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}

	policy := l.policy.Get()
	decision, err := l.limiter.Allow(ctx, fmt.Sprintf(keyCheckoutInitialize, clientKey), policy.InitializeRateLimit, policy.InitializeRateWindow)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return Decision{Allowed: true, Limit: policy.InitializeRateLimit}
	}
	if !decision.Allowed {
		l.obsMetrics.RecordRateLimitDenied(ctx, "payments_initialize", "client_limit")
	}
	return decision
}
