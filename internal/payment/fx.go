package payment

import (
	"time"

	"github.com/smallbiznis/storefront/internal/config"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/internal/payment/adapters"
	"github.com/smallbiznis/storefront/internal/payment/adapters/paystack"
	"github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/payment/repository"
	paymentservice "github.com/smallbiznis/storefront/internal/payment/service"
	"github.com/smallbiznis/storefront/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			paystack.NewFactory(),
		)
	}),
	fx.Provide(provideGateway),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)

type gatewayParams struct {
	fx.In

	Cfg        config.Config
	Policy     *config.CheckoutPolicyHolder
	Registry   *adapters.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// provideGateway builds the configured provider's client. Startup fails when
// the provider is unknown or its secret is missing. The request timeout
// follows checkout.gatewayTimeout on every call, so policy reloads apply.
func provideGateway(p gatewayParams) (domain.Gateway, error) {
	timeout := func() time.Duration {
		return p.Policy.Get().GatewayTimeout
	}
	cfg := domain.AdapterConfig{
		SecretKey:   p.Cfg.Payment.SecretKey,
		BaseURL:     p.Cfg.Payment.BaseURL,
		TimeoutFunc: timeout,
	}
	if p.ObsMetrics != nil {
		cfg.Observer = p.ObsMetrics
	}
	return p.Registry.NewAdapter(p.Cfg.Payment.Provider, cfg)
}
