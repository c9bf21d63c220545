package pricing

import (
	"github.com/smallbiznis/storefront/internal/pricing/repository"
	"github.com/smallbiznis/storefront/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
