package pricing

import (
	"github.com/smallbiznis/metra/internal/pricing/repository"
	"github.com/smallbiznis/metra/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing",
	fx.Provide(
		repository.NewTierRepository,
		service.New,
	),
)
