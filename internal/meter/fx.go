package meter

import (
	"github.com/smallbiznis/metra/internal/meter/repository"
	"github.com/smallbiznis/metra/internal/meter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("meter",
	fx.Provide(
		repository.NewMeterRepository,
		service.New,
	),
)
