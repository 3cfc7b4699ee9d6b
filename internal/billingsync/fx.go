package billingsync

import (
	"github.com/smallbiznis/metra/internal/billingsync/repository"
	"github.com/smallbiznis/metra/internal/billingsync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingsync",
	fx.Provide(
		repository.NewBillingCycleRepository,
		service.New,
	),
)
