package progress

import (
	"github.com/smallbiznis/metra/internal/progress/repository"
	"github.com/smallbiznis/metra/internal/progress/service"
	"go.uber.org/fx"
)

var Module = fx.Module("progress",
	fx.Provide(
		repository.NewProgressRepository,
		service.New,
	),
)
