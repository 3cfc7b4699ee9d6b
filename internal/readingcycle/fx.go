package readingcycle

import (
	"github.com/smallbiznis/metra/internal/readingcycle/repository"
	"github.com/smallbiznis/metra/internal/readingcycle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("readingcycle",
	fx.Provide(
		repository.NewCycleRepository,
		service.New,
	),
)
