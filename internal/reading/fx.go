package reading

import (
	"github.com/smallbiznis/metra/internal/reading/repository"
	"github.com/smallbiznis/metra/internal/reading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reading",
	fx.Provide(
		repository.NewReadingRepository,
		service.New,
	),
)
