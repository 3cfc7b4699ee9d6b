package directory

import (
	"github.com/smallbiznis/metra/internal/directory/repository"
	"github.com/smallbiznis/metra/internal/directory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("directory",
	fx.Provide(
		repository.NewDirectoryRepository,
		service.New,
	),
)
