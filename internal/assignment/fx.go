package assignment

import (
	"github.com/smallbiznis/metra/internal/assignment/repository"
	"github.com/smallbiznis/metra/internal/assignment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("assignment",
	fx.Provide(
		repository.NewAssignmentRepository,
		service.New,
	),
)
