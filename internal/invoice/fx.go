package invoice

import (
	"github.com/smallbiznis/metra/internal/invoice/repository"
	"github.com/smallbiznis/metra/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(
		repository.NewInvoiceRepository,
		service.New,
	),
)
