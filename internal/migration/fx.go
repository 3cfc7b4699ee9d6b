package migration

import (
	assignmentdomain "github.com/smallbiznis/metra/internal/assignment/domain"
	billingdomain "github.com/smallbiznis/metra/internal/billingsync/domain"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	invoicedomain "github.com/smallbiznis/metra/internal/invoice/domain"
	meterdomain "github.com/smallbiznis/metra/internal/meter/domain"
	pricingdomain "github.com/smallbiznis/metra/internal/pricing/domain"
	readingdomain "github.com/smallbiznis/metra/internal/reading/domain"
	cycledomain "github.com/smallbiznis/metra/internal/readingcycle/domain"
	"github.com/smallbiznis/metra/internal/seed"
	"github.com/smallbiznis/metra/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if db.IsPostgres(conn) {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite runs (dev, tests) take the gorm schema directly
			if err := conn.AutoMigrate(
				&directorydomain.Building{},
				&directorydomain.Unit{},
				&directorydomain.Staff{},
				&directorydomain.UtilityService{},
				&meterdomain.Meter{},
				&cycledomain.ReadingCycle{},
				&assignmentdomain.Assignment{},
				&assignmentdomain.AssignmentUnit{},
				&readingdomain.MeterReading{},
				&pricingdomain.PricingTier{},
				&invoicedomain.InvoiceBatch{},
				&invoicedomain.InvoiceLine{},
				&billingdomain.BillingCycle{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureDefaultServices(conn)
	}),
)
