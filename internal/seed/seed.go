package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	"gorm.io/gorm"
)

var defaultServices = []struct {
	code string
	name string
	unit string
}{
	{code: "WATER", name: "Water", unit: "m3"},
	{code: "ELEC", name: "Electricity", unit: "kWh"},
}

// EnsureDefaultServices seeds the water and electricity services so a
// fresh deployment can open cycles immediately.
func EnsureDefaultServices(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, svc := range defaultServices {
			if err := ensureServiceTx(ctx, tx, node, svc.code, svc.name, svc.unit); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureServiceTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, code, name, unit string) error {
	var existing []directorydomain.UtilityService
	err := tx.WithContext(ctx).Raw(`
		SELECT id, code, name, unit, created_at, updated_at
		FROM utility_services WHERE code = ?
	`, code).Scan(&existing).Error
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	return tx.WithContext(ctx).Exec(`
		INSERT INTO utility_services (id, code, name, unit, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, node.Generate(), code, name, unit).Error
}
