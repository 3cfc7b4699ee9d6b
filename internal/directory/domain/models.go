package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Building is a directory read model; the core never mutates it.
type Building struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Code      string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Building) TableName() string { return "buildings" }

// Unit is a single rentable unit inside a building.
type Unit struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	BuildingID snowflake.ID `json:"building_id" gorm:"column:building_id;not null;index"`
	Code       string       `json:"code" gorm:"type:text;not null"`
	Floor      int          `json:"floor" gorm:"not null;default:0"`
	Active     bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Unit) TableName() string { return "units" }

// Staff is a field-staff read model.
type Staff struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Role      string       `json:"role" gorm:"type:text;not null;index"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Staff) TableName() string { return "staff" }

// UtilityService is a metered service (water, electricity).
type UtilityService struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Code      string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Unit      string       `json:"unit" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (UtilityService) TableName() string { return "utility_services" }
