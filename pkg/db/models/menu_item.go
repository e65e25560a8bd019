package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/types"
)

// MenuItem is the read-side projection of the catalog. Catalog CRUD lives in
// the external admin service; the core only reads name, price, sold-out flag
// and option groups when pricing cart lines.
type MenuItem struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID        uuid.UUID              `gorm:"column:store_id;type:uuid;not null;index"`
	Name           string                 `gorm:"column:name;not null"`
	BasePriceCents int64                  `gorm:"column:base_price_cents;not null"`
	SoldOut        bool                   `gorm:"column:sold_out;not null;default:false"`
	OptionGroups   types.MenuOptionGroups `gorm:"column:option_groups;type:jsonb;serializer:json"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
