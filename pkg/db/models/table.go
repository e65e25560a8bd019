package models

import (
	"time"

	"github.com/google/uuid"
)

// Table is one physical table within a store. QRTokenVersion invalidates all
// previously issued table tokens when bumped; no blacklist exists.
type Table struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID        uuid.UUID `gorm:"column:store_id;type:uuid;not null;index"`
	Label          string    `gorm:"column:label;not null"`
	ShortCode      string    `gorm:"column:short_code;not null;uniqueIndex"`
	QRTokenVersion int       `gorm:"column:qr_token_version;not null;default:1"`
	Active         bool      `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
