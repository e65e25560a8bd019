package models

import (
	"time"

	"github.com/google/uuid"
)

// SharedCart is the single versioned pre-order basket of a session. Version
// starts at 1 and every successful write, including order placement,
// increments it by exactly one. The version is the concurrency token.
type SharedCart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID uuid.UUID  `gorm:"column:session_id;type:uuid;not null;uniqueIndex"`
	Version   int64      `gorm:"column:version;not null;default:1"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
