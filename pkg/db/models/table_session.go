package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// TableSession is one dining visit at a table. At most one OPEN session may
// exist per table; the partial unique index in the schema enforces it.
type TableSession struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID           uuid.UUID           `gorm:"column:store_id;type:uuid;not null;index"`
	TableID           uuid.UUID           `gorm:"column:table_id;type:uuid;not null;index"`
	Status            enums.SessionStatus `gorm:"column:status;type:text;not null;default:'open'"`
	CurrentRoundNo    int                 `gorm:"column:current_round_no;not null;default:0"`
	ParticipantsCount int                 `gorm:"column:participants_count;not null;default:0"`
	HostParticipantID *uuid.UUID          `gorm:"column:host_participant_id;type:uuid"`
	ExpiresAt         time.Time           `gorm:"column:expires_at;not null;index"`
	LastActivityAt    time.Time           `gorm:"column:last_activity_at;not null"`
	ClosedAt          *time.Time          `gorm:"column:closed_at"`
	Cart              *SharedCart         `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Participants      []Participant       `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
