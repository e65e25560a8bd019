package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// Participant is one joined device within a session. FingerprintHash is a
// keyed hash of the device fingerprint; the raw value is never stored, so a
// returning device maps back to the same row.
type Participant struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID       uuid.UUID             `gorm:"column:session_id;type:uuid;not null;uniqueIndex:idx_participants_session_fingerprint"`
	FingerprintHash string                `gorm:"column:fingerprint_hash;not null;uniqueIndex:idx_participants_session_fingerprint"`
	Role            enums.ParticipantRole `gorm:"column:role;type:text;not null;default:'guest'"`
	Nickname        string                `gorm:"column:nickname;not null"`
	Language        string                `gorm:"column:language;not null;default:'en'"`
	DisplayColor    string                `gorm:"column:display_color;not null"`
	LastSeenAt      time.Time             `gorm:"column:last_seen_at;not null"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
