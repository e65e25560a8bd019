package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// Store is the tenant. Settings are mutated by the external admin service;
// the core reads them when admitting participants and pricing carts.
type Store struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string            `gorm:"column:name;not null"`
	DefaultLanguage    string            `gorm:"column:default_language;not null;default:'en'"`
	SupportedLanguages pq.StringArray    `gorm:"column:supported_languages;type:text[]"`
	TaxRate            decimal.Decimal   `gorm:"column:tax_rate;type:numeric(6,4);not null;default:0"`
	ServiceChargeRate  decimal.Decimal   `gorm:"column:service_charge_rate;type:numeric(6,4);not null;default:0"`
	TaxIncluded        bool              `gorm:"column:tax_included;not null;default:false"`
	ConfirmMode        enums.ConfirmMode `gorm:"column:confirm_mode;type:text;not null;default:'manual'"`
	SessionTTLMinutes  int               `gorm:"column:session_ttl_minutes;not null;default:180"`
	Active             bool              `gorm:"column:active;not null;default:true"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// SessionTTL returns the configured session lifetime.
func (s Store) SessionTTL() time.Duration {
	if s.SessionTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(s.SessionTTLMinutes) * time.Minute
}
