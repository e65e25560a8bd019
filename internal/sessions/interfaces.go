package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
)

// SessionRepository defines the persistence surface for table sessions and
// their carts.
type SessionRepository interface {
	WithTx(tx *gorm.DB) SessionRepository
	FindByID(ctx context.Context, id uuid.UUID) (*models.TableSession, error)
	FindByIDWithParticipants(ctx context.Context, id uuid.UUID) (*models.TableSession, error)
	FindOpenByTable(ctx context.Context, tableID uuid.UUID) (*models.TableSession, error)
	Create(ctx context.Context, session *models.TableSession) (*models.TableSession, error)
	CreateCart(ctx context.Context, sessionID uuid.UUID) (*models.SharedCart, error)
	FindCartBySession(ctx context.Context, sessionID uuid.UUID) (*models.SharedCart, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SessionStatus, closedAt time.Time) (bool, error)
	SetHost(ctx context.Context, sessionID, participantID uuid.UUID) error
	IncrementParticipants(ctx context.Context, sessionID uuid.UUID) error
	IncrementRound(ctx context.Context, sessionID uuid.UUID) (int, error)
	TouchActivity(ctx context.Context, sessionID uuid.UUID, at time.Time) error
	ListExpiredOpen(ctx context.Context, cutoff time.Time, limit int) ([]models.TableSession, error)
}

// ParticipantRepository defines the persistence surface for participants.
type ParticipantRepository interface {
	WithTx(tx *gorm.DB) ParticipantRepository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	FindBySessionAndFingerprint(ctx context.Context, sessionID uuid.UUID, fingerprintHash string) (*models.Participant, error)
	Create(ctx context.Context, participant *models.Participant) (*models.Participant, error)
	Save(ctx context.Context, participant *models.Participant) error
}

// TableRepository reads the table projection.
type TableRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Table, error)
	FindByShortCode(ctx context.Context, shortCode string) (*models.Table, error)
}

// StoreRepository reads the store projection.
type StoreRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
}
