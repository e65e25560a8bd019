package sessions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
)

// ParticipantRepo persists participants.
type ParticipantRepo struct {
	db *gorm.DB
}

// NewParticipantRepo binds the repository to the provided GORM handle.
func NewParticipantRepo(db *gorm.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *ParticipantRepo) WithTx(tx *gorm.DB) ParticipantRepository {
	if tx == nil {
		return r
	}
	return &ParticipantRepo{db: tx}
}

// FindByID returns the participant row.
func (r *ParticipantRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	var participant models.Participant
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&participant).Error
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// FindBySessionAndFingerprint returns the participant a returning device
// maps back to.
func (r *ParticipantRepo) FindBySessionAndFingerprint(ctx context.Context, sessionID uuid.UUID, fingerprintHash string) (*models.Participant, error) {
	var participant models.Participant
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND fingerprint_hash = ?", sessionID, fingerprintHash).
		First(&participant).Error
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// Create inserts a participant row.
func (r *ParticipantRepo) Create(ctx context.Context, participant *models.Participant) (*models.Participant, error) {
	if participant.ID == uuid.Nil {
		participant.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(participant).Error; err != nil {
		return nil, err
	}
	return participant, nil
}

// Save persists an updated participant row.
func (r *ParticipantRepo) Save(ctx context.Context, participant *models.Participant) error {
	return r.db.WithContext(ctx).Save(participant).Error
}
