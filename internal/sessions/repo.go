package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
)

// Repository persists table sessions and their carts.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided GORM handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) SessionRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID returns the session row.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.TableSession, error) {
	var session models.TableSession
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByIDWithParticipants returns the session with its participants.
func (r *Repository) FindByIDWithParticipants(ctx context.Context, id uuid.UUID) (*models.TableSession, error) {
	var session models.TableSession
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindOpenByTable returns the table's OPEN session if one exists.
func (r *Repository) FindOpenByTable(ctx context.Context, tableID uuid.UUID) (*models.TableSession, error) {
	var session models.TableSession
	err := r.db.WithContext(ctx).
		Where("table_id = ? AND status = ?", tableID, enums.SessionStatusOpen).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Create inserts a session row.
func (r *Repository) Create(ctx context.Context, session *models.TableSession) (*models.TableSession, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.Status == "" {
		session.Status = enums.SessionStatusOpen
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// CreateCart inserts the session's shared cart at version 1.
func (r *Repository) CreateCart(ctx context.Context, sessionID uuid.UUID) (*models.SharedCart, error) {
	cart := &models.SharedCart{
		ID:        uuid.New(),
		SessionID: sessionID,
		Version:   1,
	}
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

// FindCartBySession returns the session's cart.
func (r *Repository) FindCartBySession(ctx context.Context, sessionID uuid.UUID) (*models.SharedCart, error) {
	var cart models.SharedCart
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// TransitionStatus moves a session between lifecycle states only when it is
// still in the expected one. Explicit close and the expiry sweeper both go
// through here, so whichever runs first wins and the loser observes it.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SessionStatus, closedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TableSession{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":    to,
			"closed_at": closedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetHost records the host participant.
func (r *Repository) SetHost(ctx context.Context, sessionID, participantID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.TableSession{}).
		Where("id = ?", sessionID).
		Update("host_participant_id", participantID).Error
}

// IncrementParticipants bumps the participant counter.
func (r *Repository) IncrementParticipants(ctx context.Context, sessionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.TableSession{}).
		Where("id = ?", sessionID).
		Update("participants_count", gorm.Expr("participants_count + 1")).Error
}

// IncrementRound atomically advances the round counter and returns the new
// value.
func (r *Repository) IncrementRound(ctx context.Context, sessionID uuid.UUID) (int, error) {
	err := r.db.WithContext(ctx).
		Model(&models.TableSession{}).
		Where("id = ?", sessionID).
		Update("current_round_no", gorm.Expr("current_round_no + 1")).Error
	if err != nil {
		return 0, err
	}
	var session models.TableSession
	if err := r.db.WithContext(ctx).Select("current_round_no").Where("id = ?", sessionID).First(&session).Error; err != nil {
		return 0, err
	}
	return session.CurrentRoundNo, nil
}

// TouchActivity stamps the last activity time.
func (r *Repository) TouchActivity(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.TableSession{}).
		Where("id = ?", sessionID).
		Update("last_activity_at", at).Error
}

// ListExpiredOpen returns OPEN sessions whose TTL has elapsed.
func (r *Repository) ListExpiredOpen(ctx context.Context, cutoff time.Time, limit int) ([]models.TableSession, error) {
	var sessions []models.TableSession
	query := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.SessionStatusOpen, cutoff).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
