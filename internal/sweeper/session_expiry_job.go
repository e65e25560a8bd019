package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/internal/events"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

const defaultExpiryBatchSize = 200

type expiredSessionStore interface {
	ListExpiredOpen(ctx context.Context, cutoff time.Time, limit int) ([]models.TableSession, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SessionStatus, closedAt time.Time) (bool, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, topic string, event events.Event) error
}

// SessionExpiryJob moves OPEN sessions past their deadline to EXPIRED and
// notifies subscribers. An explicit close racing the sweep wins because the
// status transition is guarded on the current state.
type SessionExpiryJob struct {
	sessions  expiredSessionStore
	broker    eventPublisher
	logg      *logger.Logger
	batchSize int
	now       func() time.Time
}

// NewSessionExpiryJob builds the session expiry job.
func NewSessionExpiryJob(sessions expiredSessionStore, broker eventPublisher, logg *logger.Logger, batchSize int) (*SessionExpiryJob, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if broker == nil {
		return nil, fmt.Errorf("event broker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if batchSize <= 0 {
		batchSize = defaultExpiryBatchSize
	}
	return &SessionExpiryJob{
		sessions:  sessions,
		broker:    broker,
		logg:      logg,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

// Name implements Job.
func (j *SessionExpiryJob) Name() string {
	return "session-expiry"
}

// Run expires one batch of overdue sessions and returns how many changed.
func (j *SessionExpiryJob) Run(ctx context.Context) (int, error) {
	now := j.now().UTC()
	sessions, err := j.sessions.ListExpiredOpen(ctx, now, j.batchSize)
	if err != nil {
		return 0, fmt.Errorf("listing expired sessions: %w", err)
	}

	swept := 0
	for _, session := range sessions {
		transitioned, err := j.sessions.TransitionStatus(ctx, session.ID, enums.SessionStatusOpen, enums.SessionStatusExpired, now)
		if err != nil {
			return swept, fmt.Errorf("expiring session %s: %w", session.ID, err)
		}
		if !transitioned {
			continue
		}
		swept++
		j.notify(ctx, session, now)
	}
	return swept, nil
}

func (j *SessionExpiryJob) notify(ctx context.Context, session models.TableSession, closedAt time.Time) {
	payload := map[string]any{
		"session_id": session.ID,
		"status":     enums.SessionStatusExpired,
		"closed_at":  closedAt,
		"reason":     "expired",
	}
	evt, err := events.NewEvent(enums.EventSessionClosed, session.ID, session.StoreID, payload)
	if err != nil {
		j.logg.Warn(ctx, "could not build session expiry event")
		return
	}
	if err := j.broker.Publish(ctx, events.SessionTopic(session.ID), evt); err != nil {
		j.logg.Warn(ctx, "session expiry event publish failed")
	}
	if err := j.broker.Publish(ctx, events.StoreTopic(session.StoreID), evt); err != nil {
		j.logg.Warn(ctx, "store expiry event publish failed")
	}
}
