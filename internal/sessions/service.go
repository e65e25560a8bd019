package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/internal/events"
	"github.com/tablyhq/tably-backend/internal/tabletoken"
	"github.com/tablyhq/tably-backend/pkg/db"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type tokenVerifier interface {
	Verify(token string) (*tabletoken.Claims, error)
}

type fingerprintHasher interface {
	Hash(fingerprint string) (string, error)
}

type credentialIssuer interface {
	Issue(sessionID, participantID, storeID uuid.UUID) (string, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, topic string, evt events.Event) error
}

// errJoinRace aborts the join transaction when a concurrent join committed
// the session or participant row first. A whole party scanning the QR at
// once makes this the common collision, so the loser retries and reads the
// winner's rows instead of erroring.
var errJoinRace = errors.New("join creation race")

// JoinInput is one device asking to sit down at a table. Exactly one of
// Token or ShortCode identifies the table.
type JoinInput struct {
	Token             string
	ShortCode         string
	Nickname          string
	DeviceFingerprint string
	Language          string
}

// JoinResult is everything a joined device needs to start ordering.
type JoinResult struct {
	Session     SessionView       `json:"session"`
	Participant ParticipantView   `json:"participant"`
	CartID      uuid.UUID         `json:"cart_id"`
	Credential  string            `json:"credential"`
	Store       StoreSettingsView `json:"store"`
}

// Service owns the session lifecycle.
type Service interface {
	Join(ctx context.Context, input JoinInput) (*JoinResult, error)
	Close(ctx context.Context, sessionID uuid.UUID) error
	Get(ctx context.Context, sessionID uuid.UUID) (*SessionView, error)
	RefreshCredential(ctx context.Context, sessionID, participantID, storeID uuid.UUID) (string, error)
}

type service struct {
	repo         SessionRepository
	participants ParticipantRepository
	tables       TableRepository
	stores       StoreRepository
	tx           txRunner
	tokens       tokenVerifier
	hasher       fingerprintHasher
	credentials  credentialIssuer
	broker       eventPublisher
	logg         *logger.Logger
	defaultTTL   time.Duration

	refreshGroup singleflight.Group
}

// NewService builds a session service backed by the provided stack.
func NewService(
	repo SessionRepository,
	participants ParticipantRepository,
	tables TableRepository,
	stores StoreRepository,
	tx txRunner,
	tokens tokenVerifier,
	hasher fingerprintHasher,
	credentials credentialIssuer,
	broker eventPublisher,
	logg *logger.Logger,
	defaultTTL time.Duration,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if participants == nil {
		return nil, fmt.Errorf("participant repository required")
	}
	if tables == nil {
		return nil, fmt.Errorf("table repository required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("table token verifier required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("fingerprint hasher required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential issuer required")
	}
	if broker == nil {
		return nil, fmt.Errorf("event broker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if defaultTTL <= 0 {
		defaultTTL = 3 * time.Hour
	}
	return &service{
		repo:         repo,
		participants: participants,
		tables:       tables,
		stores:       stores,
		tx:           tx,
		tokens:       tokens,
		hasher:       hasher,
		credentials:  credentials,
		broker:       broker,
		logg:         logg,
		defaultTTL:   defaultTTL,
	}, nil
}

// Join admits a device to the table's OPEN session, creating the session and
// its cart when the table is empty. A device that already joined maps back
// to its participant row via the fingerprint hash.
func (s *service) Join(ctx context.Context, input JoinInput) (*JoinResult, error) {
	if err := validateJoinInput(input); err != nil {
		return nil, err
	}

	table, err := s.resolveTable(ctx, input)
	if err != nil {
		return nil, err
	}
	if !table.Active {
		return nil, pkgerrors.New(pkgerrors.CodeTableInactive, "table is not active")
	}

	store, err := s.stores.FindByID(ctx, table.StoreID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading store")
	}
	if !store.Active {
		return nil, pkgerrors.New(pkgerrors.CodeTableInactive, "store is not accepting sessions")
	}

	hash, err := s.hasher.Hash(input.DeviceFingerprint)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hashing fingerprint")
	}

	language := strings.TrimSpace(input.Language)
	if language == "" {
		language = store.DefaultLanguage
	}

	var (
		session     *models.TableSession
		participant *models.Participant
		cartID      uuid.UUID
		isNew       bool
	)
	now := time.Now().UTC()
	attempt := func() error {
		isNew = false
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			members := s.participants.WithTx(tx)

			session, err = repo.FindOpenByTable(ctx, table.ID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				session, err = s.openSession(ctx, repo, table, store, now)
				if err != nil {
					return err
				}
			} else if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finding open session")
			}

			cart, err := repo.FindCartBySession(ctx, session.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading session cart")
			}
			cartID = cart.ID

			participant, err = members.FindBySessionAndFingerprint(ctx, session.ID, hash)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				isNew = true
				participant, err = s.admitParticipant(ctx, repo, members, session, input.Nickname, language, hash, now)
				if err != nil {
					return err
				}
			} else if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finding participant")
			} else {
				participant.Nickname = input.Nickname
				participant.Language = language
				participant.LastSeenAt = now
				if err := members.Save(ctx, participant); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating participant")
				}
			}

			// Activity is bumped only when a new participant sits down.
			if isNew {
				return repo.TouchActivity(ctx, session.ID, now)
			}
			return nil
		})
	}
	err = attempt()
	if errors.Is(err, errJoinRace) {
		err = attempt()
	}
	if errors.Is(err, errJoinRace) {
		err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "joining session")
	}
	if err != nil {
		return nil, err
	}

	credential, err := s.credentials.Issue(session.ID, participant.ID, session.StoreID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issuing session credential")
	}

	if isNew {
		s.publish(ctx, enums.EventParticipantJoined, session, map[string]any{
			"participant": participantView(participant),
		})
	}

	return &JoinResult{
		Session:     sessionView(session),
		Participant: participantView(participant),
		CartID:      cartID,
		Credential:  credential,
		Store:       settingsFromStore(store),
	}, nil
}

func validateJoinInput(input JoinInput) error {
	if input.Token == "" && input.ShortCode == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "table token or short code is required")
	}
	if input.Token != "" && input.ShortCode != "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provide either a table token or a short code, not both")
	}
	if strings.TrimSpace(input.Nickname) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "nickname is required")
	}
	if input.DeviceFingerprint == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "device fingerprint is required")
	}
	return nil
}

// resolveTable maps the join input to a table row. A token whose QR version
// trails the table's current one is reported distinctly from an unknown
// table so clients can prompt for a rescan instead of an error page.
func (s *service) resolveTable(ctx context.Context, input JoinInput) (*models.Table, error) {
	if input.Token != "" {
		claims, err := s.tokens.Verify(input.Token)
		if err != nil {
			return nil, err
		}
		table, err := s.tables.FindByID(ctx, claims.TableID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "table not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading table")
		}
		if table.StoreID != claims.StoreID {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "table token store mismatch")
		}
		if table.QRTokenVersion != claims.QRVersion {
			return nil, pkgerrors.New(pkgerrors.CodeQRVersionMismatch, "table code has been regenerated")
		}
		return table, nil
	}

	table, err := s.tables.FindByShortCode(ctx, strings.TrimSpace(input.ShortCode))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "table not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading table")
	}
	return table, nil
}

func (s *service) openSession(ctx context.Context, repo SessionRepository, table *models.Table, store *models.Store, now time.Time) (*models.TableSession, error) {
	ttl := store.SessionTTL()
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	session, err := repo.Create(ctx, &models.TableSession{
		StoreID:        table.StoreID,
		TableID:        table.ID,
		Status:         enums.SessionStatusOpen,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
	})
	if err != nil {
		// One OPEN session per table; a concurrent join already created it.
		if db.IsUniqueViolation(err, "idx_table_sessions_one_open_per_table") || db.IsUniqueViolation(err, "") {
			return nil, errJoinRace
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating session")
	}
	if _, err := repo.CreateCart(ctx, session.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating session cart")
	}
	return session, nil
}

func (s *service) admitParticipant(ctx context.Context, repo SessionRepository, members ParticipantRepository, session *models.TableSession, nickname, language, hash string, now time.Time) (*models.Participant, error) {
	role := enums.ParticipantRoleGuest
	if session.HostParticipantID == nil {
		role = enums.ParticipantRoleHost
	}
	participant, err := members.Create(ctx, &models.Participant{
		SessionID:       session.ID,
		FingerprintHash: hash,
		Role:            role,
		Nickname:        strings.TrimSpace(nickname),
		Language:        language,
		DisplayColor:    displayColorFor(session.ParticipantsCount),
		LastSeenAt:      now,
	})
	if err != nil {
		// Same device joined twice concurrently; map back to the first row.
		if db.IsUniqueViolation(err, "idx_participants_session_fingerprint") || db.IsUniqueViolation(err, "") {
			return nil, errJoinRace
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating participant")
	}
	if err := repo.IncrementParticipants(ctx, session.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting participant")
	}
	session.ParticipantsCount++
	if role == enums.ParticipantRoleHost {
		if err := repo.SetHost(ctx, session.ID, participant.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assigning host")
		}
		session.HostParticipantID = &participant.ID
	}
	return participant, nil
}

// Close moves an OPEN session to CLOSED. Closing an already closed or
// expired session reports the current state instead of succeeding twice.
func (s *service) Close(ctx context.Context, sessionID uuid.UUID) error {
	if sessionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading session")
	}

	closed, err := s.repo.TransitionStatus(ctx, sessionID, enums.SessionStatusOpen, enums.SessionStatusClosed, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "closing session")
	}
	if !closed {
		return pkgerrors.New(pkgerrors.CodeSessionNotOpen, "session is not open")
	}

	s.publish(ctx, enums.EventSessionClosed, session, map[string]any{"reason": "closed"})
	return nil
}

// Get returns the session with its participants.
func (s *service) Get(ctx context.Context, sessionID uuid.UUID) (*SessionView, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	session, err := s.repo.FindByIDWithParticipants(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading session")
	}
	view := sessionView(session)
	return &view, nil
}

// RefreshCredential reissues the session credential. Concurrent refreshes
// for the same participant collapse into one issuance.
func (s *service) RefreshCredential(ctx context.Context, sessionID, participantID, storeID uuid.UUID) (string, error) {
	key := sessionID.String() + ":" + participantID.String()
	credential, err, _ := s.refreshGroup.Do(key, func() (any, error) {
		session, err := s.repo.FindByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
			}
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading session")
		}
		if session.Status != enums.SessionStatusOpen {
			return "", pkgerrors.New(pkgerrors.CodeSessionNotOpen, "session is not open")
		}
		if _, err := s.participants.FindByID(ctx, participantID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", pkgerrors.New(pkgerrors.CodeNotFound, "participant not found")
			}
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading participant")
		}
		return s.credentials.Issue(sessionID, participantID, storeID)
	})
	if err != nil {
		return "", err
	}
	return credential.(string), nil
}

func (s *service) publish(ctx context.Context, eventType enums.EventType, session *models.TableSession, payload map[string]any) {
	evt, err := events.NewEvent(eventType, session.ID, session.StoreID, payload)
	if err != nil {
		s.logg.Warn(ctx, "could not build session event")
		return
	}
	if err := s.broker.Publish(ctx, events.SessionTopic(session.ID), evt); err != nil {
		s.logg.Warn(ctx, "session event publish failed")
	}
	if err := s.broker.Publish(ctx, events.StoreTopic(session.StoreID), evt); err != nil {
		s.logg.Warn(ctx, "store event publish failed")
	}
}
