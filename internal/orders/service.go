package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/internal/cart"
	"github.com/tablyhq/tably-backend/internal/events"
	"github.com/tablyhq/tably-backend/internal/sessions"
	"github.com/tablyhq/tably-backend/pkg/db"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type storeLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, topic string, evt events.Event) error
}

var errCartVersionConflict = errors.New("cart version conflict")

// PlaceInput is one participant submitting the shared cart as a round.
type PlaceInput struct {
	SessionID           uuid.UUID
	ParticipantID       uuid.UUID
	ExpectedCartVersion int64
	IdempotencyKey      string
}

// Service owns order placement and the kitchen status flow.
type Service interface {
	Place(ctx context.Context, input PlaceInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID, storeID uuid.UUID, next enums.OrderStatus) (*models.Order, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, activeOnly bool) ([]models.Order, error)
}

type service struct {
	repo     OrderRepository
	carts    cart.CartRepository
	sessions sessions.SessionRepository
	stores   storeLoader
	tx       txRunner
	broker   eventPublisher
	logg     *logger.Logger
}

// NewService builds an order service backed by the provided stack.
func NewService(repo OrderRepository, carts cart.CartRepository, sessionRepo sessions.SessionRepository, stores storeLoader, tx txRunner, broker eventPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if sessionRepo == nil {
		return nil, fmt.Errorf("session repository required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store loader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if broker == nil {
		return nil, fmt.Errorf("event broker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		carts:    carts,
		sessions: sessionRepo,
		stores:   stores,
		tx:       tx,
		broker:   broker,
		logg:     logg,
	}, nil
}

// Place turns the shared cart into an immutable order round. The idempotency
// key makes retries safe: a key that already produced an order returns that
// order untouched, and the unique index resolves the race where two retries
// arrive at once.
func (s *service) Place(ctx context.Context, input PlaceInput) (*models.Order, error) {
	if err := validatePlaceInput(input); err != nil {
		return nil, err
	}

	if existing, err := s.findExisting(ctx, input); existing != nil || err != nil {
		return existing, err
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessionRepo := s.sessions.WithTx(tx)
		cartRepo := s.carts.WithTx(tx)

		session, err := sessionRepo.FindByID(ctx, input.SessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading session")
		}
		if session.Status != enums.SessionStatusOpen {
			return pkgerrors.New(pkgerrors.CodeSessionNotOpen, "session is not open")
		}

		sharedCart, err := cartRepo.FindBySession(ctx, input.SessionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
		}

		bumped, err := cartRepo.IncrementVersion(ctx, sharedCart.ID, input.ExpectedCartVersion)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "bumping cart version")
		}
		if !bumped {
			return errCartVersionConflict
		}

		items, err := cartRepo.ListItems(ctx, sharedCart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart items")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeCartEmpty, "cart is empty")
		}

		store, err := s.stores.FindByID(ctx, session.StoreID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading store")
		}
		totals := cart.PolicyFromStore(store).Compute(items)

		roundNo, err := sessionRepo.IncrementRound(ctx, session.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advancing round")
		}

		now := time.Now().UTC()
		order, err = s.repo.WithTx(tx).Create(ctx, &models.Order{
			StoreID:            session.StoreID,
			SessionID:          session.ID,
			ParticipantID:      input.ParticipantID,
			RoundNo:            roundNo,
			Status:             enums.OrderStatusPlaced,
			Items:              snapshotItems(items),
			SubtotalCents:      totals.SubtotalCents,
			TaxCents:           totals.TaxCents,
			ServiceChargeCents: totals.ServiceChargeCents,
			GrandTotalCents:    totals.GrandTotalCents,
			IdempotencyKey:     input.IdempotencyKey,
			PlacedAt:           now,
		})
		if err != nil {
			return err
		}

		if err := cartRepo.ClearItems(ctx, sharedCart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing cart")
		}
		return sessionRepo.TouchActivity(ctx, session.ID, now)
	})
	if errors.Is(err, errCartVersionConflict) {
		return nil, s.cartConflict(ctx, input.SessionID)
	}
	if db.IsUniqueViolation(err, "idx_orders_idempotency_key") || db.IsUniqueViolation(err, "") {
		// Lost the insert race to a concurrent retry with the same key.
		if existing, findErr := s.repo.FindByIdempotencyKey(ctx, input.IdempotencyKey); findErr == nil {
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "placing order")
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, enums.EventOrderPlaced, order, map[string]any{
		"order": newOrderPayload(order),
	})
	return order, nil
}

func validatePlaceInput(input PlaceInput) error {
	if input.SessionID == uuid.Nil || input.ParticipantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "session and participant ids are required")
	}
	if input.ExpectedCartVersion < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "expected cart version must be at least 1")
	}
	if input.IdempotencyKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	return nil
}

func (s *service) findExisting(ctx context.Context, input PlaceInput) (*models.Order, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, input.IdempotencyKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking idempotency key")
	}
	if existing.SessionID != input.SessionID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key already used by another session")
	}
	return existing, nil
}

func (s *service) cartConflict(ctx context.Context, sessionID uuid.UUID) error {
	conflict := pkgerrors.New(pkgerrors.CodeCartVersionMismatch, "cart changed since last read")
	fresh, err := s.carts.FindBySession(ctx, sessionID)
	if err != nil {
		s.logg.Warn(ctx, "could not attach fresh cart to placement conflict")
		return conflict
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return conflict
	}
	store, err := s.stores.FindByID(ctx, session.StoreID)
	if err != nil {
		return conflict
	}
	view := cart.BuildView(fresh.ID, fresh.SessionID, fresh.Version, fresh.Items, cart.PolicyFromStore(store))
	return conflict.WithDetails(map[string]any{"cart": view})
}

func snapshotItems(items []models.CartItem) types.OrderItemSnapshots {
	snapshots := make(types.OrderItemSnapshots, 0, len(items))
	for _, item := range items {
		snapshots = append(snapshots, types.OrderItemSnapshot{
			MenuItemID:      item.MenuItemID,
			ParticipantID:   item.ParticipantID,
			Name:            item.Name,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			SelectedOptions: item.SelectedOptions,
			Status:          enums.OrderItemStatusPlaced,
		})
	}
	return snapshots
}

// UpdateStatus moves an order along the kitchen state machine. The current
// status is rechecked in the UPDATE's WHERE clause, so of two concurrent
// staff updates exactly one wins and the other sees a transition conflict.
func (s *service) UpdateStatus(ctx context.Context, orderID, storeID uuid.UUID, next enums.OrderStatus) (*models.Order, error) {
	if orderID == uuid.Nil || storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and store ids are required")
	}
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order.StoreID != storeID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another store")
	}
	if !CanTransition(order.Status, next) {
		return nil, transitionConflict(order.Status, next)
	}

	moved, err := s.repo.TransitionStatus(ctx, orderID, storeID, order.Status, next)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order status")
	}
	if !moved {
		current, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading order")
		}
		return nil, transitionConflict(current.Status, next)
	}

	order.Status = next
	s.publish(ctx, enums.EventOrderStatusChanged, order, map[string]any{
		"order_id": order.ID,
		"status":   order.Status,
		"items":    order.Items,
	})
	return order, nil
}

func transitionConflict(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidStatusTransition, "status transition disallowed").
		WithDetails(map[string]any{"from": from, "to": to})
}

// ListBySession returns the session's orders.
func (s *service) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	orders, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing session orders")
	}
	return orders, nil
}

// ListByStore returns the store's orders for the staff dashboard.
func (s *service) ListByStore(ctx context.Context, storeID uuid.UUID, activeOnly bool) ([]models.Order, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	orders, err := s.repo.ListByStore(ctx, storeID, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing store orders")
	}
	return orders, nil
}

// orderPayload is the order as broadcast to subscribers, complete enough to
// render a new round without a follow-up fetch.
type orderPayload struct {
	ID                 uuid.UUID                `json:"id"`
	StoreID            uuid.UUID                `json:"store_id"`
	SessionID          uuid.UUID                `json:"session_id"`
	ParticipantID      uuid.UUID                `json:"participant_id"`
	RoundNo            int                      `json:"round_no"`
	Status             enums.OrderStatus        `json:"status"`
	Items              types.OrderItemSnapshots `json:"items"`
	SubtotalCents      int64                    `json:"subtotal_cents"`
	TaxCents           int64                    `json:"tax_cents"`
	ServiceChargeCents int64                    `json:"service_charge_cents"`
	GrandTotalCents    int64                    `json:"grand_total_cents"`
	PlacedAt           time.Time                `json:"placed_at"`
}

func newOrderPayload(order *models.Order) orderPayload {
	return orderPayload{
		ID:                 order.ID,
		StoreID:            order.StoreID,
		SessionID:          order.SessionID,
		ParticipantID:      order.ParticipantID,
		RoundNo:            order.RoundNo,
		Status:             order.Status,
		Items:              order.Items,
		SubtotalCents:      order.SubtotalCents,
		TaxCents:           order.TaxCents,
		ServiceChargeCents: order.ServiceChargeCents,
		GrandTotalCents:    order.GrandTotalCents,
		PlacedAt:           order.PlacedAt,
	}
}

func (s *service) publish(ctx context.Context, eventType enums.EventType, order *models.Order, payload map[string]any) {
	evt, err := events.NewEvent(eventType, order.SessionID, order.StoreID, payload)
	if err != nil {
		s.logg.Warn(ctx, "could not build order event")
		return
	}
	if err := s.broker.Publish(ctx, events.SessionTopic(order.SessionID), evt); err != nil {
		s.logg.Warn(ctx, "order event publish failed")
	}
	if err := s.broker.Publish(ctx, events.StoreTopic(order.StoreID), evt); err != nil {
		s.logg.Warn(ctx, "store order event publish failed")
	}
}
