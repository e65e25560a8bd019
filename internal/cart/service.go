package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/internal/catalog"
	"github.com/tablyhq/tably-backend/internal/events"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type sessionLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.TableSession, error)
}

type storeLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

type itemResolver interface {
	Resolve(ctx context.Context, storeID, menuItemID uuid.UUID, selections []catalog.SelectionInput) (*catalog.ResolvedItem, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, topic string, evt events.Event) error
}

// errVersionConflict aborts the mutation transaction when the version guard
// loses; the service translates it into a conflict carrying the fresh cart.
var errVersionConflict = errors.New("cart version conflict")

// MutateInput is one client-requested cart change.
type MutateInput struct {
	CartID          uuid.UUID
	SessionID       uuid.UUID
	ParticipantID   uuid.UUID
	Action          enums.CartAction
	ExpectedVersion int64

	// ADD
	MenuItemID uuid.UUID
	// UPDATE / REMOVE
	ItemID uuid.UUID
	// ADD / UPDATE
	Quantity int
	// ADD always; UPDATE only when ReplaceOptions is set
	Selections     []catalog.SelectionInput
	ReplaceOptions bool
}

// Service coordinates shared cart reads and writes.
type Service interface {
	Get(ctx context.Context, cartID, sessionID uuid.UUID) (*View, error)
	Mutate(ctx context.Context, input MutateInput) (*View, error)
}

type service struct {
	repo     CartRepository
	tx       txRunner
	sessions sessionLoader
	stores   storeLoader
	catalog  itemResolver
	broker   eventPublisher
	logg     *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, sessions sessionLoader, stores storeLoader, resolver itemResolver, broker eventPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session loader required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store loader required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("catalog resolver required")
	}
	if broker == nil {
		return nil, fmt.Errorf("event broker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		sessions: sessions,
		stores:   stores,
		catalog:  resolver,
		broker:   broker,
		logg:     logg,
	}, nil
}

// Get returns the cart scoped to the caller's session.
func (s *service) Get(ctx context.Context, cartID, sessionID uuid.UUID) (*View, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	cart, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}
	if cart.SessionID != sessionID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cart belongs to another session")
	}
	return s.buildView(ctx, cart.ID, cart.SessionID, cart.Version, cart.Items)
}

// Mutate applies one ADD/UPDATE/REMOVE under the cart's version guard. A
// stale expected version returns a conflict whose details carry the latest
// cart so the client can reconcile and retry.
func (s *service) Mutate(ctx context.Context, input MutateInput) (*View, error) {
	if err := validateMutateInput(input); err != nil {
		return nil, err
	}

	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindByID(ctx, input.CartID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
		}
		if cart.SessionID != input.SessionID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "cart belongs to another session")
		}

		session, err := s.sessions.FindByID(ctx, cart.SessionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading session")
		}
		if session.Status != enums.SessionStatusOpen {
			return pkgerrors.New(pkgerrors.CodeSessionNotOpen, "session is not open")
		}

		bumped, err := repo.IncrementVersion(ctx, cart.ID, input.ExpectedVersion)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "bumping cart version")
		}
		if !bumped {
			return errVersionConflict
		}

		if err := s.applyAction(ctx, repo, session.StoreID, input); err != nil {
			return err
		}

		items, err := repo.ListItems(ctx, cart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading cart items")
		}
		view, err = s.buildView(ctx, cart.ID, cart.SessionID, input.ExpectedVersion+1, items)
		return err
	})
	if errors.Is(err, errVersionConflict) {
		return nil, s.versionConflict(ctx, input.CartID)
	}
	if err != nil {
		return nil, err
	}

	s.publishCartUpdated(ctx, view)
	return view, nil
}

func validateMutateInput(input MutateInput) error {
	if input.CartID == uuid.Nil || input.SessionID == uuid.Nil || input.ParticipantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart, session, and participant ids are required")
	}
	if !input.Action.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown cart action")
	}
	if input.ExpectedVersion < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "expected version must be at least 1")
	}
	switch input.Action {
	case enums.CartActionAdd:
		if input.MenuItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "menu item id is required")
		}
		if input.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
		}
	case enums.CartActionUpdate:
		if input.ItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart item id is required")
		}
		if input.Quantity < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
		}
	case enums.CartActionRemove:
		if input.ItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart item id is required")
		}
	}
	return nil
}

func (s *service) applyAction(ctx context.Context, repo CartRepository, storeID uuid.UUID, input MutateInput) error {
	switch input.Action {
	case enums.CartActionAdd:
		resolved, err := s.catalog.Resolve(ctx, storeID, input.MenuItemID, input.Selections)
		if err != nil {
			return err
		}
		_, err = repo.AddItem(ctx, &models.CartItem{
			CartID:          input.CartID,
			ParticipantID:   input.ParticipantID,
			MenuItemID:      resolved.MenuItemID,
			Name:            resolved.Name,
			Quantity:        input.Quantity,
			UnitPriceCents:  resolved.UnitPriceCents,
			SelectedOptions: resolved.SelectedOptions,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adding cart item")
		}
		return nil

	case enums.CartActionUpdate:
		// Quantity zero means the line goes away.
		if input.Quantity == 0 {
			return s.removeItem(ctx, repo, input.CartID, input.ItemID)
		}
		item, err := repo.FindItem(ctx, input.CartID, input.ItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart item")
		}
		item.Quantity = input.Quantity
		if input.ReplaceOptions {
			resolved, err := s.catalog.Resolve(ctx, storeID, item.MenuItemID, input.Selections)
			if err != nil {
				return err
			}
			item.Name = resolved.Name
			item.UnitPriceCents = resolved.UnitPriceCents
			item.SelectedOptions = resolved.SelectedOptions
		}
		if err := repo.SaveItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving cart item")
		}
		return nil

	case enums.CartActionRemove:
		return s.removeItem(ctx, repo, input.CartID, input.ItemID)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "unknown cart action")
}

func (s *service) removeItem(ctx context.Context, repo CartRepository, cartID, itemID uuid.UUID) error {
	removed, err := repo.DeleteItem(ctx, cartID, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "removing cart item")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return nil
}

func (s *service) buildView(ctx context.Context, cartID, sessionID uuid.UUID, version int64, items []models.CartItem) (*View, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading session")
	}
	store, err := s.stores.FindByID(ctx, session.StoreID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading store")
	}
	return BuildView(cartID, sessionID, version, items, PolicyFromStore(store)), nil
}

func (s *service) versionConflict(ctx context.Context, cartID uuid.UUID) error {
	conflict := pkgerrors.New(pkgerrors.CodeCartVersionMismatch, "cart changed since last read")
	fresh, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		s.logg.Warn(ctx, "could not attach fresh cart to version conflict")
		return conflict
	}
	view, err := s.buildView(ctx, fresh.ID, fresh.SessionID, fresh.Version, fresh.Items)
	if err != nil {
		s.logg.Warn(ctx, "could not price fresh cart for version conflict")
		return conflict
	}
	return conflict.WithDetails(map[string]any{"cart": view})
}

func (s *service) publishCartUpdated(ctx context.Context, view *View) {
	evt, err := events.NewEvent(enums.EventCartUpdated, view.SessionID, uuid.Nil, map[string]any{
		"cart": view,
	})
	if err != nil {
		s.logg.Warn(ctx, "could not build cart updated event")
		return
	}
	if err := s.broker.Publish(ctx, events.SessionTopic(view.SessionID), evt); err != nil {
		s.logg.Warn(ctx, "cart updated event publish failed")
	}
}
