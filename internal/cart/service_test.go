package cart

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/internal/catalog"
	"github.com/tablyhq/tably-backend/internal/events"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/types"
)

func setupCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	sharedCarts := `
CREATE TABLE IF NOT EXISTS shared_carts (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL UNIQUE,
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	cartItems := `
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  participant_id TEXT NOT NULL,
  menu_item_id TEXT NOT NULL,
  name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  selected_options TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(sharedCarts).Error)
	require.NoError(t, db.Exec(cartItems).Error)
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type stubSessions struct {
	sessions map[uuid.UUID]*models.TableSession
}

func (s *stubSessions) FindByID(_ context.Context, id uuid.UUID) (*models.TableSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return session, nil
}

type stubStores struct {
	stores map[uuid.UUID]*models.Store
}

func (s *stubStores) FindByID(_ context.Context, id uuid.UUID) (*models.Store, error) {
	store, ok := s.stores[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return store, nil
}

type stubResolver struct {
	items   map[uuid.UUID]*catalog.ResolvedItem
	soldOut map[uuid.UUID]bool
}

func (s *stubResolver) Resolve(_ context.Context, _, menuItemID uuid.UUID, _ []catalog.SelectionInput) (*catalog.ResolvedItem, error) {
	if s.soldOut[menuItemID] {
		return nil, pkgerrors.New(pkgerrors.CodeItemSoldOut, "menu item is sold out")
	}
	item, ok := s.items[menuItemID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
	}
	return item, nil
}

type captureBroker struct {
	published []events.Event
}

func (c *captureBroker) Publish(_ context.Context, _ string, evt events.Event) error {
	c.published = append(c.published, evt)
	return nil
}

type cartFixture struct {
	svc      Service
	repo     *SharedCartRepository
	broker   *captureBroker
	resolver *stubResolver
	sessions *stubSessions

	storeID   uuid.UUID
	sessionID uuid.UUID
	cartID    uuid.UUID
	memberID  uuid.UUID
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	db := setupCartTestDB(t)
	repo := NewSharedCartRepository(db)

	f := &cartFixture{
		repo:      repo,
		broker:    &captureBroker{},
		storeID:   uuid.New(),
		sessionID: uuid.New(),
		memberID:  uuid.New(),
	}
	f.sessions = &stubSessions{sessions: map[uuid.UUID]*models.TableSession{
		f.sessionID: {
			ID:      f.sessionID,
			StoreID: f.storeID,
			Status:  enums.SessionStatusOpen,
		},
	}}
	stores := &stubStores{stores: map[uuid.UUID]*models.Store{
		f.storeID: {
			ID:                f.storeID,
			TaxRate:           decimal.RequireFromString("0.10"),
			ServiceChargeRate: decimal.RequireFromString("0.05"),
		},
	}}
	f.resolver = &stubResolver{
		items:   map[uuid.UUID]*catalog.ResolvedItem{},
		soldOut: map[uuid.UUID]bool{},
	}

	cart, err := repo.Create(context.Background(), &models.SharedCart{SessionID: f.sessionID})
	require.NoError(t, err)
	f.cartID = cart.ID

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(repo, gormTxRunner{db: db}, f.sessions, stores, f.resolver, f.broker, logg)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *cartFixture) registerItem(priceCents int64, name string) uuid.UUID {
	id := uuid.New()
	f.resolver.items[id] = &catalog.ResolvedItem{
		MenuItemID:     id,
		Name:           name,
		UnitPriceCents: priceCents,
	}
	return id
}

func TestMutateVersionLadder(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	ramen := f.registerItem(1000, "Ramen")
	gyoza := f.registerItem(500, "Gyoza")

	view, err := f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   f.memberID,
		Action:          enums.CartActionAdd,
		ExpectedVersion: 1,
		MenuItemID:      ramen,
		Quantity:        1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Version)

	view, err = f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   f.memberID,
		Action:          enums.CartActionAdd,
		ExpectedVersion: 2,
		MenuItemID:      gyoza,
		Quantity:        1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.Version)
	assert.Equal(t, int64(1500), view.Totals.SubtotalCents)
	assert.Equal(t, int64(1725), view.Totals.GrandTotalCents)

	// A writer holding the old version loses and gets the fresh cart back.
	staleItem := view.Items[0].ID
	_, err = f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   f.memberID,
		Action:          enums.CartActionRemove,
		ExpectedVersion: 2,
		ItemID:          staleItem,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeCartVersionMismatch, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	fresh, ok := details["cart"].(*View)
	require.True(t, ok)
	assert.Equal(t, int64(3), fresh.Version)
	assert.Len(t, fresh.Items, 2)

	// Retrying with the fresh version succeeds.
	view, err = f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   f.memberID,
		Action:          enums.CartActionRemove,
		ExpectedVersion: fresh.Version,
		ItemID:          staleItem,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), view.Version)
	assert.Len(t, view.Items, 1)
}

func TestMutateSoldOutRollsBackVersion(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	soldOut := uuid.New()
	f.resolver.soldOut[soldOut] = true

	_, err := f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   f.memberID,
		Action:          enums.CartActionAdd,
		ExpectedVersion: 1,
		MenuItemID:      soldOut,
		Quantity:        1,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeItemSoldOut, typed.Code())

	cart, err := f.repo.FindByID(ctx, f.cartID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cart.Version, "failed mutation must not consume a version")
	assert.Empty(t, cart.Items)
}

func TestMutateZeroQuantityUpdateRemovesLine(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	ramen := f.registerItem(1000, "Ramen")

	view, err := f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   f.memberID,
		Action:          enums.CartActionAdd,
		ExpectedVersion: 1,
		MenuItemID:      ramen,
		Quantity:        2,
	})
	require.NoError(t, err)

	view, err = f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   f.memberID,
		Action:          enums.CartActionUpdate,
		ExpectedVersion: view.Version,
		ItemID:          view.Items[0].ID,
		Quantity:        0,
	})
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, Totals{}, view.Totals)
}

func TestMutateAnyParticipantMayEdit(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	ramen := f.registerItem(1000, "Ramen")

	view, err := f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   f.memberID,
		Action:          enums.CartActionAdd,
		ExpectedVersion: 1,
		MenuItemID:      ramen,
		Quantity:        1,
	})
	require.NoError(t, err)

	otherMember := uuid.New()
	view, err = f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   otherMember,
		Action:          enums.CartActionUpdate,
		ExpectedVersion: view.Version,
		ItemID:          view.Items[0].ID,
		Quantity:        5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, view.Items[0].Quantity)
	// The line keeps its original owner even when someone else edits it.
	assert.Equal(t, f.memberID, view.Items[0].ParticipantID)
}

func TestMutateClosedSessionRejected(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	ramen := f.registerItem(1000, "Ramen")
	f.sessions.sessions[f.sessionID].Status = enums.SessionStatusClosed

	_, err := f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   f.memberID,
		Action:          enums.CartActionAdd,
		ExpectedVersion: 1,
		MenuItemID:      ramen,
		Quantity:        1,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeSessionNotOpen, typed.Code())
}

func TestMutateForeignSessionForbidden(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	ramen := f.registerItem(1000, "Ramen")

	_, err := f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       uuid.New(),
		ParticipantID:   f.memberID,
		Action:          enums.CartActionAdd,
		ExpectedVersion: 1,
		MenuItemID:      ramen,
		Quantity:        1,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestMutatePublishesCartUpdated(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	ramen := f.registerItem(1000, "Ramen")

	_, err := f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   f.memberID,
		Action:          enums.CartActionAdd,
		ExpectedVersion: 1,
		MenuItemID:      ramen,
		Quantity:        1,
	})
	require.NoError(t, err)
	require.Len(t, f.broker.published, 1)
	assert.Equal(t, enums.EventCartUpdated, f.broker.published[0].Type)
	assert.Equal(t, f.sessionID, f.broker.published[0].SessionID)

	// The payload carries the full cart so subscribers render without a
	// follow-up fetch.
	var payload struct {
		Cart View `json:"cart"`
	}
	require.NoError(t, json.Unmarshal(f.broker.published[0].Payload, &payload))
	assert.Equal(t, f.cartID, payload.Cart.CartID)
	assert.Equal(t, int64(2), payload.Cart.Version)
	require.Len(t, payload.Cart.Items, 1)
	assert.Equal(t, "Ramen", payload.Cart.Items[0].Name)
	assert.Equal(t, int64(1000), payload.Cart.Totals.SubtotalCents)
}

func TestGetScopesToSession(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)

	view, err := f.svc.Get(ctx, f.cartID, f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Version)

	_, err = f.svc.Get(ctx, f.cartID, uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestMutatePreservesSelectedOptions(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	id := uuid.New()
	f.resolver.items[id] = &catalog.ResolvedItem{
		MenuItemID:     id,
		Name:           "Ramen",
		UnitPriceCents: 1300,
		SelectedOptions: types.SelectedOptions{
			{GroupID: "size", OptionID: "large", Name: "Large", PriceDeltaCents: 300},
		},
	}

	view, err := f.svc.Mutate(ctx, MutateInput{
		CartID:          f.cartID,
		SessionID:       f.sessionID,
		ParticipantID:   f.memberID,
		Action:          enums.CartActionAdd,
		ExpectedVersion: 1,
		MenuItemID:      id,
		Quantity:        1,
	})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	require.Len(t, view.Items[0].SelectedOptions, 1)
	assert.Equal(t, "Large", view.Items[0].SelectedOptions[0].Name)
	assert.Equal(t, int64(1300), view.Items[0].UnitPriceCents)
}
