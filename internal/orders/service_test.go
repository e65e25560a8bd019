package orders

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/internal/cart"
	"github.com/tablyhq/tably-backend/internal/events"
	"github.com/tablyhq/tably-backend/internal/sessions"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	tableSessions := `
CREATE TABLE IF NOT EXISTS table_sessions (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  table_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'open',
  current_round_no INTEGER NOT NULL DEFAULT 0,
  participants_count INTEGER NOT NULL DEFAULT 0,
  host_participant_id TEXT,
  expires_at DATETIME NOT NULL,
  last_activity_at DATETIME NOT NULL,
  closed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
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
	ordersTable := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  participant_id TEXT NOT NULL,
  round_no INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'placed',
  items TEXT NOT NULL,
  subtotal_cents INTEGER NOT NULL,
  tax_cents INTEGER NOT NULL,
  service_charge_cents INTEGER NOT NULL,
  grand_total_cents INTEGER NOT NULL,
  idempotency_key TEXT NOT NULL UNIQUE,
  placed_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(tableSessions).Error)
	require.NoError(t, db.Exec(sharedCarts).Error)
	require.NoError(t, db.Exec(cartItems).Error)
	require.NoError(t, db.Exec(ordersTable).Error)
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
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

type captureBroker struct {
	published []events.Event
}

func (c *captureBroker) Publish(_ context.Context, _ string, evt events.Event) error {
	c.published = append(c.published, evt)
	return nil
}

func (c *captureBroker) ofType(eventType enums.EventType) []events.Event {
	var out []events.Event
	for _, evt := range c.published {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type ordersFixture struct {
	svc       Service
	repo      *Repository
	carts     *cart.SharedCartRepository
	sessions  *sessions.Repository
	broker    *captureBroker
	storeID   uuid.UUID
	sessionID uuid.UUID
	cartID    uuid.UUID
	memberID  uuid.UUID
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()
	db := setupOrdersTestDB(t)
	ctx := context.Background()

	f := &ordersFixture{
		repo:     NewRepository(db),
		carts:    cart.NewSharedCartRepository(db),
		sessions: sessions.NewRepository(db),
		broker:   &captureBroker{},
		storeID:  uuid.New(),
		memberID: uuid.New(),
	}

	session, err := f.sessions.Create(ctx, &models.TableSession{
		StoreID:        f.storeID,
		TableID:        uuid.New(),
		Status:         enums.SessionStatusOpen,
		ExpiresAt:      time.Now().Add(time.Hour),
		LastActivityAt: time.Now(),
	})
	require.NoError(t, err)
	f.sessionID = session.ID

	sharedCart, err := f.carts.Create(ctx, &models.SharedCart{SessionID: session.ID})
	require.NoError(t, err)
	f.cartID = sharedCart.ID

	stores := &stubStores{stores: map[uuid.UUID]*models.Store{
		f.storeID: {
			ID:                f.storeID,
			TaxRate:           decimal.RequireFromString("0.10"),
			ServiceChargeRate: decimal.RequireFromString("0.05"),
		},
	}}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(f.repo, f.carts, f.sessions, stores, gormTxRunner{db: db}, f.broker, logg)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *ordersFixture) addLine(t *testing.T, name string, qty int, priceCents int64) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), &models.CartItem{
		CartID:         f.cartID,
		ParticipantID:  f.memberID,
		MenuItemID:     uuid.New(),
		Name:           name,
		Quantity:       qty,
		UnitPriceCents: priceCents,
	})
	require.NoError(t, err)
}

func TestPlaceSnapshotsAndClearsCart(t *testing.T) {
	ctx := context.Background()
	f := newOrdersFixture(t)
	f.addLine(t, "Ramen", 1, 1000)
	f.addLine(t, "Gyoza", 1, 500)

	order, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 1,
		IdempotencyKey:      uuid.NewString(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, order.RoundNo)
	assert.Equal(t, enums.OrderStatusPlaced, order.Status)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, int64(1500), order.SubtotalCents)
	assert.Equal(t, int64(150), order.TaxCents)
	assert.Equal(t, int64(75), order.ServiceChargeCents)
	assert.Equal(t, int64(1725), order.GrandTotalCents)

	sharedCart, err := f.carts.FindByID(ctx, f.cartID)
	require.NoError(t, err)
	assert.Empty(t, sharedCart.Items, "cart must be cleared by placement")
	assert.Equal(t, int64(2), sharedCart.Version, "placement consumes one version")

	assert.Len(t, f.broker.ofType(enums.EventOrderPlaced), 2) // session + store topic
}

func TestOrderPlacedEventCarriesOrder(t *testing.T) {
	ctx := context.Background()
	f := newOrdersFixture(t)
	f.addLine(t, "Ramen", 2, 1000)

	order, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 1,
		IdempotencyKey:      uuid.NewString(),
	})
	require.NoError(t, err)

	evts := f.broker.ofType(enums.EventOrderPlaced)
	require.NotEmpty(t, evts)

	// Kitchen dashboards render the round straight off the event.
	var payload struct {
		Order orderPayload `json:"order"`
	}
	require.NoError(t, json.Unmarshal(evts[0].Payload, &payload))
	assert.Equal(t, order.ID, payload.Order.ID)
	assert.Equal(t, order.RoundNo, payload.Order.RoundNo)
	assert.Equal(t, enums.OrderStatusPlaced, payload.Order.Status)
	require.Len(t, payload.Order.Items, 1)
	assert.Equal(t, "Ramen", payload.Order.Items[0].Name)
	assert.Equal(t, order.GrandTotalCents, payload.Order.GrandTotalCents)
}

func TestOrderStatusChangedEventCarriesStatus(t *testing.T) {
	ctx := context.Background()
	f := newOrdersFixture(t)
	f.addLine(t, "Ramen", 1, 1000)

	order, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 1,
		IdempotencyKey:      uuid.NewString(),
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, order.ID, f.storeID, enums.OrderStatusAccepted)
	require.NoError(t, err)

	evts := f.broker.ofType(enums.EventOrderStatusChanged)
	require.NotEmpty(t, evts)

	var payload struct {
		OrderID uuid.UUID                `json:"order_id"`
		Status  enums.OrderStatus        `json:"status"`
		Items   types.OrderItemSnapshots `json:"items"`
	}
	require.NoError(t, json.Unmarshal(evts[0].Payload, &payload))
	assert.Equal(t, order.ID, payload.OrderID)
	assert.Equal(t, enums.OrderStatusAccepted, payload.Status)
	require.Len(t, payload.Items, 1)
}

func TestPlaceDuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := newOrdersFixture(t)
	f.addLine(t, "Ramen", 1, 1000)
	key := uuid.NewString()

	first, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 1,
		IdempotencyKey:      key,
	})
	require.NoError(t, err)

	second, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 1,
		IdempotencyKey:      key,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.RoundNo, second.RoundNo)

	session, err := f.sessions.FindByID(ctx, f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, session.CurrentRoundNo, "retry must not advance the round")
}

func TestPlaceEmptyCartRejected(t *testing.T) {
	ctx := context.Background()
	f := newOrdersFixture(t)

	_, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 1,
		IdempotencyKey:      uuid.NewString(),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeCartEmpty, typed.Code())

	sharedCart, err := f.carts.FindByID(ctx, f.cartID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sharedCart.Version, "failed placement must not consume a version")
}

func TestPlaceStaleCartVersionConflict(t *testing.T) {
	ctx := context.Background()
	f := newOrdersFixture(t)
	f.addLine(t, "Ramen", 1, 1000)

	_, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 7,
		IdempotencyKey:      uuid.NewString(),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeCartVersionMismatch, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	fresh, ok := details["cart"].(*cart.View)
	require.True(t, ok)
	assert.Equal(t, int64(1), fresh.Version)
}

func TestPlaceRoundNoMonotonic(t *testing.T) {
	ctx := context.Background()
	f := newOrdersFixture(t)
	f.addLine(t, "Ramen", 1, 1000)

	first, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 1,
		IdempotencyKey:      uuid.NewString(),
	})
	require.NoError(t, err)

	f.addLine(t, "Gyoza", 1, 500)
	second, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 2,
		IdempotencyKey:      uuid.NewString(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, first.RoundNo)
	assert.Equal(t, 2, second.RoundNo)

	listed, err := f.svc.ListBySession(ctx, f.sessionID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, 1, listed[0].RoundNo)
	assert.Equal(t, 2, listed[1].RoundNo)
}

func TestPlaceClosedSessionRejected(t *testing.T) {
	ctx := context.Background()
	f := newOrdersFixture(t)
	f.addLine(t, "Ramen", 1, 1000)

	_, err := f.sessions.TransitionStatus(ctx, f.sessionID, enums.SessionStatusOpen, enums.SessionStatusClosed, time.Now())
	require.NoError(t, err)

	_, err = f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 1,
		IdempotencyKey:      uuid.NewString(),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeSessionNotOpen, typed.Code())
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from    enums.OrderStatus
		to      enums.OrderStatus
		allowed bool
	}{
		{enums.OrderStatusPlaced, enums.OrderStatusAccepted, true},
		{enums.OrderStatusPlaced, enums.OrderStatusCancelled, true},
		{enums.OrderStatusPlaced, enums.OrderStatusReady, false},
		{enums.OrderStatusAccepted, enums.OrderStatusPreparing, true},
		{enums.OrderStatusAccepted, enums.OrderStatusCancelled, true},
		{enums.OrderStatusAccepted, enums.OrderStatusServed, false},
		{enums.OrderStatusPreparing, enums.OrderStatusReady, true},
		{enums.OrderStatusPreparing, enums.OrderStatusCancelled, true},
		{enums.OrderStatusReady, enums.OrderStatusServed, true},
		{enums.OrderStatusReady, enums.OrderStatusCancelled, false},
		{enums.OrderStatusServed, enums.OrderStatusPreparing, false},
		{enums.OrderStatusServed, enums.OrderStatusCancelled, false},
		{enums.OrderStatusCancelled, enums.OrderStatusPlaced, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestUpdateStatusHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newOrdersFixture(t)
	f.addLine(t, "Ramen", 1, 1000)

	order, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 1,
		IdempotencyKey:      uuid.NewString(),
	})
	require.NoError(t, err)

	for _, next := range []enums.OrderStatus{
		enums.OrderStatusAccepted,
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
		enums.OrderStatusServed,
	} {
		order, err = f.svc.UpdateStatus(ctx, order.ID, f.storeID, next)
		require.NoError(t, err)
		assert.Equal(t, next, order.Status)
	}
	assert.Len(t, f.broker.ofType(enums.EventOrderStatusChanged), 8) // 4 moves, session + store topic

	_, err = f.svc.UpdateStatus(ctx, order.ID, f.storeID, enums.OrderStatusPreparing)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInvalidStatusTransition, typed.Code())
}

func TestUpdateStatusForeignStoreForbidden(t *testing.T) {
	ctx := context.Background()
	f := newOrdersFixture(t)
	f.addLine(t, "Ramen", 1, 1000)

	order, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 1,
		IdempotencyKey:      uuid.NewString(),
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, order.ID, uuid.New(), enums.OrderStatusAccepted)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestListByStoreActiveFilter(t *testing.T) {
	ctx := context.Background()
	f := newOrdersFixture(t)
	f.addLine(t, "Ramen", 1, 1000)

	order, err := f.svc.Place(ctx, PlaceInput{
		SessionID:           f.sessionID,
		ParticipantID:       f.memberID,
		ExpectedCartVersion: 1,
		IdempotencyKey:      uuid.NewString(),
	})
	require.NoError(t, err)

	active, err := f.svc.ListByStore(ctx, f.storeID, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = f.svc.UpdateStatus(ctx, order.ID, f.storeID, enums.OrderStatusCancelled)
	require.NoError(t, err)

	active, err = f.svc.ListByStore(ctx, f.storeID, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.svc.ListByStore(ctx, f.storeID, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
