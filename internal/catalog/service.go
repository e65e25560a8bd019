package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/db/models"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/types"
)

type menuItemLoader interface {
	FindByIDAndStore(ctx context.Context, id, storeID uuid.UUID) (*models.MenuItem, error)
	ListByStore(ctx context.Context, storeID uuid.UUID) ([]models.MenuItem, error)
}

// SelectionInput references one chosen option by group and option id.
type SelectionInput struct {
	GroupID  string `json:"group_id" validate:"required"`
	OptionID string `json:"option_id" validate:"required"`
}

// ResolvedItem is a priced menu item ready to become a cart line. Name,
// price, and option records are frozen at resolution time.
type ResolvedItem struct {
	MenuItemID      uuid.UUID
	Name            string
	UnitPriceCents  int64
	SelectedOptions types.SelectedOptions
}

// Service resolves menu item references into priced line data.
type Service interface {
	Resolve(ctx context.Context, storeID, menuItemID uuid.UUID, selections []SelectionInput) (*ResolvedItem, error)
	ListMenu(ctx context.Context, storeID uuid.UUID) ([]models.MenuItem, error)
}

type service struct {
	items menuItemLoader
}

// NewService builds a catalog service backed by the provided repository.
func NewService(items menuItemLoader) (Service, error) {
	if items == nil {
		return nil, fmt.Errorf("menu item repository required")
	}
	return &service{items: items}, nil
}

// Resolve loads the menu item, rejects sold-out items, validates the
// selections against the item's option groups, and computes the unit price
// as base price plus the sum of option deltas.
func (s *service) Resolve(ctx context.Context, storeID, menuItemID uuid.UUID, selections []SelectionInput) (*ResolvedItem, error) {
	if storeID == uuid.Nil || menuItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store and menu item ids are required")
	}

	item, err := s.items.FindByIDAndStore(ctx, menuItemID, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading menu item")
	}
	if item.SoldOut {
		return nil, pkgerrors.New(pkgerrors.CodeItemSoldOut, "menu item is sold out").
			WithDetails(map[string]any{"menu_item_id": item.ID})
	}

	resolved := &ResolvedItem{
		MenuItemID: item.ID,
		Name:       item.Name,
	}
	seen := make(map[string]struct{}, len(selections))
	for _, sel := range selections {
		if _, dup := seen[sel.GroupID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate option group selection")
		}
		seen[sel.GroupID] = struct{}{}

		_, opt, ok := item.OptionGroups.FindOption(sel.GroupID, sel.OptionID)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown menu option selection")
		}
		resolved.SelectedOptions = append(resolved.SelectedOptions, types.SelectedOption{
			GroupID:         sel.GroupID,
			OptionID:        opt.ID,
			Name:            opt.Name,
			PriceDeltaCents: opt.PriceDeltaCents,
		})
	}
	resolved.UnitPriceCents = item.BasePriceCents + resolved.SelectedOptions.DeltaSum()
	if resolved.UnitPriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resolved unit price is negative")
	}
	return resolved, nil
}

// ListMenu returns the store's menu items.
func (s *service) ListMenu(ctx context.Context, storeID uuid.UUID) ([]models.MenuItem, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	items, err := s.items.ListByStore(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing menu items")
	}
	return items, nil
}
