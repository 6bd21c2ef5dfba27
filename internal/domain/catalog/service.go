package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TariffMapper links a new catalog item to an external tariff code during
// import. The tariff store is the production implementation, wrapped in a
// small adapter at wiring time.
type TariffMapper interface {
	MapItem(ctx context.Context, itemType string, itemID uuid.UUID, code string) error
}

// Service manages the billable catalog. Creating an item triggers the
// coverage review notifier and, when an external code is supplied, the
// tariff auto-mapping.
type Service struct {
	items    ItemRepository
	mapper   TariffMapper
	notifier *Notifier
	logger   zerolog.Logger
}

func NewService(items ItemRepository, mapper TariffMapper, notifier *Notifier, logger zerolog.Logger) *Service {
	return &Service{items: items, mapper: mapper, notifier: notifier, logger: logger}
}

// CreateItem inserts the item, then attempts the tariff auto-mapping and
// raises coverage review notifications. Mapping and notification failures
// are logged, never propagated: the item exists either way and both can
// be repaired by an administrator.
func (s *Service) CreateItem(ctx context.Context, it *Item) error {
	if !validItemTypes[it.ItemType] {
		return fmt.Errorf("invalid item type: %s", it.ItemType)
	}
	if it.Code == "" {
		return fmt.Errorf("item code is required")
	}
	if it.Name == "" {
		return fmt.Errorf("item name is required")
	}
	if it.UnitPrice < 0 {
		return fmt.Errorf("unit price must not be negative")
	}
	it.IsActive = true
	if err := s.items.Create(ctx, it); err != nil {
		return err
	}

	if it.TariffCode != "" && s.mapper != nil {
		if err := s.mapper.MapItem(ctx, it.ItemType, it.ID, it.TariffCode); err != nil {
			s.logger.Warn().Err(err).
				Str("item_code", it.Code).
				Str("tariff_code", it.TariffCode).
				Msg("tariff auto-mapping failed, item left unmapped")
		}
	}

	if s.notifier != nil {
		if err := s.notifier.ItemCreated(ctx, it); err != nil {
			s.logger.Error().Err(err).
				Str("item_code", it.Code).
				Msg("coverage review notification pass failed")
		}
	}
	return nil
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.items.GetByID(ctx, id)
}

func (s *Service) GetItemByCode(ctx context.Context, itemType, code string) (*Item, error) {
	return s.items.GetByCode(ctx, itemType, code)
}

func (s *Service) UpdateItem(ctx context.Context, it *Item) error {
	if it.Name == "" {
		return fmt.Errorf("item name is required")
	}
	if it.UnitPrice < 0 {
		return fmt.Errorf("unit price must not be negative")
	}
	return s.items.Update(ctx, it)
}

func (s *Service) DeactivateItem(ctx context.Context, id uuid.UUID) error {
	return s.items.Deactivate(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, itemType string, limit, offset int) ([]*Item, int, error) {
	return s.items.List(ctx, itemType, limit, offset)
}

// ImportItems creates a batch of items, skipping duplicates, and reports
// how many were created.
func (s *Service) ImportItems(ctx context.Context, items []*Item) (int, error) {
	created := 0
	for i, it := range items {
		err := s.CreateItem(ctx, it)
		if err == nil {
			created++
			continue
		}
		if errors.Is(err, ErrDuplicateItem) {
			continue
		}
		return created, fmt.Errorf("item %d (%s): %w", i, it.Code, err)
	}
	return created, nil
}
