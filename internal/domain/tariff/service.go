package tariff

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/justdick/hms-billing/internal/domain/insurance"
)

// Store is the tariff and mapping lookup surface plus the administrative
// import operations. It implements insurance.TariffSource.
type Store struct {
	tariffs  TariffRepository
	mappings MappingRepository
}

func NewStore(tariffs TariffRepository, mappings MappingRepository) *Store {
	return &Store{tariffs: tariffs, mappings: mappings}
}

// FindTariff looks up a price list entry by its scheme code.
func (s *Store) FindTariff(ctx context.Context, code string) (*Tariff, error) {
	return s.tariffs.GetByCode(ctx, code)
}

// FindMapping returns the item's active mapping, or ErrNotFound.
func (s *Store) FindMapping(ctx context.Context, itemType string, itemID uuid.UUID) (*ItemMapping, error) {
	return s.mappings.FindByItem(ctx, itemType, itemID)
}

// TariffForItem resolves an item through its mapping to the tariff price.
// Unmapped items and inactive tariffs yield (nil, nil): the caller falls
// back to its own pricing path rather than failing.
func (s *Store) TariffForItem(ctx context.Context, itemType string, itemID uuid.UUID) (*insurance.ItemTariff, error) {
	m, err := s.mappings.FindByItem(ctx, itemType, itemID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := s.tariffs.GetByID(ctx, m.TariffID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, nil
	}
	return &insurance.ItemTariff{Code: t.Code, Price: t.Price}, nil
}

// -- Administration --

func (s *Store) validateTariff(t *Tariff) error {
	if t.Code == "" {
		return fmt.Errorf("tariff code is required")
	}
	if t.Name == "" {
		return fmt.Errorf("tariff name is required")
	}
	if t.Price < 0 {
		return fmt.Errorf("tariff price must not be negative")
	}
	return nil
}

func (s *Store) CreateTariff(ctx context.Context, t *Tariff) error {
	if err := s.validateTariff(t); err != nil {
		return err
	}
	t.IsActive = true
	return s.tariffs.Create(ctx, t)
}

func (s *Store) UpdateTariff(ctx context.Context, t *Tariff) error {
	if err := s.validateTariff(t); err != nil {
		return err
	}
	return s.tariffs.Update(ctx, t)
}

func (s *Store) GetTariff(ctx context.Context, id uuid.UUID) (*Tariff, error) {
	return s.tariffs.GetByID(ctx, id)
}

func (s *Store) ListTariffs(ctx context.Context, category string, limit, offset int) ([]*Tariff, int, error) {
	return s.tariffs.List(ctx, category, limit, offset)
}

// ImportTariffs upserts a batch of price list entries keyed by code and
// reports how many rows were applied before the first failure.
func (s *Store) ImportTariffs(ctx context.Context, entries []*Tariff) (int, error) {
	for i, t := range entries {
		if err := s.validateTariff(t); err != nil {
			return i, fmt.Errorf("entry %d (%s): %w", i, t.Code, err)
		}
		if err := s.tariffs.UpsertByCode(ctx, t); err != nil {
			return i, fmt.Errorf("entry %d (%s): %w", i, t.Code, err)
		}
	}
	return len(entries), nil
}

// MapItem links an item to a tariff by scheme code. An existing active
// mapping is rejected, never silently replaced.
func (s *Store) MapItem(ctx context.Context, itemType string, itemID uuid.UUID, code string) (*ItemMapping, error) {
	if itemType == "" || itemID == uuid.Nil {
		return nil, fmt.Errorf("item_type and item_id are required")
	}
	t, err := s.tariffs.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("tariff lookup for code %s: %w", code, err)
	}
	m := &ItemMapping{ItemType: itemType, ItemID: itemID, TariffID: t.ID}
	if err := s.mappings.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UnmapItem deactivates the item's current mapping.
func (s *Store) UnmapItem(ctx context.Context, itemType string, itemID uuid.UUID) error {
	m, err := s.mappings.FindByItem(ctx, itemType, itemID)
	if err != nil {
		return err
	}
	return s.mappings.Deactivate(ctx, m.ID)
}
