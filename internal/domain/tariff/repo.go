package tariff

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a tariff or mapping does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateMapping is returned when an item already has an active
	// mapping.
	ErrDuplicateMapping = errors.New("item already has an active tariff mapping")
)

// TariffRepository stores external-scheme price list entries.
type TariffRepository interface {
	Create(ctx context.Context, t *Tariff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tariff, error)
	GetByCode(ctx context.Context, code string) (*Tariff, error)
	// UpsertByCode inserts or refreshes an entry keyed by its scheme code.
	// Used by price list imports.
	UpsertByCode(ctx context.Context, t *Tariff) error
	Update(ctx context.Context, t *Tariff) error
	List(ctx context.Context, category string, limit, offset int) ([]*Tariff, int, error)
}

// MappingRepository stores item-to-tariff links.
type MappingRepository interface {
	// Create fails with ErrDuplicateMapping when the item already has an
	// active mapping.
	Create(ctx context.Context, m *ItemMapping) error
	FindByItem(ctx context.Context, itemType string, itemID uuid.UUID) (*ItemMapping, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	ListByTariff(ctx context.Context, tariffID uuid.UUID) ([]*ItemMapping, error)
}
