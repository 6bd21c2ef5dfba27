package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a catalog item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateItem is returned when an active item with the same
	// (item_type, code) already exists.
	ErrDuplicateItem = errors.New("catalog item already exists")
)

// ItemRepository stores billable catalog items.
type ItemRepository interface {
	Create(ctx context.Context, it *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	GetByCode(ctx context.Context, itemType, code string) (*Item, error)
	Update(ctx context.Context, it *Item) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, itemType string, limit, offset int) ([]*Item, int, error)
}
