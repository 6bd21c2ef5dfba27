package tariff

import (
	"time"

	"github.com/google/uuid"
)

// Tariff is one external-scheme price list entry. Codes are unique within
// the scheme and independent of any plan.
type Tariff struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	Price     float64   `db:"price" json:"price"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ItemMapping links one internal catalog item to a tariff entry. At most
// one active mapping may exist per (item_type, item_id).
type ItemMapping struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ItemType  string    `db:"item_type" json:"item_type"`
	ItemID    uuid.UUID `db:"item_id" json:"item_id"`
	TariffID  uuid.UUID `db:"tariff_id" json:"tariff_id"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
