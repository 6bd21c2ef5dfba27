package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/justdick/hms-billing/internal/domain/insurance"
)

// Item types for billable catalog entries.
const (
	ItemDrug             = "drug"
	ItemLabService       = "lab_service"
	ItemImagingService   = "imaging_service"
	ItemConsultationType = "consultation_type"
	ItemProcedureType    = "procedure_type"
)

var validItemTypes = map[string]bool{
	ItemDrug: true, ItemLabService: true, ItemImagingService: true,
	ItemConsultationType: true, ItemProcedureType: true,
}

// CategoryForItemType maps a catalog item type to the coverage category
// its rules live under.
var CategoryForItemType = map[string]string{
	ItemDrug:             insurance.CategoryDrug,
	ItemLabService:       insurance.CategoryLab,
	ItemImagingService:   insurance.CategoryLab,
	ItemConsultationType: insurance.CategoryConsultation,
	ItemProcedureType:    insurance.CategoryProcedure,
}

// Item is one billable catalog entry: a drug, a lab or imaging service, a
// consultation type or a procedure type.
type Item struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ItemType   string    `db:"item_type" json:"item_type"`
	Code       string    `db:"code" json:"code"`
	Name       string    `db:"name" json:"name"`
	UnitPrice  float64   `db:"unit_price" json:"unit_price"`
	TariffCode string    `db:"tariff_code" json:"tariff_code,omitempty"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
