package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/justdick/hms-billing/internal/domain/insurance"
)

// Service types: the fixed vocabulary clinical workflows bill under.
const (
	ServiceDrug         = "drug"
	ServiceLaboratory   = "laboratory"
	ServiceImaging      = "imaging"
	ServiceConsultation = "consultation"
	ServiceProcedure    = "procedure"
	ServiceWard         = "ward"
)

var validServiceTypes = map[string]bool{
	ServiceDrug: true, ServiceLaboratory: true, ServiceImaging: true,
	ServiceConsultation: true, ServiceProcedure: true, ServiceWard: true,
}

// CategoryForService maps a billed service type to the coverage category
// its rules live under. Imaging bills against the lab category.
var CategoryForService = map[string]string{
	ServiceDrug:         insurance.CategoryDrug,
	ServiceLaboratory:   insurance.CategoryLab,
	ServiceImaging:      insurance.CategoryLab,
	ServiceConsultation: insurance.CategoryConsultation,
	ServiceProcedure:    insurance.CategoryProcedure,
	ServiceWard:         insurance.CategoryWard,
}

// Charge statuses.
const (
	ChargePending = "pending"
	ChargePaid    = "paid"
	ChargeVoid    = "void"
)

// Charge is one row in the encounter's charge ledger. The amount is the
// patient-due portion; the covered and tariff amounts record how the price
// was split at charge time. Charges are never deleted; voiding is a status
// transition.
type Charge struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	CheckinID      uuid.UUID  `db:"checkin_id" json:"checkin_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	ServiceType    string     `db:"service_type" json:"service_type"`
	ServiceCode    string     `db:"service_code" json:"service_code"`
	Description    string     `db:"description" json:"description"`
	Quantity       int        `db:"quantity" json:"quantity"`
	Amount         float64    `db:"amount" json:"amount"`
	CoveredAmount  float64    `db:"covered_amount" json:"covered_amount"`
	TariffAmount   *float64   `db:"tariff_amount" json:"tariff_amount,omitempty"`
	CoverageSource string     `db:"coverage_source" json:"coverage_source"`
	Status         string     `db:"status" json:"status"`
	IdempotencyKey string     `db:"idempotency_key" json:"idempotency_key"`
	ChargedAt      time.Time  `db:"charged_at" json:"charged_at"`
	PaidAt         *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	VoidedAt       *time.Time `db:"voided_at" json:"voided_at,omitempty"`
}

// ServiceChargeRule configures the gate per service type, optionally
// narrowed to one service code. A nil ServiceCode is the type-wide
// fallback row.
type ServiceChargeRule struct {
	ID                       uuid.UUID `db:"id" json:"id"`
	ServiceType              string    `db:"service_type" json:"service_type"`
	ServiceCode              *string   `db:"service_code" json:"service_code,omitempty"`
	EmergencyOverrideAllowed bool      `db:"emergency_override_allowed" json:"emergency_override_allowed"`
	IsActive                 bool      `db:"is_active" json:"is_active"`
	CreatedAt                time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time `db:"updated_at" json:"updated_at"`
}

// Override statuses.
const (
	OverrideActive  = "active"
	OverrideExpired = "expired"
	OverrideRevoked = "revoked"
)

// Override is the audit record of an explicitly invoked emergency
// override: who allowed a gated action to proceed despite an outstanding
// balance, and why. It never changes the gate's answer.
type Override struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	CheckinID    uuid.UUID  `db:"checkin_id" json:"checkin_id"`
	ServiceType  string     `db:"service_type" json:"service_type"`
	ServiceCode  *string    `db:"service_code" json:"service_code,omitempty"`
	AuthorizedBy string     `db:"authorized_by" json:"authorized_by"`
	Reason       string     `db:"reason" json:"reason"`
	Status       string     `db:"status" json:"status"`
	GrantedAt    time.Time  `db:"granted_at" json:"granted_at"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// Decision is the gate's full answer for one (encounter, service) scope.
type Decision struct {
	Allowed         bool               `json:"allowed"`
	PendingTotal    float64            `json:"pending_total"`
	Charges         []*Charge          `json:"charges"`
	OverrideAllowed bool               `json:"override_allowed"`
	Rule            *ServiceChargeRule `json:"rule,omitempty"`
}
