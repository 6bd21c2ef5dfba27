package insurance

import (
	"time"

	"github.com/google/uuid"
)

// Coverage categories. Every billable item belongs to exactly one category;
// coverage rules are scoped to a (plan, category) pair.
const (
	CategoryDrug         = "drug"
	CategoryLab          = "lab"
	CategoryConsultation = "consultation"
	CategoryProcedure    = "procedure"
	CategoryWard         = "ward"
	CategoryNursing      = "nursing"
)

var validCategories = map[string]bool{
	CategoryDrug: true, CategoryLab: true, CategoryConsultation: true,
	CategoryProcedure: true, CategoryWard: true, CategoryNursing: true,
}

// ValidCategory reports whether c is a known coverage category.
func ValidCategory(c string) bool { return validCategories[c] }

// Coverage types. An unrecognized type is a configuration error and is
// treated as excluded.
const (
	CoveragePercentage = "percentage"
	CoverageFixed      = "fixed"
	CoverageFull       = "full"
	CoverageExcluded   = "excluded"
)

var validCoverageTypes = map[string]bool{
	CoveragePercentage: true, CoverageFixed: true,
	CoverageFull: true, CoverageExcluded: true,
}

// Plan maps to the insurance_plans table.
type Plan struct {
	ID                      uuid.UUID `db:"id" json:"id"`
	ProviderID              uuid.UUID `db:"provider_id" json:"provider_id"`
	ProviderName            string    `db:"provider_name" json:"provider_name"`
	Name                    string    `db:"name" json:"name"`
	Code                    string    `db:"code" json:"code"`
	IsStateScheme           bool      `db:"is_state_scheme" json:"is_state_scheme"`
	RequireExplicitApproval bool      `db:"require_explicit_approval_for_new_items" json:"require_explicit_approval_for_new_items"`
	DefaultConsultationPct  *float64  `db:"default_consultation_coverage" json:"default_consultation_coverage,omitempty"`
	DefaultDrugPct          *float64  `db:"default_drug_coverage" json:"default_drug_coverage,omitempty"`
	DefaultLabPct           *float64  `db:"default_lab_coverage" json:"default_lab_coverage,omitempty"`
	DefaultProcedurePct     *float64  `db:"default_procedure_coverage" json:"default_procedure_coverage,omitempty"`
	IsActive                bool      `db:"is_active" json:"is_active"`
	CreatedAt               time.Time `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}

// CategoryDefault returns the plan's default coverage percentage for a
// category, or nil when the plan declares none.
func (p *Plan) CategoryDefault(category string) *float64 {
	switch category {
	case CategoryConsultation:
		return p.DefaultConsultationPct
	case CategoryDrug:
		return p.DefaultDrugPct
	case CategoryLab:
		return p.DefaultLabPct
	case CategoryProcedure:
		return p.DefaultProcedurePct
	default:
		return nil
	}
}

// Enrollment statuses.
const (
	EnrollmentActive    = "active"
	EnrollmentExpired   = "expired"
	EnrollmentSuspended = "suspended"
)

var validEnrollmentStatuses = map[string]bool{
	EnrollmentActive: true, EnrollmentExpired: true, EnrollmentSuspended: true,
}

// PatientInsurance maps to the patient_insurance table: one patient's
// enrollment in a plan over a coverage window.
type PatientInsurance struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	PlanID            uuid.UUID  `db:"plan_id" json:"plan_id"`
	PolicyNumber      string     `db:"policy_number" json:"policy_number"`
	MemberNumber      *string    `db:"member_number" json:"member_number,omitempty"`
	CoverageStartDate time.Time  `db:"coverage_start_date" json:"coverage_start_date"`
	CoverageEndDate   *time.Time `db:"coverage_end_date" json:"coverage_end_date,omitempty"`
	Status            string     `db:"status" json:"status"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// InForce reports whether the enrollment covers the given instant. An
// enrollment outside its window, or not active, is identical to no
// insurance at all.
func (pi *PatientInsurance) InForce(at time.Time) bool {
	if pi.Status != EnrollmentActive {
		return false
	}
	if at.Before(pi.CoverageStartDate) {
		return false
	}
	if pi.CoverageEndDate != nil && at.After(*pi.CoverageEndDate) {
		return false
	}
	return true
}

// CoverageRule maps to the coverage_rules table. A nil ItemCode makes the
// rule the plan's category-wide default; at most one active rule may exist
// per (plan_id, category, item_code).
type CoverageRule struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PlanID        uuid.UUID  `db:"plan_id" json:"plan_id"`
	Category      string     `db:"category" json:"category"`
	ItemCode      *string    `db:"item_code" json:"item_code,omitempty"`
	CoverageType  string     `db:"coverage_type" json:"coverage_type"`
	CoverageValue float64    `db:"coverage_value" json:"coverage_value"`
	CopayAmount   *float64   `db:"copay_amount" json:"copay_amount,omitempty"`
	IsUnmapped    bool       `db:"is_unmapped" json:"is_unmapped"`
	// Per-visit limits and the pre-authorization flag. A nil limit means
	// the plan imposes none for this rule's scope.
	RequiresPreauthorization bool     `db:"requires_preauthorization" json:"requires_preauthorization"`
	MaxQuantityPerVisit      *int     `db:"max_quantity_per_visit" json:"max_quantity_per_visit,omitempty"`
	MaxAmountPerVisit        *float64 `db:"max_amount_per_visit" json:"max_amount_per_visit,omitempty"`

	EffectiveFrom *time.Time `db:"effective_from" json:"effective_from,omitempty"`
	EffectiveTo   *time.Time `db:"effective_to" json:"effective_to,omitempty"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectiveAt reports whether the rule applies at the given instant.
func (r *CoverageRule) EffectiveAt(at time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.EffectiveFrom != nil && at.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && at.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// Resolution sources, from most to least specific.
const (
	SourceItemSpecific    = "item_specific"
	SourceCategoryDefault = "category_default"
	SourcePlanDefault     = "plan_default"
	SourceSystemDefault   = "system_default"
	SourceSelfPay         = "self_pay"
)

// ResolvedCoverage is the outcome of rule resolution: which rule (or
// fallback) applies, and what it says.
type ResolvedCoverage struct {
	Source                   string     `json:"source"`
	RuleID                   *uuid.UUID `json:"rule_id,omitempty"`
	PlanID                   *uuid.UUID `json:"plan_id,omitempty"`
	Category                 string     `json:"category"`
	CoverageType             string     `json:"coverage_type"`
	CoverageValue            float64    `json:"coverage_value"`
	CopayAmount              *float64   `json:"copay_amount,omitempty"`
	RequiresPreauthorization bool       `json:"requires_preauthorization,omitempty"`
	MaxQuantityPerVisit      *int       `json:"max_quantity_per_visit,omitempty"`
	MaxAmountPerVisit        *float64   `json:"max_amount_per_visit,omitempty"`
	IsCovered                bool       `json:"is_covered"`
}

// SelfPay is the fallback outcome when no in-force insurance applies.
func SelfPay(category string) ResolvedCoverage {
	return ResolvedCoverage{
		Source:        SourceSelfPay,
		Category:      category,
		CoverageType:  CoverageExcluded,
		CoverageValue: 0,
		IsCovered:     false,
	}
}
