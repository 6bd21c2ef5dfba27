package insurance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// PlanRepository stores insurance plans.
type PlanRepository interface {
	Create(ctx context.Context, p *Plan) error
	GetByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	GetByCode(ctx context.Context, code string) (*Plan, error)
	Update(ctx context.Context, p *Plan) error
	// Deactivate is the only removal path; plans referenced by rules or
	// enrollments are never deleted.
	Deactivate(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Plan, int, error)
	ListActive(ctx context.Context) ([]*Plan, error)
}

// RuleRepository stores coverage rules. Find methods return every active
// candidate ordered by updated_at descending; the resolver picks the head
// and logs when more than one matched.
type RuleRepository interface {
	Create(ctx context.Context, r *CoverageRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*CoverageRule, error)
	Update(ctx context.Context, r *CoverageRule) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	ListByPlan(ctx context.Context, planID uuid.UUID, limit, offset int) ([]*CoverageRule, int, error)
	FindItemRules(ctx context.Context, planID uuid.UUID, category, itemCode string) ([]*CoverageRule, error)
	FindCategoryRules(ctx context.Context, planID uuid.UUID, category string) ([]*CoverageRule, error)
	// FindUnmappedRules returns active flexible-copay rules for items with
	// no tariff mapping under a state scheme.
	FindUnmappedRules(ctx context.Context, planID uuid.UUID, category string) ([]*CoverageRule, error)
}

// EnrollmentRepository stores patient plan enrollments.
type EnrollmentRepository interface {
	Create(ctx context.Context, pi *PatientInsurance) error
	GetByID(ctx context.Context, id uuid.UUID) (*PatientInsurance, error)
	Update(ctx context.Context, pi *PatientInsurance) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*PatientInsurance, error)
	// FindInForce returns the patient's enrollment in force at the given
	// instant, or (nil, nil) when the patient is self-pay.
	FindInForce(ctx context.Context, patientID uuid.UUID, at time.Time) (*PatientInsurance, error)
}
