package insurance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service carries the administrative operations on plans, coverage rules
// and patient enrollments. Rule resolution and pricing live on Resolver
// and Quoter.
type Service struct {
	plans       PlanRepository
	rules       RuleRepository
	enrollments EnrollmentRepository
}

func NewService(plans PlanRepository, rules RuleRepository, enrollments EnrollmentRepository) *Service {
	return &Service{plans: plans, rules: rules, enrollments: enrollments}
}

// -- Plans --

func (s *Service) CreatePlan(ctx context.Context, p *Plan) error {
	if p.ProviderID == uuid.Nil {
		return fmt.Errorf("provider_id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("plan name is required")
	}
	if p.Code == "" {
		return fmt.Errorf("plan code is required")
	}
	for _, pct := range []*float64{p.DefaultConsultationPct, p.DefaultDrugPct, p.DefaultLabPct, p.DefaultProcedurePct} {
		if pct != nil && (*pct < 0 || *pct > 100) {
			return fmt.Errorf("category default coverage must be between 0 and 100")
		}
	}
	p.IsActive = true
	return s.plans.Create(ctx, p)
}

func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	return s.plans.GetByID(ctx, id)
}

func (s *Service) GetPlanByCode(ctx context.Context, code string) (*Plan, error) {
	return s.plans.GetByCode(ctx, code)
}

func (s *Service) UpdatePlan(ctx context.Context, p *Plan) error {
	for _, pct := range []*float64{p.DefaultConsultationPct, p.DefaultDrugPct, p.DefaultLabPct, p.DefaultProcedurePct} {
		if pct != nil && (*pct < 0 || *pct > 100) {
			return fmt.Errorf("category default coverage must be between 0 and 100")
		}
	}
	return s.plans.Update(ctx, p)
}

// DeactivatePlan retires a plan. Plans are never deleted once referenced.
func (s *Service) DeactivatePlan(ctx context.Context, id uuid.UUID) error {
	return s.plans.Deactivate(ctx, id)
}

func (s *Service) ListPlans(ctx context.Context, limit, offset int) ([]*Plan, int, error) {
	return s.plans.List(ctx, limit, offset)
}

func (s *Service) ListActivePlans(ctx context.Context) ([]*Plan, error) {
	return s.plans.ListActive(ctx)
}

// -- Coverage rules --

func (s *Service) validateRule(r *CoverageRule) error {
	if r.PlanID == uuid.Nil {
		return fmt.Errorf("plan_id is required")
	}
	if !validCategories[r.Category] {
		return fmt.Errorf("invalid coverage category: %s", r.Category)
	}
	if !validCoverageTypes[r.CoverageType] {
		return fmt.Errorf("invalid coverage type: %s", r.CoverageType)
	}
	if r.CoverageType == CoveragePercentage && (r.CoverageValue < 0 || r.CoverageValue > 100) {
		return fmt.Errorf("percentage coverage value must be between 0 and 100")
	}
	if r.CoverageType == CoverageFixed && r.CoverageValue < 0 {
		return fmt.Errorf("fixed coverage value must not be negative")
	}
	if r.CopayAmount != nil && *r.CopayAmount < 0 {
		return fmt.Errorf("copay amount must not be negative")
	}
	if r.MaxQuantityPerVisit != nil && *r.MaxQuantityPerVisit <= 0 {
		return fmt.Errorf("max quantity per visit must be positive")
	}
	if r.MaxAmountPerVisit != nil && *r.MaxAmountPerVisit <= 0 {
		return fmt.Errorf("max amount per visit must be positive")
	}
	if r.IsUnmapped && r.ItemCode != nil {
		return fmt.Errorf("unmapped-item rules are category-wide and cannot carry an item code")
	}
	if r.EffectiveFrom != nil && r.EffectiveTo != nil && r.EffectiveTo.Before(*r.EffectiveFrom) {
		return fmt.Errorf("effective_to must not precede effective_from")
	}
	return nil
}

// CreateRule stores a coverage rule. The partial unique index on
// (plan_id, category, item_code) rejects a second active rule for the
// same key; superseding is done by updating the existing rule.
func (s *Service) CreateRule(ctx context.Context, r *CoverageRule) error {
	if err := s.validateRule(r); err != nil {
		return err
	}
	if _, err := s.plans.GetByID(ctx, r.PlanID); err != nil {
		return fmt.Errorf("plan lookup: %w", err)
	}
	r.IsActive = true
	return s.rules.Create(ctx, r)
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*CoverageRule, error) {
	return s.rules.GetByID(ctx, id)
}

func (s *Service) UpdateRule(ctx context.Context, r *CoverageRule) error {
	if err := s.validateRule(r); err != nil {
		return err
	}
	return s.rules.Update(ctx, r)
}

func (s *Service) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	return s.rules.Deactivate(ctx, id)
}

func (s *Service) ListRulesByPlan(ctx context.Context, planID uuid.UUID, limit, offset int) ([]*CoverageRule, int, error) {
	return s.rules.ListByPlan(ctx, planID, limit, offset)
}

// -- Enrollments --

func (s *Service) Enroll(ctx context.Context, pi *PatientInsurance) error {
	if pi.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if pi.PlanID == uuid.Nil {
		return fmt.Errorf("plan_id is required")
	}
	if pi.PolicyNumber == "" {
		return fmt.Errorf("policy_number is required")
	}
	if pi.CoverageStartDate.IsZero() {
		return fmt.Errorf("coverage_start_date is required")
	}
	if pi.CoverageEndDate != nil && pi.CoverageEndDate.Before(pi.CoverageStartDate) {
		return fmt.Errorf("coverage_end_date must not precede coverage_start_date")
	}
	plan, err := s.plans.GetByID(ctx, pi.PlanID)
	if err != nil {
		return fmt.Errorf("plan lookup: %w", err)
	}
	if !plan.IsActive {
		return fmt.Errorf("cannot enroll in inactive plan %s", plan.Code)
	}
	if pi.Status == "" {
		pi.Status = EnrollmentActive
	}
	if !validEnrollmentStatuses[pi.Status] {
		return fmt.Errorf("invalid enrollment status: %s", pi.Status)
	}
	return s.enrollments.Create(ctx, pi)
}

func (s *Service) GetEnrollment(ctx context.Context, id uuid.UUID) (*PatientInsurance, error) {
	return s.enrollments.GetByID(ctx, id)
}

func (s *Service) UpdateEnrollment(ctx context.Context, pi *PatientInsurance) error {
	if !validEnrollmentStatuses[pi.Status] {
		return fmt.Errorf("invalid enrollment status: %s", pi.Status)
	}
	if pi.CoverageEndDate != nil && pi.CoverageEndDate.Before(pi.CoverageStartDate) {
		return fmt.Errorf("coverage_end_date must not precede coverage_start_date")
	}
	return s.enrollments.Update(ctx, pi)
}

func (s *Service) ListEnrollmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]*PatientInsurance, error) {
	return s.enrollments.ListByPatient(ctx, patientID)
}

func (s *Service) FindInForceEnrollment(ctx context.Context, patientID uuid.UUID, at time.Time) (*PatientInsurance, error) {
	return s.enrollments.FindInForce(ctx, patientID, at)
}
