package insurance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SystemDefaultPercent is the preview-only default applied when a plan has
// no rule and no category default. It is never used to price a persisted
// charge.
const SystemDefaultPercent = 80.0

// Resolver finds the single applicable coverage rule for a plan, category
// and item using an ordered strategy chain: item-specific rule, then the
// plan's category-wide rule, then the plan's category default percentage.
type Resolver struct {
	plans       PlanRepository
	rules       RuleRepository
	enrollments EnrollmentRepository
	logger      zerolog.Logger
}

func NewResolver(plans PlanRepository, rules RuleRepository, enrollments EnrollmentRepository, logger zerolog.Logger) *Resolver {
	return &Resolver{plans: plans, rules: rules, enrollments: enrollments, logger: logger}
}

type ruleStrategy func(ctx context.Context, planID uuid.UUID, category, itemCode string, at time.Time) (*ResolvedCoverage, error)

// Resolve returns the coverage outcome for an item under a plan at the
// given instant. It never errors on missing rules; absence of any match
// yields the self-pay outcome. Errors are repository failures only.
func (rv *Resolver) Resolve(ctx context.Context, planID uuid.UUID, category, itemCode string, at time.Time) (ResolvedCoverage, error) {
	if !validCategories[category] {
		return SelfPay(category), fmt.Errorf("unknown coverage category: %s", category)
	}
	strategies := []ruleStrategy{
		rv.resolveItemSpecific,
		rv.resolveCategoryWide,
		rv.resolvePlanDefault,
	}
	for _, s := range strategies {
		rc, err := s(ctx, planID, category, itemCode, at)
		if err != nil {
			return SelfPay(category), err
		}
		if rc != nil {
			return *rc, nil
		}
	}
	return SelfPay(category), nil
}

// ResolveForPatient looks up the patient's in-force enrollment first and
// resolves against its plan; patients without one get the self-pay outcome.
func (rv *Resolver) ResolveForPatient(ctx context.Context, patientID uuid.UUID, category, itemCode string, at time.Time) (ResolvedCoverage, error) {
	enr, err := rv.enrollments.FindInForce(ctx, patientID, at)
	if err != nil {
		return SelfPay(category), err
	}
	if enr == nil {
		return SelfPay(category), nil
	}
	return rv.Resolve(ctx, enr.PlanID, category, itemCode, at)
}

// PreviewDefault computes the outcome a brand-new item in the category
// would receive under the plan: category-wide rule, plan category default,
// then the system-wide default percentage. Plans that require explicit
// approval for new items never extend a default to a new item, so the
// preview is the self-pay no-op. Used only by the catalog notifier; charge
// pricing goes through Resolve.
func (rv *Resolver) PreviewDefault(ctx context.Context, plan *Plan, category string) (ResolvedCoverage, error) {
	if plan.RequireExplicitApproval {
		return SelfPay(category), nil
	}
	now := time.Now()
	strategies := []ruleStrategy{
		rv.resolveCategoryWide,
		rv.resolvePlanDefault,
	}
	for _, s := range strategies {
		rc, err := s(ctx, plan.ID, category, "", now)
		if err != nil {
			return SelfPay(category), err
		}
		if rc != nil {
			return *rc, nil
		}
	}
	return ResolvedCoverage{
		Source:        SourceSystemDefault,
		PlanID:        &plan.ID,
		Category:      category,
		CoverageType:  CoveragePercentage,
		CoverageValue: SystemDefaultPercent,
		IsCovered:     true,
	}, nil
}

func (rv *Resolver) resolveItemSpecific(ctx context.Context, planID uuid.UUID, category, itemCode string, at time.Time) (*ResolvedCoverage, error) {
	if itemCode == "" {
		return nil, nil
	}
	rules, err := rv.rules.FindItemRules(ctx, planID, category, itemCode)
	if err != nil {
		return nil, err
	}
	return rv.pick(rules, planID, category, at, SourceItemSpecific), nil
}

func (rv *Resolver) resolveCategoryWide(ctx context.Context, planID uuid.UUID, category, _ string, at time.Time) (*ResolvedCoverage, error) {
	rules, err := rv.rules.FindCategoryRules(ctx, planID, category)
	if err != nil {
		return nil, err
	}
	return rv.pick(rules, planID, category, at, SourceCategoryDefault), nil
}

// resolvePlanDefault materializes the plan's category default percentage as
// a virtual percentage rule.
func (rv *Resolver) resolvePlanDefault(ctx context.Context, planID uuid.UUID, category, _ string, _ time.Time) (*ResolvedCoverage, error) {
	plan, err := rv.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	pct := plan.CategoryDefault(category)
	if pct == nil {
		return nil, nil
	}
	return &ResolvedCoverage{
		Source:        SourcePlanDefault,
		PlanID:        &plan.ID,
		Category:      category,
		CoverageType:  CoveragePercentage,
		CoverageValue: *pct,
		IsCovered:     *pct > 0,
	}, nil
}

// pick applies effectiveness windows, takes the most recently updated
// candidate, and logs the data-integrity conflict when more than one rule
// matched the same key.
func (rv *Resolver) pick(rules []*CoverageRule, planID uuid.UUID, category string, at time.Time, source string) *ResolvedCoverage {
	var effective []*CoverageRule
	for _, r := range rules {
		if r.EffectiveAt(at) {
			effective = append(effective, r)
		}
	}
	if len(effective) == 0 {
		return nil
	}
	// Repositories order by updated_at descending.
	rule := effective[0]
	if len(effective) > 1 {
		rv.logger.Warn().
			Str("plan_id", planID.String()).
			Str("category", category).
			Str("picked_rule_id", rule.ID.String()).
			Int("candidates", len(effective)).
			Msg("multiple active coverage rules matched the same key")
	}
	return rv.fromRule(rule, source)
}

// fromRule converts a stored rule into a resolution outcome, failing closed
// to excluded when the coverage type is unrecognized.
func (rv *Resolver) fromRule(r *CoverageRule, source string) *ResolvedCoverage {
	rc := &ResolvedCoverage{
		Source:                   source,
		RuleID:                   &r.ID,
		PlanID:                   &r.PlanID,
		Category:                 r.Category,
		CoverageType:             r.CoverageType,
		CoverageValue:            r.CoverageValue,
		CopayAmount:              r.CopayAmount,
		RequiresPreauthorization: r.RequiresPreauthorization,
		MaxQuantityPerVisit:      r.MaxQuantityPerVisit,
		MaxAmountPerVisit:        r.MaxAmountPerVisit,
	}
	switch r.CoverageType {
	case CoveragePercentage:
		rc.IsCovered = r.CoverageValue > 0
	case CoverageFixed:
		rc.IsCovered = r.CoverageValue > 0
	case CoverageFull:
		rc.IsCovered = true
	case CoverageExcluded:
		rc.IsCovered = false
	default:
		rv.logger.Error().
			Str("rule_id", r.ID.String()).
			Str("coverage_type", r.CoverageType).
			Msg("unrecognized coverage type, failing closed to excluded")
		rc.CoverageType = CoverageExcluded
		rc.CoverageValue = 0
		rc.CopayAmount = nil
		rc.RequiresPreauthorization = false
		rc.MaxQuantityPerVisit = nil
		rc.MaxAmountPerVisit = nil
		rc.IsCovered = false
	}
	return rc
}
