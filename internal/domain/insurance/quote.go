package insurance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ItemTariff is the external-scheme price for a mapped catalog item.
type ItemTariff struct {
	Code  string
	Price float64
}

// TariffSource supplies tariff prices for mapped items. Implementations
// return (nil, nil) when the item has no active mapping.
type TariffSource interface {
	TariffForItem(ctx context.Context, itemType string, itemID uuid.UUID) (*ItemTariff, error)
}

// QuoteRequest identifies the item to price and the party to price it for.
// Exactly one of PatientID or PlanID must be set; PatientID routes through
// the in-force enrollment lookup.
type QuoteRequest struct {
	PatientID uuid.UUID `json:"patient_id,omitempty"`
	PlanID    uuid.UUID `json:"plan_id,omitempty"`
	Category  string    `json:"category"`
	ItemCode  string    `json:"item_code,omitempty"`
	ItemType  string    `json:"item_type,omitempty"`
	ItemID    uuid.UUID `json:"item_id,omitempty"`
	UnitPrice float64   `json:"unit_price"`
	Quantity  int       `json:"quantity,omitempty"`
	At        time.Time `json:"at,omitempty"`
}

// Quote is the priced outcome: what the insurer covers and what the
// patient owes for the full quantity. LimitExceeded marks a breach of the
// rule's per-visit caps; the quantity cap only flags, the amount cap also
// shifts the excess onto the patient.
type Quote struct {
	Resolved                 ResolvedCoverage `json:"resolved"`
	BasePrice                float64          `json:"base_price"`
	TariffPrice              *float64         `json:"tariff_price,omitempty"`
	Quantity                 int              `json:"quantity"`
	Covered                  float64          `json:"covered_amount"`
	PatientDue               float64          `json:"patient_due"`
	RequiresPreauthorization bool             `json:"requires_preauthorization,omitempty"`
	LimitExceeded            bool             `json:"limit_exceeded,omitempty"`
	LimitMessage             string           `json:"limit_message,omitempty"`
	Clamped                  bool             `json:"-"`
}

// applyVisitLimits enforces the resolved rule's per-visit caps on a priced
// quote and surfaces its pre-authorization flag.
func applyVisitLimits(q *Quote) {
	rc := q.Resolved
	q.RequiresPreauthorization = rc.RequiresPreauthorization
	if rc.MaxQuantityPerVisit != nil && q.Quantity > *rc.MaxQuantityPerVisit {
		q.LimitExceeded = true
		q.LimitMessage = fmt.Sprintf("quantity %d exceeds plan limit of %d per visit", q.Quantity, *rc.MaxQuantityPerVisit)
	}
	if rc.MaxAmountPerVisit != nil && q.Covered > *rc.MaxAmountPerVisit {
		q.LimitExceeded = true
		q.LimitMessage = fmt.Sprintf("insurance coverage amount exceeds plan limit of %.2f per visit", *rc.MaxAmountPerVisit)
		excess := q.Covered - *rc.MaxAmountPerVisit
		q.Covered = roundCurrency(*rc.MaxAmountPerVisit)
		q.PatientDue = roundCurrency(q.PatientDue + excess)
	}
}

// Quoter prices billable items. State-scheme plans price off the tariff
// store (the insurer pays the tariff, the patient pays a fixed copay);
// private plans split the cash price through the resolver and calculator.
// Quotes never fall back to the preview default: a persisted price always
// comes from an explicitly resolved rule or self-pay.
type Quoter struct {
	resolver    *Resolver
	plans       PlanRepository
	rules       RuleRepository
	enrollments EnrollmentRepository
	tariffs     TariffSource
	logger      zerolog.Logger
}

func NewQuoter(resolver *Resolver, plans PlanRepository, rules RuleRepository, enrollments EnrollmentRepository, tariffs TariffSource, logger zerolog.Logger) *Quoter {
	return &Quoter{resolver: resolver, plans: plans, rules: rules, enrollments: enrollments, tariffs: tariffs, logger: logger}
}

func (q *Quoter) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if req.At.IsZero() {
		req.At = time.Now()
	}
	if req.UnitPrice < 0 {
		return Quote{}, fmt.Errorf("unit price must not be negative")
	}

	planID := req.PlanID
	if planID == uuid.Nil {
		if req.PatientID == uuid.Nil {
			return Quote{}, fmt.Errorf("either patient_id or plan_id is required")
		}
		enr, err := q.enrollments.FindInForce(ctx, req.PatientID, req.At)
		if err != nil {
			return Quote{}, err
		}
		if enr == nil {
			return q.selfPayQuote(req), nil
		}
		planID = enr.PlanID
	}

	plan, err := q.plans.GetByID(ctx, planID)
	if err != nil {
		return Quote{}, err
	}
	if !plan.IsActive {
		return q.selfPayQuote(req), nil
	}
	if plan.IsStateScheme {
		return q.stateSchemeQuote(ctx, plan, req)
	}
	return q.privateQuote(ctx, plan, req)
}

func (q *Quoter) selfPayQuote(req QuoteRequest) Quote {
	qty := float64(req.Quantity)
	return Quote{
		Resolved:   SelfPay(req.Category),
		BasePrice:  req.UnitPrice,
		Quantity:   req.Quantity,
		Covered:    0,
		PatientDue: roundCurrency(req.UnitPrice * qty),
	}
}

func (q *Quoter) privateQuote(ctx context.Context, plan *Plan, req QuoteRequest) (Quote, error) {
	rc, err := q.resolver.Resolve(ctx, plan.ID, req.Category, req.ItemCode, req.At)
	if err != nil {
		return Quote{}, err
	}
	a := ComputeAmounts(req.UnitPrice, rc)
	qty := float64(req.Quantity)
	quote := Quote{
		Resolved:   rc,
		BasePrice:  req.UnitPrice,
		Quantity:   req.Quantity,
		Covered:    roundCurrency(a.Covered * qty),
		PatientDue: roundCurrency(a.Copay * qty),
		Clamped:    a.Clamped,
	}
	applyVisitLimits(&quote)
	return quote, nil
}

// stateSchemeQuote prices under a tariff-capped national scheme. Mapped
// items are settled at the tariff price with the patient owing only the
// rule's fixed copay; unmapped items fall back to a flexible-copay rule,
// then to a regular rule's fixed copay, then to full self-pay.
func (q *Quoter) stateSchemeQuote(ctx context.Context, plan *Plan, req QuoteRequest) (Quote, error) {
	var tariff *ItemTariff
	if q.tariffs != nil && req.ItemType != "" && req.ItemID != uuid.Nil {
		var err error
		tariff, err = q.tariffs.TariffForItem(ctx, req.ItemType, req.ItemID)
		if err != nil {
			return Quote{}, err
		}
	}

	rc, err := q.resolver.Resolve(ctx, plan.ID, req.Category, req.ItemCode, req.At)
	if err != nil {
		return Quote{}, err
	}

	qty := float64(req.Quantity)
	if tariff != nil {
		if !rc.IsCovered && rc.Source != SourceSelfPay && rc.CoverageType == CoverageExcluded {
			// An explicit exclusion beats the tariff mapping.
			return Quote{
				Resolved:   rc,
				BasePrice:  req.UnitPrice,
				Quantity:   req.Quantity,
				Covered:    0,
				PatientDue: roundCurrency(req.UnitPrice * qty),
			}, nil
		}
		var copay float64
		if rc.CopayAmount != nil {
			copay = *rc.CopayAmount
		}
		price := tariff.Price
		quote := Quote{
			Resolved:    rc,
			BasePrice:   req.UnitPrice,
			TariffPrice: &price,
			Quantity:    req.Quantity,
			Covered:     roundCurrency(price * qty),
			PatientDue:  roundCurrency(copay * qty),
		}
		applyVisitLimits(&quote)
		return quote, nil
	}

	// Unmapped item: look for a flexible-copay rule before treating the
	// item as fully out of pocket.
	unmapped, err := q.rules.FindUnmappedRules(ctx, plan.ID, req.Category)
	if err != nil {
		return Quote{}, err
	}
	for _, r := range unmapped {
		if !r.EffectiveAt(req.At) || r.CopayAmount == nil {
			continue
		}
		q.logger.Debug().
			Str("plan_id", plan.ID.String()).
			Str("item_code", req.ItemCode).
			Str("rule_id", r.ID.String()).
			Msg("pricing unmapped item via flexible copay rule")
		return Quote{
			Resolved: ResolvedCoverage{
				Source:                   SourceCategoryDefault,
				RuleID:                   &r.ID,
				PlanID:                   &r.PlanID,
				Category:                 r.Category,
				CoverageType:             r.CoverageType,
				CoverageValue:            r.CoverageValue,
				CopayAmount:              r.CopayAmount,
				RequiresPreauthorization: r.RequiresPreauthorization,
				IsCovered:                true,
			},
			BasePrice:                req.UnitPrice,
			Quantity:                 req.Quantity,
			Covered:                  0,
			PatientDue:               roundCurrency(*r.CopayAmount * qty),
			RequiresPreauthorization: r.RequiresPreauthorization,
		}, nil
	}

	// No flexible-copay rule, but the item's regular rule still names a
	// fixed copay: the scheme settles nothing for an unmapped item, yet
	// the patient owes only that copay, not the full cash price.
	if rc.IsCovered && rc.CopayAmount != nil && *rc.CopayAmount > 0 {
		q.logger.Debug().
			Str("plan_id", plan.ID.String()).
			Str("item_code", req.ItemCode).
			Str("source", rc.Source).
			Msg("pricing unmapped item via regular rule copay")
		return Quote{
			Resolved:                 rc,
			BasePrice:                req.UnitPrice,
			Quantity:                 req.Quantity,
			Covered:                  0,
			PatientDue:               roundCurrency(*rc.CopayAmount * qty),
			RequiresPreauthorization: rc.RequiresPreauthorization,
		}, nil
	}
	return q.selfPayQuote(req), nil
}
