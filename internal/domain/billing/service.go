package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justdick/hms-billing/internal/domain/insurance"
)

// ErrOverrideNotAllowed is returned when an override is requested for a
// service whose gate rule does not permit emergency overrides.
var ErrOverrideNotAllowed = errors.New("emergency override not allowed for this service")

// Pricer computes the patient-due split for a billable item.
// *insurance.Quoter is the production implementation.
type Pricer interface {
	Quote(ctx context.Context, req insurance.QuoteRequest) (insurance.Quote, error)
}

// Service is the charge ledger and billing gate.
type Service struct {
	charges   ChargeRepository
	gateRules GateRuleRepository
	overrides OverrideRepository
	pricer    Pricer
	logger    zerolog.Logger
}

func NewService(charges ChargeRepository, gateRules GateRuleRepository, overrides OverrideRepository, pricer Pricer, logger zerolog.Logger) *Service {
	return &Service{charges: charges, gateRules: gateRules, overrides: overrides, pricer: pricer, logger: logger}
}

// NewCharge describes one billable clinical event. The idempotency key is
// the natural key of the triggering event (a prescription line, a
// completed procedure) and makes retried creates safe.
type NewCharge struct {
	CheckinID      uuid.UUID `json:"checkin_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	ServiceType    string    `json:"service_type"`
	ServiceCode    string    `json:"service_code"`
	Description    string    `json:"description"`
	Category       string    `json:"category,omitempty"`
	ItemType       string    `json:"item_type,omitempty"`
	ItemID         uuid.UUID `json:"item_id,omitempty"`
	UnitPrice      float64   `json:"unit_price"`
	Quantity       int       `json:"quantity,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// CreateCharge prices the event through the patient's coverage and records
// the patient-due amount on the ledger. Calling it twice with the same
// natural key persists exactly one charge: the duplicate attempt returns
// the existing charge alongside ErrAlreadyCharged.
func (s *Service) CreateCharge(ctx context.Context, req NewCharge) (*Charge, error) {
	if req.CheckinID == uuid.Nil {
		return nil, fmt.Errorf("checkin_id is required")
	}
	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if !validServiceTypes[req.ServiceType] {
		return nil, fmt.Errorf("invalid service type: %s", req.ServiceType)
	}
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency_key is required")
	}
	if req.UnitPrice < 0 {
		return nil, fmt.Errorf("unit price must not be negative")
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	// Nursing and other ward-adjacent events bill under a category the
	// service type alone cannot determine; the caller may name it.
	category := req.Category
	if category == "" {
		category = CategoryForService[req.ServiceType]
	} else if !insurance.ValidCategory(category) {
		return nil, fmt.Errorf("invalid coverage category: %s", category)
	}

	quote, err := s.pricer.Quote(ctx, insurance.QuoteRequest{
		PatientID: req.PatientID,
		Category:  category,
		ItemCode:  req.ServiceCode,
		ItemType:  req.ItemType,
		ItemID:    req.ItemID,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return nil, fmt.Errorf("pricing charge: %w", err)
	}
	if quote.Clamped {
		s.logger.Warn().
			Str("checkin_id", req.CheckinID.String()).
			Str("service_code", req.ServiceCode).
			Msg("copay override exceeded base price, covered amount clamped at zero")
	}

	c := &Charge{
		CheckinID:      req.CheckinID,
		PatientID:      req.PatientID,
		ServiceType:    req.ServiceType,
		ServiceCode:    req.ServiceCode,
		Description:    req.Description,
		Quantity:       req.Quantity,
		Amount:         quote.PatientDue,
		CoveredAmount:  quote.Covered,
		TariffAmount:   quote.TariffPrice,
		CoverageSource: quote.Resolved.Source,
		Status:         ChargePending,
		IdempotencyKey: req.IdempotencyKey,
		ChargedAt:      time.Now(),
	}
	if err := s.charges.Create(ctx, c); err != nil {
		if errors.Is(err, ErrAlreadyCharged) {
			existing, getErr := s.charges.GetByKey(ctx, req.CheckinID, req.IdempotencyKey)
			if getErr != nil {
				return nil, err
			}
			return existing, ErrAlreadyCharged
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCharge(ctx context.Context, id uuid.UUID) (*Charge, error) {
	return s.charges.GetByID(ctx, id)
}

func (s *Service) ListCharges(ctx context.Context, checkinID uuid.UUID) ([]*Charge, error) {
	return s.charges.ListByCheckin(ctx, checkinID)
}

// ListPending returns the unpaid, non-void charges blocking the given
// service scope.
func (s *Service) ListPending(ctx context.Context, checkinID uuid.UUID, serviceType, serviceCode string) ([]*Charge, error) {
	if !validServiceTypes[serviceType] {
		return nil, fmt.Errorf("invalid service type: %s", serviceType)
	}
	return s.charges.ListPending(ctx, checkinID, serviceType, serviceCode)
}

// SumPending totals a charge list. Only pending rows count.
func SumPending(charges []*Charge) float64 {
	var total float64
	for _, c := range charges {
		if c.Status == ChargePending {
			total += c.Amount
		}
	}
	return total
}

// PendingTotal is the blocking balance for the scope.
func (s *Service) PendingTotal(ctx context.Context, checkinID uuid.UUID, serviceType, serviceCode string) (float64, error) {
	charges, err := s.ListPending(ctx, checkinID, serviceType, serviceCode)
	if err != nil {
		return 0, err
	}
	return SumPending(charges), nil
}

func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) error {
	return s.charges.MarkPaid(ctx, id)
}

func (s *Service) Void(ctx context.Context, id uuid.UUID) error {
	return s.charges.Void(ctx, id)
}

// Evaluate answers whether the clinical action may proceed. The action is
// allowed exactly when the pending balance for its scope is zero. When it
// is blocked, the decision carries the balance for display and whether the
// matched gate rule permits an emergency override. The override itself is
// a separate, audited action; Evaluate never applies one.
func (s *Service) Evaluate(ctx context.Context, checkinID uuid.UUID, serviceType, serviceCode string) (Decision, error) {
	charges, err := s.ListPending(ctx, checkinID, serviceType, serviceCode)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		PendingTotal: SumPending(charges),
		Charges:      charges,
	}
	if d.PendingTotal == 0 {
		d.Allowed = true
		return d, nil
	}

	rule, err := s.gateRules.FindRule(ctx, serviceType, serviceCode)
	if err != nil {
		return Decision{}, err
	}
	d.Rule = rule
	if rule != nil {
		d.OverrideAllowed = rule.EmergencyOverrideAllowed
	}
	s.logger.Debug().
		Str("checkin_id", checkinID.String()).
		Str("service_type", serviceType).
		Float64("pending_total", d.PendingTotal).
		Bool("override_allowed", d.OverrideAllowed).
		Msg("billing gate blocked clinical action")
	return d, nil
}

// CanProceed is the boolean shorthand over Evaluate.
func (s *Service) CanProceed(ctx context.Context, checkinID uuid.UUID, serviceType, serviceCode string) (bool, error) {
	d, err := s.Evaluate(ctx, checkinID, serviceType, serviceCode)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// GrantOverrideRequest is an explicit, attributed override decision.
type GrantOverrideRequest struct {
	CheckinID    uuid.UUID  `json:"checkin_id"`
	ServiceType  string     `json:"service_type"`
	ServiceCode  *string    `json:"service_code,omitempty"`
	AuthorizedBy string     `json:"authorized_by"`
	Reason       string     `json:"reason"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// GrantOverride records who invoked an emergency override and why. It is
// only permitted when the matched gate rule carries the capability; the
// record is provenance for auditors, and the caller remains accountable
// for acting on it.
func (s *Service) GrantOverride(ctx context.Context, req GrantOverrideRequest) (*Override, error) {
	if req.CheckinID == uuid.Nil {
		return nil, fmt.Errorf("checkin_id is required")
	}
	if !validServiceTypes[req.ServiceType] {
		return nil, fmt.Errorf("invalid service type: %s", req.ServiceType)
	}
	if req.AuthorizedBy == "" {
		return nil, fmt.Errorf("authorized_by is required")
	}
	if req.Reason == "" {
		return nil, fmt.Errorf("reason is required")
	}

	code := ""
	if req.ServiceCode != nil {
		code = *req.ServiceCode
	}
	rule, err := s.gateRules.FindRule(ctx, req.ServiceType, code)
	if err != nil {
		return nil, err
	}
	if rule == nil || !rule.EmergencyOverrideAllowed {
		return nil, ErrOverrideNotAllowed
	}

	o := &Override{
		CheckinID:    req.CheckinID,
		ServiceType:  req.ServiceType,
		ServiceCode:  req.ServiceCode,
		AuthorizedBy: req.AuthorizedBy,
		Reason:       req.Reason,
		Status:       OverrideActive,
		GrantedAt:    time.Now(),
		ExpiresAt:    req.ExpiresAt,
	}
	if err := s.overrides.Create(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("checkin_id", req.CheckinID.String()).
		Str("service_type", req.ServiceType).
		Str("authorized_by", req.AuthorizedBy).
		Str("reason", req.Reason).
		Msg("emergency billing override granted")
	return o, nil
}

func (s *Service) ActiveOverrides(ctx context.Context, checkinID uuid.UUID) ([]*Override, error) {
	return s.overrides.ListActive(ctx, checkinID)
}

func (s *Service) RevokeOverride(ctx context.Context, id uuid.UUID) error {
	return s.overrides.Revoke(ctx, id)
}

// -- Gate rule administration --

func (s *Service) CreateGateRule(ctx context.Context, r *ServiceChargeRule) error {
	if !validServiceTypes[r.ServiceType] {
		return fmt.Errorf("invalid service type: %s", r.ServiceType)
	}
	r.IsActive = true
	return s.gateRules.Create(ctx, r)
}

func (s *Service) UpdateGateRule(ctx context.Context, r *ServiceChargeRule) error {
	return s.gateRules.Update(ctx, r)
}

func (s *Service) ListGateRules(ctx context.Context) ([]*ServiceChargeRule, error) {
	return s.gateRules.List(ctx)
}
