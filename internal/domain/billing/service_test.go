package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justdick/hms-billing/internal/domain/insurance"
)

// -- Mock Repositories --

type mockChargeRepo struct {
	items map[uuid.UUID]*Charge
}

func newMockChargeRepo() *mockChargeRepo {
	return &mockChargeRepo{items: make(map[uuid.UUID]*Charge)}
}

func (m *mockChargeRepo) Create(_ context.Context, c *Charge) error {
	for _, existing := range m.items {
		if existing.CheckinID == c.CheckinID && existing.IdempotencyKey == c.IdempotencyKey {
			return ErrAlreadyCharged
		}
	}
	c.ID = uuid.New()
	m.items[c.ID] = c
	return nil
}

func (m *mockChargeRepo) GetByID(_ context.Context, id uuid.UUID) (*Charge, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockChargeRepo) GetByKey(_ context.Context, checkinID uuid.UUID, key string) (*Charge, error) {
	for _, c := range m.items {
		if c.CheckinID == checkinID && c.IdempotencyKey == key {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockChargeRepo) ListPending(_ context.Context, checkinID uuid.UUID, serviceType, serviceCode string) ([]*Charge, error) {
	var out []*Charge
	for _, c := range m.items {
		if c.CheckinID != checkinID || c.ServiceType != serviceType || c.Status != ChargePending {
			continue
		}
		if serviceCode != "" && c.ServiceCode != serviceCode {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *mockChargeRepo) ListByCheckin(_ context.Context, checkinID uuid.UUID) ([]*Charge, error) {
	var out []*Charge
	for _, c := range m.items {
		if c.CheckinID == checkinID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockChargeRepo) MarkPaid(_ context.Context, id uuid.UUID) error {
	c, ok := m.items[id]
	if !ok || c.Status != ChargePending {
		return ErrNotPending
	}
	now := time.Now()
	c.Status = ChargePaid
	c.PaidAt = &now
	return nil
}

func (m *mockChargeRepo) Void(_ context.Context, id uuid.UUID) error {
	c, ok := m.items[id]
	if !ok || c.Status != ChargePending {
		return ErrNotPending
	}
	now := time.Now()
	c.Status = ChargeVoid
	c.VoidedAt = &now
	return nil
}

type mockGateRuleRepo struct {
	rules []*ServiceChargeRule
}

func (m *mockGateRuleRepo) Create(_ context.Context, r *ServiceChargeRule) error {
	r.ID = uuid.New()
	m.rules = append(m.rules, r)
	return nil
}

func (m *mockGateRuleRepo) Update(_ context.Context, r *ServiceChargeRule) error {
	for i, existing := range m.rules {
		if existing.ID == r.ID {
			m.rules[i] = r
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockGateRuleRepo) FindRule(_ context.Context, serviceType, serviceCode string) (*ServiceChargeRule, error) {
	var fallback *ServiceChargeRule
	for _, r := range m.rules {
		if !r.IsActive || r.ServiceType != serviceType {
			continue
		}
		if r.ServiceCode != nil && *r.ServiceCode == serviceCode {
			return r, nil
		}
		if r.ServiceCode == nil {
			fallback = r
		}
	}
	return fallback, nil
}

func (m *mockGateRuleRepo) List(_ context.Context) ([]*ServiceChargeRule, error) {
	return m.rules, nil
}

type mockOverrideRepo struct {
	items map[uuid.UUID]*Override
}

func newMockOverrideRepo() *mockOverrideRepo {
	return &mockOverrideRepo{items: make(map[uuid.UUID]*Override)}
}

func (m *mockOverrideRepo) Create(_ context.Context, o *Override) error {
	o.ID = uuid.New()
	m.items[o.ID] = o
	return nil
}

func (m *mockOverrideRepo) ListActive(_ context.Context, checkinID uuid.UUID) ([]*Override, error) {
	var out []*Override
	for _, o := range m.items {
		if o.CheckinID == checkinID && o.Status == OverrideActive {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOverrideRepo) Revoke(_ context.Context, id uuid.UUID) error {
	o, ok := m.items[id]
	if !ok || o.Status != OverrideActive {
		return ErrNotFound
	}
	o.Status = OverrideRevoked
	return nil
}

// mockPricer splits every price at a fixed coverage percentage.
type mockPricer struct {
	percent      float64
	lastCategory string
}

func (m *mockPricer) Quote(_ context.Context, req insurance.QuoteRequest) (insurance.Quote, error) {
	m.lastCategory = req.Category
	qty := float64(req.Quantity)
	if qty == 0 {
		qty = 1
	}
	rc := insurance.ResolvedCoverage{
		Source:        insurance.SourceCategoryDefault,
		Category:      req.Category,
		CoverageType:  insurance.CoveragePercentage,
		CoverageValue: m.percent,
		IsCovered:     m.percent > 0,
	}
	if m.percent == 0 {
		rc = insurance.SelfPay(req.Category)
	}
	a := insurance.ComputeAmounts(req.UnitPrice, rc)
	return insurance.Quote{
		Resolved:   rc,
		BasePrice:  req.UnitPrice,
		Quantity:   req.Quantity,
		Covered:    a.Covered * qty,
		PatientDue: a.Copay * qty,
	}, nil
}

func newTestService(percent float64) (*Service, *mockChargeRepo, *mockGateRuleRepo, *mockOverrideRepo) {
	charges := newMockChargeRepo()
	gateRules := &mockGateRuleRepo{}
	overrides := newMockOverrideRepo()
	svc := NewService(charges, gateRules, overrides, &mockPricer{percent: percent}, zerolog.Nop())
	return svc, charges, gateRules, overrides
}

func newChargeReq(checkinID uuid.UUID, key string) NewCharge {
	return NewCharge{
		CheckinID:      checkinID,
		PatientID:      uuid.New(),
		ServiceType:    ServiceLaboratory,
		ServiceCode:    "FBC",
		Description:    "Full blood count",
		UnitPrice:      50,
		IdempotencyKey: key,
	}
}

// -- Charge tests --

func TestCreateChargePricesThroughCoverage(t *testing.T) {
	svc, _, _, _ := newTestService(80)
	ctx := context.Background()

	c, err := svc.CreateCharge(ctx, newChargeReq(uuid.New(), "lab-1"))
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if c.Amount != 10 || c.CoveredAmount != 40 {
		t.Errorf("got amount=%v covered=%v, want 10/40", c.Amount, c.CoveredAmount)
	}
	if c.Status != ChargePending {
		t.Errorf("status = %s, want pending", c.Status)
	}
	if c.CoverageSource != insurance.SourceCategoryDefault {
		t.Errorf("coverage source = %s", c.CoverageSource)
	}
}

func TestCreateChargeIdempotent(t *testing.T) {
	svc, charges, _, _ := newTestService(0)
	ctx := context.Background()
	checkinID := uuid.New()

	first, err := svc.CreateCharge(ctx, newChargeReq(checkinID, "lab-1"))
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	second, err := svc.CreateCharge(ctx, newChargeReq(checkinID, "lab-1"))
	if !errors.Is(err, ErrAlreadyCharged) {
		t.Fatalf("expected ErrAlreadyCharged, got %v", err)
	}
	if second == nil || second.ID != first.ID {
		t.Error("duplicate attempt should return the existing charge")
	}
	if len(charges.items) != 1 {
		t.Errorf("charge count = %d, want exactly one persisted charge", len(charges.items))
	}

	// A different key on the same encounter is a new charge.
	if _, err := svc.CreateCharge(ctx, newChargeReq(checkinID, "lab-2")); err != nil {
		t.Fatalf("CreateCharge with new key: %v", err)
	}
	if len(charges.items) != 2 {
		t.Errorf("charge count = %d, want 2", len(charges.items))
	}
}

func TestCreateChargeValidation(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	ctx := context.Background()

	req := newChargeReq(uuid.New(), "k")
	req.ServiceType = "spa"
	if _, err := svc.CreateCharge(ctx, req); err == nil {
		t.Error("expected error for invalid service type")
	}

	req = newChargeReq(uuid.New(), "")
	if _, err := svc.CreateCharge(ctx, req); err == nil {
		t.Error("expected error for missing idempotency key")
	}

	req = newChargeReq(uuid.Nil, "k")
	if _, err := svc.CreateCharge(ctx, req); err == nil {
		t.Error("expected error for missing checkin id")
	}

	req = newChargeReq(uuid.New(), "k")
	req.UnitPrice = -5
	if _, err := svc.CreateCharge(ctx, req); err == nil {
		t.Error("expected error for negative price")
	}
}

func TestCreateChargeCategory(t *testing.T) {
	charges := newMockChargeRepo()
	pricer := &mockPricer{percent: 50}
	svc := NewService(charges, &mockGateRuleRepo{}, newMockOverrideRepo(), pricer, zerolog.Nop())
	ctx := context.Background()

	// Default: the service type determines the coverage category, with
	// imaging billing against lab rules.
	req := newChargeReq(uuid.New(), "img-1")
	req.ServiceType = ServiceImaging
	if _, err := svc.CreateCharge(ctx, req); err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if pricer.lastCategory != insurance.CategoryLab {
		t.Errorf("category = %q, want lab", pricer.lastCategory)
	}

	// An explicit category wins when the caller knows better.
	req = newChargeReq(uuid.New(), "nur-1")
	req.ServiceType = ServiceWard
	req.Category = insurance.CategoryNursing
	if _, err := svc.CreateCharge(ctx, req); err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if pricer.lastCategory != insurance.CategoryNursing {
		t.Errorf("category = %q, want nursing", pricer.lastCategory)
	}

	req = newChargeReq(uuid.New(), "bad-1")
	req.Category = "spa"
	if _, err := svc.CreateCharge(ctx, req); err == nil {
		t.Error("expected error for unknown category")
	}
}

// -- Gate tests --

func TestCanProceedIffZeroPending(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	ctx := context.Background()
	checkinID := uuid.New()

	ok, err := svc.CanProceed(ctx, checkinID, ServiceLaboratory, "")
	if err != nil {
		t.Fatalf("CanProceed: %v", err)
	}
	if !ok {
		t.Error("no charges: gate should allow")
	}

	c, err := svc.CreateCharge(ctx, newChargeReq(checkinID, "lab-1"))
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	ok, err = svc.CanProceed(ctx, checkinID, ServiceLaboratory, "")
	if err != nil {
		t.Fatalf("CanProceed: %v", err)
	}
	if ok {
		t.Error("pending charge: gate should block")
	}

	// Other service types are unaffected.
	ok, err = svc.CanProceed(ctx, checkinID, ServiceDrug, "")
	if err != nil {
		t.Fatalf("CanProceed: %v", err)
	}
	if !ok {
		t.Error("pending lab charge must not block drug dispensing")
	}

	if err := svc.MarkPaid(ctx, c.ID); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	ok, err = svc.CanProceed(ctx, checkinID, ServiceLaboratory, "")
	if err != nil {
		t.Fatalf("CanProceed: %v", err)
	}
	if !ok {
		t.Error("paid charge: gate should allow again")
	}
}

func TestEvaluatePendingAndPaidCharges(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	ctx := context.Background()
	checkinID := uuid.New()

	lab := newChargeReq(checkinID, "lab-1")
	lab.UnitPrice = 30
	if _, err := svc.CreateCharge(ctx, lab); err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	paid := newChargeReq(checkinID, "lab-2")
	paid.UnitPrice = 20
	pc, err := svc.CreateCharge(ctx, paid)
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if err := svc.MarkPaid(ctx, pc.ID); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	d, err := svc.Evaluate(ctx, checkinID, ServiceLaboratory, "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed {
		t.Error("expected blocked with a pending balance")
	}
	if d.PendingTotal != 30 {
		t.Errorf("pending total = %v, want 30 (paid charge excluded)", d.PendingTotal)
	}
	if len(d.Charges) != 1 {
		t.Errorf("charges = %d, want the single pending one", len(d.Charges))
	}
}

func TestEvaluateVoidedChargesDoNotBlock(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	ctx := context.Background()
	checkinID := uuid.New()

	c, err := svc.CreateCharge(ctx, newChargeReq(checkinID, "lab-1"))
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if err := svc.Void(ctx, c.ID); err != nil {
		t.Fatalf("Void: %v", err)
	}

	ok, err := svc.CanProceed(ctx, checkinID, ServiceLaboratory, "")
	if err != nil {
		t.Fatalf("CanProceed: %v", err)
	}
	if !ok {
		t.Error("voided charges must not block")
	}
}

func TestEvaluateReportsOverrideCapability(t *testing.T) {
	svc, _, gateRules, _ := newTestService(0)
	ctx := context.Background()
	checkinID := uuid.New()

	if err := svc.CreateGateRule(ctx, &ServiceChargeRule{ServiceType: ServiceLaboratory, EmergencyOverrideAllowed: true}); err != nil {
		t.Fatalf("CreateGateRule: %v", err)
	}
	if _, err := svc.CreateCharge(ctx, newChargeReq(checkinID, "lab-1")); err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	d, err := svc.Evaluate(ctx, checkinID, ServiceLaboratory, "FBC")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// Override is a capability, never an automatic bypass.
	if d.Allowed {
		t.Error("override capability must not flip the gate open")
	}
	if !d.OverrideAllowed {
		t.Error("expected the override capability on the decision")
	}

	// An exact-code rule beats the type-wide fallback.
	code := "FBC"
	if err := svc.CreateGateRule(ctx, &ServiceChargeRule{ServiceType: ServiceLaboratory, ServiceCode: &code, EmergencyOverrideAllowed: false}); err != nil {
		t.Fatalf("CreateGateRule: %v", err)
	}
	d, err = svc.Evaluate(ctx, checkinID, ServiceLaboratory, "FBC")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.OverrideAllowed {
		t.Error("exact-code rule should win over the type-wide fallback")
	}
	if len(gateRules.rules) != 2 {
		t.Fatalf("rule count = %d", len(gateRules.rules))
	}
}

// -- Override tests --

func TestGrantOverrideRequiresCapability(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	ctx := context.Background()

	req := GrantOverrideRequest{
		CheckinID:    uuid.New(),
		ServiceType:  ServiceLaboratory,
		AuthorizedBy: "dr-mensah",
		Reason:       "patient in acute distress",
	}
	if _, err := svc.GrantOverride(ctx, req); !errors.Is(err, ErrOverrideNotAllowed) {
		t.Errorf("expected ErrOverrideNotAllowed without a permitting rule, got %v", err)
	}

	if err := svc.CreateGateRule(ctx, &ServiceChargeRule{ServiceType: ServiceLaboratory, EmergencyOverrideAllowed: true}); err != nil {
		t.Fatalf("CreateGateRule: %v", err)
	}
	o, err := svc.GrantOverride(ctx, req)
	if err != nil {
		t.Fatalf("GrantOverride: %v", err)
	}
	if o.AuthorizedBy != "dr-mensah" || o.Reason == "" {
		t.Error("override must record provenance")
	}
	if o.Status != OverrideActive {
		t.Errorf("status = %s, want active", o.Status)
	}

	active, err := svc.ActiveOverrides(ctx, req.CheckinID)
	if err != nil {
		t.Fatalf("ActiveOverrides: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("active overrides = %d, want 1", len(active))
	}
}

func TestGrantOverrideValidation(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	ctx := context.Background()
	if err := svc.CreateGateRule(ctx, &ServiceChargeRule{ServiceType: ServiceLaboratory, EmergencyOverrideAllowed: true}); err != nil {
		t.Fatalf("CreateGateRule: %v", err)
	}

	base := GrantOverrideRequest{
		CheckinID:    uuid.New(),
		ServiceType:  ServiceLaboratory,
		AuthorizedBy: "dr-mensah",
		Reason:       "emergency",
	}

	req := base
	req.Reason = ""
	if _, err := svc.GrantOverride(ctx, req); err == nil {
		t.Error("expected error for missing reason")
	}
	req = base
	req.AuthorizedBy = ""
	if _, err := svc.GrantOverride(ctx, req); err == nil {
		t.Error("expected error for missing authorizer")
	}
}

func TestRevokeOverride(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	ctx := context.Background()
	if err := svc.CreateGateRule(ctx, &ServiceChargeRule{ServiceType: ServiceDrug, EmergencyOverrideAllowed: true}); err != nil {
		t.Fatalf("CreateGateRule: %v", err)
	}

	checkinID := uuid.New()
	o, err := svc.GrantOverride(ctx, GrantOverrideRequest{
		CheckinID: checkinID, ServiceType: ServiceDrug,
		AuthorizedBy: "dr-mensah", Reason: "emergency dispense",
	})
	if err != nil {
		t.Fatalf("GrantOverride: %v", err)
	}
	if err := svc.RevokeOverride(ctx, o.ID); err != nil {
		t.Fatalf("RevokeOverride: %v", err)
	}
	active, err := svc.ActiveOverrides(ctx, checkinID)
	if err != nil {
		t.Fatalf("ActiveOverrides: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active overrides = %d, want 0 after revoke", len(active))
	}
}

func TestSumPending(t *testing.T) {
	charges := []*Charge{
		{Status: ChargePending, Amount: 30},
		{Status: ChargePaid, Amount: 20},
		{Status: ChargeVoid, Amount: 15},
		{Status: ChargePending, Amount: 5},
	}
	if got := SumPending(charges); got != 35 {
		t.Errorf("SumPending = %v, want 35", got)
	}
}
