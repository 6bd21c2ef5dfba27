package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justdick/hms-billing/internal/domain/insurance"
)

type mockPlanSource struct {
	plans []*insurance.Plan
}

func (m *mockPlanSource) ListActive(_ context.Context) ([]*insurance.Plan, error) {
	return m.plans, nil
}

// mockPreviewer returns a fixed outcome per plan ID.
type mockPreviewer struct {
	outcomes map[uuid.UUID]insurance.ResolvedCoverage
	errs     map[uuid.UUID]error
}

func (m *mockPreviewer) PreviewDefault(_ context.Context, plan *insurance.Plan, category string) (insurance.ResolvedCoverage, error) {
	if err := m.errs[plan.ID]; err != nil {
		return insurance.SelfPay(category), err
	}
	rc, ok := m.outcomes[plan.ID]
	if !ok {
		return insurance.SelfPay(category), nil
	}
	return rc, nil
}

type captureSink struct {
	events []NewItemCoverageEvent
	err    error
}

func (s *captureSink) NewItemCoverage(_ context.Context, ev NewItemCoverageEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func plan(name string) *insurance.Plan {
	return &insurance.Plan{ID: uuid.New(), Name: name, IsActive: true}
}

func covered(percent float64) insurance.ResolvedCoverage {
	return insurance.ResolvedCoverage{
		Source:        insurance.SourceSystemDefault,
		CoverageType:  insurance.CoveragePercentage,
		CoverageValue: percent,
		IsCovered:     percent > 0,
	}
}

func TestItemCreatedEmitsPerCoveringPlan(t *testing.T) {
	pGold := plan("Gold")
	pStrict := plan("Strict")
	pZero := plan("Zero")

	previewer := &mockPreviewer{outcomes: map[uuid.UUID]insurance.ResolvedCoverage{
		pGold.ID: covered(80),
		// pStrict previews as self-pay (requires explicit approval).
		pZero.ID: covered(0),
	}}
	sink := &captureSink{}
	n := NewNotifier(&mockPlanSource{plans: []*insurance.Plan{pGold, pStrict, pZero}}, previewer, sink, zerolog.Nop())

	item := &Item{ID: uuid.New(), ItemType: ItemDrug, Code: "AMOX-250", Name: "Amoxicillin 250mg"}
	if err := n.ItemCreated(context.Background(), item); err != nil {
		t.Fatalf("ItemCreated: %v", err)
	}

	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want only the covering plan", len(sink.events))
	}
	ev := sink.events[0]
	if ev.PlanID != pGold.ID || ev.PlanName != "Gold" {
		t.Errorf("unexpected plan on event: %+v", ev)
	}
	if ev.DefaultCoveragePercent != 80 {
		t.Errorf("percent = %v, want 80", ev.DefaultCoveragePercent)
	}
	if ev.ItemCode != "AMOX-250" || ev.ItemID != item.ID {
		t.Errorf("event does not name the item: %+v", ev)
	}
}

func TestItemCreatedSinkFailureIsSwallowed(t *testing.T) {
	p := plan("Gold")
	previewer := &mockPreviewer{outcomes: map[uuid.UUID]insurance.ResolvedCoverage{p.ID: covered(80)}}
	sink := &captureSink{err: errors.New("smtp down")}
	n := NewNotifier(&mockPlanSource{plans: []*insurance.Plan{p}}, previewer, sink, zerolog.Nop())

	item := &Item{ID: uuid.New(), ItemType: ItemDrug, Code: "X", Name: "X"}
	if err := n.ItemCreated(context.Background(), item); err != nil {
		t.Errorf("sink failure must not propagate: %v", err)
	}
}

func TestItemCreatedPreviewFailureSkipsPlan(t *testing.T) {
	bad := plan("Broken")
	good := plan("Gold")
	previewer := &mockPreviewer{
		outcomes: map[uuid.UUID]insurance.ResolvedCoverage{good.ID: covered(50)},
		errs:     map[uuid.UUID]error{bad.ID: errors.New("repo down")},
	}
	sink := &captureSink{}
	n := NewNotifier(&mockPlanSource{plans: []*insurance.Plan{bad, good}}, previewer, sink, zerolog.Nop())

	if err := n.ItemCreated(context.Background(), &Item{ID: uuid.New(), ItemType: ItemLabService, Code: "FBC", Name: "Full blood count"}); err != nil {
		t.Fatalf("ItemCreated: %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].PlanID != good.ID {
		t.Errorf("expected only the healthy plan's event, got %d", len(sink.events))
	}
}
