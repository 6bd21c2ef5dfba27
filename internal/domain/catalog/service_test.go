package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justdick/hms-billing/internal/domain/insurance"
)

type mockItemRepo struct {
	items map[uuid.UUID]*Item
}

func newMockItemRepo() *mockItemRepo {
	return &mockItemRepo{items: make(map[uuid.UUID]*Item)}
}

func (m *mockItemRepo) Create(_ context.Context, it *Item) error {
	for _, existing := range m.items {
		if existing.ItemType == it.ItemType && existing.Code == it.Code && existing.IsActive {
			return ErrDuplicateItem
		}
	}
	it.ID = uuid.New()
	m.items[it.ID] = it
	return nil
}

func (m *mockItemRepo) GetByID(_ context.Context, id uuid.UUID) (*Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return it, nil
}

func (m *mockItemRepo) GetByCode(_ context.Context, itemType, code string) (*Item, error) {
	for _, it := range m.items {
		if it.ItemType == itemType && it.Code == code && it.IsActive {
			return it, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockItemRepo) Update(_ context.Context, it *Item) error {
	if _, ok := m.items[it.ID]; !ok {
		return ErrNotFound
	}
	m.items[it.ID] = it
	return nil
}

func (m *mockItemRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.IsActive = false
	return nil
}

func (m *mockItemRepo) List(_ context.Context, itemType string, limit, offset int) ([]*Item, int, error) {
	var out []*Item
	for _, it := range m.items {
		if itemType == "" || it.ItemType == itemType {
			out = append(out, it)
		}
	}
	return out, len(out), nil
}

type mockMapper struct {
	calls []string
	err   error
}

func (m *mockMapper) MapItem(_ context.Context, itemType string, itemID uuid.UUID, code string) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, itemType+":"+code)
	return nil
}

func newTestCatalog(coveringPercent float64) (*Service, *mockItemRepo, *mockMapper, *captureSink) {
	items := newMockItemRepo()
	mapper := &mockMapper{}
	sink := &captureSink{}

	p := plan("Gold")
	previewer := &mockPreviewer{outcomes: map[uuid.UUID]insurance.ResolvedCoverage{p.ID: covered(coveringPercent)}}
	notifier := NewNotifier(&mockPlanSource{plans: []*insurance.Plan{p}}, previewer, sink, zerolog.Nop())

	svc := NewService(items, mapper, notifier, zerolog.Nop())
	return svc, items, mapper, sink
}

func TestCreateItemMapsAndNotifies(t *testing.T) {
	svc, _, mapper, sink := newTestCatalog(80)
	ctx := context.Background()

	it := &Item{ItemType: ItemDrug, Code: "PARA-500", Name: "Paracetamol 500mg", UnitPrice: 1.5, TariffCode: "NHS-PARA"}
	if err := svc.CreateItem(ctx, it); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if !it.IsActive {
		t.Error("new items should be active")
	}
	if len(mapper.calls) != 1 || mapper.calls[0] != "drug:NHS-PARA" {
		t.Errorf("mapper calls = %v, want the auto-mapping", mapper.calls)
	}
	if len(sink.events) != 1 {
		t.Errorf("events = %d, want one coverage review notification", len(sink.events))
	}
}

func TestCreateItemWithoutTariffCodeSkipsMapping(t *testing.T) {
	svc, _, mapper, _ := newTestCatalog(0)
	if err := svc.CreateItem(context.Background(), &Item{ItemType: ItemLabService, Code: "FBC", Name: "Full blood count", UnitPrice: 8}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if len(mapper.calls) != 0 {
		t.Errorf("mapper calls = %v, want none", mapper.calls)
	}
}

func TestCreateItemMappingFailureDoesNotFailCreate(t *testing.T) {
	svc, items, mapper, _ := newTestCatalog(0)
	mapper.err = errors.New("no tariff for code")

	it := &Item{ItemType: ItemDrug, Code: "NEW", Name: "New drug", UnitPrice: 2, TariffCode: "MISSING"}
	if err := svc.CreateItem(context.Background(), it); err != nil {
		t.Fatalf("mapping failure must not fail the create: %v", err)
	}
	if len(items.items) != 1 {
		t.Error("item should be persisted despite the mapping failure")
	}
}

func TestCreateItemValidation(t *testing.T) {
	svc, _, _, _ := newTestCatalog(0)
	ctx := context.Background()

	if err := svc.CreateItem(ctx, &Item{ItemType: "gadget", Code: "X", Name: "x"}); err == nil {
		t.Error("expected error for invalid item type")
	}
	if err := svc.CreateItem(ctx, &Item{ItemType: ItemDrug, Name: "x"}); err == nil {
		t.Error("expected error for missing code")
	}
	if err := svc.CreateItem(ctx, &Item{ItemType: ItemDrug, Code: "X", Name: "x", UnitPrice: -1}); err == nil {
		t.Error("expected error for negative price")
	}
}

func TestImportItemsSkipsDuplicates(t *testing.T) {
	svc, items, _, _ := newTestCatalog(0)
	ctx := context.Background()

	created, err := svc.ImportItems(ctx, []*Item{
		{ItemType: ItemDrug, Code: "A", Name: "A", UnitPrice: 1},
		{ItemType: ItemDrug, Code: "B", Name: "B", UnitPrice: 2},
	})
	if err != nil || created != 2 {
		t.Fatalf("ImportItems: created=%d err=%v", created, err)
	}

	created, err = svc.ImportItems(ctx, []*Item{
		{ItemType: ItemDrug, Code: "A", Name: "A again", UnitPrice: 1},
		{ItemType: ItemDrug, Code: "C", Name: "C", UnitPrice: 3},
	})
	if err != nil {
		t.Fatalf("ImportItems: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1 (duplicate skipped)", created)
	}
	if len(items.items) != 3 {
		t.Errorf("item count = %d, want 3", len(items.items))
	}
}
