package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justdick/hms-billing/internal/domain/insurance"
)

// PlanSource lists the plans a new item's default coverage must be
// previewed against.
type PlanSource interface {
	ListActive(ctx context.Context) ([]*insurance.Plan, error)
}

// DefaultPreviewer computes the coverage outcome a brand-new item would
// inherit under a plan. *insurance.Resolver is the production
// implementation.
type DefaultPreviewer interface {
	PreviewDefault(ctx context.Context, plan *insurance.Plan, category string) (insurance.ResolvedCoverage, error)
}

// NewItemCoverageEvent names a plan that would extend a non-trivial
// default to a newly created catalog item. It asks an administrator to
// acknowledge the default or create an item-specific exception.
type NewItemCoverageEvent struct {
	ItemID                 uuid.UUID `json:"item_id"`
	ItemType               string    `json:"item_type"`
	ItemCode               string    `json:"item_code"`
	ItemName               string    `json:"item_name"`
	PlanID                 uuid.UUID `json:"plan_id"`
	PlanName               string    `json:"plan_name"`
	DefaultCoveragePercent float64   `json:"default_coverage_percent"`
}

// EventSink receives coverage review events. The notification platform
// adapter is the production sink.
type EventSink interface {
	NewItemCoverage(ctx context.Context, ev NewItemCoverageEvent) error
}

// Notifier raises a reviewable notification for every active plan that
// would silently extend a category default to a new catalog item. The
// point is human acknowledgment: a non-trivial default applying to an
// unreviewed item is a financial-risk surface, not a convenience.
type Notifier struct {
	plans     PlanSource
	previewer DefaultPreviewer
	sink      EventSink
	logger    zerolog.Logger
}

func NewNotifier(plans PlanSource, previewer DefaultPreviewer, sink EventSink, logger zerolog.Logger) *Notifier {
	return &Notifier{plans: plans, previewer: previewer, sink: sink, logger: logger}
}

// ItemCreated previews the default outcome per active plan and emits an
// event for each plan whose default would cover the item at a non-zero
// percentage. Sink failures are logged and swallowed: notification
// delivery must never fail the catalog insert that triggered it.
func (n *Notifier) ItemCreated(ctx context.Context, item *Item) error {
	category, ok := CategoryForItemType[item.ItemType]
	if !ok {
		return nil
	}
	plans, err := n.plans.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, plan := range plans {
		rc, err := n.previewer.PreviewDefault(ctx, plan, category)
		if err != nil {
			n.logger.Error().Err(err).
				Str("plan_id", plan.ID.String()).
				Str("item_code", item.Code).
				Msg("default coverage preview failed")
			continue
		}
		if !rc.IsCovered || rc.CoverageValue == 0 {
			continue
		}
		ev := NewItemCoverageEvent{
			ItemID:                 item.ID,
			ItemType:               item.ItemType,
			ItemCode:               item.Code,
			ItemName:               item.Name,
			PlanID:                 plan.ID,
			PlanName:               plan.Name,
			DefaultCoveragePercent: rc.CoverageValue,
		}
		if err := n.sink.NewItemCoverage(ctx, ev); err != nil {
			n.logger.Error().Err(err).
				Str("plan_id", plan.ID.String()).
				Str("item_code", item.Code).
				Msg("new item coverage notification failed")
		}
	}
	return nil
}
