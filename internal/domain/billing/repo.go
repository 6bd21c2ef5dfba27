package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a ledger row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyCharged is returned when a charge with the same natural
	// key already exists for the encounter.
	ErrAlreadyCharged = errors.New("already charged for this event")
	// ErrNotPending is returned when a status transition is attempted on
	// a charge that is not pending.
	ErrNotPending = errors.New("charge is not pending")
)

// ChargeRepository is the charge ledger. Create enforces the at-most-once
// invariant through the unique (checkin_id, idempotency_key) constraint
// and maps a violation to ErrAlreadyCharged.
type ChargeRepository interface {
	Create(ctx context.Context, c *Charge) error
	GetByID(ctx context.Context, id uuid.UUID) (*Charge, error)
	GetByKey(ctx context.Context, checkinID uuid.UUID, key string) (*Charge, error)
	// ListPending returns pending charges for the encounter scoped to a
	// service type, further narrowed to one code when given.
	ListPending(ctx context.Context, checkinID uuid.UUID, serviceType, serviceCode string) ([]*Charge, error)
	ListByCheckin(ctx context.Context, checkinID uuid.UUID) ([]*Charge, error)
	MarkPaid(ctx context.Context, id uuid.UUID) error
	Void(ctx context.Context, id uuid.UUID) error
}

// GateRuleRepository stores per-service gate configuration.
type GateRuleRepository interface {
	Create(ctx context.Context, r *ServiceChargeRule) error
	Update(ctx context.Context, r *ServiceChargeRule) error
	// FindRule returns the active rule for the exact (type, code) pair,
	// falling back to the type-wide row with a null code, or (nil, nil).
	FindRule(ctx context.Context, serviceType, serviceCode string) (*ServiceChargeRule, error)
	List(ctx context.Context) ([]*ServiceChargeRule, error)
}

// OverrideRepository stores override provenance records.
type OverrideRepository interface {
	Create(ctx context.Context, o *Override) error
	ListActive(ctx context.Context, checkinID uuid.UUID) ([]*Override, error)
	Revoke(ctx context.Context, id uuid.UUID) error
}
