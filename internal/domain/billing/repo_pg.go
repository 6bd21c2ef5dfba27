package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justdick/hms-billing/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Charge Repository ===========

type chargeRepoPG struct{ pool *pgxpool.Pool }

func NewChargeRepoPG(pool *pgxpool.Pool) ChargeRepository { return &chargeRepoPG{pool: pool} }

const chargeCols = `id, checkin_id, patient_id, service_type, service_code, description,
	quantity, amount, covered_amount, tariff_amount, coverage_source, status,
	idempotency_key, charged_at, paid_at, voided_at`

func scanCharge(row pgx.Row) (*Charge, error) {
	var c Charge
	err := row.Scan(&c.ID, &c.CheckinID, &c.PatientID, &c.ServiceType, &c.ServiceCode, &c.Description,
		&c.Quantity, &c.Amount, &c.CoveredAmount, &c.TariffAmount, &c.CoverageSource, &c.Status,
		&c.IdempotencyKey, &c.ChargedAt, &c.PaidAt, &c.VoidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *chargeRepoPG) Create(ctx context.Context, c *Charge) error {
	c.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO charges (id, checkin_id, patient_id, service_type, service_code, description,
			quantity, amount, covered_amount, tariff_amount, coverage_source, status, idempotency_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		c.ID, c.CheckinID, c.PatientID, c.ServiceType, c.ServiceCode, c.Description,
		c.Quantity, c.Amount, c.CoveredAmount, c.TariffAmount, c.CoverageSource, c.Status, c.IdempotencyKey)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyCharged
	}
	return err
}

func (r *chargeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Charge, error) {
	return scanCharge(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+chargeCols+` FROM charges WHERE id = $1`, id))
}

func (r *chargeRepoPG) GetByKey(ctx context.Context, checkinID uuid.UUID, key string) (*Charge, error) {
	return scanCharge(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+chargeCols+` FROM charges WHERE checkin_id = $1 AND idempotency_key = $2`,
		checkinID, key))
}

func (r *chargeRepoPG) queryCharges(ctx context.Context, sql string, args ...interface{}) ([]*Charge, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *chargeRepoPG) ListPending(ctx context.Context, checkinID uuid.UUID, serviceType, serviceCode string) ([]*Charge, error) {
	if serviceCode != "" {
		return r.queryCharges(ctx, `
			SELECT `+chargeCols+` FROM charges
			WHERE checkin_id = $1 AND service_type = $2 AND service_code = $3 AND status = $4
			ORDER BY charged_at`, checkinID, serviceType, serviceCode, ChargePending)
	}
	return r.queryCharges(ctx, `
		SELECT `+chargeCols+` FROM charges
		WHERE checkin_id = $1 AND service_type = $2 AND status = $3
		ORDER BY charged_at`, checkinID, serviceType, ChargePending)
}

func (r *chargeRepoPG) ListByCheckin(ctx context.Context, checkinID uuid.UUID) ([]*Charge, error) {
	return r.queryCharges(ctx, `
		SELECT `+chargeCols+` FROM charges
		WHERE checkin_id = $1 ORDER BY charged_at`, checkinID)
}

func (r *chargeRepoPG) MarkPaid(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE charges SET status = $2, paid_at = NOW()
		WHERE id = $1 AND status = $3`, id, ChargePaid, ChargePending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *chargeRepoPG) Void(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE charges SET status = $2, voided_at = NOW()
		WHERE id = $1 AND status = $3`, id, ChargeVoid, ChargePending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// =========== Gate Rule Repository ===========

type gateRuleRepoPG struct{ pool *pgxpool.Pool }

func NewGateRuleRepoPG(pool *pgxpool.Pool) GateRuleRepository { return &gateRuleRepoPG{pool: pool} }

const gateRuleCols = `id, service_type, service_code, emergency_override_allowed, is_active, created_at, updated_at`

func scanGateRule(row pgx.Row) (*ServiceChargeRule, error) {
	var sr ServiceChargeRule
	err := row.Scan(&sr.ID, &sr.ServiceType, &sr.ServiceCode, &sr.EmergencyOverrideAllowed,
		&sr.IsActive, &sr.CreatedAt, &sr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &sr, err
}

func (r *gateRuleRepoPG) Create(ctx context.Context, sr *ServiceChargeRule) error {
	sr.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO service_charge_rules (id, service_type, service_code, emergency_override_allowed, is_active)
		VALUES ($1,$2,$3,$4,$5)`,
		sr.ID, sr.ServiceType, sr.ServiceCode, sr.EmergencyOverrideAllowed, sr.IsActive)
	return err
}

func (r *gateRuleRepoPG) Update(ctx context.Context, sr *ServiceChargeRule) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE service_charge_rules SET emergency_override_allowed=$2, is_active=$3, updated_at=NOW()
		WHERE id = $1`,
		sr.ID, sr.EmergencyOverrideAllowed, sr.IsActive)
	return err
}

func (r *gateRuleRepoPG) FindRule(ctx context.Context, serviceType, serviceCode string) (*ServiceChargeRule, error) {
	// Exact-code rows sort before the null-code fallback.
	sr, err := scanGateRule(connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT `+gateRuleCols+` FROM service_charge_rules
		WHERE service_type = $1 AND is_active
		  AND (service_code = $2 OR service_code IS NULL)
		ORDER BY service_code NULLS LAST
		LIMIT 1`, serviceType, serviceCode))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return sr, err
}

func (r *gateRuleRepoPG) List(ctx context.Context) ([]*ServiceChargeRule, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT `+gateRuleCols+` FROM service_charge_rules
		ORDER BY service_type, service_code NULLS LAST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ServiceChargeRule
	for rows.Next() {
		sr, err := scanGateRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// =========== Override Repository ===========

type overrideRepoPG struct{ pool *pgxpool.Pool }

func NewOverrideRepoPG(pool *pgxpool.Pool) OverrideRepository { return &overrideRepoPG{pool: pool} }

const overrideCols = `id, checkin_id, service_type, service_code, authorized_by, reason, status, granted_at, expires_at`

func scanOverride(row pgx.Row) (*Override, error) {
	var o Override
	err := row.Scan(&o.ID, &o.CheckinID, &o.ServiceType, &o.ServiceCode, &o.AuthorizedBy,
		&o.Reason, &o.Status, &o.GrantedAt, &o.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &o, err
}

func (r *overrideRepoPG) Create(ctx context.Context, o *Override) error {
	o.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO billing_overrides (id, checkin_id, service_type, service_code,
			authorized_by, reason, status, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.ID, o.CheckinID, o.ServiceType, o.ServiceCode,
		o.AuthorizedBy, o.Reason, o.Status, o.ExpiresAt)
	return err
}

func (r *overrideRepoPG) ListActive(ctx context.Context, checkinID uuid.UUID) ([]*Override, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT `+overrideCols+` FROM billing_overrides
		WHERE checkin_id = $1 AND status = $2
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY granted_at DESC`, checkinID, OverrideActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *overrideRepoPG) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE billing_overrides SET status = $2 WHERE id = $1 AND status = $3`,
		id, OverrideRevoked, OverrideActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
