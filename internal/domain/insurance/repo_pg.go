package insurance

import (
	"context"
	"errors"
	"time"

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

// =========== Plan Repository ===========

type planRepoPG struct{ pool *pgxpool.Pool }

func NewPlanRepoPG(pool *pgxpool.Pool) PlanRepository { return &planRepoPG{pool: pool} }

const planCols = `id, provider_id, provider_name, name, code, is_state_scheme,
	require_explicit_approval_for_new_items,
	default_consultation_coverage, default_drug_coverage,
	default_lab_coverage, default_procedure_coverage,
	is_active, created_at, updated_at`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.ProviderID, &p.ProviderName, &p.Name, &p.Code, &p.IsStateScheme,
		&p.RequireExplicitApproval,
		&p.DefaultConsultationPct, &p.DefaultDrugPct,
		&p.DefaultLabPct, &p.DefaultProcedurePct,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *planRepoPG) Create(ctx context.Context, p *Plan) error {
	p.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO insurance_plans (id, provider_id, provider_name, name, code, is_state_scheme,
			require_explicit_approval_for_new_items,
			default_consultation_coverage, default_drug_coverage,
			default_lab_coverage, default_procedure_coverage, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.ProviderID, p.ProviderName, p.Name, p.Code, p.IsStateScheme,
		p.RequireExplicitApproval,
		p.DefaultConsultationPct, p.DefaultDrugPct,
		p.DefaultLabPct, p.DefaultProcedurePct, p.IsActive)
	return err
}

func (r *planRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Plan, error) {
	return scanPlan(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+planCols+` FROM insurance_plans WHERE id = $1`, id))
}

func (r *planRepoPG) GetByCode(ctx context.Context, code string) (*Plan, error) {
	return scanPlan(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+planCols+` FROM insurance_plans WHERE code = $1`, code))
}

func (r *planRepoPG) Update(ctx context.Context, p *Plan) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE insurance_plans SET provider_name=$2, name=$3, is_state_scheme=$4,
			require_explicit_approval_for_new_items=$5,
			default_consultation_coverage=$6, default_drug_coverage=$7,
			default_lab_coverage=$8, default_procedure_coverage=$9,
			is_active=$10, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.ProviderName, p.Name, p.IsStateScheme,
		p.RequireExplicitApproval,
		p.DefaultConsultationPct, p.DefaultDrugPct,
		p.DefaultLabPct, p.DefaultProcedurePct, p.IsActive)
	return err
}

func (r *planRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE insurance_plans SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *planRepoPG) List(ctx context.Context, limit, offset int) ([]*Plan, int, error) {
	conn := connFor(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM insurance_plans`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx,
		`SELECT `+planCols+` FROM insurance_plans ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var plans []*Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, 0, err
		}
		plans = append(plans, p)
	}
	return plans, total, rows.Err()
}

func (r *planRepoPG) ListActive(ctx context.Context) ([]*Plan, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT `+planCols+` FROM insurance_plans WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var plans []*Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// =========== Rule Repository ===========

type ruleRepoPG struct{ pool *pgxpool.Pool }

func NewRuleRepoPG(pool *pgxpool.Pool) RuleRepository { return &ruleRepoPG{pool: pool} }

const ruleCols = `id, plan_id, category, item_code, coverage_type, coverage_value,
	copay_amount, is_unmapped, requires_preauthorization, max_quantity_per_visit,
	max_amount_per_visit, effective_from, effective_to, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*CoverageRule, error) {
	var cr CoverageRule
	err := row.Scan(&cr.ID, &cr.PlanID, &cr.Category, &cr.ItemCode, &cr.CoverageType, &cr.CoverageValue,
		&cr.CopayAmount, &cr.IsUnmapped, &cr.RequiresPreauthorization, &cr.MaxQuantityPerVisit,
		&cr.MaxAmountPerVisit, &cr.EffectiveFrom, &cr.EffectiveTo, &cr.IsActive,
		&cr.CreatedAt, &cr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &cr, err
}

func (r *ruleRepoPG) queryRules(ctx context.Context, sql string, args ...interface{}) ([]*CoverageRule, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []*CoverageRule
	for rows.Next() {
		cr, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, cr)
	}
	return rules, rows.Err()
}

func (r *ruleRepoPG) Create(ctx context.Context, cr *CoverageRule) error {
	cr.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO coverage_rules (id, plan_id, category, item_code, coverage_type,
			coverage_value, copay_amount, is_unmapped, requires_preauthorization,
			max_quantity_per_visit, max_amount_per_visit, effective_from, effective_to, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		cr.ID, cr.PlanID, cr.Category, cr.ItemCode, cr.CoverageType,
		cr.CoverageValue, cr.CopayAmount, cr.IsUnmapped, cr.RequiresPreauthorization,
		cr.MaxQuantityPerVisit, cr.MaxAmountPerVisit, cr.EffectiveFrom, cr.EffectiveTo, cr.IsActive)
	return err
}

func (r *ruleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CoverageRule, error) {
	return scanRule(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+ruleCols+` FROM coverage_rules WHERE id = $1`, id))
}

func (r *ruleRepoPG) Update(ctx context.Context, cr *CoverageRule) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE coverage_rules SET coverage_type=$2, coverage_value=$3, copay_amount=$4,
			is_unmapped=$5, requires_preauthorization=$6, max_quantity_per_visit=$7,
			max_amount_per_visit=$8, effective_from=$9, effective_to=$10, is_active=$11,
			updated_at=NOW()
		WHERE id = $1`,
		cr.ID, cr.CoverageType, cr.CoverageValue, cr.CopayAmount,
		cr.IsUnmapped, cr.RequiresPreauthorization, cr.MaxQuantityPerVisit,
		cr.MaxAmountPerVisit, cr.EffectiveFrom, cr.EffectiveTo, cr.IsActive)
	return err
}

func (r *ruleRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE coverage_rules SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ruleRepoPG) ListByPlan(ctx context.Context, planID uuid.UUID, limit, offset int) ([]*CoverageRule, int, error) {
	conn := connFor(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM coverage_rules WHERE plan_id = $1`, planID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rules, err := r.queryRules(ctx, `
		SELECT `+ruleCols+` FROM coverage_rules
		WHERE plan_id = $1
		ORDER BY category, item_code NULLS LAST LIMIT $2 OFFSET $3`, planID, limit, offset)
	return rules, total, err
}

func (r *ruleRepoPG) FindItemRules(ctx context.Context, planID uuid.UUID, category, itemCode string) ([]*CoverageRule, error) {
	return r.queryRules(ctx, `
		SELECT `+ruleCols+` FROM coverage_rules
		WHERE plan_id = $1 AND category = $2 AND item_code = $3 AND is_active
		ORDER BY updated_at DESC`, planID, category, itemCode)
}

func (r *ruleRepoPG) FindCategoryRules(ctx context.Context, planID uuid.UUID, category string) ([]*CoverageRule, error) {
	return r.queryRules(ctx, `
		SELECT `+ruleCols+` FROM coverage_rules
		WHERE plan_id = $1 AND category = $2 AND item_code IS NULL AND NOT is_unmapped AND is_active
		ORDER BY updated_at DESC`, planID, category)
}

func (r *ruleRepoPG) FindUnmappedRules(ctx context.Context, planID uuid.UUID, category string) ([]*CoverageRule, error) {
	return r.queryRules(ctx, `
		SELECT `+ruleCols+` FROM coverage_rules
		WHERE plan_id = $1 AND category = $2 AND is_unmapped AND is_active
		ORDER BY updated_at DESC`, planID, category)
}

// =========== Enrollment Repository ===========

type enrollmentRepoPG struct{ pool *pgxpool.Pool }

func NewEnrollmentRepoPG(pool *pgxpool.Pool) EnrollmentRepository { return &enrollmentRepoPG{pool: pool} }

const enrollmentCols = `id, patient_id, plan_id, policy_number, member_number,
	coverage_start_date, coverage_end_date, status, created_at, updated_at`

func scanEnrollment(row pgx.Row) (*PatientInsurance, error) {
	var pi PatientInsurance
	err := row.Scan(&pi.ID, &pi.PatientID, &pi.PlanID, &pi.PolicyNumber, &pi.MemberNumber,
		&pi.CoverageStartDate, &pi.CoverageEndDate, &pi.Status, &pi.CreatedAt, &pi.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &pi, err
}

func (r *enrollmentRepoPG) Create(ctx context.Context, pi *PatientInsurance) error {
	pi.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient_insurance (id, patient_id, plan_id, policy_number, member_number,
			coverage_start_date, coverage_end_date, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		pi.ID, pi.PatientID, pi.PlanID, pi.PolicyNumber, pi.MemberNumber,
		pi.CoverageStartDate, pi.CoverageEndDate, pi.Status)
	return err
}

func (r *enrollmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PatientInsurance, error) {
	return scanEnrollment(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+enrollmentCols+` FROM patient_insurance WHERE id = $1`, id))
}

func (r *enrollmentRepoPG) Update(ctx context.Context, pi *PatientInsurance) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE patient_insurance SET policy_number=$2, member_number=$3,
			coverage_start_date=$4, coverage_end_date=$5, status=$6, updated_at=NOW()
		WHERE id = $1`,
		pi.ID, pi.PolicyNumber, pi.MemberNumber,
		pi.CoverageStartDate, pi.CoverageEndDate, pi.Status)
	return err
}

func (r *enrollmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*PatientInsurance, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT `+enrollmentCols+` FROM patient_insurance
		WHERE patient_id = $1 ORDER BY coverage_start_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*PatientInsurance
	for rows.Next() {
		pi, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pi)
	}
	return out, rows.Err()
}

func (r *enrollmentRepoPG) FindInForce(ctx context.Context, patientID uuid.UUID, at time.Time) (*PatientInsurance, error) {
	pi, err := scanEnrollment(connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT `+enrollmentCols+` FROM patient_insurance
		WHERE patient_id = $1 AND status = $2
		  AND coverage_start_date <= $3
		  AND (coverage_end_date IS NULL OR coverage_end_date >= $3)
		ORDER BY coverage_start_date DESC
		LIMIT 1`, patientID, EnrollmentActive, at))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return pi, err
}
