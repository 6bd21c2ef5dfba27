package tariff

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

// =========== Tariff Repository ===========

type tariffRepoPG struct{ pool *pgxpool.Pool }

func NewTariffRepoPG(pool *pgxpool.Pool) TariffRepository { return &tariffRepoPG{pool: pool} }

const tariffCols = `id, code, name, category, price, is_active, created_at, updated_at`

func scanTariff(row pgx.Row) (*Tariff, error) {
	var t Tariff
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Category, &t.Price, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &t, err
}

func (r *tariffRepoPG) Create(ctx context.Context, t *Tariff) error {
	t.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO tariffs (id, code, name, category, price, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.Code, t.Name, t.Category, t.Price, t.IsActive)
	return err
}

func (r *tariffRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Tariff, error) {
	return scanTariff(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+tariffCols+` FROM tariffs WHERE id = $1`, id))
}

func (r *tariffRepoPG) GetByCode(ctx context.Context, code string) (*Tariff, error) {
	return scanTariff(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+tariffCols+` FROM tariffs WHERE code = $1`, code))
}

func (r *tariffRepoPG) UpsertByCode(ctx context.Context, t *Tariff) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	row := connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO tariffs (id, code, name, category, price, is_active)
		VALUES ($1,$2,$3,$4,$5,true)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category,
			price = EXCLUDED.price, is_active = true, updated_at = NOW()
		RETURNING id`,
		t.ID, t.Code, t.Name, t.Category, t.Price)
	return row.Scan(&t.ID)
}

func (r *tariffRepoPG) Update(ctx context.Context, t *Tariff) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE tariffs SET name=$2, category=$3, price=$4, is_active=$5, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.Name, t.Category, t.Price, t.IsActive)
	return err
}

func (r *tariffRepoPG) List(ctx context.Context, category string, limit, offset int) ([]*Tariff, int, error) {
	conn := connFor(ctx, r.pool)
	where := ``
	args := []interface{}{limit, offset}
	if category != "" {
		where = ` WHERE category = $3`
		args = append(args, category)
	}
	var total int
	countArgs := args[2:]
	countWhere := ""
	if category != "" {
		countWhere = ` WHERE category = $1`
	}
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM tariffs`+countWhere, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx,
		`SELECT `+tariffCols+` FROM tariffs`+where+` ORDER BY code LIMIT $1 OFFSET $2`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Tariff
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// =========== Mapping Repository ===========

type mappingRepoPG struct{ pool *pgxpool.Pool }

func NewMappingRepoPG(pool *pgxpool.Pool) MappingRepository { return &mappingRepoPG{pool: pool} }

const mappingCols = `id, item_type, item_id, tariff_id, is_active, created_at`

func scanMapping(row pgx.Row) (*ItemMapping, error) {
	var m ItemMapping
	err := row.Scan(&m.ID, &m.ItemType, &m.ItemID, &m.TariffID, &m.IsActive, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &m, err
}

func (r *mappingRepoPG) Create(ctx context.Context, m *ItemMapping) error {
	m.ID = uuid.New()
	m.IsActive = true
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO item_mappings (id, item_type, item_id, tariff_id, is_active)
		VALUES ($1,$2,$3,$4,true)`,
		m.ID, m.ItemType, m.ItemID, m.TariffID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateMapping
	}
	return err
}

func (r *mappingRepoPG) FindByItem(ctx context.Context, itemType string, itemID uuid.UUID) (*ItemMapping, error) {
	return scanMapping(connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT `+mappingCols+` FROM item_mappings
		WHERE item_type = $1 AND item_id = $2 AND is_active`, itemType, itemID))
}

func (r *mappingRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE item_mappings SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mappingRepoPG) ListByTariff(ctx context.Context, tariffID uuid.UUID) ([]*ItemMapping, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT `+mappingCols+` FROM item_mappings
		WHERE tariff_id = $1 AND is_active ORDER BY created_at`, tariffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ItemMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
