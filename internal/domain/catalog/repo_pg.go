package catalog

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

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository { return &itemRepoPG{pool: pool} }

const itemCols = `id, item_type, code, name, unit_price, tariff_code, is_active, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.ItemType, &it.Code, &it.Name, &it.UnitPrice, &it.TariffCode,
		&it.IsActive, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &it, err
}

func (r *itemRepoPG) Create(ctx context.Context, it *Item) error {
	it.ID = uuid.New()
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO catalog_items (id, item_type, code, name, unit_price, tariff_code, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		it.ID, it.ItemType, it.Code, it.Name, it.UnitPrice, it.TariffCode, it.IsActive)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateItem
	}
	return err
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return scanItem(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+itemCols+` FROM catalog_items WHERE id = $1`, id))
}

func (r *itemRepoPG) GetByCode(ctx context.Context, itemType, code string) (*Item, error) {
	return scanItem(connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+itemCols+` FROM catalog_items WHERE item_type = $1 AND code = $2 AND is_active`,
		itemType, code))
}

func (r *itemRepoPG) Update(ctx context.Context, it *Item) error {
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE catalog_items SET name=$2, unit_price=$3, tariff_code=$4, is_active=$5, updated_at=NOW()
		WHERE id = $1`,
		it.ID, it.Name, it.UnitPrice, it.TariffCode, it.IsActive)
	return err
}

func (r *itemRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE catalog_items SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *itemRepoPG) List(ctx context.Context, itemType string, limit, offset int) ([]*Item, int, error) {
	conn := connFor(ctx, r.pool)
	var total int
	if itemType != "" {
		if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_items WHERE item_type = $1`, itemType).Scan(&total); err != nil {
			return nil, 0, err
		}
	} else {
		if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_items`).Scan(&total); err != nil {
			return nil, 0, err
		}
	}

	var rows pgx.Rows
	var err error
	if itemType != "" {
		rows, err = conn.Query(ctx,
			`SELECT `+itemCols+` FROM catalog_items WHERE item_type = $1 ORDER BY code LIMIT $2 OFFSET $3`,
			itemType, limit, offset)
	} else {
		rows, err = conn.Query(ctx,
			`SELECT `+itemCols+` FROM catalog_items ORDER BY item_type, code LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, it)
	}
	return out, total, rows.Err()
}
