package pricing

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perkline/perkline/internal/domain/money"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) ExchangeRate(ctx context.Context) (ExchangeRate, error) {
	var (
		out ExchangeRate
		raw string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT value::text, updated_by, updated_at FROM exchange_rate WHERE id = 1
	`).Scan(&raw, &out.UpdatedBy, &out.UpdatedAt)
	if err != nil {
		return out, err
	}
	out.Value, err = money.FromNumeric(raw)
	return out, err
}

func (r *Repo) SetExchangeRateTx(ctx context.Context, tx pgx.Tx, value string, updatedBy string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE exchange_rate SET value = $1::numeric, updated_by = $2, updated_at = $3 WHERE id = 1
	`, value, updatedBy, at)
	return err
}

func (r *Repo) Pool() *pgxpool.Pool { return r.pool }

func (r *Repo) CreateProductTypeTx(ctx context.Context, tx pgx.Tx, name string, marginBps int64) (*ProductType, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO product_types (name, margin_bps) VALUES ($1,$2)
		RETURNING id, name, margin_bps, created_at
	`, name, marginBps)
	var p ProductType
	if err := row.Scan(&p.ID, &p.Name, &p.MarginBps, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) GetProductType(ctx context.Context, id int64) (*ProductType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, margin_bps, created_at FROM product_types WHERE id = $1
	`, id)
	var p ProductType
	if err := row.Scan(&p.ID, &p.Name, &p.MarginBps, &p.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repo) SetMarginTx(ctx context.Context, tx pgx.Tx, id int64, marginBps int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE product_types SET margin_bps = $2 WHERE id = $1
	`, id, marginBps)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) ListProductTypes(ctx context.Context) ([]ProductType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, margin_bps, created_at FROM product_types ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductType
	for rows.Next() {
		var p ProductType
		if err := rows.Scan(&p.ID, &p.Name, &p.MarginBps, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
