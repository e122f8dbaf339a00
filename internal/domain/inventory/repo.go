package inventory

import (
	"context"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perkline/perkline/internal/domain/money"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Pool() *pgxpool.Pool { return r.pool }

const batchCols = `id, product_type, cost_fiat::text, margin_bps, regular_rate::text, discounted_rate::text,
	total_stock, remaining_stock, code, lab_ref, active, created_at, deactivated_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var (
		b          Batch
		cost       string
		regular    string
		discounted string
	)
	err := row.Scan(&b.ID, &b.ProductType, &cost, &b.MarginBps, &regular, &discounted,
		&b.TotalStock, &b.RemainingStock, &b.Code, &b.LabRef, &b.Active, &b.CreatedAt, &b.DeactivatedAt)
	if err != nil {
		return b, err
	}
	if b.CostFiat, err = money.FromNumeric(cost); err != nil {
		return b, err
	}
	if b.RegularRate, err = money.FromNumeric(regular); err != nil {
		return b, err
	}
	if b.DiscountedRate, err = money.FromNumeric(discounted); err != nil {
		return b, err
	}
	return b, nil
}

func (r *Repo) CreateTx(ctx context.Context, tx pgx.Tx, b Batch) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO batches
			(product_type, cost_fiat, margin_bps, regular_rate, discounted_rate,
			 total_stock, remaining_stock, code, lab_ref, active)
		VALUES ($1, $2::numeric, $3, $4::numeric, $5::numeric, $6, $6, $7, $8, true)
		RETURNING id
	`, b.ProductType, money.Numeric(b.CostFiat), b.MarginBps,
		money.Numeric(b.RegularRate), money.Numeric(b.DiscountedRate),
		b.TotalStock, b.Code, b.LabRef).Scan(&id)
	return id, err
}

// Get returns a zeroed record for unknown ids; validating operations use
// GetForUpdateTx instead.
func (r *Repo) Get(ctx context.Context, id int64) (Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `
		SELECT `+batchCols+` FROM batches WHERE id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return Batch{CostFiat: new(big.Int), RegularRate: new(big.Int), DiscountedRate: new(big.Int)}, nil
	}
	return b, err
}

func (r *Repo) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id int64) (Batch, bool, error) {
	b, err := scanBatch(tx.QueryRow(ctx, `
		SELECT `+batchCols+` FROM batches WHERE id = $1 FOR UPDATE
	`, id))
	if err == pgx.ErrNoRows {
		return b, false, nil
	}
	if err != nil {
		return b, false, err
	}
	return b, true, nil
}

func (r *Repo) MaxID(ctx context.Context) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM batches`).Scan(&id)
	return id, err
}

func (r *Repo) List(ctx context.Context) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+batchCols+` FROM batches ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) UpdatePricingTx(ctx context.Context, tx pgx.Tx, id int64, costFiat *big.Int, marginBps int64, regular, discounted *big.Int) error {
	_, err := tx.Exec(ctx, `
		UPDATE batches
		SET cost_fiat = $2::numeric, margin_bps = $3,
		    regular_rate = $4::numeric, discounted_rate = $5::numeric
		WHERE id = $1
	`, id, money.Numeric(costFiat), marginBps, money.Numeric(regular), money.Numeric(discounted))
	return err
}

func (r *Repo) SetRatesTx(ctx context.Context, tx pgx.Tx, id int64, regular, discounted *big.Int) error {
	_, err := tx.Exec(ctx, `
		UPDATE batches SET regular_rate = $2::numeric, discounted_rate = $3::numeric WHERE id = $1
	`, id, money.Numeric(regular), money.Numeric(discounted))
	return err
}

// AdjustStockTx recomputes remaining stock from the new total while keeping
// the amount already redeemed fixed. The guard rejects totals below the
// redeemed amount.
func (r *Repo) AdjustStockTx(ctx context.Context, tx pgx.Tx, id int64, newTotal int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE batches
		SET remaining_stock = $2 - (total_stock - remaining_stock),
		    total_stock = $2
		WHERE id = $1 AND $2 >= total_stock - remaining_stock
	`, id, newTotal)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockBelowRedeemed
	}
	return nil
}

// DepleteTx takes qty units out of the batch, deactivating it on reaching
// zero. The guard is the conservation law: stock can never go negative.
func (r *Repo) DepleteTx(ctx context.Context, tx pgx.Tx, id int64, qty int64, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE batches
		SET remaining_stock = remaining_stock - $2,
		    active = CASE WHEN remaining_stock - $2 = 0 THEN false ELSE active END,
		    deactivated_at = CASE WHEN remaining_stock - $2 = 0 THEN $3 ELSE deactivated_at END
		WHERE id = $1 AND active AND remaining_stock >= $2
	`, id, qty, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *Repo) SetActiveTx(ctx context.Context, tx pgx.Tx, id int64, active bool, at time.Time) error {
	var err error
	if active {
		_, err = tx.Exec(ctx, `
			UPDATE batches SET active = true, deactivated_at = NULL WHERE id = $1
		`, id)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE batches SET active = false, deactivated_at = $2 WHERE id = $1
		`, id, at)
	}
	return err
}

// InsertRedemptionTx appends the depletion record and bumps the per-account
// per-batch counter.
func (r *Repo) InsertRedemptionTx(ctx context.Context, tx pgx.Tx, rec Redemption) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO batch_redemptions (account, batch_id, quantity, discounted, tokens)
		VALUES ($1,$2,$3,$4,$5::numeric)
	`, rec.Account, rec.BatchID, rec.Quantity, rec.Discounted, money.Numeric(rec.Tokens)); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO batch_account_totals (batch_id, account, units)
		VALUES ($1,$2,$3)
		ON CONFLICT (batch_id, account)
		DO UPDATE SET units = batch_account_totals.units + EXCLUDED.units
	`, rec.BatchID, rec.Account, rec.Quantity)
	return err
}

// AccountRedeemed returns the per-account counter for a batch, zero when
// the pair has never redeemed.
func (r *Repo) AccountRedeemed(ctx context.Context, batchID int64, account string) (int64, error) {
	var units int64
	err := r.pool.QueryRow(ctx, `
		SELECT units FROM batch_account_totals WHERE batch_id = $1 AND account = $2
	`, batchID, account).Scan(&units)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return units, err
}
