package token

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

func (r *Repo) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `
		SELECT balance::text FROM balances WHERE account = $1
	`, account).Scan(&raw)
	if err == pgx.ErrNoRows {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return money.FromNumeric(raw)
}

func (r *Repo) TotalSupply(ctx context.Context) (*big.Int, error) {
	var raw string
	if err := r.pool.QueryRow(ctx, `
		SELECT total::text FROM token_supply WHERE id = 1
	`).Scan(&raw); err != nil {
		return nil, err
	}
	return money.FromNumeric(raw)
}

// creditTx adds to an account balance, creating the row on first touch.
func (r *Repo) creditTx(ctx context.Context, tx pgx.Tx, account string, amount *big.Int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO balances (account, balance)
		VALUES ($1, $2::numeric)
		ON CONFLICT (account)
		DO UPDATE SET balance = balances.balance + EXCLUDED.balance
	`, account, money.Numeric(amount))
	return err
}

// debitTx subtracts from an account balance; the guard keeps balances
// non-negative.
func (r *Repo) debitTx(ctx context.Context, tx pgx.Tx, account string, amount *big.Int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE balances
		SET balance = balance - $2::numeric
		WHERE account = $1 AND balance >= $2::numeric
	`, account, money.Numeric(amount))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// TransferTx moves amount between accounts inside an existing transaction,
// so callers from other ledgers can compose it with their own writes.
func (r *Repo) TransferTx(ctx context.Context, tx pgx.Tx, from, to string, amount *big.Int) error {
	if err := r.debitTx(ctx, tx, from, amount); err != nil {
		return err
	}
	return r.creditTx(ctx, tx, to, amount)
}

// MintTx credits an account and grows total supply by the same amount, so
// sum(balances) == total_supply holds at every commit point.
func (r *Repo) MintTx(ctx context.Context, tx pgx.Tx, to string, amount *big.Int) error {
	if err := r.creditTx(ctx, tx, to, amount); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE token_supply SET total = total + $1::numeric WHERE id = 1
	`, money.Numeric(amount))
	return err
}

// BurnTx debits an account and shrinks total supply by the same amount.
func (r *Repo) BurnTx(ctx context.Context, tx pgx.Tx, from string, amount *big.Int) error {
	if err := r.debitTx(ctx, tx, from, amount); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE token_supply SET total = total - $1::numeric WHERE id = 1
	`, money.Numeric(amount))
	return err
}

/* Legacy batches */

func (r *Repo) CreateLegacyBatchTx(ctx context.Context, tx pgx.Tx, b LegacyBatch) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO legacy_batches (product_type, cost_fiat, rate, total_units, remaining_units, code, active)
		VALUES ($1, $2::numeric, $3::numeric, $4, $4, $5, true)
		RETURNING id
	`, b.ProductType, money.Numeric(b.CostFiat), money.Numeric(b.Rate), b.TotalUnits, b.Code).Scan(&id)
	return id, err
}

func scanLegacyBatch(row pgx.Row) (LegacyBatch, error) {
	var (
		b        LegacyBatch
		cost     string
		rate     string
		deactive *time.Time
	)
	err := row.Scan(&b.ID, &b.ProductType, &cost, &rate, &b.TotalUnits, &b.RemainingUnits, &b.Code, &b.Active, &b.CreatedAt, &deactive)
	if err != nil {
		return b, err
	}
	if b.CostFiat, err = money.FromNumeric(cost); err != nil {
		return b, err
	}
	if b.Rate, err = money.FromNumeric(rate); err != nil {
		return b, err
	}
	b.DeactivatedAt = deactive
	return b, nil
}

const legacyBatchCols = `id, product_type, cost_fiat::text, rate::text, total_units, remaining_units, code, active, created_at, deactivated_at`

// GetLegacyBatch returns a zeroed record when the id is unknown; reads are
// tolerant by contract.
func (r *Repo) GetLegacyBatch(ctx context.Context, id int64) (LegacyBatch, error) {
	b, err := scanLegacyBatch(r.pool.QueryRow(ctx, `
		SELECT `+legacyBatchCols+` FROM legacy_batches WHERE id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return LegacyBatch{CostFiat: new(big.Int), Rate: new(big.Int)}, nil
	}
	return b, err
}

func (r *Repo) GetLegacyBatchForUpdateTx(ctx context.Context, tx pgx.Tx, id int64) (LegacyBatch, bool, error) {
	b, err := scanLegacyBatch(tx.QueryRow(ctx, `
		SELECT `+legacyBatchCols+` FROM legacy_batches WHERE id = $1 FOR UPDATE
	`, id))
	if err == pgx.ErrNoRows {
		return b, false, nil
	}
	if err != nil {
		return b, false, err
	}
	return b, true, nil
}

// DepleteLegacyBatchTx decrements the batch counter, deactivating the batch
// when it empties. The guard makes over-redemption impossible regardless of
// what the caller read.
func (r *Repo) DepleteLegacyBatchTx(ctx context.Context, tx pgx.Tx, id int64, units int64, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE legacy_batches
		SET remaining_units = remaining_units - $2,
		    active = CASE WHEN remaining_units - $2 = 0 THEN false ELSE active END,
		    deactivated_at = CASE WHEN remaining_units - $2 = 0 THEN $3 ELSE deactivated_at END
		WHERE id = $1 AND active AND remaining_units >= $2
	`, id, units, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *Repo) InsertRedemptionTx(ctx context.Context, tx pgx.Tx, account string, batchID, units int64, tokens *big.Int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO token_redemptions (account, batch_id, units, tokens)
		VALUES ($1,$2,$3,$4::numeric)
	`, account, batchID, units, money.Numeric(tokens))
	return err
}
