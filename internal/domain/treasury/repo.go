package treasury

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perkline/perkline/internal/domain/money"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Pool() *pgxpool.Pool { return r.pool }

func scanState(row pgx.Row) (State, error) {
	var (
		s                    State
		tok, stb, rm, rs, rp string
	)
	if err := row.Scan(&tok, &stb, &rm, &rs, &rp, &s.UpdatedAt); err != nil {
		return s, err
	}
	var err error
	if s.TokenBalance, err = money.FromNumeric(tok); err != nil {
		return s, err
	}
	if s.StableBalance, err = money.FromNumeric(stb); err != nil {
		return s, err
	}
	if s.RevenueMembership, err = money.FromNumeric(rm); err != nil {
		return s, err
	}
	if s.RevenueSale, err = money.FromNumeric(rs); err != nil {
		return s, err
	}
	s.RevenueProduct, err = money.FromNumeric(rp)
	return s, err
}

const stateCols = `token_balance::text, stable_balance::text, revenue_membership::text, revenue_sale::text, revenue_product::text, updated_at`

func (r *Repo) State(ctx context.Context) (State, error) {
	return scanState(r.pool.QueryRow(ctx, `
		SELECT `+stateCols+` FROM treasury WHERE id = 1
	`))
}

// StateForUpdateTx locks the treasury row; every mutating treasury
// operation takes this lock first so operations serialize.
func (r *Repo) StateForUpdateTx(ctx context.Context, tx pgx.Tx) (State, error) {
	return scanState(tx.QueryRow(ctx, `
		SELECT `+stateCols+` FROM treasury WHERE id = 1 FOR UPDATE
	`))
}

func (r *Repo) Buckets(ctx context.Context) ([]BucketState, error) {
	return r.buckets(ctx, r.pool)
}

func (r *Repo) BucketsTx(ctx context.Context, tx pgx.Tx) ([]BucketState, error) {
	return r.buckets(ctx, tx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repo) buckets(ctx context.Context, q querier) ([]BucketState, error) {
	rows, err := q.Query(ctx, `
		SELECT bucket, currency, allocated::text, spent::text FROM treasury_buckets ORDER BY bucket
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BucketState
	for rows.Next() {
		var (
			b          BucketState
			bucket     string
			currency   string
			alloc, spn string
		)
		if err := rows.Scan(&bucket, &currency, &alloc, &spn); err != nil {
			return nil, err
		}
		b.Bucket, b.Currency = Bucket(bucket), Currency(currency)
		if b.Allocated, err = money.FromNumeric(alloc); err != nil {
			return nil, err
		}
		if b.Spent, err = money.FromNumeric(spn); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) AddAllocationTx(ctx context.Context, tx pgx.Tx, bucket Bucket, amount *big.Int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE treasury_buckets SET allocated = allocated + $2::numeric WHERE bucket = $1
	`, string(bucket), money.Numeric(amount))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownBucket
	}
	return nil
}

// AddSpentTx bumps the bucket's spent counter; the guard holds the
// invariant spent <= allocated.
func (r *Repo) AddSpentTx(ctx context.Context, tx pgx.Tx, bucket Bucket, amount *big.Int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE treasury_buckets
		SET spent = spent + $2::numeric
		WHERE bucket = $1 AND spent + $2::numeric <= allocated
	`, string(bucket), money.Numeric(amount))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExceedsAllocation
	}
	return nil
}

func balanceColumn(c Currency) string {
	if c == CurrencyToken {
		return "token_balance"
	}
	return "stable_balance"
}

func (r *Repo) AddBalanceTx(ctx context.Context, tx pgx.Tx, c Currency, amount *big.Int) error {
	col := balanceColumn(c)
	_, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE treasury SET %s = %s + $1::numeric, updated_at = now() WHERE id = 1
	`, col, col), money.Numeric(amount))
	return err
}

// SubBalanceTx debits a treasury balance; the guard keeps holdings
// non-negative no matter what the caller computed.
func (r *Repo) SubBalanceTx(ctx context.Context, tx pgx.Tx, c Currency, amount *big.Int) error {
	col := balanceColumn(c)
	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE treasury SET %s = %s - $1::numeric, updated_at = now()
		WHERE id = 1 AND %s >= $1::numeric
	`, col, col, col), money.Numeric(amount))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (r *Repo) AddRevenueTx(ctx context.Context, tx pgx.Tx, counter string, amount *big.Int) error {
	var col string
	switch counter {
	case "membership":
		col = "revenue_membership"
	case "sale":
		col = "revenue_sale"
	case "product":
		col = "revenue_product"
	default:
		return ErrInvalidInput
	}
	_, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE treasury SET %s = %s + $1::numeric, updated_at = now() WHERE id = 1
	`, col, col), money.Numeric(amount))
	return err
}

/* Authorized callers */

func (r *Repo) IsAuthorizedCaller(ctx context.Context, caller string) (bool, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM treasury_callers WHERE caller = $1
	`, caller).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) SetAuthorizedCaller(ctx context.Context, caller string, authorized bool) error {
	if authorized {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO treasury_callers (caller) VALUES ($1) ON CONFLICT DO NOTHING
		`, caller)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		DELETE FROM treasury_callers WHERE caller = $1
	`, caller)
	return err
}

/* Product purchases */

func (r *Repo) InsertProductPurchaseTx(ctx context.Context, tx pgx.Tx, p ProductPurchase) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO product_purchases (order_id, caller, amount, payload)
		VALUES ($1,$2,$3::numeric,$4)
		RETURNING id
	`, p.OrderID, p.Caller, money.Numeric(p.Amount), p.Payload).Scan(&id)
	return id, err
}

func (r *Repo) ListProductPurchases(ctx context.Context, limit int) ([]ProductPurchase, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, caller, amount::text, payload, at
		FROM product_purchases ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductPurchase
	for rows.Next() {
		var (
			p   ProductPurchase
			amt string
		)
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Caller, &amt, &p.Payload, &p.At); err != nil {
			return nil, err
		}
		if p.Amount, err = money.FromNumeric(amt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
