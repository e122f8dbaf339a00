package membership

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

const recordCols = `account, purchase_date, expiry_date, renewal_count, active`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.Account, &rec.PurchaseDate, &rec.ExpiryDate, &rec.RenewalCount, &rec.Active)
	return rec, err
}

func (r *Repo) Get(ctx context.Context, account string) (*Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `
		SELECT `+recordCols+` FROM memberships WHERE account = $1
	`, account))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repo) GetForUpdateTx(ctx context.Context, tx pgx.Tx, account string) (*Record, error) {
	rec, err := scanRecord(tx.QueryRow(ctx, `
		SELECT `+recordCols+` FROM memberships WHERE account = $1 FOR UPDATE
	`, account))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repo) UpsertTx(ctx context.Context, tx pgx.Tx, rec Record) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO memberships (account, purchase_date, expiry_date, renewal_count, active)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (account)
		DO UPDATE SET purchase_date = EXCLUDED.purchase_date,
		              expiry_date   = EXCLUDED.expiry_date,
		              renewal_count = EXCLUDED.renewal_count,
		              active        = EXCLUDED.active
	`, rec.Account, rec.PurchaseDate, rec.ExpiryDate, rec.RenewalCount, rec.Active)
	return err
}

func (r *Repo) SetExpiryTx(ctx context.Context, tx pgx.Tx, account string, expiry time.Time, active bool) error {
	_, err := tx.Exec(ctx, `
		UPDATE memberships SET expiry_date = $2, active = $3 WHERE account = $1
	`, account, expiry, active)
	return err
}

/* Params */

func (r *Repo) Params(ctx context.Context) (Params, error) {
	var (
		p       Params
		cost    string
		seconds int64
	)
	if err := r.pool.QueryRow(ctx, `
		SELECT cost::text, duration_secs FROM membership_params WHERE id = 1
	`).Scan(&cost, &seconds); err != nil {
		return p, err
	}
	var err error
	if p.Cost, err = money.FromNumeric(cost); err != nil {
		return p, err
	}
	p.Duration = time.Duration(seconds) * time.Second
	return p, nil
}

func (r *Repo) SetCost(ctx context.Context, cost *big.Int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE membership_params SET cost = $1::numeric WHERE id = 1
	`, money.Numeric(cost))
	return err
}

func (r *Repo) SetDuration(ctx context.Context, d time.Duration) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE membership_params SET duration_secs = $1 WHERE id = 1
	`, int64(d/time.Second))
	return err
}

/* Stats */

func (r *Repo) Stats(ctx context.Context) (Stats, error) {
	var (
		s   Stats
		rev string
	)
	if err := r.pool.QueryRow(ctx, `
		SELECT ever_joined, active_count, revenue::text FROM membership_stats WHERE id = 1
	`).Scan(&s.EverJoined, &s.ActiveCount, &rev); err != nil {
		return s, err
	}
	var err error
	s.Revenue, err = money.FromNumeric(rev)
	return s, err
}

func (r *Repo) AddEverJoinedTx(ctx context.Context, tx pgx.Tx, delta int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE membership_stats SET ever_joined = ever_joined + $1 WHERE id = 1
	`, delta)
	return err
}

// AddActiveTx moves the active counter, floor-clamped at zero.
func (r *Repo) AddActiveTx(ctx context.Context, tx pgx.Tx, delta int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE membership_stats SET active_count = GREATEST(0, active_count + $1) WHERE id = 1
	`, delta)
	return err
}

func (r *Repo) AddRevenueTx(ctx context.Context, tx pgx.Tx, amount *big.Int) error {
	_, err := tx.Exec(ctx, `
		UPDATE membership_stats SET revenue = revenue + $1::numeric WHERE id = 1
	`, money.Numeric(amount))
	return err
}
