package treasury

import (
	"context"
	"math/big"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perkline/perkline/internal/domain/money"
)

// testPool connects to the database named by TEST_DATABASE_DSN and brings its
// schema up to date. Tests run inside a transaction that is always rolled
// back, so the shared treasury row is never actually touched.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	require.NoError(t, err)
	require.NoError(t, goose.Up(sqlDB, "../../../migrations"))
	require.NoError(t, sqlDB.Close())

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func bucketStateTx(t *testing.T, tx pgx.Tx, repo *Repo, bucket Bucket) BucketState {
	t.Helper()
	buckets, err := repo.BucketsTx(context.Background(), tx)
	require.NoError(t, err)
	for _, b := range buckets {
		if b.Bucket == bucket {
			return b
		}
	}
	t.Fatalf("bucket %s not seeded", bucket)
	return BucketState{}
}

// A spend past the unspent allocation must fail and move nothing: neither the
// bucket's spent counter nor the treasury balance.
func TestRepoSpendAllocationGuard(t *testing.T) {
	pool := testPool(t)
	repo := NewRepo(pool)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = repo.StateForUpdateTx(ctx, tx)
	require.NoError(t, err)

	require.NoError(t, repo.AddBalanceTx(ctx, tx, CurrencyToken, money.Tokens(100)))
	require.NoError(t, repo.AddAllocationTx(ctx, tx, BucketRewards, money.Tokens(50)))

	before := bucketStateTx(t, tx, repo, BucketRewards)
	stateBefore, err := repo.StateForUpdateTx(ctx, tx)
	require.NoError(t, err)

	overdraw := new(big.Int).Add(before.Outstanding(), money.Tokens(1))
	assert.ErrorIs(t, repo.AddSpentTx(ctx, tx, BucketRewards, overdraw), ErrExceedsAllocation)

	after := bucketStateTx(t, tx, repo, BucketRewards)
	assert.Zero(t, after.Spent.Cmp(before.Spent), "spent counter moved on a rejected spend")

	stateAfter, err := repo.StateForUpdateTx(ctx, tx)
	require.NoError(t, err)
	assert.Zero(t, stateAfter.TokenBalance.Cmp(stateBefore.TokenBalance), "balance moved on a rejected spend")

	// spending the full outstanding allocation still goes through
	require.NoError(t, repo.AddSpentTx(ctx, tx, BucketRewards, before.Outstanding()))
	exhausted := bucketStateTx(t, tx, repo, BucketRewards)
	assert.Zero(t, exhausted.Outstanding().Sign())
}

// Treasury holdings can never be debited below zero.
func TestRepoBalanceGuard(t *testing.T) {
	pool := testPool(t)
	repo := NewRepo(pool)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	state, err := repo.StateForUpdateTx(ctx, tx)
	require.NoError(t, err)

	over := new(big.Int).Add(state.StableBalance, money.Fiat(1))
	assert.ErrorIs(t, repo.SubBalanceTx(ctx, tx, CurrencyStable, over), ErrInsufficientBalance)

	unchanged, err := repo.StateForUpdateTx(ctx, tx)
	require.NoError(t, err)
	assert.Zero(t, unchanged.StableBalance.Cmp(state.StableBalance))
}
