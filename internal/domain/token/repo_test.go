package token

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

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
// back, so they leave no trace.
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

func balanceTx(t *testing.T, tx pgx.Tx, account string) *big.Int {
	t.Helper()
	var raw string
	err := tx.QueryRow(context.Background(), `
		SELECT balance::text FROM balances WHERE account = $1
	`, account).Scan(&raw)
	if err == pgx.ErrNoRows {
		return new(big.Int)
	}
	require.NoError(t, err)
	v, err := money.FromNumeric(raw)
	require.NoError(t, err)
	return v
}

func supplyTx(t *testing.T, tx pgx.Tx) *big.Int {
	t.Helper()
	var raw string
	require.NoError(t, tx.QueryRow(context.Background(), `
		SELECT total::text FROM token_supply WHERE id = 1
	`).Scan(&raw))
	v, err := money.FromNumeric(raw)
	require.NoError(t, err)
	return v
}

// Mint, transfer and burn in sequence; the supply delta must equal the sum
// held by the touched accounts at every step's end.
func TestRepoConservation(t *testing.T) {
	pool := testPool(t)
	repo := NewRepo(pool)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	suffix := time.Now().UnixNano()
	alice := fmt.Sprintf("cons-alice-%d", suffix)
	bob := fmt.Sprintf("cons-bob-%d", suffix)

	supplyBefore := supplyTx(t, tx)

	require.NoError(t, repo.MintTx(ctx, tx, alice, money.Tokens(100)))
	require.NoError(t, repo.TransferTx(ctx, tx, alice, bob, money.Tokens(40)))
	require.NoError(t, repo.BurnTx(ctx, tx, bob, money.Tokens(10)))

	delta := new(big.Int).Sub(supplyTx(t, tx), supplyBefore)
	assert.Equal(t, "90", money.Format(delta, money.TokenDecimals))

	held := new(big.Int).Add(balanceTx(t, tx, alice), balanceTx(t, tx, bob))
	assert.Zero(t, held.Cmp(delta), "held balances diverged from the supply delta")
}

// An over-debit must fail and leave both sides of the transfer untouched.
func TestRepoDebitGuard(t *testing.T) {
	pool := testPool(t)
	repo := NewRepo(pool)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	suffix := time.Now().UnixNano()
	alice := fmt.Sprintf("guard-alice-%d", suffix)
	bob := fmt.Sprintf("guard-bob-%d", suffix)

	require.NoError(t, repo.MintTx(ctx, tx, alice, money.Tokens(5)))

	assert.ErrorIs(t, repo.TransferTx(ctx, tx, alice, bob, money.Tokens(6)), ErrInsufficientBalance)
	assert.Equal(t, "5", money.Format(balanceTx(t, tx, alice), money.TokenDecimals))
	assert.Equal(t, "0", money.Format(balanceTx(t, tx, bob), money.TokenDecimals))

	assert.ErrorIs(t, repo.BurnTx(ctx, tx, alice, money.Tokens(6)), ErrInsufficientBalance)
	assert.Equal(t, "5", money.Format(balanceTx(t, tx, alice), money.TokenDecimals))
}

// Exhausting a legacy batch deactivates it; a retry fails on the depletion
// guard, not with a stale success.
func TestRepoDepleteLegacyBatchGuard(t *testing.T) {
	pool := testPool(t)
	repo := NewRepo(pool)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	rate, err := money.Parse("78.4", money.TokenDecimals)
	require.NoError(t, err)
	id, err := repo.CreateLegacyBatchTx(ctx, tx, LegacyBatch{
		CostFiat:   money.Fiat(28),
		Rate:       rate,
		TotalUnits: 3,
		Code:       fmt.Sprintf("lb-%d", time.Now().UnixNano()),
	})
	require.NoError(t, err)

	at := time.Now().UTC()
	require.NoError(t, repo.DepleteLegacyBatchTx(ctx, tx, id, 3, at))

	b, found, err := repo.GetLegacyBatchForUpdateTx(ctx, tx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, b.Active)
	assert.Zero(t, b.RemainingUnits)

	assert.ErrorIs(t, repo.DepleteLegacyBatchTx(ctx, tx, id, 1, at), ErrInsufficientStock)
}
