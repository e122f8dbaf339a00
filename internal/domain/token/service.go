package token

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/perkline/perkline/internal/domain/audit"
	"github.com/perkline/perkline/internal/domain/money"
	"github.com/perkline/perkline/internal/domain/pricing"
	"github.com/perkline/perkline/internal/domain/rbac"
	"github.com/perkline/perkline/internal/infra/metrics"
)

// Ledger is the base fungible-asset ledger. Redemption on this path moves
// balance to the treasury account instead of burning it, and is gated by the
// ledger's own legacy batch counters.
type Ledger struct {
	repo    *Repo
	roles   *rbac.Repo
	audit   *audit.Repo
	pricing *pricing.Engine
	log     *slog.Logger

	treasuryAccount   string
	discountThreshold *big.Int // 18dp
	now               func() time.Time
}

func NewLedger(repo *Repo, roles *rbac.Repo, auditRepo *audit.Repo, eng *pricing.Engine, log *slog.Logger, treasuryAccount string, discountThreshold *big.Int) *Ledger {
	return &Ledger{
		repo:              repo,
		roles:             roles,
		audit:             auditRepo,
		pricing:           eng,
		log:               log,
		treasuryAccount:   treasuryAccount,
		discountThreshold: discountThreshold,
		now:               time.Now,
	}
}

func (l *Ledger) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	return l.repo.BalanceOf(ctx, account)
}

func (l *Ledger) TotalSupply(ctx context.Context) (*big.Int, error) {
	return l.repo.TotalSupply(ctx)
}

func (l *Ledger) LegacyBatch(ctx context.Context, id int64) (LegacyBatch, error) {
	return l.repo.GetLegacyBatch(ctx, id)
}

// HasDiscount is the balance-threshold discount predicate. It is entirely
// separate from the membership entitlement.
func (l *Ledger) HasDiscount(ctx context.Context, account string) (bool, error) {
	bal, err := l.repo.BalanceOf(ctx, account)
	if err != nil {
		return false, err
	}
	return bal.Cmp(l.discountThreshold) >= 0, nil
}

// Mint creates new supply. Minter or admin.
func (l *Ledger) Mint(ctx context.Context, actor, to string, amount *big.Int) error {
	if err := l.roles.Require(ctx, actor, rbac.RoleMinter); err != nil {
		return err
	}
	if to == "" || !money.Positive(amount) {
		return ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := l.repo.MintTx(ctx, tx, to, amount); err != nil {
		return err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "token.mint",
		Entity:   "account",
		EntityID: to,
		New:      audit.JSON(map[string]string{"amount": money.Numeric(amount)}),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Burn destroys supply from an account. The holder may burn their own
// balance; anything else requires admin.
func (l *Ledger) Burn(ctx context.Context, actor, from string, amount *big.Int) error {
	if actor != from {
		if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
			return err
		}
	}
	if from == "" || !money.Positive(amount) {
		return ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := l.repo.BurnTx(ctx, tx, from, amount); err != nil {
		return err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "token.burn",
		Entity:   "account",
		EntityID: from,
		New:      audit.JSON(map[string]string{"amount": money.Numeric(amount)}),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Transfer moves balance between accounts. The sender moves their own funds;
// moving someone else's requires admin.
func (l *Ledger) Transfer(ctx context.Context, actor, from, to string, amount *big.Int) error {
	if actor != from {
		if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
			return err
		}
	}
	if from == "" || to == "" || !money.Positive(amount) {
		return ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := l.repo.TransferTx(ctx, tx, from, to, amount); err != nil {
		return err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "token.transfer",
		Entity:   "account",
		EntityID: from,
		New:      audit.JSON(map[string]string{"to": to, "amount": money.Numeric(amount)}),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateLegacyBatch registers inventory on this ledger's own batch map.
// Minter or admin. The redemption rate is fixed from current pricing state
// at creation time.
func (l *Ledger) CreateLegacyBatch(ctx context.Context, actor string, productType int64, costFiat *big.Int, totalUnits int64, code string) (int64, error) {
	if err := l.roles.Require(ctx, actor, rbac.RoleMinter); err != nil {
		return 0, err
	}
	if !money.Positive(costFiat) || totalUnits <= 0 || code == "" {
		return 0, ErrInvalidInput
	}

	rate, err := l.pricing.CalculateRate(ctx, costFiat, productType)
	if err != nil {
		return 0, err
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := l.repo.CreateLegacyBatchTx(ctx, tx, LegacyBatch{
		ProductType: productType,
		CostFiat:    costFiat,
		Rate:        rate,
		TotalUnits:  totalUnits,
		Code:        code,
	})
	if err != nil {
		return 0, err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "token.create_legacy_batch",
		Entity:   "legacy_batch",
		EntityID: fmt.Sprintf("%d", id),
		New: audit.JSON(map[string]any{
			"product_type": productType,
			"cost_fiat":    money.Numeric(costFiat),
			"rate":         money.Numeric(rate),
			"total_units":  totalUnits,
			"code":         code,
		}),
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	l.log.Info("legacy batch created",
		"id", id, "code", code, "total_units", totalUnits, "rate", money.Numeric(rate))
	return id, nil
}

// Redeem spends units from a legacy batch and moves the owed tokens from the
// account to the treasury account. Accounts redeem for themselves; a
// redeemer (or admin) may redeem on behalf of others.
func (l *Ledger) Redeem(ctx context.Context, actor, account string, batchID, units int64) (*big.Int, error) {
	if actor != account {
		if err := l.roles.Require(ctx, actor, rbac.RoleRedeemer); err != nil {
			return nil, err
		}
	}
	if account == "" || units <= 0 {
		return nil, ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, found, err := l.repo.GetLegacyBatchForUpdateTx(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	if err := b.Redeemable(units); err != nil {
		return nil, err
	}

	tokens := b.TokensFor(units)
	if err := l.repo.TransferTx(ctx, tx, account, l.treasuryAccount, tokens); err != nil {
		return nil, err
	}
	at := l.now().UTC()
	if err := l.repo.DepleteLegacyBatchTx(ctx, tx, batchID, units, at); err != nil {
		return nil, err
	}
	if err := l.repo.InsertRedemptionTx(ctx, tx, account, batchID, units, tokens); err != nil {
		return nil, err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "token.redeem",
		Entity:   "legacy_batch",
		EntityID: fmt.Sprintf("%d", batchID),
		Old:      audit.JSON(map[string]int64{"remaining_units": b.RemainingUnits}),
		New: audit.JSON(map[string]any{
			"remaining_units": b.RemainingUnits - units,
			"account":         account,
			"tokens":          money.Numeric(tokens),
		}),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.Redemptions.WithLabelValues("token").Inc()
	return tokens, nil
}
