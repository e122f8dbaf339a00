package inventory

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

// Ledger owns stock batches and their depletion. Token movement for a
// redemption recorded here is the caller's responsibility; this ledger only
// accounts for the stock side.
type Ledger struct {
	repo    *Repo
	roles   *rbac.Repo
	audit   *audit.Repo
	pricing *pricing.Engine
	log     *slog.Logger
	now     func() time.Time
}

func NewLedger(repo *Repo, roles *rbac.Repo, auditRepo *audit.Repo, eng *pricing.Engine, log *slog.Logger) *Ledger {
	return &Ledger{repo: repo, roles: roles, audit: auditRepo, pricing: eng, log: log, now: time.Now}
}

func (l *Ledger) Batch(ctx context.Context, id int64) (Batch, error) {
	return l.repo.Get(ctx, id)
}

func (l *Ledger) Batches(ctx context.Context) ([]Batch, error) {
	return l.repo.List(ctx)
}

func (l *Ledger) AccountRedeemed(ctx context.Context, batchID int64, account string) (int64, error) {
	return l.repo.AccountRedeemed(ctx, batchID, account)
}

// rates computes the regular and discounted rate for a cost/margin pair
// against the current exchange rate.
func (l *Ledger) rates(ctx context.Context, costFiat *big.Int, marginBps int64) (regular, discounted *big.Int, err error) {
	regular, err = l.pricing.CalculateRateWithMargin(ctx, costFiat, marginBps)
	if err != nil {
		return nil, nil, err
	}
	return regular, pricing.Discount(regular), nil
}

// CreateBatch registers new stock. Minter or admin. marginOverride, when
// non-nil, takes precedence over the product type's configured margin.
func (l *Ledger) CreateBatch(ctx context.Context, actor string, productType int64, costFiat *big.Int, marginOverride *int64, totalStock int64, code, labRef string) (int64, error) {
	if err := l.roles.Require(ctx, actor, rbac.RoleMinter); err != nil {
		return 0, err
	}
	if !money.Positive(costFiat) || totalStock <= 0 || code == "" {
		return 0, ErrInvalidInput
	}

	var margin int64
	if marginOverride != nil {
		if *marginOverride > money.BpsDenom || *marginOverride < 0 {
			return 0, ErrMarginTooHigh
		}
		margin = *marginOverride
	} else {
		m, err := l.pricing.MarginFor(ctx, productType)
		if err != nil {
			return 0, err
		}
		margin = m
	}

	regular, discounted, err := l.rates(ctx, costFiat, margin)
	if err != nil {
		return 0, err
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := l.repo.CreateTx(ctx, tx, Batch{
		ProductType:    productType,
		CostFiat:       costFiat,
		MarginBps:      margin,
		RegularRate:    regular,
		DiscountedRate: discounted,
		TotalStock:     totalStock,
		Code:           code,
		LabRef:         labRef,
	})
	if err != nil {
		return 0, err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "inventory.create_batch",
		Entity:   "batch",
		EntityID: fmt.Sprintf("%d", id),
		New: audit.JSON(map[string]any{
			"product_type":    productType,
			"cost_fiat":       money.Numeric(costFiat),
			"margin_bps":      margin,
			"regular_rate":    money.Numeric(regular),
			"discounted_rate": money.Numeric(discounted),
			"total_stock":     totalStock,
			"code":            code,
			"lab_ref":         labRef,
		}),
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateBatchPricing changes cost and/or margin on an active batch and
// recomputes both rates. Admin only. Nil arguments keep the stored value.
func (l *Ledger) UpdateBatchPricing(ctx context.Context, actor string, batchID int64, newCost *big.Int, newMargin *int64) error {
	if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, found, err := l.repo.GetForUpdateTx(ctx, tx, batchID)
	if err != nil {
		return err
	}
	if !found {
		return ErrInvalidBatch
	}
	if !b.Active {
		return ErrNotActive
	}

	cost := b.CostFiat
	if newCost != nil {
		if !money.Positive(newCost) {
			return ErrInvalidInput
		}
		cost = newCost
	}
	margin := b.MarginBps
	if newMargin != nil {
		if *newMargin > money.BpsDenom || *newMargin < 0 {
			return ErrMarginTooHigh
		}
		margin = *newMargin
	}

	regular, discounted, err := l.rates(ctx, cost, margin)
	if err != nil {
		return err
	}
	if err := l.repo.UpdatePricingTx(ctx, tx, batchID, cost, margin, regular, discounted); err != nil {
		return err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "inventory.update_batch_pricing",
		Entity:   "batch",
		EntityID: fmt.Sprintf("%d", batchID),
		Old: audit.JSON(map[string]any{
			"cost_fiat":    money.Numeric(b.CostFiat),
			"margin_bps":   b.MarginBps,
			"regular_rate": money.Numeric(b.RegularRate),
		}),
		New: audit.JSON(map[string]any{
			"cost_fiat":    money.Numeric(cost),
			"margin_bps":   margin,
			"regular_rate": money.Numeric(regular),
		}),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AdjustStock sets a new total without disturbing the redeemed count.
// Admin only.
func (l *Ledger) AdjustStock(ctx context.Context, actor string, batchID int64, newTotal int64) error {
	if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	if newTotal < 0 {
		return ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, found, err := l.repo.GetForUpdateTx(ctx, tx, batchID)
	if err != nil {
		return err
	}
	if !found {
		return ErrInvalidBatch
	}
	if err := l.repo.AdjustStockTx(ctx, tx, batchID, newTotal); err != nil {
		return err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "inventory.adjust_stock",
		Entity:   "batch",
		EntityID: fmt.Sprintf("%d", batchID),
		Old:      audit.JSON(map[string]int64{"total_stock": b.TotalStock, "remaining_stock": b.RemainingStock}),
		New:      audit.JSON(map[string]int64{"total_stock": newTotal, "remaining_stock": newTotal - b.Redeemed()}),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordRedemption depletes stock and reports the token quantity the caller
// owes. It records the debit only; moving the tokens is the caller's
// responsibility. Accounts redeem for themselves; a redeemer (or admin) may
// record on behalf of others.
func (l *Ledger) RecordRedemption(ctx context.Context, actor, account string, batchID, quantity int64, discounted bool) (*big.Int, error) {
	if actor != account {
		if err := l.roles.Require(ctx, actor, rbac.RoleRedeemer); err != nil {
			return nil, err
		}
	}
	if account == "" || quantity <= 0 {
		return nil, ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, found, err := l.repo.GetForUpdateTx(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidBatch
	}
	if err := b.Redeemable(quantity); err != nil {
		return nil, err
	}

	tokens := b.TokensRequired(quantity, discounted)
	at := l.now().UTC()
	if err := l.repo.DepleteTx(ctx, tx, batchID, quantity, at); err != nil {
		return nil, err
	}
	if err := l.repo.InsertRedemptionTx(ctx, tx, Redemption{
		Account:    account,
		BatchID:    batchID,
		Quantity:   quantity,
		Discounted: discounted,
		Tokens:     tokens,
	}); err != nil {
		return nil, err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "inventory.record_redemption",
		Entity:   "batch",
		EntityID: fmt.Sprintf("%d", batchID),
		Old:      audit.JSON(map[string]int64{"remaining_stock": b.RemainingStock}),
		New: audit.JSON(map[string]any{
			"remaining_stock": b.RemainingStock - quantity,
			"account":         account,
			"quantity":        quantity,
			"discounted":      discounted,
			"tokens":          money.Numeric(tokens),
		}),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.Redemptions.WithLabelValues("inventory").Inc()
	return tokens, nil
}

// RecalculateRates recomputes rates for every active batch in [startID,
// endID] from each batch's stored cost and margin at the current exchange
// rate. Admin only. Inactive batches are skipped. Running it twice without
// an intervening price change is a no-op.
func (l *Ledger) RecalculateRates(ctx context.Context, actor string, startID, endID int64) error {
	if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	maxID, err := l.repo.MaxID(ctx)
	if err != nil {
		return err
	}
	if startID < 1 || endID < startID || endID > maxID {
		return ErrInvalidRange
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var updated, skipped int
	for id := startID; id <= endID; id++ {
		b, found, err := l.repo.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found || !b.Active {
			skipped++
			continue
		}
		regular, discounted, err := l.rates(ctx, b.CostFiat, b.MarginBps)
		if err != nil {
			return err
		}
		if err := l.repo.SetRatesTx(ctx, tx, id, regular, discounted); err != nil {
			return err
		}
		updated++
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "inventory.recalculate_rates",
		Entity:   "batch_range",
		EntityID: fmt.Sprintf("%d-%d", startID, endID),
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	l.log.Info("batch rates recalculated",
		"start_id", startID, "end_id", endID, "updated", updated, "skipped", skipped)
	return nil
}

// Reactivate turns a deactivated batch back on; only possible while stock
// remains. Admin only.
func (l *Ledger) Reactivate(ctx context.Context, actor string, batchID int64) error {
	if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, found, err := l.repo.GetForUpdateTx(ctx, tx, batchID)
	if err != nil {
		return err
	}
	if !found {
		return ErrInvalidBatch
	}
	if b.Active {
		return ErrAlreadyActive
	}
	if b.RemainingStock <= 0 {
		return ErrInsufficientStock
	}
	if err := l.repo.SetActiveTx(ctx, tx, batchID, true, l.now().UTC()); err != nil {
		return err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "inventory.reactivate",
		Entity:   "batch",
		EntityID: fmt.Sprintf("%d", batchID),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Deactivate turns a batch off without touching stock. Admin only.
func (l *Ledger) Deactivate(ctx context.Context, actor string, batchID int64) error {
	if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, found, err := l.repo.GetForUpdateTx(ctx, tx, batchID)
	if err != nil {
		return err
	}
	if !found {
		return ErrInvalidBatch
	}
	if !b.Active {
		return ErrNotActive
	}
	if err := l.repo.SetActiveTx(ctx, tx, batchID, false, l.now().UTC()); err != nil {
		return err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "inventory.deactivate",
		Entity:   "batch",
		EntityID: fmt.Sprintf("%d", batchID),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
