package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/perkline/perkline/internal/domain/audit"
	"github.com/perkline/perkline/internal/domain/money"
	"github.com/perkline/perkline/internal/domain/rbac"
	"github.com/perkline/perkline/internal/domain/token"
	"github.com/perkline/perkline/internal/infra/metrics"
)

// Notifier pushes operational notifications; failures never propagate.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Ledger manages the two-currency treasury: actual holdings, allocation
// buckets and cumulative revenue/expense accounting. Token-denominated
// spends also move real balance on the token ledger from the treasury
// account; stable-denominated funds move out-of-band and only the
// accounting lives here.
type Ledger struct {
	repo   *Repo
	roles  *rbac.Repo
	audit  *audit.Repo
	tokens *token.Repo
	notify Notifier
	log    *slog.Logger

	treasuryAccount string
}

func NewLedger(repo *Repo, roles *rbac.Repo, auditRepo *audit.Repo, tokens *token.Repo, notify Notifier, log *slog.Logger, treasuryAccount string) *Ledger {
	return &Ledger{
		repo:            repo,
		roles:           roles,
		audit:           auditRepo,
		tokens:          tokens,
		notify:          notify,
		log:             log,
		treasuryAccount: treasuryAccount,
	}
}

func (l *Ledger) State(ctx context.Context) (State, error) {
	return l.repo.State(ctx)
}

func (l *Ledger) BucketStates(ctx context.Context) ([]BucketState, error) {
	return l.repo.Buckets(ctx)
}

func (l *Ledger) ProductPurchases(ctx context.Context, limit int) ([]ProductPurchase, error) {
	return l.repo.ListProductPurchases(ctx, limit)
}

// RecordMembershipPayment accounts for a membership payment whose tokens
// were already transferred to the treasury account by the caller. Only
// callers on the authorized list may report revenue.
func (l *Ledger) RecordMembershipPayment(ctx context.Context, caller string, amount *big.Int) error {
	ok, err := l.repo.IsAuthorizedCaller(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCallerNotAuthorized
	}
	if !money.Positive(amount) {
		return ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := l.repo.StateForUpdateTx(ctx, tx); err != nil {
		return err
	}
	if err := l.repo.AddRevenueTx(ctx, tx, "membership", amount); err != nil {
		return err
	}
	if err := l.repo.AddBalanceTx(ctx, tx, CurrencyToken, amount); err != nil {
		return err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    caller,
		Action:   "treasury.record_membership_payment",
		Entity:   "treasury",
		EntityID: "1",
		New:      audit.JSON(map[string]string{"amount": money.Numeric(amount)}),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *Ledger) receiveRevenue(ctx context.Context, actor string, counter string, c Currency, amount *big.Int) error {
	if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	if !money.Positive(amount) {
		return ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := l.repo.StateForUpdateTx(ctx, tx); err != nil {
		return err
	}
	if err := l.repo.AddRevenueTx(ctx, tx, counter, amount); err != nil {
		return err
	}
	if err := l.repo.AddBalanceTx(ctx, tx, c, amount); err != nil {
		return err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "treasury.receive_" + counter,
		Entity:   "treasury",
		EntityID: "1",
		New:      audit.JSON(map[string]string{"amount": money.Numeric(amount), "currency": string(c)}),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReceiveSaleProceeds books stable proceeds of a token sale. Admin only.
func (l *Ledger) ReceiveSaleProceeds(ctx context.Context, actor string, amount *big.Int) error {
	return l.receiveRevenue(ctx, actor, "sale", CurrencyStable, amount)
}

// ReceiveProductRevenue books stable revenue of product sales. Admin only.
func (l *Ledger) ReceiveProductRevenue(ctx context.Context, actor string, amount *big.Int) error {
	return l.receiveRevenue(ctx, actor, "product", CurrencyStable, amount)
}

// Allocate reserves funds for a bucket. The reservation is purely logical;
// no funds move. Admin only.
func (l *Ledger) Allocate(ctx context.Context, actor string, bucket Bucket, amount *big.Int) error {
	if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	c, ok := BucketCurrency(bucket)
	if !ok {
		return ErrUnknownBucket
	}
	if !money.Positive(amount) {
		return ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	state, err := l.repo.StateForUpdateTx(ctx, tx)
	if err != nil {
		return err
	}
	buckets, err := l.repo.BucketsTx(ctx, tx)
	if err != nil {
		return err
	}
	if Unallocated(state, buckets, c).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.repo.AddAllocationTx(ctx, tx, bucket, amount); err != nil {
		return err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "treasury.allocate",
		Entity:   "bucket",
		EntityID: string(bucket),
		New:      audit.JSON(map[string]string{"amount": money.Numeric(amount)}),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Spend releases funds from a bucket's unspent allocation to a recipient.
// Token buckets move real balance from the treasury account on the token
// ledger; stable buckets only account for the out-of-band transfer.
// Admin only.
func (l *Ledger) Spend(ctx context.Context, actor string, bucket Bucket, recipient string, amount *big.Int, note string) error {
	if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	c, ok := BucketCurrency(bucket)
	if !ok {
		return ErrUnknownBucket
	}
	if recipient == "" || !money.Positive(amount) {
		return ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := l.repo.StateForUpdateTx(ctx, tx); err != nil {
		return err
	}
	if err := l.repo.AddSpentTx(ctx, tx, bucket, amount); err != nil {
		return err
	}
	if err := l.repo.SubBalanceTx(ctx, tx, c, amount); err != nil {
		return err
	}
	if c == CurrencyToken {
		if err := l.tokens.TransferTx(ctx, tx, l.treasuryAccount, recipient, amount); err != nil {
			return err
		}
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "treasury.spend",
		Entity:   "bucket",
		EntityID: string(bucket),
		New: audit.JSON(map[string]string{
			"recipient": recipient,
			"amount":    money.Numeric(amount),
			"currency":  string(c),
		}),
		Note: note,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	metrics.TreasurySpends.WithLabelValues(string(bucket)).Inc()
	return nil
}

// AuthorizeCaller toggles an identity on the revenue-reporting allowlist.
// Admin only.
func (l *Ledger) AuthorizeCaller(ctx context.Context, actor, caller string, authorized bool) error {
	if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	if caller == "" {
		return ErrInvalidInput
	}
	if err := l.repo.SetAuthorizedCaller(ctx, caller, authorized); err != nil {
		return err
	}
	return l.audit.Insert(ctx, audit.Event{
		Actor:    actor,
		Action:   "treasury.authorize_caller",
		Entity:   "treasury_caller",
		EntityID: caller,
		New:      audit.JSON(map[string]bool{"authorized": authorized}),
	})
}

// RecordProductPurchase appends an off-band product sale to the audit trail
// and bumps the product revenue counter. Open to any caller; no funds move.
func (l *Ledger) RecordProductPurchase(ctx context.Context, caller string, orderID int64, amount *big.Int, payload []byte) (int64, error) {
	if orderID <= 0 || !money.Positive(amount) {
		return 0, ErrInvalidInput
	}
	if len(payload) == 0 || len(payload) > MaxPurchasePayload {
		return 0, ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := l.repo.StateForUpdateTx(ctx, tx); err != nil {
		return 0, err
	}
	id, err := l.repo.InsertProductPurchaseTx(ctx, tx, ProductPurchase{
		OrderID: orderID,
		Caller:  caller,
		Amount:  amount,
		Payload: payload,
	})
	if err != nil {
		return 0, err
	}
	if err := l.repo.AddRevenueTx(ctx, tx, "product", amount); err != nil {
		return 0, err
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    caller,
		Action:   "treasury.record_product_purchase",
		Entity:   "product_purchase",
		EntityID: fmt.Sprintf("%d", id),
		New:      audit.JSON(map[string]any{"order_id": orderID, "amount": money.Numeric(amount)}),
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

// EmergencyWithdraw moves funds out unconditionally, bypassing allocation
// accounting. Incident response only: every use is audited and pushed to
// the notification channel. Admin only.
func (l *Ledger) EmergencyWithdraw(ctx context.Context, actor string, c Currency, recipient string, amount *big.Int) error {
	if err := l.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	if c != CurrencyToken && c != CurrencyStable {
		return ErrInvalidInput
	}
	if recipient == "" || !money.Positive(amount) {
		return ErrInvalidInput
	}

	tx, err := l.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := l.repo.StateForUpdateTx(ctx, tx); err != nil {
		return err
	}
	if err := l.repo.SubBalanceTx(ctx, tx, c, amount); err != nil {
		return err
	}
	if c == CurrencyToken {
		if err := l.tokens.TransferTx(ctx, tx, l.treasuryAccount, recipient, amount); err != nil {
			return err
		}
	}
	if err := l.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "treasury.emergency_withdraw",
		Entity:   "treasury",
		EntityID: "1",
		New: audit.JSON(map[string]string{
			"recipient": recipient,
			"amount":    money.Numeric(amount),
			"currency":  string(c),
		}),
		Note: "allocation checks bypassed",
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	l.log.Warn("emergency withdraw executed",
		"actor", actor, "currency", string(c), "recipient", recipient, "amount", money.Numeric(amount))
	if l.notify != nil {
		l.notify.Notify(ctx, fmt.Sprintf("EMERGENCY WITHDRAW: %s %s -> %s (by %s)",
			money.Format(amount, decimalsFor(c)), c, recipient, actor))
	}
	return nil
}

func decimalsFor(c Currency) int {
	if c == CurrencyToken {
		return money.TokenDecimals
	}
	return money.FiatDecimals
}
