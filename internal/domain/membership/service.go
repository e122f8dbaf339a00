package membership

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/perkline/perkline/internal/domain/audit"
	"github.com/perkline/perkline/internal/domain/money"
	"github.com/perkline/perkline/internal/domain/rbac"
	"github.com/perkline/perkline/internal/domain/token"
	"github.com/perkline/perkline/internal/domain/treasury"
	"github.com/perkline/perkline/internal/infra/metrics"
)

// Registry owns the time-bound VIP entitlement. Its lifecycle is entirely
// separate from the balance-threshold discount on the token ledger.
type Registry struct {
	repo     *Repo
	roles    *rbac.Repo
	audit    *audit.Repo
	tokens   *token.Repo
	treasury *treasury.Ledger
	log      *slog.Logger

	treasuryAccount string
	// callerID identifies this registry on the treasury's revenue
	// allowlist.
	callerID string
	now      func() time.Time
}

func NewRegistry(repo *Repo, roles *rbac.Repo, auditRepo *audit.Repo, tokens *token.Repo, tres *treasury.Ledger, log *slog.Logger, treasuryAccount, callerID string) *Registry {
	return &Registry{
		repo:            repo,
		roles:           roles,
		audit:           auditRepo,
		tokens:          tokens,
		treasury:        tres,
		log:             log,
		treasuryAccount: treasuryAccount,
		callerID:        callerID,
		now:             time.Now,
	}
}

func (g *Registry) Record(ctx context.Context, account string) (*Record, error) {
	return g.repo.Get(ctx, account)
}

func (g *Registry) Params(ctx context.Context) (Params, error) {
	return g.repo.Params(ctx)
}

func (g *Registry) Stats(ctx context.Context) (Stats, error) {
	return g.repo.Stats(ctx)
}

// IsEntitled is the authoritative entitlement check: stored flag AND expiry
// compared against the clock.
func (g *Registry) IsEntitled(ctx context.Context, account string) (bool, error) {
	rec, err := g.repo.Get(ctx, account)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return rec.Entitled(g.now()), nil
}

// Purchase buys or renews the caller's membership: the fixed token cost
// moves to the treasury account and the record is created or extended in
// one transaction. The treasury revenue notification runs after commit,
// best effort: its failure is logged and never unwinds the purchase.
func (g *Registry) Purchase(ctx context.Context, account string) (*Record, error) {
	if account == "" {
		return nil, ErrInvalidInput
	}
	params, err := g.repo.Params(ctx)
	if err != nil {
		return nil, err
	}
	now := g.now().UTC()

	tx, err := g.repo.Pool().Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := g.repo.GetForUpdateTx(ctx, tx, account)
	if err != nil {
		return nil, err
	}
	rec, isRenewal := PlanPurchase(existing, account, now, params.Duration)

	// The debit enforces the balance requirement; no separate pre-check.
	if err := g.tokens.TransferTx(ctx, tx, account, g.treasuryAccount, params.Cost); err != nil {
		return nil, err
	}
	if err := g.repo.UpsertTx(ctx, tx, rec); err != nil {
		return nil, err
	}
	if existing == nil {
		if err := g.repo.AddEverJoinedTx(ctx, tx, 1); err != nil {
			return nil, err
		}
	}
	if err := g.repo.AddActiveTx(ctx, tx, 1); err != nil {
		return nil, err
	}
	if err := g.repo.AddRevenueTx(ctx, tx, params.Cost); err != nil {
		return nil, err
	}
	if err := g.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    account,
		Action:   "membership.purchase",
		Entity:   "membership",
		EntityID: account,
		Old:      audit.JSON(existing),
		New: audit.JSON(map[string]any{
			"expiry_date":   rec.ExpiryDate,
			"renewal_count": rec.RenewalCount,
			"is_renewal":    isRenewal,
			"cost":          money.Numeric(params.Cost),
		}),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.MembershipPurchases.Inc()
	g.refreshActiveGauge(ctx)

	// Fire-and-forget revenue accounting; the membership itself is already
	// committed.
	if err := g.treasury.RecordMembershipPayment(ctx, g.callerID, params.Cost); err != nil {
		g.log.Error("treasury membership notification failed",
			"account", account, "amount", money.Numeric(params.Cost), "err", err)
	}
	return &rec, nil
}

// Extend pushes an account's expiry out by the given number of days.
// Expired records restart from now. Admin only.
func (g *Registry) Extend(ctx context.Context, actor, account string, days int64) error {
	if err := g.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	if days <= 0 {
		return ErrInvalidInput
	}
	now := g.now().UTC()

	tx, err := g.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := g.repo.GetForUpdateTx(ctx, tx, account)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	newExpiry := PlanExtend(*rec, now, days)
	if !rec.Active {
		if err := g.repo.AddActiveTx(ctx, tx, 1); err != nil {
			return err
		}
	}
	if err := g.repo.SetExpiryTx(ctx, tx, account, newExpiry, true); err != nil {
		return err
	}
	if err := g.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "membership.extend",
		Entity:   "membership",
		EntityID: account,
		Old:      audit.JSON(map[string]any{"expiry_date": rec.ExpiryDate, "active": rec.Active}),
		New:      audit.JSON(map[string]any{"expiry_date": newExpiry, "days": days}),
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	g.refreshActiveGauge(ctx)
	return nil
}

// Revoke ends a currently entitled membership immediately. Admin only.
func (g *Registry) Revoke(ctx context.Context, actor, account string) error {
	if err := g.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	now := g.now().UTC()

	tx, err := g.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := g.repo.GetForUpdateTx(ctx, tx, account)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	if !rec.Entitled(now) {
		return ErrNotEntitled
	}
	if err := g.repo.SetExpiryTx(ctx, tx, account, now, false); err != nil {
		return err
	}
	if err := g.repo.AddActiveTx(ctx, tx, -1); err != nil {
		return err
	}
	if err := g.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "membership.revoke",
		Entity:   "membership",
		EntityID: account,
		Old:      audit.JSON(map[string]any{"expiry_date": rec.ExpiryDate, "active": rec.Active}),
		New:      audit.JSON(map[string]any{"expiry_date": now, "active": false}),
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	g.refreshActiveGauge(ctx)
	return nil
}

// SweepExpired clears stale active flags for the given accounts and fixes
// the aggregate counter. Deliberately callable by anyone, so keeping the
// counters honest needs no privileged scheduler. Returns how many records
// were swept.
func (g *Registry) SweepExpired(ctx context.Context, caller string, accounts []string) (int, error) {
	if len(accounts) == 0 {
		return 0, ErrInvalidInput
	}
	now := g.now().UTC()
	swept := 0

	tx, err := g.repo.Pool().Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, account := range accounts {
		rec, err := g.repo.GetForUpdateTx(ctx, tx, account)
		if err != nil {
			return 0, err
		}
		if rec == nil || !rec.Stale(now) {
			continue
		}
		if err := g.repo.SetExpiryTx(ctx, tx, account, rec.ExpiryDate, false); err != nil {
			return 0, err
		}
		if err := g.repo.AddActiveTx(ctx, tx, -1); err != nil {
			return 0, err
		}
		swept++
	}
	if swept > 0 {
		if err := g.audit.InsertTx(ctx, tx, audit.Event{
			Actor:    caller,
			Action:   "membership.sweep_expired",
			Entity:   "membership_stats",
			EntityID: "1",
			New:      audit.JSON(map[string]int{"swept": swept}),
		}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	g.refreshActiveGauge(ctx)
	return swept, nil
}

// SetCost changes the token price of a membership. Admin only.
func (g *Registry) SetCost(ctx context.Context, actor string, cost *big.Int) error {
	if err := g.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	if !money.Positive(cost) {
		return ErrInvalidInput
	}
	if err := g.repo.SetCost(ctx, cost); err != nil {
		return err
	}
	return g.audit.Insert(ctx, audit.Event{
		Actor:    actor,
		Action:   "membership.set_cost",
		Entity:   "membership_params",
		EntityID: "1",
		New:      audit.JSON(map[string]string{"cost": money.Numeric(cost)}),
	})
}

// SetDuration changes the entitlement length. Admin only.
func (g *Registry) SetDuration(ctx context.Context, actor string, d time.Duration) error {
	if err := g.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	if d <= 0 {
		return ErrInvalidInput
	}
	if err := g.repo.SetDuration(ctx, d); err != nil {
		return err
	}
	return g.audit.Insert(ctx, audit.Event{
		Actor:    actor,
		Action:   "membership.set_duration",
		Entity:   "membership_params",
		EntityID: "1",
		New:      audit.JSON(map[string]int64{"duration_secs": int64(d / time.Second)}),
	})
}

func (g *Registry) refreshActiveGauge(ctx context.Context) {
	stats, err := g.repo.Stats(ctx)
	if err != nil {
		g.log.Error("membership stats read failed", "err", err)
		return
	}
	metrics.ActiveMembers.Set(float64(stats.ActiveCount))
}
