package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/perkline/perkline/internal/domain/audit"
	"github.com/perkline/perkline/internal/domain/money"
	"github.com/perkline/perkline/internal/domain/rbac"
	"github.com/perkline/perkline/internal/infra/metrics"
)

// Notifier pushes human-facing operational notifications. Failures are the
// implementation's problem; the engine never checks them.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Engine owns the global exchange rate and the per-product margin table.
type Engine struct {
	repo   *Repo
	roles  *rbac.Repo
	audit  *audit.Repo
	notify Notifier
	log    *slog.Logger

	bounds           Bounds
	defaultMarginBps int64
	now              func() time.Time
}

func NewEngine(repo *Repo, roles *rbac.Repo, auditRepo *audit.Repo, notify Notifier, log *slog.Logger, bounds Bounds, defaultMarginBps int64) *Engine {
	return &Engine{
		repo:             repo,
		roles:            roles,
		audit:            auditRepo,
		notify:           notify,
		log:              log,
		bounds:           bounds,
		defaultMarginBps: defaultMarginBps,
		now:              time.Now,
	}
}

func (e *Engine) Rate(ctx context.Context) (ExchangeRate, error) {
	return e.repo.ExchangeRate(ctx)
}

func (e *Engine) ProductTypes(ctx context.Context) ([]ProductType, error) {
	return e.repo.ListProductTypes(ctx)
}

// MarginFor resolves the margin for a product type: the default margin for
// type zero, ErrUnknownProduct for a nonzero type with no configuration.
func (e *Engine) MarginFor(ctx context.Context, productType int64) (int64, error) {
	if productType == 0 {
		return e.defaultMarginBps, nil
	}
	p, err := e.repo.GetProductType(ctx, productType)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, ErrUnknownProduct
	}
	return p.MarginBps, nil
}

// CalculateRate computes the token quantity covering fiatCost plus the
// product's configured margin. productType 0 falls back to the default
// margin.
func (e *Engine) CalculateRate(ctx context.Context, fiatCost *big.Int, productType int64) (*big.Int, error) {
	margin, err := e.MarginFor(ctx, productType)
	if err != nil {
		return nil, err
	}
	rate, err := e.repo.ExchangeRate(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeRate(fiatCost, margin, rate.Value)
}

// CalculateRateWithMargin is CalculateRate with the margin supplied directly.
func (e *Engine) CalculateRateWithMargin(ctx context.Context, fiatCost *big.Int, marginBps int64) (*big.Int, error) {
	if marginBps > money.BpsDenom || marginBps < 0 {
		return nil, ErrInvalidMargin
	}
	rate, err := e.repo.ExchangeRate(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeRate(fiatCost, marginBps, rate.Value)
}

// DiscountRate halves a regular rate, flooring.
func (e *Engine) DiscountRate(regular *big.Int) *big.Int {
	return Discount(regular)
}

// SetExchangeRate updates the global rate. Admin or the designated price
// feed only; the new value must sit inside the configured bounds.
func (e *Engine) SetExchangeRate(ctx context.Context, actor string, newRate *big.Int) error {
	if err := e.roles.Require(ctx, actor, rbac.RolePriceFeed); err != nil {
		return err
	}
	if !money.Positive(newRate) {
		return ErrInvalidInput
	}
	if !e.bounds.Contains(newRate) {
		return ErrOutOfBounds
	}

	old, err := e.repo.ExchangeRate(ctx)
	if err != nil {
		return err
	}

	tx, err := e.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	at := e.now().UTC()
	if err := e.repo.SetExchangeRateTx(ctx, tx, money.Numeric(newRate), actor, at); err != nil {
		return err
	}
	if err := e.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "pricing.set_exchange_rate",
		Entity:   "exchange_rate",
		EntityID: "1",
		Old:      audit.JSON(map[string]string{"value": money.Numeric(old.Value)}),
		New:      audit.JSON(map[string]string{"value": money.Numeric(newRate)}),
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	metrics.ExchangeRateUpdates.Inc()
	e.log.Info("exchange rate updated",
		"old", money.Numeric(old.Value), "new", money.Numeric(newRate), "actor", actor)
	if e.notify != nil {
		e.notify.Notify(ctx, fmt.Sprintf("exchange rate changed: %s -> %s (by %s)",
			money.Format(old.Value, money.FiatDecimals),
			money.Format(newRate, money.FiatDecimals),
			actor))
	}
	return nil
}

// SetMargin updates a product type's margin. Admin only.
func (e *Engine) SetMargin(ctx context.Context, actor string, productType int64, marginBps int64) error {
	if err := e.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return err
	}
	if marginBps < 0 || marginBps > money.BpsDenom {
		return ErrInvalidMargin
	}

	tx, err := e.repo.Pool().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ok, err := e.repo.SetMarginTx(ctx, tx, productType, marginBps)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownProduct
	}
	if err := e.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "pricing.set_margin",
		Entity:   "product_type",
		EntityID: fmt.Sprintf("%d", productType),
		New:      audit.JSON(map[string]int64{"margin_bps": marginBps}),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateProductType registers a new product type. Admin only.
func (e *Engine) CreateProductType(ctx context.Context, actor string, name string, marginBps int64) (*ProductType, error) {
	if err := e.roles.Require(ctx, actor, rbac.RoleAdmin); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, ErrInvalidInput
	}
	if marginBps < 0 || marginBps > money.BpsDenom {
		return nil, ErrInvalidMargin
	}

	tx, err := e.repo.Pool().Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := e.repo.CreateProductTypeTx(ctx, tx, name, marginBps)
	if err != nil {
		return nil, err
	}
	if err := e.audit.InsertTx(ctx, tx, audit.Event{
		Actor:    actor,
		Action:   "pricing.create_product_type",
		Entity:   "product_type",
		EntityID: fmt.Sprintf("%d", p.ID),
		New:      audit.JSON(p),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}
