package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/perkline/perkline/internal/config"
	"github.com/perkline/perkline/internal/domain/audit"
	"github.com/perkline/perkline/internal/domain/inventory"
	"github.com/perkline/perkline/internal/domain/membership"
	"github.com/perkline/perkline/internal/domain/money"
	"github.com/perkline/perkline/internal/domain/pricing"
	"github.com/perkline/perkline/internal/domain/rbac"
	"github.com/perkline/perkline/internal/domain/token"
	"github.com/perkline/perkline/internal/domain/treasury"
	"github.com/perkline/perkline/internal/infra/db"
	httpx "github.com/perkline/perkline/internal/infra/http"
	"github.com/perkline/perkline/internal/infra/logger"
	"github.com/perkline/perkline/internal/infra/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/subosito/gotenv"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func rateBounds(cfg config.Config, log *slog.Logger) pricing.Bounds {
	var b pricing.Bounds
	if s := cfg.Economy.MinExchangeRate; s != "" {
		v, err := money.Parse(s, money.FiatDecimals)
		if err != nil {
			log.Warn("bad min_exchange_rate, ignoring", "value", s, "err", err)
		} else {
			b.Min = v
		}
	}
	if s := cfg.Economy.MaxExchangeRate; s != "" {
		v, err := money.Parse(s, money.FiatDecimals)
		if err != nil {
			log.Warn("bad max_exchange_rate, ignoring", "value", s, "err", err)
		} else {
			b.Max = v
		}
	}
	return b
}

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	tg := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.AdminChatID, log)

	rolesRepo := rbac.NewRepo(pool, cfg.Economy.AdminAccount)
	auditRepo := audit.NewRepo(pool)

	engine := pricing.NewEngine(pricing.NewRepo(pool), rolesRepo, auditRepo, tg, log,
		rateBounds(cfg, log), cfg.Economy.DefaultMarginBps)

	tokenRepo := token.NewRepo(pool)
	discountThreshold := money.Tokens(cfg.Economy.DiscountThresholdTokens)
	tokenLedger := token.NewLedger(tokenRepo, rolesRepo, auditRepo, engine, log,
		cfg.Economy.TreasuryAccount, discountThreshold)

	invLedger := inventory.NewLedger(inventory.NewRepo(pool), rolesRepo, auditRepo, engine, log)

	treasuryRepo := treasury.NewRepo(pool)
	treasuryLedger := treasury.NewLedger(treasuryRepo, rolesRepo, auditRepo, tokenRepo, tg, log,
		cfg.Economy.TreasuryAccount)

	registry := membership.NewRegistry(membership.NewRepo(pool), rolesRepo, auditRepo, tokenRepo,
		treasuryLedger, log, cfg.Economy.TreasuryAccount, cfg.Economy.MembershipCaller)

	// The registry reports membership proceeds to the treasury under its
	// configured caller identity; make sure it is on the allowlist.
	if cfg.Economy.MembershipCaller != "" {
		if err := treasuryRepo.SetAuthorizedCaller(ctx, cfg.Economy.MembershipCaller, true); err != nil {
			log.Error("seeding membership caller failed", "err", err)
			return
		}
	}

	api := httpx.NewAPI(log, engine, invLedger, treasuryLedger, registry, tokenLedger, rolesRepo, auditRepo)
	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, api)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
