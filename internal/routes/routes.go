package routes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dompet-app/dompet/internal/account"
	"github.com/dompet-app/dompet/internal/config"
	"github.com/dompet-app/dompet/internal/ledger"
	"github.com/dompet-app/dompet/internal/middleware"
	"github.com/dompet-app/dompet/internal/notification"
	"github.com/dompet-app/dompet/internal/payments"
	"github.com/dompet-app/dompet/internal/reporting"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		return fmt.Errorf("logger is required")
	}

	store, err := newStore(d)
	if err != nil {
		return err
	}
	ids, err := ledger.NewIDGenerator(d.Cfg.NodeID)
	if err != nil {
		return err
	}
	engine := ledger.NewEngine(store, ids,
		ledger.WithLockTimeout(d.Cfg.LockTimeout),
		ledger.WithLogger(d.Logger),
	)

	accountSvc := account.NewService(store, d.Logger)
	reportSvc := reporting.NewService(store, d.Cfg.ReportLocation)
	paymentSvc := payments.NewService(engine, notification.NewLoggerNotifier(d.Logger), d.Logger)

	// Middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  d.Cfg.CORSAllowOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Idempotency-Key, X-Request-ID",
		ExposeHeaders: "X-Request-ID, Idempotent-Replayed, Retry-After",
	}))
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.RateLimit(d.Cache, d.Cfg.RateLimitPerMinute, d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)
	RegisterUserRoutes(app, account.NewHandler(accountSvc))
	RegisterPaymentRoutes(app, payments.NewHandler(paymentSvc, reportSvc))
	RegisterTransactionRoutes(app, reporting.NewHandler(reportSvc))

	return nil
}

type store interface {
	ledger.Store
	reporting.Store
}

// newStore picks Postgres when a pool is configured and falls back to the
// in-memory store for local development.
func newStore(d Deps) (store, error) {
	if d.DB == nil {
		d.Logger.Warn("no database configured, using in-memory ledger")
		return ledger.NewInMemory(), nil
	}
	pg := ledger.NewPostgresStore(d.DB, d.Cfg.LockTimeout)
	if d.Cfg.AutoMigrate {
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, fmt.Errorf("migrate ledger schema: %w", err)
		}
	}
	return pg, nil
}
